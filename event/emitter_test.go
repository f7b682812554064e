package event

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitterPreservesOrder(t *testing.T) {
	ch := make(chan Event)
	em := NewEmitter(ch)

	go func() {
		defer close(ch)
		for i := 0; i < 100; i++ {
			assert.NoError(t, em.Emit(context.Background(), Event{Type: FinalChunk, Content: fmt.Sprint(i)}))
		}
	}()

	events := Collect(ch)
	require.Len(t, events, 100)
	for i, ev := range events {
		assert.Equal(t, fmt.Sprint(i), ev.Content)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestEmitterBlocksUntilCancelled(t *testing.T) {
	ch := make(chan Event)
	em := NewEmitter(ch)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := em.Emit(ctx, Event{Type: Thinking})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEmitterDeliversBufferedAfterCancel(t *testing.T) {
	ch := make(chan Event, 1)
	em := NewEmitter(ch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 20; i++ {
		require.NoError(t, em.Emit(ctx, Event{Type: StepComplete}))
		assert.Equal(t, StepComplete, (<-ch).Type)
	}
	require.NoError(t, em.Emit(ctx, Event{Type: Thinking}))
	assert.ErrorIs(t, em.Emit(ctx, Event{Type: Thinking}), context.Canceled)
}

func TestEventTerminal(t *testing.T) {
	tests := []struct {
		typ  Type
		want bool
	}{
		{Thinking, false},
		{StreamChunk, false},
		{StepComplete, false},
		{ToolNotice, false},
		{FinalStart, false},
		{FinalChunk, false},
		{FinalComplete, true},
		{Error, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.want, Event{Type: tt.typ}.Terminal())
		})
	}
}

func TestTypes(t *testing.T) {
	evs := []Event{{Type: FinalStart}, {Type: FinalChunk}, {Type: FinalComplete}}
	assert.Equal(t, []Type{FinalStart, FinalChunk, FinalComplete}, Types(evs))
	assert.Empty(t, Event{}.ToolName())
}
