package event

import (
	"context"
	"time"
)

// Emitter delivers events to a channel in the order they are emitted.
//
// Emit blocks until the consumer receives the event or ctx is done. Events are
// never dropped or coalesced.
type Emitter struct {
	ch  chan<- Event
	now func() time.Time
}

// NewEmitter creates an emitter writing to ch.
func NewEmitter(ch chan<- Event) *Emitter {
	return &Emitter{ch: ch, now: time.Now}
}

// Emit stamps and sends one event. It returns ctx.Err() if the consumer went
// away before the event was delivered. An event that fits in the channel
// buffer is delivered even when ctx is already done.
func (e *Emitter) Emit(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now()
	}
	select {
	case e.ch <- ev:
		return nil
	default:
	}
	select {
	case e.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewChannel creates an event channel with a small buffer.
func NewChannel() chan Event {
	return make(chan Event, 16)
}

// Collect drains ch until it is closed.
func Collect(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

// Types returns the type of every event, in order.
func Types(events []Event) []Type {
	out := make([]Type, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}
