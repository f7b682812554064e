package agui

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	ai "github.com/spetersoncode/stockagent"
	"github.com/spetersoncode/stockagent/event"
)

func typesOf(evs []events.Event) []events.EventType {
	out := make([]events.EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type()
	}
	return out
}

func mapAll(m *Mapper, feed []event.Event) []events.Event {
	in := make(chan event.Event, len(feed))
	for _, e := range feed {
		in <- e
	}
	close(in)
	var out []events.Event
	for ev := range m.MapStream(in) {
		out = append(out, ev)
	}
	return out
}

func TestMapper_DirectAnswer(t *testing.T) {
	m := NewMapper("thread-1", "run-1")
	out := mapAll(m, []event.Event{
		{Type: event.FinalStart, Step: 1},
		{Type: event.FinalChunk, Step: 1, Content: "Hel"},
		{Type: event.FinalChunk, Step: 1, Content: ""},
		{Type: event.FinalChunk, Step: 1, Content: "lo"},
		{Type: event.FinalComplete, Step: 1, Content: "Hello"},
	})

	want := []events.EventType{
		events.EventTypeRunStarted,
		events.EventTypeStepStarted,
		events.EventTypeTextMessageStart,
		events.EventTypeTextMessageContent,
		events.EventTypeTextMessageContent,
		events.EventTypeTextMessageEnd,
		events.EventTypeStepFinished,
		events.EventTypeRunFinished,
	}
	if got := typesOf(out); !reflect.DeepEqual(got, want) {
		t.Fatalf("types = %v, want %v", got, want)
	}

	start := out[2].(*events.TextMessageStartEvent)
	end := out[5].(*events.TextMessageEndEvent)
	if start.MessageID != end.MessageID {
		t.Errorf("message IDs differ: %q vs %q", start.MessageID, end.MessageID)
	}
	if d := out[3].(*events.TextMessageContentEvent).Delta; d != "Hel" {
		t.Errorf("first delta = %q, want %q", d, "Hel")
	}
	if !m.Finished() {
		t.Error("mapper should be finished")
	}
}

func TestMapper_ToolRound(t *testing.T) {
	call := &ai.ToolCall{ID: "call-1", Name: "get_historical_data", Arguments: `{"ticker":"TSLA"}`}
	result := &ai.ToolResult{ToolCallID: "call-1", Content: `{"status":"success"}`}

	m := NewMapper("", "")
	out := mapAll(m, []event.Event{
		{Type: event.StreamChunk, Step: 1, Content: "让我查一下"},
		{Type: event.ToolNotice, Step: 1, Content: "📊 ...", ToolCall: call},
		{Type: event.StepComplete, Step: 1, ToolCall: call, ToolResult: result},
		{Type: event.Thinking, Step: 1, Content: "✅"},
		{Type: event.FinalStart, Step: 2},
		{Type: event.FinalChunk, Step: 2, Content: "done"},
		{Type: event.FinalComplete, Step: 2, Content: "done"},
	})

	want := []events.EventType{
		events.EventTypeRunStarted,
		events.EventTypeStepStarted,
		events.EventTypeTextMessageStart,
		events.EventTypeTextMessageContent,
		events.EventTypeTextMessageEnd,
		events.EventTypeToolCallStart,
		events.EventTypeToolCallArgs,
		events.EventTypeToolCallEnd,
		events.EventTypeToolCallResult,
		events.EventTypeStepFinished,
		events.EventTypeStepStarted,
		events.EventTypeTextMessageStart,
		events.EventTypeTextMessageContent,
		events.EventTypeTextMessageEnd,
		events.EventTypeStepFinished,
		events.EventTypeRunFinished,
	}
	if got := typesOf(out); !reflect.DeepEqual(got, want) {
		t.Fatalf("types = %v, want %v", got, want)
	}

	res := out[8].(*events.ToolCallResultEvent)
	if res.ToolCallID != "call-1" || res.Content != `{"status":"success"}` {
		t.Errorf("unexpected tool result event: %+v", res)
	}
	if name := out[10].(*events.StepStartedEvent).StepName; name != "step-2" {
		t.Errorf("step name = %q, want step-2", name)
	}
	if m.ThreadID() == "" || m.RunID() == "" {
		t.Error("IDs should be generated")
	}
}

func TestMapper_Error(t *testing.T) {
	m := NewMapper("t", "r")
	out := mapAll(m, []event.Event{
		{Type: event.StreamChunk, Step: 1, Content: "x"},
		{Type: event.Error, Step: 1, Content: "boom", Err: errors.New("boom")},
		{Type: event.FinalComplete, Step: 1, Content: "ignored"},
	})

	want := []events.EventType{
		events.EventTypeRunStarted,
		events.EventTypeStepStarted,
		events.EventTypeTextMessageStart,
		events.EventTypeTextMessageContent,
		events.EventTypeTextMessageEnd,
		events.EventTypeStepFinished,
		events.EventTypeRunError,
	}
	if got := typesOf(out); !reflect.DeepEqual(got, want) {
		t.Fatalf("types = %v, want %v", got, want)
	}
	if msg := out[6].(*events.RunErrorEvent).Message; msg != "boom" {
		t.Errorf("error message = %q, want boom", msg)
	}
}

func TestMapper_TruncatedFeed(t *testing.T) {
	out := mapAll(NewMapper("t", "r"), []event.Event{
		{Type: event.Thinking, Step: 1, Content: "🤔"},
	})
	want := []events.EventType{
		events.EventTypeRunStarted,
		events.EventTypeStepStarted,
		events.EventTypeStepFinished,
		events.EventTypeRunError,
	}
	if got := typesOf(out); !reflect.DeepEqual(got, want) {
		t.Fatalf("types = %v, want %v", got, want)
	}
}

func TestMapper_FinalWithoutChunks(t *testing.T) {
	m := NewMapper("t", "r")
	out := m.MapEvent(event.Event{Type: event.FinalComplete, Step: 1, Content: "answer"})
	want := []events.EventType{
		events.EventTypeStepStarted,
		events.EventTypeTextMessageStart,
		events.EventTypeTextMessageContent,
		events.EventTypeTextMessageEnd,
		events.EventTypeStepFinished,
		events.EventTypeRunFinished,
	}
	if got := typesOf(out); !reflect.DeepEqual(got, want) {
		t.Fatalf("types = %v, want %v", got, want)
	}
	if extra := m.MapEvent(event.Event{Type: event.FinalChunk, Step: 1, Content: "late"}); extra != nil {
		t.Errorf("events after terminal = %v, want none", typesOf(extra))
	}
}
