package agui

import (
	"fmt"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	"github.com/spetersoncode/stockagent/event"
)

// Mapper converts agent events to AG-UI events.
//
// AG-UI text messages and steps follow a Start-Content-End pattern while the
// agent feed only marks boundaries implicitly, so the Mapper tracks the open
// message and step and closes them as the feed moves on. Each model round
// becomes one AG-UI step; reply text becomes assistant text messages; tool
// notices become tool call start/args/end and step completions become tool
// call results.
//
// Create a new Mapper for each run. It is not safe for concurrent use.
type Mapper struct {
	threadID string
	runID    string

	step      int
	messageID string
	finished  bool
}

// NewMapper creates a new Mapper for a single run.
// Missing IDs are generated.
func NewMapper(threadID, runID string) *Mapper {
	if threadID == "" {
		threadID = events.GenerateThreadID()
	}
	if runID == "" {
		runID = events.GenerateRunID()
	}
	return &Mapper{
		threadID: threadID,
		runID:    runID,
	}
}

// ThreadID returns the thread ID for this mapper.
func (m *Mapper) ThreadID() string {
	return m.threadID
}

// RunID returns the run ID for this mapper.
func (m *Mapper) RunID() string {
	return m.runID
}

// RunStarted returns a RUN_STARTED event.
func (m *Mapper) RunStarted() events.Event {
	return events.NewRunStartedEvent(m.threadID, m.runID)
}

// RunFinished returns a RUN_FINISHED event.
func (m *Mapper) RunFinished() events.Event {
	return events.NewRunFinishedEvent(m.threadID, m.runID)
}

// RunError returns a RUN_ERROR event.
func (m *Mapper) RunError(err error) events.Event {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return events.NewRunErrorEvent(msg)
}

// Finished reports whether a terminal event has been mapped.
func (m *Mapper) Finished() bool {
	return m.finished
}

func stepName(n int) string {
	return fmt.Sprintf("step-%d", n)
}

// advance closes the open message and step when e belongs to a later round.
func (m *Mapper) advance(e event.Event) []events.Event {
	if e.Step <= m.step {
		return nil
	}
	out := m.closeMessage()
	if m.step > 0 {
		out = append(out, events.NewStepFinishedEvent(stepName(m.step)))
	}
	m.step = e.Step
	return append(out, events.NewStepStartedEvent(stepName(m.step)))
}

func (m *Mapper) openMessage() []events.Event {
	if m.messageID != "" {
		return nil
	}
	m.messageID = events.GenerateMessageID()
	return []events.Event{events.NewTextMessageStartEvent(m.messageID, events.WithRole(RoleAssistant))}
}

func (m *Mapper) closeMessage() []events.Event {
	if m.messageID == "" {
		return nil
	}
	id := m.messageID
	m.messageID = ""
	return []events.Event{events.NewTextMessageEndEvent(id)}
}

func (m *Mapper) closeAll() []events.Event {
	out := m.closeMessage()
	if m.step > 0 {
		out = append(out, events.NewStepFinishedEvent(stepName(m.step)))
		m.step = 0
	}
	return out
}

func (m *Mapper) text(delta string) []events.Event {
	if delta == "" {
		return nil
	}
	out := m.openMessage()
	return append(out, events.NewTextMessageContentEvent(m.messageID, delta))
}

// MapEvent converts one agent event to zero or more AG-UI events.
// Thinking events only mark round boundaries; their text has no AG-UI
// counterpart.
func (m *Mapper) MapEvent(e event.Event) []events.Event {
	if m.finished {
		return nil
	}
	out := m.advance(e)

	switch e.Type {
	case event.StreamChunk, event.FinalChunk:
		out = append(out, m.text(e.Content)...)

	case event.FinalStart:
		out = append(out, m.closeMessage()...)
		out = append(out, m.openMessage()...)

	case event.ToolNotice:
		out = append(out, m.closeMessage()...)
		if e.ToolCall != nil {
			id := e.ToolCall.ID
			out = append(out,
				events.NewToolCallStartEvent(id, e.ToolCall.Name),
				events.NewToolCallArgsEvent(id, e.ToolCall.Arguments),
				events.NewToolCallEndEvent(id),
			)
		}

	case event.StepComplete:
		if e.ToolCall != nil && e.ToolResult != nil {
			out = append(out, events.NewToolCallResultEvent(events.GenerateMessageID(), e.ToolCall.ID, e.ToolResult.Content))
		}

	case event.FinalComplete:
		// an answer that arrives without deltas still becomes a message
		if m.messageID == "" && e.Content != "" {
			out = append(out, m.text(e.Content)...)
		}
		out = append(out, m.closeAll()...)
		out = append(out, m.RunFinished())
		m.finished = true

	case event.Error:
		out = append(out, m.closeAll()...)
		out = append(out, m.RunError(e.Err))
		m.finished = true
	}
	return out
}

// MapStream wraps an agent event feed: RUN_STARTED first, then the mapped
// events. If the feed ends without a terminal event, RUN_ERROR is appended.
func (m *Mapper) MapStream(in <-chan event.Event) <-chan events.Event {
	out := make(chan events.Event)
	go func() {
		defer close(out)
		out <- m.RunStarted()
		for e := range in {
			for _, ev := range m.MapEvent(e) {
				out <- ev
			}
		}
		if !m.finished {
			for _, ev := range m.closeAll() {
				out <- ev
			}
			out <- m.RunError(fmt.Errorf("run ended without a result"))
			m.finished = true
		}
	}()
	return out
}
