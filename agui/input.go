package agui

import (
	"errors"
	"strings"

	ai "github.com/spetersoncode/stockagent"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
)

// RunAgentInput represents the AG-UI protocol request for running an agent.
type RunAgentInput struct {
	ThreadID       string           `json:"thread_id"`
	RunID          string           `json:"run_id"`
	Messages       []events.Message `json:"messages"`
	Tools          []any            `json:"tools,omitempty"`
	Context        []any            `json:"context,omitempty"`
	State          any              `json:"state,omitempty"`
	ForwardedProps any              `json:"forwarded_props,omitempty"`
}

// PreparedInput is a validated request: the latest user message is the
// question and everything before it is history.
type PreparedInput struct {
	ThreadID string
	RunID    string
	Question string
	History  []ai.Message
}

var (
	// ErrNoMessages is returned when the input contains no messages.
	ErrNoMessages = errors.New("no messages provided")

	// ErrNoQuestion is returned when no user message carries text.
	ErrNoQuestion = errors.New("no user message with content")
)

// Prepare validates the input and splits it into question and history.
// Frontend tools, context and state are ignored.
func (r *RunAgentInput) Prepare() (*PreparedInput, error) {
	messages := ToMessages(r.Messages)
	if len(messages) == 0 {
		return nil, ErrNoMessages
	}

	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != ai.RoleUser || len(m.ToolResults) > 0 {
			continue
		}
		if q := strings.TrimSpace(m.Content); q != "" {
			return &PreparedInput{
				ThreadID: r.ThreadID,
				RunID:    r.RunID,
				Question: q,
				History:  messages[:i],
			}, nil
		}
	}
	return nil, ErrNoQuestion
}
