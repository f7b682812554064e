// Package event defines the ordered progress feed produced by the agent loop
// and the emitter that delivers it to a consumer.
package event

import (
	"time"

	ai "github.com/spetersoncode/stockagent"
)

// Type identifies the kind of event. The values double as wire names on the
// NDJSON stream.
type Type string

const (
	// Thinking carries status text that is not part of any model reply.
	Thinking Type = "thinking"

	// StreamChunk carries a fragment of a model reply that led to tool calls.
	StreamChunk Type = "stream"

	// StepComplete fires after a tool result has been appended to the conversation.
	StepComplete Type = "step_complete"

	// ToolNotice fires before a tool runs and describes it for the user.
	ToolNotice Type = "tool"

	// FinalStart opens the final answer.
	FinalStart Type = "final_start"

	// FinalChunk carries a fragment of the final answer.
	FinalChunk Type = "final_stream"

	// FinalComplete carries the full final answer. It is terminal.
	FinalComplete Type = "final"

	// Error reports a failure that ended the run. It is terminal.
	Error Type = "error"
)

// Event is one unit of the progress feed.
type Event struct {
	Type Type `json:"type"`

	// Step is the 1-based model round that produced the event.
	Step int `json:"step,omitempty"`

	// Content is the text payload: a delta, a notice, the final answer or an
	// error message depending on Type.
	Content string `json:"content"`

	// ToolCall identifies the invocation for ToolNotice and StepComplete.
	ToolCall *ai.ToolCall `json:"tool_call,omitempty"`

	// ToolResult is the outcome attached to StepComplete.
	ToolResult *ai.ToolResult `json:"tool_result,omitempty"`

	// Usage is the accumulated token usage, set on FinalComplete.
	Usage *ai.Usage `json:"usage,omitempty"`

	// Err is the cause of an Error event.
	Err error `json:"-"`

	Timestamp time.Time `json:"-"`
}

// Terminal reports whether no further events follow e.
func (e Event) Terminal() bool {
	return e.Type == FinalComplete || e.Type == Error
}

// ToolName returns the name of the tool the event refers to, if any.
func (e Event) ToolName() string {
	if e.ToolCall == nil {
		return ""
	}
	return e.ToolCall.Name
}
