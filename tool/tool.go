package tool

import (
	"context"
	"encoding/json"
	"fmt"

	ai "github.com/spetersoncode/stockagent"
)

// Tool is a named capability the model can invoke.
//
// Execute receives arguments that already passed schema validation. It must
// not mutate shared state: each call is independent and safe to repeat.
type Tool interface {
	Descriptor() ai.Tool
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// Noticer is implemented by tools that describe an invocation to the user
// before it runs (e.g. "fetching TSLA price history").
type Noticer interface {
	Notice(args json.RawMessage) string
}

// Result is the outcome of a tool invocation.
// Exactly one of Data or Err is meaningful: Err is empty on success.
type Result struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"parameters,omitempty"`
	Data      any             `json:"result,omitempty"`
	Err       string          `json:"error,omitempty"`
}

// OK reports whether the invocation succeeded.
func (r Result) OK() bool {
	return r.Err == ""
}

// Success builds a successful result.
func Success(name string, args json.RawMessage, data any) Result {
	return Result{Tool: name, Arguments: args, Data: data}
}

// Failure builds a failed result carrying a human-readable reason.
func Failure(name string, args json.RawMessage, format string, a ...any) Result {
	return Result{Tool: name, Arguments: args, Err: fmt.Sprintf(format, a...)}
}

// Content renders the result as the JSON document handed back to the model.
func (r Result) Content() string {
	doc := struct {
		Status    string          `json:"status"`
		Tool      string          `json:"tool"`
		Arguments json.RawMessage `json:"parameters,omitempty"`
		Data      any             `json:"result,omitempty"`
		Err       string          `json:"error,omitempty"`
	}{
		Status:    "success",
		Tool:      r.Tool,
		Arguments: r.Arguments,
		Data:      r.Data,
		Err:       r.Err,
	}
	if !r.OK() {
		doc.Status = "error"
		doc.Data = nil
	}
	if len(doc.Arguments) > 0 && !json.Valid(doc.Arguments) {
		doc.Arguments = nil
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"status":"error","tool":%q,"error":%q}`, r.Tool, "unserializable result: "+err.Error())
	}
	return string(data)
}

// ToolResult converts the result into a conversation tool result.
func (r Result) ToolResult(callID string) ai.ToolResult {
	return ai.ToolResult{
		ToolCallID: callID,
		Name:       r.Tool,
		Content:    r.Content(),
		IsError:    !r.OK(),
	}
}
