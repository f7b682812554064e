package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	ai "github.com/spetersoncode/stockagent"
)

const (
	openTag  = "<tool_call>"
	closeTag = "</tool_call>"
)

// parsedCall is one tool request extracted from a model reply.
// Err is set when the block could not be understood.
type parsedCall struct {
	Call ai.ToolCall
	Err  error
}

// markupBody is the JSON document inside a <tool_call> block.
type markupBody struct {
	Name       string          `json:"name"`
	Parameters json.RawMessage `json:"parameters"`
	Arguments  json.RawMessage `json:"arguments"`
}

var errUnterminated = errors.New("unterminated <tool_call> block")

// parseMarkup extracts every <tool_call> block from text, in order.
// Malformed blocks are returned with Err set so the loop can report them back.
func parseMarkup(text string, step int) []parsedCall {
	var calls []parsedCall
	rest := text
	for i := 0; ; i++ {
		start := strings.Index(rest, openTag)
		if start < 0 {
			return calls
		}
		rest = rest[start+len(openTag):]
		id := fmt.Sprintf("call_%d_%d", step, i+1)

		end := strings.Index(rest, closeTag)
		if end < 0 {
			calls = append(calls, parsedCall{Call: ai.ToolCall{ID: id}, Err: errUnterminated})
			return calls
		}
		calls = append(calls, decodeMarkup(id, rest[:end]))
		rest = rest[end+len(closeTag):]
	}
}

func decodeMarkup(id, raw string) parsedCall {
	body := strings.TrimSpace(raw)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)

	pc := parsedCall{Call: ai.ToolCall{ID: id, Arguments: "{}"}}

	var m markupBody
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		pc.Err = fmt.Errorf("tool call is not valid JSON: %w", err)
		return pc
	}
	pc.Call.Name = strings.TrimSpace(m.Name)
	if pc.Call.Name == "" {
		pc.Err = errors.New(`tool call is missing "name"`)
		return pc
	}
	args := m.Parameters
	if len(args) == 0 {
		args = m.Arguments
	}
	if len(args) > 0 && string(args) != "null" {
		pc.Call.Arguments = string(args)
	}
	return pc
}

// gate forwards streamed text until tool-call markup appears. A suffix that
// could still grow into the opening tag is held back until it is resolved.
type gate struct {
	buf       strings.Builder
	forwarded int
	closed    bool
}

// push appends a delta and returns the text that is now safe to forward.
func (g *gate) push(delta string) string {
	if g.closed {
		return ""
	}
	g.buf.WriteString(delta)
	text := g.buf.String()

	if i := strings.Index(text, openTag); i >= 0 {
		g.closed = true
		return g.advance(text, i)
	}
	return g.advance(text, len(text)-partialTagLen(text))
}

// flush releases any held-back suffix once the stream is over.
func (g *gate) flush() string {
	if g.closed {
		return ""
	}
	text := g.buf.String()
	return g.advance(text, len(text))
}

func (g *gate) advance(text string, upto int) string {
	if upto <= g.forwarded {
		return ""
	}
	out := text[g.forwarded:upto]
	g.forwarded = upto
	return out
}

// partialTagLen returns the length of the longest suffix of text that is a
// proper prefix of the opening tag.
func partialTagLen(text string) int {
	limit := min(len(openTag)-1, len(text))
	for n := limit; n > 0; n-- {
		if strings.HasSuffix(text, openTag[:n]) {
			return n
		}
	}
	return 0
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
