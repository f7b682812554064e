package mcp

import (
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	ai "github.com/spetersoncode/stockagent"
)

// ToMCPTool advertises a registry descriptor. The parameter schema is sent
// as-is.
func ToMCPTool(t ai.Tool) mcp.Tool {
	return mcp.NewToolWithRawSchema(t.Name, t.Description, t.Parameters)
}

// FromMCPTool builds a descriptor for a tool listed by a remote server.
func FromMCPTool(t mcp.Tool) ai.Tool {
	desc := ai.Tool{Name: t.Name, Description: t.Description, Parameters: t.RawInputSchema}
	if len(desc.Parameters) == 0 {
		if raw, err := json.Marshal(t.InputSchema); err == nil {
			desc.Parameters = raw
		}
	}
	return desc
}

// FromMCPTools maps FromMCPTool over a tools/list response.
func FromMCPTools(tools []mcp.Tool) []ai.Tool {
	out := make([]ai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, FromMCPTool(t))
	}
	return out
}

// ToMCPCallToolRequest builds a tools/call request. Arguments that do not
// parse as JSON travel as a string.
func ToMCPCallToolRequest(call ai.ToolCall) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = call.Name
	if call.Arguments == "" {
		return req
	}
	var args any
	if json.Unmarshal([]byte(call.Arguments), &args) != nil {
		args = call.Arguments
	}
	req.Params.Arguments = args
	return req
}

// FromMCPCallToolResult joins the text of every content item, then any
// structured content, one per line. A nil result counts as a failure.
func FromMCPCallToolResult(callID string, res *mcp.CallToolResult) ai.ToolResult {
	out := ai.ToolResult{ToolCallID: callID, IsError: true}
	if res == nil {
		return out
	}

	var lines []string
	for _, item := range res.Content {
		switch c := item.(type) {
		case mcp.TextContent:
			lines = append(lines, c.Text)
		case *mcp.TextContent:
			lines = append(lines, c.Text)
		default:
			if raw, err := json.Marshal(c); err == nil {
				lines = append(lines, string(raw))
			}
		}
	}
	if res.StructuredContent != nil {
		if raw, err := json.Marshal(res.StructuredContent); err == nil {
			lines = append(lines, string(raw))
		}
	}

	out.Content = strings.Join(lines, "\n")
	out.IsError = res.IsError
	return out
}

// ToMCPCallToolResult reports a registry result back to an MCP client.
func ToMCPCallToolResult(r ai.ToolResult) *mcp.CallToolResult {
	if r.IsError {
		return mcp.NewToolResultError(r.Content)
	}
	return mcp.NewToolResultText(r.Content)
}
