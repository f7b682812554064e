package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	ai "github.com/spetersoncode/stockagent"
	"github.com/spetersoncode/stockagent/tool"
)

// Remote is a connection to an MCP server whose tools can be registered in
// a local tool.Registry.
type Remote struct {
	client *client.Client
	tools  []ai.Tool
}

// Connect launches command as a stdio MCP server and lists its tools.
func Connect(ctx context.Context, command string, env []string, args ...string) (*Remote, error) {
	c, err := client.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}
	return NewRemote(ctx, c)
}

// NewRemote initializes an MCP session over an existing client and lists
// its tools. The client is closed if initialization fails.
func NewRemote(ctx context.Context, c *client.Client) (*Remote, error) {
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	_, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "stockagent",
				Version: "1.0.0",
			},
		},
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize MCP session: %w", err)
	}

	listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	return &Remote{client: c, tools: FromMCPTools(listed.Tools)}, nil
}

// Close closes the connection to the MCP server.
func (r *Remote) Close() error {
	return r.client.Close()
}

// Tools returns one tool.Tool per remote tool, in the order the server
// listed them.
func (r *Remote) Tools() []tool.Tool {
	out := make([]tool.Tool, len(r.tools))
	for i, desc := range r.tools {
		out[i] = &remoteTool{desc: desc, client: r.client}
	}
	return out
}

type remoteTool struct {
	desc   ai.Tool
	client *client.Client
}

func (t *remoteTool) Descriptor() ai.Tool { return t.desc }

// Execute forwards the call. A result flagged as an error by the server
// becomes an error so the registry reports it as a failure.
func (t *remoteTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	res, err := t.client.CallTool(ctx, ToMCPCallToolRequest(ai.ToolCall{Name: t.desc.Name, Arguments: string(args)}))
	if err != nil {
		return nil, fmt.Errorf("mcp call %s: %w", t.desc.Name, err)
	}
	out := FromMCPCallToolResult("", res)
	if out.IsError {
		return nil, errors.New(out.Content)
	}
	if json.Valid([]byte(out.Content)) {
		return json.RawMessage(out.Content), nil
	}
	return out.Content, nil
}
