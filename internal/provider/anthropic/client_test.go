package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	ai "github.com/spetersoncode/stockagent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("test-key", WithRequestOptions(option.WithBaseURL(srv.URL), option.WithMaxRetries(0)))
}

func TestConvertMessagesMergesRoles(t *testing.T) {
	msgs := []ai.Message{
		ai.NewSystemMessage("sys"),
		ai.NewUserMessage("q"),
		{Role: ai.RoleAssistant, Content: "checking", ToolCalls: []ai.ToolCall{
			{ID: "a", Name: "get_stock_info", Arguments: `{"ticker":"TSLA"}`},
			{ID: "b", Name: "get_news", Arguments: ""},
		}},
		ai.NewToolResultMessage(ai.ToolResult{ToolCallID: "a", Content: "1"}),
		ai.NewToolResultMessage(ai.ToolResult{ToolCallID: "b", Content: "2", IsError: true}),
		ai.NewUserMessage("and?"),
	}
	out, system := convertMessages(msgs)

	require.Len(t, system, 1)
	assert.Equal(t, "sys", system[0].Text)
	require.Len(t, out, 3)
	assert.Equal(t, anthropic.MessageParamRoleUser, out[0].Role)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, out[1].Role)
	assert.Len(t, out[1].Content, 3)
	assert.Equal(t, anthropic.MessageParamRoleUser, out[2].Role)
	require.Len(t, out[2].Content, 3)
	assert.NotNil(t, out[2].Content[0].OfToolResult)
	assert.NotNil(t, out[2].Content[1].OfToolResult)
	assert.NotNil(t, out[2].Content[2].OfText)
}

func TestChat(t *testing.T) {
	var body map[string]any
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"m1","type":"message","role":"assistant","model":"claude","stop_reason":"tool_use",
			"content":[{"type":"text","text":"let me look"},{"type":"tool_use","id":"tu_1","name":"get_stock_info","input":{"ticker":"TSLA"}}],
			"usage":{"input_tokens":10,"output_tokens":4}}`)
	})

	tools := []ai.Tool{{Name: "get_stock_info", Parameters: json.RawMessage(`{"type":"object","properties":{"ticker":{"type":"string"}},"required":["ticker"]}`)}}
	resp, err := c.Chat(context.Background(), []ai.Message{ai.NewUserMessage("hi")}, ai.WithTools(tools), ai.WithToolChoice(ai.ToolChoiceRequired))
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, body["model"])
	assert.Equal(t, map[string]any{"type": "any"}, body["tool_choice"])
	assert.EqualValues(t, defaultMaxTokens, body["max_tokens"])
	assert.Equal(t, "let me look", resp.Content)
	assert.Equal(t, "tool_use", resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "tu_1", resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"ticker":"TSLA"}`, resp.ToolCalls[0].Arguments)
	assert.Equal(t, 14, resp.Usage.Total())
}

func TestChatRateLimited(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	})
	_, err := c.Chat(context.Background(), []ai.Message{ai.NewUserMessage("hi")})
	require.Error(t, err)
	assert.True(t, ai.IsTransient(err))
	assert.Equal(t, 429, ai.StatusCodeOf(err))
	assert.Equal(t, "7s", ai.RetryAfterOf(err).String())
}

func TestChatStream(t *testing.T) {
	events := []struct{ name, data string }{
		{"message_start", `{"type":"message_start","message":{"id":"m1","type":"message","role":"assistant","model":"claude","content":[],"stop_reason":null,"usage":{"input_tokens":5,"output_tokens":0}}}`},
		{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`},
		{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":2}}`},
		{"message_stop", `{"type":"message_stop"}`},
	}
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data)
		}
	})

	ch, err := c.ChatStream(context.Background(), []ai.Message{ai.NewUserMessage("hi")})
	require.NoError(t, err)

	var deltas []string
	var final *ai.Response
	for ev := range ch {
		require.NoError(t, ev.Err)
		if ev.Done {
			final = ev.Response
		} else {
			deltas = append(deltas, ev.Delta)
		}
	}
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	require.NotNil(t, final)
	assert.Equal(t, "Hello", final.Content)
	assert.Equal(t, "end_turn", final.FinishReason)
	assert.Equal(t, ai.Usage{InputTokens: 5, OutputTokens: 2}, final.Usage)
}
