package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/spetersoncode/stockagent"
	"github.com/spetersoncode/stockagent/agent"
	"github.com/spetersoncode/stockagent/chart"
	"github.com/spetersoncode/stockagent/event"
	"github.com/spetersoncode/stockagent/internal/store"
	"github.com/spetersoncode/stockagent/market/markettest"
	"github.com/spetersoncode/stockagent/tool"
)

// scriptedProvider streams each scripted reply in two halves and records
// the conversations it was sent.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []string
	seen    [][]ai.Message
}

func (p *scriptedProvider) next(msgs []ai.Message) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.seen)
	p.seen = append(p.seen, msgs)
	if n < len(p.replies) {
		return p.replies[n]
	}
	return "done"
}

func (p *scriptedProvider) lastQuestion(call int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs := p.seen[call]
	return msgs[len(msgs)-1].Content
}

func (p *scriptedProvider) Chat(ctx context.Context, msgs []ai.Message, _ ...ai.Option) (*ai.Response, error) {
	return &ai.Response{Content: p.next(msgs)}, nil
}

func (p *scriptedProvider) ChatStream(ctx context.Context, msgs []ai.Message, _ ...ai.Option) (<-chan ai.StreamEvent, error) {
	reply := p.next(msgs)
	ch := make(chan ai.StreamEvent, 3)
	half := len(reply) / 2
	for half > 0 && !utf8Boundary(reply, half) {
		half--
	}
	if half > 0 {
		ch <- ai.StreamEvent{Delta: reply[:half]}
	}
	ch <- ai.StreamEvent{Delta: reply[half:]}
	ch <- ai.StreamEvent{Done: true, Response: &ai.Response{Content: reply, Usage: ai.Usage{InputTokens: 3, OutputTokens: 4}}}
	close(ch)
	return ch, nil
}

func utf8Boundary(s string, i int) bool {
	return i >= len(s) || s[i]&0xC0 != 0x80
}

type quoteArgs struct {
	Ticker string `json:"ticker" required:"true"`
}

func newTestServer(t *testing.T, replies ...string) (*Server, *scriptedProvider) {
	t.Helper()
	provider := &scriptedProvider{replies: replies}

	registry := tool.NewRegistry()
	registry.MustRegister(tool.MustFunc("get_quote", "Latest price", func(ctx context.Context, a quoteArgs) (any, error) {
		return map[string]any{"ticker": a.Ticker, "price": 250.5}, nil
	}))

	now := time.Date(2025, 10, 17, 12, 0, 0, 0, time.UTC)
	fake := markettest.New()
	fake.PriceData["TSLA"] = markettest.Bars(120, now, 300)

	cfg := DefaultConfig()
	cfg.Timeout = 5 * time.Second
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv := NewServer(
		agent.New(provider, registry),
		chart.NewBuilder(fake).WithClock(func() time.Time { return now }),
		store.NewSessions(store.NewMemoryAdapter(), time.Hour, 0),
		cfg,
		logger,
	)
	return srv, provider
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeLines(t *testing.T, body string) []event.Event {
	t.Helper()
	var out []event.Event
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		var ev event.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev), sc.Text())
		out = append(out, ev)
	}
	return out
}

func TestStreamEmptyQuery(t *testing.T) {
	srv, provider := newTestServer(t)

	for _, body := range []string{`{"query":""}`, `{"query":"   "}`, ``} {
		rec := post(t, srv.Routes(), "/api/stream", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"查询不能为空"}`, rec.Body.String())
	}
	assert.Empty(t, provider.seen)
}

func TestStreamDirectAnswer(t *testing.T) {
	srv, _ := newTestServer(t, "特斯拉近期走势平稳。")

	rec := post(t, srv.Routes(), "/api/stream", `{"query":"TSLA怎么样"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	events := decodeLines(t, rec.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, event.Thinking, events[0].Type)
	assert.Equal(t, analyzingText, events[0].Content)

	assert.Equal(t, []event.Type{event.Thinking, event.FinalStart, event.FinalChunk, event.FinalChunk, event.FinalComplete}, event.Types(events))
	last := events[len(events)-1]
	assert.Equal(t, "特斯拉近期走势平稳。", last.Content)
	assert.Equal(t, events[2].Content+events[3].Content, last.Content)
}

func TestStreamToolRound(t *testing.T) {
	call := "<tool_call>\n{\"name\": \"get_quote\", \"parameters\": {\"ticker\": \"TSLA\"}}\n</tool_call>"
	srv, provider := newTestServer(t, call, "TSLA 报价 250.5")

	rec := post(t, srv.Routes(), "/api/stream", `{"query":"TSLA现价"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	types := event.Types(decodeLines(t, rec.Body.String()))
	assert.Contains(t, types, event.ToolNotice)
	assert.Contains(t, types, event.StepComplete)
	assert.Equal(t, event.FinalComplete, types[len(types)-1])

	// The second model call sees the tool result.
	require.Len(t, provider.seen, 2)
	assert.Contains(t, provider.lastQuestion(1), "250.5")
}

func TestStreamSessionHistory(t *testing.T) {
	srv, provider := newTestServer(t, "第一次回答", "第二次回答")
	h := srv.Routes()

	rec := post(t, h, "/api/stream", `{"query":"第一个问题","session_id":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = post(t, h, "/api/stream", `{"query":"第二个问题","session_id":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, provider.seen, 2)
	var contents []string
	for _, m := range provider.seen[1] {
		if m.Role != ai.RoleSystem {
			contents = append(contents, m.Content)
		}
	}
	assert.Equal(t, []string{"第一个问题", "第一次回答", "第二个问题"}, contents)
}

func TestAnalyzeSessionSkipsToolRounds(t *testing.T) {
	call := "<tool_call>\n{\"name\": \"get_quote\", \"parameters\": {\"ticker\": \"TSLA\"}}\n</tool_call>"
	srv, provider := newTestServer(t, call, "TSLA 报价 250.5", "继续")
	h := srv.Routes()

	rec := post(t, h, "/api/analyze", `{"query":"TSLA现价","session_id":"s2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = post(t, h, "/api/analyze", `{"query":"然后呢","session_id":"s2"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, provider.seen, 3)
	var contents []string
	for _, m := range provider.seen[2] {
		if m.Role == ai.RoleSystem {
			continue
		}
		assert.Empty(t, m.ToolResults)
		assert.Empty(t, m.ToolCalls)
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"TSLA现价", "TSLA 报价 250.5", "然后呢"}, contents)
}

func TestAnalyze(t *testing.T) {
	t.Run("default query", func(t *testing.T) {
		srv, provider := newTestServer(t, "苹果公司分析")

		rec := post(t, srv.Routes(), "/api/analyze", `{}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var body analyzeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "success", body.Status)
		assert.Equal(t, "苹果公司分析", body.Answer)
		assert.Equal(t, 1, body.Steps)
		assert.Equal(t, 7, body.Usage.Total())
		assert.Equal(t, defaultQuery, provider.lastQuestion(0))
		assert.Nil(t, body.Cost)
	})

	t.Run("cost for known model", func(t *testing.T) {
		srv, _ := newTestServer(t, "ok")
		srv.WithModel("qwen-flash")

		rec := post(t, srv.Routes(), "/api/analyze", `{"query":"AAPL"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		var body analyzeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.NotNil(t, body.Cost)
		assert.InDelta(t, 3/1e6*0.05+4/1e6*0.40, *body.Cost, 1e-12)
	})

	t.Run("step cap is an error", func(t *testing.T) {
		call := "<tool_call>{\"name\": \"get_quote\", \"parameters\": {\"ticker\": \"TSLA\"}}</tool_call>"
		replies := make([]string, 20)
		for i := range replies {
			replies[i] = call
		}
		srv, provider := newTestServer(t, replies...)
		srv.config.MaxSteps = 2

		rec := post(t, srv.Routes(), "/api/analyze", `{"query":"loop"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var body analyzeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "error", body.Status)
		assert.Contains(t, body.Error, "maximum steps")
		assert.Len(t, provider.seen, 2)
	})
}

func TestVisualization(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Routes()

	rec := post(t, h, "/api/visualization", `{"query":"TSLA 走势","start_date":"2025-10-01","end_date":"2025-10-17"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var payload chart.Payload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "success", payload.Status)
	assert.Equal(t, "TSLA", payload.Ticker)
	assert.NotEmpty(t, payload.Data.Labels)

	rec = post(t, h, "/api/visualization", `{"ticker":"TSLA","chart_type":"pie"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(t, h, "/api/visualization", `{"ticker":"NOPE"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAGUI(t *testing.T) {
	srv, _ := newTestServer(t, "你好")

	body := `{"thread_id":"t1","run_id":"r1","messages":[{"id":"m1","role":"user","content":"TSLA?"}]}`
	rec := post(t, srv.Routes(), "/api/agui", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	out := rec.Body.String()
	assert.True(t, strings.HasPrefix(out, "event: RUN_STARTED\n"), out)
	assert.Contains(t, out, "event: TEXT_MESSAGE_CONTENT")
	assert.Contains(t, out, "event: RUN_FINISHED")
	assert.NotContains(t, out, "RUN_ERROR")

	rec = post(t, srv.Routes(), "/api/agui", `{"thread_id":"t1","messages":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToolsAndHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tools", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Tools []ai.Tool `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Tools, 1)
	assert.Equal(t, "get_quote", body.Tools[0].Name)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/stream", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stockagent.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
port = "8080"
provider = "anthropic"
anthropic_api_key = "from-file"
max_steps = 4
market_cache_ttl = "10m"
mcp_servers = ["./extra-tools", "   ", ""]
`), 0o600))

	t.Setenv("STOCKAGENT_CONFIG", path)
	t.Setenv("PORT", "9090")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("MCP_SERVERS", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "from-file", cfg.AnthropicKey)
	assert.Equal(t, 4, cfg.MaxSteps)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 300*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"./extra-tools"}, cfg.MCPServers)
}

func TestLoadConfigMCPServersFromEnv(t *testing.T) {
	t.Setenv("STOCKAGENT_CONFIG", "")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "k")
	t.Setenv("MCP_SERVERS", " ./a --flag , ,./b")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"./a --flag", "./b"}, cfg.MCPServers)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"openai needs key", func(c *Config) {}, "OPENAI_API_KEY"},
		{"unknown provider", func(c *Config) { c.Provider = "llama" }, "unknown provider"},
		{"bad level", func(c *Config) { c.OpenAIKey = "k"; c.LogLevel = "loud" }, "LOG_LEVEL"},
		{"bad steps", func(c *Config) { c.OpenAIKey = "k"; c.MaxSteps = 0 }, "AGENT_MAX_STEPS"},
		{"ok", func(c *Config) { c.OpenAIKey = "k" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(ai.ErrEmptyQuery))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(ai.NewTransientError("busy", 503, nil)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}
