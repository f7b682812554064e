package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/spetersoncode/stockagent"
	"github.com/spetersoncode/stockagent/event"
	"github.com/spetersoncode/stockagent/tool"
)

// mockProvider implements ai.ChatProvider for testing. Replies are streamed
// rune by rune, followed by a Done event carrying the full response.
type mockProvider struct {
	mu        sync.Mutex
	responses []mockResponse
	respond   func(call int, messages []ai.Message) mockResponse
	seen      [][]ai.Message
	options   []*ai.Options
}

type mockResponse struct {
	content   string
	toolCalls []ai.ToolCall
	err       error
}

func (m *mockProvider) next(messages []ai.Message) mockResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := len(m.seen)
	m.seen = append(m.seen, messages)
	if m.respond != nil {
		return m.respond(call, messages)
	}
	if call >= len(m.responses) {
		return mockResponse{content: "No more responses"}
	}
	return m.responses[call]
}

func (m *mockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

func (m *mockProvider) messagesOf(call int) []ai.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[call]
}

func (m *mockProvider) Chat(ctx context.Context, messages []ai.Message, opts ...ai.Option) (*ai.Response, error) {
	resp := m.next(messages)
	if resp.err != nil {
		return nil, resp.err
	}
	return &ai.Response{
		Content:   resp.content,
		ToolCalls: resp.toolCalls,
		Usage:     ai.Usage{InputTokens: 10, OutputTokens: 20},
	}, nil
}

func (m *mockProvider) ChatStream(ctx context.Context, messages []ai.Message, opts ...ai.Option) (<-chan ai.StreamEvent, error) {
	m.mu.Lock()
	m.options = append(m.options, ai.ApplyOptions(opts...))
	m.mu.Unlock()
	resp := m.next(messages)
	ch := make(chan ai.StreamEvent)

	if resp.err != nil {
		go func() {
			defer close(ch)
			ch <- ai.StreamEvent{Err: resp.err}
		}()
		return ch, nil
	}

	go func() {
		defer close(ch)
		for _, c := range resp.content {
			select {
			case <-ctx.Done():
				ch <- ai.StreamEvent{Err: ctx.Err()}
				return
			case ch <- ai.StreamEvent{Delta: string(c)}:
			}
		}
		ch <- ai.StreamEvent{
			Done: true,
			Response: &ai.Response{
				Content:   resp.content,
				ToolCalls: resp.toolCalls,
				Usage:     ai.Usage{InputTokens: 10, OutputTokens: 20},
			},
		}
	}()
	return ch, nil
}

// blockingProvider never answers until its context ends.
type blockingProvider struct{}

func (blockingProvider) Chat(ctx context.Context, _ []ai.Message, _ ...ai.Option) (*ai.Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingProvider) ChatStream(ctx context.Context, _ []ai.Message, _ ...ai.Option) (<-chan ai.StreamEvent, error) {
	ch := make(chan ai.StreamEvent)
	go func() {
		defer close(ch)
		<-ctx.Done()
		ch <- ai.StreamEvent{Err: ctx.Err()}
	}()
	return ch, nil
}

type priceArgs struct {
	Ticker    string `json:"ticker" required:"true"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type priceSeries struct {
	Ticker string    `json:"ticker"`
	Points []float64 `json:"points"`
}

func newTestRegistry(t *testing.T, points int) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry()
	reg.MustRegister(
		tool.MustFunc("get_historical_data", "Price history", func(ctx context.Context, args priceArgs) (any, error) {
			series := priceSeries{Ticker: args.Ticker}
			for i := 0; i < points; i++ {
				series.Points = append(series.Points, 200+float64(i))
			}
			return series, nil
		}).WithNotice(func(a priceArgs) string {
			return "📊 正在获取 " + a.Ticker + " 的历史数据..."
		}),
	)
	return reg
}

func markupCall(name, params string) string {
	return fmt.Sprintf("<tool_call>\n{\"name\": %q, \"parameters\": %s}\n</tool_call>", name, params)
}

func contentOf(events []Event, typ event.Type) []string {
	var out []string
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev.Content)
		}
	}
	return out
}

func TestAgent_DirectAnswer(t *testing.T) {
	answer := "苹果公司近期表现稳定。"
	provider := &mockProvider{responses: []mockResponse{{content: answer}}}
	a := New(provider, newTestRegistry(t, 5))

	events := event.Collect(a.RunStream(context.Background(), "AAPL 怎么样?"))

	types := event.Types(events)
	require.NotEmpty(t, types)
	assert.Equal(t, event.FinalStart, types[0])
	assert.Equal(t, event.FinalComplete, types[len(types)-1])
	for _, typ := range types[1 : len(types)-1] {
		assert.Equal(t, event.FinalChunk, typ)
	}

	chunks := contentOf(events, event.FinalChunk)
	assert.Len(t, chunks, len([]rune(answer)))
	assert.Equal(t, answer, strings.Join(chunks, ""))
	assert.Equal(t, answer, events[len(events)-1].Content)
	for _, ev := range events {
		assert.Equal(t, 1, ev.Step)
	}
}

func TestAgent_OneToolThenFinal(t *testing.T) {
	provider := &mockProvider{responses: []mockResponse{
		{content: markupCall("get_historical_data", `{"ticker":"AAPL"}`)},
		{content: "分析完成"},
	}}
	a := New(provider, newTestRegistry(t, 3))

	res, err := a.Run(context.Background(), "分析 AAPL")
	require.NoError(t, err)
	assert.Equal(t, "分析完成", res.Answer)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, ai.Usage{InputTokens: 20, OutputTokens: 40}, res.Usage)

	types := event.Types(res.Events)
	require.Equal(t, []event.Type{event.ToolNotice, event.StepComplete, event.Thinking, event.FinalStart}, types[:4])
	assert.Equal(t, event.FinalComplete, types[len(types)-1])

	notice := res.Events[0]
	assert.Equal(t, "📊 正在获取 AAPL 的历史数据...", notice.Content)
	assert.Equal(t, "get_historical_data", notice.ToolName())
	assert.Equal(t, 1, notice.Step)

	done := res.Events[1]
	require.NotNil(t, done.ToolResult)
	assert.False(t, done.ToolResult.IsError)

	require.Equal(t, 2, provider.calls())
	second := provider.messagesOf(1)
	last := second[len(second)-1]
	assert.Equal(t, ai.RoleUser, last.Role)
	assert.True(t, strings.HasPrefix(last.Content, ToolResultPrefix))
	require.Len(t, last.ToolResults, 1)
	assert.Contains(t, last.ToolResults[0].Content, `"status": "success"`)
	assert.Equal(t, ai.RoleAssistant, second[len(second)-2].Role)
}

func TestAgent_UnknownToolContinues(t *testing.T) {
	provider := &mockProvider{responses: []mockResponse{
		{content: markupCall("get_weather", `{"city":"Paris"}`)},
		{content: "换个方式回答"},
	}}
	a := New(provider, newTestRegistry(t, 3))

	res, err := a.Run(context.Background(), "天气?")
	require.NoError(t, err)
	assert.Equal(t, "换个方式回答", res.Answer)

	var done *Event
	for i := range res.Events {
		if res.Events[i].Type == event.StepComplete {
			done = &res.Events[i]
		}
	}
	require.NotNil(t, done)
	assert.True(t, done.ToolResult.IsError)
	assert.Contains(t, done.ToolResult.Content, "tool not found: get_weather")
	assert.Equal(t, "🔧 正在调用工具: get_weather", contentOf(res.Events, event.ToolNotice)[0])
}

func TestAgent_IterationCap(t *testing.T) {
	provider := &mockProvider{respond: func(call int, _ []ai.Message) mockResponse {
		return mockResponse{content: markupCall("get_historical_data", `{"ticker":"TSLA"}`)}
	}}
	a := New(provider, newTestRegistry(t, 1))

	done := make(chan []Event)
	go func() {
		done <- event.Collect(a.RunStream(context.Background(), "loop forever", WithMaxSteps(3)))
	}()

	var events []Event
	select {
	case events = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not terminate")
	}

	assert.Equal(t, 3, provider.calls())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, event.Error, last.Type)
	assert.ErrorIs(t, last.Err, ErrMaxStepsReached)
	assert.Len(t, contentOf(events, event.ToolNotice), 3)
}

func TestAgent_TSLAScenario(t *testing.T) {
	provider := &mockProvider{respond: func(call int, messages []ai.Message) mockResponse {
		if call == 0 {
			return mockResponse{content: "好的，我来获取数据。" + markupCall("get_historical_data",
				`{"ticker":"TSLA","start_date":"2025-09-18","end_date":"2025-10-18"}`)}
		}
		last := messages[len(messages)-1]
		var wrapper struct {
			Result priceSeries `json:"result"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(last.Content, ToolResultPrefix)), &wrapper); err != nil {
			return mockResponse{content: "无法解析: " + err.Error()}
		}
		return mockResponse{content: fmt.Sprintf("TSLA 共 %d 个价格数据点", len(wrapper.Result.Points))}
	}}
	a := New(provider, newTestRegistry(t, 20))

	res, err := a.Run(context.Background(), "获取TSLA最近一个月价格")
	require.NoError(t, err)

	notices := contentOf(res.Events, event.ToolNotice)
	require.Len(t, notices, 1)
	assert.Equal(t, "📊 正在获取 TSLA 的历史数据...", notices[0])
	assert.Len(t, contentOf(res.Events, event.StepComplete), 1)
	assert.Equal(t, "好的，我来获取数据。", strings.Join(contentOf(res.Events, event.StreamChunk), ""))
	assert.Equal(t, "TSLA 共 20 个价格数据点", res.Answer)
}

func TestAgent_NativeToolCalls(t *testing.T) {
	provider := &mockProvider{responses: []mockResponse{
		{toolCalls: []ai.ToolCall{
			{ID: "c1", Name: "get_historical_data", Arguments: `{"ticker":"MSFT"}`},
			{ID: "c2", Name: "get_historical_data", Arguments: `{"ticker":"NVDA"}`},
		}},
		{content: "done"},
	}}
	a := New(provider, newTestRegistry(t, 2))

	res, err := a.Run(context.Background(), "compare", WithNativeTools(true))
	require.NoError(t, err)

	assert.Equal(t, []string{"📊 正在获取 MSFT 的历史数据...", "📊 正在获取 NVDA 的历史数据..."},
		contentOf(res.Events, event.ToolNotice))

	second := provider.messagesOf(1)
	require.GreaterOrEqual(t, len(second), 3)
	assert.Equal(t, ai.RoleTool, second[len(second)-2].Role)
	assert.Equal(t, "c1", second[len(second)-2].ToolResults[0].ToolCallID)
	assert.Equal(t, "c2", second[len(second)-1].ToolResults[0].ToolCallID)
	assert.Len(t, second[len(second)-3].ToolCalls, 2)

	require.NotEmpty(t, provider.options)
	assert.Len(t, provider.options[0].Tools, 1)
	assert.Equal(t, ai.ToolChoiceAuto, provider.options[0].ToolChoice)
}

func TestAgent_MalformedMarkupIsRecoverable(t *testing.T) {
	provider := &mockProvider{responses: []mockResponse{
		{content: "<tool_call>{not json}</tool_call>"},
		{content: "重新回答"},
	}}
	a := New(provider, newTestRegistry(t, 1))

	res, err := a.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "重新回答", res.Answer)

	types := event.Types(res.Events)
	assert.Contains(t, types, event.ToolNotice)
	assert.Contains(t, types, event.StepComplete)

	second := provider.messagesOf(1)
	assert.Contains(t, second[len(second)-1].Content, "malformed tool call")
}

func TestAgent_ProviderError(t *testing.T) {
	provider := &mockProvider{responses: []mockResponse{
		{err: ai.NewTransientError("rate limited", 429, nil)},
	}}
	a := New(provider, newTestRegistry(t, 1))

	res, err := a.Run(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, ai.IsTransient(err))

	require.Len(t, res.Events, 1)
	assert.Equal(t, event.Error, res.Events[0].Type)
	assert.Equal(t, "rate limited", res.Events[0].Content)
}

func TestAgent_EmptyQuestion(t *testing.T) {
	provider := &mockProvider{}
	a := New(provider, nil)

	_, err := a.Run(context.Background(), "   ")
	assert.ErrorIs(t, err, ai.ErrEmptyQuery)
	assert.Zero(t, provider.calls())
}

func TestAgent_Timeout(t *testing.T) {
	a := New(blockingProvider{}, nil)

	res, err := a.Run(context.Background(), "q", WithTimeout(30*time.Millisecond))
	assert.ErrorIs(t, err, ErrAgentTimeout)
	require.NotEmpty(t, res.Events)
	assert.Equal(t, event.Error, res.Events[len(res.Events)-1].Type)
}

func TestAgent_TimeoutDuringTool(t *testing.T) {
	reg := tool.NewRegistry()
	reg.MustRegister(tool.MustFunc("slow_quote", "Never returns before the deadline", func(ctx context.Context, _ struct{}) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	for i := 0; i < 20; i++ {
		provider := &mockProvider{responses: []mockResponse{{content: markupCall("slow_quote", `{}`)}}}
		a := New(provider, reg)

		res, err := a.Run(context.Background(), "q", WithTimeout(30*time.Millisecond), WithToolTimeout(0))
		require.ErrorIs(t, err, ErrAgentTimeout, "run %d", i)
		require.NotEmpty(t, res.Events)
		last := res.Events[len(res.Events)-1]
		assert.Equal(t, event.Error, last.Type, "run %d", i)
		assert.ErrorIs(t, last.Err, ErrAgentTimeout)
	}
}

func TestRunStateAbort(t *testing.T) {
	newState := func(ch chan Event) *runState {
		return &runState{opts: ApplyOptions(), em: event.NewEmitter(ch), step: 2}
	}
	delivery := errors.New("deliver thinking event: context deadline exceeded")

	t.Run("deadline emits terminal error", func(t *testing.T) {
		ch := make(chan Event, 1)
		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()

		err := newState(ch).abort(ctx, delivery)
		assert.ErrorIs(t, err, ErrAgentTimeout)
		require.Len(t, ch, 1)
		ev := <-ch
		assert.Equal(t, event.Error, ev.Type)
		assert.Equal(t, 2, ev.Step)
	})

	t.Run("cancelled caller is not waited on", func(t *testing.T) {
		ch := make(chan Event, 1)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := newState(ch).abort(ctx, delivery)
		assert.Equal(t, delivery, err)
		assert.Empty(t, ch)
	})
}

func TestAgent_Cancellation(t *testing.T) {
	a := New(blockingProvider{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	events := event.Collect(a.RunStream(ctx, "q"))
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, event.Error, last.Type)
	assert.True(t, errors.Is(last.Err, context.Canceled))
}

func TestAgent_LiveThinking(t *testing.T) {
	provider := &mockProvider{responses: []mockResponse{
		{content: "先看价格" + markupCall("get_historical_data", `{"ticker":"AAPL"}`)},
		{content: "ok"},
	}}
	a := New(provider, newTestRegistry(t, 1))

	res, err := a.Run(context.Background(), "q", WithLiveThinking(true))
	require.NoError(t, err)

	chunks := contentOf(res.Events, event.StreamChunk)
	assert.Greater(t, len(chunks), 1)
	assert.Equal(t, "先看价格", strings.Join(chunks, ""))
	assert.Equal(t, event.FinalComplete, res.Events[len(res.Events)-1].Type)
}

func TestAgent_HistoryAndSystemPrompt(t *testing.T) {
	provider := &mockProvider{responses: []mockResponse{{content: "ok"}}}
	a := New(provider, newTestRegistry(t, 1))

	history := []ai.Message{
		{Role: ai.RoleUser, Content: "earlier"},
		{Role: ai.RoleAssistant, Content: "earlier answer"},
	}
	now := func() time.Time { return time.Date(2025, 10, 18, 0, 0, 0, 0, time.UTC) }
	res, err := a.Run(context.Background(), "follow up", WithHistory(history), WithClock(now))
	require.NoError(t, err)

	msgs := provider.messagesOf(0)
	require.Len(t, msgs, 4)
	assert.Equal(t, ai.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "2025-10-18")
	assert.Contains(t, msgs[0].Content, "get_historical_data")
	assert.Equal(t, "earlier", msgs[1].Content)
	assert.Equal(t, "follow up", msgs[3].Content)
	assert.Equal(t, 5, res.Conversation.Len())
}
