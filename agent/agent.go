package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	ai "github.com/spetersoncode/stockagent"
	"github.com/spetersoncode/stockagent/event"
	"github.com/spetersoncode/stockagent/tool"
)

// Status texts emitted by the loop.
const (
	FinalStartText   = "📝 正在生成最终分析..."
	ToolsDoneText    = "✅ 工具执行完成，正在分析结果..."
	stepCompleteText = "✅ 步骤 %d 完成"
)

// terminalGrace bounds how long the loop waits to deliver a terminal event
// after the run context has ended.
const terminalGrace = 2 * time.Second

// Agent answers questions by alternating model calls and tool invocations.
type Agent struct {
	provider ai.ChatProvider
	registry *tool.Registry
}

// New creates an Agent using the given provider and tool registry.
func New(p ai.ChatProvider, registry *tool.Registry) *Agent {
	if registry == nil {
		registry = tool.NewRegistry()
	}
	return &Agent{provider: p, registry: registry}
}

// Registry returns the agent's tool registry.
func (a *Agent) Registry() *tool.Registry {
	return a.registry
}

// Result is the outcome of a blocking run.
type Result struct {
	RunID        string
	Answer       string
	Steps        int
	Usage        ai.Usage
	Conversation ai.Conversation
	Events       []Event
	Err          error
}

// Run answers question and blocks until the run terminates.
// The returned error is the same as Result.Err.
func (a *Agent) Run(ctx context.Context, question string, opts ...Option) (*Result, error) {
	ch := event.NewChannel()
	collected := make(chan []Event, 1)
	go func() { collected <- event.Collect(ch) }()

	res := a.run(ctx, question, ch, ApplyOptions(opts...))
	close(ch)
	res.Events = <-collected
	return res, res.Err
}

// RunStream answers question and returns the ordered event feed.
// The channel is closed after the terminal event. Cancelling ctx stops the
// run; callers that stop reading must cancel ctx.
func (a *Agent) RunStream(ctx context.Context, question string, opts ...Option) <-chan Event {
	ch := event.NewChannel()
	options := ApplyOptions(opts...)
	go func() {
		defer close(ch)
		a.run(ctx, question, ch, options)
	}()
	return ch
}

type runState struct {
	agent  *Agent
	opts   *Options
	em     *event.Emitter
	logger *slog.Logger
	conv   ai.Conversation
	usage  ai.Usage
	step   int
}

func (a *Agent) run(ctx context.Context, question string, ch chan<- Event, options *Options) *Result {
	runID := uuid.NewString()
	r := &runState{
		agent:  a,
		opts:   options,
		em:     event.NewEmitter(ch),
		logger: options.Logger.With("run_id", runID),
	}
	start := time.Now()

	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	answer, err := r.loop(ctx, question)

	attrs := []any{"steps", r.step, "input_tokens", r.usage.InputTokens, "output_tokens", r.usage.OutputTokens, "duration_ms", time.Since(start).Milliseconds()}
	if err != nil {
		r.logger.Warn("agent run failed", append(attrs, "error", err)...)
	} else {
		r.logger.Info("agent run completed", attrs...)
	}

	return &Result{
		RunID:        runID,
		Answer:       answer,
		Steps:        r.step,
		Usage:        r.usage,
		Conversation: r.conv,
		Err:          err,
	}
}

func (r *runState) loop(ctx context.Context, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", r.fail(ctx, ai.ErrEmptyQuery)
	}

	prompt := r.opts.SystemPrompt
	if prompt == "" {
		prompt = SystemPrompt(r.agent.registry.DescribeAll(), r.opts.Now(), r.opts.NativeTools)
	}
	r.conv = ai.NewConversation(ai.NewSystemMessage(prompt)).
		Append(r.opts.History...).
		Append(ai.NewUserMessage(question))

	for {
		if err := ctx.Err(); err != nil {
			return "", r.fail(ctx, r.contextError(err))
		}
		if r.step >= r.opts.MaxSteps {
			return "", r.fail(ctx, fmt.Errorf("%w (%d)", ErrMaxStepsReached, r.opts.MaxSteps))
		}
		r.step++

		reply, err := r.callModel(ctx)
		if err != nil {
			if ctx.Err() != nil {
				err = r.contextError(ctx.Err())
			}
			return "", r.fail(ctx, err)
		}
		r.usage = r.usage.Add(reply.resp.Usage)

		calls := nativeCalls(reply.resp.ToolCalls)
		if len(calls) == 0 {
			calls = parseMarkup(reply.text, r.step)
		}
		if len(calls) == 0 {
			answer, err := r.finish(ctx, reply)
			if err != nil {
				return "", r.abort(ctx, err)
			}
			return answer, nil
		}
		if err := r.dispatch(ctx, reply, calls); err != nil {
			return "", r.abort(ctx, err)
		}
	}
}

// modelReply is one completed model round.
type modelReply struct {
	resp   *ai.Response
	deltas []string
	text   string
	gate   *gate
}

func (r *runState) callModel(ctx context.Context) (*modelReply, error) {
	chatOpts := r.opts.ChatOptions
	if r.opts.NativeTools {
		chatOpts = append([]ai.Option{
			ai.WithTools(r.agent.registry.DescribeAll()),
			ai.WithToolChoice(ai.ToolChoiceAuto),
		}, chatOpts...)
	}

	r.logger.Debug("calling model", "step", r.step, "turns", r.conv.Len())
	stream, err := r.agent.provider.ChatStream(ctx, r.conv.Turns(), chatOpts...)
	if err != nil {
		return nil, err
	}

	reply := &modelReply{gate: &gate{}}
	var text strings.Builder
	for ev := range stream {
		if ev.Err != nil {
			go drain(stream)
			return nil, ev.Err
		}
		if ev.Delta != "" {
			reply.deltas = append(reply.deltas, ev.Delta)
			text.WriteString(ev.Delta)
			if r.opts.LiveThinking {
				if out := reply.gate.push(ev.Delta); out != "" {
					if err := r.emit(ctx, event.Event{Type: event.StreamChunk, Content: out}); err != nil {
						go drain(stream)
						return nil, err
					}
				}
			}
		}
		if ev.Done {
			reply.resp = ev.Response
		}
	}
	if reply.resp == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrIncompleteStream
	}

	reply.text = text.String()
	if reply.text == "" {
		reply.text = reply.resp.Content
	}
	return reply, nil
}

// finish emits the final answer sequence.
func (r *runState) finish(ctx context.Context, reply *modelReply) (string, error) {
	r.conv = r.conv.Append(ai.Message{
		ID:      ai.GenerateMessageID(),
		Role:    ai.RoleAssistant,
		Content: reply.text,
	})

	if err := r.emit(ctx, event.Event{Type: event.FinalStart, Content: FinalStartText}); err != nil {
		return "", err
	}

	var chunks []string
	switch {
	case r.opts.LiveThinking:
		if tail := reply.gate.flush(); tail != "" {
			chunks = []string{tail}
		}
	case len(reply.deltas) > 0:
		chunks = reply.deltas
	case reply.text != "":
		chunks = []string{reply.text}
	}
	for _, c := range chunks {
		if err := r.emit(ctx, event.Event{Type: event.FinalChunk, Content: c}); err != nil {
			return "", err
		}
	}

	usage := r.usage
	if err := r.emit(ctx, event.Event{Type: event.FinalComplete, Content: reply.text, Usage: &usage}); err != nil {
		return "", err
	}
	return reply.text, nil
}

// dispatch replays the reply's prose, then runs each requested tool in order.
func (r *runState) dispatch(ctx context.Context, reply *modelReply, calls []parsedCall) error {
	if !r.opts.LiveThinking {
		deltas := reply.deltas
		if len(deltas) == 0 && reply.text != "" {
			deltas = []string{reply.text}
		}
		g := &gate{}
		for _, d := range deltas {
			if out := g.push(d); out != "" {
				if err := r.emit(ctx, event.Event{Type: event.StreamChunk, Content: out}); err != nil {
					return err
				}
			}
		}
		if out := g.flush(); out != "" {
			if err := r.emit(ctx, event.Event{Type: event.StreamChunk, Content: out}); err != nil {
				return err
			}
		}
	}

	native := len(reply.resp.ToolCalls) > 0
	assistant := ai.Message{ID: ai.GenerateMessageID(), Role: ai.RoleAssistant, Content: reply.text}
	if native {
		for _, pc := range calls {
			assistant.ToolCalls = append(assistant.ToolCalls, pc.Call)
		}
	}
	r.conv = r.conv.Append(assistant)

	for _, pc := range calls {
		call := pc.Call
		args := json.RawMessage(call.Arguments)

		notice := r.agent.registry.Notice(call.Name, args)
		if err := r.emit(ctx, event.Event{Type: event.ToolNotice, Content: notice, ToolCall: &call}); err != nil {
			return err
		}

		var res tool.Result
		if pc.Err != nil {
			name := call.Name
			if name == "" {
				name = "unknown"
			}
			res = tool.Failure(name, nil, "malformed tool call: %v. Expected <tool_call>{\"name\": \"...\", \"parameters\": {...}}</tool_call>", pc.Err)
		} else {
			res = r.invoke(ctx, call.Name, args)
		}
		tr := res.ToolResult(call.ID)

		if native {
			r.conv = r.conv.Append(ai.NewToolResultMessage(tr))
		} else {
			r.conv = r.conv.Append(ai.Message{
				ID:          ai.GenerateMessageID(),
				Role:        ai.RoleUser,
				Content:     ToolResultPrefix + tr.Content,
				ToolResults: []ai.ToolResult{tr},
			})
		}

		if err := r.emit(ctx, event.Event{
			Type:       event.StepComplete,
			Content:    fmt.Sprintf(stepCompleteText, r.step),
			ToolCall:   &call,
			ToolResult: &tr,
		}); err != nil {
			return err
		}
	}

	return r.emit(ctx, event.Event{Type: event.Thinking, Content: ToolsDoneText})
}

func (r *runState) invoke(ctx context.Context, name string, args json.RawMessage) tool.Result {
	if r.opts.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.ToolTimeout)
		defer cancel()
	}
	res := r.agent.registry.Invoke(ctx, name, args)
	r.logger.Info("tool invoked", "step", r.step, "tool", name, "ok", res.OK())
	return res
}

// emit sends a non-terminal event. A failed send means the consumer is gone.
func (r *runState) emit(ctx context.Context, ev Event) error {
	ev.Step = r.step
	if err := r.em.Emit(ctx, ev); err != nil {
		return fmt.Errorf("deliver %s event: %w", ev.Type, err)
	}
	return nil
}

// fail emits the terminal error event and returns err. The event is
// delivered even when ctx has already ended, within a short grace period.
func (r *runState) fail(ctx context.Context, err error) error {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalGrace)
	defer cancel()
	_ = r.em.Emit(sendCtx, Event{Type: event.Error, Step: r.step, Content: err.Error(), Err: err})
	return err
}

// abort handles a failed event delivery. An expired run deadline still ends
// with a terminal error event; a cancelled caller is not waited on.
func (r *runState) abort(ctx context.Context, err error) error {
	if cerr := ctx.Err(); errors.Is(cerr, context.DeadlineExceeded) {
		return r.fail(ctx, r.contextError(cerr))
	}
	return err
}

func (r *runState) contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrAgentTimeout, err)
	}
	return err
}

func nativeCalls(calls []ai.ToolCall) []parsedCall {
	out := make([]parsedCall, 0, len(calls))
	for i, c := range calls {
		if c.Arguments == "" {
			c.Arguments = "{}"
		}
		if c.ID == "" {
			c.ID = fmt.Sprintf("call_%d", i+1)
		}
		out = append(out, parsedCall{Call: c})
	}
	return out
}

func drain(ch <-chan ai.StreamEvent) {
	for range ch {
	}
}
