package agent

import (
	"log/slog"
	"time"

	ai "github.com/spetersoncode/stockagent"
)

// Default limits for a run.
const (
	DefaultMaxSteps    = 10
	DefaultTimeout     = 300 * time.Second
	DefaultToolTimeout = 30 * time.Second
)

// Options contains configuration for one agent run.
type Options struct {
	// MaxSteps bounds the number of model rounds. Exceeding it ends the run
	// with ErrMaxStepsReached. Default is 10.
	MaxSteps int

	// Timeout sets a deadline for the whole run. Zero means the context
	// deadline applies.
	Timeout time.Duration

	// ToolTimeout bounds each tool invocation. Default is 30 seconds.
	ToolTimeout time.Duration

	// LiveThinking forwards reply text as stream-chunk events while the model
	// is still generating, instead of holding it until the round completes.
	LiveThinking bool

	// NativeTools advertises tools through the provider's tool calling API
	// instead of the <tool_call> markup described in the system prompt.
	NativeTools bool

	// SystemPrompt overrides the generated system prompt.
	SystemPrompt string

	// History holds earlier turns inserted between the system prompt and the
	// question.
	History []ai.Message

	// ChatOptions are passed through to the provider.
	ChatOptions []ai.Option

	Logger *slog.Logger

	// Now supplies the date shown in the system prompt.
	Now func() time.Time
}

// Option is a functional option for configuring a run.
type Option func(*Options)

// WithMaxSteps sets the maximum number of model rounds.
func WithMaxSteps(n int) Option {
	return func(o *Options) {
		o.MaxSteps = n
	}
}

// WithTimeout sets a deadline for the entire run.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithToolTimeout sets the timeout for each tool invocation.
func WithToolTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.ToolTimeout = d
	}
}

// WithLiveThinking enables forwarding reply text as it streams.
func WithLiveThinking(enabled bool) Option {
	return func(o *Options) {
		o.LiveThinking = enabled
	}
}

// WithNativeTools advertises tools through the provider's tool API.
func WithNativeTools(enabled bool) Option {
	return func(o *Options) {
		o.NativeTools = enabled
	}
}

// WithSystemPrompt replaces the generated system prompt.
func WithSystemPrompt(p string) Option {
	return func(o *Options) {
		o.SystemPrompt = p
	}
}

// WithHistory supplies earlier turns for a follow-up question.
func WithHistory(msgs []ai.Message) Option {
	return func(o *Options) {
		o.History = msgs
	}
}

// WithChatOptions passes options through to the provider.
func WithChatOptions(opts ...ai.Option) Option {
	return func(o *Options) {
		o.ChatOptions = append(o.ChatOptions, opts...)
	}
}

// WithLogger sets the logger for the run.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithClock sets the clock used for the date in the system prompt.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Now = now
	}
}

// ApplyOptions applies option functions over the defaults.
func ApplyOptions(opts ...Option) *Options {
	o := &Options{
		MaxSteps:    DefaultMaxSteps,
		ToolTimeout: DefaultToolTimeout,
		Logger:      slog.Default(),
		Now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = DefaultMaxSteps
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
