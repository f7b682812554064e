package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	ai "github.com/spetersoncode/stockagent"
	"github.com/spetersoncode/stockagent/internal/provider/anthropic"
	"github.com/spetersoncode/stockagent/internal/provider/google"
	"github.com/spetersoncode/stockagent/internal/provider/openai"
	"github.com/spetersoncode/stockagent/internal/retry"
)

// APIKeys holds API keys for different providers.
// Only the key of the selected provider is required.
type APIKeys struct {
	Anthropic string
	OpenAI    string
	Google    string
}

// Config holds configuration for creating a client.
type Config struct {
	// Provider selects the backend. Empty means OpenAI.
	Provider ai.Provider

	// APIKeys contains authentication keys for each provider.
	APIKeys APIKeys

	// Model overrides the provider's default model.
	Model string

	// BaseURL points the backend at a compatible endpoint. For OpenAI it
	// defaults to DashScope.
	BaseURL string

	// RetryConfig configures retry behavior for transient errors.
	// If nil, retry.DefaultConfig is used.
	RetryConfig *retry.Config

	// Events is an optional channel for receiving client operation events.
	// Events are sent non-blocking; if the channel is full, events are dropped.
	Events chan<- Event

	Logger *slog.Logger
}

// ErrMissingAPIKey is returned when the selected provider has no API key.
type ErrMissingAPIKey struct {
	Provider ai.Provider
}

func (e *ErrMissingAPIKey) Error() string {
	return fmt.Sprintf("no API key configured for %s", e.Provider)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithDefaultTemperature sets the default temperature for chat requests.
// Per-request options override this default.
func WithDefaultTemperature(t float64) ClientOption {
	return func(c *Client) {
		c.defaultChatOpts = append(c.defaultChatOpts, ai.WithTemperature(t))
	}
}

// WithDefaultMaxTokens sets the default max tokens for chat requests.
func WithDefaultMaxTokens(n int) ClientOption {
	return func(c *Client) {
		c.defaultChatOpts = append(c.defaultChatOpts, ai.WithMaxTokens(n))
	}
}

// WithChatProvider replaces the backend built from Config. Tests use it to
// put a scripted model behind the retry and event layer.
func WithChatProvider(p ai.ChatProvider) ClientOption {
	return func(c *Client) {
		c.provider = p
	}
}

// Client is an ai.ChatProvider that adds default options, retries on
// transient errors and operation events on top of one backend.
type Client struct {
	name            ai.Provider
	model           string
	provider        ai.ChatProvider
	retryConfig     retry.Config
	events          chan<- Event
	logger          *slog.Logger
	defaultChatOpts []ai.Option
}

// New creates a client for the configured provider.
func New(ctx context.Context, cfg Config, opts ...ClientOption) (*Client, error) {
	retryConfig := retry.DefaultConfig()
	if cfg.RetryConfig != nil {
		retryConfig = *cfg.RetryConfig
	}
	name := cfg.Provider
	if name == "" {
		name = ai.ProviderOpenAI
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		name:        name,
		model:       cfg.Model,
		retryConfig: retryConfig,
		events:      cfg.Events,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.provider != nil {
		return c, nil
	}

	p, model, err := newProvider(ctx, name, cfg)
	if err != nil {
		return nil, err
	}
	c.provider = p
	if c.model == "" {
		c.model = model
	}
	return c, nil
}

func newProvider(ctx context.Context, name ai.Provider, cfg Config) (ai.ChatProvider, string, error) {
	switch name {
	case ai.ProviderOpenAI:
		if cfg.APIKeys.OpenAI == "" {
			return nil, "", &ErrMissingAPIKey{Provider: name}
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = openai.DashScopeBaseURL
		}
		opts := []openai.ClientOption{openai.WithBaseURL(baseURL)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		p := openai.New(cfg.APIKeys.OpenAI, opts...)
		return p, p.Model(), nil
	case ai.ProviderAnthropic:
		if cfg.APIKeys.Anthropic == "" {
			return nil, "", &ErrMissingAPIKey{Provider: name}
		}
		var opts []anthropic.ClientOption
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Model))
		}
		p := anthropic.New(cfg.APIKeys.Anthropic, opts...)
		return p, p.Model(), nil
	case ai.ProviderGoogle:
		if cfg.APIKeys.Google == "" {
			return nil, "", &ErrMissingAPIKey{Provider: name}
		}
		var opts []google.ClientOption
		if cfg.Model != "" {
			opts = append(opts, google.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, google.WithBaseURL(cfg.BaseURL))
		}
		p, err := google.New(ctx, cfg.APIKeys.Google, opts...)
		if err != nil {
			return nil, "", err
		}
		return p, p.Model(), nil
	default:
		return nil, "", fmt.Errorf("unsupported provider: %s", name)
	}
}

// Provider returns the selected backend.
func (c *Client) Provider() ai.Provider { return c.name }

// Model returns the default model name.
func (c *Client) Model() string { return c.model }

func (c *Client) retryFor(op string) retry.Config {
	cfg := c.retryConfig
	next := cfg.OnRetry
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.logger.Warn("retrying model request",
			"operation", op,
			"provider", c.name,
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
		emit(c.events, Event{
			Type:      EventRetry,
			Operation: op,
			Provider:  c.name,
			Model:     c.model,
			Attempt:   attempt,
			Error:     err,
		})
		if next != nil {
			next(attempt, delay, err)
		}
	}
	return cfg
}

// Chat sends a conversation and returns a complete response, retrying
// transient failures.
func (c *Client) Chat(ctx context.Context, messages []ai.Message, opts ...ai.Option) (*ai.Response, error) {
	opts = append(c.defaultChatOpts[:len(c.defaultChatOpts):len(c.defaultChatOpts)], opts...)

	start := time.Now()
	emit(c.events, Event{Type: EventRequestStart, Operation: "chat", Provider: c.name, Model: c.model})

	resp, err := retry.Do(ctx, c.retryFor("chat"), func() (*ai.Response, error) {
		return c.provider.Chat(ctx, messages, opts...)
	})
	if err != nil {
		emit(c.events, Event{Type: EventRequestError, Operation: "chat", Provider: c.name, Model: c.model, Duration: time.Since(start), Error: err})
		return nil, err
	}

	emit(c.events, Event{Type: EventRequestComplete, Operation: "chat", Provider: c.name, Model: c.model, Duration: time.Since(start), Usage: &resp.Usage})
	return resp, nil
}

// ChatStream opens a stream, retrying transient failures that occur before
// the first delta. Once content has been delivered errors are passed through.
func (c *Client) ChatStream(ctx context.Context, messages []ai.Message, opts ...ai.Option) (<-chan ai.StreamEvent, error) {
	opts = append(c.defaultChatOpts[:len(c.defaultChatOpts):len(c.defaultChatOpts)], opts...)

	start := time.Now()
	emit(c.events, Event{Type: EventRequestStart, Operation: "chat_stream", Provider: c.name, Model: c.model})

	opened, err := retry.Do(ctx, c.retryFor("chat_stream"), func() (*openedStream, error) {
		ch, err := c.provider.ChatStream(ctx, messages, opts...)
		if err != nil {
			return nil, err
		}
		return peek(ctx, ch)
	})
	if err != nil {
		emit(c.events, Event{Type: EventRequestError, Operation: "chat_stream", Provider: c.name, Model: c.model, Duration: time.Since(start), Error: err})
		return nil, err
	}

	out := make(chan ai.StreamEvent)
	go func() {
		defer close(out)
		forward := func(ev ai.StreamEvent) bool {
			if ev.Done && ev.Response != nil {
				emit(c.events, Event{Type: EventRequestComplete, Operation: "chat_stream", Provider: c.name, Model: c.model, Duration: time.Since(start), Usage: &ev.Response.Usage})
			}
			if ev.Err != nil {
				emit(c.events, Event{Type: EventRequestError, Operation: "chat_stream", Provider: c.name, Model: c.model, Duration: time.Since(start), Error: ev.Err})
			}
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if opened.ok && !forward(opened.first) {
			return
		}
		for ev := range opened.rest {
			if !forward(ev) {
				return
			}
		}
	}()
	return out, nil
}

type openedStream struct {
	first ai.StreamEvent
	ok    bool
	rest  <-chan ai.StreamEvent
}

// peek reads the first event of ch. An error in that position is returned
// so the caller can retry the whole request.
func peek(ctx context.Context, ch <-chan ai.StreamEvent) (*openedStream, error) {
	select {
	case ev, ok := <-ch:
		if ok && ev.Err != nil {
			return nil, ev.Err
		}
		return &openedStream{first: ev, ok: ok, rest: ch}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var _ ai.ChatProvider = (*Client)(nil)
