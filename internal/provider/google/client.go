package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ai "github.com/spetersoncode/stockagent"
	"google.golang.org/genai"
)

// DefaultModel is used when neither the client nor the request names a model.
const DefaultModel = "gemini-2.5-flash"

// Client wraps the Google GenAI SDK to implement ai.ChatProvider.
type Client struct {
	client *genai.Client
	model  string
}

type config struct {
	model string
	http  genai.HTTPOptions
}

// ClientOption configures the Google client.
type ClientOption func(*config)

// WithModel sets the default model for requests.
func WithModel(model string) ClientOption {
	return func(c *config) {
		c.model = model
	}
}

// WithBaseURL overrides the Gemini API endpoint.
func WithBaseURL(url string) ClientOption {
	return func(c *config) {
		c.http.BaseURL = url
	}
}

// New creates a new Gemini API client with the given API key.
func New(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	cfg := config{model: DefaultModel}
	for _, opt := range opts {
		opt(&cfg)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: cfg.http,
	})
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}
	return &Client{client: client, model: cfg.model}, nil
}

// Model returns the default model name.
func (c *Client) Model() string { return c.model }

func (c *Client) request(messages []ai.Message, options *ai.Options) (string, []*genai.Content, *genai.GenerateContentConfig) {
	model := c.model
	if options.Model != "" {
		model = options.Model
	}
	contents, system := convertMessages(messages)

	config := &genai.GenerateContentConfig{SystemInstruction: system}
	if options.MaxTokens > 0 {
		config.MaxOutputTokens = int32(options.MaxTokens)
	}
	if options.Temperature != nil {
		temp := float32(*options.Temperature)
		config.Temperature = &temp
	}
	if len(options.Tools) > 0 {
		config.Tools = convertTools(options.Tools)
		if options.ToolChoice != "" {
			config.ToolConfig = convertToolChoice(options.ToolChoice)
		}
	}
	return model, contents, config
}

// Chat sends a conversation and returns a complete response.
func (c *Client) Chat(ctx context.Context, messages []ai.Message, opts ...ai.Option) (*ai.Response, error) {
	model, contents, config := c.request(messages, ai.ApplyOptions(opts...))

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, wrapError(err)
	}
	if err := blocked(resp); err != nil {
		return nil, err
	}

	var acc accumulator
	acc.add(resp)
	return acc.response(), nil
}

// ChatStream sends a conversation and returns a channel of streaming events.
func (c *Client) ChatStream(ctx context.Context, messages []ai.Message, opts ...ai.Option) (<-chan ai.StreamEvent, error) {
	model, contents, config := c.request(messages, ai.ApplyOptions(opts...))
	ch := make(chan ai.StreamEvent)

	send := func(ev ai.StreamEvent) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(ch)

		var acc accumulator
		chunks := 0
		for resp, err := range c.client.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				send(ai.StreamEvent{Err: wrapError(err)})
				return
			}
			if err := blocked(resp); err != nil {
				send(ai.StreamEvent{Err: err})
				return
			}
			chunks++
			for _, text := range acc.add(resp) {
				if !send(ai.StreamEvent{Delta: text}) {
					return
				}
			}
		}

		if chunks == 0 {
			send(ai.StreamEvent{Err: ai.NewTransientError("google: stream returned no data", 0, nil)})
			return
		}
		send(ai.StreamEvent{Done: true, Response: acc.response()})
	}()

	return ch, nil
}

// accumulator folds streamed responses into one.
type accumulator struct {
	content      strings.Builder
	parts        []*genai.Part
	finishReason string
	usage        ai.Usage
}

// add records resp and returns its text deltas.
func (a *accumulator) add(resp *genai.GenerateContentResponse) []string {
	var deltas []string
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			a.parts = append(a.parts, part)
			// thought summaries are not part of the answer
			if part.Text != "" && !part.Thought {
				a.content.WriteString(part.Text)
				deltas = append(deltas, part.Text)
			}
		}
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		a.finishReason = string(resp.Candidates[0].FinishReason)
	}
	if resp.UsageMetadata != nil {
		a.usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		a.usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return deltas
}

func (a *accumulator) response() *ai.Response {
	return &ai.Response{
		Content:      a.content.String(),
		FinishReason: a.finishReason,
		Usage:        a.usage,
		ToolCalls:    extractToolCalls(a.parts),
	}
}

// BlockedError indicates the request was blocked by content filtering.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("request blocked: %s", e.Reason)
}

func blocked(resp *genai.GenerateContentResponse) error {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return ai.NewUserInputError("google: prompt rejected", 0,
			&BlockedError{Reason: string(resp.PromptFeedback.BlockReason)})
	}
	return nil
}

// IsBlocked reports whether err stems from content filtering.
func IsBlocked(err error) bool {
	var b *BlockedError
	return errors.As(err, &b)
}

var _ ai.ChatProvider = (*Client)(nil)
