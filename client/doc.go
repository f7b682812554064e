// Package client selects a language model backend from configuration and
// wraps it with retries and observable events.
//
// The Client itself implements stockagent.ChatProvider, so the agent loop
// talks to it exactly as it would to a single backend:
//
//	c, err := client.New(ctx, client.Config{
//	    Provider: ai.ProviderOpenAI,
//	    APIKeys:  client.APIKeys{OpenAI: os.Getenv("OPENAI_API_KEY")},
//	    Model:    "qwen-flash",
//	})
//
// # Retries
//
// Transient errors (rate limits, 5xx, timeouts) are retried with exponential
// backoff, honouring Retry-After. For streams only the opening of the stream
// is retried: a failure reported before the first delta restarts the
// request, later failures are delivered to the caller.
//
// # Events
//
// Config.Events receives request_start, request_complete, request_error and
// retry events. Sends never block; events are dropped when the channel is
// full.
package client
