package client

import (
	"time"

	ai "github.com/spetersoncode/stockagent"
)

// EventType identifies the kind of event occurring during client operations.
type EventType string

const (
	// EventRequestStart fires before an API request begins.
	EventRequestStart EventType = "request_start"

	// EventRequestComplete fires after an API request completes successfully.
	EventRequestComplete EventType = "request_complete"

	// EventRequestError fires when an API request fails.
	EventRequestError EventType = "request_error"

	// EventRetry fires before a failed attempt is retried.
	EventRetry EventType = "retry"
)

// Event represents an observable occurrence during client operations.
type Event struct {
	Type EventType

	// Operation is "chat" or "chat_stream".
	Operation string

	Provider ai.Provider
	Model    string

	// Duration is the elapsed time for completed requests.
	Duration time.Duration

	// Usage contains token usage of a completed request.
	Usage *ai.Usage

	Error error

	// Attempt is the number of the failed attempt for EventRetry.
	Attempt int

	Timestamp time.Time
}

// emit sends an event with timestamp to the channel without blocking.
func emit(ch chan<- Event, event Event) {
	if ch == nil {
		return
	}
	event.Timestamp = time.Now()
	select {
	case ch <- event:
	default:
		// Channel full - don't block
	}
}
