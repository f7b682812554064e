package agent

import (
	"errors"
)

// Sentinel errors for agent termination conditions.
var (
	// ErrMaxStepsReached indicates the model kept requesting tools past the step limit.
	ErrMaxStepsReached = errors.New("agent: maximum steps reached")

	// ErrAgentTimeout indicates the overall timeout was exceeded.
	ErrAgentTimeout = errors.New("agent: timeout exceeded")

	// ErrIncompleteStream indicates the model stream closed without a final response.
	ErrIncompleteStream = errors.New("agent: model stream ended without a response")
)
