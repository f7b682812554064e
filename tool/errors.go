package tool

import (
	"errors"
	"fmt"
)

// ErrInvalidTool is returned when a tool cannot be registered as described.
var ErrInvalidTool = errors.New("tool: invalid tool")

// ErrToolNotFound is reported when a call references an unregistered tool.
type ErrToolNotFound struct {
	Name string
}

// Error returns a formatted error message including the tool name.
func (e *ErrToolNotFound) Error() string {
	return fmt.Sprintf("tool not found: %s", e.Name)
}

// ErrToolAlreadyRegistered is returned when registering a tool with a duplicate name.
type ErrToolAlreadyRegistered struct {
	Name string
}

// Error returns a formatted error message including the duplicate tool name.
func (e *ErrToolAlreadyRegistered) Error() string {
	return fmt.Sprintf("tool: already registered: %s", e.Name)
}

// ErrInvalidArguments describes arguments that do not match a tool's schema.
type ErrInvalidArguments struct {
	Name    string
	Reasons []string
}

// Error returns a formatted error message listing every violation.
func (e *ErrInvalidArguments) Error() string {
	msg := fmt.Sprintf("invalid arguments for %s", e.Name)
	for i, r := range e.Reasons {
		if i == 0 {
			msg += ": " + r
		} else {
			msg += "; " + r
		}
	}
	return msg
}
