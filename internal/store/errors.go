package store

import (
	"errors"
	"fmt"
)

// ErrAdapterClosed is returned by adapter operations after Close.
var ErrAdapterClosed = errors.New("store: adapter closed")

// SerializationError reports a cached value or session history that could
// not be encoded or decoded as JSON.
type SerializationError struct {
	Key string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("store: %s: invalid JSON value: %v", e.Key, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }
