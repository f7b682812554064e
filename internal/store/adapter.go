package store

import (
	"context"
	"encoding/json"
	"time"
)

// Adapter is a persistence backend. Implementations must be safe for
// concurrent use.
type Adapter interface {
	// Get returns the value for key. Expired entries are reported as missing.
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)

	// Set stores value under key. A zero ttl never expires.
	Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error

	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// Len counts live entries.
	Len(ctx context.Context) (int, error)

	// Purge drops expired entries and returns how many were removed.
	Purge(ctx context.Context) (int, error)

	Close() error
}
