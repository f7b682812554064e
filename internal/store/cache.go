package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache is a typed, namespaced view of an Adapter. Concurrent GetOrLoad
// calls for the same key share one load.
type Cache[T any] struct {
	adapter Adapter
	prefix  string
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
}

// NewCache returns a Cache storing values under "prefix:key" for ttl. A nil
// adapter gets a fresh MemoryAdapter.
func NewCache[T any](adapter Adapter, prefix string, ttl time.Duration) *Cache[T] {
	if adapter == nil {
		adapter = NewMemoryAdapter()
	}
	return &Cache[T]{adapter: adapter, prefix: prefix, ttl: ttl, logger: slog.Default()}
}

// WithLogger sets the logger used to report adapter failures.
func (c *Cache[T]) WithLogger(l *slog.Logger) *Cache[T] {
	if l != nil {
		c.logger = l
	}
	return c
}

func (c *Cache[T]) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

// Get returns the cached value for k.
func (c *Cache[T]) Get(ctx context.Context, k string) (T, bool, error) {
	var v T
	raw, ok, err := c.adapter.Get(ctx, c.key(k))
	if err != nil || !ok {
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, &SerializationError{Key: c.key(k), Err: err}
	}
	return v, true, nil
}

// Set stores v under k.
func (c *Cache[T]) Set(ctx context.Context, k string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return &SerializationError{Key: c.key(k), Err: err}
	}
	return c.adapter.Set(ctx, c.key(k), raw, c.ttl)
}

// GetOrLoad returns the cached value for k, calling load on a miss and
// caching its result. Load errors are not cached. Adapter failures are
// logged and fall through to load.
func (c *Cache[T]) GetOrLoad(ctx context.Context, k string, load func(context.Context) (T, error)) (T, error) {
	if v, ok, err := c.Get(ctx, k); err != nil {
		c.logger.Warn("cache read failed", "key", c.key(k), "error", err)
	} else if ok {
		return v, nil
	}

	res, err, _ := c.group.Do(c.key(k), func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		if err := c.Set(ctx, k, v); err != nil {
			c.logger.Warn("cache write failed", "key", c.key(k), "error", err)
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// Delete removes k.
func (c *Cache[T]) Delete(ctx context.Context, k string) error {
	return c.adapter.Delete(ctx, c.key(k))
}
