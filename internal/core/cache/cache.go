// Package cache defines the TTL key-value collaborator used for
// non-authoritative counters (rate limiting, suspicious activity).
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache is a key-value store with per-key expiry. Implementations must be safe
// for concurrent use; Incr must not lose updates under races.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// Incr increments the counter at key and returns the new value. The ttl
	// starts when the key is created and is not extended by later calls.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
