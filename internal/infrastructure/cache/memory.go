// Package cache provides in-process and Redis implementations of cache.Cache.
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"crmflow/internal/core/cache"
)

type entry struct {
	value     string
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryCache is a bounded LRU with per-key expiry. The LRU-wide TTL is an
// upper bound on residency; per-key ttl is enforced on read.
type MemoryCache struct {
	mu    sync.Mutex
	items *lru.LRU[string, entry]
	now   func() time.Time
}

// NewMemoryCache creates a cache holding at most size keys, none of which
// outlives maxTTL.
func NewMemoryCache(size int, maxTTL time.Duration) *MemoryCache {
	if size <= 0 {
		size = 10000
	}
	return &MemoryCache{
		items: lru.NewLRU[string, entry](size, nil, maxTTL),
		now:   time.Now,
	}
}

func (c *MemoryCache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

// Get implements cache.Cache.
func (c *MemoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items.Get(key)
	if !ok {
		return "", cache.ErrMiss
	}
	if e.expired(c.now()) {
		c.items.Remove(key)
		return "", cache.ErrMiss
	}
	return e.value, nil
}

// Set implements cache.Cache.
func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items.Add(key, entry{value: value, expiresAt: c.expiry(ttl)})
	return nil
}

// Delete implements cache.Cache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items.Remove(key)
	return nil
}

// Incr implements cache.Cache.
func (c *MemoryCache) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.items.Get(key)
	if !ok || e.expired(now) {
		e = entry{value: "0", expiresAt: c.expiry(ttl)}
	}

	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		// a non-numeric value is replaced, as Redis would refuse it
		n = 0
		e.expiresAt = c.expiry(ttl)
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	c.items.Add(key, e)
	return n, nil
}

// Len returns the number of resident keys, including ones expired but not yet read.
func (c *MemoryCache) Len() int {
	return c.items.Len()
}

var _ cache.Cache = (*MemoryCache)(nil)
