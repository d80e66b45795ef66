package collect

import (
	"context"
	"sync"
	"time"
)

// Cache stores fetched response bodies keyed by request identity. Caching is
// orthogonal to correctness and bypassable per call.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, body []byte) error
	Close() error
}

type memEntry struct {
	body      []byte
	expiresAt time.Time
}

// MemoryCache is an in-process TTL cache.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memEntry

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewMemoryCache creates a MemoryCache with the given TTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memEntry),
		nowFunc: time.Now,
	}
}

// Get returns the cached body for key, if present and fresh.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if c.nowFunc().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return e.body, true, nil
}

// Set stores body under key.
func (c *MemoryCache) Set(_ context.Context, key string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memEntry{body: body, expiresAt: c.nowFunc().Add(c.ttl)}
	return nil
}

// Close is a no-op.
func (c *MemoryCache) Close() error { return nil }
