package cache

import (
	"context"
	"time"
)

// MemoryCache is an in-process cache for tests and single-run sessions.
// The capture engine is single-threaded, so no locking is carried.
type MemoryCache struct {
	entries map[string]memoryEntry
	closed  bool
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]memoryEntry{}}
}

// Get retrieves a value; expired entries are dropped and reported as a miss.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c.closed {
		return nil, false, ErrClosed
	}
	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return entry.data, true, nil
}

// Set stores a value. A TTL of 0 never expires.
func (c *MemoryCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if c.closed {
		return ErrClosed
	}
	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	c.entries[key] = entry
	return nil
}

// Delete removes a key.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	if c.closed {
		return ErrClosed
	}
	delete(c.entries, key)
	return nil
}

// Close marks the cache closed and drops all entries.
func (c *MemoryCache) Close() error {
	c.closed = true
	c.entries = nil
	return nil
}

// Len returns the number of live entries, for tests.
func (c *MemoryCache) Len() int { return len(c.entries) }

var _ Cache = (*MemoryCache)(nil)
