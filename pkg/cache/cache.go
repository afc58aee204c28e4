// Package cache provides the digest cache used for no-op detection across
// repeated capture runs.
//
// # Overview
//
// Hashing large inputs and outputs on every run is wasted work when the
// files have not changed. The capture engine keys each file digest by
// (algorithm, path, size, mtime); a hit means the content digest can be
// reused without re-reading the file. Entries are plain bytes, so the cache
// is equally usable for other derived artifacts.
//
// # Backends
//
//   - memory: in-process map, for tests and short-lived sessions
//   - file: JSON files under a directory, for CLI usage across runs
//   - redis: shared cache for fleets running captures against common data
//   - null: disables caching entirely
//
// All backends implement [Cache]. A miss is (nil, false, nil), never an
// error; errors are reserved for backend failures.
package cache

import (
	"context"
	"time"
)

// Cache is the interface all digest cache backends implement.
//
// Implementations must treat a missing key as a miss, not an error, and
// must honor a zero TTL as "never expires".
type Cache interface {
	// Get retrieves a value. The second return reports whether the key was
	// present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with the given TTL. A TTL of 0 never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// DigestKey builds the cache key for a file content digest. Size and mtime
// are part of the key, so any change to the file invalidates the entry
// without explicit deletion.
func DigestKey(algorithm, path string, size int64, mtimeUnixNano int64) string {
	return hashKey("digest", algorithm, path, size, mtimeUnixNano)
}
