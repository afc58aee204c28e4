package cache

import "errors"

// Sentinel errors for cache operations.
var (
	// ErrClosed is returned when an operation runs against a closed backend.
	ErrClosed = errors.New("cache closed")

	// ErrBackend is returned for backend failures (I/O errors, connection
	// errors). Backends wrap it with context.
	ErrBackend = errors.New("cache backend error")
)
