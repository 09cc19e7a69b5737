// Package store provides counter storage for rate limiting.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned when a key is absent or expired.
var ErrKeyNotFound = errors.New("key not found")

// Counter is the state of a windowed counter.
type Counter struct {
	// Count is the number of hits in the current window.
	Count int64

	// ResetAfter is the time left until the window expires.
	ResetAfter time.Duration
}

// Store keeps windowed counters keyed by caller identity.
type Store interface {
	// Hit increments the counter for key. A missing or expired key starts a
	// new window of the given length with a count of one.
	Hit(ctx context.Context, key string, window time.Duration) (Counter, error)

	// Get returns the counter for key or ErrKeyNotFound.
	Get(ctx context.Context, key string) (Counter, error)

	// Delete removes the key from the store.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the store.
	Close() error
}

// IsKeyNotFound reports whether err is ErrKeyNotFound.
func IsKeyNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}
