// Package cache provides typed access to the shared key-value store that
// holds serialized conversation histories. Entries carry a rolling TTL that
// is reset on every write, never on read.
//
// Two backends are provided: Redis (production, shared across replicas) and
// SQLite (single-node development and tests, no external service required).
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when the cache backend cannot be reached.
// Callers must not retry inline; the failure is surfaced to the user as a
// generic outage condition.
var ErrUnavailable = errors.New("cache: backend unavailable")

// Store is the read/write interface for conversation cache entries.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the payload stored under key. The second return value
	// distinguishes "key absent" (false, nil error) from a present payload;
	// absence is a normal outcome, not an error. Backend failures are
	// reported as errors wrapping ErrUnavailable.
	Get(ctx context.Context, key string) (value []byte, present bool, err error)

	// SetWithTTL stores value under key, overwriting any existing entry and
	// resetting its expiry to ttl from now.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Close releases the backend connection. The store must not be used
	// afterwards.
	Close() error
}
