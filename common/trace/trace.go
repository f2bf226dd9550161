// Package trace provides request ID generation and context propagation so
// that log lines emitted while handling one HTTP request can be correlated.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"
)

// requestKey is the unexported context key used to store the request ID.
type requestKey struct{}

// NewID generates a unique request ID.
func NewID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a timestamp-based ID if random fails (should never happen)
		return fmt.Sprintf("r_%d", time.Now().UnixNano())
	}
	return "r_" + hex.EncodeToString(bytes)
}

// WithID returns a child context carrying the given request ID.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestKey{}, id)
}

// FromContext extracts the request ID from ctx, returning "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestKey{}).(string); ok {
		return v
	}
	return ""
}

// Logger returns a logger that always includes the request_id from ctx.
// When ctx carries no request ID the default logger is returned unchanged.
func Logger(ctx context.Context) *slog.Logger {
	id := FromContext(ctx)
	if id == "" {
		return slog.Default()
	}
	return slog.Default().With("request_id", id)
}
