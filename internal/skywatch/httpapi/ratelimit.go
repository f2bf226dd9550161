package httpapi

import (
	"sync"
	"time"
)

// rateLimiter is a fixed-window rate limiter keyed by caller (client IP).
// Each caller has an independent counter that resets after the window
// elapses. The reset time is exposed so denied requests can report how long
// to wait.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*windowBucket
}

type windowBucket struct {
	count   int
	resetAt time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*windowBucket),
	}
}

// Allow reports whether the caller is within its limit. When denied, the
// second return value is the time remaining until the caller's window
// resets, rounded up to at least one second so it can be rendered as a
// positive retry-after. Safe for concurrent use.
func (r *rateLimiter) Allow(key string) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	b, ok := r.buckets[key]
	if !ok || now.After(b.resetAt) {
		r.buckets[key] = &windowBucket{count: 1, resetAt: now.Add(r.window)}
		return true, 0
	}
	if b.count >= r.limit {
		wait := b.resetAt.Sub(now)
		if wait < time.Second {
			wait = time.Second
		}
		return false, wait.Round(time.Second)
	}
	b.count++
	return true, 0
}
