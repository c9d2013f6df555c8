// Package ratelimit counts search requests per client in fixed windows.
// Counters live in memory, in the search database, or in Redis, so that
// several instances can share one budget.
package ratelimit

import (
	"context"
	"time"
)

// Counter is the state of one key's window after an increment.
type Counter struct {
	Count     int64
	ExpiresAt time.Time
}

// Store is the interface for rate limit storage backends.
type Store interface {
	// Increment atomically increments the counter for a key. A missing or
	// expired key restarts at 1 with a fresh window.
	Increment(ctx context.Context, key string, window time.Duration) (Counter, error)

	// Reset removes the counter for a key.
	Reset(ctx context.Context, key string) error

	// Close closes the store and releases resources.
	Close() error
}

// Cleaner is implemented by stores whose expired entries must be removed
// explicitly.
type Cleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// Result contains the rate limit check result
type Result struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
	Limit     int64
}

// RetryAfter returns the whole number of seconds until the window resets,
// never less than one.
func (r *Result) RetryAfter(now time.Time) int64 {
	secs := int64(r.ResetAt.Sub(now).Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}

// Check increments the counter for key and reports whether the request
// fits in the limit.
func Check(ctx context.Context, store Store, key string, limit int64, window time.Duration) (*Result, error) {
	c, err := store.Increment(ctx, key, window)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Allowed:   c.Count <= limit,
		Remaining: limit - c.Count,
		Limit:     limit,
		ResetAt:   c.ExpiresAt,
	}

	if result.Remaining < 0 {
		result.Remaining = 0
	}

	return result, nil
}
