// Package ratelimit implements sliding-window command limits backed by Redis, with an
// in-memory fallback.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Result captures the outcome of a rate-limit evaluation.
type Result struct {
	Allowed   bool
	Remaining int
	// ResetAt is when the oldest counted request leaves the window.
	ResetAt time.Time
}

// RetryAfter returns how long the caller should wait, rounded up to whole seconds.
func (r *Result) RetryAfter(now time.Time) int {
	if r == nil || !r.ResetAt.After(now) {
		return 1
	}
	wait := r.ResetAt.Sub(now)
	secs := int(wait / time.Second)
	if wait%time.Second != 0 {
		secs++
	}
	return secs
}

// Limiter describes a rate-limiting strategy interface.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// ErrLimitExceeded indicates the rate limit has been reached for the key.
var ErrLimitExceeded = errors.New("rate limit exceeded")
