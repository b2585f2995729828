// Package ratelimit implements the exchange request-weight gate shared by
// every call site that consumes the same quota.
package ratelimit

import (
	"sync"
	"time"
)

// WeightLimiter is a fixed-window admission gate over a numeric quota. The
// window resets lazily: the first Add after the window has elapsed zeroes
// the counter and starts a new window at that instant.
//
// Callers reserve weight with Add before issuing a request and may hand
// unused weight back with Sub. A false return from Add is a signal to defer
// or skip the request, not an error.
type WeightLimiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	windowStart time.Time
	consumed    int
	now         func() time.Time
}

// Option configures a WeightLimiter.
type Option func(*WeightLimiter)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *WeightLimiter) {
		l.now = now
	}
}

// NewWeightLimiter creates a limiter admitting at most limit weight per
// window.
func NewWeightLimiter(limit int, window time.Duration, opts ...Option) *WeightLimiter {
	l := &WeightLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.windowStart = l.now()
	return l
}

// Add reserves delta weight. It returns false and leaves the counter
// untouched when the reservation would exceed the limit.
func (l *WeightLimiter) Add(delta int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.windowStart) > l.window {
		l.consumed = 0
		l.windowStart = now
	}

	if l.consumed+delta > l.limit {
		return false
	}
	l.consumed += delta
	return true
}

// Sub returns delta weight to the current window. Returning as much as or
// more than is currently consumed is ignored rather than clamped to zero.
func (l *WeightLimiter) Sub(delta int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if delta < l.consumed {
		l.consumed -= delta
	}
}

// Consumed returns the weight used in the current window as last observed.
// It does not apply the lazy reset.
func (l *WeightLimiter) Consumed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.consumed
}

// Limit returns the configured per-window limit.
func (l *WeightLimiter) Limit() int {
	return l.limit
}

// Window returns the configured window length.
func (l *WeightLimiter) Window() time.Duration {
	return l.window
}
