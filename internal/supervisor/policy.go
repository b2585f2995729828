package supervisor

import (
	"math/rand"
	"time"
)

// DefaultRestartDelay is the fixed pause between restarts when no policy is
// configured.
const DefaultRestartDelay = 60 * time.Second

// DefaultShutdownGrace is how long a supervisor waits for a cancelled
// service to return.
const DefaultShutdownGrace = 10 * time.Second

// RetryPolicy decides how long to wait before restart attempt n (1-based)
// and whether to restart at all.
type RetryPolicy interface {
	Next(attempt int) (time.Duration, bool)
}

// FixedBackoff waits the same delay before every restart. MaxAttempts <= 0
// retries forever.
type FixedBackoff struct {
	Delay       time.Duration
	MaxAttempts int
}

// Next implements RetryPolicy.
func (f FixedBackoff) Next(attempt int) (time.Duration, bool) {
	if f.MaxAttempts > 0 && attempt > f.MaxAttempts {
		return 0, false
	}
	if f.Delay < 0 {
		return 0, true
	}
	return f.Delay, true
}

// ExponentialBackoff grows the delay by Factor per attempt up to Max, with
// optional +/- Jitter (fraction of the delay). MaxAttempts <= 0 retries
// forever.
type ExponentialBackoff struct {
	Min         time.Duration
	Max         time.Duration
	Factor      float64
	Jitter      float64
	MaxAttempts int
}

// DefaultExponentialBackoff mirrors the websocket reconnect defaults.
func DefaultExponentialBackoff() ExponentialBackoff {
	return ExponentialBackoff{
		Min:    250 * time.Millisecond,
		Max:    DefaultRestartDelay,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Next implements RetryPolicy.
func (b ExponentialBackoff) Next(attempt int) (time.Duration, bool) {
	if b.MaxAttempts > 0 && attempt > b.MaxAttempts {
		return 0, false
	}
	if attempt <= 0 {
		attempt = 1
	}
	min := b.Min
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	max := b.Max
	if max <= 0 {
		max = DefaultRestartDelay
	}
	factor := b.Factor
	if factor <= 1 {
		factor = 2.0
	}

	wait := min
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next > max {
			wait = max
			break
		}
		wait = next
	}

	if b.Jitter <= 0 {
		return wait, true
	}
	jitter := b.Jitter
	if jitter > 1 {
		jitter = 1
	}
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta), true
}
