// Package supervisor keeps a long-running service alive: it restarts the
// service after every failure or unexpected exit, pausing between attempts
// according to a RetryPolicy, until the context is cancelled.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ErrRetriesExhausted is returned by Run when the policy refuses another
// restart. It wraps the last service error.
var ErrRetriesExhausted = errors.New("supervisor: retries exhausted")

// errExitedEarly stands in for the error of a service that returned nil
// before it was asked to stop.
var errExitedEarly = errors.New("supervisor: service exited without error before cancellation")

// Service is anything with a blocking Start.
type Service interface {
	Start(ctx context.Context) error
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context) error

// Start calls f(ctx).
func (f ServiceFunc) Start(ctx context.Context) error { return f(ctx) }

// State is the supervisor lifecycle.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateBackoff
	StateCancelled
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateBackoff:
		return "backoff"
	case StateCancelled:
		return "cancelled"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithPolicy replaces the default FixedBackoff{Delay: DefaultRestartDelay}.
func WithPolicy(p RetryPolicy) Option {
	return func(s *Supervisor) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithShutdownGrace bounds how long Run waits, after cancellation, for the
// running service to return. Zero or negative returns immediately.
func WithShutdownGrace(d time.Duration) Option {
	return func(s *Supervisor) {
		s.grace = d
	}
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

// Supervisor restarts one service.
type Supervisor struct {
	name   string
	svc    Service
	policy RetryPolicy
	grace  time.Duration
	logger *slog.Logger

	attempts atomic.Int64
	state    atomic.Int32
}

// New creates a supervisor for svc.
func New(name string, svc Service, opts ...Option) *Supervisor {
	s := &Supervisor{
		name:   name,
		svc:    svc,
		policy: FixedBackoff{Delay: DefaultRestartDelay},
		grace:  DefaultShutdownGrace,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With(slog.String("component", "supervisor"), slog.String("service", name))
	return s
}

// Name returns the supervised service name.
func (s *Supervisor) Name() string { return s.name }

// Attempts returns how many times the service has been started.
func (s *Supervisor) Attempts() int64 { return s.attempts.Load() }

// State returns the current lifecycle state.
func (s *Supervisor) State() State { return State(s.state.Load()) }

func (s *Supervisor) setState(st State) { s.state.Store(int32(st)) }

// Run starts the service and restarts it whenever it returns. It returns nil
// once ctx is cancelled and the running service has returned or the shutdown
// grace has passed, or ErrRetriesExhausted when the policy gives up.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			s.setState(StateCancelled)
			return nil
		}

		attempt := s.attempts.Add(1)
		s.setState(StateRunning)
		s.logger.Info("starting service", slog.Int64("attempt", attempt))

		done := make(chan error, 1)
		go func() { done <- s.svc.Start(ctx) }()

		var err error
		select {
		case <-ctx.Done():
			s.setState(StateCancelled)
			s.awaitStop(done)
			return nil
		case err = <-done:
		}

		if ctx.Err() != nil {
			s.setState(StateCancelled)
			return nil
		}
		if err == nil {
			err = errExitedEarly
		}

		delay, ok := s.policy.Next(int(attempt))
		if !ok {
			s.setState(StateExhausted)
			s.logger.Error("giving up on service",
				slog.Int64("attempts", attempt),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("%w: %s after %d attempts: %w", ErrRetriesExhausted, s.name, attempt, err)
		}

		s.setState(StateBackoff)
		s.logger.Error("service stopped, restarting",
			slog.Int64("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)

		if !sleep(ctx, delay) {
			s.setState(StateCancelled)
			return nil
		}
	}
}

// awaitStop waits up to the shutdown grace for the cancelled service to
// return, so its in-flight work finishes before the caller tears down shared
// resources.
func (s *Supervisor) awaitStop(done <-chan error) {
	if s.grace <= 0 {
		s.logger.Info("service cancelled")
		return
	}
	t := time.NewTimer(s.grace)
	defer t.Stop()
	select {
	case <-done:
		s.logger.Info("service cancelled")
	case <-t.C:
		s.logger.Warn("service still running after shutdown grace",
			slog.Duration("grace", s.grace),
		)
	}
}

// sleep waits d or until ctx is done; it reports whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
