// Package service defines the long-running role contract and composes the
// exchange and sender roles, each under its own supervisor.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/supervisor"
)

// Service is a long-running role. Start blocks until ctx is cancelled or
// the role fails.
type Service interface {
	Start(ctx context.Context) error
}

// Factory builds a Service from validated configuration.
type Factory interface {
	FromConfig(cfg *config.Config) (Service, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(cfg *config.Config) (Service, error)

// FromConfig calls f(cfg).
func (f FactoryFunc) FromConfig(cfg *config.Config) (Service, error) { return f(cfg) }

// Role names.
const (
	RoleExchange = "exchange"
	RoleSender   = "sender"
)

// Options tunes Build. A nil Policy is derived from cfg.Supervisor.
type Options struct {
	Policy supervisor.RetryPolicy
	Logger *slog.Logger
}

// PolicyFromConfig turns the supervisor section into a RetryPolicy.
func PolicyFromConfig(c config.SupervisorConfig) supervisor.RetryPolicy {
	if strings.EqualFold(c.Policy, "exponential") {
		return supervisor.ExponentialBackoff{
			Min:         c.MinBackoff.Duration,
			Max:         c.MaxBackoff.Duration,
			Factor:      c.Factor,
			Jitter:      c.Jitter,
			MaxAttempts: c.MaxAttempts,
		}
	}
	delay := c.Backoff.Duration
	if delay == 0 {
		delay = supervisor.DefaultRestartDelay
	}
	return supervisor.FixedBackoff{Delay: delay, MaxAttempts: c.MaxAttempts}
}

// Composition runs the exchange and sender roles side by side.
type Composition struct {
	supervisors []*supervisor.Supervisor
	logger      *slog.Logger
}

// Build constructs both roles from the same configuration. Roles are built
// independently: a role whose factory fails is logged and left out, and its
// error is returned alongside a composition holding the roles that did
// build. The composition is nil only when no role could be built.
func Build(cfg *config.Config, exchange, sender Factory, opts Options) (*Composition, error) {
	if cfg == nil {
		return nil, errors.New("service: build: nil config")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := opts.Policy
	if policy == nil {
		policy = PolicyFromConfig(cfg.Supervisor)
	}

	c := &Composition{logger: logger.With(slog.String("component", "composition"))}

	var errs []error
	for _, role := range []struct {
		name    string
		factory Factory
	}{
		{RoleExchange, exchange},
		{RoleSender, sender},
	} {
		svc, err := buildRole(cfg, role.factory)
		if err != nil {
			c.logger.Error("role not built",
				slog.String("role", role.name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("service: build %s: %w", role.name, err))
			continue
		}
		c.supervisors = append(c.supervisors, supervisor.New(role.name, svc,
			supervisor.WithPolicy(policy),
			supervisor.WithShutdownGrace(cfg.Supervisor.ShutdownGrace.Duration),
			supervisor.WithLogger(logger),
		))
	}

	err := errors.Join(errs...)
	if len(c.supervisors) == 0 {
		return nil, err
	}
	return c, err
}

func buildRole(cfg *config.Config, f Factory) (Service, error) {
	if f == nil {
		return nil, errors.New("nil factory")
	}
	return f.FromConfig(cfg)
}

// Supervisors exposes the built per-role supervisors, exchange first.
func (c *Composition) Supervisors() []*supervisor.Supervisor {
	return c.supervisors
}

// Run starts every supervisor and waits for all of them. Roles are
// independent: one role giving up does not stop the other, which keeps
// running until ctx is cancelled. Run returns only after every role has
// returned or used up its shutdown grace. The first non-nil supervisor error
// is returned.
func (c *Composition) Run(ctx context.Context) error {
	var g errgroup.Group
	for _, s := range c.supervisors {
		g.Go(func() error {
			err := s.Run(ctx)
			if err != nil {
				c.logger.Error("role stopped",
					slog.String("role", s.Name()),
					slog.String("error", err.Error()),
				)
			}
			return err
		})
	}
	err := g.Wait()
	c.logger.Info("all roles stopped")
	return err
}
