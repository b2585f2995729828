// Package app provides the top-level application lifecycle for the arbitrage
// engine. It wires the optional backends, builds the shared runtime and both
// roles, and runs them under supervision until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/engine"
	"github.com/alanyoungcy/arbengine/internal/exchange"
	"github.com/alanyoungcy/arbengine/internal/sender"
	"github.com/alanyoungcy/arbengine/internal/service"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, builds the exchange and sender roles and blocks
// until the context is cancelled or both roles have stopped.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("exchange", a.cfg.Exchange.Name),
		slog.Int("chains", len(a.cfg.Exchange.Chains)),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	comp, err := a.compose(deps)
	if comp == nil {
		return err
	}
	if err != nil {
		a.logger.ErrorContext(ctx, "running with a reduced role set", slog.String("error", err.Error()))
	}
	return comp.Run(ctx)
}

// compose builds the shared runtime and both supervised roles on top of deps.
// A role that fails to build is reported in the error while the composition
// still carries the other one.
func (a *App) compose(deps *Dependencies) (*service.Composition, error) {
	rt, err := engine.New(a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: runtime: %w", err)
	}

	sd := sender.Deps{
		Runtime: rt,
		Store:   deps.ChainStore,
		Bus:     deps.SignalBus,
		Claims:  deps.Claims,
		Blobs:   deps.BlobWriter,
		Logger:  a.logger,
	}
	if deps.Notifier != nil {
		sd.Notifier = deps.Notifier
	}

	comp, err := service.Build(a.cfg,
		exchange.NewFactory(exchange.Deps{
			Runtime: rt,
			Mirror:  deps.QuoteMirror,
			Logger:  a.logger,
		}),
		sender.NewFactory(sd),
		service.Options{Logger: a.logger},
	)
	if err != nil {
		return comp, fmt.Errorf("app: %w", err)
	}
	return comp, nil
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
