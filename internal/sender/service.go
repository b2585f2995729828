// Package sender implements the sender role: it takes detected chains from
// the opportunity channel, admits them against staleness, duplicates and the
// request-weight quota, places their legs and records the outcome.
package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/engine"
	"github.com/alanyoungcy/arbengine/internal/service"
)

// ExecutionNotifier alerts operators about an execution.
type ExecutionNotifier interface {
	NotifyExecution(ctx context.Context, exec domain.ChainExecution) error
}

// Deps are the collaborators of the sender role. Runtime is required; all
// recorders are optional.
type Deps struct {
	Runtime *engine.Runtime
	// Placer overrides the placer selected by sender.placer.
	Placer   OrderPlacer
	Store    domain.ChainStore
	Bus      domain.SignalBus
	Claims   domain.ExecutionClaims
	Blobs    domain.BlobWriter
	Notifier ExecutionNotifier
	Logger   *slog.Logger
}

// NewFactory returns the sender role factory.
func NewFactory(deps Deps) service.Factory {
	return service.FactoryFunc(func(cfg *config.Config) (service.Service, error) {
		return New(cfg, deps)
	})
}

const (
	cleanupInterval = 30 * time.Second
	// restoreLimit caps how many stored executions seed the dedup window.
	restoreLimit = 200
)

var errLegNotFilled = errors.New("leg not filled")

// Service is the sender role.
type Service struct {
	rt          *engine.Runtime
	placer      OrderPlacer
	dedup       *Dedup
	maxAge      time.Duration
	dedupTTL    time.Duration
	orderWeight int
	channel     string

	store    domain.ChainStore
	bus      domain.SignalBus
	claims   domain.ExecutionClaims
	journal  *Journal
	notifier ExecutionNotifier

	now    func() time.Time
	logger *slog.Logger

	executed atomic.Uint64
	stale    atomic.Uint64
	dupes    atomic.Uint64
	deferred atomic.Uint64
}

// New assembles the sender role from cfg.
func New(cfg *config.Config, deps Deps) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sender: %w: nil config", domain.ErrInvalidConfig)
	}
	if deps.Runtime == nil {
		return nil, errors.New("sender: nil runtime")
	}
	logger := deps.Logger
	if logger == nil {
		logger = deps.Runtime.Logger
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Sender.OrderWeight < 0 {
		return nil, fmt.Errorf("sender: %w: order_weight must not be negative", domain.ErrInvalidConfig)
	}

	placer := deps.Placer
	if placer == nil {
		var err error
		if placer, err = placerFor(cfg.Sender.Placer); err != nil {
			return nil, fmt.Errorf("sender: %w", err)
		}
	}

	s := &Service{
		rt:          deps.Runtime,
		placer:      placer,
		dedup:       NewDedup(cfg.Sender.DedupTTL.Duration),
		maxAge:      cfg.Sender.MaxAge.Duration,
		dedupTTL:    cfg.Sender.DedupTTL.Duration,
		orderWeight: cfg.Sender.OrderWeight,
		channel:     cfg.Redis.SignalChannel,
		store:       deps.Store,
		bus:         deps.Bus,
		claims:      deps.Claims,
		notifier:    deps.Notifier,
		now:         time.Now,
		logger:      logger.With(slog.String("component", "sender")),
	}
	if deps.Blobs != nil {
		s.journal = NewJournal(deps.Blobs)
	}
	return s, nil
}

// Start drains the opportunity channel until ctx is cancelled. Rejected or
// failed chains are logged and never stop the loop.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("sender role started")
	defer s.logger.Info("sender role stopped")

	s.restoreDedup(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				s.dedup.Cleanup()
			}
		}
	})
	g.Go(func() error {
		for {
			chain, err := s.rt.Opportunities.Recv(ctx)
			if err != nil {
				return err
			}
			if _, err := s.Process(ctx, chain); err != nil {
				s.logger.DebugContext(ctx, "chain not executed",
					slog.String("chain_id", chain.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	})
	return g.Wait()
}

// restoreDedup marks the fingerprints of recently stored executions as seen,
// so a restart does not execute the same chain again within the dedup TTL.
func (s *Service) restoreDedup(ctx context.Context) {
	if s.store == nil || s.dedupTTL <= 0 {
		return
	}
	execs, err := s.store.ListRecent(ctx, restoreLimit)
	if err != nil {
		s.logger.WarnContext(ctx, "restore dedup failed", slog.String("error", err.Error()))
		return
	}
	before := s.dedup.Len()
	for _, exec := range execs {
		s.dedup.Remember(exec.Fingerprint, exec.StartedAt)
	}
	if n := s.dedup.Len() - before; n > 0 {
		s.logger.InfoContext(ctx, "restored recent executions", slog.Int("fingerprints", n))
	}
}

// Process admits and executes one chain. It returns ErrStaleOpportunity,
// ErrAlreadyExists or ErrWeightExhausted when the chain is not admitted, and
// ErrLegFailed alongside the recorded execution when a leg fails.
func (s *Service) Process(ctx context.Context, chain domain.Chain) (domain.ChainExecution, error) {
	now := s.now()
	if s.maxAge > 0 && now.Sub(chain.CreatedAt) > s.maxAge {
		s.stale.Add(1)
		return domain.ChainExecution{}, fmt.Errorf("sender: chain %s is %s old: %w",
			chain.ID, now.Sub(chain.CreatedAt), domain.ErrStaleOpportunity)
	}

	fp := chain.Fingerprint()
	if s.dedup.IsDuplicate(fp) {
		s.dupes.Add(1)
		return domain.ChainExecution{}, fmt.Errorf("sender: chain %s: %w", chain.ID, domain.ErrAlreadyExists)
	}

	release := func() {}
	if s.claims != nil {
		r, err := s.claims.Claim(ctx, fp, s.dedupTTL)
		switch {
		case errors.Is(err, domain.ErrAlreadyExists):
			s.dupes.Add(1)
			return domain.ChainExecution{}, fmt.Errorf("sender: chain %s claimed elsewhere: %w", chain.ID, err)
		case err != nil:
			// Without the shared claim store only local dedup applies.
			s.logger.WarnContext(ctx, "execution claim failed", slog.String("error", err.Error()))
		default:
			release = r
		}
	}

	weight := s.orderWeight * len(chain.Legs)
	if !s.rt.Limiter.Add(weight) {
		s.deferred.Add(1)
		s.dedup.Forget(fp)
		release()
		return domain.ChainExecution{}, fmt.Errorf("sender: chain %s needs weight %d: %w",
			chain.ID, weight, domain.ErrWeightExhausted)
	}

	exec := s.execute(ctx, chain, fp)
	s.executed.Add(1)
	s.record(ctx, exec)

	if exec.Status != domain.ExecutionFilled {
		return exec, fmt.Errorf("sender: chain %s %s after %d/%d legs: %w",
			chain.ID, exec.Status, exec.FilledLegs(), len(chain.Legs), domain.ErrLegFailed)
	}
	return exec, nil
}

// execute places the legs in order and stops at the first failure, handing
// back the weight reserved for the legs that were never sent.
func (s *Service) execute(ctx context.Context, chain domain.Chain, fp string) domain.ChainExecution {
	profit, pct := chain.ComputeProfit()
	exec := domain.ChainExecution{
		ID:              uuid.New().String(),
		ChainID:         chain.ID,
		Fingerprint:     fp,
		FeePercent:      chain.FeePercent,
		ExpectedProfit:  profit,
		ExpectedPercent: pct,
		Fills:           make([]domain.LegFill, 0, len(chain.Legs)),
		DetectedAt:      chain.CreatedAt,
		StartedAt:       s.now().UTC(),
	}

	for i, leg := range chain.Legs {
		fill, err := s.placer.PlaceLeg(ctx, leg)
		if err == nil && !fill.Success {
			err = errLegNotFilled
			if fill.Error != "" {
				err = errors.New(fill.Error)
			}
		}
		if err != nil {
			exec.Fills = append(exec.Fills, domain.LegFill{
				Symbol:    leg.Symbol,
				Direction: leg.Direction,
				Error:     err.Error(),
			})
			if unused := s.orderWeight * (len(chain.Legs) - i - 1); unused > 0 {
				s.rt.Limiter.Sub(unused)
			}
			s.logger.WarnContext(ctx, "leg failed",
				slog.String("exec_id", exec.ID),
				slog.String("symbol", leg.Symbol),
				slog.Int("leg", i),
				slog.String("error", err.Error()),
			)
			break
		}
		exec.Fills = append(exec.Fills, fill)
	}

	switch filled := exec.FilledLegs(); {
	case filled == len(chain.Legs):
		exec.Status = domain.ExecutionFilled
	case filled > 0:
		exec.Status = domain.ExecutionPartial
	default:
		exec.Status = domain.ExecutionFailed
	}
	exec.CompletedAt = s.now().UTC()

	s.logger.InfoContext(ctx, "chain executed",
		slog.String("exec_id", exec.ID),
		slog.String("chain_id", chain.ID),
		slog.String("status", string(exec.Status)),
		slog.String("expected_profit", profit.String()),
		slog.Duration("latency", exec.CompletedAt.Sub(exec.StartedAt)),
	)
	return exec
}

// record hands exec to every configured recorder. Recorder failures are
// logged only.
func (s *Service) record(ctx context.Context, exec domain.ChainExecution) {
	warn := func(what string, err error) {
		s.logger.WarnContext(ctx, what+" failed",
			slog.String("exec_id", exec.ID),
			slog.String("error", err.Error()),
		)
	}

	if s.store != nil {
		if err := s.store.Insert(ctx, exec); err != nil {
			warn("store execution", err)
		}
	}
	if s.bus != nil && s.channel != "" {
		payload, err := EncodeExecution(exec)
		if err == nil {
			err = s.bus.Publish(ctx, s.channel, payload)
		}
		if err != nil {
			warn("publish execution", err)
		}
	}
	if s.journal != nil {
		if err := s.journal.Record(ctx, exec); err != nil {
			warn("journal execution", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyExecution(ctx, exec); err != nil {
			warn("notify execution", err)
		}
	}
}

// Stats holds the sender counters.
type Stats struct {
	Executed uint64
	Stale    uint64
	Dupes    uint64
	Deferred uint64
}

// Stats returns the current counters.
func (s *Service) Stats() Stats {
	return Stats{
		Executed: s.executed.Load(),
		Stale:    s.stale.Load(),
		Dupes:    s.dupes.Load(),
		Deferred: s.deferred.Load(),
	}
}

var _ service.Service = (*Service)(nil)
