// Package exchange implements the exchange role: it keeps the shared market
// state fresh from the venue's streams and snapshots (and optionally from
// on-chain pools), and detects profitable chains over it.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/engine"
	"github.com/alanyoungcy/arbengine/internal/service"
	"github.com/alanyoungcy/arbengine/internal/stream/kafka"
)

// Deps are the collaborators of the exchange role. Runtime is required;
// everything else is optional.
type Deps struct {
	Runtime *engine.Runtime
	// Mirror receives every applied market event.
	Mirror domain.QuoteMirror
	// Depth overrides the REST snapshot client.
	Depth DepthSource
	// OpenReader overrides the Kafka chain-data reader.
	OpenReader func(cfg config.ChainDataConfig) UpdateReader
	Logger     *slog.Logger
}

// NewFactory returns the exchange role factory.
func NewFactory(deps Deps) service.Factory {
	return service.FactoryFunc(func(cfg *config.Config) (service.Service, error) {
		return New(cfg, deps)
	})
}

// Service is the exchange role.
type Service struct {
	rt       *engine.Runtime
	feed     *BookTickerFeed
	poller   *SnapshotPoller
	detector *Detector
	mirror   *Mirror
	pools    *PoolSource
	symbols  []string
	// warmAge is the oldest mirrored quote seeded at start.
	warmAge time.Duration
	logger  *slog.Logger
}

// New validates the exchange configuration and assembles the role.
func New(cfg *config.Config, deps Deps) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("exchange: %w: nil config", domain.ErrInvalidConfig)
	}
	if deps.Runtime == nil {
		return nil, errors.New("exchange: nil runtime")
	}
	logger := deps.Logger
	if logger == nil {
		logger = deps.Runtime.Logger
	}
	if logger == nil {
		logger = slog.Default()
	}

	templates, err := TemplatesFromConfig(cfg.Exchange)
	if err != nil {
		return nil, fmt.Errorf("exchange: %w", err)
	}

	symbols := cfg.Exchange.Symbols()
	s := &Service{
		rt:      deps.Runtime,
		symbols: symbols,
		warmAge: cfg.Sender.MaxAge.Duration,
		logger:  logger.With(slog.String("component", "exchange")),
	}

	if cfg.Exchange.WsURL != "" {
		s.feed = NewBookTickerFeed(cfg.Exchange.WsURL, symbols, s.apply, logger)
	}

	depth := deps.Depth
	if depth == nil && cfg.Exchange.RestURL != "" {
		depth = NewRestClient(cfg.Exchange.RestURL)
	}
	if depth != nil {
		s.poller = NewSnapshotPoller(depth, s.rt.Limiter, SnapshotConfig{
			Symbols:  symbols,
			Interval: cfg.Exchange.SnapshotInterval.Duration,
			Weight:   cfg.Exchange.SnapshotWeight,
			Depth:    cfg.Exchange.SnapshotDepth,
		}, s.apply, logger)
	}

	s.detector = NewDetector(templates, s.rt.Cache, s.rt.Broadcast, s.rt.Opportunities, DetectorParams{
		FeePercent:       cfg.Exchange.FeePercent,
		MinProfitPercent: cfg.Exchange.MinProfitPercent,
		Capital:          cfg.Exchange.Capital,
	}, logger)

	if deps.Mirror != nil {
		s.mirror = NewMirror(deps.Mirror, logger)
	}

	if cfg.ChainData.Enabled {
		pools, err := PoolsFromConfig(cfg.ChainData.Pools)
		if err != nil {
			return nil, fmt.Errorf("exchange: %w", err)
		}
		open := deps.OpenReader
		if open == nil {
			open = openKafkaReader
		}
		chainCfg := cfg.ChainData
		s.pools = NewPoolSource(func() UpdateReader { return open(chainCfg) },
			s.rt.Registry, pools, s.apply, logger)
	}
	return s, nil
}

func openKafkaReader(cfg config.ChainDataConfig) UpdateReader {
	return kafka.NewAccountReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	})
}

// apply is the single entry point for market events from every source. An
// event that loses the sequence race in the cache is not broadcast.
func (s *Service) apply(ev domain.MarketEvent) {
	if !s.rt.Cache.Update(ev) {
		return
	}
	s.rt.Broadcast.Publish(ev)
	if s.mirror != nil {
		s.mirror.Enqueue(ev)
	}
}

// seed installs a mirrored quote without writing it back to the mirror.
func (s *Service) seed(ev domain.MarketEvent) {
	if s.rt.Cache.Update(ev) {
		s.rt.Broadcast.Publish(ev)
	}
}

// Start runs every component until ctx is cancelled or one of them fails;
// the first failure stops the others and is returned.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("exchange role starting",
		slog.Bool("feed", s.feed != nil),
		slog.Bool("snapshots", s.poller != nil),
		slog.Bool("mirror", s.mirror != nil),
		slog.Bool("chaindata", s.pools != nil),
	)

	if s.mirror != nil {
		if n := s.mirror.Warm(ctx, s.symbols, s.warmAge, s.seed); n > 0 {
			s.logger.Info("warmed quotes from mirror", slog.Int("symbols", n))
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.detector.Run(ctx) })
	if s.feed != nil {
		g.Go(func() error { return s.feed.Run(ctx) })
	}
	if s.poller != nil {
		g.Go(func() error { return s.poller.Run(ctx) })
	}
	if s.mirror != nil {
		g.Go(func() error { return s.mirror.Run(ctx) })
	}
	if s.pools != nil {
		g.Go(func() error { return s.pools.Run(ctx) })
	}
	return g.Wait()
}

// Detector exposes the chain detector.
func (s *Service) Detector() *Detector { return s.detector }

var _ service.Service = (*Service)(nil)
