// Package engine owns the in-process state shared by the exchange and sender
// roles. One Runtime is built at startup and handed to both role factories.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/market"
	"github.com/alanyoungcy/arbengine/internal/opportunity"
	"github.com/alanyoungcy/arbengine/internal/ratelimit"
	"github.com/alanyoungcy/arbengine/internal/registry"
)

// Runtime is the shared state of one engine instance.
type Runtime struct {
	Cache         *market.Cache
	Broadcast     *market.Broadcast
	Limiter       *ratelimit.WeightLimiter
	Opportunities *opportunity.Channel
	Registry      *registry.Registry
	Logger        *slog.Logger
}

// New builds a Runtime from cfg. The registry only contains parsers for the
// programs configured under chaindata.programs.
func New(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	programs, err := ProgramsFromConfig(cfg.ChainData.Programs)
	if err != nil {
		return nil, err
	}
	reg, err := registry.Default(programs)
	if err != nil {
		return nil, fmt.Errorf("engine: build registry: %w", err)
	}
	return &Runtime{
		Cache:         market.NewCache(),
		Broadcast:     market.NewBroadcast(logger),
		Limiter:       ratelimit.NewWeightLimiter(cfg.Limiter.WeightLimit, cfg.Limiter.Window.Duration),
		Opportunities: opportunity.New(),
		Registry:      reg,
		Logger:        logger,
	}, nil
}

// ProgramsFromConfig parses the configured base58 program ids. Empty ids stay
// zero and are skipped by registry.Default.
func ProgramsFromConfig(c config.ProgramsConfig) (registry.Programs, error) {
	var (
		p   registry.Programs
		err error
	)
	for _, f := range []struct {
		name string
		src  string
		dst  *registry.ProgramID
	}{
		{"constant_product", c.ConstantProduct, &p.ConstantProduct},
		{"concentrated", c.Concentrated, &p.Concentrated},
		{"router", c.Router, &p.Router},
	} {
		if f.src == "" {
			continue
		}
		if *f.dst, err = registry.ParseProgramID(f.src); err != nil {
			return registry.Programs{}, fmt.Errorf("engine: chaindata.programs.%s: %w", f.name, err)
		}
	}
	return p, nil
}
