package exchange

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/domain"
)

// LegTemplate is one configured hop of a chain, before prices are known.
type LegTemplate struct {
	Symbol         string
	Direction      domain.Direction
	BaseIncrement  decimal.Decimal
	QuoteIncrement decimal.Decimal
}

// ChainTemplate is a configured cycle the detector prices on every update
// of one of its symbols.
type ChainTemplate struct {
	Name string
	Legs []LegTemplate
}

// Symbols returns the distinct leg symbols.
func (t ChainTemplate) Symbols() []string {
	seen := make(map[string]bool, len(t.Legs))
	out := make([]string, 0, len(t.Legs))
	for _, l := range t.Legs {
		if !seen[l.Symbol] {
			seen[l.Symbol] = true
			out = append(out, l.Symbol)
		}
	}
	return out
}

// TemplatesFromConfig turns the configured chains into templates. Every leg
// must reference a configured market and every chain must pass
// domain.Chain.Validate.
func TemplatesFromConfig(cfg config.ExchangeConfig) ([]ChainTemplate, error) {
	if len(cfg.Chains) == 0 {
		return nil, fmt.Errorf("%w: no chains configured", domain.ErrInvalidConfig)
	}
	out := make([]ChainTemplate, 0, len(cfg.Chains))
	for i, cc := range cfg.Chains {
		name := cc.Name
		if name == "" {
			name = fmt.Sprintf("chain-%d", i)
		}
		t := ChainTemplate{Name: name, Legs: make([]LegTemplate, 0, len(cc.Legs))}
		shape := domain.Chain{Legs: make([]domain.ChainLeg, 0, len(cc.Legs))}

		for j, lc := range cc.Legs {
			dir, err := domain.ParseDirection(lc.Direction)
			if err != nil {
				return nil, fmt.Errorf("chain %s leg %d: %w", name, j, err)
			}
			m, ok := cfg.Market(lc.Symbol)
			if !ok {
				return nil, fmt.Errorf("%w: chain %s leg %d: market %q not configured",
					domain.ErrInvalidConfig, name, j, lc.Symbol)
			}
			leg := LegTemplate{
				Symbol:         strings.ToUpper(lc.Symbol),
				Direction:      dir,
				BaseIncrement:  m.BaseIncrement,
				QuoteIncrement: m.QuoteIncrement,
			}
			t.Legs = append(t.Legs, leg)
			shape.Legs = append(shape.Legs, domain.ChainLeg{Symbol: leg.Symbol, Direction: dir})
		}
		if err := shape.Validate(); err != nil {
			return nil, fmt.Errorf("chain %s: %w", name, err)
		}
		out = append(out, t)
	}
	return out, nil
}
