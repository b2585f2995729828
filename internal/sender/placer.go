package sender

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// OrderPlacer submits one leg of a chain to the venue.
type OrderPlacer interface {
	PlaceLeg(ctx context.Context, leg domain.ChainLeg) (domain.LegFill, error)
}

// PaperPlacer fills every leg in full at the detected price without touching
// the venue.
type PaperPlacer struct {
	seq atomic.Uint64
}

// NewPaperPlacer creates a PaperPlacer.
func NewPaperPlacer() *PaperPlacer {
	return &PaperPlacer{}
}

// PlaceLeg fills leg at its price.
func (p *PaperPlacer) PlaceLeg(ctx context.Context, leg domain.ChainLeg) (domain.LegFill, error) {
	if err := ctx.Err(); err != nil {
		return domain.LegFill{}, err
	}
	return domain.LegFill{
		Symbol:    leg.Symbol,
		Direction: leg.Direction,
		OrderID:   fmt.Sprintf("paper-%d", p.seq.Add(1)),
		Price:     leg.Price,
		BaseQty:   leg.BaseQty,
		QuoteQty:  leg.QuoteQty,
		Success:   true,
	}, nil
}

// placerFor resolves the configured placer name.
func placerFor(name string) (OrderPlacer, error) {
	switch name {
	case "", "paper":
		return NewPaperPlacer(), nil
	default:
		return nil, fmt.Errorf("%w: sender.placer %q", domain.ErrInvalidConfig, name)
	}
}
