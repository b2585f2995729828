package exchange

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/market"
	"github.com/alanyoungcy/arbengine/internal/opportunity"
)

// DetectorParams are the pricing inputs shared by every chain.
type DetectorParams struct {
	FeePercent       decimal.Decimal
	MinProfitPercent decimal.Decimal
	// Capital is the amount of the first leg's base asset committed.
	Capital decimal.Decimal
}

// Detector prices configured chains against the latest top of book and hands
// profitable ones to the opportunity channel. A chain is re-priced whenever
// one of its symbols publishes; prices of the other symbols are read from the
// cache as they are at that moment.
type Detector struct {
	templates []ChainTemplate
	bySymbol  map[string][]int
	cache     *market.Cache
	broadcast *market.Broadcast
	out       *opportunity.Channel
	params    DetectorParams
	logger    *slog.Logger

	evaluated atomic.Uint64
	found     atomic.Uint64
}

// NewDetector creates a detector for templates.
func NewDetector(templates []ChainTemplate, cache *market.Cache, broadcast *market.Broadcast, out *opportunity.Channel, params DetectorParams, logger *slog.Logger) *Detector {
	bySymbol := make(map[string][]int)
	for i, t := range templates {
		for _, s := range t.Symbols() {
			bySymbol[s] = append(bySymbol[s], i)
		}
	}
	return &Detector{
		templates: templates,
		bySymbol:  bySymbol,
		cache:     cache,
		broadcast: broadcast,
		out:       out,
		params:    params,
		logger:    logger.With(slog.String("component", "chain_detector")),
	}
}

// Run subscribes to every chain symbol and blocks until ctx is done.
func (d *Detector) Run(ctx context.Context) error {
	d.logger.Info("detector started",
		slog.Int("chains", len(d.templates)),
		slog.Int("symbols", len(d.bySymbol)),
	)
	defer d.logger.Info("detector stopped")

	g, ctx := errgroup.WithContext(ctx)
	for symbol := range d.bySymbol {
		sub := d.broadcast.Subscribe(symbol)
		g.Go(func() error {
			defer sub.Close()
			for {
				if _, err := sub.Next(ctx); err != nil {
					return err
				}
				d.OnUpdate(symbol)
			}
		})
	}
	return g.Wait()
}

// OnUpdate re-prices every chain that trades symbol.
func (d *Detector) OnUpdate(symbol string) {
	for _, i := range d.bySymbol[symbol] {
		t := d.templates[i]
		chain, ok := d.Evaluate(t)
		if !ok {
			continue
		}
		profit, pct := chain.ComputeProfit()
		if pct.LessThan(d.params.MinProfitPercent) {
			continue
		}
		d.found.Add(1)
		d.out.Send(chain)
		d.logger.Info("opportunity detected",
			slog.String("chain", t.Name),
			slog.String("chain_id", chain.ID),
			slog.String("profit", profit.String()),
			slog.String("profit_percent", pct.StringFixed(2)),
		)
	}
}

// Evaluate prices t against the cache, starting from the configured capital.
// A descending leg sells its input at the bid; an ascending leg spends its
// input buying base at the ask. Quantities are floored to the market
// increments and may not exceed the size shown at the touch. It reports
// false when a symbol has no usable quote or a leg rounds to nothing.
func (d *Detector) Evaluate(t ChainTemplate) (domain.Chain, bool) {
	d.evaluated.Add(1)

	amount := d.params.Capital
	legs := make([]domain.ChainLeg, 0, len(t.Legs))
	for _, lt := range t.Legs {
		ev, ok := d.cache.Get(lt.Symbol)
		if !ok {
			return domain.Chain{}, false
		}
		leg := domain.ChainLeg{
			Symbol:         lt.Symbol,
			Direction:      lt.Direction,
			BaseIncrement:  lt.BaseIncrement,
			QuoteIncrement: lt.QuoteIncrement,
		}

		switch lt.Direction {
		case domain.DirectionDescending:
			if !ev.HasBid() {
				return domain.Chain{}, false
			}
			leg.Price = ev.BidPrice
			leg.BaseQty = domain.Quantize(amount, lt.BaseIncrement)
			if leg.BaseQty.GreaterThan(ev.BidQty) {
				return domain.Chain{}, false
			}
			leg.QuoteQty = domain.Quantize(leg.BaseQty.Mul(ev.BidPrice), lt.QuoteIncrement)
			amount = leg.QuoteQty
		case domain.DirectionAscending:
			if !ev.HasAsk() {
				return domain.Chain{}, false
			}
			leg.Price = ev.AskPrice
			leg.BaseQty = domain.Quantize(amount.Div(ev.AskPrice), lt.BaseIncrement)
			if leg.BaseQty.GreaterThan(ev.AskQty) {
				return domain.Chain{}, false
			}
			leg.QuoteQty = leg.BaseQty.Mul(ev.AskPrice)
			amount = leg.BaseQty
		default:
			return domain.Chain{}, false
		}

		if !leg.BaseQty.IsPositive() || !leg.QuoteQty.IsPositive() {
			return domain.Chain{}, false
		}
		legs = append(legs, leg)
	}
	return domain.NewChain(d.params.FeePercent, legs), true
}

// Stats returns the number of evaluations and of chains sent.
func (d *Detector) Stats() (evaluated, found uint64) {
	return d.evaluated.Load(), d.found.Load()
}
