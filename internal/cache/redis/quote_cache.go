package redis

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

//go:embed scripts/quote_set.lua
var quoteSetLua string

// QuoteCache implements domain.QuoteMirror with one Redis hash per symbol.
//
// Key schema:
//
//	{prefix}:quote:{symbol} - hash with fields seq, bid, bid_qty, ask,
//	                          ask_qty, source, ts (unix nanos)
//
// Writes go through an atomic Lua script so that concurrent writers, or a
// writer replaying old events, can never move a symbol's sequence backwards.
type QuoteCache struct {
	c        *Client
	quoteSet *redis.Script
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{c: c, quoteSet: redis.NewScript(quoteSetLua)}
}

func (qc *QuoteCache) quoteKey(symbol string) string {
	return qc.c.Key("quote", symbol)
}

// SetQuote stores ev when its sequence is newer than the stored one and
// reports whether it was written.
func (qc *QuoteCache) SetQuote(ctx context.Context, ev domain.MarketEvent) (bool, error) {
	n, err := qc.quoteSet.Run(ctx, qc.c.Underlying(), []string{qc.quoteKey(ev.Symbol)},
		strconv.FormatUint(ev.Sequence, 10),
		ev.BidPrice.String(), ev.BidQty.String(),
		ev.AskPrice.String(), ev.AskQty.String(),
		ev.Source,
		strconv.FormatInt(ev.ReceivedAt.UnixNano(), 10),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis: set quote %s: %w", ev.Symbol, err)
	}
	return n == 1, nil
}

// GetQuote returns the stored quote for symbol, or domain.ErrNotFound.
func (qc *QuoteCache) GetQuote(ctx context.Context, symbol string) (domain.MarketEvent, error) {
	vals, err := qc.c.Underlying().HGetAll(ctx, qc.quoteKey(symbol)).Result()
	if err != nil {
		return domain.MarketEvent{}, fmt.Errorf("redis: get quote %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return domain.MarketEvent{}, domain.ErrNotFound
	}

	ev := domain.MarketEvent{Symbol: symbol, Source: vals["source"]}
	if ev.Sequence, err = strconv.ParseUint(vals["seq"], 10, 64); err != nil {
		return domain.MarketEvent{}, fmt.Errorf("redis: parse seq %s: %w", symbol, err)
	}
	for field, dst := range map[string]*decimal.Decimal{
		"bid":     &ev.BidPrice,
		"bid_qty": &ev.BidQty,
		"ask":     &ev.AskPrice,
		"ask_qty": &ev.AskQty,
	} {
		if *dst, err = decimal.NewFromString(vals[field]); err != nil {
			return domain.MarketEvent{}, fmt.Errorf("redis: parse %s %s: %w", field, symbol, err)
		}
	}
	ts, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.MarketEvent{}, fmt.Errorf("redis: parse ts %s: %w", symbol, err)
	}
	ev.ReceivedAt = time.Unix(0, ts).UTC()
	return ev, nil
}

// Compile-time interface check.
var _ domain.QuoteMirror = (*QuoteCache)(nil)
