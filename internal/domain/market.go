package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketEvent is the top-of-book state of one symbol as reported by a feed.
// Events for the same symbol are ordered by Sequence only; arrival time and
// ReceivedAt carry no ordering meaning because feeds reconnect and redeliver.
type MarketEvent struct {
	Sequence   uint64
	Symbol     string
	BidPrice   decimal.Decimal
	BidQty     decimal.Decimal
	AskPrice   decimal.Decimal
	AskQty     decimal.Decimal
	Source     string // "ws", "rest", "chain"
	ReceivedAt time.Time
}

// HasBid reports whether the event carries a usable bid.
func (e MarketEvent) HasBid() bool {
	return e.BidPrice.IsPositive()
}

// HasAsk reports whether the event carries a usable ask.
func (e MarketEvent) HasAsk() bool {
	return e.AskPrice.IsPositive()
}

// Mid returns the midpoint of bid and ask, or zero when either side is
// missing.
func (e MarketEvent) Mid() decimal.Decimal {
	if !e.HasBid() || !e.HasAsk() {
		return decimal.Zero
	}
	return e.BidPrice.Add(e.AskPrice).Div(decimal.NewFromInt(2))
}

// Newer reports whether e should replace prev under the latest-wins rule.
func (e MarketEvent) Newer(prev MarketEvent) bool {
	return e.Sequence > prev.Sequence
}
