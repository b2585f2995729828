package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction records whether a leg buys or sells the base asset of its symbol.
type Direction string

const (
	// DirectionAscending buys the base asset, paying quote at the ask.
	DirectionAscending Direction = "ascending"
	// DirectionDescending sells the base asset, receiving quote at the bid.
	DirectionDescending Direction = "descending"
)

// ParseDirection parses a config value into a Direction.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case DirectionAscending:
		return DirectionAscending, nil
	case DirectionDescending:
		return DirectionDescending, nil
	default:
		return "", fmt.Errorf("%w: direction %q", ErrInvalidChain, s)
	}
}

const (
	moneyPlaces   = 8
	percentPlaces = 2
)

var hundred = decimal.NewFromInt(100)

// ChainLeg is one trade of a cycle.
type ChainLeg struct {
	Symbol         string
	Direction      Direction
	Price          decimal.Decimal
	BaseQty        decimal.Decimal
	QuoteQty       decimal.Decimal
	BaseIncrement  decimal.Decimal
	QuoteIncrement decimal.Decimal
}

// Chain is a closed sequence of legs that starts and ends in the same asset.
// The output of leg i is the input of leg i+1.
type Chain struct {
	ID         string
	CreatedAt  time.Time
	FeePercent decimal.Decimal
	Legs       []ChainLeg
}

// NewChain stamps a new chain with a fresh id and creation time.
func NewChain(feePercent decimal.Decimal, legs []ChainLeg) Chain {
	return Chain{
		ID:         uuid.New().String(),
		CreatedAt:  time.Now().UTC(),
		FeePercent: feePercent,
		Legs:       legs,
	}
}

// ComputeProfit returns the fee-adjusted profit of the chain and that profit
// as a percentage of the committed input.
//
// The input is the first leg's base quantity and the output is the last
// leg's quote quantity. The fee is a linear approximation: fee_percent is
// charged once per leg against the original input, not compounded over the
// converted amounts. Amounts are rounded to 8 places and the percentage to
// 2, halves away from zero.
func (c Chain) ComputeProfit() (profit, profitPercent decimal.Decimal) {
	if len(c.Legs) == 0 {
		return decimal.Zero, decimal.Zero
	}

	input := c.Legs[0].BaseQty
	output := c.Legs[len(c.Legs)-1].QuoteQty

	fee := decimal.NewFromInt(int64(len(c.Legs))).
		Mul(input).
		Mul(c.FeePercent.Div(hundred)).
		Round(moneyPlaces)

	profit = output.Sub(input).Sub(fee).Round(moneyPlaces)

	if input.IsZero() {
		return profit, decimal.Zero
	}
	profitPercent = profit.Mul(hundred).DivRound(input, percentPlaces)
	return profit, profitPercent
}

// Validate checks the structural rules a chain must satisfy before its
// profit is meaningful: at least two legs, known directions, a first leg
// that commits base and a last leg that returns quote.
func (c Chain) Validate() error {
	if len(c.Legs) < 2 {
		return fmt.Errorf("%w: need at least 2 legs, got %d", ErrInvalidChain, len(c.Legs))
	}
	for i, leg := range c.Legs {
		if strings.TrimSpace(leg.Symbol) == "" {
			return fmt.Errorf("%w: leg %d has empty symbol", ErrInvalidChain, i)
		}
		if leg.Direction != DirectionAscending && leg.Direction != DirectionDescending {
			return fmt.Errorf("%w: leg %d has direction %q", ErrInvalidChain, i, leg.Direction)
		}
	}
	if c.Legs[0].Direction != DirectionDescending {
		return fmt.Errorf("%w: first leg %s must sell its base asset", ErrInvalidChain, c.Legs[0].Symbol)
	}
	last := c.Legs[len(c.Legs)-1]
	if last.Direction != DirectionDescending {
		return fmt.Errorf("%w: last leg %s must return quote", ErrInvalidChain, last.Symbol)
	}
	return nil
}

// Symbols returns the leg symbols in order.
func (c Chain) Symbols() []string {
	out := make([]string, len(c.Legs))
	for i, leg := range c.Legs {
		out[i] = leg.Symbol
	}
	return out
}

// Fingerprint identifies the market situation a chain was built from. Two
// detections over the same prices share a fingerprint even though their ids
// differ.
func (c Chain) Fingerprint() string {
	var b strings.Builder
	for i, leg := range c.Legs {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(leg.Symbol)
		b.WriteByte(':')
		b.WriteString(string(leg.Direction))
		b.WriteByte('@')
		b.WriteString(leg.Price.String())
	}
	return b.String()
}

// Quantize truncates qty down to a whole multiple of increment. A zero or
// negative increment leaves qty unchanged.
func Quantize(qty, increment decimal.Decimal) decimal.Decimal {
	if !increment.IsPositive() {
		return qty
	}
	return qty.Div(increment).Floor().Mul(increment)
}
