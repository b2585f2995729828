package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionStatus is the outcome of executing one chain.
type ExecutionStatus string

const (
	ExecutionFilled  ExecutionStatus = "filled"
	ExecutionPartial ExecutionStatus = "partial"
	ExecutionFailed  ExecutionStatus = "failed"
)

// LegFill is the result of placing one leg.
type LegFill struct {
	Symbol    string
	Direction Direction
	OrderID   string
	Price     decimal.Decimal
	BaseQty   decimal.Decimal
	QuoteQty  decimal.Decimal
	Success   bool
	Error     string
}

// ChainExecution records one attempt at executing a detected chain.
type ChainExecution struct {
	ID              string
	ChainID         string
	Fingerprint     string
	FeePercent      decimal.Decimal
	ExpectedProfit  decimal.Decimal
	ExpectedPercent decimal.Decimal
	Fills           []LegFill
	Status          ExecutionStatus
	DetectedAt      time.Time
	StartedAt       time.Time
	CompletedAt     time.Time
}

// FilledLegs counts the legs that were placed successfully.
func (e ChainExecution) FilledLegs() int {
	n := 0
	for _, f := range e.Fills {
		if f.Success {
			n++
		}
	}
	return n
}
