package domain

import (
	"context"
	"time"
)

// QuoteMirror copies applied market events into shared storage so other
// processes can read the latest quotes.
type QuoteMirror interface {
	SetQuote(ctx context.Context, ev MarketEvent) (bool, error)
	GetQuote(ctx context.Context, symbol string) (MarketEvent, error)
}

// SignalBus provides pub/sub messaging.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// ExecutionClaims arbitrates which sender replica executes a chain
// fingerprint. Claim returns ErrAlreadyExists while another holder has it.
type ExecutionClaims interface {
	Claim(ctx context.Context, fingerprint string, ttl time.Duration) (release func(), err error)
}
