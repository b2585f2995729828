package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/registry"
)

// UpdateReader delivers raw chain-data updates.
type UpdateReader interface {
	Consume(ctx context.Context, handler func(context.Context, registry.RawUpdate) error, onInvalid func(error)) error
	Close() error
}

// PoolSource decodes chain-data updates through the registry. Pool accounts
// mapped to a symbol become market events sequenced by slot; decoded
// instructions are only counted.
type PoolSource struct {
	open     func() UpdateReader
	registry *registry.Registry
	pools    map[registry.Pubkey]string
	onEvent  EventHandler
	logger   *slog.Logger

	decoded atomic.Uint64
	unknown atomic.Uint64
	invalid atomic.Uint64

	mu           sync.Mutex
	instructions map[string]uint64
}

// NewPoolSource creates a pool source. open is called on every Run so that a
// restarted role gets a fresh reader.
func NewPoolSource(open func() UpdateReader, reg *registry.Registry, pools map[registry.Pubkey]string, onEvent EventHandler, logger *slog.Logger) *PoolSource {
	return &PoolSource{
		open:         open,
		registry:     reg,
		pools:        pools,
		onEvent:      onEvent,
		logger:       logger.With(slog.String("component", "pool_source")),
		instructions: make(map[string]uint64),
	}
}

// PoolsFromConfig parses the address -> symbol map of chaindata.pools.
func PoolsFromConfig(pools map[string]string) (map[registry.Pubkey]string, error) {
	out := make(map[registry.Pubkey]string, len(pools))
	for addr, symbol := range pools {
		key, err := registry.ParsePubkey(addr)
		if err != nil {
			return nil, fmt.Errorf("%w: chaindata.pools: %w", domain.ErrInvalidConfig, err)
		}
		out[key] = strings.ToUpper(symbol)
	}
	return out, nil
}

// Run consumes updates until ctx is done or the reader fails.
func (p *PoolSource) Run(ctx context.Context) error {
	reader := p.open()
	defer reader.Close()

	p.logger.Info("pool source started", slog.Int("pools", len(p.pools)))
	return reader.Consume(ctx, p.Handle, func(err error) {
		p.invalid.Add(1)
		p.logger.Debug("chain-data record skipped", slog.String("error", err.Error()))
	})
}

// Handle decodes one update. Unknown or malformed buffers are counted and
// ignored; Handle never fails.
func (p *PoolSource) Handle(_ context.Context, u registry.RawUpdate) error {
	item, v, ok := p.registry.DecodeUpdate(u)
	if !ok {
		p.unknown.Add(1)
		return nil
	}
	p.decoded.Add(1)

	if u.Kind == registry.KindInstruction {
		p.mu.Lock()
		p.instructions[item.Name()]++
		p.mu.Unlock()
		return nil
	}

	symbol, ok := p.pools[u.Address]
	if !ok {
		return nil
	}
	pool, ok := v.(registry.PoolState)
	if !ok {
		return nil
	}
	price, ok := pool.Price()
	if !ok {
		return nil
	}
	base, _ := pool.Depth()
	p.onEvent(domain.MarketEvent{
		Sequence:   u.Slot,
		Symbol:     symbol,
		BidPrice:   price,
		BidQty:     base,
		AskPrice:   price,
		AskQty:     base,
		Source:     "chain",
		ReceivedAt: time.Now().UTC(),
	})
	return nil
}

// Stats returns decoded, undecodable and invalid record counts.
func (p *PoolSource) Stats() (decoded, unknown, invalid uint64) {
	return p.decoded.Load(), p.unknown.Load(), p.invalid.Load()
}

// Instructions returns decoded instruction counts by parser name.
func (p *PoolSource) Instructions() map[string]uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.instructions)
}
