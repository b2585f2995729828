package exchange

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Mirror copies applied market events into an external QuoteMirror. Events
// are coalesced per symbol so that a slow mirror never holds up the feed:
// only the newest pending event of each symbol is written.
type Mirror struct {
	target domain.QuoteMirror
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]domain.MarketEvent
	wake    chan struct{}

	written atomic.Uint64
	failed  atomic.Uint64
}

// NewMirror creates a mirror writing to target.
func NewMirror(target domain.QuoteMirror, logger *slog.Logger) *Mirror {
	return &Mirror{
		target:  target,
		logger:  logger.With(slog.String("component", "quote_mirror")),
		pending: make(map[string]domain.MarketEvent),
		wake:    make(chan struct{}, 1),
	}
}

// Enqueue schedules ev for writing. It never blocks.
func (m *Mirror) Enqueue(ev domain.MarketEvent) {
	m.mu.Lock()
	if cur, ok := m.pending[ev.Symbol]; !ok || ev.Newer(cur) {
		m.pending[ev.Symbol] = ev
	}
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run writes pending events until ctx is done.
func (m *Mirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.wake:
			m.Flush(ctx)
		}
	}
}

// Flush writes every pending event once. Write errors are logged and the
// event is dropped; the next update of the symbol supersedes it anyway.
func (m *Mirror) Flush(ctx context.Context) {
	m.mu.Lock()
	batch := m.pending
	m.pending = make(map[string]domain.MarketEvent, len(batch))
	m.mu.Unlock()

	for _, ev := range batch {
		if _, err := m.target.SetQuote(ctx, ev); err != nil {
			m.failed.Add(1)
			m.logger.WarnContext(ctx, "mirror write failed",
				slog.String("symbol", ev.Symbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		m.written.Add(1)
	}
}

// Warm reads the mirrored quote of each symbol and passes those received
// within maxAge to seed, so a restarted role starts from the last known book
// and sequence. It returns how many quotes were seeded.
func (m *Mirror) Warm(ctx context.Context, symbols []string, maxAge time.Duration, seed func(domain.MarketEvent)) int {
	seeded := 0
	for _, sym := range symbols {
		ev, err := m.target.GetQuote(ctx, sym)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			m.logger.WarnContext(ctx, "mirror read failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			continue
		}
		if maxAge > 0 && time.Since(ev.ReceivedAt) > maxAge {
			continue
		}
		seed(ev)
		seeded++
	}
	return seeded
}

// Stats returns written and failed counts.
func (m *Mirror) Stats() (written, failed uint64) {
	return m.written.Load(), m.failed.Load()
}
