// Package opportunity hands detected chains from the detection stage to the
// execution stage.
package opportunity

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Channel is a single-slot, latest-value handoff. Send never blocks and
// always replaces an unread chain; Recv takes the chain currently in the
// slot. A slow or absent reader therefore only ever sees the newest
// opportunity and earlier unread ones are dropped.
type Channel struct {
	mu     sync.Mutex
	slot   *domain.Chain
	notify chan struct{}

	sent       atomic.Uint64
	superseded atomic.Uint64
}

// New creates an empty Channel.
func New() *Channel {
	return &Channel{notify: make(chan struct{}, 1)}
}

// Send stores chain in the slot, replacing any unread chain.
func (c *Channel) Send(chain domain.Chain) {
	c.mu.Lock()
	if c.slot != nil {
		c.superseded.Add(1)
	}
	c.slot = &chain
	c.mu.Unlock()

	c.sent.Add(1)
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Recv blocks until a chain is available or ctx is done.
func (c *Channel) Recv(ctx context.Context) (domain.Chain, error) {
	for {
		if chain, ok := c.TryRecv(); ok {
			return chain, nil
		}
		select {
		case <-ctx.Done():
			return domain.Chain{}, ctx.Err()
		case <-c.notify:
		}
	}
}

// TryRecv takes the chain in the slot without blocking.
func (c *Channel) TryRecv() (domain.Chain, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slot == nil {
		return domain.Chain{}, false
	}
	chain := *c.slot
	c.slot = nil
	return chain, true
}

// Stats reports how many chains were sent and how many were overwritten
// before a reader took them.
func (c *Channel) Stats() (sent, superseded uint64) {
	return c.sent.Load(), c.superseded.Load()
}
