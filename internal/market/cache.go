// Package market holds the live per-symbol market state: a latest-wins
// snapshot cache and a push-style broadcast over the same events.
package market

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Cache stores the latest MarketEvent per symbol. Each symbol's entry is an
// atomically swapped immutable snapshot, so independent symbols never
// contend and readers never block writers.
//
// For a given symbol the stored Sequence never decreases: an update whose
// sequence is not strictly greater than the stored one is dropped.
type Cache struct {
	entries sync.Map // symbol -> *atomic.Pointer[domain.MarketEvent]
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

func (c *Cache) slot(symbol string) *atomic.Pointer[domain.MarketEvent] {
	if p, ok := c.entries.Load(symbol); ok {
		return p.(*atomic.Pointer[domain.MarketEvent])
	}
	p, _ := c.entries.LoadOrStore(symbol, new(atomic.Pointer[domain.MarketEvent]))
	return p.(*atomic.Pointer[domain.MarketEvent])
}

// Update applies ev if it is newer than the stored event for its symbol and
// reports whether it was applied. A symbol without an entry accepts any
// sequence.
func (c *Cache) Update(ev domain.MarketEvent) bool {
	p := c.slot(ev.Symbol)
	next := &ev
	for {
		cur := p.Load()
		if cur != nil && !ev.Newer(*cur) {
			return false
		}
		if p.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// Get returns a copy of the latest event for symbol.
func (c *Cache) Get(symbol string) (domain.MarketEvent, bool) {
	p, ok := c.entries.Load(symbol)
	if !ok {
		return domain.MarketEvent{}, false
	}
	ev := p.(*atomic.Pointer[domain.MarketEvent]).Load()
	if ev == nil {
		return domain.MarketEvent{}, false
	}
	return *ev, true
}

// Symbols returns the symbols holding an event, sorted.
func (c *Cache) Symbols() []string {
	var out []string
	c.entries.Range(func(k, v any) bool {
		if v.(*atomic.Pointer[domain.MarketEvent]).Load() != nil {
			out = append(out, k.(string))
		}
		return true
	})
	sort.Strings(out)
	return out
}

// Len returns the number of symbols holding an event.
func (c *Cache) Len() int {
	return len(c.Symbols())
}
