package market

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Broadcast is a per-symbol single-value publish/subscribe hub. Each symbol
// has exactly one Topic, created on first use and kept for the life of the
// Broadcast. A Topic retains only the latest published event; subscribers
// are woken on every publish but may coalesce several publishes into one
// wake-up when they fall behind. Publishing never blocks on subscribers.
type Broadcast struct {
	topics sync.Map // symbol -> *Topic
	logger *slog.Logger
}

// NewBroadcast creates an empty Broadcast.
func NewBroadcast(logger *slog.Logger) *Broadcast {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcast{
		logger: logger.With(slog.String("component", "market_broadcast")),
	}
}

// Channel returns the Topic for symbol, creating it if needed. Repeated
// calls return the same Topic.
func (b *Broadcast) Channel(symbol string) *Topic {
	if t, ok := b.topics.Load(symbol); ok {
		return t.(*Topic)
	}
	t, _ := b.topics.LoadOrStore(symbol, newTopic(symbol))
	return t.(*Topic)
}

// Publish stores ev as the current value of its symbol's Topic and wakes all
// subscribers. An event whose sequence is not newer than the stored one is
// dropped, so concurrent producers cannot move a Topic backwards. Publishing
// to a Topic without subscribers succeeds; the value is kept for later
// subscribers.
func (b *Broadcast) Publish(ev domain.MarketEvent) {
	t := b.Channel(ev.Symbol)
	n, ok := t.publish(ev)
	if !ok {
		b.logger.Debug("dropped stale publish",
			slog.String("symbol", ev.Symbol),
			slog.Uint64("sequence", ev.Sequence),
		)
		return
	}
	if n == 0 {
		b.logger.Debug("published without subscribers",
			slog.String("symbol", ev.Symbol),
			slog.Uint64("sequence", ev.Sequence),
		)
	}
}

// Subscribe attaches a new subscriber to symbol's Topic.
func (b *Broadcast) Subscribe(symbol string) *Subscription {
	return b.Channel(symbol).Subscribe()
}

// Topic is the single channel of one symbol.
type Topic struct {
	symbol string

	mu    sync.RWMutex
	value domain.MarketEvent
	set   bool
	subs  map[*Subscription]struct{}
}

func newTopic(symbol string) *Topic {
	return &Topic{
		symbol: symbol,
		subs:   make(map[*Subscription]struct{}),
	}
}

// Symbol returns the symbol the topic belongs to.
func (t *Topic) Symbol() string {
	return t.symbol
}

// Value returns the latest published event, or the zero event and false if
// nothing has been published yet.
func (t *Topic) Value() (domain.MarketEvent, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.value, t.set
}

// Subscribers returns the number of attached subscribers.
func (t *Topic) Subscribers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Subscribe attaches a new subscriber. The subscriber sees the current value
// immediately through Value and is notified of every later publish.
func (t *Topic) Subscribe() *Subscription {
	s := &Subscription{
		topic:  t,
		notify: make(chan struct{}, 1),
	}
	t.mu.Lock()
	t.subs[s] = struct{}{}
	t.mu.Unlock()
	return s
}

func (t *Topic) publish(ev domain.MarketEvent) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.set && !ev.Newer(t.value) {
		return len(t.subs), false
	}
	t.value = ev
	t.set = true
	for s := range t.subs {
		select {
		case s.notify <- struct{}{}:
		default:
			// A wake-up is already pending; the subscriber will read the
			// latest value when it gets to it.
		}
	}
	return len(t.subs), true
}

func (t *Topic) unsubscribe(s *Subscription) {
	t.mu.Lock()
	delete(t.subs, s)
	t.mu.Unlock()
}

// Subscription is one reader attached to a Topic.
type Subscription struct {
	topic     *Topic
	notify    chan struct{}
	closeOnce sync.Once
}

// Symbol returns the subscribed symbol.
func (s *Subscription) Symbol() string {
	return s.topic.symbol
}

// Value returns the topic's latest event.
func (s *Subscription) Value() (domain.MarketEvent, bool) {
	return s.topic.Value()
}

// Changed is signalled after each publish. Several publishes between two
// receives collapse into a single signal.
func (s *Subscription) Changed() <-chan struct{} {
	return s.notify
}

// Next blocks until the next publish and returns the latest value.
func (s *Subscription) Next(ctx context.Context) (domain.MarketEvent, error) {
	select {
	case <-ctx.Done():
		return domain.MarketEvent{}, ctx.Err()
	case <-s.notify:
		ev, _ := s.topic.Value()
		return ev, nil
	}
}

// Close detaches the subscriber. It is safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.topic.unsubscribe(s)
	})
}
