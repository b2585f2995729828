package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

const (
	// handshakeTimeout bounds the websocket dial.
	handshakeTimeout = 15 * time.Second

	// readTimeout is how long the feed waits for any frame before treating
	// the connection as dead. The venue pings well within this window.
	readTimeout = 60 * time.Second

	// writeWait is the time allowed to write a control frame.
	writeWait = 10 * time.Second
)

// EventHandler receives every market event a source produces.
type EventHandler func(domain.MarketEvent)

// bookTicker is the best bid/ask message of the book ticker stream.
type bookTicker struct {
	UpdateID uint64          `json:"u"`
	Symbol   string          `json:"s"`
	BidPrice decimal.Decimal `json:"b"`
	BidQty   decimal.Decimal `json:"B"`
	AskPrice decimal.Decimal `json:"a"`
	AskQty   decimal.Decimal `json:"A"`
}

// streamEnvelope wraps messages on combined stream connections.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// parseBookTicker decodes a raw or combined-stream book ticker message.
// Subscription acks and other non-ticker frames report false.
func parseBookTicker(raw []byte, now time.Time) (domain.MarketEvent, bool) {
	var env streamEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		raw = env.Data
	}
	var bt bookTicker
	if err := json.Unmarshal(raw, &bt); err != nil {
		return domain.MarketEvent{}, false
	}
	if bt.Symbol == "" || bt.UpdateID == 0 {
		return domain.MarketEvent{}, false
	}
	return domain.MarketEvent{
		Sequence:   bt.UpdateID,
		Symbol:     strings.ToUpper(bt.Symbol),
		BidPrice:   bt.BidPrice,
		BidQty:     bt.BidQty,
		AskPrice:   bt.AskPrice,
		AskQty:     bt.AskQty,
		Source:     "ws",
		ReceivedAt: now,
	}, true
}

// streamURL builds the combined stream URL for symbols.
func streamURL(base string, symbols []string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("exchange/feed: parse ws url: %w", err)
	}
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = strings.ToLower(s) + "@bookTicker"
	}
	// The venue expects the stream list unescaped.
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

// BookTickerFeed streams best bid/ask updates for a fixed set of symbols
// over one websocket connection. It does not reconnect on its own: a
// dropped connection ends Run with an error and the owning supervisor
// restarts the exchange role.
type BookTickerFeed struct {
	wsURL   string
	symbols []string
	onEvent EventHandler
	logger  *slog.Logger

	received atomic.Uint64
	dropped  atomic.Uint64
}

// NewBookTickerFeed creates a feed for symbols.
func NewBookTickerFeed(wsURL string, symbols []string, onEvent EventHandler, logger *slog.Logger) *BookTickerFeed {
	return &BookTickerFeed{
		wsURL:   wsURL,
		symbols: symbols,
		onEvent: onEvent,
		logger:  logger.With(slog.String("component", "book_ticker_feed")),
	}
}

// Run connects and dispatches messages until ctx is cancelled or the
// connection fails.
func (f *BookTickerFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to subscribe, exiting")
		<-ctx.Done()
		return ctx.Err()
	}
	u, err := streamURL(f.wsURL, f.symbols)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("exchange/feed: connect: %w", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	// Closing the connection unblocks ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = conn.Close()
	})
	defer stop()

	f.logger.Info("feed connected", slog.Int("symbols", len(f.symbols)))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("exchange/feed: %w: %w", domain.ErrWSDisconnect, err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		ev, ok := parseBookTicker(msg, time.Now().UTC())
		if !ok {
			f.dropped.Add(1)
			continue
		}
		f.received.Add(1)
		f.onEvent(ev)
	}
}

// Stats returns the number of dispatched and ignored messages.
func (f *BookTickerFeed) Stats() (received, dropped uint64) {
	return f.received.Load(), f.dropped.Load()
}
