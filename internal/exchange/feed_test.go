package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

const tickerFrame = `{"u":400900217,"s":"BNBUSDT","b":"25.35190000","B":"31.21000000","a":"25.36520000","A":"40.66000000"}`

func TestParseBookTicker(t *testing.T) {
	now := time.Now().UTC()

	ev, ok := parseBookTicker([]byte(tickerFrame), now)
	require.True(t, ok)
	assert.Equal(t, uint64(400900217), ev.Sequence)
	assert.Equal(t, "BNBUSDT", ev.Symbol)
	assert.Equal(t, "25.3519", ev.BidPrice.String())
	assert.Equal(t, "40.66", ev.AskQty.String())
	assert.Equal(t, "ws", ev.Source)
	assert.Equal(t, now, ev.ReceivedAt)

	wrapped := `{"stream":"bnbusdt@bookTicker","data":` + tickerFrame + `}`
	ev2, ok := parseBookTicker([]byte(wrapped), now)
	require.True(t, ok)
	assert.Equal(t, ev, ev2)

	_, ok = parseBookTicker([]byte(`{"result":null,"id":1}`), now)
	assert.False(t, ok)
	_, ok = parseBookTicker([]byte(`not json`), now)
	assert.False(t, ok)
	_, ok = parseBookTicker([]byte(`{"u":1,"s":"X","b":"abc"}`), now)
	assert.False(t, ok)
}

func TestStreamURL(t *testing.T) {
	u, err := streamURL("wss://stream.example.com:9443/stream", []string{"BTCUSDT", "ethbtc"})
	require.NoError(t, err)
	assert.Equal(t, "wss://stream.example.com:9443/stream?streams=btcusdt@bookTicker/ethbtc@bookTicker", u)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
}

func TestBookTickerFeed_DispatchesUntilDisconnect(t *testing.T) {
	query := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query <- r.URL.RawQuery
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"result":null,"id":1}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"bnbusdt@bookTicker","data":`+tickerFrame+`}`))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "maintenance"))
	}))
	defer srv.Close()

	var (
		mu     sync.Mutex
		events []domain.MarketEvent
	)
	feed := NewBookTickerFeed(wsURL(srv), []string{"BNBUSDT"}, func(ev domain.MarketEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}, discardLogger())

	err := feed.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrWSDisconnect)
	assert.Equal(t, "streams=bnbusdt@bookTicker", <-query)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, "BNBUSDT", events[0].Symbol)

	received, dropped := feed.Stats()
	assert.Equal(t, uint64(1), received)
	assert.Equal(t, uint64(1), dropped)
}

func TestBookTickerFeed_StopsOnCancel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	feed := NewBookTickerFeed(wsURL(srv), []string{"BTCUSDT"}, func(domain.MarketEvent) {}, discardLogger())
	go func() { done <- feed.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop")
	}
}

func TestBookTickerFeed_DialFailure(t *testing.T) {
	feed := NewBookTickerFeed("ws://127.0.0.1:1/stream", []string{"BTCUSDT"}, func(domain.MarketEvent) {}, discardLogger())
	err := feed.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exchange/feed: connect")
}
