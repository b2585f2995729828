package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr(), PoolSize: 4, KeyPrefix: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func quote(seq uint64, bid string) domain.MarketEvent {
	return domain.MarketEvent{
		Sequence:   seq,
		Symbol:     "BTCUSDT",
		BidPrice:   decimal.RequireFromString(bid),
		BidQty:     decimal.RequireFromString("1.5"),
		AskPrice:   decimal.RequireFromString(bid).Add(decimal.NewFromInt(1)),
		AskQty:     decimal.RequireFromString("2"),
		Source:     "ws",
		ReceivedAt: time.Unix(1700000000, 123).UTC(),
	}
}

func TestClient_Key(t *testing.T) {
	c, _ := newTestClient(t)
	assert.Equal(t, "test:quote:BTCUSDT", c.Key("quote", "BTCUSDT"))
	assert.NoError(t, c.Ping(context.Background()))

	bare := &Client{}
	assert.Equal(t, "quote:BTCUSDT", bare.Key("quote", "BTCUSDT"))
}

func TestQuoteCache_SequenceGuard(t *testing.T) {
	c, mr := newTestClient(t)
	qc := NewQuoteCache(c)
	ctx := context.Background()

	_, err := qc.GetQuote(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	ok, err := qc.SetQuote(ctx, quote(10, "100"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = qc.SetQuote(ctx, quote(9, "90"))
	require.NoError(t, err)
	assert.False(t, ok, "older sequence rejected")

	ok, err = qc.SetQuote(ctx, quote(10, "95"))
	require.NoError(t, err)
	assert.False(t, ok, "equal sequence rejected")

	got, err := qc.GetQuote(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got.Sequence)
	assert.True(t, got.BidPrice.Equal(decimal.NewFromInt(100)))
	assert.True(t, got.AskQty.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, "ws", got.Source)
	assert.Equal(t, time.Unix(1700000000, 123).UTC(), got.ReceivedAt)

	ok, err = qc.SetQuote(ctx, quote(11, "101"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "11", mr.HGet("test:quote:BTCUSDT", "seq"))
}

func TestQuoteCache_SequenceGuardBeyondFloatPrecision(t *testing.T) {
	c, mr := newTestClient(t)
	qc := NewQuoteCache(c)
	ctx := context.Background()

	const base = uint64(1) << 53 // 9007199254740992

	ok, err := qc.SetQuote(ctx, quote(base, "100"))
	require.NoError(t, err)
	require.True(t, ok)

	// base+1 rounds to base as a double.
	ok, err = qc.SetQuote(ctx, quote(base+1, "101"))
	require.NoError(t, err)
	assert.True(t, ok, "next sequence above 2^53 accepted")
	assert.Equal(t, "9007199254740993", mr.HGet("test:quote:BTCUSDT", "seq"))

	ok, err = qc.SetQuote(ctx, quote(base, "99"))
	require.NoError(t, err)
	assert.False(t, ok, "older sequence above 2^53 rejected")

	ok, err = qc.SetQuote(ctx, quote(^uint64(0), "102"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = qc.SetQuote(ctx, quote(^uint64(0)-1, "98"))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := qc.GetQuote(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, ^uint64(0), got.Sequence)
}

func TestSignalBus_PublishSubscribe(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, "test:executions")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "test:executions", []byte(`{"id":"x"}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"id":"x"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestExecutionClaims(t *testing.T) {
	c, mr := newTestClient(t)
	claims := NewExecutionClaims(c)
	ctx := context.Background()

	release, err := claims.Claim(ctx, "fp-1", time.Minute)
	require.NoError(t, err)

	_, err = claims.Claim(ctx, "fp-1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	release()
	release()
	assert.False(t, mr.Exists("test:claim:fp-1"))

	_, err = claims.Claim(ctx, "fp-1", time.Minute)
	assert.NoError(t, err)
}

func TestExecutionClaims_ReleaseKeepsForeignClaim(t *testing.T) {
	c, mr := newTestClient(t)
	claims := NewExecutionClaims(c)
	ctx := context.Background()

	release, err := claims.Claim(ctx, "fp-2", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	_, err = claims.Claim(ctx, "fp-2", time.Minute)
	require.NoError(t, err, "expired claim can be retaken")

	release()
	assert.True(t, mr.Exists("test:claim:fp-2"), "stale holder must not delete the new claim")
}
