package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/engine"
)

func newTestDetector(t *testing.T) (*Detector, *engine.Runtime) {
	t.Helper()
	cfg := testConfig()
	rt := newRuntime(t, &cfg)
	templates, err := TemplatesFromConfig(cfg.Exchange)
	require.NoError(t, err)
	d := NewDetector(templates, rt.Cache, rt.Broadcast, rt.Opportunities, DetectorParams{
		FeePercent:       cfg.Exchange.FeePercent,
		MinProfitPercent: cfg.Exchange.MinProfitPercent,
		Capital:          cfg.Exchange.Capital,
	}, discardLogger())
	return d, rt
}

func load(rt *engine.Runtime, events ...domain.MarketEvent) {
	for _, ev := range events {
		rt.Cache.Update(ev)
	}
}

func TestDetector_EvaluateWalksTheCycle(t *testing.T) {
	d, rt := newTestDetector(t)
	load(rt, profitableBook()...)

	chain, ok := d.Evaluate(d.templates[0])
	require.True(t, ok)
	require.Len(t, chain.Legs, 3)
	require.NoError(t, chain.Validate())

	// Sell 1 BTC at 40000, buy 20 ETH at 2000, sell 20 ETH at 0.0505.
	want := []struct{ price, base, quote string }{
		{"40000", "1", "40000"},
		{"2000", "20", "40000"},
		{"0.0505", "20", "1.01"},
	}
	for i, w := range want {
		leg := chain.Legs[i]
		assert.True(t, leg.Price.Equal(decimal.RequireFromString(w.price)), "leg %d price %s", i, leg.Price)
		assert.True(t, leg.BaseQty.Equal(decimal.RequireFromString(w.base)), "leg %d base %s", i, leg.BaseQty)
		assert.True(t, leg.QuoteQty.Equal(decimal.RequireFromString(w.quote)), "leg %d quote %s", i, leg.QuoteQty)
	}

	profit, pct := chain.ComputeProfit()
	assert.Equal(t, "0.007", profit.String())
	assert.Equal(t, "0.7", pct.String())
}

func TestDetector_EvaluateRejects(t *testing.T) {
	t.Run("missing symbol", func(t *testing.T) {
		d, rt := newTestDetector(t)
		load(rt, profitableBook()[:2]...)
		_, ok := d.Evaluate(d.templates[0])
		assert.False(t, ok)
	})
	t.Run("thin touch", func(t *testing.T) {
		d, rt := newTestDetector(t)
		load(rt, profitableBook()...)
		load(rt, quote("BTCUSDT", 2, "40000", "0.5", "40001", "10"))
		_, ok := d.Evaluate(d.templates[0])
		assert.False(t, ok)
	})
	t.Run("no ask", func(t *testing.T) {
		d, rt := newTestDetector(t)
		load(rt, profitableBook()...)
		load(rt, quote("ETHUSDT", 2, "1999", "100", "0", "0"))
		_, ok := d.Evaluate(d.templates[0])
		assert.False(t, ok)
	})
	t.Run("rounds to zero", func(t *testing.T) {
		d, rt := newTestDetector(t)
		d.params.Capital = decimal.RequireFromString("0.000001")
		load(rt, profitableBook()...)
		_, ok := d.Evaluate(d.templates[0])
		assert.False(t, ok)
	})
}

func TestDetector_OnUpdateSendsOnlyProfitableChains(t *testing.T) {
	d, rt := newTestDetector(t)
	load(rt, profitableBook()...)
	load(rt, quote("ETHBTC", 2, "0.05", "100", "0.0506", "100"))

	d.OnUpdate("ETHBTC")
	_, ok := rt.Opportunities.TryRecv()
	assert.False(t, ok, "a losing chain is not sent")

	load(rt, quote("ETHBTC", 3, "0.0505", "100", "0.0506", "100"))
	d.OnUpdate("ETHBTC")
	chain, ok := rt.Opportunities.TryRecv()
	require.True(t, ok)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "ETHBTC"}, chain.Symbols())

	d.OnUpdate("DOGEUSDT")
	_, ok = rt.Opportunities.TryRecv()
	assert.False(t, ok, "unrelated symbols trigger nothing")

	evaluated, found := d.Stats()
	assert.Equal(t, uint64(2), evaluated)
	assert.Equal(t, uint64(1), found)
}

func TestDetector_RunReactsToBroadcast(t *testing.T) {
	d, rt := newTestDetector(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		return rt.Broadcast.Channel("ETHBTC").Subscribers() == 1
	}, 2*time.Second, 5*time.Millisecond)

	for _, ev := range profitableBook() {
		rt.Cache.Update(ev)
		rt.Broadcast.Publish(ev)
	}

	recvCtx, recvCancel := context.WithTimeout(ctx, 2*time.Second)
	defer recvCancel()
	chain, err := rt.Opportunities.Recv(recvCtx)
	require.NoError(t, err)
	assert.Len(t, chain.Legs, 3)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
