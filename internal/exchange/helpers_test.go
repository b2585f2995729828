package exchange

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/engine"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func marketCfg(symbol, baseInc, quoteInc string) config.MarketConfig {
	return config.MarketConfig{
		Symbol:         symbol,
		BaseIncrement:  decimal.RequireFromString(baseInc),
		QuoteIncrement: decimal.RequireFromString(quoteInc),
	}
}

// testConfig is a BTC -> USDT -> ETH -> BTC cycle with no network endpoints.
func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.Exchange.WsURL = ""
	cfg.Exchange.RestURL = ""
	cfg.Exchange.FeePercent = decimal.RequireFromString("0.1")
	cfg.Exchange.MinProfitPercent = decimal.RequireFromString("0.1")
	cfg.Exchange.Capital = decimal.NewFromInt(1)
	cfg.Exchange.Markets = []config.MarketConfig{
		marketCfg("BTCUSDT", "0.00001", "0.01"),
		marketCfg("ETHUSDT", "0.0001", "0.01"),
		marketCfg("ETHBTC", "0.0001", "0.000001"),
	}
	cfg.Exchange.Chains = []config.ChainConfig{{
		Name: "btc-eth",
		Legs: []config.LegConfig{
			{Symbol: "BTCUSDT", Direction: "descending"},
			{Symbol: "ETHUSDT", Direction: "ascending"},
			{Symbol: "ETHBTC", Direction: "descending"},
		},
	}}
	return cfg
}

func newRuntime(t *testing.T, cfg *config.Config) *engine.Runtime {
	t.Helper()
	rt, err := engine.New(cfg, discardLogger())
	require.NoError(t, err)
	return rt
}

func quote(symbol string, seq uint64, bid, bidQty, ask, askQty string) domain.MarketEvent {
	return domain.MarketEvent{
		Sequence:   seq,
		Symbol:     symbol,
		BidPrice:   decimal.RequireFromString(bid),
		BidQty:     decimal.RequireFromString(bidQty),
		AskPrice:   decimal.RequireFromString(ask),
		AskQty:     decimal.RequireFromString(askQty),
		Source:     "test",
		ReceivedAt: time.Now().UTC(),
	}
}

// profitableBook prices the test cycle at +0.7% before fees of 0.3%.
func profitableBook() []domain.MarketEvent {
	return []domain.MarketEvent{
		quote("BTCUSDT", 1, "40000", "10", "40001", "10"),
		quote("ETHUSDT", 1, "1999", "100", "2000", "100"),
		quote("ETHBTC", 1, "0.0505", "100", "0.0506", "100"),
	}
}
