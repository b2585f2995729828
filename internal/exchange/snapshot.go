package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/ratelimit"
)

// Depth is an order book snapshot from the REST depth endpoint. Levels are
// [price, qty] pairs, best first.
type Depth struct {
	LastUpdateID uint64               `json:"lastUpdateId"`
	Bids         [][2]decimal.Decimal `json:"bids"`
	Asks         [][2]decimal.Decimal `json:"asks"`
}

// Event converts the top of the snapshot into a MarketEvent. The snapshot's
// lastUpdateId shares the stream's sequence space, so a snapshot older than
// the cached stream state is dropped by the cache.
func (d Depth) Event(symbol string, now time.Time) (domain.MarketEvent, bool) {
	if d.LastUpdateID == 0 || (len(d.Bids) == 0 && len(d.Asks) == 0) {
		return domain.MarketEvent{}, false
	}
	ev := domain.MarketEvent{
		Sequence:   d.LastUpdateID,
		Symbol:     strings.ToUpper(symbol),
		Source:     "rest",
		ReceivedAt: now,
	}
	if len(d.Bids) > 0 {
		ev.BidPrice, ev.BidQty = d.Bids[0][0], d.Bids[0][1]
	}
	if len(d.Asks) > 0 {
		ev.AskPrice, ev.AskQty = d.Asks[0][0], d.Asks[0][1]
	}
	return ev, true
}

// RestClient is the public market-data REST client.
type RestClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRestClient creates a client for baseURL, e.g. "https://api.binance.com".
func NewRestClient(baseURL string) *RestClient {
	return &RestClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Depth fetches the order book for symbol, limited to limit levels a side.
func (c *RestClient) Depth(ctx context.Context, symbol string, limit int) (Depth, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.doGet(ctx, "/api/v3/depth?"+params.Encode())
	if err != nil {
		return Depth{}, fmt.Errorf("exchange/rest: depth %s: %w", symbol, err)
	}
	var d Depth
	if err := json.Unmarshal(body, &d); err != nil {
		return Depth{}, fmt.Errorf("exchange/rest: decode depth %s: %w", symbol, err)
	}
	return d, nil
}

func (c *RestClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusTooManyRequests, http.StatusTeapot:
		// 418 is the venue's ban response after ignoring 429s.
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

// DepthSource fetches depth snapshots.
type DepthSource interface {
	Depth(ctx context.Context, symbol string, limit int) (Depth, error)
}

// SnapshotPoller periodically refreshes every symbol from REST snapshots.
// Each request reserves its weight from the shared limiter first; when the
// quota is exhausted the symbol is skipped until the next tick, and a failed
// request hands its weight back.
type SnapshotPoller struct {
	source   DepthSource
	limiter  *ratelimit.WeightLimiter
	symbols  []string
	interval time.Duration
	weight   int
	depth    int
	onEvent  EventHandler
	logger   *slog.Logger

	fetched atomic.Uint64
	skipped atomic.Uint64
	failed  atomic.Uint64
}

// SnapshotConfig holds the poller settings.
type SnapshotConfig struct {
	Symbols  []string
	Interval time.Duration
	Weight   int
	Depth    int
}

// NewSnapshotPoller creates a poller.
func NewSnapshotPoller(source DepthSource, limiter *ratelimit.WeightLimiter, cfg SnapshotConfig, onEvent EventHandler, logger *slog.Logger) *SnapshotPoller {
	return &SnapshotPoller{
		source:   source,
		limiter:  limiter,
		symbols:  cfg.Symbols,
		interval: cfg.Interval,
		weight:   cfg.Weight,
		depth:    cfg.Depth,
		onEvent:  onEvent,
		logger:   logger.With(slog.String("component", "snapshot_poller")),
	}
}

// Run polls once immediately and then every interval until ctx is done.
// Request failures are logged and never end the loop.
func (p *SnapshotPoller) Run(ctx context.Context) error {
	if p.interval <= 0 {
		p.logger.Info("snapshot polling disabled")
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll fetches one snapshot per symbol, subject to the limiter.
func (p *SnapshotPoller) Poll(ctx context.Context) {
	for _, sym := range p.symbols {
		if ctx.Err() != nil {
			return
		}
		if !p.limiter.Add(p.weight) {
			p.skipped.Add(1)
			p.logger.DebugContext(ctx, "snapshot skipped, weight exhausted",
				slog.String("symbol", sym),
				slog.Int("consumed", p.limiter.Consumed()),
			)
			continue
		}

		d, err := p.source.Depth(ctx, sym, p.depth)
		if err != nil {
			p.limiter.Sub(p.weight)
			p.failed.Add(1)
			p.logger.WarnContext(ctx, "snapshot failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			continue
		}
		p.fetched.Add(1)
		if ev, ok := d.Event(sym, time.Now().UTC()); ok {
			p.onEvent(ev)
		}
	}
}

// Stats returns fetched, skipped and failed snapshot counts.
func (p *SnapshotPoller) Stats() (fetched, skipped, failed uint64) {
	return p.fetched.Load(), p.skipped.Load(), p.failed.Load()
}
