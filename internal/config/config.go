// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBENGINE_* environment variables.
type Config struct {
	Exchange   ExchangeConfig   `toml:"exchange"`
	Sender     SenderConfig     `toml:"sender"`
	Limiter    LimiterConfig    `toml:"limiter"`
	Supervisor SupervisorConfig `toml:"supervisor"`
	ChainData  ChainDataConfig  `toml:"chaindata"`
	Redis      RedisConfig      `toml:"redis"`
	Postgres   PostgresConfig   `toml:"postgres"`
	S3         S3Config         `toml:"s3"`
	Notify     NotifyConfig     `toml:"notify"`
	LogLevel   string           `toml:"log_level"`
}

// ExchangeConfig describes the venue, the markets it lists and the chains
// the detector evaluates. Monetary values are decoded from their text form
// straight into decimals, e.g. fee_percent = "0.075".
type ExchangeConfig struct {
	Name             string          `toml:"name"`
	WsURL            string          `toml:"ws_url"`
	RestURL          string          `toml:"rest_url"`
	FeePercent       decimal.Decimal `toml:"fee_percent"`
	MinProfitPercent decimal.Decimal `toml:"min_profit_percent"`
	// Capital is the amount of the first leg's base asset put through a chain.
	Capital          decimal.Decimal `toml:"capital"`
	SnapshotInterval duration       `toml:"snapshot_interval"`
	SnapshotWeight   int            `toml:"snapshot_weight"`
	SnapshotDepth    int            `toml:"snapshot_depth"`
	Markets          []MarketConfig `toml:"markets"`
	Chains           []ChainConfig  `toml:"chains"`
}

// MarketConfig holds the lot and tick increments of one symbol.
type MarketConfig struct {
	Symbol         string          `toml:"symbol"`
	BaseIncrement  decimal.Decimal `toml:"base_increment"`
	QuoteIncrement decimal.Decimal `toml:"quote_increment"`
}

// ChainConfig is one configured arbitrage cycle.
type ChainConfig struct {
	Name string      `toml:"name"`
	Legs []LegConfig `toml:"legs"`
}

// LegConfig is one hop of a chain. Direction is "ascending" (buy base) or
// "descending" (sell base).
type LegConfig struct {
	Symbol    string `toml:"symbol"`
	Direction string `toml:"direction"`
}

// SenderConfig holds execution parameters.
type SenderConfig struct {
	Placer      string   `toml:"placer"`
	MaxAge      duration `toml:"max_age"`
	OrderWeight int      `toml:"order_weight"`
	DedupTTL    duration `toml:"dedup_ttl"`
}

// LimiterConfig is the exchange request-weight quota.
type LimiterConfig struct {
	WeightLimit int      `toml:"weight_limit"`
	Window      duration `toml:"window"`
}

// SupervisorConfig selects the restart policy applied to both roles.
type SupervisorConfig struct {
	// Policy is "fixed" or "exponential".
	Policy      string   `toml:"policy"`
	Backoff     duration `toml:"backoff"`
	MinBackoff  duration `toml:"min_backoff"`
	MaxBackoff  duration `toml:"max_backoff"`
	Factor      float64  `toml:"factor"`
	Jitter      float64  `toml:"jitter"`
	MaxAttempts int      `toml:"max_attempts"`
	// ShutdownGrace bounds the wait for a cancelled role to return.
	ShutdownGrace duration `toml:"shutdown_grace"`
}

// ChainDataConfig holds the Kafka chain-data stream and the programs and
// pool accounts decoded from it.
type ChainDataConfig struct {
	Enabled  bool           `toml:"enabled"`
	Brokers  []string       `toml:"brokers"`
	Topic    string         `toml:"topic"`
	GroupID  string         `toml:"group_id"`
	Programs ProgramsConfig `toml:"programs"`
	// Pools maps a base58 pool account address to the symbol it quotes.
	Pools map[string]string `toml:"pools"`
}

// ProgramsConfig holds base58 program ids; empty ids are not decoded.
type ProgramsConfig struct {
	ConstantProduct string `toml:"constant_product"`
	Concentrated    string `toml:"concentrated"`
	Router          string `toml:"router"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled       bool   `toml:"enabled"`
	Addr          string `toml:"addr"`
	Password      string `toml:"password"`
	DB            int    `toml:"db"`
	PoolSize      int    `toml:"pool_size"`
	MaxRetries    int    `toml:"max_retries"`
	TLSEnabled    bool   `toml:"tls_enabled"`
	KeyPrefix     string `toml:"key_prefix"`
	SignalChannel string `toml:"signal_channel"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Market returns the market entry for symbol.
func (e ExchangeConfig) Market(symbol string) (MarketConfig, bool) {
	for _, m := range e.Markets {
		if strings.EqualFold(m.Symbol, symbol) {
			return m, true
		}
	}
	return MarketConfig{}, false
}

// Symbols returns every distinct symbol referenced by a chain, in first-seen
// order.
func (e ExchangeConfig) Symbols() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range e.Chains {
		for _, l := range c.Legs {
			s := strings.ToUpper(l.Symbol)
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			Name:             "binance",
			WsURL:            "wss://stream.binance.com:9443/stream",
			RestURL:          "https://api.binance.com",
			FeePercent:       decimal.RequireFromString("0.1"),
			MinProfitPercent: decimal.RequireFromString("0.1"),
			Capital:          decimal.NewFromInt(100),
			SnapshotInterval: duration{10 * time.Second},
			SnapshotWeight:   5,
			SnapshotDepth:    5,
		},
		Sender: SenderConfig{
			Placer:      "paper",
			MaxAge:      duration{2 * time.Second},
			OrderWeight: 1,
			DedupTTL:    duration{30 * time.Second},
		},
		Limiter: LimiterConfig{
			WeightLimit: 1200,
			Window:      duration{time.Minute},
		},
		Supervisor: SupervisorConfig{
			Policy:     "fixed",
			Backoff:    duration{60 * time.Second},
			MinBackoff: duration{250 * time.Millisecond},
			MaxBackoff: duration{60 * time.Second},
			Factor:     2.0,
			Jitter:     0.2,

			ShutdownGrace: duration{10 * time.Second},
		},
		ChainData: ChainDataConfig{
			GroupID: "arbengine",
			Pools:   map[string]string{},
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			DB:            0,
			PoolSize:      20,
			MaxRetries:    3,
			TLSEnabled:    false,
			KeyPrefix:     "arbengine",
			SignalChannel: "arbengine:executions",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbengine-journal",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"chain_executed", "chain_failed"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validPolicies = map[string]bool{
	"fixed":       true,
	"exponential": true,
}

var validDirections = map[string]bool{
	"ascending":  true,
	"descending": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchange
	ex := c.Exchange
	if ex.Name == "" {
		errs = append(errs, "exchange: name must not be empty")
	}
	if ex.WsURL == "" && ex.RestURL == "" {
		errs = append(errs, "exchange: at least one of ws_url or rest_url must be set")
	}
	if ex.FeePercent.IsNegative() {
		errs = append(errs, "exchange: fee_percent must be >= 0")
	}
	if !ex.Capital.IsPositive() {
		errs = append(errs, "exchange: capital must be > 0")
	}
	if ex.RestURL != "" {
		if ex.SnapshotInterval.Duration <= 0 {
			errs = append(errs, "exchange: snapshot_interval must be > 0 when rest_url is set")
		}
		if ex.SnapshotWeight < 1 {
			errs = append(errs, "exchange: snapshot_weight must be >= 1")
		}
		if ex.SnapshotDepth < 1 {
			errs = append(errs, "exchange: snapshot_depth must be >= 1")
		}
	}
	for _, m := range ex.Markets {
		if m.Symbol == "" {
			errs = append(errs, "exchange: market symbol must not be empty")
		}
		if m.BaseIncrement.IsNegative() || m.QuoteIncrement.IsNegative() {
			errs = append(errs, fmt.Sprintf("exchange: market %s increments must be >= 0", m.Symbol))
		}
	}
	if len(ex.Chains) == 0 {
		errs = append(errs, "exchange: at least one chain must be configured")
	}
	for i, ch := range ex.Chains {
		name := ch.Name
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}
		if len(ch.Legs) < 2 {
			errs = append(errs, fmt.Sprintf("exchange: chain %s needs at least 2 legs", name))
		}
		for j, l := range ch.Legs {
			if l.Symbol == "" {
				errs = append(errs, fmt.Sprintf("exchange: chain %s leg %d has no symbol", name, j))
			}
			if !validDirections[strings.ToLower(l.Direction)] {
				errs = append(errs, fmt.Sprintf("exchange: chain %s leg %d direction %q (valid: ascending, descending)", name, j, l.Direction))
			}
		}
	}

	// Sender
	if c.Sender.Placer != "paper" {
		errs = append(errs, fmt.Sprintf("sender: unknown placer %q (valid: paper)", c.Sender.Placer))
	}
	if c.Sender.MaxAge.Duration <= 0 {
		errs = append(errs, "sender: max_age must be > 0")
	}
	if c.Sender.OrderWeight < 1 {
		errs = append(errs, "sender: order_weight must be >= 1")
	}
	if c.Sender.DedupTTL.Duration < 0 {
		errs = append(errs, "sender: dedup_ttl must be >= 0")
	}

	// Limiter
	if c.Limiter.WeightLimit < 1 {
		errs = append(errs, "limiter: weight_limit must be >= 1")
	}
	if c.Limiter.Window.Duration <= 0 {
		errs = append(errs, "limiter: window must be > 0")
	}

	// Supervisor
	sv := c.Supervisor
	if !validPolicies[strings.ToLower(sv.Policy)] {
		errs = append(errs, fmt.Sprintf("supervisor: unknown policy %q (valid: fixed, exponential)", sv.Policy))
	}
	if sv.Backoff.Duration < 0 {
		errs = append(errs, "supervisor: backoff must be >= 0")
	}
	if strings.EqualFold(sv.Policy, "exponential") {
		if sv.MinBackoff.Duration <= 0 || sv.MaxBackoff.Duration < sv.MinBackoff.Duration {
			errs = append(errs, "supervisor: exponential policy needs 0 < min_backoff <= max_backoff")
		}
		if sv.Factor <= 1 {
			errs = append(errs, "supervisor: factor must be > 1")
		}
	}
	if sv.Jitter < 0 || sv.Jitter > 1 {
		errs = append(errs, "supervisor: jitter must be within [0, 1]")
	}
	if sv.ShutdownGrace.Duration < 0 {
		errs = append(errs, "supervisor: shutdown_grace must be >= 0")
	}
	if sv.MaxAttempts < 0 {
		errs = append(errs, "supervisor: max_attempts must be >= 0 (0 retries forever)")
	}

	// Chain data
	if c.ChainData.Enabled {
		if len(c.ChainData.Brokers) == 0 {
			errs = append(errs, "chaindata: brokers must not be empty when enabled")
		}
		if c.ChainData.Topic == "" {
			errs = append(errs, "chaindata: topic must not be empty when enabled")
		}
		p := c.ChainData.Programs
		if p.ConstantProduct == "" && p.Concentrated == "" && p.Router == "" {
			errs = append(errs, "chaindata: at least one program id must be set when enabled")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
