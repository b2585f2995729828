package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBENGINE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBENGINE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.Name, "ARBENGINE_EXCHANGE_NAME")
	setStr(&cfg.Exchange.WsURL, "ARBENGINE_EXCHANGE_WS_URL")
	setStr(&cfg.Exchange.RestURL, "ARBENGINE_EXCHANGE_REST_URL")
	setDecimal(&cfg.Exchange.FeePercent, "ARBENGINE_EXCHANGE_FEE_PERCENT")
	setDecimal(&cfg.Exchange.MinProfitPercent, "ARBENGINE_EXCHANGE_MIN_PROFIT_PERCENT")
	setDecimal(&cfg.Exchange.Capital, "ARBENGINE_EXCHANGE_CAPITAL")
	setDuration(&cfg.Exchange.SnapshotInterval, "ARBENGINE_EXCHANGE_SNAPSHOT_INTERVAL")
	setInt(&cfg.Exchange.SnapshotWeight, "ARBENGINE_EXCHANGE_SNAPSHOT_WEIGHT")
	setInt(&cfg.Exchange.SnapshotDepth, "ARBENGINE_EXCHANGE_SNAPSHOT_DEPTH")

	// ── Sender ──
	setStr(&cfg.Sender.Placer, "ARBENGINE_SENDER_PLACER")
	setDuration(&cfg.Sender.MaxAge, "ARBENGINE_SENDER_MAX_AGE")
	setInt(&cfg.Sender.OrderWeight, "ARBENGINE_SENDER_ORDER_WEIGHT")
	setDuration(&cfg.Sender.DedupTTL, "ARBENGINE_SENDER_DEDUP_TTL")

	// ── Limiter ──
	setInt(&cfg.Limiter.WeightLimit, "ARBENGINE_LIMITER_WEIGHT_LIMIT")
	setDuration(&cfg.Limiter.Window, "ARBENGINE_LIMITER_WINDOW")

	// ── Supervisor ──
	setStr(&cfg.Supervisor.Policy, "ARBENGINE_SUPERVISOR_POLICY")
	setDuration(&cfg.Supervisor.Backoff, "ARBENGINE_SUPERVISOR_BACKOFF")
	setDuration(&cfg.Supervisor.MinBackoff, "ARBENGINE_SUPERVISOR_MIN_BACKOFF")
	setDuration(&cfg.Supervisor.MaxBackoff, "ARBENGINE_SUPERVISOR_MAX_BACKOFF")
	setFloat64(&cfg.Supervisor.Factor, "ARBENGINE_SUPERVISOR_FACTOR")
	setFloat64(&cfg.Supervisor.Jitter, "ARBENGINE_SUPERVISOR_JITTER")
	setInt(&cfg.Supervisor.MaxAttempts, "ARBENGINE_SUPERVISOR_MAX_ATTEMPTS")
	setDuration(&cfg.Supervisor.ShutdownGrace, "ARBENGINE_SUPERVISOR_SHUTDOWN_GRACE")

	// ── Chain data ──
	setBool(&cfg.ChainData.Enabled, "ARBENGINE_CHAINDATA_ENABLED")
	setStringSlice(&cfg.ChainData.Brokers, "ARBENGINE_CHAINDATA_BROKERS")
	setStr(&cfg.ChainData.Topic, "ARBENGINE_CHAINDATA_TOPIC")
	setStr(&cfg.ChainData.GroupID, "ARBENGINE_CHAINDATA_GROUP_ID")
	setStr(&cfg.ChainData.Programs.ConstantProduct, "ARBENGINE_CHAINDATA_PROGRAMS_CONSTANT_PRODUCT")
	setStr(&cfg.ChainData.Programs.Concentrated, "ARBENGINE_CHAINDATA_PROGRAMS_CONCENTRATED")
	setStr(&cfg.ChainData.Programs.Router, "ARBENGINE_CHAINDATA_PROGRAMS_ROUTER")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBENGINE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBENGINE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBENGINE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBENGINE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBENGINE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBENGINE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBENGINE_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "ARBENGINE_REDIS_KEY_PREFIX")
	setStr(&cfg.Redis.SignalChannel, "ARBENGINE_REDIS_SIGNAL_CHANNEL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARBENGINE_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBENGINE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "ARBENGINE_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ARBENGINE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBENGINE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBENGINE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBENGINE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBENGINE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBENGINE_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBENGINE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBENGINE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBENGINE_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBENGINE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBENGINE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBENGINE_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBENGINE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBENGINE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBENGINE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBENGINE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBENGINE_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBENGINE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBENGINE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBENGINE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBENGINE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "ARBENGINE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDecimal(dst *decimal.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			*dst = d
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
