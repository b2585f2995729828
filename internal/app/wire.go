package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/arbengine/internal/blob/s3"
	"github.com/alanyoungcy/arbengine/internal/cache/redis"
	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/notify"
	"github.com/alanyoungcy/arbengine/internal/store/postgres"
)

// Dependencies holds the optional shared backends. A field stays nil when
// its backend is disabled in config, so callers can pass it straight through.
type Dependencies struct {
	ChainStore  domain.ChainStore
	QuoteMirror domain.QuoteMirror
	SignalBus   domain.SignalBus
	Claims      domain.ExecutionClaims
	BlobWriter  domain.BlobWriter
	Notifier    *notify.Notifier
}

// Wire connects every enabled backend and returns them with a cleanup
// function that closes them in reverse order. On error everything opened so
// far is already closed.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.ChainStore = postgres.NewChainStore(pgClient.Pool())
		logger.Info("postgres connected", slog.String("database", cfg.Postgres.Database))
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		rdb, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rdb.Close() })

		deps.QuoteMirror = redis.NewQuoteCache(rdb)
		deps.SignalBus = redis.NewSignalBus(rdb)
		deps.Claims = redis.NewExecutionClaims(rdb)
		logger.Info("redis connected", slog.String("addr", cfg.Redis.Addr))
	}

	// --- S3 ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		logger.Info("s3 connected", slog.String("bucket", cfg.S3.Bucket))
	}

	// --- Notifications ---
	if senders := notifySenders(cfg.Notify); len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}

func notifySenders(c config.NotifyConfig) []notify.Sender {
	var senders []notify.Sender
	if c.TelegramToken != "" && c.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(c.TelegramToken, c.TelegramChatID))
	}
	if c.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(c.DiscordWebhookURL))
	}
	return senders
}
