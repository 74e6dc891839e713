package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/polymirror/internal/blob/s3"
	"github.com/alanyoungcy/polymirror/internal/cache/redis"
	"github.com/alanyoungcy/polymirror/internal/config"
	"github.com/alanyoungcy/polymirror/internal/domain"
	"github.com/alanyoungcy/polymirror/internal/notify"
	"github.com/alanyoungcy/polymirror/internal/platform/polygon"
	"github.com/alanyoungcy/polymirror/internal/store/postgres"
)

// Dependencies bundles the optional infrastructure the mirror reports to.
// Every field is nil unless its section is enabled in the configuration.
type Dependencies struct {
	Journal domain.MirrorStore
	Audit   domain.AuditStore
	Locks   domain.LockManager
	Bus     domain.SignalBus
	Blob    domain.BlobWriter
	Blocks  *polygon.BlockSource

	Notifier *notify.Notifier
}

// Wire connects every enabled sink. An enabled sink that cannot be reached
// fails startup. The returned cleanup releases connections in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}

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
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.Journal = postgres.NewMirrorStore(pgClient.Pool())
		deps.Audit = postgres.NewAuditStore(pgClient.Pool())
	}

	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Bus = redis.NewSignalBus(redisClient)
		if cfg.Dispatch.DistributedLock {
			deps.Locks = redis.NewLockManager(redisClient)
		}
	}

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
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.WarnContext(ctx, "s3 bucket not reachable yet, exports may fail",
				slog.String("bucket", cfg.S3.Bucket),
				slog.String("error", err.Error()),
			)
		}
		deps.Blob = s3blob.NewWriter(s3Client)
	}

	if cfg.Polygon.Enabled {
		blocks, err := polygon.Dial(ctx, cfg.Polygon.RPCURL)
		if err != nil {
			return fail(fmt.Errorf("wire: polygon: %w", err))
		}
		closers = append(closers, blocks.Close)
		deps.Blocks = blocks
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// fanoutBus publishes to every bus and joins their errors.
type fanoutBus []domain.SignalBus

func (f fanoutBus) Publish(ctx context.Context, channel string, payload []byte) error {
	var errs []error
	for _, b := range f {
		if err := b.Publish(ctx, channel, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// joinBuses drops nil entries and avoids wrapping a single bus.
func joinBuses(buses ...domain.SignalBus) domain.SignalBus {
	var out fanoutBus
	for _, b := range buses {
		if b != nil {
			out = append(out, b)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}
