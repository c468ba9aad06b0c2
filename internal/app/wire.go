package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/marketsync/marketsync/internal/blob/s3"
	"github.com/marketsync/marketsync/internal/cache/redis"
	"github.com/marketsync/marketsync/internal/config"
	"github.com/marketsync/marketsync/internal/domain"
	"github.com/marketsync/marketsync/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	MarketStore      domain.MarketStore
	TransactionStore domain.TransactionStore
	FreshnessStore   domain.FreshnessStore
	AuditStore       domain.AuditStore

	// Caches and coordination (nil unless the mode wires Redis)
	MarketCache domain.MarketCache
	ReportCache domain.FreshnessCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Blob storage (nil unless the mode wires S3)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
}

// needsRedis returns true for modes that require caching, locking, or rate
// limiting. The one-shot freshness report reads straight from the database.
func needsRedis(mode string) bool {
	switch mode {
	case "poller", "backfill", "archiver", "server":
		return true
	default:
		return false
	}
}

// needsS3 reports whether the configured mode requires object storage. The
// archiver only needs it when snapshot export is enabled.
func needsS3(cfg *config.Config) bool {
	switch cfg.Mode {
	case "archiver":
		return cfg.Archiver.ExportSnapshots
	case "server":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (every mode persists or reads) ---
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
		applied, err := pgClient.RunMigrations(ctx)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
		if applied > 0 {
			slog.Default().InfoContext(ctx, "migrations applied", slog.Int("count", applied))
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.TransactionStore = postgres.NewTransactionStore(pool)
	deps.FreshnessStore = postgres.NewFreshnessStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis (only for modes that cache, lock, or rate limit) ---
	if needsRedis(cfg.Mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.MarketCache = redis.NewMarketCache(redisClient, cfg.Redis.CacheTTL.Duration)
		deps.ReportCache = redis.NewReportCache(redisClient, 0) // short default TTL
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
	}

	// --- S3 blob storage (only for modes that export or serve snapshots) ---
	if needsS3(cfg) {
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

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
	}

	slog.Default().DebugContext(ctx, "dependencies wired",
		slog.Bool("redis", needsRedis(cfg.Mode)),
		slog.Bool("s3", needsS3(cfg)),
	)

	return deps, cleanup, nil
}
