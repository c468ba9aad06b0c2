package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MARKETSYNC_* environment variable overrides, and
// returns the final Config. An empty path skips the file entirely, so the
// process can run from defaults plus environment alone. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MARKETSYNC_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Gamma ──
	setStr(&cfg.Gamma.GammaHost, "MARKETSYNC_GAMMA_HOST")
	setStr(&cfg.Gamma.WsHost, "MARKETSYNC_GAMMA_WS_HOST")
	setDuration(&cfg.Gamma.RequestTimeout, "MARKETSYNC_GAMMA_REQUEST_TIMEOUT")
	setInt(&cfg.Gamma.MaxRetries, "MARKETSYNC_GAMMA_MAX_RETRIES")
	setDuration(&cfg.Gamma.RetryBaseDelay, "MARKETSYNC_GAMMA_RETRY_BASE_DELAY")
	setDuration(&cfg.Gamma.MinRequestInterval, "MARKETSYNC_GAMMA_MIN_REQUEST_INTERVAL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.DSN, "MARKETSYNC_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MARKETSYNC_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MARKETSYNC_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MARKETSYNC_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MARKETSYNC_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MARKETSYNC_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MARKETSYNC_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MARKETSYNC_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MARKETSYNC_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MARKETSYNC_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MARKETSYNC_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKETSYNC_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKETSYNC_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MARKETSYNC_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MARKETSYNC_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MARKETSYNC_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.CacheTTL, "MARKETSYNC_REDIS_CACHE_TTL")
	setDuration(&cfg.Redis.LockTTL, "MARKETSYNC_REDIS_LOCK_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "MARKETSYNC_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MARKETSYNC_S3_REGION")
	setStr(&cfg.S3.Bucket, "MARKETSYNC_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MARKETSYNC_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MARKETSYNC_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MARKETSYNC_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MARKETSYNC_S3_FORCE_PATH_STYLE")

	// ── Poller ──
	setDuration(&cfg.Poller.Interval, "MARKETSYNC_POLLER_INTERVAL")
	setInt(&cfg.Poller.PageSize, "MARKETSYNC_POLLER_PAGE_SIZE")

	// ── Freshness ──
	setStringSlice(&cfg.Freshness.Tables, "MARKETSYNC_FRESHNESS_TABLES")
	setDuration(&cfg.Freshness.Interval, "MARKETSYNC_FRESHNESS_INTERVAL")

	// ── Backfill ──
	setInt(&cfg.Backfill.BatchSize, "MARKETSYNC_BACKFILL_BATCH_SIZE")
	setDuration(&cfg.Backfill.Pause, "MARKETSYNC_BACKFILL_PAUSE")

	// ── Archiver ──
	setInt(&cfg.Archiver.RetentionDays, "MARKETSYNC_ARCHIVER_RETENTION_DAYS")
	setStr(&cfg.Archiver.Cron, "MARKETSYNC_ARCHIVER_CRON")
	setBool(&cfg.Archiver.ExportSnapshots, "MARKETSYNC_ARCHIVER_EXPORT_SNAPSHOTS")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, "MARKETSYNC_FEED_ENABLED")
	setInt(&cfg.Feed.MaxTokens, "MARKETSYNC_FEED_MAX_TOKENS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MARKETSYNC_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MARKETSYNC_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MARKETSYNC_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "MARKETSYNC_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "MARKETSYNC_SERVER_RATE_WINDOW")

	// ── Top-level ──
	setStr(&cfg.Mode, "MARKETSYNC_MODE")
	setStr(&cfg.LogLevel, "MARKETSYNC_LOG_LEVEL")
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
