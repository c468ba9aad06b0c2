// Package config defines the top-level configuration for the marketsync
// pipeline and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MARKETSYNC_* environment variables.
type Config struct {
	Gamma     GammaConfig     `toml:"gamma"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Poller    PollerConfig    `toml:"poller"`
	Freshness FreshnessConfig `toml:"freshness"`
	Backfill  BackfillConfig  `toml:"backfill"`
	Archiver  ArchiverConfig  `toml:"archiver"`
	Feed      FeedConfig      `toml:"feed"`
	Server    ServerConfig    `toml:"server"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// GammaConfig holds upstream market API endpoints and client behavior.
type GammaConfig struct {
	GammaHost          string   `toml:"gamma_host"`
	WsHost             string   `toml:"ws_host"`
	RequestTimeout     duration `toml:"request_timeout"`
	MaxRetries         int      `toml:"max_retries"`
	RetryBaseDelay     duration `toml:"retry_base_delay"`
	MinRequestInterval duration `toml:"min_request_interval"`
}

// PostgresConfig holds PostgreSQL connection parameters. DSN, when set, wins
// over the discrete host/port fields.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	CacheTTL   duration `toml:"cache_ttl"`
	LockTTL    duration `toml:"lock_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PollerConfig holds market ingestion parameters.
type PollerConfig struct {
	Interval duration `toml:"interval"`
	PageSize int      `toml:"page_size"`
}

// FreshnessConfig holds freshness reporting parameters.
type FreshnessConfig struct {
	// Tables restricts reporting to the named tables; empty means every
	// monitored table.
	Tables   []string `toml:"tables"`
	Interval duration `toml:"interval"`
}

// BackfillConfig holds derived-field backfill parameters.
type BackfillConfig struct {
	BatchSize int      `toml:"batch_size"`
	Pause     duration `toml:"pause"`
}

// ArchiverConfig holds stale-market archival parameters.
type ArchiverConfig struct {
	RetentionDays   int    `toml:"retention_days"`
	Cron            string `toml:"cron"`
	ExportSnapshots bool   `toml:"export_snapshots"`
}

// FeedConfig holds the live mid-price feed parameters.
type FeedConfig struct {
	Enabled   bool `toml:"enabled"`
	MaxTokens int  `toml:"max_tokens"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
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

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Gamma: GammaConfig{
			GammaHost:          "https://gamma-api.polymarket.com",
			WsHost:             "wss://ws-subscriptions-clob.polymarket.com",
			RequestTimeout:     duration{30 * time.Second},
			MaxRetries:         3,
			RetryBaseDelay:     duration{time.Second},
			MinRequestInterval: duration{200 * time.Millisecond},
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "marketsync",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
			CacheTTL:   duration{5 * time.Minute},
			LockTTL:    duration{15 * time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "marketsync-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Poller: PollerConfig{
			Interval: duration{60 * time.Second},
			PageSize: 200,
		},
		Freshness: FreshnessConfig{
			Tables:   nil,
			Interval: duration{5 * time.Minute},
		},
		Backfill: BackfillConfig{
			BatchSize: 10_000,
			Pause:     duration{500 * time.Millisecond},
		},
		Archiver: ArchiverConfig{
			RetentionDays:   30,
			Cron:            "0 3 * * *",
			ExportSnapshots: true,
		},
		Feed: FeedConfig{
			Enabled:   false,
			MaxTokens: 200,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   60,
			RateWindow:  duration{time.Minute},
		},
		Mode:     "poller",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"poller":    true,
	"freshness": true,
	"backfill":  true,
	"archiver":  true,
	"server":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: poller, freshness, backfill, archiver, server)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Gamma
	if c.Gamma.GammaHost == "" {
		errs = append(errs, "gamma: gamma_host must not be empty")
	}
	if c.Gamma.MaxRetries < 0 {
		errs = append(errs, "gamma: max_retries must be >= 0")
	}
	if c.Gamma.RequestTimeout.Duration <= 0 {
		errs = append(errs, "gamma: request_timeout must be > 0")
	}

	// Postgres
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

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.CacheTTL.Duration <= 0 {
		errs = append(errs, "redis: cache_ttl must be > 0")
	}
	if c.Redis.LockTTL.Duration <= 0 {
		errs = append(errs, "redis: lock_ttl must be > 0")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Poller
	if c.Poller.Interval.Duration < time.Second {
		errs = append(errs, "poller: interval must be >= 1s")
	}
	if c.Poller.PageSize < 1 || c.Poller.PageSize > 500 {
		errs = append(errs, fmt.Sprintf("poller: page_size must be 1-500, got %d", c.Poller.PageSize))
	}

	// Freshness
	if c.Freshness.Interval.Duration <= 0 {
		errs = append(errs, "freshness: interval must be > 0")
	}

	// Backfill
	if c.Backfill.BatchSize < 1 {
		errs = append(errs, "backfill: batch_size must be >= 1")
	}
	if c.Backfill.Pause.Duration < 0 {
		errs = append(errs, "backfill: pause must be >= 0")
	}

	// Archiver
	if c.Archiver.RetentionDays < 1 {
		errs = append(errs, "archiver: retention_days must be >= 1")
	}
	if len(strings.Fields(c.Archiver.Cron)) != 5 {
		errs = append(errs, fmt.Sprintf("archiver: cron must have 5 fields, got %q", c.Archiver.Cron))
	}

	// Feed
	if c.Feed.Enabled && c.Feed.MaxTokens < 1 {
		errs = append(errs, "feed: max_tokens must be >= 1 when enabled")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 1 {
			errs = append(errs, "server: rate_limit must be >= 1")
		}
		if c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
