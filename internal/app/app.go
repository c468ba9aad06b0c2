// Package app owns the application lifecycle: it wires dependencies (stores,
// caches, blob storage), selects the operating mode, and runs the mode's
// goroutines until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/marketsync/marketsync/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, and blocks until the mode finishes or the context is
// cancelled. On return the caller should invoke Close.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "poller":
		return a.PollerMode(ctx, deps)
	case "freshness":
		return a.FreshnessMode(ctx, deps)
	case "backfill":
		return a.BackfillMode(ctx, deps)
	case "archiver":
		return a.ArchiverMode(ctx, deps)
	case "server":
		return a.ServerMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// jobModes maps CLI job commands to operating modes.
var jobModes = map[string]string{
	"run-poller":           "poller",
	"run-freshness-report": "freshness",
	"run-backfill":         "backfill",
	"run-archiver":         "archiver",
	"serve":                "server",
}

// JobMode resolves a CLI job command (e.g. "run-poller") to its operating
// mode. Bare mode names are accepted too, so "poller" and "run-poller" are
// equivalent.
func JobMode(command string) (string, error) {
	c := strings.ToLower(strings.TrimSpace(command))
	if mode, ok := jobModes[c]; ok {
		return mode, nil
	}
	for _, mode := range jobModes {
		if c == mode {
			return mode, nil
		}
	}
	return "", fmt.Errorf("app: unknown job %q (valid: run-poller, run-freshness-report, run-backfill, run-archiver, serve)", command)
}

// ApplyJobTarget narrows a job to one target table. Only the freshness report
// and the backfill accept a table argument.
func ApplyJobTarget(cfg *config.Config, table string) error {
	table = strings.ToLower(strings.TrimSpace(table))
	switch strings.ToLower(cfg.Mode) {
	case "freshness":
		cfg.Freshness.Tables = []string{table}
		return nil
	case "backfill":
		if table != "user_transactions" {
			return fmt.Errorf("app: backfill targets user_transactions only, got %q", table)
		}
		return nil
	default:
		return fmt.Errorf("app: mode %q takes no table argument", cfg.Mode)
	}
}
