package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/marketsync/marketsync/internal/blob/s3"
	"github.com/marketsync/marketsync/internal/feed"
	"github.com/marketsync/marketsync/internal/pipeline"
	"github.com/marketsync/marketsync/internal/platform/gamma"
	"github.com/marketsync/marketsync/internal/server"
	"github.com/marketsync/marketsync/internal/server/handler"
	"github.com/marketsync/marketsync/internal/service"
)

// PollerMode runs the long-lived ingestion service: the poll loop, the
// optional WebSocket mid-price feed, the periodic freshness reporter, and
// optionally the HTTP API.
func (a *App) PollerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting poller mode",
		slog.Duration("interval", a.cfg.Poller.Interval.Duration),
		slog.Bool("feed_enabled", a.cfg.Feed.Enabled),
	)

	g, ctx := errgroup.WithContext(ctx)

	gammaClient := gamma.NewClient(gamma.Config{
		BaseURL:            a.cfg.Gamma.GammaHost,
		RequestTimeout:     a.cfg.Gamma.RequestTimeout.Duration,
		MinRequestInterval: a.cfg.Gamma.MinRequestInterval.Duration,
	})
	marketSvc := service.NewMarketService(
		deps.MarketStore, deps.FreshnessStore, deps.MarketCache, deps.ReportCache, a.logger,
	)

	poller := pipeline.NewPoller(gammaClient, marketSvc, pipeline.PollerOptions{
		PageSize:   a.cfg.Poller.PageSize,
		MaxRetries: a.cfg.Gamma.MaxRetries,
		RetryBase:  a.cfg.Gamma.RetryBaseDelay.Duration,
	}, a.logger)

	// The feed writes mid prices through the store so poll cycles and live
	// updates land in the same rows.
	var stream pipeline.Streamer
	if a.cfg.Feed.Enabled {
		stream = feed.NewMarketFeed(a.cfg.Gamma.WsHost, deps.MarketStore, deps.MarketStore, feed.Options{
			MaxTokens: a.cfg.Feed.MaxTokens,
		}, a.logger)
	}

	reporter := pipeline.NewFreshnessReporter(deps.FreshnessStore, deps.AuditStore, a.logger)

	orch := pipeline.NewOrchestrator(poller, stream, reporter,
		a.cfg.Poller.Interval.Duration,
		a.cfg.Freshness.Interval.Duration,
		a.logger,
	)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// FreshnessMode runs one freshness report over the configured tables and
// prints a per-table summary to stdout.
func (a *App) FreshnessMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting freshness report",
		slog.Any("tables", a.cfg.Freshness.Tables),
	)

	reporter := pipeline.NewFreshnessReporter(deps.FreshnessStore, deps.AuditStore, a.logger)

	started := time.Now()
	reports, err := reporter.Report(ctx, a.cfg.Freshness.Tables)
	if err != nil {
		return fmt.Errorf("freshness mode: %w", err)
	}

	for _, r := range reports {
		latest := "never"
		if r.LatestUpdate != nil {
			latest = r.LatestUpdate.UTC().Format(time.RFC3339)
		}
		fmt.Printf("%-20s rows=%-9d latest=%-22s freshness=%.1fs p95=%.1fs\n",
			r.Table, r.TotalRecords, latest, r.FreshnessSeconds, r.P95FreshnessSeconds)
	}
	fmt.Printf("freshness report finished: %d table(s) in %s\n",
		len(reports), time.Since(started).Round(time.Millisecond))
	return nil
}

// BackfillMode runs the position-derivation backfill to completion and prints
// a run summary to stdout.
func (a *App) BackfillMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting backfill",
		slog.Int("batch_size", a.cfg.Backfill.BatchSize),
	)

	job := pipeline.NewBackfill(deps.TransactionStore, deps.LockManager, deps.AuditStore, pipeline.BackfillOptions{
		BatchSize: a.cfg.Backfill.BatchSize,
		Pause:     a.cfg.Backfill.Pause.Duration,
		LockTTL:   a.cfg.Redis.LockTTL.Duration,
	}, a.logger)

	started := time.Now()
	result, err := job.Run(ctx)
	if err != nil {
		return fmt.Errorf("backfill mode: %w", err)
	}

	fmt.Printf("backfill finished: updated=%d batches=%d in %s\n",
		result.TotalUpdated, result.Batches, time.Since(started).Round(time.Millisecond))
	return nil
}

// ArchiverMode runs the stale-market archiver on its cron schedule until the
// context is cancelled.
func (a *App) ArchiverMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archiver",
		slog.String("cron", a.cfg.Archiver.Cron),
		slog.Int("retention_days", a.cfg.Archiver.RetentionDays),
		slog.Bool("export_snapshots", a.cfg.Archiver.ExportSnapshots),
	)

	var snaps pipeline.Snapshotter
	if a.cfg.Archiver.ExportSnapshots && deps.BlobWriter != nil {
		snaps = s3blob.NewSnapshotter(deps.BlobWriter)
	}

	arch := pipeline.NewArchiver(deps.MarketStore, snaps, deps.LockManager, deps.AuditStore, pipeline.ArchiverOptions{
		RetentionDays: a.cfg.Archiver.RetentionDays,
		LockTTL:       a.cfg.Redis.LockTTL.Duration,
	}, a.logger)

	return arch.RunCron(ctx, a.cfg.Archiver.Cron)
}

// ServerMode runs the read-only HTTP API on its own.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode",
		slog.Int("port", a.cfg.Server.Port),
	)

	g, ctx := errgroup.WithContext(ctx)

	// The HTTP server is always started in server mode.
	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// startHTTPServer adds the HTTP API server and its shutdown watcher to the
// given errgroup. Snapshot endpoints register only when object storage is
// wired for the mode.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	marketSvc := service.NewMarketService(
		deps.MarketStore, deps.FreshnessStore, deps.MarketCache, deps.ReportCache, a.logger,
	)

	handlers := server.Handlers{
		Status:    handler.NewStatusHandler(a.cfg.Mode),
		Markets:   handler.NewMarketHandler(marketSvc, a.logger),
		Freshness: handler.NewFreshnessHandler(marketSvc, a.logger),
		Jobs:      handler.NewJobsHandler(deps.AuditStore, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Snapshots = handler.NewSnapshotHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
