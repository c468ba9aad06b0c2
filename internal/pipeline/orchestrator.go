package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Streamer keeps market prices current between poll cycles. Implemented by
// the WebSocket mid-price feed.
type Streamer interface {
	Run(ctx context.Context) error
}

// Orchestrator runs the poller-mode goroutines: the ingestion loop, the
// optional live price feed, and the optional periodic freshness reporter.
type Orchestrator struct {
	poller            *Poller
	feed              Streamer           // nil disables the live feed
	freshness         *FreshnessReporter // nil disables periodic reporting
	pollInterval      time.Duration
	freshnessInterval time.Duration
	logger            *slog.Logger
}

// NewOrchestrator creates an Orchestrator. The poller is required; feed and
// freshness may be nil to run ingestion alone.
func NewOrchestrator(
	poller *Poller,
	feed Streamer,
	freshness *FreshnessReporter,
	pollInterval time.Duration,
	freshnessInterval time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		poller:            poller,
		feed:              feed,
		freshness:         freshness,
		pollInterval:      pollInterval,
		freshnessInterval: freshnessInterval,
		logger:            logger,
	}
}

// Run starts every configured loop in its own goroutine under a shared
// errgroup. Context cancellation is a clean shutdown; if any loop fails with
// a non-context error, the group context is cancelled and Run returns that
// error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator starting",
		slog.Duration("poll_interval", o.pollInterval),
		slog.Bool("feed_enabled", o.feed != nil),
		slog.Bool("freshness_enabled", o.freshness != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := o.poller.RunLoop(ctx, o.pollInterval)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("poller loop: %w", err)
	})

	if o.feed != nil {
		g.Go(func() error {
			err := o.feed.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("market feed: %w", err)
		})
	}

	if o.freshness != nil {
		g.Go(func() error {
			err := o.freshness.RunPeriodic(ctx, o.freshnessInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("freshness reporter: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("orchestrator stopped cleanly")
	return nil
}
