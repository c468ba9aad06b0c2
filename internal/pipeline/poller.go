// Package pipeline contains the ingestion, freshness, backfill, and archival
// jobs that move market data between the upstream API and the stores.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marketsync/marketsync/internal/domain"
)

// maxRetryDelay caps the exponential backoff between fetch attempts.
const maxRetryDelay = 10 * time.Second

// MarketFetcher retrieves one normalized page of markets from the upstream
// API, reporting how many raw records failed validation.
type MarketFetcher interface {
	FetchPage(ctx context.Context, limit, offset int) (records []domain.MarketRecord, malformed int, err error)
}

// MarketSyncer persists a batch of market records to the store and returns
// the number of rows written.
type MarketSyncer interface {
	SyncBatch(ctx context.Context, records []domain.MarketRecord) (int64, error)
}

// PollerOptions tune one poller instance. Zero values select defaults.
type PollerOptions struct {
	PageSize   int           // records per page, default 200
	MaxRetries int           // transient-failure retries per page, default 3
	RetryBase  time.Duration // initial backoff, doubles per attempt, default 500ms
}

// Poller drives full ingestion cycles: paginate the upstream API, normalize,
// and sync each page to the store.
type Poller struct {
	fetcher    MarketFetcher
	syncer     MarketSyncer
	pageSize   int
	maxRetries int
	retryBase  time.Duration
	logger     *slog.Logger
}

// NewPoller creates a new Poller.
func NewPoller(fetcher MarketFetcher, syncer MarketSyncer, opts PollerOptions, logger *slog.Logger) *Poller {
	if opts.PageSize <= 0 {
		opts.PageSize = 200
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 500 * time.Millisecond
	}
	return &Poller{
		fetcher:    fetcher,
		syncer:     syncer,
		pageSize:   opts.PageSize,
		maxRetries: opts.MaxRetries,
		retryBase:  opts.RetryBase,
		logger:     logger,
	}
}

// PollOnce runs a single full cycle over strictly increasing offsets until a
// short or empty page. Pages already synced stay committed when a later page
// fails; the partial result is returned alongside the error.
func (p *Poller) PollOnce(ctx context.Context) (domain.PollResult, error) {
	var result domain.PollResult
	started := time.Now()

	for offset := 0; ; offset += p.pageSize {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("poller: cycle cancelled: %w", err)
		}

		records, malformed, err := p.fetchPageWithRetry(ctx, offset, &result)
		if err != nil {
			return result, fmt.Errorf("poller: fetch page at offset %d: %w", offset, err)
		}

		raw := len(records) + malformed
		result.Pages++
		result.Fetched += raw
		result.Errors += malformed
		if malformed > 0 {
			p.logger.Warn("dropped malformed records",
				slog.Int("count", malformed),
				slog.Int("offset", offset),
			)
		}

		if len(records) > 0 {
			written, err := p.syncer.SyncBatch(ctx, records)
			if err != nil {
				return result, fmt.Errorf("poller: sync %d records at offset %d: %w", len(records), offset, err)
			}
			result.Upserted += int(written)
		}

		if raw < p.pageSize {
			break
		}
	}

	p.logger.Info("poll cycle complete",
		slog.Int("fetched", result.Fetched),
		slog.Int("upserted", result.Upserted),
		slog.Int("errors", result.Errors),
		slog.Int("pages", result.Pages),
		slog.Int("retries", result.Retries),
		slog.Duration("took", time.Since(started).Round(time.Millisecond)),
	)
	return result, nil
}

// fetchPageWithRetry fetches one page, retrying transient upstream failures
// with doubling backoff. Retries are counted on the cycle result.
func (p *Poller) fetchPageWithRetry(ctx context.Context, offset int, result *domain.PollResult) ([]domain.MarketRecord, int, error) {
	delay := p.retryBase

	for attempt := 0; ; attempt++ {
		records, malformed, err := p.fetcher.FetchPage(ctx, p.pageSize, offset)
		if err == nil {
			return records, malformed, nil
		}
		if !retryable(err) || attempt >= p.maxRetries {
			return nil, 0, err
		}

		result.Retries++
		p.logger.Warn("transient fetch failure, backing off",
			slog.Int("attempt", attempt+1),
			slog.Int("offset", offset),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, 0, ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

// retryable reports whether a fetch failure is worth another attempt.
func retryable(err error) bool {
	return errors.Is(err, domain.ErrTransient) || errors.Is(err, domain.ErrRateLimited)
}

// RunLoop runs one cycle immediately, then one per tick until the context is
// cancelled. Cycle failures are logged, never fatal to the loop.
func (p *Poller) RunLoop(ctx context.Context, interval time.Duration) error {
	if _, err := p.PollOnce(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Error("poll cycle failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.PollOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.Error("poll cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}
