// Package service wires stores and caches into the operations the jobs and
// the HTTP API consume.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/marketsync/marketsync/internal/domain"
	"github.com/marketsync/marketsync/internal/pipeline"
)

// MarketService handles market reads, batch sync, and freshness reports.
type MarketService struct {
	markets   domain.MarketStore
	freshness domain.FreshnessStore
	cache     domain.MarketCache    // nil disables record caching
	reports   domain.FreshnessCache // nil disables report caching
	logger    *slog.Logger
}

var _ pipeline.MarketSyncer = (*MarketService)(nil)

// NewMarketService creates a MarketService. Both caches may be nil.
func NewMarketService(
	markets domain.MarketStore,
	freshness domain.FreshnessStore,
	cache domain.MarketCache,
	reports domain.FreshnessCache,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:   markets,
		freshness: freshness,
		cache:     cache,
		reports:   reports,
		logger:    logger,
	}
}

// SyncBatch upserts a batch of market records and invalidates their cached
// entries so subsequent reads pick up fresh data.
func (s *MarketService) SyncBatch(ctx context.Context, records []domain.MarketRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	written, err := s.markets.UpsertBatch(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("market_service: upsert batch: %w", err)
	}

	if s.cache != nil {
		ids := make([]string, len(records))
		for i, m := range records {
			ids[i] = m.MarketID
		}
		if err := s.cache.Invalidate(ctx, ids...); err != nil {
			// Non-fatal: the cache expires on its own.
			s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
				slog.Int("ids", len(ids)),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.DebugContext(ctx, "market_service: synced batch",
		slog.Int("records", len(records)),
		slog.Int64("written", written),
	)
	return written, nil
}

// GetMarket retrieves a market by ID, checking the cache first and falling
// back to the persistent store on a miss.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.MarketRecord, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id); err == nil {
			return m, nil
		}
	}

	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.MarketRecord{}, fmt.Errorf("market_service: get by id %q: %w", id, err)
	}

	// Back-fill cache; log but do not fail on cache write errors.
	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: cache set failed",
				slog.String("market_id", id),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	return m, nil
}

// List returns markets directly from the persistent store.
func (s *MarketService) List(ctx context.Context, opts domain.ListOpts) ([]domain.MarketRecord, error) {
	markets, err := s.markets.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets in the persistent store.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	count, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return count, nil
}

// Freshness returns the report for one monitored table, serving from the
// short-TTL cache when possible so API reads do not re-run the aggregate.
func (s *MarketService) Freshness(ctx context.Context, table string) (domain.FreshnessReport, error) {
	if s.reports != nil {
		if report, err := s.reports.Get(ctx, table); err == nil {
			return report, nil
		}
	}

	report, err := s.freshness.Compute(ctx, table, time.Now().UTC())
	if err != nil {
		return domain.FreshnessReport{}, fmt.Errorf("market_service: freshness %q: %w", table, err)
	}

	if s.reports != nil {
		if cacheErr := s.reports.Set(ctx, report); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: report cache set failed",
				slog.String("table", table),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	return report, nil
}

// FreshnessAll reports on every monitored table.
func (s *MarketService) FreshnessAll(ctx context.Context) ([]domain.FreshnessReport, error) {
	tables := s.freshness.Tables()
	reports := make([]domain.FreshnessReport, 0, len(tables))
	for _, table := range tables {
		report, err := s.Freshness(ctx, table)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}
