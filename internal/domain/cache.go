package domain

import (
	"context"
	"time"
)

// MarketCache provides fast market record lookups in front of the store.
type MarketCache interface {
	Set(ctx context.Context, m MarketRecord) error
	Get(ctx context.Context, id string) (MarketRecord, error)
	Invalidate(ctx context.Context, ids ...string) error
}

// FreshnessCache holds recently computed freshness reports so repeated API
// reads do not re-run the aggregate query.
type FreshnessCache interface {
	Set(ctx context.Context, report FreshnessReport) error
	Get(ctx context.Context, table string) (FreshnessReport, error)
}

// RateLimiter provides distributed rate limiting keyed by caller identity.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking for single-flight batch jobs.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
