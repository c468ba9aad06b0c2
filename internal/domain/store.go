package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Status MarketStatus // zero value means all statuses
	Limit  int
	Offset int
}

// MarketStore persists market records.
type MarketStore interface {
	Upsert(ctx context.Context, m MarketRecord) error
	UpsertBatch(ctx context.Context, ms []MarketRecord) (int64, error)
	GetByID(ctx context.Context, id string) (MarketRecord, error)
	List(ctx context.Context, opts ListOpts) ([]MarketRecord, error)
	Count(ctx context.Context) (int64, error)
	UpdateMidPriceByToken(ctx context.Context, tokenID string, mid float64) error
	ListActiveTokenIDs(ctx context.Context, limit int) ([]string, error)
	ListStale(ctx context.Context, cutoff time.Time) ([]MarketRecord, error)
	ArchiveStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// TransactionStore persists user transactions and their derived fields.
type TransactionStore interface {
	InsertBatch(ctx context.Context, txs []UserTransaction) (int64, error)
	BackfillBatch(ctx context.Context, batchSize int) (int64, error)
	CountPending(ctx context.Context) (int64, error)
}

// FreshnessStore computes freshness reports over monitored tables.
type FreshnessStore interface {
	Compute(ctx context.Context, table string, now time.Time) (FreshnessReport, error)
	Tables() []string
}

// AuditEntry is a single job audit row.
type AuditEntry struct {
	ID        string
	Job       string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only record of job runs.
type AuditStore interface {
	Log(ctx context.Context, job string, detail map[string]any) error
	ListRecent(ctx context.Context, limit int) ([]AuditEntry, error)
}
