package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marketsync/marketsync/internal/domain"
)

// backfillLockKey guards the user_transactions backfill across processes.
const backfillLockKey = "backfill:user_transactions"

// BackfillStore is the slice of the transaction store the backfill job needs.
type BackfillStore interface {
	BackfillBatch(ctx context.Context, batchSize int) (int64, error)
	CountPending(ctx context.Context) (int64, error)
}

// BackfillOptions tune one backfill run. Zero values select defaults.
type BackfillOptions struct {
	BatchSize int           // rows per batch, default 10000
	Pause     time.Duration // pause between batches, default 500ms
	LockTTL   time.Duration // distributed lock TTL, default 10m
}

// Backfill derives market_id and outcome for transactions inserted with only
// a position_id, in bounded batches.
type Backfill struct {
	store     BackfillStore
	locks     domain.LockManager // nil disables locking
	audit     AuditLog           // nil disables auditing
	batchSize int
	pause     time.Duration
	lockTTL   time.Duration
	logger    *slog.Logger
}

// NewBackfill creates a new Backfill job.
func NewBackfill(store BackfillStore, locks domain.LockManager, audit AuditLog, opts BackfillOptions, logger *slog.Logger) *Backfill {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10000
	}
	if opts.Pause <= 0 {
		opts.Pause = 500 * time.Millisecond
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	return &Backfill{
		store:     store,
		locks:     locks,
		audit:     audit,
		batchSize: opts.BatchSize,
		pause:     opts.Pause,
		lockTTL:   opts.LockTTL,
		logger:    logger,
	}
}

// Run executes batches until one updates fewer rows than the batch size.
// Each batch is a single atomic UPDATE; a failed run resumes from the same
// candidate set on the next invocation. A held lock is a clean no-op exit.
func (b *Backfill) Run(ctx context.Context) (domain.BackfillResult, error) {
	var result domain.BackfillResult

	if b.locks != nil {
		unlock, err := b.locks.Acquire(ctx, backfillLockKey, b.lockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				b.logger.Info("backfill lock held by another run, exiting")
				return result, nil
			}
			return result, fmt.Errorf("backfill: acquire lock: %w", err)
		}
		defer unlock()
	}

	pending, err := b.store.CountPending(ctx)
	if err != nil {
		return result, fmt.Errorf("backfill: count pending: %w", err)
	}
	b.logger.Info("backfill starting",
		slog.Int64("pending", pending),
		slog.Int("batch_size", b.batchSize),
	)

	started := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("backfill: cancelled: %w", err)
		}

		updated, err := b.store.BackfillBatch(ctx, b.batchSize)
		if err != nil {
			return result, fmt.Errorf("backfill: batch %d: %w", result.Batches+1, err)
		}
		if updated > 0 {
			result.Batches++
			result.TotalUpdated += updated
			b.logger.Info("backfill batch complete",
				slog.Int("batch", result.Batches),
				slog.Int64("updated", updated),
				slog.Int64("total_updated", result.TotalUpdated),
			)
		}
		if updated < int64(b.batchSize) {
			break
		}

		timer := time.NewTimer(b.pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, fmt.Errorf("backfill: cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	took := time.Since(started)
	b.logger.Info("backfill complete",
		slog.Int64("total_updated", result.TotalUpdated),
		slog.Int("batches", result.Batches),
		slog.Duration("took", took.Round(time.Millisecond)),
	)

	if b.audit != nil {
		err := b.audit.Log(ctx, "backfill.user_transactions", map[string]any{
			"total_updated":  result.TotalUpdated,
			"batches":        result.Batches,
			"pending_before": pending,
			"duration_ms":    took.Milliseconds(),
		})
		if err != nil {
			b.logger.Warn("audit log failed", slog.String("error", err.Error()))
		}
	}

	return result, nil
}
