package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/marketsync/marketsync/internal/domain"
)

// archiverLockKey guards archive runs across processes.
const archiverLockKey = "archiver"

// ArchiveStore is the slice of the market store the archiver needs.
type ArchiveStore interface {
	ListStale(ctx context.Context, cutoff time.Time) ([]domain.MarketRecord, error)
	ArchiveStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// Snapshotter exports market rows to object storage before archival.
type Snapshotter interface {
	SnapshotMarkets(ctx context.Context, records []domain.MarketRecord, asOf time.Time) (string, error)
}

// ArchiverOptions tune the archiver. Zero values select defaults.
type ArchiverOptions struct {
	RetentionDays int           // staleness horizon, default 30
	LockTTL       time.Duration // distributed lock TTL, default 10m
}

// Archiver transitions markets untouched for longer than the retention
// horizon to ARCHIVED, optionally exporting a CSV snapshot first. Rows are
// never deleted.
type Archiver struct {
	store         ArchiveStore
	snaps         Snapshotter        // nil disables snapshot export
	locks         domain.LockManager // nil disables locking
	audit         AuditLog           // nil disables auditing
	retentionDays int
	lockTTL       time.Duration
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(store ArchiveStore, snaps Snapshotter, locks domain.LockManager, audit AuditLog, opts ArchiverOptions, logger *slog.Logger) *Archiver {
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 30
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	return &Archiver{
		store:         store,
		snaps:         snaps,
		locks:         locks,
		audit:         audit,
		retentionDays: opts.RetentionDays,
		lockTTL:       opts.LockTTL,
		logger:        logger,
	}
}

// Run executes a single archive pass: snapshot the stale rows (when export
// is enabled), then flip their status. A held lock is a clean no-op exit.
func (a *Archiver) Run(ctx context.Context) (domain.ArchiveResult, error) {
	var result domain.ArchiveResult

	if a.locks != nil {
		unlock, err := a.locks.Acquire(ctx, archiverLockKey, a.lockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				a.logger.Info("archiver lock held by another run, exiting")
				return result, nil
			}
			return result, fmt.Errorf("archiver: acquire lock: %w", err)
		}
		defer unlock()
	}

	now := time.Now().UTC()
	cutoff := now.Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.Info("archive run starting",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	if a.snaps != nil {
		stale, err := a.store.ListStale(ctx, cutoff)
		if err != nil {
			return result, fmt.Errorf("archiver: list stale: %w", err)
		}
		if len(stale) == 0 {
			a.logger.Info("no stale markets to archive")
			return result, nil
		}

		path, err := a.snaps.SnapshotMarkets(ctx, stale, now)
		if err != nil {
			return result, fmt.Errorf("archiver: export snapshot: %w", err)
		}
		result.SnapshotPath = path
		a.logger.Info("snapshot exported",
			slog.String("path", path),
			slog.Int("records", len(stale)),
		)
	}

	archived, err := a.store.ArchiveStale(ctx, cutoff)
	if err != nil {
		return result, fmt.Errorf("archiver: archive stale: %w", err)
	}
	result.Archived = archived

	a.logger.Info("archive run complete",
		slog.Int64("archived", archived),
		slog.String("snapshot", result.SnapshotPath),
	)

	if a.audit != nil && archived > 0 {
		err := a.audit.Log(ctx, "archiver.markets", map[string]any{
			"archived":       archived,
			"snapshot_path":  result.SnapshotPath,
			"cutoff":         cutoff.Format(time.RFC3339),
			"retention_days": a.retentionDays,
		})
		if err != nil {
			a.logger.Warn("audit log failed", slog.String("error", err.Error()))
		}
	}

	return result, nil
}

// RunCron runs the archiver on a cron schedule until the context is
// cancelled. Expressions use the standard 5-field format:
// "minute hour day-of-month month day-of-week".
//
// Example: "0 3 * * *" runs daily at 3:00 AM.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	a.logger.Info("archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("archiver: parse cron %q: %w", cronExpr, err)
		}

		a.logger.Info("archiver waiting for next trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", time.Until(next).Round(time.Second)),
		)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if _, err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField represents a parsed cron field that can match against a value.
type cronField struct {
	wildcard bool
	values   []int
}

// matches returns true if the given value matches this cron field.
func (f cronField) matches(val int) bool {
	if f.wildcard {
		return true
	}
	for _, v := range f.values {
		if v == val {
			return true
		}
	}
	return false
}

// parseCronField parses a single cron field (e.g. "0", "*", "1,15").
func parseCronField(field string) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}

	parts := strings.Split(field, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.Atoi(p)
		if err != nil {
			return cronField{}, fmt.Errorf("invalid cron field value %q: %w", p, err)
		}
		values = append(values, v)
	}
	return cronField{values: values}, nil
}

// parsedCron holds five parsed cron fields.
type parsedCron struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

// matchesTime returns true if the given time matches all five cron fields.
func (c parsedCron) matchesTime(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dayOfMonth.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dayOfWeek.matches(int(t.Weekday()))
}

// parseCron parses a 5-field cron expression into a parsedCron struct.
func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	minute, err := parseCronField(fields[0])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing minute field: %w", err)
	}
	hour, err := parseCronField(fields[1])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing hour field: %w", err)
	}
	dayOfMonth, err := parseCronField(fields[2])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-month field: %w", err)
	}
	month, err := parseCronField(fields[3])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing month field: %w", err)
	}
	dayOfWeek, err := parseCronField(fields[4])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-week field: %w", err)
	}

	return parsedCron{
		minute:     minute,
		hour:       hour,
		dayOfMonth: dayOfMonth,
		month:      month,
		dayOfWeek:  dayOfWeek,
	}, nil
}

// nextCronTime calculates the next time after 'after' that matches the given
// cron expression. It searches minute-by-minute up to one year ahead.
func nextCronTime(cronExpr string, after time.Time) (time.Time, error) {
	cron, err := parseCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}

	// Start from the next minute boundary.
	candidate := after.Truncate(time.Minute).Add(time.Minute)

	// Search up to one year ahead to avoid infinite loops.
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if cron.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}

	return time.Time{}, fmt.Errorf("no matching cron time found within one year for %q", cronExpr)
}
