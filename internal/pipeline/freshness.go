package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/marketsync/marketsync/internal/domain"
)

// AuditLog is the write side of the job audit trail. The jobs in this
// package record one entry per completed run.
type AuditLog interface {
	Log(ctx context.Context, job string, detail map[string]any) error
}

// FreshnessReporter runs freshness reports over the monitored tables, either
// one-shot for the CLI or periodically alongside a long-running mode.
type FreshnessReporter struct {
	source domain.FreshnessStore
	audit  AuditLog // nil disables auditing
	logger *slog.Logger
}

// NewFreshnessReporter creates a new FreshnessReporter.
func NewFreshnessReporter(source domain.FreshnessStore, audit AuditLog, logger *slog.Logger) *FreshnessReporter {
	return &FreshnessReporter{
		source: source,
		audit:  audit,
		logger: logger,
	}
}

// Report computes and logs a freshness report for each named table, or for
// every monitored table when tables is empty. It fails on the first
// erroring table, returning the reports computed so far.
func (r *FreshnessReporter) Report(ctx context.Context, tables []string) ([]domain.FreshnessReport, error) {
	if len(tables) == 0 {
		tables = r.source.Tables()
	}
	now := time.Now().UTC()

	reports := make([]domain.FreshnessReport, 0, len(tables))
	for _, table := range tables {
		report, err := r.source.Compute(ctx, table, now)
		if err != nil {
			return reports, fmt.Errorf("freshness: %w", err)
		}
		reports = append(reports, report)

		attrs := []any{
			slog.String("table", report.Table),
			slog.Int64("total_records", report.TotalRecords),
			slog.Float64("freshness_s", report.FreshnessSeconds),
			slog.Float64("p95_freshness_s", report.P95FreshnessSeconds),
		}
		if report.LatestUpdate != nil {
			attrs = append(attrs, slog.Time("latest_update", *report.LatestUpdate))
		}
		r.logger.Info("freshness report", attrs...)
	}

	r.logAudit(ctx, reports)
	return reports, nil
}

// logAudit records the run; audit failures are logged and swallowed.
func (r *FreshnessReporter) logAudit(ctx context.Context, reports []domain.FreshnessReport) {
	if r.audit == nil || len(reports) == 0 {
		return
	}

	detail := map[string]any{"tables": len(reports)}
	for _, report := range reports {
		detail[report.Table] = map[string]any{
			"total_records":   report.TotalRecords,
			"freshness_s":     report.FreshnessSeconds,
			"p95_freshness_s": report.P95FreshnessSeconds,
		}
	}

	if err := r.audit.Log(ctx, "freshness.report", detail); err != nil {
		r.logger.Warn("audit log failed", slog.String("error", err.Error()))
	}
}

// RunPeriodic reports on every monitored table at the given interval until
// the context is cancelled. Report failures are logged, never fatal.
func (r *FreshnessReporter) RunPeriodic(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("freshness reporter stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Report(ctx, nil); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.Error("freshness report failed", slog.String("error", err.Error()))
			}
		}
	}
}
