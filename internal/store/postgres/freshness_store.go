package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketsync/marketsync/internal/domain"
)

// monitoredTables maps each table the freshness calculator may inspect to its
// staleness timestamp column. Table and column names are interpolated into
// SQL, so they must come from this fixed registry, never from user input.
var monitoredTables = map[string]string{
	"markets":           "updated_at",
	"user_transactions": "created_at",
}

// FreshnessStore implements domain.FreshnessStore using PostgreSQL.
type FreshnessStore struct {
	pool *pgxpool.Pool
}

// NewFreshnessStore creates a new FreshnessStore backed by the given
// connection pool.
func NewFreshnessStore(pool *pgxpool.Pool) *FreshnessStore {
	return &FreshnessStore{pool: pool}
}

var _ domain.FreshnessStore = (*FreshnessStore)(nil)

// Tables returns the monitored table names in stable order.
func (s *FreshnessStore) Tables() []string {
	names := make([]string, 0, len(monitoredTables))
	for name := range monitoredTables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compute runs one aggregate query over the table and derives the freshness
// report relative to now. Row ages are computed inside the database so tables
// with millions of rows never cross the wire.
func (s *FreshnessStore) Compute(ctx context.Context, table string, now time.Time) (domain.FreshnessReport, error) {
	tsCol, ok := monitoredTables[table]
	if !ok {
		return domain.FreshnessReport{}, fmt.Errorf("postgres: freshness: %w: %s", domain.ErrUnknownTable, table)
	}

	query := fmt.Sprintf(`
		SELECT COUNT(*),
		       MAX(%[1]s),
		       percentile_cont(0.95) WITHIN GROUP (ORDER BY EXTRACT(EPOCH FROM ($1 - %[1]s)))
		FROM %[2]s`, tsCol, table)

	var (
		total  int64
		latest *time.Time
		p95    *float64
	)
	if err := s.pool.QueryRow(ctx, query, now).Scan(&total, &latest, &p95); err != nil {
		return domain.FreshnessReport{}, fmt.Errorf("postgres: freshness for %s: %w", table, err)
	}

	return buildReport(table, total, latest, p95, now), nil
}

// buildReport assembles a FreshnessReport from the aggregate query outputs.
// An empty table (zero count, NULL aggregates) yields a zero-valued report
// rather than an error.
func buildReport(table string, total int64, latest *time.Time, p95 *float64, now time.Time) domain.FreshnessReport {
	report := domain.FreshnessReport{
		Table:        table,
		TotalRecords: total,
	}
	if total == 0 || latest == nil {
		return report
	}
	report.LatestUpdate = latest
	report.FreshnessSeconds = now.Sub(*latest).Seconds()
	if p95 != nil {
		report.P95FreshnessSeconds = *p95
	}
	return report
}
