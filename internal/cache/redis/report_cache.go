package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marketsync/marketsync/internal/domain"
)

// defaultReportTTL keeps cached reports short-lived; freshness numbers age
// the moment they are computed.
const defaultReportTTL = 30 * time.Second

// ReportCache caches freshness reports so dashboards polling the HTTP API do
// not re-run the percentile aggregate on every request. Each report is a
// hash at freshness:{table} with one field per report figure.
type ReportCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewReportCache creates a ReportCache backed by the given Client. A zero or
// negative ttl selects the default of thirty seconds.
func NewReportCache(c *Client, ttl time.Duration) *ReportCache {
	if ttl <= 0 {
		ttl = defaultReportTTL
	}
	return &ReportCache{rdb: c.Underlying(), ttl: ttl}
}

var _ domain.FreshnessCache = (*ReportCache)(nil)

func reportKey(table string) string { return "freshness:" + table }

// reportFields flattens a report into hash fields. LatestUpdate is stored as
// Unix nanoseconds, zero when the table was empty.
func reportFields(r domain.FreshnessReport) map[string]any {
	var latest int64
	if r.LatestUpdate != nil {
		latest = r.LatestUpdate.UnixNano()
	}
	return map[string]any{
		"total":  strconv.FormatInt(r.TotalRecords, 10),
		"latest": strconv.FormatInt(latest, 10),
		"fresh":  strconv.FormatFloat(r.FreshnessSeconds, 'f', -1, 64),
		"p95":    strconv.FormatFloat(r.P95FreshnessSeconds, 'f', -1, 64),
	}
}

// reportFromFields is the inverse of reportFields.
func reportFromFields(table string, vals map[string]string) (domain.FreshnessReport, error) {
	report := domain.FreshnessReport{Table: table}

	total, err := strconv.ParseInt(vals["total"], 10, 64)
	if err != nil {
		return domain.FreshnessReport{}, fmt.Errorf("parse total %q: %w", vals["total"], err)
	}
	report.TotalRecords = total

	latest, err := strconv.ParseInt(vals["latest"], 10, 64)
	if err != nil {
		return domain.FreshnessReport{}, fmt.Errorf("parse latest %q: %w", vals["latest"], err)
	}
	if latest != 0 {
		t := time.Unix(0, latest).UTC()
		report.LatestUpdate = &t
	}

	report.FreshnessSeconds, err = strconv.ParseFloat(vals["fresh"], 64)
	if err != nil {
		return domain.FreshnessReport{}, fmt.Errorf("parse fresh %q: %w", vals["fresh"], err)
	}
	report.P95FreshnessSeconds, err = strconv.ParseFloat(vals["p95"], 64)
	if err != nil {
		return domain.FreshnessReport{}, fmt.Errorf("parse p95 %q: %w", vals["p95"], err)
	}
	return report, nil
}

// Set stores a report under its table name.
func (rc *ReportCache) Set(ctx context.Context, report domain.FreshnessReport) error {
	key := reportKey(report.Table)

	pipe := rc.rdb.TxPipeline()
	pipe.HSet(ctx, key, reportFields(report))
	pipe.Expire(ctx, key, rc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set freshness report %s: %w", report.Table, err)
	}
	return nil
}

// Get retrieves the cached report for a table. It returns domain.ErrNotFound
// when no report is cached or the cached one has expired.
func (rc *ReportCache) Get(ctx context.Context, table string) (domain.FreshnessReport, error) {
	vals, err := rc.rdb.HGetAll(ctx, reportKey(table)).Result()
	if err != nil {
		return domain.FreshnessReport{}, fmt.Errorf("redis: get freshness report %s: %w", table, err)
	}
	if len(vals) == 0 {
		return domain.FreshnessReport{}, domain.ErrNotFound
	}

	report, err := reportFromFields(table, vals)
	if err != nil {
		return domain.FreshnessReport{}, fmt.Errorf("redis: decode freshness report %s: %w", table, err)
	}
	return report, nil
}
