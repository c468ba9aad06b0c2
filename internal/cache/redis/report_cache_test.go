package redis

import (
	"testing"
	"time"

	"github.com/marketsync/marketsync/internal/domain"
)

func TestReportFieldsRoundTrip(t *testing.T) {
	t.Parallel()

	latest := time.Date(2025, 6, 1, 11, 58, 30, 0, time.UTC)
	in := domain.FreshnessReport{
		Table:               "markets",
		TotalRecords:        42,
		LatestUpdate:        &latest,
		FreshnessSeconds:    90,
		P95FreshnessSeconds: 94.05,
	}

	vals := map[string]string{}
	for k, v := range reportFields(in) {
		vals[k] = v.(string)
	}

	out, err := reportFromFields("markets", vals)
	if err != nil {
		t.Fatalf("reportFromFields: %v", err)
	}
	if out.TotalRecords != in.TotalRecords {
		t.Errorf("TotalRecords = %d, want %d", out.TotalRecords, in.TotalRecords)
	}
	if out.LatestUpdate == nil || !out.LatestUpdate.Equal(latest) {
		t.Errorf("LatestUpdate = %v, want %v", out.LatestUpdate, latest)
	}
	if out.FreshnessSeconds != 90 || out.P95FreshnessSeconds != 94.05 {
		t.Errorf("seconds = %v/%v", out.FreshnessSeconds, out.P95FreshnessSeconds)
	}
}

func TestReportFieldsEmptyTable(t *testing.T) {
	t.Parallel()

	in := domain.FreshnessReport{Table: "user_transactions"}

	vals := map[string]string{}
	for k, v := range reportFields(in) {
		vals[k] = v.(string)
	}

	out, err := reportFromFields("user_transactions", vals)
	if err != nil {
		t.Fatalf("reportFromFields: %v", err)
	}
	if out.LatestUpdate != nil {
		t.Errorf("LatestUpdate = %v, want nil", out.LatestUpdate)
	}
	if out.TotalRecords != 0 || out.FreshnessSeconds != 0 || out.P95FreshnessSeconds != 0 {
		t.Errorf("zero report round-tripped to %+v", out)
	}
}

func TestReportFromFieldsRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := reportFromFields("markets", map[string]string{
		"total": "not-a-number", "latest": "0", "fresh": "0", "p95": "0",
	})
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestKeyPrefixes(t *testing.T) {
	t.Parallel()

	if got := marketKey("517310"); got != "market:517310" {
		t.Errorf("marketKey = %q", got)
	}
	if got := reportKey("markets"); got != "freshness:markets" {
		t.Errorf("reportKey = %q", got)
	}
	if got := lockKey("backfill:user_transactions"); got != "locks:backfill:user_transactions" {
		t.Errorf("lockKey = %q", got)
	}
	if got := rateLimitKey("10.0.0.1"); got != "ratelimit:10.0.0.1" {
		t.Errorf("rateLimitKey = %q", got)
	}
}
