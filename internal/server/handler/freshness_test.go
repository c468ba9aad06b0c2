package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marketsync/marketsync/internal/domain"
)

type fakeFreshnessService struct {
	reports map[string]domain.FreshnessReport
}

func (f *fakeFreshnessService) Freshness(_ context.Context, table string) (domain.FreshnessReport, error) {
	r, ok := f.reports[table]
	if !ok {
		return domain.FreshnessReport{}, fmt.Errorf("freshness %q: %w", table, domain.ErrUnknownTable)
	}
	return r, nil
}

func (f *fakeFreshnessService) FreshnessAll(ctx context.Context) ([]domain.FreshnessReport, error) {
	out := make([]domain.FreshnessReport, 0, len(f.reports))
	for _, r := range f.reports {
		out = append(out, r)
	}
	return out, nil
}

func sampleReports() map[string]domain.FreshnessReport {
	latest := time.Date(2026, 2, 10, 11, 59, 0, 0, time.UTC)
	return map[string]domain.FreshnessReport{
		"markets": {
			Table:               "markets",
			TotalRecords:        1500,
			LatestUpdate:        &latest,
			FreshnessSeconds:    60,
			P95FreshnessSeconds: 340,
		},
		"user_transactions": {
			Table:        "user_transactions",
			TotalRecords: 0,
		},
	}
}

func TestGetFreshnessSingleTable(t *testing.T) {
	t.Parallel()

	h := NewFreshnessHandler(&fakeFreshnessService{reports: sampleReports()}, discardLogger())
	rec := httptest.NewRecorder()
	h.GetFreshness(rec, httptest.NewRequest(http.MethodGet, "/api/freshness?table=markets", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	body := decodeJSON(t, rec)
	if body["Table"] != "markets" {
		t.Errorf("Table = %v, want markets", body["Table"])
	}
	if got := body["P95FreshnessSeconds"].(float64); got != 340 {
		t.Errorf("P95FreshnessSeconds = %v, want 340", got)
	}
}

func TestGetFreshnessUnknownTable(t *testing.T) {
	t.Parallel()

	h := NewFreshnessHandler(&fakeFreshnessService{reports: sampleReports()}, discardLogger())
	rec := httptest.NewRecorder()
	h.GetFreshness(rec, httptest.NewRequest(http.MethodGet, "/api/freshness?table=orders", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetFreshnessAllTables(t *testing.T) {
	t.Parallel()

	h := NewFreshnessHandler(&fakeFreshnessService{reports: sampleReports()}, discardLogger())
	rec := httptest.NewRecorder()
	h.GetFreshness(rec, httptest.NewRequest(http.MethodGet, "/api/freshness", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeJSON(t, rec)
	reports, ok := body["reports"].([]any)
	if !ok || len(reports) != 2 {
		t.Fatalf("reports = %v, want 2 entries", body["reports"])
	}
}
