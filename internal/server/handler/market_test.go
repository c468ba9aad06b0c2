package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marketsync/marketsync/internal/domain"
)

type fakeMarketService struct {
	records  map[string]domain.MarketRecord
	listOpts domain.ListOpts
	listErr  error
	countErr error
}

func (f *fakeMarketService) GetMarket(_ context.Context, id string) (domain.MarketRecord, error) {
	m, ok := f.records[id]
	if !ok {
		return domain.MarketRecord{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeMarketService) List(_ context.Context, opts domain.ListOpts) ([]domain.MarketRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.listOpts = opts
	out := make([]domain.MarketRecord, 0, len(f.records))
	for _, m := range f.records {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMarketService) Count(context.Context) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return int64(len(f.records)), nil
}

func sampleMarkets() map[string]domain.MarketRecord {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	return map[string]domain.MarketRecord{
		"mkt-1": {
			MarketID:        "mkt-1",
			Title:           "Will it rain tomorrow?",
			Status:          domain.MarketStatusActive,
			AcceptingOrders: true,
			Volume:          1200.5,
			OutcomePrices:   []float64{0.42, 0.58},
			ClobTokenIDs:    []string{"tok-a", "tok-b"},
			UpdatedAt:       now,
			CreatedAt:       now.Add(-24 * time.Hour),
		},
		"mkt-2": {
			MarketID: "mkt-2",
			Title:    "Resolved example",
			Status:   domain.MarketStatusResolved,
		},
	}
}

func TestListMarkets(t *testing.T) {
	t.Parallel()

	svc := &fakeMarketService{records: sampleMarkets()}
	h := NewMarketHandler(svc, discardLogger())

	rec := httptest.NewRecorder()
	h.ListMarkets(rec, httptest.NewRequest(http.MethodGet, "/api/markets?limit=10&status=resolved", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if svc.listOpts.Status != domain.MarketStatusResolved || svc.listOpts.Limit != 10 {
		t.Errorf("service saw opts %+v", svc.listOpts)
	}

	body := decodeJSON(t, rec)
	if got := body["total"].(float64); got != 2 {
		t.Errorf("total = %v, want 2", got)
	}
	if got := body["limit"].(float64); got != 10 {
		t.Errorf("limit = %v, want 10", got)
	}
	markets, ok := body["markets"].([]any)
	if !ok || len(markets) != 2 {
		t.Fatalf("markets = %v, want 2 entries", body["markets"])
	}
}

func TestListMarketsBadStatus(t *testing.T) {
	t.Parallel()

	h := NewMarketHandler(&fakeMarketService{}, discardLogger())
	rec := httptest.NewRecorder()
	h.ListMarkets(rec, httptest.NewRequest(http.MethodGet, "/api/markets?status=bogus", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListMarketsStoreFailure(t *testing.T) {
	t.Parallel()

	svc := &fakeMarketService{listErr: errors.New("connection refused")}
	h := NewMarketHandler(svc, discardLogger())
	rec := httptest.NewRecorder()
	h.ListMarkets(rec, httptest.NewRequest(http.MethodGet, "/api/markets", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if body := decodeJSON(t, rec); body["error"] == "" {
		t.Error("expected an error message in the body")
	}
}

func TestGetMarket(t *testing.T) {
	t.Parallel()

	h := NewMarketHandler(&fakeMarketService{records: sampleMarkets()}, discardLogger())

	r := httptest.NewRequest(http.MethodGet, "/api/markets/mkt-1", nil)
	r.SetPathValue("id", "mkt-1")
	rec := httptest.NewRecorder()
	h.GetMarket(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	body := decodeJSON(t, rec)
	if body["MarketID"] != "mkt-1" {
		t.Errorf("MarketID = %v, want mkt-1", body["MarketID"])
	}
}

func TestGetMarketNotFound(t *testing.T) {
	t.Parallel()

	h := NewMarketHandler(&fakeMarketService{records: sampleMarkets()}, discardLogger())

	r := httptest.NewRequest(http.MethodGet, "/api/markets/missing", nil)
	r.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()
	h.GetMarket(rec, r)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
