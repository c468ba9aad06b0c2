package gamma

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marketsync/marketsync/internal/domain"
)

func TestListMarketsParams(t *testing.T) {
	t.Parallel()

	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		json.NewEncoder(w).Encode([]APIMarket{{ID: "1"}, {ID: "2"}})
	}))
	defer srv.Close()

	closed := false
	c := NewClient(Config{BaseURL: srv.URL})
	markets, err := c.ListMarkets(t.Context(), ListParams{
		Limit:     200,
		Offset:    400,
		Closed:    &closed,
		Order:     "volume24hr",
		Ascending: false,
	})
	if err != nil {
		t.Fatalf("ListMarkets: %v", err)
	}
	if len(markets) != 2 {
		t.Errorf("got %d markets", len(markets))
	}

	want := map[string]string{
		"limit":     "200",
		"offset":    "400",
		"closed":    "false",
		"order":     "volume24hr",
		"ascending": "false",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query %s = %q, want %q", k, gotQuery[k], v)
		}
	}
}

func TestListMarketsStatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status   int
		sentinel error
	}{
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusInternalServerError, domain.ErrTransient},
		{http.StatusBadGateway, domain.ErrTransient},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
		}))
		client := NewClient(Config{BaseURL: srv.URL})
		_, err := client.ListMarkets(t.Context(), ListParams{Limit: 10})
		if !errors.Is(err, c.sentinel) {
			t.Errorf("status %d: want %v, got %v", c.status, c.sentinel, err)
		}
		srv.Close()
	}
}

func TestListMarketsBadRequestNotTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.ListMarkets(t.Context(), ListParams{Limit: 10})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, domain.ErrTransient) {
		t.Error("4xx (other than 429) should not be transient")
	}
}

func TestGetMarket(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets/512329" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(APIMarket{ID: "512329", Question: "?"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	m, err := c.GetMarket(t.Context(), "512329")
	if err != nil {
		t.Fatalf("GetMarket: %v", err)
	}
	if m.ID != "512329" {
		t.Errorf("ID = %q", m.ID)
	}
}

func TestFetchPageCountsMalformed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("order"); got != "volume24hr" {
			t.Errorf("order = %q", got)
		}
		if got := r.URL.Query().Get("closed"); got != "false" {
			t.Errorf("closed = %q", got)
		}
		json.NewEncoder(w).Encode([]APIMarket{
			{ID: "1", Question: "ok", Volume: "10"},
			{ID: "", Question: "missing id"},
			{ID: "3", Volume: "not-a-number"},
			{ID: "4", Question: "also ok"},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	records, malformed, err := c.FetchPage(t.Context(), 200, 0)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if malformed != 2 {
		t.Errorf("malformed = %d, want 2", malformed)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].MarketID != "1" || records[1].MarketID != "4" {
		t.Errorf("record ids = %s, %s", records[0].MarketID, records[1].MarketID)
	}
}

func TestTransportErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.ListMarkets(t.Context(), ListParams{Limit: 10})
	if !errors.Is(err, domain.ErrTransient) {
		t.Errorf("transport failure should be transient, got %v", err)
	}
}
