package s3blob

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/marketsync/marketsync/internal/domain"
)

type captureWriter struct {
	method      string
	path        string
	contentType string
	data        []byte
}

func (w *captureWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	w.method = "put"
	w.path = path
	w.contentType = contentType
	w.data, _ = io.ReadAll(data)
	return nil
}

func (w *captureWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	w.method = "multipart"
	w.path = path
	w.data, _ = io.ReadAll(data)
	return nil
}

func sampleMarkets() []domain.MarketRecord {
	mid := 0.44
	ts := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	return []domain.MarketRecord{
		{
			MarketID:        "m1",
			Title:           "Will X happen, or not?",
			Status:          domain.MarketStatusClosed,
			AcceptingOrders: false,
			Volume:          1500.5,
			Liquidity:       320,
			OutcomePrices:   []float64{0.62, 0.38},
			ClobTokenIDs:    []string{"tok-a", "tok-b"},
			LastMidPrice:    &mid,
			UpdatedAt:       ts,
			CreatedAt:       ts.Add(-24 * time.Hour),
		},
		{
			MarketID:  "m2",
			Title:     "Another market",
			Status:    domain.MarketStatusResolved,
			UpdatedAt: ts,
			CreatedAt: ts,
		},
	}
}

func TestSnapshotMarkets(t *testing.T) {
	t.Parallel()

	w := &captureWriter{}
	s := NewSnapshotter(w)
	asOf := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)

	path, err := s.SnapshotMarkets(t.Context(), sampleMarkets(), asOf)
	if err != nil {
		t.Fatalf("SnapshotMarkets: %v", err)
	}
	if path != "snapshots/markets/20250601T030000Z.csv" {
		t.Errorf("path = %q", path)
	}
	if w.method != "put" || w.contentType != "text/csv" {
		t.Errorf("upload = %s/%s, want put/text/csv", w.method, w.contentType)
	}

	rows, err := csv.NewReader(bytes.NewReader(w.data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if rows[0][0] != "market_id" {
		t.Errorf("header = %v", rows[0])
	}

	m1 := rows[1]
	if m1[0] != "m1" || m1[2] != "CLOSED" || m1[3] != "false" {
		t.Errorf("m1 row = %v", m1)
	}
	if m1[6] != "0.62;0.38" || m1[7] != "tok-a;tok-b" {
		t.Errorf("m1 arrays = %q / %q", m1[6], m1[7])
	}
	if m1[8] != "0.44" {
		t.Errorf("m1 mid = %q", m1[8])
	}

	// Commas inside the title must survive the round trip.
	if m1[1] != "Will X happen, or not?" {
		t.Errorf("m1 title = %q", m1[1])
	}

	m2 := rows[2]
	if m2[8] != "" {
		t.Errorf("m2 mid = %q, want empty", m2[8])
	}
	if m2[6] != "" || m2[7] != "" {
		t.Errorf("m2 arrays = %q / %q, want empty", m2[6], m2[7])
	}
}

func TestSnapshotMarketsEmpty(t *testing.T) {
	t.Parallel()

	w := &captureWriter{}
	s := NewSnapshotter(w)

	path, err := s.SnapshotMarkets(t.Context(), nil, time.Now())
	if err != nil {
		t.Fatalf("SnapshotMarkets: %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty", path)
	}
	if w.method != "" {
		t.Errorf("writer called with method %q on empty input", w.method)
	}
}

func TestSnapshotMarketsLargeUsesMultipart(t *testing.T) {
	t.Parallel()

	w := &captureWriter{}
	s := NewSnapshotter(w)
	s.cutoff = 64 // force the multipart path without a giant fixture

	if _, err := s.SnapshotMarkets(t.Context(), sampleMarkets(), time.Now()); err != nil {
		t.Fatalf("SnapshotMarkets: %v", err)
	}
	if w.method != "multipart" {
		t.Errorf("upload method = %q, want multipart", w.method)
	}
}

func TestSnapshotPathFormat(t *testing.T) {
	t.Parallel()

	got := snapshotPath("markets", time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC))
	want := regexp.MustCompile(`^snapshots/markets/\d{8}T\d{6}Z\.csv$`)
	if !want.MatchString(got) {
		t.Errorf("snapshotPath = %q", got)
	}
	if !strings.Contains(got, "20251231T235959Z") {
		t.Errorf("snapshotPath = %q, want embedded UTC stamp", got)
	}
}
