package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/marketsync/marketsync/internal/domain"
)

type fakeArchiveStore struct {
	stale        []domain.MarketRecord
	archived     int64
	listCalls    int
	archiveCalls int
	cutoff       time.Time
}

func (f *fakeArchiveStore) ListStale(_ context.Context, cutoff time.Time) ([]domain.MarketRecord, error) {
	f.listCalls++
	f.cutoff = cutoff
	return f.stale, nil
}

func (f *fakeArchiveStore) ArchiveStale(_ context.Context, cutoff time.Time) (int64, error) {
	f.archiveCalls++
	f.cutoff = cutoff
	return f.archived, nil
}

type fakeSnapshotter struct {
	path    string
	err     error
	records int
}

func (f *fakeSnapshotter) SnapshotMarkets(_ context.Context, records []domain.MarketRecord, _ time.Time) (string, error) {
	f.records = len(records)
	if f.err != nil {
		return "", f.err
	}
	return f.path, nil
}

func TestArchiverSnapshotsThenArchives(t *testing.T) {
	t.Parallel()

	store := &fakeArchiveStore{
		stale:    []domain.MarketRecord{{MarketID: "m1"}, {MarketID: "m2"}},
		archived: 2,
	}
	snaps := &fakeSnapshotter{path: "snapshots/markets/20260825T120000Z.csv"}
	audit := &fakeAudit{}
	a := NewArchiver(store, snaps, nil, audit, ArchiverOptions{}, discardLogger())

	result, err := a.Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Archived != 2 {
		t.Errorf("Archived = %d, want 2", result.Archived)
	}
	if result.SnapshotPath != snaps.path {
		t.Errorf("SnapshotPath = %q, want %q", result.SnapshotPath, snaps.path)
	}
	if snaps.records != 2 {
		t.Errorf("snapshotter received %d records, want 2", snaps.records)
	}
	if store.archiveCalls != 1 {
		t.Errorf("ArchiveStale called %d times, want 1", store.archiveCalls)
	}
	if len(audit.jobs) != 1 || audit.jobs[0] != "archiver.markets" {
		t.Errorf("audit jobs = %v, want [archiver.markets]", audit.jobs)
	}

	// Default retention is 30 days.
	wantCutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	if diff := store.cutoff.Sub(wantCutoff).Abs(); diff > time.Minute {
		t.Errorf("cutoff = %v, want within a minute of %v", store.cutoff, wantCutoff)
	}
}

func TestArchiverNothingStale(t *testing.T) {
	t.Parallel()

	store := &fakeArchiveStore{}
	snaps := &fakeSnapshotter{path: "unused"}
	a := NewArchiver(store, snaps, nil, nil, ArchiverOptions{}, discardLogger())

	result, err := a.Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Archived != 0 || result.SnapshotPath != "" {
		t.Errorf("result = %+v, want zero result", result)
	}
	if store.archiveCalls != 0 {
		t.Errorf("ArchiveStale called %d times, want 0 when nothing is stale", store.archiveCalls)
	}
}

func TestArchiverWithoutSnapshotter(t *testing.T) {
	t.Parallel()

	store := &fakeArchiveStore{archived: 7}
	a := NewArchiver(store, nil, nil, nil, ArchiverOptions{RetentionDays: 60}, discardLogger())

	result, err := a.Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Archived != 7 || result.SnapshotPath != "" {
		t.Errorf("result = %+v, want Archived 7 with no snapshot", result)
	}
	if store.listCalls != 0 {
		t.Errorf("ListStale called %d times, want 0 when export is disabled", store.listCalls)
	}

	wantCutoff := time.Now().UTC().Add(-60 * 24 * time.Hour)
	if diff := store.cutoff.Sub(wantCutoff).Abs(); diff > time.Minute {
		t.Errorf("cutoff = %v, want within a minute of %v", store.cutoff, wantCutoff)
	}
}

func TestArchiverLockHeldExitsClean(t *testing.T) {
	t.Parallel()

	store := &fakeArchiveStore{archived: 3}
	locks := &fakeLockManager{acquireErr: fmt.Errorf("redis: lock: %w", domain.ErrLockHeld)}
	a := NewArchiver(store, nil, locks, nil, ArchiverOptions{}, discardLogger())

	result, err := a.Run(t.Context())
	if err != nil {
		t.Fatalf("Run = %v, want nil for held lock", err)
	}
	if result.Archived != 0 {
		t.Errorf("Archived = %d, want 0", result.Archived)
	}
	if store.archiveCalls != 0 {
		t.Errorf("ArchiveStale called %d times, want 0", store.archiveCalls)
	}
	if locks.key != "archiver" {
		t.Errorf("lock key = %q, want archiver", locks.key)
	}
}

func TestArchiverSnapshotFailureAborts(t *testing.T) {
	t.Parallel()

	store := &fakeArchiveStore{stale: []domain.MarketRecord{{MarketID: "m1"}}}
	snaps := &fakeSnapshotter{err: errors.New("bucket unavailable")}
	a := NewArchiver(store, snaps, nil, nil, ArchiverOptions{}, discardLogger())

	if _, err := a.Run(t.Context()); err == nil {
		t.Fatal("Run succeeded, want snapshot error")
	}
	if store.archiveCalls != 0 {
		t.Error("markets were archived despite a failed snapshot export")
	}
}

func TestParseCron(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 3 * * *", false},
		{"*/5 * * * *", true}, // step syntax unsupported
		{"0,30 * * * *", false},
		{"0 3 * *", true},
		{"a b c d e", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()
			_, err := parseCron(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseCron(%q) err = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestNextCronTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		expr  string
		after time.Time
		want  time.Time
	}{
		{
			name:  "daily at 3am",
			expr:  "0 3 * * *",
			after: time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
			want:  time.Date(2026, 1, 16, 3, 0, 0, 0, time.UTC),
		},
		{
			name:  "same day when still ahead",
			expr:  "0 3 * * *",
			after: time.Date(2026, 1, 15, 1, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC),
		},
		{
			name:  "half hour list",
			expr:  "0,30 * * * *",
			after: time.Date(2026, 1, 15, 10, 35, 0, 0, time.UTC),
			want:  time.Date(2026, 1, 15, 11, 0, 0, 0, time.UTC),
		},
		{
			name:  "next minute boundary",
			expr:  "* * * * *",
			after: time.Date(2026, 1, 15, 10, 35, 20, 0, time.UTC),
			want:  time.Date(2026, 1, 15, 10, 36, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := nextCronTime(tt.expr, tt.after)
			if err != nil {
				t.Fatalf("nextCronTime: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("nextCronTime = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextCronTimeRejectsBadExpr(t *testing.T) {
	t.Parallel()

	if _, err := nextCronTime("not a cron", time.Now()); err == nil {
		t.Fatal("nextCronTime accepted a malformed expression")
	}
}
