package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marketsync/marketsync/internal/domain"
)

// fakeStreamer blocks until cancelled, optionally failing immediately.
type fakeStreamer struct {
	started chan struct{}
	err     error
}

func newFakeStreamer(err error) *fakeStreamer {
	return &fakeStreamer{started: make(chan struct{}), err: err}
}

func (f *fakeStreamer) Run(ctx context.Context) error {
	close(f.started)
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

// signallingFreshnessSource closes computed on the first Compute call.
type signallingFreshnessSource struct {
	computed chan struct{}
	once     sync.Once
}

func (s *signallingFreshnessSource) Compute(context.Context, string, time.Time) (domain.FreshnessReport, error) {
	s.once.Do(func() { close(s.computed) })
	return domain.FreshnessReport{Table: "markets"}, nil
}

func (s *signallingFreshnessSource) Tables() []string { return []string{"markets"} }

func waitOrFatal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestOrchestratorRunsConfiguredLoops(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: make([]fakePage, 200)}
	poller := NewPoller(fetcher, &fakeSyncer{}, PollerOptions{}, discardLogger())
	streamer := newFakeStreamer(nil)
	source := &signallingFreshnessSource{computed: make(chan struct{})}
	reporter := NewFreshnessReporter(source, nil, discardLogger())

	orch := NewOrchestrator(poller, streamer, reporter, 5*time.Millisecond, time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx) }()

	waitOrFatal(t, streamer.started, "streamer start")
	waitOrFatal(t, source.computed, "freshness compute")
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v, want nil on cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not stop after cancel")
	}

	if fetcher.calls == 0 {
		t.Error("poller never fetched")
	}
}

func TestOrchestratorPropagatesLoopFailure(t *testing.T) {
	t.Parallel()

	streamErr := errors.New("stream down")
	fetcher := &fakeFetcher{pages: make([]fakePage, 200)}
	poller := NewPoller(fetcher, &fakeSyncer{}, PollerOptions{}, discardLogger())
	streamer := newFakeStreamer(streamErr)

	orch := NewOrchestrator(poller, streamer, nil, 5*time.Millisecond, time.Minute, discardLogger())

	err := orch.Run(t.Context())
	if !errors.Is(err, streamErr) {
		t.Fatalf("Run = %v, want wrapped %v", err, streamErr)
	}
}

func TestOrchestratorPollerOnly(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: make([]fakePage, 200)}
	poller := NewPoller(fetcher, &fakeSyncer{}, PollerOptions{}, discardLogger())

	orch := NewOrchestrator(poller, nil, nil, 5*time.Millisecond, time.Minute, discardLogger())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not stop after cancel")
	}
}
