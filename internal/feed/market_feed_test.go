package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/marketsync/marketsync/internal/platform/gamma"
)

type fakeSource struct {
	tokens []string
	err    error
}

func (f *fakeSource) ListActiveTokenIDs(context.Context, int) ([]string, error) {
	return f.tokens, f.err
}

type midUpdate struct {
	tokenID string
	mid     float64
}

type fakeSink struct {
	updates []midUpdate
	err     error
}

func (f *fakeSink) UpdateMidPriceByToken(_ context.Context, tokenID string, mid float64) error {
	f.updates = append(f.updates, midUpdate{tokenID, mid})
	return f.err
}

func newTestFeed(sink *fakeSink) *MarketFeed {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewMarketFeed("ws://unused", &fakeSource{}, sink, Options{}, logger)
}

func (f *fakeSink) lastMid(t *testing.T) midUpdate {
	t.Helper()
	if len(f.updates) == 0 {
		t.Fatal("no mid updates recorded")
	}
	return f.updates[len(f.updates)-1]
}

func TestApplyBookPushesMid(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	f := newTestFeed(sink)

	f.applyBook(t.Context(), gamma.BookMessage{
		AssetID: "tok-1",
		Bids:    []gamma.WSPriceLevel{{Price: "0.40", Size: "100"}, {Price: "0.42", Size: "50"}},
		Asks:    []gamma.WSPriceLevel{{Price: "0.48", Size: "80"}, {Price: "0.46", Size: "20"}},
	})

	got := sink.lastMid(t)
	if got.tokenID != "tok-1" {
		t.Errorf("tokenID = %q, want tok-1", got.tokenID)
	}
	if math.Abs(got.mid-0.44) > 1e-9 {
		t.Errorf("mid = %v, want 0.44", got.mid)
	}

	b := f.books["tok-1"]
	if b == nil || b.bestBid != 0.42 || b.bestAsk != 0.46 {
		t.Errorf("tracked book = %+v, want bests 0.42/0.46", b)
	}
	if b != nil && b.lastEvent.IsZero() {
		t.Error("lastEvent not recorded")
	}
}

func TestApplyBookOneSided(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	f := newTestFeed(sink)

	f.applyBook(t.Context(), gamma.BookMessage{
		AssetID: "tok-1",
		Bids:    []gamma.WSPriceLevel{{Price: "0.40", Size: "100"}},
	})

	if len(sink.updates) != 0 {
		t.Errorf("got %d mid updates from a one-sided book, want 0", len(sink.updates))
	}
	if b := f.books["tok-1"]; b == nil || b.lastEvent.IsZero() {
		t.Error("one-sided books should still record the event time")
	}
}

func TestApplyPriceChangeImprovesSides(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	f := newTestFeed(sink)

	f.applyBook(t.Context(), gamma.BookMessage{
		AssetID: "tok-1",
		Bids:    []gamma.WSPriceLevel{{Price: "0.42", Size: "50"}},
		Asks:    []gamma.WSPriceLevel{{Price: "0.46", Size: "20"}},
	})

	// A better bid moves the mid up.
	f.applyPriceChange(t.Context(), gamma.PriceChangeMessage{
		AssetID: "tok-1", Side: "BUY", Price: "0.45", Size: "10",
	})
	if got := sink.lastMid(t); math.Abs(got.mid-0.455) > 1e-9 {
		t.Errorf("mid after bid improvement = %v, want 0.455", got.mid)
	}

	// A worse bid leaves the tracked top alone.
	f.applyPriceChange(t.Context(), gamma.PriceChangeMessage{
		AssetID: "tok-1", Side: "buy", Price: "0.30", Size: "10",
	})
	if b := f.books["tok-1"]; b.bestBid != 0.45 {
		t.Errorf("bestBid = %v, want 0.45 after a worse bid", b.bestBid)
	}

	// A better ask moves the mid down.
	f.applyPriceChange(t.Context(), gamma.PriceChangeMessage{
		AssetID: "tok-1", Side: "SELL", Price: "0.455", Size: "10",
	})
	if b := f.books["tok-1"]; b.bestAsk != 0.455 {
		t.Errorf("bestAsk = %v, want 0.455 after an ask improvement", b.bestAsk)
	}
}

func TestApplyPriceChangeBeforeSnapshot(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	f := newTestFeed(sink)

	// Only one side known: no mid to push yet.
	f.applyPriceChange(t.Context(), gamma.PriceChangeMessage{
		AssetID: "tok-1", Side: "BUY", Price: "0.40", Size: "10",
	})
	if len(sink.updates) != 0 {
		t.Errorf("got %d mid updates with only a bid tracked, want 0", len(sink.updates))
	}
}

func TestApplyPriceChangeIgnoresGarbage(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	f := newTestFeed(sink)

	f.applyPriceChange(t.Context(), gamma.PriceChangeMessage{
		AssetID: "tok-1", Side: "BUY", Price: "not-a-price",
	})
	if len(sink.updates) != 0 || len(f.books) != 0 {
		t.Error("unparsable price changes should be dropped")
	}
}

func TestRunNoActiveTokens(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := NewMarketFeed("ws://unused", &fakeSource{}, &fakeSink{}, Options{}, logger)

	if err := f.Run(t.Context()); err != nil {
		t.Fatalf("Run = %v, want nil when nothing is subscribable", err)
	}
}

func TestRunSourceError(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	source := &fakeSource{err: errors.New("db down")}
	f := NewMarketFeed("ws://unused", source, &fakeSink{}, Options{}, logger)

	if err := f.Run(t.Context()); err == nil {
		t.Fatal("Run succeeded, want token listing error")
	}
}
