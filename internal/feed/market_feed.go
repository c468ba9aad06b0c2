// Package feed keeps mid prices current between poll cycles by streaming
// the CLOB market channel over WebSocket.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/marketsync/marketsync/internal/domain"
	"github.com/marketsync/marketsync/internal/pipeline"
	"github.com/marketsync/marketsync/internal/platform/gamma"
)

const (
	reconnectBase = 2 * time.Second
	reconnectMax  = time.Minute

	// Sessions that survive this long reset the reconnect backoff.
	steadySession = time.Minute
)

// TokenSource lists the token IDs the feed should subscribe to.
type TokenSource interface {
	ListActiveTokenIDs(ctx context.Context, limit int) ([]string, error)
}

// MidPriceSink receives mid-price updates keyed by token ID.
type MidPriceSink interface {
	UpdateMidPriceByToken(ctx context.Context, tokenID string, mid float64) error
}

// Options tune one feed instance. Zero values select defaults.
type Options struct {
	MaxTokens      int           // subscription cap, default 200
	StalenessEvery time.Duration // staleness gauge interval, default 30s
}

// tokenBook is the tracked top of book for one token.
type tokenBook struct {
	bestBid   float64
	bestAsk   float64
	lastEvent time.Time
}

// MarketFeed subscribes the market channel for active tokens and pushes mid
// prices into the sink. It owns reconnection: each session gets a fresh
// WebSocket client, and backoff doubles across quick failures.
type MarketFeed struct {
	wsURL          string
	source         TokenSource
	sink           MidPriceSink
	maxTokens      int
	stalenessEvery time.Duration
	logger         *slog.Logger

	mu    sync.Mutex
	books map[string]*tokenBook
}

// NewMarketFeed creates a new MarketFeed.
func NewMarketFeed(wsURL string, source TokenSource, sink MidPriceSink, opts Options, logger *slog.Logger) *MarketFeed {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 200
	}
	if opts.StalenessEvery <= 0 {
		opts.StalenessEvery = 30 * time.Second
	}
	return &MarketFeed{
		wsURL:          wsURL,
		source:         source,
		sink:           sink,
		maxTokens:      opts.MaxTokens,
		stalenessEvery: opts.StalenessEvery,
		logger:         logger.With(slog.String("component", "market_feed")),
		books:          make(map[string]*tokenBook),
	}
}

// Run streams until the context is cancelled. Listing zero active tokens is
// a clean exit, not an error.
func (f *MarketFeed) Run(ctx context.Context) error {
	tokens, err := f.source.ListActiveTokenIDs(ctx, f.maxTokens)
	if err != nil {
		return fmt.Errorf("feed: list tokens: %w", err)
	}
	if len(tokens) == 0 {
		f.logger.Info("no active tokens to subscribe, feed exiting")
		return nil
	}

	go f.gaugeLoop(ctx)

	backoff := reconnectBase
	for {
		started := time.Now()
		err := f.runSession(ctx, tokens)
		if ctx.Err() != nil {
			f.logger.Info("feed stopped")
			return ctx.Err()
		}
		if err == nil {
			err = domain.ErrWSDisconnect
		}
		if time.Since(started) > steadySession {
			backoff = reconnectBase
		}

		f.logger.Warn("feed session ended, reconnecting",
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

// runSession runs one WebSocket session to completion: connect, subscribe,
// and block until the connection drops or the context is cancelled.
func (f *MarketFeed) runSession(ctx context.Context, tokens []string) error {
	client := gamma.NewWSClient(f.wsURL)
	defer client.Close()

	client.OnBook(func(msg gamma.BookMessage) { f.applyBook(ctx, msg) })
	client.OnPriceChange(func(msg gamma.PriceChangeMessage) { f.applyPriceChange(ctx, msg) })

	if err := client.Connect(ctx); err != nil {
		return err
	}
	if err := client.Subscribe(tokens); err != nil {
		return err
	}
	f.logger.Info("feed subscribed", slog.Int("tokens", len(tokens)))

	waitErr := make(chan error, 1)
	go func() { waitErr <- client.Wait() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-waitErr:
		return err
	}
}

// book returns the tracked state for a token, creating it on first sight.
// Caller must hold f.mu.
func (f *MarketFeed) book(tokenID string) *tokenBook {
	b, ok := f.books[tokenID]
	if !ok {
		b = &tokenBook{}
		f.books[tokenID] = b
	}
	return b
}

// applyBook replaces the tracked top of book from a full snapshot and pushes
// the resulting mid price.
func (f *MarketFeed) applyBook(ctx context.Context, msg gamma.BookMessage) {
	bid, ask, ok := gamma.BookTop(&msg)

	f.mu.Lock()
	b := f.book(msg.AssetID)
	if ok {
		b.bestBid, b.bestAsk = bid, ask
	}
	b.lastEvent = gamma.EventTime(msg.Timestamp)
	f.mu.Unlock()

	if !ok {
		return
	}
	f.pushMid(ctx, msg.AssetID, (bid+ask)/2)
}

// applyPriceChange nudges the tracked top of book. Without full depth a side
// only moves toward a better price; the next book snapshot trues it up.
func (f *MarketFeed) applyPriceChange(ctx context.Context, msg gamma.PriceChangeMessage) {
	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil || price <= 0 {
		return
	}

	f.mu.Lock()
	b := f.book(msg.AssetID)
	switch strings.ToUpper(msg.Side) {
	case "BUY":
		if price > b.bestBid {
			b.bestBid = price
		}
	case "SELL":
		if b.bestAsk == 0 || price < b.bestAsk {
			b.bestAsk = price
		}
	}
	b.lastEvent = gamma.EventTime(msg.Timestamp)
	bid, ask := b.bestBid, b.bestAsk
	f.mu.Unlock()

	if bid <= 0 || ask <= 0 {
		return
	}
	f.pushMid(ctx, msg.AssetID, (bid+ask)/2)
}

// pushMid writes one mid price to the sink; failures are logged, never fatal
// to the stream.
func (f *MarketFeed) pushMid(ctx context.Context, tokenID string, mid float64) {
	if err := f.sink.UpdateMidPriceByToken(ctx, tokenID, mid); err != nil {
		f.logger.Warn("mid price update failed",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
	}
}

// gaugeLoop periodically logs the p95 event age across subscribed tokens so
// a stalled feed is visible before the data goes bad.
func (f *MarketFeed) gaugeLoop(ctx context.Context) {
	ticker := time.NewTicker(f.stalenessEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			f.mu.Lock()
			ages := make([]float64, 0, len(f.books))
			for _, b := range f.books {
				ages = append(ages, now.Sub(b.lastEvent).Seconds())
			}
			f.mu.Unlock()

			if len(ages) == 0 {
				continue
			}
			f.logger.Info("feed staleness",
				slog.Int("tokens", len(ages)),
				slog.Float64("p95_age_s", pipeline.Quantile(ages, 0.95)),
			)
		}
	}
}
