// Package server exposes the read-only HTTP API over markets, freshness
// reports, archived snapshots, and job history.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/marketsync/marketsync/internal/domain"
	"github.com/marketsync/marketsync/internal/server/handler"
	"github.com/marketsync/marketsync/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	RateLimit   int           // requests per window per client IP; 0 disables
	RateWindow  time.Duration // sliding window size
}

// Handlers aggregates the HTTP handlers the server registers. Nil entries are
// skipped, so each mode registers only the surfaces its dependencies support.
type Handlers struct {
	Status    *handler.StatusHandler
	Markets   *handler.MarketHandler
	Freshness *handler.FreshnessHandler
	Snapshots *handler.SnapshotHandler
	Jobs      *handler.JobsHandler
}

// Server is the headless HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux. The
// middleware chain applies rate limiting innermost, then the CORS allowlist,
// with request logging outermost so rejected requests still show up in the
// logs. A nil limiter disables rate limiting.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	if handlers.Status != nil {
		mux.HandleFunc("GET /api/health", handlers.Status.HealthCheck)
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}
	if handlers.Markets != nil {
		mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
		mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	}
	if handlers.Freshness != nil {
		mux.HandleFunc("GET /api/freshness", handlers.Freshness.GetFreshness)
	}
	if handlers.Snapshots != nil {
		mux.HandleFunc("GET /api/snapshots", handlers.Snapshots.ListSnapshots)
		mux.HandleFunc("GET /api/snapshots/{path...}", handlers.Snapshots.GetSnapshot)
	}
	if handlers.Jobs != nil {
		mux.HandleFunc("GET /api/jobs", handlers.Jobs.ListJobs)
	}

	// Build the middleware chain.
	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.CORS(cfg.CORSOrigins)(h)
	h = middleware.Logging(logger)(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
