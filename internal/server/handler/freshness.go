package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/marketsync/marketsync/internal/domain"
)

// FreshnessService defines the methods the freshness handler requires from
// the service layer.
type FreshnessService interface {
	Freshness(ctx context.Context, table string) (domain.FreshnessReport, error)
	FreshnessAll(ctx context.Context) ([]domain.FreshnessReport, error)
}

// FreshnessHandler serves data-freshness reports over monitored tables.
type FreshnessHandler struct {
	freshness FreshnessService
	logger    *slog.Logger
}

// NewFreshnessHandler creates a FreshnessHandler with the given service and
// logger.
func NewFreshnessHandler(freshness FreshnessService, logger *slog.Logger) *FreshnessHandler {
	return &FreshnessHandler{
		freshness: freshness,
		logger:    logHandler(logger, "freshness"),
	}
}

// freshnessResponse wraps the multi-table report output.
type freshnessResponse struct {
	Reports []domain.FreshnessReport `json:"reports"`
}

// GetFreshness returns the freshness report for one table when ?table= is
// given, or for every monitored table otherwise.
// GET /api/freshness?table=markets
func (h *FreshnessHandler) GetFreshness(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")

	if table == "" {
		reports, err := h.freshness.FreshnessAll(r.Context())
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: freshness report failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to compute freshness")
			return
		}
		writeJSON(w, http.StatusOK, freshnessResponse{Reports: reports})
		return
	}

	report, err := h.freshness.Freshness(r.Context(), table)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownTable) {
			writeError(w, http.StatusNotFound, "unknown table "+strconv.Quote(table))
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: freshness report failed",
			slog.String("table", table),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute freshness")
		return
	}

	writeJSON(w, http.StatusOK, report)
}
