package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/marketsync/marketsync/internal/domain"
)

// JobLog defines the read side of the job audit trail that this handler
// requires.
type JobLog interface {
	ListRecent(ctx context.Context, limit int) ([]domain.AuditEntry, error)
}

// JobsHandler serves the history of job runs recorded by the pipelines.
type JobsHandler struct {
	jobs   JobLog
	logger *slog.Logger
}

// NewJobsHandler creates a JobsHandler backed by the given audit log.
func NewJobsHandler(jobs JobLog, logger *slog.Logger) *JobsHandler {
	return &JobsHandler{
		jobs:   jobs,
		logger: logHandler(logger, "jobs"),
	}
}

// listJobsResponse wraps the job history output.
type listJobsResponse struct {
	Jobs  []domain.AuditEntry `json:"jobs"`
	Limit int                 `json:"limit"`
}

// ListJobs returns the most recent job executions, newest first.
// GET /api/jobs?limit=50
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	entries, err := h.jobs.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list jobs failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	writeJSON(w, http.StatusOK, listJobsResponse{Jobs: entries, Limit: limit})
}
