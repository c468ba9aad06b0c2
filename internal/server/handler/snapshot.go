package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/marketsync/marketsync/internal/domain"
)

// SnapshotHandler serves archived CSV snapshots out of object storage.
type SnapshotHandler struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewSnapshotHandler creates a SnapshotHandler backed by the given blob
// reader.
func NewSnapshotHandler(blobs domain.BlobReader, logger *slog.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		blobs:  blobs,
		logger: logHandler(logger, "snapshots"),
	}
}

// listSnapshotsResponse wraps the snapshot listing output.
type listSnapshotsResponse struct {
	Snapshots []domain.BlobInfo `json:"snapshots"`
	Prefix    string            `json:"prefix"`
}

// ListSnapshots lists stored snapshot objects below a prefix, defaulting to
// the archiver's snapshot root.
// GET /api/snapshots?prefix=snapshots/markets/
func (h *SnapshotHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = "snapshots/"
	}

	infos, err := h.blobs.List(r.Context(), prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list snapshots failed",
			slog.String("prefix", prefix),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}

	writeJSON(w, http.StatusOK, listSnapshotsResponse{Snapshots: infos, Prefix: prefix})
}

// GetSnapshot streams one stored snapshot back to the caller.
// GET /api/snapshots/{path...}
func (h *SnapshotHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r, "path")
	if path == "" || strings.Contains(path, "..") {
		writeError(w, http.StatusBadRequest, "missing or invalid snapshot path")
		return
	}

	rc, err := h.blobs.Get(r.Context(), path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get snapshot failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to fetch snapshot")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/csv")
	if _, err := io.Copy(w, rc); err != nil {
		// Headers are already out; all we can do is note the broken stream.
		h.logger.WarnContext(r.Context(), "handler: snapshot stream interrupted",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
