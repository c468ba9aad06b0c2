package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves the liveness and process-status endpoints.
type StatusHandler struct {
	Mode    string
	Started time.Time
}

// NewStatusHandler creates a StatusHandler for the given run mode.
func NewStatusHandler(mode string) *StatusHandler {
	return &StatusHandler{Mode: mode, Started: time.Now().UTC()}
}

// HealthCheck responds 200 while the process is up. Load balancer probes hit
// this; operators wanting detail should read GET /api/status instead.
// GET /api/health
func (h *StatusHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetStatus responds with the current run mode and process uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"started_at":     h.Started.Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.Started).Seconds()),
	})
}
