package handlers

import (
	"context"
	"net/http"
	"time"

	"manuscript-review/internal/logger"
)

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler answers liveness probes
type HealthHandler struct {
	store   Pinger
	version string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store Pinger, version string) *HealthHandler {
	return &HealthHandler{store: store, version: version}
}

// Health reports service and storage status
// @Summary Health check
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		logger.FromContext(r.Context()).Error("Health check failed", "error", err)
		JSONResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "storage": "error"})
		return
	}
	JSONResponse(w, http.StatusOK, map[string]string{"status": "healthy", "version": h.version})
}
