package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether the contact store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves /health.
type HealthHandler struct {
	pinger  Pinger
	timeout time.Duration
	logger  *slog.Logger
}

func NewHealthHandler(p Pinger, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{pinger: p, timeout: 2 * time.Second, logger: logger}
}

func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.pinger.Ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "health check failed", "request_id", RequestIDFromContext(ctx), "error", err)
		writeJSON(w, h.logger, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}
