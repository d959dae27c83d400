package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"identity-reconciliation/internal/database"
	"identity-reconciliation/internal/models"
	"identity-reconciliation/internal/service"
)

const maxBodyBytes = 1 << 20

// Identifier resolves a request to its consolidated identity.
type Identifier interface {
	Identify(ctx context.Context, req models.IdentifyRequest) (*models.IdentifyResponse, error)
}

// IdentifyHandler handles the /identify endpoint
type IdentifyHandler struct {
	service Identifier
	logger  *slog.Logger
}

// NewIdentifyHandler creates a new identify handler
func NewIdentifyHandler(svc Identifier, logger *slog.Logger) *IdentifyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentifyHandler{service: svc, logger: logger}
}

// Handle processes the identify request
func (h *IdentifyHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.logger.With("request_id", RequestIDFromContext(ctx))

	var req models.IdentifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		log.WarnContext(ctx, "error decoding request", "error", err)
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	response, err := h.service.Identify(ctx, req)
	switch {
	case errors.Is(err, service.ErrEmptyFragment):
		http.Error(w, "Either email or phoneNumber must be provided", http.StatusBadRequest)
		return
	case database.IsTimeout(err):
		log.WarnContext(ctx, "identify request timed out", "error", err)
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	case err != nil:
		log.ErrorContext(ctx, "error processing identify request", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, log, http.StatusOK, response)
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("error encoding response", "error", err)
	}
}
