package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/apepipe/internal/service"
)

// StatusService summarizes the pipeline state for the dashboard.
type StatusService interface {
	GetStatus(ctx context.Context) (service.Status, error)
}

// StatusHandler serves the aggregated pipeline status.
type StatusHandler struct {
	status StatusService
	logger *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(status StatusService, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		status: status,
		logger: logger,
	}
}

// GetStatus responds with pending counts, market counts by status, and the
// most recent pipeline run.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.status.GetStatus(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: status failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to aggregate status")
		return
	}

	writeJSON(w, http.StatusOK, st)
}
