package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

// PendingService lists the staged markets still in human review.
type PendingService interface {
	ListPending(ctx context.Context) ([]domain.PendingMarket, error)
}

// PendingHandler serves the pending-market review queue.
type PendingHandler struct {
	pending PendingService
	logger  *slog.Logger
}

// NewPendingHandler creates a PendingHandler.
func NewPendingHandler(pending PendingService, logger *slog.Logger) *PendingHandler {
	return &PendingHandler{
		pending: pending,
		logger:  logger,
	}
}

// ListPending returns all staged markets, posted and unposted.
// GET /api/pending
func (h *PendingHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.pending.ListPending(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list pending failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list pending markets")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pending": pending,
		"count":   len(pending),
	})
}
