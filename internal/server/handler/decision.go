package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

// DecisionService exposes the review decision audit trail.
type DecisionService interface {
	ListDecisions(ctx context.Context, opts domain.ListOpts) ([]domain.ApprovalLog, error)
}

// DecisionHandler serves the approval decision history.
type DecisionHandler struct {
	decisions DecisionService
	logger    *slog.Logger
}

// NewDecisionHandler creates a DecisionHandler.
func NewDecisionHandler(decisions DecisionService, logger *slog.Logger) *DecisionHandler {
	return &DecisionHandler{
		decisions: decisions,
		logger:    logger,
	}
}

// ListDecisions returns recorded review decisions, newest first.
// GET /api/decisions?limit=50&offset=0
func (h *DecisionHandler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	decisions, err := h.decisions.ListDecisions(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list decisions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list decisions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"decisions": decisions,
		"count":     len(decisions),
		"limit":     opts.Limit,
		"offset":    opts.Offset,
	})
}
