package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

// RunService exposes pipeline run history to the API.
type RunService interface {
	RecentRuns(ctx context.Context, limit int) ([]domain.PipelineRun, error)
	GetRun(ctx context.Context, id string) (domain.PipelineRun, error)
}

// RunHandler serves pipeline run history endpoints.
type RunHandler struct {
	runs   RunService
	logger *slog.Logger
}

// NewRunHandler creates a RunHandler.
func NewRunHandler(runs RunService, logger *slog.Logger) *RunHandler {
	return &RunHandler{
		runs:   runs,
		logger: logger,
	}
}

// ListRuns returns the most recent pipeline runs, newest first.
// GET /api/runs?limit=50
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	runs, err := h.runs.RecentRuns(r.Context(), opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list runs failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun returns one pipeline run by its ID.
// GET /api/runs/{id}
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing run id")
		return
	}

	run, err := h.runs.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get run failed",
			slog.String("run_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	writeJSON(w, http.StatusOK, run)
}
