package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

// SnapshotService exposes the raw listing archive for replay.
type SnapshotService interface {
	ListSnapshots(ctx context.Context, day time.Time) ([]domain.BlobInfo, error)
	ReadSnapshot(ctx context.Context, day time.Time, runID string) ([]json.RawMessage, error)
}

// SnapshotHandler serves archived fetch snapshots.
type SnapshotHandler struct {
	snapshots SnapshotService
	logger    *slog.Logger
}

// NewSnapshotHandler creates a SnapshotHandler.
func NewSnapshotHandler(snapshots SnapshotService, logger *slog.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		snapshots: snapshots,
		logger:    logger,
	}
}

// snapshotDay parses the optional ?date=YYYY-MM-DD parameter, defaulting to
// the current UTC day.
func snapshotDay(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("date")
	if v == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse("2006-01-02", v)
}

// ListSnapshots returns the snapshots archived on one day.
// GET /api/snapshots?date=2026-08-30
func (h *SnapshotHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	day, err := snapshotDay(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	infos, err := h.snapshots.ListSnapshots(r.Context(), day)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list snapshots failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":      day.Format("2006-01-02"),
		"snapshots": infos,
		"count":     len(infos),
	})
}

// GetSnapshot returns the raw listings archived for one run.
// GET /api/snapshots/{run}?date=2026-08-30
func (h *SnapshotHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	runID := pathParam(r, "run")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "missing run id")
		return
	}
	day, err := snapshotDay(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	listings, err := h.snapshots.ReadSnapshot(r.Context(), day, runID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: read snapshot failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read snapshot")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   runID,
		"date":     day.Format("2006-01-02"),
		"listings": listings,
		"count":    len(listings),
	})
}
