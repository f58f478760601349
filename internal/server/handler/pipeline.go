package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// PipelineTrigger queues a manual pipeline run. It reports false when a run
// request is already queued.
type PipelineTrigger interface {
	TriggerManual() bool
}

// PipelineHandler serves pipeline trigger endpoints.
type PipelineHandler struct {
	trigger PipelineTrigger
	logger  *slog.Logger
}

// NewPipelineHandler creates a PipelineHandler.
func NewPipelineHandler(trigger PipelineTrigger, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{
		trigger: trigger,
		logger:  logger,
	}
}

// TriggerPipeline enqueues one pipeline run. The run executes asynchronously;
// clients can follow it through /api/runs and the event stream.
// POST /api/pipeline/trigger
func (h *PipelineHandler) TriggerPipeline(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not running in this mode")
		return
	}

	queued := h.trigger.TriggerManual()
	h.logger.InfoContext(r.Context(), "handler: pipeline trigger requested",
		slog.Bool("queued", queued),
	)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"queued":       queued,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
