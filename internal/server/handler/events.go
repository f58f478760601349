package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

// EventReader reads entries from the durable pipeline event stream.
type EventReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// EventHandler serves the pipeline event history from the Redis stream.
type EventHandler struct {
	events EventReader
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(events EventReader, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		events: events,
		logger: logger,
	}
}

// eventEntry pairs a stream cursor with the decoded event so clients can
// resume from the last ID they have seen.
type eventEntry struct {
	ID    string       `json:"id"`
	Event domain.Event `json:"event"`
}

// ListEvents returns pipeline events after the given stream cursor.
// GET /api/events?after=0&limit=50
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream not configured")
		return
	}

	opts := parseListOpts(r)
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}

	msgs, err := h.events.StreamRead(r.Context(), domain.EventStream, after, opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: read events failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}

	entries := make([]eventEntry, 0, len(msgs))
	for _, msg := range msgs {
		var ev domain.Event
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			h.logger.WarnContext(r.Context(), "handler: skipping malformed event",
				slog.String("stream_id", msg.ID),
			)
			continue
		}
		entries = append(entries, eventEntry{ID: msg.ID, Event: ev})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": entries,
		"count":  len(entries),
	})
}
