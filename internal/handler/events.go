package handler

import (
	"log/slog"
	"net/http"

	"loom/internal/handler/sse"
	"loom/internal/httputil"
	"loom/internal/realtime"
	"loom/internal/service"
)

// EventsHandler streams pipeline events for a project over SSE.
type EventsHandler struct {
	projects *service.ProjectService
	hub      *realtime.Hub
	config   *sse.Config
	logger   *slog.Logger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(projects *service.ProjectService, hub *realtime.Hub, config *sse.Config, logger *slog.Logger) *EventsHandler {
	if config == nil {
		config = sse.DefaultConfig()
	}
	return &EventsHandler{
		projects: projects,
		hub:      hub,
		config:   config,
		logger:   logger,
	}
}

// StreamEvents subscribes the client to a project's pipeline events.
// The tenant check runs once at subscribe time; the stream lives until the
// client disconnects.
// GET /api/projects/{id}/events
func (h *EventsHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	tc, err := tenantFrom(r)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	projectID := r.PathValue("id")
	if projectID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "project ID is required")
		return
	}

	if _, err := h.projects.GetProject(r.Context(), tc, projectID); err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	writer, ok := sse.NewEventWriter(w)
	if !ok {
		httputil.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := h.hub.Subscribe(projectID)
	defer sub.Close()

	keepAlive := sse.NewTickerKeepAlive(h.config.KeepAliveInterval)
	kaDone := keepAlive.Start(writer, h.logger)
	defer keepAlive.Stop()

	h.logger.Debug("event stream opened", "project_id", projectID, "user_id", tc.UserID)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-kaDone:
			// Keep-alive detected a dead connection.
			return
		case event, open := <-sub.C:
			if !open {
				return
			}
			if err := writer.WriteEvent(event.Kind, event); err != nil {
				h.logger.Debug("event write failed, closing stream",
					"project_id", projectID,
					"error", err,
				)
				return
			}
		}
	}
}
