package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/release-signoff/internal/coordinator"
)

// Inbound event types accepted on /events.
const (
	eventTypeAcknowledge = "acknowledge"
	eventTypeStatus      = "status"
	eventTypeAbort       = "abort"
)

// EventHandler serves the transport-neutral inbound event endpoint.
type EventHandler struct {
	service   releaseCoordinator
	responder responder
	logger    *slog.Logger
}

// NewEventHandler constructs the handler.
func NewEventHandler(service releaseCoordinator, logger *slog.Logger) *EventHandler {
	base := defaultLogger(logger)
	return &EventHandler{service: service, responder: newResponder(base), logger: base}
}

type inboundEvent struct {
	Type       string `json:"type"`
	SessionKey string `json:"session_key"`
	ActorID    string `json:"actor_id"`
}

type eventResponse struct {
	Acknowledged   bool     `json:"acknowledged,omitempty"`
	Completed      bool     `json:"completed,omitempty"`
	Frozen         bool     `json:"frozen,omitempty"`
	PendingAuthors []string `json:"pending_authors,omitempty"`
	Report         string   `json:"report,omitempty"`
	Info           string   `json:"info,omitempty"`
}

// Handle processes POST /events. A malformed event is logged and rejected; an
// unknown session is a normal informational result, not an error.
func (h *EventHandler) Handle(w http.ResponseWriter, r *http.Request) {
	logger := handlerLogger(r.Context(), h.logger, "EventHandler", "Handle")

	var event inboundEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		logger.InfoContext(r.Context(), "ignoring malformed inbound event", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	if err := validateEvent(event); err != nil {
		logger.InfoContext(r.Context(), "ignoring malformed inbound event", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	h.dispatch(r.Context(), w, event, logger)
}

func (h *EventHandler) dispatch(ctx context.Context, w http.ResponseWriter, event inboundEvent, logger *slog.Logger) {
	switch event.Type {
	case eventTypeAcknowledge:
		result, err := h.service.Acknowledge(ctx, event.SessionKey, event.ActorID)
		if errors.Is(err, coordinator.ErrNotFound) {
			h.responder.writeJSON(ctx, w, http.StatusOK, eventResponse{Info: "no active session for that key"})
			return
		}
		if err != nil {
			h.responder.handleServiceError(ctx, w, err)
			return
		}
		h.responder.writeJSON(ctx, w, http.StatusOK, eventResponse{
			Acknowledged:   result.Acknowledged,
			Completed:      result.Completed,
			Frozen:         result.Frozen,
			PendingAuthors: result.PendingAuthors,
		})
	case eventTypeStatus:
		report, err := h.service.Status(ctx, event.SessionKey)
		if errors.Is(err, coordinator.ErrNotFound) {
			h.responder.writeJSON(ctx, w, http.StatusOK, eventResponse{Info: "no active session for that key"})
			return
		}
		if err != nil {
			h.responder.handleServiceError(ctx, w, err)
			return
		}
		h.responder.writeJSON(ctx, w, http.StatusOK, eventResponse{Report: report})
	case eventTypeAbort:
		err := h.service.Abort(ctx, event.SessionKey)
		if errors.Is(err, coordinator.ErrNotFound) {
			h.responder.writeJSON(ctx, w, http.StatusOK, eventResponse{Info: "no active session for that key"})
			return
		}
		if err != nil {
			h.responder.handleServiceError(ctx, w, err)
			return
		}
		h.responder.writeJSON(ctx, w, http.StatusOK, eventResponse{Info: "session aborted"})
	default:
		logger.InfoContext(ctx, "ignoring inbound event with unknown type", "type", event.Type)
		h.responder.writeError(ctx, w, http.StatusBadRequest, errUnknownEventType)
	}
}

func validateEvent(event inboundEvent) error {
	if strings.TrimSpace(event.SessionKey) == "" {
		return errMissingSessionKey
	}
	if event.Type == eventTypeAcknowledge && strings.TrimSpace(event.ActorID) == "" {
		return errMissingActorID
	}
	return nil
}
