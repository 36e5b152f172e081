package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/release-signoff/internal/coordinator"
	"github.com/example/release-signoff/internal/release"
)

type releaseCoordinator interface {
	StartSession(ctx context.Context, params coordinator.StartSessionParams) (coordinator.StartSessionResult, error)
	Acknowledge(ctx context.Context, sessionKey, actorIdentity string) (coordinator.AckResult, error)
	Status(ctx context.Context, sessionKey string) (string, error)
	Abort(ctx context.Context, sessionKey string) error
	Sessions() []*release.Session
}

// ReleaseHandler serves the trigger and management endpoints.
type ReleaseHandler struct {
	service   releaseCoordinator
	responder responder
	logger    *slog.Logger
}

// NewReleaseHandler constructs the handler.
func NewReleaseHandler(service releaseCoordinator, logger *slog.Logger) *ReleaseHandler {
	base := defaultLogger(logger)
	return &ReleaseHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ReleaseHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "ReleaseHandler", operation, attrs...)
}

type changeItemDTO struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

type releaseRequest struct {
	ServiceName       string          `json:"service_name"`
	Version           string          `json:"version"`
	Day1Date          string          `json:"day1_date"`
	Day2Date          string          `json:"day2_date"`
	CutoffTime        string          `json:"cutoff_time"`
	CoordinatorHandle string          `json:"coordinator_handle"`
	Destination       string          `json:"destination"`
	ChangeItems       []changeItemDTO `json:"change_items"`
}

type releaseResponse struct {
	Destination string `json:"destination"`
	SessionKey  string `json:"session_key"`
}

type sessionSummaryDTO struct {
	SessionKey     string   `json:"session_key"`
	ServiceName    string   `json:"service_name"`
	Version        string   `json:"version"`
	Destination    string   `json:"destination"`
	CutoffTime     string   `json:"cutoff_time"`
	CreatedAt      string   `json:"created_at"`
	TotalItems     int      `json:"total_items"`
	SignedOffItems int      `json:"signed_off_items"`
	PendingAuthors []string `json:"pending_authors"`
	Resolved       bool     `json:"resolved"`
}

type statusResponse struct {
	SessionKey string `json:"session_key"`
	Report     string `json:"report"`
}

// Start handles POST /releases.
func (h *ReleaseHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Start", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode release request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	items := make([]coordinator.ChangeItemInput, len(req.ChangeItems))
	for i, item := range req.ChangeItems {
		items[i] = coordinator.ChangeItemInput(item)
	}

	result, err := h.service.StartSession(r.Context(), coordinator.StartSessionParams{
		Items: items,
		Metadata: coordinator.SessionMetadata{
			ServiceName:       req.ServiceName,
			Version:           req.Version,
			Day1Date:          req.Day1Date,
			Day2Date:          req.Day2Date,
			CutoffTime:        req.CutoffTime,
			CoordinatorHandle: req.CoordinatorHandle,
			Destination:       req.Destination,
		},
	})
	if err != nil {
		h.log(r.Context(), "Start", "error_kind", coordinator.ErrorKind(err)).ErrorContext(r.Context(), "failed to start session", "error", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, releaseResponse(result))
}

// List handles GET /releases.
func (h *ReleaseHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions := h.service.Sessions()
	payload := make([]sessionSummaryDTO, len(sessions))
	for i, session := range sessions {
		payload[i] = toSessionSummary(session)
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, payload)
}

// Status handles GET /releases/{key}.
func (h *ReleaseHandler) Status(w http.ResponseWriter, r *http.Request) {
	sessionKey, ok := SessionKeyFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingSessionKey)
		return
	}

	report, err := h.service.Status(r.Context(), sessionKey)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, statusResponse{SessionKey: sessionKey, Report: report})
}

// Abort handles DELETE /releases/{key}.
func (h *ReleaseHandler) Abort(w http.ResponseWriter, r *http.Request) {
	sessionKey, ok := SessionKeyFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingSessionKey)
		return
	}

	if err := h.service.Abort(r.Context(), sessionKey); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.log(r.Context(), "Abort", "session_key", sessionKey).InfoContext(r.Context(), "session aborted via API")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func toSessionSummary(session *release.Session) sessionSummaryDTO {
	signedOff := 0
	for _, item := range session.Items {
		if item.Acknowledged {
			signedOff++
		}
	}
	return sessionSummaryDTO{
		SessionKey:     session.SessionKey,
		ServiceName:    session.ServiceName,
		Version:        session.Version,
		Destination:    session.Destination,
		CutoffTime:     session.CutoffTime.UTC().Format(time.RFC3339),
		CreatedAt:      session.CreatedAt.UTC().Format(time.RFC3339),
		TotalItems:     len(session.Items),
		SignedOffItems: signedOff,
		PendingAuthors: session.PendingAuthors(),
		Resolved:       session.Resolved(),
	}
}
