package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/example/release-signoff/internal/coordinator"
	"github.com/example/release-signoff/internal/notify"
)

var (
	signoffPattern = regexp.MustCompile(`(?i)@release_rc\s+(signed\s*off|signoff)`)
	statusPattern  = regexp.MustCompile(`(?i)@release_rc\s+status`)
	abortPattern   = regexp.MustCompile(`(?i)@release_rc\s+abort`)
)

// SlackHandler adapts Slack Events API callbacks into coordinator commands.
// The announcement message's timestamp doubles as the session key, so any
// command posted in a release thread carries its session key as thread_ts.
type SlackHandler struct {
	service   releaseCoordinator
	sink      notify.Sink
	responder responder
	logger    *slog.Logger
}

// NewSlackHandler constructs the handler. The sink is used for informational
// replies that are not part of the coordinator's own message contract.
func NewSlackHandler(service releaseCoordinator, sink notify.Sink, logger *slog.Logger) *SlackHandler {
	base := defaultLogger(logger)
	return &SlackHandler{service: service, sink: sink, responder: newResponder(base), logger: base}
}

type slackEnvelope struct {
	Type      string     `json:"type"`
	Challenge string     `json:"challenge"`
	Event     slackEvent `json:"event"`
}

type slackEvent struct {
	Type     string `json:"type"`
	User     string `json:"user"`
	BotID    string `json:"bot_id"`
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	ThreadTS string `json:"thread_ts"`
	TS       string `json:"ts"`
}

// Events handles POST /slack/events.
func (h *SlackHandler) Events(w http.ResponseWriter, r *http.Request) {
	logger := handlerLogger(r.Context(), h.logger, "SlackHandler", "Events")

	var envelope slackEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		logger.InfoContext(r.Context(), "ignoring malformed slack payload", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	switch envelope.Type {
	case "url_verification":
		h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]string{"challenge": envelope.Challenge})
	case "event_callback":
		h.handleEvent(r.Context(), envelope.Event, logger)
		// Slack retries on anything but a prompt 200.
		h.responder.writeJSON(r.Context(), w, http.StatusOK, nil)
	default:
		logger.InfoContext(r.Context(), "ignoring slack payload with unknown type", "type", envelope.Type)
		h.responder.writeJSON(r.Context(), w, http.StatusOK, nil)
	}
}

func (h *SlackHandler) handleEvent(ctx context.Context, event slackEvent, logger *slog.Logger) {
	if event.BotID != "" {
		return
	}
	if event.Type != "message" && event.Type != "app_mention" {
		return
	}
	if event.ThreadTS == "" {
		// Commands only count inside a release thread.
		return
	}

	sessionKey := event.ThreadTS
	switch {
	case signoffPattern.MatchString(event.Text):
		h.acknowledge(ctx, sessionKey, event, logger)
	case statusPattern.MatchString(event.Text):
		report, err := h.service.Status(ctx, sessionKey)
		if errors.Is(err, coordinator.ErrNotFound) {
			h.reply(ctx, event.Channel, "❌ No active release session found for this thread.", logger)
			return
		}
		if err != nil {
			logger.ErrorContext(ctx, "status command failed", "session_key", sessionKey, "error", err)
			return
		}
		h.reply(ctx, event.Channel, report, logger)
	case abortPattern.MatchString(event.Text):
		err := h.service.Abort(ctx, sessionKey)
		if errors.Is(err, coordinator.ErrNotFound) {
			h.reply(ctx, event.Channel, "❌ No active release session found for this thread.", logger)
			return
		}
		if err != nil {
			logger.ErrorContext(ctx, "abort command failed", "session_key", sessionKey, "error", err)
		}
	}
}

func (h *SlackHandler) acknowledge(ctx context.Context, sessionKey string, event slackEvent, logger *slog.Logger) {
	identity := h.resolveIdentity(ctx, event.User, logger)

	result, err := h.service.Acknowledge(ctx, sessionKey, identity)
	if err == nil && !result.Acknowledged && !result.Frozen && identity != event.User {
		// Items may be keyed by the raw user id rather than the handle.
		result, err = h.service.Acknowledge(ctx, sessionKey, event.User)
	}
	if errors.Is(err, coordinator.ErrNotFound) {
		h.reply(ctx, event.Channel, "❌ No active release session found for this thread.", logger)
		return
	}
	if err != nil {
		logger.ErrorContext(ctx, "sign-off command failed", "session_key", sessionKey, "error", err)
		return
	}

	logger.InfoContext(ctx, "sign-off processed",
		"session_key", sessionKey,
		"actor", identity,
		"acknowledged", result.Acknowledged,
		"completed", result.Completed,
		"frozen", result.Frozen,
	)
}

// resolveIdentity maps a Slack user id to the handle items are keyed by.
// Lookup failures fall back to the raw id.
func (h *SlackHandler) resolveIdentity(ctx context.Context, userID string, logger *slog.Logger) string {
	if h.sink == nil {
		return userID
	}
	name, err := h.sink.LookupDisplayName(ctx, userID)
	if err != nil || name == "" {
		logger.InfoContext(ctx, "display name lookup failed, using raw id", "user", userID, "error", err)
		return userID
	}
	return name
}

func (h *SlackHandler) reply(ctx context.Context, channel, text string, logger *slog.Logger) {
	if h.sink == nil || channel == "" {
		return
	}
	if _, err := h.sink.Send(ctx, channel, text); err != nil {
		logger.ErrorContext(ctx, "failed to send reply", "channel", channel, "error", err)
	}
}
