package http

import (
	"net/http"
	"strings"
)

// HealthReporter supplies the active-session count for the health endpoint.
type HealthReporter interface {
	ActiveSessions() int
}

// RouterConfig wires handlers and per-route middleware into the router.
type RouterConfig struct {
	Releases *ReleaseHandler
	Events   *EventHandler
	Slack    *SlackHandler
	Health   HealthReporter
	// TriggerAuth guards POST /releases.
	TriggerAuth func(http.Handler) http.Handler
	// SlackVerify guards POST /slack/events.
	SlackVerify func(http.Handler) http.Handler
}

// NewRouter assembles the bot's HTTP surface.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Releases != nil {
		start := http.Handler(http.HandlerFunc(cfg.Releases.Start))
		if cfg.TriggerAuth != nil {
			start = cfg.TriggerAuth(start)
		}
		mux.HandleFunc("/releases", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost:
				start.ServeHTTP(w, r)
			case http.MethodGet:
				cfg.Releases.List(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/releases/", func(w http.ResponseWriter, r *http.Request) {
			sessionKey := strings.TrimPrefix(r.URL.Path, "/releases/")
			if sessionKey == "" || strings.Contains(sessionKey, "/") {
				http.NotFound(w, r)
				return
			}
			r = r.WithContext(ContextWithSessionKey(r.Context(), sessionKey))
			switch r.Method {
			case http.MethodGet:
				cfg.Releases.Status(w, r)
			case http.MethodDelete:
				cfg.Releases.Abort(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodDelete)
			}
		})
	}

	if cfg.Events != nil {
		mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Events.Handle(w, r)
		})
	}

	if cfg.Slack != nil {
		slackEvents := http.Handler(http.HandlerFunc(cfg.Slack.Events))
		if cfg.SlackVerify != nil {
			slackEvents = cfg.SlackVerify(slackEvents)
		}
		mux.HandleFunc("/slack/events", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			slackEvents.ServeHTTP(w, r)
		})
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		active := 0
		if cfg.Health != nil {
			active = cfg.Health.ActiveSessions()
		}
		newResponder(nil).writeJSON(r.Context(), w, http.StatusOK, map[string]any{
			"status":          "healthy",
			"active_sessions": active,
		})
	})

	return mux
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
