package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultAPIBaseURL is the Slack Web API endpoint prefix.
	DefaultAPIBaseURL = "https://slack.com/api"
	// DefaultTimeout bounds a single API call.
	DefaultTimeout = 10 * time.Second
)

// SlackSink implements Sink against the Slack Web API using chat.postMessage
// and users.info.
type SlackSink struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// SlackOption customises a SlackSink.
type SlackOption func(*SlackSink)

// WithBaseURL overrides the API endpoint prefix, e.g. for tests.
func WithBaseURL(baseURL string) SlackOption {
	return func(s *SlackSink) {
		if baseURL != "" {
			s.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(timeout time.Duration) SlackOption {
	return func(s *SlackSink) {
		if timeout > 0 {
			s.client.Timeout = timeout
		}
	}
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(client *http.Client) SlackOption {
	return func(s *SlackSink) {
		if client != nil {
			s.client = client
		}
	}
}

// NewSlackSink constructs a sink authenticated with the given bot token.
func NewSlackSink(token string, logger *slog.Logger, opts ...SlackOption) *SlackSink {
	if logger == nil {
		logger = slog.Default()
	}
	sink := &SlackSink{
		baseURL: DefaultAPIBaseURL,
		token:   token,
		client:  &http.Client{Timeout: DefaultTimeout},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(sink)
	}
	return sink
}

type postMessageRequest struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
	Mrkdwn  bool   `json:"mrkdwn"`
}

type postMessageResponse struct {
	OK    bool   `json:"ok"`
	TS    string `json:"ts"`
	Error string `json:"error"`
}

// Send posts text to the destination channel and returns the message
// timestamp, Slack's identifier for the delivered message.
func (s *SlackSink) Send(ctx context.Context, destination, text string) (string, error) {
	body, err := json.Marshal(postMessageRequest{Channel: destination, Text: text, Mrkdwn: true})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrDelivery, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat.postMessage", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+s.token)

	var parsed postMessageResponse
	if err := s.do(req, &parsed); err != nil {
		return "", err
	}
	if !parsed.OK {
		return "", fmt.Errorf("%w: slack api error: %s", ErrDelivery, parsed.Error)
	}
	if parsed.TS == "" {
		return "", fmt.Errorf("%w: slack response missing message timestamp", ErrDelivery)
	}

	s.logger.Debug("message delivered", "destination", destination, "ts", parsed.TS)
	return parsed.TS, nil
}

type userInfoResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	User  struct {
		Name     string `json:"name"`
		RealName string `json:"real_name"`
		Profile  struct {
			DisplayName string `json:"display_name"`
		} `json:"profile"`
	} `json:"user"`
}

// LookupDisplayName resolves a user id to the richest name Slack knows for it.
func (s *SlackSink) LookupDisplayName(ctx context.Context, actorID string) (string, error) {
	endpoint := s.baseURL + "/users.info?user=" + url.QueryEscape(actorID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("notify: build users.info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	var parsed userInfoResponse
	if err := s.do(req, &parsed); err != nil {
		return "", err
	}
	if !parsed.OK {
		return "", fmt.Errorf("notify: slack api error: %s", parsed.Error)
	}

	switch {
	case parsed.User.Profile.DisplayName != "":
		return parsed.User.Profile.DisplayName, nil
	case parsed.User.RealName != "":
		return parsed.User.RealName, nil
	case parsed.User.Name != "":
		return parsed.User.Name, nil
	}
	return "", fmt.Errorf("notify: no display name for %s", actorID)
}

func (s *SlackSink) do(req *http.Request, out any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrDelivery, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrDelivery, err)
	}
	return nil
}
