package http

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/release-signoff/internal/auth"
)

const (
	// maxEventBody bounds inbound webhook payloads.
	maxEventBody = 1 << 20
	// maxSignatureSkew is how far a signed request timestamp may drift before
	// the request is treated as a replay.
	maxSignatureSkew = 5 * time.Minute
)

// RequestLogger attaches a request-scoped logger carrying a request id and
// logs request completion.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := base.With(
				"request_id", uuid.NewString(),
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			start := time.Now()
			next.ServeHTTP(w, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "duration", time.Since(start))
		})
	}
}

// RequireTriggerToken guards the release trigger endpoint with a bearer token
// verified against the configured argon2id hash.
func RequireTriggerToken(tokenHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingBearer)
				return
			}
			if err := auth.VerifyToken(tokenHash, token); err != nil {
				responder.loggerFor(r.Context()).InfoContext(r.Context(), "trigger token rejected", "error", err)
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errInvalidBearer)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// VerifySlackSignature validates the Slack v0 request signature. When secret
// is empty the middleware is a no-op, which keeps local development without a
// signing secret possible.
func VerifySlackSignature(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
			if err != nil {
				responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			timestamp := r.Header.Get("X-Slack-Request-Timestamp")
			signature := r.Header.Get("X-Slack-Signature")
			if !validSlackSignature(secret, timestamp, signature, body, time.Now()) {
				responder.loggerFor(r.Context()).InfoContext(r.Context(), "slack signature rejected")
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errInvalidSignature)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validSlackSignature(secret, timestamp, signature string, body []byte, now time.Time) bool {
	seconds, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if math.Abs(now.Sub(time.Unix(seconds, 0)).Seconds()) > maxSignatureSkew.Seconds() {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
