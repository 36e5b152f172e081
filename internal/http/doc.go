// Package http provides the bot's HTTP surface.
//
// The router exposes the following endpoints:
//   - POST /releases: starts a sign-off session. Requires a trigger bearer
//     token. Body: the releaseRequest payload defined in release_handler.go.
//     Response: {"destination","session_key"}.
//   - GET /releases: lists active sessions with their pending counts.
//   - GET /releases/{key}: formatted sign-off status for one session.
//   - DELETE /releases/{key}: aborts a session and cancels its jobs.
//   - POST /events: generic inbound event {"type","session_key","actor_id"}
//     with type one of acknowledge, status, abort. Malformed events are
//     rejected with 400 and logged, never raised.
//   - POST /slack/events: Slack Events API callback. Answers URL verification
//     challenges and translates release-thread messages matching
//     "@release_rc signed off|status|abort" into coordinator commands.
//     Requests are signature-checked when a signing secret is configured.
//   - GET /healthz: liveness plus the number of active sessions.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
