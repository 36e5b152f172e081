package notify

import (
	"context"
	"errors"
)

// ErrDelivery wraps failures to hand a message to the chat transport. Callers
// decide retry policy; the sink itself performs a single attempt.
var ErrDelivery = errors.New("notify: delivery failed")

// Sink delivers text messages to a destination channel. Implementations must
// bound every call with a timeout; an indefinite hang is a failure.
type Sink interface {
	// Send delivers text to the destination and returns the transport's opaque
	// delivery identifier.
	Send(ctx context.Context, destination, text string) (string, error)
	// LookupDisplayName resolves an actor identifier to a human-readable name.
	// Best effort: callers fall back to the raw identifier on error.
	LookupDisplayName(ctx context.Context, actorID string) (string, error)
}
