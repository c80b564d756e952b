// Package provider defines the transport seam between the dispatcher and
// the service that actually delivers mail.
package provider

import (
	"context"
	"errors"

	"github.com/shineum/artmarket-mailer/internal/email"
)

// ErrOutcomeUnknown marks a send that was abandoned while the transport may
// still complete it. Such a send must not be retried and counts against
// the quota.
var ErrOutcomeUnknown = errors.New("delivery outcome unknown")

// Provider delivers a fully rendered message. Implementations must be safe
// for concurrent use; the dispatcher fans bulk batches out over goroutines.
type Provider interface {
	// Send delivers msg and returns the transport's message identifier.
	// A transport that cannot stop an exchange when ctx ends returns an
	// error wrapping ErrOutcomeUnknown.
	Send(ctx context.Context, msg *email.Message) (string, error)

	// Name returns the human-readable name of this provider.
	Name() string
}
