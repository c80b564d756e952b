package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/shineum/artmarket-mailer/internal/email"
)

// Dispatch log statuses.
const (
	StatusSent        = "sent"
	StatusFailed      = "failed"
	StatusRateLimited = "rate_limited"
	StatusUnknown     = "unknown"
)

// LogEntry describes one send that passed validation.
type LogEntry struct {
	MessageID  string
	Provider   string
	Recipients []string
	Subject    string
	Status     string
	Error      string
	CreatedAt  time.Time
}

// Recorder persists dispatch log entries. Recording errors are logged and
// never change a send's result.
type Recorder interface {
	Record(ctx context.Context, e LogEntry) error
}

func (d *Dispatcher) record(ctx context.Context, m *email.Message, id, status string, sendErr error) {
	if d.recorder == nil {
		return
	}
	e := LogEntry{
		MessageID:  id,
		Provider:   d.provider.Name(),
		Recipients: email.Addresses(m.AllRecipients()),
		Subject:    m.Subject,
		Status:     status,
		CreatedAt:  time.Now().UTC(),
	}
	if sendErr != nil {
		e.Error = sendErr.Error()
	}
	// The caller may already be gone; the log entry should still land.
	if err := d.recorder.Record(context.WithoutCancel(ctx), e); err != nil {
		slog.Warn("failed to record dispatch log entry",
			"status", status,
			"error", err,
		)
	}
}
