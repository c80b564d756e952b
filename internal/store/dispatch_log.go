package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/shineum/artmarket-mailer/internal/dispatch"
)

// Limits for Recent.
const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 500
)

// Entry is a stored dispatch log row.
type Entry struct {
	ID         int64     `json:"id"`
	MessageID  string    `json:"message_id,omitempty"`
	Provider   string    `json:"provider"`
	Recipients []string  `json:"recipients"`
	Subject    string    `json:"subject"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// DispatchLog records dispatcher outcomes. It implements dispatch.Recorder.
type DispatchLog struct {
	db *sql.DB
}

// NewDispatchLog returns a DispatchLog backed by db.
func NewDispatchLog(db *sql.DB) *DispatchLog {
	return &DispatchLog{db: db}
}

// Record inserts one log entry.
func (l *DispatchLog) Record(ctx context.Context, e dispatch.LogEntry) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO dispatch_log (message_id, provider, recipients, recipient_count, subject, status, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.MessageID, e.Provider, pq.Array(e.Recipients), len(e.Recipients), e.Subject, e.Status, e.Error, createdAt)
	if err != nil {
		return fmt.Errorf("insert dispatch log: %w", err)
	}
	return nil
}

// Recent returns the newest entries first. Limits outside 1..MaxRecentLimit
// are clamped.
func (l *DispatchLog) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	limit = min(limit, MaxRecentLimit)

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, message_id, provider, recipients, subject, status, error, created_at
		 FROM dispatch_log
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query dispatch log: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.MessageID, &e.Provider, pq.Array(&e.Recipients), &e.Subject, &e.Status, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dispatch log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatch log: %w", err)
	}
	return entries, nil
}

// CountSince returns the number of sends at or after since that count
// against the quota: successful ones and those whose outcome is unknown.
func (l *DispatchLog) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dispatch_log WHERE status IN ($1, $2) AND created_at >= $3`,
		dispatch.StatusSent, dispatch.StatusUnknown, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count dispatch log: %w", err)
	}
	return n, nil
}

// WindowCounts returns the counted sends in the UTC hour and day that
// contain now. It is used to seed the rate limiter after a restart.
func (l *DispatchLog) WindowCounts(ctx context.Context, now time.Time) (hour, day int, err error) {
	now = now.UTC()
	if hour, err = l.CountSince(ctx, now.Truncate(time.Hour)); err != nil {
		return 0, 0, err
	}
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if day, err = l.CountSince(ctx, dayStart); err != nil {
		return 0, 0, err
	}
	return hour, day, nil
}
