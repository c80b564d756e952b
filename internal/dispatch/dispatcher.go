// Package dispatch is the single seam through which the storefront sends
// mail. A Dispatcher validates recipients, renders templates, enforces the
// hourly and daily quotas, hands the message to a transport and reports one
// result per recipient. Failures never escape as Go errors; they come back as
// unsuccessful email.Result values.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/shineum/artmarket-mailer/internal/email"
	"github.com/shineum/artmarket-mailer/internal/provider"
	"github.com/shineum/artmarket-mailer/internal/ratelimit"
	"github.com/shineum/artmarket-mailer/internal/template"
)

// Error classes carried in email.Result.Err.
var (
	ErrValidation       = errors.New("validation failed")
	ErrRateLimited      = ratelimit.ErrLimitExceeded
	ErrTemplateNotFound = template.ErrNotFound
	ErrTransport        = errors.New("transport failed")
)

// Defaults for Options.
const (
	DefaultBatchSize      = 10
	DefaultBatchDelay     = time.Second
	DefaultSendTimeout    = 30 * time.Second
	DefaultMaxRetries     = 1
	DefaultRetryBaseDelay = 500 * time.Millisecond
)

// Options configures a Dispatcher. Zero durations disable the matching
// delay or timeout.
type Options struct {
	// From and ReplyTo fill messages that leave them empty.
	From    string
	ReplyTo string

	BatchSize  int
	BatchDelay time.Duration

	SendTimeout    time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration

	// TemplateDefaults are merged under the caller's variables on every
	// templated send (store name, support address, ...).
	TemplateDefaults map[string]any
}

// DefaultOptions returns the storefront defaults.
func DefaultOptions() Options {
	return Options{
		BatchSize:      DefaultBatchSize,
		BatchDelay:     DefaultBatchDelay,
		SendTimeout:    DefaultSendTimeout,
		MaxRetries:     DefaultMaxRetries,
		RetryBaseDelay: DefaultRetryBaseDelay,
	}
}

// Dispatcher is safe for concurrent use. Its only shared mutable state is
// the limiter.
type Dispatcher struct {
	provider  provider.Provider
	limiter   *ratelimit.Limiter
	templates *template.Registry
	policy    template.Policy
	recorder  Recorder
	opts      Options

	// batchHook observes each bulk batch; tests only.
	batchHook func(start, end int)
}

// Option configures optional Dispatcher collaborators.
type Option func(*Dispatcher)

// WithRecorder attaches a dispatch log.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithPolicy replaces the template rendering policy.
func WithPolicy(p template.Policy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

// New creates a Dispatcher. A nil limiter gets default ceilings and a nil
// registry gets the built-in templates.
func New(p provider.Provider, limiter *ratelimit.Limiter, templates *template.Registry, opts Options, extra ...Option) *Dispatcher {
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.Limits{})
	}
	if templates == nil {
		templates = template.Builtin()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	d := &Dispatcher{
		provider:  p,
		limiter:   limiter,
		templates: templates,
		policy:    template.DefaultPolicy(),
		opts:      opts,
	}
	for _, o := range extra {
		o(d)
	}
	return d
}

// ProviderName returns the transport's name.
func (d *Dispatcher) ProviderName() string {
	return d.provider.Name()
}

// Templates returns the template registry.
func (d *Dispatcher) Templates() *template.Registry {
	return d.templates
}

// Send validates msg, checks the quotas, and delivers it. Counters move
// when the transport reports success or cannot say whether it delivered.
func (d *Dispatcher) Send(ctx context.Context, msg *email.Message) email.Result {
	if msg == nil {
		return email.Failed(fmt.Errorf("%w: message is required", ErrValidation))
	}

	m := *msg
	if m.From == "" {
		m.From = d.opts.From
	}
	if m.ReplyTo == "" {
		m.ReplyTo = d.opts.ReplyTo
	}

	if err := m.Validate(); err != nil {
		return email.Failed(fmt.Errorf("%w: %w", ErrValidation, err))
	}

	reservation, err := d.limiter.Reserve()
	if err != nil {
		slog.Info("send rejected by rate limiter",
			"recipients", len(m.To),
			"reason", err,
		)
		d.record(ctx, &m, "", StatusRateLimited, err)
		return email.Failed(err)
	}

	id, err := d.deliver(ctx, &m)
	if err != nil {
		status := StatusFailed
		if errors.Is(err, provider.ErrOutcomeUnknown) {
			// The message may still go out, so it keeps its quota slot.
			reservation.Commit()
			status = StatusUnknown
		} else {
			reservation.Cancel()
		}
		err = fmt.Errorf("%w: %w", ErrTransport, err)
		slog.Error("email send failed",
			"provider", d.provider.Name(),
			"subject", m.Subject,
			"status", status,
			"error", err,
		)
		d.record(ctx, &m, "", status, err)
		return email.Failed(err)
	}

	reservation.Commit()
	slog.Debug("email sent",
		"provider", d.provider.Name(),
		"message_id", id,
		"recipients", len(m.To)+len(m.Cc)+len(m.Bcc),
	)
	d.record(ctx, &m, id, StatusSent, nil)
	return email.Result{Success: true, MessageID: id}
}

// deliver calls the transport, retrying failed attempts with exponential
// backoff up to MaxRetries times. An attempt whose outcome is unknown is
// never retried, since the first delivery may still complete.
func (d *Dispatcher) deliver(ctx context.Context, msg *email.Message) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= d.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(d.opts.RetryBaseDelay, attempt-1)
			slog.Warn("retrying email send",
				"provider", d.provider.Name(),
				"attempt", attempt,
				"max_retries", d.opts.MaxRetries,
				"delay", delay,
				"error", lastErr,
			)
			if err := sleepWithContext(ctx, delay); err != nil {
				return "", fmt.Errorf("cancelled during retry wait: %w (last error: %v)", err, lastErr)
			}
		}

		id, err := d.attempt(ctx, msg)
		if err == nil {
			return id, nil
		}
		if errors.Is(err, provider.ErrOutcomeUnknown) {
			return "", err
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if d.opts.MaxRetries > 0 {
		return "", fmt.Errorf("after %d retries: %w", d.opts.MaxRetries, lastErr)
	}
	return "", lastErr
}

// attempt makes one transport call bounded by SendTimeout.
func (d *Dispatcher) attempt(ctx context.Context, msg *email.Message) (string, error) {
	if d.opts.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.SendTimeout)
		defer cancel()
	}
	return d.provider.Send(ctx, msg)
}

// SendTemplated renders the template registered under key and sends it to
// recipients. Variables missing from vars render as empty strings.
func (d *Dispatcher) SendTemplated(ctx context.Context, key template.Key, recipients []email.Recipient, vars map[string]any, subjectOverride string) email.Result {
	def, err := d.templates.Lookup(key)
	if err != nil {
		return email.Failed(err)
	}

	merged := make(map[string]any, len(d.opts.TemplateDefaults)+len(vars))
	maps.Copy(merged, d.opts.TemplateDefaults)
	maps.Copy(merged, vars)

	r := def.Render(merged, subjectOverride, d.policy)
	return d.Send(ctx, &email.Message{
		To:       recipients,
		Subject:  r.Subject,
		HTMLBody: r.HTML,
		TextBody: r.Text,
	})
}

// SendBulk sends the same content to each recipient individually. Batches
// of BatchSize run concurrently, with BatchDelay between batches. The
// result slice is parallel to recipients; one failure never stops the rest.
func (d *Dispatcher) SendBulk(ctx context.Context, recipients []email.Recipient, subject, html, text string) []email.Result {
	results := make([]email.Result, len(recipients))
	size := d.opts.BatchSize

	for start := 0; start < len(recipients); start += size {
		if start > 0 && d.opts.BatchDelay > 0 {
			if err := sleepWithContext(ctx, d.opts.BatchDelay); err != nil {
				failRemaining(results, recipients, start, err)
				break
			}
		}
		if err := ctx.Err(); err != nil {
			failRemaining(results, recipients, start, err)
			break
		}

		end := min(start+size, len(recipients))
		if d.batchHook != nil {
			d.batchHook(start, end)
		}
		d.sendBatch(ctx, recipients, results, start, end, subject, html, text)
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	slog.Info("bulk send finished",
		"recipients", len(recipients),
		"failed", failed,
		"batches", (len(recipients)+size-1)/size,
	)
	return results
}

// failRemaining marks recipients[start:] as failed with err.
func failRemaining(results []email.Result, recipients []email.Recipient, start int, err error) {
	for i := start; i < len(recipients); i++ {
		results[i] = email.Failed(fmt.Errorf("bulk send interrupted: %w", err))
		results[i].Recipient = recipients[i].Address
	}
}

// Stats reports the limiter's current windows.
func (d *Dispatcher) Stats() ratelimit.Stats {
	return d.limiter.Stats()
}

// backoffDelay returns base doubled n times.
func backoffDelay(base time.Duration, n int) time.Duration {
	delay := base
	for i := 0; i < n; i++ {
		delay *= 2
	}
	return delay
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
