// Package smtp implements a Provider that relays mail through an SMTP
// server using gomail.
package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	mail "gopkg.in/gomail.v2"

	"github.com/shineum/artmarket-mailer/internal/email"
	"github.com/shineum/artmarket-mailer/internal/provider"
)

// Config holds the SMTP connection settings.
type Config struct {
	Host          string
	Port          int
	Secure        bool // implicit TLS (usually port 465); otherwise STARTTLS when offered
	Username      string
	Password      string
	From          string
	SkipTLSVerify bool
}

// dialer is the part of *mail.Dialer the provider uses.
type dialer interface {
	DialAndSend(m ...*mail.Message) error
}

// Provider sends messages over SMTP. Each Send opens its own connection so
// concurrent bulk batches do not share a session.
type Provider struct {
	from   string
	domain string
	dialer dialer
}

// New creates an SMTP Provider from cfg.
func New(cfg Config) *Provider {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.Secure
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.SkipTLSVerify,
		MinVersion:         tls.VersionTLS12,
	}
	if cfg.SkipTLSVerify {
		slog.Warn("SMTP TLS certificate verification is disabled", "host", cfg.Host)
	}
	return newWithDialer(cfg.From, d)
}

func newWithDialer(from string, d dialer) *Provider {
	return &Provider{
		from:   from,
		domain: domainOf(from),
		dialer: d,
	}
}

// Send builds a MIME message for msg and delivers it. gomail has no way to
// interrupt an exchange, so when ctx ends first the call returns an error
// wrapping provider.ErrOutcomeUnknown while the exchange runs on.
func (p *Provider) Send(ctx context.Context, msg *email.Message) (string, error) {
	m, id := p.build(msg)

	done := make(chan error, 1)
	go func() {
		done <- p.dialer.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("smtp send abandoned: %w: %w", provider.ErrOutcomeUnknown, ctx.Err())
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("could not send email: %w", err)
		}
		return id, nil
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "smtp"
}

// build converts msg into a gomail message and returns it with its
// Message-ID.
func (p *Provider) build(msg *email.Message) (*mail.Message, string) {
	id := msg.MessageID
	if id == "" {
		id = fmt.Sprintf("<%s@%s>", uuid.NewString(), p.domain)
	}

	from := p.from
	if msg.From != "" {
		from = msg.From
	}

	m := mail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", email.Formatted(msg.To)...)
	if len(msg.Cc) > 0 {
		m.SetHeader("Cc", email.Formatted(msg.Cc)...)
	}
	if len(msg.Bcc) > 0 {
		m.SetHeader("Bcc", email.Formatted(msg.Bcc)...)
	}
	if msg.ReplyTo != "" {
		m.SetHeader("Reply-To", msg.ReplyTo)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", id)
	for _, h := range msg.HeaderFields() {
		m.SetHeader(h[0], h[1])
	}

	switch {
	case msg.TextBody != "" && msg.HTMLBody != "":
		m.SetBody("text/plain", msg.TextBody)
		m.AddAlternative("text/html", msg.HTMLBody)
	case msg.HTMLBody != "":
		m.SetBody("text/html", msg.HTMLBody)
	default:
		m.SetBody("text/plain", msg.TextBody)
	}

	for _, att := range msg.Attachments {
		content := att.Content
		settings := []mail.FileSetting{
			mail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
		}
		if att.ContentType != "" {
			settings = append(settings, mail.SetHeader(map[string][]string{
				"Content-Type": {att.ContentType},
			}))
		}
		m.Attach(att.Filename, settings...)
	}

	return m, id
}

// domainOf returns the domain part of a (possibly display-name) address.
func domainOf(addr string) string {
	addr = strings.TrimSuffix(strings.TrimSpace(addr), ">")
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
