package smtp

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	mail "gopkg.in/gomail.v2"

	"github.com/shineum/artmarket-mailer/internal/email"
	"github.com/shineum/artmarket-mailer/internal/provider"
)

// fakeDialer records messages instead of talking to a server.
type fakeDialer struct {
	sent  []*mail.Message
	err   error
	block chan struct{}
}

func (f *fakeDialer) DialAndSend(m ...*mail.Message) error {
	if f.block != nil {
		<-f.block
	}
	f.sent = append(f.sent, m...)
	return f.err
}

func render(t *testing.T, m *mail.Message) string {
	t.Helper()
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	return buf.String()
}

func TestSend_BuildsMessage(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	p := newWithDialer("Artmarket <noreply@artmarket.example>", d)

	id, err := p.Send(context.Background(), &email.Message{
		To:       []email.Recipient{{Address: "buyer@example.com", Name: "Buyer"}},
		Cc:       []email.Recipient{{Address: "artist@example.com"}},
		ReplyTo:  "support@artmarket.example",
		Subject:  "Order Confirmation #A-1",
		HTMLBody: "<p>thanks</p>",
		TextBody: "thanks",
		Priority: email.PriorityHigh,
		Attachments: []email.Attachment{
			{Filename: "receipt.pdf", ContentType: "application/pdf", Content: []byte("%PDF")},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(id, "<") || !strings.HasSuffix(id, "@artmarket.example>") {
		t.Errorf("message id: got %q", id)
	}
	if len(d.sent) != 1 {
		t.Fatalf("sent: got %d, want 1", len(d.sent))
	}

	raw := render(t, d.sent[0])
	for _, want := range []string{
		"From: Artmarket <noreply@artmarket.example>",
		"Buyer",
		"buyer@example.com",
		"Cc: artist@example.com",
		"Reply-To: support@artmarket.example",
		"Subject: Order Confirmation #A-1",
		"Message-ID: " + id,
		"X-Priority: 1 (Highest)",
		"multipart/alternative",
		"text/html",
		"receipt.pdf",
		"application/pdf",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSend_CustomHeadersCannotChangeRecipients(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	p := newWithDialer("noreply@artmarket.example", d)

	_, err := p.Send(context.Background(), &email.Message{
		To:       []email.Recipient{{Address: "buyer@example.com"}},
		Subject:  "Order Confirmation #A-1",
		TextBody: "thanks",
		Headers: map[string]string{
			"To":         "attacker@evil.example",
			"Bcc":        "not-an-email",
			"From":       "spoof@evil.example",
			"X-Order-Id": "A-1",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.sent) != 1 {
		t.Fatalf("sent: got %d, want 1", len(d.sent))
	}

	m := d.sent[0]
	if got := m.GetHeader("To"); len(got) != 1 || got[0] != "buyer@example.com" {
		t.Errorf("To: got %v", got)
	}
	if got := m.GetHeader("Bcc"); len(got) != 0 {
		t.Errorf("Bcc: got %v, want none", got)
	}
	if got := m.GetHeader("From"); len(got) != 1 || got[0] != "noreply@artmarket.example" {
		t.Errorf("From: got %v", got)
	}
	if got := m.GetHeader("X-Order-Id"); len(got) != 1 || got[0] != "A-1" {
		t.Errorf("X-Order-Id: got %v", got)
	}
}

func TestSend_KeepsExistingMessageID(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	p := newWithDialer("noreply@artmarket.example", d)

	id, err := p.Send(context.Background(), &email.Message{
		To:        []email.Recipient{{Address: "a@example.com"}},
		Subject:   "s",
		TextBody:  "t",
		MessageID: "<fixed@artmarket.example>",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "<fixed@artmarket.example>" {
		t.Errorf("message id: got %q", id)
	}
}

func TestSend_DialError(t *testing.T) {
	t.Parallel()

	cause := errors.New("535 authentication failed")
	p := newWithDialer("noreply@artmarket.example", &fakeDialer{err: cause})

	_, err := p.Send(context.Background(), &email.Message{To: []email.Recipient{{Address: "a@example.com"}}})
	if !errors.Is(err, cause) {
		t.Errorf("got %v, want wrapped cause", err)
	}
}

func TestSend_ContextDeadline(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	defer close(block)
	p := newWithDialer("noreply@artmarket.example", &fakeDialer{block: block})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Send(ctx, &email.Message{To: []email.Recipient{{Address: "a@example.com"}}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want context.DeadlineExceeded", err)
	}
	if !errors.Is(err, provider.ErrOutcomeUnknown) {
		t.Errorf("got %v, want provider.ErrOutcomeUnknown", err)
	}
}

func TestNew_Dialer(t *testing.T) {
	t.Parallel()

	p := New(Config{Host: "smtp.hostinger.com", Port: 465, Secure: true, Username: "u", Password: "p", From: "a@b.co"})
	d, ok := p.dialer.(*mail.Dialer)
	if !ok {
		t.Fatalf("dialer type: %T", p.dialer)
	}
	if !d.SSL || d.Host != "smtp.hostinger.com" || d.Port != 465 {
		t.Errorf("dialer: %+v", d)
	}
	if d.TLSConfig.ServerName != "smtp.hostinger.com" {
		t.Errorf("ServerName: got %q", d.TLSConfig.ServerName)
	}
	if p.Name() != "smtp" {
		t.Errorf("Name: got %q", p.Name())
	}
}

func TestDomainOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"noreply@artmarket.example", "artmarket.example"},
		{"Shop <shop@gallery.art>", "gallery.art"},
		{"", "localhost"},
		{"broken@", "localhost"},
	}
	for _, tt := range tests {
		if got := domainOf(tt.in); got != tt.want {
			t.Errorf("domainOf(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}
