// Package email defines the message and result model shared by the dispatcher,
// the transports and the HTTP API.
package email

import (
	"net/mail"
	"sort"
	"strings"
)

// Priority tags a message for transports that support it.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Recipient is a single address with an optional display name.
type Recipient struct {
	Address string `json:"email"`
	Name    string `json:"name,omitempty"`
}

// String formats the recipient as an RFC 5322 address, quoting the name
// when needed.
func (r Recipient) String() string {
	if r.Name == "" {
		return r.Address
	}
	return (&mail.Address{Name: r.Name, Address: r.Address}).String()
}

// Message is a fully described outbound email. It is built per call and
// never persisted.
type Message struct {
	From        string            `json:"from,omitempty"`
	To          []Recipient       `json:"to"`
	Cc          []Recipient       `json:"cc,omitempty"`
	Bcc         []Recipient       `json:"bcc,omitempty"`
	ReplyTo     string            `json:"reply_to,omitempty"`
	Subject     string            `json:"subject"`
	HTMLBody    string            `json:"html"`
	TextBody    string            `json:"text,omitempty"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	Priority    Priority          `json:"priority,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	MessageID   string            `json:"-"`
}

// Attachment represents a file attached to an email message.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

// AllRecipients returns To, Cc and Bcc in that order.
func (m *Message) AllRecipients() []Recipient {
	all := make([]Recipient, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	all = append(all, m.To...)
	all = append(all, m.Cc...)
	all = append(all, m.Bcc...)
	return all
}

// Addresses returns the bare addresses of rs.
func Addresses(rs []Recipient) []string {
	if len(rs) == 0 {
		return nil
	}
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Address)
	}
	return out
}

// Formatted returns rs in "Name <addr>" form.
func Formatted(rs []Recipient) []string {
	if len(rs) == 0 {
		return nil
	}
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.String())
	}
	return out
}

// Result is the outcome of one dispatch. Bulk sends produce one per
// recipient.
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
	Recipient string `json:"recipient,omitempty"`

	// Err keeps the typed failure for errors.Is checks by Go callers.
	Err error `json:"-"`
}

// Failed builds a failure result from err.
func Failed(err error) Result {
	return Result{Success: false, Error: err.Error(), Err: err}
}

// JoinAddresses renders rs as a comma separated header value.
func JoinAddresses(rs []Recipient) string {
	return strings.Join(Formatted(rs), ", ")
}

// priorityHeaders maps a priority tag to its X-Priority value.
var priorityHeaders = map[Priority]string{
	PriorityHigh: "1 (Highest)",
	PriorityLow:  "5 (Lowest)",
}

// HeaderFields returns the custom headers of the message plus X-Priority
// for non-normal priorities, sorted by name. Headers that Validate rejects
// are left out, so a transport never lets them override the recipients.
func (m *Message) HeaderFields() [][2]string {
	fields := make([][2]string, 0, len(m.Headers)+1)
	for k, v := range m.Headers {
		if validateHeader(k, v) != nil {
			continue
		}
		fields = append(fields, [2]string{k, v})
	}
	if v, ok := priorityHeaders[m.Priority]; ok {
		if _, set := m.Headers["X-Priority"]; !set {
			fields = append(fields, [2]string{"X-Priority", v})
		}
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i][0] < fields[j][0] })
	return fields
}
