package email

import (
	"errors"
	"fmt"
	"maps"
	"net/textproto"
	"regexp"
	"slices"
	"strings"
)

// addressPattern is the storefront's basic local@domain.tld shape check.
var addressPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ErrNoRecipients is returned when a message has nothing in To.
var ErrNoRecipients = errors.New("at least one recipient is required")

// AddressError reports a malformed recipient address.
type AddressError struct {
	Address string
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("invalid email address: %q", e.Address)
}

// reservedHeaders are built by the transports from the message fields. A
// custom header with one of these names could change who receives the mail.
var reservedHeaders = map[string]bool{
	"From":                      true,
	"Sender":                    true,
	"To":                        true,
	"Cc":                        true,
	"Bcc":                       true,
	"Reply-To":                  true,
	"Subject":                   true,
	"Message-Id":                true,
	"Date":                      true,
	"Mime-Version":              true,
	"Content-Type":              true,
	"Content-Transfer-Encoding": true,
	"Content-Disposition":       true,
}

// HeaderError reports a custom header that cannot be sent.
type HeaderError struct {
	Name   string
	Reason string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("header %q %s", e.Name, e.Reason)
}

// ReservedHeader reports whether name is set from the message fields and
// therefore not accepted in Message.Headers.
func ReservedHeader(name string) bool {
	return reservedHeaders[textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name))]
}

// validateHeader rejects reserved names and anything that would break out
// of a single header line.
func validateHeader(name, value string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return &HeaderError{Name: name, Reason: "has an empty name"}
	case ReservedHeader(name):
		return &HeaderError{Name: name, Reason: "is set from the message fields"}
	case strings.ContainsAny(name, "\r\n: "), strings.ContainsAny(value, "\r\n"):
		return &HeaderError{Name: name, Reason: "contains a line break or invalid character"}
	}
	return nil
}

// ValidAddress reports whether addr has a basic local@domain shape.
func ValidAddress(addr string) bool {
	return addressPattern.MatchString(addr)
}

// ValidateAddress returns an *AddressError when addr is malformed.
func ValidateAddress(addr string) error {
	if !ValidAddress(addr) {
		return &AddressError{Address: addr}
	}
	return nil
}

// Validate checks every recipient and custom header of the message. It fails
// on the first problem so that nothing in the call is delivered.
func (m *Message) Validate() error {
	if len(m.To) == 0 {
		return ErrNoRecipients
	}
	for _, r := range m.AllRecipients() {
		if err := ValidateAddress(r.Address); err != nil {
			return err
		}
	}
	if m.ReplyTo != "" {
		if err := ValidateAddress(m.ReplyTo); err != nil {
			return err
		}
	}
	for _, name := range slices.Sorted(maps.Keys(m.Headers)) {
		if err := validateHeader(name, m.Headers[name]); err != nil {
			return err
		}
	}
	return nil
}
