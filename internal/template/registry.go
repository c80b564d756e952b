package template

import (
	"errors"
	"fmt"
	"sort"
)

// Key identifies a template type.
type Key string

const (
	OrderConfirmation Key = "order_confirmation"
	Welcome           Key = "welcome"
	PasswordReset     Key = "password_reset"
	ReturnRequest     Key = "return_request"
	OrderShipped      Key = "order_shipped"
	OrderDelivered    Key = "order_delivered"
	ContactForm       Key = "contact_form"
	Newsletter        Key = "newsletter"
	ArtistPayout      Key = "artist_payout"
)

// ErrNotFound is returned by Lookup for an unknown key.
var ErrNotFound = errors.New("template not found")

// Definition is a static template. Subject, HTML and Text may all carry
// {{placeholder}} tokens; Text is optional.
type Definition struct {
	Key     Key
	Subject string
	HTML    string
	Text    string
}

// Rendered is a definition after substitution.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Render substitutes vars into every part of the definition. A non-empty
// subjectOverride is rendered in place of the definition's subject.
func (d Definition) Render(vars map[string]any, subjectOverride string, p Policy) Rendered {
	subject := d.Subject
	if subjectOverride != "" {
		subject = subjectOverride
	}

	var r Rendered
	r.Subject, _ = Render(subject, vars, p)
	r.HTML, _ = Render(d.HTML, vars, p)
	if d.Text != "" {
		r.Text, _ = Render(d.Text, vars, p)
	}
	return r
}

// Registry is an immutable set of definitions keyed by template type.
type Registry struct {
	defs map[Key]Definition
}

// NewRegistry builds a registry from defs. Duplicate or empty keys are
// rejected.
func NewRegistry(defs ...Definition) (*Registry, error) {
	m := make(map[Key]Definition, len(defs))
	for _, d := range defs {
		if d.Key == "" {
			return nil, errors.New("template definition missing key")
		}
		if _, dup := m[d.Key]; dup {
			return nil, fmt.Errorf("duplicate template definition: %s", d.Key)
		}
		m[d.Key] = d
	}
	return &Registry{defs: m}, nil
}

// Lookup returns the definition for key.
func (r *Registry) Lookup(key Key) (Definition, error) {
	d, ok := r.defs[key]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return d, nil
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []Key {
	keys := make([]Key, 0, len(r.defs))
	for k := range r.defs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
