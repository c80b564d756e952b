// Package template renders the storefront's {{placeholder}} email templates.
package template

import (
	"fmt"
	"log/slog"
	"regexp"
)

var (
	// tokenPattern matches anything shaped like a placeholder, including
	// malformed ones such as "{{ name }}" or "{{order.id}}".
	tokenPattern = regexp.MustCompile(`\{\{[^{}]*\}\}`)

	// namePattern is the name of a well-formed placeholder.
	namePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

	// leftoverPattern matches anything still shaped like a placeholder after
	// substitution, e.g. "{{ name }}" or "{{order.id}}".
	leftoverPattern = regexp.MustCompile(`\{\{[^{}]*\}\}`)
)

// Policy controls how Render treats missing variables and tokens it could
// not resolve.
type Policy struct {
	// MissingValue replaces a placeholder whose variable is absent or nil.
	MissingValue string

	// StripLeftovers removes unresolved tokens from the output.
	StripLeftovers bool

	// OnLeftover is called once per unresolved token, before stripping.
	OnLeftover func(token string)
}

// DefaultPolicy substitutes missing variables with "" and strips leftover
// tokens after logging each one as a warning.
func DefaultPolicy() Policy {
	return Policy{
		MissingValue:   "",
		StripLeftovers: true,
		OnLeftover: func(token string) {
			slog.Warn("unresolved template placeholder", "token", token)
		},
	}
}

// Render substitutes every {{name}} in tmpl with the string form of
// vars[name] and returns the rendered text together with any tokens that
// were left unresolved. Only tmpl is scanned for tokens; substituted values
// are copied through as they are.
func Render(tmpl string, vars map[string]any, p Policy) (string, []string) {
	var leftovers []string
	out := tokenPattern.ReplaceAllStringFunc(tmpl, func(token string) string {
		name := token[2 : len(token)-2]
		if !namePattern.MatchString(name) {
			leftovers = append(leftovers, token)
			if p.StripLeftovers {
				return ""
			}
			return token
		}
		v, ok := vars[name]
		if !ok || v == nil {
			return p.MissingValue
		}
		return fmt.Sprint(v)
	})

	if p.OnLeftover != nil {
		for _, token := range leftovers {
			p.OnLeftover(token)
		}
	}
	return out, leftovers
}
