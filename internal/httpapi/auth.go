package httpapi

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
)

// realm is sent in WWW-Authenticate challenges.
const realm = "artmarket-mailer"

// Authentication failures.
var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrAuthFailed         = errors.New("authentication failed")
)

// Authenticator checks HTTP Basic credentials against the configured API
// user.
type Authenticator struct {
	username string
	password string
}

// NewAuthenticator creates an Authenticator with the given credentials.
// If either is empty, authentication is disabled.
func NewAuthenticator(username, password string) *Authenticator {
	return &Authenticator{
		username: username,
		password: password,
	}
}

// Enabled returns true if authentication credentials are configured.
func (a *Authenticator) Enabled() bool {
	return a != nil && a.username != "" && a.password != ""
}

// Verify compares user and pass with the configured credentials in
// constant time.
func (a *Authenticator) Verify(user, pass string) error {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(a.password)) == 1
	if !userOK || !passOK {
		return ErrAuthFailed
	}
	return nil
}

// VerifyRequest checks the request's Basic credentials.
func (a *Authenticator) VerifyRequest(r *http.Request) error {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return ErrMissingCredentials
	}
	return a.Verify(user, pass)
}

// Middleware rejects unauthenticated requests with 401. It passes every
// request through when authentication is disabled.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.VerifyRequest(r); err != nil {
			slog.Warn("rejected API request",
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"reason", err,
			)
			w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
			errorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
