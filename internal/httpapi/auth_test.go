package httpapi

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/artmarket-mailer/internal/ratelimit"
)

func TestAuthenticatorEnabled(t *testing.T) {
	tests := []struct {
		user, pass string
		want       bool
	}{
		{"storefront", "s3cret", true},
		{"storefront", "", false},
		{"", "s3cret", false},
		{"", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewAuthenticator(tt.user, tt.pass).Enabled(), "%q/%q", tt.user, tt.pass)
	}

	var nilAuth *Authenticator
	assert.False(t, nilAuth.Enabled())
}

func TestAuthenticatorVerify(t *testing.T) {
	a := NewAuthenticator("storefront", "s3cret")

	assert.NoError(t, a.Verify("storefront", "s3cret"))
	assert.ErrorIs(t, a.Verify("storefront", "wrong"), ErrAuthFailed)
	assert.ErrorIs(t, a.Verify("other", "s3cret"), ErrAuthFailed)
	assert.ErrorIs(t, a.Verify("", ""), ErrAuthFailed)
}

func TestAuthenticatorVerifyRequest(t *testing.T) {
	a := NewAuthenticator("storefront", "s3cret")

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	assert.True(t, errors.Is(a.VerifyRequest(req), ErrMissingCredentials))

	req.SetBasicAuth("storefront", "s3cret")
	assert.NoError(t, a.VerifyRequest(req))
}

func TestMiddleware(t *testing.T) {
	auth := NewAuthenticator("storefront", "s3cret")
	p := &fakeProvider{}
	h := newTestAPI(t, p, ratelimit.Limits{}, nil, auth)

	t.Run("missing credentials", func(t *testing.T) {
		rec, env := do(t, h, http.MethodGet, "/api/stats", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, `Basic realm="artmarket-mailer"`, rec.Header().Get("WWW-Authenticate"))
		assert.Equal(t, "error", env.Status)
	})

	t.Run("wrong password", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/send",
			jsonBody(`{"to":[{"email":"a@example.com"}],"subject":"s","text":"t"}`))
		req.SetBasicAuth("storefront", "guess")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, 0, p.count())
	})

	t.Run("valid credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/send",
			jsonBody(`{"to":[{"email":"a@example.com"}],"subject":"s","text":"t"}`))
		req.SetBasicAuth("storefront", "s3cret")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, 1, p.count())
	})

	t.Run("health check stays open", func(t *testing.T) {
		rec, _ := do(t, h, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestMiddleware_Disabled(t *testing.T) {
	h := newTestAPI(t, &fakeProvider{}, ratelimit.Limits{}, nil, NewAuthenticator("", ""))

	rec, _ := do(t, h, http.MethodGet, "/api/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}
