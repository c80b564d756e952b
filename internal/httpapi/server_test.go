package httpapi

import (
	"context"
	"crypto/tls"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/artmarket-mailer/internal/ratelimit"
	mtls "github.com/shineum/artmarket-mailer/internal/tls"
)

func startServer(t *testing.T, cfg ServerConfig) (*Server, context.CancelFunc, <-chan error) {
	t.Helper()
	srv := NewServer(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != "" }, 2*time.Second, 10*time.Millisecond)
	return srv, cancel, done
}

func TestServer_ServeAndShutdown(t *testing.T) {
	h := newTestAPI(t, &fakeProvider{}, ratelimit.Limits{}, nil, nil)
	srv, cancel, done := startServer(t, ServerConfig{ListenAddr: "127.0.0.1:0", Handler: h})

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_TLS(t *testing.T) {
	cert, err := mtls.SelfSigned("127.0.0.1")
	require.NoError(t, err)

	h := newTestAPI(t, &fakeProvider{}, ratelimit.Limits{}, nil, nil)
	srv, cancel, done := startServer(t, ServerConfig{
		ListenAddr: "127.0.0.1:0",
		Handler:    h,
		TLSConfig:  &tls.Config{Certificates: []tls.Certificate{*cert}},
	})
	defer func() {
		cancel()
		<-done
	}()

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}}
	resp, err := client.Get("https://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_ListenError(t *testing.T) {
	srv := NewServer(ServerConfig{ListenAddr: "256.0.0.1:99999"})
	err := srv.ListenAndServe(context.Background())
	assert.Error(t, err)
	assert.Empty(t, srv.Addr())
}
