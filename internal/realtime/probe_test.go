package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probeServer(t *testing.T, status int) (*httptest.Server, *atomic.Value) {
	t.Helper()
	var lastAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastAuth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &lastAuth
}

func TestHTTPProbe_Success(t *testing.T) {
	srv, lastAuth := probeServer(t, http.StatusOK)
	p := NewHTTPProbe(srv.URL, "/health", staticTokens("session-token"), time.Second, testLogger())

	latency, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.Greater(t, latency, time.Duration(0))
	assert.Equal(t, "Bearer session-token", lastAuth.Load())
}

func TestHTTPProbe_UnauthenticatedWhenNoTokenSource(t *testing.T) {
	srv, lastAuth := probeServer(t, http.StatusOK)
	p := NewHTTPProbe(srv.URL, "/health", nil, time.Second, testLogger())

	_, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", lastAuth.Load())
}

func TestHTTPProbe_CredentialRejected(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv, _ := probeServer(t, status)
		p := NewHTTPProbe(srv.URL, "/health", staticTokens("stale"), time.Second, testLogger())

		_, err := p.Probe(context.Background())
		assert.ErrorIs(t, err, ErrUnauthorized, "status %d", status)
	}
}

func TestHTTPProbe_ServerErrorIsUnreachable(t *testing.T) {
	srv, _ := probeServer(t, http.StatusBadGateway)
	p := NewHTTPProbe(srv.URL, "/health", nil, time.Second, testLogger())

	_, err := p.Probe(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestHTTPProbe_OtherClientStatusesAreReachable(t *testing.T) {
	// A 404 on the liveness path still proves the backend is up; only
	// credential rejections and 5xx count as failures.
	srv, _ := probeServer(t, http.StatusNotFound)
	p := NewHTTPProbe(srv.URL, "/health", nil, time.Second, testLogger())

	_, err := p.Probe(context.Background())
	assert.NoError(t, err)
}

func TestHTTPProbe_NetworkErrorIsUnreachable(t *testing.T) {
	srv, _ := probeServer(t, http.StatusOK)
	url := srv.URL
	srv.Close()

	p := NewHTTPProbe(url, "/health", nil, 100*time.Millisecond, testLogger())
	_, err := p.Probe(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestHTTPProbe_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	p := NewHTTPProbe(srv.URL, "/health", nil, time.Minute, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Probe(ctx)
	assert.ErrorIs(t, err, ErrUnreachable)
}
