package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// wsTestServer is a minimal realtime backend for transport tests. It
// records the handshake auth header and every inbound envelope, and lets
// tests push envelopes or drop the connection from the server side.
type wsTestServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	auth     string
	inbound  []Envelope
	conn     *websocket.Conn
	connOnce chan struct{}
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	s := &wsTestServer{connOnce: make(chan struct{})}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.auth = r.Header.Get("Authorization")
		s.conn = conn
		select {
		case <-s.connOnce:
		default:
			close(s.connOnce)
		}
		s.mu.Unlock()

		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			s.mu.Lock()
			s.inbound = append(s.inbound, env)
			s.mu.Unlock()
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsTestServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsTestServer) authHeader() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

func (s *wsTestServer) received() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Envelope(nil), s.inbound...)
}

func (s *wsTestServer) push(t *testing.T, env Envelope) {
	t.Helper()
	<-s.connOnce
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	require.NoError(t, conn.WriteJSON(env))
}

func (s *wsTestServer) dropClient() {
	<-s.connOnce
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	conn.Close()
}

func staticTokens(access string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: access})
}

func TestWSTransport_DialSendsBearerToken(t *testing.T) {
	srv := newWSTestServer(t)
	tr := NewWSTransport(srv.wsURL(), staticTokens("session-token"), testLogger())
	defer tr.Close()

	require.NoError(t, tr.Dial(context.Background()))
	assert.True(t, tr.Connected())
	assert.Equal(t, "Bearer session-token", srv.authHeader())
}

func TestWSTransport_PublishAndSubscribeReachBackend(t *testing.T) {
	srv := newWSTestServer(t)
	tr := NewWSTransport(srv.wsURL(), nil, testLogger())
	defer tr.Close()

	ctx := context.Background()
	require.NoError(t, tr.Dial(ctx))
	require.NoError(t, tr.Subscribe(ctx, "project:alpha"))
	env, err := NewEnvelope(KindBroadcast, "project:alpha", map[string]string{"body": "hi"})
	require.NoError(t, err)
	require.NoError(t, tr.Publish(ctx, env))
	require.NoError(t, tr.Unsubscribe(ctx, "project:alpha"))

	assert.Eventually(t, func() bool {
		return len(srv.received()) == 3
	}, time.Second, time.Millisecond)

	got := srv.received()
	assert.Equal(t, KindSubscribe, got[0].Kind)
	assert.Equal(t, "project:alpha", got[0].Topic)
	assert.Equal(t, KindBroadcast, got[1].Kind)
	assert.Equal(t, KindUnsubscribe, got[2].Kind)
}

func TestWSTransport_InboundEnvelopesDispatched(t *testing.T) {
	srv := newWSTestServer(t)
	tr := NewWSTransport(srv.wsURL(), nil, testLogger())
	defer tr.Close()

	var mu sync.Mutex
	var got []Envelope
	tr.OnEnvelope(func(env Envelope) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, env)
	})

	require.NoError(t, tr.Dial(context.Background()))

	env, err := NewEnvelope(KindPresenceSync, "team:core", []string{})
	require.NoError(t, err)
	srv.push(t, env)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0].Kind == KindPresenceSync && got[0].Topic == "team:core"
	}, time.Second, time.Millisecond)
}

func TestWSTransport_DeliberateCloseIsSilent(t *testing.T) {
	srv := newWSTestServer(t)
	tr := NewWSTransport(srv.wsURL(), nil, testLogger())

	var mu sync.Mutex
	var disconnects int
	tr.OnDisconnect(func(error) {
		mu.Lock()
		defer mu.Unlock()
		disconnects++
	})

	require.NoError(t, tr.Dial(context.Background()))
	require.NoError(t, tr.Close())
	assert.False(t, tr.Connected())

	// The read loop observes the close; it must not treat it as a failure.
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, disconnects)
}

func TestWSTransport_ServerDropFiresDisconnect(t *testing.T) {
	srv := newWSTestServer(t)
	tr := NewWSTransport(srv.wsURL(), nil, testLogger())
	defer tr.Close()

	var mu sync.Mutex
	var disconnects int
	tr.OnDisconnect(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		disconnects++
	})

	require.NoError(t, tr.Dial(context.Background()))
	srv.dropClient()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return disconnects == 1
	}, time.Second, time.Millisecond)

	assert.False(t, tr.Connected())
	assert.ErrorIs(t, tr.Publish(context.Background(), Envelope{Kind: KindBroadcast}), ErrNotConnected)
}

func TestWSTransport_PublishWithoutDial(t *testing.T) {
	tr := NewWSTransport("ws://127.0.0.1:0/realtime", nil, testLogger())
	err := tr.Publish(context.Background(), Envelope{Kind: KindBroadcast})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestWSTransport_DialUnreachable(t *testing.T) {
	srv := newWSTestServer(t)
	url := srv.wsURL()
	srv.srv.Close()

	tr := NewWSTransport(url, nil, testLogger())
	err := tr.Dial(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.False(t, tr.Connected())
}

func TestWSTransport_HandshakeRejectionIsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credential", http.StatusUnauthorized)
	}))
	defer srv.Close()

	tr := NewWSTransport("ws"+strings.TrimPrefix(srv.URL, "http"), staticTokens("stale"), testLogger())
	err := tr.Dial(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestWSTransport_RedialReplacesConnection(t *testing.T) {
	srv := newWSTestServer(t)
	tr := NewWSTransport(srv.wsURL(), nil, testLogger())
	defer tr.Close()

	var mu sync.Mutex
	var disconnects int
	tr.OnDisconnect(func(error) {
		mu.Lock()
		defer mu.Unlock()
		disconnects++
	})

	ctx := context.Background()
	require.NoError(t, tr.Dial(ctx))
	require.NoError(t, tr.Dial(ctx))
	assert.True(t, tr.Connected())

	// The first connection was torn down deliberately by the redial.
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, disconnects)
}
