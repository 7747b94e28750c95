package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/oauth2"

	"github.com/taskwire/taskwire/internal/logging"
)

// Transport is the single physical connection to the realtime backend.
// Only the ConnectionSupervisor creates and destroys it; the channel
// registry issues subscribe/unsubscribe/publish against it.
type Transport interface {
	// Dial establishes the physical connection, tearing down any previous one.
	Dial(ctx context.Context) error

	// Close tears the connection down. Closing a closed transport is a no-op.
	Close() error

	// Connected reports whether a live connection exists.
	Connected() bool

	// Subscribe registers interest in a topic with the backend.
	Subscribe(ctx context.Context, topic string) error

	// Unsubscribe withdraws interest in a topic.
	Unsubscribe(ctx context.Context, topic string) error

	// Publish sends an envelope to the backend. Returns ErrNotConnected
	// when no live connection exists.
	Publish(ctx context.Context, env Envelope) error

	// OnEnvelope registers the single inbound dispatcher.
	OnEnvelope(fn func(Envelope))

	// OnDisconnect registers the low-level disconnect/error callback.
	OnDisconnect(fn func(error))
}

// WSTransport implements Transport over a WebSocket.
type WSTransport struct {
	url    string
	tokens oauth2.TokenSource
	log    *logging.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	handlerMu    sync.RWMutex
	onEnvelope   func(Envelope)
	onDisconnect func(error)
}

// NewWSTransport creates a WebSocket transport for the given endpoint.
// A nil token source dials unauthenticated.
func NewWSTransport(url string, tokens oauth2.TokenSource, log *logging.Logger) *WSTransport {
	return &WSTransport{
		url:    url,
		tokens: tokens,
		log:    log.Sub("transport"),
	}
}

// Dial establishes the WebSocket connection and starts the read loop.
// Any previous connection is torn down first.
func (t *WSTransport) Dial(ctx context.Context) error {
	t.teardown()

	header := http.Header{}
	if t.tokens != nil {
		tok, err := t.tokens.Token()
		if err != nil {
			return fmt.Errorf("%w: token source: %v", ErrUnauthorized, err)
		}
		header.Set("Authorization", "Bearer "+tok.AccessToken)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, t.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.closed = false
	t.mu.Unlock()

	t.log.Debug().Str("url", t.url).Msg("transport connected")
	go t.readLoop(conn)
	return nil
}

// Close tears the connection down deliberately; the disconnect callback
// is not invoked for a deliberate close.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.conn == nil {
		t.closed = true
		return nil
	}
	t.closed = true
	err := t.conn.Close()
	t.conn = nil
	return err
}

// Connected reports whether a live connection exists.
func (t *WSTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil && !t.closed
}

// Subscribe registers interest in a topic.
func (t *WSTransport) Subscribe(ctx context.Context, topic string) error {
	return t.Publish(ctx, Envelope{Kind: KindSubscribe, Topic: topic})
}

// Unsubscribe withdraws interest in a topic.
func (t *WSTransport) Unsubscribe(ctx context.Context, topic string) error {
	return t.Publish(ctx, Envelope{Kind: KindUnsubscribe, Topic: topic})
}

// Publish sends an envelope. Thread-safe.
func (t *WSTransport) Publish(_ context.Context, env Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil || t.closed {
		return ErrNotConnected
	}
	return t.conn.WriteJSON(env)
}

// OnEnvelope registers the single inbound dispatcher.
func (t *WSTransport) OnEnvelope(fn func(Envelope)) {
	t.handlerMu.Lock()
	defer t.handlerMu.Unlock()
	t.onEnvelope = fn
}

// OnDisconnect registers the low-level disconnect/error callback.
func (t *WSTransport) OnDisconnect(fn func(error)) {
	t.handlerMu.Lock()
	defer t.handlerMu.Unlock()
	t.onDisconnect = fn
}

// teardown closes the current connection without flipping the closed
// flag, so a redial can follow.
func (t *WSTransport) teardown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
}

func (t *WSTransport) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			deliberate := t.closed || t.conn != conn
			if t.conn == conn {
				t.conn = nil
			}
			t.mu.Unlock()

			if !deliberate {
				t.log.Warn().Err(err).Msg("transport read failed")
				t.handlerMu.RLock()
				fn := t.onDisconnect
				t.handlerMu.RUnlock()
				if fn != nil {
					fn(err)
				}
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			t.log.Warn().Err(err).Msg("dropping malformed envelope")
			continue
		}

		t.handlerMu.RLock()
		fn := t.onEnvelope
		t.handlerMu.RUnlock()
		if fn != nil {
			fn(env)
		}
	}
}
