package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/taskwire/taskwire/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent", "json")
}

// scriptProber returns scripted results in order; the last entry repeats.
type scriptProber struct {
	mu     sync.Mutex
	script []error
	calls  int
}

func (p *scriptProber) Probe(_ context.Context) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if i >= len(p.script) {
		i = len(p.script) - 1
	}
	return 5 * time.Millisecond, p.script[i]
}

func (p *scriptProber) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// gateProber blocks each probe until a result is pushed, which makes
// reconnect-loop timing deterministic in tests.
type gateProber struct {
	results chan error
}

func newGateProber() *gateProber {
	return &gateProber{results: make(chan error, 16)}
}

func (p *gateProber) Probe(_ context.Context) (time.Duration, error) {
	return 5 * time.Millisecond, <-p.results
}

// fakeTransport is a test double for the physical connection.
type fakeTransport struct {
	mu         sync.Mutex
	connected  bool
	dialErr    error
	publishErr error
	dials      int
	subs       []string
	unsubs     []string
	published  []Envelope

	handlerMu    sync.RWMutex
	onEnvelope   func(Envelope)
	onDisconnect func(error)
}

func (t *fakeTransport) Dial(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	if t.dialErr != nil {
		return t.dialErr
	}
	t.connected = true
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}

func (t *fakeTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *fakeTransport) Subscribe(_ context.Context, topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return ErrNotConnected
	}
	t.subs = append(t.subs, topic)
	return nil
}

func (t *fakeTransport) Unsubscribe(_ context.Context, topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return ErrNotConnected
	}
	t.unsubs = append(t.unsubs, topic)
	return nil
}

func (t *fakeTransport) Publish(_ context.Context, env Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.publishErr != nil {
		return t.publishErr
	}
	if !t.connected {
		return ErrNotConnected
	}
	t.published = append(t.published, env)
	return nil
}

func (t *fakeTransport) OnEnvelope(fn func(Envelope)) {
	t.handlerMu.Lock()
	defer t.handlerMu.Unlock()
	t.onEnvelope = fn
}

func (t *fakeTransport) OnDisconnect(fn func(error)) {
	t.handlerMu.Lock()
	defer t.handlerMu.Unlock()
	t.onDisconnect = fn
}

// deliver simulates an inbound envelope from the backend.
func (t *fakeTransport) deliver(env Envelope) {
	t.handlerMu.RLock()
	fn := t.onEnvelope
	t.handlerMu.RUnlock()
	if fn != nil {
		fn(env)
	}
}

// dropConnection simulates a low-level disconnect event.
func (t *fakeTransport) dropConnection(err error) {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()

	t.handlerMu.RLock()
	fn := t.onDisconnect
	t.handlerMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) subscribed() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.subs...)
}

func (t *fakeTransport) publishedEnvelopes() []Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Envelope(nil), t.published...)
}

// fastPolicy keeps test reconnect loops near-instant.
func fastPolicy(maxAttempts int) ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay:     time.Millisecond,
		BackoffFactor: 2,
		MaxDelay:      4 * time.Millisecond,
		MaxAttempts:   maxAttempts,
	}
}
