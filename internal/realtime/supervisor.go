package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/taskwire/taskwire/internal/domain"
	"github.com/taskwire/taskwire/internal/logging"
)

// PhaseChange is emitted on every connection phase transition.
type PhaseChange struct {
	Old   domain.Phase
	New   domain.Phase
	State domain.ConnectionState
	Err   error
}

// Supervisor owns the single physical connection and answers "are we
// connected" authoritatively. It runs the periodic health check and
// drives the reconnect state machine with exponential backoff. Exactly
// one Supervisor exists per process; consumers receive a reference from
// the composition root rather than reaching a global.
type Supervisor struct {
	transport Transport
	probe     Prober
	policy    ReconnectPolicy
	interval  time.Duration
	log       *logging.Logger

	mu            sync.Mutex
	state         domain.ConnectionState
	reconnecting  bool
	reconnectDone chan struct{}
	started       bool
	stopCh        chan struct{}

	phaseHub *hub[PhaseChange]

	replayMu sync.RWMutex
	replay   func(ctx context.Context)
}

// NewSupervisor creates a supervisor over the given transport and probe.
// A zero interval defaults to 30 seconds.
func NewSupervisor(transport Transport, probe Prober, policy ReconnectPolicy, interval time.Duration, log *logging.Logger) *Supervisor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	l := log.Sub("supervisor")
	return &Supervisor{
		transport: transport,
		probe:     probe,
		policy:    policy,
		interval:  interval,
		log:       l,
		state:     domain.ConnectionState{Phase: domain.PhaseDisconnected},
		phaseHub:  newHub[PhaseChange](l),
	}
}

// OnPhaseChange registers a listener for phase transitions. The returned
// subscription detaches it.
func (s *Supervisor) OnPhaseChange(fn func(PhaseChange)) *Subscription {
	return s.phaseHub.subscribe(fn)
}

// SetReplay registers the callback invoked after a successful reconnect
// to re-establish channel joins and presence.
func (s *Supervisor) SetReplay(fn func(ctx context.Context)) {
	s.replayMu.Lock()
	defer s.replayMu.Unlock()
	s.replay = fn
}

// State returns a snapshot of the authoritative connection state.
func (s *Supervisor) State() domain.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start establishes the connection and begins the periodic health check.
// On an authorization failure the error is returned without retrying; on
// a transport failure the caller may invoke Reconnect to begin recovery.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.transport.OnDisconnect(s.handleTransportDown)

	s.setPhase(domain.PhaseConnecting, nil)

	err := s.connectOnce(ctx)
	if err != nil {
		s.setPhase(domain.PhaseDisconnected, err)
	} else {
		s.setPhase(domain.PhaseConnected, nil)
	}

	// The health loop runs regardless: it idles while Disconnected and
	// resumes monitoring once a forced reconnect succeeds.
	go s.healthLoop(ctx, stopCh)
	return err
}

// Stop tears down the connection and cancels all periodic work.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopCh)
	s.mu.Unlock()

	if err := s.transport.Close(); err != nil {
		s.log.Warn().Err(err).Msg("transport close failed")
	}
	s.setPhase(domain.PhaseDisconnected, nil)
}

// CheckHealth runs one probe and updates the exposed state fields. It
// never enters the reconnect loop; the supervisor's own health loop (or
// an explicit Reconnect) drives recovery.
func (s *Supervisor) CheckHealth(ctx context.Context) bool {
	elapsed, err := s.probe.Probe(ctx)

	s.mu.Lock()
	s.state.LastCheckedAt = time.Now()
	s.state.ResponseTimeMs = elapsed.Milliseconds()
	phase := s.state.Phase
	s.mu.Unlock()

	if err != nil {
		if phase == domain.PhaseConnected {
			s.setPhase(domain.PhaseDegraded, err)
		}
		return false
	}
	if phase == domain.PhaseDegraded {
		s.setPhase(domain.PhaseConnected, nil)
	}
	return true
}

// Reconnect runs the reconnect loop and reports whether the connection
// is healthy afterwards. If a loop is already in flight this call joins
// it instead of starting a second one; that guard is what prevents
// duplicate reconnect storms.
func (s *Supervisor) Reconnect(ctx context.Context) bool {
	s.mu.Lock()
	if s.reconnecting {
		done := s.reconnectDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return s.State().Phase == domain.PhaseConnected
	}
	s.reconnecting = true
	s.reconnectDone = make(chan struct{})
	s.mu.Unlock()

	s.runReconnectLoop(ctx)
	return s.State().Phase == domain.PhaseConnected
}

// beginReconnect starts the reconnect loop in the background unless one
// is already in flight.
func (s *Supervisor) beginReconnect(ctx context.Context) {
	s.mu.Lock()
	if s.reconnecting {
		s.mu.Unlock()
		return
	}
	s.reconnecting = true
	s.reconnectDone = make(chan struct{})
	s.mu.Unlock()

	go s.runReconnectLoop(ctx)
}

// runReconnectLoop executes reconnect attempts until one succeeds, the
// attempt ceiling is reached, or the failure turns out not to be
// retryable. The caller must hold the reconnecting guard.
func (s *Supervisor) runReconnectLoop(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.reconnecting = false
		close(s.reconnectDone)
		s.mu.Unlock()
	}()

	s.setPhase(domain.PhaseReconnecting, nil)

	attempts := 0
	for {
		attempts++
		s.mu.Lock()
		s.state.ReconnectAttempts = attempts
		s.mu.Unlock()

		s.log.Info().Int("attempt", attempts).Msg("reconnect attempt")

		err := s.connectOnce(ctx)
		if err == nil {
			s.setPhase(domain.PhaseConnected, nil)
			s.runReplay(ctx)
			return
		}

		if errors.Is(err, ErrUnauthorized) {
			s.log.Error().Err(err).Msg("credential rejected, not retrying")
			s.setPhase(domain.PhaseDisconnected, err)
			return
		}

		if s.policy.Exhausted(attempts) {
			s.log.Error().Int("attempts", attempts).Msg("reconnect attempts exhausted")
			s.setPhase(domain.PhaseDisconnected, ErrAttemptsExceeded)
			return
		}

		if !s.sleep(ctx, s.policy.Delay(attempts)) {
			s.setPhase(domain.PhaseDisconnected, ctx.Err())
			return
		}
	}
}

// connectOnce tears down and recreates the physical connection, then
// verifies it with the health probe.
func (s *Supervisor) connectOnce(ctx context.Context) error {
	if err := s.transport.Dial(ctx); err != nil {
		return err
	}

	elapsed, err := s.probe.Probe(ctx)

	s.mu.Lock()
	s.state.LastCheckedAt = time.Now()
	s.state.ResponseTimeMs = elapsed.Milliseconds()
	s.mu.Unlock()

	return err
}

// healthLoop probes the backend every interval. One failure degrades the
// connection; a second consecutive failure confirms it and enters the
// reconnect loop.
func (s *Supervisor) healthLoop(ctx context.Context, stopCh <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one periodic health check and drives the Connected →
// Degraded → Reconnecting confirmation sequence.
func (s *Supervisor) tick(ctx context.Context) {
	s.mu.Lock()
	phase := s.state.Phase
	s.mu.Unlock()

	// The in-flight reconnect loop owns recovery; a supervisor that gave
	// up stays down until an explicit Reconnect.
	if phase == domain.PhaseReconnecting || phase == domain.PhaseDisconnected {
		return
	}

	elapsed, err := s.probe.Probe(ctx)

	s.mu.Lock()
	s.state.LastCheckedAt = time.Now()
	s.state.ResponseTimeMs = elapsed.Milliseconds()
	s.mu.Unlock()

	if err == nil {
		if phase == domain.PhaseDegraded {
			s.setPhase(domain.PhaseConnected, nil)
		}
		return
	}

	if errors.Is(err, ErrUnauthorized) {
		s.setPhase(domain.PhaseDisconnected, err)
		return
	}

	switch phase {
	case domain.PhaseConnected:
		s.setPhase(domain.PhaseDegraded, err)
	case domain.PhaseDegraded:
		s.setPhase(domain.PhaseReconnecting, err)
		s.beginReconnect(ctx)
	}
}

// handleTransportDown reacts to a low-level disconnect/error event from
// the physical connection. This is treated as a confirmed failure.
func (s *Supervisor) handleTransportDown(err error) {
	s.mu.Lock()
	phase := s.state.Phase
	started := s.started
	s.mu.Unlock()

	if !started || phase == domain.PhaseReconnecting || phase == domain.PhaseDisconnected {
		return
	}

	s.log.Warn().Err(err).Msg("transport reported disconnect")
	if phase == domain.PhaseConnected {
		s.setPhase(domain.PhaseDegraded, err)
	}
	s.beginReconnect(context.Background())
}

// setPhase transitions the state machine and emits a phase-change event.
// Transitioning to the current phase is a no-op and does not reset
// counters.
func (s *Supervisor) setPhase(next domain.Phase, cause error) {
	s.mu.Lock()
	old := s.state.Phase
	if old == next {
		s.mu.Unlock()
		return
	}
	s.state.Phase = next
	if cause != nil {
		s.state.LastError = cause.Error()
	}
	// reconnectAttempts > 0 only ever holds while Reconnecting.
	if next == domain.PhaseConnected {
		s.state.LastError = ""
		s.state.ReconnectAttempts = 0
	} else if next == domain.PhaseDisconnected {
		s.state.ReconnectAttempts = 0
	}
	snapshot := s.state
	s.mu.Unlock()

	s.log.Info().Str("from", string(old)).Str("to", string(next)).Msg("phase transition")
	s.phaseHub.publish(PhaseChange{Old: old, New: next, State: snapshot, Err: cause})
}

func (s *Supervisor) runReplay(ctx context.Context) {
	s.replayMu.RLock()
	fn := s.replay
	s.replayMu.RUnlock()
	if fn != nil {
		fn(ctx)
	}
}

// sleep waits for d unless the context is cancelled or the supervisor is
// stopped. Returns false when interrupted.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	s.mu.Lock()
	stopCh := s.stopCh
	s.mu.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()

	if stopCh == nil {
		select {
		case <-timer.C:
			return true
		case <-ctx.Done():
			return false
		}
	}
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-stopCh:
		return false
	}
}
