// Package hooks runs user-configured actions on connection lifecycle events.
package hooks

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/taskwire/taskwire/internal/config"
	"github.com/taskwire/taskwire/internal/logging"
)

// Event names for the hook system.
const (
	EventConnectionEstablished = "connection_established"
	EventConnectionLost        = "connection_lost"
	EventConnectionRestored    = "connection_restored"
)

// Payload carries event data to hook handlers.
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler handles a hook event. Returning an error logs the failure but
// does not stop processing of the remaining handlers.
type Handler func(ctx context.Context, p Payload) error

// Manager manages hook registrations and dispatches events.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	log      *logging.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// Register adds a named handler for an event.
func (m *Manager) Register(event, name string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: h})
}

// LoadConfig registers command hooks from configuration.
func (m *Manager) LoadConfig(cfg config.HooksConfig) {
	for _, e := range cfg.ConnectionEstablished {
		m.Register(EventConnectionEstablished, e.Command, commandHandler(e))
	}
	for _, e := range cfg.ConnectionLost {
		m.Register(EventConnectionLost, e.Command, commandHandler(e))
	}
	for _, e := range cfg.ConnectionRestored {
		m.Register(EventConnectionRestored, e.Command, commandHandler(e))
	}
}

// Fire dispatches an event to all registered handlers. Handler errors
// are logged; they never propagate to the caller.
func (m *Manager) Fire(ctx context.Context, p Payload) {
	m.mu.RLock()
	handlers := append([]namedHandler(nil), m.handlers[p.Event]...)
	m.mu.RUnlock()

	for _, nh := range handlers {
		if err := nh.handler(ctx, p); err != nil {
			m.log.Warn().Err(err).Str("event", p.Event).Str("hook", nh.name).Msg("hook failed")
		}
	}
}

// commandHandler wraps a shell command hook entry.
func commandHandler(e config.HookEntry) Handler {
	return func(ctx context.Context, p Payload) error {
		if e.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(e.Timeout)*time.Millisecond)
			defer cancel()
		}
		cmd := exec.CommandContext(ctx, "sh", "-c", e.Command)
		cmd.Env = append(cmd.Environ(), "TASKWIRE_EVENT="+p.Event)
		return cmd.Run()
	}
}
