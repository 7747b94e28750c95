package realtime

import (
	"sync"

	"github.com/taskwire/taskwire/internal/logging"
)

// Subscription is a handle to a registered listener. Unsubscribe detaches
// the listener; it is safe to call more than once.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe removes the listener from its hub.
func (s *Subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

// hub fans a stream of values out to typed listeners. Listener panics are
// recovered and logged so a single bad listener cannot stall dispatch for
// the others.
type hub[T any] struct {
	mu   sync.RWMutex
	subs map[int]func(T)
	next int
	log  *logging.Logger
}

func newHub[T any](log *logging.Logger) *hub[T] {
	return &hub[T]{subs: make(map[int]func(T)), log: log}
}

func (h *hub[T]) subscribe(fn func(T)) *Subscription {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = fn
	h.mu.Unlock()

	return &Subscription{cancel: func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}}
}

func (h *hub[T]) publish(v T) {
	h.mu.RLock()
	fns := make([]func(T), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		h.safeCall(fn, v)
	}
}

func (h *hub[T]) safeCall(fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Any("panic", r).Msg("event listener panicked")
		}
	}()
	fn(v)
}
