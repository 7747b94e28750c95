package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskwire/taskwire/internal/domain"
	"github.com/taskwire/taskwire/internal/logging"
)

// PresenceChange describes a presence update observed on a channel.
type PresenceChange struct {
	ChannelKey   string
	Participants []domain.PresenceRecord
}

// TypingEvent is a forwarded typing indicator. Never persisted.
type TypingEvent struct {
	ChannelKey string
	UserID     string
	IsTyping   bool
}

// typingPayload is the wire shape of a typing broadcast.
type typingPayload struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// channelState is one live subscription plus its reconstructed presence
// snapshot. Only the registry mutates it.
type channelState struct {
	desc         domain.ChannelDescriptor
	participants map[string]domain.PresenceRecord
}

// Registry maps application-level channel requests onto live topic
// subscriptions over the single physical connection, and tracks presence
// and activity per channel. It is the only component that mutates the
// channel map.
type Registry struct {
	transport Transport
	log       *logging.Logger

	mu       sync.RWMutex
	channels map[string]*channelState
	self     domain.PresenceRecord

	msgHub      *hub[domain.Message]
	presenceHub *hub[PresenceChange]
	typingHub   *hub[TypingEvent]
}

// NewRegistry creates a channel registry over the given transport and
// installs itself as the transport's single inbound dispatcher.
func NewRegistry(transport Transport, log *logging.Logger) *Registry {
	l := log.Sub("channels")
	r := &Registry{
		transport:   transport,
		log:         l,
		channels:    make(map[string]*channelState),
		msgHub:      newHub[domain.Message](l),
		presenceHub: newHub[PresenceChange](l),
		typingHub:   newHub[TypingEvent](l),
	}
	transport.OnEnvelope(r.dispatch)
	return r
}

// SetIdentity sets the local participant announced on joins.
func (r *Registry) SetIdentity(self domain.PresenceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.self = self
}

// OnMessage registers a listener for channel messages.
func (r *Registry) OnMessage(fn func(domain.Message)) *Subscription {
	return r.msgHub.subscribe(fn)
}

// OnPresence registers a listener for presence changes.
func (r *Registry) OnPresence(fn func(PresenceChange)) *Subscription {
	return r.presenceHub.subscribe(fn)
}

// OnTyping registers a listener for typing indicators.
func (r *Registry) OnTyping(fn func(TypingEvent)) *Subscription {
	return r.typingHub.subscribe(fn)
}

// Join subscribes to the channel identified by (type, id) and announces
// local presence. Joining an already-joined channel returns the existing
// descriptor without resubscribing or re-announcing.
func (r *Registry) Join(ctx context.Context, t domain.ChannelType, id string) (domain.ChannelDescriptor, error) {
	key := domain.ChannelKey(t, id)

	r.mu.Lock()
	if cs, ok := r.channels[key]; ok {
		desc := cs.desc
		r.mu.Unlock()
		return desc, nil
	}
	self := r.self
	r.mu.Unlock()

	if err := r.transport.Subscribe(ctx, key); err != nil {
		return domain.ChannelDescriptor{}, fmt.Errorf("joining %s: %w", key, err)
	}

	now := time.Now()
	cs := &channelState{
		desc: domain.ChannelDescriptor{
			Type:           t,
			ID:             id,
			JoinedAt:       now,
			LastActivityAt: now,
		},
		participants: make(map[string]domain.PresenceRecord),
	}

	r.mu.Lock()
	r.channels[key] = cs
	desc := cs.desc
	r.mu.Unlock()

	r.log.Info().Str("channel", key).Msg("channel joined")
	r.announcePresence(ctx, key, self)
	return desc, nil
}

// Leave broadcasts a "left" notification, unsubscribes, and removes the
// descriptor. Leaving a non-joined channel is a no-op, not an error.
func (r *Registry) Leave(ctx context.Context, t domain.ChannelType, id string) {
	key := domain.ChannelKey(t, id)

	r.mu.Lock()
	_, ok := r.channels[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.channels, key)
	self := r.self
	r.mu.Unlock()

	env, err := NewEnvelope(KindPresenceLeave, key, self)
	if err == nil {
		if err := r.transport.Publish(ctx, env); err != nil {
			r.log.Debug().Err(err).Str("channel", key).Msg("leave notification not delivered")
		}
	}
	if err := r.transport.Unsubscribe(ctx, key); err != nil {
		r.log.Debug().Err(err).Str("channel", key).Msg("unsubscribe not delivered")
	}
	r.log.Info().Str("channel", key).Msg("channel left")
}

// Send broadcasts a message to a joined channel. Returns
// ErrChannelNotFound when the channel has no active descriptor, and
// ErrNotConnected when the physical connection is down; sends while
// disconnected fail explicitly rather than queueing.
func (r *Registry) Send(ctx context.Context, t domain.ChannelType, id, content string, kind domain.MessageKind, metadata map[string]any) error {
	key := domain.ChannelKey(t, id)

	r.mu.RLock()
	_, ok := r.channels[key]
	self := r.self
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, key)
	}

	msg := domain.Message{
		ID:         uuid.New().String(),
		ChannelKey: key,
		Kind:       kind,
		SenderID:   self.UserID,
		SenderName: self.DisplayName,
		Payload:    content,
		Metadata:   metadata,
		Timestamp:  time.Now(),
	}

	env, err := NewEnvelope(KindBroadcast, key, msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	if err := r.transport.Publish(ctx, env); err != nil {
		return fmt.Errorf("sending to %s: %w", key, err)
	}
	return nil
}

// SendTyping broadcasts an ephemeral typing indicator. Failures are
// logged, never returned; typing indicators are best-effort UX signals.
func (r *Registry) SendTyping(ctx context.Context, t domain.ChannelType, id string, isTyping bool) {
	key := domain.ChannelKey(t, id)

	r.mu.RLock()
	_, ok := r.channels[key]
	self := r.self
	r.mu.RUnlock()
	if !ok {
		return
	}

	msg := domain.Message{
		ID:         uuid.New().String(),
		ChannelKey: key,
		Kind:       domain.KindTyping,
		SenderID:   self.UserID,
		SenderName: self.DisplayName,
		Timestamp:  time.Now(),
	}
	raw, err := json.Marshal(typingPayload{UserID: self.UserID, IsTyping: isTyping})
	if err == nil {
		msg.Payload = string(raw)
	}

	env, err := NewEnvelope(KindBroadcast, key, msg)
	if err != nil {
		r.log.Debug().Err(err).Str("channel", key).Msg("typing indicator not encoded")
		return
	}
	if err := r.transport.Publish(ctx, env); err != nil {
		r.log.Debug().Err(err).Str("channel", key).Msg("typing indicator not delivered")
	}
}

// Participants returns the current reconstructed presence snapshot for a
// channel, sorted by user ID. The snapshot is eventually consistent; a
// call immediately after a join may be empty until the next sync event.
// Returns an empty slice for a channel that is not joined.
func (r *Registry) Participants(t domain.ChannelType, id string) []domain.PresenceRecord {
	key := domain.ChannelKey(t, id)

	r.mu.RLock()
	defer r.mu.RUnlock()
	cs, ok := r.channels[key]
	if !ok {
		return []domain.PresenceRecord{}
	}
	out := make([]domain.PresenceRecord, 0, len(cs.participants))
	for _, p := range cs.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Descriptors returns the descriptors of all joined channels, optionally
// filtered by type. A nil filter returns everything.
func (r *Registry) Descriptors(filter *domain.ChannelType) []domain.ChannelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ChannelDescriptor, 0, len(r.channels))
	for _, cs := range r.channels {
		if filter != nil && cs.desc.Type != *filter {
			continue
		}
		out = append(out, cs.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// ReplayAfterReconnect re-issues the subscription and presence
// announcement for every channel that was joined before the connection
// was lost. Keys are preserved; JoinedAt is reset, presence snapshots are
// cleared until the backend re-syncs them.
func (r *Registry) ReplayAfterReconnect(ctx context.Context) {
	r.mu.Lock()
	keys := make([]string, 0, len(r.channels))
	for key, cs := range r.channels {
		keys = append(keys, key)
		cs.desc.JoinedAt = time.Now()
		cs.participants = make(map[string]domain.PresenceRecord)
	}
	self := r.self
	r.mu.Unlock()

	sort.Strings(keys)
	for _, key := range keys {
		if err := r.transport.Subscribe(ctx, key); err != nil {
			r.log.Warn().Err(err).Str("channel", key).Msg("channel replay failed")
			continue
		}
		r.announcePresence(ctx, key, self)
		r.log.Info().Str("channel", key).Msg("channel replayed")
	}
}

// announcePresence broadcasts the local presence record on a channel.
// Failures are swallowed and logged; presence announcements are
// best-effort.
func (r *Registry) announcePresence(ctx context.Context, key string, self domain.PresenceRecord) {
	if self.UserID == "" {
		return
	}
	self.JoinedAt = time.Now()
	if self.Status == "" {
		self.Status = domain.PresenceOnline
	}
	env, err := NewEnvelope(KindPresenceJoin, key, self)
	if err != nil {
		r.log.Debug().Err(err).Str("channel", key).Msg("presence announce not encoded")
		return
	}
	if err := r.transport.Publish(ctx, env); err != nil {
		r.log.Debug().Err(err).Str("channel", key).Msg("presence announce not delivered")
	}
}

// dispatch is the single inbound handler for the physical connection,
// fanning envelopes out by kind. Listener panics are contained by the
// hubs, so one bad consumer cannot stall dispatch.
func (r *Registry) dispatch(env Envelope) {
	switch env.Kind {
	case KindBroadcast:
		r.handleBroadcast(env)
	case KindPresenceSync:
		r.handlePresenceSync(env)
	case KindPresenceJoin:
		r.handlePresenceJoin(env)
	case KindPresenceLeave:
		r.handlePresenceLeave(env)
	default:
		r.log.Debug().Str("kind", env.Kind).Msg("ignoring unknown envelope kind")
	}
}

func (r *Registry) handleBroadcast(env Envelope) {
	var msg domain.Message
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		r.log.Warn().Err(err).Str("topic", env.Topic).Msg("dropping malformed message")
		return
	}
	if msg.ChannelKey == "" {
		msg.ChannelKey = env.Topic
	}

	// Typing indicators are forwarded without touching activity state.
	if msg.Kind == domain.KindTyping {
		var tp typingPayload
		if err := json.Unmarshal([]byte(msg.Payload), &tp); err != nil {
			tp.UserID = msg.SenderID
		}
		r.typingHub.publish(TypingEvent{ChannelKey: msg.ChannelKey, UserID: tp.UserID, IsTyping: tp.IsTyping})
		return
	}

	r.mu.Lock()
	if cs, ok := r.channels[msg.ChannelKey]; ok {
		cs.desc.LastActivityAt = time.Now()
	}
	r.mu.Unlock()

	r.msgHub.publish(msg)
}

// handlePresenceSync replaces the entire participant set for a channel;
// the sync event is the authoritative snapshot.
func (r *Registry) handlePresenceSync(env Envelope) {
	var records []domain.PresenceRecord
	if err := json.Unmarshal(env.Payload, &records); err != nil {
		r.log.Warn().Err(err).Str("topic", env.Topic).Msg("dropping malformed presence sync")
		return
	}

	r.mu.Lock()
	cs, ok := r.channels[env.Topic]
	if !ok {
		r.mu.Unlock()
		return
	}
	cs.participants = make(map[string]domain.PresenceRecord, len(records))
	for _, rec := range records {
		cs.participants[rec.UserID] = rec
	}
	r.mu.Unlock()

	r.publishPresence(env.Topic)
}

// handlePresenceJoin applies an incremental join patch.
func (r *Registry) handlePresenceJoin(env Envelope) {
	var rec domain.PresenceRecord
	if err := json.Unmarshal(env.Payload, &rec); err != nil || rec.UserID == "" {
		r.log.Warn().Str("topic", env.Topic).Msg("dropping malformed presence join")
		return
	}

	r.mu.Lock()
	cs, ok := r.channels[env.Topic]
	if !ok {
		r.mu.Unlock()
		return
	}
	cs.participants[rec.UserID] = rec
	r.mu.Unlock()

	r.publishPresence(env.Topic)
}

// handlePresenceLeave applies an incremental leave patch.
func (r *Registry) handlePresenceLeave(env Envelope) {
	var rec domain.PresenceRecord
	if err := json.Unmarshal(env.Payload, &rec); err != nil || rec.UserID == "" {
		r.log.Warn().Str("topic", env.Topic).Msg("dropping malformed presence leave")
		return
	}

	r.mu.Lock()
	cs, ok := r.channels[env.Topic]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(cs.participants, rec.UserID)
	r.mu.Unlock()

	r.publishPresence(env.Topic)
}

func (r *Registry) publishPresence(key string) {
	r.mu.RLock()
	cs, ok := r.channels[key]
	var snapshot []domain.PresenceRecord
	if ok {
		snapshot = make([]domain.PresenceRecord, 0, len(cs.participants))
		for _, p := range cs.participants {
			snapshot = append(snapshot, p)
		}
	}
	r.mu.RUnlock()
	if !ok {
		return
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].UserID < snapshot[j].UserID })
	r.presenceHub.publish(PresenceChange{ChannelKey: key, Participants: snapshot})
}

// Count returns the number of joined channels.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
