package realtime

import (
	"context"
	"sync"

	"github.com/taskwire/taskwire/internal/domain"
	"github.com/taskwire/taskwire/internal/hooks"
	"github.com/taskwire/taskwire/internal/logging"
)

// messageBufferCap bounds the client's recent-message buffer.
const messageBufferCap = 200

// Client is the facade handed to the rest of the application. It wires
// the supervisor, channel registry, and monitor together and exposes the
// status surface UI-adjacent code reads. All state it reports derives
// from the supervisor's authoritative ConnectionState and the registry's
// channel map; the client never runs its own health checks.
type Client struct {
	sup   *Supervisor
	reg   *Registry
	mon   *Monitor
	hooks *hooks.Manager
	log   *logging.Logger

	mu       sync.RWMutex
	messages []domain.Message

	msgSub   *Subscription
	phaseSub *Subscription
}

// NewClient assembles the facade. The caller (the composition root)
// constructs exactly one supervisor/registry/monitor trio per process
// and hands them in; hooks may be nil.
func NewClient(sup *Supervisor, reg *Registry, mon *Monitor, hk *hooks.Manager, log *logging.Logger) *Client {
	c := &Client{
		sup:   sup,
		reg:   reg,
		mon:   mon,
		hooks: hk,
		log:   log.Sub("client"),
	}

	sup.SetReplay(reg.ReplayAfterReconnect)
	c.msgSub = reg.OnMessage(c.bufferMessage)
	c.phaseSub = sup.OnPhaseChange(c.firePhaseHooks)
	return c
}

// Connect announces the local user and establishes the connection.
func (c *Client) Connect(ctx context.Context, user domain.PresenceRecord) error {
	c.reg.SetIdentity(user)
	if err := c.sup.Start(ctx); err != nil {
		return err
	}
	c.fireHook(ctx, hooks.EventConnectionEstablished)
	return nil
}

// Disconnect tears everything down: supervisor timers, the physical
// connection, and the monitor's ticker.
func (c *Client) Disconnect() {
	c.sup.Stop()
	c.mon.Close()
	c.msgSub.Unsubscribe()
	c.phaseSub.Unsubscribe()
}

// Monitor returns the consumer-facing connection monitor.
func (c *Client) Monitor() *Monitor {
	return c.mon
}

// JoinProjectChannel joins the channel scoped to a project.
func (c *Client) JoinProjectChannel(ctx context.Context, projectID string) (domain.ChannelDescriptor, error) {
	return c.reg.Join(ctx, domain.ChannelProject, projectID)
}

// JoinTaskChannel joins the channel scoped to a task.
func (c *Client) JoinTaskChannel(ctx context.Context, taskID string) (domain.ChannelDescriptor, error) {
	return c.reg.Join(ctx, domain.ChannelTask, taskID)
}

// JoinTeamChannel joins the channel scoped to a team.
func (c *Client) JoinTeamChannel(ctx context.Context, teamID string) (domain.ChannelDescriptor, error) {
	return c.reg.Join(ctx, domain.ChannelTeam, teamID)
}

// JoinGeneralChannel joins a general-purpose channel.
func (c *Client) JoinGeneralChannel(ctx context.Context, name string) (domain.ChannelDescriptor, error) {
	return c.reg.Join(ctx, domain.ChannelGeneral, name)
}

// LeaveProjectChannel leaves a project channel. No-op when not joined.
func (c *Client) LeaveProjectChannel(ctx context.Context, projectID string) {
	c.reg.Leave(ctx, domain.ChannelProject, projectID)
}

// LeaveTaskChannel leaves a task channel. No-op when not joined.
func (c *Client) LeaveTaskChannel(ctx context.Context, taskID string) {
	c.reg.Leave(ctx, domain.ChannelTask, taskID)
}

// LeaveTeamChannel leaves a team channel. No-op when not joined.
func (c *Client) LeaveTeamChannel(ctx context.Context, teamID string) {
	c.reg.Leave(ctx, domain.ChannelTeam, teamID)
}

// LeaveGeneralChannel leaves a general channel. No-op when not joined.
func (c *Client) LeaveGeneralChannel(ctx context.Context, name string) {
	c.reg.Leave(ctx, domain.ChannelGeneral, name)
}

// SendProjectMessage broadcasts a message on a project channel.
func (c *Client) SendProjectMessage(ctx context.Context, projectID, content string, kind domain.MessageKind, metadata map[string]any) error {
	return c.reg.Send(ctx, domain.ChannelProject, projectID, content, kind, metadata)
}

// SendTaskMessage broadcasts a message on a task channel.
func (c *Client) SendTaskMessage(ctx context.Context, taskID, content string, kind domain.MessageKind, metadata map[string]any) error {
	return c.reg.Send(ctx, domain.ChannelTask, taskID, content, kind, metadata)
}

// SendTeamMessage broadcasts a message on a team channel.
func (c *Client) SendTeamMessage(ctx context.Context, teamID, content string, kind domain.MessageKind, metadata map[string]any) error {
	return c.reg.Send(ctx, domain.ChannelTeam, teamID, content, kind, metadata)
}

// SendTypingIndicator broadcasts an ephemeral typing signal. Best
// effort; failures are logged, never returned.
func (c *Client) SendTypingIndicator(ctx context.Context, t domain.ChannelType, id string, isTyping bool) {
	c.reg.SendTyping(ctx, t, id, isTyping)
}

// GetParticipants returns the reconstructed presence snapshot for a
// channel. Eventually consistent.
func (c *Client) GetParticipants(t domain.ChannelType, id string) []domain.PresenceRecord {
	return c.reg.Participants(t, id)
}

// IsConnected reports whether the connection phase is connected.
func (c *Client) IsConnected() bool {
	return c.sup.State().Phase == domain.PhaseConnected
}

// IsConnecting reports whether a connection or reconnection is in flight.
func (c *Client) IsConnecting() bool {
	phase := c.sup.State().Phase
	return phase == domain.PhaseConnecting || phase == domain.PhaseReconnecting
}

// Err returns the last connection error message, empty while healthy.
func (c *Client) Err() string {
	return c.sup.State().LastError
}

// Messages returns the recent channel messages, oldest first.
func (c *Client) Messages() []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// ActiveUsers returns the union of participants across all joined
// channels, deduplicated by user ID.
func (c *Client) ActiveUsers() []domain.PresenceRecord {
	seen := make(map[string]domain.PresenceRecord)
	for _, desc := range c.reg.Descriptors(nil) {
		for _, p := range c.reg.Participants(desc.Type, desc.ID) {
			if _, ok := seen[p.UserID]; !ok {
				seen[p.UserID] = p
			}
		}
	}
	out := make([]domain.PresenceRecord, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	return out
}

// ActiveProjectChannels returns the descriptors of joined project channels.
func (c *Client) ActiveProjectChannels() []domain.ChannelDescriptor {
	t := domain.ChannelProject
	return c.reg.Descriptors(&t)
}

// ActiveTaskChannels returns the descriptors of joined task channels.
func (c *Client) ActiveTaskChannels() []domain.ChannelDescriptor {
	t := domain.ChannelTask
	return c.reg.Descriptors(&t)
}

// bufferMessage appends to the bounded recent-message buffer.
func (c *Client) bufferMessage(msg domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	if len(c.messages) > messageBufferCap {
		c.messages = c.messages[len(c.messages)-messageBufferCap:]
	}
}

// firePhaseHooks maps phase transitions onto lifecycle hook events.
func (c *Client) firePhaseHooks(pc PhaseChange) {
	switch {
	case pc.New == domain.PhaseReconnecting:
		c.fireHook(context.Background(), hooks.EventConnectionLost)
	case pc.Old == domain.PhaseReconnecting && pc.New == domain.PhaseConnected:
		c.fireHook(context.Background(), hooks.EventConnectionRestored)
	}
}

func (c *Client) fireHook(ctx context.Context, event string) {
	if c.hooks == nil {
		return
	}
	c.hooks.Fire(ctx, hooks.Payload{Event: event, Data: map[string]any{
		"phase": string(c.sup.State().Phase),
	}})
}
