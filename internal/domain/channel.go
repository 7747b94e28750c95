package domain

import "time"

// ChannelType classifies the scope of a realtime channel.
type ChannelType string

const (
	ChannelProject ChannelType = "project"
	ChannelTask    ChannelType = "task"
	ChannelTeam    ChannelType = "team"
	ChannelGeneral ChannelType = "general"
)

// ChannelKey builds the registry lookup key for a channel.
// At most one active subscription exists per key.
func ChannelKey(t ChannelType, id string) string {
	return string(t) + ":" + id
}

// ChannelDescriptor identifies a joined topic channel.
type ChannelDescriptor struct {
	Type           ChannelType `json:"type"`
	ID             string      `json:"id"`
	JoinedAt       time.Time   `json:"joinedAt"`
	LastActivityAt time.Time   `json:"lastActivityAt"`
}

// Key returns the composite lookup key (type:id).
func (d ChannelDescriptor) Key() string {
	return ChannelKey(d.Type, d.ID)
}
