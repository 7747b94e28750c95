package domain

import "time"

// MessageKind classifies channel traffic.
type MessageKind string

const (
	KindMessage      MessageKind = "message"
	KindNotification MessageKind = "notification"
	KindTyping       MessageKind = "typing"
	KindStatus       MessageKind = "status"
	KindUpdate       MessageKind = "update"
)

// Message is the unit of channel traffic. Delivery is fire-and-forget:
// best effort to currently-subscribed members, no acknowledgement and no
// ordering guarantee across channels or across a reconnect boundary.
type Message struct {
	ID         string         `json:"id"` // client-generated, collision-resistant
	ChannelKey string         `json:"channelKey"`
	Kind       MessageKind    `json:"kind"`
	SenderID   string         `json:"senderId"`
	SenderName string         `json:"senderName,omitempty"`
	Payload    string         `json:"payload"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}
