package domain

import "time"

// PresenceStatus is the announced availability of a participant.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceBusy    PresenceStatus = "busy"
	PresenceOffline PresenceStatus = "offline"
)

// PresenceRecord is one participant observed in a channel. Presence lists
// are reconstructed from backend sync events and are eventually consistent;
// they must never be treated as a strict membership oracle.
type PresenceRecord struct {
	UserID      string         `json:"userId"`
	DisplayName string         `json:"displayName,omitempty"`
	Status      PresenceStatus `json:"status"`
	JoinedAt    time.Time      `json:"joinedAt"`
}
