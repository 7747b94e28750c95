package realtime

import "encoding/json"

// Envelope kinds on the realtime wire. The backend delivers broadcast and
// presence events per topic; the client sends subscribe, unsubscribe, and
// broadcast envelopes.
const (
	KindBroadcast     = "broadcast"
	KindPresenceSync  = "presence-sync"
	KindPresenceJoin  = "presence-join"
	KindPresenceLeave = "presence-leave"
	KindSubscribe     = "subscribe"
	KindUnsubscribe   = "unsubscribe"
)

// Envelope is the wire format for all realtime traffic. The Kind field
// discriminates between message broadcasts and presence events.
type Envelope struct {
	Kind    string          `json:"kind"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Seq     int64           `json:"seq,omitempty"`
}

// NewEnvelope builds an envelope with a JSON-encoded payload.
func NewEnvelope(kind, topic string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: kind, Topic: topic, Payload: raw}, nil
}
