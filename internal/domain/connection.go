package domain

import "time"

// Phase is the supervisor's view of the physical connection.
type Phase string

const (
	PhaseDisconnected Phase = "disconnected"
	PhaseConnecting   Phase = "connecting"
	PhaseConnected    Phase = "connected"
	PhaseDegraded     Phase = "degraded"
	PhaseReconnecting Phase = "reconnecting"
)

// ConnectionState is the single source of truth for connection health.
// All consumer-facing views (monitor, client facade, CLI status) derive
// from it rather than running their own checks.
type ConnectionState struct {
	Phase             Phase     `json:"phase"`
	LastError         string    `json:"lastError,omitempty"`
	LastCheckedAt     time.Time `json:"lastCheckedAt"`
	ReconnectAttempts int       `json:"reconnectAttempts"`
	ResponseTimeMs    int64     `json:"responseTimeMs"`
}

// Healthy reports whether the connection is currently usable.
func (s ConnectionState) Healthy() bool {
	return s.Phase == PhaseConnected
}
