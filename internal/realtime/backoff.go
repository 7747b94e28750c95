package realtime

import (
	"math"
	"time"
)

// ReconnectPolicy is the pure backoff configuration for the reconnect
// loop. It is fixed at construction; delay and ceiling are derived from
// the attempt number deterministically.
type ReconnectPolicy struct {
	BaseDelay     time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration
	MaxAttempts   int
}

// DefaultReconnectPolicy matches the supervisor defaults: 1s base, factor
// 2, 30s cap, 10 attempts.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay:     time.Second,
		BackoffFactor: 2,
		MaxDelay:      30 * time.Second,
		MaxAttempts:   10,
	}
}

// Delay computes the wait inserted after the given failed attempt
// (1-based): min(base * factor^(attempt-1), max). Delay(1) equals the
// base delay; the sequence is non-decreasing and bounded by MaxDelay.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(attempt-1))
	if d > float64(p.MaxDelay) || d < 0 {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Exhausted reports whether the given attempt count has reached the
// configured ceiling.
func (p ReconnectPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}
