package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectPolicy_FirstDelayIsBase(t *testing.T) {
	p := DefaultReconnectPolicy()
	assert.Equal(t, p.BaseDelay, p.Delay(1))
}

func TestReconnectPolicy_MonotonicAndBounded(t *testing.T) {
	p := ReconnectPolicy{
		BaseDelay:     500 * time.Millisecond,
		BackoffFactor: 2,
		MaxDelay:      10 * time.Second,
		MaxAttempts:   10,
	}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 20; attempt++ {
		d := p.Delay(attempt)
		assert.GreaterOrEqual(t, d, prev, "delay must be non-decreasing at attempt %d", attempt)
		assert.LessOrEqual(t, d, p.MaxDelay, "delay must be bounded at attempt %d", attempt)
		prev = d
	}
}

func TestReconnectPolicy_DelaySequence(t *testing.T) {
	p := ReconnectPolicy{
		BaseDelay:     time.Second,
		BackoffFactor: 2,
		MaxDelay:      30 * time.Second,
		MaxAttempts:   10,
	}

	assert.Equal(t, 1*time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 16*time.Second, p.Delay(5))
	assert.Equal(t, 30*time.Second, p.Delay(6)) // capped
	assert.Equal(t, 30*time.Second, p.Delay(12))
}

func TestReconnectPolicy_OverflowClampsToMax(t *testing.T) {
	p := DefaultReconnectPolicy()
	assert.Equal(t, p.MaxDelay, p.Delay(500))
}

func TestReconnectPolicy_Exhausted(t *testing.T) {
	p := ReconnectPolicy{MaxAttempts: 3}
	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))
	assert.True(t, p.Exhausted(4))
}
