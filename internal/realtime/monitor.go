package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/taskwire/taskwire/internal/domain"
	"github.com/taskwire/taskwire/internal/logging"
)

// MetricsSnapshot is the monitor's aggregate view of connection health.
type MetricsSnapshot struct {
	TotalDisconnections   int64   `json:"totalDisconnections"`
	TotalReconnections    int64   `json:"totalReconnections"`
	AverageResponseTimeMs float64 `json:"averageResponseTimeMs"`
	UptimeSeconds         int64   `json:"uptimeSeconds"`
}

// Monitor is the consumer-facing view of the supervisor. It exposes
// connection state and aggregate metrics without letting any consumer
// drive reconnect logic concurrently with the supervisor's own loop.
type Monitor struct {
	sup *Supervisor
	log *logging.Logger

	mu             sync.Mutex
	disconnections int64
	reconnections  int64
	probeSamples   int64
	probeTotalMs   int64
	uptimeSeconds  int64

	phaseSub *Subscription
	stopOnce sync.Once
	stopCh   chan struct{}

	promReg            *prometheus.Registry
	promDisconnections prometheus.Gauge
	promReconnections  prometheus.Gauge
	promAvgResponse    prometheus.Gauge
	promUptime         prometheus.Gauge
	promConnected      prometheus.Gauge
}

// NewMonitor creates a monitor observing the given supervisor and starts
// the once-per-second uptime ticker. Close must be called to release the
// ticker and the phase subscription.
func NewMonitor(sup *Supervisor, log *logging.Logger) *Monitor {
	m := &Monitor{
		sup:    sup,
		log:    log.Sub("monitor"),
		stopCh: make(chan struct{}),
	}
	m.initMetrics()
	m.phaseSub = sup.OnPhaseChange(m.observePhase)
	go m.uptimeLoop()
	return m
}

func (m *Monitor) initMetrics() {
	m.promReg = prometheus.NewRegistry()
	m.promDisconnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "taskwire_disconnections_total",
		Help: "Times the connection entered the reconnect loop.",
	})
	m.promReconnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "taskwire_reconnections_total",
		Help: "Times the reconnect loop restored the connection.",
	})
	m.promAvgResponse = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "taskwire_probe_response_avg_ms",
		Help: "Rolling average health probe latency in milliseconds.",
	})
	m.promUptime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "taskwire_uptime_seconds_total",
		Help: "Seconds spent in the connected phase.",
	})
	m.promConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "taskwire_connected",
		Help: "1 while the connection phase is connected.",
	})
	m.promReg.MustRegister(
		m.promDisconnections, m.promReconnections,
		m.promAvgResponse, m.promUptime, m.promConnected,
	)
}

// Gatherer exposes the monitor's metric registry for scraping.
func (m *Monitor) Gatherer() prometheus.Gatherer {
	return m.promReg
}

// State returns the supervisor's authoritative connection state.
func (m *Monitor) State() domain.ConnectionState {
	return m.sup.State()
}

// CheckHealth runs one probe via the supervisor and records the latency
// sample. It never enters the reconnect loop.
func (m *Monitor) CheckHealth(ctx context.Context) bool {
	ok := m.sup.CheckHealth(ctx)
	if ok {
		m.recordSample(m.sup.State().ResponseTimeMs)
	}
	return ok
}

// ForceReconnect requests the supervisor's reconnect loop and reports
// whether the resulting state is connected. If a loop is already in
// flight this call waits on it rather than starting a second one.
func (m *Monitor) ForceReconnect(ctx context.Context) bool {
	m.log.Info().Msg("forced reconnect requested")
	return m.sup.Reconnect(ctx)
}

// Snapshot returns the current aggregate metrics.
func (m *Monitor) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	var avg float64
	if m.probeSamples > 0 {
		avg = float64(m.probeTotalMs) / float64(m.probeSamples)
	}
	return MetricsSnapshot{
		TotalDisconnections:   m.disconnections,
		TotalReconnections:    m.reconnections,
		AverageResponseTimeMs: avg,
		UptimeSeconds:         m.uptimeSeconds,
	}
}

// ResetMetrics zeroes all counters without touching connection phase.
func (m *Monitor) ResetMetrics() {
	m.mu.Lock()
	m.disconnections = 0
	m.reconnections = 0
	m.probeSamples = 0
	m.probeTotalMs = 0
	m.uptimeSeconds = 0
	m.mu.Unlock()

	m.promDisconnections.Set(0)
	m.promReconnections.Set(0)
	m.promAvgResponse.Set(0)
	m.promUptime.Set(0)
}

// Close stops the uptime ticker and detaches from the supervisor.
func (m *Monitor) Close() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.phaseSub.Unsubscribe()
	})
}

// observePhase derives the monotonic counters from the supervisor's
// phase transitions: entering Reconnecting is a disconnection, leaving
// it for Connected is a reconnection.
func (m *Monitor) observePhase(pc PhaseChange) {
	switch {
	case pc.New == domain.PhaseReconnecting:
		m.mu.Lock()
		m.disconnections++
		v := m.disconnections
		m.mu.Unlock()
		m.promDisconnections.Set(float64(v))
	case pc.Old == domain.PhaseReconnecting && pc.New == domain.PhaseConnected:
		m.mu.Lock()
		m.reconnections++
		v := m.reconnections
		m.mu.Unlock()
		m.promReconnections.Set(float64(v))
		m.recordSample(pc.State.ResponseTimeMs)
	}

	if pc.New == domain.PhaseConnected {
		m.promConnected.Set(1)
	} else {
		m.promConnected.Set(0)
	}
}

func (m *Monitor) recordSample(ms int64) {
	if ms < 0 {
		return
	}
	m.mu.Lock()
	m.probeSamples++
	m.probeTotalMs += ms
	avg := float64(m.probeTotalMs) / float64(m.probeSamples)
	m.mu.Unlock()
	m.promAvgResponse.Set(avg)
}

// uptimeLoop increments the uptime counter once per second while the
// phase is connected. The ticker is released on Close so no periodic
// work leaks past teardown.
func (m *Monitor) uptimeLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if m.sup.State().Phase == domain.PhaseConnected {
				m.mu.Lock()
				m.uptimeSeconds++
				v := m.uptimeSeconds
				m.mu.Unlock()
				m.promUptime.Set(float64(v))
			}
		}
	}
}
