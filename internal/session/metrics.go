package session

import "sync/atomic"

// Metrics are process-wide counters for the HTTP /metrics endpoint.
type Metrics struct {
	sessions       atomic.Int64
	active         atomic.Int64
	ticks          atomic.Int64
	protocolErrors atomic.Int64
	simErrors      atomic.Int64
	connErrors     atomic.Int64
	lastTick       atomic.Int64
	lastStepMicros atomic.Int64
}

type MetricsSnapshot struct {
	Sessions       int64
	ActiveSessions int64
	Ticks          int64
	ProtocolErrors int64
	SimErrors      int64
	ConnErrors     int64
	LastTick       int64
	LastStepMS     float64
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Sessions:       m.sessions.Load(),
		ActiveSessions: m.active.Load(),
		Ticks:          m.ticks.Load(),
		ProtocolErrors: m.protocolErrors.Load(),
		SimErrors:      m.simErrors.Load(),
		ConnErrors:     m.connErrors.Load(),
		LastTick:       m.lastTick.Load(),
		LastStepMS:     float64(m.lastStepMicros.Load()) / 1000,
	}
}
