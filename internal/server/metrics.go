package server

import (
	"sync/atomic"
	"time"
)

// Metrics holds reactor counters. The reactor goroutine writes them;
// any goroutine may read a Snapshot.
type Metrics struct {
	ConnectionsAccepted atomic.Int64
	ActiveConnections   atomic.Int64
	RequestsTotal       atomic.Int64
	ResponsesWritten    atomic.Int64
	ParseErrors         atomic.Int64
	IOErrors            atomic.Int64
	Panics              atomic.Int64

	// accept to shutdown, summed over finished connections
	TotalLatencyNs atomic.Int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) ConnectionOpened() {
	m.ConnectionsAccepted.Add(1)
	m.ActiveConnections.Add(1)
}

func (m *Metrics) ConnectionClosed() {
	m.ActiveConnections.Add(-1)
}

// RecordRequest records a connection that reached Shutdown.
func (m *Metrics) RecordRequest(o Outcome, duration time.Duration) {
	m.RequestsTotal.Add(1)
	m.TotalLatencyNs.Add(duration.Nanoseconds())

	if o.Responded {
		m.ResponsesWritten.Add(1)
	}
	switch {
	case o.Panicked:
		m.Panics.Add(1)
	case o.IOError:
		m.IOErrors.Add(1)
	case o.ParseError:
		m.ParseErrors.Add(1)
	}
}

// Outcome summarizes how one connection ended.
type Outcome struct {
	Responded  bool
	ParseError bool
	IOError    bool
	Panicked   bool
}

// AverageLatency returns average connection lifetime
func (m *Metrics) AverageLatency() time.Duration {
	totalReqs := m.RequestsTotal.Load()
	if totalReqs == 0 {
		return 0
	}

	avgNs := m.TotalLatencyNs.Load() / totalReqs
	return time.Duration(avgNs)
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	ConnectionsAccepted int64
	ActiveConnections   int64
	RequestsTotal       int64
	ResponsesWritten    int64
	ParseErrors         int64
	IOErrors            int64
	Panics              int64
	AverageLatency      time.Duration
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		ConnectionsAccepted: m.ConnectionsAccepted.Load(),
		ActiveConnections:   m.ActiveConnections.Load(),
		RequestsTotal:       m.RequestsTotal.Load(),
		ResponsesWritten:    m.ResponsesWritten.Load(),
		ParseErrors:         m.ParseErrors.Load(),
		IOErrors:            m.IOErrors.Load(),
		Panics:              m.Panics.Load(),
		AverageLatency:      m.AverageLatency(),
	}
}
