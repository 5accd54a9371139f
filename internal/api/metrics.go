package api

import (
	"sync/atomic"
	"time"
)

// Metrics collects in-memory server metrics using atomic counters.
type Metrics struct {
	startTime     time.Time
	requests      atomic.Int64
	serverErrors  atomic.Int64
	clientErrors  atomic.Int64
	inserts       atomic.Int64
	replays       atomic.Int64
	updates       atomic.Int64
	deletes       atomic.Int64
	changesSent   atomic.Int64
	subscribers   atomic.Int64
	changeDropped atomic.Int64
}

// MetricsSnapshot is a point-in-time view of server metrics.
type MetricsSnapshot struct {
	UptimeSeconds     float64 `json:"uptime_seconds"`
	Requests          int64   `json:"requests"`
	ServerErrors      int64   `json:"server_errors"`
	ClientErrors      int64   `json:"client_errors"`
	RowsInserted      int64   `json:"rows_inserted"`
	InsertReplays     int64   `json:"insert_replays"`
	RowsUpdated       int64   `json:"rows_updated"`
	RowsDeleted       int64   `json:"rows_deleted"`
	ChangesSent       int64   `json:"changes_sent"`
	ChangesDropped    int64   `json:"changes_dropped"`
	ActiveSubscribers int64   `json:"active_subscribers"`
}

// NewMetrics creates a new Metrics instance with the current time as start.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordRequest increments the total request counter.
func (m *Metrics) RecordRequest() {
	m.requests.Add(1)
}

// RecordError increments the server error (5xx) counter.
func (m *Metrics) RecordError() {
	m.serverErrors.Add(1)
}

// RecordClientError increments the client error (4xx) counter.
func (m *Metrics) RecordClientError() {
	m.clientErrors.Add(1)
}

// RecordInsert counts an insert; created is false for a client_id replay.
func (m *Metrics) RecordInsert(created bool) {
	if created {
		m.inserts.Add(1)
		return
	}
	m.replays.Add(1)
}

func (m *Metrics) RecordUpdate() { m.updates.Add(1) }

func (m *Metrics) RecordDelete() { m.deletes.Add(1) }

// RecordChangeSent counts one change delivered to one subscriber.
func (m *Metrics) RecordChangeSent() { m.changesSent.Add(1) }

// RecordChangeDropped counts a change not delivered to a slow subscriber.
func (m *Metrics) RecordChangeDropped() { m.changeDropped.Add(1) }

// SubscriberDelta adjusts the live subscriber gauge.
func (m *Metrics) SubscriberDelta(n int64) { m.subscribers.Add(n) }

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		UptimeSeconds:     time.Since(m.startTime).Seconds(),
		Requests:          m.requests.Load(),
		ServerErrors:      m.serverErrors.Load(),
		ClientErrors:      m.clientErrors.Load(),
		RowsInserted:      m.inserts.Load(),
		InsertReplays:     m.replays.Load(),
		RowsUpdated:       m.updates.Load(),
		RowsDeleted:       m.deletes.Load(),
		ChangesSent:       m.changesSent.Load(),
		ChangesDropped:    m.changeDropped.Load(),
		ActiveSubscribers: m.subscribers.Load(),
	}
}
