package taskpool

import (
	"sync/atomic"
	"time"
)

// MetricsPolicy defines hooks used by the pool and the scheduler to report
// queueing and execution activity.
//
// Implementations must be safe for concurrent use.
// All methods are expected to be lightweight and non-blocking.
type MetricsPolicy interface {
	// IncSubmitted counts a task accepted by Submit.
	IncSubmitted()

	// IncRejected counts a submission refused with ErrQueueFull or ErrPoolClosed.
	IncRejected()

	// IncRetried counts a task handed back for another attempt.
	IncRetried()

	// IncOutcome counts a terminal outcome of the given kind.
	IncOutcome(kind OutcomeKind)

	// ObserveDuration records submission-to-outcome latency.
	ObserveDuration(d time.Duration)

	SetQueued(n int)
	SetInFlight(n int)

	// IncTickDropped counts a scheduler tick lost to a full queue.
	IncTickDropped()
}

// AtomicMetrics is a lock-free metrics implementation backed by atomics.
//
// Writes are optimized for hot paths.
// Reads are intended for cold-path observation.
type AtomicMetrics struct {
	submitted atomic.Uint64
	rejected  atomic.Uint64
	retried   atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	cancelled atomic.Uint64
	dropped   atomic.Uint64

	_ [56]byte // padding to avoid false sharing

	queued   atomic.Int64
	inFlight atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of AtomicMetrics.
type MetricsSnapshot struct {
	Submitted    uint64 `json:"submitted"`
	Rejected     uint64 `json:"rejected"`
	Retried      uint64 `json:"retried"`
	Succeeded    uint64 `json:"succeeded"`
	Failed       uint64 `json:"failed"`
	Cancelled    uint64 `json:"cancelled"`
	TicksDropped uint64 `json:"ticks_dropped"`
	Queued       int64  `json:"queued"`
	InFlight     int64  `json:"in_flight"`
}

func (m *AtomicMetrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Submitted:    m.submitted.Load(),
		Rejected:     m.rejected.Load(),
		Retried:      m.retried.Load(),
		Succeeded:    m.succeeded.Load(),
		Failed:       m.failed.Load(),
		Cancelled:    m.cancelled.Load(),
		TicksDropped: m.dropped.Load(),
		Queued:       m.queued.Load(),
		InFlight:     m.inFlight.Load(),
	}
}

func (m *AtomicMetrics) IncSubmitted() { m.submitted.Add(1) }
func (m *AtomicMetrics) IncRejected()  { m.rejected.Add(1) }
func (m *AtomicMetrics) IncRetried()   { m.retried.Add(1) }

func (m *AtomicMetrics) IncOutcome(kind OutcomeKind) {
	switch kind {
	case Success:
		m.succeeded.Add(1)
	case Failure:
		m.failed.Add(1)
	case Cancelled:
		m.cancelled.Add(1)
	}
}

func (m *AtomicMetrics) ObserveDuration(time.Duration) {}

func (m *AtomicMetrics) SetQueued(n int)   { m.queued.Store(int64(n)) }
func (m *AtomicMetrics) SetInFlight(n int) { m.inFlight.Store(int64(n)) }
func (m *AtomicMetrics) IncTickDropped()   { m.dropped.Add(1) }

//------------- NoopMetrics ----------------------------------

// NoopMetrics is a MetricsPolicy implementation that discards
// all metric updates.
type NoopMetrics struct{}

func (m *NoopMetrics) IncSubmitted()                 {}
func (m *NoopMetrics) IncRejected()                  {}
func (m *NoopMetrics) IncRetried()                   {}
func (m *NoopMetrics) IncOutcome(OutcomeKind)        {}
func (m *NoopMetrics) ObserveDuration(time.Duration) {}
func (m *NoopMetrics) SetQueued(int)                 {}
func (m *NoopMetrics) SetInFlight(int)               {}
func (m *NoopMetrics) IncTickDropped()               {}

//------------- MultiMetrics ---------------------------------

// MultiMetrics forwards every update to each of its policies in order.
type MultiMetrics []MetricsPolicy

func (m MultiMetrics) IncSubmitted() {
	for _, p := range m {
		p.IncSubmitted()
	}
}

func (m MultiMetrics) IncRejected() {
	for _, p := range m {
		p.IncRejected()
	}
}

func (m MultiMetrics) IncRetried() {
	for _, p := range m {
		p.IncRetried()
	}
}

func (m MultiMetrics) IncOutcome(kind OutcomeKind) {
	for _, p := range m {
		p.IncOutcome(kind)
	}
}

func (m MultiMetrics) ObserveDuration(d time.Duration) {
	for _, p := range m {
		p.ObserveDuration(d)
	}
}

func (m MultiMetrics) SetQueued(n int) {
	for _, p := range m {
		p.SetQueued(n)
	}
}

func (m MultiMetrics) SetInFlight(n int) {
	for _, p := range m {
		p.SetInFlight(n)
	}
}

func (m MultiMetrics) IncTickDropped() {
	for _, p := range m {
		p.IncTickDropped()
	}
}
