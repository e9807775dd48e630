package taskpool

import (
	"runtime"
)

const (
	// DefaultQueueSize is the queue bound used when Options.QueueSize is zero.
	DefaultQueueSize = 1024
)

// State is the lifecycle stage of a Pool.
type State uint8

const (
	Created State = iota
	Running
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ShutdownMode selects what happens to outstanding work on Shutdown.
type ShutdownMode uint8

const (
	// Drain lets queued, in-flight and pending-retry tasks reach a
	// terminal outcome before stopping.
	Drain ShutdownMode = iota

	// Cancel resolves queued and pending-retry tasks as Cancelled and
	// signals in-flight handlers through their context.
	Cancel
)

func (m ShutdownMode) String() string {
	switch m {
	case Drain:
		return "drain"
	case Cancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Options configure a Pool.
//
// All zero values are replaced with defaults in FillDefaults.
type Options[R any] struct {
	// Workers is the pool capacity: the number of worker goroutines and the
	// upper bound on tasks executing at once.
	Workers int

	// QueueSize bounds the number of queued submissions.
	QueueSize int

	Retry RetryPolicy

	// BlockingSubmit makes Submit wait for queue space instead of
	// failing with ErrQueueFull.
	BlockingSubmit bool

	Metrics MetricsPolicy

	// OnOutcome is called once per task, in completion order, from the
	// goroutine that resolved it. It must not call Shutdown.
	OnOutcome func(Result[R])

	// OnInternalError receives non-fatal engine faults.
	OnInternalError func(error)

	// PinWorkers locks each worker to an OS thread pinned to one CPU.
	// Only effective on Linux.
	PinWorkers bool
}

func (o *Options[R]) FillDefaults() {
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.Metrics == nil {
		o.Metrics = &NoopMetrics{}
	}
	o.Retry.fillDefaults()
}
