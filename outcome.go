package taskpool

import (
	"context"
	"sync/atomic"
	"time"
)

// OutcomeKind tags the terminal result of a task.
type OutcomeKind uint8

const (
	Success OutcomeKind = iota + 1
	Failure
	Cancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of a submitted task.
//
// Value is set for Success. Err is a *HandlerError for Failure and holds the
// cancellation cause for Cancelled. Attempts is the number of handler
// invocations that ran; Retries is the number of times the task went back
// to the queue.
type Outcome[R any] struct {
	Kind     OutcomeKind
	Value    R
	Err      error
	Attempts int
	Retries  int
	Elapsed  time.Duration
}

// Result pairs an Outcome with the task it belongs to.
type Result[R any] struct {
	TaskID  TaskID
	Outcome Outcome[R]
}

// Future is resolved exactly once with the Outcome of its task.
type Future[R any] struct {
	id       TaskID
	done     chan struct{}
	resolved atomic.Bool
	outcome  Outcome[R]
}

func newFuture[R any](id TaskID) *Future[R] {
	return &Future[R]{id: id, done: make(chan struct{})}
}

// ID returns the id of the task behind this future.
func (f *Future[R]) ID() TaskID { return f.id }

// Done is closed once the outcome is available.
func (f *Future[R]) Done() <-chan struct{} { return f.done }

// Outcome returns the outcome without blocking. ok is false while the task
// is still pending.
func (f *Future[R]) Outcome() (o Outcome[R], ok bool) {
	select {
	case <-f.done:
		return f.outcome, true
	default:
		return o, false
	}
}

// Wait blocks until the task resolves or ctx is done.
func (f *Future[R]) Wait(ctx context.Context) (Outcome[R], error) {
	select {
	case <-f.done:
		return f.outcome, nil
	case <-ctx.Done():
		return Outcome[R]{}, ctx.Err()
	}
}

// resolve stores o and wakes waiters. Only the first call wins.
func (f *Future[R]) resolve(o Outcome[R]) bool {
	if !f.resolved.CompareAndSwap(false, true) {
		return false
	}
	f.outcome = o
	close(f.done)
	return true
}
