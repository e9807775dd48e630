package taskpool

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned by a non-blocking submission when the
	// queue already holds QueueSize tasks.
	ErrQueueFull = errors.New("taskpool: queue is full")

	// ErrPoolClosed is returned when a task is submitted to a pool that
	// is draining or stopped.
	ErrPoolClosed = errors.New("taskpool: pool closed")

	// ErrNotStarted is returned when a task is submitted before Start.
	ErrNotStarted = errors.New("taskpool: pool not started")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("taskpool: pool already started")

	ErrNilHandler    = errors.New("taskpool: handler is nil")
	ErrInvalidPolicy = errors.New("taskpool: invalid retry policy")

	// ErrHandlerPanic wraps a value recovered from a panicking handler.
	ErrHandlerPanic = errors.New("taskpool: handler panicked")
)

// HandlerError is the error carried by a Failure outcome. It keeps the
// last error returned by the handler and the number of attempts used.
type HandlerError struct {
	Err      error
	Attempts int
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("taskpool: handler failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%w: %w", ErrHandlerPanic, err)
	}
	return fmt.Errorf("%w: %v", ErrHandlerPanic, r)
}
