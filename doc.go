// Package taskpool provides a bounded, in-memory task execution engine:
// a shared FIFO queue drained by a fixed set of workers, a retry policy
// with exponential backoff around every attempt, and coordinated shutdown.
//
// Architecture overview
//
// The engine is composed of four loosely coupled layers:
//
//  1. Queue
//     A bounded FIFO of tasks. Submissions either wait for room or fail
//     with ErrQueueFull. Retried tasks re-enter at the tail once their
//     delay has elapsed and are not subject to the bound.
//
//  2. Execution (Pool / workers)
//     Options.Workers goroutines pull tasks and call the Handler. At most
//     Options.Workers handlers run at once. A handler error or panic never
//     stops a worker.
//
//  3. Retry
//     RetryPolicy is plain data. After a failed attempt the worker asks the
//     policy whether to give up; if not, the task waits on a timer and is
//     re-enqueued. Workers never sleep.
//
//  4. Outcome
//     Every accepted task ends with exactly one Outcome: Success, Failure
//     or Cancelled. It is delivered through the task's Future and the
//     optional Options.OnOutcome hook.
//
// Lifecycle
//
// A Pool goes Created → Running → Draining → Stopped. Shutdown(Drain, …)
// lets every accepted task finish, Shutdown(Cancel, …) resolves waiting
// tasks as Cancelled and cancels the context handed to running handlers.
// Cancellation is cooperative: a handler that ignores its context runs to
// completion, though after a shutdown timeout its result is discarded.
//
// Periodic work
//
// Scheduler submits one task per interval. It never waits for earlier
// ticks to finish unless OverlapSkip is chosen, and drops a tick when the
// queue is full.
//
// Logging
//
// The pool logs through the zlog logger found in the context given to
// Start, so every pool can carry its own logger.
//
// Error handling
//
// The pool distinguishes between two classes of errors:
//
//   - Task errors: returned by handlers or produced by panic recovery.
//     They go through the RetryPolicy and end up in a Failure outcome.
//   - Internal errors: unexpected failures inside the pool itself. They are
//     reported to Options.OnInternalError; broken invariants panic.
package taskpool
