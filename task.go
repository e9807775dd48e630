package taskpool

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// TaskID identifies a submitted task for its whole lifetime, across retries.
type TaskID string

func newTaskID() TaskID { return TaskID(uuid.NewString()) }

// Task is a unit of work travelling through the pool.
//
// Everything except the attempt count is fixed at submission. The count is
// only advanced by the worker that ran the task, but may be read by
// shutdown while that worker still holds it.
type Task[T any] struct {
	ID         TaskID
	Payload    T
	EnqueuedAt time.Time

	attempt atomic.Int32
}

// Attempt is the number of attempts already made.
func (t *Task[T]) Attempt() int { return int(t.attempt.Load()) }
