package taskpool

import (
	"context"
	"sync"
)

const minQueueBuf = 16

// taskQueue is a bounded FIFO shared by the pool's workers.
//
// Items live in a circular buffer guarded by mu. Waiters park on the
// one-slot readyCh/spaceCh channels; whoever consumes a wake-up and leaves
// room for another waiter passes it on, so no wake-up is lost.
//
// The bound applies to push only. requeue ignores it so that a retry
// timer never blocks and a retried task is never dropped.
type taskQueue[E any] struct {
	mu         sync.Mutex
	buf        []E // circular buffer
	head, tail int // read/write indices
	size       int // number of items currently buffered
	bound      int
	closed     bool

	// admitted, if set, is called under mu for every item push accepts.
	// Anyone who observes the queue closed has seen every such call.
	admitted func(E)

	readyCh  chan struct{}
	spaceCh  chan struct{}
	closedCh chan struct{}
}

func newTaskQueue[E any](bound int) *taskQueue[E] {
	return &taskQueue[E]{
		buf:      make([]E, max(min(bound, 1024), minQueueBuf)),
		bound:    bound,
		readyCh:  make(chan struct{}, 1),
		spaceCh:  make(chan struct{}, 1),
		closedCh: make(chan struct{}),
	}
}

// push appends e at the tail. A full queue returns ErrQueueFull unless
// block is set, in which case push waits for room, close or ctx.
func (q *taskQueue[E]) push(ctx context.Context, e E, block bool) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrPoolClosed
		}
		if q.size < q.bound {
			q.put(e)
			if q.admitted != nil {
				q.admitted(e)
			}
			room := q.size < q.bound
			q.mu.Unlock()
			notify(q.readyCh)
			if room {
				notify(q.spaceCh)
			}
			return nil
		}
		q.mu.Unlock()

		if !block {
			return ErrQueueFull
		}
		select {
		case <-q.spaceCh:
		case <-q.closedCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// requeue appends e regardless of the bound. It reports false once the
// queue is closed.
func (q *taskQueue[E]) requeue(e E) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.put(e)
	q.mu.Unlock()
	notify(q.readyCh)
	return true
}

// pop removes the oldest item, waiting while the queue is empty.
// It returns false once the queue is closed and empty.
func (q *taskQueue[E]) pop() (E, bool) {
	for {
		q.mu.Lock()
		if q.size > 0 {
			e := q.take()
			more := q.size > 0
			q.mu.Unlock()
			if more {
				notify(q.readyCh)
			}
			notify(q.spaceCh)
			return e, true
		}
		if q.closed {
			q.mu.Unlock()
			var zero E
			return zero, false
		}
		q.mu.Unlock()

		select {
		case <-q.readyCh:
		case <-q.closedCh:
		}
	}
}

// close rejects further pushes and wakes every waiter. Items already
// buffered are still handed out by pop.
func (q *taskQueue[E]) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.closedCh)
}

// flush removes and returns every buffered item in FIFO order.
func (q *taskQueue[E]) flush() []E {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]E, 0, q.size)
	for q.size > 0 {
		out = append(out, q.take())
	}
	return out
}

func (q *taskQueue[E]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// put and take expect q.mu to be held.
func (q *taskQueue[E]) put(e E) {
	if q.size == len(q.buf) {
		q.grow()
	}
	q.buf[q.tail] = e
	q.tail++
	if q.tail == len(q.buf) {
		q.tail = 0
	}
	q.size++
}

func (q *taskQueue[E]) take() E {
	var zero E
	e := q.buf[q.head]
	q.buf[q.head] = zero
	q.head++
	if q.head == len(q.buf) {
		q.head = 0
	}
	q.size--
	return e
}

func (q *taskQueue[E]) grow() {
	buf := make([]E, len(q.buf)*2)
	n := copy(buf, q.buf[q.head:])
	copy(buf[n:], q.buf[:q.head])
	q.head = 0
	q.tail = q.size
	q.buf = buf
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
