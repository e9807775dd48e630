package taskpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
)

// ErrCancelled is the cancellation cause seen by handlers, and the error of
// Cancelled outcomes, when the pool is shut down in Cancel mode.
var ErrCancelled = errors.New("taskpool: cancelled by shutdown")

// Handler executes one attempt of a task. It should return promptly once
// ctx is done.
type Handler[T, R any] func(ctx context.Context, payload T) (R, error)

// job is a Task plus the bookkeeping the pool needs to resolve it.
type job[T, R any] struct {
	Task[T]
	retries atomic.Int32
	fut     *Future[R]

	// accepted is set once the queue took the job; a submitter still
	// waiting in push has not been accepted and gets no outcome.
	accepted atomic.Bool
}

// Pool runs submitted tasks on a fixed set of workers.
//
// A Pool moves through Created → Running → Draining → Stopped and cannot be
// restarted. Each Pool is self-contained; several may run in one process.
type Pool[T, R any] struct {
	handler Handler[T, R]
	opts    Options[R]
	metrics MetricsPolicy

	queue  *taskQueue[*job[T, R]]
	timers *retryTimers[*job[T, R]]

	mu      sync.Mutex
	state   State
	pending map[TaskID]*job[T, R] // submitting or accepted, not yet resolved
	idle    chan struct{}         // closed once draining and pending is empty

	ctx        context.Context // parent of every handler context; carries the logger
	cancel     context.CancelCauseFunc
	cancelOnce sync.Once

	inFlight atomic.Int32
	wg       sync.WaitGroup

	// outMu orders outcome delivery against the final transition to
	// Stopped: no outcome is delivered once halted is set.
	outMu   sync.RWMutex
	halted  bool
	stopped chan struct{}
	stopOne sync.Once
}

// New creates a pool in the Created state. Zero option values are filled
// with defaults.
func New[T, R any](handler Handler[T, R], opts Options[R]) (*Pool[T, R], error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	opts.FillDefaults()
	if err := opts.Retry.Validate(); err != nil {
		return nil, err
	}
	q := newTaskQueue[*job[T, R]](opts.QueueSize)
	q.admitted = func(j *job[T, R]) { j.accepted.Store(true) }
	return &Pool[T, R]{
		handler: handler,
		opts:    opts,
		metrics: opts.Metrics,
		queue:   q,
		timers:  newRetryTimers[*job[T, R]](),
		pending: make(map[TaskID]*job[T, R]),
		idle:    make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// Start spawns the workers and moves the pool to Running.
//
// ctx is the parent of every handler context and carries the logger used
// by the pool. Cancelling it signals running handlers but does not stop
// the pool; use Shutdown for that.
func (p *Pool[T, R]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Created {
		return ErrAlreadyStarted
	}
	p.ctx, p.cancel = context.WithCancelCause(ctx)
	p.state = Running

	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	lg.FromContext(ctx).Info("pool started",
		lg.Int("workers", p.opts.Workers),
		lg.Int("queue_size", p.opts.QueueSize),
		lg.Int("max_attempts", p.opts.Retry.MaxAttempts),
	)
	return nil
}

// Submit enqueues payload and returns the future of the new task.
//
// When the queue is full, Submit waits for room if Options.BlockingSubmit
// is set (bounded by ctx) and fails with ErrQueueFull otherwise.
func (p *Pool[T, R]) Submit(ctx context.Context, payload T) (*Future[R], error) {
	return p.submit(ctx, payload, p.opts.BlockingSubmit)
}

// TrySubmit is Submit that never waits for queue space.
func (p *Pool[T, R]) TrySubmit(payload T) (*Future[R], error) {
	return p.submit(context.Background(), payload, false)
}

// SubmitWait submits payload and blocks until its outcome is known or ctx
// is done. A ctx expiring after submission leaves the task running.
func (p *Pool[T, R]) SubmitWait(ctx context.Context, payload T) (Outcome[R], error) {
	f, err := p.Submit(ctx, payload)
	if err != nil {
		return Outcome[R]{}, err
	}
	return f.Wait(ctx)
}

func (p *Pool[T, R]) submit(ctx context.Context, payload T, block bool) (*Future[R], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	id := newTaskID()
	j := &job[T, R]{
		Task: Task[T]{ID: id, Payload: payload, EnqueuedAt: time.Now()},
		fut:  newFuture[R](id),
	}

	p.mu.Lock()
	switch p.state {
	case Running:
	case Created:
		p.mu.Unlock()
		return nil, ErrNotStarted
	default:
		p.mu.Unlock()
		p.metrics.IncRejected()
		return nil, ErrPoolClosed
	}
	p.pending[id] = j
	p.mu.Unlock()

	if err := p.queue.push(ctx, j, block); err != nil {
		p.forget(id)
		p.metrics.IncRejected()
		if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrPoolClosed) {
			return nil, err
		}
		return nil, fmt.Errorf("taskpool: submit: %w", err)
	}
	p.metrics.IncSubmitted()
	p.metrics.SetQueued(p.queue.Len())
	return j.fut, nil
}

// Shutdown stops the pool.
//
// In Drain mode it waits for every accepted task to reach a terminal
// outcome. In Cancel mode queued and pending-retry tasks are resolved
// Cancelled at once and running handlers see their context cancelled.
//
// A positive timeout bounds the wait. A Drain that runs out of time is
// escalated to Cancel; tasks whose handlers are still running then are
// resolved Cancelled, their late results are discarded, and Shutdown
// returns context.DeadlineExceeded. The pool is Stopped in every case.
func (p *Pool[T, R]) Shutdown(mode ShutdownMode, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	p.mu.Lock()
	switch p.state {
	case Created:
		p.state = Stopped
		p.halted = true
		p.mu.Unlock()
		p.stopOne.Do(func() { close(p.stopped) })
		return nil
	case Draining, Stopped:
		// another Shutdown owns the transition
		p.mu.Unlock()
		if mode == Cancel {
			p.cancelAll()
		}
		select {
		case <-p.stopped:
			return nil
		case <-expired:
			return context.DeadlineExceeded
		}
	}
	p.state = Draining
	p.checkIdleLocked()
	p.mu.Unlock()

	logger := lg.FromContext(p.ctx)
	logger.Info("pool shutting down", lg.String("mode", mode.String()), lg.String("timeout", timeout.String()))

	if mode == Drain {
		select {
		case <-p.idle:
			p.queue.close()
		case <-expired:
			logger.Warn("drain timed out; cancelling remaining tasks", lg.Int("pending", p.Pending()))
			p.forceStop()
			return context.DeadlineExceeded
		}
	} else {
		p.cancelAll()
	}

	workersDone := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(workersDone)
	}()
	select {
	case <-workersDone:
		p.halt()
		return nil
	case <-expired:
		logger.Warn("shutdown timed out waiting for handlers", lg.Int32("in_flight", p.inFlight.Load()))
		p.forceStop()
		return context.DeadlineExceeded
	}
}

// cancelAll signals running handlers and resolves every queued and
// pending-retry task as Cancelled. The queue is closed before it is
// flushed so nothing submitted afterwards can slip in.
func (p *Pool[T, R]) cancelAll() {
	p.cancelOnce.Do(func() {
		if p.cancel != nil {
			p.cancel(ErrCancelled)
		}
		p.queue.close()
		for _, j := range p.timers.stopAll() {
			p.resolveCancelled(j)
		}
		for _, j := range p.queue.flush() {
			p.resolveCancelled(j)
		}
		p.metrics.SetQueued(0)
	})
}

// forceStop cancels everything, resolves the tasks whose handlers are still
// running, and stops the pool without waiting for the workers.
//
// The queue is closed by cancelAll before pending is scanned, so a job not
// yet accepted belongs to a submitter whose push is failing with
// ErrPoolClosed.
func (p *Pool[T, R]) forceStop() {
	p.cancelAll()

	p.mu.Lock()
	rest := make([]*job[T, R], 0, len(p.pending))
	for _, j := range p.pending {
		if j.accepted.Load() {
			rest = append(rest, j)
		}
	}
	p.mu.Unlock()

	for _, j := range rest {
		p.resolveCancelled(j)
	}
	p.halt()
}

// halt performs the final transition to Stopped.
func (p *Pool[T, R]) halt() {
	p.stopOne.Do(func() {
		p.outMu.Lock()
		p.halted = true
		p.outMu.Unlock()

		p.mu.Lock()
		p.state = Stopped
		p.mu.Unlock()
		close(p.stopped)
		lg.FromContext(p.logCtx()).Info("pool stopped")
	})
}

// Done is closed once the pool reaches Stopped.
func (p *Pool[T, R]) Done() <-chan struct{} { return p.stopped }

// resolve delivers the terminal outcome of j. Calls after the first one
// for the same task, or after the pool halted, are ignored.
func (p *Pool[T, R]) resolve(j *job[T, R], o Outcome[R]) {
	p.outMu.RLock()
	defer p.outMu.RUnlock()
	if p.halted {
		return
	}

	o.Attempts = j.Attempt()
	o.Retries = int(j.retries.Load())
	o.Elapsed = time.Since(j.EnqueuedAt)
	if !j.fut.resolve(o) {
		return
	}
	p.forget(j.ID)

	p.metrics.IncOutcome(o.Kind)
	p.metrics.ObserveDuration(o.Elapsed)
	p.logOutcome(j, o)
	p.deliver(Result[R]{TaskID: j.ID, Outcome: o})
}

func (p *Pool[T, R]) resolveCancelled(j *job[T, R]) {
	p.resolve(j, Outcome[R]{Kind: Cancelled, Err: ErrCancelled})
}

func (p *Pool[T, R]) logOutcome(j *job[T, R], o Outcome[R]) {
	logger := lg.FromContext(p.logCtx()).With(lg.String("task_id", string(j.ID)))
	switch o.Kind {
	case Success:
		logger.Info("task succeeded", lg.Int("attempts", o.Attempts), lg.Int("retries", o.Retries))
	case Failure:
		logger.Error("task failed", lg.Int("attempts", o.Attempts), lg.Any("error", o.Err))
	case Cancelled:
		logger.Info("task cancelled", lg.Int("attempts", o.Attempts))
	}
}

// forget drops id from the pending set.
func (p *Pool[T, R]) forget(id TaskID) {
	p.mu.Lock()
	delete(p.pending, id)
	p.checkIdleLocked()
	p.mu.Unlock()
}

func (p *Pool[T, R]) checkIdleLocked() {
	if p.state != Draining || len(p.pending) != 0 {
		return
	}
	select {
	case <-p.idle:
	default:
		close(p.idle)
	}
}

// logCtx is the context the pool logs with.
func (p *Pool[T, R]) logCtx() context.Context {
	if p.ctx == nil {
		return context.Background()
	}
	return p.ctx
}

// State returns the current lifecycle stage.
func (p *Pool[T, R]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Capacity is the number of workers.
func (p *Pool[T, R]) Capacity() int { return p.opts.Workers }

// InFlight is the number of handlers executing right now.
func (p *Pool[T, R]) InFlight() int { return int(p.inFlight.Load()) }

// QueueLength is the number of tasks waiting for a worker.
func (p *Pool[T, R]) QueueLength() int { return p.queue.Len() }

// Pending is the number of tasks without an outcome yet: queued, running
// and pending-retry tasks, plus submitters waiting for queue space.
func (p *Pool[T, R]) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	State        string `json:"state"`
	Workers      int    `json:"workers"`
	InFlight     int    `json:"in_flight"`
	Queued       int    `json:"queued"`
	RetryWaiting int    `json:"retry_waiting"`
	Pending      int    `json:"pending"`
}

func (p *Pool[T, R]) Stats() Stats {
	return Stats{
		State:        p.State().String(),
		Workers:      p.opts.Workers,
		InFlight:     p.InFlight(),
		Queued:       p.queue.Len(),
		RetryWaiting: p.timers.Len(),
		Pending:      p.Pending(),
	}
}
