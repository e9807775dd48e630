package taskpool

import (
	"context"
	"fmt"
	"runtime"

	lg "github.com/Andrej220/go-utils/zlog"
)

// worker pulls tasks until the queue is closed and empty.
func (p *Pool[T, R]) worker(id int) {
	defer p.wg.Done()

	if p.opts.PinWorkers {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		cpu := id % runtime.NumCPU()
		if err := pinToCPU(cpu); err != nil {
			p.reportInternalError(fmt.Errorf("taskpool: pin worker %d to cpu %d: %w", id, cpu, err))
		}
	}

	for {
		j, ok := p.queue.pop()
		if !ok {
			return
		}
		p.metrics.SetQueued(p.queue.Len())
		p.execute(j)
	}
}

// execute runs one attempt of j and routes the result: resolve on success
// or terminal failure, hand to the retry timers otherwise.
func (p *Pool[T, R]) execute(j *job[T, R]) {
	if p.ctx.Err() != nil {
		p.resolve(j, Outcome[R]{Kind: Cancelled, Err: p.cancelCause()})
		return
	}

	p.acquire()
	defer p.release()

	attempt := int(j.attempt.Add(1))
	value, err := p.invoke(j)
	if err == nil {
		p.resolve(j, Outcome[R]{Kind: Success, Value: value})
		return
	}
	if p.ctx.Err() != nil {
		p.resolve(j, Outcome[R]{Kind: Cancelled, Err: err})
		return
	}

	retry, delay := p.opts.Retry.Decide(attempt, err)
	if !retry {
		p.resolve(j, Outcome[R]{Kind: Failure, Err: &HandlerError{Err: err, Attempts: attempt}})
		return
	}

	j.retries.Add(1)
	p.metrics.IncRetried()
	lg.FromContext(p.ctx).Warn("task attempt failed; backing off",
		lg.String("task_id", string(j.ID)),
		lg.Int("attempt", attempt),
		lg.String("sleep", delay.String()),
		lg.Any("error", err),
	)
	if !p.timers.schedule(j.ID, j, delay, p.retryDue) {
		p.resolve(j, Outcome[R]{Kind: Cancelled, Err: err})
	}
}

// retryDue runs on the timer goroutine when j's delay has elapsed.
func (p *Pool[T, R]) retryDue(j *job[T, R]) {
	if !p.queue.requeue(j) {
		p.resolveCancelled(j)
		return
	}
	p.metrics.SetQueued(p.queue.Len())
}

// invoke calls the handler, turning a panic into an error.
func (p *Pool[T, R]) invoke(j *job[T, R]) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			lg.FromContext(p.ctx).Error("task panicked",
				lg.String("task_id", string(j.ID)),
				lg.Any("panic", r),
			)
			err = panicError(r)
		}
	}()
	return p.handler(p.ctx, j.Payload)
}

// acquire takes an in-flight slot. Exceeding the capacity means the
// engine's own bookkeeping is broken, so it panics.
func (p *Pool[T, R]) acquire() {
	n := p.inFlight.Add(1)
	if int(n) > p.opts.Workers {
		panic(fmt.Sprintf("taskpool: in-flight count %d exceeds capacity %d", n, p.opts.Workers))
	}
	p.metrics.SetInFlight(int(n))
}

func (p *Pool[T, R]) release() {
	n := p.inFlight.Add(-1)
	if n < 0 {
		panic(fmt.Sprintf("taskpool: in-flight count went negative (%d)", n))
	}
	p.metrics.SetInFlight(int(n))
}

func (p *Pool[T, R]) cancelCause() error {
	if err := context.Cause(p.ctx); err != nil {
		return err
	}
	return ErrCancelled
}
