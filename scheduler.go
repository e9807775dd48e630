package taskpool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
)

// OverlapPolicy decides whether a tick may submit while the task of an
// earlier tick is still unresolved.
type OverlapPolicy uint8

const (
	// OverlapAllow submits on every tick. A slow task never delays or
	// suppresses later ticks, so tasks of consecutive ticks may run
	// concurrently.
	OverlapAllow OverlapPolicy = iota

	// OverlapSkip skips a tick while the previous tick's task has no
	// outcome yet.
	OverlapSkip
)

func (o OverlapPolicy) String() string {
	switch o {
	case OverlapAllow:
		return "allow"
	case OverlapSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// SchedulerOptions configure a Scheduler.
type SchedulerOptions[R any] struct {
	Overlap OverlapPolicy

	// OnSubmit, if set, receives the future of every submitted tick.
	OnSubmit func(tick uint64, f *Future[R])
}

// Scheduler feeds a Pool with one task per interval.
//
// Submissions never block: a tick that finds the queue full is dropped,
// counted through MetricsPolicy.IncTickDropped and logged. Dropped ticks
// are not retried.
type Scheduler[T, R any] struct {
	pool     *Pool[T, R]
	interval time.Duration
	next     func(tick uint64) T
	opts     SchedulerOptions[R]

	fired   atomic.Uint64
	dropped atomic.Uint64
	skipped atomic.Uint64

	last *Future[R] // owned by the Run goroutine
}

// NewScheduler returns a scheduler that builds each tick's payload with next.
func NewScheduler[T, R any](pool *Pool[T, R], interval time.Duration, next func(tick uint64) T, opts SchedulerOptions[R]) (*Scheduler[T, R], error) {
	switch {
	case pool == nil:
		return nil, errors.New("taskpool: scheduler needs a pool")
	case next == nil:
		return nil, errors.New("taskpool: scheduler needs a payload func")
	case interval <= 0:
		return nil, fmt.Errorf("taskpool: scheduler interval must be positive, got %s", interval)
	}
	return &Scheduler[T, R]{pool: pool, interval: interval, next: next, opts: opts}, nil
}

// Run fires until ctx is done, returning nil, or until the pool stops
// accepting work, returning ErrPoolClosed.
func (s *Scheduler[T, R]) Run(ctx context.Context) error {
	logger := lg.FromContext(ctx)
	logger.Info("scheduler started",
		lg.String("interval", s.interval.String()),
		lg.String("overlap", s.opts.Overlap.String()),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("scheduler stopped", lg.Any("reason", ctx.Err()))
			return nil
		case <-s.pool.Done():
			return ErrPoolClosed
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				logger.Info("scheduler stopped", lg.Any("reason", err))
				return err
			}
		}
	}
}

func (s *Scheduler[T, R]) tick(ctx context.Context) error {
	n := s.fired.Add(1)

	if s.opts.Overlap == OverlapSkip && s.last != nil {
		if _, done := s.last.Outcome(); !done {
			s.skipped.Add(1)
			return nil
		}
	}

	f, err := s.pool.TrySubmit(s.next(n))
	switch {
	case err == nil:
		s.last = f
		if s.opts.OnSubmit != nil {
			s.opts.OnSubmit(n, f)
		}
		return nil
	case errors.Is(err, ErrQueueFull):
		s.dropped.Add(1)
		s.pool.metrics.IncTickDropped()
		lg.FromContext(ctx).Warn("queue full; tick dropped", lg.Any("tick", n))
		return nil
	default:
		return err
	}
}

// Fired is the number of ticks so far, including dropped and skipped ones.
func (s *Scheduler[T, R]) Fired() uint64 { return s.fired.Load() }

// Dropped is the number of ticks lost to a full queue.
func (s *Scheduler[T, R]) Dropped() uint64 { return s.dropped.Load() }

// Skipped is the number of ticks suppressed by OverlapSkip.
func (s *Scheduler[T, R]) Skipped() uint64 { return s.skipped.Load() }
