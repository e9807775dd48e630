package taskpool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	defaultAttempts   = 3
	defaultBaseDelay  = 200 * time.Millisecond
	defaultMultiplier = 2.0

	maxDuration = time.Duration(math.MaxInt64)
)

// RetryPolicy describes how many times and how often a failed task is
// retried. It is plain data; the pool evaluates it after every failed
// attempt.
//
// The delay before retry k+1 (k being the failed attempt, 1-indexed) is
// BaseDelay * Multiplier^(k-1), capped by MaxDelay when MaxDelay > 0.
// With Multiplier >= 1 the sequence never decreases.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of tries for a task, first one included.
	MaxAttempts int

	// BaseDelay is the delay after the first failed attempt.
	BaseDelay time.Duration

	// Multiplier scales the delay after every further failure.
	Multiplier float64

	// MaxDelay caps a single delay. Zero means no cap.
	MaxDelay time.Duration

	// Retryable reports whether an error is worth another attempt.
	// Nil means DefaultRetryable.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns the policy used when Options.Retry is left zero.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultAttempts,
		BaseDelay:   defaultBaseDelay,
		Multiplier:  defaultMultiplier,
	}
}

// Validate checks the policy invariants.
func (rp RetryPolicy) Validate() error {
	switch {
	case rp.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts %d < 1", ErrInvalidPolicy, rp.MaxAttempts)
	case rp.Multiplier < 1 || math.IsNaN(rp.Multiplier) || math.IsInf(rp.Multiplier, 0):
		return fmt.Errorf("%w: multiplier %v < 1", ErrInvalidPolicy, rp.Multiplier)
	case rp.BaseDelay < 0:
		return fmt.Errorf("%w: negative base delay %s", ErrInvalidPolicy, rp.BaseDelay)
	case rp.MaxDelay < 0:
		return fmt.Errorf("%w: negative max delay %s", ErrInvalidPolicy, rp.MaxDelay)
	}
	return nil
}

// Delay returns the wait after failed attempt k (1-indexed).
func (rp RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := maxDuration
	// saturate instead of overflowing time.Duration
	if d := float64(rp.BaseDelay) * math.Pow(rp.Multiplier, float64(attempt-1)); d < float64(maxDuration) {
		delay = time.Duration(d)
	}
	if rp.MaxDelay > 0 && delay > rp.MaxDelay {
		delay = rp.MaxDelay
	}
	return delay
}

// Decide evaluates the policy after attempt k failed with err.
// It returns false when the task must give up.
func (rp RetryPolicy) Decide(attempt int, err error) (retry bool, delay time.Duration) {
	if attempt >= rp.MaxAttempts {
		return false, 0
	}
	if !rp.retryable(err) {
		return false, 0
	}
	return true, rp.Delay(attempt)
}

func (rp RetryPolicy) retryable(err error) bool {
	if rp.Retryable == nil {
		return DefaultRetryable(err)
	}
	return rp.Retryable(err)
}

// DefaultRetryable treats every error as retryable except those marked
// with Permanent and context cancellation.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !IsPermanent(err) && !errors.Is(err, context.Canceled)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not retryable under DefaultRetryable.
// Permanent(nil) returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether any error in err's chain was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

func (rp RetryPolicy) isZero() bool {
	return rp.MaxAttempts == 0 && rp.BaseDelay == 0 && rp.Multiplier == 0 &&
		rp.MaxDelay == 0 && rp.Retryable == nil
}

func (rp *RetryPolicy) fillDefaults() {
	if rp.isZero() {
		*rp = DefaultRetryPolicy()
		return
	}
	if rp.MaxAttempts == 0 {
		rp.MaxAttempts = defaultAttempts
	}
	if rp.Multiplier == 0 {
		rp.Multiplier = defaultMultiplier
	}
}
