package taskpool

import (
	"sync"
	"time"
)

// retryTimers holds tasks waiting out their retry delay.
//
// Each entry owns a time.AfterFunc timer. Ownership of the item goes to
// whoever removes the entry from the map first: the timer callback, which
// hands it to fire, or stopAll, which returns it to the caller.
type retryTimers[E any] struct {
	mu      sync.Mutex
	entries map[TaskID]*delayedItem[E]
	closed  bool
}

type delayedItem[E any] struct {
	item  E
	timer *time.Timer
}

func newRetryTimers[E any]() *retryTimers[E] {
	return &retryTimers[E]{entries: make(map[TaskID]*delayedItem[E])}
}

// schedule calls fire(item) after delay on a timer goroutine. It reports
// false once stopAll has run.
func (rt *retryTimers[E]) schedule(id TaskID, item E, delay time.Duration, fire func(E)) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return false
	}
	d := &delayedItem[E]{item: item}
	rt.entries[id] = d
	d.timer = time.AfterFunc(delay, func() {
		rt.mu.Lock()
		cur, ok := rt.entries[id]
		if ok && cur == d {
			delete(rt.entries, id)
		}
		rt.mu.Unlock()
		if ok && cur == d {
			fire(item)
		}
	})
	return true
}

// stopAll cancels every pending timer, refuses further scheduling and
// returns the items whose timers had not fired yet.
func (rt *retryTimers[E]) stopAll() []E {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.closed = true
	out := make([]E, 0, len(rt.entries))
	for id, d := range rt.entries {
		d.timer.Stop()
		out = append(out, d.item)
		delete(rt.entries, id)
	}
	return out
}

func (rt *retryTimers[E]) Len() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.entries)
}
