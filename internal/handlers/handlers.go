// Package handlers holds the demo task handlers served by cmd/taskpool.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
	"github.com/azargarov/taskpool"
)

// Request is the payload of a demo task.
type Request struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

// Func handles one task type.
type Func func(ctx context.Context, payload string) (string, error)

// ErrUnknownType is returned for a task type without a registered handler.
var ErrUnknownType = errors.New("unknown task type")

// Mux dispatches a Request to the Func registered for its type.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]Func
}

func NewMux() *Mux {
	return &Mux{handlers: make(map[string]Func)}
}

// Default returns a Mux with every demo handler registered.
func Default() *Mux {
	m := NewMux()
	m.Register("echo", Echo)
	m.Register("print", Print)
	m.Register("reverse", Reverse)
	m.Register("sum", Sum)
	m.Register("sleep", Sleep)
	m.Register("flaky", NewFlaky(0.5))
	return m
}

func (m *Mux) Register(taskType string, fn Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[taskType] = fn
}

// Types lists the registered task types in order.
func (m *Mux) Types() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.handlers))
	for t := range m.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Handle is a taskpool.Handler. Unknown types fail permanently so they are
// never retried.
func (m *Mux) Handle(ctx context.Context, req Request) (string, error) {
	m.mu.RLock()
	fn, ok := m.handlers[req.Type]
	m.mu.RUnlock()
	if !ok {
		return "", taskpool.Permanent(fmt.Errorf("%w: %q", ErrUnknownType, req.Type))
	}
	return fn(ctx, req.Payload)
}

func Echo(_ context.Context, payload string) (string, error) {
	return "echo: " + payload, nil
}

// Print logs the payload.
func Print(ctx context.Context, payload string) (string, error) {
	lg.FromContext(ctx).Info("print task", lg.String("message", payload))
	return payload, nil
}

func Reverse(_ context.Context, payload string) (string, error) {
	runes := []rune(payload)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes), nil
}

// Sum adds up a JSON array of numbers.
func Sum(_ context.Context, payload string) (string, error) {
	var numbers []float64
	if err := json.Unmarshal([]byte(payload), &numbers); err != nil {
		return "", taskpool.Permanent(fmt.Errorf("invalid payload: expected JSON array of numbers: %w", err))
	}

	var sum float64
	for _, n := range numbers {
		sum += n
	}
	return fmt.Sprintf("%.2f", sum), nil
}

// Sleep waits for the duration in payload (e.g. "1.5s") or until ctx is done.
func Sleep(ctx context.Context, payload string) (string, error) {
	d, err := time.ParseDuration(payload)
	if err != nil {
		return "", taskpool.Permanent(fmt.Errorf("invalid duration %q: %w", payload, err))
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return "slept " + d.String(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// NewFlaky returns a handler failing with probability failRate, for
// exercising retries.
func NewFlaky(failRate float64) Func {
	return func(context.Context, string) (string, error) {
		if rand.Float64() < failRate {
			return "", errors.New("random failure")
		}
		return "ok", nil
	}
}
