// Package api exposes a pool over HTTP: submit tasks, poll their outcome.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/azargarov/taskpool"
	"github.com/azargarov/taskpool/internal/handlers"
)

// DefaultMaxTracked bounds the number of task outcomes kept for polling.
const DefaultMaxTracked = 10_000

// Submitter is the part of a pool the API needs.
type Submitter interface {
	Submit(ctx context.Context, req handlers.Request) (*taskpool.Future[string], error)
	Stats() taskpool.Stats
}

type Handler struct {
	pool       Submitter
	metrics    *taskpool.AtomicMetrics
	maxTracked int

	mu    sync.Mutex
	tasks map[taskpool.TaskID]*taskpool.Future[string]
	order []taskpool.TaskID // oldest first
}

// NewHandler serves pool. metrics may be nil.
func NewHandler(pool Submitter, metrics *taskpool.AtomicMetrics, maxTracked int) *Handler {
	if maxTracked <= 0 {
		maxTracked = DefaultMaxTracked
	}
	return &Handler{
		pool:       pool,
		metrics:    metrics,
		maxTracked: maxTracked,
		tasks:      make(map[taskpool.TaskID]*taskpool.Future[string]),
	}
}

type CreateTaskResponse struct {
	ID taskpool.TaskID `json:"id"`
}

// TaskView is the JSON form of a tracked task.
type TaskView struct {
	ID        taskpool.TaskID `json:"id"`
	Status    string          `json:"status"`
	Result    string          `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Attempts  int             `json:"attempts"`
	Retries   int             `json:"retries"`
	ElapsedMS int64           `json:"elapsed_ms,omitempty"`
}

type StatsResponse struct {
	Pool    taskpool.Stats            `json:"pool"`
	Metrics *taskpool.MetricsSnapshot `json:"metrics,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req handlers.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" {
		respondError(w, http.StatusBadRequest, "type is required")
		return
	}

	f, err := h.pool.Submit(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, taskpool.ErrQueueFull):
		respondError(w, http.StatusTooManyRequests, err.Error())
		return
	case errors.Is(err, taskpool.ErrPoolClosed), errors.Is(err, taskpool.ErrNotStarted),
		errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.track(f)
	respondJSON(w, http.StatusAccepted, CreateTaskResponse{ID: f.ID()})
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := taskpool.TaskID(chi.URLParam(r, "id"))

	h.mu.Lock()
	f, ok := h.tasks[id]
	h.mu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}
	respondJSON(w, http.StatusOK, view(f))
}

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	views := make([]TaskView, 0, len(h.order))
	for _, id := range h.order {
		views = append(views, view(h.tasks[id]))
	}
	h.mu.Unlock()
	respondJSON(w, http.StatusOK, views)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Pool: h.pool.Stats()}
	if h.metrics != nil {
		s := h.metrics.Snapshot()
		resp.Metrics = &s
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// track remembers f, evicting the oldest entry once maxTracked is reached.
func (h *Handler) track(f *taskpool.Future[string]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for len(h.order) >= h.maxTracked {
		delete(h.tasks, h.order[0])
		h.order = h.order[1:]
	}
	h.tasks[f.ID()] = f
	h.order = append(h.order, f.ID())
}

func view(f *taskpool.Future[string]) TaskView {
	v := TaskView{ID: f.ID(), Status: "pending"}
	o, done := f.Outcome()
	if !done {
		return v
	}
	v.Status = o.Kind.String()
	v.Result = o.Value
	v.Attempts = o.Attempts
	v.Retries = o.Retries
	v.ElapsedMS = o.Elapsed.Milliseconds()
	if o.Err != nil {
		v.Error = o.Err.Error()
	}
	return v
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}
