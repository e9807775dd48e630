package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azargarov/taskpool"
	"github.com/azargarov/taskpool/internal/handlers"
)

type stubSubmitter struct {
	err error
}

func (s stubSubmitter) Submit(context.Context, handlers.Request) (*taskpool.Future[string], error) {
	return nil, s.err
}

func (s stubSubmitter) Stats() taskpool.Stats { return taskpool.Stats{State: "running"} }

func setupTestPool(t *testing.T) *taskpool.Pool[handlers.Request, string] {
	t.Helper()
	p, err := taskpool.New(handlers.Default().Handle, taskpool.Options[string]{Workers: 2, QueueSize: 16})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Shutdown(taskpool.Cancel, time.Second) })
	return p
}

func postTask(t *testing.T, router http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, _ := http.NewRequest("POST", "/tasks", bytes.NewBuffer(b))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func getTask(t *testing.T, router http.Handler, id taskpool.TaskID) (int, TaskView) {
	t.Helper()
	req, _ := http.NewRequest("GET", "/tasks/"+string(id), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	var v TaskView
	if rr.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	}
	return rr.Code, v
}

func TestCreateTask(t *testing.T) {
	router := NewRouter(NewHandler(setupTestPool(t), nil, 0), nil)

	rr := postTask(t, router, map[string]string{"type": "echo", "payload": "hello api"})
	assert.Equal(t, http.StatusAccepted, rr.Code)

	var resp CreateTaskResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)

	var v TaskView
	assert.Eventually(t, func() bool {
		_, v = getTask(t, router, resp.ID)
		return v.Status != "pending"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "success", v.Status)
	assert.Equal(t, "echo: hello api", v.Result)
	assert.Equal(t, 1, v.Attempts)
}

func TestCreateTask_PermanentFailure(t *testing.T) {
	router := NewRouter(NewHandler(setupTestPool(t), nil, 0), nil)

	rr := postTask(t, router, map[string]string{"type": "no-such-type", "payload": "x"})
	require.Equal(t, http.StatusAccepted, rr.Code)
	var resp CreateTaskResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	var v TaskView
	assert.Eventually(t, func() bool {
		_, v = getTask(t, router, resp.ID)
		return v.Status != "pending"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "failure", v.Status)
	assert.Equal(t, 1, v.Attempts)
	assert.Contains(t, v.Error, "no-such-type")
}

func TestCreateTask_BadRequest(t *testing.T) {
	router := NewRouter(NewHandler(stubSubmitter{}, nil, 0), nil)

	req, _ := http.NewRequest("POST", "/tasks", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = postTask(t, router, map[string]string{"payload": "no type"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateTask_Rejections(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{taskpool.ErrQueueFull, http.StatusTooManyRequests},
		{taskpool.ErrPoolClosed, http.StatusServiceUnavailable},
		{taskpool.ErrNotStarted, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		router := NewRouter(NewHandler(stubSubmitter{err: tc.err}, nil, 0), nil)
		rr := postTask(t, router, map[string]string{"type": "echo", "payload": "x"})
		assert.Equal(t, tc.code, rr.Code, tc.err.Error())

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, tc.err.Error(), resp.Error)
	}
}

func TestCreateTask_AfterShutdown(t *testing.T) {
	p := setupTestPool(t)
	require.NoError(t, p.Shutdown(taskpool.Drain, time.Second))
	router := NewRouter(NewHandler(p, nil, 0), nil)

	rr := postTask(t, router, map[string]string{"type": "echo", "payload": "late"})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestGetTask_NotFound(t *testing.T) {
	router := NewRouter(NewHandler(stubSubmitter{}, nil, 0), nil)

	code, _ := getTask(t, router, "non-existent-id")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestListTasks_EvictsOldest(t *testing.T) {
	router := NewRouter(NewHandler(setupTestPool(t), nil, 2), nil)

	var ids []taskpool.TaskID
	for _, s := range []string{"a", "b", "c"} {
		rr := postTask(t, router, map[string]string{"type": "echo", "payload": s})
		require.Equal(t, http.StatusAccepted, rr.Code)
		var resp CreateTaskResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		ids = append(ids, resp.ID)
	}

	req, _ := http.NewRequest("GET", "/tasks", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var views []TaskView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, ids[1], views[0].ID)
	assert.Equal(t, ids[2], views[1].ID)

	code, _ := getTask(t, router, ids[0])
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStatsAndHealth(t *testing.T) {
	m := &taskpool.AtomicMetrics{}
	router := NewRouter(NewHandler(stubSubmitter{}, m, 0), nil)

	req, _ := http.NewRequest("GET", "/stats", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var stats StatsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, "running", stats.Pool.State)
	assert.NotNil(t, stats.Metrics)

	req, _ = http.NewRequest("GET", "/health", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "taskpool_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	router := NewRouter(NewHandler(stubSubmitter{}, nil, 0), reg)
	req, _ := http.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "taskpool_test_total 1")

	router = NewRouter(NewHandler(stubSubmitter{}, nil, 0), nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRequestLoggerPassesResponseThrough(t *testing.T) {
	logger := lg.NewDefault("api-test")
	defer logger.Sync()
	ctx := lg.Attach(context.Background(), logger)

	teapot := requestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))
	req := httptest.NewRequest("GET", "/brew", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	teapot.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Equal(t, "short and stout", rr.Body.String())

	panicky := requestLogger(middleware.Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rr = httptest.NewRecorder()
	panicky.ServeHTTP(rr, httptest.NewRequest("GET", "/boom", nil).WithContext(ctx))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
