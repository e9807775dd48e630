package api

import (
	"context"
	"net/http"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// submitTimeout bounds how long a blocking submit may hold a request.
const submitTimeout = 5 * time.Second

// NewRouter wires h. /metrics is served when gatherer is non-nil.
// Requests are logged with the logger carried by the request context.
func NewRouter(h *Handler, gatherer prom.Gatherer) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HealthCheck)
	r.Get("/stats", h.GetStats)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/tasks", func(r chi.Router) {
		r.With(submitDeadline).Post("/", h.CreateTask)
		r.Get("/", h.ListTasks)
		r.Get("/{id}", h.GetTask)
	})

	return r
}

func submitDeadline(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), submitTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			lg.FromContext(r.Context()).Info("http request",
				lg.String("request_id", middleware.GetReqID(r.Context())),
				lg.String("method", r.Method),
				lg.String("path", r.URL.Path),
				lg.Int("status", ww.Status()),
				lg.Int("bytes", ww.BytesWritten()),
				lg.String("duration", time.Since(start).String()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
