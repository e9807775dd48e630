// Package prometheus exports taskpool metrics as Prometheus collectors.
package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/azargarov/taskpool"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	// Pool labels every series so several pools can share a registry.
	Pool string

	DurationBuckets []float64
}

// Exporter adapts taskpool.MetricsPolicy to Prometheus collectors.
type Exporter struct {
	submitted    prom.Counter
	rejected     prom.Counter
	retried      prom.Counter
	ticksDropped prom.Counter
	outcomes     *prom.CounterVec
	queued       prom.Gauge
	inFlight     prom.Gauge
	duration     prom.Observer
}

var _ taskpool.MetricsPolicy = (*Exporter)(nil)

// NewExporter creates and registers the collectors. Collectors already
// present in reg are reused, so two exporters for the same pool share
// their series.
func NewExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*Exporter, error) {
	if namespace == "" {
		namespace = "taskpool"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	pool := opts.Pool
	if pool == "" {
		pool = "default"
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	counter := func(name, help string) (*prom.CounterVec, error) {
		return registerCollector(reg, prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{"pool"}))
	}
	gauge := func(name, help string) (*prom.GaugeVec, error) {
		return registerCollector(reg, prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{"pool"}))
	}

	submitted, err := counter("tasks_submitted_total", "Total number of tasks accepted by the pool.")
	if err != nil {
		return nil, err
	}
	rejected, err := counter("tasks_rejected_total", "Total number of refused submissions.")
	if err != nil {
		return nil, err
	}
	retried, err := counter("task_retries_total", "Total number of task retries.")
	if err != nil {
		return nil, err
	}
	dropped, err := counter("scheduler_ticks_dropped_total", "Total number of scheduler ticks dropped on a full queue.")
	if err != nil {
		return nil, err
	}
	outcomes, err := registerCollector(reg, prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_outcomes_total",
		Help:      "Total number of terminal task outcomes by kind.",
	}, []string{"pool", "outcome"}))
	if err != nil {
		return nil, err
	}
	queued, err := gauge("queue_depth", "Current number of queued tasks.")
	if err != nil {
		return nil, err
	}
	inFlight, err := gauge("tasks_in_flight", "Current number of executing handlers.")
	if err != nil {
		return nil, err
	}
	duration, err := registerCollector(reg, prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Time from submission to terminal outcome in seconds.",
		Buckets:   buckets,
	}, []string{"pool"}))
	if err != nil {
		return nil, err
	}

	return &Exporter{
		submitted:    submitted.WithLabelValues(pool),
		rejected:     rejected.WithLabelValues(pool),
		retried:      retried.WithLabelValues(pool),
		ticksDropped: dropped.WithLabelValues(pool),
		outcomes:     outcomes.MustCurryWith(prom.Labels{"pool": pool}),
		queued:       queued.WithLabelValues(pool),
		inFlight:     inFlight.WithLabelValues(pool),
		duration:     duration.WithLabelValues(pool),
	}, nil
}

func (e *Exporter) IncSubmitted()   { e.submitted.Inc() }
func (e *Exporter) IncRejected()    { e.rejected.Inc() }
func (e *Exporter) IncRetried()     { e.retried.Inc() }
func (e *Exporter) IncTickDropped() { e.ticksDropped.Inc() }

func (e *Exporter) IncOutcome(kind taskpool.OutcomeKind) {
	e.outcomes.WithLabelValues(kind.String()).Inc()
}

func (e *Exporter) ObserveDuration(d time.Duration) { e.duration.Observe(d.Seconds()) }
func (e *Exporter) SetQueued(n int)                 { e.queued.Set(float64(n)) }
func (e *Exporter) SetInFlight(n int)               { e.inFlight.Set(float64(n)) }

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
