// Package jobmetrics instruments the mail worker.
package jobmetrics

import (
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Job run statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	// StatusDropped marks runs that returned asynq.SkipRetry.
	StatusDropped = "dropped"
)

// Metrics holds the worker collectors.
type Metrics struct {
	runs       *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	deliveries *prometheus.CounterVec
	purged     prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors on registerer. A nil registerer shares a
// single set registered on prometheus.DefaultRegisterer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = register(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return register(registerer)
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_worker_runs_total",
			Help: "Task executions by task type and status.",
		}, []string{"task", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_worker_run_duration_seconds",
			Help:    "Task execution time, including the SMTP round trip for mail tasks.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"task"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_mail_deliveries_total",
			Help: "Transactional emails processed by the worker grouped by outcome.",
		}, []string{"outcome"}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_worker_archived_purged_total",
			Help: "Archived tasks removed by the janitor.",
		}),
	}
	registerer.MustRegister(m.runs, m.duration, m.deliveries, m.purged)
	return m
}

// Tracker times one task run.
type Tracker struct {
	metrics *Metrics
	task    string
	start   time.Time
}

// Track starts timing a run of task.
func (m *Metrics) Track(task string) *Tracker {
	return &Tracker{metrics: m, task: task, start: time.Now()}
}

// End records the run status and duration and returns err unchanged.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.task == "" {
		return err
	}
	t.metrics.runs.WithLabelValues(t.task, runStatus(err)).Inc()
	t.metrics.duration.WithLabelValues(t.task).Observe(time.Since(t.start).Seconds())
	return err
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, asynq.SkipRetry):
		return StatusDropped
	default:
		return StatusFailure
	}
}

// AddDelivery counts one email handed to the relay, labelled sent, failed or
// dropped (undecodable payload).
func (m *Metrics) AddDelivery(outcome string) {
	if m == nil || outcome == "" {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}

// AddPurged counts archived tasks deleted by the janitor.
func (m *Metrics) AddPurged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.Add(float64(n))
}
