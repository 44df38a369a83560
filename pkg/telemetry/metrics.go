package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "convoy"

// Metrics holds the Prometheus collectors of one orchestrator. Each instance
// owns its registry so several orchestrators (and tests) can coexist.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	actions        *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	sessionsOpened *prometheus.CounterVec
	sessionsClosed prometheus.Counter
	runs           *prometheus.CounterVec
	batchTimeouts  prometheus.Counter
}

// NewMetrics creates and registers the orchestrator collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Actions executed, by kind and outcome (ok or the error kind).",
		}, []string{"kind", "outcome"}),
		actionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Wall-clock duration of executed actions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"kind"}),
		sessionsOpened: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Session open attempts, by result.",
		}, []string{"result"}),
		sessionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Sessions destroyed by the registry.",
		}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Automation requests run, by coordination policy.",
		}, []string{"coordination"}),
		batchTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_timeouts_total",
			Help:      "Automation requests that exhausted their time budget.",
		}),
	}
}

// RecordAction records one executed action. outcome is "ok" or the error kind.
func (m *Metrics) RecordAction(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(kind, outcome).Inc()
	m.actionDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordSessionOpen records a session open attempt.
func (m *Metrics) RecordSessionOpen(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.sessionsOpened.WithLabelValues(result).Inc()
}

// RecordSessionClose records a destroyed session.
func (m *Metrics) RecordSessionClose() {
	if m == nil {
		return
	}
	m.sessionsClosed.Inc()
}

// RecordRun records a finished request.
func (m *Metrics) RecordRun(coordination string, timedOut bool) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(coordination).Inc()
	if timedOut {
		m.batchTimeouts.Inc()
	}
}

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes all metrics in the Prometheus text format to path.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return fmt.Errorf("metrics not enabled")
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
