// Package metrics exposes Prometheus collectors for request execution.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors registered on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	executionsTotal      *prometheus.CounterVec
	executionDuration    *prometheus.HistogramVec
	offloadsTotal        *prometheus.CounterVec
	transitionsTotal     *prometheus.CounterVec
	destructiveSubmitted *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		executionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "querygate_executions_total",
				Help: "Total number of dispatched executions",
			},
			[]string{"executor", "outcome"},
		),
		executionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "querygate_execution_duration_seconds",
				Help:    "Execution duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"executor"},
		),
		offloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "querygate_result_offloads_total",
				Help: "Total number of oversized results offloaded to storage",
			},
			[]string{"outcome"},
		),
		transitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "querygate_request_transitions_total",
				Help: "Total number of request status transitions",
			},
			[]string{"status"},
		),
		destructiveSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "querygate_destructive_submissions_total",
				Help: "Total number of submissions flagged as destructive",
			},
			[]string{"database_kind"},
		),
	}
}

func outcome(success bool) string {
	if success {
		return "success"
	}

	return "failure"
}

// ObserveExecution records one dispatch.
func (m *Metrics) ObserveExecution(executor string, success bool, duration time.Duration) {
	m.executionsTotal.WithLabelValues(executor, outcome(success)).Inc()
	m.executionDuration.WithLabelValues(executor).Observe(duration.Seconds())
}

// ObserveOffload records one offload attempt.
func (m *Metrics) ObserveOffload(success bool) {
	m.offloadsTotal.WithLabelValues(outcome(success)).Inc()
}

// ObserveTransition records a request entering status.
func (m *Metrics) ObserveTransition(status string) {
	m.transitionsTotal.WithLabelValues(status).Inc()
}

// ObserveDestructive records a submission flagged by the screen.
func (m *Metrics) ObserveDestructive(databaseKind string) {
	m.destructiveSubmitted.WithLabelValues(databaseKind).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
