// Package metrics defines the Prometheus collectors exported by coachhub.
//
// Every method is safe on a nil *Metrics so components can run without
// instrumentation in tests and tools.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coachhub"

// Metrics holds the application's collectors.
type Metrics struct {
	RelationshipTransitions *prometheus.CounterVec
	RelationshipsByStatus   *prometheus.GaugeVec

	AuditEntries       *prometheus.CounterVec
	AuditWriteFailures prometheus.Counter
	MassDeleteDetected prometheus.Counter
	IntegrityFailures  prometheus.Counter

	Notifications *prometheus.CounterVec

	JobRuns     *prometheus.CounterVec
	JobErrors   *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RelationshipTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relationship_transitions_total",
				Help:      "Total number of committed relationship status transitions",
			},
			[]string{"from", "to"},
		),
		RelationshipsByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "relationships",
				Help:      "Number of relationships by status, sampled by the integrity sweep",
			},
			[]string{"status"},
		),
		AuditEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_entries_total",
				Help:      "Total number of audit entries recorded",
			},
			[]string{"operation", "severity"},
		),
		AuditWriteFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_write_failures_total",
				Help:      "Total number of audit entries that could not be persisted",
			},
		),
		MassDeleteDetected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mass_delete_detected_total",
				Help:      "Total number of mass-delete detections",
			},
		),
		IntegrityFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "integrity_check_failures_total",
				Help:      "Total number of integrity check failures",
			},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Total number of notifications by kind and result",
			},
			[]string{"kind", "result"},
		),
		JobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_runs_total",
				Help:      "Total number of background job runs",
			},
			[]string{"job_name"},
		),
		JobErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_errors_total",
				Help:      "Total number of background job errors",
			},
			[]string{"job_name"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_run_duration_seconds",
				Help:      "Duration of background job runs in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
			},
			[]string{"job_name"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.RelationshipTransitions,
			m.RelationshipsByStatus,
			m.AuditEntries,
			m.AuditWriteFailures,
			m.MassDeleteDetected,
			m.IntegrityFailures,
			m.Notifications,
			m.JobRuns,
			m.JobErrors,
			m.JobDuration,
		)
	}
	return m
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveTransition counts one committed status transition.
func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	if from == "" {
		from = "none"
	}
	m.RelationshipTransitions.WithLabelValues(from, to).Inc()
}

// SetStatusCounts replaces the per-status gauge values.
func (m *Metrics) SetStatusCounts(counts map[string]int64) {
	if m == nil {
		return
	}
	m.RelationshipsByStatus.Reset()
	for status, n := range counts {
		m.RelationshipsByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// ObserveAudit counts one audit entry and, when failed, one write failure.
func (m *Metrics) ObserveAudit(operation, severity string, failed bool) {
	if m == nil {
		return
	}
	m.AuditEntries.WithLabelValues(operation, severity).Inc()
	if failed {
		m.AuditWriteFailures.Inc()
	}
}

// ObserveMassDelete counts one mass-delete detection.
func (m *Metrics) ObserveMassDelete() {
	if m == nil {
		return
	}
	m.MassDeleteDetected.Inc()
}

// ObserveIntegrityFailure counts one integrity check failure.
func (m *Metrics) ObserveIntegrityFailure() {
	if m == nil {
		return
	}
	m.IntegrityFailures.Inc()
}

// ObserveNotification counts one notification outcome
// ("sent", "failed" or "dropped").
func (m *Metrics) ObserveNotification(kind, result string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(kind, result).Inc()
}

// ObserveJob records one background job run.
func (m *Metrics) ObserveJob(name string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.JobRuns.WithLabelValues(name).Inc()
	m.JobDuration.WithLabelValues(name).Observe(took.Seconds())
	if err != nil {
		m.JobErrors.WithLabelValues(name).Inc()
	}
}
