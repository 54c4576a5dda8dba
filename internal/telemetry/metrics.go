// Package telemetry exposes Prometheus collectors for sync and metrics runs.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

const namespace = "devmetrics"

// Metrics holds the sync engine collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	syncRuns           *prometheus.CounterVec
	syncDuration       *prometheus.HistogramVec
	recordsReconciled  *prometheus.CounterVec
	repositoryFailures *prometheus.CounterVec
	fetchRetries       *prometheus.CounterVec
	rateLimited        *prometheus.CounterVec
	metricsRuns        *prometheus.CounterVec
	developersFailed   prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which tests use to avoid global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Sync runs by entry point and outcome.",
		}, []string{"operation", "outcome"}),
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Sync run latency in seconds.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"operation"}),
		recordsReconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "records_reconciled_total",
			Help:      "Records written or skipped by the reconciler.",
		}, []string{"kind", "outcome"}),
		repositoryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "repository_failures_total",
			Help:      "Repositories that failed inside a multi-repository run.",
		}, []string{"phase", "error_kind"}),
		fetchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "retries_total",
			Help:      "Retried external fetch attempts.",
		}, []string{"operation"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "rate_limited_total",
			Help:      "External fetches rejected by a platform rate limit.",
		}, []string{"operation"}),
		metricsRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metrics",
			Name:      "runs_total",
			Help:      "Developer metrics recomputation runs by outcome.",
		}, []string{"outcome"}),
		developersFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metrics",
			Name:      "developer_failures_total",
			Help:      "Developers whose metrics failed to recompute.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.syncRuns, m.syncDuration, m.recordsReconciled, m.repositoryFailures,
			m.fetchRetries, m.rateLimited, m.metricsRuns, m.developersFailed,
		)
	}
	return m
}

// ObserveRetry counts one retried fetch attempt.
func (m *Metrics) ObserveRetry(op string) {
	if m == nil {
		return
	}
	m.fetchRetries.WithLabelValues(op).Inc()
}

// ObserveRateLimit counts one rate-limited fetch.
func (m *Metrics) ObserveRateLimit(op string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(op).Inc()
}

// ObserveSync records a finished sync entry point.
func (m *Metrics) ObserveSync(operation string, res model.SyncResult, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(operation, syncOutcome(res)).Inc()
	m.syncDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveReconcile records the counts of one reconciliation pass.
func (m *Metrics) ObserveReconcile(kind string, c model.ReconcileCounts) {
	if m == nil {
		return
	}
	m.recordsReconciled.WithLabelValues(kind, "added").Add(float64(c.Added))
	m.recordsReconciled.WithLabelValues(kind, "updated").Add(float64(c.Updated))
	m.recordsReconciled.WithLabelValues(kind, "skipped").Add(float64(c.Skipped))
}

// ObserveRepositoryFailure counts one isolated repository failure.
func (m *Metrics) ObserveRepositoryFailure(f model.RepositoryFailure) {
	if m == nil {
		return
	}
	m.repositoryFailures.WithLabelValues(string(f.Phase), string(f.ErrorKind)).Inc()
}

// ObserveMetricsRun records a metrics recomputation over many developers.
func (m *Metrics) ObserveMetricsRun(res model.MetricsRunResult) {
	if m == nil {
		return
	}
	outcome := "success"
	switch {
	case !res.Success:
		outcome = "failed"
	case res.Failed > 0:
		outcome = "partial"
	}
	m.metricsRuns.WithLabelValues(outcome).Inc()
	m.developersFailed.Add(float64(res.Failed))
}

func syncOutcome(res model.SyncResult) string {
	switch {
	case !res.Success:
		return "failed"
	case res.Partial:
		return "partial"
	default:
		return "success"
	}
}
