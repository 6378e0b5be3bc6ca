// Package metrics registers the ledger's Prometheus collectors on the default registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Service operation metrics
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trust_ledger_operations_total",
		Help: "Total number of ledger operations by outcome",
	}, []string{"operation", "outcome"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trust_ledger_operation_duration_seconds",
		Help:    "Duration of ledger operations",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"operation"})

	// Domain metrics
	ledgerEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trust_ledger_entries_appended_total",
		Help: "Total number of insight entries appended to the ledger",
	})

	registrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trust_ledger_registrations_total",
		Help: "Total number of attestation registrations",
	}, []string{"status"})

	trustScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trust_ledger_trust_score",
		Help:    "Distribution of computed trust scores",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})

	lifecycleWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trust_ledger_lifecycle_out_of_order_total",
		Help: "Lifecycle events appended out of canonical order",
	}, []string{"event_type"})

	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trust_ledger_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trust_ledger_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// ObserveOperation records one service call. outcome is an apperr kind ("ok", "not_found", ...).
func ObserveOperation(operation, outcome string, elapsed time.Duration) {
	operationsTotal.WithLabelValues(operation, outcome).Inc()
	operationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordLedgerEntries counts appended insight entries.
func RecordLedgerEntries(n int) {
	ledgerEntriesTotal.Add(float64(n))
}

// RecordRegistration counts an attestation attempt.
func RecordRegistration(ok bool) {
	status := "registered"
	if !ok {
		status = "failed"
	}
	registrationsTotal.WithLabelValues(status).Inc()
}

// ObserveTrustScore records a freshly computed trust score.
func ObserveTrustScore(score float64) {
	trustScore.Observe(score)
}

// RecordLifecycleWarning counts an out-of-order lifecycle append.
func RecordLifecycleWarning(eventType string) {
	lifecycleWarnings.WithLabelValues(eventType).Inc()
}

// ObserveHTTPRequest records one served request. path should be the route template.
func ObserveHTTPRequest(method, path string, status int, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, statusLabel(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
