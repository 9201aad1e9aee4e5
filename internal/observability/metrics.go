// Package observability exposes Prometheus metrics for the command
// pipeline. Collectors are registered on the default registry at init
// and served from the /metrics endpoint.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fintrack",
		Subsystem: "pipeline",
		Name:      "requests_total",
		Help:      "Messages handled, labeled by classified intent.",
	}, []string{"intent"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fintrack",
		Subsystem: "pipeline",
		Name:      "request_duration_seconds",
		Help:      "End-to-end pipeline latency, labeled by outcome.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"outcome"})

	synthesisFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fintrack",
		Subsystem: "pipeline",
		Name:      "synthesis_failures_total",
		Help:      "Candidate operations rejected before validation.",
	})

	validationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fintrack",
		Subsystem: "pipeline",
		Name:      "validation_failures_total",
		Help:      "Operations rejected by the validator, labeled by rule.",
	}, []string{"rule"})

	executionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fintrack",
		Subsystem: "pipeline",
		Name:      "execution_failures_total",
		Help:      "Storage failures, labeled by cause.",
	}, []string{"cause"})

	executorRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fintrack",
		Subsystem: "pipeline",
		Name:      "executor_retries_total",
		Help:      "Transient storage failures that triggered a retry.",
	})
)

func init() {
	prometheus.MustRegister(
		requestsTotal,
		requestDuration,
		synthesisFailures,
		validationFailures,
		executionFailures,
		executorRetries,
	)
}

// RecordRequest counts one handled message under its classified intent.
func RecordRequest(intent string) {
	requestsTotal.WithLabelValues(intent).Inc()
}

// ObserveDuration records end-to-end latency for one message.
func ObserveDuration(outcome string, elapsed time.Duration) {
	requestDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// RecordSynthesisFailure counts a rejected translator proposal.
func RecordSynthesisFailure() {
	synthesisFailures.Inc()
}

// RecordValidationFailure counts a validator rejection under its rule.
func RecordValidationFailure(rule string) {
	validationFailures.WithLabelValues(rule).Inc()
}

// RecordExecutionFailure counts a storage failure under its cause.
func RecordExecutionFailure(cause string) {
	executionFailures.WithLabelValues(cause).Inc()
}

// RecordExecutorRetry counts one transient retry.
func RecordExecutorRetry() {
	executorRetries.Inc()
}
