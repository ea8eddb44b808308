// Package metrics provides Prometheus metrics for the bmcc service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PingsIngested tracks stored pings by backend kind and outcome
	// (created, duplicate).
	PingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bmcc",
			Subsystem: "tracking",
			Name:      "pings_total",
			Help:      "Total number of ingested pings by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)

	// IngestErrors tracks rejected or failed reports by backend and reason.
	IngestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bmcc",
			Subsystem: "tracking",
			Name:      "ingest_errors_total",
			Help:      "Total number of rejected or failed telemetry reports",
		},
		[]string{"backend", "reason"},
	)

	// SpotPollDuration tracks the duration of one SPOT feed poll.
	SpotPollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bmcc",
			Subsystem: "spot",
			Name:      "poll_duration_seconds",
			Help:      "Duration of SPOT feed polls in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// PredictionRequests tracks calls to the prediction service by outcome.
	PredictionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bmcc",
			Subsystem: "prediction",
			Name:      "requests_total",
			Help:      "Total number of prediction service calls by outcome",
		},
		[]string{"outcome"},
	)

	// PredictionDuration tracks prediction service latency.
	PredictionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bmcc",
			Subsystem: "prediction",
			Name:      "request_duration_seconds",
			Help:      "Duration of prediction service calls in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
	)

	// PredictionBreakerState is 0 closed, 1 half-open, 2 open.
	PredictionBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bmcc",
			Subsystem: "prediction",
			Name:      "breaker_state",
			Help:      "Prediction service circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)

	// QueueJobsProcessed tracks jobs processed from the queue.
	QueueJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bmcc",
			Subsystem: "queue",
			Name:      "jobs_processed_total",
			Help:      "Total number of jobs processed from the queue",
		},
		[]string{"type", "status"},
	)

	// QueueJobsInFlight tracks jobs currently being processed.
	QueueJobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bmcc",
			Subsystem: "queue",
			Name:      "jobs_in_flight",
			Help:      "Number of jobs currently being processed",
		},
	)

	// DLQJobsTotal tracks jobs that exhausted their retries.
	DLQJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bmcc",
			Subsystem: "dlq",
			Name:      "jobs_total",
			Help:      "Total number of jobs sent to the dead letter queue",
		},
		[]string{"type"},
	)

	// CronRuns tracks scheduled job triggers by name and status.
	CronRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bmcc",
			Subsystem: "cron",
			Name:      "runs_total",
			Help:      "Total number of scheduled job runs",
		},
		[]string{"job", "status"},
	)
)
