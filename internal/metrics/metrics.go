// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the sync and ingestion pipeline:
// - Sync runs and per-item outcomes
// - Provider (intervals.icu) call latency and outcomes
// - Ingestion sub-task outcomes
// - Status store operations
// - Per-user sync rate limiting
// - Circuit breaker state
// - HTTP API latency

var (
	// Sync Metrics

	// SyncRequestsTotal counts sync lifecycle events. The user id is
	// deliberately not a label to keep cardinality bounded.
	SyncRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stridesync_sync_requests_total",
			Help: "Total sync requests by lifecycle status",
		},
		[]string{"status"}, // "started", "completed", "failed", "rejected"
	)

	ActiveSyncs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stridesync_active_syncs",
			Help: "Number of sync runs currently in progress",
		},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stridesync_sync_duration_seconds",
			Help:    "Duration of complete sync runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	SyncItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stridesync_sync_items_total",
			Help: "Items processed by sync runs",
		},
		[]string{"kind", "outcome"}, // kind: activity|gear, outcome: success|failure
	)

	// Provider Metrics

	ActivityProcessingSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stridesync_activity_processing_seconds",
			Help:    "Time spent in provider operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "fetch_activities", "fetch_gear", "fetch_fit_file"
	)

	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stridesync_provider_requests_total",
			Help: "Provider HTTP attempts by outcome",
		},
		[]string{"operation", "outcome"}, // outcome: success|transient|permanent
	)

	ProviderRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stridesync_provider_retries_total",
			Help: "Retries performed against the provider",
		},
		[]string{"operation"},
	)

	// Ingestion Metrics

	IngestTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stridesync_ingest_tasks_total",
			Help: "Ingestion sub-task executions by outcome",
		},
		[]string{"task", "outcome"},
	)

	IngestTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stridesync_ingest_task_duration_seconds",
			Help:    "Duration of ingestion sub-tasks",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	IngestSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stridesync_ingest_submissions_total",
			Help: "Items submitted to the ingestion coordinator",
		},
		[]string{"result"}, // "accepted", "invalid", "error"
	)

	IngestInFlightTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stridesync_ingest_inflight_tasks",
			Help: "Ingestion sub-tasks currently running",
		},
	)

	// Status Store Metrics

	StatusStoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stridesync_status_store_operations_total",
			Help: "Status store operations by result",
		},
		[]string{"operation", "result"}, // result: ok|conflict|error
	)

	StatusStoreCASRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stridesync_status_store_cas_retries_total",
			Help: "Compare-and-swap retries caused by version conflicts",
		},
	)

	// Rate Limit Metrics

	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stridesync_rate_limit_rejections_total",
			Help: "Sync triggers rejected by the per-user rate limiter",
		},
	)

	RateLimitStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stridesync_rate_limit_store_errors_total",
			Help: "Rate limiter store failures by applied policy",
		},
		[]string{"policy"}, // "fail_closed", "fail_open"
	)

	// Circuit Breaker Metrics

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stridesync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stridesync_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stridesync_circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Event Metrics

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stridesync_events_published_total",
			Help: "Pipeline events published by topic and result",
		},
		[]string{"topic", "result"},
	)

	// API Metrics

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stridesync_api_requests_total",
			Help: "HTTP API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stridesync_api_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordSyncStarted marks a run as started and raises the active gauge.
func RecordSyncStarted() {
	SyncRequestsTotal.WithLabelValues("started").Inc()
	ActiveSyncs.Inc()
}

// RecordSyncFinished records a run's terminal outcome and lowers the active gauge.
func RecordSyncFinished(duration time.Duration, failed bool) {
	status := "completed"
	if failed {
		status = "failed"
	}
	SyncRequestsTotal.WithLabelValues(status).Inc()
	SyncDuration.Observe(duration.Seconds())
	ActiveSyncs.Dec()
}

// RecordSyncRejected records a trigger refused before a run started.
func RecordSyncRejected() {
	SyncRequestsTotal.WithLabelValues("rejected").Inc()
}

// RecordSyncItem records one item's outcome within a run.
func RecordSyncItem(kind string, ok bool) {
	SyncItemsTotal.WithLabelValues(kind, outcome(ok)).Inc()
}

// RecordProviderCall records one provider HTTP attempt.
func RecordProviderCall(operation, result string, duration time.Duration) {
	ProviderRequestsTotal.WithLabelValues(operation, result).Inc()
	ActivityProcessingSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordProviderRetry records a retry against the provider.
func RecordProviderRetry(operation string) {
	ProviderRetriesTotal.WithLabelValues(operation).Inc()
}

// RecordIngestTask records a finished ingestion sub-task.
func RecordIngestTask(task string, duration time.Duration, err error) {
	IngestTasksTotal.WithLabelValues(task, outcome(err == nil)).Inc()
	IngestTaskDuration.WithLabelValues(task).Observe(duration.Seconds())
}

// RecordIngestSubmission records the acceptance result of a submitted item.
func RecordIngestSubmission(result string) {
	IngestSubmissionsTotal.WithLabelValues(result).Inc()
}

// RecordStatusStoreOp records a status store operation result.
func RecordStatusStoreOp(operation, result string) {
	StatusStoreOperations.WithLabelValues(operation, result).Inc()
}

// RecordRateLimitRejection records a rejected sync trigger.
func RecordRateLimitRejection() {
	RateLimitRejections.Inc()
}

// RecordRateLimitStoreError records a limiter store failure and the policy applied.
func RecordRateLimitStoreError(failOpen bool) {
	policy := "fail_closed"
	if failOpen {
		policy = "fail_open"
	}
	RateLimitStoreErrors.WithLabelValues(policy).Inc()
}

// RecordEventPublished records a publish attempt.
func RecordEventPublished(topic string, err error) {
	EventsPublished.WithLabelValues(topic, outcome(err == nil)).Inc()
}

// RecordAPIRequest records an API request.
func RecordAPIRequest(method, route, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
