// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Mutation Log Metrics
	QueueItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_queue_items",
			Help: "Current number of mutation log items by kind and lifecycle state",
		},
		[]string{"kind", "state"},
	)

	QueueEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_queue_enqueued_total",
			Help: "Total number of writes appended to the mutation log",
		},
		[]string{"kind", "action"},
	)

	QueuePurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_queue_purged_total",
			Help: "Total number of synced items removed by compaction",
		},
	)

	// Reconciliation Metrics
	SyncPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_pass_duration_seconds",
			Help:    "Duration of reconciliation passes in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
	)

	SyncPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_passes_total",
			Help: "Total number of reconciliation passes",
		},
		[]string{"trigger", "outcome"}, // outcome: "clean", "partial", "skipped", "error"
	)

	SyncItemOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_item_outcomes_total",
			Help: "Total number of replayed items by kind and result",
		},
		[]string{"kind", "result"}, // result: "synced", "failed", "conflict"
	)

	SyncInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_pass_in_flight",
			Help: "1 while a reconciliation pass is running",
		},
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_last_success_timestamp",
			Help: "Unix timestamp of the last pass with no failed items",
		},
	)

	// Response Cache Metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "response_cache_hits_total",
			Help: "Total number of fresh cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "response_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	CacheFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "response_cache_fallbacks_total",
			Help: "Total number of reads answered from cache because the network was unavailable",
		},
		[]string{"resource", "freshness"}, // freshness: "fresh", "stale"
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "response_cache_evictions_total",
			Help: "Total number of entries evicted by size bound or purge",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "response_cache_entries",
			Help: "Current number of cached responses",
		},
	)

	// Connectivity Metrics
	ConnectivityOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "connectivity_online",
			Help: "1 when the remote service is considered reachable",
		},
	)

	ConnectivityTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connectivity_transitions_total",
			Help: "Total number of connectivity edges",
		},
		[]string{"to"},
	)

	// Remote Service Metrics
	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remote_request_duration_seconds",
			Help:    "Latency of calls to the remote records service",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"resource", "method", "outcome"}, // outcome: "ok", "rejected", "transient"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Local Store Metrics
	StoreDBSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_db_size_bytes",
			Help: "Estimated size of the local BadgerDB store (LSM + value log)",
		},
	)

	StoreGCRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "store_gc_runs_total",
			Help: "Total number of value log garbage collection runs",
		},
	)

	// HTTP API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of local API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Local API request latency in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"method", "endpoint"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Current number of connected event stream clients",
		},
	)

	WSMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of events broadcast to clients",
		},
		[]string{"type"},
	)

	WSDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_dropped_total",
			Help: "Total number of events dropped because the broadcast buffer was full",
		},
	)
)

// RecordSyncPass records the outcome of a reconciliation pass.
func RecordSyncPass(trigger string, duration time.Duration, synced, failed int, err error) {
	outcome := "clean"
	switch {
	case err != nil:
		outcome = "error"
	case failed > 0:
		outcome = "partial"
	}
	SyncPasses.WithLabelValues(trigger, outcome).Inc()
	SyncPassDuration.Observe(duration.Seconds())
	if err == nil && failed == 0 {
		SyncLastSuccess.Set(float64(time.Now().Unix()))
	}
}

// RecordSyncSkipped records a trigger that found a pass already running.
func RecordSyncSkipped(trigger string) {
	SyncPasses.WithLabelValues(trigger, "skipped").Inc()
}

// RecordItemOutcome records the result of replaying one queued item.
func RecordItemOutcome(kind, result string) {
	SyncItemOutcomes.WithLabelValues(kind, result).Inc()
}

// RecordRemoteRequest records one call to the remote service.
func RecordRemoteRequest(resource, method, outcome string, duration time.Duration) {
	RemoteRequestDuration.WithLabelValues(resource, method, outcome).Observe(duration.Seconds())
}

// RecordConnectivity updates the connectivity gauge and edge counter.
func RecordConnectivity(online bool) {
	if online {
		ConnectivityOnline.Set(1)
		ConnectivityTransitions.WithLabelValues("online").Inc()
		return
	}
	ConnectivityOnline.Set(0)
	ConnectivityTransitions.WithLabelValues("offline").Inc()
}

// UpdateQueueGauges replaces the per-kind, per-state queue gauges.
func UpdateQueueGauges(counts map[string]map[string]int) {
	for kind, states := range counts {
		for state, n := range states {
			QueueItems.WithLabelValues(kind, state).Set(float64(n))
		}
	}
}

// RecordAPIRequest records a local API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
