// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

/*
Package metrics provides Prometheus metrics for the sync agent.

All collectors are registered with the default registry through promauto and
exposed by the local API at /metrics:

	curl http://127.0.0.1:8737/metrics

# Available Metrics

Mutation Log:
  - sync_queue_items: items by kind and state (gauge)
  - sync_queue_enqueued_total: writes appended (counter)
    Labels: kind, action
  - sync_queue_purged_total: synced items removed by compaction (counter)

Reconciliation:
  - sync_pass_duration_seconds: pass latency (histogram)
  - sync_passes_total: passes by trigger and outcome (counter)
    Outcomes: clean, partial, skipped, error
  - sync_item_outcomes_total: replayed items by kind and result (counter)
  - sync_pass_in_flight: 1 while a pass runs (gauge)
  - sync_last_success_timestamp: last pass with no failures (gauge)

Response Cache:
  - response_cache_hits_total, response_cache_misses_total
  - response_cache_fallbacks_total: reads served from cache while the
    network was unavailable. Labels: resource, freshness
  - response_cache_evictions_total, response_cache_entries

Connectivity and Remote Service:
  - connectivity_online, connectivity_transitions_total
  - remote_request_duration_seconds. Labels: resource, method, outcome
  - circuit_breaker_state (0=closed, 1=half-open, 2=open)
  - circuit_breaker_requests_total, circuit_breaker_consecutive_failures,
    circuit_breaker_state_transitions_total

Local Store, API and Event Stream:
  - store_db_size_bytes, store_gc_runs_total
  - api_requests_total, api_request_duration_seconds
  - websocket_connections_active, websocket_messages_sent_total,
    websocket_messages_dropped_total

# Example Alerts

  - alert: SyncBacklogGrowing
    expr: sum(sync_queue_items{state="pending"}) > 200
    for: 1h

  - alert: ItemsStuckFailed
    expr: sum(sync_queue_items{state="failed"}) > 0
    for: 24h
*/
package metrics
