// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package api

import (
	"net/http"
	"time"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version,omitempty"`
	Online        bool      `json:"online"`
	LastChange    time.Time `json:"connectivity_changed_at"`
	Breaker       string    `json:"circuit_breaker,omitempty"`
	Syncing       string    `json:"reconciler"`
	Pending       int       `json:"pending"`
	Failed        int       `json:"failed"`
	WSClients     int       `json:"websocket_clients"`
	UptimeSeconds float64   `json:"uptime_seconds"`
}

// Health reports liveness plus the agent's view of the remote service. Being
// offline is a normal state for this agent, so it never makes the check
// fail; only an unreadable local store does.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}

	resp := HealthResponse{
		Status:        "ok",
		Version:       h.version,
		Online:        h.conn.IsOnline(),
		LastChange:    h.conn.LastChange().UTC(),
		Syncing:       string(h.syncer.Report().Status),
		Pending:       stats.Pending,
		Failed:        stats.Failed,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}
	if h.breaker != nil {
		resp.Breaker = h.breaker.BreakerState()
	}
	if h.hub != nil {
		resp.WSClients = h.hub.ClientCount()
	}
	if !resp.Online {
		resp.Status = "degraded"
	}
	respondData(w, http.StatusOK, resp, nil)
}

// HealthLive always succeeds while the process serves HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]string{"status": "alive"}, nil)
}
