// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/gradesync/internal/models"
	"github.com/tomtom215/gradesync/internal/reconciler"
	"github.com/tomtom215/gradesync/internal/store"
)

// Preload warms the local store with a teacher's reference data. Failures of
// individual collections are reported in the body, never as an error status.
func (h *Handler) Preload(w http.ResponseWriter, r *http.Request) {
	teacherID := r.URL.Query().Get("teacher_id")
	if teacherID == "" {
		respondBadRequest(w, "teacher_id is required")
		return
	}
	report := h.records.PreloadData(r.Context(), teacherID)
	respondData(w, http.StatusOK, report, nil)
}

// SyncStatusResponse is the body of GET /sync/status.
type SyncStatusResponse struct {
	Online bool `json:"online"`
	reconciler.StatusReport
	Queue store.QueueStats `json:"queue"`
}

// SyncStatus reports the reconciler state, connectivity and queue counts.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, http.StatusOK, SyncStatusResponse{
		Online:       h.conn.IsOnline(),
		StatusReport: h.syncer.Report(),
		Queue:        stats,
	}, nil)
}

// SyncRun runs a reconciliation pass and returns its result. A pass that was
// already running yields a skipped result.
func (h *Handler) SyncRun(w http.ResponseWriter, r *http.Request) {
	res, err := h.syncer.Sync(r.Context())
	respondPass(w, r, res, err)
}

// SyncRetry moves every failed item back to pending and runs a pass.
func (h *Handler) SyncRetry(w http.ResponseWriter, r *http.Request) {
	res, err := h.syncer.RetryFailed(r.Context())
	respondPass(w, r, res, err)
}

func respondPass(w http.ResponseWriter, r *http.Request, res *reconciler.Result, err error) {
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, http.StatusOK, res, nil)
}

// QueueRequest holds the GET /queue filters.
type QueueRequest struct {
	Kind  string `json:"kind" validate:"omitempty,oneof=grade attendance evaluation student"`
	State string `json:"state" validate:"omitempty,oneof=pending syncing synced failed"`
	Limit int    `json:"limit" validate:"gte=0,lte=1000"`
}

// QueueList lists queued items, oldest first within a kind, filtered by
// ?kind= and ?state=.
func (h *Handler) QueueList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := QueueRequest{
		Kind:  q.Get("kind"),
		State: q.Get("state"),
		Limit: 200,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondBadRequest(w, "limit must be an integer")
			return
		}
		req.Limit = n
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr)
		return
	}

	var states []models.LifecycleState
	if req.State != "" {
		states = append(states, models.LifecycleState(req.State))
	}
	items, err := h.queue.List(r.Context(), models.EntityKind(req.Kind), states...)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if req.Limit > 0 && len(items) > req.Limit {
		items = items[:req.Limit]
	}
	if items == nil {
		items = []*models.QueueItem{}
	}
	respondData(w, http.StatusOK, items, nil)
}

// QueueItem returns one queued item by ID.
func (h *Handler) QueueItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.queue.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, http.StatusOK, item, nil)
}
