// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package reconciler

import (
	"time"

	"github.com/tomtom215/gradesync/internal/models"
)

// KindResult counts the outcomes of one kind in a pass.
type KindResult struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// ItemError pairs a failed item with the reason it failed.
type ItemError struct {
	Item  *models.QueueItem `json:"item"`
	Err   error             `json:"-"`
	Error string            `json:"error"`
}

func newItemError(item *models.QueueItem, err error) ItemError {
	return ItemError{Item: item, Err: err, Error: err.Error()}
}

// Result aggregates one pass. A skipped pass has Skipped set and all counts
// zero.
type Result struct {
	Synced    int                              `json:"synced"`
	Failed    int                              `json:"failed"`
	Errors    []ItemError                      `json:"errors"`
	ByKind    map[models.EntityKind]KindResult `json:"by_kind"`
	StartedAt time.Time                        `json:"started_at"`
	Duration  time.Duration                    `json:"duration"`
	Skipped   bool                             `json:"skipped,omitempty"`
}

func newResult(started time.Time) *Result {
	return &Result{
		Errors:    []ItemError{},
		ByKind:    make(map[models.EntityKind]KindResult),
		StartedAt: started,
	}
}

func skippedResult() *Result {
	r := newResult(time.Now())
	r.Skipped = true
	return r
}

func (r *Result) add(kind models.EntityKind, kr KindResult, errs []ItemError) {
	r.ByKind[kind] = kr
	r.Synced += kr.Synced
	r.Failed += kr.Failed
	r.Errors = append(r.Errors, errs...)
}

// Summary is the sync_completed event payload.
type Summary struct {
	Trigger    string                           `json:"trigger"`
	Synced     int                              `json:"synced"`
	Failed     int                              `json:"failed"`
	ByKind     map[models.EntityKind]KindResult `json:"by_kind"`
	DurationMs int64                            `json:"duration_ms"`
	Timestamp  string                           `json:"timestamp"`
}

// Summary returns the event payload for the pass.
func (r *Result) Summary(trigger string) Summary {
	byKind := make(map[models.EntityKind]KindResult, len(r.ByKind))
	for k, v := range r.ByKind {
		byKind[k] = v
	}
	return Summary{
		Trigger:    trigger,
		Synced:     r.Synced,
		Failed:     r.Failed,
		ByKind:     byKind,
		DurationMs: r.Duration.Milliseconds(),
		Timestamp:  r.StartedAt.Add(r.Duration).UTC().Format(time.RFC3339),
	}
}
