// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/gradesync/internal/logging"
	"github.com/tomtom215/gradesync/internal/metrics"
	"github.com/tomtom215/gradesync/internal/models"
	"github.com/tomtom215/gradesync/internal/store"
	"github.com/tomtom215/gradesync/internal/validation"
)

// SaveStatus is what happened to a write by the time the call returned.
type SaveStatus string

const (
	// StatusSynced means the remote service confirmed the write.
	StatusSynced SaveStatus = "synced"
	// StatusQueued means the write is durable locally and will sync later.
	StatusQueued SaveStatus = "queued"
)

// SaveResult describes an accepted write. A write that returned a
// SaveResult is never lost.
type SaveResult struct {
	Status   SaveStatus        `json:"status"`
	Item     *models.QueueItem `json:"item"`
	RemoteID string            `json:"remote_id,omitempty"`
}

// SaveGrade creates the grade, or updates it when it already has an ID.
func (s *Service) SaveGrade(ctx context.Context, g *models.Grade) (*SaveResult, error) {
	return s.SaveGradeAction(ctx, actionFor(g.ID), g)
}

// SaveGradeAction queues the given action for g.
func (s *Service) SaveGradeAction(ctx context.Context, action models.Action, g *models.Grade) (*SaveResult, error) {
	return s.save(ctx, action, g)
}

// SaveAttendance creates the attendance summary, or updates it when it
// already has an ID.
func (s *Service) SaveAttendance(ctx context.Context, a *models.Attendance) (*SaveResult, error) {
	return s.save(ctx, actionFor(a.ID), a)
}

// SaveEvaluation creates the evaluation, or updates it when it already has
// an ID.
func (s *Service) SaveEvaluation(ctx context.Context, e *models.Evaluation) (*SaveResult, error) {
	return s.save(ctx, actionFor(e.ID), e)
}

// SaveStudent creates or updates a student record.
func (s *Service) SaveStudent(ctx context.Context, st *models.Student) (*SaveResult, error) {
	return s.save(ctx, actionFor(st.ID), st)
}

func actionFor(id string) models.Action {
	if id == "" {
		return models.ActionCreate
	}
	return models.ActionUpdate
}

// save is the write path: validate, make durable, announce, then try once
// to deliver. Only input and storage errors are returned.
func (s *Service) save(ctx context.Context, action models.Action, record interface{}) (*SaveResult, error) {
	if action != models.ActionDelete {
		if err := validation.Record(record); err != nil {
			return nil, err
		}
	}

	item, err := models.NewQueueItem(action, record)
	if err != nil {
		return nil, err
	}
	kind := item.Kind
	item, err = s.store.AddToSyncQueue(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("queue %s %s: %w", action, kind, err)
	}

	if s.events != nil {
		s.events.BroadcastItemQueued(item)
	}

	if !s.access.IsOnline() {
		logging.Ctx(ctx).Info().
			Str("item_id", item.ID).
			Str("kind", string(item.Kind)).
			Msg("Offline, write will sync later")
		return &SaveResult{Status: StatusQueued, Item: item}, nil
	}
	behind, err := s.queuedAhead(ctx, item)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("item_id", item.ID).Msg("Could not check for older queued writes")
		behind = true
	}
	if behind {
		// Older writes replay first; the reconciler drains oldest first.
		if s.syncer != nil {
			s.syncer.Trigger(context.WithoutCancel(ctx), syncTriggerQueuedWrite)
		}
		logging.Ctx(ctx).Info().
			Str("item_id", item.ID).
			Str("kind", string(item.Kind)).
			Msg("Older writes still queued, write will sync after them")
		return &SaveResult{Status: StatusQueued, Item: item}, nil
	}
	return s.replayNow(ctx, item), nil
}

// syncTriggerQueuedWrite labels passes started for a write that was queued
// behind older ones.
const syncTriggerQueuedWrite = "queued_write"

// queuedAhead reports whether item must wait for older writes: any older
// pending or syncing item of the same kind, or an older failed item for the
// same record.
func (s *Service) queuedAhead(ctx context.Context, item *models.QueueItem) (bool, error) {
	older, err := s.store.List(ctx, item.Kind, models.StatePending, models.StateSyncing, models.StateFailed)
	if err != nil {
		return false, err
	}
	recordID := item.RecordID()
	for _, q := range older {
		if q.Seq >= item.Seq {
			continue
		}
		if q.State != models.StateFailed {
			return true, nil
		}
		if recordID != "" && (q.RecordID() == recordID || q.RemoteID == recordID) {
			return true, nil
		}
	}
	return false, nil
}

// replayNow claims a freshly queued item and sends it. Any failure leaves
// the item pending for the reconciler.
func (s *Service) replayNow(ctx context.Context, item *models.QueueItem) *SaveResult {
	log := logging.Ctx(ctx).With().Str("item_id", item.ID).Str("kind", string(item.Kind)).Logger()
	queued := &SaveResult{Status: StatusQueued, Item: item}

	claimed, err := s.store.Transition(ctx, item.ID, models.StatePending, models.StateSyncing, nil)
	if err != nil {
		// A reconciliation pass got to it first.
		if !errors.Is(err, store.ErrStateConflict) {
			log.Warn().Err(err).Msg("Could not claim item for immediate sync")
		}
		return queued
	}

	// The claimed item must reach a final state even if the caller goes away.
	replayCtx := context.WithoutCancel(ctx)
	remoteID, sendErr := s.access.Replay(replayCtx, claimed)

	if sendErr == nil {
		synced, err := s.store.Transition(replayCtx, item.ID, models.StateSyncing, models.StateSynced, func(q *models.QueueItem) {
			q.AdoptRemoteID(remoteID)
		})
		if err != nil {
			log.Error().Err(err).Msg("Write delivered but sync state not recorded")
			return queued
		}
		metrics.RecordItemOutcome(string(item.Kind), "synced")
		log.Debug().Str("remote_id", synced.RemoteID).Msg("Write synced immediately")
		return &SaveResult{Status: StatusSynced, Item: synced, RemoteID: synced.RemoteID}
	}

	reverted, err := s.store.Transition(replayCtx, item.ID, models.StateSyncing, models.StatePending, func(q *models.QueueItem) {
		q.LastError = sendErr.Error()
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to release item after immediate sync attempt")
		return queued
	}
	metrics.RecordItemOutcome(string(item.Kind), "deferred")
	log.Info().Err(sendErr).Msg("Immediate sync failed, write will sync later")
	queued.Item = reverted
	return queued
}

// Pending returns the queued writes of kind that have not been synced,
// oldest first. An empty kind means all kinds.
func (s *Service) Pending(ctx context.Context, kind models.EntityKind) ([]*models.QueueItem, error) {
	return s.store.List(ctx, kind, models.StatePending, models.StateSyncing, models.StateFailed)
}
