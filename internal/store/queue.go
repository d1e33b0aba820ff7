// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/gradesync/internal/logging"
	"github.com/tomtom215/gradesync/internal/metrics"
	"github.com/tomtom215/gradesync/internal/models"
)

func queueKey(kind models.EntityKind, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixQueue, kind, seq))
}

func queuePrefix(kind models.EntityKind) []byte {
	if kind == "" {
		return []byte(prefixQueue)
	}
	return []byte(prefixQueue + string(kind) + ":")
}

func queueIDKey(id string) []byte {
	return []byte(prefixQueueID + id)
}

func (s *Store) nextSeq() (uint64, error) {
	n, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next queue sequence: %w", err)
	}
	// Badger sequences start at zero; zero is reserved for "unassigned".
	return n + 1, nil
}

// AddToSyncQueue appends a new pending item to the mutation log. ID, Seq and
// timestamps are assigned here. The returned copy is what was persisted.
func (s *Store) AddToSyncQueue(ctx context.Context, item *models.QueueItem) (*models.QueueItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if item == nil {
		return nil, errors.New("nil queue item")
	}
	if err := item.Validate(); err != nil {
		return nil, fmt.Errorf("invalid queue item: %w", err)
	}

	stored := item.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	seq, err := s.nextSeq()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	stored.Seq = seq
	stored.State = models.StatePending
	stored.RetryCount = 0
	stored.LastError = ""
	stored.CreatedAt = now
	stored.UpdatedAt = now

	if err := s.insert(stored); err != nil {
		return nil, err
	}

	metrics.QueueEnqueued.WithLabelValues(string(stored.Kind), string(stored.Action)).Inc()
	logging.Debug().
		Str("item_id", stored.ID).
		Str("kind", string(stored.Kind)).
		Str("action", string(stored.Action)).
		Uint64("seq", stored.Seq).
		Msg("Write queued")
	return stored.Clone(), nil
}

func (s *Store) insert(item *models.QueueItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}
	key := queueKey(item.Kind, item.Seq)

	err = s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get(queueIDKey(item.ID)); err == nil {
			return fmt.Errorf("queue item %s already exists", item.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(queueIDKey(item.ID), key)
	})
	if err != nil {
		return fmt.Errorf("write queue item: %w", err)
	}
	return nil
}

// SaveItem upserts an item by identity. An existing item is overwritten in
// place, keeping its position in the log; an unknown item is appended.
func (s *Store) SaveItem(ctx context.Context, item *models.QueueItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid queue item: %w", err)
	}

	if item.ID == "" {
		_, err := s.AddToSyncQueue(ctx, item)
		return err
	}

	err := s.update(func(txn *badger.Txn) error {
		existing, key, err := getItem(txn, item.ID)
		if err != nil {
			return err
		}
		if existing.Kind != item.Kind {
			return ErrKindChanged
		}

		saved := item.Clone()
		saved.Seq = existing.Seq
		saved.CreatedAt = existing.CreatedAt
		saved.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(saved)
		if err != nil {
			return fmt.Errorf("marshal queue item: %w", err)
		}
		return txn.Set(key, data)
	})
	if errors.Is(err, ErrItemNotFound) {
		stored := item.Clone()
		if stored.Seq == 0 {
			if stored.Seq, err = s.nextSeq(); err != nil {
				return err
			}
		}
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now().UTC()
		}
		stored.UpdatedAt = time.Now().UTC()
		return s.insert(stored)
	}
	return err
}

func getItem(txn *badger.Txn, id string) (*models.QueueItem, []byte, error) {
	idx, err := txn.Get(queueIDKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, ErrItemNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get queue index: %w", err)
	}
	key, err := idx.ValueCopy(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("read queue index: %w", err)
	}

	entry, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, ErrItemNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get queue item: %w", err)
	}

	var item models.QueueItem
	if err := entry.Value(func(val []byte) error {
		return json.Unmarshal(val, &item)
	}); err != nil {
		return nil, nil, fmt.Errorf("unmarshal queue item: %w", err)
	}
	return &item, key, nil
}

// Get returns the item with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*models.QueueItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var item *models.QueueItem
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		item, _, err = getItem(txn, id)
		return err
	})
	return item, err
}

// List returns items of kind (all kinds if empty) whose state is one of
// states (any state if none given), oldest first.
func (s *Store) List(ctx context.Context, kind models.EntityKind, states ...models.LifecycleState) ([]*models.QueueItem, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	want := make(map[models.LifecycleState]bool, len(states))
	for _, st := range states {
		want[st] = true
	}

	items := []*models.QueueItem{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := queuePrefix(kind)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var item models.QueueItem
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("Skipping unreadable queue item")
				continue
			}
			if len(want) > 0 && !want[item.State] {
				continue
			}
			items = append(items, &item)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}

	if kind == "" {
		// Keys group by kind first; callers listing everything expect log order.
		sort.Slice(items, func(i, j int) bool { return items[i].Seq < items[j].Seq })
	}
	return items, nil
}

// GetPending returns the pending items of kind, oldest first.
func (s *Store) GetPending(ctx context.Context, kind models.EntityKind) ([]*models.QueueItem, error) {
	return s.List(ctx, kind, models.StatePending)
}

// Transition atomically moves an item from one state to another. It fails
// with ErrStateConflict if the item is no longer in from, which is how a
// replay claims an item: only one caller wins pending -> syncing. mutate, if
// non-nil, is applied to the item inside the same transaction.
func (s *Store) Transition(ctx context.Context, id string, from, to models.LifecycleState, mutate func(*models.QueueItem)) (*models.QueueItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if !models.CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, to)
	}

	var updated *models.QueueItem
	err := s.update(func(txn *badger.Txn) error {
		item, key, err := getItem(txn, id)
		if err != nil {
			return err
		}
		if item.State != from {
			return fmt.Errorf("%w: %s is %s, expected %s", ErrStateConflict, id, item.State, from)
		}
		if err := item.Transition(to, time.Now().UTC()); err != nil {
			return err
		}
		if mutate != nil {
			mutate(item)
		}

		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal queue item: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// resetWhere moves every item in state from that matches filter to pending.
func (s *Store) resetWhere(ctx context.Context, from models.LifecycleState, filter func(*models.QueueItem) bool) (int, error) {
	items, err := s.List(ctx, "", from)
	if err != nil {
		return 0, err
	}

	reset := 0
	for _, item := range items {
		if filter != nil && !filter(item) {
			continue
		}
		_, err := s.Transition(ctx, item.ID, from, models.StatePending, nil)
		if errors.Is(err, ErrStateConflict) {
			continue
		}
		if err != nil {
			return reset, err
		}
		reset++
	}
	return reset, nil
}

// ResetFailed moves failed items back to pending so the next pass replays
// them. filter selects which failed items to reset; nil resets all of them.
// RetryCount and LastError are kept.
func (s *Store) ResetFailed(ctx context.Context, filter func(*models.QueueItem) bool) (int, error) {
	return s.resetWhere(ctx, models.StateFailed, filter)
}

// RecoverInterrupted returns items left in syncing by a crash or a shutdown
// mid-replay to pending. Only call it when no pass is running.
func (s *Store) RecoverInterrupted(ctx context.Context) (int, error) {
	n, err := s.resetWhere(ctx, models.StateSyncing, nil)
	if n > 0 {
		logging.Warn().Int("items", n).Msg("Recovered items interrupted mid-replay")
	}
	return n, err
}

// EnqueueGrade appends a new grade write to the mutation log.
func (s *Store) EnqueueGrade(ctx context.Context, action models.Action, g *models.Grade) (*models.QueueItem, error) {
	return s.queueRecord(ctx, action, g)
}

// EnqueueAttendance appends a new attendance write.
func (s *Store) EnqueueAttendance(ctx context.Context, action models.Action, a *models.Attendance) (*models.QueueItem, error) {
	return s.queueRecord(ctx, action, a)
}

// EnqueueEvaluation appends a new evaluation write.
func (s *Store) EnqueueEvaluation(ctx context.Context, action models.Action, e *models.Evaluation) (*models.QueueItem, error) {
	return s.queueRecord(ctx, action, e)
}

// EnqueueStudent appends a new student write.
func (s *Store) EnqueueStudent(ctx context.Context, action models.Action, st *models.Student) (*models.QueueItem, error) {
	return s.queueRecord(ctx, action, st)
}

func (s *Store) queueRecord(ctx context.Context, action models.Action, payload interface{}) (*models.QueueItem, error) {
	item, err := models.NewQueueItem(action, payload)
	if err != nil {
		return nil, err
	}
	return s.AddToSyncQueue(ctx, item)
}

// SaveGrade upserts a grade item in the given lifecycle state. An item the
// log already holds is updated in place, so advancing its state never
// creates a second entry.
func (s *Store) SaveGrade(ctx context.Context, item *models.QueueItem, state models.LifecycleState) (*models.QueueItem, error) {
	return s.saveTyped(ctx, models.KindGrade, item, state)
}

// SaveAttendance upserts an attendance item in the given lifecycle state.
func (s *Store) SaveAttendance(ctx context.Context, item *models.QueueItem, state models.LifecycleState) (*models.QueueItem, error) {
	return s.saveTyped(ctx, models.KindAttendance, item, state)
}

// SaveEvaluation upserts an evaluation item in the given lifecycle state.
func (s *Store) SaveEvaluation(ctx context.Context, item *models.QueueItem, state models.LifecycleState) (*models.QueueItem, error) {
	return s.saveTyped(ctx, models.KindEvaluation, item, state)
}

// SaveStudentRecord upserts a student item in the given lifecycle state.
func (s *Store) SaveStudentRecord(ctx context.Context, item *models.QueueItem, state models.LifecycleState) (*models.QueueItem, error) {
	return s.saveTyped(ctx, models.KindStudent, item, state)
}

// saveTyped moves item to state, stamping the lifecycle timestamps, and
// stores it through SaveItem. An item without an ID is appended.
func (s *Store) saveTyped(ctx context.Context, kind models.EntityKind, item *models.QueueItem, state models.LifecycleState) (*models.QueueItem, error) {
	if item == nil {
		return nil, errors.New("nil queue item")
	}
	if item.Kind != kind {
		return nil, fmt.Errorf("%w: %s item saved as %s", ErrKindMismatch, item.Kind, kind)
	}

	saved := item.Clone()
	if saved.State == "" {
		saved.State = models.StatePending
	}
	if saved.State != state {
		if err := saved.Transition(state, time.Now().UTC()); err != nil {
			return nil, err
		}
	}
	if saved.ID == "" {
		saved.ID = uuid.New().String()
	}
	if err := s.SaveItem(ctx, saved); err != nil {
		return nil, err
	}
	return s.Get(ctx, saved.ID)
}

// Grades returns queued grade items in the given states.
func (s *Store) Grades(ctx context.Context, states ...models.LifecycleState) ([]*models.QueueItem, error) {
	return s.List(ctx, models.KindGrade, states...)
}

// Attendance returns queued attendance items in the given states.
func (s *Store) Attendance(ctx context.Context, states ...models.LifecycleState) ([]*models.QueueItem, error) {
	return s.List(ctx, models.KindAttendance, states...)
}

// Evaluations returns queued evaluation items in the given states.
func (s *Store) Evaluations(ctx context.Context, states ...models.LifecycleState) ([]*models.QueueItem, error) {
	return s.List(ctx, models.KindEvaluation, states...)
}

// QueueStats summarises the mutation log.
type QueueStats struct {
	ByKind      map[models.EntityKind]map[models.LifecycleState]int `json:"by_kind"`
	Pending     int                                                 `json:"pending"`
	Syncing     int                                                 `json:"syncing"`
	Synced      int                                                 `json:"synced"`
	Failed      int                                                 `json:"failed"`
	DBSizeBytes int64                                               `json:"db_size_bytes"`
}

// Stats counts items per kind and state and refreshes the queue gauges.
func (s *Store) Stats(ctx context.Context) (QueueStats, error) {
	items, err := s.List(ctx, "")
	if err != nil {
		return QueueStats{}, err
	}

	stats := QueueStats{ByKind: make(map[models.EntityKind]map[models.LifecycleState]int)}
	for _, k := range models.Kinds() {
		stats.ByKind[k] = make(map[models.LifecycleState]int)
		for _, st := range models.States() {
			stats.ByKind[k][st] = 0
		}
	}
	for _, item := range items {
		if stats.ByKind[item.Kind] == nil {
			stats.ByKind[item.Kind] = make(map[models.LifecycleState]int)
		}
		stats.ByKind[item.Kind][item.State]++
		switch item.State {
		case models.StatePending:
			stats.Pending++
		case models.StateSyncing:
			stats.Syncing++
		case models.StateSynced:
			stats.Synced++
		case models.StateFailed:
			stats.Failed++
		}
	}

	lsm, vlog := s.db.Size()
	stats.DBSizeBytes = lsm + vlog

	gauges := make(map[string]map[string]int, len(stats.ByKind))
	for kind, states := range stats.ByKind {
		gauges[string(kind)] = make(map[string]int, len(states))
		for st, n := range states {
			gauges[string(kind)][string(st)] = n
		}
	}
	metrics.UpdateQueueGauges(gauges)
	metrics.StoreDBSize.Set(float64(stats.DBSizeBytes))

	return stats, nil
}

// PurgeSynced deletes synced items whose SyncedAt is before cutoff. Items in
// any other state are never deleted. Deletes are committed in batches; on
// error the count covers the batches already committed.
func (s *Store) PurgeSynced(ctx context.Context, cutoff time.Time) (int, error) {
	items, err := s.List(ctx, "", models.StateSynced)
	if err != nil {
		return 0, err
	}

	expired := items[:0]
	for _, item := range items {
		if item.SyncedAt != nil && item.SyncedAt.Before(cutoff) {
			expired = append(expired, item)
		}
	}

	batch := s.purgeBatchSize
	if batch <= 0 {
		batch = defaultPurgeBatchSize
	}

	var purged int
	for len(expired) > 0 {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		n := min(batch, len(expired))
		done, err := s.deleteItems(expired[:n])
		purged += done
		metrics.QueuePurged.Add(float64(done))
		if err != nil {
			return purged, fmt.Errorf("purge synced items: %w", err)
		}
		expired = expired[n:]
	}
	return purged, nil
}

// deleteItems removes items in one transaction, splitting the batch when
// Badger reports it too big to commit at once.
func (s *Store) deleteItems(items []*models.QueueItem) (int, error) {
	err := s.update(func(txn *badger.Txn) error {
		for _, item := range items {
			if err := txn.Delete(queueKey(item.Kind, item.Seq)); err != nil {
				return err
			}
			if err := txn.Delete(queueIDKey(item.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrTxnTooBig) && len(items) > 1 {
		mid := len(items) / 2
		n, err := s.deleteItems(items[:mid])
		if err != nil {
			return n, err
		}
		m, err := s.deleteItems(items[mid:])
		return n + m, err
	}
	if err != nil {
		return 0, err
	}
	return len(items), nil
}
