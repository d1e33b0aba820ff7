// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package records

import (
	"context"
	"errors"
	"sync"

	"github.com/tomtom215/gradesync/internal/logging"
	"github.com/tomtom215/gradesync/internal/models"
	"github.com/tomtom215/gradesync/internal/offline"
	"github.com/tomtom215/gradesync/internal/store"
)

// Publisher is told about every write accepted into the mutation log.
type Publisher interface {
	BroadcastItemQueued(item *models.QueueItem)
}

// SyncTrigger starts a background reconciliation pass.
type SyncTrigger interface {
	Trigger(ctx context.Context, trigger string)
}

// Service is the teacher-facing entry point to the offline data layer.
// Reads are served from the durable reference copy when one exists; writes
// are made durable locally before any network attempt.
type Service struct {
	store  *store.Store
	access *offline.Access
	events Publisher
	syncer SyncTrigger

	refreshes  sync.WaitGroup
	inFlight   sync.Map // refresh key -> struct{}
	preloadCap int
}

// New creates the facade. events may be nil.
func New(st *store.Store, access *offline.Access, events Publisher) *Service {
	return &Service{
		store:      st,
		access:     access,
		events:     events,
		preloadCap: 4,
	}
}

// SetSyncTrigger sets what is kicked when a write made while online has to
// wait behind older queued writes. Without one such writes wait for the
// next scheduled or reconnect pass.
func (s *Service) SetSyncTrigger(t SyncTrigger) {
	s.syncer = t
}

// Wait blocks until every background refresh started so far has finished.
func (s *Service) Wait() {
	s.refreshes.Wait()
}

// GetStudents returns the roster of classID, or every student when classID
// is empty. A class roster that was never stored is derived from the full
// student list when that one is.
func (s *Service) GetStudents(ctx context.Context, classID string) (offline.CacheEntry[[]models.Student], error) {
	r := s.studentsReader(classID)
	if classID != "" {
		r.fallback = func(ctx context.Context) (offline.CacheEntry[[]models.Student], bool, error) {
			return s.studentsFromRoster(ctx, classID)
		}
	}
	return r.read(ctx)
}

// studentsFromRoster filters the unscoped roster down to one class.
func (s *Service) studentsFromRoster(ctx context.Context, classID string) (offline.CacheEntry[[]models.Student], bool, error) {
	var entry offline.CacheEntry[[]models.Student]
	all, err := s.store.Students(ctx, store.ScopeAll)
	if err != nil || !all.Found() {
		return entry, false, err
	}

	entry.Data = make([]models.Student, 0)
	for _, st := range all.Items {
		if st.ClassID == classID {
			entry.Data = append(entry.Data, st)
		}
	}
	entry.IsFromCache = true
	entry.CachedAt = all.UpdatedAt
	return entry, true, nil
}

// GetClasses returns the classes taught by teacherID, or every class when
// teacherID is empty.
func (s *Service) GetClasses(ctx context.Context, teacherID string) (offline.CacheEntry[[]models.Class], error) {
	return s.classesReader(teacherID).read(ctx)
}

// GetSubjects returns every subject.
func (s *Service) GetSubjects(ctx context.Context) (offline.CacheEntry[[]models.Subject], error) {
	return s.subjectsReader().read(ctx)
}

// GetAssignments returns every subject assignment.
func (s *Service) GetAssignments(ctx context.Context) (offline.CacheEntry[[]models.SubjectAssignment], error) {
	return s.assignmentsReader().read(ctx)
}

// reader implements the cache-first read of one reference collection scope.
type reader[T any] struct {
	svc  *Service
	name string
	req  offline.Request
	load func(ctx context.Context) (store.Reference[T], error)
	save func(ctx context.Context, items []T) error

	// fallback is consulted when the scope itself was never stored.
	fallback func(ctx context.Context) (offline.CacheEntry[[]T], bool, error)
}

func (r reader[T]) read(ctx context.Context) (offline.CacheEntry[[]T], error) {
	var entry offline.CacheEntry[[]T]

	ref, err := r.load(ctx)
	if err != nil {
		return entry, err
	}
	if ref.Found() {
		entry = offline.CacheEntry[[]T]{Data: ref.Items, IsFromCache: true, CachedAt: ref.UpdatedAt}
		r.refreshInBackground(ctx)
		return entry, nil
	}

	if r.fallback != nil {
		fb, ok, err := r.fallback(ctx)
		if err != nil {
			return entry, err
		}
		if ok {
			r.refreshInBackground(ctx)
			return fb, nil
		}
	}

	entry, err = offline.ReadEntry[[]T](ctx, r.svc.access, r.req)
	if err != nil {
		return entry, err
	}
	if entry.Data == nil {
		entry.Data = []T{}
	}
	if !entry.IsFromCache {
		if err := r.save(ctx, entry.Data); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("collection", r.name).Msg("Failed to persist reference data")
		}
	}
	return entry, nil
}

// refresh fetches the collection from the network and replaces the stored
// copy, returning the number of items stored.
func (r reader[T]) refresh(ctx context.Context) (int, error) {
	req := r.req
	req.Fresh = true

	entry, err := offline.ReadEntry[[]T](ctx, r.svc.access, req)
	if err != nil {
		return 0, err
	}
	if entry.IsFromCache {
		return 0, errNotRefreshed
	}
	if entry.Data == nil {
		entry.Data = []T{}
	}
	if err := r.save(ctx, entry.Data); err != nil {
		return 0, err
	}
	return len(entry.Data), nil
}

var errNotRefreshed = errors.New("remote service unreachable, cached copy kept")

// refreshInBackground starts one refresh of the scope if the service is
// believed reachable and no refresh of the same scope is running.
func (r reader[T]) refreshInBackground(ctx context.Context) {
	if !r.svc.access.IsOnline() {
		return
	}
	if _, busy := r.svc.inFlight.LoadOrStore(r.name, struct{}{}); busy {
		return
	}

	bg := context.WithoutCancel(ctx)
	r.svc.refreshes.Add(1)
	go func() {
		defer r.svc.refreshes.Done()
		defer r.svc.inFlight.Delete(r.name)

		n, err := r.refresh(bg)
		if err != nil {
			logging.Ctx(bg).Debug().Err(err).Str("collection", r.name).Msg("Background refresh failed")
			return
		}
		logging.Ctx(bg).Debug().Str("collection", r.name).Int("items", n).Msg("Background refresh stored")
	}()
}
