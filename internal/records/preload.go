// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package records

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/gradesync/internal/logging"
	"github.com/tomtom215/gradesync/internal/models"
	"github.com/tomtom215/gradesync/internal/offline"
	"github.com/tomtom215/gradesync/internal/store"
)

// PreloadReport lists what a preload stored. Collections that could not be
// refreshed appear in Failed with the reason.
type PreloadReport struct {
	TeacherID   string            `json:"teacher_id"`
	Offline     bool              `json:"offline"`
	Classes     int               `json:"classes"`
	Students    int               `json:"students"`
	Rosters     int               `json:"rosters"`
	Subjects    int               `json:"subjects"`
	Assignments int               `json:"assignments"`
	Failed      map[string]string `json:"failed,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	Duration    time.Duration     `json:"duration"`

	mu sync.Mutex
}

func (r *PreloadReport) fail(collection string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Failed == nil {
		r.Failed = make(map[string]string)
	}
	r.Failed[collection] = err.Error()
}

func (r *PreloadReport) add(field *int, n int) {
	r.mu.Lock()
	*field += n
	r.mu.Unlock()
}

// FailedCollections returns the names of collections that failed, sorted.
func (r *PreloadReport) FailedCollections() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.Failed))
	for name := range r.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PreloadData refreshes every reference collection a teacher needs for
// offline work: their classes and each class roster, the full student list,
// subjects and subject assignments. Fetches run in parallel. Failures are
// logged and reported, never returned; a partial preload still leaves
// useful data behind.
func (s *Service) PreloadData(ctx context.Context, teacherID string) *PreloadReport {
	report := &PreloadReport{TeacherID: teacherID, StartedAt: time.Now().UTC()}
	log := logging.Ctx(ctx).With().Str("teacher_id", teacherID).Logger()

	if !s.access.IsOnline() {
		report.Offline = true
		log.Info().Msg("Skipping preload while offline")
		return report
	}

	var g errgroup.Group
	g.SetLimit(s.preloadCap)

	g.Go(func() error {
		classes, err := s.refreshClasses(ctx, teacherID)
		if err != nil {
			report.fail(store.CollectionClasses, err)
			return nil
		}
		report.add(&report.Classes, len(classes))

		for _, c := range classes {
			classID := c.ID
			g.Go(func() error {
				n, err := s.studentsReader(classID).refresh(ctx)
				if err != nil {
					report.fail(store.CollectionStudents+":"+classID, err)
					return nil
				}
				report.add(&report.Rosters, 1)
				log.Trace().Str("class_id", classID).Int("students", n).Msg("Class roster preloaded")
				return nil
			})
		}
		return nil
	})

	g.Go(func() error {
		n, err := s.studentsReader("").refresh(ctx)
		if err != nil {
			report.fail(store.CollectionStudents, err)
			return nil
		}
		report.add(&report.Students, n)
		return nil
	})

	g.Go(func() error {
		n, err := s.subjectsReader().refresh(ctx)
		if err != nil {
			report.fail(store.CollectionSubjects, err)
			return nil
		}
		report.add(&report.Subjects, n)
		return nil
	})

	g.Go(func() error {
		n, err := s.assignmentsReader().refresh(ctx)
		if err != nil {
			report.fail(store.CollectionAssignments, err)
			return nil
		}
		report.add(&report.Assignments, n)
		return nil
	})

	_ = g.Wait()
	report.Duration = time.Since(report.StartedAt)

	event := log.Info()
	if failed := report.FailedCollections(); len(failed) > 0 {
		event = log.Warn().Strs("failed", failed)
	}
	event.
		Int("classes", report.Classes).
		Int("rosters", report.Rosters).
		Int("students", report.Students).
		Int("subjects", report.Subjects).
		Int("assignments", report.Assignments).
		Dur("duration", report.Duration).
		Msg("Preload finished")
	return report
}

// refreshClasses stores the teacher's classes and returns them.
func (s *Service) refreshClasses(ctx context.Context, teacherID string) ([]models.Class, error) {
	r := s.classesReader(teacherID)
	if _, err := r.refresh(ctx); err != nil {
		return nil, err
	}
	ref, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	return ref.Items, nil
}

func (s *Service) studentsReader(classID string) reader[models.Student] {
	req := offline.Request{Resource: models.ResourceStudents}
	if classID != "" {
		req.Filters = map[string]string{"class_id": classID}
	}
	return reader[models.Student]{
		svc:  s,
		name: store.CollectionStudents + ":" + classID,
		req:  req,
		load: func(ctx context.Context) (store.Reference[models.Student], error) {
			return s.store.Students(ctx, classID)
		},
		save: func(ctx context.Context, items []models.Student) error {
			return s.store.SaveStudents(ctx, classID, items)
		},
	}
}

func (s *Service) classesReader(teacherID string) reader[models.Class] {
	req := offline.Request{Resource: models.ResourceClasses}
	if teacherID != "" {
		req.Filters = map[string]string{"teacher_id": teacherID}
	}
	return reader[models.Class]{
		svc:  s,
		name: store.CollectionClasses + ":" + teacherID,
		req:  req,
		load: func(ctx context.Context) (store.Reference[models.Class], error) {
			return s.store.Classes(ctx, teacherID)
		},
		save: func(ctx context.Context, items []models.Class) error {
			return s.store.SaveClasses(ctx, teacherID, items)
		},
	}
}

func (s *Service) subjectsReader() reader[models.Subject] {
	return reader[models.Subject]{
		svc:  s,
		name: store.CollectionSubjects,
		req:  offline.Request{Resource: models.ResourceSubjects},
		load: s.store.Subjects,
		save: s.store.SaveSubjects,
	}
}

func (s *Service) assignmentsReader() reader[models.SubjectAssignment] {
	return reader[models.SubjectAssignment]{
		svc:  s,
		name: store.CollectionAssignments,
		req:  offline.Request{Resource: models.ResourceAssignments},
		load: func(ctx context.Context) (store.Reference[models.SubjectAssignment], error) {
			return s.store.Assignments(ctx, store.ScopeAll)
		},
		save: func(ctx context.Context, items []models.SubjectAssignment) error {
			return s.store.SaveAssignments(ctx, store.ScopeAll, items)
		},
	}
}
