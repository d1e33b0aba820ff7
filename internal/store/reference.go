// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/gradesync/internal/models"
)

// Reference collection names.
const (
	CollectionStudents    = "students"
	CollectionClasses     = "classes"
	CollectionSubjects    = "subjects"
	CollectionAssignments = "assignments"
)

// ScopeAll is the scope of an unfiltered collection.
const ScopeAll = "all"

// Reference is a stored snapshot of one reference collection scope. Items is
// never nil; a scope that was never saved has no items and a zero UpdatedAt.
type Reference[T any] struct {
	Items     []T       `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Found reports whether the scope has ever been saved.
func (r Reference[T]) Found() bool {
	return !r.UpdatedAt.IsZero()
}

func referenceKey(collection, scope string) []byte {
	if scope == "" {
		scope = ScopeAll
	}
	return []byte(prefixReference + collection + ":" + scope)
}

func loadReference[T any](ctx context.Context, s *Store, collection, scope string) (Reference[T], error) {
	ref := Reference[T]{Items: []T{}}
	if err := ctx.Err(); err != nil {
		return ref, err
	}
	if err := s.checkOpen(); err != nil {
		return ref, err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(referenceKey(collection, scope))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &ref)
		})
	})
	if err != nil {
		return Reference[T]{Items: []T{}}, fmt.Errorf("load %s/%s: %w", collection, scope, err)
	}
	if ref.Items == nil {
		ref.Items = []T{}
	}
	return ref, nil
}

// saveReference replaces the whole scope. The last successful refresh wins.
func saveReference[T any](ctx context.Context, s *Store, collection, scope string, items []T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	if items == nil {
		items = []T{}
	}

	data, err := json.Marshal(Reference[T]{Items: items, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, scope, err)
	}

	err = s.update(func(txn *badger.Txn) error {
		return txn.Set(referenceKey(collection, scope), data)
	})
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", collection, scope, err)
	}
	return nil
}

// Students returns the stored roster for scope (a class ID or ScopeAll).
func (s *Store) Students(ctx context.Context, scope string) (Reference[models.Student], error) {
	return loadReference[models.Student](ctx, s, CollectionStudents, scope)
}

// SaveStudents replaces the stored roster for scope.
func (s *Store) SaveStudents(ctx context.Context, scope string, students []models.Student) error {
	return saveReference(ctx, s, CollectionStudents, scope, students)
}

// Classes returns the stored classes for scope (a teacher ID or ScopeAll).
func (s *Store) Classes(ctx context.Context, scope string) (Reference[models.Class], error) {
	return loadReference[models.Class](ctx, s, CollectionClasses, scope)
}

// SaveClasses replaces the stored classes for scope.
func (s *Store) SaveClasses(ctx context.Context, scope string, classes []models.Class) error {
	return saveReference(ctx, s, CollectionClasses, scope, classes)
}

// Subjects returns the stored subject list.
func (s *Store) Subjects(ctx context.Context) (Reference[models.Subject], error) {
	return loadReference[models.Subject](ctx, s, CollectionSubjects, ScopeAll)
}

// SaveSubjects replaces the stored subject list.
func (s *Store) SaveSubjects(ctx context.Context, subjects []models.Subject) error {
	return saveReference(ctx, s, CollectionSubjects, ScopeAll, subjects)
}

// Assignments returns the stored subject assignments for scope (a teacher ID
// or ScopeAll).
func (s *Store) Assignments(ctx context.Context, scope string) (Reference[models.SubjectAssignment], error) {
	return loadReference[models.SubjectAssignment](ctx, s, CollectionAssignments, scope)
}

// SaveAssignments replaces the stored subject assignments for scope.
func (s *Store) SaveAssignments(ctx context.Context, scope string, assignments []models.SubjectAssignment) error {
	return saveReference(ctx, s, CollectionAssignments, scope, assignments)
}
