// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package api

import (
	"context"
	"time"

	"github.com/tomtom215/gradesync/internal/models"
	"github.com/tomtom215/gradesync/internal/offline"
	"github.com/tomtom215/gradesync/internal/reconciler"
	"github.com/tomtom215/gradesync/internal/records"
	"github.com/tomtom215/gradesync/internal/store"
	ws "github.com/tomtom215/gradesync/internal/websocket"
)

// Records is the domain facade the handlers read and write through.
type Records interface {
	GetStudents(ctx context.Context, classID string) (offline.CacheEntry[[]models.Student], error)
	GetClasses(ctx context.Context, teacherID string) (offline.CacheEntry[[]models.Class], error)
	GetSubjects(ctx context.Context) (offline.CacheEntry[[]models.Subject], error)
	GetAssignments(ctx context.Context) (offline.CacheEntry[[]models.SubjectAssignment], error)

	SaveGradeAction(ctx context.Context, action models.Action, g *models.Grade) (*records.SaveResult, error)
	SaveAttendance(ctx context.Context, a *models.Attendance) (*records.SaveResult, error)
	SaveEvaluation(ctx context.Context, e *models.Evaluation) (*records.SaveResult, error)
	SaveStudent(ctx context.Context, st *models.Student) (*records.SaveResult, error)

	PreloadData(ctx context.Context, teacherID string) *records.PreloadReport
}

// Syncer runs and reports reconciliation passes.
type Syncer interface {
	Sync(ctx context.Context) (*reconciler.Result, error)
	RetryFailed(ctx context.Context) (*reconciler.Result, error)
	Report() reconciler.StatusReport
}

// Queue exposes the mutation log for inspection.
type Queue interface {
	List(ctx context.Context, kind models.EntityKind, states ...models.LifecycleState) ([]*models.QueueItem, error)
	Get(ctx context.Context, id string) (*models.QueueItem, error)
	Stats(ctx context.Context) (store.QueueStats, error)
}

// Connectivity is the monitor's read side.
type Connectivity interface {
	IsOnline() bool
	LastChange() time.Time
}

// BreakerReporter reports the remote client's circuit breaker state.
type BreakerReporter interface {
	BreakerState() string
}

// Deps are the handler's collaborators. Hub and Breaker are optional.
type Deps struct {
	Records      Records
	Syncer       Syncer
	Queue        Queue
	Connectivity Connectivity
	Hub          *ws.Hub
	Breaker      BreakerReporter
	Version      string
}

// Handler contains dependencies for API handlers
//
// Handler methods are split across files:
//   - handlers_records.go: reference reads and record writes
//   - handlers_sync.go: preload, reconciliation and queue inspection
//   - handlers_health.go: health
//   - handlers_ws.go: WebSocket event stream
type Handler struct {
	records   Records
	syncer    Syncer
	queue     Queue
	conn      Connectivity
	hub       *ws.Hub
	breaker   BreakerReporter
	version   string
	startTime time.Time
}

// NewHandler creates the API handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		records:   d.Records,
		syncer:    d.Syncer,
		queue:     d.Queue,
		conn:      d.Connectivity,
		hub:       d.Hub,
		breaker:   d.Breaker,
		version:   d.Version,
		startTime: time.Now(),
	}
}
