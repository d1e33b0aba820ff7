// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package models

import (
	"errors"
	"fmt"
	"time"
)

// EntityKind identifies which record type a queued mutation carries.
type EntityKind string

const (
	KindGrade      EntityKind = "grade"
	KindAttendance EntityKind = "attendance"
	KindEvaluation EntityKind = "evaluation"
	KindStudent    EntityKind = "student"
)

// Kinds returns every entity kind the mutation log accepts, in reconciliation
// order.
func Kinds() []EntityKind {
	return []EntityKind{KindGrade, KindAttendance, KindEvaluation, KindStudent}
}

// Valid reports whether k is a known entity kind.
func (k EntityKind) Valid() bool {
	switch k {
	case KindGrade, KindAttendance, KindEvaluation, KindStudent:
		return true
	}
	return false
}

// Resource returns the remote collection name for the kind.
func (k EntityKind) Resource() string {
	switch k {
	case KindGrade:
		return ResourceGrades
	case KindAttendance:
		return ResourceAttendance
	case KindEvaluation:
		return ResourceEvaluations
	case KindStudent:
		return ResourceStudents
	default:
		return ""
	}
}

// Remote collection names.
const (
	ResourceStudents    = "students"
	ResourceClasses     = "classes"
	ResourceSubjects    = "subjects"
	ResourceAssignments = "subject-assignments"
	ResourceGrades      = "grades"
	ResourceAttendance  = "attendance"
	ResourceEvaluations = "evaluations"
)

// Action is the mutation a queued item performs remotely.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a == ActionCreate || a == ActionUpdate || a == ActionDelete
}

// LifecycleState is the sync state of a queued item.
//
//	pending -> syncing -> synced
//	                   -> failed -> pending (retry)
type LifecycleState string

const (
	StatePending LifecycleState = "pending"
	StateSyncing LifecycleState = "syncing"
	StateSynced  LifecycleState = "synced"
	StateFailed  LifecycleState = "failed"
)

// States returns all lifecycle states.
func States() []LifecycleState {
	return []LifecycleState{StatePending, StateSyncing, StateSynced, StateFailed}
}

// Valid reports whether s is a known state.
func (s LifecycleState) Valid() bool {
	switch s {
	case StatePending, StateSyncing, StateSynced, StateFailed:
		return true
	}
	return false
}

// CanTransition reports whether an item may move from one state to another.
// syncing -> pending is allowed so that an interrupted replay hands the item
// back to the reconciler instead of marking it failed.
func CanTransition(from, to LifecycleState) bool {
	switch from {
	case StatePending:
		return to == StateSyncing
	case StateSyncing:
		return to == StateSynced || to == StateFailed || to == StatePending
	case StateFailed:
		return to == StatePending
	default:
		return false
	}
}

// Queue item errors.
var (
	ErrUnknownKind       = errors.New("unknown entity kind")
	ErrUnknownAction     = errors.New("unknown action")
	ErrPayloadMismatch   = errors.New("payload does not match entity kind")
	ErrMissingRecordID   = errors.New("update and delete require a record id")
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)

// QueueItem is one entry of the durable mutation log. Exactly one payload
// field is set and it matches Kind.
type QueueItem struct {
	ID     string     `json:"id"`
	Seq    uint64     `json:"seq"`
	Kind   EntityKind `json:"kind"`
	Action Action     `json:"action"`

	Grade      *Grade      `json:"grade,omitempty"`
	Attendance *Attendance `json:"attendance,omitempty"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
	Student    *Student    `json:"student,omitempty"`

	State         LifecycleState `json:"state"`
	RetryCount    int            `json:"retry_count"`
	LastError     string         `json:"last_error,omitempty"`
	RemoteID      string         `json:"remote_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	LastAttemptAt *time.Time     `json:"last_attempt_at,omitempty"`
	SyncedAt      *time.Time     `json:"synced_at,omitempty"`
}

// NewQueueItem builds a pending item for the given record. The kind is taken
// from the payload type.
func NewQueueItem(action Action, payload interface{}) (*QueueItem, error) {
	item := &QueueItem{Action: action, State: StatePending}
	switch p := payload.(type) {
	case *Grade:
		item.Kind, item.Grade = KindGrade, p
	case *Attendance:
		item.Kind, item.Attendance = KindAttendance, p
	case *Evaluation:
		item.Kind, item.Evaluation = KindEvaluation, p
	case *Student:
		item.Kind, item.Student = KindStudent, p
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, payload)
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}

// Payload returns the record carried by the item, or nil if the variant
// matching Kind is unset.
func (q *QueueItem) Payload() interface{} {
	switch q.Kind {
	case KindGrade:
		if q.Grade != nil {
			return q.Grade
		}
	case KindAttendance:
		if q.Attendance != nil {
			return q.Attendance
		}
	case KindEvaluation:
		if q.Evaluation != nil {
			return q.Evaluation
		}
	case KindStudent:
		if q.Student != nil {
			return q.Student
		}
	}
	return nil
}

// RecordID returns the identity of the carried record.
func (q *QueueItem) RecordID() string {
	switch q.Kind {
	case KindGrade:
		if q.Grade != nil {
			return q.Grade.ID
		}
	case KindAttendance:
		if q.Attendance != nil {
			return q.Attendance.ID
		}
	case KindEvaluation:
		if q.Evaluation != nil {
			return q.Evaluation.ID
		}
	case KindStudent:
		if q.Student != nil {
			return q.Student.ID
		}
	}
	return ""
}

// AdoptRemoteID records the identity the remote service assigned and writes
// it into the payload. The remote identity always wins.
func (q *QueueItem) AdoptRemoteID(id string) {
	if id == "" {
		return
	}
	q.RemoteID = id
	switch q.Kind {
	case KindGrade:
		if q.Grade != nil {
			q.Grade.ID = id
		}
	case KindAttendance:
		if q.Attendance != nil {
			q.Attendance.ID = id
		}
	case KindEvaluation:
		if q.Evaluation != nil {
			q.Evaluation.ID = id
		}
	case KindStudent:
		if q.Student != nil {
			q.Student.ID = id
		}
	}
}

// Validate checks that the item is a well-formed tagged union.
func (q *QueueItem) Validate() error {
	if !q.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, q.Kind)
	}
	if !q.Action.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAction, q.Action)
	}

	set := 0
	for _, present := range []bool{q.Grade != nil, q.Attendance != nil, q.Evaluation != nil, q.Student != nil} {
		if present {
			set++
		}
	}
	if set != 1 || q.Payload() == nil {
		return fmt.Errorf("%w: kind %s", ErrPayloadMismatch, q.Kind)
	}

	if q.Action != ActionCreate && q.RecordID() == "" {
		return ErrMissingRecordID
	}
	return nil
}

// Transition moves the item to the given state, stamping timestamps.
func (q *QueueItem) Transition(to LifecycleState, now time.Time) error {
	if !CanTransition(q.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, q.State, to)
	}
	q.State = to
	q.UpdatedAt = now
	switch to {
	case StateSyncing:
		q.LastAttemptAt = &now
	case StateSynced:
		q.SyncedAt = &now
		q.LastError = ""
	}
	return nil
}

// Clone returns a deep copy of the item.
func (q *QueueItem) Clone() *QueueItem {
	c := *q
	if q.Grade != nil {
		g := *q.Grade
		c.Grade = &g
	}
	if q.Attendance != nil {
		a := *q.Attendance
		c.Attendance = &a
	}
	if q.Evaluation != nil {
		e := *q.Evaluation
		c.Evaluation = &e
	}
	if q.Student != nil {
		s := *q.Student
		c.Student = &s
	}
	if q.LastAttemptAt != nil {
		t := *q.LastAttemptAt
		c.LastAttemptAt = &t
	}
	if q.SyncedAt != nil {
		t := *q.SyncedAt
		c.SyncedAt = &t
	}
	return &c
}
