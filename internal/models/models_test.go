// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package models

import (
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func sampleGrade() *Grade {
	return &Grade{
		StudentID:    "stu-1",
		SubjectID:    "sub-math",
		ClassID:      "cls-5a",
		TeacherID:    "tch-9",
		Term:         2,
		AcademicYear: "2025/2026",
		ClassTest:    14,
		Project:      35,
		Exam:         78,
	}
}

func TestNewQueueItem_KindFromPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload interface{}
		want    EntityKind
	}{
		{"grade", sampleGrade(), KindGrade},
		{"attendance", &Attendance{StudentID: "s", ClassID: "c", Term: 1, AcademicYear: "y"}, KindAttendance},
		{"evaluation", &Evaluation{StudentID: "s", ClassID: "c", TeacherID: "t", Term: 1}, KindEvaluation},
		{"student", &Student{FirstName: "Ama", ClassID: "c"}, KindStudent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := NewQueueItem(ActionCreate, tt.payload)
			if err != nil {
				t.Fatalf("NewQueueItem() error = %v", err)
			}
			if item.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", item.Kind, tt.want)
			}
			if item.State != StatePending {
				t.Errorf("State = %s, want pending", item.State)
			}
			if item.Payload() != tt.payload {
				t.Error("Payload() did not return the original record")
			}
		})
	}
}

func TestNewQueueItem_Rejects(t *testing.T) {
	if _, err := NewQueueItem(ActionCreate, "not a record"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("unknown payload: err = %v, want ErrUnknownKind", err)
	}
	if _, err := NewQueueItem(Action("upsert"), sampleGrade()); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("unknown action: err = %v, want ErrUnknownAction", err)
	}
	if _, err := NewQueueItem(ActionUpdate, sampleGrade()); !errors.Is(err, ErrMissingRecordID) {
		t.Errorf("update without id: err = %v, want ErrMissingRecordID", err)
	}
}

func TestQueueItem_ValidateMismatchedPayload(t *testing.T) {
	item := &QueueItem{Kind: KindAttendance, Action: ActionCreate, Grade: sampleGrade()}
	if err := item.Validate(); !errors.Is(err, ErrPayloadMismatch) {
		t.Errorf("Validate() = %v, want ErrPayloadMismatch", err)
	}

	item = &QueueItem{Kind: KindGrade, Action: ActionCreate, Grade: sampleGrade(), Student: &Student{}}
	if err := item.Validate(); !errors.Is(err, ErrPayloadMismatch) {
		t.Errorf("two payloads: Validate() = %v, want ErrPayloadMismatch", err)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to LifecycleState
		want     bool
	}{
		{StatePending, StateSyncing, true},
		{StatePending, StateSynced, false},
		{StatePending, StateFailed, false},
		{StateSyncing, StateSynced, true},
		{StateSyncing, StateFailed, true},
		{StateSyncing, StatePending, true},
		{StateFailed, StatePending, true},
		{StateFailed, StateSyncing, false},
		{StateSynced, StatePending, false},
		{StateSynced, StateFailed, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestQueueItem_Transition(t *testing.T) {
	item, err := NewQueueItem(ActionCreate, sampleGrade())
	if err != nil {
		t.Fatal(err)
	}
	item.LastError = "previous failure"
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	if err := item.Transition(StateSyncing, now); err != nil {
		t.Fatalf("pending -> syncing: %v", err)
	}
	if item.LastAttemptAt == nil || !item.LastAttemptAt.Equal(now) {
		t.Error("LastAttemptAt not stamped")
	}
	if err := item.Transition(StateSynced, now.Add(time.Second)); err != nil {
		t.Fatalf("syncing -> synced: %v", err)
	}
	if item.SyncedAt == nil {
		t.Error("SyncedAt not stamped")
	}
	if item.LastError != "" {
		t.Errorf("LastError = %q, want cleared", item.LastError)
	}
	if err := item.Transition(StatePending, now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("synced -> pending: err = %v, want ErrInvalidTransition", err)
	}
}

func TestQueueItem_AdoptRemoteID(t *testing.T) {
	item, err := NewQueueItem(ActionCreate, sampleGrade())
	if err != nil {
		t.Fatal(err)
	}
	item.AdoptRemoteID("")
	if item.RemoteID != "" || item.RecordID() != "" {
		t.Error("empty remote id must be ignored")
	}

	item.AdoptRemoteID("g-1001")
	if item.RemoteID != "g-1001" {
		t.Errorf("RemoteID = %q", item.RemoteID)
	}
	if item.Grade.ID != "g-1001" {
		t.Errorf("Grade.ID = %q, want g-1001", item.Grade.ID)
	}
}

func TestQueueItem_CloneIsDeep(t *testing.T) {
	item, err := NewQueueItem(ActionCreate, sampleGrade())
	if err != nil {
		t.Fatal(err)
	}
	clone := item.Clone()
	clone.Grade.Exam = 10
	if item.Grade.Exam != 78 {
		t.Errorf("original mutated through clone: Exam = %v", item.Grade.Exam)
	}
}

func TestQueueItem_JSONKeepsVariant(t *testing.T) {
	item, err := NewQueueItem(ActionCreate, &Evaluation{
		StudentID: "s", ClassID: "c", TeacherID: "t", Term: 3,
		ConductRating: "excellent", InterestLevel: "high", Remarks: "Leads group work",
	})
	if err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(item)
	if err != nil {
		t.Fatal(err)
	}
	var decoded QueueItem
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Evaluation == nil || decoded.Grade != nil {
		t.Fatalf("decoded variant wrong: %+v", decoded)
	}
	if err := decoded.Validate(); err != nil {
		t.Errorf("decoded item invalid: %v", err)
	}
}

func TestGradeTotal(t *testing.T) {
	g := sampleGrade()
	if got := g.Total(); got != 127 {
		t.Errorf("Total() = %v, want 127", got)
	}
}

func TestEntityKindResource(t *testing.T) {
	for _, k := range Kinds() {
		if k.Resource() == "" {
			t.Errorf("%s has no resource", k)
		}
	}
	if EntityKind("fee").Resource() != "" {
		t.Error("unknown kind should have no resource")
	}
}
