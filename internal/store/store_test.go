// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/gradesync/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenForTesting(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatalf("OpenForTesting: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testGrade(student string) *models.Grade {
	return &models.Grade{
		StudentID:    student,
		SubjectID:    "math",
		ClassID:      "c1",
		TeacherID:    "t1",
		Term:         1,
		AcademicYear: "2025/2026",
		ClassTest:    14,
		Exam:         70,
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty path", func(c *Config) { c.Path = "" }, "Path"},
		{"small memtable", func(c *Config) { c.MemTableSize = 1 << 20 }, "MemTableSize"},
		{"small vlog", func(c *Config) { c.ValueLogFileSize = 1024 }, "ValueLogFileSize"},
		{"one compactor", func(c *Config) { c.NumCompactors = 1 }, "NumCompactors"},
		{"gc ratio", func(c *Config) { c.GCRatio = 1 }, "GCRatio"},
		{"compact interval", func(c *Config) { c.CompactInterval = time.Second }, "CompactInterval"},
		{"retention", func(c *Config) { c.SyncedRetention = time.Minute }, "SyncedRetention"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() = %v, want *ConfigError", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestReferenceCollections(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	empty, err := s.Students(ctx, "c1")
	if err != nil {
		t.Fatalf("Students: %v", err)
	}
	if empty.Found() || empty.Items == nil || len(empty.Items) != 0 {
		t.Fatalf("unsaved scope = %+v, want empty non-nil and not found", empty)
	}

	first := []models.Student{{ID: "s1", FirstName: "Ama", LastName: "Mensah", ClassID: "c1"}}
	if err := s.SaveStudents(ctx, "c1", first); err != nil {
		t.Fatalf("SaveStudents: %v", err)
	}
	second := []models.Student{
		{ID: "s2", FirstName: "Kofi", LastName: "Boateng", ClassID: "c1"},
		{ID: "s3", FirstName: "Esi", LastName: "Owusu", ClassID: "c1"},
	}
	if err := s.SaveStudents(ctx, "c1", second); err != nil {
		t.Fatalf("SaveStudents: %v", err)
	}

	got, err := s.Students(ctx, "c1")
	if err != nil {
		t.Fatalf("Students: %v", err)
	}
	if !got.Found() {
		t.Fatal("saved scope not found")
	}
	if len(got.Items) != 2 || got.Items[0].ID != "s2" {
		t.Errorf("Students = %+v, want wholesale replacement with s2,s3", got.Items)
	}

	other, err := s.Students(ctx, "c2")
	if err != nil {
		t.Fatalf("Students: %v", err)
	}
	if other.Found() {
		t.Error("scopes must not share snapshots")
	}

	if err := s.SaveSubjects(ctx, nil); err != nil {
		t.Fatalf("SaveSubjects: %v", err)
	}
	subjects, err := s.Subjects(ctx)
	if err != nil {
		t.Fatalf("Subjects: %v", err)
	}
	if !subjects.Found() || subjects.Items == nil {
		t.Errorf("Subjects = %+v, want found with empty list", subjects)
	}
}

func TestAddToSyncQueue(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	item, err := s.EnqueueGrade(ctx, models.ActionCreate, testGrade("s1"))
	if err != nil {
		t.Fatalf("EnqueueGrade: %v", err)
	}
	if item.ID == "" || item.Seq == 0 {
		t.Errorf("item identity not assigned: %+v", item)
	}
	if item.State != models.StatePending || item.RetryCount != 0 {
		t.Errorf("new item state = %s retries = %d", item.State, item.RetryCount)
	}

	got, err := s.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Grade == nil || got.Grade.StudentID != "s1" || got.Grade.Exam != 70 {
		t.Errorf("persisted payload = %+v", got.Grade)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("Get(missing) = %v, want ErrItemNotFound", err)
	}
}

func TestAddToSyncQueueRejectsInvalid(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bad := &models.QueueItem{Kind: models.KindGrade, Action: models.ActionCreate, Attendance: &models.Attendance{}}
	if _, err := s.AddToSyncQueue(ctx, bad); !errors.Is(err, models.ErrPayloadMismatch) {
		t.Errorf("mismatched payload = %v, want ErrPayloadMismatch", err)
	}
	if _, err := s.EnqueueGrade(ctx, models.ActionUpdate, testGrade("s1")); !errors.Is(err, models.ErrMissingRecordID) {
		t.Errorf("update without id = %v, want ErrMissingRecordID", err)
	}

	items, err := s.List(ctx, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("rejected items were stored: %d", len(items))
	}
}

func TestListOrderAndFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var ids []string
	for _, student := range []string{"s1", "s2", "s3"} {
		item, err := s.EnqueueGrade(ctx, models.ActionCreate, testGrade(student))
		if err != nil {
			t.Fatalf("EnqueueGrade: %v", err)
		}
		ids = append(ids, item.ID)
	}
	att, err := s.EnqueueAttendance(ctx, models.ActionCreate, &models.Attendance{
		StudentID: "s1", ClassID: "c1", Term: 1, AcademicYear: "2025/2026", TotalDays: 60, PresentDays: 58, AbsentDays: 2,
	})
	if err != nil {
		t.Fatalf("EnqueueAttendance: %v", err)
	}

	grades, err := s.Grades(ctx)
	if err != nil {
		t.Fatalf("Grades: %v", err)
	}
	if len(grades) != 3 {
		t.Fatalf("Grades = %d items, want 3", len(grades))
	}
	for i, g := range grades {
		if g.ID != ids[i] {
			t.Errorf("grades[%d] = %s, want %s (enqueue order)", i, g.ID, ids[i])
		}
	}

	all, err := s.List(ctx, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 4 || all[3].ID != att.ID {
		t.Errorf("List(all) last = %v, want attendance item last", all[len(all)-1].ID)
	}

	if _, err := s.Transition(ctx, ids[1], models.StatePending, models.StateSyncing, nil); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	pending, err := s.GetPending(ctx, models.KindGrade)
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != ids[0] || pending[1].ID != ids[2] {
		t.Errorf("GetPending = %v, want [%s %s]", pending, ids[0], ids[2])
	}
}

func TestTransition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	item, err := s.EnqueueEvaluation(ctx, models.ActionCreate, &models.Evaluation{
		StudentID: "s1", ClassID: "c1", TeacherID: "t1", Term: 2, AcademicYear: "2025/2026",
		ConductRating: "good", InterestLevel: "high",
	})
	if err != nil {
		t.Fatalf("EnqueueEvaluation: %v", err)
	}

	syncing, err := s.Transition(ctx, item.ID, models.StatePending, models.StateSyncing, nil)
	if err != nil {
		t.Fatalf("pending->syncing: %v", err)
	}
	if syncing.LastAttemptAt == nil {
		t.Error("LastAttemptAt not stamped")
	}

	if _, err := s.Transition(ctx, item.ID, models.StatePending, models.StateSyncing, nil); !errors.Is(err, ErrStateConflict) {
		t.Errorf("second claim = %v, want ErrStateConflict", err)
	}
	if _, err := s.Transition(ctx, item.ID, models.StatePending, models.StateSynced, nil); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("pending->synced = %v, want ErrInvalidTransition", err)
	}

	synced, err := s.Transition(ctx, item.ID, models.StateSyncing, models.StateSynced, func(q *models.QueueItem) {
		q.AdoptRemoteID("remote-9")
	})
	if err != nil {
		t.Fatalf("syncing->synced: %v", err)
	}
	if synced.RemoteID != "remote-9" || synced.Evaluation.ID != "remote-9" || synced.SyncedAt == nil {
		t.Errorf("synced item = %+v", synced)
	}

	got, err := s.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != models.StateSynced || got.Evaluation.ID != "remote-9" {
		t.Errorf("persisted = %s/%s", got.State, got.Evaluation.ID)
	}
}

func TestTransitionSingleWinner(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	item, err := s.EnqueueGrade(ctx, models.ActionCreate, testGrade("s1"))
	if err != nil {
		t.Fatalf("EnqueueGrade: %v", err)
	}

	const claimers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Transition(ctx, item.ID, models.StatePending, models.StateSyncing, nil); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("claims won = %d, want exactly 1", wins)
	}
}

func TestResetFailedAndRecover(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	fail := func(student string) *models.QueueItem {
		t.Helper()
		item, err := s.EnqueueGrade(ctx, models.ActionCreate, testGrade(student))
		if err != nil {
			t.Fatalf("EnqueueGrade: %v", err)
		}
		if _, err := s.Transition(ctx, item.ID, models.StatePending, models.StateSyncing, nil); err != nil {
			t.Fatalf("claim: %v", err)
		}
		failed, err := s.Transition(ctx, item.ID, models.StateSyncing, models.StateFailed, func(q *models.QueueItem) {
			q.RetryCount++
			q.LastError = "server said no"
		})
		if err != nil {
			t.Fatalf("fail: %v", err)
		}
		return failed
	}

	a := fail("s1")
	b := fail("s2")

	n, err := s.ResetFailed(ctx, func(q *models.QueueItem) bool { return q.ID == a.ID })
	if err != nil || n != 1 {
		t.Fatalf("ResetFailed(filter) = %d, %v", n, err)
	}
	got, _ := s.Get(ctx, a.ID)
	if got.State != models.StatePending || got.RetryCount != 1 || got.LastError == "" {
		t.Errorf("reset item = %s retries=%d err=%q, want pending with history kept", got.State, got.RetryCount, got.LastError)
	}
	if still, _ := s.Get(ctx, b.ID); still.State != models.StateFailed {
		t.Errorf("filtered-out item = %s, want failed", still.State)
	}

	if n, err := s.ResetFailed(ctx, nil); err != nil || n != 1 {
		t.Errorf("ResetFailed(nil) = %d, %v, want 1", n, err)
	}

	if _, err := s.Transition(ctx, a.ID, models.StatePending, models.StateSyncing, nil); err != nil {
		t.Fatalf("claim: %v", err)
	}
	n, err = s.RecoverInterrupted(ctx)
	if err != nil || n != 1 {
		t.Fatalf("RecoverInterrupted = %d, %v", n, err)
	}
	if got, _ := s.Get(ctx, a.ID); got.State != models.StatePending {
		t.Errorf("recovered item = %s, want pending", got.State)
	}
}

func TestSaveItem(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	item, err := s.EnqueueGrade(ctx, models.ActionCreate, testGrade("s1"))
	if err != nil {
		t.Fatalf("EnqueueGrade: %v", err)
	}

	edited := item.Clone()
	edited.Grade.Exam = 90
	if err := s.SaveItem(ctx, edited); err != nil {
		t.Fatalf("SaveItem: %v", err)
	}
	got, _ := s.Get(ctx, item.ID)
	if got.Grade.Exam != 90 || got.Seq != item.Seq {
		t.Errorf("upsert = exam %v seq %d, want 90 at seq %d", got.Grade.Exam, got.Seq, item.Seq)
	}

	changed := item.Clone()
	changed.Kind = models.KindAttendance
	changed.Grade = nil
	changed.Attendance = &models.Attendance{StudentID: "s1"}
	if err := s.SaveItem(ctx, changed); !errors.Is(err, ErrKindChanged) {
		t.Errorf("kind change = %v, want ErrKindChanged", err)
	}

	fresh, _ := models.NewQueueItem(models.ActionCreate, testGrade("s9"))
	fresh.ID = "imported-1"
	if err := s.SaveItem(ctx, fresh); err != nil {
		t.Fatalf("SaveItem(insert): %v", err)
	}
	if got, err := s.Get(ctx, "imported-1"); err != nil || got.Seq == 0 {
		t.Errorf("inserted item = %+v, %v", got, err)
	}
}

func TestSaveGradeUpsertsByIdentity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	item, err := s.EnqueueGrade(ctx, models.ActionCreate, testGrade("s1"))
	if err != nil {
		t.Fatalf("EnqueueGrade: %v", err)
	}

	syncing, err := s.SaveGrade(ctx, item, models.StateSyncing)
	if err != nil {
		t.Fatalf("SaveGrade(syncing): %v", err)
	}
	if syncing.LastAttemptAt == nil {
		t.Error("syncing save did not stamp LastAttemptAt")
	}
	synced, err := s.SaveGrade(ctx, syncing, models.StateSynced)
	if err != nil {
		t.Fatalf("SaveGrade(synced): %v", err)
	}

	grades, err := s.Grades(ctx)
	if err != nil {
		t.Fatalf("Grades: %v", err)
	}
	if len(grades) != 1 {
		t.Fatalf("Grades = %d entries, want 1", len(grades))
	}
	got := grades[0]
	if got.ID != item.ID || got.Seq != item.Seq || got.State != models.StateSynced || got.SyncedAt == nil {
		t.Errorf("entry = %+v, want %s synced at seq %d", got, item.ID, item.Seq)
	}
	if synced.ID != item.ID {
		t.Errorf("SaveGrade returned %s, want %s", synced.ID, item.ID)
	}

	tests := []struct {
		name  string
		save  func() error
		match error
	}{
		{"wrong kind", func() error {
			_, err := s.SaveAttendance(ctx, got, models.StateSynced)
			return err
		}, ErrKindMismatch},
		{"invalid transition", func() error {
			_, err := s.SaveGrade(ctx, got, models.StatePending)
			return err
		}, models.ErrInvalidTransition},
	}
	for _, tt := range tests {
		if err := tt.save(); !errors.Is(err, tt.match) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.match)
		}
	}
	if grades, _ := s.Grades(ctx); len(grades) != 1 {
		t.Errorf("rejected saves changed the log: %d entries", len(grades))
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	ctx := context.Background()

	s, err := OpenForTesting(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	first, err := s.EnqueueGrade(ctx, models.ActionCreate, testGrade("s1"))
	if err != nil {
		t.Fatalf("EnqueueGrade: %v", err)
	}
	if err := s.SaveClasses(ctx, "t1", []models.Class{{ID: "c1", Name: "JHS 1A", TeacherID: "t1"}}); err != nil {
		t.Fatalf("SaveClasses: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = OpenForTesting(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.Get(ctx, first.ID)
	if err != nil || got.Grade.StudentID != "s1" {
		t.Fatalf("item after reopen = %+v, %v", got, err)
	}
	classes, err := s.Classes(ctx, "t1")
	if err != nil || len(classes.Items) != 1 {
		t.Fatalf("classes after reopen = %+v, %v", classes, err)
	}

	second, err := s.EnqueueGrade(ctx, models.ActionCreate, testGrade("s2"))
	if err != nil {
		t.Fatalf("EnqueueGrade: %v", err)
	}
	if second.Seq <= first.Seq {
		t.Errorf("seq after reopen = %d, want > %d", second.Seq, first.Seq)
	}
}

func TestClosedStore(t *testing.T) {
	s, err := OpenForTesting(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}

	ctx := context.Background()
	if _, err := s.EnqueueGrade(ctx, models.ActionCreate, testGrade("s1")); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("EnqueueGrade after close = %v", err)
	}
	if _, err := s.Students(ctx, "c1"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Students after close = %v", err)
	}
}

func TestStatsAndPurge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	done, _ := s.EnqueueGrade(ctx, models.ActionCreate, testGrade("s1"))
	_, _ = s.EnqueueGrade(ctx, models.ActionCreate, testGrade("s2"))
	if _, err := s.Transition(ctx, done.ID, models.StatePending, models.StateSyncing, nil); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := s.Transition(ctx, done.ID, models.StateSyncing, models.StateSynced, nil); err != nil {
		t.Fatalf("sync: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Pending != 1 || stats.Synced != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ByKind[models.KindGrade][models.StatePending] != 1 {
		t.Errorf("by kind = %v", stats.ByKind)
	}
	if _, ok := stats.ByKind[models.KindEvaluation]; !ok {
		t.Error("every kind should be reported")
	}

	n, err := s.PurgeSynced(ctx, time.Now().Add(-time.Hour))
	if err != nil || n != 0 {
		t.Errorf("PurgeSynced(recent cutoff) = %d, %v, want 0", n, err)
	}
	n, err = s.PurgeSynced(ctx, time.Now().Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("PurgeSynced = %d, %v, want 1", n, err)
	}
	if _, err := s.Get(ctx, done.ID); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("purged item Get = %v", err)
	}
	remaining, _ := s.List(ctx, "")
	if len(remaining) != 1 || remaining[0].State != models.StatePending {
		t.Errorf("pending item must survive purge: %v", remaining)
	}
}

func TestPurgeSyncedInBatches(t *testing.T) {
	s := openTestStore(t)
	s.purgeBatchSize = 4
	ctx := context.Background()

	const synced = 11
	for i := 0; i < synced; i++ {
		item, err := s.EnqueueGrade(ctx, models.ActionCreate, testGrade(fmt.Sprintf("s%d", i)))
		if err != nil {
			t.Fatalf("EnqueueGrade: %v", err)
		}
		if _, err := s.SaveGrade(ctx, item, models.StateSyncing); err != nil {
			t.Fatalf("claim: %v", err)
		}
		if _, err := s.Transition(ctx, item.ID, models.StateSyncing, models.StateSynced, nil); err != nil {
			t.Fatalf("sync: %v", err)
		}
	}
	keep, _ := s.EnqueueGrade(ctx, models.ActionCreate, testGrade("pending"))

	n, err := s.PurgeSynced(ctx, time.Now().Add(time.Minute))
	if err != nil || n != synced {
		t.Fatalf("PurgeSynced = %d, %v, want %d", n, err, synced)
	}
	remaining, _ := s.List(ctx, "")
	if len(remaining) != 1 || remaining[0].ID != keep.ID {
		t.Errorf("remaining = %v, want only the pending item", remaining)
	}
}

func TestCompactor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := NewCompactor(s)
	if c.IsRunning() {
		t.Fatal("new compactor should not run")
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !c.IsRunning() {
		t.Error("compactor not running after Start")
	}
	c.Stop()
	if c.IsRunning() {
		t.Error("compactor running after Stop")
	}

	if n := c.RunNow(ctx); n != 0 {
		t.Errorf("RunNow on empty store = %d", n)
	}
	if c.Stats().LastRun.IsZero() {
		t.Error("LastRun not recorded")
	}
}
