// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/gradesync/internal/models"
	"github.com/tomtom215/gradesync/internal/offline"
	"github.com/tomtom215/gradesync/internal/reconciler"
	"github.com/tomtom215/gradesync/internal/records"
	"github.com/tomtom215/gradesync/internal/remote"
	"github.com/tomtom215/gradesync/internal/store"
	"github.com/tomtom215/gradesync/internal/validation"
	ws "github.com/tomtom215/gradesync/internal/websocket"
)

type savedCall struct {
	action models.Action
	record interface{}
}

type mockRecords struct {
	mu       sync.Mutex
	students offline.CacheEntry[[]models.Student]
	readErr  error
	status   records.SaveStatus
	saveErr  error
	saved    []savedCall
	preloads []string
}

func (m *mockRecords) GetStudents(ctx context.Context, classID string) (offline.CacheEntry[[]models.Student], error) {
	return m.students, m.readErr
}

func (m *mockRecords) GetClasses(ctx context.Context, teacherID string) (offline.CacheEntry[[]models.Class], error) {
	return offline.CacheEntry[[]models.Class]{Data: []models.Class{{ID: "c1", TeacherID: teacherID}}}, m.readErr
}

func (m *mockRecords) GetSubjects(ctx context.Context) (offline.CacheEntry[[]models.Subject], error) {
	return offline.CacheEntry[[]models.Subject]{Data: []models.Subject{}}, m.readErr
}

func (m *mockRecords) GetAssignments(ctx context.Context) (offline.CacheEntry[[]models.SubjectAssignment], error) {
	return offline.CacheEntry[[]models.SubjectAssignment]{Data: []models.SubjectAssignment{}}, m.readErr
}

func (m *mockRecords) save(action models.Action, record interface{}) (*records.SaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, savedCall{action, record})
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	item, err := models.NewQueueItem(action, record)
	if err != nil {
		return nil, err
	}
	item.ID = "q-1"
	return &records.SaveResult{Status: m.status, Item: item}, nil
}

func (m *mockRecords) SaveGradeAction(ctx context.Context, action models.Action, g *models.Grade) (*records.SaveResult, error) {
	return m.save(action, g)
}

func (m *mockRecords) SaveAttendance(ctx context.Context, a *models.Attendance) (*records.SaveResult, error) {
	return m.save(actionFor(a.ID), a)
}

func (m *mockRecords) SaveEvaluation(ctx context.Context, e *models.Evaluation) (*records.SaveResult, error) {
	return m.save(actionFor(e.ID), e)
}

func (m *mockRecords) SaveStudent(ctx context.Context, st *models.Student) (*records.SaveResult, error) {
	return m.save(actionFor(st.ID), st)
}

func (m *mockRecords) PreloadData(ctx context.Context, teacherID string) *records.PreloadReport {
	m.mu.Lock()
	m.preloads = append(m.preloads, teacherID)
	m.mu.Unlock()
	return &records.PreloadReport{TeacherID: teacherID, Classes: 2}
}

func (m *mockRecords) lastSaved() savedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[len(m.saved)-1]
}

func actionFor(id string) models.Action {
	if id == "" {
		return models.ActionCreate
	}
	return models.ActionUpdate
}

type mockSyncer struct {
	result  *reconciler.Result
	err     error
	runs    int
	retries int
}

func (m *mockSyncer) Sync(ctx context.Context) (*reconciler.Result, error) {
	m.runs++
	return m.result, m.err
}

func (m *mockSyncer) RetryFailed(ctx context.Context) (*reconciler.Result, error) {
	m.retries++
	return m.result, m.err
}

func (m *mockSyncer) Report() reconciler.StatusReport {
	return reconciler.StatusReport{Status: reconciler.StatusIdle, LastResult: m.result}
}

type mockQueue struct {
	items     []*models.QueueItem
	stats     store.QueueStats
	err       error
	lastKind  models.EntityKind
	lastState []models.LifecycleState
}

func (m *mockQueue) List(ctx context.Context, kind models.EntityKind, states ...models.LifecycleState) ([]*models.QueueItem, error) {
	m.lastKind, m.lastState = kind, states
	return m.items, m.err
}

func (m *mockQueue) Get(ctx context.Context, id string) (*models.QueueItem, error) {
	for _, item := range m.items {
		if item.ID == id {
			return item, nil
		}
	}
	return nil, store.ErrItemNotFound
}

func (m *mockQueue) Stats(ctx context.Context) (store.QueueStats, error) {
	return m.stats, m.err
}

type mockConn struct{ online bool }

func (m *mockConn) IsOnline() bool        { return m.online }
func (m *mockConn) LastChange() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) }

type envelope struct {
	Status   string           `json:"status"`
	Data     json.RawMessage  `json:"data"`
	Metadata models.Metadata  `json:"metadata"`
	Error    *models.APIError `json:"error"`
}

type fixture struct {
	records *mockRecords
	syncer  *mockSyncer
	queue   *mockQueue
	conn    *mockConn
	hub     *ws.Hub
	handler http.Handler
}

func newFixture(t *testing.T, mw *ChiMiddlewareConfig) *fixture {
	t.Helper()
	f := &fixture{
		records: &mockRecords{status: records.StatusQueued},
		syncer:  &mockSyncer{result: &reconciler.Result{ByKind: map[models.EntityKind]reconciler.KindResult{}}},
		queue:   &mockQueue{},
		conn:    &mockConn{online: true},
		hub:     ws.NewHub(),
	}
	h := NewHandler(Deps{
		Records:      f.records,
		Syncer:       f.syncer,
		Queue:        f.queue,
		Connectivity: f.conn,
		Hub:          f.hub,
		Version:      "test",
	})
	f.handler = NewRouter(h, NewChiMiddleware(mw)).SetupChi()
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, env
}

const validGrade = `{"student_id":"s1","subject_id":"math","class_id":"c1","teacher_id":"t1","term":1,"academic_year":"2025/2026","class_test":12,"mid_term":15,"assignment":9,"project":30,"exam":64}`

func TestReadReportsCacheProvenance(t *testing.T) {
	f := newFixture(t, nil)
	cachedAt := time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC)
	f.records.students = offline.CacheEntry[[]models.Student]{
		Data:        []models.Student{{ID: "s1", FirstName: "Ama"}, {ID: "s2", FirstName: "Kojo"}},
		IsFromCache: true,
		CachedAt:    cachedAt,
	}

	rec, env := f.do(t, http.MethodGet, "/api/v1/students?class_id=c1", "")
	if rec.Code != http.StatusOK || env.Status != "success" {
		t.Fatalf("status = %d %+v", rec.Code, env)
	}
	if !env.Metadata.FromCache || env.Metadata.CachedAt == nil || !env.Metadata.CachedAt.Equal(cachedAt) {
		t.Errorf("metadata = %+v", env.Metadata)
	}
	var students []models.Student
	if err := json.Unmarshal(env.Data, &students); err != nil || len(students) != 2 {
		t.Errorf("data = %s, %v", env.Data, err)
	}

	f.records.students.IsFromCache = false
	_, env = f.do(t, http.MethodGet, "/api/v1/students", "")
	if env.Metadata.FromCache || env.Metadata.CachedAt != nil {
		t.Errorf("fresh read metadata = %+v", env.Metadata)
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"no cached data", offline.ErrNoCachedData, http.StatusServiceUnavailable, ErrCodeNoCachedData},
		{"rejected", &remote.RejectionError{Status: http.StatusForbidden, Code: "forbidden"}, http.StatusForbidden, ErrCodeRemoteRejected},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.records.readErr = tt.err

			for _, path := range []string{"/api/v1/students", "/api/v1/classes?teacher_id=t1", "/api/v1/subjects", "/api/v1/assignments"} {
				rec, env := f.do(t, http.MethodGet, path, "")
				if rec.Code != tt.wantCode || env.Status != "error" || env.Error == nil || env.Error.Code != tt.wantErr {
					t.Errorf("%s: %d %+v", path, rec.Code, env.Error)
				}
			}
		})
	}
}

func TestSaveGradeStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     records.SaveStatus
		wantCode   int
		wantQueued bool
	}{
		{"synced", records.StatusSynced, http.StatusCreated, false},
		{"queued", records.StatusQueued, http.StatusAccepted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.records.status = tt.status

			rec, env := f.do(t, http.MethodPost, "/api/v1/grades", validGrade)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if env.Metadata.Queued != tt.wantQueued {
				t.Errorf("metadata.queued = %v", env.Metadata.Queued)
			}
			var res records.SaveResult
			if err := json.Unmarshal(env.Data, &res); err != nil || res.Status != tt.status || res.Item.Kind != models.KindGrade {
				t.Errorf("data = %s, %v", env.Data, err)
			}
			if got := f.records.lastSaved(); got.action != models.ActionCreate {
				t.Errorf("action = %s", got.action)
			}
		})
	}
}

func TestSaveGradeBadInput(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		saveErr error
		code    string
	}{
		{"malformed json", `{"student_id":`, nil, ErrCodeBadRequest},
		{"unknown field", `{"student_id":"s1","grade_letter":"A"}`, nil, ErrCodeBadRequest},
		{"validation", validGrade, validation.Record(&models.Grade{Exam: 500}), "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.records.saveErr = tt.saveErr

			rec, env := f.do(t, http.MethodPost, "/api/v1/grades", tt.body)
			if rec.Code != http.StatusBadRequest || env.Error == nil || env.Error.Code != tt.code {
				t.Errorf("got %d %+v", rec.Code, env.Error)
			}
		})
	}
}

func TestGradePathIDs(t *testing.T) {
	f := newFixture(t, nil)

	rec, _ := f.do(t, http.MethodPut, "/api/v1/grades/g-9", validGrade)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("PUT status = %d: %s", rec.Code, rec.Body.String())
	}
	got := f.records.lastSaved()
	if g, ok := got.record.(*models.Grade); got.action != models.ActionUpdate || !ok || g.ID != "g-9" {
		t.Errorf("PUT saved %+v", got)
	}

	rec, _ = f.do(t, http.MethodDelete, "/api/v1/grades/g-9", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("DELETE status = %d: %s", rec.Code, rec.Body.String())
	}
	got = f.records.lastSaved()
	if g, ok := got.record.(*models.Grade); got.action != models.ActionDelete || !ok || g.ID != "g-9" {
		t.Errorf("DELETE saved %+v", got)
	}

	rec, _ = f.do(t, http.MethodPut, "/api/v1/evaluations/ev-3", `{"student_id":"s1","class_id":"c1","teacher_id":"t1","term":1,"academic_year":"2025/2026"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("PUT evaluation status = %d: %s", rec.Code, rec.Body.String())
	}
	if e, ok := f.records.lastSaved().record.(*models.Evaluation); !ok || e.ID != "ev-3" {
		t.Errorf("evaluation saved %+v", f.records.lastSaved())
	}
}

func TestPreload(t *testing.T) {
	f := newFixture(t, nil)

	rec, env := f.do(t, http.MethodPost, "/api/v1/preload", "")
	if rec.Code != http.StatusBadRequest || env.Error.Code != ErrCodeBadRequest {
		t.Errorf("missing teacher_id: %d %+v", rec.Code, env.Error)
	}

	rec, env = f.do(t, http.MethodPost, "/api/v1/preload?teacher_id=t7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var report records.PreloadReport
	if err := json.Unmarshal(env.Data, &report); err != nil || report.TeacherID != "t7" || report.Classes != 2 {
		t.Errorf("report = %s, %v", env.Data, err)
	}
}

func TestSyncEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	f.syncer.result = &reconciler.Result{Synced: 3, Failed: 1, ByKind: map[models.EntityKind]reconciler.KindResult{
		models.KindGrade: {Synced: 3, Failed: 1},
	}}
	f.queue.stats = store.QueueStats{Pending: 2, Failed: 1}

	rec, env := f.do(t, http.MethodPost, "/api/v1/sync/run", "")
	if rec.Code != http.StatusOK || f.syncer.runs != 1 {
		t.Fatalf("run: %d, runs=%d", rec.Code, f.syncer.runs)
	}
	var res reconciler.Result
	if err := json.Unmarshal(env.Data, &res); err != nil || res.Synced != 3 || res.ByKind[models.KindGrade].Failed != 1 {
		t.Errorf("run data = %s, %v", env.Data, err)
	}

	if rec, _ := f.do(t, http.MethodPost, "/api/v1/sync/retry", ""); rec.Code != http.StatusOK || f.syncer.retries != 1 {
		t.Errorf("retry: %d, retries=%d", rec.Code, f.syncer.retries)
	}

	rec, env = f.do(t, http.MethodGet, "/api/v1/sync/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var status struct {
		Online bool              `json:"online"`
		Status reconciler.Status `json:"status"`
		Queue  store.QueueStats  `json:"queue"`
	}
	if err := json.Unmarshal(env.Data, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Online || status.Status != reconciler.StatusIdle || status.Queue.Pending != 2 {
		t.Errorf("status = %+v", status)
	}

	f.syncer.result = &reconciler.Result{Skipped: true, ByKind: map[models.EntityKind]reconciler.KindResult{}}
	_, env = f.do(t, http.MethodPost, "/api/v1/sync/run", "")
	if err := json.Unmarshal(env.Data, &res); err != nil || !res.Skipped {
		t.Errorf("skipped pass data = %s", env.Data)
	}
}

func TestQueueList(t *testing.T) {
	f := newFixture(t, nil)
	for _, id := range []string{"q-1", "q-2", "q-3"} {
		f.queue.items = append(f.queue.items, &models.QueueItem{ID: id, Kind: models.KindGrade, State: models.StateFailed})
	}

	rec, env := f.do(t, http.MethodGet, "/api/v1/queue?kind=grade&state=failed&limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var items []models.QueueItem
	if err := json.Unmarshal(env.Data, &items); err != nil || len(items) != 2 {
		t.Errorf("items = %s, %v", env.Data, err)
	}
	if f.queue.lastKind != models.KindGrade || len(f.queue.lastState) != 1 || f.queue.lastState[0] != models.StateFailed {
		t.Errorf("filters = %s %v", f.queue.lastKind, f.queue.lastState)
	}

	for _, q := range []string{"kind=homework", "state=lost", "limit=-1", "limit=abc"} {
		rec, env := f.do(t, http.MethodGet, "/api/v1/queue?"+q, "")
		if rec.Code != http.StatusBadRequest || env.Error == nil {
			t.Errorf("%s: %d %+v", q, rec.Code, env.Error)
		}
	}

	f.queue.items = nil
	_, env = f.do(t, http.MethodGet, "/api/v1/queue", "")
	if string(env.Data) != "[]" {
		t.Errorf("empty queue data = %s, want []", env.Data)
	}
}

func TestQueueItem(t *testing.T) {
	f := newFixture(t, nil)
	f.queue.items = []*models.QueueItem{{ID: "q-7", Kind: models.KindAttendance, State: models.StatePending}}

	rec, _ := f.do(t, http.MethodGet, "/api/v1/queue/q-7", "")
	if rec.Code != http.StatusOK {
		t.Errorf("existing item: %d", rec.Code)
	}
	rec, env := f.do(t, http.MethodGet, "/api/v1/queue/q-404", "")
	if rec.Code != http.StatusNotFound || env.Error.Code != ErrCodeNotFound {
		t.Errorf("missing item: %d %+v", rec.Code, env.Error)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		online bool
		want   string
	}{
		{true, "ok"},
		{false, "degraded"},
	}
	for _, tt := range tests {
		f := newFixture(t, nil)
		f.conn.online = tt.online
		f.queue.stats = store.QueueStats{Pending: 4, Failed: 1}

		rec, env := f.do(t, http.MethodGet, "/api/v1/health", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var health HealthResponse
		if err := json.Unmarshal(env.Data, &health); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if health.Status != tt.want || health.Online != tt.online || health.Pending != 4 || health.Version != "test" {
			t.Errorf("online=%v health = %+v", tt.online, health)
		}
	}
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t, nil)
	rec, env := f.do(t, http.MethodGet, "/api/v1/homework", "")
	if rec.Code != http.StatusNotFound || env.Error == nil || env.Error.Code != ErrCodeNotFound {
		t.Errorf("got %d %+v", rec.Code, env.Error)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodGet, "/api/v1/subjects", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `endpoint="/api/v1/subjects"`) {
		t.Error("API request metric missing from /metrics")
	}
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitRequests = 2
	cfg.RateLimitWindow = time.Minute
	f := newFixture(t, cfg)

	for i := 0; i < 2; i++ {
		if rec, _ := f.do(t, http.MethodGet, "/api/v1/subjects", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, rec.Code)
		}
	}
	rec, env := f.do(t, http.MethodGet, "/api/v1/subjects", "")
	if rec.Code != http.StatusTooManyRequests || env.Error == nil || env.Error.Code != ErrCodeTooManyRequests {
		t.Errorf("third request: %d %+v", rec.Code, env.Error)
	}

	if rec, _ := f.do(t, http.MethodGet, "/api/v1/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health is rate limited: %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	cfg := DefaultChiMiddlewareConfig()
	cfg.CORSAllowedOrigins = []string{"http://localhost:5173"}
	f := newFixture(t, cfg)

	tests := []struct {
		origin string
		allow  bool
	}{
		{"http://localhost:5173", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/grades", nil)
		req.Header.Set("Origin", tt.origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		got := rec.Header().Get("Access-Control-Allow-Origin")
		if (got == tt.origin) != tt.allow {
			t.Errorf("origin %s: Access-Control-Allow-Origin = %q", tt.origin, got)
		}
	}
}

func TestCORSEmptyOriginsDeniesAll(t *testing.T) {
	f := newFixture(t, DefaultChiMiddlewareConfig())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/grades", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q, want none", got)
	}
}

func TestWebSocketStream(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.hub.Serve(ctx) }()

	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"

	header := http.Header{"Origin": []string{"https://evil.example"}}
	if _, resp, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatal("foreign origin was accepted")
	} else if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("foreign origin status = %d", resp.StatusCode)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for f.hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	f.hub.Publish(reconciler.EventSyncCompleted, map[string]int{"synced": 2})

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg ws.Message
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != reconciler.EventSyncCompleted {
		t.Errorf("message = %s, %v", raw, err)
	}
}
