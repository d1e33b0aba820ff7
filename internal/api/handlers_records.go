// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/gradesync/internal/models"
	"github.com/tomtom215/gradesync/internal/offline"
	"github.com/tomtom215/gradesync/internal/records"
)

// Students returns the roster of ?class_id=, or every student when absent.
func (h *Handler) Students(w http.ResponseWriter, r *http.Request) {
	entry, err := h.records.GetStudents(r.Context(), r.URL.Query().Get("class_id"))
	respondRead(w, r, entry, err)
}

// Classes returns the classes of ?teacher_id=, or every class when absent.
func (h *Handler) Classes(w http.ResponseWriter, r *http.Request) {
	entry, err := h.records.GetClasses(r.Context(), r.URL.Query().Get("teacher_id"))
	respondRead(w, r, entry, err)
}

// Subjects returns every subject.
func (h *Handler) Subjects(w http.ResponseWriter, r *http.Request) {
	entry, err := h.records.GetSubjects(r.Context())
	respondRead(w, r, entry, err)
}

// Assignments returns every subject assignment.
func (h *Handler) Assignments(w http.ResponseWriter, r *http.Request) {
	entry, err := h.records.GetAssignments(r.Context())
	respondRead(w, r, entry, err)
}

func respondRead[T any](w http.ResponseWriter, r *http.Request, entry offline.CacheEntry[T], err error) {
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, http.StatusOK, entry.Data, cacheMetadata(entry))
}

// respondSave writes 201 for a write the remote service confirmed and 202
// for one that is queued.
func respondSave(w http.ResponseWriter, r *http.Request, res *records.SaveResult, err error) {
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if res.Status == records.StatusSynced {
		respondData(w, http.StatusCreated, res, nil)
		return
	}
	respondData(w, http.StatusAccepted, res, &models.Metadata{Queued: true})
}

// SaveGrade creates a grade, or updates it when the body carries an id.
func (h *Handler) SaveGrade(w http.ResponseWriter, r *http.Request) {
	var g models.Grade
	if !decodeBody(w, r, &g) {
		return
	}
	action := models.ActionCreate
	if g.ID != "" {
		action = models.ActionUpdate
	}
	res, err := h.records.SaveGradeAction(r.Context(), action, &g)
	respondSave(w, r, res, err)
}

// UpdateGrade updates the grade named in the path.
func (h *Handler) UpdateGrade(w http.ResponseWriter, r *http.Request) {
	var g models.Grade
	if !decodeBody(w, r, &g) {
		return
	}
	g.ID = chi.URLParam(r, "id")
	res, err := h.records.SaveGradeAction(r.Context(), models.ActionUpdate, &g)
	respondSave(w, r, res, err)
}

// DeleteGrade queues deletion of the grade named in the path.
func (h *Handler) DeleteGrade(w http.ResponseWriter, r *http.Request) {
	res, err := h.records.SaveGradeAction(r.Context(), models.ActionDelete, &models.Grade{ID: chi.URLParam(r, "id")})
	respondSave(w, r, res, err)
}

// SaveAttendance creates or updates a term attendance summary.
func (h *Handler) SaveAttendance(w http.ResponseWriter, r *http.Request) {
	var a models.Attendance
	if !decodeBody(w, r, &a) {
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		a.ID = id
	}
	res, err := h.records.SaveAttendance(r.Context(), &a)
	respondSave(w, r, res, err)
}

// SaveEvaluation creates or updates a term evaluation.
func (h *Handler) SaveEvaluation(w http.ResponseWriter, r *http.Request) {
	var e models.Evaluation
	if !decodeBody(w, r, &e) {
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		e.ID = id
	}
	res, err := h.records.SaveEvaluation(r.Context(), &e)
	respondSave(w, r, res, err)
}

// SaveStudent creates or updates a student.
func (h *Handler) SaveStudent(w http.ResponseWriter, r *http.Request) {
	var st models.Student
	if !decodeBody(w, r, &st) {
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		st.ID = id
	}
	res, err := h.records.SaveStudent(r.Context(), &st)
	respondSave(w, r, res, err)
}
