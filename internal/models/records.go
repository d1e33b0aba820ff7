// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package models

// Student is a learner enrolled in a class.
type Student struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name" validate:"required,max=100"`
	LastName    string `json:"last_name" validate:"required,max=100"`
	ClassID     string `json:"class_id" validate:"required"`
	Gender      string `json:"gender,omitempty" validate:"omitempty,oneof=male female"`
	DateOfBirth string `json:"date_of_birth,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// FullName returns the display name used in rosters.
func (s *Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// Class is a teaching group for one academic year.
type Class struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Level        string `json:"level,omitempty"`
	TeacherID    string `json:"teacher_id,omitempty"`
	AcademicYear string `json:"academic_year,omitempty"`
}

// Subject is a taught subject.
type Subject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

// SubjectAssignment links a teacher to a subject in a class.
type SubjectAssignment struct {
	ID           string `json:"id"`
	TeacherID    string `json:"teacher_id"`
	ClassID      string `json:"class_id"`
	SubjectID    string `json:"subject_id"`
	AcademicYear string `json:"academic_year,omitempty"`
}

// Grade holds the five assessment components recorded for one student,
// subject and term.
type Grade struct {
	ID           string  `json:"id,omitempty"`
	StudentID    string  `json:"student_id" validate:"required"`
	SubjectID    string  `json:"subject_id" validate:"required"`
	ClassID      string  `json:"class_id" validate:"required"`
	TeacherID    string  `json:"teacher_id" validate:"required"`
	Term         int     `json:"term" validate:"required,min=1,max=3"`
	AcademicYear string  `json:"academic_year" validate:"required,academicyear"`
	ClassTest    float64 `json:"class_test" validate:"gte=0,lte=100"`
	MidTerm      float64 `json:"mid_term" validate:"gte=0,lte=100"`
	Assignment   float64 `json:"assignment" validate:"gte=0,lte=100"`
	Project      float64 `json:"project" validate:"gte=0,lte=100"`
	Exam         float64 `json:"exam" validate:"gte=0,lte=100"`
}

// Total is the plain sum of the assessment components. Weighting is applied
// by the reporting side, not here.
func (g *Grade) Total() float64 {
	return g.ClassTest + g.MidTerm + g.Assignment + g.Project + g.Exam
}

// Attendance is the per-term attendance summary of a student.
type Attendance struct {
	ID           string `json:"id,omitempty"`
	StudentID    string `json:"student_id" validate:"required"`
	ClassID      string `json:"class_id" validate:"required"`
	Term         int    `json:"term" validate:"required,min=1,max=3"`
	AcademicYear string `json:"academic_year" validate:"required,academicyear"`
	TotalDays    int    `json:"total_days" validate:"gte=0"`
	PresentDays  int    `json:"present_days" validate:"gte=0,ltefield=TotalDays"`
	AbsentDays   int    `json:"absent_days" validate:"gte=0,ltefield=TotalDays"`
}

// Evaluation is a teacher's behavioural assessment of a student for a term.
type Evaluation struct {
	ID            string `json:"id,omitempty"`
	StudentID     string `json:"student_id" validate:"required"`
	ClassID       string `json:"class_id" validate:"required"`
	TeacherID     string `json:"teacher_id" validate:"required"`
	Term          int    `json:"term" validate:"required,min=1,max=3"`
	AcademicYear  string `json:"academic_year" validate:"required,academicyear"`
	ConductRating string `json:"conduct_rating" validate:"required,max=50"`
	InterestLevel string `json:"interest_level" validate:"required,max=50"`
	Remarks       string `json:"remarks,omitempty" validate:"max=1000"`
}
