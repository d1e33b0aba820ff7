// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package validation

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/tomtom215/gradesync/internal/models"
)

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()

	if v1 == nil {
		t.Fatal("GetValidator() should not return nil")
	}
	if v1 != v2 {
		t.Error("GetValidator() should return the same singleton instance")
	}
}

func validGrade() *models.Grade {
	return &models.Grade{
		StudentID: "s1", SubjectID: "math", ClassID: "c1", TeacherID: "t1",
		Term: 2, AcademicYear: "2025/2026",
		ClassTest: 15, MidTerm: 18, Assignment: 9, Project: 10, Exam: 45,
	}
}

func validAttendance() *models.Attendance {
	return &models.Attendance{
		StudentID: "s1", ClassID: "c1", Term: 1, AcademicYear: "2025/2026",
		TotalDays: 60, PresentDays: 55, AbsentDays: 5,
	}
}

func TestValidateGrade(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(g *models.Grade)
		field   string
		tag     string
		wantErr bool
	}{
		{name: "valid", mutate: func(*models.Grade) {}},
		{name: "boundary scores", mutate: func(g *models.Grade) { g.ClassTest, g.Exam = 0, 100 }},
		{name: "missing student", mutate: func(g *models.Grade) { g.StudentID = "" }, field: "student_id", tag: "required", wantErr: true},
		{name: "term too high", mutate: func(g *models.Grade) { g.Term = 4 }, field: "term", tag: "max", wantErr: true},
		{name: "negative exam", mutate: func(g *models.Grade) { g.Exam = -1 }, field: "exam", tag: "gte", wantErr: true},
		{name: "score over 100", mutate: func(g *models.Grade) { g.Project = 101 }, field: "project", tag: "lte", wantErr: true},
		{name: "bad academic year", mutate: func(g *models.Grade) { g.AcademicYear = "2025-26" }, field: "academic_year", tag: "academicyear", wantErr: true},
		{name: "non consecutive years", mutate: func(g *models.Grade) { g.AcademicYear = "2025/2027" }, field: "academic_year", tag: "academicyear", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := validGrade()
			tt.mutate(g)

			verr := ValidateStruct(g)
			if !tt.wantErr {
				if verr != nil {
					t.Fatalf("ValidateStruct() = %v, want nil", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			errs := verr.Errors()
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1: %v", len(errs), verr)
			}
			if errs[0].Field() != tt.field || errs[0].Tag() != tt.tag {
				t.Errorf("error = %s/%s, want %s/%s", errs[0].Field(), errs[0].Tag(), tt.field, tt.tag)
			}
		})
	}
}

func TestValidateAttendanceDays(t *testing.T) {
	tests := []struct {
		name                   string
		total, present, absent int
		wantTag                string
	}{
		{"exact total", 60, 50, 10, ""},
		{"under total", 60, 50, 5, ""},
		{"sum over total", 60, 50, 11, "daysum"},
		{"present over total", 60, 61, 0, "ltefield"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validAttendance()
			a.TotalDays, a.PresentDays, a.AbsentDays = tt.total, tt.present, tt.absent

			verr := ValidateStruct(a)
			if tt.wantTag == "" {
				if verr != nil {
					t.Fatalf("ValidateStruct() = %v", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			found := false
			for _, e := range verr.Errors() {
				if e.Tag() == tt.wantTag {
					found = true
				}
			}
			if !found {
				t.Errorf("errors %v do not include tag %s", verr, tt.wantTag)
			}
		})
	}
}

func TestValidateEvaluationAndStudent(t *testing.T) {
	e := &models.Evaluation{
		StudentID: "s1", ClassID: "c1", TeacherID: "t1", Term: 3, AcademicYear: "2025/2026",
		ConductRating: "Very good", InterestLevel: "High",
	}
	if verr := ValidateStruct(e); verr != nil {
		t.Errorf("evaluation: %v", verr)
	}
	e.Remarks = strings.Repeat("x", 1001)
	if verr := ValidateStruct(e); verr == nil || verr.Errors()[0].Tag() != "max" {
		t.Errorf("long remarks: %v", verr)
	}

	s := &models.Student{FirstName: "Ama", LastName: "Owusu", ClassID: "c1", Gender: "female", DateOfBirth: "2013-04-09"}
	if verr := ValidateStruct(s); verr != nil {
		t.Errorf("student: %v", verr)
	}
	s.DateOfBirth = "09/04/2013"
	if verr := ValidateStruct(s); verr == nil {
		t.Error("bad date of birth accepted")
	}
}

func TestRecord(t *testing.T) {
	if err := Record(validGrade()); err != nil {
		t.Fatalf("Record(valid) = %v", err)
	}

	g := validGrade()
	g.StudentID = ""
	g.Term = 0
	err := Record(g)
	if err == nil {
		t.Fatal("Record(invalid) = nil")
	}

	wrapped := fmt.Errorf("save grade: %w", err)
	ve, ok := IsValidationError(wrapped)
	if !ok {
		t.Fatal("IsValidationError should unwrap")
	}
	if len(ve.Errors()) != 2 {
		t.Errorf("got %d errors, want 2", len(ve.Errors()))
	}
	if _, ok := IsValidationError(errors.New("disk full")); ok {
		t.Error("plain error reported as validation error")
	}
}

func TestToAPIError(t *testing.T) {
	g := validGrade()
	g.Exam = 120
	apiErr := ValidateStruct(g).ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %s", apiErr.Code)
	}
	if apiErr.Message != "exam must be less than or equal to 100" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if apiErr.Details["field"] != "exam" {
		t.Errorf("Details = %v", apiErr.Details)
	}

	g.StudentID = ""
	apiErr = ValidateStruct(g).ToAPIError()
	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 2 {
		t.Fatalf("Details = %v", apiErr.Details)
	}
	if !strings.Contains(apiErr.Message, "student_id: student_id is required") {
		t.Errorf("Message = %q", apiErr.Message)
	}

	empty := &RequestValidationError{}
	if empty.Error() != "validation failed" || empty.ToAPIError().Message != "Validation failed" {
		t.Error("empty error formatting")
	}
}
