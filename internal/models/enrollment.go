package models

import "time"

// Enrollment captures a student's registration in a class section,
// unique per (student, section), carrying grade state.
type Enrollment struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	SectionID    string    `db:"section_id" json:"section_id"`
	RegisteredAt time.Time `db:"registered_at" json:"registered_at"`

	Total10     *float64 `db:"total_10" json:"total_10,omitempty"`
	Total4      *float64 `db:"total_4" json:"total_4,omitempty"`
	LetterGrade *string  `db:"letter_grade" json:"letter_grade,omitempty"`
	Passed      bool     `db:"passed" json:"passed"`
}

// Graded reports whether a final 10-scale score has been recorded.
func (e Enrollment) Graded() bool {
	return e.Total10 != nil
}

// ComponentScore is a sparse (enrollment, component) score entry.
type ComponentScore struct {
	ID           string    `db:"id" json:"id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	ComponentID  string    `db:"component_id" json:"component_id"`
	Score        float64   `db:"score" json:"score"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with joined display fields.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	StudentCode string `db:"student_code" json:"student_code"`
	SectionName string `db:"section_name" json:"section_name"`
	SubjectName string `db:"subject_name" json:"subject_name"`
	Credits     int    `db:"credits" json:"credits"`
	TermID      string `db:"term_id" json:"term_id"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	SectionID string
	TermID    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
