package models

import "time"

// Subject is a course of study offered by the institution.
type Subject struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Credits   int       `db:"credits" json:"credits"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	Components []GradeComponent `json:"components,omitempty"`
}

// GradeComponent is a named, weighted contributor to a subject's final score.
// Weights are percentages and must total 100 across a subject.
type GradeComponent struct {
	ID        string `db:"id" json:"id"`
	SubjectID string `db:"subject_id" json:"subject_id"`
	Name      string `db:"name" json:"name"`
	Weight    int    `db:"weight" json:"weight"`
	Position  int    `db:"position" json:"position"`
}

// AttendanceComponentName marks the component seeded on registration.
const AttendanceComponentName = "Attendance"

// SubjectFilter filters subject listings.
type SubjectFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
