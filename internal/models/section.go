package models

import "time"

// ClassSection is one taught instance of a Subject within a Term,
// owned by exactly one teacher.
type ClassSection struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	TermID    string    `db:"term_id" json:"term_id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	Capacity  int       `db:"capacity" json:"capacity"`
	IsLocked  bool      `db:"is_locked" json:"is_locked"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SectionDetail enriches ClassSection with joined display fields.
type SectionDetail struct {
	ClassSection
	SubjectCode string `db:"subject_code" json:"subject_code"`
	SubjectName string `db:"subject_name" json:"subject_name"`
	TermName    string `db:"term_name" json:"term_name"`
	TeacherName string `db:"teacher_name" json:"teacher_name"`
	Enrolled    int    `db:"enrolled" json:"enrolled"`
}

// SectionFilter filters section listings.
type SectionFilter struct {
	TermID    string
	SubjectID string
	TeacherID string
	Locked    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// DefaultSectionCapacity applies when a section is created without one.
const DefaultSectionCapacity = 60
