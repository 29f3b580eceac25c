package models

import "time"

// Term models an academic semester within the institution calendar.
// Lifecycle: created active, optionally opened for registration, closed once
// every enrollment in every owned section carries a final grade.
type Term struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	StartDate        time.Time `db:"start_date" json:"start_date"`
	EndDate          time.Time `db:"end_date" json:"end_date"`
	IsActive         bool      `db:"is_active" json:"is_active"`
	RegistrationOpen bool      `db:"registration_open" json:"registration_open"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// TermFilter defines filters supported by list endpoints.
type TermFilter struct {
	IsActive  *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// UngradedSection reports a section blocking term closure.
type UngradedSection struct {
	SectionID   string `db:"section_id" json:"section_id"`
	SectionName string `db:"section_name" json:"section_name"`
	Missing     int    `db:"missing" json:"missing"`
}
