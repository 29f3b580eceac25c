package models

import "time"

// AttendanceStatus enumerates per-date attendance outcomes.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "PRESENT"
	AttendanceAbsent  AttendanceStatus = "ABSENT"
	AttendanceLate    AttendanceStatus = "LATE"
)

// AttendanceLog records one student's attendance on one meeting date.
// The date must belong to the section's term-calendar meeting dates.
type AttendanceLog struct {
	ID        string           `db:"id" json:"id"`
	SectionID string           `db:"section_id" json:"section_id"`
	StudentID string           `db:"student_id" json:"student_id"`
	Date      time.Time        `db:"date" json:"date"`
	Status    AttendanceStatus `db:"status" json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
