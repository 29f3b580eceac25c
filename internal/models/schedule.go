package models

import (
	"fmt"
	"time"
)

// Weekday codes follow the registrar convention: 2=Monday .. 8=Sunday.
const (
	MinDayOfWeek = 2
	MaxDayOfWeek = 8
)

// ScheduleSlot is a recurring weekly time+room reservation owned by a section.
// Lessons are discrete 1-indexed units; StartLesson <= EndLesson, inclusive.
type ScheduleSlot struct {
	ID          string    `db:"id" json:"id"`
	SectionID   string    `db:"section_id" json:"section_id"`
	TermID      string    `db:"term_id" json:"term_id"`
	DayOfWeek   int       `db:"day_of_week" json:"day_of_week"`
	StartLesson int       `db:"start_lesson" json:"start_lesson"`
	EndLesson   int       `db:"end_lesson" json:"end_lesson"`
	Room        string    `db:"room" json:"room"`
	IsCanceled  bool      `db:"is_canceled" json:"is_canceled"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Range returns the slot's lesson range.
func (s ScheduleSlot) Range() LessonRange {
	return LessonRange{Start: s.StartLesson, End: s.EndLesson}
}

// SlotDetail joins a slot with its owning section's context, as needed by
// the conflict detector to name the offending section.
type SlotDetail struct {
	ScheduleSlot
	SectionName string `db:"section_name" json:"section_name"`
	TeacherID   string `db:"teacher_id" json:"teacher_id"`
}

// LessonRange is an inclusive range of lesson numbers. It is the single
// overlap predicate shared by every scheduling and registration flow;
// touching endpoints count as overlapping because lessons are discrete units.
type LessonRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Overlaps reports whether two ranges share at least one lesson.
func (r LessonRange) Overlaps(other LessonRange) bool {
	return r.Start <= other.End && r.End >= other.Start
}

// String renders the range for conflict messages.
func (r LessonRange) String() string {
	return fmt.Sprintf("lessons %d-%d", r.Start, r.End)
}

// SlotProposal is a slot not yet committed, as fed to the conflict detector.
type SlotProposal struct {
	SectionID string      `json:"section_id"`
	TermID    string      `json:"term_id"`
	TeacherID string      `json:"teacher_id"`
	DayOfWeek int         `json:"day_of_week"`
	Range     LessonRange `json:"range"`
	Room      string      `json:"room"`
}

// ConflictDimension identifies which resource a conflict is about.
type ConflictDimension string

const (
	ConflictRoom    ConflictDimension = "ROOM"
	ConflictTeacher ConflictDimension = "TEACHER"
	ConflictStudent ConflictDimension = "STUDENT"
)

// ScheduleConflict describes an existing slot that blocks a proposal.
type ScheduleConflict struct {
	Dimension   ConflictDimension `json:"dimension"`
	SlotID      string            `json:"slot_id"`
	SectionID   string            `json:"section_id"`
	SectionName string            `json:"section_name"`
	DayOfWeek   int               `json:"day_of_week"`
	Range       LessonRange       `json:"range"`
	Room        string            `json:"room,omitempty"`
}

// ScheduleConflictError is returned when a proposal collides with a
// committed slot.
type ScheduleConflictError struct {
	Conflict ScheduleConflict `json:"conflict"`
}

// Error implements the error interface for conflict errors.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	c := e.Conflict
	switch c.Dimension {
	case ConflictRoom:
		return fmt.Sprintf("room %s already booked by section %s (%s)", c.Room, c.SectionName, c.Range)
	case ConflictTeacher:
		return fmt.Sprintf("teacher already scheduled for section %s (%s)", c.SectionName, c.Range)
	default:
		return fmt.Sprintf("overlaps enrolled section %s (%s)", c.SectionName, c.Range)
	}
}

// MeetingDates enumerates the concrete calendar dates inside [start, end]
// whose weekday matches the registrar day code. Dates ascend, one per week.
func MeetingDates(dayOfWeek int, start, end time.Time) []time.Time {
	if dayOfWeek < MinDayOfWeek || dayOfWeek > MaxDayOfWeek || end.Before(start) {
		return nil
	}
	// Code 2..8 maps to Monday..Sunday; time.Weekday has Monday == 1.
	target := time.Weekday((dayOfWeek - 1) % 7)

	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())

	offset := (int(target) - int(day.Weekday()) + 7) % 7
	day = day.AddDate(0, 0, offset)

	var dates []time.Time
	for !day.After(last) {
		dates = append(dates, day)
		day = day.AddDate(0, 0, 7)
	}
	return dates
}
