package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campus-dev/sis-api/internal/models"
	appErrors "github.com/campus-dev/sis-api/pkg/errors"
)

type attendanceRepository interface {
	Upsert(ctx context.Context, log *models.AttendanceLog) error
	ListBySectionAndDate(ctx context.Context, sectionID string, date time.Time) ([]models.AttendanceLog, error)
	ListByStudentAndSection(ctx context.Context, studentID, sectionID string) ([]models.AttendanceLog, error)
}

type attendanceSectionRepository interface {
	FindByID(ctx context.Context, id string) (*models.ClassSection, error)
}

type attendanceTermRepository interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

type attendanceSlotRepository interface {
	ListBySection(ctx context.Context, sectionID string) ([]models.ScheduleSlot, error)
}

type attendanceEnrollmentRepository interface {
	ListBySection(ctx context.Context, sectionID string) ([]models.EnrollmentDetail, error)
}

// AttendanceEntry is one student's status on the date being recorded.
type AttendanceEntry struct {
	StudentID string                  `json:"student_id" validate:"required"`
	Status    models.AttendanceStatus `json:"status" validate:"required,oneof=PRESENT ABSENT LATE"`
}

// RecordAttendanceRequest records attendance for a section on one date.
type RecordAttendanceRequest struct {
	SectionID string            `json:"section_id" validate:"required"`
	Date      time.Time         `json:"date" validate:"required"`
	Entries   []AttendanceEntry `json:"entries" validate:"required,min=1,dive"`
}

// AttendanceService records per-date attendance against the term calendar.
type AttendanceService struct {
	logs        attendanceRepository
	sections    attendanceSectionRepository
	terms       attendanceTermRepository
	slots       attendanceSlotRepository
	enrollments attendanceEnrollmentRepository
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAttendanceService creates a new attendance service instance.
func NewAttendanceService(logs attendanceRepository, sections attendanceSectionRepository, terms attendanceTermRepository, slots attendanceSlotRepository, enrollments attendanceEnrollmentRepository, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		logs:        logs,
		sections:    sections,
		terms:       terms,
		slots:       slots,
		enrollments: enrollments,
		validator:   validate,
		logger:      logger,
	}
}

// Record upserts attendance for the given date. The date must be one of the
// section's calendar meeting dates, every student must be enrolled, and the
// acting teacher must own the section (empty teacherID = administrative
// entry).
func (s *AttendanceService) Record(ctx context.Context, teacherID string, req RecordAttendanceRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	section, err := s.sections.FindByID(ctx, req.SectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	if teacherID != "" && section.TeacherID != teacherID {
		return appErrors.Clone(appErrors.ErrUnauthorized, "section belongs to another teacher")
	}
	if section.IsLocked {
		return appErrors.Clone(appErrors.ErrTermLocked, "section is locked")
	}

	ok, err := s.isMeetingDate(ctx, section, req.Date)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrValidation, "date is not a meeting date for this section")
	}

	enrolled, err := s.enrolledSet(ctx, section.ID)
	if err != nil {
		return err
	}

	date := truncateToDay(req.Date)
	for _, entry := range req.Entries {
		if _, found := enrolled[entry.StudentID]; !found {
			return appErrors.Clone(appErrors.ErrValidation, "student is not enrolled in this section")
		}
		log := &models.AttendanceLog{
			SectionID: section.ID,
			StudentID: entry.StudentID,
			Date:      date,
			Status:    entry.Status,
		}
		if err := s.logs.Upsert(ctx, log); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attendance")
		}
	}

	s.logger.Info("attendance recorded",
		zap.String("section_id", section.ID),
		zap.Time("date", date),
		zap.Int("entries", len(req.Entries)))
	return nil
}

// isMeetingDate checks the date against the calendar dates of every
// non-canceled slot of the section within its term.
func (s *AttendanceService) isMeetingDate(ctx context.Context, section *models.ClassSection, date time.Time) (bool, error) {
	term, err := s.terms.FindByID(ctx, section.TermID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	slots, err := s.slots.ListBySection(ctx, section.ID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list slots")
	}

	target := truncateToDay(date)
	for _, slot := range slots {
		for _, meeting := range models.MeetingDates(slot.DayOfWeek, term.StartDate, term.EndDate) {
			// Meeting dates keep the term's location; normalize both
			// sides to calendar days before comparing.
			if truncateToDay(meeting).Equal(target) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *AttendanceService) enrolledSet(ctx context.Context, sectionID string) (map[string]struct{}, error) {
	roster, err := s.enrollments.ListBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}
	set := make(map[string]struct{}, len(roster))
	for _, e := range roster {
		set[e.StudentID] = struct{}{}
	}
	return set, nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SectionOnDate returns the recorded logs of a section on a date.
func (s *AttendanceService) SectionOnDate(ctx context.Context, sectionID string, date time.Time) ([]models.AttendanceLog, error) {
	if _, err := s.sections.FindByID(ctx, sectionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	logs, err := s.logs.ListBySectionAndDate(ctx, sectionID, truncateToDay(date))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return logs, nil
}

// StudentHistory returns one student's attendance history inside a section.
func (s *AttendanceService) StudentHistory(ctx context.Context, studentID, sectionID string) ([]models.AttendanceLog, error) {
	logs, err := s.logs.ListByStudentAndSection(ctx, studentID, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return logs, nil
}
