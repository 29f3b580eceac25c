package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/campus-dev/sis-api/internal/models"
	appErrors "github.com/campus-dev/sis-api/pkg/errors"
)

type registrationEnrollmentRepository interface {
	Exists(ctx context.Context, q sqlx.ExtContext, studentID, sectionID string) (bool, error)
	CountBySection(ctx context.Context, q sqlx.ExtContext, sectionID string) (int, error)
	ListByStudentAndTerm(ctx context.Context, q sqlx.ExtContext, studentID, termID string) ([]models.EnrollmentDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
	ListBySection(ctx context.Context, sectionID string) ([]models.EnrollmentDetail, error)
	Create(ctx context.Context, q sqlx.ExtContext, enrollment *models.Enrollment) error
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	Delete(ctx context.Context, id string) error
	UpsertScore(ctx context.Context, q sqlx.ExtContext, score *models.ComponentScore) error
	ListScores(ctx context.Context, enrollmentID string) (map[string]models.ComponentScore, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

type registrationSectionRepository interface {
	FindByID(ctx context.Context, id string) (*models.ClassSection, error)
	FindByIDTx(ctx context.Context, q sqlx.ExtContext, id string) (*models.ClassSection, error)
	FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error)
}

type registrationTermRepository interface {
	FindByIDTx(ctx context.Context, q sqlx.ExtContext, id string) (*models.Term, error)
}

type registrationSlotRepository interface {
	ListBySections(ctx context.Context, q sqlx.ExtContext, sectionIDs []string) (map[string][]models.ScheduleSlot, error)
}

type registrationComponentRepository interface {
	FindComponentByName(ctx context.Context, q sqlx.ExtContext, subjectID, name string) (*models.GradeComponent, error)
}

// RegisterRequest enrolls the authenticated student into a section.
type RegisterRequest struct {
	SectionID string `json:"section_id" validate:"required"`
}

// AttendanceSeedScore is granted on every component named like attendance
// when a student registers; absences subtract from it later.
const AttendanceSeedScore = 10.0

// RegistrationService enrolls students into sections, guarding term state,
// duplicates, capacity and timetable overlap in one transaction.
type RegistrationService struct {
	enrollments registrationEnrollmentRepository
	sections    registrationSectionRepository
	terms       registrationTermRepository
	slots       registrationSlotRepository
	components  registrationComponentRepository
	tx          txRunner
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewRegistrationService creates a new registration service instance.
func NewRegistrationService(enrollments registrationEnrollmentRepository, sections registrationSectionRepository, terms registrationTermRepository, slots registrationSlotRepository, components registrationComponentRepository, tx txRunner, validate *validator.Validate, logger *zap.Logger) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		enrollments: enrollments,
		sections:    sections,
		terms:       terms,
		slots:       slots,
		components:  components,
		tx:          tx,
		validator:   validate,
		logger:      logger,
	}
}

// Register enrolls a student into a section. Checks run in order: the owning
// term must be active with registration open, the student must not already be
// enrolled, the section must have a free seat, and the section's timetable
// must not overlap any of the student's other enrollments in the same term.
// The section and term reads, the gate checks, the enrollment insert and the
// attendance component seed all share one serializable snapshot, so a lock or
// close committed concurrently cannot slip past the checks; a unique
// violation from a concurrent duplicate maps to the already-enrolled kind.
func (s *RegistrationService) Register(ctx context.Context, studentID string, req RegisterRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	enrollment := &models.Enrollment{
		StudentID: studentID,
		SectionID: req.SectionID,
	}
	var section *models.ClassSection

	err := s.tx.WithSerializable(ctx, func(tx *sqlx.Tx) error {
		var err error
		section, err = s.sections.FindByIDTx(ctx, tx, req.SectionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "section not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
		}
		if section.IsLocked {
			return appErrors.Clone(appErrors.ErrTermLocked, "section is locked")
		}

		term, err := s.terms.FindByIDTx(ctx, tx, section.TermID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "term not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
		}
		if !term.IsActive || !term.RegistrationOpen {
			return appErrors.Clone(appErrors.ErrTermNotOpen, "registration is not open for this term")
		}

		exists, err := s.enrollments.Exists(ctx, tx, studentID, section.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
		}
		if exists {
			return appErrors.Clone(appErrors.ErrAlreadyEnrolled, "already enrolled in this section")
		}

		enrolled, err := s.enrollments.CountBySection(ctx, tx, section.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
		}
		if enrolled >= section.Capacity {
			return appErrors.Clone(appErrors.ErrSectionFull, "section has no free seats")
		}

		if err := s.checkTimetableOverlap(ctx, tx, studentID, section); err != nil {
			return err
		}

		if err := s.enrollments.Create(ctx, tx, enrollment); err != nil {
			return err
		}

		return s.seedAttendanceScore(ctx, tx, section.SubjectID, enrollment.ID)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "already enrolled in this section")
		}
		return nil, appErrors.FromError(err)
	}

	s.logger.Info("student registered",
		zap.String("student_id", studentID),
		zap.String("section_id", section.ID))
	return enrollment, nil
}

// checkTimetableOverlap compares the target section's slots against every
// slot of the student's other enrollments in the same term, using the shared
// inclusive range predicate.
func (s *RegistrationService) checkTimetableOverlap(ctx context.Context, tx *sqlx.Tx, studentID string, section *models.ClassSection) error {
	existing, err := s.enrollments.ListByStudentAndTerm(ctx, tx, studentID, section.TermID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	sectionIDs := make([]string, 0, len(existing)+1)
	names := make(map[string]string, len(existing))
	for _, e := range existing {
		sectionIDs = append(sectionIDs, e.SectionID)
		names[e.SectionID] = e.SectionName
	}
	sectionIDs = append(sectionIDs, section.ID)

	slotsBySection, err := s.slots.ListBySections(ctx, tx, sectionIDs)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetables")
	}

	for _, candidate := range slotsBySection[section.ID] {
		for _, e := range existing {
			for _, taken := range slotsBySection[e.SectionID] {
				if candidate.DayOfWeek != taken.DayOfWeek {
					continue
				}
				if !candidate.Range().Overlaps(taken.Range()) {
					continue
				}
				return conflictError(&models.ScheduleConflict{
					Dimension:   models.ConflictStudent,
					SlotID:      taken.ID,
					SectionID:   taken.SectionID,
					SectionName: names[taken.SectionID],
					DayOfWeek:   taken.DayOfWeek,
					Range:       taken.Range(),
					Room:        taken.Room,
				})
			}
		}
	}
	return nil
}

// seedAttendanceScore grants the initial attendance score when the subject
// defines an attendance-named component. Subjects without one skip the seed.
func (s *RegistrationService) seedAttendanceScore(ctx context.Context, tx *sqlx.Tx, subjectID, enrollmentID string) error {
	component, err := s.components.FindComponentByName(ctx, tx, subjectID, models.AttendanceComponentName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance component")
	}
	score := &models.ComponentScore{
		EnrollmentID: enrollmentID,
		ComponentID:  component.ID,
		Score:        AttendanceSeedScore,
	}
	return s.enrollments.UpsertScore(ctx, tx, score)
}

// Drop removes the student's own enrollment. Refused once the section is
// locked or any non-seed grade work has been finalized.
func (s *RegistrationService) Drop(ctx context.Context, studentID, enrollmentID string) error {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.StudentID != studentID {
		return appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
	}
	if enrollment.Graded() {
		return appErrors.Clone(appErrors.ErrValidation, "graded enrollments cannot be dropped")
	}

	section, err := s.sections.FindByID(ctx, enrollment.SectionID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	if section.IsLocked {
		return appErrors.Clone(appErrors.ErrTermLocked, "section is locked")
	}

	if err := s.enrollments.Delete(ctx, enrollmentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}

	s.logger.Info("enrollment dropped",
		zap.String("student_id", studentID),
		zap.String("enrollment_id", enrollmentID))
	return nil
}

// ListEnrollments returns paginated enrollment details filtered by student,
// section or term. Backs the administrative listing.
func (s *RegistrationService) ListEnrollments(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, paginationFor(filter.Page, filter.PageSize, total), nil
}

// ListStudentEnrollments returns the student's enrollments across terms.
func (s *RegistrationService) ListStudentEnrollments(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	enrollments, err := s.enrollments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

// ListSectionRoster returns the enrolled students of a section.
func (s *RegistrationService) ListSectionRoster(ctx context.Context, sectionID string) ([]models.EnrollmentDetail, error) {
	if _, err := s.sections.FindByID(ctx, sectionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	roster, err := s.enrollments.ListBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}
	return roster, nil
}
