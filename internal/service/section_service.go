package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/campus-dev/sis-api/internal/models"
	appErrors "github.com/campus-dev/sis-api/pkg/errors"
)

type sectionRepository interface {
	List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.ClassSection, error)
	FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error)
	CountBySubjectAndTerm(ctx context.Context, subjectID, termID string) (int, error)
	Create(ctx context.Context, section *models.ClassSection) error
	Update(ctx context.Context, section *models.ClassSection) error
	SetLocked(ctx context.Context, id string, locked bool) error
	Delete(ctx context.Context, id string) error
}

type sectionSlotRepository interface {
	FindByID(ctx context.Context, id string) (*models.SlotDetail, error)
	ListBySection(ctx context.Context, sectionID string) ([]models.ScheduleSlot, error)
	Create(ctx context.Context, q sqlx.ExtContext, slot *models.ScheduleSlot) error
	Cancel(ctx context.Context, id string) error
}

type sectionTermRepository interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

type sectionSubjectRepository interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type sectionEnrollmentRepository interface {
	ListBySection(ctx context.Context, sectionID string) ([]models.EnrollmentDetail, error)
}

type conflictChecker interface {
	CheckConflictTx(ctx context.Context, q sqlx.ExtContext, proposal models.SlotProposal) (*models.ScheduleConflict, error)
}

// CreateSectionRequest describes payload for opening a class section.
type CreateSectionRequest struct {
	SubjectID string `json:"subject_id" validate:"required"`
	TermID    string `json:"term_id" validate:"required"`
	TeacherID string `json:"teacher_id" validate:"required"`
	Capacity  int    `json:"capacity" validate:"omitempty,min=1"`
}

// UpdateSectionRequest updates mutable fields on a section.
type UpdateSectionRequest struct {
	TeacherID string `json:"teacher_id" validate:"required"`
	Capacity  int    `json:"capacity" validate:"required,min=1"`
}

// AddSlotRequest describes a weekly slot to commit to a section's timetable.
type AddSlotRequest struct {
	SectionID   string `json:"section_id" validate:"required"`
	DayOfWeek   int    `json:"day_of_week" validate:"required,min=2,max=8"`
	StartLesson int    `json:"start_lesson" validate:"required,min=1"`
	EndLesson   int    `json:"end_lesson" validate:"required,min=1"`
	Room        string `json:"room" validate:"required"`
}

// SectionService owns class sections and their timetables.
type SectionService struct {
	sections    sectionRepository
	slots       sectionSlotRepository
	terms       sectionTermRepository
	subjects    sectionSubjectRepository
	enrollments sectionEnrollmentRepository
	detector    conflictChecker
	tx          txRunner
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewSectionService creates a new section service instance.
func NewSectionService(sections sectionRepository, slots sectionSlotRepository, terms sectionTermRepository, subjects sectionSubjectRepository, enrollments sectionEnrollmentRepository, detector conflictChecker, tx txRunner, validate *validator.Validate, logger *zap.Logger) *SectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionService{
		sections:    sections,
		slots:       slots,
		terms:       terms,
		subjects:    subjects,
		enrollments: enrollments,
		detector:    detector,
		tx:          tx,
		validator:   validate,
		logger:      logger,
	}
}

// List returns paginated section details.
func (s *SectionService) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, *models.Pagination, error) {
	sections, total, err := s.sections.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	return sections, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a section with joined display fields.
func (s *SectionService) Get(ctx context.Context, id string) (*models.SectionDetail, error) {
	section, err := s.sections.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	return section, nil
}

// Create opens a class section in an active term. The section name is derived
// from the subject code plus the next group number for that subject and term.
func (s *SectionService) Create(ctx context.Context, req CreateSectionRequest) (*models.ClassSection, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}

	term, err := s.terms.FindByID(ctx, req.TermID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	if !term.IsActive {
		return nil, appErrors.Clone(appErrors.ErrTermLocked, "term is closed")
	}

	subject, err := s.subjects.FindByID(ctx, req.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	group, err := s.NextGroupNumber(ctx, req.SubjectID, req.TermID)
	if err != nil {
		return nil, err
	}

	capacity := req.Capacity
	if capacity <= 0 {
		capacity = models.DefaultSectionCapacity
	}

	section := &models.ClassSection{
		Name:      fmt.Sprintf("%s.%02d", subject.Code, group),
		SubjectID: req.SubjectID,
		TermID:    req.TermID,
		TeacherID: req.TeacherID,
		Capacity:  capacity,
	}
	if err := s.sections.Create(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create section")
	}

	s.logger.Info("section created",
		zap.String("section_id", section.ID),
		zap.String("name", section.Name),
		zap.String("term_id", section.TermID))
	return section, nil
}

// NextGroupNumber returns the 1-based group number the next section of this
// subject would take within the term.
func (s *SectionService) NextGroupNumber(ctx context.Context, subjectID, termID string) (int, error) {
	count, err := s.sections.CountBySubjectAndTerm(ctx, subjectID, termID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count sections")
	}
	return count + 1, nil
}

// Update edits the teacher and capacity of an unlocked section.
func (s *SectionService) Update(ctx context.Context, id string, req UpdateSectionRequest) (*models.ClassSection, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}

	section, err := s.loadUnlocked(ctx, id)
	if err != nil {
		return nil, err
	}

	section.TeacherID = req.TeacherID
	section.Capacity = req.Capacity
	if err := s.sections.Update(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update section")
	}
	return section, nil
}

// Delete removes a section and its slots. Refused once any enrollment has
// been graded.
func (s *SectionService) Delete(ctx context.Context, id string) error {
	if _, err := s.loadUnlocked(ctx, id); err != nil {
		return err
	}

	enrollments, err := s.enrollments.ListBySection(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	for _, e := range enrollments {
		if e.Graded() {
			return appErrors.Clone(appErrors.ErrValidation, "section has graded enrollments and cannot be deleted")
		}
	}

	if err := s.sections.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete section")
	}
	return nil
}

// AddSlot commits a weekly slot to a section's timetable. The conflict scan
// and the insert run in one serializable transaction so two admins cannot
// book the same room simultaneously; the database uniqueness guard catches
// whatever the scan races past.
func (s *SectionService) AddSlot(ctx context.Context, req AddSlotRequest) (*models.ScheduleSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	rng, err := lessonRange(req.StartLesson, req.EndLesson)
	if err != nil {
		return nil, err
	}

	section, err := s.loadUnlocked(ctx, req.SectionID)
	if err != nil {
		return nil, err
	}
	term, err := s.terms.FindByID(ctx, section.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	if !term.IsActive {
		return nil, appErrors.Clone(appErrors.ErrTermLocked, "term is closed")
	}

	proposal := models.SlotProposal{
		SectionID: section.ID,
		TermID:    section.TermID,
		TeacherID: section.TeacherID,
		DayOfWeek: req.DayOfWeek,
		Range:     rng,
		Room:      normalizeRoom(req.Room),
	}

	slot := &models.ScheduleSlot{
		SectionID:   section.ID,
		TermID:      section.TermID,
		DayOfWeek:   proposal.DayOfWeek,
		StartLesson: proposal.Range.Start,
		EndLesson:   proposal.Range.End,
		Room:        proposal.Room,
	}

	err = s.tx.WithSerializable(ctx, func(tx *sqlx.Tx) error {
		conflict, err := s.detector.CheckConflictTx(ctx, tx, proposal)
		if err != nil {
			return err
		}
		if conflict != nil {
			return conflictError(conflict)
		}
		return s.slots.Create(ctx, tx, slot)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrScheduleConflict.Code, appErrors.ErrScheduleConflict.Status, "slot collides with a concurrent booking")
		}
		return nil, appErrors.FromError(err)
	}

	s.logger.Info("slot added",
		zap.String("section_id", section.ID),
		zap.Int("day_of_week", slot.DayOfWeek),
		zap.String("room", slot.Room))
	return slot, nil
}

// RemoveSlot cancels a slot on a section's timetable. The row is kept with
// is_canceled set so past attendance stays attributable. Removal is forbidden
// once the owning section is locked or its term closed, matching the gating
// on grade entry.
func (s *SectionService) RemoveSlot(ctx context.Context, slotID string) error {
	slot, err := s.slots.FindByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}

	if _, err := s.loadUnlocked(ctx, slot.SectionID); err != nil {
		return err
	}
	term, err := s.terms.FindByID(ctx, slot.TermID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	if !term.IsActive {
		return appErrors.Clone(appErrors.ErrTermLocked, "term is closed")
	}

	if err := s.slots.Cancel(ctx, slotID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel slot")
	}
	return nil
}

// Lock freezes a section against timetable and roster mutation.
func (s *SectionService) Lock(ctx context.Context, id string) error {
	return s.setLocked(ctx, id, true)
}

// Unlock reopens a section.
func (s *SectionService) Unlock(ctx context.Context, id string) error {
	return s.setLocked(ctx, id, false)
}

func (s *SectionService) setLocked(ctx context.Context, id string, locked bool) error {
	if _, err := s.sections.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	if err := s.sections.SetLocked(ctx, id, locked); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update section lock")
	}
	return nil
}

func (s *SectionService) loadUnlocked(ctx context.Context, id string) (*models.ClassSection, error) {
	section, err := s.sections.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	if section.IsLocked {
		return nil, appErrors.Clone(appErrors.ErrTermLocked, "section is locked")
	}
	return section, nil
}
