package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/campus-dev/sis-api/internal/models"
	appErrors "github.com/campus-dev/sis-api/pkg/errors"
)

type scheduleSlotRepository interface {
	FindByID(ctx context.Context, id string) (*models.SlotDetail, error)
	ListBySection(ctx context.Context, sectionID string) ([]models.ScheduleSlot, error)
	FindByTermDayRoom(ctx context.Context, q sqlx.ExtContext, termID string, dayOfWeek int, room string) ([]models.SlotDetail, error)
	FindByTermDayTeacher(ctx context.Context, q sqlx.ExtContext, termID string, dayOfWeek int, teacherID string) ([]models.SlotDetail, error)
}

type scheduleSectionRepository interface {
	FindByID(ctx context.Context, id string) (*models.ClassSection, error)
}

type scheduleTermRepository interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	WithSerializable(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// CheckConflictRequest is a dry-run conflict probe for a prospective slot.
type CheckConflictRequest struct {
	SectionID   string `json:"section_id" validate:"required"`
	DayOfWeek   int    `json:"day_of_week" validate:"required,min=2,max=8"`
	StartLesson int    `json:"start_lesson" validate:"required,min=1"`
	EndLesson   int    `json:"end_lesson" validate:"required,min=1"`
	Room        string `json:"room" validate:"required"`
}

// ScheduleService owns the conflict detector shared by timetable construction
// and the dry-run check endpoint.
type ScheduleService struct {
	slots     scheduleSlotRepository
	sections  scheduleSectionRepository
	terms     scheduleTermRepository
	tx        txRunner
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleService creates a new schedule service instance.
func NewScheduleService(slots scheduleSlotRepository, sections scheduleSectionRepository, terms scheduleTermRepository, tx txRunner, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{slots: slots, sections: sections, terms: terms, tx: tx, validator: validate, logger: logger}
}

// CheckConflictTx scans the committed slots of the proposal's term for a
// collision, inside the caller's transaction. The room dimension is checked
// before the instructor dimension; the proposal's own section never conflicts
// with itself. A nil conflict means the slot is free.
func (s *ScheduleService) CheckConflictTx(ctx context.Context, q sqlx.ExtContext, proposal models.SlotProposal) (*models.ScheduleConflict, error) {
	roomSlots, err := s.slots.FindByTermDayRoom(ctx, q, proposal.TermID, proposal.DayOfWeek, proposal.Room)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan room bookings")
	}
	if conflict := firstOverlap(roomSlots, proposal, models.ConflictRoom); conflict != nil {
		return conflict, nil
	}

	teacherSlots, err := s.slots.FindByTermDayTeacher(ctx, q, proposal.TermID, proposal.DayOfWeek, proposal.TeacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan teacher bookings")
	}
	if conflict := firstOverlap(teacherSlots, proposal, models.ConflictTeacher); conflict != nil {
		return conflict, nil
	}

	return nil, nil
}

func firstOverlap(slots []models.SlotDetail, proposal models.SlotProposal, dimension models.ConflictDimension) *models.ScheduleConflict {
	for _, slot := range slots {
		if slot.SectionID == proposal.SectionID {
			continue
		}
		if !slot.Range().Overlaps(proposal.Range) {
			continue
		}
		return &models.ScheduleConflict{
			Dimension:   dimension,
			SlotID:      slot.ID,
			SectionID:   slot.SectionID,
			SectionName: slot.SectionName,
			DayOfWeek:   slot.DayOfWeek,
			Range:       slot.Range(),
			Room:        slot.Room,
		}
	}
	return nil
}

// Check performs a read-only conflict probe for a prospective slot.
func (s *ScheduleService) Check(ctx context.Context, req CheckConflictRequest) (*models.ScheduleConflict, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid conflict check payload")
	}
	proposal, err := s.buildProposal(ctx, req)
	if err != nil {
		return nil, err
	}

	var conflict *models.ScheduleConflict
	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		conflict, err = s.CheckConflictTx(ctx, tx, *proposal)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conflict, nil
}

func (s *ScheduleService) buildProposal(ctx context.Context, req CheckConflictRequest) (*models.SlotProposal, error) {
	rng, err := lessonRange(req.StartLesson, req.EndLesson)
	if err != nil {
		return nil, err
	}

	section, err := s.sections.FindByID(ctx, req.SectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}

	return &models.SlotProposal{
		SectionID: section.ID,
		TermID:    section.TermID,
		TeacherID: section.TeacherID,
		DayOfWeek: req.DayOfWeek,
		Range:     rng,
		Room:      normalizeRoom(req.Room),
	}, nil
}

// ListSectionSlots returns a section's committed weekly slots.
func (s *ScheduleService) ListSectionSlots(ctx context.Context, sectionID string) ([]models.ScheduleSlot, error) {
	if _, err := s.sections.FindByID(ctx, sectionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	slots, err := s.slots.ListBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list slots")
	}
	return slots, nil
}

// TeachingDates lists the concrete calendar dates a slot meets on, derived
// from the owning term's date range.
func (s *ScheduleService) TeachingDates(ctx context.Context, slotID string) ([]time.Time, error) {
	slot, err := s.slots.FindByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}

	term, err := s.terms.FindByID(ctx, slot.TermID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}

	return models.MeetingDates(slot.DayOfWeek, term.StartDate, term.EndDate), nil
}
