package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-dev/sis-api/internal/models"
)

// SlotRepository provides persistence for schedule slots. Conflict-scan
// methods accept an sqlx.ExtContext so they can run inside the booking
// transaction as well as against the pool.
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository creates a new slot repository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

const slotColumns = `id, section_id, term_id, day_of_week, start_lesson, end_lesson, room, is_canceled, created_at, updated_at`

const slotDetailColumns = `s.id, s.section_id, s.term_id, s.day_of_week, s.start_lesson, s.end_lesson, s.room, s.is_canceled, s.created_at, s.updated_at,
        cs.name AS section_name, cs.teacher_id`

// FindByID loads a slot with its owning section's context.
func (r *SlotRepository) FindByID(ctx context.Context, id string) (*models.SlotDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_slots s JOIN class_sections cs ON cs.id = s.section_id WHERE s.id = $1`, slotDetailColumns)
	var slot models.SlotDetail
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// ListBySection returns a section's non-canceled slots ordered by day/lesson.
func (r *SlotRepository) ListBySection(ctx context.Context, sectionID string) ([]models.ScheduleSlot, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_slots WHERE section_id = $1 AND is_canceled = FALSE ORDER BY day_of_week ASC, start_lesson ASC`, slotColumns)
	var slots []models.ScheduleSlot
	if err := r.db.SelectContext(ctx, &slots, query, sectionID); err != nil {
		return nil, fmt.Errorf("list slots by section: %w", err)
	}
	return slots, nil
}

// FindByTermDayRoom returns the non-canceled slots sharing term, day and room
// with a proposal: the room-dimension comparison universe.
func (r *SlotRepository) FindByTermDayRoom(ctx context.Context, q sqlx.ExtContext, termID string, dayOfWeek int, room string) ([]models.SlotDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_slots s
        JOIN class_sections cs ON cs.id = s.section_id
        WHERE s.term_id = $1 AND s.day_of_week = $2 AND s.room = $3 AND s.is_canceled = FALSE`, slotDetailColumns)
	var slots []models.SlotDetail
	if err := sqlx.SelectContext(ctx, q, &slots, query, termID, dayOfWeek, room); err != nil {
		return nil, fmt.Errorf("find slots by term/day/room: %w", err)
	}
	return slots, nil
}

// FindByTermDayTeacher returns the non-canceled slots sharing term and day
// whose owning section has the given teacher: the instructor-dimension
// comparison universe.
func (r *SlotRepository) FindByTermDayTeacher(ctx context.Context, q sqlx.ExtContext, termID string, dayOfWeek int, teacherID string) ([]models.SlotDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_slots s
        JOIN class_sections cs ON cs.id = s.section_id
        WHERE s.term_id = $1 AND s.day_of_week = $2 AND cs.teacher_id = $3 AND s.is_canceled = FALSE`, slotDetailColumns)
	var slots []models.SlotDetail
	if err := sqlx.SelectContext(ctx, q, &slots, query, termID, dayOfWeek, teacherID); err != nil {
		return nil, fmt.Errorf("find slots by term/day/teacher: %w", err)
	}
	return slots, nil
}

// ListBySections returns the non-canceled slots of many sections keyed by
// section id. Used by the registration overlap check.
func (r *SlotRepository) ListBySections(ctx context.Context, q sqlx.ExtContext, sectionIDs []string) (map[string][]models.ScheduleSlot, error) {
	result := make(map[string][]models.ScheduleSlot, len(sectionIDs))
	if len(sectionIDs) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf(`SELECT %s FROM schedule_slots WHERE section_id IN (?) AND is_canceled = FALSE`, slotColumns), sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("build slots query: %w", err)
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)
	var slots []models.ScheduleSlot
	if err := sqlx.SelectContext(ctx, q, &slots, query, args...); err != nil {
		return nil, fmt.Errorf("list slots by sections: %w", err)
	}
	for _, slot := range slots {
		result[slot.SectionID] = append(result[slot.SectionID], slot)
	}
	return result, nil
}

// Create stores a new slot record.
func (r *SlotRepository) Create(ctx context.Context, q sqlx.ExtContext, slot *models.ScheduleSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now

	const query = `INSERT INTO schedule_slots (id, section_id, term_id, day_of_week, start_lesson, end_lesson, room, is_canceled, created_at, updated_at)
        VALUES (:id, :section_id, :term_id, :day_of_week, :start_lesson, :end_lesson, :room, :is_canceled, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, slot); err != nil {
		return fmt.Errorf("create slot: %w", err)
	}
	return nil
}

// Cancel marks a slot canceled without losing its history. Canceled slots
// drop out of every conflict scan and the room exclusion guard.
func (r *SlotRepository) Cancel(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE schedule_slots SET is_canceled = TRUE, updated_at = $2 WHERE id = $1`, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("cancel slot: %w", err)
	}
	return nil
}
