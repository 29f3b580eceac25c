package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-dev/sis-api/internal/models"
)

// AttendanceRepository handles persistence of attendance logs.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Upsert records or replaces one student's attendance for a meeting date.
func (r *AttendanceRepository) Upsert(ctx context.Context, log *models.AttendanceLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attendance_logs (id, section_id, student_id, date, status, created_at)
        VALUES (:id, :section_id, :student_id, :date, :status, :created_at)
        ON CONFLICT (section_id, student_id, date) DO UPDATE SET status = EXCLUDED.status`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("upsert attendance log: %w", err)
	}
	return nil
}

// ListBySectionAndDate returns a section's logs for one meeting date.
func (r *AttendanceRepository) ListBySectionAndDate(ctx context.Context, sectionID string, date time.Time) ([]models.AttendanceLog, error) {
	const query = `SELECT id, section_id, student_id, date, status, created_at FROM attendance_logs WHERE section_id = $1 AND date = $2`
	var logs []models.AttendanceLog
	if err := r.db.SelectContext(ctx, &logs, query, sectionID, date); err != nil {
		return nil, fmt.Errorf("list attendance by date: %w", err)
	}
	return logs, nil
}

// ListByStudentAndSection returns one student's full attendance history in a
// section, oldest first.
func (r *AttendanceRepository) ListByStudentAndSection(ctx context.Context, studentID, sectionID string) ([]models.AttendanceLog, error) {
	const query = `SELECT id, section_id, student_id, date, status, created_at FROM attendance_logs
        WHERE student_id = $1 AND section_id = $2 ORDER BY date ASC`
	var logs []models.AttendanceLog
	if err := r.db.SelectContext(ctx, &logs, query, studentID, sectionID); err != nil {
		return nil, fmt.Errorf("list attendance by student: %w", err)
	}
	return logs, nil
}
