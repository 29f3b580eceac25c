package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-dev/sis-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments and their
// component scores.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, student_id, section_id, registered_at, total_10, total_4, letter_grade, passed`

const enrollmentDetailSelect = `SELECT e.id, e.student_id, e.section_id, e.registered_at, e.total_10, e.total_4, e.letter_grade, e.passed,
        u.full_name AS student_name, sp.student_code, cs.name AS section_name, sub.name AS subject_name, sub.credits, cs.term_id
        FROM enrollments e
        JOIN student_profiles sp ON sp.id = e.student_id
        JOIN users u ON u.id = sp.user_id
        JOIN class_sections cs ON cs.id = e.section_id
        JOIN subjects sub ON sub.id = cs.subject_id`

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("e.section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("cs.term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("%s%s ORDER BY e.registered_at %s LIMIT %d OFFSET %d", enrollmentDetailSelect, clause, order, size, offset)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM enrollments e JOIN class_sections cs ON cs.id = e.section_id%s`, clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its id.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Exists checks whether a (student, section) enrollment already exists.
func (r *EnrollmentRepository) Exists(ctx context.Context, q sqlx.ExtContext, studentID, sectionID string) (bool, error) {
	var one int
	err := sqlx.GetContext(ctx, q, &one, `SELECT 1 FROM enrollments WHERE student_id = $1 AND section_id = $2 LIMIT 1`, studentID, sectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// CountBySection returns the committed enrollment count for a section.
func (r *EnrollmentRepository) CountBySection(ctx context.Context, q sqlx.ExtContext, sectionID string) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, q, &count, `SELECT COUNT(*) FROM enrollments WHERE section_id = $1`, sectionID); err != nil {
		return 0, fmt.Errorf("count section enrollments: %w", err)
	}
	return count, nil
}

// ListByStudentAndTerm returns a student's enrollments in one term, with
// joined section context. Backs the registration overlap check and the
// personal timetable.
func (r *EnrollmentRepository) ListByStudentAndTerm(ctx context.Context, q sqlx.ExtContext, studentID, termID string) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.student_id = $1 AND cs.term_id = $2`
	var enrollments []models.EnrollmentDetail
	if err := sqlx.SelectContext(ctx, q, &enrollments, query, studentID, termID); err != nil {
		return nil, fmt.Errorf("list student term enrollments: %w", err)
	}
	return enrollments, nil
}

// ListByStudent returns every enrollment of a student, newest first.
// Backs the transcript.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.student_id = $1 ORDER BY e.registered_at DESC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// ListBySection returns a section's enrollments with student context.
func (r *EnrollmentRepository) ListBySection(ctx context.Context, sectionID string) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.section_id = $1 ORDER BY sp.student_code ASC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, sectionID); err != nil {
		return nil, fmt.Errorf("list section enrollments: %w", err)
	}
	return enrollments, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, q sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.RegisteredAt.IsZero() {
		enrollment.RegisteredAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollments (id, student_id, section_id, registered_at, total_10, total_4, letter_grade, passed)
        VALUES (:id, :student_id, :section_id, :registered_at, :total_10, :total_4, :letter_grade, :passed)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Delete removes an enrollment.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return nil
}

// UpsertScore records or replaces one component score.
func (r *EnrollmentRepository) UpsertScore(ctx context.Context, q sqlx.ExtContext, score *models.ComponentScore) error {
	if score.ID == "" {
		score.ID = uuid.NewString()
	}
	score.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO component_scores (id, enrollment_id, component_id, score, updated_at)
        VALUES (:id, :enrollment_id, :component_id, :score, :updated_at)
        ON CONFLICT (enrollment_id, component_id) DO UPDATE SET score = EXCLUDED.score, updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, q, query, score); err != nil {
		return fmt.Errorf("upsert component score: %w", err)
	}
	return nil
}

// ListScores returns an enrollment's recorded component scores keyed by
// component id.
func (r *EnrollmentRepository) ListScores(ctx context.Context, enrollmentID string) (map[string]models.ComponentScore, error) {
	const query = `SELECT id, enrollment_id, component_id, score, updated_at FROM component_scores WHERE enrollment_id = $1`
	var scores []models.ComponentScore
	if err := r.db.SelectContext(ctx, &scores, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list component scores: %w", err)
	}
	result := make(map[string]models.ComponentScore, len(scores))
	for _, s := range scores {
		result[s.ComponentID] = s
	}
	return result, nil
}

// UpdateFinalGrade writes the derived grade fields.
func (r *EnrollmentRepository) UpdateFinalGrade(ctx context.Context, enrollment *models.Enrollment) error {
	const query = `UPDATE enrollments SET total_10 = :total_10, total_4 = :total_4, letter_grade = :letter_grade, passed = :passed WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("update final grade: %w", err)
	}
	return nil
}
