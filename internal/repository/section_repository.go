package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-dev/sis-api/internal/models"
)

// SectionRepository handles persistence of class sections.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

const sectionDetailSelect = `SELECT cs.id, cs.name, cs.subject_id, cs.term_id, cs.teacher_id, cs.capacity, cs.is_locked, cs.created_at, cs.updated_at,
        sub.code AS subject_code, sub.name AS subject_name, t.name AS term_name, u.full_name AS teacher_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.section_id = cs.id) AS enrolled
        FROM class_sections cs
        JOIN subjects sub ON sub.id = cs.subject_id
        JOIN terms t ON t.id = cs.term_id
        JOIN teacher_profiles tp ON tp.id = cs.teacher_id
        JOIN users u ON u.id = tp.user_id`

// List returns sections with joined context, filtered and paginated.
func (r *SectionRepository) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("cs.term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("cs.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("cs.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Locked != nil {
		conditions = append(conditions, fmt.Sprintf("cs.is_locked = $%d", len(args)+1))
		args = append(args, *filter.Locked)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"name":       "cs.name",
		"subject":    "sub.code",
		"created_at": "cs.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "cs.created_at"
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

	query := fmt.Sprintf("%s%s ORDER BY %s %s LIMIT %d OFFSET %d", sectionDetailSelect, clause, orderBy, order, size, offset)
	var sections []models.SectionDetail
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sections: %w", err)
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM class_sections cs%s`, clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sections: %w", err)
	}
	return sections, total, nil
}

// FindByID loads a section by id.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.ClassSection, error) {
	return r.FindByIDTx(ctx, r.db, id)
}

// FindByIDTx loads a section through the caller's transaction so the read
// shares the transaction's snapshot.
func (r *SectionRepository) FindByIDTx(ctx context.Context, q sqlx.ExtContext, id string) (*models.ClassSection, error) {
	const query = `SELECT id, name, subject_id, term_id, teacher_id, capacity, is_locked, created_at, updated_at FROM class_sections WHERE id = $1`
	var section models.ClassSection
	if err := sqlx.GetContext(ctx, q, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// FindDetailByID loads a section with joined context.
func (r *SectionRepository) FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error) {
	query := sectionDetailSelect + " WHERE cs.id = $1"
	var detail models.SectionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CountBySubjectAndTerm backs group-number suggestions.
func (r *SectionRepository) CountBySubjectAndTerm(ctx context.Context, subjectID, termID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM class_sections WHERE subject_id = $1 AND term_id = $2`, subjectID, termID); err != nil {
		return 0, fmt.Errorf("count sections by subject/term: %w", err)
	}
	return count, nil
}

// Create stores a new section.
func (r *SectionRepository) Create(ctx context.Context, section *models.ClassSection) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	if section.Capacity <= 0 {
		section.Capacity = models.DefaultSectionCapacity
	}
	now := time.Now().UTC()
	section.CreatedAt = now
	section.UpdatedAt = now

	const query = `INSERT INTO class_sections (id, name, subject_id, term_id, teacher_id, capacity, is_locked, created_at, updated_at)
        VALUES (:id, :name, :subject_id, :term_id, :teacher_id, :capacity, :is_locked, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

// Update modifies a section record.
func (r *SectionRepository) Update(ctx context.Context, section *models.ClassSection) error {
	section.UpdatedAt = time.Now().UTC()
	const query = `UPDATE class_sections SET name = :name, teacher_id = :teacher_id, capacity = :capacity,
        is_locked = :is_locked, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	return nil
}

// SetLocked toggles the grading lock on a section.
func (r *SectionRepository) SetLocked(ctx context.Context, id string, locked bool) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE class_sections SET is_locked = $2, updated_at = $3 WHERE id = $1`, id, locked, time.Now().UTC()); err != nil {
		return fmt.Errorf("set section lock: %w", err)
	}
	return nil
}

// Delete removes a section; slots and enrollments cascade at the storage
// layer.
func (r *SectionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM class_sections WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete section: %w", err)
	}
	return nil
}
