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

// SubjectRepository handles persistence of subjects and their grading
// component schema.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs the repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// List returns subjects with optional search and pagination.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	base := "FROM subjects WHERE 1=1"
	var args []interface{}
	if filter.Search != "" {
		base += fmt.Sprintf(" AND (code ILIKE $%d OR name ILIKE $%d)", len(args)+1, len(args)+1)
		args = append(args, "%"+filter.Search+"%")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"code": true, "name": true, "credits": true, "created_at": true}
	if !allowedSorts[sortBy] {
		sortBy = "code"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf("SELECT id, code, name, credits, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d", base, sortBy, order, size, offset)
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list subjects: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count subjects: %w", err)
	}
	return subjects, total, nil
}

// FindByID loads a subject by id.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	const query = `SELECT id, code, name, credits, created_at, updated_at FROM subjects WHERE id = $1`
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// ExistsByCode checks subject code uniqueness.
func (r *SubjectRepository) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	query := "SELECT COUNT(*) FROM subjects WHERE code = $1"
	args := []interface{}{code}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return false, fmt.Errorf("check subject code: %w", err)
	}
	return count > 0, nil
}

// Create stores a subject and its components in one transaction.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	subject.CreatedAt = now
	subject.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create subject: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.NamedExecContext(ctx, `INSERT INTO subjects (id, code, name, credits, created_at, updated_at)
        VALUES (:id, :code, :name, :credits, :created_at, :updated_at)`, subject); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}

	if err = r.insertComponents(ctx, tx, subject.ID, subject.Components); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create subject: %w", err)
	}
	return nil
}

// ReplaceComponents swaps a subject's component schema atomically.
func (r *SubjectRepository) ReplaceComponents(ctx context.Context, subjectID string, components []models.GradeComponent) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace components: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM grade_components WHERE subject_id = $1`, subjectID); err != nil {
		return fmt.Errorf("clear components: %w", err)
	}
	if err = r.insertComponents(ctx, tx, subjectID, components); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace components: %w", err)
	}
	return nil
}

func (r *SubjectRepository) insertComponents(ctx context.Context, tx *sqlx.Tx, subjectID string, components []models.GradeComponent) error {
	for i := range components {
		c := components[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.SubjectID = subjectID
		if c.Position == 0 {
			c.Position = i + 1
		}
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO grade_components (id, subject_id, name, weight, position)
            VALUES (:id, :subject_id, :name, :weight, :position)`, &c); err != nil {
			return fmt.Errorf("insert grade component: %w", err)
		}
		components[i] = c
	}
	return nil
}

// ListComponents returns a subject's components ordered by position.
func (r *SubjectRepository) ListComponents(ctx context.Context, subjectID string) ([]models.GradeComponent, error) {
	const query = `SELECT id, subject_id, name, weight, position FROM grade_components WHERE subject_id = $1 ORDER BY position ASC`
	var components []models.GradeComponent
	if err := r.db.SelectContext(ctx, &components, query, subjectID); err != nil {
		return nil, fmt.Errorf("list grade components: %w", err)
	}
	return components, nil
}

// FindComponentByName returns a subject's component with the given name, or
// sql.ErrNoRows.
func (r *SubjectRepository) FindComponentByName(ctx context.Context, q sqlx.ExtContext, subjectID, name string) (*models.GradeComponent, error) {
	const query = `SELECT id, subject_id, name, weight, position FROM grade_components WHERE subject_id = $1 AND name = $2`
	var component models.GradeComponent
	if err := sqlx.GetContext(ctx, q, &component, query, subjectID, name); err != nil {
		return nil, err
	}
	return &component, nil
}

// Update modifies subject header fields.
func (r *SubjectRepository) Update(ctx context.Context, subject *models.Subject) error {
	subject.UpdatedAt = time.Now().UTC()
	const query = `UPDATE subjects SET code = :code, name = :name, credits = :credits, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("update subject: %w", err)
	}
	return nil
}

// Delete removes a subject by id.
func (r *SubjectRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM subjects WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	return nil
}
