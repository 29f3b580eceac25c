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

// TermRepository handles persistence of academic terms.
type TermRepository struct {
	db *sqlx.DB
}

// NewTermRepository constructs the repository.
func NewTermRepository(db *sqlx.DB) *TermRepository {
	return &TermRepository{db: db}
}

const termColumns = `id, name, start_date, end_date, is_active, registration_open, created_at, updated_at`

// List returns terms with optional filtering and pagination.
func (r *TermRepository) List(ctx context.Context, filter models.TermFilter) ([]models.Term, int, error) {
	base := "FROM terms WHERE 1=1"
	var args []interface{}
	if filter.IsActive != nil {
		base += fmt.Sprintf(" AND is_active = $%d", len(args)+1)
		args = append(args, *filter.IsActive)
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"start_date": true, "name": true, "created_at": true}
	if !allowedSorts[sortBy] {
		sortBy = "start_date"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", termColumns, base, sortBy, order, size, offset)
	var terms []models.Term
	if err := r.db.SelectContext(ctx, &terms, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list terms: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count terms: %w", err)
	}
	return terms, total, nil
}

// FindByID loads a term by id.
func (r *TermRepository) FindByID(ctx context.Context, id string) (*models.Term, error) {
	return r.FindByIDTx(ctx, r.db, id)
}

// FindByIDTx loads a term through the caller's transaction.
func (r *TermRepository) FindByIDTx(ctx context.Context, q sqlx.ExtContext, id string) (*models.Term, error) {
	query := fmt.Sprintf(`SELECT %s FROM terms WHERE id = $1`, termColumns)
	var term models.Term
	if err := sqlx.GetContext(ctx, q, &term, query, id); err != nil {
		return nil, err
	}
	return &term, nil
}

// ListActive returns every active term. The single-active-term rule is a
// policy invariant checked by callers, not enforced by storage.
func (r *TermRepository) ListActive(ctx context.Context) ([]models.Term, error) {
	query := fmt.Sprintf(`SELECT %s FROM terms WHERE is_active = TRUE ORDER BY start_date DESC`, termColumns)
	var terms []models.Term
	if err := r.db.SelectContext(ctx, &terms, query); err != nil {
		return nil, fmt.Errorf("list active terms: %w", err)
	}
	return terms, nil
}

// Create stores a new term.
func (r *TermRepository) Create(ctx context.Context, term *models.Term) error {
	if term.ID == "" {
		term.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if term.CreatedAt.IsZero() {
		term.CreatedAt = now
	}
	term.UpdatedAt = now

	const query = `INSERT INTO terms (id, name, start_date, end_date, is_active, registration_open, created_at, updated_at)
        VALUES (:id, :name, :start_date, :end_date, :is_active, :registration_open, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, term); err != nil {
		return fmt.Errorf("create term: %w", err)
	}
	return nil
}

// Update modifies a term record.
func (r *TermRepository) Update(ctx context.Context, term *models.Term) error {
	term.UpdatedAt = time.Now().UTC()
	const query = `UPDATE terms SET name = :name, start_date = :start_date, end_date = :end_date,
        is_active = :is_active, registration_open = :registration_open, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, term); err != nil {
		return fmt.Errorf("update term: %w", err)
	}
	return nil
}

// SetRegistrationOpen toggles the registration window.
func (r *TermRepository) SetRegistrationOpen(ctx context.Context, id string, open bool) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE terms SET registration_open = $2, updated_at = $3 WHERE id = $1`, id, open, time.Now().UTC()); err != nil {
		return fmt.Errorf("set registration open: %w", err)
	}
	return nil
}

// UngradedSections reports, per owned section with at least one enrollment,
// how many enrollments still lack a final 10-scale score.
func (r *TermRepository) UngradedSections(ctx context.Context, q sqlx.ExtContext, termID string) ([]models.UngradedSection, error) {
	const query = `SELECT cs.id AS section_id, cs.name AS section_name, COUNT(*) AS missing
        FROM enrollments e
        JOIN class_sections cs ON cs.id = e.section_id
        WHERE cs.term_id = $1 AND e.total_10 IS NULL
        GROUP BY cs.id, cs.name
        ORDER BY cs.name ASC`
	var sections []models.UngradedSection
	if err := sqlx.SelectContext(ctx, q, &sections, query, termID); err != nil {
		return nil, fmt.Errorf("scan ungraded sections: %w", err)
	}
	return sections, nil
}

// CloseTx clears the active flag and locks every owned section. Runs inside
// the closure transaction so the gate and the mutation commit together.
func (r *TermRepository) CloseTx(ctx context.Context, tx *sqlx.Tx, termID string) error {
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE terms SET is_active = FALSE, registration_open = FALSE, updated_at = $2 WHERE id = $1`, termID, now); err != nil {
		return fmt.Errorf("deactivate term: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE class_sections SET is_locked = TRUE, updated_at = $2 WHERE term_id = $1`, termID, now); err != nil {
		return fmt.Errorf("lock term sections: %w", err)
	}
	return nil
}

// Delete removes a term by id.
func (r *TermRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM terms WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete term: %w", err)
	}
	return nil
}

// CountSections returns the number of sections owned by a term.
func (r *TermRepository) CountSections(ctx context.Context, id string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM class_sections WHERE term_id = $1`, id); err != nil {
		return 0, fmt.Errorf("count term sections: %w", err)
	}
	return count, nil
}
