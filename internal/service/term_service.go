package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/campus-dev/sis-api/internal/models"
	appErrors "github.com/campus-dev/sis-api/pkg/errors"
)

type termRepository interface {
	List(ctx context.Context, filter models.TermFilter) ([]models.Term, int, error)
	FindByID(ctx context.Context, id string) (*models.Term, error)
	ListActive(ctx context.Context) ([]models.Term, error)
	Create(ctx context.Context, term *models.Term) error
	Update(ctx context.Context, term *models.Term) error
	SetRegistrationOpen(ctx context.Context, id string, open bool) error
	UngradedSections(ctx context.Context, q sqlx.ExtContext, termID string) ([]models.UngradedSection, error)
	CloseTx(ctx context.Context, tx *sqlx.Tx, termID string) error
	Delete(ctx context.Context, id string) error
	CountSections(ctx context.Context, id string) (int, error)
}

// CreateTermRequest describes payload for creating academic terms.
type CreateTermRequest struct {
	Name             string    `json:"name" validate:"required"`
	StartDate        time.Time `json:"start_date" validate:"required"`
	EndDate          time.Time `json:"end_date" validate:"required"`
	RegistrationOpen bool      `json:"registration_open"`
}

// UpdateTermRequest updates mutable fields on a term.
type UpdateTermRequest struct {
	Name      string    `json:"name" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// IncompleteGradesError lists the sections blocking a term closure.
type IncompleteGradesError struct {
	Sections []models.UngradedSection `json:"sections"`
}

// Error implements the error interface.
func (e *IncompleteGradesError) Error() string {
	return fmt.Sprintf("%d sections have ungraded enrollments", len(e.Sections))
}

// TermService orchestrates the term lifecycle: creation, registration
// windows, and the graded-gated closure.
type TermService struct {
	repo      termRepository
	validator *validator.Validate
	logger    *zap.Logger
	tx        txRunner
}

// NewTermService creates a new term service instance.
func NewTermService(repo termRepository, tx txRunner, validate *validator.Validate, logger *zap.Logger) *TermService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TermService{repo: repo, tx: tx, validator: validate, logger: logger}
}

// List returns paginated terms.
func (s *TermService) List(ctx context.Context, filter models.TermFilter) ([]models.Term, *models.Pagination, error) {
	terms, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list terms")
	}
	return terms, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a term by ID.
func (s *TermService) Get(ctx context.Context, id string) (*models.Term, error) {
	term, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	return term, nil
}

// GetActive returns the single active term. Zero or multiple active terms is
// a calendar misconfiguration and fails explicitly rather than picking one.
func (s *TermService) GetActive(ctx context.Context) (*models.Term, error) {
	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active terms")
	}
	switch len(active) {
	case 0:
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no active term")
	case 1:
		return &active[0], nil
	default:
		return nil, appErrors.New(appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
			fmt.Sprintf("%d terms are active simultaneously", len(active)))
	}
}

// Create adds a new term. New terms start active; only one term may be
// active at a time.
func (s *TermService) Create(ctx context.Context, req CreateTermRequest) (*models.Term, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid term payload")
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must be after start_date")
	}

	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active terms")
	}
	if len(active) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "another term is still active; close it first")
	}

	term := &models.Term{
		Name:             req.Name,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		IsActive:         true,
		RegistrationOpen: req.RegistrationOpen,
	}
	if err := s.repo.Create(ctx, term); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create term")
	}

	s.logger.Info("term created", zap.String("term_id", term.ID), zap.String("name", term.Name))
	return term, nil
}

// Update edits name and dates on an active term.
func (s *TermService) Update(ctx context.Context, id string, req UpdateTermRequest) (*models.Term, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid term payload")
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must be after start_date")
	}

	term, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !term.IsActive {
		return nil, appErrors.Clone(appErrors.ErrTermLocked, "term is closed")
	}

	term.Name = req.Name
	term.StartDate = req.StartDate
	term.EndDate = req.EndDate
	if err := s.repo.Update(ctx, term); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update term")
	}
	return term, nil
}

// OpenRegistration opens the registration window of an active term.
func (s *TermService) OpenRegistration(ctx context.Context, id string) error {
	return s.setRegistration(ctx, id, true)
}

// CloseRegistration closes the registration window.
func (s *TermService) CloseRegistration(ctx context.Context, id string) error {
	return s.setRegistration(ctx, id, false)
}

func (s *TermService) setRegistration(ctx context.Context, id string, open bool) error {
	term, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if open && !term.IsActive {
		return appErrors.Clone(appErrors.ErrTermLocked, "term is closed")
	}
	if err := s.repo.SetRegistrationOpen(ctx, id, open); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update registration window")
	}
	return nil
}

// Close ends a term. Every enrollment in every owned section must carry a
// final grade; otherwise the closure fails listing each section still owing
// grades. On success the term is deactivated and all its sections locked in
// one transaction.
func (s *TermService) Close(ctx context.Context, id string) error {
	term, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !term.IsActive {
		return appErrors.Clone(appErrors.ErrValidation, "term is already closed")
	}

	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		ungraded, err := s.repo.UngradedSections(ctx, tx, id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan grades")
		}
		if len(ungraded) > 0 {
			cause := &IncompleteGradesError{Sections: ungraded}
			return appErrors.Wrap(cause, appErrors.ErrIncompleteGrades.Code, appErrors.ErrIncompleteGrades.Status, cause.Error()).
				WithDetails(cause.Sections)
		}
		return s.repo.CloseTx(ctx, tx, id)
	})
	if err != nil {
		return appErrors.FromError(err)
	}

	s.logger.Info("term closed", zap.String("term_id", id), zap.String("name", term.Name))
	return nil
}

// Delete removes a term that owns no sections.
func (s *TermService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	count, err := s.repo.CountSections(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count sections")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrValidation, "term owns sections and cannot be deleted")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete term")
	}
	return nil
}
