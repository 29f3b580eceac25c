package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campus-dev/sis-api/internal/models"
	appErrors "github.com/campus-dev/sis-api/pkg/errors"
)

type subjectRepository interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error)
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	ExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
	Create(ctx context.Context, subject *models.Subject) error
	ReplaceComponents(ctx context.Context, subjectID string, components []models.GradeComponent) error
	ListComponents(ctx context.Context, subjectID string) ([]models.GradeComponent, error)
	Update(ctx context.Context, subject *models.Subject) error
	Delete(ctx context.Context, id string) error
}

type catalogCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CatalogCacheConfig controls subject-catalog caching.
type CatalogCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// ComponentInput is one weighted grade component in subject payloads.
type ComponentInput struct {
	Name   string `json:"name" validate:"required"`
	Weight int    `json:"weight" validate:"min=0,max=100"`
}

// CreateSubjectRequest describes payload for creating subjects.
type CreateSubjectRequest struct {
	Code       string           `json:"code" validate:"required"`
	Name       string           `json:"name" validate:"required"`
	Credits    int              `json:"credits" validate:"required,min=1"`
	Components []ComponentInput `json:"components" validate:"omitempty,dive"`
}

// UpdateSubjectRequest updates mutable fields on a subject.
type UpdateSubjectRequest struct {
	Name    string `json:"name" validate:"required"`
	Credits int    `json:"credits" validate:"required,min=1"`
}

const subjectCachePrefix = "catalog:subjects"

// defaultComponents applies when a subject is created without an explicit
// component scheme.
func defaultComponents() []ComponentInput {
	return []ComponentInput{
		{Name: models.AttendanceComponentName, Weight: 10},
		{Name: "Midterm", Weight: 30},
		{Name: "Final", Weight: 60},
	}
}

// SubjectService owns the subject catalog and its grade-component schemes.
type SubjectService struct {
	repo      subjectRepository
	cache     catalogCache
	cacheCfg  CatalogCacheConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService creates a new subject service instance.
func NewSubjectService(repo subjectRepository, cache catalogCache, cacheCfg CatalogCacheConfig, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{repo: repo, cache: cache, cacheCfg: cacheCfg, validator: validate, logger: logger}
}

type cachedSubjectPage struct {
	Subjects   []models.Subject   `json:"subjects"`
	Pagination *models.Pagination `json:"pagination"`
}

// List returns paginated subjects, served from the catalog cache when warm.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, *models.Pagination, error) {
	key := s.listCacheKey(filter)
	if s.cacheEnabled() {
		var cached cachedSubjectPage
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached.Subjects, cached.Pagination, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("subject cache read failed", zap.Error(err))
		}
	}

	subjects, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	pagination := paginationFor(filter.Page, filter.PageSize, total)

	if s.cacheEnabled() {
		if err := s.cache.Set(ctx, key, cachedSubjectPage{Subjects: subjects, Pagination: pagination}, s.cacheCfg.TTL); err != nil {
			s.logger.Warn("subject cache write failed", zap.Error(err))
		}
	}
	return subjects, pagination, nil
}

func (s *SubjectService) cacheEnabled() bool {
	return s.cache != nil && s.cacheCfg.Enabled
}

func (s *SubjectService) listCacheKey(filter models.SubjectFilter) string {
	return fmt.Sprintf("%s:list:%s:%d:%d:%s:%s",
		subjectCachePrefix, strings.ToLower(filter.Search), filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
}

func (s *SubjectService) invalidateCache(ctx context.Context) {
	if !s.cacheEnabled() {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, subjectCachePrefix+"*"); err != nil {
		s.logger.Warn("subject cache invalidation failed", zap.Error(err))
	}
}

// Get returns a subject with its component scheme.
func (s *SubjectService) Get(ctx context.Context, id string) (*models.Subject, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	components, err := s.repo.ListComponents(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade components")
	}
	subject.Components = components
	return subject, nil
}

// Create adds a subject with a validated component scheme. Omitting the
// components applies the institution default split.
func (s *SubjectService) Create(ctx context.Context, req CreateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	inputs := req.Components
	if len(inputs) == 0 {
		inputs = defaultComponents()
	}
	components, err := buildComponents(inputs)
	if err != nil {
		return nil, err
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	exists, err := s.repo.ExistsByCode(ctx, code, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject code already exists")
	}

	subject := &models.Subject{
		Code:       code,
		Name:       req.Name,
		Credits:    req.Credits,
		Components: components,
	}
	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}

	s.invalidateCache(ctx)
	s.logger.Info("subject created", zap.String("subject_id", subject.ID), zap.String("code", subject.Code))
	return subject, nil
}

// buildComponents validates names and the 100-total weight rule, assigning
// positions in payload order.
func buildComponents(inputs []ComponentInput) ([]models.GradeComponent, error) {
	totalWeight := 0
	seen := make(map[string]struct{}, len(inputs))
	components := make([]models.GradeComponent, 0, len(inputs))
	for i, input := range inputs {
		name := strings.TrimSpace(input.Name)
		if name == "" {
			return nil, appErrors.Clone(appErrors.ErrInvalidWeights, "component name must not be empty")
		}
		lower := strings.ToLower(name)
		if _, dup := seen[lower]; dup {
			return nil, appErrors.Clone(appErrors.ErrInvalidWeights, "component names must be unique")
		}
		seen[lower] = struct{}{}
		totalWeight += input.Weight
		components = append(components, models.GradeComponent{
			Name:     name,
			Weight:   input.Weight,
			Position: i + 1,
		})
	}
	if totalWeight != 100 {
		return nil, appErrors.Clone(appErrors.ErrInvalidWeights,
			fmt.Sprintf("component weights must total 100, got %d", totalWeight))
	}
	return components, nil
}

// UpdateComponents replaces a subject's component scheme. Existing scores
// keep their component rows by name where possible; totals are recomputed by
// the next finalization pass.
func (s *SubjectService) UpdateComponents(ctx context.Context, subjectID string, inputs []ComponentInput) ([]models.GradeComponent, error) {
	if _, err := s.Get(ctx, subjectID); err != nil {
		return nil, err
	}
	components, err := buildComponents(inputs)
	if err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceComponents(ctx, subjectID, components); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace grade components")
	}
	s.invalidateCache(ctx)
	return components, nil
}

// Update edits name and credits.
func (s *SubjectService) Update(ctx context.Context, id string, req UpdateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	subject, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	subject.Name = req.Name
	subject.Credits = req.Credits
	if err := s.repo.Update(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}
	s.invalidateCache(ctx)
	return subject, nil
}

// Delete removes a subject. Sections referencing it block deletion at the
// database layer.
func (s *SubjectService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}
	s.invalidateCache(ctx)
	return nil
}
