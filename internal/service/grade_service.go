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

type gradeEnrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListBySection(ctx context.Context, sectionID string) ([]models.EnrollmentDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
	UpsertScore(ctx context.Context, q sqlx.ExtContext, score *models.ComponentScore) error
	ListScores(ctx context.Context, enrollmentID string) (map[string]models.ComponentScore, error)
	UpdateFinalGrade(ctx context.Context, enrollment *models.Enrollment) error
}

type gradeSectionRepository interface {
	FindByID(ctx context.Context, id string) (*models.ClassSection, error)
}

type gradeSubjectRepository interface {
	ListComponents(ctx context.Context, subjectID string) ([]models.GradeComponent, error)
}

// RecordScoreRequest records one component score for one enrollment.
type RecordScoreRequest struct {
	EnrollmentID string  `json:"enrollment_id" validate:"required"`
	ComponentID  string  `json:"component_id" validate:"required"`
	Score        float64 `json:"score" validate:"min=0,max=10"`
}

// GradeService records component scores and finalizes weighted grades.
type GradeService struct {
	enrollments gradeEnrollmentRepository
	sections    gradeSectionRepository
	subjects    gradeSubjectRepository
	tx          txRunner
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGradeService creates a new grade service instance.
func NewGradeService(enrollments gradeEnrollmentRepository, sections gradeSectionRepository, subjects gradeSubjectRepository, tx txRunner, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{
		enrollments: enrollments,
		sections:    sections,
		subjects:    subjects,
		tx:          tx,
		validator:   validate,
		logger:      logger,
	}
}

// RecordScore stores a component score and refreshes the enrollment's final
// grade. teacherID identifies the acting instructor profile; pass an empty
// string for administrative entry. The owning section must be unlocked and
// the component must belong to the section's subject.
func (s *GradeService) RecordScore(ctx context.Context, teacherID string, req RecordScoreRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid score payload")
	}

	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	section, err := s.sections.FindByID(ctx, enrollment.SectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	if teacherID != "" && section.TeacherID != teacherID {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "section belongs to another teacher")
	}
	if section.IsLocked {
		return nil, appErrors.Clone(appErrors.ErrTermLocked, "section is locked")
	}

	components, err := s.subjects.ListComponents(ctx, section.SubjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade components")
	}
	if !componentBelongs(components, req.ComponentID) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "component does not belong to the section's subject")
	}

	score := &models.ComponentScore{
		EnrollmentID: req.EnrollmentID,
		ComponentID:  req.ComponentID,
		Score:        req.Score,
	}
	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.enrollments.UpsertScore(ctx, tx, score)
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store score")
	}

	if err := s.refreshFinalGrade(ctx, enrollment, components); err != nil {
		return nil, err
	}
	return enrollment, nil
}

func componentBelongs(components []models.GradeComponent, componentID string) bool {
	for _, c := range components {
		if c.ID == componentID {
			return true
		}
	}
	return false
}

// refreshFinalGrade recomputes the weighted total. The total stays undefined
// until every nonzero-weight component has a recorded score.
func (s *GradeService) refreshFinalGrade(ctx context.Context, enrollment *models.Enrollment, components []models.GradeComponent) error {
	scores, err := s.enrollments.ListScores(ctx, enrollment.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scores")
	}

	total10, complete := weightedTotal(components, scores)
	if !complete {
		if enrollment.Graded() {
			enrollment.Total10 = nil
			enrollment.Total4 = nil
			enrollment.LetterGrade = nil
			enrollment.Passed = false
			return s.persistFinalGrade(ctx, enrollment)
		}
		return nil
	}

	total4 := ConvertTo4(total10)
	letter := LetterGrade(total4)
	enrollment.Total10 = &total10
	enrollment.Total4 = &total4
	enrollment.LetterGrade = &letter
	enrollment.Passed = total4 >= PassingScore4
	return s.persistFinalGrade(ctx, enrollment)
}

func (s *GradeService) persistFinalGrade(ctx context.Context, enrollment *models.Enrollment) error {
	if err := s.enrollments.UpdateFinalGrade(ctx, enrollment); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store final grade")
	}
	return nil
}

// weightedTotal sums weight-scaled component scores, rounded to 2 decimals.
// complete is false while any nonzero-weight component lacks a score.
func weightedTotal(components []models.GradeComponent, scores map[string]models.ComponentScore) (total float64, complete bool) {
	for _, c := range components {
		if c.Weight == 0 {
			continue
		}
		score, ok := scores[c.ID]
		if !ok {
			return 0, false
		}
		total += score.Score * float64(c.Weight) / 100
	}
	return round2(total), true
}

// ListScores returns the recorded component scores of an enrollment keyed by
// component id.
func (s *GradeService) ListScores(ctx context.Context, enrollmentID string) (map[string]models.ComponentScore, error) {
	if _, err := s.enrollments.FindByID(ctx, enrollmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	scores, err := s.enrollments.ListScores(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scores")
	}
	return scores, nil
}

// SectionStats summarizes grade outcomes for a section: pass/fail counts and
// a 10-scale histogram over graded enrollments.
func (s *GradeService) SectionStats(ctx context.Context, sectionID string) (*models.SectionGradeStats, error) {
	if _, err := s.sections.FindByID(ctx, sectionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}

	enrollments, err := s.enrollments.ListBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	stats := &models.SectionGradeStats{SectionID: sectionID, Total: len(enrollments)}
	buckets := []models.HistogramBucket{
		{Label: "< 4.0"},
		{Label: "4.0 - 5.4"},
		{Label: "5.5 - 6.9"},
		{Label: "7.0 - 8.4"},
		{Label: ">= 8.5"},
	}
	for _, e := range enrollments {
		if !e.Graded() {
			continue
		}
		stats.Graded++
		if e.Passed {
			stats.Passed++
		} else {
			stats.Failed++
		}
		buckets[bucketIndex(*e.Total10)].Count++
	}
	stats.Histogram = buckets
	return stats, nil
}

func bucketIndex(score10 float64) int {
	switch {
	case score10 >= 8.5:
		return 4
	case score10 >= 7.0:
		return 3
	case score10 >= 5.5:
		return 2
	case score10 >= 4.0:
		return 1
	default:
		return 0
	}
}

// Transcript builds the student's per-enrollment grade rows with a
// credit-weighted cumulative GPA over graded enrollments.
func (s *GradeService) Transcript(ctx context.Context, studentID string) (*models.Transcript, error) {
	rows, err := s.enrollments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	transcript := &models.Transcript{StudentID: studentID, Rows: rows}
	var weighted float64
	for _, row := range rows {
		if transcript.StudentName == "" {
			transcript.StudentName = row.StudentName
			transcript.StudentCode = row.StudentCode
		}
		if !row.Graded() {
			continue
		}
		transcript.TotalCredits += row.Credits
		weighted += *row.Total4 * float64(row.Credits)
	}
	if transcript.TotalCredits > 0 {
		transcript.GPA = round2(weighted / float64(transcript.TotalCredits))
	}
	return transcript, nil
}

// FinalizeSection recomputes the final grade of every enrollment in a
// section, used after weight changes or bulk score imports.
func (s *GradeService) FinalizeSection(ctx context.Context, teacherID, sectionID string) (int, error) {
	section, err := s.sections.FindByID(ctx, sectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	if teacherID != "" && section.TeacherID != teacherID {
		return 0, appErrors.Clone(appErrors.ErrUnauthorized, "section belongs to another teacher")
	}
	if section.IsLocked {
		return 0, appErrors.Clone(appErrors.ErrTermLocked, "section is locked")
	}

	components, err := s.subjects.ListComponents(ctx, section.SubjectID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade components")
	}

	enrollments, err := s.enrollments.ListBySection(ctx, sectionID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	finalized := 0
	for i := range enrollments {
		e := enrollments[i].Enrollment
		if err := s.refreshFinalGrade(ctx, &e, components); err != nil {
			return finalized, err
		}
		if e.Graded() {
			finalized++
		}
	}

	s.logger.Info("section grades finalized",
		zap.String("section_id", sectionID),
		zap.Int("finalized", finalized),
		zap.Int("total", len(enrollments)))
	return finalized, nil
}

// formatGrade renders a letter plus 4-scale score for export rows.
func formatGrade(e models.Enrollment) string {
	if !e.Graded() {
		return ""
	}
	return fmt.Sprintf("%s (%.2f)", *e.LetterGrade, *e.Total4)
}
