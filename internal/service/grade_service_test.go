package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campus-dev/sis-api/internal/models"
	appErrors "github.com/campus-dev/sis-api/pkg/errors"
)

type mockGradeEnrollmentRepo struct {
	byID      map[string]models.Enrollment
	bySection []models.EnrollmentDetail
	byStudent []models.EnrollmentDetail
	scores    map[string]map[string]models.ComponentScore
	upserts   []models.ComponentScore
	finals    []models.Enrollment
}

func (m *mockGradeEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.byID[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeEnrollmentRepo) ListBySection(ctx context.Context, sectionID string) ([]models.EnrollmentDetail, error) {
	return m.bySection, nil
}

func (m *mockGradeEnrollmentRepo) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	return m.byStudent, nil
}

func (m *mockGradeEnrollmentRepo) UpsertScore(ctx context.Context, q sqlx.ExtContext, score *models.ComponentScore) error {
	m.upserts = append(m.upserts, *score)
	if m.scores == nil {
		m.scores = make(map[string]map[string]models.ComponentScore)
	}
	if m.scores[score.EnrollmentID] == nil {
		m.scores[score.EnrollmentID] = make(map[string]models.ComponentScore)
	}
	m.scores[score.EnrollmentID][score.ComponentID] = *score
	return nil
}

func (m *mockGradeEnrollmentRepo) ListScores(ctx context.Context, enrollmentID string) (map[string]models.ComponentScore, error) {
	return m.scores[enrollmentID], nil
}

func (m *mockGradeEnrollmentRepo) UpdateFinalGrade(ctx context.Context, enrollment *models.Enrollment) error {
	m.finals = append(m.finals, *enrollment)
	return nil
}

type mockGradeSubjectRepo struct {
	components []models.GradeComponent
}

func (m *mockGradeSubjectRepo) ListComponents(ctx context.Context, subjectID string) ([]models.GradeComponent, error) {
	return m.components, nil
}

func defaultGradeComponents() []models.GradeComponent {
	return []models.GradeComponent{
		{ID: "c-att", SubjectID: "sub-1", Name: "Attendance", Weight: 10, Position: 1},
		{ID: "c-mid", SubjectID: "sub-1", Name: "Midterm", Weight: 30, Position: 2},
		{ID: "c-fin", SubjectID: "sub-1", Name: "Final", Weight: 60, Position: 3},
	}
}

func newGradeFixture() (*mockGradeEnrollmentRepo, *mockScheduleSectionRepo, *mockGradeSubjectRepo) {
	enrollments := &mockGradeEnrollmentRepo{byID: map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "st-1", SectionID: "sec-1"},
	}}
	sections := &mockScheduleSectionRepo{sections: map[string]models.ClassSection{
		"sec-1": {ID: "sec-1", SubjectID: "sub-1", TeacherID: "tc-1"},
	}}
	subjects := &mockGradeSubjectRepo{components: defaultGradeComponents()}
	return enrollments, sections, subjects
}

func TestGradeServiceRecordScorePartial(t *testing.T) {
	enrollments, sections, subjects := newGradeFixture()
	svc := NewGradeService(enrollments, sections, subjects, stubTxRunner{}, nil, zap.NewNop())

	enrollment, err := svc.RecordScore(context.Background(), "tc-1", RecordScoreRequest{
		EnrollmentID: "e1", ComponentID: "c-mid", Score: 8.0,
	})
	require.NoError(t, err)
	assert.Nil(t, enrollment.Total10, "total stays undefined until all components are scored")
	assert.Empty(t, enrollments.finals, "incomplete grades are not persisted as final")
}

func TestGradeServiceRecordScoreCompletes(t *testing.T) {
	enrollments, sections, subjects := newGradeFixture()
	svc := NewGradeService(enrollments, sections, subjects, stubTxRunner{}, nil, zap.NewNop())

	_, err := svc.RecordScore(context.Background(), "tc-1", RecordScoreRequest{EnrollmentID: "e1", ComponentID: "c-att", Score: 10})
	require.NoError(t, err)
	_, err = svc.RecordScore(context.Background(), "tc-1", RecordScoreRequest{EnrollmentID: "e1", ComponentID: "c-mid", Score: 7})
	require.NoError(t, err)
	enrollment, err := svc.RecordScore(context.Background(), "tc-1", RecordScoreRequest{EnrollmentID: "e1", ComponentID: "c-fin", Score: 8})
	require.NoError(t, err)

	// 10*0.1 + 7*0.3 + 8*0.6 = 7.9
	require.NotNil(t, enrollment.Total10)
	assert.InDelta(t, 7.9, *enrollment.Total10, 1e-9)
	require.NotNil(t, enrollment.Total4)
	assert.InDelta(t, 3.0+0.9*0.25, *enrollment.Total4, 1e-9)
	require.NotNil(t, enrollment.LetterGrade)
	assert.Equal(t, "B", *enrollment.LetterGrade)
	assert.True(t, enrollment.Passed)
	require.NotEmpty(t, enrollments.finals)
}

func TestGradeServiceRecordScoreForeignTeacher(t *testing.T) {
	enrollments, sections, subjects := newGradeFixture()
	svc := NewGradeService(enrollments, sections, subjects, stubTxRunner{}, nil, zap.NewNop())

	_, err := svc.RecordScore(context.Background(), "tc-2", RecordScoreRequest{
		EnrollmentID: "e1", ComponentID: "c-mid", Score: 8.0,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestGradeServiceRecordScoreAdminBypassesOwnership(t *testing.T) {
	enrollments, sections, subjects := newGradeFixture()
	svc := NewGradeService(enrollments, sections, subjects, stubTxRunner{}, nil, zap.NewNop())

	_, err := svc.RecordScore(context.Background(), "", RecordScoreRequest{
		EnrollmentID: "e1", ComponentID: "c-mid", Score: 8.0,
	})
	require.NoError(t, err)
}

func TestGradeServiceRecordScoreLockedSection(t *testing.T) {
	enrollments, sections, subjects := newGradeFixture()
	sections.sections["sec-1"] = models.ClassSection{ID: "sec-1", SubjectID: "sub-1", TeacherID: "tc-1", IsLocked: true}
	svc := NewGradeService(enrollments, sections, subjects, stubTxRunner{}, nil, zap.NewNop())

	_, err := svc.RecordScore(context.Background(), "tc-1", RecordScoreRequest{
		EnrollmentID: "e1", ComponentID: "c-mid", Score: 8.0,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTermLocked.Code, appErrors.FromError(err).Code)
}

func TestGradeServiceRecordScoreForeignComponent(t *testing.T) {
	enrollments, sections, subjects := newGradeFixture()
	svc := NewGradeService(enrollments, sections, subjects, stubTxRunner{}, nil, zap.NewNop())

	_, err := svc.RecordScore(context.Background(), "tc-1", RecordScoreRequest{
		EnrollmentID: "e1", ComponentID: "c-other", Score: 8.0,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, enrollments.upserts)
}

func TestGradeServiceZeroWeightComponentOptional(t *testing.T) {
	enrollments, sections, subjects := newGradeFixture()
	subjects.components = append(subjects.components, models.GradeComponent{
		ID: "c-bonus", SubjectID: "sub-1", Name: "Bonus", Weight: 0, Position: 4,
	})
	svc := NewGradeService(enrollments, sections, subjects, stubTxRunner{}, nil, zap.NewNop())

	_, err := svc.RecordScore(context.Background(), "tc-1", RecordScoreRequest{EnrollmentID: "e1", ComponentID: "c-att", Score: 10})
	require.NoError(t, err)
	_, err = svc.RecordScore(context.Background(), "tc-1", RecordScoreRequest{EnrollmentID: "e1", ComponentID: "c-mid", Score: 5})
	require.NoError(t, err)
	enrollment, err := svc.RecordScore(context.Background(), "tc-1", RecordScoreRequest{EnrollmentID: "e1", ComponentID: "c-fin", Score: 5})
	require.NoError(t, err)
	assert.NotNil(t, enrollment.Total10, "zero-weight components never block completion")
}

func TestGradeServiceTranscript(t *testing.T) {
	enrollments, sections, subjects := newGradeFixture()
	four := 4.0
	two := 2.0
	ten1 := 9.0
	ten2 := 5.5
	enrollments.byStudent = []models.EnrollmentDetail{
		{Enrollment: models.Enrollment{ID: "e1", Total10: &ten1, Total4: &four, Passed: true}, StudentName: "Alice", StudentCode: "SV001", Credits: 3},
		{Enrollment: models.Enrollment{ID: "e2", Total10: &ten2, Total4: &two, Passed: true}, Credits: 2},
		{Enrollment: models.Enrollment{ID: "e3"}, Credits: 4}, // ungraded, excluded
	}
	svc := NewGradeService(enrollments, sections, subjects, stubTxRunner{}, nil, zap.NewNop())

	transcript, err := svc.Transcript(context.Background(), "st-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", transcript.StudentName)
	assert.Equal(t, 5, transcript.TotalCredits)
	// (4.0*3 + 2.0*2) / 5 = 3.2
	assert.InDelta(t, 3.2, transcript.GPA, 1e-9)
	assert.Len(t, transcript.Rows, 3, "ungraded rows still listed")
}

func TestGradeServiceSectionStats(t *testing.T) {
	enrollments, sections, subjects := newGradeFixture()
	pass := 8.7
	mid := 6.0
	fail := 3.0
	enrollments.bySection = []models.EnrollmentDetail{
		{Enrollment: models.Enrollment{ID: "e1", Total10: &pass, Passed: true}},
		{Enrollment: models.Enrollment{ID: "e2", Total10: &mid, Passed: true}},
		{Enrollment: models.Enrollment{ID: "e3", Total10: &fail, Passed: false}},
		{Enrollment: models.Enrollment{ID: "e4"}}, // ungraded
	}
	svc := NewGradeService(enrollments, sections, subjects, stubTxRunner{}, nil, zap.NewNop())

	stats, err := svc.SectionStats(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.Graded)
	assert.Equal(t, 2, stats.Passed)
	assert.Equal(t, 1, stats.Failed)
	require.Len(t, stats.Histogram, 5)
	assert.Equal(t, 1, stats.Histogram[0].Count) // < 4.0
	assert.Equal(t, 1, stats.Histogram[2].Count) // 5.5 - 6.9
	assert.Equal(t, 1, stats.Histogram[4].Count) // >= 8.5
}
