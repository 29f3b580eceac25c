package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-dev/sis-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func enrollmentDetailRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "student_id", "section_id", "registered_at", "total_10", "total_4", "letter_grade", "passed",
		"student_name", "student_code", "section_name", "subject_name", "credits", "term_id",
	})
}

func TestEnrollmentRepositoryExists(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND section_id = $2")).
		WithArgs("st-1", "sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.Exists(context.Background(), db, "st-1", "sec-1")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments")).
		WithArgs("st-1", "sec-2").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err = repo.Exists(context.Background(), db, "st-1", "sec-2")
	require.NoError(t, err)
	assert.False(t, exists, "no row means not enrolled")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCountBySection(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE section_id = $1")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := repo.CountBySection(context.Background(), db, "sec-1")
	require.NoError(t, err)
	assert.Equal(t, 42, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListByStudentAndTerm(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := enrollmentDetailRows().
		AddRow("enr-1", "st-1", "sec-1", time.Now(), nil, nil, nil, nil,
			"Alice Nguyen", "SV001", "CS101.01", "Programming", 3, "t1")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.student_id = $1 AND cs.term_id = $2")).
		WithArgs("st-1", "t1").
		WillReturnRows(rows)

	enrollments, err := repo.ListByStudentAndTerm(context.Background(), db, "st-1", "t1")
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, "CS101.01", enrollments[0].SectionName)
	assert.Nil(t, enrollments[0].Total10)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryList(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := enrollmentDetailRows().
		AddRow("enr-1", "st-1", "sec-1", time.Now(), nil, nil, nil, nil,
			"Alice Nguyen", "SV001", "CS101.01", "Programming", 3, "t1")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE cs.term_id = $1 ORDER BY e.registered_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("t1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments e JOIN class_sections cs")).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	enrollments, total, err := repo.List(context.Background(), models.EnrollmentFilter{TermID: "t1"})
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "SV001", enrollments[0].StudentCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs(sqlmock.AnyArg(), "st-1", "sec-1", sqlmock.AnyArg(), nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	enrollment := &models.Enrollment{StudentID: "st-1", SectionID: "sec-1"}
	require.NoError(t, repo.Create(context.Background(), db, enrollment))
	assert.NotEmpty(t, enrollment.ID)
	assert.False(t, enrollment.RegisteredAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpsertScore(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (enrollment_id, component_id) DO UPDATE")).
		WithArgs(sqlmock.AnyArg(), "enr-1", "comp-1", 8.5, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	score := &models.ComponentScore{EnrollmentID: "enr-1", ComponentID: "comp-1", Score: 8.5}
	require.NoError(t, repo.UpsertScore(context.Background(), db, score))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListScores(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "enrollment_id", "component_id", "score", "updated_at"}).
		AddRow("cs-1", "enr-1", "comp-1", 8.5, time.Now()).
		AddRow("cs-2", "enr-1", "comp-2", 6.0, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM component_scores WHERE enrollment_id = $1")).
		WithArgs("enr-1").
		WillReturnRows(rows)

	scores, err := repo.ListScores(context.Background(), "enr-1")
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.InDelta(t, 8.5, scores["comp-1"].Score, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}
