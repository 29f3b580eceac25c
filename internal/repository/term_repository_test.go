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

func newTermRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func termRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "start_date", "end_date", "is_active", "registration_open", "created_at", "updated_at"})
}

func TestTermRepositoryListActive(t *testing.T) {
	db, mock, cleanup := newTermRepoMock(t)
	defer cleanup()
	repo := NewTermRepository(db)

	rows := termRows().
		AddRow("t1", "2026-2027 Fall", time.Now(), time.Now().AddDate(0, 4, 0), true, true, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM terms WHERE is_active = TRUE")).
		WillReturnRows(rows)

	terms, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "2026-2027 Fall", terms[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTermRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newTermRepoMock(t)
	defer cleanup()
	repo := NewTermRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO terms")).
		WithArgs(sqlmock.AnyArg(), "2026-2027 Fall", sqlmock.AnyArg(), sqlmock.AnyArg(), true, false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	term := &models.Term{
		Name:      "2026-2027 Fall",
		StartDate: time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 12, 27, 0, 0, 0, 0, time.UTC),
		IsActive:  true,
	}
	require.NoError(t, repo.Create(context.Background(), term))
	assert.NotEmpty(t, term.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTermRepositoryUngradedSections(t *testing.T) {
	db, mock, cleanup := newTermRepoMock(t)
	defer cleanup()
	repo := NewTermRepository(db)

	rows := sqlmock.NewRows([]string{"section_id", "section_name", "missing"}).
		AddRow("sec-1", "CS101.01", 3).
		AddRow("sec-2", "MA101.01", 1)
	mock.ExpectQuery(regexp.QuoteMeta("e.total_10 IS NULL")).
		WithArgs("t1").
		WillReturnRows(rows)

	sections, err := repo.UngradedSections(context.Background(), db, "t1")
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, 3, sections[0].Missing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTermRepositoryCloseTx(t *testing.T) {
	db, mock, cleanup := newTermRepoMock(t)
	defer cleanup()
	repo := NewTermRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE terms SET is_active = FALSE, registration_open = FALSE")).
		WithArgs("t1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE class_sections SET is_locked = TRUE")).
		WithArgs("t1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)
	require.NoError(t, repo.CloseTx(context.Background(), tx, "t1"))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTermRepositorySetRegistrationOpen(t *testing.T) {
	db, mock, cleanup := newTermRepoMock(t)
	defer cleanup()
	repo := NewTermRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE terms SET registration_open = $2")).
		WithArgs("t1", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetRegistrationOpen(context.Background(), "t1", true))
	assert.NoError(t, mock.ExpectationsWereMet())
}
