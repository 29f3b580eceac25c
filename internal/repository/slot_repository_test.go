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

func newSlotRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func slotDetailRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "section_id", "term_id", "day_of_week", "start_lesson", "end_lesson", "room",
		"is_canceled", "created_at", "updated_at", "section_name", "teacher_id",
	})
}

func TestSlotRepositoryFindByTermDayRoom(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	rows := slotDetailRows().
		AddRow("slot-1", "sec-1", "t1", 2, 1, 3, "B204", false, time.Now(), time.Now(), "CS101.01", "tc-1")
	mock.ExpectQuery(regexp.QuoteMeta("FROM schedule_slots s")).
		WithArgs("t1", 2, "B204").
		WillReturnRows(rows)

	slots, err := repo.FindByTermDayRoom(context.Background(), db, "t1", 2, "B204")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "CS101.01", slots[0].SectionName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryFindByTermDayTeacher(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("cs.teacher_id = $3")).
		WithArgs("t1", 2, "tc-1").
		WillReturnRows(slotDetailRows())

	slots, err := repo.FindByTermDayTeacher(context.Background(), db, "t1", 2, "tc-1")
	require.NoError(t, err)
	assert.Empty(t, slots)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryListBySections(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	rows := sqlmock.NewRows([]string{"id", "section_id", "term_id", "day_of_week", "start_lesson", "end_lesson", "room", "is_canceled", "created_at", "updated_at"}).
		AddRow("slot-1", "sec-1", "t1", 2, 1, 3, "B204", false, time.Now(), time.Now()).
		AddRow("slot-2", "sec-2", "t1", 3, 4, 6, "B205", false, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("section_id IN ($1, $2)")).
		WithArgs("sec-1", "sec-2").
		WillReturnRows(rows)

	bySection, err := repo.ListBySections(context.Background(), db, []string{"sec-1", "sec-2"})
	require.NoError(t, err)
	assert.Len(t, bySection["sec-1"], 1)
	assert.Len(t, bySection["sec-2"], 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryListBySectionsEmpty(t *testing.T) {
	db, _, cleanup := newSlotRepoMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	bySection, err := repo.ListBySections(context.Background(), db, nil)
	require.NoError(t, err)
	assert.Empty(t, bySection)
}

func TestSlotRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_slots")).
		WithArgs(sqlmock.AnyArg(), "sec-1", "t1", 2, 1, 3, "B204", false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	slot := &models.ScheduleSlot{
		SectionID:   "sec-1",
		TermID:      "t1",
		DayOfWeek:   2,
		StartLesson: 1,
		EndLesson:   3,
		Room:        "B204",
	}
	require.NoError(t, repo.Create(context.Background(), db, slot))
	assert.NotEmpty(t, slot.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryCancel(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_slots SET is_canceled = TRUE")).
		WithArgs("slot-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Cancel(context.Background(), "slot-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
