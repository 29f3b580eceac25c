package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campus-dev/sis-api/internal/models"
	appErrors "github.com/campus-dev/sis-api/pkg/errors"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

func (stubTxRunner) WithSerializable(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

type mockScheduleSlotRepo struct {
	byID         map[string]models.SlotDetail
	bySection    map[string][]models.ScheduleSlot
	roomSlots    []models.SlotDetail
	teacherSlots []models.SlotDetail
}

func (m *mockScheduleSlotRepo) FindByID(ctx context.Context, id string) (*models.SlotDetail, error) {
	if s, ok := m.byID[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockScheduleSlotRepo) ListBySection(ctx context.Context, sectionID string) ([]models.ScheduleSlot, error) {
	return m.bySection[sectionID], nil
}

func (m *mockScheduleSlotRepo) FindByTermDayRoom(ctx context.Context, q sqlx.ExtContext, termID string, dayOfWeek int, room string) ([]models.SlotDetail, error) {
	var out []models.SlotDetail
	for _, s := range m.roomSlots {
		if s.DayOfWeek == dayOfWeek && s.Room == room {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockScheduleSlotRepo) FindByTermDayTeacher(ctx context.Context, q sqlx.ExtContext, termID string, dayOfWeek int, teacherID string) ([]models.SlotDetail, error) {
	var out []models.SlotDetail
	for _, s := range m.teacherSlots {
		if s.DayOfWeek == dayOfWeek && s.TeacherID == teacherID {
			out = append(out, s)
		}
	}
	return out, nil
}

type mockScheduleSectionRepo struct {
	sections map[string]models.ClassSection
}

func (m *mockScheduleSectionRepo) FindByID(ctx context.Context, id string) (*models.ClassSection, error) {
	if s, ok := m.sections[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

type mockScheduleTermRepo struct {
	terms map[string]models.Term
}

func (m *mockScheduleTermRepo) FindByID(ctx context.Context, id string) (*models.Term, error) {
	if t, ok := m.terms[id]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockScheduleTermRepo) FindByIDTx(ctx context.Context, q sqlx.ExtContext, id string) (*models.Term, error) {
	return m.FindByID(ctx, id)
}

func detailSlot(id, sectionID, name string, day, start, end int, room, teacherID string) models.SlotDetail {
	return models.SlotDetail{
		ScheduleSlot: models.ScheduleSlot{
			ID:          id,
			SectionID:   sectionID,
			TermID:      "t1",
			DayOfWeek:   day,
			StartLesson: start,
			EndLesson:   end,
			Room:        room,
		},
		SectionName: name,
		TeacherID:   teacherID,
	}
}

func proposal(sectionID string, day, start, end int, room, teacherID string) models.SlotProposal {
	return models.SlotProposal{
		SectionID: sectionID,
		TermID:    "t1",
		TeacherID: teacherID,
		DayOfWeek: day,
		Range:     models.LessonRange{Start: start, End: end},
		Room:      room,
	}
}

func TestCheckConflictTxRoomCollision(t *testing.T) {
	slots := &mockScheduleSlotRepo{
		roomSlots: []models.SlotDetail{detailSlot("sl1", "sec-other", "CS101.01", 2, 1, 3, "B204", "tc-x")},
	}
	svc := NewScheduleService(slots, &mockScheduleSectionRepo{}, &mockScheduleTermRepo{}, stubTxRunner{}, nil, zap.NewNop())

	conflict, err := svc.CheckConflictTx(context.Background(), nil, proposal("sec-new", 2, 3, 5, "B204", "tc-y"))
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.Equal(t, models.ConflictRoom, conflict.Dimension)
	assert.Equal(t, "sec-other", conflict.SectionID)
	assert.Equal(t, "B204", conflict.Room)
}

func TestCheckConflictTxTeacherCollision(t *testing.T) {
	slots := &mockScheduleSlotRepo{
		teacherSlots: []models.SlotDetail{detailSlot("sl2", "sec-other", "CS102.01", 3, 4, 6, "C101", "tc-1")},
	}
	svc := NewScheduleService(slots, &mockScheduleSectionRepo{}, &mockScheduleTermRepo{}, stubTxRunner{}, nil, zap.NewNop())

	conflict, err := svc.CheckConflictTx(context.Background(), nil, proposal("sec-new", 3, 6, 8, "D300", "tc-1"))
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.Equal(t, models.ConflictTeacher, conflict.Dimension)
}

func TestCheckConflictTxRoomReportedBeforeTeacher(t *testing.T) {
	slots := &mockScheduleSlotRepo{
		roomSlots:    []models.SlotDetail{detailSlot("sl1", "sec-a", "CS101.01", 2, 1, 3, "B204", "tc-1")},
		teacherSlots: []models.SlotDetail{detailSlot("sl2", "sec-b", "CS102.01", 2, 1, 3, "C101", "tc-1")},
	}
	svc := NewScheduleService(slots, &mockScheduleSectionRepo{}, &mockScheduleTermRepo{}, stubTxRunner{}, nil, zap.NewNop())

	conflict, err := svc.CheckConflictTx(context.Background(), nil, proposal("sec-new", 2, 2, 4, "B204", "tc-1"))
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.Equal(t, models.ConflictRoom, conflict.Dimension)
}

func TestCheckConflictTxIgnoresOwnSection(t *testing.T) {
	slots := &mockScheduleSlotRepo{
		roomSlots:    []models.SlotDetail{detailSlot("sl1", "sec-new", "CS101.01", 2, 1, 3, "B204", "tc-1")},
		teacherSlots: []models.SlotDetail{detailSlot("sl1", "sec-new", "CS101.01", 2, 1, 3, "B204", "tc-1")},
	}
	svc := NewScheduleService(slots, &mockScheduleSectionRepo{}, &mockScheduleTermRepo{}, stubTxRunner{}, nil, zap.NewNop())

	conflict, err := svc.CheckConflictTx(context.Background(), nil, proposal("sec-new", 2, 2, 4, "B204", "tc-1"))
	require.NoError(t, err)
	assert.Nil(t, conflict)
}

func TestCheckConflictTxDisjointRangesAreFree(t *testing.T) {
	slots := &mockScheduleSlotRepo{
		roomSlots:    []models.SlotDetail{detailSlot("sl1", "sec-a", "CS101.01", 2, 1, 2, "B204", "tc-x")},
		teacherSlots: []models.SlotDetail{detailSlot("sl2", "sec-b", "CS102.01", 2, 1, 2, "C101", "tc-1")},
	}
	svc := NewScheduleService(slots, &mockScheduleSectionRepo{}, &mockScheduleTermRepo{}, stubTxRunner{}, nil, zap.NewNop())

	conflict, err := svc.CheckConflictTx(context.Background(), nil, proposal("sec-new", 2, 3, 4, "B204", "tc-1"))
	require.NoError(t, err)
	assert.Nil(t, conflict)
}

func TestScheduleCheckDryRun(t *testing.T) {
	sections := &mockScheduleSectionRepo{sections: map[string]models.ClassSection{
		"sec-new": {ID: "sec-new", TermID: "t1", TeacherID: "tc-1"},
	}}
	slots := &mockScheduleSlotRepo{
		roomSlots: []models.SlotDetail{detailSlot("sl1", "sec-other", "CS101.01", 2, 2, 4, "B204", "tc-x")},
	}
	svc := NewScheduleService(slots, sections, &mockScheduleTermRepo{}, stubTxRunner{}, nil, zap.NewNop())

	conflict, err := svc.Check(context.Background(), CheckConflictRequest{
		SectionID: "sec-new", DayOfWeek: 2, StartLesson: 4, EndLesson: 6, Room: "b204",
	})
	require.NoError(t, err)
	require.NotNil(t, conflict, "lowercase room must collide with canonical form")
	assert.Equal(t, models.ConflictRoom, conflict.Dimension)
}

func TestScheduleCheckUnknownSection(t *testing.T) {
	svc := NewScheduleService(&mockScheduleSlotRepo{}, &mockScheduleSectionRepo{}, &mockScheduleTermRepo{}, stubTxRunner{}, nil, zap.NewNop())

	_, err := svc.Check(context.Background(), CheckConflictRequest{
		SectionID: "missing", DayOfWeek: 2, StartLesson: 1, EndLesson: 2, Room: "B204",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestScheduleCheckRejectsInvertedRange(t *testing.T) {
	sections := &mockScheduleSectionRepo{sections: map[string]models.ClassSection{
		"sec-new": {ID: "sec-new", TermID: "t1", TeacherID: "tc-1"},
	}}
	svc := NewScheduleService(&mockScheduleSlotRepo{}, sections, &mockScheduleTermRepo{}, stubTxRunner{}, nil, zap.NewNop())

	_, err := svc.Check(context.Background(), CheckConflictRequest{
		SectionID: "sec-new", DayOfWeek: 2, StartLesson: 5, EndLesson: 3, Room: "B204",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTeachingDates(t *testing.T) {
	start := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC) // Monday
	slots := &mockScheduleSlotRepo{byID: map[string]models.SlotDetail{
		"sl1": detailSlot("sl1", "sec-1", "CS101.01", 2, 1, 3, "B204", "tc-1"),
	}}
	terms := &mockScheduleTermRepo{terms: map[string]models.Term{
		"t1": {ID: "t1", StartDate: start, EndDate: start.AddDate(0, 0, 20)},
	}}
	svc := NewScheduleService(slots, &mockScheduleSectionRepo{}, terms, stubTxRunner{}, nil, zap.NewNop())

	dates, err := svc.TeachingDates(context.Background(), "sl1")
	require.NoError(t, err)
	require.Len(t, dates, 3)
	assert.Equal(t, time.Monday, dates[0].Weekday())
}
