package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campus-dev/sis-api/internal/models"
	appErrors "github.com/campus-dev/sis-api/pkg/errors"
)

type mockSectionRepo struct {
	sections map[string]models.ClassSection
	count    int
	created  *models.ClassSection
	locked   map[string]bool
	deleted  []string
}

func (m *mockSectionRepo) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	return nil, 0, nil
}

func (m *mockSectionRepo) FindByID(ctx context.Context, id string) (*models.ClassSection, error) {
	if s, ok := m.sections[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSectionRepo) FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error) {
	if s, ok := m.sections[id]; ok {
		return &models.SectionDetail{ClassSection: s}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSectionRepo) CountBySubjectAndTerm(ctx context.Context, subjectID, termID string) (int, error) {
	return m.count, nil
}

func (m *mockSectionRepo) Create(ctx context.Context, section *models.ClassSection) error {
	if section.ID == "" {
		section.ID = "new-section"
	}
	if m.sections == nil {
		m.sections = make(map[string]models.ClassSection)
	}
	m.sections[section.ID] = *section
	m.created = section
	return nil
}

func (m *mockSectionRepo) Update(ctx context.Context, section *models.ClassSection) error {
	m.sections[section.ID] = *section
	return nil
}

func (m *mockSectionRepo) SetLocked(ctx context.Context, id string, locked bool) error {
	if m.locked == nil {
		m.locked = make(map[string]bool)
	}
	m.locked[id] = locked
	return nil
}

func (m *mockSectionRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

type mockSectionSlotRepo struct {
	byID      map[string]models.SlotDetail
	created   *models.ScheduleSlot
	createErr error
	canceled  []string
}

func (m *mockSectionSlotRepo) FindByID(ctx context.Context, id string) (*models.SlotDetail, error) {
	if s, ok := m.byID[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSectionSlotRepo) ListBySection(ctx context.Context, sectionID string) ([]models.ScheduleSlot, error) {
	return nil, nil
}

func (m *mockSectionSlotRepo) Create(ctx context.Context, q sqlx.ExtContext, slot *models.ScheduleSlot) error {
	if m.createErr != nil {
		return m.createErr
	}
	if slot.ID == "" {
		slot.ID = "new-slot"
	}
	m.created = slot
	return nil
}

func (m *mockSectionSlotRepo) Cancel(ctx context.Context, id string) error {
	m.canceled = append(m.canceled, id)
	return nil
}

type mockSectionSubjectRepo struct {
	subjects map[string]models.Subject
}

func (m *mockSectionSubjectRepo) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	if s, ok := m.subjects[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

type mockSectionEnrollmentRepo struct {
	bySection map[string][]models.EnrollmentDetail
}

func (m *mockSectionEnrollmentRepo) ListBySection(ctx context.Context, sectionID string) ([]models.EnrollmentDetail, error) {
	return m.bySection[sectionID], nil
}

type fakeDetector struct {
	conflict *models.ScheduleConflict
	scanned  []models.SlotProposal
}

func (f *fakeDetector) CheckConflictTx(ctx context.Context, q sqlx.ExtContext, p models.SlotProposal) (*models.ScheduleConflict, error) {
	f.scanned = append(f.scanned, p)
	return f.conflict, nil
}

func newSectionFixture() (*mockSectionRepo, *mockSectionSlotRepo, *mockScheduleTermRepo, *mockSectionSubjectRepo, *mockSectionEnrollmentRepo, *fakeDetector) {
	sections := &mockSectionRepo{sections: map[string]models.ClassSection{
		"sec-1": {ID: "sec-1", Name: "CS101.01", SubjectID: "sub-1", TermID: "t1", TeacherID: "tc-1", Capacity: 60},
	}}
	slots := &mockSectionSlotRepo{}
	terms := &mockScheduleTermRepo{terms: map[string]models.Term{
		"t1": {ID: "t1", IsActive: true},
	}}
	subjects := &mockSectionSubjectRepo{subjects: map[string]models.Subject{
		"sub-1": {ID: "sub-1", Code: "CS101", Credits: 3},
	}}
	enrollments := &mockSectionEnrollmentRepo{}
	return sections, slots, terms, subjects, enrollments, &fakeDetector{}
}

func TestSectionServiceCreate(t *testing.T) {
	sections, slots, terms, subjects, enrollments, detector := newSectionFixture()
	sections.count = 2
	svc := NewSectionService(sections, slots, terms, subjects, enrollments, detector, stubTxRunner{}, nil, zap.NewNop())

	section, err := svc.Create(context.Background(), CreateSectionRequest{
		SubjectID: "sub-1", TermID: "t1", TeacherID: "tc-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "CS101.03", section.Name, "name derives from subject code and next group")
	assert.Equal(t, models.DefaultSectionCapacity, section.Capacity)
}

func TestSectionServiceCreateClosedTerm(t *testing.T) {
	sections, slots, terms, subjects, enrollments, detector := newSectionFixture()
	terms.terms["t1"] = models.Term{ID: "t1", IsActive: false}
	svc := NewSectionService(sections, slots, terms, subjects, enrollments, detector, stubTxRunner{}, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateSectionRequest{
		SubjectID: "sub-1", TermID: "t1", TeacherID: "tc-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTermLocked.Code, appErrors.FromError(err).Code)
}

func TestSectionServiceAddSlot(t *testing.T) {
	sections, slots, terms, subjects, enrollments, detector := newSectionFixture()
	svc := NewSectionService(sections, slots, terms, subjects, enrollments, detector, stubTxRunner{}, nil, zap.NewNop())

	slot, err := svc.AddSlot(context.Background(), AddSlotRequest{
		SectionID: "sec-1", DayOfWeek: 2, StartLesson: 1, EndLesson: 3, Room: " b204 ",
	})
	require.NoError(t, err)
	assert.Equal(t, "B204", slot.Room, "room is canonicalized before commit")
	assert.NotNil(t, slots.created)
	assert.Equal(t, "t1", slots.created.TermID, "slot carries its section's term")
	require.Len(t, detector.scanned, 1)
	assert.Equal(t, "tc-1", detector.scanned[0].TeacherID)
}

func TestSectionServiceAddSlotConflict(t *testing.T) {
	sections, slots, terms, subjects, enrollments, detector := newSectionFixture()
	detector.conflict = &models.ScheduleConflict{
		Dimension: models.ConflictRoom, SectionID: "sec-2", SectionName: "CS102.01",
		DayOfWeek: 2, Range: models.LessonRange{Start: 1, End: 3}, Room: "B204",
	}
	svc := NewSectionService(sections, slots, terms, subjects, enrollments, detector, stubTxRunner{}, nil, zap.NewNop())

	_, err := svc.AddSlot(context.Background(), AddSlotRequest{
		SectionID: "sec-1", DayOfWeek: 2, StartLesson: 2, EndLesson: 4, Room: "B204",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrScheduleConflict.Code, appErr.Code)
	conflict, ok := appErr.Details.(models.ScheduleConflict)
	require.True(t, ok, "conflict payload travels in error details")
	assert.Equal(t, models.ConflictRoom, conflict.Dimension)
	assert.Nil(t, slots.created, "no slot row on conflict")
}

func TestSectionServiceAddSlotLockedSection(t *testing.T) {
	sections, slots, terms, subjects, enrollments, detector := newSectionFixture()
	sections.sections["sec-1"] = models.ClassSection{ID: "sec-1", TermID: "t1", TeacherID: "tc-1", IsLocked: true}
	svc := NewSectionService(sections, slots, terms, subjects, enrollments, detector, stubTxRunner{}, nil, zap.NewNop())

	_, err := svc.AddSlot(context.Background(), AddSlotRequest{
		SectionID: "sec-1", DayOfWeek: 2, StartLesson: 1, EndLesson: 2, Room: "B204",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTermLocked.Code, appErrors.FromError(err).Code)
	assert.Empty(t, detector.scanned, "no conflict scan for a locked section")
}

func TestSectionServiceRemoveSlotClosedTerm(t *testing.T) {
	sections, slots, terms, subjects, enrollments, detector := newSectionFixture()
	slots.byID = map[string]models.SlotDetail{
		"sl1": {ScheduleSlot: models.ScheduleSlot{ID: "sl1", SectionID: "sec-1", TermID: "t1"}},
	}
	terms.terms["t1"] = models.Term{ID: "t1", IsActive: false}
	svc := NewSectionService(sections, slots, terms, subjects, enrollments, detector, stubTxRunner{}, nil, zap.NewNop())

	err := svc.RemoveSlot(context.Background(), "sl1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTermLocked.Code, appErrors.FromError(err).Code)
	assert.Empty(t, slots.canceled)
}

func TestSectionServiceRemoveSlotCancels(t *testing.T) {
	sections, slots, terms, subjects, enrollments, detector := newSectionFixture()
	slots.byID = map[string]models.SlotDetail{
		"sl1": {ScheduleSlot: models.ScheduleSlot{ID: "sl1", SectionID: "sec-1", TermID: "t1"}},
	}
	svc := NewSectionService(sections, slots, terms, subjects, enrollments, detector, stubTxRunner{}, nil, zap.NewNop())

	require.NoError(t, svc.RemoveSlot(context.Background(), "sl1"))
	assert.Equal(t, []string{"sl1"}, slots.canceled, "slot is soft-canceled, not dropped")
}

func TestSectionServiceAddSlotExclusionRace(t *testing.T) {
	sections, slots, terms, subjects, enrollments, detector := newSectionFixture()
	slots.createErr = &pq.Error{Code: "23P01"}
	svc := NewSectionService(sections, slots, terms, subjects, enrollments, detector, stubTxRunner{}, nil, zap.NewNop())

	_, err := svc.AddSlot(context.Background(), AddSlotRequest{
		SectionID: "sec-1", DayOfWeek: 2, StartLesson: 1, EndLesson: 3, Room: "B204",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrScheduleConflict.Code, appErrors.FromError(err).Code,
		"a concurrent booking tripping the room exclusion guard maps to a schedule conflict")
}

func TestSectionServiceDeleteRefusedWhenGraded(t *testing.T) {
	sections, slots, terms, subjects, enrollments, detector := newSectionFixture()
	total := 8.5
	enrollments.bySection = map[string][]models.EnrollmentDetail{
		"sec-1": {{Enrollment: models.Enrollment{ID: "e1", Total10: &total}}},
	}
	svc := NewSectionService(sections, slots, terms, subjects, enrollments, detector, stubTxRunner{}, nil, zap.NewNop())

	err := svc.Delete(context.Background(), "sec-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, sections.deleted)
}

func TestSectionServiceLockUnlock(t *testing.T) {
	sections, slots, terms, subjects, enrollments, detector := newSectionFixture()
	svc := NewSectionService(sections, slots, terms, subjects, enrollments, detector, stubTxRunner{}, nil, zap.NewNop())

	require.NoError(t, svc.Lock(context.Background(), "sec-1"))
	assert.True(t, sections.locked["sec-1"])
	require.NoError(t, svc.Unlock(context.Background(), "sec-1"))
	assert.False(t, sections.locked["sec-1"])
}
