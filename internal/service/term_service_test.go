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

type mockTermRepo struct {
	terms        map[string]models.Term
	created      *models.Term
	ungraded     []models.UngradedSection
	closed       []string
	regWindow    map[string]bool
	sectionCount int
	deleted      []string
}

func (m *mockTermRepo) List(ctx context.Context, filter models.TermFilter) ([]models.Term, int, error) {
	return nil, 0, nil
}

func (m *mockTermRepo) FindByID(ctx context.Context, id string) (*models.Term, error) {
	if t, ok := m.terms[id]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTermRepo) ListActive(ctx context.Context) ([]models.Term, error) {
	var active []models.Term
	for _, t := range m.terms {
		if t.IsActive {
			active = append(active, t)
		}
	}
	return active, nil
}

func (m *mockTermRepo) Create(ctx context.Context, term *models.Term) error {
	if term.ID == "" {
		term.ID = "new-term"
	}
	if m.terms == nil {
		m.terms = make(map[string]models.Term)
	}
	m.terms[term.ID] = *term
	m.created = term
	return nil
}

func (m *mockTermRepo) Update(ctx context.Context, term *models.Term) error {
	m.terms[term.ID] = *term
	return nil
}

func (m *mockTermRepo) SetRegistrationOpen(ctx context.Context, id string, open bool) error {
	if m.regWindow == nil {
		m.regWindow = make(map[string]bool)
	}
	m.regWindow[id] = open
	return nil
}

func (m *mockTermRepo) UngradedSections(ctx context.Context, q sqlx.ExtContext, termID string) ([]models.UngradedSection, error) {
	return m.ungraded, nil
}

func (m *mockTermRepo) CloseTx(ctx context.Context, tx *sqlx.Tx, termID string) error {
	m.closed = append(m.closed, termID)
	if t, ok := m.terms[termID]; ok {
		t.IsActive = false
		m.terms[termID] = t
	}
	return nil
}

func (m *mockTermRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockTermRepo) CountSections(ctx context.Context, id string) (int, error) {
	return m.sectionCount, nil
}

func termDates() (time.Time, time.Time) {
	start := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 4, 0)
}

func TestTermServiceCreate(t *testing.T) {
	repo := &mockTermRepo{}
	svc := NewTermService(repo, stubTxRunner{}, nil, zap.NewNop())
	start, end := termDates()

	term, err := svc.Create(context.Background(), CreateTermRequest{Name: "2026.1", StartDate: start, EndDate: end})
	require.NoError(t, err)
	assert.True(t, term.IsActive, "new terms start active")
	assert.False(t, term.RegistrationOpen)
}

func TestTermServiceCreateSecondActive(t *testing.T) {
	repo := &mockTermRepo{terms: map[string]models.Term{
		"t1": {ID: "t1", Name: "2025.2", IsActive: true},
	}}
	svc := NewTermService(repo, stubTxRunner{}, nil, zap.NewNop())
	start, end := termDates()

	_, err := svc.Create(context.Background(), CreateTermRequest{Name: "2026.1", StartDate: start, EndDate: end})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTermServiceCreateInvertedDates(t *testing.T) {
	repo := &mockTermRepo{}
	svc := NewTermService(repo, stubTxRunner{}, nil, zap.NewNop())
	start, _ := termDates()

	_, err := svc.Create(context.Background(), CreateTermRequest{Name: "2026.1", StartDate: start, EndDate: start.AddDate(0, 0, -1)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTermServiceGetActive(t *testing.T) {
	repo := &mockTermRepo{terms: map[string]models.Term{}}
	svc := NewTermService(repo, stubTxRunner{}, nil, zap.NewNop())

	_, err := svc.GetActive(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	repo.terms["t1"] = models.Term{ID: "t1", IsActive: true}
	term, err := svc.GetActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t1", term.ID)

	repo.terms["t2"] = models.Term{ID: "t2", IsActive: true}
	_, err = svc.GetActive(context.Background())
	require.Error(t, err, "two active terms is a calendar fault")
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestTermServiceCloseWithUngraded(t *testing.T) {
	repo := &mockTermRepo{terms: map[string]models.Term{
		"t1": {ID: "t1", IsActive: true},
	}}
	repo.ungraded = []models.UngradedSection{
		{SectionID: "sec-1", SectionName: "CS101.01", Missing: 3},
		{SectionID: "sec-2", SectionName: "CS102.01", Missing: 1},
	}
	svc := NewTermService(repo, stubTxRunner{}, nil, zap.NewNop())

	err := svc.Close(context.Background(), "t1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrIncompleteGrades.Code, appErr.Code)
	sections, ok := appErr.Details.([]models.UngradedSection)
	require.True(t, ok, "failed closure lists the offending sections")
	assert.Len(t, sections, 2)
	assert.Empty(t, repo.closed)
}

func TestTermServiceClose(t *testing.T) {
	repo := &mockTermRepo{terms: map[string]models.Term{
		"t1": {ID: "t1", IsActive: true},
	}}
	svc := NewTermService(repo, stubTxRunner{}, nil, zap.NewNop())

	require.NoError(t, svc.Close(context.Background(), "t1"))
	assert.Contains(t, repo.closed, "t1")

	err := svc.Close(context.Background(), "t1")
	require.Error(t, err, "closing twice is refused")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTermServiceUpdateClosedTerm(t *testing.T) {
	repo := &mockTermRepo{terms: map[string]models.Term{
		"t1": {ID: "t1", IsActive: false},
	}}
	svc := NewTermService(repo, stubTxRunner{}, nil, zap.NewNop())
	start, end := termDates()

	_, err := svc.Update(context.Background(), "t1", UpdateTermRequest{Name: "2026.1", StartDate: start, EndDate: end})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTermLocked.Code, appErrors.FromError(err).Code)
}

func TestTermServiceRegistrationWindow(t *testing.T) {
	repo := &mockTermRepo{terms: map[string]models.Term{
		"t1": {ID: "t1", IsActive: true},
		"t2": {ID: "t2", IsActive: false},
	}}
	svc := NewTermService(repo, stubTxRunner{}, nil, zap.NewNop())

	require.NoError(t, svc.OpenRegistration(context.Background(), "t1"))
	assert.True(t, repo.regWindow["t1"])

	err := svc.OpenRegistration(context.Background(), "t2")
	require.Error(t, err, "a closed term cannot reopen registration")
	assert.Equal(t, appErrors.ErrTermLocked.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.CloseRegistration(context.Background(), "t2"), "closing the window is always allowed")
}

func TestTermServiceDeleteWithSections(t *testing.T) {
	repo := &mockTermRepo{terms: map[string]models.Term{
		"t1": {ID: "t1"},
	}}
	repo.sectionCount = 4
	svc := NewTermService(repo, stubTxRunner{}, nil, zap.NewNop())

	err := svc.Delete(context.Background(), "t1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}
