package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invigilo/exam-duty-api/internal/dto"
	"github.com/invigilo/exam-duty-api/internal/models"
	appErrors "github.com/invigilo/exam-duty-api/pkg/errors"
)

type memConfigStore struct {
	config *models.DutyConfig
}

func newMemConfigStore() *memConfigStore {
	return &memConfigStore{config: models.NewDutyConfig()}
}

func (m *memConfigStore) Get(context.Context) (*models.DutyConfig, error) {
	return m.config.Clone(), nil
}

func (m *memConfigStore) Save(_ context.Context, cfg *models.DutyConfig) error {
	m.config = cfg.Clone()
	return nil
}

func (m *memConfigStore) UpsertQuota(_ context.Context, grade string, quota int) error {
	m.config.GradeQuotas[grade] = quota
	return nil
}

func (m *memConfigStore) DeleteQuota(_ context.Context, grade string) error {
	delete(m.config.GradeQuotas, grade)
	return nil
}

type fixedGrades struct {
	grades []string
}

func (f *fixedGrades) ListGrades(context.Context) ([]string, error) {
	return f.grades, nil
}

func TestConfigUpdateRatios(t *testing.T) {
	store := newMemConfigStore()
	reloader := &countingReloader{}
	svc := NewConfigService(store, &fixedGrades{}, nil, nil)
	svc.AttachPlanner(reloader)

	cfg, err := svc.UpdateRatios(context.Background(), dto.RatiosRequest{TeachersPerRoom: 3, SurplusPerRoom: 0.25})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.TeachersPerRoom)
	assert.Equal(t, 0.25, cfg.SurplusPerRoom)
	assert.Equal(t, 3, store.config.TeachersPerRoom)
	assert.Equal(t, 1, reloader.count)
}

func TestConfigUpdateRatiosRejectsZeroTeachers(t *testing.T) {
	svc := NewConfigService(newMemConfigStore(), &fixedGrades{}, nil, nil)

	_, err := svc.UpdateRatios(context.Background(), dto.RatiosRequest{TeachersPerRoom: 0})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestConfigSetAndRemoveQuota(t *testing.T) {
	store := newMemConfigStore()
	svc := NewConfigService(store, &fixedGrades{}, nil, nil)

	require.NoError(t, svc.SetQuota(context.Background(), dto.QuotaRequest{Grade: "MA", Quota: 4}))
	assert.Equal(t, 4, store.config.GradeQuotas["MA"])

	require.NoError(t, svc.RemoveQuota(context.Background(), "MA"))
	_, ok := store.config.GradeQuotas["MA"]
	assert.False(t, ok)
}

func TestConfigRemoveQuotaRequiresGrade(t *testing.T) {
	svc := NewConfigService(newMemConfigStore(), &fixedGrades{}, nil, nil)

	err := svc.RemoveQuota(context.Background(), "")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestConfigDiagnostics(t *testing.T) {
	store := newMemConfigStore()
	store.config.GradeQuotas = map[string]int{"PR": 2, "ZZ": 1}
	svc := NewConfigService(store, &fixedGrades{grades: []string{"MA", "PR", "AS"}}, nil, nil)

	diag, err := svc.Diagnostics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AS", "MA"}, diag.MissingQuotas)
	assert.Equal(t, []string{"ZZ"}, diag.UnknownGrades)
}

func TestConfigDiagnosticsEmptyRoster(t *testing.T) {
	svc := NewConfigService(newMemConfigStore(), &fixedGrades{}, nil, nil)

	diag, err := svc.Diagnostics(context.Background())
	require.NoError(t, err)
	assert.Empty(t, diag.MissingQuotas)
	assert.Empty(t, diag.UnknownGrades)
	assert.NotNil(t, diag.MissingQuotas)
	assert.NotNil(t, diag.UnknownGrades)
}
