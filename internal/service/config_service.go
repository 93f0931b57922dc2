package service

import (
	"context"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/invigilo/exam-duty-api/internal/dto"
	"github.com/invigilo/exam-duty-api/internal/models"
	appErrors "github.com/invigilo/exam-duty-api/pkg/errors"
)

type dutyConfigStore interface {
	Get(ctx context.Context) (*models.DutyConfig, error)
	Save(ctx context.Context, cfg *models.DutyConfig) error
	UpsertQuota(ctx context.Context, grade string, quota int) error
	DeleteQuota(ctx context.Context, grade string) error
}

type gradeLister interface {
	ListGrades(ctx context.Context) ([]string, error)
}

// ConfigService manages the duty configuration: per-grade quotas and the
// staffing ratios driving the requirement formula.
type ConfigService struct {
	repo      dutyConfigStore
	grades    gradeLister
	planner   boardReloader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewConfigService constructs a ConfigService.
func NewConfigService(repo dutyConfigStore, grades gradeLister, validate *validator.Validate, logger *zap.Logger) *ConfigService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ConfigService{repo: repo, grades: grades, validator: validate, logger: logger}
}

// AttachPlanner binds the board reloader invoked after config mutations.
func (s *ConfigService) AttachPlanner(planner boardReloader) {
	s.planner = planner
}

// Current returns the stored configuration, defaults applied.
func (s *ConfigService) Current(ctx context.Context) (*models.DutyConfig, error) {
	return s.repo.Get(ctx)
}

// UpdateRatios replaces the staffing ratios after structural validation.
func (s *ConfigService) UpdateRatios(ctx context.Context, req dto.RatiosRequest) (*models.DutyConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid ratios payload")
	}

	cfg, err := s.repo.Get(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load configuration")
	}
	cfg.TeachersPerRoom = req.TeachersPerRoom
	cfg.SurplusPerRoom = req.SurplusPerRoom
	if err := cfg.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid configuration")
	}

	if err := s.repo.Save(ctx, cfg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store configuration")
	}

	s.reloadBoard(ctx)
	return cfg, nil
}

// SetQuota upserts the quota of one grade.
func (s *ConfigService) SetQuota(ctx context.Context, req dto.QuotaRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quota payload")
	}
	if err := s.repo.UpsertQuota(ctx, req.Grade, req.Quota); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store quota")
	}
	s.reloadBoard(ctx)
	return nil
}

// RemoveQuota drops the quota of one grade. Teachers of that grade fall back
// to a zero quota.
func (s *ConfigService) RemoveQuota(ctx context.Context, grade string) error {
	if grade == "" {
		return appErrors.Clone(appErrors.ErrValidation, "grade is required")
	}
	if err := s.repo.DeleteQuota(ctx, grade); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete quota")
	}
	s.reloadBoard(ctx)
	return nil
}

// Diagnostics compares configured quotas against the grades present on the
// roster: grades without a quota and quotas without a roster grade.
func (s *ConfigService) Diagnostics(ctx context.Context) (*dto.ConfigDiagnostics, error) {
	cfg, err := s.repo.Get(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load configuration")
	}
	grades, err := s.grades.ListGrades(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster grades")
	}

	rosterGrades := make(map[string]struct{}, len(grades))
	diag := &dto.ConfigDiagnostics{MissingQuotas: []string{}, UnknownGrades: []string{}}
	for _, grade := range grades {
		rosterGrades[grade] = struct{}{}
		if _, ok := cfg.GradeQuotas[grade]; !ok {
			diag.MissingQuotas = append(diag.MissingQuotas, grade)
		}
	}
	for grade := range cfg.GradeQuotas {
		if _, ok := rosterGrades[grade]; !ok {
			diag.UnknownGrades = append(diag.UnknownGrades, grade)
		}
	}
	sort.Strings(diag.MissingQuotas)
	sort.Strings(diag.UnknownGrades)
	return diag, nil
}

func (s *ConfigService) reloadBoard(ctx context.Context) {
	if s.planner == nil {
		return
	}
	if err := s.planner.Reload(ctx); err != nil {
		s.logger.Warn("board reload failed", zap.Error(err))
	}
}
