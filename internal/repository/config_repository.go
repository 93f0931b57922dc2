package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/invigilo/exam-duty-api/internal/models"
)

// ConfigRepository persists grade quotas and staffing ratios.
type ConfigRepository struct {
	db *sqlx.DB
}

// NewConfigRepository constructs a ConfigRepository.
func NewConfigRepository(db *sqlx.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

type quotaRow struct {
	Grade string `db:"grade"`
	Quota int    `db:"quota"`
}

type settingsRow struct {
	TeachersPerRoom int     `db:"teachers_per_room"`
	SurplusPerRoom  float64 `db:"surplus_per_room"`
}

// Get loads the duty configuration, falling back to defaults when the
// settings row is missing.
func (r *ConfigRepository) Get(ctx context.Context) (*models.DutyConfig, error) {
	cfg := models.NewDutyConfig()

	var settings []settingsRow
	if err := r.db.SelectContext(ctx, &settings, `SELECT teachers_per_room, surplus_per_room FROM duty_settings LIMIT 1`); err != nil {
		return nil, fmt.Errorf("load duty settings: %w", err)
	}
	if len(settings) > 0 {
		cfg.TeachersPerRoom = settings[0].TeachersPerRoom
		cfg.SurplusPerRoom = settings[0].SurplusPerRoom
	}

	var quotas []quotaRow
	if err := r.db.SelectContext(ctx, &quotas, `SELECT grade, quota FROM grade_quotas ORDER BY grade`); err != nil {
		return nil, fmt.Errorf("load grade quotas: %w", err)
	}
	for _, row := range quotas {
		cfg.GradeQuotas[row.Grade] = row.Quota
	}

	return cfg, nil
}

// Save replaces the whole configuration transactionally.
func (r *ConfigRepository) Save(ctx context.Context, cfg *models.DutyConfig) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin config tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM duty_settings`); err != nil {
		return fmt.Errorf("clear duty settings: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO duty_settings (teachers_per_room, surplus_per_room) VALUES ($1, $2)`,
		cfg.TeachersPerRoom, cfg.SurplusPerRoom); err != nil {
		return fmt.Errorf("insert duty settings: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM grade_quotas`); err != nil {
		return fmt.Errorf("clear grade quotas: %w", err)
	}
	for grade, quota := range cfg.GradeQuotas {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO grade_quotas (grade, quota) VALUES ($1, $2)`, grade, quota); err != nil {
			return fmt.Errorf("insert grade quota: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit duty config: %w", err)
	}
	return nil
}

// UpsertQuota sets the quota of one grade.
func (r *ConfigRepository) UpsertQuota(ctx context.Context, grade string, quota int) error {
	const query = `INSERT INTO grade_quotas (grade, quota) VALUES ($1, $2)
		ON CONFLICT (grade) DO UPDATE SET quota = EXCLUDED.quota`
	if _, err := r.db.ExecContext(ctx, query, grade, quota); err != nil {
		return fmt.Errorf("upsert grade quota: %w", err)
	}
	return nil
}

// DeleteQuota removes the quota of one grade.
func (r *ConfigRepository) DeleteQuota(ctx context.Context, grade string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM grade_quotas WHERE grade = $1`, grade); err != nil {
		return fmt.Errorf("delete grade quota: %w", err)
	}
	return nil
}
