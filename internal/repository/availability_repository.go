package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/invigilo/exam-duty-api/internal/models"
)

// AvailabilityRepository stores declared unavailability slots per teacher.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs an AvailabilityRepository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

type availabilityRow struct {
	TeacherID int    `db:"teacher_id"`
	Semester  string `db:"semester"`
	Session   string `db:"session"`
	Day       int    `db:"day"`
	SessionNo int    `db:"session_no"`
}

// ReplaceForTeacher swaps the full unavailability declaration of a teacher.
// A nil profile clears it.
func (r *AvailabilityRepository) ReplaceForTeacher(ctx context.Context, teacherID int, profile *models.AvailabilityProfile) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin availability tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM availability_slots WHERE teacher_id = $1`, teacherID); err != nil {
		return fmt.Errorf("clear availability: %w", err)
	}

	if profile != nil {
		const insert = `INSERT INTO availability_slots (teacher_id, semester, session, day, session_no)
			VALUES (:teacher_id, :semester, :session, :day, :session_no)`
		for _, ref := range profile.UnavailableSlots() {
			row := availabilityRow{
				TeacherID: teacherID,
				Semester:  profile.Semester,
				Session:   profile.Session,
				Day:       ref.Day,
				SessionNo: ref.Session,
			}
			if _, err := tx.NamedExecContext(ctx, insert, row); err != nil {
				return fmt.Errorf("insert availability slot: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit availability: %w", err)
	}
	return nil
}

// GetByTeacher loads the declared unavailability of one teacher, nil when
// none is declared.
func (r *AvailabilityRepository) GetByTeacher(ctx context.Context, teacherID int) (*models.AvailabilityProfile, error) {
	const query = `SELECT teacher_id, semester, session, day, session_no FROM availability_slots WHERE teacher_id = $1 ORDER BY day, session_no`
	var rows []availabilityRow
	if err := r.db.SelectContext(ctx, &rows, query, teacherID); err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return profileFromRows(rows), nil
}

// ListAll returns every declared profile keyed by teacher id.
func (r *AvailabilityRepository) ListAll(ctx context.Context) (map[int]*models.AvailabilityProfile, error) {
	const query = `SELECT teacher_id, semester, session, day, session_no FROM availability_slots ORDER BY teacher_id, day, session_no`
	var rows []availabilityRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("load availability profiles: %w", err)
	}

	profiles := make(map[int]*models.AvailabilityProfile)
	grouped := make(map[int][]availabilityRow)
	for _, row := range rows {
		grouped[row.TeacherID] = append(grouped[row.TeacherID], row)
	}
	for teacherID, teacherRows := range grouped {
		profiles[teacherID] = profileFromRows(teacherRows)
	}
	return profiles, nil
}

// DeleteAll clears every declaration, used by the replace-existing import.
func (r *AvailabilityRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM availability_slots`); err != nil {
		return fmt.Errorf("clear availability: %w", err)
	}
	return nil
}

// DeleteForTeacher clears all declarations of a teacher.
func (r *AvailabilityRepository) DeleteForTeacher(ctx context.Context, teacherID int) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM availability_slots WHERE teacher_id = $1`, teacherID); err != nil {
		return fmt.Errorf("delete availability: %w", err)
	}
	return nil
}

func profileFromRows(rows []availabilityRow) *models.AvailabilityProfile {
	profile := &models.AvailabilityProfile{
		Semester:    rows[0].Semester,
		Session:     rows[0].Session,
		Unavailable: make(map[models.SlotRef]struct{}, len(rows)),
	}
	for _, row := range rows {
		profile.Unavailable[models.SlotRef{Day: row.Day, Session: row.SessionNo}] = struct{}{}
	}
	return profile
}
