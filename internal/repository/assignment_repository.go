package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/invigilo/exam-duty-api/internal/models"
)

// AssignmentRepository is the write-through store behind the assignment
// board.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs an AssignmentRepository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// ListAll loads every persisted assignment.
func (r *AssignmentRepository) ListAll(ctx context.Context) ([]models.AssignmentRecord, error) {
	const query = `SELECT teacher_id, day, session, forced, created_at FROM assignments ORDER BY day, session, teacher_id`
	var records []models.AssignmentRecord
	if err := r.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return records, nil
}

// Save inserts one assignment; re-inserting the same placement is a no-op.
func (r *AssignmentRepository) Save(ctx context.Context, record models.AssignmentRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO assignments (teacher_id, day, session, forced, created_at)
		VALUES (:teacher_id, :day, :session, :forced, :created_at)
		ON CONFLICT (teacher_id, day, session) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("save assignment: %w", err)
	}
	return nil
}

// Delete removes one assignment.
func (r *AssignmentRepository) Delete(ctx context.Context, teacherID, day, session int) error {
	const query = `DELETE FROM assignments WHERE teacher_id = $1 AND day = $2 AND session = $3`
	if _, err := r.db.ExecContext(ctx, query, teacherID, day, session); err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}

// ReplaceSlot atomically swaps the occupants of one session.
func (r *AssignmentRepository) ReplaceSlot(ctx context.Context, day, session int, records []models.AssignmentRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace slot tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE day = $1 AND session = $2`, day, session); err != nil {
		return fmt.Errorf("clear slot assignments: %w", err)
	}
	if err := insertRecords(ctx, tx, records); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit slot replacement: %w", err)
	}
	return nil
}

// SaveBatch inserts many assignments in one transaction.
func (r *AssignmentRepository) SaveBatch(ctx context.Context, records []models.AssignmentRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := insertRecords(ctx, tx, records); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit assignment batch: %w", err)
	}
	return nil
}

// DeleteAll clears the board, used when the calendar is replaced wholesale.
func (r *AssignmentRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM assignments`); err != nil {
		return fmt.Errorf("clear assignments: %w", err)
	}
	return nil
}

func insertRecords(ctx context.Context, tx *sqlx.Tx, records []models.AssignmentRecord) error {
	const query = `INSERT INTO assignments (teacher_id, day, session, forced, created_at)
		VALUES (:teacher_id, :day, :session, :forced, :created_at)
		ON CONFLICT (teacher_id, day, session) DO NOTHING`
	now := time.Now().UTC()
	for _, record := range records {
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
	}
	return nil
}
