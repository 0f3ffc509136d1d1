package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/exam-proctor-api/internal/models"
)

// AssignmentRepository stores solved supervision duties and their satisfaction records.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Publish replaces the session's assignment and satisfaction rows with those of one job and
// marks the session solved, all within one transaction.
func (r *AssignmentRepository) Publish(ctx context.Context, sessionID, jobID string, duties []models.Assignment, records []models.SatisfactionRecord) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin publish assignments: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM assignments WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear assignments: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM satisfaction_records WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear satisfaction records: %w", err)
	}

	now := time.Now().UTC()
	for i := range duties {
		duties[i].SessionID, duties[i].JobID, duties[i].CreatedAt = sessionID, jobID, now
		if _, err = tx.NamedExecContext(ctx, `INSERT INTO assignments (session_id, job_id, teacher_id, slot_id, created_at) VALUES (:session_id, :job_id, :teacher_id, :slot_id, :created_at)`, &duties[i]); err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
	}
	for i := range records {
		records[i].SessionID, records[i].JobID, records[i].CreatedAt = sessionID, jobID, now
		if _, err = tx.NamedExecContext(ctx, `INSERT INTO satisfaction_records (session_id, job_id, teacher_id, score, detail, created_at) VALUES (:session_id, :job_id, :teacher_id, :score, :detail, :created_at)`, &records[i]); err != nil {
			return fmt.Errorf("insert satisfaction record: %w", err)
		}
	}

	if _, err = tx.ExecContext(ctx, `UPDATE planning_sessions SET status = $2, updated_at = $3 WHERE id = $1`, sessionID, models.SessionStatusSolved, now); err != nil {
		return fmt.Errorf("mark session solved: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit publish assignments: %w", err)
	}
	return nil
}

// ListBySession returns the session's duties ordered by teacher then slot.
func (r *AssignmentRepository) ListBySession(ctx context.Context, sessionID string) ([]models.Assignment, error) {
	const query = `SELECT session_id, job_id, teacher_id, slot_id, created_at FROM assignments WHERE session_id = $1 ORDER BY teacher_id ASC, slot_id ASC`
	var rows []models.Assignment
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return rows, nil
}

// ListSatisfaction returns the stored satisfaction records, worst score first.
func (r *AssignmentRepository) ListSatisfaction(ctx context.Context, sessionID string) ([]models.SatisfactionRecord, error) {
	const query = `SELECT session_id, job_id, teacher_id, score, detail, created_at FROM satisfaction_records WHERE session_id = $1 ORDER BY score ASC, teacher_id ASC`
	var rows []models.SatisfactionRecord
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list satisfaction records: %w", err)
	}
	return rows, nil
}
