package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/exam-proctor-api/internal/models"
)

// RosterRepository stores the normalised teachers, slots and wishes of a session.
type RosterRepository struct {
	db *sqlx.DB
}

// NewRosterRepository constructs the repository.
func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// Replace swaps the session's roster for the given rows within one transaction and
// refreshes the session's counters. Previous assignments are dropped since they refer to
// the old roster.
func (r *RosterRepository) Replace(ctx context.Context, sessionID string, teachers []models.Teacher, slots []models.ExamSlot, wishes []models.Wish) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace roster: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"satisfaction_records", "assignments", "wishes", "exam_slots", "session_teachers"} {
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE session_id = $1", table), sessionID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for i := range teachers {
		teachers[i].SessionID = sessionID
		if _, err = tx.NamedExecContext(ctx, `INSERT INTO session_teachers (session_id, teacher_id, code, first_name, last_name, email, grade, quota, participates)
VALUES (:session_id, :teacher_id, :code, :first_name, :last_name, :email, :grade, :quota, :participates)`, &teachers[i]); err != nil {
			return fmt.Errorf("insert session teacher: %w", err)
		}
	}

	demand := 0
	for i := range slots {
		slots[i].SessionID = sessionID
		demand += slots[i].Required
		if _, err = tx.NamedExecContext(ctx, `INSERT INTO exam_slots (session_id, slot_id, exam_date, day, start_time, end_time, session_label, session_index, rooms, required, responsible)
VALUES (:session_id, :slot_id, :exam_date, :day, :start_time, :end_time, :session_label, :session_index, :rooms, :required, :responsible)`, &slots[i]); err != nil {
			return fmt.Errorf("insert exam slot: %w", err)
		}
	}

	for i := range wishes {
		wishes[i].SessionID = sessionID
		if _, err = tx.NamedExecContext(ctx, `INSERT INTO wishes (session_id, teacher_id, day, session_label) VALUES (:session_id, :teacher_id, :day, :session_label)`, &wishes[i]); err != nil {
			return fmt.Errorf("insert wish: %w", err)
		}
	}

	const update = `UPDATE planning_sessions SET status = $2, teacher_count = $3, slot_count = $4, demand = $5, updated_at = $6 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, update, sessionID, models.SessionStatusImported, len(teachers), len(slots), demand, time.Now().UTC()); err != nil {
		return fmt.Errorf("update session counters: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace roster: %w", err)
	}
	return nil
}

// Teachers lists the session's teachers ordered by identifier.
func (r *RosterRepository) Teachers(ctx context.Context, sessionID string) ([]models.Teacher, error) {
	const query = `SELECT session_id, teacher_id, code, first_name, last_name, email, grade, quota, participates
FROM session_teachers WHERE session_id = $1 ORDER BY teacher_id ASC`
	var rows []models.Teacher
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session teachers: %w", err)
	}
	return rows, nil
}

// Slots lists the session's exam slots in chronological order.
func (r *RosterRepository) Slots(ctx context.Context, sessionID string) ([]models.ExamSlot, error) {
	const query = `SELECT session_id, slot_id, exam_date, day, start_time, end_time, session_label, session_index, rooms, required, responsible
FROM exam_slots WHERE session_id = $1 ORDER BY day ASC, start_time ASC`
	var rows []models.ExamSlot
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list exam slots: %w", err)
	}
	return rows, nil
}

// Wishes lists the session's declared wishes.
func (r *RosterRepository) Wishes(ctx context.Context, sessionID string) ([]models.Wish, error) {
	const query = `SELECT session_id, teacher_id, day, session_label FROM wishes WHERE session_id = $1 ORDER BY teacher_id ASC, day ASC, session_label ASC`
	var rows []models.Wish
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list wishes: %w", err)
	}
	return rows, nil
}
