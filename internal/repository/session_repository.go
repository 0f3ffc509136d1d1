package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/exam-proctor-api/internal/models"
)

const sessionColumns = `id, name, academic_period, notes, status, teacher_count, slot_count, demand, created_by, created_at, updated_at`

// SessionRepository persists planning sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a planning session with generated defaults.
func (r *SessionRepository) Create(ctx context.Context, session *models.PlanningSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = models.SessionStatusDraft
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	query := `INSERT INTO planning_sessions (` + sessionColumns + `)
VALUES (:id, :name, :academic_period, :notes, :status, :teacher_count, :slot_count, :demand, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create planning session: %w", err)
	}
	return nil
}

// GetByID returns a session. sql.ErrNoRows is returned unwrapped.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.PlanningSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM planning_sessions WHERE id = $1`
	var session models.PlanningSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get planning session: %w", err)
	}
	return &session, nil
}

// List returns sessions matching the filter, newest first, with the total count.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.PlanningSession, int, error) {
	baseQuery := `FROM planning_sessions WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(academic_period) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", sessionColumns, baseQuery, pageSize, offset)
	var sessions []models.PlanningSession
	if err := r.db.SelectContext(ctx, &sessions, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list planning sessions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count planning sessions: %w", err)
	}
	return sessions, total, nil
}

// UpdateStatus moves a session to the given lifecycle state.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error {
	const query = `UPDATE planning_sessions SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update planning session status: %w", err)
	}
	return nil
}
