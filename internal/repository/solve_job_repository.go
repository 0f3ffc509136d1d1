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

const solveJobColumns = `id, session_id, params, status, progress, outcome, objective, seed, diagnostics, created_by, created_at, finished_at, error_message`

// SolveJobRepository persists solve job metadata.
type SolveJobRepository struct {
	db *sqlx.DB
}

// NewSolveJobRepository constructs the repository.
func NewSolveJobRepository(db *sqlx.DB) *SolveJobRepository {
	return &SolveJobRepository{db: db}
}

// Create inserts a new solve job row with generated defaults.
func (r *SolveJobRepository) Create(ctx context.Context, job *models.SolveJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.SolveStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO solve_jobs (` + solveJobColumns + `)
VALUES (:id, :session_id, :params, :status, :progress, :outcome, :objective, :seed, :diagnostics, :created_by, :created_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create solve job: %w", err)
	}
	return nil
}

// GetByID returns a job row by its identifier. sql.ErrNoRows is returned unwrapped.
func (r *SolveJobRepository) GetByID(ctx context.Context, id string) (*models.SolveJob, error) {
	query := `SELECT ` + solveJobColumns + ` FROM solve_jobs WHERE id = $1`
	var job models.SolveJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get solve job: %w", err)
	}
	return &job, nil
}

// UpdateSolveJobParams defines the mutable fields.
type UpdateSolveJobParams struct {
	Status       *models.SolveStatus
	Progress     *int
	Outcome      *string
	Objective    *int64
	Seed         *int64
	Diagnostics  *models.SolveDiagnostics
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update persists the provided changes for a job row.
func (r *SolveJobRepository) Update(ctx context.Context, id string, params UpdateSolveJobParams) error {
	set := make([]string, 0, 8)
	args := make([]interface{}, 0, 9)
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.Progress != nil {
		add("progress", *params.Progress)
	}
	if params.Outcome != nil {
		add("outcome", *params.Outcome)
	}
	if params.Objective != nil {
		add("objective", *params.Objective)
	}
	if params.Seed != nil {
		add("seed", *params.Seed)
	}
	if params.Diagnostics != nil {
		add("diagnostics", *params.Diagnostics)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.FinishedAt != nil {
		add("finished_at", *params.FinishedAt)
	}

	if len(set) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE solve_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update solve job: %w", err)
	}
	return nil
}

// ListQueued fetches queued jobs for cold start recovery.
func (r *SolveJobRepository) ListQueued(ctx context.Context, limit int) ([]models.SolveJob, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + solveJobColumns + ` FROM solve_jobs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1`
	var jobs []models.SolveJob
	if err := r.db.SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued solve jobs: %w", err)
	}
	return jobs, nil
}

// CountActive returns how many jobs of the session are queued or processing.
func (r *SolveJobRepository) CountActive(ctx context.Context, sessionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM solve_jobs WHERE session_id = $1 AND status IN ('QUEUED', 'PROCESSING')`
	var count int
	if err := r.db.GetContext(ctx, &count, query, sessionID); err != nil {
		return 0, fmt.Errorf("count active solve jobs: %w", err)
	}
	return count, nil
}
