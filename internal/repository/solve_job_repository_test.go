package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-proctor-api/internal/models"
	"github.com/noah-isme/exam-proctor-api/internal/scheduler"
)

var solveJobRowColumns = []string{"id", "session_id", "params", "status", "progress", "outcome", "objective", "seed", "diagnostics", "created_by", "created_at", "finished_at", "error_message"}

func TestSolveJobRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSolveJobRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO solve_jobs")).
		WithArgs(sqlmock.AnyArg(), "s-1", sqlmock.AnyArg(), "QUEUED", 0, nil, nil, nil, sqlmock.AnyArg(), "user-1", sqlmock.AnyArg(), nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.SolveJob{SessionID: "s-1", Params: models.SolveJobParams{PreferenceMode: "soft"}, CreatedBy: "user-1"}
	require.NoError(t, repo.Create(context.Background(), job))

	rows := sqlmock.NewRows(solveJobRowColumns).
		AddRow(job.ID, "s-1", `{"preferenceMode":"soft"}`, "FINISHED", 100, "feasible", int64(4200), int64(17), `{"message":"solved after relaxation: preference_soft","relaxations":[{"kind":"preference_soft","family":"preference","detail":"x"}],"assigned":96}`, "user-1", time.Now(), time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, session_id, params, status, progress, outcome, objective, seed, diagnostics, created_by, created_at, finished_at, error_message FROM solve_jobs WHERE id = $1")).
		WithArgs(job.ID).
		WillReturnRows(rows)

	fetched, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "soft", fetched.Params.PreferenceMode)
	assert.Equal(t, models.SolveStatusFinished, fetched.Status)
	require.NotNil(t, fetched.Objective)
	assert.Equal(t, int64(4200), *fetched.Objective)
	require.Len(t, fetched.Diagnostics.Relaxations, 1)
	assert.Equal(t, scheduler.RelaxPreferenceSoft, fetched.Diagnostics.Relaxations[0].Kind)
	assert.Equal(t, 96, fetched.Diagnostics.Assigned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSolveJobRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSolveJobRepository(db)

	now := time.Now()
	status := models.SolveStatusInfeasible
	progress := 100
	outcome := "infeasible"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE solve_jobs SET status = $1, progress = $2, outcome = $3, diagnostics = $4, finished_at = $5 WHERE id = $6")).
		WithArgs(status, progress, outcome, sqlmock.AnyArg(), now, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "job-1", UpdateSolveJobParams{
		Status:      &status,
		Progress:    &progress,
		Outcome:     &outcome,
		Diagnostics: &models.SolveDiagnostics{SuspectedFamilies: []scheduler.ConstraintFamily{scheduler.FamilyPreference}},
		FinishedAt:  &now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSolveJobRepositoryUpdateWithoutChangesIsNoop(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSolveJobRepository(db)

	require.NoError(t, repo.Update(context.Background(), "job-1", UpdateSolveJobParams{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSolveJobRepositoryListQueuedAndCountActive(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSolveJobRepository(db)

	rows := sqlmock.NewRows(solveJobRowColumns).
		AddRow("job-1", "s-1", `{}`, "QUEUED", 0, nil, nil, nil, nil, "user-1", time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM solve_jobs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1")).
		WithArgs(20).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM solve_jobs WHERE session_id = $1 AND status IN ('QUEUED', 'PROCESSING')")).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	jobs, err := repo.ListQueued(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	active, err := repo.CountActive(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, 1, active)
	require.NoError(t, mock.ExpectationsWereMet())
}
