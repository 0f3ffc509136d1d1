package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/exam-proctor-api/internal/models"
	"github.com/noah-isme/exam-proctor-api/internal/repository"
	"github.com/noah-isme/exam-proctor-api/internal/scheduler"
	appErrors "github.com/noah-isme/exam-proctor-api/pkg/errors"
	"github.com/noah-isme/exam-proctor-api/pkg/jobs"
)

type solveRunner interface {
	RunJob(ctx context.Context, job *models.SolveJob) (*scheduler.Result, error)
}

// SolveWorker bridges queue jobs to PlanningService.RunJob and records the outcome on the
// job row.
type SolveWorker struct {
	repo       solveJobStore
	runner     solveRunner
	logger     *zap.Logger
	maxRetries int
}

// NewSolveWorker constructs a worker.
func NewSolveWorker(repo solveJobStore, runner solveRunner, maxRetries int, logger *zap.Logger) *SolveWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &SolveWorker{repo: repo, runner: runner, logger: logger, maxRetries: maxRetries}
}

// Handle processes a queue job. Infeasible and timed-out solves finish the job without a
// retry. Errors that cannot succeed on a rerun fail it at once; others are retried
// up to maxRetries.
func (w *SolveWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if record.Status.Terminal() {
		return nil
	}
	processing := models.SolveStatusProcessing
	progress := 10
	if err := w.repo.Update(ctx, job.ID, repository.UpdateSolveJobParams{
		Status:   &processing,
		Progress: &progress,
	}); err != nil {
		return err
	}

	result, err := w.runner.RunJob(ctx, record)
	if err != nil {
		if !retryable(err) || job.Attempt >= w.maxRetries {
			w.fail(ctx, job.ID, err)
			return jobs.Permanent(err)
		}
		w.requeue(ctx, job.ID, err)
		return err
	}

	status := models.SolveStatusFinished
	switch result.Status {
	case scheduler.StatusInfeasible:
		status = models.SolveStatusInfeasible
	case scheduler.StatusTimeout:
		status = models.SolveStatusTimeout
	}
	progress = 100
	now := time.Now().UTC()
	outcome := string(result.Status)
	seed := result.Seed
	diagnostics := diagnosticsOf(result)
	params := repository.UpdateSolveJobParams{
		Status:      &status,
		Progress:    &progress,
		Outcome:     &outcome,
		Seed:        &seed,
		Diagnostics: &diagnostics,
		FinishedAt:  &now,
	}
	msg := ""
	if outcomeErr := result.Err(); outcomeErr != nil {
		msg = outcomeErr.Error()
	} else {
		objective := result.Objective
		params.Objective = &objective
	}
	params.ErrorMessage = &msg
	if err := w.repo.Update(ctx, job.ID, params); err != nil {
		w.logger.Sugar().Warnw("failed to record solve outcome", "job_id", job.ID, "error", err)
		return err
	}
	w.logger.Sugar().Infow("solve job finished", "job_id", job.ID, "status", status, "objective", result.Objective, "seed", seed)
	return nil
}

// retryable excludes integrity failures and client-class errors such as a missing session.
func retryable(err error) bool {
	var integrity *scheduler.AssignmentIntegrityError
	if errors.As(err, &integrity) {
		return false
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) && appErr.Status < 500 {
		return false
	}
	return true
}

func (w *SolveWorker) fail(ctx context.Context, id string, cause error) {
	failed := models.SolveStatusFailed
	progress := 100
	msg := cause.Error()
	now := time.Now().UTC()
	if err := w.repo.Update(ctx, id, repository.UpdateSolveJobParams{
		Status:       &failed,
		Progress:     &progress,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark solve job failed", "job_id", id, "error", err)
	}
}

func (w *SolveWorker) requeue(ctx context.Context, id string, cause error) {
	queued := models.SolveStatusQueued
	reset := 0
	msg := cause.Error()
	if err := w.repo.Update(ctx, id, repository.UpdateSolveJobParams{
		Status:       &queued,
		Progress:     &reset,
		ErrorMessage: &msg,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark solve job queued", "job_id", id, "error", err)
	}
}
