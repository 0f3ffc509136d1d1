package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/exam-proctor-api/internal/dto"
	"github.com/noah-isme/exam-proctor-api/internal/exam"
	"github.com/noah-isme/exam-proctor-api/internal/models"
	"github.com/noah-isme/exam-proctor-api/internal/repository"
	"github.com/noah-isme/exam-proctor-api/internal/satisfaction"
	"github.com/noah-isme/exam-proctor-api/internal/scheduler"
	"github.com/noah-isme/exam-proctor-api/pkg/config"
	appErrors "github.com/noah-isme/exam-proctor-api/pkg/errors"
	"github.com/noah-isme/exam-proctor-api/pkg/jobs"
)

// SolveJobType tags solve jobs on the queue.
const SolveJobType = "solve"

type solveJobStore interface {
	Create(ctx context.Context, job *models.SolveJob) error
	GetByID(ctx context.Context, id string) (*models.SolveJob, error)
	Update(ctx context.Context, id string, params repository.UpdateSolveJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.SolveJob, error)
	CountActive(ctx context.Context, sessionID string) (int, error)
}

type assignmentStore interface {
	Publish(ctx context.Context, sessionID, jobID string, duties []models.Assignment, records []models.SatisfactionRecord) error
	ListBySession(ctx context.Context, sessionID string) ([]models.Assignment, error)
	ListSatisfaction(ctx context.Context, sessionID string) ([]models.SatisfactionRecord, error)
}

type snapshotLoader interface {
	Snapshot(ctx context.Context, sessionID string) (*RosterSnapshot, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// outcomeErrors names the error code reported for unsuccessful terminal jobs.
var outcomeErrors = map[models.SolveStatus]*appErrors.Error{
	models.SolveStatusInfeasible: appErrors.ErrInfeasible,
	models.SolveStatusTimeout:    appErrors.ErrSolveTimeout,
	models.SolveStatusFailed:     appErrors.ErrInternal,
}

var phaseProgress = map[string]int{
	"feasibility": 20,
	"diagnosis":   60,
	"relaxation":  40,
	"improvement": 70,
}

// PlanningService owns the solve lifecycle: request, run, publish and read back.
type PlanningService struct {
	sessions    sessionFinder
	rosters     snapshotLoader
	jobs        solveJobStore
	assignments assignmentStore
	queue       jobDispatcher
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	planner     config.PlannerConfig
}

// PlanningDeps groups the collaborators of PlanningService.
type PlanningDeps struct {
	Sessions    sessionFinder
	Rosters     snapshotLoader
	Jobs        solveJobStore
	Assignments assignmentStore
	Queue       jobDispatcher
	Cache       *CacheService
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// NewPlanningService constructs the planning service.
func NewPlanningService(deps PlanningDeps, planner config.PlannerConfig) *PlanningService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &PlanningService{
		sessions:    deps.Sessions,
		rosters:     deps.Rosters,
		jobs:        deps.Jobs,
		assignments: deps.Assignments,
		queue:       deps.Queue,
		cache:       deps.Cache,
		metrics:     deps.Metrics,
		validator:   deps.Validator,
		logger:      deps.Logger,
		planner:     planner,
	}
}

// SetQueue attaches the dispatcher once the queue exists; the queue's handler needs the
// service first.
func (s *PlanningService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// RequestSolve validates the overrides, persists a queued job and enqueues it. Only one
// solve per session may be queued or running.
func (s *PlanningService) RequestSolve(ctx context.Context, sessionID string, req dto.SolveRequest, actorID string) (*dto.SolveJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid solve request")
	}
	params := models.SolveJobParams{
		PreferenceMode:   req.PreferenceMode,
		GradeQuotaMode:   req.GradeQuotaMode,
		MaxSolveSeconds:  req.MaxSolveSeconds,
		NumWorkers:       req.NumWorkers,
		Seed:             req.Seed,
		AutoRelax:        req.AutoRelax,
		GradeFlexibility: req.GradeFlexibility,
		QuotaPerGrade:    req.QuotaPerGrade,
	}
	if _, err := WithOverrides(EngineConfig(s.planner), params); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.Status == models.SessionStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "import a roster before solving")
	}
	active, err := s.jobs.CountActive(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check running solves")
	}
	if active > 0 {
		return nil, appErrors.ErrSolveInProgress
	}

	job := &models.SolveJob{
		SessionID: sessionID,
		Params:    params,
		Status:    models.SolveStatusQueued,
		CreatedBy: actorID,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create solve job")
	}
	if err := s.enqueue(job); err != nil {
		status := models.SolveStatusFailed
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		progress := 100
		_ = s.jobs.Update(ctx, job.ID, repository.UpdateSolveJobParams{
			Status:       &status,
			Progress:     &progress,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue solve job")
	}
	s.logger.Info("solve requested", zap.String("session_id", sessionID), zap.String("job_id", job.ID), zap.String("actor_id", actorID))
	return &dto.SolveJobResponse{ID: job.ID, SessionID: sessionID, Status: job.Status, Progress: job.Progress}, nil
}

func (s *PlanningService) enqueue(job *models.SolveJob) error {
	if s.queue == nil {
		return errors.New("solve queue not configured")
	}
	return s.queue.Enqueue(jobs.Job{ID: job.ID, Type: SolveJobType, Payload: job.SessionID})
}

// RunJob solves the job's session and, when an assignment is found, publishes it with the
// satisfaction records. Infeasible and timed-out outcomes come back as a result, not an error.
func (s *PlanningService) RunJob(ctx context.Context, job *models.SolveJob) (*scheduler.Result, error) {
	snap, err := s.rosters.Snapshot(ctx, job.SessionID)
	if err != nil {
		return nil, err
	}
	cfg, err := WithOverrides(EngineConfig(s.planner), job.Params)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	in := snap.Input
	in.Teachers = withQuotaOverrides(in.Teachers, job.Params.QuotaPerGrade)

	logger := s.logger.With(zap.String("job_id", job.ID), zap.String("session_id", job.SessionID))
	opts := []scheduler.Option{
		scheduler.WithLogger(logger),
		scheduler.WithPhaseHook(func(phase string) {
			progress, ok := phaseProgress[phase]
			if !ok {
				return
			}
			if err := s.jobs.Update(ctx, job.ID, repository.UpdateSolveJobParams{Progress: &progress}); err != nil {
				logger.Warn("failed to record solve progress", zap.String("phase", phase), zap.Error(err))
			}
		}),
	}
	if job.Params.Seed != nil {
		opts = append(opts, scheduler.WithSeed(*job.Params.Seed))
	}

	done := s.metrics.SolveStarted()
	started := time.Now()
	result, err := scheduler.Solve(ctx, in, cfg, opts...)
	s.metrics.ObserveSolve(result, time.Since(started))
	done()
	if err != nil {
		var integrity *scheduler.AssignmentIntegrityError
		if errors.As(err, &integrity) {
			logger.Error("solver produced an invalid assignment", zap.Strings("violations", integrity.Violations))
			return nil, appErrors.Wrap(err, appErrors.ErrAssignmentIntegrity.Code, appErrors.ErrAssignmentIntegrity.Status, appErrors.ErrAssignmentIntegrity.Message)
		}
		return nil, err
	}
	if !result.Feasible() {
		return result, nil
	}

	report, err := s.publish(ctx, job.SessionID, job.ID, result.Assignment, in)
	if err != nil {
		return nil, err
	}
	logger.Info("assignment published",
		zap.String("status", string(result.Status)),
		zap.Int("duties", len(result.Assignment.Pairs())),
		zap.Float64("average_satisfaction", report.Summary.Average),
	)
	return result, nil
}

// publish scores the assignment, replaces the session's stored duties and records with it
// and drops the session's cached views.
func (s *PlanningService) publish(ctx context.Context, sessionID, jobID string, a exam.Assignment, in scheduler.Input) (satisfaction.Report, error) {
	pairs := a.Pairs()
	duties := make([]models.Assignment, len(pairs))
	for i, p := range pairs {
		duties[i] = models.Assignment{SessionID: sessionID, JobID: jobID, TeacherID: p.TeacherID, SlotID: p.SlotID}
	}
	report := satisfaction.Score(a, in.Teachers, in.Slots, in.Preferences, satisfaction.Rubric{})
	records := make([]models.SatisfactionRecord, len(report.Records))
	for i, rec := range report.Records {
		records[i] = models.SatisfactionRecord{
			SessionID: sessionID,
			JobID:     jobID,
			TeacherID: rec.TeacherID,
			Score:     rec.Score,
			Detail:    models.SatisfactionDetail{Record: rec},
		}
	}
	if err := s.assignments.Publish(ctx, sessionID, jobID, duties, records); err != nil {
		return report, err
	}
	s.cache.InvalidateSession(ctx, sessionID)
	return report, nil
}

// JobStatus exposes a job's progress and diagnostics.
func (s *PlanningService) JobStatus(ctx context.Context, id string) (*dto.SolveJobStatusResponse, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "solve job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load solve job")
	}
	resp := &dto.SolveJobStatusResponse{
		ID:          job.ID,
		SessionID:   job.SessionID,
		Status:      job.Status,
		Progress:    job.Progress,
		Outcome:     job.Outcome,
		Objective:   job.Objective,
		Seed:        job.Seed,
		Diagnostics: job.Diagnostics,
		CreatedAt:   job.CreatedAt,
		FinishedAt:  job.FinishedAt,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	if sentinel, ok := outcomeErrors[job.Status]; ok {
		resp.ErrorCode = sentinel.Code
	}
	return resp, nil
}

// Assignments returns the session's published assignment grouped by teacher, teachers and
// their duties in roster order.
func (s *PlanningService) Assignments(ctx context.Context, sessionID string) (*dto.AssignmentsResponse, error) {
	snap, err := s.rosters.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.assignments.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}
	if len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session has no published assignment")
	}
	return buildAssignments(sessionID, rows, snap.Input), nil
}

func buildAssignments(sessionID string, rows []models.Assignment, in scheduler.Input) *dto.AssignmentsResponse {
	pairs := make([]exam.Pair, len(rows))
	for i, row := range rows {
		pairs[i] = exam.Pair{TeacherID: row.TeacherID, SlotID: row.SlotID}
	}
	assignment := exam.FromPairs(pairs)

	slotIndex := make(map[string]int, len(in.Slots))
	for i, slot := range in.Slots {
		slotIndex[slot.ID] = i
	}

	resp := &dto.AssignmentsResponse{
		SessionID:   sessionID,
		JobID:       rows[0].JobID,
		Teachers:    make([]dto.TeacherDuties, 0, len(in.Teachers)),
		Responsible: exam.ResponsibleBySlot(in.Slots),
	}
	for _, t := range in.Teachers {
		held := assignment[t.ID]
		if len(held) == 0 && !t.Participates {
			continue
		}
		duties := dto.TeacherDuties{
			TeacherID: t.ID,
			Name:      t.FullName(),
			Grade:     t.Grade,
			Quota:     t.Quota,
			Assigned:  len(held),
			Slots:     make([]dto.DutySlot, 0, len(held)),
		}
		for _, id := range held {
			idx, ok := slotIndex[id]
			if !ok {
				continue
			}
			slot := in.Slots[idx]
			duties.Slots = append(duties.Slots, dto.DutySlot{
				SlotID:    slot.ID,
				Date:      slot.Date,
				Day:       slot.Day,
				StartTime: slot.StartTime,
				EndTime:   slot.EndTime,
				Session:   slot.Session,
				Rooms:     slot.Rooms,
			})
		}
		sort.SliceStable(duties.Slots, func(i, j int) bool {
			return slotIndex[duties.Slots[i].SlotID] < slotIndex[duties.Slots[j].SlotID]
		})
		resp.Teachers = append(resp.Teachers, duties)
	}
	return resp
}

// RecoverPendingJobs replays queued jobs after a restart.
func (s *PlanningService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.jobs.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued solve jobs", "error", err)
		return
	}
	for i := range pending {
		if err := s.enqueue(&pending[i]); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending solve", "job_id", pending[i].ID, "error", err)
		}
	}
}

func diagnosticsOf(result *scheduler.Result) models.SolveDiagnostics {
	diag := models.SolveDiagnostics{
		Message:           result.Message,
		ElapsedMs:         result.Elapsed.Milliseconds(),
		Nodes:             result.Nodes,
		Relaxations:       result.Relaxations,
		Attempted:         result.Attempted,
		SuspectedFamilies: result.SuspectedFamilies,
		GradeCounts:       result.GradeCounts,
	}
	if result.Feasible() {
		breakdown := result.Breakdown
		diag.Breakdown = &breakdown
		diag.LowerBound = result.LowerBound
		diag.Assigned = len(result.Assignment.Pairs())
	}
	return diag
}
