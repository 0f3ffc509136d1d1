package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/exam-proctor-api/internal/dto"
	"github.com/noah-isme/exam-proctor-api/internal/exam"
	"github.com/noah-isme/exam-proctor-api/internal/models"
	"github.com/noah-isme/exam-proctor-api/internal/scheduler"
	appErrors "github.com/noah-isme/exam-proctor-api/pkg/errors"
)

// EditAssignments applies one manual edit to the published assignment.
func (s *PlanningService) EditAssignments(ctx context.Context, sessionID string, req dto.AssignmentEditRequest, actorID string) (*dto.AssignmentsResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrapf(err, appErrors.ErrValidation, "invalid assignment edit")
	}
	switch req.Op {
	case "swap":
		return s.SwapDuties(ctx, sessionID,
			exam.Pair{TeacherID: req.TeacherID, SlotID: req.SlotID},
			exam.Pair{TeacherID: req.OtherTeacherID, SlotID: req.OtherSlotID},
			actorID)
	default:
		return s.ReassignDuty(ctx, sessionID, req.SlotID, req.TeacherID, req.OtherTeacherID, actorID)
	}
}

// SwapDuties exchanges two published duties between their teachers.
func (s *PlanningService) SwapDuties(ctx context.Context, sessionID string, a, b exam.Pair, actorID string) (*dto.AssignmentsResponse, error) {
	return s.edit(ctx, sessionID, actorID, func(plan exam.Assignment) error {
		return plan.Swap(a, b)
	}, zap.String("op", "swap"),
		zap.String("teacher_id", a.TeacherID), zap.String("slot_id", a.SlotID),
		zap.String("other_teacher_id", b.TeacherID), zap.String("other_slot_id", b.SlotID))
}

// ReassignDuty hands one published duty to another teacher.
func (s *PlanningService) ReassignDuty(ctx context.Context, sessionID, slotID, fromID, toID, actorID string) (*dto.AssignmentsResponse, error) {
	return s.edit(ctx, sessionID, actorID, func(plan exam.Assignment) error {
		return plan.Reassign(slotID, fromID, toID)
	}, zap.String("op", "reassign"),
		zap.String("slot_id", slotID), zap.String("teacher_id", fromID), zap.String("other_teacher_id", toID))
}

// edit loads the published assignment, applies change and republishes it when every hard
// constraint the originating solve enforced still holds. Relaxations the solve applied stay
// in force.
func (s *PlanningService) edit(ctx context.Context, sessionID, actorID string, change func(exam.Assignment) error, fields ...zap.Field) (*dto.AssignmentsResponse, error) {
	active, err := s.jobs.CountActive(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrapf(err, appErrors.ErrInternal, "failed to check running solves")
	}
	if active > 0 {
		return nil, appErrors.ErrSolveInProgress
	}

	snap, err := s.rosters.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.assignments.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrapf(err, appErrors.ErrInternal, "failed to load assignments")
	}
	if len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session has no published assignment")
	}
	jobID := rows[0].JobID

	cfg := EngineConfig(s.planner)
	in := snap.Input
	var relaxations []scheduler.RelaxationStep
	job, err := s.jobs.GetByID(ctx, jobID)
	switch {
	case err == nil:
		if cfg, err = WithOverrides(cfg, job.Params); err != nil {
			return nil, appErrors.Wrapf(err, appErrors.ErrInternal, "stored solve parameters are invalid")
		}
		in.Teachers = withQuotaOverrides(in.Teachers, job.Params.QuotaPerGrade)
		relaxations = job.Diagnostics.Relaxations
	case errors.Is(err, sql.ErrNoRows):
		s.logger.Warn("published assignment has no solve job, checking against defaults", zap.String("job_id", jobID))
	default:
		return nil, appErrors.Wrapf(err, appErrors.ErrInternal, "failed to load solve job")
	}

	pairs := make([]exam.Pair, len(rows))
	for i, row := range rows {
		pairs[i] = exam.Pair{TeacherID: row.TeacherID, SlotID: row.SlotID}
	}
	plan := exam.FromPairs(pairs)
	if err := change(plan); err != nil {
		return nil, appErrors.Wrapf(err, appErrors.ErrValidation, "%s", err.Error())
	}

	if err := scheduler.CheckAssignment(in, cfg, relaxations, plan); err != nil {
		var integrity *scheduler.AssignmentIntegrityError
		if errors.As(err, &integrity) {
			return nil, appErrors.ErrAssignmentConflict.WithDetail("violations", integrity.Violations)
		}
		return nil, appErrors.Wrapf(err, appErrors.ErrInternal, "failed to check edited assignment")
	}

	report, err := s.publish(ctx, sessionID, jobID, plan, in)
	if err != nil {
		return nil, appErrors.Wrapf(err, appErrors.ErrInternal, "failed to publish edited assignment")
	}
	s.logger.Info("assignment edited", append(fields,
		zap.String("session_id", sessionID),
		zap.String("actor_id", actorID),
		zap.Float64("average_satisfaction", report.Summary.Average),
	)...)

	published := plan.Pairs()
	out := make([]models.Assignment, len(published))
	for i, p := range published {
		out[i] = models.Assignment{SessionID: sessionID, JobID: jobID, TeacherID: p.TeacherID, SlotID: p.SlotID}
	}
	return buildAssignments(sessionID, out, snap.Input), nil
}
