package service

import (
	"strings"
	"time"

	"github.com/noah-isme/exam-proctor-api/internal/exam"
	"github.com/noah-isme/exam-proctor-api/internal/models"
	"github.com/noah-isme/exam-proctor-api/internal/scheduler"
	"github.com/noah-isme/exam-proctor-api/pkg/config"
)

// EngineConfig maps the planner section of the server configuration onto the engine's
// immutable configuration.
func EngineConfig(cfg config.PlannerConfig) scheduler.Config {
	out := scheduler.DefaultConfig()
	if mode, err := scheduler.ParsePreferenceMode(cfg.PreferenceMode); err == nil {
		out.PreferenceMode = mode
	}
	if mode, err := scheduler.ParseGradeQuotaMode(cfg.GradeQuotaMode); err == nil {
		out.GradeQuotaMode = mode
	}
	if cfg.MaxSessionsPerDay > 0 {
		out.MaxSessionsPerDay = cfg.MaxSessionsPerDay
	}
	if cfg.MaxSolveTime > 0 {
		out.MaxSolveTime = cfg.MaxSolveTime
	}
	if cfg.NumWorkers > 0 {
		out.NumWorkers = cfg.NumWorkers
	}
	if cfg.IterationsPerWorker > 0 {
		out.IterationsPerWorker = cfg.IterationsPerWorker
	}
	if cfg.ExactCellLimit != 0 {
		out.ExactCellLimit = cfg.ExactCellLimit
	}
	if cfg.ExactCheckBudget > 0 {
		out.ExactCheckBudget = cfg.ExactCheckBudget
	}
	out.AutoRelaxIfInfeasible = cfg.AutoRelax
	out.GradeFlexibility = cfg.GradeFlexibility
	if cfg.MaxGradeFlexibility > 0 {
		out.MaxGradeFlexibility = cfg.MaxGradeFlexibility
	}
	if w := weightsFromConfig(cfg.Weights); w != (scheduler.Weights{}) {
		out.Weights = w
	}
	return out
}

func weightsFromConfig(w config.WeightsConfig) scheduler.Weights {
	return scheduler.Weights{
		QuotaExcess:         w.QuotaExcess,
		QuotaDeviation:      w.QuotaDeviation,
		PreferenceViolation: w.PreferenceViolation,
		FullDayViolation:    w.FullDayViolation,
		ActiveDay:           w.ActiveDay,
		GapDay:              w.GapDay,
		BothHalvesBonus:     w.BothHalvesBonus,
		ConsecutiveBonus:    w.ConsecutiveBonus,
		IsolatedDay:         w.IsolatedDay,
		TieBreakMin:         w.TieBreakMin,
		TieBreakMax:         w.TieBreakMax,
	}
}

// WithOverrides returns base with the per-job overrides applied. Unknown modes are rejected.
func WithOverrides(base scheduler.Config, p models.SolveJobParams) (scheduler.Config, error) {
	if p.PreferenceMode != "" {
		mode, err := scheduler.ParsePreferenceMode(p.PreferenceMode)
		if err != nil {
			return base, err
		}
		base.PreferenceMode = mode
	}
	if p.GradeQuotaMode != "" {
		mode, err := scheduler.ParseGradeQuotaMode(p.GradeQuotaMode)
		if err != nil {
			return base, err
		}
		base.GradeQuotaMode = mode
	}
	if p.MaxSolveSeconds > 0 {
		base.MaxSolveTime = time.Duration(p.MaxSolveSeconds) * time.Second
	}
	if p.NumWorkers > 0 {
		base.NumWorkers = p.NumWorkers
	}
	if p.AutoRelax != nil {
		base.AutoRelaxIfInfeasible = *p.AutoRelax
	}
	if p.GradeFlexibility > 0 {
		base.GradeFlexibility = p.GradeFlexibility
		base.MaxGradeFlexibility = max(base.MaxGradeFlexibility, p.GradeFlexibility)
	}
	return base, base.Validate()
}

// GradeQuotas returns the configured per-grade quota table, or the built-in table when
// none is configured.
func GradeQuotas(cfg config.PlannerConfig) exam.GradeQuotas {
	if len(cfg.QuotaPerGrade) == 0 {
		return exam.DefaultGradeQuotas()
	}
	return exam.GradeQuotas(cfg.QuotaPerGrade).Clone()
}

// withQuotaOverrides re-derives teacher quotas for the grades named in overrides.
func withQuotaOverrides(teachers []exam.Teacher, overrides map[string]int) []exam.Teacher {
	if len(overrides) == 0 {
		return teachers
	}
	table := make(map[string]int, len(overrides))
	for grade, quota := range overrides {
		table[strings.ToUpper(strings.TrimSpace(grade))] = quota
	}
	out := make([]exam.Teacher, len(teachers))
	for i, t := range teachers {
		if quota, ok := table[strings.ToUpper(t.Grade)]; ok {
			t.Quota = quota
		}
		out[i] = t
	}
	return out
}
