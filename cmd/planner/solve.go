package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/exam-proctor-api/internal/exam"
	"github.com/noah-isme/exam-proctor-api/internal/models"
	"github.com/noah-isme/exam-proctor-api/internal/roster"
	"github.com/noah-isme/exam-proctor-api/internal/satisfaction"
	"github.com/noah-isme/exam-proctor-api/internal/scheduler"
	"github.com/noah-isme/exam-proctor-api/internal/service"
)

// dutyRow is one line of the duty CSV written by solve and read back by score.
type dutyRow struct {
	TeacherID string `csv:"teacher_id"`
	Name      string `csv:"name"`
	Grade     string `csv:"grade"`
	SlotID    string `csv:"slot_id"`
	Date      string `csv:"date"`
	Day       int    `csv:"day"`
	Session   string `csv:"session"`
	Start     string `csv:"start"`
	End       string `csv:"end"`
}

type solveFlags struct {
	preferenceMode string
	gradeQuotaMode string
	maxTime        time.Duration
	workers        int
	autoRelax      bool
	seed           int64
	out            string
	format         string
}

func newSolveCmd(a *app) *cobra.Command {
	f := &solveFlags{}
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "compute a supervision timetable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runSolve(ctx, a, f, cmd)
		},
	}
	cmd.Flags().StringVar(&f.preferenceMode, "preference-mode", "", "hard or soft (default from config)")
	cmd.Flags().StringVar(&f.gradeQuotaMode, "grade-quota-mode", "", "minimum or strict-equality")
	cmd.Flags().DurationVarP(&f.maxTime, "time", "t", 0, "solve time budget")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "concurrent search workers")
	cmd.Flags().BoolVar(&f.autoRelax, "auto-relax", true, "relax the model when it is infeasible")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "random seed to reproduce a run; a fresh one is drawn when omitted")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&f.format, "format", "csv", "csv or json")
	return cmd
}

func runSolve(ctx context.Context, a *app, f *solveFlags, cmd *cobra.Command) error {
	if f.format != "csv" && f.format != "json" {
		return fmt.Errorf("unknown format %q", f.format)
	}
	normalized, err := a.loadRoster()
	if err != nil {
		return err
	}

	autoRelax := f.autoRelax
	cfg, err := service.WithOverrides(service.EngineConfig(a.cfg.Planner), models.SolveJobParams{
		PreferenceMode:  f.preferenceMode,
		GradeQuotaMode:  f.gradeQuotaMode,
		MaxSolveSeconds: int(f.maxTime / time.Second),
		NumWorkers:      f.workers,
		AutoRelax:       &autoRelax,
	})
	if err != nil {
		return err
	}

	opts := []scheduler.Option{
		scheduler.WithLogger(a.logger),
		scheduler.WithPhaseHook(func(phase string) { a.logger.Info("solve phase", zap.String("phase", phase)) }),
	}
	if cmd.Flags().Changed("seed") {
		opts = append(opts, scheduler.WithSeed(f.seed))
	}
	in := scheduler.Input{Teachers: normalized.Teachers, Slots: normalized.Slots, Preferences: normalized.Preferences}
	result, err := scheduler.Solve(ctx, in, cfg, opts...)
	if err != nil {
		return err
	}
	if !result.Feasible() {
		_ = writeJSON(cmd.ErrOrStderr(), result)
		return result.Err()
	}
	a.logger.Info("solve finished",
		zap.String("status", string(result.Status)),
		zap.Int64("objective", result.Objective),
		zap.Duration("elapsed", result.Elapsed),
		zap.Int64("seed", result.Seed),
	)

	w := cmd.OutOrStdout()
	if f.out != "" {
		file, err := os.Create(f.out)
		if err != nil {
			return err
		}
		defer file.Close()
		w = file
	}
	if f.format == "json" {
		report := satisfaction.Score(result.Assignment, normalized.Teachers, normalized.Slots, normalized.Preferences, satisfaction.DefaultRubric())
		return writeJSON(w, struct {
			Result       *scheduler.Result   `json:"result"`
			Satisfaction satisfaction.Report `json:"satisfaction"`
		}{result, report})
	}
	return writeDuties(w, result.Assignment, normalized)
}

func writeDuties(w io.Writer, assignment exam.Assignment, normalized *roster.Roster) error {
	teachers := make(map[string]exam.Teacher, len(normalized.Teachers))
	for _, t := range normalized.Teachers {
		teachers[t.ID] = t
	}
	slots := make(map[string]exam.Slot, len(normalized.Slots))
	for _, s := range normalized.Slots {
		slots[s.ID] = s
	}

	pairs := assignment.Pairs()
	rows := make([]*dutyRow, 0, len(pairs))
	for _, p := range pairs {
		t, s := teachers[p.TeacherID], slots[p.SlotID]
		rows = append(rows, &dutyRow{
			TeacherID: p.TeacherID,
			Name:      t.FullName(),
			Grade:     t.Grade,
			SlotID:    p.SlotID,
			Date:      s.Date,
			Day:       s.Day,
			Session:   s.Session,
			Start:     s.StartTime,
			End:       s.EndTime,
		})
	}
	return gocsv.Marshal(&rows, w)
}

func readDuties(path string) (exam.Assignment, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var rows []*exam.Pair
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("read duties: %w", err)
	}
	pairs := make([]exam.Pair, len(rows))
	for i, r := range rows {
		pairs[i] = *r
	}
	return exam.FromPairs(pairs), nil
}
