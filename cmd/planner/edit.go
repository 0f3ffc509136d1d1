package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/exam-proctor-api/internal/exam"
	"github.com/noah-isme/exam-proctor-api/internal/scheduler"
	"github.com/noah-isme/exam-proctor-api/internal/service"
)

type editFlags struct {
	duties       string
	op           string
	teacher      string
	slot         string
	otherTeacher string
	otherSlot    string
	relaxed      []string
	out          string
}

func newEditCmd(a *app) *cobra.Command {
	f := &editFlags{}
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "swap or reassign duties in a timetable and check the result",
		Long: "Applies one swap or reassignment to a duty CSV, checks the edited timetable against the hard " +
			"constraints and writes it out. Violations are printed and nothing is written.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(a, f, cmd)
		},
	}
	cmd.Flags().StringVar(&f.duties, "duties", "", "duty CSV with teacher_id and slot_id columns")
	cmd.Flags().StringVar(&f.op, "op", "", "swap or reassign")
	cmd.Flags().StringVar(&f.teacher, "teacher", "", "teacher giving up --slot")
	cmd.Flags().StringVar(&f.slot, "slot", "", "slot held by --teacher")
	cmd.Flags().StringVar(&f.otherTeacher, "other-teacher", "", "teacher taking --slot")
	cmd.Flags().StringVar(&f.otherSlot, "other-slot", "", "slot held by --other-teacher (swap only)")
	cmd.Flags().StringSliceVar(&f.relaxed, "relaxed", nil, "relaxations the timetable was solved under, e.g. quota_floor_lowered")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func runEdit(a *app, f *editFlags, cmd *cobra.Command) error {
	if f.duties == "" || f.teacher == "" || f.slot == "" || f.otherTeacher == "" {
		return fmt.Errorf("--duties, --teacher, --slot and --other-teacher are required")
	}
	normalized, err := a.loadRoster()
	if err != nil {
		return err
	}
	plan, err := readDuties(f.duties)
	if err != nil {
		return err
	}

	switch f.op {
	case "swap":
		if f.otherSlot == "" {
			return fmt.Errorf("--other-slot is required for a swap")
		}
		err = plan.Swap(exam.Pair{TeacherID: f.teacher, SlotID: f.slot}, exam.Pair{TeacherID: f.otherTeacher, SlotID: f.otherSlot})
	case "reassign":
		err = plan.Reassign(f.slot, f.teacher, f.otherTeacher)
	default:
		return fmt.Errorf("unknown op %q", f.op)
	}
	if err != nil {
		return err
	}

	steps := make([]scheduler.RelaxationStep, len(f.relaxed))
	for i, kind := range f.relaxed {
		steps[i] = scheduler.RelaxationStep{Kind: scheduler.RelaxationKind(kind)}
	}
	in := scheduler.Input{Teachers: normalized.Teachers, Slots: normalized.Slots, Preferences: normalized.Preferences}
	if err := scheduler.CheckAssignment(in, service.EngineConfig(a.cfg.Planner), steps, plan); err != nil {
		var integrity *scheduler.AssignmentIntegrityError
		if errors.As(err, &integrity) {
			for _, v := range integrity.Violations {
				fmt.Fprintln(cmd.ErrOrStderr(), v)
			}
			return fmt.Errorf("edit rejected: %d violation(s)", len(integrity.Violations))
		}
		return err
	}
	a.logger.Info("edit applied", zap.String("op", f.op), zap.String("slot", f.slot), zap.String("teacher", f.teacher))

	w := cmd.OutOrStdout()
	if f.out != "" {
		file, err := os.Create(f.out)
		if err != nil {
			return err
		}
		defer file.Close()
		w = file
	}
	return writeDuties(w, plan, normalized)
}
