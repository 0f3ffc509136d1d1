package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/exam-proctor-api/internal/exam"
	"github.com/noah-isme/exam-proctor-api/internal/quota"
	"github.com/noah-isme/exam-proctor-api/internal/satisfaction"
	"github.com/noah-isme/exam-proctor-api/internal/service"
)

func newScoreCmd(a *app) *cobra.Command {
	var duties string
	cmd := &cobra.Command{
		Use:   "score",
		Short: "score the satisfaction of an existing timetable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if duties == "" {
				return fmt.Errorf("--duties is required")
			}
			normalized, err := a.loadRoster()
			if err != nil {
				return err
			}
			assignment, err := readDuties(duties)
			if err != nil {
				return err
			}
			report := satisfaction.Score(assignment, normalized.Teachers, normalized.Slots, normalized.Preferences, satisfaction.DefaultRubric())
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&duties, "duties", "", "duty CSV with teacher_id and slot_id columns")
	return cmd
}

func newRecommendCmd(a *app) *cobra.Command {
	var rate float64
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "propose per-grade quotas for the roster's demand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rate < 0 || rate > 3 {
				return fmt.Errorf("rate must be between 0 and 3")
			}
			if rate == 0 {
				rate = a.cfg.Planner.OverprovisioningRate
			}
			normalized, err := a.loadRoster()
			if err != nil {
				return err
			}
			current, err := a.gradeQuotas()
			if err != nil {
				return err
			}
			rec := quota.Recommend(quota.Request{
				Demand:      exam.Demand(normalized.Slots),
				GradeCounts: quota.GradeCounts(normalized.Teachers),
				Rate:        rate,
				Current:     current,
			})
			return writeJSON(cmd.OutOrStdout(), rec)
		},
	}
	cmd.Flags().Float64Var(&rate, "rate", 0, "overprovisioning rate (default from config)")
	return cmd
}

func newAnalyzeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "run the pre-solve feasibility analysis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			normalized, err := a.loadRoster()
			if err != nil {
				return err
			}
			quotas, err := a.gradeQuotas()
			if err != nil {
				return err
			}
			report := quota.Analyze(normalized.Teachers, normalized.Slots, normalized.Preferences, quotas)
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "print the bcrypt hash of a password for seeding operator accounts",
		Args:  cobra.MaximumNArgs(1),
		// Hashing needs no config or roster.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			password := ""
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return fmt.Errorf("password must not be empty")
			}
			hash, err := service.HashPassword(password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}
