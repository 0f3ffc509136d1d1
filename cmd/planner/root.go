package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/exam-proctor-api/internal/exam"
	"github.com/noah-isme/exam-proctor-api/internal/roster"
	"github.com/noah-isme/exam-proctor-api/internal/service"
	"github.com/noah-isme/exam-proctor-api/pkg/config"
	"github.com/noah-isme/exam-proctor-api/pkg/logger"
)

// app carries what every subcommand shares once the persistent flags are parsed.
type app struct {
	teachers string
	slots    string
	wishes   string
	quotas   string
	logLevel string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "planner",
		Short:         "Offline invigilation planner",
		Long:          "Builds and inspects exam supervision timetables from roster files without the API.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.teachers, "teachers", "", "teachers table (.csv or .xlsx)")
	flags.StringVar(&a.slots, "slots", "", "exam slots table (.csv or .xlsx)")
	flags.StringVar(&a.wishes, "wishes", "", "optional unavailability wishes table")
	flags.StringVar(&a.quotas, "quotas", "", "grade quota table overriding the configured one, e.g. PR=4,MA=7")
	flags.StringVar(&a.logLevel, "log-level", "warn", "log level written to stderr")

	root.AddCommand(
		newSolveCmd(a),
		newScoreCmd(a),
		newEditCmd(a),
		newRecommendCmd(a),
		newAnalyzeCmd(a),
		newHashPasswordCmd(),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.NewCLI(a.logLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.cfg, a.logger = cfg, logr
	return nil
}

func (a *app) gradeQuotas() (exam.GradeQuotas, error) {
	if a.quotas == "" {
		return service.GradeQuotas(a.cfg.Planner), nil
	}
	return service.ParseQuotaQuery(a.quotas)
}

// loadRoster reads and normalises the roster files named by the persistent flags.
func (a *app) loadRoster() (*roster.Roster, error) {
	if a.teachers == "" || a.slots == "" {
		return nil, fmt.Errorf("--teachers and --slots are required")
	}
	quotas, err := a.gradeQuotas()
	if err != nil {
		return nil, err
	}

	var raw roster.RawRoster
	if raw.Teachers, err = readTableFile(a.teachers); err != nil {
		return nil, err
	}
	if raw.Slots, err = readTableFile(a.slots); err != nil {
		return nil, err
	}
	if a.wishes != "" {
		if raw.Preferences, err = readTableFile(a.wishes); err != nil {
			return nil, err
		}
	}

	normalized, err := roster.Normalize(raw, roster.Options{
		QuotaPerGrade:      quotas,
		SupervisorsPerRoom: a.cfg.Planner.SupervisorsPerRoom,
		Logger:             a.logger,
	})
	if err != nil {
		return nil, err
	}
	for _, d := range normalized.Dropped {
		a.logger.Warn("preference dropped", zap.Int("row", d.Row), zap.String("reference", d.Reference), zap.String("reason", d.Reason))
	}
	return normalized, nil
}

func readTableFile(path string) (roster.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return roster.Table{}, err
	}
	defer f.Close()
	return roster.ReadTable(path, f)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
