package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// PreferenceMode selects how declared preferences constrain the model.
type PreferenceMode string

// GradeQuotaMode selects how grade quotas constrain per-teacher counts.
type GradeQuotaMode string

const (
	// PreferenceHard forbids assigning a teacher to a slot matching one of their preferences.
	PreferenceHard PreferenceMode = "hard"
	// PreferenceSoft allows it at the cost of the preference violation weight.
	PreferenceSoft PreferenceMode = "soft"

	// QuotaMinimum treats quotas as per-teacher floors.
	QuotaMinimum GradeQuotaMode = "minimum"
	// QuotaStrictEquality gives every teacher of a grade the same count.
	QuotaStrictEquality GradeQuotaMode = "strict-equality"
)

// ParsePreferenceMode validates a textual preference mode.
func ParsePreferenceMode(raw string) (PreferenceMode, error) {
	switch PreferenceMode(strings.ToLower(strings.TrimSpace(raw))) {
	case PreferenceHard, "":
		return PreferenceHard, nil
	case PreferenceSoft:
		return PreferenceSoft, nil
	}
	return "", fmt.Errorf("unknown preference mode %q", raw)
}

// ParseGradeQuotaMode validates a textual grade quota mode.
func ParseGradeQuotaMode(raw string) (GradeQuotaMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(QuotaMinimum), "":
		return QuotaMinimum, nil
	case string(QuotaStrictEquality), "equality", "strict":
		return QuotaStrictEquality, nil
	}
	return "", fmt.Errorf("unknown grade quota mode %q", raw)
}

// Weights holds the objective coefficients. Bonuses are negative.
type Weights struct {
	QuotaExcess         int64 `json:"quotaExcess"`
	QuotaDeviation      int64 `json:"quotaDeviation"`
	PreferenceViolation int64 `json:"preferenceViolation"`
	FullDayViolation    int64 `json:"fullDayViolation"`
	ActiveDay           int64 `json:"activeDay"`
	GapDay              int64 `json:"gapDay"`
	BothHalvesBonus     int64 `json:"bothHalvesBonus"`
	ConsecutiveBonus    int64 `json:"consecutiveBonus"`
	IsolatedDay         int64 `json:"isolatedDay"`
	TieBreakMin         int64 `json:"tieBreakMin"`
	TieBreakMax         int64 `json:"tieBreakMax"`
}

// DefaultWeights returns the standard objective weights.
func DefaultWeights() Weights {
	return Weights{
		QuotaExcess:         100,
		QuotaDeviation:      1_000_000,
		PreferenceViolation: 10_000,
		FullDayViolation:    8_000,
		ActiveDay:           100,
		GapDay:              5_000,
		BothHalvesBonus:     -500,
		ConsecutiveBonus:    -300,
		IsolatedDay:         15_000,
		TieBreakMin:         1,
		TieBreakMax:         3,
	}
}

// Config is the immutable engine configuration. It is passed by value; the engine never
// mutates the caller's copy.
type Config struct {
	PreferenceMode        PreferenceMode `json:"preferenceMode"`
	GradeQuotaMode        GradeQuotaMode `json:"gradeQuotaMode"`
	MaxSessionsPerDay     int            `json:"maxSessionsPerDay"`
	MaxSolveTime          time.Duration  `json:"maxSolveTime"`
	NumWorkers            int            `json:"numWorkers"`
	Weights               Weights        `json:"weights"`
	AutoRelaxIfInfeasible bool           `json:"autoRelaxIfInfeasible"`
	GradeFlexibility      int            `json:"gradeFlexibility"`
	MaxGradeFlexibility   int            `json:"maxGradeFlexibility"`
	MaxGradeCandidates    int            `json:"maxGradeCandidates"`
	IterationsPerWorker   int            `json:"iterationsPerWorker"`
	// ExactCellLimit caps the allowed teacher × slot cells handed to the finite-domain
	// check; larger models rely on the flow alone. -1 disables the check.
	ExactCellLimit        int            `json:"exactCellLimit"`
	ExactCheckBudget      time.Duration  `json:"exactCheckBudget"`
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		PreferenceMode:        PreferenceHard,
		GradeQuotaMode:        QuotaMinimum,
		MaxSessionsPerDay:     4,
		MaxSolveTime:          300 * time.Second,
		NumWorkers:            8,
		Weights:               DefaultWeights(),
		AutoRelaxIfInfeasible: true,
		GradeFlexibility:      0,
		MaxGradeFlexibility:   2,
		MaxGradeCandidates:    32,
		IterationsPerWorker:   20_000,
		ExactCellLimit:        5_000,
		ExactCheckBudget:      10 * time.Second,
	}
}

// withDefaults fills zero values; it never overrides explicit settings.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if mode, err := ParsePreferenceMode(string(c.PreferenceMode)); err == nil {
		c.PreferenceMode = mode
	}
	if mode, err := ParseGradeQuotaMode(string(c.GradeQuotaMode)); err == nil {
		c.GradeQuotaMode = mode
	}
	if c.MaxSessionsPerDay == 0 {
		c.MaxSessionsPerDay = d.MaxSessionsPerDay
	}
	if c.MaxSolveTime == 0 {
		c.MaxSolveTime = d.MaxSolveTime
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = d.NumWorkers
	}
	if c.Weights == (Weights{}) {
		c.Weights = d.Weights
	}
	if c.Weights.TieBreakMax < c.Weights.TieBreakMin {
		c.Weights.TieBreakMax = c.Weights.TieBreakMin
	}
	if c.MaxGradeCandidates == 0 {
		c.MaxGradeCandidates = d.MaxGradeCandidates
	}
	if c.IterationsPerWorker == 0 {
		c.IterationsPerWorker = d.IterationsPerWorker
	}
	if c.ExactCellLimit == 0 {
		c.ExactCellLimit = d.ExactCellLimit
	}
	if c.ExactCheckBudget == 0 {
		c.ExactCheckBudget = d.ExactCheckBudget
	}
	if c.MaxGradeFlexibility < c.GradeFlexibility {
		c.MaxGradeFlexibility = c.GradeFlexibility
	}
	return c
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if _, err := ParsePreferenceMode(string(c.PreferenceMode)); err != nil {
		return err
	}
	if _, err := ParseGradeQuotaMode(string(c.GradeQuotaMode)); err != nil {
		return err
	}
	switch {
	case c.MaxSessionsPerDay < 1:
		return fmt.Errorf("max sessions per day must be positive, got %d", c.MaxSessionsPerDay)
	case c.MaxSolveTime < 0:
		return fmt.Errorf("max solve time must not be negative")
	case c.NumWorkers < 1:
		return fmt.Errorf("num workers must be positive, got %d", c.NumWorkers)
	case c.GradeFlexibility < 0:
		return fmt.Errorf("grade flexibility must not be negative")
	case c.IterationsPerWorker < 0:
		return fmt.Errorf("iterations per worker must not be negative")
	case c.ExactCheckBudget < 0:
		return fmt.Errorf("exact check budget must not be negative")
	case c.Weights.TieBreakMin < 0:
		return fmt.Errorf("tie-break weights must not be negative")
	}
	return nil
}
