package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/exam-proctor-api/internal/scheduler"
)

// SolveStatus captures background solve lifecycle states.
type SolveStatus string

const (
	SolveStatusQueued     SolveStatus = "QUEUED"
	SolveStatusProcessing SolveStatus = "PROCESSING"
	SolveStatusFinished   SolveStatus = "FINISHED"
	SolveStatusInfeasible SolveStatus = "INFEASIBLE"
	SolveStatusTimeout    SolveStatus = "TIMEOUT"
	SolveStatusFailed     SolveStatus = "FAILED"
)

// Terminal reports whether the job will not change state anymore.
func (s SolveStatus) Terminal() bool {
	switch s {
	case SolveStatusFinished, SolveStatusInfeasible, SolveStatusTimeout, SolveStatusFailed:
		return true
	}
	return false
}

// SolveJob is persisted metadata of one asynchronous solve.
type SolveJob struct {
	ID           string           `db:"id" json:"id"`
	SessionID    string           `db:"session_id" json:"session_id"`
	Params       SolveJobParams   `db:"params" json:"params"`
	Status       SolveStatus      `db:"status" json:"status"`
	Progress     int              `db:"progress" json:"progress"`
	Outcome      *string          `db:"outcome" json:"outcome,omitempty"`
	Objective    *int64           `db:"objective" json:"objective,omitempty"`
	Seed         *int64           `db:"seed" json:"seed,omitempty"`
	Diagnostics  SolveDiagnostics `db:"diagnostics" json:"diagnostics"`
	CreatedBy    string           `db:"created_by" json:"created_by"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time       `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string          `db:"error_message" json:"error_message,omitempty"`
}

// SolveJobParams stores per-request engine overrides persisted as JSONB. Zero values fall
// back to the server's planner configuration.
type SolveJobParams struct {
	PreferenceMode   string         `json:"preferenceMode,omitempty"`
	GradeQuotaMode   string         `json:"gradeQuotaMode,omitempty"`
	MaxSolveSeconds  int            `json:"maxSolveSeconds,omitempty"`
	NumWorkers       int            `json:"numWorkers,omitempty"`
	Seed             *int64         `json:"seed,omitempty"`
	AutoRelax        *bool          `json:"autoRelax,omitempty"`
	GradeFlexibility int            `json:"gradeFlexibility,omitempty"`
	QuotaPerGrade    map[string]int `json:"quotaPerGrade,omitempty"`
}

// Value marshals params to JSON for persistence.
func (p SolveJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal solve job params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *SolveJobParams) Scan(value interface{}) error {
	*p = SolveJobParams{}
	return scanJSON(value, p, "solve job params")
}

// SolveDiagnostics is what the engine reported about a finished solve.
type SolveDiagnostics struct {
	Message           string                       `json:"message,omitempty"`
	ElapsedMs         int64                        `json:"elapsedMs"`
	Nodes             int64                        `json:"nodes"`
	Breakdown         *scheduler.Breakdown         `json:"breakdown,omitempty"`
	LowerBound        *int64                       `json:"lowerBound,omitempty"`
	Relaxations       []scheduler.RelaxationStep   `json:"relaxations,omitempty"`
	Attempted         []scheduler.RelaxationStep   `json:"attempted,omitempty"`
	SuspectedFamilies []scheduler.ConstraintFamily `json:"suspectedFamilies,omitempty"`
	GradeCounts       map[string]int               `json:"gradeCounts,omitempty"`
	Assigned          int                          `json:"assigned"`
}

// Value marshals diagnostics to JSON for persistence.
func (d SolveDiagnostics) Value() (driver.Value, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal solve diagnostics: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the diagnostics struct.
func (d *SolveDiagnostics) Scan(value interface{}) error {
	*d = SolveDiagnostics{}
	return scanJSON(value, d, "solve diagnostics")
}
