package dto

import (
	"time"

	"github.com/noah-isme/exam-proctor-api/internal/models"
)

// SolveRequest captures POST /sessions/:id/solve overrides. Empty fields keep the server
// defaults.
type SolveRequest struct {
	PreferenceMode   string         `json:"preferenceMode" validate:"omitempty,oneof=hard soft"`
	GradeQuotaMode   string         `json:"gradeQuotaMode" validate:"omitempty,oneof=minimum strict-equality equality strict"`
	MaxSolveSeconds  int            `json:"maxSolveSeconds" validate:"omitempty,min=1,max=3600"`
	NumWorkers       int            `json:"numWorkers" validate:"omitempty,min=1,max=64"`
	Seed             *int64         `json:"seed,omitempty"`
	AutoRelax        *bool          `json:"autoRelax,omitempty"`
	GradeFlexibility int            `json:"gradeFlexibility" validate:"omitempty,min=0,max=10"`
	QuotaPerGrade    map[string]int `json:"quotaPerGrade,omitempty" validate:"omitempty,dive,keys,required,endkeys,min=0"`
}

// SolveJobResponse is returned after enqueueing a solve.
type SolveJobResponse struct {
	ID        string             `json:"id"`
	SessionID string             `json:"sessionId"`
	Status    models.SolveStatus `json:"status"`
	Progress  int                `json:"progress"`
}

// SolveJobStatusResponse exposes job progress and the engine's diagnostics.
type SolveJobStatusResponse struct {
	ID          string                  `json:"id"`
	SessionID   string                  `json:"sessionId"`
	Status      models.SolveStatus      `json:"status"`
	Progress    int                     `json:"progress"`
	Outcome     *string                 `json:"outcome,omitempty"`
	Objective   *int64                  `json:"objective,omitempty"`
	Seed        *int64                  `json:"seed,omitempty"`
	Diagnostics models.SolveDiagnostics `json:"diagnostics"`
	ErrorCode   string                  `json:"errorCode,omitempty"`
	Error       *string                 `json:"error,omitempty"`
	CreatedAt   time.Time               `json:"createdAt"`
	FinishedAt  *time.Time              `json:"finishedAt,omitempty"`
}

// DutySlot describes one supervised slot in assignment listings.
type DutySlot struct {
	SlotID    string   `json:"slotId"`
	Date      string   `json:"date"`
	Day       int      `json:"day"`
	StartTime string   `json:"startTime"`
	EndTime   string   `json:"endTime,omitempty"`
	Session   string   `json:"session"`
	Rooms     []string `json:"rooms,omitempty"`
}

// TeacherDuties lists one teacher's supervision duties.
type TeacherDuties struct {
	TeacherID string     `json:"teacherId"`
	Name      string     `json:"name"`
	Grade     string     `json:"grade"`
	Quota     int        `json:"quota"`
	Assigned  int        `json:"assigned"`
	Slots     []DutySlot `json:"slots"`
}

// AssignmentsResponse is the published assignment of a session.
type AssignmentsResponse struct {
	SessionID   string              `json:"sessionId"`
	JobID       string              `json:"jobId"`
	Teachers    []TeacherDuties     `json:"teachers"`
	Responsible map[string][]string `json:"responsible,omitempty"`
}

// AssignmentEditRequest captures PATCH /sessions/:id/assignments. A swap exchanges
// (teacherId, slotId) with (otherTeacherId, otherSlotId); a reassign hands slotId from
// teacherId to otherTeacherId.
type AssignmentEditRequest struct {
	Op             string `json:"op" validate:"required,oneof=swap reassign"`
	TeacherID      string `json:"teacherId" validate:"required"`
	SlotID         string `json:"slotId" validate:"required"`
	OtherTeacherID string `json:"otherTeacherId" validate:"required"`
	OtherSlotID    string `json:"otherSlotId" validate:"required_if=Op swap"`
}

// ExportRequest captures POST /sessions/:id/exports payload.
type ExportRequest struct {
	Kind   models.ExportKind   `json:"kind" validate:"required,oneof=assignments satisfaction teacher-schedule"`
	Format models.ExportFormat `json:"format" validate:"required,oneof=csv pdf xlsx ics"`
}

// ExportResponse returns the signed download link.
type ExportResponse struct {
	URL       string              `json:"url"`
	Format    models.ExportFormat `json:"format"`
	ExpiresAt time.Time           `json:"expiresAt"`
}
