package models

import "time"

// SessionStatus tracks where a planning session is in its lifecycle.
type SessionStatus string

const (
	SessionStatusDraft    SessionStatus = "DRAFT"
	SessionStatusImported SessionStatus = "IMPORTED"
	SessionStatusSolved   SessionStatus = "SOLVED"
)

// PlanningSession groups one exam period's roster, solves and assignments.
type PlanningSession struct {
	ID             string        `db:"id" json:"id"`
	Name           string        `db:"name" json:"name"`
	AcademicPeriod string        `db:"academic_period" json:"academic_period"`
	Notes          *string       `db:"notes" json:"notes,omitempty"`
	Status         SessionStatus `db:"status" json:"status"`
	TeacherCount   int           `db:"teacher_count" json:"teacher_count"`
	SlotCount      int           `db:"slot_count" json:"slot_count"`
	Demand         int           `db:"demand" json:"demand"`
	CreatedBy      string        `db:"created_by" json:"created_by"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// SessionFilter captures listing options for planning sessions.
type SessionFilter struct {
	Search   string
	Status   *SessionStatus
	Page     int
	PageSize int
}

// Pagination is returned alongside list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
