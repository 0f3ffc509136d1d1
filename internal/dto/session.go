package dto

import "github.com/noah-isme/exam-proctor-api/internal/roster"

// CreateSessionRequest captures POST /sessions payload.
type CreateSessionRequest struct {
	Name           string  `json:"name" validate:"required,max=120"`
	AcademicPeriod string  `json:"academicPeriod" validate:"required,max=60"`
	Notes          *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

// SessionQuery captures GET /sessions query parameters.
type SessionQuery struct {
	Search   string `form:"search"`
	Status   string `form:"status" validate:"omitempty,oneof=DRAFT IMPORTED SOLVED"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// RosterImportResponse summarises an accepted roster upload.
type RosterImportResponse struct {
	SessionID   string                     `json:"sessionId"`
	Teachers    int                        `json:"teachers"`
	Slots       int                        `json:"slots"`
	Preferences int                        `json:"preferences"`
	Demand      int                        `json:"demand"`
	Dropped     []roster.DroppedPreference `json:"dropped,omitempty"`
}
