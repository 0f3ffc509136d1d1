package models

import (
	"github.com/lib/pq"

	"github.com/noah-isme/exam-proctor-api/internal/exam"
)

// Teacher is a supervisor row imported into a planning session.
type Teacher struct {
	SessionID    string `db:"session_id" json:"session_id"`
	TeacherID    string `db:"teacher_id" json:"teacher_id"`
	Code         string `db:"code" json:"code"`
	FirstName    string `db:"first_name" json:"first_name"`
	LastName     string `db:"last_name" json:"last_name"`
	Email        string `db:"email" json:"email"`
	Grade        string `db:"grade" json:"grade"`
	Quota        int    `db:"quota" json:"quota"`
	Participates bool   `db:"participates" json:"participates"`
}

// NewTeacher maps an engine teacher to its session row.
func NewTeacher(sessionID string, t exam.Teacher) Teacher {
	return Teacher{
		SessionID:    sessionID,
		TeacherID:    t.ID,
		Code:         t.Code,
		FirstName:    t.FirstName,
		LastName:     t.LastName,
		Email:        t.Email,
		Grade:        t.Grade,
		Quota:        t.Quota,
		Participates: t.Participates,
	}
}

// Exam converts the row back to the engine representation.
func (t Teacher) Exam() exam.Teacher {
	return exam.Teacher{
		ID:           t.TeacherID,
		Code:         t.Code,
		FirstName:    t.FirstName,
		LastName:     t.LastName,
		Email:        t.Email,
		Grade:        t.Grade,
		Quota:        t.Quota,
		Participates: t.Participates,
	}
}

// ExamSlot is one exam time unit of a planning session.
type ExamSlot struct {
	SessionID    string         `db:"session_id" json:"session_id"`
	SlotID       string         `db:"slot_id" json:"slot_id"`
	ExamDate     string         `db:"exam_date" json:"exam_date"`
	Day          int            `db:"day" json:"day"`
	StartTime    string         `db:"start_time" json:"start_time"`
	EndTime      string         `db:"end_time" json:"end_time"`
	Session      string         `db:"session_label" json:"session"`
	SessionIndex int            `db:"session_index" json:"session_index"`
	Rooms        pq.StringArray `db:"rooms" json:"rooms"`
	Required     int            `db:"required" json:"required"`
	Responsible  pq.StringArray `db:"responsible" json:"responsible"`
}

// NewExamSlot maps an engine slot to its session row.
func NewExamSlot(sessionID string, s exam.Slot) ExamSlot {
	return ExamSlot{
		SessionID:    sessionID,
		SlotID:       s.ID,
		ExamDate:     s.Date,
		Day:          s.Day,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		Session:      s.Session,
		SessionIndex: s.SessionIndex,
		Rooms:        pq.StringArray(append([]string{}, s.Rooms...)),
		Required:     s.Required,
		Responsible:  pq.StringArray(append([]string{}, s.Responsible...)),
	}
}

// Exam converts the row back to the engine representation.
func (s ExamSlot) Exam() exam.Slot {
	slot := exam.Slot{
		ID:           s.SlotID,
		Date:         s.ExamDate,
		Day:          s.Day,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		Session:      s.Session,
		SessionIndex: s.SessionIndex,
		Rooms:        append([]string(nil), s.Rooms...),
		Required:     s.Required,
	}
	if len(s.Responsible) > 0 {
		slot.Responsible = append([]string(nil), s.Responsible...)
	}
	return slot
}

// Wish is a (day, session) a teacher asked not to supervise.
type Wish struct {
	SessionID string `db:"session_id" json:"session_id"`
	TeacherID string `db:"teacher_id" json:"teacher_id"`
	Day       int    `db:"day" json:"day"`
	Session   string `db:"session_label" json:"session"`
}

// Exam converts the row to an engine preference.
func (w Wish) Exam() exam.Preference {
	return exam.Preference{TeacherID: w.TeacherID, Day: w.Day, Session: w.Session}
}
