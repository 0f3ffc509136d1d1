package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/exam-proctor-api/internal/satisfaction"
)

// Assignment is one persisted (teacher, slot) supervision duty produced by a solve job.
type Assignment struct {
	SessionID string    `db:"session_id" json:"session_id"`
	JobID     string    `db:"job_id" json:"job_id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	SlotID    string    `db:"slot_id" json:"slot_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SatisfactionRecord stores one teacher's satisfaction as scored when the job finished.
type SatisfactionRecord struct {
	SessionID string             `db:"session_id" json:"session_id"`
	JobID     string             `db:"job_id" json:"job_id"`
	TeacherID string             `db:"teacher_id" json:"teacher_id"`
	Score     float64            `db:"score" json:"score"`
	Detail    SatisfactionDetail `db:"detail" json:"detail"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
}

// SatisfactionDetail is the full scored record persisted as JSONB.
type SatisfactionDetail struct {
	satisfaction.Record
}

// Value marshals the detail to JSON for persistence.
func (d SatisfactionDetail) Value() (driver.Value, error) {
	data, err := json.Marshal(d.Record)
	if err != nil {
		return nil, fmt.Errorf("marshal satisfaction detail: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the detail.
func (d *SatisfactionDetail) Scan(value interface{}) error {
	return scanJSON(value, &d.Record, "satisfaction detail")
}

func scanJSON(value interface{}, dest interface{}, label string) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %s", value, label)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", label, err)
	}
	return nil
}
