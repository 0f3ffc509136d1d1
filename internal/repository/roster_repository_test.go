package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-proctor-api/internal/models"
)

func expectRosterClear(mock sqlmock.Sqlmock, sessionID string) {
	for _, table := range []string{"satisfaction_records", "assignments", "wishes", "exam_slots", "session_teachers"} {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM " + table + " WHERE session_id = $1")).
			WithArgs(sessionID).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
}

func TestRosterRepositoryReplace(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRosterRepository(db)

	mock.ExpectBegin()
	expectRosterClear(mock, "s-1")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO session_teachers")).
		WithArgs("s-1", "T001", "", "Amal", "Ben", "", "MA", 7, true).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO exam_slots")).
		WithArgs("s-1", "D1-S1", "2025-06-02", 1, "08:30", "10:00", "S1", 0, sqlmock.AnyArg(), 4, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wishes")).
		WithArgs("s-1", "T001", 1, "S1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE planning_sessions SET status = $2, teacher_count = $3, slot_count = $4, demand = $5")).
		WithArgs("s-1", models.SessionStatusImported, 1, 1, 4, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Replace(context.Background(), "s-1",
		[]models.Teacher{{TeacherID: "T001", FirstName: "Amal", LastName: "Ben", Grade: "MA", Quota: 7, Participates: true}},
		[]models.ExamSlot{{SlotID: "D1-S1", ExamDate: "2025-06-02", Day: 1, StartTime: "08:30", EndTime: "10:00", Session: "S1", Rooms: pq.StringArray{"A1", "A2"}, Required: 4}},
		[]models.Wish{{TeacherID: "T001", Day: 1, Session: "S1"}},
	)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRosterRepositoryReplaceRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRosterRepository(db)

	mock.ExpectBegin()
	expectRosterClear(mock, "s-1")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO session_teachers")).
		WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	err := repo.Replace(context.Background(), "s-1", []models.Teacher{{TeacherID: "T001"}}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert session teacher")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRosterRepositorySlotsScansArrays(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRosterRepository(db)

	rows := sqlmock.NewRows([]string{"session_id", "slot_id", "exam_date", "day", "start_time", "end_time", "session_label", "session_index", "rooms", "required", "responsible"}).
		AddRow("s-1", "D1-S1", "2025-06-02", 1, "08:30", "10:00", "S1", 0, "{A1,A2}", 4, "{T009}")
	mock.ExpectQuery(regexp.QuoteMeta("FROM exam_slots WHERE session_id = $1 ORDER BY day ASC, start_time ASC")).
		WithArgs("s-1").
		WillReturnRows(rows)

	slots, err := repo.Slots(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	slot := slots[0].Exam()
	assert.Equal(t, []string{"A1", "A2"}, slot.Rooms)
	assert.Equal(t, []string{"T009"}, slot.Responsible)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRosterRepositoryTeachersAndWishes(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRosterRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM session_teachers WHERE session_id = $1 ORDER BY teacher_id ASC")).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "teacher_id", "code", "first_name", "last_name", "email", "grade", "quota", "participates"}).
			AddRow("s-1", "T001", "C1", "Amal", "Ben", "a@b.c", "PR", 4, true))
	mock.ExpectQuery(regexp.QuoteMeta("FROM wishes WHERE session_id = $1")).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "teacher_id", "day", "session_label"}).AddRow("s-1", "T001", 2, "S3"))

	teachers, err := repo.Teachers(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, "Amal Ben", teachers[0].Exam().FullName())

	wishes, err := repo.Wishes(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, 2, wishes[0].Exam().Day)
	require.NoError(t, mock.ExpectationsWereMet())
}
