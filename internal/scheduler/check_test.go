package scheduler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-proctor-api/internal/exam"
)

func editInput() Input {
	return Input{
		Teachers: []exam.Teacher{teacher("T1", "MA", 1), teacher("T2", "MA", 1), teacher("T3", "MA", 0)},
		Slots: []exam.Slot{
			slot("A", 1, "08:30", "S1", 1),
			slot("B", 1, "10:30", "S2", 1),
		},
		Preferences: []exam.Preference{{TeacherID: "T2", Day: 1, Session: "S1"}},
	}
}

func violationsOf(t *testing.T, err error) []string {
	t.Helper()
	var integrity *AssignmentIntegrityError
	require.True(t, errors.As(err, &integrity), "got %v", err)
	return integrity.Violations
}

func TestCheckAssignmentAcceptsValidPlan(t *testing.T) {
	a := exam.FromPairs([]exam.Pair{{TeacherID: "T1", SlotID: "A"}, {TeacherID: "T2", SlotID: "B"}})
	assert.NoError(t, CheckAssignment(editInput(), testConfig(), nil, a))
}

func TestCheckAssignmentReportsEditViolations(t *testing.T) {
	base := exam.FromPairs([]exam.Pair{{TeacherID: "T1", SlotID: "A"}, {TeacherID: "T2", SlotID: "B"}})

	swapped := base.Clone()
	require.NoError(t, swapped.Swap(exam.Pair{TeacherID: "T1", SlotID: "A"}, exam.Pair{TeacherID: "T2", SlotID: "B"}))
	assert.Contains(t, violationsOf(t, CheckAssignment(editInput(), testConfig(), nil, swapped)),
		"teacher T2 assigned to excluded slot A")

	moved := base.Clone()
	require.NoError(t, moved.Reassign("A", "T1", "T3"))
	assert.Equal(t, []string{"teacher T1 below quota floor 1"},
		violationsOf(t, CheckAssignment(editInput(), testConfig(), nil, moved)))

	lowered := []RelaxationStep{{Kind: RelaxQuotaFloor, Family: FamilyQuota}}
	assert.NoError(t, CheckAssignment(editInput(), testConfig(), lowered, moved))

	cfg := testConfig()
	cfg.MaxSessionsPerDay = 1
	doubled := base.Clone()
	require.NoError(t, doubled.Reassign("B", "T2", "T1"))
	assert.Contains(t, violationsOf(t, CheckAssignment(editInput(), cfg, nil, doubled)),
		"teacher T1 has 2 sessions on day 1")
}

func TestCheckAssignmentFlagsUnknownIDs(t *testing.T) {
	a := exam.FromPairs([]exam.Pair{{TeacherID: "T1", SlotID: "A"}, {TeacherID: "T2", SlotID: "B"}, {TeacherID: "TX", SlotID: "A"}, {TeacherID: "T1", SlotID: "Z"}})
	got := violationsOf(t, CheckAssignment(editInput(), testConfig(), nil, a))
	assert.Equal(t, []string{
		"slot Z does not exist",
		"teacher TX is not a participating supervisor",
	}, got)
}
