package exam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignmentAddKeepsSortedUnique(t *testing.T) {
	a := Assignment{}
	a.Add("t1", "s3")
	a.Add("t1", "s1")
	a.Add("t1", "s3")
	a.Add("t2", "s1")

	require.Equal(t, []string{"s1", "s3"}, a["t1"])
	assert.Equal(t, 2, a.Count("t1"))
	assert.Equal(t, map[string][]string{"s1": {"t1", "t2"}, "s3": {"t1"}}, a.BySlot())
	assert.Equal(t, a, FromPairs(a.Pairs()))
}

func TestSlotHelpers(t *testing.T) {
	s := Slot{ID: "x", StartTime: "14:30", Rooms: []string{"A", "B", "C"}}
	assert.False(t, s.Morning())
	assert.Equal(t, 870, s.StartMinutes())
	assert.Equal(t, 6, s.WithSupervisorsPerRoom(0).Required)
	assert.Equal(t, 3, s.WithSupervisorsPerRoom(1).Required)
}

func TestGradeQuotas(t *testing.T) {
	q := DefaultGradeQuotas()
	assert.Equal(t, 7, q.QuotaFor(" ma "))
	assert.Equal(t, DefaultQuotaFallback, q.QuotaFor("unknown"))

	q["MA"] = 1
	assert.Equal(t, 7, DefaultGradeQuotas()["MA"])
}

func TestSessionLabels(t *testing.T) {
	assert.Equal(t, "S1", NormalizeSession(" s1 "))
	assert.Equal(t, "S2", NormalizeSession("2"))
	assert.Equal(t, "Matin", NormalizeSession(" Matin "))
	assert.Equal(t, 3, SessionIndex("S3"))

	labels := LabelSessions([]string{"09:00", "08:30", "17:15", "09:00"}, DefaultSessionTimes())
	assert.Equal(t, map[string]string{"08:30": "S1", "09:00": "S2", "17:15": "S3"}, labels)
}

func TestAssignmentReassignAndSwap(t *testing.T) {
	a := FromPairs([]Pair{{"t1", "s1"}, {"t1", "s2"}, {"t2", "s3"}})

	require.NoError(t, a.Reassign("s2", "t1", "t3"))
	assert.Equal(t, []string{"s1"}, a["t1"])
	assert.Equal(t, []string{"s2"}, a["t3"])

	require.NoError(t, a.Swap(Pair{"t1", "s1"}, Pair{"t2", "s3"}))
	assert.Equal(t, []string{"s3"}, a["t1"])
	assert.Equal(t, []string{"s1"}, a["t2"])

	require.NoError(t, a.Reassign("s2", "t3", "t1"))
	_, ok := a["t3"]
	assert.False(t, ok, "emptied teachers are dropped")
}

func TestAssignmentEditRejections(t *testing.T) {
	a := FromPairs([]Pair{{"t1", "s1"}, {"t1", "s2"}, {"t2", "s2"}, {"t2", "s3"}})
	before := a.Clone()

	assert.ErrorIs(t, a.Reassign("s3", "t1", "t2"), ErrDutyNotHeld)
	assert.ErrorIs(t, a.Reassign("s2", "t1", "t2"), ErrDutyAlreadyHeld)
	assert.ErrorIs(t, a.Swap(Pair{"t1", "s1"}, Pair{"t2", "s9"}), ErrDutyNotHeld)
	assert.ErrorIs(t, a.Swap(Pair{"t1", "s1"}, Pair{"t2", "s2"}), ErrDutyAlreadyHeld)
	assert.Error(t, a.Swap(Pair{"t1", "s1"}, Pair{"t1", "s2"}))
	assert.Equal(t, before, a)
}
