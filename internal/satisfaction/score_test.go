package satisfaction

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-proctor-api/internal/exam"
)

func fixtureSlots() []exam.Slot {
	var slots []exam.Slot
	times := []struct{ start, end, session string }{
		{"08:30", "10:00", "S1"},
		{"10:30", "12:00", "S2"},
		{"14:30", "16:00", "S4"},
	}
	for day := 1; day <= 5; day++ {
		for idx, tm := range times {
			slots = append(slots, exam.Slot{
				ID:           fmt.Sprintf("D%d-%s", day, tm.session),
				Day:          day,
				StartTime:    tm.start,
				EndTime:      tm.end,
				Session:      tm.session,
				SessionIndex: idx,
				Required:     2,
			})
		}
	}
	return slots
}

func fixtureTeacher(id string, quota int) exam.Teacher {
	return exam.Teacher{ID: id, FirstName: "Prenom" + id, LastName: "Nom" + id, Grade: "MA", Quota: quota, Participates: true}
}

func TestScoreIsolatedDays(t *testing.T) {
	a := exam.Assignment{"A": {"D1-S1", "D2-S1", "D3-S1"}}

	report := Score(a, []exam.Teacher{fixtureTeacher("A", 3)}, fixtureSlots(), nil, Rubric{})
	require.Len(t, report.Records, 1)
	rec := report.Records[0]
	assert.Equal(t, 3, rec.IsolatedDays)
	assert.Equal(t, 0, rec.GapDays)
	assert.InDelta(t, 24.99, rec.Penalties.Isolated, 1e-9)
	assert.Contains(t, rec.Issues, "3 isolated day(s)")
	assert.Contains(t, rec.Issues, "1 extra working day(s)")
	assert.Equal(t, 70.0, rec.Score)
}

func TestScoreWithoutPreferencesIsNeutral(t *testing.T) {
	a := exam.Assignment{"A": {"D1-S1", "D3-S4", "D5-S2"}}

	report := Score(a, []exam.Teacher{fixtureTeacher("A", 1)}, fixtureSlots(), nil, DefaultRubric())
	rec := report.Records[0]
	assert.Zero(t, rec.Penalties.Preference)
	assert.Equal(t, 0, rec.PreferencesDeclared)
	assert.Equal(t, 1.0, rec.PreferenceRespect)
	assert.Equal(t, 2, rec.GapDays)
	assert.Contains(t, rec.Issues, "2 idle day(s) between duties")
	assert.Contains(t, rec.Issues, "+2 above quota")
}

func TestScorePreferenceRespect(t *testing.T) {
	a := exam.Assignment{"A": {"D1-S1", "D1-S2"}}
	prefs := []exam.Preference{
		{TeacherID: "A", Day: 1, Session: "1"},
		{TeacherID: "A", Day: 4, Session: "S2"},
		{TeacherID: "B", Day: 1, Session: "S2"},
	}

	rec := Score(a, []exam.Teacher{fixtureTeacher("A", 2)}, fixtureSlots(), prefs, Rubric{}).Records[0]
	assert.Equal(t, 2, rec.PreferencesDeclared)
	assert.Equal(t, 1, rec.PreferencesViolated)
	assert.Equal(t, 0.5, rec.PreferenceRespect)
	assert.Equal(t, 20.0, rec.Penalties.Preference)
	assert.Contains(t, rec.Issues, "1 preference(s) violated")
}

func TestScoreFullDayWithLongBreak(t *testing.T) {
	a := exam.Assignment{"A": {"D2-S4", "D2-S1", "D2-S2"}}

	rec := Score(a, []exam.Teacher{fixtureTeacher("A", 3)}, fixtureSlots(), nil, Rubric{}).Records[0]
	assert.Equal(t, 1, rec.WorkingDays)
	assert.Equal(t, 0, rec.IsolatedDays)
	assert.Equal(t, 1.0, rec.ConsecutiveRatio)
	assert.Equal(t, 2.5, rec.MaxSameDayGapHours)
	assert.Equal(t, []string{"2.5h gap within a day"}, rec.Issues)
	assert.Equal(t, 98.5, rec.Score)
	assert.Equal(t, "1 compact day(s)", rec.Pattern)
}

func TestScoreNoIssues(t *testing.T) {
	a := exam.Assignment{"A": {"D1-S1", "D1-S2", "D1-S4"}}
	slots := fixtureSlots()
	slots[1].EndTime = "13:00"

	rec := Score(a, []exam.Teacher{fixtureTeacher("A", 3)}, slots, nil, Rubric{}).Records[0]
	assert.Equal(t, []string{"No issues"}, rec.Issues)
	assert.Equal(t, 100.0, rec.Score)
}

func TestScoreSortsWorstFirstAndSummarises(t *testing.T) {
	a := exam.Assignment{
		"B": {"D1-S1", "D1-S2", "D1-S4"},
		"A": {"D1-S1", "D3-S1", "D5-S1"},
		"C": {},
		"X": {"D1-S1"},
	}
	teachers := []exam.Teacher{fixtureTeacher("A", 3), fixtureTeacher("B", 3), fixtureTeacher("C", 3)}

	report := Score(a, teachers, fixtureSlots(), nil, Rubric{})
	require.Len(t, report.Records, 2)
	assert.Equal(t, "A", report.Records[0].TeacherID)
	assert.Equal(t, "B", report.Records[1].TeacherID)
	assert.Equal(t, 2, report.Summary.Teachers)
	assert.Equal(t, report.Records[0].Score, report.Summary.Min)
	assert.Equal(t, report.Records[1].Score, report.Summary.Max)
}

func TestScoreIsDeterministicAndBounded(t *testing.T) {
	slots := fixtureSlots()
	var all []string
	for _, s := range slots {
		if s.Session == "S1" || s.Session == "S4" {
			all = append(all, s.ID)
		}
	}
	a := exam.Assignment{"A": all, "B": {"D1-S2", "D5-S2"}}
	teachers := []exam.Teacher{fixtureTeacher("A", 0), fixtureTeacher("B", 2)}
	var prefs []exam.Preference
	for day := 1; day <= 5; day++ {
		prefs = append(prefs, exam.Preference{TeacherID: "A", Day: day, Session: "S1"})
	}

	first := Score(a, teachers, slots, prefs, Rubric{})
	second := Score(a, teachers, slots, prefs, Rubric{})
	assert.Equal(t, first, second)
	for _, rec := range first.Records {
		assert.GreaterOrEqual(t, rec.Score, 0.0)
		assert.LessOrEqual(t, rec.Score, 100.0)
	}
}
