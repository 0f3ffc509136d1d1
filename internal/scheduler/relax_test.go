package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-proctor-api/internal/exam"
)

func TestRelaxationLadderOrder(t *testing.T) {
	cfg := testConfig()
	cfg.GradeQuotaMode = QuotaStrictEquality
	cfg.MaxGradeFlexibility = 1
	m, err := BuildModel(Input{
		Teachers: []exam.Teacher{teacher("A", "MA", 3), teacher("B", "MA", 3)},
		Slots: []exam.Slot{
			slot("x", 1, "08:30", "S1", 1),
			slot("y", 1, "10:30", "S2", 1),
		},
		Preferences: []exam.Preference{{TeacherID: "A", Day: 1, Session: "S1"}},
	}, cfg)
	require.NoError(t, err)

	var kinds []RelaxationKind
	for {
		step, ok := m.nextRelaxation()
		if !ok {
			break
		}
		kinds = append(kinds, step.Kind)
		m = m.Relax(step)
	}
	assert.Equal(t, []RelaxationKind{
		RelaxGradeFlexibility,
		RelaxGradeEquality,
		RelaxQuotaScale,
		RelaxQuotaFloor,
		RelaxPreferenceSoft,
	}, kinds)
	assert.Equal(t, []int{0, 0}, m.floors)
	assert.True(t, m.allowed[0][0])
}

func TestRelaxLeavesOriginalUntouched(t *testing.T) {
	m, err := BuildModel(Input{
		Teachers:    []exam.Teacher{teacher("A", "MA", 2)},
		Slots:       []exam.Slot{slot("x", 1, "08:30", "S1", 1)},
		Preferences: []exam.Preference{{TeacherID: "A", Day: 1, Session: "S1"}},
	}, testConfig())
	require.NoError(t, err)

	scaled := m.Relax(RelaxationStep{Kind: RelaxQuotaScale})
	soft := scaled.Relax(RelaxationStep{Kind: RelaxPreferenceSoft})

	assert.Equal(t, 2, m.Floor(0))
	assert.Equal(t, 1, scaled.Floor(0))
	assert.False(t, m.allowed[0][0])
	assert.False(t, scaled.allowed[0][0])
	assert.True(t, soft.allowed[0][0])
}

func TestGradeCandidatesClosestFirst(t *testing.T) {
	cfg := testConfig()
	cfg.GradeQuotaMode = QuotaStrictEquality
	cfg.GradeFlexibility = 1
	m, err := BuildModel(Input{
		Teachers: []exam.Teacher{
			teacher("A1", "MA", 2), teacher("A2", "MA", 2),
			teacher("B1", "PR", 1), teacher("B2", "PR", 1),
		},
		Slots: []exam.Slot{
			slot("x", 1, "08:30", "S1", 2),
			slot("y", 1, "10:30", "S2", 2),
			slot("z", 1, "14:30", "S4", 2),
		},
	}, cfg)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 1}, m.gradeTargets)
	assert.Equal(t, [][]int{{2, 1}, {1, 2}}, m.gradeCandidates(10))
	assert.Equal(t, [][]int{{2, 1}}, m.gradeCandidates(1))
}

func TestApplicableFamilies(t *testing.T) {
	m, err := BuildModel(Input{
		Teachers:    []exam.Teacher{teacher("A", "MA", 1)},
		Slots:       []exam.Slot{slot("x", 1, "08:30", "S1", 1)},
		Preferences: []exam.Preference{{TeacherID: "A", Day: 1, Session: "S1"}},
	}, testConfig())
	require.NoError(t, err)

	assert.Equal(t, []ConstraintFamily{FamilyQuota, FamilyPreference}, m.applicableFamilies())
	assert.Equal(t, []ConstraintFamily{FamilyQuota}, m.withoutFamily(FamilyPreference).applicableFamilies())
}
