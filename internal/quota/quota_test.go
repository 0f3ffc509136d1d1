package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-proctor-api/internal/exam"
)

func TestRecommendScenarios(t *testing.T) {
	rec := Recommend(Request{Demand: 100, Rate: 1.15, GradeCounts: map[string]int{"MA": 10, "PR": 5}})

	assert.Equal(t, 115, rec.TargetCapacity)
	assert.Equal(t, map[string]int{"MA": 8, "PR": 7}, rec.Quotas)
	assert.Equal(t, 115, rec.Capacity)

	balanced, ok := rec.Scenario("balanced")
	require.True(t, ok)
	assert.InDelta(t, 115, balanced.Capacity, 15)
	assert.Equal(t, 15.0, balanced.OverCapacityPct)

	conservative, _ := rec.Scenario("conservative")
	safe, _ := rec.Scenario("safe")
	assert.Equal(t, 1.05, conservative.Rate)
	assert.Equal(t, 105, conservative.TargetCapacity)
	assert.Equal(t, 1.25, safe.Rate)
	assert.Equal(t, 125, safe.TargetCapacity)
	assert.Equal(t, 125, safe.Capacity)
	require.Len(t, rec.Grades, 2)
	assert.Equal(t, "MA", rec.Grades[0].Grade)
}

func TestRecommendAppliesMinimumQuota(t *testing.T) {
	rec := Recommend(Request{Demand: 10, GradeCounts: map[string]int{"EX": 20}})
	assert.Equal(t, DefaultOverprovisioningRate, rec.Rate)
	assert.Equal(t, DefaultMinQuota, rec.Quotas["EX"])
	assert.Equal(t, 60, rec.Capacity)
}

func TestRecommendReportsCurrentCapacity(t *testing.T) {
	rec := Recommend(Request{Demand: 50, GradeCounts: map[string]int{"MA": 5}, Current: exam.GradeQuotas{"MA": 7}})
	assert.Equal(t, 35, rec.CurrentCapacity)
	assert.Equal(t, -30.0, rec.CurrentOverCapacityPct)
	assert.Equal(t, 7, rec.Grades[0].CurrentQuota)
}

func TestAdjustToDemandLargestRemainder(t *testing.T) {
	adj := AdjustToDemand(map[string]int{"PR": 4, "MA": 7}, map[string]int{"PR": 2, "MA": 3}, 20)

	// floors PR 2, MA 4 leave a surplus of 4; MA (3 teachers) fits, PR (2 teachers) no longer does.
	assert.Equal(t, map[string]int{"PR": 2, "MA": 5}, adj.Quotas)
	assert.Equal(t, 19, adj.Total)
	assert.Equal(t, 1, adj.Surplus)
}

func TestAdjustToDemandUnknownAndEmpty(t *testing.T) {
	adj := AdjustToDemand(nil, map[string]int{"ZZ": 4}, 8)
	assert.Equal(t, map[string]int{"ZZ": 2}, adj.Quotas)
	assert.Equal(t, 8, adj.Total)

	empty := AdjustToDemand(nil, map[string]int{"ZZ": 4}, 0)
	assert.Equal(t, 0, empty.Quotas["ZZ"])
}

func TestScaleFloors(t *testing.T) {
	assert.Equal(t, []int{2, 2}, ScaleFloors([]int{2, 2}, 5))
	scaled := ScaleFloors([]int{4, 4, 4}, 10)
	assert.Equal(t, []int{4, 3, 3}, scaled)
	assert.Equal(t, []int{0, 0}, ScaleFloors([]int{1, 1}, 0))
}

func TestAnalyzeDetectsShortage(t *testing.T) {
	teachers := []exam.Teacher{
		{ID: "a", Grade: "MA", Quota: 1, Participates: true},
		{ID: "b", Grade: "MA", Quota: 1, Participates: true},
	}
	slots := []exam.Slot{
		{ID: "s1", Day: 1, Session: "S1", Required: 2},
		{ID: "s2", Day: 1, Session: "S2", Required: 2},
	}
	prefs := []exam.Preference{{TeacherID: "a", Day: 1, Session: "S1"}}

	report := Analyze(teachers, slots, prefs, nil)
	assert.Equal(t, 4, report.Capacity.Demand)
	assert.Equal(t, 2, report.Capacity.BaseCapacity)
	assert.Equal(t, 3, report.Capacity.AvailableCapacity)
	assert.Equal(t, 1, report.Capacity.BlockedCells)
	assert.False(t, report.Capacity.Sufficient)
	assert.Equal(t, StatusCritical, report.Status)
	require.NotEmpty(t, report.Risks)
	assert.Equal(t, "quota_shortage", report.Risks[0].Code)
	assert.GreaterOrEqual(t, report.Score, 0)
}

func TestAnalyzeHealthyRoster(t *testing.T) {
	var teachers []exam.Teacher
	for i, g := range []string{"MA", "MA", "PR", "PR", "AS", "AS", "MA", "PR", "AS", "MA"} {
		teachers = append(teachers, exam.Teacher{ID: string(rune('a' + i)), Grade: g, Participates: true})
	}
	slots := []exam.Slot{{ID: "s1", Day: 1, Session: "S1", Required: 2}, {ID: "s2", Day: 1, Session: "S2", Required: 2}}

	report := Analyze(teachers, slots, nil, exam.GradeQuotas{"MA": 1, "PR": 1, "AS": 1})
	assert.Equal(t, 10, report.Capacity.BaseCapacity)
	assert.True(t, report.Capacity.Sufficient)
	assert.NotEqual(t, StatusCritical, report.Status)
	assert.Equal(t, 3, report.Adjusted.Total)
	assert.Equal(t, 1, report.Adjusted.Surplus)
}
