package quota

import (
	"fmt"
	"math"
	"sort"

	"github.com/noah-isme/exam-proctor-api/internal/exam"
)

// RiskLevel grades a risk factor.
type RiskLevel string

const (
	RiskCritical RiskLevel = "critical"
	RiskWarning  RiskLevel = "warning"
	RiskInfo     RiskLevel = "info"
)

// Feasibility statuses, best to worst.
const (
	StatusExcellent = "excellent"
	StatusGood      = "good"
	StatusWarning   = "warning"
	StatusCritical  = "critical"
)

const capacityBuffer = 1.15

// Risk is one detected threat to solvability.
type Risk struct {
	Code    string    `json:"code"`
	Level   RiskLevel `json:"level"`
	Message string    `json:"message"`
	Score   int       `json:"score"`
}

// GradeCapacity is the quota capacity contributed by one grade.
type GradeCapacity struct {
	Grade    string `json:"grade"`
	Teachers int    `json:"teachers"`
	Quota    int    `json:"quota"`
	Capacity int    `json:"capacity"`
	Known    bool   `json:"known"`
}

// CapacityAnalysis compares demand with quota and availability capacity.
type CapacityAnalysis struct {
	Demand            int             `json:"demand"`
	BufferedDemand    int             `json:"bufferedDemand"`
	BaseCapacity      int             `json:"baseCapacity"`
	AvailableCapacity int             `json:"availableCapacity"`
	BlockedCells      int             `json:"blockedCells"`
	UtilizationPct    float64         `json:"utilizationPct"`
	OverCapacityPct   float64         `json:"overCapacityPct"`
	Sufficient        bool            `json:"sufficient"`
	Grades            []GradeCapacity `json:"grades"`
}

// FeasibilityReport is the pre-solve decision support summary.
type FeasibilityReport struct {
	Capacity        CapacityAnalysis `json:"capacity"`
	Adjusted        Adjustment       `json:"adjusted"`
	ReductionPct    float64          `json:"reductionPct"`
	Risks           []Risk           `json:"risks"`
	Score           int              `json:"score"`
	Status          string           `json:"status"`
	Recommendations []string         `json:"recommendations"`
}

// Analyze estimates whether the roster can cover the demand before a solve is attempted.
// A nil quota table uses the teachers' own quotas and treats every grade as known.
func Analyze(teachers []exam.Teacher, slots []exam.Slot, prefs []exam.Preference, quotas exam.GradeQuotas) FeasibilityReport {
	demand := exam.Demand(slots)
	counts := GradeCounts(teachers)

	slotKeys := make(map[exam.SessionKey]int, len(slots))
	for _, s := range slots {
		slotKeys[s.Key()]++
	}
	blockedBy := make(map[string]int)
	for _, p := range prefs {
		blockedBy[p.TeacherID] += slotKeys[p.Key()]
	}

	capacity := CapacityAnalysis{
		Demand:         demand,
		BufferedDemand: int(math.Ceil(float64(demand)*capacityBuffer - 1e-9)),
	}
	gradeQuota := make(map[string]int)
	unknown := 0
	for _, t := range teachers {
		if !t.Participates {
			continue
		}
		q := t.Quota
		known := true
		if quotas != nil {
			_, known = quotas[t.Grade]
			q = quotas.QuotaFor(t.Grade)
		}
		if !known {
			unknown++
		}
		gradeQuota[t.Grade] = q
		capacity.BaseCapacity += q
		blocked := min(blockedBy[t.ID], len(slots))
		capacity.BlockedCells += blocked
		capacity.AvailableCapacity += len(slots) - blocked
	}
	for _, g := range sortedGrades(counts) {
		_, known := quotas[g]
		capacity.Grades = append(capacity.Grades, GradeCapacity{
			Grade:    g,
			Teachers: counts[g],
			Quota:    gradeQuota[g],
			Capacity: gradeQuota[g] * counts[g],
			Known:    quotas == nil || known,
		})
	}
	if capacity.BaseCapacity > 0 {
		capacity.UtilizationPct = round1(float64(demand) / float64(capacity.BaseCapacity) * 100)
	}
	capacity.OverCapacityPct = overCapacity(capacity.BaseCapacity, demand)
	capacity.Sufficient = capacity.AvailableCapacity >= demand

	report := FeasibilityReport{
		Capacity: capacity,
		Adjusted: AdjustToDemand(gradeQuota, counts, demand),
	}
	if capacity.BaseCapacity > 0 && report.Adjusted.Total < capacity.BaseCapacity {
		report.ReductionPct = round1(float64(capacity.BaseCapacity-report.Adjusted.Total) / float64(capacity.BaseCapacity) * 100)
	}

	totalTeachers := 0
	for _, n := range counts {
		totalTeachers += n
	}
	report.Risks = detectRisks(capacity, totalTeachers, unknown, len(counts), slots)
	report.Score = feasibilityScore(report.Risks, capacity.UtilizationPct)
	report.Status = feasibilityStatus(report.Risks, report.Score)
	report.Recommendations = recommendations(report, capacity)
	return report
}

func detectRisks(c CapacityAnalysis, teachers, unknown, grades int, slots []exam.Slot) []Risk {
	var risks []Risk
	add := func(code string, level RiskLevel, score int, format string, args ...interface{}) {
		risks = append(risks, Risk{Code: code, Level: level, Score: score, Message: fmt.Sprintf(format, args...)})
	}

	if c.BaseCapacity < c.Demand {
		add("quota_shortage", RiskCritical, -40, "quotas cover %d of %d required duties", c.BaseCapacity, c.Demand)
	}
	if c.AvailableCapacity < c.Demand {
		add("availability_shortage", RiskCritical, -30, "only %d teacher-slot cells remain after preferences for %d duties", c.AvailableCapacity, c.Demand)
	}
	if c.UtilizationPct > 85 {
		add("high_utilization", RiskWarning, -15, "utilization at %.1f%% of quota capacity", c.UtilizationPct)
	}
	totalCells := c.AvailableCapacity + c.BlockedCells
	if totalCells > 0 && float64(c.BlockedCells)/float64(totalCells) > 0.40 {
		add("many_preferences", RiskWarning, -10, "preferences block %.1f%% of teacher-slot cells", float64(c.BlockedCells)/float64(totalCells)*100)
	}
	if teachers > 0 && float64(unknown)/float64(teachers) > 0.5 {
		add("unknown_grades", RiskWarning, -5, "%d of %d teachers have a grade without a configured quota", unknown, teachers)
	}
	if grades > 0 && grades < 3 {
		add("few_grades", RiskInfo, -5, "only %d grade(s) represented", grades)
	}
	if len(slots) > 0 {
		avgRequired := float64(c.Demand) / float64(len(slots))
		if avgRequired > 0 && float64(teachers)/avgRequired < 3 {
			add("few_candidates", RiskWarning, -10, "%.1f teachers per required seat", float64(teachers)/avgRequired)
		}
	}
	if c.OverCapacityPct > 70 {
		add("over_capacity", RiskInfo, 0, "quota capacity exceeds demand by %.1f%%", c.OverCapacityPct)
	}

	sort.SliceStable(risks, func(i, j int) bool { return risks[i].Score < risks[j].Score })
	return risks
}

func feasibilityScore(risks []Risk, utilization float64) int {
	score := 100
	for _, r := range risks {
		score += r.Score
	}
	switch {
	case utilization > 95:
		score -= 15
	case utilization > 85:
		score -= 5
	case utilization > 0 && utilization < 50:
		score += 5
	}
	return max(0, min(100, score))
}

func feasibilityStatus(risks []Risk, score int) string {
	for _, r := range risks {
		if r.Level == RiskCritical {
			return StatusCritical
		}
	}
	switch {
	case score < 50:
		return StatusCritical
	case score < 70:
		return StatusWarning
	case score < 85:
		return StatusGood
	default:
		return StatusExcellent
	}
}

func recommendations(r FeasibilityReport, c CapacityAnalysis) []string {
	out := make([]string, 0, 4)
	for _, risk := range r.Risks {
		switch risk.Code {
		case "quota_shortage":
			out = append(out, fmt.Sprintf("raise quotas by at least %d duties or run the quota recommendation", c.Demand-c.BaseCapacity))
		case "availability_shortage":
			out = append(out, "switch preferences to soft mode or ask teachers to release wishes")
		case "high_utilization":
			out = append(out, fmt.Sprintf("aim for %d duties of capacity to keep a 15%% buffer", c.BufferedDemand))
		case "over_capacity":
			out = append(out, "quotas are generous; strict-equality mode will scale them down to demand")
		}
	}
	if len(out) == 0 {
		out = append(out, "roster looks solvable with the current quotas")
	}
	return out
}
