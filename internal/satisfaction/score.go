// Package satisfaction scores how comfortable each teacher's supervision schedule is.
// Scoring is a pure function of the assignment and roster data.
package satisfaction

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/noah-isme/exam-proctor-api/internal/exam"
)

const (
	// LowScoreThreshold marks records that need operator attention.
	LowScoreThreshold = 60.0
	// defaultSessionMinutes is assumed when a slot has no end time.
	defaultSessionMinutes = 90
	noIssues              = "No issues"
)

// Rubric holds the per-unit penalties and caps of the scoring rules.
type Rubric struct {
	QuotaPerUnit      float64 `json:"quotaPerUnit"`
	QuotaCap          float64 `json:"quotaCap"`
	CompactnessPerDay float64 `json:"compactnessPerDay"`
	CompactnessCap    float64 `json:"compactnessCap"`
	IsolatedPerDay    float64 `json:"isolatedPerDay"`
	IsolatedCap       float64 `json:"isolatedCap"`
	PreferenceWeight  float64 `json:"preferenceWeight"`
	GapPerDay         float64 `json:"gapPerDay"`
	GapCap            float64 `json:"gapCap"`
	ConsecutiveTarget float64 `json:"consecutiveTarget"`
	ConsecutiveWeight float64 `json:"consecutiveWeight"`
	SameDayFreeHours  float64 `json:"sameDayFreeHours"`
	SameDayGapPerHour float64 `json:"sameDayGapPerHour"`
	SameDayGapCap     float64 `json:"sameDayGapCap"`
}

// DefaultRubric returns the standard scoring rubric.
func DefaultRubric() Rubric {
	return Rubric{
		QuotaPerUnit:      5,
		QuotaCap:          30,
		CompactnessPerDay: 5,
		CompactnessCap:    20,
		IsolatedPerDay:    8.33,
		IsolatedCap:       25,
		PreferenceWeight:  40,
		GapPerDay:         2,
		GapCap:            10,
		ConsecutiveTarget: 0.5,
		ConsecutiveWeight: 20,
		SameDayFreeHours:  2,
		SameDayGapPerHour: 3,
		SameDayGapCap:     15,
	}
}

// Penalties itemises the points deducted by each rule.
type Penalties struct {
	Quota       float64 `json:"quota"`
	Compactness float64 `json:"compactness"`
	Isolated    float64 `json:"isolated"`
	Preference  float64 `json:"preference"`
	Gap         float64 `json:"gap"`
	Consecutive float64 `json:"consecutive"`
	SameDayGap  float64 `json:"sameDayGap"`
}

// Record is the satisfaction of one teacher with at least one duty.
type Record struct {
	TeacherID           string    `json:"teacherId" csv:"teacher_id"`
	Name                string    `json:"name" csv:"name"`
	Grade               string    `json:"grade" csv:"grade"`
	Assigned            int       `json:"assigned" csv:"assigned"`
	Quota               int       `json:"quota" csv:"quota"`
	QuotaExcess         int       `json:"quotaExcess" csv:"quota_excess"`
	WorkingDays         int       `json:"workingDays" csv:"working_days"`
	IsolatedDays        int       `json:"isolatedDays" csv:"isolated_days"`
	GapDays             int       `json:"gapDays" csv:"gap_days"`
	PreferencesDeclared int       `json:"preferencesDeclared" csv:"preferences_declared"`
	PreferencesViolated int       `json:"preferencesViolated" csv:"preferences_violated"`
	PreferenceRespect   float64   `json:"preferenceRespect" csv:"preference_respect"`
	MaxSameDayGapHours  float64   `json:"maxSameDayGapHours" csv:"max_same_day_gap_hours"`
	ConsecutiveRatio    float64   `json:"consecutiveRatio" csv:"consecutive_ratio"`
	Pattern             string    `json:"pattern" csv:"pattern"`
	Score               float64   `json:"score" csv:"score"`
	Penalties           Penalties `json:"penalties" csv:"-"`
	Issues              []string  `json:"issues" csv:"-"`
}

// Summary aggregates the records of a report.
type Summary struct {
	Teachers int     `json:"teachers"`
	Average  float64 `json:"average"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	LowCount int     `json:"lowCount"`
}

// Report lists records worst first.
type Report struct {
	Records []Record `json:"records"`
	Summary Summary  `json:"summary"`
}

type teacherDay struct {
	day   int
	slots []exam.Slot
}

// Score rates every teacher holding at least one duty in a. Unknown teacher or slot ids
// in the assignment are ignored. A zero rubric means DefaultRubric.
func Score(a exam.Assignment, teachers []exam.Teacher, slots []exam.Slot, prefs []exam.Preference, rubric Rubric) Report {
	if rubric == (Rubric{}) {
		rubric = DefaultRubric()
	}
	slotByID := make(map[string]exam.Slot, len(slots))
	for _, s := range slots {
		slotByID[s.ID] = s
	}
	declared := make(map[string]map[exam.SessionKey]struct{})
	for _, p := range prefs {
		key := exam.SessionKey{Day: p.Day, Session: exam.NormalizeSession(p.Session)}
		if declared[p.TeacherID] == nil {
			declared[p.TeacherID] = make(map[exam.SessionKey]struct{})
		}
		declared[p.TeacherID][key] = struct{}{}
	}

	var records []Record
	for _, t := range teachers {
		var held []exam.Slot
		for _, id := range a[t.ID] {
			if s, ok := slotByID[id]; ok {
				held = append(held, s)
			}
		}
		if len(held) == 0 {
			continue
		}
		records = append(records, scoreTeacher(t, held, declared[t.ID], rubric))
	}

	return NewReport(records)
}

// NewReport orders records worst first and summarises them. The slice is sorted in place.
func NewReport(records []Record) Report {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score < records[j].Score
		}
		return records[i].TeacherID < records[j].TeacherID
	})
	return Report{Records: records, Summary: summarize(records)}
}

func scoreTeacher(t exam.Teacher, held []exam.Slot, wished map[exam.SessionKey]struct{}, r Rubric) Record {
	sort.Slice(held, func(i, j int) bool {
		if held[i].Day != held[j].Day {
			return held[i].Day < held[j].Day
		}
		return held[i].StartTime < held[j].StartTime
	})
	days := groupByDay(held)

	rec := Record{
		TeacherID:   t.ID,
		Name:        t.FullName(),
		Grade:       t.Grade,
		Assigned:    len(held),
		Quota:       t.Quota,
		QuotaExcess: max(0, len(held)-t.Quota),
		WorkingDays: len(days),
	}
	score := 100.0
	var issues []string

	if rec.QuotaExcess > 0 {
		rec.Penalties.Quota = math.Min(r.QuotaCap, float64(rec.QuotaExcess)*r.QuotaPerUnit)
		issues = append(issues, fmt.Sprintf("+%d above quota", rec.QuotaExcess))
	}

	ideal := max(1, (len(held)+1)/2)
	if extra := len(days) - ideal; extra > 0 {
		rec.Penalties.Compactness = math.Min(r.CompactnessCap, float64(extra)*r.CompactnessPerDay)
		issues = append(issues, fmt.Sprintf("%d extra working day(s)", extra))
	}

	pairs, possible, multi := 0, 0, false
	for _, d := range days {
		morning, afternoon := false, false
		for i, s := range d.slots {
			if s.Morning() {
				morning = true
			} else {
				afternoon = true
			}
			if i > 0 && s.SessionIndex-d.slots[i-1].SessionIndex == 1 {
				pairs++
			}
		}
		if morning != afternoon {
			rec.IsolatedDays++
		}
		if len(d.slots) >= 2 {
			multi = true
			possible += len(d.slots) - 1
		}
		rec.MaxSameDayGapHours = math.Max(rec.MaxSameDayGapHours, sameDayGapHours(d.slots))
	}
	if rec.IsolatedDays > 0 {
		rec.Penalties.Isolated = math.Min(r.IsolatedCap, float64(rec.IsolatedDays)*r.IsolatedPerDay)
		issues = append(issues, fmt.Sprintf("%d isolated day(s)", rec.IsolatedDays))
	}

	rec.PreferencesDeclared = len(wished)
	rec.PreferenceRespect = 1
	if rec.PreferencesDeclared > 0 {
		violated := make(map[exam.SessionKey]struct{})
		for _, s := range held {
			key := exam.SessionKey{Day: s.Day, Session: exam.NormalizeSession(s.Session)}
			if _, ok := wished[key]; ok {
				violated[key] = struct{}{}
			}
		}
		rec.PreferencesViolated = len(violated)
		rec.PreferenceRespect = float64(rec.PreferencesDeclared-rec.PreferencesViolated) / float64(rec.PreferencesDeclared)
		if rec.PreferencesViolated > 0 {
			rec.Penalties.Preference = (1 - rec.PreferenceRespect) * r.PreferenceWeight
			issues = append(issues, fmt.Sprintf("%d preference(s) violated", rec.PreferencesViolated))
		}
	}

	for i := 1; i < len(days); i++ {
		rec.GapDays += days[i].day - days[i-1].day - 1
	}
	if rec.GapDays > 0 {
		rec.Penalties.Gap = math.Min(r.GapCap, float64(rec.GapDays)*r.GapPerDay)
		issues = append(issues, fmt.Sprintf("%d idle day(s) between duties", rec.GapDays))
	}

	if possible > 0 {
		rec.ConsecutiveRatio = round2(float64(pairs) / float64(possible))
	}
	if multi && rec.ConsecutiveRatio < r.ConsecutiveTarget {
		rec.Penalties.Consecutive = (r.ConsecutiveTarget - rec.ConsecutiveRatio) * r.ConsecutiveWeight
		issues = append(issues, "few consecutive sessions")
	}

	if over := rec.MaxSameDayGapHours - r.SameDayFreeHours; over > 0 {
		rec.Penalties.SameDayGap = math.Min(r.SameDayGapCap, over*r.SameDayGapPerHour)
		issues = append(issues, strconv.FormatFloat(rec.MaxSameDayGapHours, 'f', -1, 64)+"h gap within a day")
	}

	p := rec.Penalties
	score -= p.Quota + p.Compactness + p.Isolated + p.Preference + p.Gap + p.Consecutive + p.SameDayGap
	rec.Score = math.Round(math.Max(0, math.Min(100, score))*10) / 10
	rec.Pattern = pattern(rec, pairs)
	if len(issues) == 0 {
		issues = []string{noIssues}
	}
	rec.Issues = issues
	return rec
}

func groupByDay(held []exam.Slot) []teacherDay {
	var days []teacherDay
	for _, s := range held {
		if n := len(days); n > 0 && days[n-1].day == s.Day {
			days[n-1].slots = append(days[n-1].slots, s)
			continue
		}
		days = append(days, teacherDay{day: s.Day, slots: []exam.Slot{s}})
	}
	return days
}

// sameDayGapHours is the longest idle stretch between two duties of one day.
func sameDayGapHours(slots []exam.Slot) float64 {
	longest := 0
	for i := 1; i < len(slots); i++ {
		start := slots[i].StartMinutes()
		end := endMinutes(slots[i-1])
		if start < 0 || end < 0 {
			continue
		}
		longest = max(longest, start-end)
	}
	return round2(float64(longest) / 60)
}

func endMinutes(s exam.Slot) int {
	if s.EndTime != "" {
		var h, m int
		if _, err := fmt.Sscanf(s.EndTime, "%d:%d", &h, &m); err == nil {
			return h*60 + m
		}
	}
	start := s.StartMinutes()
	if start < 0 {
		return -1
	}
	return start + defaultSessionMinutes
}

func pattern(rec Record, pairs int) string {
	switch {
	case rec.WorkingDays == rec.IsolatedDays:
		return fmt.Sprintf("%d day(s), all single-half", rec.WorkingDays)
	case rec.IsolatedDays == 0 && rec.GapDays == 0:
		return fmt.Sprintf("%d compact day(s)", rec.WorkingDays)
	}
	return fmt.Sprintf("%d day(s): %d consecutive pair(s), %d single-half", rec.WorkingDays, pairs, rec.IsolatedDays)
}

func summarize(records []Record) Summary {
	if len(records) == 0 {
		return Summary{}
	}
	s := Summary{Teachers: len(records), Min: records[0].Score, Max: records[0].Score}
	total := 0.0
	for _, r := range records {
		total += r.Score
		s.Min = math.Min(s.Min, r.Score)
		s.Max = math.Max(s.Max, r.Score)
		if r.Score < LowScoreThreshold {
			s.LowCount++
		}
	}
	s.Average = math.Round(total/float64(len(records))*10) / 10
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
