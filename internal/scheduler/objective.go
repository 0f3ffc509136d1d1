package scheduler

import "math/rand"

// Breakdown itemises the objective. Counts are unweighted; Total is the weighted sum.
type Breakdown struct {
	QuotaExcess          int64 `json:"quotaExcess"`
	QuotaDeviation       int64 `json:"quotaDeviation"`
	PreferenceViolations int64 `json:"preferenceViolations"`
	FullDayViolations    int64 `json:"fullDayViolations"`
	ActiveDays           int64 `json:"activeDays"`
	GapDays              int64 `json:"gapDays"`
	BothHalvesDays       int64 `json:"bothHalvesDays"`
	ConsecutivePairs     int64 `json:"consecutivePairs"`
	IsolatedDays         int64 `json:"isolatedDays"`
	TieBreak             int64 `json:"tieBreak"`
	Total                int64 `json:"total"`
}

func (b *Breakdown) add(o Breakdown) {
	b.QuotaExcess += o.QuotaExcess
	b.QuotaDeviation += o.QuotaDeviation
	b.PreferenceViolations += o.PreferenceViolations
	b.FullDayViolations += o.FullDayViolations
	b.ActiveDays += o.ActiveDays
	b.GapDays += o.GapDays
	b.BothHalvesDays += o.BothHalvesDays
	b.ConsecutivePairs += o.ConsecutivePairs
	b.IsolatedDays += o.IsolatedDays
	b.TieBreak += o.TieBreak
	b.Total += o.Total
}

// Objective is the weighted minimisation target for one model. It is separable per
// teacher, which lets the search evaluate moves by recomputing two teachers only.
type Objective struct {
	m    *Model
	w    Weights
	tie  [][]int64
	soft bool
	eq   bool
}

// ComposeObjective binds weights to a model and draws the tie-break terms from rng.
func ComposeObjective(m *Model, w Weights, rng *rand.Rand) *Objective {
	o := &Objective{
		m:    m,
		w:    w,
		soft: m.preferenceMode() == PreferenceSoft,
		eq:   m.quotaMode() == QuotaStrictEquality,
	}
	span := w.TieBreakMax - w.TieBreakMin + 1
	o.tie = make([][]int64, len(m.teachers))
	for t := range m.teachers {
		o.tie[t] = make([]int64, len(m.slots))
		for s := range m.slots {
			o.tie[t][s] = w.TieBreakMin + rng.Int63n(span)
		}
	}
	return o
}

// cellCost is the linear part of assigning teacher t to slot s.
func (o *Objective) cellCost(t, s int) int64 {
	cost := o.tie[t][s]
	if o.soft && o.m.wished[t][s] {
		cost += o.w.PreferenceViolation
		if o.m.fullDay[t][o.m.slotDay[s]] {
			cost += o.w.FullDayViolation
		}
	}
	return cost
}

// terms computes teacher t's contribution. slots must be sorted ascending (model order).
func (o *Objective) terms(t int, slots []int) Breakdown {
	m := o.m
	var b Breakdown
	n := len(slots)
	if o.eq {
		dev := n - m.gradeTargets[m.gradeOf[t]]
		if dev < 0 {
			dev = -dev
		}
		b.QuotaDeviation = int64(dev)
	} else if n > m.floors[t] {
		b.QuotaExcess = int64(n - m.floors[t])
	}

	firstDay, lastDay := -1, -1
	for i := 0; i < n; {
		day := m.slotDay[slots[i]]
		j := i
		morning, afternoon := false, false
		for ; j < n && m.slotDay[slots[j]] == day; j++ {
			s := slots[j]
			b.TieBreak += o.tie[t][s]
			if o.soft && m.wished[t][s] {
				b.PreferenceViolations++
				if m.fullDay[t][day] {
					b.FullDayViolations++
				}
			}
			if m.slotMorning[s] {
				morning = true
			} else {
				afternoon = true
			}
			if j > i && m.slotRank[s]-m.slotRank[slots[j-1]] == 1 {
				b.ConsecutivePairs++
			}
		}
		b.ActiveDays++
		if morning && afternoon {
			b.BothHalvesDays++
		}
		if j-i == 1 && len(m.slotsByDay[day]) >= 2 {
			b.IsolatedDays++
		}
		if firstDay < 0 {
			firstDay = day
		}
		lastDay = day
		i = j
	}
	if firstDay >= 0 {
		b.GapDays = int64(lastDay-firstDay+1) - b.ActiveDays
	}
	b.Total = o.weigh(b)
	return b
}

func (o *Objective) weigh(b Breakdown) int64 {
	w := o.w
	return w.QuotaExcess*b.QuotaExcess +
		w.QuotaDeviation*b.QuotaDeviation +
		w.PreferenceViolation*b.PreferenceViolations +
		w.FullDayViolation*b.FullDayViolations +
		w.ActiveDay*b.ActiveDays +
		w.GapDay*b.GapDays +
		w.BothHalvesBonus*b.BothHalvesDays +
		w.ConsecutiveBonus*b.ConsecutivePairs +
		w.IsolatedDay*b.IsolatedDays +
		b.TieBreak
}

// TeacherCost returns the weighted contribution of teacher t holding the sorted slots.
func (o *Objective) TeacherCost(t int, slots []int) int64 {
	return o.terms(t, slots).Total
}

// Evaluate sums the breakdown over all teachers; slotsOf[t] must be sorted.
func (o *Objective) Evaluate(slotsOf [][]int) Breakdown {
	var total Breakdown
	for t := range o.m.teachers {
		total.add(o.terms(t, slotsOf[t]))
	}
	return total
}
