package scheduler

import "math"

// lowerBound returns a value no assignment of the model can go below, when one is known.
// The linear terms are bounded by the phase-one flow, which is their exact minimum in
// minimum mode as long as no linear weight is negative; the day-pattern terms are bounded
// per teacher over every count the teacher may hold.
func lowerBound(found *attempt) (int64, bool) {
	m, o := found.model, found.obj
	w := o.w
	if w.PreferenceViolation < 0 || w.FullDayViolation < 0 {
		return 0, false
	}

	var bound int64
	if o.eq {
		bound = int64(m.demand) * w.TieBreakMin
	} else {
		if found.first.exact || w.QuotaExcess < 0 {
			return 0, false
		}
		bound = found.first.stats.cost
	}

	for t := range m.teachers {
		lo, hi := m.floors[t], m.teacherCapacity(t)
		if o.eq {
			lo, hi = m.gradeBounds(m.gradeOf[t])
		}
		if lo > hi {
			return 0, false
		}
		best := int64(math.MaxInt64)
		for n := lo; n <= hi; n++ {
			best = min(best, o.patternFloor(t, n))
		}
		bound += best
	}
	return bound, true
}

// patternFloor bounds from below the terms of teacher t that depend on how its n slots are
// spread over days, plus the grade deviation in equality mode.
func (o *Objective) patternFloor(t, n int) int64 {
	m, w := o.m, o.w
	var f int64
	if o.eq {
		dev := n - m.gradeTargets[m.gradeOf[t]]
		if dev < 0 {
			dev = -dev
		}
		f += w.QuotaDeviation * int64(dev)
	}
	if n == 0 {
		return f
	}

	var days int64
	for _, daySlots := range m.slotsByDay {
		for _, s := range daySlots {
			if m.allowed[t][s] {
				days++
				break
			}
		}
	}
	held := int64(n)
	limit := int64(m.cfg.MaxSessionsPerDay)
	fewestDays := (held + limit - 1) / limit

	if w.ActiveDay >= 0 {
		f += w.ActiveDay * fewestDays
	} else {
		f += w.ActiveDay * min(held, days)
	}
	if w.GapDay < 0 {
		f += w.GapDay * days
	}
	if w.IsolatedDay < 0 {
		f += w.IsolatedDay * min(held, days)
	}
	if w.BothHalvesBonus < 0 {
		f += w.BothHalvesBonus * min(held/2, days)
	}
	if w.ConsecutiveBonus < 0 {
		f += w.ConsecutiveBonus * (held - fewestDays)
	}
	return f
}
