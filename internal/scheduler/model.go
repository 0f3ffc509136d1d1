package scheduler

import (
	"fmt"
	"sort"

	"github.com/noah-isme/exam-proctor-api/internal/exam"
	"github.com/noah-isme/exam-proctor-api/internal/quota"
)

// Input is the normalised snapshot a solve runs on.
type Input struct {
	Teachers    []exam.Teacher    `json:"teachers"`
	Slots       []exam.Slot       `json:"slots"`
	Preferences []exam.Preference `json:"preferences"`
}

// relaxState records which ladder rungs have been applied to a model.
type relaxState struct {
	gradeFlex       int
	equalityDropped bool
	quotaScaled     bool
	quotaReduction  int
	preferencesSoft bool
}

// Model is the constraint model over the teacher × slot decision matrix. It is immutable;
// Relax returns a new model.
type Model struct {
	cfg      Config
	teachers []exam.Teacher
	slots    []exam.Slot

	days         []int
	slotDay      []int
	slotRank     []int
	slotMorning  []bool
	slotsByDay   [][]int
	demand       int
	baseFloors   []int
	wished       [][]bool
	fullDay      [][]bool
	declared     []int
	grades       []string
	gradeOf      []int
	gradeMembers [][]int
	gradeBase    []int

	relax relaxState

	// derived from relax
	floors          []int
	allowed         [][]bool
	allowedTeachers [][]int
	gradeTargets    []int
}

// BuildModel validates the snapshot and builds the constraint model.
func BuildModel(in Input, cfg Config) (*Model, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	teacherIdx := make(map[string]int, len(in.Teachers))
	teachers := make([]exam.Teacher, 0, len(in.Teachers))
	for _, t := range in.Teachers {
		if !t.Participates {
			continue
		}
		if _, dup := teacherIdx[t.ID]; dup {
			return nil, fmt.Errorf("duplicate teacher id %q", t.ID)
		}
		if t.Quota < 0 {
			return nil, fmt.Errorf("teacher %q has negative quota", t.ID)
		}
		teacherIdx[t.ID] = len(teachers)
		teachers = append(teachers, t)
	}

	slots := append([]exam.Slot(nil), in.Slots...)
	seenSlot := make(map[string]struct{}, len(slots))
	for _, s := range slots {
		if _, dup := seenSlot[s.ID]; dup {
			return nil, fmt.Errorf("duplicate slot id %q", s.ID)
		}
		seenSlot[s.ID] = struct{}{}
		if s.Required < 0 {
			return nil, fmt.Errorf("slot %q requires a negative supervisor count", s.ID)
		}
	}
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Day != slots[j].Day {
			return slots[i].Day < slots[j].Day
		}
		if slots[i].StartTime != slots[j].StartTime {
			return slots[i].StartTime < slots[j].StartTime
		}
		return slots[i].ID < slots[j].ID
	})

	m := &Model{cfg: cfg, teachers: teachers, slots: slots}
	m.indexDays()
	m.indexPreferences(in.Preferences, teacherIdx)
	m.indexGrades()
	m.baseFloors = make([]int, len(teachers))
	for i, t := range teachers {
		m.baseFloors[i] = t.Quota
	}
	m.relax.gradeFlex = cfg.GradeFlexibility
	m.derive()
	return m, nil
}

func (m *Model) indexDays() {
	dayPos := make(map[int]int)
	for _, s := range m.slots {
		if _, ok := dayPos[s.Day]; !ok {
			dayPos[s.Day] = len(m.days)
			m.days = append(m.days, s.Day)
		}
	}
	m.slotDay = make([]int, len(m.slots))
	m.slotRank = make([]int, len(m.slots))
	m.slotMorning = make([]bool, len(m.slots))
	m.slotsByDay = make([][]int, len(m.days))
	for i, s := range m.slots {
		d := dayPos[s.Day]
		m.slotDay[i] = d
		m.slotRank[i] = len(m.slotsByDay[d])
		m.slotMorning[i] = s.Morning()
		m.slotsByDay[d] = append(m.slotsByDay[d], i)
		m.demand += s.Required
	}
}

func (m *Model) indexPreferences(prefs []exam.Preference, teacherIdx map[string]int) {
	slotsByKey := make(map[exam.SessionKey][]int)
	for i, s := range m.slots {
		key := exam.SessionKey{Day: s.Day, Session: exam.NormalizeSession(s.Session)}
		slotsByKey[key] = append(slotsByKey[key], i)
	}
	m.wished = make([][]bool, len(m.teachers))
	m.fullDay = make([][]bool, len(m.teachers))
	m.declared = make([]int, len(m.teachers))
	for t := range m.teachers {
		m.wished[t] = make([]bool, len(m.slots))
		m.fullDay[t] = make([]bool, len(m.days))
	}
	seen := make(map[exam.Preference]struct{}, len(prefs))
	for _, p := range prefs {
		t, ok := teacherIdx[p.TeacherID]
		if !ok {
			continue
		}
		p.Session = exam.NormalizeSession(p.Session)
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		m.declared[t]++
		for _, s := range slotsByKey[p.Key()] {
			m.wished[t][s] = true
		}
	}
	for t := range m.teachers {
		for d, daySlots := range m.slotsByDay {
			full := len(daySlots) > 0
			for _, s := range daySlots {
				if !m.wished[t][s] {
					full = false
					break
				}
			}
			m.fullDay[t][d] = full
		}
	}
}

func (m *Model) indexGrades() {
	gradePos := make(map[string]int)
	for _, t := range m.teachers {
		if _, ok := gradePos[t.Grade]; !ok {
			gradePos[t.Grade] = 0
			m.grades = append(m.grades, t.Grade)
		}
	}
	sort.Strings(m.grades)
	for i, g := range m.grades {
		gradePos[g] = i
	}
	m.gradeOf = make([]int, len(m.teachers))
	m.gradeMembers = make([][]int, len(m.grades))
	sums := make([]int, len(m.grades))
	for i, t := range m.teachers {
		g := gradePos[t.Grade]
		m.gradeOf[i] = g
		m.gradeMembers[g] = append(m.gradeMembers[g], i)
		sums[g] += t.Quota
	}
	m.gradeBase = make([]int, len(m.grades))
	for g := range m.grades {
		n := len(m.gradeMembers[g])
		m.gradeBase[g] = (sums[g] + n/2) / n
	}
}

// derive recomputes the relaxation-dependent views.
func (m *Model) derive() {
	hard := m.preferenceMode() == PreferenceHard
	m.allowed = make([][]bool, len(m.teachers))
	m.allowedTeachers = make([][]int, len(m.slots))
	for t := range m.teachers {
		m.allowed[t] = make([]bool, len(m.slots))
		for s := range m.slots {
			ok := !(hard && m.wished[t][s])
			m.allowed[t][s] = ok
			if ok {
				m.allowedTeachers[s] = append(m.allowedTeachers[s], t)
			}
		}
	}

	floors := append([]int(nil), m.baseFloors...)
	if m.relax.quotaScaled {
		floors = quota.ScaleFloors(floors, m.demand)
	}
	for i := range floors {
		floors[i] = max(0, floors[i]-m.relax.quotaReduction)
	}
	m.floors = floors

	m.gradeTargets = nil
	if m.quotaMode() == QuotaStrictEquality {
		base := make(map[string]int, len(m.grades))
		counts := make(map[string]int, len(m.grades))
		for g, name := range m.grades {
			base[name] = m.gradeBase[g]
			counts[name] = len(m.gradeMembers[g])
		}
		adj := quota.AdjustToDemand(base, counts, m.demand)
		m.gradeTargets = make([]int, len(m.grades))
		for g, name := range m.grades {
			m.gradeTargets[g] = adj.Quotas[name]
		}
	}
}

func (m *Model) clone() *Model {
	c := *m
	return &c
}

func (m *Model) preferenceMode() PreferenceMode {
	if m.relax.preferencesSoft {
		return PreferenceSoft
	}
	return m.cfg.PreferenceMode
}

func (m *Model) quotaMode() GradeQuotaMode {
	if m.relax.equalityDropped {
		return QuotaMinimum
	}
	return m.cfg.GradeQuotaMode
}

// Demand is the total number of supervisor seats to fill.
func (m *Model) Demand() int { return m.demand }

// Teachers returns the participating teachers in model order.
func (m *Model) Teachers() []exam.Teacher { return m.teachers }

// Slots returns the slots in model order (day, start time, id).
func (m *Model) Slots() []exam.Slot { return m.slots }

// Floor returns the effective quota floor of teacher t in minimum mode.
func (m *Model) Floor(t int) int { return m.floors[t] }

// gradeBounds returns the allowed per-teacher count range of grade g in equality mode.
func (m *Model) gradeBounds(g int) (int, int) {
	target := m.gradeTargets[g]
	lo := max(1, target-m.relax.gradeFlex)
	hi := target + m.relax.gradeFlex
	for _, t := range m.gradeMembers[g] {
		hi = min(hi, m.teacherCapacity(t))
	}
	return lo, hi
}

// teacherCapacity bounds how many slots a teacher can take given daily caps and exclusions.
func (m *Model) teacherCapacity(t int) int {
	total := 0
	for _, daySlots := range m.slotsByDay {
		n := 0
		for _, s := range daySlots {
			if m.allowed[t][s] {
				n++
			}
		}
		total += min(n, m.cfg.MaxSessionsPerDay)
	}
	return total
}

// forced reports whether every slot has exactly as many eligible teachers as it requires,
// which leaves a single candidate assignment.
func (m *Model) forced() bool {
	for s, slot := range m.slots {
		if len(m.allowedTeachers[s]) != slot.Required {
			return false
		}
	}
	return true
}
