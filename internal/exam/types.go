package exam

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultQuotaFallback is applied to teachers whose grade has no configured quota.
const DefaultQuotaFallback = 5

// DefaultSupervisorsPerRoom multiplies room count into the required supervisor count.
const DefaultSupervisorsPerRoom = 2

// Teacher is a supervisor candidate.
type Teacher struct {
	ID           string `json:"id"`
	Code         string `json:"code,omitempty"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email,omitempty"`
	Grade        string `json:"grade"`
	Quota        int    `json:"quota"`
	Participates bool   `json:"participates"`
}

// FullName renders "first last" trimmed.
func (t Teacher) FullName() string {
	return strings.TrimSpace(t.FirstName + " " + t.LastName)
}

// Slot is one exam time unit (all rooms sharing a date and start time).
type Slot struct {
	ID           string   `json:"id"`
	Date         string   `json:"date"`
	Day          int      `json:"day"`
	StartTime    string   `json:"startTime"`
	EndTime      string   `json:"endTime,omitempty"`
	Session      string   `json:"session"`
	SessionIndex int      `json:"sessionIndex"`
	Rooms        []string `json:"rooms"`
	Required     int      `json:"required"`
	Responsible  []string `json:"responsible,omitempty"`
}

// Morning reports whether the slot starts before noon.
func (s Slot) Morning() bool {
	return s.StartTime < "12:00"
}

// StartMinutes returns the start time as minutes since midnight, or -1 when unparsable.
func (s Slot) StartMinutes() int {
	var h, m int
	if _, err := fmt.Sscanf(s.StartTime, "%d:%d", &h, &m); err != nil {
		return -1
	}
	return h*60 + m
}

// WithSupervisorsPerRoom returns a copy with Required recomputed.
func (s Slot) WithSupervisorsPerRoom(perRoom int) Slot {
	if perRoom <= 0 {
		perRoom = DefaultSupervisorsPerRoom
	}
	s.Rooms = append([]string(nil), s.Rooms...)
	s.Required = len(s.Rooms) * perRoom
	return s
}

// Preference marks a (day, session) the teacher wishes to avoid.
type Preference struct {
	TeacherID string `json:"teacherId"`
	Day       int    `json:"day"`
	Session   string `json:"session"`
}

// Key identifies the (day, session) pair a preference targets.
func (p Preference) Key() SessionKey {
	return SessionKey{Day: p.Day, Session: p.Session}
}

// SessionKey identifies one session of one exam day.
type SessionKey struct {
	Day     int
	Session string
}

// Key returns the slot's (day, session) pair.
func (s Slot) Key() SessionKey {
	return SessionKey{Day: s.Day, Session: s.Session}
}

// Assignment maps teacher ID to the sorted list of supervised slot IDs.
type Assignment map[string][]string

// Add records a (teacher, slot) pair, keeping slot IDs sorted and unique.
func (a Assignment) Add(teacherID, slotID string) {
	list := a[teacherID]
	idx := sort.SearchStrings(list, slotID)
	if idx < len(list) && list[idx] == slotID {
		return
	}
	list = append(list, "")
	copy(list[idx+1:], list[idx:])
	list[idx] = slotID
	a[teacherID] = list
}

// Count returns how many slots the teacher supervises.
func (a Assignment) Count(teacherID string) int {
	return len(a[teacherID])
}

// BySlot inverts the assignment into slot ID -> sorted teacher IDs.
func (a Assignment) BySlot() map[string][]string {
	out := make(map[string][]string)
	for teacherID, slots := range a {
		for _, slotID := range slots {
			out[slotID] = append(out[slotID], teacherID)
		}
	}
	for slotID := range out {
		sort.Strings(out[slotID])
	}
	return out
}

// Pair is one (teacher, slot) supervision duty.
type Pair struct {
	TeacherID string `json:"teacherId" csv:"teacher_id"`
	SlotID    string `json:"slotId" csv:"slot_id"`
}

// Pairs flattens the assignment ordered by teacher then slot.
func (a Assignment) Pairs() []Pair {
	teacherIDs := make([]string, 0, len(a))
	for id := range a {
		teacherIDs = append(teacherIDs, id)
	}
	sort.Strings(teacherIDs)
	out := make([]Pair, 0)
	for _, id := range teacherIDs {
		for _, slotID := range a[id] {
			out = append(out, Pair{TeacherID: id, SlotID: slotID})
		}
	}
	return out
}

// Clone deep-copies the assignment.
func (a Assignment) Clone() Assignment {
	out := make(Assignment, len(a))
	for id, slots := range a {
		out[id] = append([]string(nil), slots...)
	}
	return out
}

// FromPairs rebuilds an assignment from flattened pairs.
func FromPairs(pairs []Pair) Assignment {
	out := make(Assignment)
	for _, p := range pairs {
		out.Add(p.TeacherID, p.SlotID)
	}
	return out
}

// GradeQuotas maps a grade code to the minimum number of duties.
type GradeQuotas map[string]int

// DefaultGradeQuotas returns a fresh copy of the standard grade table.
func DefaultGradeQuotas() GradeQuotas {
	return GradeQuotas{
		"PR":  4,
		"MC":  4,
		"MA":  7,
		"AS":  8,
		"AC":  9,
		"PTC": 9,
		"PES": 9,
		"EX":  3,
		"V":   4,
	}
}

// QuotaFor resolves the quota for a grade, falling back to DefaultQuotaFallback.
func (q GradeQuotas) QuotaFor(grade string) int {
	if v, ok := q[strings.ToUpper(strings.TrimSpace(grade))]; ok {
		return v
	}
	return DefaultQuotaFallback
}

// Clone copies the table.
func (q GradeQuotas) Clone() GradeQuotas {
	out := make(GradeQuotas, len(q))
	for k, v := range q {
		out[k] = v
	}
	return out
}

// Demand sums the required supervisor count across slots.
func Demand(slots []Slot) int {
	total := 0
	for _, s := range slots {
		total += s.Required
	}
	return total
}

// ResponsibleBySlot returns the pass-through slot -> responsible teacher list.
func ResponsibleBySlot(slots []Slot) map[string][]string {
	out := make(map[string][]string, len(slots))
	for _, s := range slots {
		if len(s.Responsible) == 0 {
			continue
		}
		out[s.ID] = append([]string(nil), s.Responsible...)
	}
	return out
}
