package exam

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrDutyNotHeld means an edit names a duty the teacher does not hold.
	ErrDutyNotHeld = errors.New("duty not held")
	// ErrDutyAlreadyHeld means an edit would give a teacher a slot they already supervise.
	ErrDutyAlreadyHeld = errors.New("duty already held")
)

// Has reports whether the teacher supervises the slot.
func (a Assignment) Has(teacherID, slotID string) bool {
	list := a[teacherID]
	idx := sort.SearchStrings(list, slotID)
	return idx < len(list) && list[idx] == slotID
}

// Remove drops a (teacher, slot) pair; it reports whether the pair was present.
func (a Assignment) Remove(teacherID, slotID string) bool {
	list := a[teacherID]
	idx := sort.SearchStrings(list, slotID)
	if idx == len(list) || list[idx] != slotID {
		return false
	}
	list = append(list[:idx], list[idx+1:]...)
	if len(list) == 0 {
		delete(a, teacherID)
		return true
	}
	a[teacherID] = list
	return true
}

// Reassign moves slotID from one teacher to another. The receiver is left untouched on error.
func (a Assignment) Reassign(slotID, fromID, toID string) error {
	if !a.Has(fromID, slotID) {
		return fmt.Errorf("teacher %s, slot %s: %w", fromID, slotID, ErrDutyNotHeld)
	}
	if a.Has(toID, slotID) {
		return fmt.Errorf("teacher %s, slot %s: %w", toID, slotID, ErrDutyAlreadyHeld)
	}
	a.Remove(fromID, slotID)
	a.Add(toID, slotID)
	return nil
}

// Swap exchanges two duties: x's teacher takes y's slot and the other way round. Swapping
// within one teacher or within one slot is a no-op and rejected.
func (a Assignment) Swap(x, y Pair) error {
	if x.TeacherID == y.TeacherID || x.SlotID == y.SlotID {
		return fmt.Errorf("swap needs two teachers and two slots, got %s/%s and %s/%s", x.TeacherID, x.SlotID, y.TeacherID, y.SlotID)
	}
	for _, p := range []Pair{x, y} {
		if !a.Has(p.TeacherID, p.SlotID) {
			return fmt.Errorf("teacher %s, slot %s: %w", p.TeacherID, p.SlotID, ErrDutyNotHeld)
		}
	}
	if a.Has(x.TeacherID, y.SlotID) {
		return fmt.Errorf("teacher %s, slot %s: %w", x.TeacherID, y.SlotID, ErrDutyAlreadyHeld)
	}
	if a.Has(y.TeacherID, x.SlotID) {
		return fmt.Errorf("teacher %s, slot %s: %w", y.TeacherID, x.SlotID, ErrDutyAlreadyHeld)
	}
	a.Remove(x.TeacherID, x.SlotID)
	a.Remove(y.TeacherID, y.SlotID)
	a.Add(x.TeacherID, y.SlotID)
	a.Add(y.TeacherID, x.SlotID)
	return nil
}
