package scheduler

import (
	"errors"
	"fmt"
	"sort"

	"github.com/noah-isme/exam-proctor-api/internal/exam"
)

// CheckAssignment verifies an assignment produced outside the solver, typically a manual
// edit of a published one, against the hard constraints of the model built from in and
// cfg with the given relaxations applied. Violations come back as an
// *AssignmentIntegrityError; unknown or non-participating teachers and unknown slots are
// violations too.
func CheckAssignment(in Input, cfg Config, relaxations []RelaxationStep, a exam.Assignment) error {
	m, err := BuildModel(in, cfg)
	if err != nil {
		return err
	}
	for _, step := range relaxations {
		m = m.Relax(step)
	}

	teacherIdx := make(map[string]int, len(m.teachers))
	for i, t := range m.teachers {
		teacherIdx[t.ID] = i
	}
	slotIdx := make(map[string]int, len(m.slots))
	for i, s := range m.slots {
		slotIdx[s.ID] = i
	}

	var unknown []string
	slotsOf := make([][]int, len(m.teachers))
	for teacherID, slotIDs := range a {
		t, ok := teacherIdx[teacherID]
		if !ok {
			unknown = append(unknown, fmt.Sprintf("teacher %s is not a participating supervisor", teacherID))
			continue
		}
		for _, id := range slotIDs {
			s, ok := slotIdx[id]
			if !ok {
				unknown = append(unknown, fmt.Sprintf("slot %s does not exist", id))
				continue
			}
			slotsOf[t] = append(slotsOf[t], s)
		}
		sort.Ints(slotsOf[t])
	}

	err = checkIntegrity(m, slotsOf)
	if len(unknown) == 0 {
		return err
	}
	violations := unknown
	var integrity *AssignmentIntegrityError
	if errors.As(err, &integrity) {
		violations = append(violations, integrity.Violations...)
	}
	sort.Strings(violations)
	return &AssignmentIntegrityError{Violations: violations}
}
