package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	mk "github.com/gitrdm/gokanlogic/pkg/minikanren"
)

// Finite-domain booleans take 1 for false and 2 for true, and counts are shifted by one the
// same way, since domains start at 1.
const (
	fdFalse = 1
	fdTrue  = 2
)

type exactVerdict int

const (
	exactUnknown exactVerdict = iota
	exactFeasible
	exactInfeasible
)

func (v exactVerdict) String() string {
	switch v {
	case exactFeasible:
		return "feasible"
	case exactInfeasible:
		return "infeasible"
	}
	return "unknown"
}

// exactResult is the verdict of the finite-domain check. slotsOf is set when feasible.
type exactResult struct {
	verdict exactVerdict
	slotsOf [][]int
	cells   int
}

type fdCell struct {
	teacher int
	slot    int
	v       *mk.FDVariable
}

// fdModel mirrors the hard constraints of a Model: one boolean per allowed cell, exact
// coverage per slot, the daily cap per teacher and day, and the quota floors or the grade
// equality counts.
type fdModel struct {
	m     *Model
	fd    *mk.Model
	cells []fdCell
}

func (c *fdModel) boolean(t, s int) *mk.FDVariable {
	v := c.fd.NewVariableWithName(mk.NewBitSetDomain(fdTrue), fmt.Sprintf("x[%s,%s]", c.m.teachers[t].ID, c.m.slots[s].ID))
	c.cells = append(c.cells, fdCell{teacher: t, slot: s, v: v})
	return v
}

// count adds a variable holding how many of vars are true, restricted to counts.
func (c *fdModel) count(name string, vars []*mk.FDVariable, counts []int) (*mk.FDVariable, error) {
	values := make([]int, 0, len(counts))
	for _, n := range counts {
		if n >= 0 && n <= len(vars) {
			values = append(values, n+1)
		}
	}
	total := c.fd.NewVariableWithName(mk.NewBitSetDomainFromValues(len(vars)+1, values), name)
	if err := c.sum(name, vars, total); err != nil {
		return nil, err
	}
	return total, nil
}

func (c *fdModel) sum(name string, vars []*mk.FDVariable, total *mk.FDVariable) error {
	constraint, err := mk.NewBoolSum(vars, total)
	if err != nil {
		return fmt.Errorf("bool sum %s: %w", name, err)
	}
	c.fd.AddConstraint(constraint)
	return nil
}

func between(lo, hi int) []int {
	out := make([]int, 0, max(0, hi-lo+1))
	for n := lo; n <= hi; n++ {
		out = append(out, n)
	}
	return out
}

// finiteDomain builds the model. ok=false means a constraint is unsatisfiable before any
// search, such as a slot with fewer eligible teachers than it requires.
func (m *Model) finiteDomain() (*fdModel, bool, error) {
	c := &fdModel{m: m, fd: mk.NewModel()}
	limit := m.cfg.MaxSessionsPerDay

	byTeacher := make([][]*mk.FDVariable, len(m.teachers))
	bySlot := make([][]*mk.FDVariable, len(m.slots))
	for t := range m.teachers {
		for d, daySlots := range m.slotsByDay {
			var day []*mk.FDVariable
			for _, s := range daySlots {
				if !m.allowed[t][s] {
					continue
				}
				v := c.boolean(t, s)
				day = append(day, v)
				bySlot[s] = append(bySlot[s], v)
			}
			if len(day) > limit {
				name := fmt.Sprintf("day[%s,%d]", m.teachers[t].ID, m.days[d])
				if _, err := c.count(name, day, between(0, limit)); err != nil {
					return nil, false, err
				}
			}
			byTeacher[t] = append(byTeacher[t], day...)
		}
	}

	for s, slot := range m.slots {
		if len(bySlot[s]) < slot.Required {
			return c, false, nil
		}
		if len(bySlot[s]) == 0 {
			continue
		}
		if _, err := c.count("cover["+slot.ID+"]", bySlot[s], []int{slot.Required}); err != nil {
			return nil, false, err
		}
	}

	if m.quotaMode() != QuotaStrictEquality {
		for t, vars := range byTeacher {
			floor := m.floors[t]
			if floor == 0 {
				continue
			}
			if floor > m.teacherCapacity(t) {
				return c, false, nil
			}
			if _, err := c.count("quota["+m.teachers[t].ID+"]", vars, between(floor, len(vars))); err != nil {
				return nil, false, err
			}
		}
		return c, true, nil
	}

	for g, members := range m.gradeMembers {
		lo, hi := m.gradeBounds(g)
		if lo > hi {
			return c, false, nil
		}
		name := "grade[" + m.grades[g] + "]"
		total := c.fd.NewVariableWithName(mk.NewBitSetDomainFromValues(hi+1, between(lo+1, hi+1)), name)
		for _, t := range members {
			if len(byTeacher[t]) < lo {
				return c, false, nil
			}
			if err := c.sum(name, byTeacher[t], total); err != nil {
				return nil, false, err
			}
		}
	}
	return c, true, nil
}

// solveExact asks the finite-domain solver for one assignment meeting every hard constraint
// of m. It gives up with exactUnknown when the model exceeds the configured cell limit or
// the check budget runs out; only cancellation of ctx is returned as an error.
func (m *Model) solveExact(ctx context.Context, deadline time.Time) (exactResult, error) {
	if err := ctx.Err(); err != nil {
		return exactResult{}, err
	}
	limit := m.cfg.ExactCellLimit
	if limit < 0 {
		return exactResult{verdict: exactUnknown}, nil
	}
	cells := 0
	for _, list := range m.allowedTeachers {
		cells += len(list)
	}
	if cells > limit {
		return exactResult{verdict: exactUnknown, cells: cells}, nil
	}

	c, ok, err := m.finiteDomain()
	if err != nil {
		return exactResult{}, err
	}
	if !ok {
		return exactResult{verdict: exactInfeasible, cells: cells}, nil
	}

	stop := time.Now().Add(m.cfg.ExactCheckBudget)
	if !deadline.IsZero() && deadline.Before(stop) {
		stop = deadline
	}
	checkCtx, cancel := context.WithDeadline(ctx, stop)
	defer cancel()

	solutions, err := mk.NewSolver(c.fd).Solve(checkCtx, 1)
	if len(solutions) > 0 {
		return exactResult{verdict: exactFeasible, slotsOf: c.extract(solutions[0]), cells: cells}, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return exactResult{}, ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) || checkCtx.Err() != nil {
			return exactResult{verdict: exactUnknown, cells: cells}, nil
		}
		return exactResult{}, fmt.Errorf("finite-domain solve: %w", err)
	}
	return exactResult{verdict: exactInfeasible, cells: cells}, nil
}

func (c *fdModel) extract(solution []int) [][]int {
	slotsOf := make([][]int, len(c.m.teachers))
	for _, cell := range c.cells {
		if solution[cell.v.ID()] == fdTrue {
			slotsOf[cell.teacher] = append(slotsOf[cell.teacher], cell.slot)
		}
	}
	return slotsOf
}

// phaseOne wraps a finite-domain assignment so the improvement phase can start from it.
func (r exactResult) phaseOne(m *Model) *phaseOne {
	first := &phaseOne{slotsOf: r.slotsOf, exact: true}
	if m.quotaMode() == QuotaStrictEquality {
		first.gradeCounts = make([]int, len(m.grades))
		for g, members := range m.gradeMembers {
			if len(members) > 0 {
				first.gradeCounts[g] = len(r.slotsOf[members[0]])
			}
		}
	}
	return first
}
