package scheduler

import (
	"context"
	"sort"
	"time"
)

const gradeEnumerationCap = 4096

type cellEdge struct {
	teacher int
	slot    int
	edge    int
}

type phaseOne struct {
	slotsOf     [][]int
	gradeCounts []int
	stats       flowStats
	// exact marks an assignment taken from the finite-domain check; stats are empty then.
	exact bool
}

// network builds the flow network of the model. counts fixes every teacher's total
// (grade-equality mode); nil uses quota floors with excess priced at the quota weight.
func (m *Model) network(o *Objective, counts []int) (*flowNetwork, []cellEdge) {
	const source, sink = 0, 1
	teacherBase := 2
	slotBase := teacherBase + len(m.teachers)
	g := newFlowNetwork(slotBase + len(m.slots))
	excessCost := max(0, o.w.QuotaExcess)

	cells := make([]cellEdge, 0, len(m.teachers)*len(m.slots)/2)
	for t := range m.teachers {
		node := teacherBase + t
		if counts != nil {
			g.addEdge(source, node, counts[t], counts[t], 0)
		} else {
			capacity := m.teacherCapacity(t)
			floor := m.floors[t]
			if floor > 0 {
				g.addEdge(source, node, floor, floor, 0)
			}
			if capacity > floor {
				g.addEdge(source, node, 0, capacity-floor, excessCost)
			}
		}
		for _, daySlots := range m.slotsByDay {
			dayNode := -1
			for _, s := range daySlots {
				if !m.allowed[t][s] {
					continue
				}
				if dayNode < 0 {
					dayNode = g.addNode()
					g.addEdge(node, dayNode, 0, m.cfg.MaxSessionsPerDay, 0)
				}
				id := g.addEdge(dayNode, slotBase+s, 0, 1, max(0, o.cellCost(t, s)))
				cells = append(cells, cellEdge{teacher: t, slot: s, edge: id})
			}
		}
	}
	for s, slot := range m.slots {
		g.addEdge(slotBase+s, sink, slot.Required, slot.Required, 0)
	}
	g.addEdge(sink, source, 0, flowInf, 0)
	return g, cells
}

func (m *Model) extract(g *flowNetwork, cells []cellEdge) [][]int {
	slotsOf := make([][]int, len(m.teachers))
	for _, c := range cells {
		if g.flow(c.edge) > 0 {
			slotsOf[c.teacher] = append(slotsOf[c.teacher], c.slot)
		}
	}
	return slotsOf
}

// findFeasible runs phase one: the cheapest assignment with respect to the linear terms,
// or ok=false when the hard constraints cannot be met.
func (m *Model) findFeasible(ctx context.Context, deadline time.Time, o *Objective) (*phaseOne, bool, error) {
	if m.quotaMode() != QuotaStrictEquality {
		floorTotal := 0
		for _, f := range m.floors {
			floorTotal += f
		}
		if floorTotal > m.demand {
			return nil, false, nil
		}
		g, cells := m.network(o, nil)
		ok, stats, err := g.solve(ctx, deadline)
		if err != nil || !ok {
			return &phaseOne{stats: stats}, false, err
		}
		return &phaseOne{slotsOf: m.extract(g, cells), stats: stats}, true, nil
	}

	var total flowStats
	for _, vector := range m.gradeCandidates(m.cfg.MaxGradeCandidates) {
		counts := make([]int, len(m.teachers))
		for t := range m.teachers {
			counts[t] = vector[m.gradeOf[t]]
		}
		g, cells := m.network(o, counts)
		ok, stats, err := g.solve(ctx, deadline)
		total.augmentations += stats.augmentations
		if err != nil {
			return &phaseOne{stats: total}, false, err
		}
		if ok {
			total.cost = stats.cost
			return &phaseOne{slotsOf: m.extract(g, cells), gradeCounts: vector, stats: total}, true, nil
		}
	}
	return &phaseOne{stats: total}, false, nil
}

// gradeCandidates enumerates per-grade count vectors with Σ n_g·c_g = demand inside the
// current window, closest to the targets first.
func (m *Model) gradeCandidates(limit int) [][]int {
	G := len(m.grades)
	if G == 0 {
		if m.demand == 0 {
			return [][]int{{}}
		}
		return nil
	}
	lo := make([]int, G)
	hi := make([]int, G)
	for g := range m.grades {
		lo[g], hi[g] = m.gradeBounds(g)
		if lo[g] > hi[g] {
			return nil
		}
	}
	size := func(g int) int { return len(m.gradeMembers[g]) }
	sufMin := make([]int, G+1)
	sufMax := make([]int, G+1)
	for g := G - 1; g >= 0; g-- {
		sufMin[g] = sufMin[g+1] + size(g)*lo[g]
		sufMax[g] = sufMax[g+1] + size(g)*hi[g]
	}

	var out [][]int
	current := make([]int, G)
	var walk func(g, remaining int)
	walk = func(g, remaining int) {
		if len(out) >= gradeEnumerationCap {
			return
		}
		if g == G {
			if remaining == 0 {
				out = append(out, append([]int(nil), current...))
			}
			return
		}
		for _, c := range valuesByDistance(lo[g], hi[g], m.gradeTargets[g]) {
			rest := remaining - size(g)*c
			if rest < sufMin[g+1] || rest > sufMax[g+1] {
				continue
			}
			current[g] = c
			walk(g+1, rest)
		}
	}
	walk(0, m.demand)

	deviation := func(v []int) int {
		d := 0
		for g, c := range v {
			diff := c - m.gradeTargets[g]
			if diff < 0 {
				diff = -diff
			}
			d += size(g) * diff
		}
		return d
	}
	sort.SliceStable(out, func(i, j int) bool { return deviation(out[i]) < deviation(out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func valuesByDistance(lo, hi, target int) []int {
	out := make([]int, 0, hi-lo+1)
	for d := 0; len(out) < hi-lo+1; d++ {
		if v := target - d; v >= lo && v <= hi {
			out = append(out, v)
		}
		if v := target + d; d > 0 && v >= lo && v <= hi {
			out = append(out, v)
		}
	}
	return out
}
