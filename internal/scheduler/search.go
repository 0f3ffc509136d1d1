package scheduler

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/mroth/weightedrand/v2"
	"golang.org/x/sync/errgroup"
)

const (
	budgetCheckEvery   = 128
	chooserRebuildStep = 256
	maxChoiceWeight    = 1 << 40
)

// searchState is one worker's mutable copy of an assignment.
type searchState struct {
	m       *Model
	o       *Objective
	slotsOf [][]int
	has     [][]bool
	dayLoad [][]int
	cost    []int64
	total   int64

	bufA []int
	bufB []int
}

func newSearchState(m *Model, o *Objective, start [][]int) *searchState {
	st := &searchState{
		m:       m,
		o:       o,
		slotsOf: make([][]int, len(m.teachers)),
		has:     make([][]bool, len(m.teachers)),
		dayLoad: make([][]int, len(m.teachers)),
		cost:    make([]int64, len(m.teachers)),
	}
	for t := range m.teachers {
		st.slotsOf[t] = append([]int(nil), start[t]...)
		st.has[t] = make([]bool, len(m.slots))
		st.dayLoad[t] = make([]int, len(m.days))
		for _, s := range st.slotsOf[t] {
			st.has[t][s] = true
			st.dayLoad[t][m.slotDay[s]]++
		}
		st.cost[t] = o.TeacherCost(t, st.slotsOf[t])
		st.total += st.cost[t]
	}
	return st
}

func (st *searchState) snapshot() [][]int {
	out := make([][]int, len(st.slotsOf))
	for t, list := range st.slotsOf {
		out[t] = append([]int(nil), list...)
	}
	return out
}

// withSwapped writes list minus remove plus add (either may be -1) into dst, keeping order.
func withSwapped(dst, list []int, remove, add int) []int {
	dst = dst[:0]
	inserted := add < 0
	for _, v := range list {
		if v == remove {
			continue
		}
		if !inserted && add < v {
			dst = append(dst, add)
			inserted = true
		}
		dst = append(dst, v)
	}
	if !inserted {
		dst = append(dst, add)
	}
	return dst
}

// move describes teacher a handing slot sa to teacher b, optionally taking sb back.
type move struct {
	a, b   int
	sa, sb int
}

func (st *searchState) feasibleMove(mv move) bool {
	m := st.m
	if mv.a == mv.b || !st.has[mv.a][mv.sa] || st.has[mv.b][mv.sa] || !m.allowed[mv.b][mv.sa] {
		return false
	}
	limit := m.cfg.MaxSessionsPerDay
	dayA := m.slotDay[mv.sa]
	if mv.sb < 0 {
		if len(st.slotsOf[mv.a])-1 < m.floors[mv.a] {
			return false
		}
		return st.dayLoad[mv.b][dayA] < limit
	}
	if !st.has[mv.b][mv.sb] || st.has[mv.a][mv.sb] || !m.allowed[mv.a][mv.sb] {
		return false
	}
	dayB := m.slotDay[mv.sb]
	if dayA == dayB {
		return true
	}
	return st.dayLoad[mv.a][dayB] < limit && st.dayLoad[mv.b][dayA] < limit
}

// delta prices a feasible move into the scratch buffers without committing it.
func (st *searchState) delta(mv move) int64 {
	st.bufA = withSwapped(st.bufA, st.slotsOf[mv.a], mv.sa, mv.sb)
	st.bufB = withSwapped(st.bufB, st.slotsOf[mv.b], mv.sb, mv.sa)
	return st.o.TeacherCost(mv.a, st.bufA) + st.o.TeacherCost(mv.b, st.bufB) - st.cost[mv.a] - st.cost[mv.b]
}

// commit applies the move last priced by delta.
func (st *searchState) commit(mv move, d int64) {
	st.slotsOf[mv.a] = append(st.slotsOf[mv.a][:0], st.bufA...)
	st.slotsOf[mv.b] = append(st.slotsOf[mv.b][:0], st.bufB...)
	st.transfer(mv.a, mv.b, mv.sa)
	if mv.sb >= 0 {
		st.transfer(mv.b, mv.a, mv.sb)
	}
	st.cost[mv.a] = st.o.TeacherCost(mv.a, st.slotsOf[mv.a])
	st.cost[mv.b] = st.o.TeacherCost(mv.b, st.slotsOf[mv.b])
	st.total += d
}

func (st *searchState) transfer(from, to, s int) {
	day := st.m.slotDay[s]
	st.has[from][s] = false
	st.has[to][s] = true
	st.dayLoad[from][day]--
	st.dayLoad[to][day]++
}

// chooser favours expensive teachers as the giving side of a move.
func (st *searchState) chooser() (*weightedrand.Chooser[int, int64], error) {
	minCost := int64(math.MaxInt64)
	for t, c := range st.cost {
		if len(st.slotsOf[t]) > 0 {
			minCost = min(minCost, c)
		}
	}
	choices := make([]weightedrand.Choice[int, int64], 0, len(st.cost))
	for t, c := range st.cost {
		if len(st.slotsOf[t]) == 0 {
			continue
		}
		weight := min(c-minCost+1, maxChoiceWeight)
		choices = append(choices, weightedrand.NewChoice(t, weight))
	}
	return weightedrand.NewChooser(choices...)
}

type searchResult struct {
	slotsOf    [][]int
	total      int64
	iterations int64
}

// anneal improves start by simulated annealing over reassign and swap moves. It stops
// after the configured iterations, at the deadline, or with the context error.
func (st *searchState) anneal(ctx context.Context, deadline time.Time, rng *rand.Rand, iterations int) (searchResult, error) {
	m := st.m
	best := searchResult{slotsOf: st.snapshot(), total: st.total}
	if iterations <= 0 || m.demand == 0 || len(m.teachers) < 2 {
		return best, nil
	}

	w := st.o.w
	t0 := float64(max(absInt64(w.GapDay), absInt64(w.IsolatedDay), absInt64(w.ActiveDay), absInt64(w.BothHalvesBonus))) / 2
	t0 = math.Max(t0, 1)
	const tEnd = 0.5
	reassign := m.quotaMode() != QuotaStrictEquality

	var pick *weightedrand.Chooser[int, int64]
	for it := 0; it < iterations; it++ {
		if it%budgetCheckEvery == 0 {
			if err := checkBudget(ctx, deadline); err != nil {
				if errors.Is(err, errDeadline) {
					break
				}
				return best, err
			}
		}
		if it%chooserRebuildStep == 0 {
			c, err := st.chooser()
			if err != nil {
				break
			}
			pick = c
		}
		best.iterations++

		a := pick.PickSource(rng)
		if len(st.slotsOf[a]) == 0 {
			continue
		}
		sa := st.slotsOf[a][rng.Intn(len(st.slotsOf[a]))]
		candidates := m.allowedTeachers[sa]
		b := candidates[rng.Intn(len(candidates))]
		mv := move{a: a, b: b, sa: sa, sb: -1}
		if !reassign || rng.Intn(2) == 0 {
			if len(st.slotsOf[b]) == 0 {
				continue
			}
			mv.sb = st.slotsOf[b][rng.Intn(len(st.slotsOf[b]))]
		}
		if !st.feasibleMove(mv) {
			continue
		}

		d := st.delta(mv)
		temp := t0 * math.Pow(tEnd/t0, float64(it)/float64(iterations))
		if d <= 0 || rng.Float64() < math.Exp(-float64(d)/temp) {
			st.commit(mv, d)
			if st.total < best.total {
				best.total = st.total
				best.slotsOf = st.snapshot()
			}
		}
	}
	return best, nil
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// improve runs the configured number of annealing workers from start and keeps the best
// outcome; ties go to the lowest worker index so a fixed seed stays reproducible.
func improve(ctx context.Context, deadline time.Time, o *Objective, start [][]int, seed int64) (searchResult, error) {
	m := o.m
	workers := m.cfg.NumWorkers
	results := make([]searchResult, workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seed + int64(i)*1_000_003))
			st := newSearchState(m, o, start)
			res, err := st.anneal(gctx, deadline, rng, m.cfg.IterationsPerWorker)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return searchResult{}, err
	}

	best := results[0]
	var iterations int64
	for i, r := range results {
		iterations += r.iterations
		if i > 0 && r.total < best.total {
			best = r
		}
	}
	best.iterations = iterations
	return best, nil
}
