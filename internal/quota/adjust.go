package quota

import (
	"math"
	"sort"

	"github.com/noah-isme/exam-proctor-api/internal/exam"
)

// Adjustment is the result of scaling grade quotas to a demand.
type Adjustment struct {
	Quotas  map[string]int `json:"quotas"`
	Scaling float64        `json:"scaling"`
	Total   int            `json:"total"`
	Demand  int            `json:"demand"`
	Surplus int            `json:"surplus"`
}

// AdjustToDemand scales per-grade quotas so that the total duties approach demand without
// exceeding it. Quotas are floored and the remainder is handed out one unit per grade in
// descending fractional order, only while a whole grade still fits.
func AdjustToDemand(quotas map[string]int, counts map[string]int, demand int) Adjustment {
	grades := make([]string, 0, len(counts))
	for g, n := range counts {
		if n > 0 {
			grades = append(grades, g)
		}
	}
	sort.Strings(grades)

	adj := Adjustment{Quotas: make(map[string]int, len(grades)), Demand: demand}
	if demand <= 0 || len(grades) == 0 {
		for _, g := range grades {
			adj.Quotas[g] = 0
		}
		adj.Surplus = max(demand, 0)
		return adj
	}

	base := make(map[string]float64, len(grades))
	baseTotal := 0.0
	for _, g := range grades {
		q, ok := quotas[g]
		if !ok {
			q = exam.DefaultQuotaFallback
		}
		base[g] = float64(max(q, 0))
		baseTotal += base[g] * float64(counts[g])
	}
	if baseTotal == 0 {
		for _, g := range grades {
			base[g] = 1
			baseTotal += float64(counts[g])
		}
	}
	adj.Scaling = float64(demand) / baseTotal

	remainders := make(map[string]float64, len(grades))
	for _, g := range grades {
		exact := base[g] * adj.Scaling
		floored := math.Floor(exact + 1e-9)
		adj.Quotas[g] = int(floored)
		remainders[g] = exact - floored
		adj.Total += int(floored) * counts[g]
	}

	order := append([]string(nil), grades...)
	sort.SliceStable(order, func(i, j int) bool {
		return remainders[order[i]] > remainders[order[j]]
	})
	surplus := demand - adj.Total
	for _, g := range order {
		if surplus <= 0 {
			break
		}
		if counts[g] <= surplus {
			adj.Quotas[g]++
			adj.Total += counts[g]
			surplus -= counts[g]
		}
	}
	adj.Surplus = demand - adj.Total
	return adj
}

// ScaleFloors lowers per-teacher floors proportionally so their sum equals demand, using
// largest-remainder rounding with ties broken by index. Floors already within demand are
// returned unchanged.
func ScaleFloors(floors []int, demand int) []int {
	out := append([]int(nil), floors...)
	total := 0
	for _, f := range floors {
		total += f
	}
	if total <= demand || total == 0 {
		return out
	}
	if demand <= 0 {
		for i := range out {
			out[i] = 0
		}
		return out
	}
	ratio := float64(demand) / float64(total)
	type rem struct {
		idx  int
		frac float64
	}
	rems := make([]rem, len(floors))
	assigned := 0
	for i, f := range floors {
		exact := float64(f) * ratio
		out[i] = int(math.Floor(exact + 1e-9))
		assigned += out[i]
		rems[i] = rem{idx: i, frac: exact - float64(out[i])}
	}
	sort.SliceStable(rems, func(i, j int) bool { return rems[i].frac > rems[j].frac })
	for k := 0; assigned < demand && k < len(rems); k++ {
		out[rems[k].idx]++
		assigned++
	}
	return out
}
