package quota

import (
	"math"
	"sort"

	"github.com/noah-isme/exam-proctor-api/internal/exam"
)

const (
	// DefaultOverprovisioningRate is the balanced safety margin.
	DefaultOverprovisioningRate = 1.15
	// DefaultMinQuota floors every recommended quota.
	DefaultMinQuota = 3
)

// DefaultGradeWeights reflects availability differences across grades.
func DefaultGradeWeights() map[string]float64 {
	return map[string]float64{
		"PR":  0.8,
		"MC":  0.9,
		"MA":  1.0,
		"AS":  1.1,
		"AC":  1.2,
		"PTC": 1.0,
		"PES": 1.0,
		"EX":  0.7,
		"V":   0.8,
	}
}

// Request describes the aggregate counts the engine works from.
type Request struct {
	Demand      int                `json:"demand"`
	GradeCounts map[string]int     `json:"gradeCounts"`
	Rate        float64            `json:"rate"`
	Weights     map[string]float64 `json:"weights,omitempty"`
	Current     exam.GradeQuotas   `json:"current,omitempty"`
	MinQuota    int                `json:"minQuota,omitempty"`
}

// Scenario is one named overprovisioning option.
type Scenario struct {
	Name            string         `json:"name"`
	Rate            float64        `json:"rate"`
	TargetCapacity  int            `json:"targetCapacity"`
	Quotas          map[string]int `json:"quotas"`
	Capacity        int            `json:"capacity"`
	OverCapacityPct float64        `json:"overCapacityPct"`
}

// GradeShare describes one grade's contribution under the recommended quotas.
type GradeShare struct {
	Grade            string  `json:"grade"`
	Teachers         int     `json:"teachers"`
	Weight           float64 `json:"weight"`
	CurrentQuota     int     `json:"currentQuota,omitempty"`
	RecommendedQuota int     `json:"recommendedQuota"`
	Capacity         int     `json:"capacity"`
	SharePct         float64 `json:"sharePct"`
}

// Recommendation is the advisory output; nothing is applied automatically.
type Recommendation struct {
	Demand                 int            `json:"demand"`
	Rate                   float64        `json:"rate"`
	TargetCapacity         int            `json:"targetCapacity"`
	BaseQuota              float64        `json:"baseQuota"`
	Quotas                 map[string]int `json:"quotas"`
	Capacity               int            `json:"capacity"`
	OverCapacityPct        float64        `json:"overCapacityPct"`
	CurrentCapacity        int            `json:"currentCapacity,omitempty"`
	CurrentOverCapacityPct float64        `json:"currentOverCapacityPct,omitempty"`
	Scenarios              []Scenario     `json:"scenarios"`
	Grades                 []GradeShare   `json:"grades"`
}

var scenarioRates = []struct {
	name string
	rate float64
}{
	{"conservative", 1.05},
	{"balanced", 1.15},
	{"safe", 1.25},
}

// Recommend proposes per-grade quotas for demand × rate using weighted proportional allocation.
func Recommend(req Request) Recommendation {
	if req.Rate <= 0 {
		req.Rate = DefaultOverprovisioningRate
	}
	if req.Weights == nil {
		req.Weights = DefaultGradeWeights()
	}
	if req.MinQuota <= 0 {
		req.MinQuota = DefaultMinQuota
	}

	primary := allocate(req, "requested", req.Rate)
	rec := Recommendation{
		Demand:          req.Demand,
		Rate:            req.Rate,
		TargetCapacity:  primary.TargetCapacity,
		BaseQuota:       baseQuota(req, primary.TargetCapacity),
		Quotas:          primary.Quotas,
		Capacity:        primary.Capacity,
		OverCapacityPct: primary.OverCapacityPct,
	}
	for _, s := range scenarioRates {
		rec.Scenarios = append(rec.Scenarios, allocate(req, s.name, s.rate))
	}

	if req.Current != nil {
		current := 0
		for g, n := range req.GradeCounts {
			current += req.Current.QuotaFor(g) * n
		}
		rec.CurrentCapacity = current
		rec.CurrentOverCapacityPct = overCapacity(current, req.Demand)
	}

	grades := sortedGrades(req.GradeCounts)
	for _, g := range grades {
		n := req.GradeCounts[g]
		share := GradeShare{
			Grade:            g,
			Teachers:         n,
			Weight:           weightFor(req.Weights, g),
			RecommendedQuota: rec.Quotas[g],
			Capacity:         rec.Quotas[g] * n,
		}
		if req.Current != nil {
			share.CurrentQuota = req.Current.QuotaFor(g)
		}
		if rec.Capacity > 0 {
			share.SharePct = round1(float64(share.Capacity) / float64(rec.Capacity) * 100)
		}
		rec.Grades = append(rec.Grades, share)
	}
	return rec
}

// Scenario looks a named scenario up.
func (r Recommendation) Scenario(name string) (Scenario, bool) {
	for _, s := range r.Scenarios {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

func allocate(req Request, name string, rate float64) Scenario {
	target := int(math.Floor(float64(req.Demand)*rate + 1e-9))
	base := baseQuota(req, target)
	out := Scenario{Name: name, Rate: rate, TargetCapacity: target, Quotas: make(map[string]int, len(req.GradeCounts))}
	for _, g := range sortedGrades(req.GradeCounts) {
		n := req.GradeCounts[g]
		q := max(req.MinQuota, int(math.Round(base*weightFor(req.Weights, g))))
		out.Quotas[g] = q
		out.Capacity += q * n
	}
	out.OverCapacityPct = overCapacity(out.Capacity, req.Demand)
	return out
}

func baseQuota(req Request, target int) float64 {
	weighted := 0.0
	for _, g := range sortedGrades(req.GradeCounts) {
		weighted += float64(req.GradeCounts[g]) * weightFor(req.Weights, g)
	}
	if weighted == 0 {
		return 0
	}
	return float64(target) / weighted
}

func weightFor(weights map[string]float64, grade string) float64 {
	if w, ok := weights[grade]; ok && w > 0 {
		return w
	}
	return 1.0
}

func overCapacity(capacity, demand int) float64 {
	if demand <= 0 {
		return 0
	}
	return round1(float64(capacity-demand) / float64(demand) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func sortedGrades(counts map[string]int) []string {
	out := make([]string, 0, len(counts))
	for g, n := range counts {
		if n > 0 {
			out = append(out, g)
		}
	}
	sort.Strings(out)
	return out
}

// GradeCounts tallies participating teachers per grade.
func GradeCounts(teachers []exam.Teacher) map[string]int {
	out := make(map[string]int)
	for _, t := range teachers {
		if t.Participates {
			out[t.Grade]++
		}
	}
	return out
}
