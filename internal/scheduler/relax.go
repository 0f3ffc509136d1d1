package scheduler

import "fmt"

// ConstraintFamily names a group of hard constraints for diagnostics.
type ConstraintFamily string

const (
	FamilyGradeEquality ConstraintFamily = "grade_equality"
	FamilyQuota         ConstraintFamily = "quota"
	FamilyPreference    ConstraintFamily = "preference"
	FamilyCoverage      ConstraintFamily = "coverage"
)

// RelaxationKind identifies one rung of the relaxation ladder.
type RelaxationKind string

const (
	RelaxGradeFlexibility RelaxationKind = "grade_flexibility"
	RelaxGradeEquality    RelaxationKind = "grade_equality_to_minimum"
	RelaxQuotaScale       RelaxationKind = "quota_scaled_to_demand"
	RelaxQuotaFloor       RelaxationKind = "quota_floor_lowered"
	RelaxPreferenceSoft   RelaxationKind = "preference_soft"
)

// RelaxationStep is one loosening applied to the model.
type RelaxationStep struct {
	Kind   RelaxationKind   `json:"kind"`
	Family ConstraintFamily `json:"family"`
	Detail string           `json:"detail"`
}

// nextRelaxation returns the next rung in ladder order (grade equality, then quota floors,
// then preference hardness) or false once the ladder is exhausted.
func (m *Model) nextRelaxation() (RelaxationStep, bool) {
	if m.quotaMode() == QuotaStrictEquality {
		if m.relax.gradeFlex < m.cfg.MaxGradeFlexibility {
			return RelaxationStep{
				Kind:   RelaxGradeFlexibility,
				Family: FamilyGradeEquality,
				Detail: "grade count window widened by one on each side",
			}, true
		}
		return RelaxationStep{
			Kind:   RelaxGradeEquality,
			Family: FamilyGradeEquality,
			Detail: "grade equality replaced by per-teacher minimum quotas",
		}, true
	}

	floorTotal, floorMax := 0, 0
	for _, f := range m.floors {
		floorTotal += f
		floorMax = max(floorMax, f)
	}
	if !m.relax.quotaScaled && floorTotal > m.demand {
		return RelaxationStep{
			Kind:   RelaxQuotaScale,
			Family: FamilyQuota,
			Detail: fmt.Sprintf("quota floors scaled from %d to %d duties", floorTotal, m.demand),
		}, true
	}
	if floorMax > 0 {
		return RelaxationStep{
			Kind:   RelaxQuotaFloor,
			Family: FamilyQuota,
			Detail: "every quota floor lowered by one",
		}, true
	}

	if m.preferenceMode() == PreferenceHard && m.hasWishedCells() {
		return RelaxationStep{
			Kind:   RelaxPreferenceSoft,
			Family: FamilyPreference,
			Detail: "preferences switched from hard exclusions to penalties",
		}, true
	}
	return RelaxationStep{}, false
}

// Relax returns a copy of the model with the step applied.
func (m *Model) Relax(step RelaxationStep) *Model {
	c := m.clone()
	switch step.Kind {
	case RelaxGradeFlexibility:
		c.relax.gradeFlex++
	case RelaxGradeEquality:
		c.relax.equalityDropped = true
	case RelaxQuotaScale:
		c.relax.quotaScaled = true
	case RelaxQuotaFloor:
		c.relax.quotaReduction++
	case RelaxPreferenceSoft:
		c.relax.preferencesSoft = true
	}
	c.derive()
	return c
}

// withoutFamily fully relaxes one constraint family; used for diagnosis only.
func (m *Model) withoutFamily(f ConstraintFamily) *Model {
	c := m.clone()
	switch f {
	case FamilyGradeEquality:
		c.relax.equalityDropped = true
		c.relax.gradeFlex = c.cfg.MaxGradeFlexibility
	case FamilyQuota:
		c.relax.quotaScaled = true
		for _, q := range c.baseFloors {
			c.relax.quotaReduction = max(c.relax.quotaReduction, q)
		}
	case FamilyPreference:
		c.relax.preferencesSoft = true
	}
	c.derive()
	return c
}

func (m *Model) hasWishedCells() bool {
	for t := range m.wished {
		for _, w := range m.wished[t] {
			if w {
				return true
			}
		}
	}
	return false
}

// applicableFamilies lists the families whose relaxation could change feasibility.
func (m *Model) applicableFamilies() []ConstraintFamily {
	var out []ConstraintFamily
	if m.quotaMode() == QuotaStrictEquality {
		out = append(out, FamilyGradeEquality)
	}
	for _, f := range m.floors {
		if f > 0 {
			out = append(out, FamilyQuota)
			break
		}
	}
	if m.preferenceMode() == PreferenceHard && m.hasWishedCells() {
		out = append(out, FamilyPreference)
	}
	return out
}
