// Package scoring computes the composite maturity score for a country
// bundle. The engine is a pure function over the bundle's current field
// values: no I/O, no clock, no randomness, so the same inputs always
// produce the same score.
package scoring

import (
	"math"

	"github.com/worksafe-analytics/oshindex/internal/model"
)

// Rule thresholds and bonuses. The cap rule is evaluated first and, when
// triggered, skips every additive rule below it; a country just above the
// cap threshold therefore lands at the base score even when its other
// metrics are excellent. That discontinuity is intentional and pinned by
// regression test.
const (
	BaseScore = 1.0
	MinScore  = 1.0
	MaxScore  = 4.0

	// Cap rule.
	FatalityCapThreshold = 3.0
	CappedMax            = 2.0

	// Hazard excellence.
	FatalityExcellenceMax = 1.0
	InspectorDensityMin   = 1.5
	HazardExcellenceBonus = 1.0

	// Vigilance, restoration.
	VigilanceBonus     = 0.5
	ReintegrationBonus = 1.0
	PayerBonus         = 0.5
)

// Label buckets, highest threshold first.
const (
	LabelLeading    = "Leading"
	LabelAdvancing  = "Advancing"
	LabelDeveloping = "Developing"
	LabelCritical   = "Critical"
)

// Result is the scoring output: the rounded composite score, its label
// bucket, and the component contributions for explainability.
type Result struct {
	Score      float64            `json:"score"`
	Label      string             `json:"label"`
	Color      string             `json:"color"`
	Capped     bool               `json:"capped"`
	Components map[string]float64 `json:"components,omitempty"`
}

// Score evaluates the ordered rule set against a country bundle. Missing
// fields and nil sub-records are rule non-matches, never errors: a country
// with no data at all scores the base.
func Score(bundle *model.CountryBundle) Result {
	components := make(map[string]float64)

	// Cap rule first. When the fatality rate is past the high-risk
	// threshold no additive rule applies and the score cannot exceed
	// the cap, which leaves exactly the base score.
	if fatality, ok := hazardFatality(bundle); ok && fatality > FatalityCapThreshold {
		score := math.Min(BaseScore, CappedMax)
		return finish(score, true, components)
	}

	score := BaseScore

	if fatality, ok := hazardFatality(bundle); ok && fatality < FatalityExcellenceMax {
		if bundle.Governance != nil && bundle.Governance.InspectorDensity != nil &&
			*bundle.Governance.InspectorDensity > InspectorDensityMin {
			score += HazardExcellenceBonus
			components["hazard_excellence"] = HazardExcellenceBonus
		}
	}

	if bundle.Vigilance != nil && bundle.Vigilance.SurveillanceLogic != nil &&
		*bundle.Vigilance.SurveillanceLogic == model.SurveillanceRiskBased {
		score += VigilanceBonus
		components["vigilance_surveillance"] = VigilanceBonus
	}

	if bundle.Restoration != nil {
		if bundle.Restoration.ReintegrationLaw != nil && *bundle.Restoration.ReintegrationLaw {
			score += ReintegrationBonus
			components["restoration_reintegration"] = ReintegrationBonus
		}
		if bundle.Restoration.PayerMechanism != nil &&
			*bundle.Restoration.PayerMechanism == model.PayerNoFault {
			score += PayerBonus
			components["restoration_payer"] = PayerBonus
		}
	}

	return finish(score, false, components)
}

// Label maps a final score onto its bucket label.
func Label(score float64) string {
	switch {
	case score >= 3.5:
		return LabelLeading
	case score >= 2.5:
		return LabelAdvancing
	case score >= 2.0:
		return LabelDeveloping
	default:
		return LabelCritical
	}
}

// Color maps a final score onto the display color for its bucket.
func Color(score float64) string {
	switch {
	case score >= 3.5:
		return "green"
	case score >= 2.5:
		return "teal"
	case score >= 2.0:
		return "amber"
	default:
		return "red"
	}
}

func hazardFatality(bundle *model.CountryBundle) (float64, bool) {
	if bundle.Hazard == nil || bundle.Hazard.FatalityRate == nil {
		return 0, false
	}
	return *bundle.Hazard.FatalityRate, true
}

// finish clamps, rounds to one decimal, and derives label and color.
func finish(score float64, capped bool, components map[string]float64) Result {
	score = math.Max(MinScore, math.Min(MaxScore, score))
	score = math.Round(score*10) / 10
	if len(components) == 0 {
		components = nil
	}
	return Result{
		Score:      score,
		Label:      Label(score),
		Color:      Color(score),
		Capped:     capped,
		Components: components,
	}
}
