package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/worksafe-analytics/oshindex/internal/model"
)

func fptr(v float64) *float64 { return &v }
func bptr(v bool) *bool       { return &v }
func sptr(v string) *string   { return &v }

func excellentBundle(fatality float64) *model.CountryBundle {
	return &model.CountryBundle{
		Country: model.Country{Code: "TST"},
		Governance: &model.GovernanceRecord{
			InspectorDensity: fptr(2.0),
		},
		Hazard: &model.HazardRecord{
			FatalityRate: fptr(fatality),
		},
		Vigilance: &model.VigilanceRecord{
			SurveillanceLogic: sptr(model.SurveillanceRiskBased),
		},
		Restoration: &model.RestorationRecord{
			PayerMechanism:   sptr(model.PayerNoFault),
			ReintegrationLaw: bptr(true),
		},
	}
}

func TestScore_AllBonuses(t *testing.T) {
	t.Parallel()

	// 1.0 base + 1.0 excellence + 0.5 vigilance + 1.0 reintegration
	// + 0.5 payer = 4.0.
	res := Score(excellentBundle(0.5))
	assert.Equal(t, 4.0, res.Score)
	assert.Equal(t, LabelLeading, res.Label)
	assert.Equal(t, "green", res.Color)
	assert.False(t, res.Capped)
	assert.Len(t, res.Components, 4)
}

func TestScore_CapSkipsAdditiveRules(t *testing.T) {
	t.Parallel()

	// Fatality past the cap threshold with every other metric at its
	// excellent value: no additive rule applies, result is exactly the
	// base. A country just below the threshold scores 3.0 with the same
	// surrounding data, so the bucket jump across the threshold is large
	// and deliberate.
	res := Score(excellentBundle(3.5))
	assert.Equal(t, 1.0, res.Score)
	assert.Equal(t, LabelCritical, res.Label)
	assert.Equal(t, "red", res.Color)
	assert.True(t, res.Capped)
	assert.Empty(t, res.Components)

	below := excellentBundle(2.9) // above excellence max, below cap
	res = Score(below)
	assert.Equal(t, 3.0, res.Score)
	assert.False(t, res.Capped)
}

func TestScore_CapBoundaryIsExclusive(t *testing.T) {
	t.Parallel()

	// Exactly 3.0 does not trigger the cap.
	res := Score(excellentBundle(3.0))
	assert.False(t, res.Capped)
	assert.Equal(t, 3.0, res.Score)
}

func TestScore_EmptyBundleScoresBase(t *testing.T) {
	t.Parallel()

	res := Score(&model.CountryBundle{Country: model.Country{Code: "TST"}})
	assert.Equal(t, 1.0, res.Score)
	assert.Equal(t, LabelCritical, res.Label)
	assert.False(t, res.Capped)
	assert.Empty(t, res.Components)
}

func TestScore_ExcellenceNeedsBothConditions(t *testing.T) {
	t.Parallel()

	// Low fatality alone, without inspector density, earns nothing.
	b := &model.CountryBundle{
		Country: model.Country{Code: "TST"},
		Hazard:  &model.HazardRecord{FatalityRate: fptr(0.5)},
	}
	res := Score(b)
	assert.Equal(t, 1.0, res.Score)

	// Inspector density at the threshold (not above) still fails.
	b.Governance = &model.GovernanceRecord{InspectorDensity: fptr(1.5)}
	res = Score(b)
	assert.Equal(t, 1.0, res.Score)

	b.Governance.InspectorDensity = fptr(1.6)
	res = Score(b)
	assert.Equal(t, 2.0, res.Score)
	assert.Equal(t, LabelDeveloping, res.Label)
}

func TestScore_NonMatchingCategoricals(t *testing.T) {
	t.Parallel()

	b := &model.CountryBundle{
		Country: model.Country{Code: "TST"},
		Vigilance: &model.VigilanceRecord{
			SurveillanceLogic: sptr(model.SurveillanceMandatory),
		},
		Restoration: &model.RestorationRecord{
			PayerMechanism:   sptr(model.PayerLitigation),
			ReintegrationLaw: bptr(false),
		},
	}
	res := Score(b)
	assert.Equal(t, 1.0, res.Score)
}

func TestScore_EstimatedFatalityIsNormalInput(t *testing.T) {
	t.Parallel()

	// A regional-estimate fatality rate scores like any other number; the
	// africa average of 9.5 triggers the cap.
	b := &model.CountryBundle{
		Country: model.Country{Code: "ABC"},
		Hazard:  &model.HazardRecord{FatalityRate: fptr(9.5)},
		Restoration: &model.RestorationRecord{
			ReintegrationLaw: bptr(true),
		},
	}
	res := Score(b)
	assert.Equal(t, 1.0, res.Score)
	assert.True(t, res.Capped)
}

func TestScore_BoundsAndDeterminism(t *testing.T) {
	t.Parallel()

	bundles := []*model.CountryBundle{
		excellentBundle(0.5),
		excellentBundle(3.5),
		excellentBundle(2.0),
		{Country: model.Country{Code: "TST"}},
	}
	for _, b := range bundles {
		first := Score(b)
		assert.GreaterOrEqual(t, first.Score, 1.0)
		assert.LessOrEqual(t, first.Score, 4.0)
		assert.Equal(t, first, Score(b))
		assert.Equal(t, first.Label, Label(first.Score))
		assert.Equal(t, first.Color, Color(first.Score))
	}
}

func TestLabelBuckets(t *testing.T) {
	t.Parallel()

	cases := []struct {
		score float64
		label string
		color string
	}{
		{4.0, LabelLeading, "green"},
		{3.5, LabelLeading, "green"},
		{3.4, LabelAdvancing, "teal"},
		{2.5, LabelAdvancing, "teal"},
		{2.4, LabelDeveloping, "amber"},
		{2.0, LabelDeveloping, "amber"},
		{1.9, LabelCritical, "red"},
		{1.0, LabelCritical, "red"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.label, Label(tc.score), "score %v", tc.score)
		assert.Equal(t, tc.color, Color(tc.score), "score %v", tc.score)
	}
}
