// Package fusion resolves every metric for a country through a prioritized
// source chain and merges the results into one bundle. Chains are ordered
// data, evaluated with short-circuit-on-first-success: adding a source tier
// is a table change, not new branching.
package fusion

import (
	"context"

	"go.uber.org/zap"

	"github.com/worksafe-analytics/oshindex/internal/model"
	"github.com/worksafe-analytics/oshindex/internal/reference"
	"github.com/worksafe-analytics/oshindex/pkg/gho"
	"github.com/worksafe-analytics/oshindex/pkg/ilostat"
	"github.com/worksafe-analytics/oshindex/pkg/wgi"
)

// Source category tags accumulated in the sources_used set. Observability
// only; they never affect which value wins.
const (
	TagPrimary          = "PRIMARY"
	TagProxy            = "PROXY"
	TagContext          = "CONTEXT"
	TagReference        = "REFERENCE"
	TagRegionalEstimate = "REGIONAL_ESTIMATE"
)

// proxyNormalization converts the road-traffic mortality proxy into an
// occupational fatality approximation.
const proxyNormalization = 4.0

// record identifies which sub-record field set a metric lands in.
type record int

const (
	recGovernance record = iota
	recHazard
	recVigilance
	recRestoration
)

// sourceFn is one tier of a fall-through chain. A nil field with a nil
// error means "absent, try the next tier"; an error is reduced to absence
// by the chain evaluator.
type sourceFn func(ctx context.Context, code string) (*model.FusedField, string, error)

// chainSpec binds one metric key to its ordered source tiers.
type chainSpec struct {
	key    string
	target record
	tiers  []sourceFn
}

// Resolver fuses per-country metrics from all configured sources.
type Resolver struct {
	primary    ilostat.Client
	proxy      gho.Client
	contextAPI wgi.Client
	ref        *reference.Resolver
	chains     []chainSpec
}

// NewResolver wires the fall-through chains. Chain order is the priority
// order; the reference tiers guarantee the fatality chain is total.
func NewResolver(primary ilostat.Client, proxy gho.Client, contextAPI wgi.Client, ref *reference.Resolver) *Resolver {
	r := &Resolver{
		primary:    primary,
		proxy:      proxy,
		contextAPI: contextAPI,
		ref:        ref,
	}

	r.chains = []chainSpec{
		// Fatality rate: live primary, then normalized proxy, then the
		// total reference resolution.
		{key: model.MetricFatalityRate, target: recHazard, tiers: []sourceFn{
			r.primaryFatality,
			r.proxyFatality,
			r.referenceFatality,
		}},

		// Context metrics: a single context-API call each, normalized
		// from the signed WGI scale to 0-100.
		{key: model.MetricCapacityScore, target: recGovernance, tiers: []sourceFn{
			r.contextMetric(wgi.IndicatorGovernmentEffectiveness, false),
		}},
		{key: model.MetricVulnerabilityIndex, target: recVigilance, tiers: []sourceFn{
			// Vulnerability is lower-is-better, so the rule-of-law scale
			// is inverted.
			r.contextMetric(wgi.IndicatorRuleOfLaw, true),
		}},
		{key: model.MetricRehabAccessScore, target: recRestoration, tiers: []sourceFn{
			r.contextMetric(wgi.IndicatorRegulatoryQuality, false),
		}},
	}

	// Everything else resolves from curated reference data only.
	for _, spec := range []struct {
		target record
		keys   []string
	}{
		{recGovernance, []string{
			model.MetricRatifiedC155, model.MetricRatifiedC187,
			model.MetricInspectorDensity, model.MetricPolicyPresent,
		}},
		{recHazard, []string{
			model.MetricExposurePct, model.MetricRegulationStrictness,
			model.MetricCompliancePct, model.MetricInjuryRate, model.MetricTrainingHours,
		}},
		{recVigilance, []string{
			model.MetricSurveillanceLogic, model.MetricDetectionRate,
			model.MetricMigrantSharePct, model.MetricReportingCompliancePct,
			model.MetricScreeningCompliancePct,
		}},
		{recRestoration, []string{
			model.MetricPayerMechanism, model.MetricReintegrationLaw,
			model.MetricAbsenceDays, model.MetricRTWSuccessPct,
			model.MetricSettlementMonths, model.MetricParticipationPct,
		}},
	} {
		for _, key := range spec.keys {
			r.chains = append(r.chains, chainSpec{
				key:    key,
				target: spec.target,
				tiers:  []sourceFn{r.curated(key)},
			})
		}
	}

	return r
}

// Fuse resolves every metric chain for one country. Source failures reduce
// to absence for that one metric and never abort the remaining chains; the
// only returned error is context cancellation.
func (r *Resolver) Fuse(ctx context.Context, code string) (*model.FusedBundle, error) {
	log := zap.L().With(zap.String("country", code))
	bundle := model.NewFusedBundle(code)

	for _, chain := range r.chains {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		field, tag := r.resolveChain(ctx, log, code, chain)
		if field == nil {
			continue
		}
		field.Key = chain.key
		bundle.SourcesUsed[tag] = true

		switch chain.target {
		case recGovernance:
			bundle.Governance[chain.key] = *field
		case recHazard:
			bundle.Hazard[chain.key] = *field
		case recVigilance:
			bundle.Vigilance[chain.key] = *field
		case recRestoration:
			bundle.Restoration[chain.key] = *field
		}
	}

	log.Debug("fusion: bundle resolved",
		zap.Int("governance_fields", len(bundle.Governance)),
		zap.Int("hazard_fields", len(bundle.Hazard)),
		zap.Int("vigilance_fields", len(bundle.Vigilance)),
		zap.Int("restoration_fields", len(bundle.Restoration)),
		zap.Int("sources", len(bundle.SourcesUsed)),
	)
	return bundle, nil
}

// resolveChain walks the tiers in priority order and returns the first
// non-absent result. Lower tiers are never consulted once a higher one
// succeeds.
func (r *Resolver) resolveChain(ctx context.Context, log *zap.Logger, code string, chain chainSpec) (*model.FusedField, string) {
	for _, tier := range chain.tiers {
		field, tag, err := tier(ctx, code)
		if err != nil {
			// Source unavailable or malformed payload: absent for this
			// metric, keep going.
			log.Warn("fusion: source failed, treating as absent",
				zap.String("metric", chain.key),
				zap.Error(err),
			)
			continue
		}
		if field != nil {
			return field, tag
		}
	}
	return nil, ""
}

func (r *Resolver) primaryFatality(ctx context.Context, code string) (*model.FusedField, string, error) {
	obs, err := r.primary.FatalInjuryRate(ctx, code)
	if err != nil {
		return nil, "", err
	}
	if obs == nil {
		return nil, "", nil
	}
	return &model.FusedField{
		Value:      obs.Value,
		Year:       obs.Year,
		SourceName: ilostat.SourceName,
		SourceURL:  obs.URL,
	}, TagPrimary, nil
}

func (r *Resolver) proxyFatality(ctx context.Context, code string) (*model.FusedField, string, error) {
	obs, err := r.proxy.RoadTrafficMortality(ctx, code)
	if err != nil {
		return nil, "", err
	}
	if obs == nil {
		return nil, "", nil
	}
	return &model.FusedField{
		Value:      obs.Value / proxyNormalization,
		Year:       obs.Year,
		SourceName: gho.SourceName,
		SourceURL:  obs.URL,
		IsProxy:    true,
	}, TagProxy, nil
}

func (r *Resolver) referenceFatality(_ context.Context, code string) (*model.FusedField, string, error) {
	field := r.ref.ResolveFatality(code)
	tag := TagReference
	if field.IsEstimate {
		tag = TagRegionalEstimate
	}
	return &field, tag, nil
}

// contextMetric builds a tier that fetches one WGI indicator and rescales
// it from [-2.5, +2.5] to [0, 100], inverting when lower-is-better.
func (r *Resolver) contextMetric(indicatorID string, invert bool) sourceFn {
	return func(ctx context.Context, code string) (*model.FusedField, string, error) {
		obs, err := r.contextAPI.Indicator(ctx, code, indicatorID)
		if err != nil {
			return nil, "", err
		}
		if obs == nil {
			return nil, "", nil
		}
		score := normalizeSigned(obs.Value)
		if invert {
			score = 100 - score
		}
		return &model.FusedField{
			Value:      score,
			Year:       obs.Year,
			SourceName: wgi.SourceName,
			SourceURL:  obs.URL,
		}, TagContext, nil
	}
}

// curated builds a tier backed by the hand-maintained reference table.
func (r *Resolver) curated(metricKey string) sourceFn {
	return func(_ context.Context, code string) (*model.FusedField, string, error) {
		field, ok := r.ref.Lookup(code, metricKey)
		if !ok {
			return nil, "", nil
		}
		return &field, TagReference, nil
	}
}

// normalizeSigned maps the WGI estimate range [-2.5, +2.5] onto [0, 100]
// and clamps outliers.
func normalizeSigned(v float64) float64 {
	score := (v + 2.5) / 5.0 * 100.0
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
