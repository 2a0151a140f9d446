package fusion

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worksafe-analytics/oshindex/internal/model"
	"github.com/worksafe-analytics/oshindex/internal/reference"
	"github.com/worksafe-analytics/oshindex/pkg/gho"
	"github.com/worksafe-analytics/oshindex/pkg/ilostat"
	"github.com/worksafe-analytics/oshindex/pkg/wgi"
)

type fakePrimary struct {
	obs   *ilostat.Observation
	err   error
	calls int
}

func (f *fakePrimary) FatalInjuryRate(_ context.Context, _ string) (*ilostat.Observation, error) {
	f.calls++
	return f.obs, f.err
}

type fakeProxy struct {
	obs   *gho.Observation
	err   error
	calls int
}

func (f *fakeProxy) RoadTrafficMortality(_ context.Context, _ string) (*gho.Observation, error) {
	f.calls++
	return f.obs, f.err
}

type fakeContext struct {
	obs   map[string]*wgi.Observation
	err   error
	calls int
}

func (f *fakeContext) Indicator(_ context.Context, _ string, indicatorID string) (*wgi.Observation, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.obs[indicatorID], nil
}

func newTestResolver(t *testing.T, p *fakePrimary, x *fakeProxy, c *fakeContext) *Resolver {
	t.Helper()
	ref, err := reference.New()
	require.NoError(t, err)
	return NewResolver(p, x, c, ref)
}

func TestFuse_PrimaryWinsAndProxyNeverCalled(t *testing.T) {
	t.Parallel()

	primary := &fakePrimary{obs: &ilostat.Observation{Value: 2.1, Year: 2021}}
	proxy := &fakeProxy{obs: &gho.Observation{Value: 20.0, Year: 2019}}
	ctxAPI := &fakeContext{}

	r := newTestResolver(t, primary, proxy, ctxAPI)
	bundle, err := r.Fuse(context.Background(), "FRA")
	require.NoError(t, err)

	fatality := bundle.Hazard[model.MetricFatalityRate]
	assert.Equal(t, 2.1, fatality.Value)
	assert.Equal(t, ilostat.SourceName, fatality.SourceName)
	assert.False(t, fatality.IsProxy)
	assert.False(t, fatality.IsEstimate)

	// The chain must short-circuit: one primary call, zero proxy calls.
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, proxy.calls)

	assert.True(t, bundle.SourcesUsed[TagPrimary])
	assert.False(t, bundle.SourcesUsed[TagProxy])
}

func TestFuse_ProxyFallbackDividesByNormalization(t *testing.T) {
	t.Parallel()

	primary := &fakePrimary{obs: nil} // primary has no coverage
	proxy := &fakeProxy{obs: &gho.Observation{Value: 20.0, Year: 2019}}
	ctxAPI := &fakeContext{}

	r := newTestResolver(t, primary, proxy, ctxAPI)
	bundle, err := r.Fuse(context.Background(), "UGA")
	require.NoError(t, err)

	fatality := bundle.Hazard[model.MetricFatalityRate]
	assert.Equal(t, 5.0, fatality.Value) // 20.0 / 4.0
	assert.True(t, fatality.IsProxy)
	assert.Equal(t, gho.SourceName, fatality.SourceName)
	assert.True(t, bundle.SourcesUsed[TagProxy])
}

func TestFuse_SourceErrorReducesToAbsence(t *testing.T) {
	t.Parallel()

	primary := &fakePrimary{err: eris.New("connection refused")}
	proxy := &fakeProxy{err: eris.New("504 gateway timeout")}
	ctxAPI := &fakeContext{err: eris.New("boom")}

	r := newTestResolver(t, primary, proxy, ctxAPI)
	bundle, err := r.Fuse(context.Background(), "KEN")
	require.NoError(t, err)

	// With both live fatality sources down, the regional estimate for
	// africa still lands: no data anywhere is impossible for this metric.
	fatality := bundle.Hazard[model.MetricFatalityRate]
	assert.Equal(t, 9.5, fatality.Value)
	assert.True(t, fatality.IsEstimate)
	assert.True(t, bundle.SourcesUsed[TagRegionalEstimate])

	// Context failures leave those metrics absent without killing the
	// rest of the fusion.
	_, hasCapacity := bundle.Governance[model.MetricCapacityScore]
	assert.False(t, hasCapacity)
	assert.True(t, bundle.SourcesUsed[TagReference]) // curated metrics survived
	_, hasPayer := bundle.Restoration[model.MetricPayerMechanism]
	assert.True(t, hasPayer)
}

func TestFuse_UnmappedCountryStillResolvesFatality(t *testing.T) {
	t.Parallel()

	primary := &fakePrimary{}
	proxy := &fakeProxy{}
	ctxAPI := &fakeContext{}

	r := newTestResolver(t, primary, proxy, ctxAPI)
	bundle, err := r.Fuse(context.Background(), "ABC")
	require.NoError(t, err)

	fatality := bundle.Hazard[model.MetricFatalityRate]
	assert.Equal(t, 7.8, fatality.Value) // asia default bucket
	assert.True(t, fatality.IsEstimate)
}

func TestFuse_ContextNormalization(t *testing.T) {
	t.Parallel()

	primary := &fakePrimary{obs: &ilostat.Observation{Value: 1.0, Year: 2021}}
	proxy := &fakeProxy{}
	ctxAPI := &fakeContext{obs: map[string]*wgi.Observation{
		wgi.IndicatorGovernmentEffectiveness: {Value: 0.0, Year: 2022},
		wgi.IndicatorRuleOfLaw:               {Value: 2.5, Year: 2022},
		wgi.IndicatorRegulatoryQuality:       {Value: -2.5, Year: 2022},
	}}

	r := newTestResolver(t, primary, proxy, ctxAPI)
	bundle, err := r.Fuse(context.Background(), "SWE")
	require.NoError(t, err)

	capacity := bundle.Governance[model.MetricCapacityScore]
	assert.Equal(t, 50.0, capacity.Value)

	// Rule of law 2.5 normalizes to 100; vulnerability inverts to 0.
	vulnerability := bundle.Vigilance[model.MetricVulnerabilityIndex]
	assert.Equal(t, 0.0, vulnerability.Value)

	rehab := bundle.Restoration[model.MetricRehabAccessScore]
	assert.Equal(t, 0.0, rehab.Value)

	assert.True(t, bundle.SourcesUsed[TagContext])
	assert.Equal(t, 3, ctxAPI.calls)
}

func TestNormalizeSigned_Clamps(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, normalizeSigned(-3.0))
	assert.Equal(t, 100.0, normalizeSigned(3.0))
	assert.Equal(t, 50.0, normalizeSigned(0.0))
	assert.InDelta(t, 84.0, normalizeSigned(1.7), 1e-9)
}

func TestFuse_CuratedMetricsLandInRightRecords(t *testing.T) {
	t.Parallel()

	primary := &fakePrimary{obs: &ilostat.Observation{Value: 0.8, Year: 2022}}
	proxy := &fakeProxy{}
	ctxAPI := &fakeContext{}

	r := newTestResolver(t, primary, proxy, ctxAPI)
	bundle, err := r.Fuse(context.Background(), "DEU")
	require.NoError(t, err)

	assert.Equal(t, true, bundle.Governance[model.MetricRatifiedC187].Value)
	assert.Equal(t, model.RegulationStrict, bundle.Hazard[model.MetricRegulationStrictness].Value)
	assert.Equal(t, model.SurveillanceRiskBased, bundle.Vigilance[model.MetricSurveillanceLogic].Value)
	assert.Equal(t, model.PayerNoFault, bundle.Restoration[model.MetricPayerMechanism].Value)
	assert.Equal(t, true, bundle.Restoration[model.MetricReintegrationLaw].Value)

	// Field keys are stamped onto every fused field.
	assert.Equal(t, model.MetricReintegrationLaw, bundle.Restoration[model.MetricReintegrationLaw].Key)
}

func TestFuse_ContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newTestResolver(t, &fakePrimary{}, &fakeProxy{}, &fakeContext{})
	_, err := r.Fuse(ctx, "FRA")
	assert.Error(t, err)
}
