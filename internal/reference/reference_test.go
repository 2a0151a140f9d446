package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worksafe-analytics/oshindex/internal/model"
	"github.com/worksafe-analytics/oshindex/internal/registry"
)

func TestResolveFatality_IsTotalOverRegistry(t *testing.T) {
	t.Parallel()

	r, err := New()
	require.NoError(t, err)

	reg, err := registry.Load()
	require.NoError(t, err)

	// Every recognized country code must resolve to a non-nil fatality
	// rate, no matter how sparse the curated table is.
	for _, code := range reg.Codes() {
		f := r.ResolveFatality(code)
		require.NotNil(t, f.Value, "code %s", code)
		v, ok := f.Value.(float64)
		require.True(t, ok, "code %s", code)
		assert.Greater(t, v, 0.0, "code %s", code)
		assert.NotEmpty(t, f.SourceName, "code %s", code)
	}
}

func TestResolveFatality_CuratedWins(t *testing.T) {
	t.Parallel()

	r, err := New()
	require.NoError(t, err)

	f := r.ResolveFatality("QAT")
	assert.Equal(t, 4.4, f.Value)
	assert.False(t, f.IsEstimate)
	assert.Equal(t, 2021, f.Year)
}

func TestResolveFatality_RegionalEstimate(t *testing.T) {
	t.Parallel()

	r, err := New()
	require.NoError(t, err)

	// KEN has curated governance data but no curated fatality rate, so
	// the africa regional average applies and is flagged as an estimate.
	f := r.ResolveFatality("KEN")
	assert.Equal(t, 9.5, f.Value)
	assert.True(t, f.IsEstimate)
	assert.Equal(t, SourceRegionalEstimate, f.SourceName)
}

func TestResolveFatality_UnmappedCodeUsesDefaultRegion(t *testing.T) {
	t.Parallel()

	r, err := New()
	require.NoError(t, err)

	// "ABC" is in no region set; it falls into the asia bucket.
	assert.Equal(t, DefaultRegion, r.Region("ABC"))

	f := r.ResolveFatality("ABC")
	assert.Equal(t, 7.8, f.Value)
	assert.True(t, f.IsEstimate)
}

func TestRegion(t *testing.T) {
	t.Parallel()

	r, err := New()
	require.NoError(t, err)

	assert.Equal(t, "africa", r.Region("KEN"))
	assert.Equal(t, "europe", r.Region("DEU"))
	assert.Equal(t, "oceania", r.Region("NZL"))
	assert.Equal(t, "americas", r.Region("BRA"))
}

func TestLookup(t *testing.T) {
	t.Parallel()

	r, err := New()
	require.NoError(t, err)

	f, ok := r.Lookup("DEU", model.MetricRatifiedC187)
	require.True(t, ok)
	assert.Equal(t, true, f.Value)
	assert.Equal(t, "ILO NORMLEX", f.SourceName)

	// Numeric curated values normalize to float64 regardless of how the
	// YAML literal was written.
	f, ok = r.Lookup("DEU", model.MetricTrainingHours)
	require.True(t, ok)
	assert.Equal(t, 12.5, f.Value)

	_, ok = r.Lookup("DEU", "no_such_metric")
	assert.False(t, ok)

	_, ok = r.Lookup("XXX", model.MetricRatifiedC155)
	assert.False(t, ok)
}

func TestCuratedCategoricalsPassAllowList(t *testing.T) {
	t.Parallel()

	// New() validates categoricals at load; a clean parse is the property
	// under test here.
	_, err := New()
	require.NoError(t, err)
}
