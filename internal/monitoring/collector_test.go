package monitoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worksafe-analytics/oshindex/internal/model"
	"github.com/worksafe-analytics/oshindex/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestCollect_Empty(t *testing.T) {
	c := NewCollector(newTestStore(t))

	snap, err := c.Collect(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.CountriesTotal)
	assert.Zero(t, snap.RunFailRate)
	assert.Empty(t, snap.LastRunID)
}

func TestCollect(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Two finished runs, one failed.
	run1, err := st.CreateRun(ctx)
	require.NoError(t, err)
	stats1 := model.NewRunStats()
	stats1.Processed = 48
	stats1.DurationMillis = 2000
	stats1.SourceHits["PRIMARY"] = 30
	require.NoError(t, st.CompleteRun(ctx, run1.ID, model.RunStatusComplete, stats1))

	run2, err := st.CreateRun(ctx)
	require.NoError(t, err)
	stats2 := model.NewRunStats()
	stats2.DurationMillis = 1000
	stats2.Failures = []model.CountryFailure{{CountryCode: "DEU", Message: "boom"}}
	require.NoError(t, st.CompleteRun(ctx, run2.ID, model.RunStatusFailed, stats2))

	// Two countries, one scored.
	_, err = st.EnsureCountry(ctx, "DEU", "Germany")
	require.NoError(t, err)
	_, err = st.EnsureCountry(ctx, "FRA", "France")
	require.NoError(t, err)
	require.NoError(t, st.SetMaturityScore(ctx, "DEU", 3.0, "Advancing"))

	snap, err := NewCollector(st).Collect(ctx, 10)
	require.NoError(t, err)

	assert.Equal(t, 2, snap.RunsTotal)
	assert.Equal(t, 1, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 0.5, snap.RunFailRate)
	assert.Equal(t, int64(1500), snap.AvgDurationMS)

	assert.Equal(t, 2, snap.CountriesTotal)
	assert.Equal(t, 1, snap.CountriesScored)
	assert.Equal(t, 3.0, snap.AvgScore)
	assert.NotEmpty(t, snap.LastRunID)
}
