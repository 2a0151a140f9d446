package wgi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worksafe-analytics/oshindex/internal/resilience"
)

func TestIndicator_PicksMostRecentNonNull(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/country/SWE/indicator/GE.EST", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"page":1,"pages":1,"per_page":100,"total":3},
			[
				{"date":"2023","value":null},
				{"date":"2022","value":1.71},
				{"date":"2021","value":1.62}
			]
		]`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithRateLimit(0))
	obs, err := client.Indicator(context.Background(), "SWE", IndicatorGovernmentEffectiveness)

	require.NoError(t, err)
	require.NotNil(t, obs)
	assert.Equal(t, 1.71, obs.Value)
	assert.Equal(t, 2022, obs.Year)
}

func TestIndicator_UnknownCountryEnvelope(t *testing.T) {
	t.Parallel()

	// The World Bank API answers unknown countries with a one-element
	// envelope carrying an error message instead of observations.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"message":[{"id":"120","value":"Invalid value"}]}]`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithRateLimit(0))
	obs, err := client.Indicator(context.Background(), "ZZZ", IndicatorRuleOfLaw)

	require.NoError(t, err)
	assert.Nil(t, obs)
}

func TestIndicator_ServerErrorIsRetryable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithRateLimit(0))
	_, err := client.Indicator(context.Background(), "SWE", IndicatorGovernmentEffectiveness)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.True(t, resilience.IsRetryable(err))
}

func TestIndicator_MalformedPayload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json at all`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithRateLimit(0))
	_, err := client.Indicator(context.Background(), "SWE", IndicatorRegulatoryQuality)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestIndicator_MinYearFiltersOldData(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"page":1},[{"date":"2008","value":0.4}]]`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithRateLimit(0), WithMinYear(2010))
	obs, err := client.Indicator(context.Background(), "SWE", IndicatorGovernmentEffectiveness)

	require.NoError(t, err)
	assert.Nil(t, obs)
}
