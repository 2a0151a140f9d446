// Package gho provides a client for the WHO Global Health Observatory
// OData API. The fusion layer uses its road-traffic mortality indicator as
// a proxy for occupational fatality where ILOSTAT has no coverage.
package gho

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/worksafe-analytics/oshindex/internal/resilience"
)

// SourceName identifies this client in provenance entries.
const SourceName = "WHO_GHO"

// indicatorRoadTraffic is the estimated road traffic death rate per
// 100,000 population.
const indicatorRoadTraffic = "RS_198"

// Observation is one resolved indicator value.
type Observation struct {
	Value float64
	Year  int
	URL   string
}

// Client defines the GHO operations used by the fusion resolver.
type Client interface {
	// RoadTrafficMortality returns the most recent road traffic death
	// rate for a country, or nil when no usable value exists.
	RoadTrafficMortality(ctx context.Context, countryCode string) (*Observation, error)
}

// Option configures the GHO client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default request rate (2 req/s).
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			c.limiter = nil
		}
	}
}

// WithMinYear sets the oldest acceptable observation year.
func WithMinYear(year int) Option {
	return func(c *httpClient) {
		c.minYear = year
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

type httpClient struct {
	baseURL string
	minYear int
	limiter *rate.Limiter
	http    *http.Client
}

// NewClient creates a new GHO client. No retries: one failed call per
// pipeline pass.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://ghoapi.azureedge.net/api",
		minYear: 2010,
		limiter: rate.NewLimiter(2, 1),
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// odataResponse mirrors the GHO OData envelope.
type odataResponse struct {
	Value []odataRow `json:"value"`
}

type odataRow struct {
	SpatialDim   string   `json:"SpatialDim"`
	TimeDim      int      `json:"TimeDim"`
	NumericValue *float64 `json:"NumericValue"`
}

func (c *httpClient) RoadTrafficMortality(ctx context.Context, countryCode string) (*Observation, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "gho: rate limit")
		}
	}

	filter := url.QueryEscape(fmt.Sprintf("SpatialDim eq '%s'", countryCode))
	reqURL := fmt.Sprintf("%s/%s?$filter=%s", c.baseURL, indicatorRoadTraffic, filter)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "gho: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "gho: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "gho: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("gho: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsRetryableHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	var result odataResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "gho: unmarshal response")
	}

	var best *Observation
	for _, row := range result.Value {
		if row.SpatialDim != countryCode {
			continue
		}
		if row.NumericValue == nil || *row.NumericValue < 0 {
			continue
		}
		if row.TimeDim < c.minYear {
			continue
		}
		if best == nil || row.TimeDim > best.Year {
			best = &Observation{Value: *row.NumericValue, Year: row.TimeDim, URL: reqURL}
		}
	}
	return best, nil
}
