// Package ilostat provides a client for the ILOSTAT indicator API.
package ilostat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/worksafe-analytics/oshindex/internal/resilience"
)

// SourceName identifies this client in provenance entries.
const SourceName = "ILOSTAT"

// indicatorFatalInjuries is the SDG 8.8.1 fatal occupational injury rate
// per 100,000 workers, both sexes.
const indicatorFatalInjuries = "SDG_F881_SEX_MIG_RT_A"

// Observation is one resolved indicator value.
type Observation struct {
	Value float64
	Year  int
	URL   string
}

// Client defines the ILOSTAT operations used by the fusion resolver.
type Client interface {
	// FatalInjuryRate returns the most recent fatal occupational injury
	// rate for a country within the acceptable year window, or nil when
	// the country has no usable observation.
	FatalInjuryRate(ctx context.Context, countryCode string) (*Observation, error)
}

// Option configures the ILOSTAT client.
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

// NewClient creates a new ILOSTAT client. Calls are throttled to 2 req/s by
// default as a fairness policy toward the shared endpoint; a failed call is
// never retried within the same pipeline pass.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://rplumber.ilo.org/data/indicator",
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

// observation mirrors one row of the ILOSTAT JSON payload. obs_value is a
// pointer because the API emits explicit nulls for suppressed cells.
type observation struct {
	RefArea  string   `json:"ref_area"`
	Sex      string   `json:"sex"`
	Time     string   `json:"time"`
	ObsValue *float64 `json:"obs_value"`
}

func (c *httpClient) FatalInjuryRate(ctx context.Context, countryCode string) (*Observation, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "ilostat: rate limit")
		}
	}

	reqURL := fmt.Sprintf("%s/?id=%s&ref_area=%s&type=both&format=.json",
		c.baseURL, indicatorFatalInjuries, countryCode)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "ilostat: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ilostat: request failed")
	}
	defer resp.Body.Close()

	// 404 means the country has no series for this indicator.
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ilostat: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("ilostat: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsRetryableHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	var rows []observation
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, eris.Wrap(err, "ilostat: unmarshal response")
	}

	return c.mostRecent(rows, countryCode, reqURL), nil
}

// mostRecent picks the newest observation at or after the minimum year,
// discarding nulls, non-total sex breakdowns and out-of-range values.
func (c *httpClient) mostRecent(rows []observation, countryCode, reqURL string) *Observation {
	var best *Observation
	for _, row := range rows {
		if row.RefArea != "" && row.RefArea != countryCode {
			continue
		}
		if row.Sex != "" && row.Sex != "SEX_T" {
			continue
		}
		if row.ObsValue == nil || *row.ObsValue < 0 {
			continue
		}
		year := parseYear(row.Time)
		if year < c.minYear {
			continue
		}
		if best == nil || year > best.Year {
			best = &Observation{Value: *row.ObsValue, Year: year, URL: reqURL}
		}
	}
	return best
}

func parseYear(s string) int {
	var year int
	if _, err := fmt.Sscanf(s, "%d", &year); err != nil {
		return 0
	}
	return year
}
