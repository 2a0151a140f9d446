// Package wgi provides a client for the World Bank indicators API, used
// for Worldwide Governance Indicator context metrics. Raw estimates are on
// the signed bounded range [-2.5, +2.5]; normalization to 0-100 is the
// fusion layer's concern, not this client's.
package wgi

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
const SourceName = "WB_WGI"

// Indicator IDs consumed by the fusion resolver.
const (
	IndicatorGovernmentEffectiveness = "GE.EST"
	IndicatorRuleOfLaw               = "RL.EST"
	IndicatorRegulatoryQuality       = "RQ.EST"
)

// Observation is one resolved indicator value.
type Observation struct {
	Value float64
	Year  int
	URL   string
}

// Client defines the World Bank indicator operations used by the fusion
// resolver.
type Client interface {
	// Indicator returns the most recent value of one indicator for a
	// country, or nil when no usable value exists.
	Indicator(ctx context.Context, countryCode, indicatorID string) (*Observation, error)
}

// Option configures the WGI client.
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

// NewClient creates a new World Bank indicators client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://api.worldbank.org/v2",
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

// dataPoint mirrors one observation of the World Bank JSON payload.
type dataPoint struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

func (c *httpClient) Indicator(ctx context.Context, countryCode, indicatorID string) (*Observation, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "wgi: rate limit")
		}
	}

	reqURL := fmt.Sprintf("%s/country/%s/indicator/%s?format=json&per_page=100",
		c.baseURL, countryCode, indicatorID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "wgi: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "wgi: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "wgi: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("wgi: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsRetryableHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	// The payload is a two-element array: [page metadata, observations].
	// An unknown country yields a one-element array with an error message.
	var envelope []json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, eris.Wrap(err, "wgi: unmarshal envelope")
	}
	if len(envelope) < 2 {
		return nil, nil
	}

	var points []dataPoint
	if err := json.Unmarshal(envelope[1], &points); err != nil {
		return nil, eris.Wrap(err, "wgi: unmarshal observations")
	}

	var best *Observation
	for _, p := range points {
		if p.Value == nil {
			continue
		}
		year := parseYear(p.Date)
		if year < c.minYear {
			continue
		}
		if best == nil || year > best.Year {
			best = &Observation{Value: *p.Value, Year: year, URL: reqURL}
		}
	}
	return best, nil
}

func parseYear(s string) int {
	var year int
	if _, err := fmt.Sscanf(s, "%d", &year); err != nil {
		return 0
	}
	return year
}
