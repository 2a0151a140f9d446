package pipeline

import (
	"sort"
	"sync"
	"time"
)

// CountryState is one country's position in the current run.
type CountryState string

// Country states.
const (
	StatePending CountryState = "pending"
	StateRunning CountryState = "running"
	StateDone    CountryState = "done"
	StateFailed  CountryState = "failed"
)

// CountryProgress is the reportable snapshot of one country.
type CountryProgress struct {
	Code      string       `json:"code"`
	State     CountryState `json:"state"`
	Error     string       `json:"error,omitempty"`
	Score     float64      `json:"score,omitempty"`
	Label     string       `json:"label,omitempty"`
	StartedAt time.Time    `json:"started_at,omitempty"`
}

// RunContext tracks live per-country progress for one run. Safe for
// concurrent use by the worker pool; a nil RunContext is a no-op so
// callers that do not report progress can pass nil.
type RunContext struct {
	mu        sync.Mutex
	countries map[string]*CountryProgress
}

// NewRunContext returns an empty progress tracker.
func NewRunContext() *RunContext {
	return &RunContext{countries: make(map[string]*CountryProgress)}
}

func (rc *RunContext) entry(code string) *CountryProgress {
	p, ok := rc.countries[code]
	if !ok {
		p = &CountryProgress{Code: code, State: StatePending}
		rc.countries[code] = p
	}
	return p
}

// Start marks a country as in flight.
func (rc *RunContext) Start(code string) {
	if rc == nil {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	p := rc.entry(code)
	p.State = StateRunning
	p.StartedAt = time.Now().UTC()
}

// Finish marks a country's fusion and upserts as complete.
func (rc *RunContext) Finish(code string) {
	if rc == nil {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.entry(code).State = StateDone
}

// Fail records a country failure.
func (rc *RunContext) Fail(code string, err error) {
	if rc == nil {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	p := rc.entry(code)
	p.State = StateFailed
	p.Error = err.Error()
}

// Scored attaches the computed maturity score.
func (rc *RunContext) Scored(code string, score float64, label string) {
	if rc == nil {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	p := rc.entry(code)
	p.Score = score
	p.Label = label
}

// Snapshot returns the current progress ordered by country code.
func (rc *RunContext) Snapshot() []CountryProgress {
	if rc == nil {
		return nil
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]CountryProgress, 0, len(rc.countries))
	for _, p := range rc.countries {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
