// Package monitoring summarizes pipeline health from persisted runs and
// country coverage.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/worksafe-analytics/oshindex/internal/model"
	"github.com/worksafe-analytics/oshindex/internal/store"
)

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Run metrics over the most recent runs.
	RunsTotal     int     `json:"runs_total"`
	RunsComplete  int     `json:"runs_complete"`
	RunsFailed    int     `json:"runs_failed"`
	RunsStopped   int     `json:"runs_stopped"`
	RunsRunning   int     `json:"runs_running"`
	RunFailRate   float64 `json:"run_fail_rate"`
	AvgDurationMS int64   `json:"avg_duration_ms"`

	// Latest finished run, when one exists.
	LastRunID        string         `json:"last_run_id,omitempty"`
	LastRunProcessed int            `json:"last_run_processed"`
	LastRunFailures  int            `json:"last_run_failures"`
	LastSourceHits   map[string]int `json:"last_source_hits,omitempty"`

	// Country coverage.
	CountriesTotal  int     `json:"countries_total"`
	CountriesScored int     `json:"countries_scored"`
	AvgScore        float64 `json:"avg_score"`

	CollectedAt time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect builds a snapshot over the last maxRuns pipeline runs plus the
// current country table.
func (c *Collector) Collect(ctx context.Context, maxRuns int) (*MetricsSnapshot, error) {
	if maxRuns <= 0 {
		maxRuns = 50
	}
	snap := &MetricsSnapshot{CollectedAt: time.Now().UTC()}

	runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: maxRuns})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var totalDuration int64
	var finishedWithStats int
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusStopped:
			snap.RunsStopped++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		if r.Stats != nil {
			totalDuration += r.Stats.DurationMillis
			finishedWithStats++
		}
	}
	finished := snap.RunsComplete + snap.RunsFailed
	if finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if finishedWithStats > 0 {
		snap.AvgDurationMS = totalDuration / int64(finishedWithStats)
	}

	// Runs are ordered newest first; surface the first one carrying stats.
	for _, r := range runs {
		if r.Stats == nil {
			continue
		}
		snap.LastRunID = r.ID
		snap.LastRunProcessed = r.Stats.Processed
		snap.LastRunFailures = len(r.Stats.Failures)
		snap.LastSourceHits = r.Stats.SourceHits
		break
	}

	countries, err := c.store.ListCountries(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list countries")
	}
	snap.CountriesTotal = len(countries)
	var totalScore float64
	for _, country := range countries {
		if country.MaturityScore != nil {
			snap.CountriesScored++
			totalScore += *country.MaturityScore
		}
	}
	if snap.CountriesScored > 0 {
		snap.AvgScore = totalScore / float64(snap.CountriesScored)
	}

	return snap, nil
}
