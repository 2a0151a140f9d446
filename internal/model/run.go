package model

import "time"

// RunStatus tracks a pipeline run's lifecycle.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusStopped  RunStatus = "stopped"
	RunStatusFailed   RunStatus = "failed"
)

// CountryFailure records one country's pipeline failure without aborting
// the batch.
type CountryFailure struct {
	CountryCode string `json:"country_code"`
	Message     string `json:"message"`
	Retryable   bool   `json:"retryable"`
}

// RunStats aggregates the outcome of one pipeline run.
type RunStats struct {
	Processed      int              `json:"processed"`
	Created        int              `json:"created"`
	Updated        int              `json:"updated"`
	Scored         int              `json:"scored"`
	SourceHits     map[string]int   `json:"source_hits"`
	Failures       []CountryFailure `json:"failures"`
	DurationMillis int64            `json:"duration_ms"`
}

// NewRunStats returns an empty stats accumulator.
func NewRunStats() *RunStats {
	return &RunStats{SourceHits: make(map[string]int)}
}

// Run is one persisted pipeline invocation.
type Run struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	Stats      *RunStats  `json:"stats,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
