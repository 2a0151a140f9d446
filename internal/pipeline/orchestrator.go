// Package pipeline drives the full fusion sequence: resolve every metric
// for each target country, upsert the results, and then score the stored
// bundles. Countries are processed with bounded concurrency, and each
// country's upserts run on a single worker so partial updates never
// interleave for the same code.
package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/worksafe-analytics/oshindex/internal/model"
	"github.com/worksafe-analytics/oshindex/internal/registry"
	"github.com/worksafe-analytics/oshindex/internal/resilience"
	"github.com/worksafe-analytics/oshindex/internal/scoring"
	"github.com/worksafe-analytics/oshindex/internal/store"
)

// Fuser resolves all metrics for one country.
type Fuser interface {
	Fuse(ctx context.Context, code string) (*model.FusedBundle, error)
}

// Orchestrator runs the fuse-upsert-score sequence over a country list.
type Orchestrator struct {
	fuser         Fuser
	store         store.Store
	registry      *registry.Registry
	maxConcurrent int
}

// New creates an Orchestrator. maxConcurrent bounds the country worker
// pool; values below 1 mean sequential processing.
func New(fuser Fuser, st store.Store, reg *registry.Registry, maxConcurrent int) *Orchestrator {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Orchestrator{
		fuser:         fuser,
		store:         st,
		registry:      reg,
		maxConcurrent: maxConcurrent,
	}
}

// Run processes the given country codes, or the full registry when codes
// is empty. One country's failure is recorded and does not stop the rest.
// Cancellation is honored between countries, never mid-country; a
// cancelled run is persisted with status stopped.
func (o *Orchestrator) Run(ctx context.Context, codes []string, rc *RunContext) (*model.Run, error) {
	if len(codes) == 0 {
		codes = o.registry.Codes()
	}

	run, err := o.store.CreateRun(ctx)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("pipeline: run started",
		zap.Int("countries", len(codes)),
		zap.Int("max_concurrent", o.maxConcurrent),
	)

	start := time.Now()
	stats := model.NewRunStats()
	var mu sync.Mutex
	stopped := false

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrent)

	for _, code := range codes {
		// Cooperative early stop, checked at country granularity.
		if err := ctx.Err(); err != nil {
			stopped = true
			break
		}

		code := code
		g.Go(func() error {
			rc.Start(code)
			outcome, err := o.processCountry(gCtx, code)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Cancellation mid-country is a stop, not a country
				// failure; propagating it makes g.Wait mark the run
				// stopped instead of recording a retryable failure.
				if gCtx.Err() != nil {
					rc.Fail(code, err)
					return gCtx.Err()
				}
				retryable := resilience.IsRetryable(err)
				stats.Failures = append(stats.Failures, model.CountryFailure{
					CountryCode: code,
					Message:     err.Error(),
					Retryable:   retryable,
				})
				rc.Fail(code, err)
				log.Warn("pipeline: country failed",
					zap.String("country", code),
					zap.Bool("retryable", retryable),
					zap.Error(err),
				)
				return nil
			}

			stats.Processed++
			if outcome.created {
				stats.Created++
			} else {
				stats.Updated++
			}
			for tag := range outcome.sourcesUsed {
				stats.SourceHits[tag]++
			}
			rc.Finish(code)
			return nil
		})
	}

	// Per-country errors are folded into the failure list inside the
	// workers; the only error surfaced here is context cancellation.
	if err := g.Wait(); err != nil {
		stopped = true
	}

	if !stopped {
		o.scorePass(ctx, codes, stats, rc, log)
	}
	stats.DurationMillis = time.Since(start).Milliseconds()

	status := model.RunStatusComplete
	switch {
	case stopped:
		status = model.RunStatusStopped
	case stats.Processed == 0 && len(stats.Failures) > 0:
		status = model.RunStatusFailed
	}

	// Persist the outcome even when the run context is gone.
	completeCtx := ctx
	if completeCtx.Err() != nil {
		var cancel context.CancelFunc
		completeCtx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}
	if err := o.store.CompleteRun(completeCtx, run.ID, status, stats); err != nil {
		return nil, err
	}

	run.Status = status
	run.Stats = stats
	log.Info("pipeline: run finished",
		zap.String("status", string(status)),
		zap.Int("processed", stats.Processed),
		zap.Int("scored", stats.Scored),
		zap.Int("failures", len(stats.Failures)),
		zap.Int64("duration_ms", stats.DurationMillis),
	)
	return run, nil
}

// countryOutcome is the per-country accumulation merged into run stats
// under the shared lock.
type countryOutcome struct {
	created     bool
	sourcesUsed map[string]bool
}

// processCountry runs fuse and the four sub-record upserts for one code.
func (o *Orchestrator) processCountry(ctx context.Context, code string) (*countryOutcome, error) {
	name := ""
	if c, ok := o.registry.ByCode(code); ok {
		name = c.Name
	}
	created, err := o.store.EnsureCountry(ctx, code, name)
	if err != nil {
		return nil, err
	}

	bundle, err := o.fuser.Fuse(ctx, code)
	if err != nil {
		return nil, err
	}

	for _, upsert := range []struct {
		fn     func(context.Context, string, model.FieldSet) (*store.UpsertOutcome, error)
		fields model.FieldSet
	}{
		{o.store.UpsertGovernance, bundle.Governance},
		{o.store.UpsertHazard, bundle.Hazard},
		{o.store.UpsertVigilance, bundle.Vigilance},
		{o.store.UpsertRestoration, bundle.Restoration},
	} {
		if _, err := upsert.fn(ctx, code, upsert.fields); err != nil {
			return nil, err
		}
	}

	return &countryOutcome{created: created, sourcesUsed: bundle.SourcesUsed}, nil
}

// scorePass recomputes the maturity score for every target country after
// all upserts have landed. Scoring reads the persisted bundle, not the
// in-flight fusion output, so re-scoring without re-fusing stays correct.
func (o *Orchestrator) scorePass(ctx context.Context, codes []string, stats *model.RunStats, rc *RunContext, log *zap.Logger) {
	for _, code := range codes {
		if ctx.Err() != nil {
			return
		}
		bundle, err := o.store.GetBundle(ctx, code)
		if err != nil {
			log.Warn("pipeline: score load failed",
				zap.String("country", code),
				zap.Error(err),
			)
			continue
		}
		res := scoring.Score(bundle)
		if err := o.store.SetMaturityScore(ctx, code, res.Score, res.Label); err != nil {
			log.Warn("pipeline: score persist failed",
				zap.String("country", code),
				zap.Error(err),
			)
			continue
		}
		stats.Scored++
		rc.Scored(code, res.Score, res.Label)
	}
}
