package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/worksafe-analytics/oshindex/internal/fusion"
	"github.com/worksafe-analytics/oshindex/internal/pipeline"
	"github.com/worksafe-analytics/oshindex/internal/reference"
	"github.com/worksafe-analytics/oshindex/internal/registry"
	"github.com/worksafe-analytics/oshindex/internal/store"
	"github.com/worksafe-analytics/oshindex/pkg/gho"
	"github.com/worksafe-analytics/oshindex/pkg/ilostat"
	"github.com/worksafe-analytics/oshindex/pkg/wgi"
)

// openStore selects the backend from configuration.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres", "":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func newFusionResolver() (*fusion.Resolver, error) {
	ref, err := reference.New()
	if err != nil {
		return nil, err
	}

	primary := ilostat.NewClient(
		ilostat.WithBaseURL(cfg.ILOStat.BaseURL),
		ilostat.WithRateLimit(cfg.ILOStat.RateLimit),
		ilostat.WithTimeout(time.Duration(cfg.ILOStat.TimeoutSecs)*time.Second),
		ilostat.WithMinYear(cfg.ILOStat.MinYear),
	)
	proxy := gho.NewClient(
		gho.WithBaseURL(cfg.GHO.BaseURL),
		gho.WithRateLimit(cfg.GHO.RateLimit),
		gho.WithTimeout(time.Duration(cfg.GHO.TimeoutSecs)*time.Second),
		gho.WithMinYear(cfg.GHO.MinYear),
	)
	contextAPI := wgi.NewClient(
		wgi.WithBaseURL(cfg.WGI.BaseURL),
		wgi.WithRateLimit(cfg.WGI.RateLimit),
		wgi.WithTimeout(time.Duration(cfg.WGI.TimeoutSecs)*time.Second),
		wgi.WithMinYear(cfg.WGI.MinYear),
	)

	return fusion.NewResolver(primary, proxy, contextAPI, ref), nil
}

func newOrchestrator(st store.Store) (*pipeline.Orchestrator, error) {
	reg, err := registry.Load()
	if err != nil {
		return nil, err
	}
	resolver, err := newFusionResolver()
	if err != nil {
		return nil, err
	}
	return pipeline.New(resolver, st, reg, cfg.Pipeline.MaxConcurrentCountries), nil
}
