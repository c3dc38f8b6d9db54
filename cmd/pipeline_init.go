package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/crestway-partners/leadscout/internal/cache"
	"github.com/crestway-partners/leadscout/internal/estimate"
	"github.com/crestway-partners/leadscout/internal/evidence"
	"github.com/crestway-partners/leadscout/internal/pipeline"
	"github.com/crestway-partners/leadscout/internal/report"
	"github.com/crestway-partners/leadscout/internal/resilience"
	"github.com/crestway-partners/leadscout/internal/rules"
	"github.com/crestway-partners/leadscout/pkg/geocode"
	"github.com/crestway-partners/leadscout/pkg/rdap"
)

// pipelineEnv holds the initialized store, rule provider, and pipeline stages
// needed by the discover/import/enrich/validate/serve commands.
type pipelineEnv struct {
	Store        evidence.Store
	Rules        *rules.Provider
	Orchestrator *pipeline.Orchestrator
	Enricher     *pipeline.Enricher
	Reporter     *report.Reporter
	Failures     *resilience.FailureLog
	Lookups      *cache.Tiered
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Lookups != nil {
		stats := pe.Lookups.Stats()
		zap.L().Debug("lookup cache",
			zap.Int64("hits", stats.Hits),
			zap.Int64("misses", stats.Misses),
			zap.Float64("hit_rate", stats.HitRate),
		)
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline sets up the store, rule provider, and both pipeline stages.
// Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate("pipeline"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	provider, err := loadRules()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	locks := evidence.NewLocks()
	failures := resilience.NewFailureLog()
	workers := cfg.Pipeline.Workers

	ttl := time.Duration(cfg.Geocode.CacheTTLSeconds) * time.Second
	lookups := cache.NewTiered(cache.New(lookupCacheEntries, ttl), st)

	orchestrator := pipeline.NewOrchestrator(st, provider, locks, workers)
	enricher := pipeline.NewEnricher(
		st,
		buildGeocoder(lookups),
		buildSources(st, lookups),
		cfg.Resilience.Limiters(),
		resilience.NewServiceBreakers(cfg.Resilience.Circuit()),
		cfg.Resilience.Retry(),
		failures,
		locks,
		workers,
	)

	return &pipelineEnv{
		Store:        st,
		Rules:        provider,
		Orchestrator: orchestrator,
		Enricher:     enricher,
		Reporter:     report.NewReporter(st),
		Failures:     failures,
		Lookups:      lookups,
	}, nil
}

// lookupCacheEntries bounds the in-memory layer of the lookup cache; the
// durable layer in the store has no bound.
const lookupCacheEntries = 4096

// buildGeocoder returns the configured geocoder, or nil when geocoding is
// disabled. Records without coordinates then rely on seed data and the
// geography gate's review routing.
func buildGeocoder(lookups *cache.Tiered) pipeline.Geocoder {
	if !cfg.Geocode.Enabled {
		zap.L().Debug("geocoding disabled")
		return nil
	}

	ttl := time.Duration(cfg.Geocode.CacheTTLSeconds) * time.Second
	opts := []geocode.Option{geocode.WithCache(lookups, ttl)}
	if cfg.Geocode.BaseURL != "" {
		opts = append(opts, geocode.WithBaseURL(cfg.Geocode.BaseURL))
	}
	if cfg.Geocode.UserAgent != "" {
		opts = append(opts, geocode.WithUserAgent(cfg.Geocode.UserAgent))
	}
	if cfg.Geocode.CountryCodes != "" {
		opts = append(opts, geocode.WithCountryCodes(cfg.Geocode.CountryCodes))
	}
	return geocode.NewClient(opts...)
}

// buildSources assembles the enrichment sources: domain registration age via
// RDAP, then the deterministic revenue estimator, which reads the staff count
// and place types the other sources have already stored.
func buildSources(st evidence.Store, lookups *cache.Tiered) []pipeline.Source {
	ttl := time.Duration(cfg.Geocode.CacheTTLSeconds) * time.Second
	return []pipeline.Source{
		rdap.NewSource(rdap.NewClient(rdap.WithCache(lookups, ttl))),
		estimate.NewSource(st),
	}
}
