package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crestway-partners/leadscout/internal/evidence"
	"github.com/crestway-partners/leadscout/internal/model"
	"github.com/crestway-partners/leadscout/internal/resilience"
)

// Geocoder resolves a postal address to coordinates.
type Geocoder interface {
	Name() string
	Geocode(ctx context.Context, address string) (lat, lon float64, err error)
}

// Source contributes observations about a business from one upstream
// directory or lookup service. Implementations perform their own parsing;
// the enricher owns rate limiting, breakers, and retries around the call.
type Source interface {
	Name() string
	Observe(ctx context.Context, b *model.Business) ([]model.Observation, error)
}

// Enricher runs the only network-bound stage of the pipeline: geocoding a
// record and collecting observations from each configured source. Every
// outbound call goes through the per-service limiter and circuit breaker;
// a failed service is recorded and skipped, never fatal to the business.
type Enricher struct {
	store    evidence.Store
	geocoder Geocoder
	sources  []Source
	limiters *resilience.ServiceLimiters
	breakers *resilience.ServiceBreakers
	retry    resilience.RetryConfig
	failures *resilience.FailureLog
	locks    *evidence.Locks

	concurrency int
}

// NewEnricher wires the enrichment stage. The locks registry must be the
// same one the orchestrator uses.
func NewEnricher(
	store evidence.Store,
	geocoder Geocoder,
	sources []Source,
	limiters *resilience.ServiceLimiters,
	breakers *resilience.ServiceBreakers,
	retry resilience.RetryConfig,
	failures *resilience.FailureLog,
	locks *evidence.Locks,
	concurrency int,
) *Enricher {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Enricher{
		store:       store,
		geocoder:    geocoder,
		sources:     sources,
		limiters:    limiters,
		breakers:    breakers,
		retry:       retry,
		failures:    failures,
		locks:       locks,
		concurrency: concurrency,
	}
}

// Enrich geocodes one business and gathers observations from every source.
// Partial progress is durable: a record that geocoded but lost every source
// stays GEOCODED and can be enriched again later. Only context cancellation
// or a store failure aborts.
func (e *Enricher) Enrich(ctx context.Context, businessID string) error {
	mu := e.locks.Get(businessID)
	mu.Lock()
	defer mu.Unlock()

	b, err := e.store.BusinessByID(ctx, businessID)
	if err != nil {
		return err
	}

	log := zap.L().With(zap.String("business_id", b.ID), zap.String("name", b.OriginalName))

	if err := e.geocode(ctx, b, log); err != nil {
		return err
	}

	succeeded := 0
	for _, src := range e.sources {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ok, err := e.collect(ctx, b, src, log)
		if err != nil {
			return err
		}
		if ok {
			succeeded++
		}
	}

	// When every source failed, the record keeps its last durable status so
	// a later run can try again with healthy upstreams.
	if len(e.sources) > 0 && succeeded == 0 {
		log.Warn("all sources failed, record not advanced")
		return nil
	}

	if err := e.applyDerived(ctx, b); err != nil {
		return err
	}

	if b.Status.CanAdvance(model.StatusEnriched) {
		if err := e.store.UpdateStatus(ctx, b.ID, model.StatusEnriched); err != nil {
			return err
		}
	}
	log.Info("enrichment complete")
	return nil
}

// geocode fills in coordinates when the record has none. A geocoder failure
// leaves the record as-is; the geography gate routes coordinate-less records
// to review rather than rejecting them.
func (e *Enricher) geocode(ctx context.Context, b *model.Business, log *zap.Logger) error {
	if e.geocoder == nil || b.HasCoordinates() {
		return nil
	}
	if b.Street == "" && b.City == "" {
		return nil
	}

	service := e.geocoder.Name()
	address := b.Street
	if b.City != "" {
		address += ", " + b.City
	}
	if b.PostalCode != "" {
		address += ", " + b.PostalCode
	}

	type point struct{ lat, lon float64 }
	pt, err := resilience.ExecuteVal(ctx, e.breakers.Get(service), func(ctx context.Context) (point, error) {
		return resilience.DoVal(ctx, e.retryFor(service, "geocode"), func(ctx context.Context) (point, error) {
			if err := e.limiters.Wait(ctx, service); err != nil {
				return point{}, err
			}
			lat, lon, err := e.geocoder.Geocode(ctx, address)
			return point{lat, lon}, err
		})
	})
	if err != nil {
		e.failures.Record(b.ID, service, e.retry.MaxAttempts, err)
		log.Warn("geocoding failed, record stays at current status",
			zap.String("service", service),
			zap.Error(err),
		)
		return nil
	}

	if err := e.store.SetCoordinates(ctx, b.ID, pt.lat, pt.lon); err != nil {
		return err
	}
	b.Latitude = &pt.lat
	b.Longitude = &pt.lon

	if b.Status.CanAdvance(model.StatusGeocoded) {
		if err := e.store.UpdateStatus(ctx, b.ID, model.StatusGeocoded); err != nil {
			return err
		}
		b.Status = model.StatusGeocoded
	}
	return nil
}

// collect runs one source under the resilience wrappers and appends whatever
// observations it produced. The bool reports whether the source call itself
// succeeded; store errors come back as the error.
func (e *Enricher) collect(ctx context.Context, b *model.Business, src Source, log *zap.Logger) (bool, error) {
	service := src.Name()

	observations, err := resilience.ExecuteVal(ctx, e.breakers.Get(service), func(ctx context.Context) ([]model.Observation, error) {
		return resilience.DoVal(ctx, e.retryFor(service, "observe"), func(ctx context.Context) ([]model.Observation, error) {
			if err := e.limiters.Wait(ctx, service); err != nil {
				return nil, err
			}
			return src.Observe(ctx, b)
		})
	})
	if err != nil {
		e.failures.Record(b.ID, service, e.retry.MaxAttempts, err)
		log.Warn("source failed, continuing with remaining sources",
			zap.String("service", service),
			zap.Error(err),
		)
		return false, nil
	}

	for i := range observations {
		observations[i].BusinessID = b.ID
	}
	if _, err := e.store.PutObservations(ctx, observations); err != nil {
		return false, err
	}
	log.Debug("source observations stored",
		zap.String("service", service),
		zap.Int("count", len(observations)),
	)
	return true, nil
}

// applyDerived folds the accumulated observations into the record's derived
// signal fields: website health and age, and the best employee count.
func (e *Enricher) applyDerived(ctx context.Context, b *model.Business) error {
	ageObs, err := e.store.Observations(ctx, b.ID, model.FieldWebsiteAge)
	if err != nil {
		return err
	}

	websiteOK := false
	ageYears := 0.0
	bestAge := -1.0
	for _, o := range ageObs {
		v, ok := model.ParseFloat(o.Value)
		if !ok {
			continue
		}
		websiteOK = b.Website != ""
		if o.Confidence > bestAge {
			bestAge = o.Confidence
			ageYears = v
		}
	}

	countObs, err := e.store.Observations(ctx, b.ID, model.FieldEmployeeCount)
	if err != nil {
		return err
	}

	employeeCount := b.EmployeeCount
	bestCount := -1.0
	for _, o := range countObs {
		v, ok := model.ParseInt(o.Value)
		if !ok {
			continue
		}
		if o.Confidence > bestCount {
			bestCount = o.Confidence
			employeeCount = &v
		}
	}

	if err := e.store.UpdateEnrichment(ctx, b.ID, websiteOK, ageYears, employeeCount); err != nil {
		return err
	}
	b.WebsiteOK = websiteOK
	b.WebsiteAgeYears = ageYears
	b.EmployeeCount = employeeCount
	return nil
}

func (e *Enricher) retryFor(service, operation string) resilience.RetryConfig {
	cfg := e.retry
	cfg.OnRetry = resilience.RetryLogger(service, operation)
	return cfg
}

// EnrichAll enriches every business matching the filter with bounded
// concurrency. Per-business errors are counted and logged but do not abort
// the batch.
func (e *Enricher) EnrichAll(ctx context.Context, filter evidence.BusinessFilter) (processed, failed int, err error) {
	businesses, err := e.store.ListBusinesses(ctx, filter)
	if err != nil {
		return 0, 0, err
	}

	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, b := range businesses {
		g.Go(func() error {
			enrichErr := e.Enrich(gCtx, b.ID)

			mu.Lock()
			defer mu.Unlock()
			processed++
			if enrichErr != nil {
				failed++
				zap.L().Warn("enrichment failed",
					zap.String("business_id", b.ID),
					zap.Error(enrichErr),
				)
			}
			return nil
		})
	}
	if waitErr := g.Wait(); waitErr != nil {
		return processed, failed, waitErr
	}
	return processed, failed, ctx.Err()
}
