// Package pipeline drives businesses through discovery, enrichment, and the
// validation gate chain. All writes for one business are serialized through a
// per-entity lock; different businesses proceed independently.
package pipeline

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crestway-partners/leadscout/internal/evidence"
	"github.com/crestway-partners/leadscout/internal/gate"
	"github.com/crestway-partners/leadscout/internal/model"
	"github.com/crestway-partners/leadscout/internal/normalize"
	"github.com/crestway-partners/leadscout/internal/rules"
)

// discoveryConfidence is attached to observations seeded from a discovery
// source's own listing.
const discoveryConfidence = 0.8

// Orchestrator owns the decision flow: it creates records from drafts,
// re-runs the gate chain on demand, and persists every verdict with the
// evidence that produced it.
type Orchestrator struct {
	store       evidence.Store
	rules       *rules.Provider
	chain       *gate.Chain
	locks       *evidence.Locks
	concurrency int
}

// NewOrchestrator wires the orchestrator's dependencies. The locks registry
// is shared with the enricher so discovery, enrichment, and validation of the
// same business never interleave.
func NewOrchestrator(store evidence.Store, provider *rules.Provider, locks *evidence.Locks, concurrency int) *Orchestrator {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Orchestrator{
		store:       store,
		rules:       provider,
		chain:       gate.NewChain(),
		locks:       locks,
		concurrency: concurrency,
	}
}

// Discover fingerprints a draft and persists it as a new DISCOVERED business.
// A draft whose fingerprint already exists is never stored as a second
// entity; instead its field claims are appended as corroborating
// observations on the existing record, and created is false.
func (o *Orchestrator) Discover(ctx context.Context, draft model.Draft) (b *model.Business, created bool, err error) {
	fingerprint := normalize.Fingerprint(draft.Name, draft.Street, draft.City, draft.PostalCode, draft.Phone)

	mu := o.locks.Get(fingerprint)
	mu.Lock()
	defer mu.Unlock()

	existing, err := o.store.BusinessByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if err := o.corroborate(ctx, existing, draft); err != nil {
			return nil, false, err
		}
		zap.L().Debug("discovery: duplicate fingerprint corroborates existing record",
			zap.String("fingerprint", fingerprint),
			zap.String("business_id", existing.ID),
			zap.String("source", draft.SourceURL),
		)
		return existing, false, nil
	}

	record := &model.Business{
		Fingerprint:    fingerprint,
		OriginalName:   draft.Name,
		NormalizedName: normalize.Name(draft.Name),
		Street:         normalize.Address(draft.Street),
		City:           draft.City,
		PostalCode:     normalize.PostalCode(draft.PostalCode),
		Latitude:       draft.Latitude,
		Longitude:      draft.Longitude,
		Phone:          normalize.Phone(draft.Phone),
		Website:        normalize.Website(draft.Website),
		EmployeeCount:  draft.EmployeeCount,
		SourceURL:      draft.SourceURL,
	}

	stored, err := o.store.CreateBusiness(ctx, record)
	if err != nil {
		// Lost a race against another discovery of the same fingerprint.
		if eris.Is(err, evidence.ErrDuplicateFingerprint) {
			if existing, lookupErr := o.store.BusinessByFingerprint(ctx, fingerprint); lookupErr == nil && existing != nil {
				if obsErr := o.corroborate(ctx, existing, draft); obsErr != nil {
					return nil, false, obsErr
				}
				return existing, false, nil
			}
		}
		return nil, false, err
	}

	if _, err := o.store.PutObservations(ctx, seedObservations(stored.ID, draft)); err != nil {
		return nil, false, err
	}

	zap.L().Info("discovery: new business",
		zap.String("business_id", stored.ID),
		zap.String("name", stored.OriginalName),
		zap.String("fingerprint", fingerprint),
	)
	return stored, true, nil
}

// corroborate appends a duplicate draft's claims to the existing record
// under that record's entity lock, so a gate run or enrichment in flight on
// the business never sees observations appear mid-cycle. The caller holds
// the fingerprint lock; lock order is always fingerprint, then entity id.
func (o *Orchestrator) corroborate(ctx context.Context, existing *model.Business, draft model.Draft) error {
	mu := o.locks.Get(existing.ID)
	mu.Lock()
	defer mu.Unlock()

	_, err := o.store.PutObservations(ctx, seedObservations(existing.ID, draft))
	return err
}

// seedObservations turns a draft's field claims into observations attributed
// to the discovering source.
func seedObservations(businessID string, draft model.Draft) []model.Observation {
	var observations []model.Observation
	add := func(field, value string) {
		if value == "" {
			return
		}
		observations = append(observations, model.Observation{
			BusinessID: businessID,
			SourceURL:  draft.SourceURL,
			Field:      field,
			Value:      value,
			Confidence: discoveryConfidence,
		})
	}

	add(model.FieldAddress, draft.Street)
	add(model.FieldPhone, draft.Phone)
	add(model.FieldPostalCode, draft.PostalCode)
	for _, pt := range draft.PlaceTypes {
		add(model.FieldPlaceType, pt)
	}
	return observations
}

// Validate re-evaluates one business against the current rule set. It loads
// the record and its full observation history, runs the gate chain, persists
// the verdict rows, and advances the status. Re-validating an already
// terminal record is allowed and may flip it to a different terminal state
// when the evidence has changed since the last run.
func (o *Orchestrator) Validate(ctx context.Context, businessID string) (model.Status, []string, error) {
	mu := o.locks.Get(businessID)
	mu.Lock()
	defer mu.Unlock()

	b, err := o.store.BusinessByID(ctx, businessID)
	if err != nil {
		return "", nil, err
	}

	observations, err := o.store.Observations(ctx, businessID, "")
	if err != nil {
		return "", nil, err
	}

	out := o.chain.Run(b, observations, o.rules.Current())

	if err := o.persistOutcome(ctx, b, out); err != nil {
		return "", nil, err
	}

	zap.L().Info("validation complete",
		zap.String("business_id", businessID),
		zap.String("status", string(out.Status)),
		zap.Int("gates_run", len(out.Results)),
	)
	return out.Status, out.Reasons(), nil
}

// persistOutcome writes the verdict rows and the status transition. A fully
// qualified run persists every gate's validation together; a short-circuited
// run persists only the deciding gate's row, plus an exclusion record when
// the action was auto-exclude.
func (o *Orchestrator) persistOutcome(ctx context.Context, b *model.Business, out gate.Outcome) error {
	switch out.Status {
	case model.StatusQualified:
		for _, res := range out.Results {
			if _, err := o.store.PutValidation(ctx, validationRow(b.ID, res)); err != nil {
				return err
			}
		}

	case model.StatusReviewRequired:
		deciding := out.Results[len(out.Results)-1]
		if _, err := o.store.PutValidation(ctx, validationRow(b.ID, deciding)); err != nil {
			return err
		}

	case model.StatusExcluded:
		deciding := out.Results[len(out.Results)-1]
		if _, err := o.store.PutValidation(ctx, validationRow(b.ID, deciding)); err != nil {
			return err
		}
		if _, err := o.store.PutExclusion(ctx, model.Exclusion{
			BusinessID:  b.ID,
			RuleID:      deciding.RuleID,
			Reason:      deciding.Reason,
			EvidenceIDs: deciding.EvidenceIDs,
		}); err != nil {
			return err
		}
	}

	if b.Status == out.Status {
		return nil
	}
	if !b.Status.CanAdvance(out.Status) {
		return eris.Errorf("pipeline: illegal status transition %s -> %s for %s", b.Status, out.Status, b.ID)
	}
	return o.store.UpdateStatus(ctx, b.ID, out.Status)
}

func validationRow(businessID string, res gate.Result) model.Validation {
	return model.Validation{
		BusinessID:  businessID,
		RuleID:      res.RuleID,
		Passed:      res.Passed,
		Reason:      res.Reason,
		EvidenceIDs: res.EvidenceIDs,
	}
}

// Summary aggregates the verdicts of a batch validation run.
type Summary struct {
	Processed int `json:"processed"`
	Qualified int `json:"qualified"`
	Excluded  int `json:"excluded"`
	Review    int `json:"review"`
	Failed    int `json:"failed"`
}

// ValidateAll runs the gate chain over every business matching the filter,
// with bounded concurrency. Per-business errors are counted and logged but
// do not abort the batch.
func (o *Orchestrator) ValidateAll(ctx context.Context, filter evidence.BusinessFilter) (Summary, error) {
	businesses, err := o.store.ListBusinesses(ctx, filter)
	if err != nil {
		return Summary{}, err
	}

	var mu sync.Mutex
	summary := Summary{}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for _, b := range businesses {
		g.Go(func() error {
			status, _, err := o.Validate(gCtx, b.ID)

			mu.Lock()
			defer mu.Unlock()
			summary.Processed++
			if err != nil {
				summary.Failed++
				zap.L().Warn("validation failed",
					zap.String("business_id", b.ID),
					zap.Error(err),
				)
				return nil
			}
			switch status {
			case model.StatusQualified:
				summary.Qualified++
			case model.StatusExcluded:
				summary.Excluded++
			case model.StatusReviewRequired:
				summary.Review++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, eris.Wrap(ctx.Err(), "pipeline: validate all")
}
