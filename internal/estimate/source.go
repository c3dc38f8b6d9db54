package estimate

import (
	"context"
	"strconv"

	"github.com/crestway-partners/leadscout/internal/evidence"
	"github.com/crestway-partners/leadscout/internal/model"
)

// SourceURL marks observations produced by the estimator rather than an
// upstream directory.
const SourceURL = "internal://estimator"

// benchmarkConfidence applies to the benchmark-match observation itself; the
// match is a table lookup, not an inference.
const benchmarkConfidence = 0.9

// Source adapts the estimator to the enrichment pipeline. For each business
// with a staff count it emits a revenue_estimate observation and a
// revenue_benchmark observation recording whether a category benchmark
// matched.
type Source struct {
	store evidence.Store
}

// NewSource returns an estimator source backed by the given store for place
// type lookups.
func NewSource(store evidence.Store) *Source {
	return &Source{store: store}
}

// Name identifies the source in logs, failure records, and breaker keys.
func (s *Source) Name() string { return "estimator" }

// Observe estimates revenue for the business. A business without a staff
// count produces no observations; the revenue gate will exclude it for
// lacking evidence, which is the correct verdict for an unattested record.
func (s *Source) Observe(ctx context.Context, b *model.Business) ([]model.Observation, error) {
	if b.EmployeeCount == nil {
		return nil, nil
	}

	typeObs, err := s.store.Observations(ctx, b.ID, model.FieldPlaceType)
	if err != nil {
		return nil, err
	}
	categories := make([]string, 0, len(typeObs))
	for _, o := range typeObs {
		categories = append(categories, o.Value)
	}

	est := Estimate(categories, *b.EmployeeCount)
	if est == nil {
		return nil, nil
	}

	return []model.Observation{
		{
			BusinessID: b.ID,
			SourceURL:  SourceURL,
			Field:      model.FieldRevenueEstimate,
			Value:      strconv.FormatInt(est.Amount, 10),
			Confidence: est.Confidence,
		},
		{
			BusinessID: b.ID,
			SourceURL:  SourceURL,
			Field:      model.FieldRevenueBenchmark,
			Value:      strconv.FormatBool(est.Category != ""),
			Confidence: benchmarkConfidence,
		},
	}, nil
}
