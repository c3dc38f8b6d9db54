// Package report aggregates the pipeline's progress into point-in-time
// snapshots: the status funnel, gate failure breakdown, the review queue,
// and per-business audit trails. It backs both the status CLI and the API.
package report

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/crestway-partners/leadscout/internal/evidence"
	"github.com/crestway-partners/leadscout/internal/model"
)

// FunnelSnapshot is a point-in-time view of how many businesses sit at each
// lifecycle stage and which gates have been rejecting them.
type FunnelSnapshot struct {
	Total      int `json:"total"`
	Discovered int `json:"discovered"`
	Geocoded   int `json:"geocoded"`
	Enriched   int `json:"enriched"`
	Qualified  int `json:"qualified"`
	Excluded   int `json:"excluded"`
	Review     int `json:"review_required"`

	// GateFailures counts failed validations per gate across all history.
	GateFailures map[string]int `json:"gate_failures"`

	// QualifiedRate is qualified over all terminal records, 0 when none are
	// terminal yet.
	QualifiedRate float64 `json:"qualified_rate"`

	CollectedAt time.Time `json:"collected_at"`
}

// ReviewItem is one business waiting for human adjudication, with the gate
// verdict that parked it.
type ReviewItem struct {
	Business *model.Business `json:"business"`
	RuleID   string          `json:"rule_id,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// AuditTrail is the complete decision history for one business.
type AuditTrail struct {
	Business     *model.Business     `json:"business"`
	Observations []model.Observation `json:"observations"`
	Validations  []model.Validation  `json:"validations"`
	Exclusions   []model.Exclusion   `json:"exclusions"`
}

// Reporter reads aggregates from the evidence store.
type Reporter struct {
	store evidence.Store

	nowFunc func() time.Time
}

// NewReporter creates a Reporter over the given store.
func NewReporter(store evidence.Store) *Reporter {
	return &Reporter{store: store, nowFunc: time.Now}
}

// Funnel collects the status funnel and gate failure counts.
func (r *Reporter) Funnel(ctx context.Context) (*FunnelSnapshot, error) {
	counts, err := r.store.StatusCounts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "report: status counts")
	}
	failures, err := r.store.GateFailureCounts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "report: gate failure counts")
	}

	snap := &FunnelSnapshot{
		Discovered:   counts[model.StatusDiscovered],
		Geocoded:     counts[model.StatusGeocoded],
		Enriched:     counts[model.StatusEnriched],
		Qualified:    counts[model.StatusQualified],
		Excluded:     counts[model.StatusExcluded],
		Review:       counts[model.StatusReviewRequired],
		GateFailures: failures,
		CollectedAt:  r.nowFunc().UTC(),
	}
	for _, n := range counts {
		snap.Total += n
	}
	if terminal := snap.Qualified + snap.Excluded + snap.Review; terminal > 0 {
		snap.QualifiedRate = float64(snap.Qualified) / float64(terminal)
	}
	return snap, nil
}

// ReviewQueue lists businesses parked for review, newest first, each with
// the verdict that parked it. limit <= 0 means no limit.
func (r *Reporter) ReviewQueue(ctx context.Context, limit int) ([]ReviewItem, error) {
	businesses, err := r.store.ListBusinesses(ctx, evidence.BusinessFilter{
		Status: model.StatusReviewRequired,
		Limit:  limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "report: list review queue")
	}

	items := make([]ReviewItem, 0, len(businesses))
	for i := range businesses {
		b := &businesses[i]
		item := ReviewItem{Business: b}

		// Validations come newest first; the most recent failed row is the
		// verdict that parked the record.
		vals, err := r.store.Validations(ctx, b.ID)
		if err != nil {
			return nil, eris.Wrapf(err, "report: validations for %s", b.ID)
		}
		for _, v := range vals {
			if !v.Passed {
				item.RuleID = v.RuleID
				item.Reason = v.Reason
				break
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// Audit returns the full evidence history for a business, looked up by id
// or by fingerprint.
func (r *Reporter) Audit(ctx context.Context, idOrFingerprint string) (*AuditTrail, error) {
	b, err := r.store.BusinessByFingerprint(ctx, idOrFingerprint)
	if err != nil {
		return nil, eris.Wrap(err, "report: audit lookup")
	}
	if b == nil {
		b, err = r.store.BusinessByID(ctx, idOrFingerprint)
		if err != nil {
			return nil, eris.Wrapf(err, "report: no business with id or fingerprint %q", idOrFingerprint)
		}
	}

	obs, err := r.store.Observations(ctx, b.ID, "")
	if err != nil {
		return nil, eris.Wrap(err, "report: observations")
	}
	vals, err := r.store.Validations(ctx, b.ID)
	if err != nil {
		return nil, eris.Wrap(err, "report: validations")
	}
	excl, err := r.store.Exclusions(ctx, b.ID)
	if err != nil {
		return nil, eris.Wrap(err, "report: exclusions")
	}

	return &AuditTrail{
		Business:     b,
		Observations: obs,
		Validations:  vals,
		Exclusions:   excl,
	}, nil
}
