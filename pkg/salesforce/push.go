package salesforce

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/crestway-partners/leadscout/internal/model"
)

// maxBatchSize is the Salesforce Collections API limit per request.
const maxBatchSize = 200

// defaultLeadSource tags pushed leads so reps can tell pipeline leads from
// hand-entered ones.
const defaultLeadSource = "LeadScout"

// PushSummary tallies one push run.
type PushSummary struct {
	Created int
	Updated int
	Failed  int
}

// Pusher mirrors qualified businesses onto Salesforce Leads.
type Pusher struct {
	client     Client
	leadSource string
}

// NewPusher creates a Pusher. An empty leadSource falls back to the
// default tag.
func NewPusher(client Client, leadSource string) *Pusher {
	if leadSource == "" {
		leadSource = defaultLeadSource
	}
	return &Pusher{client: client, leadSource: leadSource}
}

// EnsureSchema verifies the Lead object carries the fingerprint field.
// Without it every push would create duplicates, so this runs before the
// first batch.
func (p *Pusher) EnsureSchema(ctx context.Context) error {
	schema, err := p.client.LeadSchema(ctx)
	if err != nil {
		return eris.Wrap(err, "sf: check lead schema")
	}
	for _, f := range schema.Fields {
		if f.Name == FingerprintField {
			return nil
		}
	}
	return eris.New(fmt.Sprintf("sf: Lead is missing the %s field, add it in Setup before pushing", FingerprintField))
}

// Push upserts one business. Returns true when a new lead was created.
func (p *Pusher) Push(ctx context.Context, b *model.Business) (bool, error) {
	existing, err := FindLeadByFingerprint(ctx, p.client, b.Fingerprint)
	if err != nil {
		return false, err
	}

	if existing != nil {
		if err := p.client.UpdateLead(ctx, existing.ID, p.fields(b)); err != nil {
			return false, eris.Wrap(err, fmt.Sprintf("sf: refresh lead %s", existing.ID))
		}
		return false, nil
	}

	if _, err := p.client.CreateLead(ctx, p.fields(b)); err != nil {
		return false, eris.Wrap(err, fmt.Sprintf("sf: create lead for %s", b.Fingerprint))
	}
	return true, nil
}

// PushAll partitions businesses into new and known leads, then writes both
// through the Collections API in batches of 200. Individual record failures
// are tallied and logged, not fatal.
func (p *Pusher) PushAll(ctx context.Context, businesses []model.Business) (PushSummary, error) {
	var summary PushSummary

	var inserts []map[string]any
	var updates []LeadUpdate
	for i := range businesses {
		b := &businesses[i]
		if ctx.Err() != nil {
			return summary, eris.Wrap(ctx.Err(), "sf: push cancelled")
		}
		existing, err := FindLeadByFingerprint(ctx, p.client, b.Fingerprint)
		if err != nil {
			return summary, err
		}
		if existing == nil {
			inserts = append(inserts, p.fields(b))
		} else {
			updates = append(updates, LeadUpdate{ID: existing.ID, Fields: p.fields(b)})
		}
	}

	for start := 0; start < len(inserts); start += maxBatchSize {
		end := min(start+maxBatchSize, len(inserts))
		results, err := p.client.CreateLeads(ctx, inserts[start:end])
		if err != nil {
			return summary, eris.Wrap(err, fmt.Sprintf("sf: insert leads batch %d-%d", start, end))
		}
		created, failed := tally(results)
		summary.Created += created
		summary.Failed += failed
	}

	for start := 0; start < len(updates); start += maxBatchSize {
		end := min(start+maxBatchSize, len(updates))
		results, err := p.client.UpdateLeads(ctx, updates[start:end])
		if err != nil {
			return summary, eris.Wrap(err, fmt.Sprintf("sf: update leads batch %d-%d", start, end))
		}
		updated, failed := tally(results)
		summary.Updated += updated
		summary.Failed += failed
	}

	return summary, nil
}

func (p *Pusher) fields(b *model.Business) map[string]any {
	return leadFieldsFor(b, p.leadSource)
}

// tally splits collection results into successes and failures, logging the
// failures.
func tally(results []BatchResult) (ok, failed int) {
	for _, r := range results {
		if r.Success {
			ok++
			continue
		}
		failed++
		zap.L().Warn("lead push rejected",
			zap.String("sf_id", r.ID),
			zap.Strings("errors", r.Errors),
		)
	}
	return ok, failed
}
