// Package gate implements the validation decision chain. Each gate is a pure
// function of a business record, its observations, and the active rule set;
// the chain runs them in a fixed order and stops at the first gate that does
// not pass.
package gate

import (
	"github.com/crestway-partners/leadscout/internal/model"
	"github.com/crestway-partners/leadscout/internal/rules"
)

// Action is what a non-passing gate asks the orchestrator to do.
type Action string

const (
	ActionNone    Action = "none"
	ActionReview  Action = "review_required"
	ActionExclude Action = "auto_exclude"
)

// Rule identifiers, recorded on every Validation and Exclusion row.
const (
	RuleCategory      = "category"
	RuleGeography     = "geography"
	RuleCorroboration = "corroboration"
	RuleWebsiteAge    = "website_age"
	RuleRevenue       = "revenue"
)

// Result is the outcome of one gate evaluation.
type Result struct {
	RuleID      string
	Passed      bool
	Reason      string
	Action      Action
	EvidenceIDs []string
}

// Gate evaluates one rule against a business and its evidence. Evaluations
// must be deterministic: identical inputs always produce identical results.
type Gate interface {
	ID() string
	Evaluate(b *model.Business, obs []model.Observation, rs *rules.RuleSet) Result
}

// Chain runs gates in a fixed order with short-circuit semantics: the first
// gate that reviews or excludes ends the run and no later gate is evaluated.
type Chain struct {
	gates []Gate
}

// NewChain returns the standard chain: category, geography, corroboration,
// website age, revenue.
func NewChain() *Chain {
	return &Chain{gates: []Gate{
		Category{},
		Geography{},
		Corroboration{},
		WebsiteAge{},
		Revenue{},
	}}
}

// Outcome is the aggregate result of a chain run.
type Outcome struct {
	Status  model.Status
	Results []Result
}

// Reasons returns the per-gate reasons in evaluation order.
func (o Outcome) Reasons() []string {
	reasons := make([]string, len(o.Results))
	for i, r := range o.Results {
		reasons[i] = r.Reason
	}
	return reasons
}

// Run evaluates gates in order until one does not pass. Results holds every
// gate that ran, so the last entry carries the deciding reason when the
// outcome is not qualified.
func (c *Chain) Run(b *model.Business, obs []model.Observation, rs *rules.RuleSet) Outcome {
	out := Outcome{Status: model.StatusQualified}

	for _, g := range c.gates {
		res := g.Evaluate(b, obs, rs)
		out.Results = append(out.Results, res)

		switch res.Action {
		case ActionReview:
			out.Status = model.StatusReviewRequired
			return out
		case ActionExclude:
			out.Status = model.StatusExcluded
			return out
		}
	}
	return out
}

// observationsFor filters observations down to one field, preserving order.
func observationsFor(obs []model.Observation, field string) []model.Observation {
	var filtered []model.Observation
	for _, o := range obs {
		if o.Field == field {
			filtered = append(filtered, o)
		}
	}
	return filtered
}

// observationIDs collects the ids of a set of observations.
func observationIDs(obs []model.Observation) []string {
	if len(obs) == 0 {
		return nil
	}
	ids := make([]string, len(obs))
	for i, o := range obs {
		ids[i] = o.ID
	}
	return ids
}
