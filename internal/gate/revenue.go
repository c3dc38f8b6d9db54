package gate

import (
	"fmt"

	"github.com/crestway-partners/leadscout/internal/model"
	"github.com/crestway-partners/leadscout/internal/rules"
)

// Revenue is a strict conjunction: the revenue estimate must clear the
// confidence threshold AND be backed by at least one hard signal (a staff
// count, including zero, or an industry benchmark match). There is no
// warn-and-pass path; any unmet condition excludes.
type Revenue struct{}

func (Revenue) ID() string { return RuleRevenue }

func (Revenue) Evaluate(b *model.Business, obs []model.Observation, rs *rules.RuleSet) Result {
	estimateObs := observationsFor(obs, model.FieldRevenueEstimate)
	benchmarkObs := observationsFor(obs, model.FieldRevenueBenchmark)
	usedIDs := append(observationIDs(estimateObs), observationIDs(benchmarkObs)...)

	confidence := 0.0
	for _, o := range estimateObs {
		confidence = max(confidence, o.Confidence)
	}

	if confidence < rs.RevenueConfidenceThreshold {
		return Result{
			RuleID: RuleRevenue,
			Reason: fmt.Sprintf("revenue estimate confidence %.2f is below threshold %.2f",
				confidence, rs.RevenueConfidenceThreshold),
			Action:      ActionExclude,
			EvidenceIDs: usedIDs,
		}
	}

	// A staff count of zero is a reported value, not a missing one.
	staffPresent := b.EmployeeCount != nil
	benchmarkMatch := false
	for _, o := range benchmarkObs {
		if v, ok := model.ParseBool(o.Value); ok && v {
			benchmarkMatch = true
			break
		}
	}

	if !staffPresent && !benchmarkMatch {
		return Result{
			RuleID:      RuleRevenue,
			Reason:      "confidence without supporting evidence is insufficient: no staff count and no benchmark match",
			Action:      ActionExclude,
			EvidenceIDs: usedIDs,
		}
	}

	support := "industry benchmark match"
	if staffPresent {
		support = fmt.Sprintf("staff count %d", *b.EmployeeCount)
	}
	return Result{
		RuleID:      RuleRevenue,
		Passed:      true,
		Reason:      fmt.Sprintf("revenue confidence %.2f backed by %s", confidence, support),
		Action:      ActionNone,
		EvidenceIDs: usedIDs,
	}
}
