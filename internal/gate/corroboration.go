package gate

import (
	"fmt"

	"github.com/crestway-partners/leadscout/internal/model"
	"github.com/crestway-partners/leadscout/internal/normalize"
	"github.com/crestway-partners/leadscout/internal/rules"
)

// corroborationKinds maps each tracked field to the normalization applied
// before grouping, so "100 King St W" and "100 king street west" count as
// agreement.
var corroborationKinds = map[string]normalize.Kind{
	model.FieldAddress:    normalize.KindAddress,
	model.FieldPhone:      normalize.KindPhone,
	model.FieldPostalCode: normalize.KindPostalCode,
}

// Corroboration requires independent sources to agree on each critical field
// before the record is trusted. Fields are checked in a fixed order and the
// gate returns on the first field that does not cleanly pass.
type Corroboration struct{}

func (Corroboration) ID() string { return RuleCorroboration }

func (Corroboration) Evaluate(b *model.Business, obs []model.Observation, rs *rules.RuleSet) Result {
	var usedIDs []string

	for _, field := range model.CorroboratedFields {
		fieldObs := observationsFor(obs, field)
		usedIDs = append(usedIDs, observationIDs(fieldObs)...)

		if res, ok := checkField(field, fieldObs, rs.MinSources); !ok {
			return res
		}
	}

	return Result{
		RuleID:      RuleCorroboration,
		Passed:      true,
		Reason:      fmt.Sprintf("all critical fields corroborated by at least %d sources", rs.MinSources),
		Action:      ActionNone,
		EvidenceIDs: usedIDs,
	}
}

// checkField groups one field's observations by normalized value and decides
// whether independent sources agree. ok is true only when the largest group
// reaches minSources.
func checkField(field string, obs []model.Observation, minSources int) (Result, bool) {
	groups := make(map[string]int)
	for _, o := range obs {
		groups[normalize.Value(o.Value, corroborationKinds[field])]++
	}

	largest := 0
	for _, n := range groups {
		largest = max(largest, n)
	}
	if largest >= minSources {
		return Result{}, true
	}

	total := len(obs)
	ids := observationIDs(obs)

	switch {
	case total == 0:
		return Result{
			RuleID:      RuleCorroboration,
			Reason:      fmt.Sprintf("no sources for %s", field),
			Action:      ActionReview,
			EvidenceIDs: ids,
		}, false
	case total == 1:
		return Result{
			RuleID:      RuleCorroboration,
			Reason:      fmt.Sprintf("single source for %s", field),
			Action:      ActionReview,
			EvidenceIDs: ids,
		}, false
	case total == 2 && len(groups) == 2:
		return Result{
			RuleID:      RuleCorroboration,
			Reason:      fmt.Sprintf("1-vs-1 conflict on %s", field),
			Action:      ActionReview,
			EvidenceIDs: ids,
		}, false
	case total >= 3:
		return Result{
			RuleID:      RuleCorroboration,
			Reason:      fmt.Sprintf("unresolvable conflict on %s: %d sources with no %d-way agreement", field, total, minSources),
			Action:      ActionExclude,
			EvidenceIDs: ids,
		}, false
	default:
		// Two agreeing sources under a minSources raised above two.
		return Result{
			RuleID:      RuleCorroboration,
			Reason:      fmt.Sprintf("only %d agreeing sources for %s, need %d", largest, field, minSources),
			Action:      ActionReview,
			EvidenceIDs: ids,
		}, false
	}
}
