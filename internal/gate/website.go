package gate

import (
	"fmt"

	"github.com/crestway-partners/leadscout/internal/model"
	"github.com/crestway-partners/leadscout/internal/rules"
)

// borderlineAgeMargin is how far below the minimum age a website can be and
// still earn review instead of exclusion.
const borderlineAgeMargin = 0.5

// WebsiteAge requires a working website that has existed long enough to
// signal an established operation.
type WebsiteAge struct{}

func (WebsiteAge) ID() string { return RuleWebsiteAge }

func (WebsiteAge) Evaluate(b *model.Business, obs []model.Observation, rs *rules.RuleSet) Result {
	ageObs := observationsFor(obs, model.FieldWebsiteAge)

	if !b.WebsiteOK {
		return Result{
			RuleID:      RuleWebsiteAge,
			Reason:      "website unreachable or invalid",
			Action:      ActionExclude,
			EvidenceIDs: observationIDs(ageObs),
		}
	}

	age := b.WebsiteAgeYears
	minAge := rs.MinWebsiteAgeYears

	switch {
	case age >= minAge:
		return Result{
			RuleID:      RuleWebsiteAge,
			Passed:      true,
			Reason:      fmt.Sprintf("website age %.1f years meets %.1f year minimum", age, minAge),
			Action:      ActionNone,
			EvidenceIDs: observationIDs(ageObs),
		}
	case age >= minAge-borderlineAgeMargin:
		return Result{
			RuleID:      RuleWebsiteAge,
			Reason:      fmt.Sprintf("borderline age: %.1f years against %.1f year minimum", age, minAge),
			Action:      ActionReview,
			EvidenceIDs: observationIDs(ageObs),
		}
	default:
		return Result{
			RuleID:      RuleWebsiteAge,
			Reason:      fmt.Sprintf("website age %.1f years is below %.1f year minimum", age, minAge),
			Action:      ActionExclude,
			EvidenceIDs: observationIDs(ageObs),
		}
	}
}
