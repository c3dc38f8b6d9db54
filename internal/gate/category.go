package gate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/crestway-partners/leadscout/internal/model"
	"github.com/crestway-partners/leadscout/internal/rules"
)

// Category rejects businesses whose name or observed place types mark them as
// out of scope. Blacklist and review checks take precedence over the
// whitelist check, so a borderline type is never silently whitelisted.
type Category struct{}

func (Category) ID() string { return RuleCategory }

func (Category) Evaluate(b *model.Business, obs []model.Observation, rs *rules.RuleSet) Result {
	if pattern := rs.NameBlacklisted(b.OriginalName); pattern != "" {
		return Result{
			RuleID: RuleCategory,
			Reason: fmt.Sprintf("name %q matched blacklist pattern %q", b.OriginalName, pattern),
			Action: ActionExclude,
		}
	}

	typeObs := observationsFor(obs, model.FieldPlaceType)
	types := placeTypes(typeObs)

	for _, pt := range types {
		if rs.CategoryBlacklist[pt] {
			return Result{
				RuleID:      RuleCategory,
				Reason:      fmt.Sprintf("place type %q is blacklisted", pt),
				Action:      ActionExclude,
				EvidenceIDs: observationIDs(typeObs),
			}
		}
	}

	for _, pt := range types {
		if rs.ReviewCategories[pt] {
			return Result{
				RuleID:      RuleCategory,
				Reason:      fmt.Sprintf("place type %q requires manual review", pt),
				Action:      ActionReview,
				EvidenceIDs: observationIDs(typeObs),
			}
		}
	}

	// An empty whitelist means no category targeting is configured.
	if len(rs.CategoryWhitelist) > 0 {
		matched := ""
		for _, pt := range types {
			if rs.CategoryWhitelist[pt] {
				matched = pt
				break
			}
		}
		if matched == "" {
			return Result{
				RuleID:      RuleCategory,
				Reason:      fmt.Sprintf("no recognized target category among [%s]", strings.Join(types, ", ")),
				Action:      ActionExclude,
				EvidenceIDs: observationIDs(typeObs),
			}
		}
		return Result{
			RuleID:      RuleCategory,
			Passed:      true,
			Reason:      fmt.Sprintf("place type %q is a recognized target category", matched),
			Action:      ActionNone,
			EvidenceIDs: observationIDs(typeObs),
		}
	}

	return Result{
		RuleID:      RuleCategory,
		Passed:      true,
		Reason:      "no category restrictions matched",
		Action:      ActionNone,
		EvidenceIDs: observationIDs(typeObs),
	}
}

// placeTypes returns the distinct observed place types, lowercased and
// sorted so evaluation order never depends on observation order.
func placeTypes(obs []model.Observation) []string {
	seen := make(map[string]bool, len(obs))
	for _, o := range obs {
		pt := strings.ToLower(strings.TrimSpace(o.Value))
		if pt != "" {
			seen[pt] = true
		}
	}

	types := make([]string, 0, len(seen))
	for pt := range seen {
		types = append(types, pt)
	}
	sort.Strings(types)
	return types
}
