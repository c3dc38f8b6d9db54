package gate

import (
	"fmt"
	"math"

	"github.com/crestway-partners/leadscout/internal/model"
	"github.com/crestway-partners/leadscout/internal/rules"
)

const earthRadiusKm = 6371.0

// Geography enforces two independent checks: the record must lie within the
// configured radius of the service-area center, and its city must be in the
// allowed set. Both must hold. A record without coordinates cannot be
// evaluated and is routed to review instead of rejected.
type Geography struct{}

func (Geography) ID() string { return RuleGeography }

func (Geography) Evaluate(b *model.Business, obs []model.Observation, rs *rules.RuleSet) Result {
	coordObs := observationsFor(obs, model.FieldCoordinates)

	if !b.HasCoordinates() {
		return Result{
			RuleID:      RuleGeography,
			Reason:      "no coordinates available, distance check cannot run",
			Action:      ActionReview,
			EvidenceIDs: observationIDs(coordObs),
		}
	}

	dist := haversineKm(*b.Latitude, *b.Longitude, rs.GeoCenterLat, rs.GeoCenterLon)
	withinRadius := dist <= rs.GeoRadiusKm
	cityAllowed := rs.CityAllowed(b.City)

	switch {
	case !withinRadius && !cityAllowed:
		return Result{
			RuleID: RuleGeography,
			Reason: fmt.Sprintf("distance %.1f km exceeds %.1f km radius and city %q is not in the allowed set",
				dist, rs.GeoRadiusKm, b.City),
			Action:      ActionExclude,
			EvidenceIDs: observationIDs(coordObs),
		}
	case !withinRadius:
		return Result{
			RuleID: RuleGeography,
			Reason: fmt.Sprintf("distance %.1f km exceeds %.1f km radius", dist, rs.GeoRadiusKm),
			Action:      ActionExclude,
			EvidenceIDs: observationIDs(coordObs),
		}
	case !cityAllowed:
		return Result{
			RuleID: RuleGeography,
			Reason: fmt.Sprintf("city %q is not in the allowed set (distance %.1f km within %.1f km radius)",
				b.City, dist, rs.GeoRadiusKm),
			Action:      ActionExclude,
			EvidenceIDs: observationIDs(coordObs),
		}
	}

	return Result{
		RuleID:      RuleGeography,
		Passed:      true,
		Reason:      fmt.Sprintf("within service area: %.1f km from center, city %q allowed", dist, b.City),
		Action:      ActionNone,
		EvidenceIDs: observationIDs(coordObs),
	}
}

// haversineKm computes the great-circle distance between two points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
