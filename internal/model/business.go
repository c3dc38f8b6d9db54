// Package model defines the core entities of the lead validation pipeline:
// business records, the append-only evidence types, and the status lifecycle.
package model

import "time"

// Status represents a business record's position in the validation lifecycle.
type Status string

const (
	StatusDiscovered     Status = "discovered"
	StatusGeocoded       Status = "geocoded"
	StatusEnriched       Status = "enriched"
	StatusQualified      Status = "qualified"
	StatusExcluded       Status = "excluded"
	StatusReviewRequired Status = "review_required"
)

// statusRank orders the lifecycle. The three verdict states share a rank so
// re-validation may move between them when evidence changes, but no record
// ever moves backward toward discovered.
var statusRank = map[Status]int{
	StatusDiscovered:     0,
	StatusGeocoded:       1,
	StatusEnriched:       2,
	StatusQualified:      3,
	StatusExcluded:       3,
	StatusReviewRequired: 3,
}

// Valid reports whether s is a recognized lifecycle status.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether s is one of the three verdict states.
func (s Status) Terminal() bool {
	return s == StatusQualified || s == StatusExcluded || s == StatusReviewRequired
}

// CanAdvance reports whether a record at s may be set to next. The lifecycle
// is forward-only; setting the same status again is a no-op and allowed.
func (s Status) CanAdvance(next Status) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to >= from
}

// Business is one real-world candidate enterprise tracked by the pipeline.
// Fingerprint is derived from the normalized identity fields at discovery
// time and never changes afterward.
type Business struct {
	ID              string    `json:"id"`
	Fingerprint     string    `json:"fingerprint"`
	OriginalName    string    `json:"original_name"`
	NormalizedName  string    `json:"normalized_name"`
	Street          string    `json:"street,omitempty"`
	City            string    `json:"city,omitempty"`
	PostalCode      string    `json:"postal_code,omitempty"`
	Latitude        *float64  `json:"latitude,omitempty"`
	Longitude       *float64  `json:"longitude,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	Website         string    `json:"website,omitempty"`
	EmployeeCount   *int      `json:"employee_count,omitempty"`
	WebsiteOK       bool      `json:"website_ok"`
	WebsiteAgeYears float64   `json:"website_age_years"`
	Status          Status    `json:"status"`
	SourceURL       string    `json:"source_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (b *Business) HasCoordinates() bool {
	return b.Latitude != nil && b.Longitude != nil
}

// Draft is the unvalidated input a discovery source produces before
// normalization and fingerprinting. Optional numeric fields stay nil when
// the source did not report them.
type Draft struct {
	Name          string   `json:"name"`
	Street        string   `json:"street,omitempty"`
	City          string   `json:"city,omitempty"`
	PostalCode    string   `json:"postal_code,omitempty"`
	Phone         string   `json:"phone,omitempty"`
	Website       string   `json:"website,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	EmployeeCount *int     `json:"employee_count,omitempty"`
	PlaceTypes    []string `json:"place_types,omitempty"`
	SourceURL     string   `json:"source_url,omitempty"`
}
