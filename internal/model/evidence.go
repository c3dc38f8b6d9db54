package model

import "time"

// Canonical observation field names shared by sources, gates, and the store.
// Sources may emit other field names; the gates only read these.
const (
	FieldAddress          = "address"
	FieldPhone            = "phone"
	FieldPostalCode       = "postal_code"
	FieldPlaceType        = "place_type"
	FieldCoordinates      = "coordinates"
	FieldWebsiteAge       = "website_age"
	FieldRevenueEstimate  = "revenue_estimate"
	FieldRevenueBenchmark = "revenue_benchmark"
	FieldEmployeeCount    = "employee_count"
)

// CorroboratedFields lists the fields the corroboration gate checks, in
// evaluation order.
var CorroboratedFields = []string{FieldAddress, FieldPhone, FieldPostalCode}

// Observation is one fact asserted by one source at one time. Observations
// are immutable once written; multiple observations for the same
// (business, field) pair from different sources are expected.
type Observation struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id"`
	SourceURL  string    `json:"source_url"`
	Field      string    `json:"field"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	ObservedAt time.Time `json:"observed_at"`
}

// Validation records the outcome of one gate evaluation for one business.
// One row per evaluation; rows are never overwritten.
type Validation struct {
	ID          string    `json:"id"`
	BusinessID  string    `json:"business_id"`
	RuleID      string    `json:"rule_id"`
	Passed      bool      `json:"passed"`
	Reason      string    `json:"reason"`
	EvidenceIDs []string  `json:"evidence_ids"`
	ValidatedAt time.Time `json:"validated_at"`
}

// Exclusion records a gate auto-rejection.
type Exclusion struct {
	ID          string    `json:"id"`
	BusinessID  string    `json:"business_id"`
	RuleID      string    `json:"rule_id"`
	Reason      string    `json:"reason"`
	EvidenceIDs []string  `json:"evidence_ids"`
	ExcludedAt  time.Time `json:"excluded_at"`
}
