// Package evidence persists business records and their append-only evidence
// trail: observations, validations, and exclusions. Nothing in this package
// deletes evidence; retention is a maintenance concern outside the pipeline.
package evidence

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/crestway-partners/leadscout/internal/model"
)

// ErrDuplicateFingerprint is returned by CreateBusiness when a record with
// the same fingerprint already exists. Callers treat it as "already
// discovered", not as a failure.
var ErrDuplicateFingerprint = eris.New("evidence: duplicate fingerprint")

// BusinessFilter specifies criteria for listing businesses.
type BusinessFilter struct {
	Status model.Status `json:"status,omitempty"`
	City   string       `json:"city,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}

// Store defines the persistence interface for the validation pipeline.
// Observation, Validation, and Exclusion writes are append-only.
type Store interface {
	// Businesses
	CreateBusiness(ctx context.Context, b *model.Business) (*model.Business, error)
	BusinessByID(ctx context.Context, id string) (*model.Business, error)
	BusinessByFingerprint(ctx context.Context, fingerprint string) (*model.Business, error)
	ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.Business, error)
	UpdateStatus(ctx context.Context, id string, status model.Status) error
	SetCoordinates(ctx context.Context, id string, lat, lon float64) error
	UpdateEnrichment(ctx context.Context, id string, websiteOK bool, websiteAgeYears float64, employeeCount *int) error

	// Evidence
	PutObservation(ctx context.Context, obs model.Observation) (string, error)
	PutObservations(ctx context.Context, obs []model.Observation) ([]string, error)
	PutValidation(ctx context.Context, v model.Validation) (string, error)
	PutExclusion(ctx context.Context, e model.Exclusion) (string, error)
	Observations(ctx context.Context, businessID, field string) ([]model.Observation, error)
	Validations(ctx context.Context, businessID string) ([]model.Validation, error)
	Exclusions(ctx context.Context, businessID string) ([]model.Exclusion, error)

	// Reporting
	StatusCounts(ctx context.Context) (map[model.Status]int, error)
	GateFailureCounts(ctx context.Context) (map[string]int, error)

	// Lookup cache. Get returns (nil, nil) on miss or expiry.
	GetCachedLookup(ctx context.Context, key string) ([]byte, error)
	SetCachedLookup(ctx context.Context, key string, data []byte, ttl time.Duration) error
	DeleteExpiredLookups(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
