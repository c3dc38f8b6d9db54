package rdap

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/crestway-partners/leadscout/internal/model"
)

// ageConfidence applies to registry-backed age observations. Registration
// dates come straight from the registry, but a domain's age only bounds the
// business's age from above.
const ageConfidence = 0.9

// Source adapts the RDAP client to the enrichment pipeline, emitting one
// website_age observation per business with a website.
type Source struct {
	client *Client
}

// NewSource wraps a client as an enrichment source.
func NewSource(client *Client) *Source {
	return &Source{client: client}
}

// Name identifies the source in logs, failure records, and breaker keys.
func (s *Source) Name() string { return ServiceName }

// Observe looks up the registration age of the business's domain. A business
// without a website, or a domain with no RDAP record, produces no
// observations and no error; the website gate turns the missing signal into
// a review verdict.
func (s *Source) Observe(ctx context.Context, b *model.Business) ([]model.Observation, error) {
	if b.Website == "" {
		return nil, nil
	}

	age, err := s.client.DomainAge(ctx, b.Website)
	if err != nil {
		if eris.Is(err, ErrNoRecord) {
			return nil, nil
		}
		return nil, err
	}

	return []model.Observation{
		{
			BusinessID: b.ID,
			SourceURL:  s.client.baseURL + "/domain/" + hostOf(b.Website),
			Field:      model.FieldWebsiteAge,
			Value:      strconv.FormatFloat(age, 'f', 1, 64),
			Confidence: ageConfidence,
		},
	}, nil
}
