package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/crestway-partners/leadscout/internal/model"
)

// FingerprintField is the custom external ID field on Lead that makes
// pushes idempotent. The org admin must add it before the first push;
// EnsureSchema checks for it.
const FingerprintField = "Fingerprint__c"

// Lead represents a Salesforce Lead record mirrored from a qualified
// business.
type Lead struct {
	ID                string `json:"Id" salesforce:"Id"`
	Company           string `json:"Company" salesforce:"Company"`
	LastName          string `json:"LastName" salesforce:"LastName"`
	Street            string `json:"Street" salesforce:"Street"`
	City              string `json:"City" salesforce:"City"`
	PostalCode        string `json:"PostalCode" salesforce:"PostalCode"`
	Phone             string `json:"Phone" salesforce:"Phone"`
	Website           string `json:"Website" salesforce:"Website"`
	NumberOfEmployees int    `json:"NumberOfEmployees" salesforce:"NumberOfEmployees"`
	LeadSource        string `json:"LeadSource" salesforce:"LeadSource"`
	Fingerprint       string `json:"Fingerprint__c" salesforce:"Fingerprint__c"`
}

// leadFields are the SOQL fields selected for Lead queries.
var leadFields = []string{
	"Id", "Company", "LastName", "Street", "City", "PostalCode",
	"Phone", "Website", "NumberOfEmployees", "LeadSource", FingerprintField,
}

// FindLeadByFingerprint queries Salesforce for a Lead carrying the given
// fingerprint. Returns nil if no lead is found.
func FindLeadByFingerprint(ctx context.Context, c Client, fingerprint string) (*Lead, error) {
	soql := fmt.Sprintf(
		"SELECT %s FROM Lead WHERE %s = '%s' LIMIT 1",
		strings.Join(leadFields, ", "),
		FingerprintField,
		escapeSoql(fingerprint),
	)

	leads, err := c.QueryLeads(ctx, soql)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find lead by fingerprint %s", fingerprint))
	}
	if len(leads) == 0 {
		return nil, nil
	}
	return &leads[0], nil
}

// leadFieldsFor maps a business onto Lead fields. Lead requires LastName;
// the pipeline tracks companies, not people, so the company name doubles
// as the contact surname until a reviewer fills in a real one.
func leadFieldsFor(b *model.Business, leadSource string) map[string]any {
	fields := map[string]any{
		"Company":        b.OriginalName,
		"LastName":       b.OriginalName,
		"LeadSource":     leadSource,
		FingerprintField: b.Fingerprint,
	}
	if b.Street != "" {
		fields["Street"] = b.Street
	}
	if b.City != "" {
		fields["City"] = b.City
	}
	if b.PostalCode != "" {
		fields["PostalCode"] = b.PostalCode
	}
	if b.Phone != "" {
		fields["Phone"] = b.Phone
	}
	if b.Website != "" {
		fields["Website"] = "https://" + b.Website
	}
	if b.EmployeeCount != nil {
		fields["NumberOfEmployees"] = *b.EmployeeCount
	}
	return fields
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
