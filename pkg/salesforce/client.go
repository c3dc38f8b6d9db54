// Package salesforce pushes qualified leads into Salesforce. Pushes are
// idempotent against a custom fingerprint field, so re-running the pipeline
// refreshes existing Lead records instead of duplicating them.
package salesforce

import (
	"context"
	"fmt"
	"net/http"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// leadObject is the only sObject the pipeline writes. Everything the sales
// team works from hangs off Lead, so the client exposes lead operations
// rather than a generic sObject surface.
const leadObject = "Lead"

// Client is the slice of the Salesforce API the lead pusher needs.
type Client interface {
	QueryLeads(ctx context.Context, soql string) ([]Lead, error)
	CreateLead(ctx context.Context, fields map[string]any) (string, error)
	CreateLeads(ctx context.Context, batch []map[string]any) ([]BatchResult, error)
	UpdateLead(ctx context.Context, id string, fields map[string]any) error
	UpdateLeads(ctx context.Context, batch []LeadUpdate) ([]BatchResult, error)
	LeadSchema(ctx context.Context) (*ObjectSchema, error)
}

// LeadUpdate pairs a Salesforce record ID with the field values to patch
// onto it.
type LeadUpdate struct {
	ID     string
	Fields map[string]any
}

// BatchResult is the per-record outcome of a Collections API call.
type BatchResult struct {
	ID      string
	Success bool
	Errors  []string
}

// FieldSchema describes one field on the Lead object.
type FieldSchema struct {
	Name       string `json:"name"`
	Label      string `json:"label"`
	Type       string `json:"type"`
	Length     int    `json:"length"`
	Updateable bool   `json:"updateable"`
}

// ObjectSchema is the subset of a describe response the pusher inspects.
type ObjectSchema struct {
	Name   string        `json:"name"`
	Label  string        `json:"label"`
	Fields []FieldSchema `json:"fields"`
}

// Option configures the client.
type Option func(*sfClient)

// WithRateLimit caps outbound API calls at rps per second, with a burst of
// the integer part of rps (at least one). Zero or negative disables the cap.
func WithRateLimit(rps float64) Option {
	return func(c *sfClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// sfClient drives the go-salesforce v3 bindings. The library is not
// context-aware, so ctx only governs the rate limiter wait in front of
// each call.
type sfClient struct {
	sf      *salesforce.Salesforce
	limiter *rate.Limiter
}

// NewClient wraps an authenticated go-salesforce session.
func NewClient(sf *salesforce.Salesforce, opts ...Option) Client {
	c := &sfClient{sf: sf}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// throttle blocks until the limiter admits one call or ctx is done.
func (c *sfClient) throttle(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *sfClient) QueryLeads(ctx context.Context, soql string) ([]Lead, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, eris.Wrap(err, "sf: throttle")
	}
	var leads []Lead
	if err := c.sf.Query(soql, &leads); err != nil {
		return nil, eris.Wrap(err, "sf: query leads")
	}
	return leads, nil
}

func (c *sfClient) CreateLead(ctx context.Context, fields map[string]any) (string, error) {
	if err := c.throttle(ctx); err != nil {
		return "", eris.Wrap(err, "sf: throttle")
	}
	res, err := c.sf.InsertOne(leadObject, fields)
	if err != nil {
		return "", eris.Wrap(err, "sf: create lead")
	}
	if !res.Success {
		return "", eris.Errorf("sf: create lead rejected: %v", res.Errors)
	}
	return res.Id, nil
}

func (c *sfClient) CreateLeads(ctx context.Context, batch []map[string]any) ([]BatchResult, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, eris.Wrap(err, "sf: throttle")
	}
	res, err := c.sf.InsertCollection(leadObject, batch, maxBatchSize)
	if err != nil {
		return nil, eris.Wrap(err, "sf: create leads batch")
	}
	return batchResults(res.Results), nil
}

func (c *sfClient) UpdateLead(ctx context.Context, id string, fields map[string]any) error {
	if err := c.throttle(ctx); err != nil {
		return eris.Wrap(err, "sf: throttle")
	}
	if err := c.sf.UpdateOne(leadObject, withID(id, fields)); err != nil {
		return eris.Wrap(err, fmt.Sprintf("sf: update lead %s", id))
	}
	return nil
}

func (c *sfClient) UpdateLeads(ctx context.Context, batch []LeadUpdate) ([]BatchResult, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, eris.Wrap(err, "sf: throttle")
	}
	rows := make([]map[string]any, len(batch))
	for i, u := range batch {
		rows[i] = withID(u.ID, u.Fields)
	}
	res, err := c.sf.UpdateCollection(leadObject, rows, maxBatchSize)
	if err != nil {
		return nil, eris.Wrap(err, "sf: update leads batch")
	}
	return batchResults(res.Results), nil
}

func (c *sfClient) LeadSchema(ctx context.Context) (*ObjectSchema, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, eris.Wrap(err, "sf: throttle")
	}
	resp, err := c.sf.DoRequest(http.MethodGet, "/sobjects/"+leadObject+"/describe", nil)
	if err != nil {
		return nil, eris.Wrap(err, "sf: describe lead")
	}
	defer resp.Body.Close() //nolint:errcheck

	var schema ObjectSchema
	if err := decodeJSON(resp.Body, &schema); err != nil {
		return nil, eris.Wrap(err, "sf: decode lead schema")
	}
	return &schema, nil
}

// withID copies fields and adds the record ID, leaving the caller's map
// untouched.
func withID(id string, fields map[string]any) map[string]any {
	row := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		row[k] = v
	}
	row["Id"] = id
	return row
}

// batchResults flattens the library's per-record results into the client's
// own shape.
func batchResults(rs []salesforce.SalesforceResult) []BatchResult {
	out := make([]BatchResult, len(rs))
	for i, r := range rs {
		br := BatchResult{ID: r.Id, Success: r.Success}
		for _, e := range r.Errors {
			br.Errors = append(br.Errors, e.Message)
		}
		out[i] = br
	}
	return out
}
