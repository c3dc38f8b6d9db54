// Package export renders pipeline records as interchange documents for
// downstream tools. Qualified leads go out as GeoJSON points so the sales
// team's map dashboards can plot them without another transform step.
package export

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/crestway-partners/leadscout/internal/evidence"
	"github.com/crestway-partners/leadscout/internal/model"
)

// GeoJSONOptions controls which records the feed includes.
type GeoJSONOptions struct {
	// Status filters the feed; empty means qualified only, which is what
	// the map dashboards consume.
	Status model.Status

	// City restricts the feed to one municipality when set.
	City string

	// Limit caps the number of features; <= 0 means no cap.
	Limit int
}

// WriteGeoJSON writes a FeatureCollection of point features for every
// matching business that has coordinates. Records without coordinates are
// skipped rather than emitted as null geometries. Returns the number of
// features written.
func WriteGeoJSON(ctx context.Context, store evidence.Store, w io.Writer, opts GeoJSONOptions) (int, error) {
	status := opts.Status
	if status == "" {
		status = model.StatusQualified
	}

	businesses, err := store.ListBusinesses(ctx, evidence.BusinessFilter{
		Status: status,
		City:   opts.City,
		Limit:  opts.Limit,
	})
	if err != nil {
		return 0, eris.Wrap(err, "export: list businesses")
	}

	fc := geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for i := range businesses {
		b := &businesses[i]
		if !b.HasCoordinates() {
			continue
		}
		fc.Features = append(fc.Features, feature(b))
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(&fc); err != nil {
		return 0, eris.Wrap(err, "export: encode feature collection")
	}
	return len(fc.Features), nil
}

// feature converts one business to a GeoJSON point feature. GeoJSON
// coordinate order is longitude first.
func feature(b *model.Business) *geojson.Feature {
	props := map[string]any{
		"name":        b.OriginalName,
		"fingerprint": b.Fingerprint,
		"status":      string(b.Status),
	}
	if b.Street != "" {
		props["street"] = b.Street
	}
	if b.City != "" {
		props["city"] = b.City
	}
	if b.PostalCode != "" {
		props["postal_code"] = b.PostalCode
	}
	if b.Phone != "" {
		props["phone"] = b.Phone
	}
	if b.Website != "" {
		props["website"] = b.Website
	}
	if b.EmployeeCount != nil {
		props["employee_count"] = *b.EmployeeCount
	}
	if b.WebsiteAgeYears > 0 {
		props["website_age_years"] = b.WebsiteAgeYears
	}

	return &geojson.Feature{
		ID:         b.ID,
		Geometry:   geom.NewPointFlat(geom.XY, []float64{*b.Longitude, *b.Latitude}),
		Properties: props,
	}
}
