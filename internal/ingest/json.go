package ingest

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/crestway-partners/leadscout/internal/model"
)

// JSONRecord is the object shape of a JSON directory export: an array of
// listings with these keys. Unknown keys are ignored.
type JSONRecord struct {
	Name          string   `json:"name"`
	Street        string   `json:"street"`
	City          string   `json:"city"`
	PostalCode    string   `json:"postal_code"`
	Phone         string   `json:"phone"`
	Website       string   `json:"website"`
	EmployeeCount *int     `json:"employee_count"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	PlaceTypes    []string `json:"place_types"`
}

// Draft converts the record, attributing it to sourceURL.
func (r JSONRecord) Draft(sourceURL string) model.Draft {
	return model.Draft{
		Name:          r.Name,
		Street:        r.Street,
		City:          r.City,
		PostalCode:    r.PostalCode,
		Phone:         r.Phone,
		Website:       r.Website,
		EmployeeCount: r.EmployeeCount,
		Latitude:      r.Latitude,
		Longitude:     r.Longitude,
		PlaceTypes:    r.PlaceTypes,
		SourceURL:     sourceURL,
	}
}

// DecodeJSONArray streams the elements of a top-level JSON array to a
// channel without loading the whole payload. Both channels are closed when
// processing completes.
func DecodeJSONArray[T any](ctx context.Context, r io.Reader) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := json.NewDecoder(r)

		tok, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				return
			}
			errCh <- eris.Wrap(err, "json: read opening token")
			return
		}
		delim, ok := tok.(json.Delim)
		if !ok || delim != '[' {
			errCh <- eris.Errorf("json: expected '[', got %v", tok)
			return
		}

		for decoder.More() {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}

			var item T
			if err := decoder.Decode(&item); err != nil {
				errCh <- eris.Wrap(err, "json: decode element")
				return
			}

			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}
		}

		if _, err := decoder.Token(); err != nil && err != io.EOF {
			errCh <- eris.Wrap(err, "json: read closing token")
		}
	}()

	return outCh, errCh
}

// ReadJSONDrafts parses a JSON array export into drafts. Records without a
// name are counted as skipped.
func ReadJSONDrafts(ctx context.Context, r io.Reader, sourceURL string) ([]model.Draft, int, error) {
	recCh, errCh := DecodeJSONArray[JSONRecord](ctx, r)

	var (
		drafts  []model.Draft
		skipped int
	)
	for rec := range recCh {
		if rec.Name == "" {
			skipped++
			continue
		}
		drafts = append(drafts, rec.Draft(sourceURL))
	}
	if err := <-errCh; err != nil {
		return nil, 0, err
	}
	return drafts, skipped, nil
}
