package ingest

import (
	"context"
	"encoding/xml"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/crestway-partners/leadscout/internal/model"
)

// XMLRecord is one <business> element of an XML directory export. Portals
// that predate JSON feeds still publish these, typically in legacy charsets.
type XMLRecord struct {
	Name          string `xml:"name"`
	Street        string `xml:"street"`
	City          string `xml:"city"`
	PostalCode    string `xml:"postal_code"`
	Phone         string `xml:"phone"`
	Website       string `xml:"website"`
	EmployeeCount string `xml:"employee_count"`
	Latitude      string `xml:"latitude"`
	Longitude     string `xml:"longitude"`
	PlaceTypes    string `xml:"place_types"`
}

// xmlElementName is the element each listing lives under.
const xmlElementName = "business"

// StreamXML decodes XML elements with the given local name and sends them to
// a channel. Charsets declared by the document are honored via htmlindex.
// Both channels are closed when processing completes.
func StreamXML[T any](ctx context.Context, r io.Reader, elementName string) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := xml.NewDecoder(r)
		decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
			enc, err := htmlindex.Get(charset)
			if err != nil {
				return nil, eris.Wrapf(err, "xml: unsupported charset %q", charset)
			}
			return enc.NewDecoder().Reader(input), nil
		}

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}

			tok, err := decoder.Token()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "xml: read token")
				return
			}

			se, ok := tok.(xml.StartElement)
			if !ok || se.Name.Local != elementName {
				continue
			}

			var item T
			if err := decoder.DecodeElement(&item, &se); err != nil {
				errCh <- eris.Wrap(err, "xml: decode element")
				return
			}

			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}
		}
	}()

	return outCh, errCh
}

// ReadXMLDrafts parses an XML export into drafts. Records without a name
// are counted as skipped.
func ReadXMLDrafts(ctx context.Context, r io.Reader, sourceURL string) ([]model.Draft, int, error) {
	recCh, errCh := StreamXML[XMLRecord](ctx, r, xmlElementName)

	var (
		drafts  []model.Draft
		skipped int
	)
	for rec := range recCh {
		if rec.Name == "" {
			skipped++
			continue
		}

		d := model.Draft{
			Name:       rec.Name,
			Street:     rec.Street,
			City:       rec.City,
			PostalCode: rec.PostalCode,
			Phone:      rec.Phone,
			Website:    rec.Website,
			PlaceTypes: SplitPlaceTypes(rec.PlaceTypes),
			SourceURL:  sourceURL,
		}
		if v, ok := model.ParseInt(rec.EmployeeCount); ok {
			d.EmployeeCount = &v
		}
		if lat, ok := model.ParseFloat(rec.Latitude); ok {
			if lon, ok := model.ParseFloat(rec.Longitude); ok {
				d.Latitude = &lat
				d.Longitude = &lon
			}
		}
		drafts = append(drafts, d)
	}
	if err := <-errCh; err != nil {
		return nil, 0, err
	}
	return drafts, skipped, nil
}
