package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/crestway-partners/leadscout/internal/model"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
}

// StreamCSV reads CSV rows and sends them to a channel. The first row is the
// header and is sent first. The caller must consume the row channel; both
// channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		if opts.Comment != 0 {
			reader.Comment = opts.Comment
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1 // exports pad rows unevenly

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadCSVDrafts parses a headered CSV export into drafts using the field
// map. Rows without a name are counted as skipped.
func ReadCSVDrafts(ctx context.Context, r io.Reader, opts CSVOptions, fm FieldMap, sourceURL string) ([]model.Draft, int, error) {
	rowCh, errCh := StreamCSV(ctx, r, opts)

	var (
		mapper  *rowMapper
		drafts  []model.Draft
		skipped int
	)
	for row := range rowCh {
		if mapper == nil {
			m, err := newRowMapper(row, fm)
			if err != nil {
				for range rowCh {
					// drain so the reader goroutine can finish
				}
				<-errCh
				return nil, 0, err
			}
			mapper = m
			continue
		}
		d, ok := mapper.draft(row, sourceURL)
		if !ok {
			skipped++
			continue
		}
		drafts = append(drafts, d)
	}
	if err := <-errCh; err != nil {
		return nil, 0, err
	}
	if mapper == nil {
		return nil, 0, eris.New("csv: empty export, no header row")
	}
	return drafts, skipped, nil
}
