// Package ingest reads business directory exports and turns their rows into
// discovery drafts. It parses CSV, JSON, XLSX, XML, and ZIP payloads from
// local files or from HTTP and FTP portals; normalization and fingerprinting
// happen later, at discovery.
package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/crestway-partners/leadscout/internal/model"
)

// Format identifies a supported export payload shape.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
	FormatXML  Format = "xml"
	FormatZIP  Format = "zip"
)

// DetectFormat maps a file name to its payload format by extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".xml":
		return FormatXML, nil
	case ".zip":
		return FormatZIP, nil
	default:
		return "", eris.Errorf("ingest: unsupported file type %q", filepath.Ext(path))
	}
}

// FieldMap names the export's columns for each draft field. Empty entries
// mean the export does not carry that field. Header matching is
// case-insensitive and ignores surrounding whitespace.
type FieldMap struct {
	Name          string `yaml:"name" mapstructure:"name"`
	Street        string `yaml:"street" mapstructure:"street"`
	City          string `yaml:"city" mapstructure:"city"`
	PostalCode    string `yaml:"postal_code" mapstructure:"postal_code"`
	Phone         string `yaml:"phone" mapstructure:"phone"`
	Website       string `yaml:"website" mapstructure:"website"`
	EmployeeCount string `yaml:"employee_count" mapstructure:"employee_count"`
	Latitude      string `yaml:"latitude" mapstructure:"latitude"`
	Longitude     string `yaml:"longitude" mapstructure:"longitude"`
	PlaceTypes    string `yaml:"place_types" mapstructure:"place_types"`
}

// DefaultFieldMap matches the column names most municipal open-data exports
// use.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		Name:          "name",
		Street:        "street",
		City:          "city",
		PostalCode:    "postal_code",
		Phone:         "phone",
		Website:       "website",
		EmployeeCount: "employee_count",
		Latitude:      "latitude",
		Longitude:     "longitude",
		PlaceTypes:    "place_types",
	}
}

// rowMapper resolves a FieldMap against a header row once, then converts
// data rows into drafts.
type rowMapper struct {
	name          int
	street        int
	city          int
	postalCode    int
	phone         int
	website       int
	employeeCount int
	latitude      int
	longitude     int
	placeTypes    int
}

func newRowMapper(header []string, fm FieldMap) (*rowMapper, error) {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[strings.ToLower(strings.TrimSpace(h))] = i
	}

	col := func(name string) int {
		if name == "" {
			return -1
		}
		if i, ok := byName[strings.ToLower(strings.TrimSpace(name))]; ok {
			return i
		}
		return -1
	}

	m := &rowMapper{
		name:          col(fm.Name),
		street:        col(fm.Street),
		city:          col(fm.City),
		postalCode:    col(fm.PostalCode),
		phone:         col(fm.Phone),
		website:       col(fm.Website),
		employeeCount: col(fm.EmployeeCount),
		latitude:      col(fm.Latitude),
		longitude:     col(fm.Longitude),
		placeTypes:    col(fm.PlaceTypes),
	}
	if m.name < 0 {
		return nil, eris.Errorf("ingest: name column %q not found in header", fm.Name)
	}
	return m, nil
}

// draft converts one data row. ok is false when the row has no name and is
// skipped.
func (m *rowMapper) draft(row []string, sourceURL string) (model.Draft, bool) {
	cell := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	d := model.Draft{
		Name:       cell(m.name),
		Street:     cell(m.street),
		City:       cell(m.city),
		PostalCode: cell(m.postalCode),
		Phone:      cell(m.phone),
		Website:    cell(m.website),
		PlaceTypes: SplitPlaceTypes(cell(m.placeTypes)),
		SourceURL:  sourceURL,
	}
	if d.Name == "" {
		return model.Draft{}, false
	}

	if v, ok := model.ParseInt(cell(m.employeeCount)); ok {
		d.EmployeeCount = &v
	}
	if lat, ok := model.ParseFloat(cell(m.latitude)); ok {
		if lon, ok := model.ParseFloat(cell(m.longitude)); ok {
			d.Latitude = &lat
			d.Longitude = &lon
		}
	}
	return d, true
}

// SplitPlaceTypes splits a delimited category cell on ';', '|', or ','.
func SplitPlaceTypes(raw string) []string {
	if raw == "" {
		return nil
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ';' || r == '|' || r == ','
	})
	var types []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			types = append(types, f)
		}
	}
	return types
}

// ReadFile parses one export file into drafts, dispatching on the file
// extension. ZIP archives are extracted and each supported entry parsed.
// skipped counts rows dropped for having no name. sourceURL is attached to
// every draft; when empty, a file:// URL for path is used.
func ReadFile(ctx context.Context, path string, fm FieldMap, sourceURL string) (drafts []model.Draft, skipped int, err error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, 0, err
	}
	if sourceURL == "" {
		abs, absErr := filepath.Abs(path)
		if absErr != nil {
			abs = path
		}
		sourceURL = "file://" + filepath.ToSlash(abs)
	}

	switch format {
	case FormatCSV:
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, eris.Wrapf(err, "ingest: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadCSVDrafts(ctx, f, CSVOptions{TrimSpace: true}, fm, sourceURL)

	case FormatJSON:
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, eris.Wrapf(err, "ingest: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadJSONDrafts(ctx, f, sourceURL)

	case FormatXLSX:
		return ReadXLSXDrafts(ctx, path, XLSXOptions{}, fm, sourceURL)

	case FormatXML:
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, eris.Wrapf(err, "ingest: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadXMLDrafts(ctx, f, sourceURL)

	case FormatZIP:
		return readZIPDrafts(ctx, path, fm, sourceURL)
	}
	return nil, 0, eris.Errorf("ingest: unsupported format %q", format)
}
