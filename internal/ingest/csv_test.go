package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectRows(t *testing.T, rowCh <-chan []string, errCh <-chan error) ([][]string, error) {
	t.Helper()
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func TestStreamCSV_Basic(t *testing.T) {
	input := "a,b,c\n1,2,3\n4,5,6\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"a", "b", "c"}, rows[0])
	assert.Equal(t, []string{"4", "5", "6"}, rows[2])
}

func TestStreamCSV_PipeDelimited(t *testing.T) {
	input := "a|b|c\n1|2|3\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		Delimiter: '|',
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1", "2", "3"}, rows[1])
}

func TestStreamCSV_ContextCancellation(t *testing.T) {
	var sb strings.Builder
	for range 10000 {
		sb.WriteString("a,b,c\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	rowCh, errCh := StreamCSV(ctx, strings.NewReader(sb.String()), CSVOptions{})

	<-rowCh
	cancel()

	_, err := collectRows(t, rowCh, errCh)
	assert.Error(t, err)
}

const directoryCSV = `name,street,city,postal_code,phone,website,employee_count,place_types
Bayfront Print Works,100 King St W,Hamilton,L8P 1A1,905-555-1234,bayfrontprintworks.ca,12,printing_service;sign_shop
Dundas Sign Shop,55 Main St,Dundas,L9H 2P8,905-555-9876,,,"sign_shop"
,no name here,Hamilton,,,,,
Harbour Gas Bar,20 Pier Rd,Hamilton,L8L 1A1,905-555-2222,,,gas_station
`

func TestReadCSVDrafts(t *testing.T) {
	drafts, skipped, err := ReadCSVDrafts(context.Background(),
		strings.NewReader(directoryCSV), CSVOptions{TrimSpace: true},
		DefaultFieldMap(), "https://data.hamilton.ca/directory.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, drafts, 3)

	first := drafts[0]
	assert.Equal(t, "Bayfront Print Works", first.Name)
	assert.Equal(t, "100 King St W", first.Street)
	assert.Equal(t, "Hamilton", first.City)
	assert.Equal(t, "L8P 1A1", first.PostalCode)
	assert.Equal(t, "905-555-1234", first.Phone)
	assert.Equal(t, "bayfrontprintworks.ca", first.Website)
	require.NotNil(t, first.EmployeeCount)
	assert.Equal(t, 12, *first.EmployeeCount)
	assert.Equal(t, []string{"printing_service", "sign_shop"}, first.PlaceTypes)
	assert.Equal(t, "https://data.hamilton.ca/directory.csv", first.SourceURL)

	// Absent optional columns stay nil.
	second := drafts[1]
	assert.Nil(t, second.EmployeeCount)
	assert.Nil(t, second.Latitude)
}

func TestReadCSVDrafts_CoordinatesRequireBothColumns(t *testing.T) {
	input := "name,latitude,longitude\nLone Lat,43.25,\nBoth,43.25,-79.87\n"
	drafts, _, err := ReadCSVDrafts(context.Background(), strings.NewReader(input),
		CSVOptions{}, DefaultFieldMap(), "src")
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Nil(t, drafts[0].Latitude)
	require.NotNil(t, drafts[1].Latitude)
	assert.InDelta(t, 43.25, *drafts[1].Latitude, 1e-9)
	assert.InDelta(t, -79.87, *drafts[1].Longitude, 1e-9)
}

func TestReadCSVDrafts_MissingNameColumn(t *testing.T) {
	input := "title,street\nSomething,1 Main St\n"
	_, _, err := ReadCSVDrafts(context.Background(), strings.NewReader(input),
		CSVOptions{}, DefaultFieldMap(), "src")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name column")
}

func TestReadCSVDrafts_CustomFieldMap(t *testing.T) {
	input := "Business Name,Address Line 1\nBayfront Print Works,100 King St W\n"
	fm := FieldMap{Name: "Business Name", Street: "Address Line 1"}
	drafts, skipped, err := ReadCSVDrafts(context.Background(), strings.NewReader(input),
		CSVOptions{}, fm, "src")
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, drafts, 1)
	assert.Equal(t, "Bayfront Print Works", drafts[0].Name)
	assert.Equal(t, "100 King St W", drafts[0].Street)
}

func TestReadCSVDrafts_EmptyInput(t *testing.T) {
	_, _, err := ReadCSVDrafts(context.Background(), strings.NewReader(""),
		CSVOptions{}, DefaultFieldMap(), "src")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no header row")
}
