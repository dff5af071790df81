package importer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createWorkbook(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "submission.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

var fieldHeader = []string{"material_id", "supplier_code", "source_id", "field_id", "value"}
var compHeader = []string{"material_id", "supplier_code", "cas", "name", "percentage", "category"}

func TestParseWorkbook_GroupsRowsIntoSubmissions(t *testing.T) {
	path := createWorkbook(t, map[string][][]string{
		FieldSheet: {
			fieldHeader,
			{"mat-1", "SUP-1", "portal", "origin_country", "FR"},
			{"mat-1", "SUP-1", "portal", "natural", "yes"},
			{"mat-2", "SUP-1", "portal", "origin_country", "BG"},
		},
	})

	subs, err := ParseWorkbook(path, Options{SkipRows: 1})
	require.NoError(t, err)
	require.Len(t, subs, 2)

	assert.Equal(t, "mat-1", subs[0].MaterialID)
	assert.Equal(t, "SUP-1", subs[0].SupplierCode)
	assert.Equal(t, "portal", subs[0].SourceID)
	assert.Equal(t, map[string]string{"origin_country": "FR", "natural": "yes"}, subs[0].FieldValues)

	assert.Equal(t, "mat-2", subs[1].MaterialID)
	assert.Equal(t, map[string]string{"origin_country": "BG"}, subs[1].FieldValues)
}

func TestParseWorkbook_CompositionSheet(t *testing.T) {
	path := createWorkbook(t, map[string][][]string{
		FieldSheet: {
			fieldHeader,
			{"mat-1", "SUP-1", "portal", "origin_country", "FR"},
		},
		CompositionSheet: {
			compHeader,
			{"mat-1", "SUP-1", "78-70-6", "Linalool", "35.5", "terpene"},
			{"mat-1", "SUP-1", "", "Linalyl acetate", "25", ""},
		},
	})

	subs, err := ParseWorkbook(path, Options{SkipRows: 1})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.Len(t, subs[0].Composition, 2)

	first := subs[0].Composition[0]
	assert.Equal(t, "78-70-6", first.CAS)
	assert.Equal(t, "Linalool", first.Name)
	assert.InDelta(t, 35.5, first.Percentage, 0.001)
	assert.Equal(t, "terpene", first.Category)

	second := subs[0].Composition[1]
	assert.Empty(t, second.CAS)
	assert.Equal(t, "Linalyl acetate", second.Name)
}

func TestParseWorkbook_SourceOverride(t *testing.T) {
	path := createWorkbook(t, map[string][][]string{
		FieldSheet: {
			fieldHeader,
			{"mat-1", "SUP-1", "", "origin_country", "FR"},
		},
	})

	subs, err := ParseWorkbook(path, Options{SkipRows: 1, SourceID: "ftp-drop"})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "ftp-drop", subs[0].SourceID)
}

func TestParseWorkbook_SkipsBlankRows(t *testing.T) {
	path := createWorkbook(t, map[string][][]string{
		FieldSheet: {
			fieldHeader,
			{"mat-1", "SUP-1", "portal", "origin_country", "FR"},
			{"", "", "", "", ""},
		},
	})

	subs, err := ParseWorkbook(path, Options{SkipRows: 1})
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestParseWorkbook_Errors(t *testing.T) {
	t.Run("missing fields sheet", func(t *testing.T) {
		path := createWorkbook(t, map[string][][]string{"other": {{"a"}}})
		_, err := ParseWorkbook(path, Options{})
		assert.Error(t, err)
	})

	t.Run("short fields row", func(t *testing.T) {
		path := createWorkbook(t, map[string][][]string{
			FieldSheet: {{"mat-1", "SUP-1", "portal"}},
		})
		_, err := ParseWorkbook(path, Options{})
		assert.Error(t, err)
	})

	t.Run("bad percentage", func(t *testing.T) {
		path := createWorkbook(t, map[string][][]string{
			FieldSheet:       {{"mat-1", "SUP-1", "portal", "origin_country", "FR"}},
			CompositionSheet: {{"mat-1", "SUP-1", "78-70-6", "Linalool", "thirty-five"}},
		})
		_, err := ParseWorkbook(path, Options{})
		assert.Error(t, err)
	})

	t.Run("composition without field rows", func(t *testing.T) {
		path := createWorkbook(t, map[string][][]string{
			FieldSheet:       {{"mat-1", "SUP-1", "portal", "origin_country", "FR"}},
			CompositionSheet: {{"mat-9", "SUP-1", "78-70-6", "Linalool", "35"}},
		})
		_, err := ParseWorkbook(path, Options{})
		assert.Error(t, err)
	})

	t.Run("component without identity", func(t *testing.T) {
		path := createWorkbook(t, map[string][][]string{
			FieldSheet:       {{"mat-1", "SUP-1", "portal", "origin_country", "FR"}},
			CompositionSheet: {{"mat-1", "SUP-1", "", "", "35"}},
		})
		_, err := ParseWorkbook(path, Options{})
		assert.Error(t, err)
	})
}

func TestParseFTPURL(t *testing.T) {
	host, path, err := parseFTPURL("ftp://drop.supplier.example/outbox/submission.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "drop.supplier.example:21", host)
	assert.Equal(t, "/outbox/submission.xlsx", path)

	host, _, err = parseFTPURL("ftp://drop.supplier.example:2121/outbox/s.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "drop.supplier.example:2121", host)

	_, _, err = parseFTPURL("https://drop.supplier.example/outbox/s.xlsx")
	assert.Error(t, err)

	_, _, err = parseFTPURL("ftp://drop.supplier.example")
	assert.Error(t, err)
}
