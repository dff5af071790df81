// Package importer turns supplier submission workbooks into submissions the
// service can ingest. Workbooks carry a field sheet and an optional
// composition sheet; rows for the same material and supplier are grouped
// into one submission.
package importer

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/materia-group/blueline/internal/model"
	"github.com/materia-group/blueline/internal/service"
)

// FieldSheet and CompositionSheet are the expected sheet names in a
// submission workbook.
const (
	FieldSheet       = "fields"
	CompositionSheet = "composition"
)

// Options configures workbook parsing.
type Options struct {
	// SkipRows is the number of header rows to skip on each sheet.
	SkipRows int
	// SourceID overrides the source column when set, for workbooks that
	// arrive without one.
	SourceID string
}

// ParseWorkbook reads a submission workbook and returns one submission per
// (material, supplier) pair, in first-appearance order.
func ParseWorkbook(path string, opts Options) ([]*service.Submission, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "import: open workbook")
	}

	fieldSheet, ok := f.Sheet[FieldSheet]
	if !ok {
		return nil, eris.Errorf("import: workbook has no %q sheet", FieldSheet)
	}

	var order []string
	byKey := map[string]*service.Submission{}

	for i, row := range fieldSheet.Rows {
		if i < opts.SkipRows {
			continue
		}
		cells := rowToStrings(row)
		if blankRow(cells) {
			continue
		}
		if len(cells) < 5 {
			return nil, eris.Errorf("import: fields row %d has %d columns, want 5", i+1, len(cells))
		}

		materialID := strings.TrimSpace(cells[0])
		supplier := strings.TrimSpace(cells[1])
		sourceID := strings.TrimSpace(cells[2])
		fieldID := strings.TrimSpace(cells[3])
		value := strings.TrimSpace(cells[4])
		if materialID == "" || supplier == "" || fieldID == "" {
			return nil, eris.Errorf("import: fields row %d missing material, supplier or field id", i+1)
		}
		if opts.SourceID != "" {
			sourceID = opts.SourceID
		}

		key := materialID + "\x00" + supplier
		sub, ok := byKey[key]
		if !ok {
			sub = &service.Submission{
				MaterialID:   materialID,
				SupplierCode: supplier,
				SourceID:     sourceID,
				FieldValues:  map[string]string{},
			}
			byKey[key] = sub
			order = append(order, key)
		}
		sub.FieldValues[fieldID] = value
	}

	if compSheet, ok := f.Sheet[CompositionSheet]; ok {
		if err := parseCompositionSheet(compSheet, opts, byKey); err != nil {
			return nil, err
		}
	}

	submissions := make([]*service.Submission, 0, len(order))
	for _, key := range order {
		submissions = append(submissions, byKey[key])
	}
	return submissions, nil
}

func parseCompositionSheet(sheet *xlsx.Sheet, opts Options, byKey map[string]*service.Submission) error {
	for i, row := range sheet.Rows {
		if i < opts.SkipRows {
			continue
		}
		cells := rowToStrings(row)
		if blankRow(cells) {
			continue
		}
		if len(cells) < 5 {
			return eris.Errorf("import: composition row %d has %d columns, want at least 5", i+1, len(cells))
		}

		materialID := strings.TrimSpace(cells[0])
		supplier := strings.TrimSpace(cells[1])
		sub, ok := byKey[materialID+"\x00"+supplier]
		if !ok {
			return eris.Errorf("import: composition row %d references material %s supplier %s with no field rows",
				i+1, materialID, supplier)
		}

		pct, err := strconv.ParseFloat(strings.TrimSpace(cells[4]), 64)
		if err != nil {
			return eris.Wrapf(err, "import: composition row %d percentage", i+1)
		}
		component := model.IngredientComponent{
			CAS:        strings.TrimSpace(cells[2]),
			Name:       strings.TrimSpace(cells[3]),
			Percentage: pct,
		}
		if len(cells) > 5 {
			component.Category = strings.TrimSpace(cells[5])
		}
		if component.CAS == "" && component.Name == "" {
			return eris.Errorf("import: composition row %d has neither CAS nor name", i+1)
		}
		sub.Composition = append(sub.Composition, component)
	}
	return nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
