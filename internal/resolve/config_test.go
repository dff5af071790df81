package resolve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/materia-group/blueline/internal/model"
)

const sampleRules = `
rules:
  - field_id: origin_country
    strategy: concatenate
    separator: ", "
  - field_id: gmo_status
    strategy: worst_case
    applies_to: all
    worst_case_order: [free, may_contain, contains]
  - field_id: material_code
    strategy: direct
    source: erp
`

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRules(t *testing.T) {
	table, err := LoadRules(writeRules(t, sampleRules))
	require.NoError(t, err)

	assert.Equal(t, []string{"gmo_status", "material_code", "origin_country"}, table.FieldIDs())

	r := table.Match("gmo_status", model.ClassNatural)
	require.NotNil(t, r)
	assert.Equal(t, model.StrategyWorstCase, r.Strategy)
	assert.Equal(t, []string{"free", "may_contain", "contains"}, r.WorstCaseOrder)
}

func TestLoadRules_MissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadRules_InvalidTable(t *testing.T) {
	_, err := LoadRules(writeRules(t, `
rules:
  - field_id: gmo_status
    strategy: worst_case
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worst_case_order")
}
