package composition

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/materia-group/blueline/internal/model"
)

var foldCaser = cases.Fold()

// NormalizeName standardizes an ingredient display name for matching by:
//  1. Trimming whitespace
//  2. Unicode case folding
//  3. Collapsing any whitespace run, tabs and newlines included, into a
//     single space
func NormalizeName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return foldCaser.String(strings.Join(fields, " "))
}

// IdentityKey returns the deduplication key for a component within one list:
// the CAS number when present, otherwise the normalized display name. The
// prefix keeps the two namespaces from colliding. Matching ACROSS two lists
// is looser, see matchComponents.
func IdentityKey(c model.IngredientComponent) string {
	if cas := strings.TrimSpace(c.CAS); cas != "" {
		return "cas:" + cas
	}
	return "name:" + NormalizeName(c.Name)
}
