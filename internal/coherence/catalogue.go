package coherence

import (
	"strings"

	"github.com/materia-group/blueline/internal/model"
)

// lookup reads a field value; ok is false when the field is absent from the
// submission.
type lookup func(fieldID string) (string, bool)

// Rule is one contradiction check. Triggered inspects only the fields the
// rule names; absent fields must not trigger it.
type Rule struct {
	ID        string
	FieldRefs []string
	Severity  model.Severity
	Message   string
	Triggered func(get lookup) bool
}

func affirmative(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "true", "y", "1":
		return true
	}
	return false
}

func negative(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "no", "false", "n", "0", "none":
		return true
	}
	return false
}

// present-and-affirmative
func isYes(get lookup, field string) bool {
	v, ok := get(field)
	return ok && affirmative(v)
}

// present-and-non-empty
func isDeclared(get lookup, field string) bool {
	v, ok := get(field)
	return ok && strings.TrimSpace(v) != "" && !negative(v)
}

// Catalogue returns the fixed, ordered contradiction rule set.
//
// The pairs here are logical incompatibilities, not policy thresholds: a
// material cannot be fully natural and carry a synthetic additive, vegan and
// animal-derived, or organic and pesticide-treated.
func Catalogue() []Rule {
	return []Rule{
		{
			ID:        "natural-vs-synthetic-additive",
			FieldRefs: []string{"natural", "contains_additives"},
			Severity:  model.SeverityCritical,
			Message:   "marked fully natural but declares a synthetic additive",
			Triggered: func(get lookup) bool {
				return isYes(get, "natural") && isYes(get, "contains_additives")
			},
		},
		{
			ID:        "vegan-vs-animal-derived",
			FieldRefs: []string{"vegan", "animal_derived_ingredient"},
			Severity:  model.SeverityCritical,
			Message:   "claims vegan but declares an animal-derived ingredient",
			Triggered: func(get lookup) bool {
				return isYes(get, "vegan") && isDeclared(get, "animal_derived_ingredient")
			},
		},
		{
			ID:        "organic-vs-pesticide",
			FieldRefs: []string{"organic_certified", "pesticide_use"},
			Severity:  model.SeverityCritical,
			Message:   "organic certified but declares pesticide use",
			Triggered: func(get lookup) bool {
				return isYes(get, "organic_certified") && isDeclared(get, "pesticide_use")
			},
		},
		{
			ID:        "allergen-free-vs-allergens",
			FieldRefs: []string{"allergen_free", "allergen_list"},
			Severity:  model.SeverityCritical,
			Message:   "claims allergen free but declares allergens",
			Triggered: func(get lookup) bool {
				return isYes(get, "allergen_free") && isDeclared(get, "allergen_list")
			},
		},
		{
			ID:        "gmo-free-vs-gmo-ingredient",
			FieldRefs: []string{"gmo_free", "gmo_ingredient"},
			Severity:  model.SeverityCritical,
			Message:   "claims GMO free but declares a GMO ingredient",
			Triggered: func(get lookup) bool {
				return isYes(get, "gmo_free") && isDeclared(get, "gmo_ingredient")
			},
		},
		{
			ID:        "rspo-certified-without-membership",
			FieldRefs: []string{"rspo_certified", "rspo_member"},
			Severity:  model.SeverityWarning,
			Message:   "RSPO certified without declared RSPO membership",
			Triggered: func(get lookup) bool {
				// Certification implies membership, so an affirmative
				// certification claim contradicts a negative or missing
				// membership declaration.
				if !isYes(get, "rspo_certified") {
					return false
				}
				return !isYes(get, "rspo_member")
			},
		},
		{
			ID:        "organic-vs-irradiation",
			FieldRefs: []string{"organic_certified", "irradiated"},
			Severity:  model.SeverityWarning,
			Message:   "organic certified but declared as irradiated",
			Triggered: func(get lookup) bool {
				return isYes(get, "organic_certified") && isYes(get, "irradiated")
			},
		},
		{
			ID:        "kosher-certified-without-certifier",
			FieldRefs: []string{"kosher_certified", "kosher_certifier"},
			Severity:  model.SeverityInfo,
			Message:   "kosher certified without a named certifying body",
			Triggered: func(get lookup) bool {
				if !isYes(get, "kosher_certified") {
					return false
				}
				return !isDeclared(get, "kosher_certifier")
			},
		},
	}
}
