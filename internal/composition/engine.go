// Package composition matches, diffs, scores and averages ingredient lists,
// and guards the provisional → definitive lifecycle of composition records.
package composition

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/materia-group/blueline/internal/config"
	"github.com/materia-group/blueline/internal/model"
)

// OriginAverage marks compositions produced by averaging two records.
const OriginAverage = "average"

// ToleranceWarning flags a component percentage sum outside the configured
// band. Non-fatal: the composition is still returned and the caller decides
// normalization policy.
type ToleranceWarning struct {
	Sum float64 `json:"sum"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (w *ToleranceWarning) String() string {
	return fmt.Sprintf("percentage sum %.2f outside tolerance band [%.0f, %.0f]", w.Sum, w.Min, w.Max)
}

// Engine reconciles two ingredient lists.
type Engine struct {
	cfg config.CompositionConfig
	now func() time.Time // injectable for testing
}

// NewEngine creates an Engine with the given reconciliation parameters.
func NewEngine(cfg config.CompositionConfig) *Engine {
	return &Engine{cfg: cfg, now: time.Now}
}

// WithNow sets a fixed clock for testing.
func (e *Engine) WithNow(t time.Time) *Engine {
	e.now = func() time.Time { return t }
	return e
}

// FromSubmission wraps a supplier-declared component list in a new
// provisional record attributed to the submitting source.
func (e *Engine) FromSubmission(materialID, sourceID string, components []model.IngredientComponent) *model.CompositionRecord {
	return &model.CompositionRecord{
		ID:         uuid.New().String(),
		MaterialID: materialID,
		State:      model.CompositionProvisional,
		Origin:     sourceID,
		Confidence: 50,
		Version:    1,
		Components: components,
		CreatedAt:  e.now().UTC(),
	}
}

// componentPair is one cross-list match: the key it matched on and the
// component from each side.
type componentPair struct {
	key  string
	a, b model.IngredientComponent
}

// dedupe keeps the first occurrence per identity key, preserving order.
func dedupe(components []model.IngredientComponent) []model.IngredientComponent {
	seen := make(map[string]struct{}, len(components))
	out := make([]model.IngredientComponent, 0, len(components))
	for _, c := range components {
		k := IdentityKey(c)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}

// matchComponents pairs components across two lists in two passes: by CAS
// number where both sides carry one, then by normalized name among the
// remainder. A CAS present on only one side does not block a name match,
// but two components with distinct CAS numbers are distinct no matter what
// they are called.
func matchComponents(a, b []model.IngredientComponent) (pairs []componentPair, onlyA, onlyB []model.IngredientComponent) {
	a, b = dedupe(a), dedupe(b)

	bByCAS := make(map[string]int, len(b))
	bByName := make(map[string]int, len(b))
	for i, c := range b {
		if cas := strings.TrimSpace(c.CAS); cas != "" {
			if _, ok := bByCAS[cas]; !ok {
				bByCAS[cas] = i
			}
		}
		if n := NormalizeName(c.Name); n != "" {
			if _, ok := bByName[n]; !ok {
				bByName[n] = i
			}
		}
	}

	pairedA := make([]int, len(a))
	for i := range pairedA {
		pairedA[i] = -1
	}
	pairedB := make([]bool, len(b))

	for i, ca := range a {
		cas := strings.TrimSpace(ca.CAS)
		if cas == "" {
			continue
		}
		if j, ok := bByCAS[cas]; ok && !pairedB[j] {
			pairedA[i] = j
			pairedB[j] = true
		}
	}
	for i, ca := range a {
		if pairedA[i] != -1 {
			continue
		}
		n := NormalizeName(ca.Name)
		if n == "" {
			continue
		}
		j, ok := bByName[n]
		if !ok || pairedB[j] {
			continue
		}
		if strings.TrimSpace(ca.CAS) != "" && strings.TrimSpace(b[j].CAS) != "" {
			// Both carry CAS numbers and they already failed to match.
			continue
		}
		pairedA[i] = j
		pairedB[j] = true
	}

	for i, ca := range a {
		j := pairedA[i]
		if j == -1 {
			onlyA = append(onlyA, ca)
			continue
		}
		key := "name:" + NormalizeName(ca.Name)
		if cas := strings.TrimSpace(ca.CAS); cas != "" && cas == strings.TrimSpace(b[j].CAS) {
			key = "cas:" + cas
		}
		pairs = append(pairs, componentPair{key: key, a: ca, b: b[j]})
	}
	for j, cb := range b {
		if !pairedB[j] {
			onlyB = append(onlyB, cb)
		}
	}
	return pairs, onlyA, onlyB
}

// Compare matches two compositions component by component and reports the
// match score, the structured diff, and components present on only one side.
// Percentage deltas beyond the configured epsilon are reported as
// differences, never as mismatch failures.
func (e *Engine) Compare(a, b *model.CompositionRecord) *model.ComparisonResult {
	pairs, onlyA, onlyB := matchComponents(a.Components, b.Components)

	result := &model.ComparisonResult{
		MatchedCount: len(pairs),
		OnlyInA:      onlyA,
		OnlyInB:      onlyB,
	}

	for _, p := range pairs {
		delta := math.Abs(p.a.Percentage - p.b.Percentage)
		if delta > e.cfg.PercentEpsilon {
			result.Differences = append(result.Differences, model.ComponentDiff{
				IdentityKey: p.key,
				Name:        p.a.Name,
				PctA:        p.a.Percentage,
				PctB:        p.b.Percentage,
				Delta:       delta,
			})
		}
	}

	totalUnique := len(pairs) + len(onlyA) + len(onlyB)
	if totalUnique == 0 {
		// Two empty lists are vacuously identical.
		result.MatchScore = 100
	} else {
		result.MatchScore = float64(len(pairs)) / float64(totalUnique) * 100
	}
	return result
}

// Average builds a new provisional composition from the union of both
// component sets: matched keys take the arithmetic mean of the two
// percentages, one-sided keys carry their percentage unchanged. The sum is
// never rescaled; an out-of-band sum comes back as a ToleranceWarning for
// the caller to act on, because silently renormalizing would misrepresent
// lab data.
func (e *Engine) Average(a, b *model.CompositionRecord) (*model.CompositionRecord, *ToleranceWarning) {
	pairs, onlyA, onlyB := matchComponents(a.Components, b.Components)

	var components []model.IngredientComponent
	for _, p := range pairs {
		c := p.a
		if strings.TrimSpace(c.CAS) == "" {
			// A name-matched pair can carry the CAS from whichever side has one.
			c.CAS = strings.TrimSpace(p.b.CAS)
		}
		c.Percentage = (p.a.Percentage + p.b.Percentage) / 2
		components = append(components, c)
	}
	components = append(components, onlyA...)
	components = append(components, onlyB...)

	record := &model.CompositionRecord{
		ID:         uuid.New().String(),
		MaterialID: a.MaterialID,
		State:      model.CompositionProvisional,
		Origin:     OriginAverage,
		Confidence: (a.Confidence + b.Confidence) / 2,
		Version:    1,
		Components: components,
		CreatedAt:  e.now().UTC(),
	}

	return record, e.CheckTolerance(record)
}

// CheckTolerance returns a warning when the record's percentage sum falls
// outside the configured band, nil otherwise.
func (e *Engine) CheckTolerance(record *model.CompositionRecord) *ToleranceWarning {
	sum := record.TotalPercentage()
	if sum < e.cfg.ToleranceMin || sum > e.cfg.ToleranceMax {
		return &ToleranceWarning{Sum: sum, Min: e.cfg.ToleranceMin, Max: e.cfg.ToleranceMax}
	}
	return nil
}
