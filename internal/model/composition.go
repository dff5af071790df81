package model

import "time"

// CompositionState is the lifecycle state of a composition record.
// The only legal transition is provisional → definitive, one way.
type CompositionState string

const (
	CompositionProvisional CompositionState = "provisional"
	CompositionDefinitive  CompositionState = "definitive"
)

// IngredientComponent is one entry in a composition's ingredient list.
// Identity is the CAS number when present, otherwise the normalized name.
type IngredientComponent struct {
	CAS        string  `json:"cas,omitempty"`
	Name       string  `json:"name"`
	Percentage float64 `json:"percentage"`
	Category   string  `json:"category,omitempty"`
}

// CompositionRecord is an ingredient list describing a material's chemical
// makeup plus its lifecycle metadata. Promotion supersedes the record with a
// new version; prior versions stay retrievable for audit.
type CompositionRecord struct {
	ID           string                `json:"id"`
	MaterialID   string                `json:"material_id"`
	State        CompositionState      `json:"state"`
	Origin       string                `json:"origin"`
	Confidence   float64               `json:"confidence"`
	Version      int                   `json:"version"`
	SupersedesID string                `json:"supersedes_id,omitempty"`
	Components   []IngredientComponent `json:"components"`
	CreatedAt    time.Time             `json:"created_at"`
}

// TotalPercentage sums the component percentages.
func (r *CompositionRecord) TotalPercentage() float64 {
	var sum float64
	for _, c := range r.Components {
		sum += c.Percentage
	}
	return sum
}

// ComponentDiff records a percentage divergence for a matched component.
type ComponentDiff struct {
	IdentityKey string  `json:"identity_key"`
	Name        string  `json:"name"`
	PctA        float64 `json:"pct_a"`
	PctB        float64 `json:"pct_b"`
	Delta       float64 `json:"delta"`
}

// ComparisonResult is the structured outcome of comparing two compositions.
type ComparisonResult struct {
	MatchScore   float64               `json:"match_score"`
	MatchedCount int                   `json:"matched_count"`
	OnlyInA      []IngredientComponent `json:"only_in_a"`
	OnlyInB      []IngredientComponent `json:"only_in_b"`
	Differences  []ComponentDiff       `json:"differences"`
}
