package model

import (
	"sort"

	"github.com/rotisserie/eris"
)

// Strategy identifies how multiple supplier answers for a field are merged.
type Strategy string

const (
	// StrategyDirect sources the value from a single authoritative system.
	StrategyDirect Strategy = "direct"
	// StrategyConcatenate joins all distinct answers in first-seen order.
	StrategyConcatenate Strategy = "concatenate"
	// StrategyWorstCase picks the least favorable answer per a ranked order.
	StrategyWorstCase Strategy = "worst_case"
	// StrategyManual reserves the field for human entry; never auto-resolved.
	StrategyManual Strategy = "manual"
	// StrategyBlocked refuses resolution and direct writes entirely.
	StrategyBlocked Strategy = "blocked"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyDirect, StrategyConcatenate, StrategyWorstCase, StrategyManual, StrategyBlocked:
		return true
	}
	return false
}

// MaterialClass scopes a rule to a class of materials.
type MaterialClass string

const (
	ClassAll       MaterialClass = "all"
	ClassNatural   MaterialClass = "natural"
	ClassSynthetic MaterialClass = "synthetic"
)

// Valid reports whether c is a known material class.
func (c MaterialClass) Valid() bool {
	switch c {
	case ClassAll, ClassNatural, ClassSynthetic:
		return true
	}
	return false
}

// FieldRule configures the resolution strategy for one tracked field.
type FieldRule struct {
	FieldID   string        `yaml:"field_id" json:"field_id"`
	Strategy  Strategy      `yaml:"strategy" json:"strategy"`
	AppliesTo MaterialClass `yaml:"applies_to" json:"applies_to"`
	Priority  int           `yaml:"priority" json:"priority"`

	// WorstCaseOrder ranks canonical values best to worst. Required for
	// the worst_case strategy, ignored otherwise.
	WorstCaseOrder []string `yaml:"worst_case_order,omitempty" json:"worst_case_order,omitempty"`

	// Separator joins concatenated values. Defaults to ", ".
	Separator string `yaml:"separator,omitempty" json:"separator,omitempty"`

	// Source names the authoritative source for the direct strategy.
	Source string `yaml:"source,omitempty" json:"source,omitempty"`
}

// RuleTable is an indexed collection of field rules.
type RuleTable struct {
	Rules   []FieldRule
	byField map[string][]*FieldRule
}

// NewRuleTable indexes the given rules and validates the uniqueness
// invariant: at most one rule per (field_id, applies_to) pair.
func NewRuleTable(rules []FieldRule) (*RuleTable, error) {
	t := &RuleTable{
		Rules:   rules,
		byField: make(map[string][]*FieldRule, len(rules)),
	}
	seen := make(map[[2]string]bool, len(rules))
	for i := range t.Rules {
		r := &t.Rules[i]
		if r.FieldID == "" {
			return nil, eris.New("model: rule with empty field_id")
		}
		if !r.Strategy.Valid() {
			return nil, eris.Errorf("model: rule %s: unknown strategy %q", r.FieldID, r.Strategy)
		}
		if r.AppliesTo == "" {
			r.AppliesTo = ClassAll
		}
		if !r.AppliesTo.Valid() {
			return nil, eris.Errorf("model: rule %s: unknown applies_to %q", r.FieldID, r.AppliesTo)
		}
		if r.Strategy == StrategyWorstCase && len(r.WorstCaseOrder) == 0 {
			return nil, eris.Errorf("model: rule %s: worst_case strategy requires worst_case_order", r.FieldID)
		}
		key := [2]string{r.FieldID, string(r.AppliesTo)}
		if seen[key] {
			return nil, eris.Errorf("model: duplicate rule for field %s applies_to %s", r.FieldID, r.AppliesTo)
		}
		seen[key] = true
		t.byField[r.FieldID] = append(t.byField[r.FieldID], r)
	}
	return t, nil
}

// Match returns the rule governing fieldID for the given material class.
// A class-specific rule beats an "all" rule; lower priority number wins
// among remaining candidates. Returns nil when the field is unconfigured.
func (t *RuleTable) Match(fieldID string, class MaterialClass) *FieldRule {
	candidates := t.byField[fieldID]
	if len(candidates) == 0 {
		return nil
	}
	var best *FieldRule
	for _, r := range candidates {
		if r.AppliesTo != ClassAll && r.AppliesTo != class {
			continue
		}
		if best == nil {
			best = r
			continue
		}
		// Most specific applies_to wins, then lowest priority number.
		bestSpecific := best.AppliesTo != ClassAll
		rSpecific := r.AppliesTo != ClassAll
		switch {
		case rSpecific && !bestSpecific:
			best = r
		case rSpecific == bestSpecific && r.Priority < best.Priority:
			best = r
		}
	}
	return best
}

// RulesFor returns copies of every rule configured for fieldID.
func (t *RuleTable) RulesFor(fieldID string) []FieldRule {
	rules := make([]FieldRule, 0, len(t.byField[fieldID]))
	for _, r := range t.byField[fieldID] {
		rules = append(rules, *r)
	}
	return rules
}

// FieldIDs returns all configured field identifiers in sorted order.
func (t *RuleTable) FieldIDs() []string {
	ids := make([]string, 0, len(t.byField))
	for id := range t.byField {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
