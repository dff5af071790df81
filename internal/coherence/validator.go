// Package coherence scores a single submission's field values against a
// fixed catalogue of logically incompatible field-value pairs.
package coherence

import (
	"go.uber.org/zap"

	"github.com/materia-group/blueline/internal/config"
	"github.com/materia-group/blueline/internal/model"
)

// Validator evaluates submissions against the contradiction catalogue.
type Validator struct {
	cfg   config.CoherenceConfig
	rules []Rule
}

// NewValidator creates a Validator with the default catalogue and the given
// severity deductions. Deductions must be monotonic: critical > warning >
// info; out-of-order values are accepted but logged.
func NewValidator(cfg config.CoherenceConfig) *Validator {
	if cfg.CriticalDeduction <= cfg.WarningDeduction || cfg.WarningDeduction <= cfg.InfoDeduction {
		zap.L().Warn("coherence: non-monotonic severity deductions",
			zap.Int("critical", cfg.CriticalDeduction),
			zap.Int("warning", cfg.WarningDeduction),
			zap.Int("info", cfg.InfoDeduction),
		)
	}
	return &Validator{cfg: cfg, rules: Catalogue()}
}

func (v *Validator) deduction(s model.Severity) int {
	switch s {
	case model.SeverityCritical:
		return v.cfg.CriticalDeduction
	case model.SeverityWarning:
		return v.cfg.WarningDeduction
	default:
		return v.cfg.InfoDeduction
	}
}

// Evaluate runs every catalogue rule independently over the submission and
// returns the coherence score with all findings. A submission with no
// triggered rules scores exactly 100; the score never leaves [0, 100].
func (v *Validator) Evaluate(fieldValues map[string]string) (int, []model.CoherenceFinding) {
	get := func(fieldID string) (string, bool) {
		val, ok := fieldValues[fieldID]
		return val, ok
	}

	score := 100
	var findings []model.CoherenceFinding
	for _, rule := range v.rules {
		if !rule.Triggered(get) {
			continue
		}
		findings = append(findings, model.CoherenceFinding{
			RuleID:    rule.ID,
			FieldRefs: rule.FieldRefs,
			Severity:  rule.Severity,
			Message:   rule.Message,
		})
		score -= v.deduction(rule.Severity)
	}
	if score < 0 {
		score = 0
	}
	return score, findings
}
