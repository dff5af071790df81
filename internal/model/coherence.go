package model

import "time"

// Severity grades a coherence finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// CoherenceFinding is one triggered contradiction rule.
type CoherenceFinding struct {
	RuleID    string   `json:"rule_id"`
	FieldRefs []string `json:"field_refs"`
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
}

// CoherenceReport is the persisted outcome of evaluating one submission.
type CoherenceReport struct {
	ID          string             `json:"id"`
	MaterialID  string             `json:"material_id"`
	SourceID    string             `json:"source_id"`
	Score       int                `json:"score"`
	Findings    []CoherenceFinding `json:"findings"`
	EvaluatedAt time.Time          `json:"evaluated_at"`
}
