package model

import "time"

// FieldObservation is one supplier-submitted answer for one field.
// Observations are immutable once recorded.
type FieldObservation struct {
	ID         int64     `json:"id,omitempty"`
	MaterialID string    `json:"material_id"`
	FieldID    string    `json:"field_id"`
	SourceID   string    `json:"source_id"`
	RawValue   string    `json:"raw_value"`
	ObservedAt time.Time `json:"observed_at"`
}
