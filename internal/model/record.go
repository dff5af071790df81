package model

import "time"

// RecordType distinguishes provisional from definitive canonical records.
type RecordType string

const (
	RecordProvisional RecordType = "provisional"
	RecordDefinitive  RecordType = "definitive"
)

// SyncState tracks downstream propagation of a canonical record.
type SyncState string

const (
	SyncPending     SyncState = "pending"
	SyncSynced      SyncState = "synced"
	SyncFailed      SyncState = "failed"
	SyncNotRequired SyncState = "not_required"
)

// Provenance records why a resolved field has its value. It is part of the
// returned structure, not a side log.
type Provenance struct {
	Strategy Strategy `json:"strategy,omitempty"`
	// Sources lists the observation sources that contributed to the value.
	Sources []string `json:"sources,omitempty"`
	// Unconfigured marks a field that had observations but no rule.
	Unconfigured bool `json:"unconfigured,omitempty"`
	// UnmappedValues lists observed values outside a worst_case rule's
	// canonical order. They resolved fail-safe to worst and need review.
	UnmappedValues []string `json:"unmapped_values,omitempty"`
}

// ResolvedField is the outcome of resolving one field.
type ResolvedField struct {
	Value      string     `json:"value"`
	Resolved   bool       `json:"resolved"`
	Provenance Provenance `json:"provenance"`
}

// CanonicalRecord is the single reconciled reference record for a material,
// known in the business as the Blue Line. It is rebuilt whole on every
// successful resolution pass, never appended to.
type CanonicalRecord struct {
	ID             string                   `json:"id"`
	MaterialID     string                   `json:"material_id"`
	SupplierCode   string                   `json:"supplier_code,omitempty"`
	RecordType     RecordType               `json:"record_type"`
	ResolvedFields map[string]ResolvedField `json:"resolved_fields"`
	CompositionRef string                   `json:"composition_ref,omitempty"`
	SyncState      SyncState                `json:"sync_state"`
	// ForcedOverride is set when the eligibility gate was bypassed.
	ForcedOverride bool      `json:"forced_override,omitempty"`
	ComputedAt     time.Time `json:"computed_at"`
}

// UnconfiguredFields returns the field IDs that were observed but carry no
// rule, in no particular order.
func (r *CanonicalRecord) UnconfiguredFields() []string {
	var ids []string
	for id, f := range r.ResolvedFields {
		if f.Provenance.Unconfigured {
			ids = append(ids, id)
		}
	}
	return ids
}
