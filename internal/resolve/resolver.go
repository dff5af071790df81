// Package resolve merges per-supplier field observations into a single
// canonical record according to the configured rule table.
package resolve

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/materia-group/blueline/internal/model"
)

// DefaultSeparator joins concatenated values when a rule sets none.
const DefaultSeparator = ", "

// ErrFieldBlocked is returned when a caller attempts to write a field whose
// rule marks it blocked.
var ErrFieldBlocked = eris.New("resolve: field is blocked for direct writes")

// Resolver applies the rule table to a material's observations.
type Resolver struct {
	table *model.RuleTable
	now   func() time.Time // injectable for testing
}

// New creates a Resolver over the given rule table.
func New(table *model.RuleTable) *Resolver {
	return &Resolver{table: table, now: time.Now}
}

// WithNow sets a fixed clock for testing.
func (r *Resolver) WithNow(t time.Time) *Resolver {
	r.now = func() time.Time { return t }
	return r
}

// CheckWritable reports whether fieldID accepts a direct manual write for the
// given material class. Blocked fields are owned by another system and refuse
// writes; every other configured or unconfigured field is writable.
func (r *Resolver) CheckWritable(fieldID string, class model.MaterialClass) error {
	rule := r.table.Match(fieldID, class)
	if rule != nil && rule.Strategy == model.StrategyBlocked {
		return eris.Wrapf(ErrFieldBlocked, "field %s", fieldID)
	}
	return nil
}

// Resolve merges all observations for one material into a canonical record.
// The pass is deterministic and side-effect free: the same table and
// observations always produce the same resolved fields. Observed fields with
// no rule surface with the unconfigured provenance flag rather than being
// dropped.
func (r *Resolver) Resolve(materialID string, class model.MaterialClass, supplierCode string, observations []model.FieldObservation) *model.CanonicalRecord {
	byField := groupByField(observations)

	record := &model.CanonicalRecord{
		ID:             uuid.New().String(),
		MaterialID:     materialID,
		SupplierCode:   supplierCode,
		RecordType:     model.RecordProvisional,
		ResolvedFields: make(map[string]model.ResolvedField),
		SyncState:      model.SyncPending,
		ComputedAt:     r.now().UTC(),
	}

	for fieldID, obs := range byField {
		rule := r.table.Match(fieldID, class)
		if rule == nil {
			record.ResolvedFields[fieldID] = model.ResolvedField{
				Provenance: model.Provenance{
					Unconfigured: true,
					Sources:      sourceIDs(obs),
				},
			}
			continue
		}

		switch rule.Strategy {
		case model.StrategyDirect:
			if rf, ok := resolveDirect(rule, obs); ok {
				record.ResolvedFields[fieldID] = rf
			}
		case model.StrategyConcatenate:
			if rf, ok := resolveConcatenate(rule, obs); ok {
				record.ResolvedFields[fieldID] = rf
			}
		case model.StrategyWorstCase:
			if rf, ok := resolveWorstCase(rule, obs); ok {
				record.ResolvedFields[fieldID] = rf
				if len(rf.Provenance.UnmappedValues) > 0 {
					zap.L().Warn("resolve: worst_case value outside canonical order",
						zap.String("material", materialID),
						zap.String("field", fieldID),
						zap.Strings("values", rf.Provenance.UnmappedValues),
					)
				}
			}
		case model.StrategyManual, model.StrategyBlocked:
			// Never populated from observations.
		}
	}

	return record
}

// resolveDirect takes the latest observation from the rule's authoritative
// source. No such observation means the field stays unset, to be filled
// manually.
func resolveDirect(rule *model.FieldRule, obs []model.FieldObservation) (model.ResolvedField, bool) {
	var winner *model.FieldObservation
	for i := range obs {
		o := &obs[i]
		if o.SourceID != rule.Source || strings.TrimSpace(o.RawValue) == "" {
			continue
		}
		if winner == nil || o.ObservedAt.After(winner.ObservedAt) {
			winner = o
		}
	}
	if winner == nil {
		return model.ResolvedField{}, false
	}
	return model.ResolvedField{
		Value:    strings.TrimSpace(winner.RawValue),
		Resolved: true,
		Provenance: model.Provenance{
			Strategy: model.StrategyDirect,
			Sources:  []string{winner.SourceID},
		},
	}, true
}

// resolveConcatenate joins all distinct non-empty values in first-seen
// observation order.
func resolveConcatenate(rule *model.FieldRule, obs []model.FieldObservation) (model.ResolvedField, bool) {
	sep := rule.Separator
	if sep == "" {
		sep = DefaultSeparator
	}

	var values []string
	var sources []string
	seenValue := make(map[string]bool)
	seenSource := make(map[string]bool)
	for _, o := range obs {
		v := strings.TrimSpace(o.RawValue)
		if v == "" {
			continue
		}
		if !seenValue[v] {
			seenValue[v] = true
			values = append(values, v)
		}
		if !seenSource[o.SourceID] {
			seenSource[o.SourceID] = true
			sources = append(sources, o.SourceID)
		}
	}
	if len(values) == 0 {
		return model.ResolvedField{}, false
	}
	return model.ResolvedField{
		Value:    strings.Join(values, sep),
		Resolved: true,
		Provenance: model.Provenance{
			Strategy: model.StrategyConcatenate,
			Sources:  sources,
		},
	}, true
}

// resolveWorstCase picks the observation ranked furthest toward worst in the
// rule's canonical order. Values outside the order rank as worst (fail-safe)
// and are reported in provenance for manual review.
func resolveWorstCase(rule *model.FieldRule, obs []model.FieldObservation) (model.ResolvedField, bool) {
	rank := make(map[string]int, len(rule.WorstCaseOrder))
	for i, v := range rule.WorstCaseOrder {
		rank[strings.ToLower(v)] = i
	}
	unmappedRank := len(rule.WorstCaseOrder)

	var winner *model.FieldObservation
	winnerRank := -1
	var unmapped []string
	seenUnmapped := make(map[string]bool)
	for i := range obs {
		o := &obs[i]
		v := strings.TrimSpace(o.RawValue)
		if v == "" {
			continue
		}
		rk, ok := rank[strings.ToLower(v)]
		if !ok {
			rk = unmappedRank
			if !seenUnmapped[v] {
				seenUnmapped[v] = true
				unmapped = append(unmapped, v)
			}
		}
		if rk > winnerRank {
			winnerRank = rk
			winner = o
		}
	}
	if winner == nil {
		return model.ResolvedField{}, false
	}
	return model.ResolvedField{
		Value:    strings.TrimSpace(winner.RawValue),
		Resolved: true,
		Provenance: model.Provenance{
			Strategy:       model.StrategyWorstCase,
			Sources:        []string{winner.SourceID},
			UnmappedValues: unmapped,
		},
	}, true
}

// groupByField buckets observations by field in stable observation order.
func groupByField(observations []model.FieldObservation) map[string][]model.FieldObservation {
	sorted := make([]model.FieldObservation, len(observations))
	copy(sorted, observations)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].ObservedAt.Equal(sorted[j].ObservedAt) {
			return sorted[i].ObservedAt.Before(sorted[j].ObservedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	byField := make(map[string][]model.FieldObservation)
	for _, o := range sorted {
		byField[o.FieldID] = append(byField[o.FieldID], o)
	}
	return byField
}

func sourceIDs(obs []model.FieldObservation) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, o := range obs {
		if !seen[o.SourceID] {
			seen[o.SourceID] = true
			ids = append(ids, o.SourceID)
		}
	}
	return ids
}
