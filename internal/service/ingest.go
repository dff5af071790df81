package service

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/materia-group/blueline/internal/model"
)

// Submission is one supplier delivery about a material: a bundle of field
// values and, optionally, a declared composition.
type Submission struct {
	MaterialID   string                      `json:"material_id"`
	SupplierCode string                      `json:"supplier_code"`
	SourceID     string                      `json:"source_id"`
	FieldValues  map[string]string           `json:"field_values"`
	Composition  []model.IngredientComponent `json:"composition,omitempty"`
	ReceivedAt   time.Time                   `json:"received_at,omitempty"`
}

// IngestResult reports what happened to a submission: whether it was
// accepted, the coherence report, and the record and composition state
// after processing.
type IngestResult struct {
	Accepted    bool                     `json:"accepted"`
	Report      *model.CoherenceReport   `json:"report"`
	Record      *model.CanonicalRecord   `json:"record,omitempty"`
	Comparison  *model.ComparisonResult  `json:"comparison,omitempty"`
	Composition *model.CompositionRecord `json:"composition,omitempty"`
}

// IngestSubmission runs a submission through the full pipeline: coherence
// scoring first, then observation storage, canonical record rebuild and
// composition reconciliation. Submissions scoring below the acceptance
// threshold are rejected before anything is written besides the report.
// When a later step fails, the result accompanies the error so the caller
// still sees the report and whatever was persisted before the failure.
func (s *Service) IngestSubmission(ctx context.Context, sub *Submission) (*IngestResult, error) {
	if sub.MaterialID == "" || sub.SupplierCode == "" {
		return nil, eris.New("service: submission requires material and supplier")
	}

	report, err := s.EvaluateCoherence(ctx, sub.MaterialID, sub.SourceID, sub.FieldValues)
	if err != nil {
		return nil, err
	}
	result := &IngestResult{Report: report}

	if report.Score < s.cfg.Coherence.AcceptThreshold {
		zap.L().Warn("service: submission rejected on coherence",
			zap.String("material", sub.MaterialID),
			zap.String("source", sub.SourceID),
			zap.Int("score", report.Score),
		)
		return result, nil
	}
	result.Accepted = true

	observedAt := sub.ReceivedAt
	if observedAt.IsZero() {
		observedAt = s.now().UTC()
	}
	observations := make([]model.FieldObservation, 0, len(sub.FieldValues))
	for fieldID, value := range sub.FieldValues {
		observations = append(observations, model.FieldObservation{
			MaterialID: sub.MaterialID,
			FieldID:    fieldID,
			SourceID:   sub.SourceID,
			RawValue:   value,
			ObservedAt: observedAt,
		})
	}
	if _, err := s.store.AddObservations(ctx, observations); err != nil {
		return result, err
	}

	// Composition first so the rebuilt record links the fresh master.
	if len(sub.Composition) > 0 {
		if err := s.reconcileComposition(ctx, sub, result); err != nil {
			return result, err
		}
	}

	record, err := s.ResolveCanonicalRecord(ctx, sub.MaterialID, sub.SupplierCode, false)
	if err != nil {
		return result, err
	}
	result.Record = record

	return result, nil
}

// reconcileComposition folds a submitted composition into the material's
// master. Close matches are averaged into a new provisional version;
// divergent submissions are stored standalone for a human to look at.
func (s *Service) reconcileComposition(ctx context.Context, sub *Submission, result *IngestResult) error {
	incoming := s.engine.FromSubmission(sub.MaterialID, sub.SourceID, sub.Composition)

	master, err := s.store.GetMasterComposition(ctx, sub.MaterialID)
	if err != nil {
		return err
	}
	if master == nil {
		if err := s.store.SaveComposition(ctx, incoming); err != nil {
			return err
		}
		result.Composition = incoming
		return nil
	}

	cmp := s.engine.Compare(master, incoming)
	result.Comparison = cmp

	if cmp.MatchScore < s.cfg.Composition.RecomputeThreshold {
		zap.L().Warn("service: submitted composition diverges from master",
			zap.String("material", sub.MaterialID),
			zap.Float64("match_score", cmp.MatchScore),
		)
		if err := s.store.SaveComposition(ctx, incoming); err != nil {
			return err
		}
		result.Composition = incoming
		return nil
	}

	avg, warn := s.engine.Average(master, incoming)
	avg.Version = master.Version + 1
	avg.SupersedesID = master.ID
	if err := s.store.SaveComposition(ctx, avg); err != nil {
		return err
	}
	if warn != nil {
		zap.L().Warn("service: recomputed composition outside tolerance band",
			zap.String("material", sub.MaterialID),
			zap.Float64("sum", warn.Sum),
		)
	}
	result.Composition = avg
	return nil
}
