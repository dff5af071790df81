// Package service orchestrates the reconciliation engines over the store:
// coherence scoring, eligibility gating, canonical record resolution and
// composition lifecycle management.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/materia-group/blueline/internal/coherence"
	"github.com/materia-group/blueline/internal/composition"
	"github.com/materia-group/blueline/internal/config"
	"github.com/materia-group/blueline/internal/eligibility"
	"github.com/materia-group/blueline/internal/model"
	"github.com/materia-group/blueline/internal/resolve"
	"github.com/materia-group/blueline/internal/store"
)

// ErrMaterialNotFound is returned when an operation references an unknown
// material.
var ErrMaterialNotFound = eris.New("service: material not found")

// ErrCompositionNotFound is returned when an operation references an unknown
// composition record.
var ErrCompositionNotFound = eris.New("service: composition not found")

// Service wires the engines together behind the operations the surrounding
// layers (CLI, HTTP) consume.
type Service struct {
	store     store.Store
	resolver  *resolve.Resolver
	gate      *eligibility.Gate
	engine    *composition.Engine
	guard     *composition.Guard
	validator *coherence.Validator
	cfg       *config.Config
	locks     *keyedLocks
	now       func() time.Time // injectable for testing
}

// New creates a Service over the given store and rule table.
func New(st store.Store, table *model.RuleTable, cfg *config.Config) *Service {
	return &Service{
		store:     st,
		resolver:  resolve.New(table),
		gate:      eligibility.New(st, st, cfg.Eligibility.PurchaseWindowDays),
		engine:    composition.NewEngine(cfg.Composition),
		guard:     composition.NewGuard(),
		validator: coherence.NewValidator(cfg.Coherence),
		cfg:       cfg,
		locks:     newKeyedLocks(),
		now:       time.Now,
	}
}

// WithNow sets a fixed clock for testing, propagated to the gate and engines.
func (s *Service) WithNow(t time.Time) *Service {
	s.now = func() time.Time { return t }
	s.resolver.WithNow(t)
	s.gate.WithNow(t)
	s.engine.WithNow(t)
	s.guard.WithNow(t)
	return s
}

// ResolveCanonicalRecord rebuilds the canonical record for a material and
// supplier from all known observations. The eligibility gate blocks the
// rebuild unless force is set; a forced rebuild of an ineligible pair is
// stamped in the record so auditors can see the bypass.
func (s *Service) ResolveCanonicalRecord(ctx context.Context, materialID, supplierCode string, force bool) (*model.CanonicalRecord, error) {
	unlock := s.locks.lock(materialID)
	defer unlock()

	material, err := s.store.GetMaterial(ctx, materialID)
	if err != nil {
		return nil, err
	}
	if material == nil {
		return nil, eris.Wrapf(ErrMaterialNotFound, "material %s", materialID)
	}

	el, err := s.gate.Check(ctx, materialID, supplierCode)
	if err != nil {
		return nil, err
	}
	if !el.Eligible && !force {
		return nil, &eligibility.Error{MaterialID: materialID, SupplierCode: supplierCode, Reasons: el.Reasons}
	}

	observations, err := s.store.ListObservations(ctx, materialID)
	if err != nil {
		return nil, err
	}

	record := s.resolver.Resolve(materialID, material.Class, supplierCode, observations)
	record.ForcedOverride = force && !el.Eligible

	if master, err := s.store.GetMasterComposition(ctx, materialID); err != nil {
		return nil, err
	} else if master != nil {
		record.CompositionRef = master.ID
	}

	if err := s.store.SaveCanonicalRecord(ctx, record); err != nil {
		return nil, err
	}

	zap.L().Info("service: canonical record rebuilt",
		zap.String("material", materialID),
		zap.String("supplier", supplierCode),
		zap.Int("fields", len(record.ResolvedFields)),
		zap.Bool("forced", record.ForcedOverride),
	)
	return record, nil
}

// SetManualField writes a human-entered value into the canonical record.
// Fields ruled blocked refuse the write; everything else is stamped with
// manual provenance and the record goes back to pending sync.
func (s *Service) SetManualField(ctx context.Context, materialID, supplierCode, fieldID, value string) (*model.CanonicalRecord, error) {
	unlock := s.locks.lock(materialID)
	defer unlock()

	material, err := s.store.GetMaterial(ctx, materialID)
	if err != nil {
		return nil, err
	}
	if material == nil {
		return nil, eris.Wrapf(ErrMaterialNotFound, "material %s", materialID)
	}
	if err := s.resolver.CheckWritable(fieldID, material.Class); err != nil {
		return nil, err
	}

	record, err := s.store.GetCanonicalRecord(ctx, materialID, supplierCode)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, eris.Errorf("service: no canonical record for material %s supplier %s", materialID, supplierCode)
	}

	record.ResolvedFields[fieldID] = model.ResolvedField{
		Value:    value,
		Resolved: true,
		Provenance: model.Provenance{
			Strategy: model.StrategyManual,
			Sources:  []string{"manual"},
		},
	}
	record.SyncState = model.SyncPending
	record.ComputedAt = s.now().UTC()

	if err := s.store.SaveCanonicalRecord(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// CheckEligibility runs the gate without resolving anything.
func (s *Service) CheckEligibility(ctx context.Context, materialID, supplierCode string) (eligibility.Eligibility, error) {
	return s.gate.Check(ctx, materialID, supplierCode)
}

// CompareCompositions compares two stored composition records.
func (s *Service) CompareCompositions(ctx context.Context, aID, bID string) (*model.ComparisonResult, error) {
	a, b, err := s.loadPair(ctx, aID, bID)
	if err != nil {
		return nil, err
	}
	return s.engine.Compare(a, b), nil
}

// AverageCompositions averages two stored composition records and persists
// the result as a new provisional version. The tolerance warning, when
// non-nil, travels back with the record; the sum is never rescaled here.
func (s *Service) AverageCompositions(ctx context.Context, aID, bID string) (*model.CompositionRecord, *composition.ToleranceWarning, error) {
	a, b, err := s.loadPair(ctx, aID, bID)
	if err != nil {
		return nil, nil, err
	}

	avg, warn := s.engine.Average(a, b)
	avg.Version = maxInt(a.Version, b.Version) + 1
	if err := s.store.SaveComposition(ctx, avg); err != nil {
		return nil, nil, err
	}
	if warn != nil {
		zap.L().Warn("service: averaged composition outside tolerance band",
			zap.String("material", avg.MaterialID),
			zap.Float64("sum", warn.Sum),
		)
	}
	return avg, warn, nil
}

// PromoteComposition promotes a stored provisional composition to definitive
// on the authority of a trusted source. The superseded version is kept.
func (s *Service) PromoteComposition(ctx context.Context, id string, newComponents []model.IngredientComponent, trustedSource string) (*model.CompositionRecord, error) {
	record, err := s.store.GetComposition(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, eris.Wrapf(ErrCompositionNotFound, "composition %s", id)
	}

	promoted, err := s.guard.Promote(record, newComponents, trustedSource)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveComposition(ctx, promoted); err != nil {
		return nil, err
	}
	return promoted, nil
}

// EvaluateCoherence scores a submission's field values and persists the
// report for audit.
func (s *Service) EvaluateCoherence(ctx context.Context, materialID, sourceID string, fieldValues map[string]string) (*model.CoherenceReport, error) {
	score, findings := s.validator.Evaluate(fieldValues)
	report := &model.CoherenceReport{
		ID:          uuid.New().String(),
		MaterialID:  materialID,
		SourceID:    sourceID,
		Score:       score,
		Findings:    findings,
		EvaluatedAt: s.now().UTC(),
	}
	if err := s.store.SaveCoherenceReport(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Service) loadPair(ctx context.Context, aID, bID string) (*model.CompositionRecord, *model.CompositionRecord, error) {
	a, err := s.store.GetComposition(ctx, aID)
	if err != nil {
		return nil, nil, err
	}
	if a == nil {
		return nil, nil, eris.Wrapf(ErrCompositionNotFound, "composition %s", aID)
	}
	b, err := s.store.GetComposition(ctx, bID)
	if err != nil {
		return nil, nil, err
	}
	if b == nil {
		return nil, nil, eris.Wrapf(ErrCompositionNotFound, "composition %s", bID)
	}
	return a, b, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
