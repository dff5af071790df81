package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/materia-group/blueline/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_MaterialRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertMaterial(ctx, model.Material{ID: "MAT-001", Name: "Lavandin Oil", Class: model.ClassNatural}))

	m, err := s.GetMaterial(ctx, "MAT-001")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "Lavandin Oil", m.Name)
	assert.Equal(t, model.ClassNatural, m.Class)

	// Upsert replaces, not duplicates.
	require.NoError(t, s.UpsertMaterial(ctx, model.Material{ID: "MAT-001", Name: "Lavandin Oil Grosso", Class: model.ClassNatural}))
	materials, err := s.ListMaterials(ctx)
	require.NoError(t, err)
	require.Len(t, materials, 1)
	assert.Equal(t, "Lavandin Oil Grosso", materials[0].Name)
}

func TestSQLite_GetMaterial_NotFound(t *testing.T) {
	s := newTestStore(t)
	m, err := s.GetMaterial(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestSQLite_ObservationsOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	n, err := s.AddObservations(ctx, []model.FieldObservation{
		{MaterialID: "MAT-001", FieldID: "origin_country", SourceID: "sup-b", RawValue: "BG", ObservedAt: base.Add(time.Hour)},
		{MaterialID: "MAT-001", FieldID: "origin_country", SourceID: "sup-a", RawValue: "FR", ObservedAt: base},
		{MaterialID: "MAT-002", FieldID: "origin_country", SourceID: "sup-a", RawValue: "IN", ObservedAt: base},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	obs, err := s.ListObservations(ctx, "MAT-001")
	require.NoError(t, err)
	require.Len(t, obs, 2)
	// Observation order, oldest first.
	assert.Equal(t, "FR", obs[0].RawValue)
	assert.Equal(t, "BG", obs[1].RawValue)
	assert.NotZero(t, obs[0].ID)
}

func TestSQLite_AddObservations_Empty(t *testing.T) {
	s := newTestStore(t)
	n, err := s.AddObservations(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_PurchaseAndApproval(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, found, err := s.LastPurchase(ctx, "MAT-001", "SUP-1")
	require.NoError(t, err)
	assert.False(t, found)

	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.AddPurchaseEvent(ctx, "MAT-001", "SUP-1", older))
	require.NoError(t, s.AddPurchaseEvent(ctx, "MAT-001", "SUP-1", newer))

	last, found, err := s.LastPurchase(ctx, "MAT-001", "SUP-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, newer, last.UTC())

	state, err := s.ApprovalState(ctx, "MAT-001")
	require.NoError(t, err)
	assert.Empty(t, state)

	require.NoError(t, s.SetApprovalState(ctx, "MAT-001", "approved"))
	state, err = s.ApprovalState(ctx, "MAT-001")
	require.NoError(t, err)
	assert.Equal(t, "approved", state)
}

func canonicalFixture(id string) *model.CanonicalRecord {
	return &model.CanonicalRecord{
		ID:           id,
		MaterialID:   "MAT-001",
		SupplierCode: "SUP-1",
		RecordType:   model.RecordProvisional,
		ResolvedFields: map[string]model.ResolvedField{
			"origin_country": {
				Value:    "FR, BG",
				Resolved: true,
				Provenance: model.Provenance{
					Strategy: model.StrategyConcatenate,
					Sources:  []string{"sup-a", "sup-b"},
				},
			},
		},
		SyncState:  model.SyncPending,
		ComputedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSQLite_CanonicalRecord_RebuildReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCanonicalRecord(ctx, canonicalFixture("rec-1")))

	// A second resolution pass for the same pair replaces the row.
	second := canonicalFixture("rec-2")
	second.ResolvedFields["origin_country"] = model.ResolvedField{Value: "FR", Resolved: true}
	require.NoError(t, s.SaveCanonicalRecord(ctx, second))

	got, err := s.GetCanonicalRecord(ctx, "MAT-001", "SUP-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "rec-2", got.ID)
	assert.Equal(t, "FR", got.ResolvedFields["origin_country"].Value)

	pending, err := s.ListPendingSync(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestSQLite_CanonicalRecord_ProvenanceSurvivesRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCanonicalRecord(ctx, canonicalFixture("rec-1")))
	got, err := s.GetCanonicalRecord(ctx, "MAT-001", "SUP-1")
	require.NoError(t, err)

	f := got.ResolvedFields["origin_country"]
	assert.Equal(t, model.StrategyConcatenate, f.Provenance.Strategy)
	assert.Equal(t, []string{"sup-a", "sup-b"}, f.Provenance.Sources)
}

func TestSQLite_UpdateSyncState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCanonicalRecord(ctx, canonicalFixture("rec-1")))
	require.NoError(t, s.UpdateSyncState(ctx, "rec-1", model.SyncSynced))

	pending, err := s.ListPendingSync(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	err = s.UpdateSyncState(ctx, "missing", model.SyncSynced)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_Compositions_MasterIsLatestVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v1 := &model.CompositionRecord{
		ID: "comp-1", MaterialID: "MAT-001", State: model.CompositionProvisional,
		Origin: "extraction", Confidence: 70, Version: 1,
		Components: []model.IngredientComponent{{CAS: "78-70-6", Name: "Linalool", Percentage: 35.5}},
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	v2 := &model.CompositionRecord{
		ID: "comp-2", MaterialID: "MAT-001", State: model.CompositionDefinitive,
		Origin: "lab-gc-ms", Confidence: 100, Version: 2, SupersedesID: "comp-1",
		Components: []model.IngredientComponent{{CAS: "78-70-6", Name: "Linalool", Percentage: 36.1}},
		CreatedAt:  time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveComposition(ctx, v1))
	require.NoError(t, s.SaveComposition(ctx, v2))

	master, err := s.GetMasterComposition(ctx, "MAT-001")
	require.NoError(t, err)
	require.NotNil(t, master)
	assert.Equal(t, "comp-2", master.ID)
	assert.Equal(t, model.CompositionDefinitive, master.State)
	assert.Equal(t, "comp-1", master.SupersedesID)

	// The superseded version stays retrievable for audit.
	old, err := s.GetComposition(ctx, "comp-1")
	require.NoError(t, err)
	require.NotNil(t, old)
	assert.Equal(t, model.CompositionProvisional, old.State)
	assert.Equal(t, 35.5, old.Components[0].Percentage)
}

func TestSQLite_GetComposition_NotFound(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetComposition(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_CoherenceReports(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	report := &model.CoherenceReport{
		ID: "rep-1", MaterialID: "MAT-001", SourceID: "sup-a", Score: 60,
		Findings: []model.CoherenceFinding{{
			RuleID:    "natural-vs-synthetic-additive",
			FieldRefs: []string{"natural", "contains_additives"},
			Severity:  model.SeverityCritical,
			Message:   "marked fully natural but declares a synthetic additive",
		}},
		EvaluatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveCoherenceReport(ctx, report))

	reports, err := s.ListCoherenceReports(ctx, "MAT-001")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 60, reports[0].Score)
	require.Len(t, reports[0].Findings, 1)
	assert.Equal(t, model.SeverityCritical, reports[0].Findings[0].Severity)
}
