// Package store persists materials, observations, canonical records,
// composition versions and coherence reports behind a driver-agnostic
// interface. The engines never touch it; only the service layer does.
package store

import (
	"context"
	"time"

	"github.com/materia-group/blueline/internal/model"
)

// Store defines the persistence interface for the reconciliation service.
type Store interface {
	// Materials
	UpsertMaterial(ctx context.Context, m model.Material) error
	GetMaterial(ctx context.Context, id string) (*model.Material, error)
	ListMaterials(ctx context.Context) ([]model.Material, error)

	// Observations (immutable, append-only)
	AddObservations(ctx context.Context, observations []model.FieldObservation) (int, error)
	ListObservations(ctx context.Context, materialID string) ([]model.FieldObservation, error)

	// Eligibility data. LastPurchase and ApprovalState satisfy the
	// eligibility provider interfaces.
	AddPurchaseEvent(ctx context.Context, materialID, supplierCode string, purchasedAt time.Time) error
	LastPurchase(ctx context.Context, materialID, supplierCode string) (time.Time, bool, error)
	SetApprovalState(ctx context.Context, materialID, state string) error
	ApprovalState(ctx context.Context, materialID string) (string, error)

	// Canonical records: one per (material, supplier), rebuilt whole.
	SaveCanonicalRecord(ctx context.Context, record *model.CanonicalRecord) error
	GetCanonicalRecord(ctx context.Context, materialID, supplierCode string) (*model.CanonicalRecord, error)
	ListPendingSync(ctx context.Context, limit int) ([]model.CanonicalRecord, error)
	UpdateSyncState(ctx context.Context, recordID string, state model.SyncState) error

	// Compositions: versions are append-only; the master is the latest
	// version for a material.
	SaveComposition(ctx context.Context, record *model.CompositionRecord) error
	GetComposition(ctx context.Context, id string) (*model.CompositionRecord, error)
	GetMasterComposition(ctx context.Context, materialID string) (*model.CompositionRecord, error)

	// Coherence reports
	SaveCoherenceReport(ctx context.Context, report *model.CoherenceReport) error
	ListCoherenceReports(ctx context.Context, materialID string) ([]model.CoherenceReport, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
