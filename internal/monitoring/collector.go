// Package monitoring assembles point-in-time snapshots of reconciliation
// health from the store.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/materia-group/blueline/internal/model"
	"github.com/materia-group/blueline/internal/store"
)

// Snapshot holds a point-in-time view of reconciliation state.
type Snapshot struct {
	Materials        int `json:"materials"`
	NaturalMaterials int `json:"natural_materials"`

	// PendingSync is the outbound queue depth.
	PendingSync int `json:"pending_sync"`

	// Coherence over all stored reports.
	ReportsTotal      int     `json:"reports_total"`
	ReportsFlagged    int     `json:"reports_flagged"`
	AvgCoherenceScore float64 `json:"avg_coherence_score"`

	CollectedAt time.Time `json:"collected_at"`
}

// Collector gathers snapshots from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a Collector over the given store.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect builds a snapshot of the current reconciliation state.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{CollectedAt: time.Now().UTC()}

	materials, err := c.store.ListMaterials(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list materials")
	}
	snap.Materials = len(materials)
	for _, m := range materials {
		if m.Class == model.ClassNatural {
			snap.NaturalMaterials++
		}
	}

	pending, err := c.store.ListPendingSync(ctx, 10000)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list pending sync")
	}
	snap.PendingSync = len(pending)

	var totalScore int
	for _, m := range materials {
		reports, err := c.store.ListCoherenceReports(ctx, m.ID)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list coherence reports")
		}
		for _, r := range reports {
			snap.ReportsTotal++
			totalScore += r.Score
			if len(r.Findings) > 0 {
				snap.ReportsFlagged++
			}
		}
	}
	if snap.ReportsTotal > 0 {
		snap.AvgCoherenceScore = float64(totalScore) / float64(snap.ReportsTotal)
	}

	return snap, nil
}
