// Package eligibility decides whether a material/supplier pair may have its
// canonical record recomputed.
package eligibility

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ApprovedState is the upstream approval state required for eligibility.
const ApprovedState = "approved"

// PurchaseHistory reports purchase recency for a material/supplier pair.
type PurchaseHistory interface {
	// LastPurchase returns the most recent purchase event time. The bool is
	// false when no purchase exists at all.
	LastPurchase(ctx context.Context, materialID, supplierCode string) (time.Time, bool, error)
}

// ApprovalStatus reports the upstream regulatory/technical approval state.
type ApprovalStatus interface {
	// ApprovalState returns the current state, empty when unknown.
	ApprovalState(ctx context.Context, materialID string) (string, error)
}

// Eligibility is the structured outcome of a gate check.
type Eligibility struct {
	Eligible bool     `json:"eligible"`
	Reasons  []string `json:"reasons,omitempty"`
}

// Error is returned when a canonical record is requested for an ineligible
// pair. It carries the gate's structured reasons.
type Error struct {
	MaterialID   string
	SupplierCode string
	Reasons      []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("material %s supplier %s not eligible: %s",
		e.MaterialID, e.SupplierCode, strings.Join(e.Reasons, "; "))
}

// Gate evaluates eligibility from purchase history and approval status.
type Gate struct {
	purchases  PurchaseHistory
	approvals  ApprovalStatus
	windowDays int
	now        func() time.Time // injectable for testing
}

// New creates a Gate with the given providers and rolling purchase window.
func New(purchases PurchaseHistory, approvals ApprovalStatus, windowDays int) *Gate {
	return &Gate{
		purchases:  purchases,
		approvals:  approvals,
		windowDays: windowDays,
		now:        time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (g *Gate) WithNow(t time.Time) *Gate {
	g.now = func() time.Time { return t }
	return g
}

// Check evaluates both conditions and returns structured reasons on failure.
// Both checks always run so callers see every blocking condition at once.
func (g *Gate) Check(ctx context.Context, materialID, supplierCode string) (Eligibility, error) {
	var reasons []string

	last, found, err := g.purchases.LastPurchase(ctx, materialID, supplierCode)
	if err != nil {
		return Eligibility{}, eris.Wrap(err, "eligibility: purchase history")
	}
	cutoff := g.now().AddDate(0, 0, -g.windowDays)
	switch {
	case !found:
		reasons = append(reasons, fmt.Sprintf("no purchase recorded for supplier %s", supplierCode))
	case last.Before(cutoff):
		reasons = append(reasons, fmt.Sprintf("last purchase %s is older than %d days",
			last.Format("2006-01-02"), g.windowDays))
	}

	state, err := g.approvals.ApprovalState(ctx, materialID)
	if err != nil {
		return Eligibility{}, eris.Wrap(err, "eligibility: approval status")
	}
	if state != ApprovedState {
		if state == "" {
			state = "unknown"
		}
		reasons = append(reasons, fmt.Sprintf("approval status is %q, want %q", state, ApprovedState))
	}

	return Eligibility{Eligible: len(reasons) == 0, Reasons: reasons}, nil
}
