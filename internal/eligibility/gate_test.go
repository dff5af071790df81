package eligibility

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPurchases struct {
	last  time.Time
	found bool
	err   error
}

func (s stubPurchases) LastPurchase(context.Context, string, string) (time.Time, bool, error) {
	return s.last, s.found, s.err
}

type stubApprovals struct {
	state string
	err   error
}

func (s stubApprovals) ApprovalState(context.Context, string) (string, error) {
	return s.state, s.err
}

var gateNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func TestGate_Eligible(t *testing.T) {
	g := New(
		stubPurchases{last: gateNow.AddDate(0, -6, 0), found: true},
		stubApprovals{state: "approved"},
		1095,
	).WithNow(gateNow)

	el, err := g.Check(context.Background(), "MAT-001", "SUP-1")
	require.NoError(t, err)
	assert.True(t, el.Eligible)
	assert.Empty(t, el.Reasons)
}

func TestGate_StalePurchase(t *testing.T) {
	g := New(
		stubPurchases{last: gateNow.AddDate(-4, 0, 0), found: true},
		stubApprovals{state: "approved"},
		1095,
	).WithNow(gateNow)

	el, err := g.Check(context.Background(), "MAT-001", "SUP-1")
	require.NoError(t, err)
	assert.False(t, el.Eligible)
	require.Len(t, el.Reasons, 1)
	assert.Contains(t, el.Reasons[0], "older than 1095 days")
}

func TestGate_NoPurchase(t *testing.T) {
	g := New(stubPurchases{}, stubApprovals{state: "approved"}, 1095).WithNow(gateNow)

	el, err := g.Check(context.Background(), "MAT-001", "SUP-1")
	require.NoError(t, err)
	assert.False(t, el.Eligible)
	assert.Contains(t, el.Reasons[0], "no purchase recorded")
}

func TestGate_NotApproved_AccumulatesReasons(t *testing.T) {
	g := New(stubPurchases{}, stubApprovals{state: "pending_review"}, 1095).WithNow(gateNow)

	el, err := g.Check(context.Background(), "MAT-001", "SUP-1")
	require.NoError(t, err)
	assert.False(t, el.Eligible)
	// Both failing conditions are reported, not just the first.
	require.Len(t, el.Reasons, 2)
	assert.Contains(t, el.Reasons[1], `"pending_review"`)
}

func TestGate_UnknownApprovalState(t *testing.T) {
	g := New(
		stubPurchases{last: gateNow, found: true},
		stubApprovals{state: ""},
		1095,
	).WithNow(gateNow)

	el, err := g.Check(context.Background(), "MAT-001", "SUP-1")
	require.NoError(t, err)
	assert.False(t, el.Eligible)
	assert.Contains(t, el.Reasons[0], `"unknown"`)
}

func TestGate_ProviderError(t *testing.T) {
	g := New(stubPurchases{err: eris.New("db down")}, stubApprovals{}, 1095)

	_, err := g.Check(context.Background(), "MAT-001", "SUP-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "purchase history")
}

func TestError_Message(t *testing.T) {
	e := &Error{MaterialID: "MAT-001", SupplierCode: "SUP-1", Reasons: []string{"a", "b"}}
	assert.Equal(t, "material MAT-001 supplier SUP-1 not eligible: a; b", e.Error())
}
