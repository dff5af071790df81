package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/materia-group/blueline/internal/config"
	"github.com/materia-group/blueline/internal/eligibility"
	"github.com/materia-group/blueline/internal/model"
	"github.com/materia-group/blueline/internal/service"
	"github.com/materia-group/blueline/internal/store"
)

func newTestRouter(t *testing.T) (http.Handler, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	table, err := model.NewRuleTable([]model.FieldRule{
		{FieldID: "origin_country", Strategy: model.StrategyConcatenate},
		{FieldID: "natural", Strategy: model.StrategyDirect, Source: "lab"},
	})
	require.NoError(t, err)

	svcCfg := &config.Config{
		Eligibility: config.EligibilityConfig{PurchaseWindowDays: 1095},
		Composition: config.CompositionConfig{
			PercentEpsilon: 0.1, ToleranceMin: 95, ToleranceMax: 105, RecomputeThreshold: 80,
		},
		Coherence: config.CoherenceConfig{
			CriticalDeduction: 40, WarningDeduction: 15, InfoDeduction: 5, AcceptThreshold: 50,
		},
	}
	e := &env{Store: st, Rules: table, Service: service.New(st, table, svcCfg)}
	return newRouter(e, config.ServerConfig{AllowedOrigins: []string{"*"}}), st
}

func seedMaterial(t *testing.T, st store.Store, id string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, st.UpsertMaterial(ctx, model.Material{ID: id, Name: "Lavender Oil", Class: model.ClassNatural, CreatedAt: now}))
	require.NoError(t, st.AddPurchaseEvent(ctx, id, "SUP-1", now.AddDate(0, -1, 0)))
	require.NoError(t, st.SetApprovalState(ctx, id, eligibility.ApprovedState))
}

func TestServeHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServeSubmissionRoundtrip(t *testing.T) {
	router, st := newTestRouter(t)
	seedMaterial(t, st, "mat-1")

	body, _ := json.Marshal(map[string]any{
		"material_id":   "mat-1",
		"supplier_code": "SUP-1",
		"source_id":     "portal",
		"field_values":  map[string]string{"origin_country": "FR"},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/submissions", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result service.IngestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Accepted)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/records/mat-1?supplier=SUP-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var record model.CanonicalRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "FR", record.ResolvedFields["origin_country"].Value)
}

func TestServeSubmissionRejected(t *testing.T) {
	router, st := newTestRouter(t)
	seedMaterial(t, st, "mat-1")

	body, _ := json.Marshal(map[string]any{
		"material_id":   "mat-1",
		"supplier_code": "SUP-1",
		"source_id":     "portal",
		"field_values": map[string]string{
			"natural":            "yes",
			"contains_additives": "yes",
			"rspo_certified":     "yes",
		},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/submissions", bytes.NewReader(body)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestServeSubmissionIneligibleConflictCarriesResult(t *testing.T) {
	router, st := newTestRouter(t)
	// Known material with no approval and no purchase history.
	require.NoError(t, st.UpsertMaterial(context.Background(), model.Material{
		ID: "mat-1", Name: "Citral", Class: model.ClassSynthetic, CreatedAt: time.Now().UTC(),
	}))

	body, _ := json.Marshal(map[string]any{
		"material_id":   "mat-1",
		"supplier_code": "SUP-1",
		"source_id":     "portal",
		"field_values":  map[string]string{"origin_country": "FR"},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/submissions", bytes.NewReader(body)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp struct {
		Reasons []string              `json:"reasons"`
		Result  *service.IngestResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Reasons, 2)
	require.NotNil(t, resp.Result)
	require.NotNil(t, resp.Result.Report)
	assert.True(t, resp.Result.Accepted)
}

func TestServeResolveIneligibleConflict(t *testing.T) {
	router, st := newTestRouter(t)
	require.NoError(t, st.UpsertMaterial(context.Background(), model.Material{
		ID: "mat-1", Name: "Citral", Class: model.ClassSynthetic, CreatedAt: time.Now().UTC(),
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/records/mat-1/resolve?supplier=SUP-1", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		Reasons []string `json:"reasons"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Reasons, 2)
}

func TestServeRecordNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/records/nope?supplier=SUP-1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeUnknownMaterialResolve(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/records/nope/resolve?supplier=SUP-1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServePromoteComposition(t *testing.T) {
	router, st := newTestRouter(t)
	require.NoError(t, st.SaveComposition(context.Background(), &model.CompositionRecord{
		ID: "comp-1", MaterialID: "mat-1", State: model.CompositionProvisional,
		Origin: "lab", Version: 1, CreatedAt: time.Now().UTC(),
		Components: []model.IngredientComponent{{CAS: "78-70-6", Name: "Linalool", Percentage: 35}},
	}))

	body, _ := json.Marshal(map[string]string{"source": "reference-lab"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/compositions/comp-1/promote", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var record model.CompositionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, model.CompositionDefinitive, record.State)
}
