package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/materia-group/blueline/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetMaterial_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, class, created_at FROM materials WHERE id = \$1`).
		WithArgs("MAT-404").
		WillReturnError(pgx.ErrNoRows)

	m, err := s.GetMaterial(context.Background(), "MAT-404")
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCanonicalRecord_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, material_id, supplier_code, record_type, resolved_fields`).
		WithArgs("MAT-001", "SUP-1").
		WillReturnError(pgx.ErrNoRows)

	record, err := s.GetCanonicalRecord(context.Background(), "MAT-001", "SUP-1")
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetComposition_Roundtrip(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	components := []byte(`[{"cas":"78-70-6","name":"Linalool","percentage":35.5}]`)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"id", "material_id", "state", "origin", "confidence", "version", "supersedes_id", "components", "created_at",
	}).AddRow("comp-1", "MAT-001", "provisional", "extraction", 70.0, 1, (*string)(nil), components, created)

	mock.ExpectQuery(`SELECT id, material_id, state, origin, confidence, version, supersedes_id, components, created_at\s+FROM compositions WHERE id = \$1`).
		WithArgs("comp-1").
		WillReturnRows(rows)

	record, err := s.GetComposition(context.Background(), "comp-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, model.CompositionProvisional, record.State)
	require.Len(t, record.Components, 1)
	assert.Equal(t, "78-70-6", record.Components[0].CAS)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateSyncState_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE canonical_records SET sync_state = \$1 WHERE id = \$2`).
		WithArgs("synced", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateSyncState(context.Background(), "missing", model.SyncSynced)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddObservations_Copy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"observations"},
		[]string{"material_id", "field_id", "source_id", "raw_value", "observed_at"}).
		WillReturnResult(2)

	n, err := s.AddObservations(context.Background(), []model.FieldObservation{
		{MaterialID: "MAT-001", FieldID: "origin_country", SourceID: "sup-a", RawValue: "FR", ObservedAt: time.Now()},
		{MaterialID: "MAT-001", FieldID: "origin_country", SourceID: "sup-b", RawValue: "BG", ObservedAt: time.Now()},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetApprovalState(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO approval_status`).
		WithArgs("MAT-001", "approved", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetApprovalState(context.Background(), "MAT-001", "approved")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
