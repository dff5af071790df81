package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/materia-group/blueline/internal/db"
	"github.com/materia-group/blueline/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a tuned connection pool.
func NewPostgres(ctx context.Context, connString string, maxConns, minConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	if maxConns <= 0 {
		maxConns = 10
	}
	if minConns <= 0 {
		minConns = 2
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS materials (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	class      TEXT NOT NULL DEFAULT 'all',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS observations (
	id          BIGSERIAL PRIMARY KEY,
	material_id TEXT NOT NULL,
	field_id    TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	raw_value   TEXT NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS purchase_events (
	id            BIGSERIAL PRIMARY KEY,
	material_id   TEXT NOT NULL,
	supplier_code TEXT NOT NULL,
	purchased_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS approval_status (
	material_id TEXT PRIMARY KEY,
	state       TEXT NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS canonical_records (
	id              TEXT PRIMARY KEY,
	material_id     TEXT NOT NULL,
	supplier_code   TEXT NOT NULL DEFAULT '',
	record_type     TEXT NOT NULL,
	resolved_fields JSONB NOT NULL,
	composition_ref TEXT,
	sync_state      TEXT NOT NULL,
	forced_override BOOLEAN NOT NULL DEFAULT false,
	computed_at     TIMESTAMPTZ NOT NULL,
	UNIQUE(material_id, supplier_code)
);

CREATE TABLE IF NOT EXISTS compositions (
	id            TEXT PRIMARY KEY,
	material_id   TEXT NOT NULL,
	state         TEXT NOT NULL,
	origin        TEXT NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL,
	version       INTEGER NOT NULL,
	supersedes_id TEXT,
	components    JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS coherence_reports (
	id           TEXT PRIMARY KEY,
	material_id  TEXT NOT NULL,
	source_id    TEXT NOT NULL,
	score        INTEGER NOT NULL,
	findings     JSONB NOT NULL,
	evaluated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_observations_material ON observations(material_id);
CREATE INDEX IF NOT EXISTS idx_purchase_events_pair ON purchase_events(material_id, supplier_code);
CREATE INDEX IF NOT EXISTS idx_canonical_sync_state ON canonical_records(sync_state);
CREATE INDEX IF NOT EXISTS idx_compositions_material ON compositions(material_id, version);
CREATE INDEX IF NOT EXISTS idx_coherence_material ON coherence_reports(material_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertMaterial(ctx context.Context, m model.Material) error {
	if m.Class == "" {
		m.Class = model.ClassAll
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO materials (id, name, class, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, class = EXCLUDED.class`,
		m.ID, m.Name, string(m.Class), time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert material %s", m.ID)
}

func (s *PostgresStore) GetMaterial(ctx context.Context, id string) (*model.Material, error) {
	var m model.Material
	var class string
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, class, created_at FROM materials WHERE id = $1`, id,
	).Scan(&m.ID, &m.Name, &class, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get material %s", id)
	}
	m.Class = model.MaterialClass(class)
	return &m, nil
}

func (s *PostgresStore) ListMaterials(ctx context.Context) ([]model.Material, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, class, created_at FROM materials ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list materials")
	}
	defer rows.Close()

	var materials []model.Material
	for rows.Next() {
		var m model.Material
		var class string
		if err := rows.Scan(&m.ID, &m.Name, &class, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan material")
		}
		m.Class = model.MaterialClass(class)
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

// AddObservations bulk-inserts via COPY; observation imports can carry a few
// hundred rows per submission.
func (s *PostgresStore) AddObservations(ctx context.Context, observations []model.FieldObservation) (int, error) {
	rows := make([][]any, 0, len(observations))
	for _, o := range observations {
		rows = append(rows, []any{o.MaterialID, o.FieldID, o.SourceID, o.RawValue, o.ObservedAt.UTC()})
	}
	n, err := db.CopyFrom(ctx, s.pool, "observations",
		[]string{"material_id", "field_id", "source_id", "raw_value", "observed_at"}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert observations")
	}
	return int(n), nil
}

func (s *PostgresStore) ListObservations(ctx context.Context, materialID string) ([]model.FieldObservation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, material_id, field_id, source_id, raw_value, observed_at
		 FROM observations WHERE material_id = $1 ORDER BY observed_at, id`, materialID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list observations %s", materialID)
	}
	defer rows.Close()

	var observations []model.FieldObservation
	for rows.Next() {
		var o model.FieldObservation
		if err := rows.Scan(&o.ID, &o.MaterialID, &o.FieldID, &o.SourceID, &o.RawValue, &o.ObservedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		observations = append(observations, o)
	}
	return observations, rows.Err()
}

func (s *PostgresStore) AddPurchaseEvent(ctx context.Context, materialID, supplierCode string, purchasedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO purchase_events (material_id, supplier_code, purchased_at) VALUES ($1, $2, $3)`,
		materialID, supplierCode, purchasedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert purchase event %s/%s", materialID, supplierCode)
}

func (s *PostgresStore) LastPurchase(ctx context.Context, materialID, supplierCode string) (time.Time, bool, error) {
	var at time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT purchased_at FROM purchase_events
		 WHERE material_id = $1 AND supplier_code = $2 ORDER BY purchased_at DESC LIMIT 1`,
		materialID, supplierCode,
	).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, eris.Wrapf(err, "postgres: last purchase %s/%s", materialID, supplierCode)
	}
	return at, true, nil
}

func (s *PostgresStore) SetApprovalState(ctx context.Context, materialID, state string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO approval_status (material_id, state, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (material_id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		materialID, state, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: set approval state %s", materialID)
}

func (s *PostgresStore) ApprovalState(ctx context.Context, materialID string) (string, error) {
	var state string
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM approval_status WHERE material_id = $1`, materialID,
	).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "postgres: approval state %s", materialID)
	}
	return state, nil
}

func (s *PostgresStore) SaveCanonicalRecord(ctx context.Context, record *model.CanonicalRecord) error {
	fieldsJSON, err := json.Marshal(record.ResolvedFields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal resolved fields")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO canonical_records
		 (id, material_id, supplier_code, record_type, resolved_fields, composition_ref, sync_state, forced_override, computed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (material_id, supplier_code) DO UPDATE SET
		   id = EXCLUDED.id,
		   record_type = EXCLUDED.record_type,
		   resolved_fields = EXCLUDED.resolved_fields,
		   composition_ref = EXCLUDED.composition_ref,
		   sync_state = EXCLUDED.sync_state,
		   forced_override = EXCLUDED.forced_override,
		   computed_at = EXCLUDED.computed_at`,
		record.ID, record.MaterialID, record.SupplierCode, string(record.RecordType),
		fieldsJSON, nullable(record.CompositionRef), string(record.SyncState),
		record.ForcedOverride, record.ComputedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save canonical record %s", record.MaterialID)
}

func (s *PostgresStore) GetCanonicalRecord(ctx context.Context, materialID, supplierCode string) (*model.CanonicalRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, material_id, supplier_code, record_type, resolved_fields, composition_ref, sync_state, forced_override, computed_at
		 FROM canonical_records WHERE material_id = $1 AND supplier_code = $2`,
		materialID, supplierCode)
	record, err := scanCanonicalRecordPG(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get canonical record %s", materialID)
	}
	return record, nil
}

func (s *PostgresStore) ListPendingSync(ctx context.Context, limit int) ([]model.CanonicalRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, material_id, supplier_code, record_type, resolved_fields, composition_ref, sync_state, forced_override, computed_at
		 FROM canonical_records WHERE sync_state = $1 ORDER BY computed_at LIMIT $2`,
		string(model.SyncPending), limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending sync")
	}
	defer rows.Close()

	var records []model.CanonicalRecord
	for rows.Next() {
		record, err := scanCanonicalRecordPG(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan canonical record")
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

func (s *PostgresStore) UpdateSyncState(ctx context.Context, recordID string, state model.SyncState) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE canonical_records SET sync_state = $1 WHERE id = $2`,
		string(state), recordID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update sync state %s", recordID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: canonical record %s not found", recordID)
	}
	return nil
}

func (s *PostgresStore) SaveComposition(ctx context.Context, record *model.CompositionRecord) error {
	componentsJSON, err := json.Marshal(record.Components)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal components")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO compositions (id, material_id, state, origin, confidence, version, supersedes_id, components, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		record.ID, record.MaterialID, string(record.State), record.Origin,
		record.Confidence, record.Version, nullable(record.SupersedesID), componentsJSON,
		record.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save composition %s", record.ID)
}

func (s *PostgresStore) GetComposition(ctx context.Context, id string) (*model.CompositionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, material_id, state, origin, confidence, version, supersedes_id, components, created_at
		 FROM compositions WHERE id = $1`, id)
	record, err := scanCompositionPG(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get composition %s", id)
	}
	return record, nil
}

func (s *PostgresStore) GetMasterComposition(ctx context.Context, materialID string) (*model.CompositionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, material_id, state, origin, confidence, version, supersedes_id, components, created_at
		 FROM compositions WHERE material_id = $1 ORDER BY version DESC, created_at DESC LIMIT 1`,
		materialID)
	record, err := scanCompositionPG(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: master composition %s", materialID)
	}
	return record, nil
}

func (s *PostgresStore) SaveCoherenceReport(ctx context.Context, report *model.CoherenceReport) error {
	findingsJSON, err := json.Marshal(report.Findings)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal findings")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO coherence_reports (id, material_id, source_id, score, findings, evaluated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		report.ID, report.MaterialID, report.SourceID, report.Score, findingsJSON,
		report.EvaluatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save coherence report %s", report.ID)
}

func (s *PostgresStore) ListCoherenceReports(ctx context.Context, materialID string) ([]model.CoherenceReport, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, material_id, source_id, score, findings, evaluated_at
		 FROM coherence_reports WHERE material_id = $1 ORDER BY evaluated_at DESC`, materialID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list coherence reports %s", materialID)
	}
	defer rows.Close()

	var reports []model.CoherenceReport
	for rows.Next() {
		var r model.CoherenceReport
		var findingsJSON []byte
		if err := rows.Scan(&r.ID, &r.MaterialID, &r.SourceID, &r.Score, &findingsJSON, &r.EvaluatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan coherence report")
		}
		if err := json.Unmarshal(findingsJSON, &r.Findings); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal findings")
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func scanCanonicalRecordPG(row pgx.Row) (*model.CanonicalRecord, error) {
	var r model.CanonicalRecord
	var recordType, syncState string
	var fieldsJSON []byte
	var compositionRef *string
	if err := row.Scan(&r.ID, &r.MaterialID, &r.SupplierCode, &recordType, &fieldsJSON,
		&compositionRef, &syncState, &r.ForcedOverride, &r.ComputedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fieldsJSON, &r.ResolvedFields); err != nil {
		return nil, eris.Wrap(err, "unmarshal resolved fields")
	}
	r.RecordType = model.RecordType(recordType)
	r.SyncState = model.SyncState(syncState)
	if compositionRef != nil {
		r.CompositionRef = *compositionRef
	}
	return &r, nil
}

func scanCompositionPG(row pgx.Row) (*model.CompositionRecord, error) {
	var r model.CompositionRecord
	var state string
	var componentsJSON []byte
	var supersedes *string
	if err := row.Scan(&r.ID, &r.MaterialID, &state, &r.Origin, &r.Confidence,
		&r.Version, &supersedes, &componentsJSON, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(componentsJSON, &r.Components); err != nil {
		return nil, eris.Wrap(err, "unmarshal components")
	}
	r.State = model.CompositionState(state)
	if supersedes != nil {
		r.SupersedesID = *supersedes
	}
	return &r, nil
}

// nullable maps empty strings to NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
