package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/materia-group/blueline/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS materials (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	class      TEXT NOT NULL DEFAULT 'all',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS observations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	material_id TEXT NOT NULL,
	field_id    TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	raw_value   TEXT NOT NULL,
	observed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS purchase_events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	material_id   TEXT NOT NULL,
	supplier_code TEXT NOT NULL,
	purchased_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS approval_status (
	material_id TEXT PRIMARY KEY,
	state       TEXT NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS canonical_records (
	id              TEXT PRIMARY KEY,
	material_id     TEXT NOT NULL,
	supplier_code   TEXT NOT NULL DEFAULT '',
	record_type     TEXT NOT NULL,
	resolved_fields TEXT NOT NULL,
	composition_ref TEXT,
	sync_state      TEXT NOT NULL,
	forced_override INTEGER NOT NULL DEFAULT 0,
	computed_at     DATETIME NOT NULL,
	UNIQUE(material_id, supplier_code)
);

CREATE TABLE IF NOT EXISTS compositions (
	id            TEXT PRIMARY KEY,
	material_id   TEXT NOT NULL,
	state         TEXT NOT NULL,
	origin        TEXT NOT NULL,
	confidence    REAL NOT NULL,
	version       INTEGER NOT NULL,
	supersedes_id TEXT,
	components    TEXT NOT NULL,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS coherence_reports (
	id           TEXT PRIMARY KEY,
	material_id  TEXT NOT NULL,
	source_id    TEXT NOT NULL,
	score        INTEGER NOT NULL,
	findings     TEXT NOT NULL,
	evaluated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_observations_material ON observations(material_id);
CREATE INDEX IF NOT EXISTS idx_purchase_events_pair ON purchase_events(material_id, supplier_code);
CREATE INDEX IF NOT EXISTS idx_canonical_sync_state ON canonical_records(sync_state);
CREATE INDEX IF NOT EXISTS idx_compositions_material ON compositions(material_id, version);
CREATE INDEX IF NOT EXISTS idx_coherence_material ON coherence_reports(material_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertMaterial(ctx context.Context, m model.Material) error {
	if m.Class == "" {
		m.Class = model.ClassAll
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO materials (id, name, class, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, class = excluded.class`,
		m.ID, m.Name, string(m.Class), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert material %s", m.ID)
}

func (s *SQLiteStore) GetMaterial(ctx context.Context, id string) (*model.Material, error) {
	var m model.Material
	var class string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, class, created_at FROM materials WHERE id = ?`, id,
	).Scan(&m.ID, &m.Name, &class, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get material %s", id)
	}
	m.Class = model.MaterialClass(class)
	return &m, nil
}

func (s *SQLiteStore) ListMaterials(ctx context.Context) ([]model.Material, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, class, created_at FROM materials ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list materials")
	}
	defer rows.Close()

	var materials []model.Material
	for rows.Next() {
		var m model.Material
		var class string
		if err := rows.Scan(&m.ID, &m.Name, &class, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan material")
		}
		m.Class = model.MaterialClass(class)
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

func (s *SQLiteStore) AddObservations(ctx context.Context, observations []model.FieldObservation) (int, error) {
	if len(observations) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO observations (material_id, field_id, source_id, raw_value, observed_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert observation")
	}
	defer stmt.Close()

	for _, o := range observations {
		if _, err := stmt.ExecContext(ctx, o.MaterialID, o.FieldID, o.SourceID, o.RawValue, o.ObservedAt.UTC()); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert observation %s/%s", o.MaterialID, o.FieldID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit observations")
	}
	return len(observations), nil
}

func (s *SQLiteStore) ListObservations(ctx context.Context, materialID string) ([]model.FieldObservation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, material_id, field_id, source_id, raw_value, observed_at
		 FROM observations WHERE material_id = ? ORDER BY observed_at, id`, materialID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list observations %s", materialID)
	}
	defer rows.Close()

	var observations []model.FieldObservation
	for rows.Next() {
		var o model.FieldObservation
		if err := rows.Scan(&o.ID, &o.MaterialID, &o.FieldID, &o.SourceID, &o.RawValue, &o.ObservedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan observation")
		}
		observations = append(observations, o)
	}
	return observations, rows.Err()
}

func (s *SQLiteStore) AddPurchaseEvent(ctx context.Context, materialID, supplierCode string, purchasedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO purchase_events (material_id, supplier_code, purchased_at) VALUES (?, ?, ?)`,
		materialID, supplierCode, purchasedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert purchase event %s/%s", materialID, supplierCode)
}

func (s *SQLiteStore) LastPurchase(ctx context.Context, materialID, supplierCode string) (time.Time, bool, error) {
	var at time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT purchased_at FROM purchase_events
		 WHERE material_id = ? AND supplier_code = ? ORDER BY purchased_at DESC LIMIT 1`,
		materialID, supplierCode,
	).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, eris.Wrapf(err, "sqlite: last purchase %s/%s", materialID, supplierCode)
	}
	return at, true, nil
}

func (s *SQLiteStore) SetApprovalState(ctx context.Context, materialID, state string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO approval_status (material_id, state, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(material_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		materialID, state, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: set approval state %s", materialID)
}

func (s *SQLiteStore) ApprovalState(ctx context.Context, materialID string) (string, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM approval_status WHERE material_id = ?`, materialID,
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: approval state %s", materialID)
	}
	return state, nil
}

func (s *SQLiteStore) SaveCanonicalRecord(ctx context.Context, record *model.CanonicalRecord) error {
	fieldsJSON, err := json.Marshal(record.ResolvedFields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal resolved fields")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO canonical_records
		 (id, material_id, supplier_code, record_type, resolved_fields, composition_ref, sync_state, forced_override, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(material_id, supplier_code) DO UPDATE SET
		   id = excluded.id,
		   record_type = excluded.record_type,
		   resolved_fields = excluded.resolved_fields,
		   composition_ref = excluded.composition_ref,
		   sync_state = excluded.sync_state,
		   forced_override = excluded.forced_override,
		   computed_at = excluded.computed_at`,
		record.ID, record.MaterialID, record.SupplierCode, string(record.RecordType),
		string(fieldsJSON), record.CompositionRef, string(record.SyncState),
		boolToInt(record.ForcedOverride), record.ComputedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save canonical record %s", record.MaterialID)
}

func (s *SQLiteStore) GetCanonicalRecord(ctx context.Context, materialID, supplierCode string) (*model.CanonicalRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, material_id, supplier_code, record_type, resolved_fields, composition_ref, sync_state, forced_override, computed_at
		 FROM canonical_records WHERE material_id = ? AND supplier_code = ?`,
		materialID, supplierCode)
	record, err := scanCanonicalRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get canonical record %s", materialID)
	}
	return record, nil
}

func (s *SQLiteStore) ListPendingSync(ctx context.Context, limit int) ([]model.CanonicalRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, material_id, supplier_code, record_type, resolved_fields, composition_ref, sync_state, forced_override, computed_at
		 FROM canonical_records WHERE sync_state = ? ORDER BY computed_at LIMIT ?`,
		string(model.SyncPending), limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending sync")
	}
	defer rows.Close()

	var records []model.CanonicalRecord
	for rows.Next() {
		record, err := scanCanonicalRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan canonical record")
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) UpdateSyncState(ctx context.Context, recordID string, state model.SyncState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE canonical_records SET sync_state = ? WHERE id = ?`,
		string(state), recordID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update sync state %s", recordID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: canonical record %s not found", recordID)
	}
	return nil
}

func (s *SQLiteStore) SaveComposition(ctx context.Context, record *model.CompositionRecord) error {
	componentsJSON, err := json.Marshal(record.Components)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal components")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO compositions (id, material_id, state, origin, confidence, version, supersedes_id, components, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.MaterialID, string(record.State), record.Origin,
		record.Confidence, record.Version, record.SupersedesID, string(componentsJSON),
		record.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save composition %s", record.ID)
}

func (s *SQLiteStore) GetComposition(ctx context.Context, id string) (*model.CompositionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, material_id, state, origin, confidence, version, supersedes_id, components, created_at
		 FROM compositions WHERE id = ?`, id)
	record, err := scanComposition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get composition %s", id)
	}
	return record, nil
}

func (s *SQLiteStore) GetMasterComposition(ctx context.Context, materialID string) (*model.CompositionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, material_id, state, origin, confidence, version, supersedes_id, components, created_at
		 FROM compositions WHERE material_id = ? ORDER BY version DESC, created_at DESC LIMIT 1`,
		materialID)
	record, err := scanComposition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: master composition %s", materialID)
	}
	return record, nil
}

func (s *SQLiteStore) SaveCoherenceReport(ctx context.Context, report *model.CoherenceReport) error {
	findingsJSON, err := json.Marshal(report.Findings)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal findings")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO coherence_reports (id, material_id, source_id, score, findings, evaluated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		report.ID, report.MaterialID, report.SourceID, report.Score,
		string(findingsJSON), report.EvaluatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save coherence report %s", report.ID)
}

func (s *SQLiteStore) ListCoherenceReports(ctx context.Context, materialID string) ([]model.CoherenceReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, material_id, source_id, score, findings, evaluated_at
		 FROM coherence_reports WHERE material_id = ? ORDER BY evaluated_at DESC`, materialID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list coherence reports %s", materialID)
	}
	defer rows.Close()

	var reports []model.CoherenceReport
	for rows.Next() {
		var r model.CoherenceReport
		var findingsJSON string
		if err := rows.Scan(&r.ID, &r.MaterialID, &r.SourceID, &r.Score, &findingsJSON, &r.EvaluatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan coherence report")
		}
		if err := json.Unmarshal([]byte(findingsJSON), &r.Findings); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal findings")
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// scannable abstracts *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanCanonicalRecord(row scannable) (*model.CanonicalRecord, error) {
	var r model.CanonicalRecord
	var recordType, fieldsJSON, syncState string
	var compositionRef sql.NullString
	var forced int
	if err := row.Scan(&r.ID, &r.MaterialID, &r.SupplierCode, &recordType, &fieldsJSON,
		&compositionRef, &syncState, &forced, &r.ComputedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &r.ResolvedFields); err != nil {
		return nil, eris.Wrap(err, "unmarshal resolved fields")
	}
	r.RecordType = model.RecordType(recordType)
	r.SyncState = model.SyncState(syncState)
	r.CompositionRef = compositionRef.String
	r.ForcedOverride = forced != 0
	return &r, nil
}

func scanComposition(row scannable) (*model.CompositionRecord, error) {
	var r model.CompositionRecord
	var state, componentsJSON string
	var supersedes sql.NullString
	if err := row.Scan(&r.ID, &r.MaterialID, &state, &r.Origin, &r.Confidence,
		&r.Version, &supersedes, &componentsJSON, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(componentsJSON), &r.Components); err != nil {
		return nil, eris.Wrap(err, "unmarshal components")
	}
	r.State = model.CompositionState(state)
	r.SupersedesID = supersedes.String
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
