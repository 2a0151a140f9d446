package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/worksafe-analytics/oshindex/internal/model"
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
	// A single writer keeps upsert transactions serialized per database,
	// which is stricter than the per-country requirement but simple.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS countries (
	code           TEXT PRIMARY KEY,
	name           TEXT NOT NULL DEFAULT '',
	maturity_score REAL,
	maturity_label TEXT,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS governance_records (
	country_code      TEXT PRIMARY KEY REFERENCES countries(code) ON DELETE CASCADE,
	ratified_c155     INTEGER,
	ratified_c187     INTEGER,
	inspector_density REAL,
	policy_present    INTEGER,
	capacity_score    REAL,
	provenance        TEXT NOT NULL DEFAULT '{}',
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS hazard_records (
	country_code          TEXT PRIMARY KEY REFERENCES countries(code) ON DELETE CASCADE,
	fatality_rate         REAL,
	exposure_pct          REAL,
	regulation_strictness TEXT,
	compliance_pct        REAL,
	injury_rate           REAL,
	training_hours        REAL,
	maturity_score        REAL,
	provenance            TEXT NOT NULL DEFAULT '{}',
	updated_at            DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS vigilance_records (
	country_code             TEXT PRIMARY KEY REFERENCES countries(code) ON DELETE CASCADE,
	surveillance_logic       TEXT,
	detection_rate           REAL,
	vulnerability_index      REAL,
	migrant_share_pct        REAL,
	reporting_compliance_pct REAL,
	screening_compliance_pct REAL,
	provenance               TEXT NOT NULL DEFAULT '{}',
	updated_at               DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS restoration_records (
	country_code       TEXT PRIMARY KEY REFERENCES countries(code) ON DELETE CASCADE,
	payer_mechanism    TEXT,
	reintegration_law  INTEGER,
	absence_days       REAL,
	rehab_access_score REAL,
	rtw_success_pct    REAL,
	settlement_months  REAL,
	participation_pct  REAL,
	provenance         TEXT NOT NULL DEFAULT '{}',
	updated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	stats       TEXT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_status ON pipeline_runs(status);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) EnsureCountry(ctx context.Context, code, name string) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO countries (code, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		code, name, now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: ensure country %s", code)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) GetCountry(ctx context.Context, code string) (*model.Country, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+countryColumns+` FROM countries WHERE code = ?`, code)
	c, err := scanCountry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get country %s", code)
	}
	return c, nil
}

func (s *SQLiteStore) ListCountries(ctx context.Context) ([]model.Country, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+countryColumns+` FROM countries ORDER BY code`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list countries")
	}
	defer rows.Close()

	var countries []model.Country
	for rows.Next() {
		c, err := scanCountry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan country")
		}
		countries = append(countries, *c)
	}
	return countries, eris.Wrap(rows.Err(), "sqlite: list countries iterate")
}

func (s *SQLiteStore) SetMaturityScore(ctx context.Context, code string, score float64, label string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE countries SET maturity_score = ?, maturity_label = ?, updated_at = ? WHERE code = ?`,
		score, label, now, code,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set maturity score for %s", code)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: country not found: %s", code)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE hazard_records SET maturity_score = ?, updated_at = ? WHERE country_code = ?`,
		score, now, code,
	)
	return eris.Wrapf(err, "sqlite: mirror maturity score for %s", code)
}

func (s *SQLiteStore) UpsertGovernance(ctx context.Context, code string, fields model.FieldSet) (*UpsertOutcome, error) {
	return s.upsertRecord(ctx, governanceTable, code, fields)
}

func (s *SQLiteStore) UpsertHazard(ctx context.Context, code string, fields model.FieldSet) (*UpsertOutcome, error) {
	return s.upsertRecord(ctx, hazardTable, code, fields)
}

func (s *SQLiteStore) UpsertVigilance(ctx context.Context, code string, fields model.FieldSet) (*UpsertOutcome, error) {
	return s.upsertRecord(ctx, vigilanceTable, code, fields)
}

func (s *SQLiteStore) UpsertRestoration(ctx context.Context, code string, fields model.FieldSet) (*UpsertOutcome, error) {
	return s.upsertRecord(ctx, restorationTable, code, fields)
}

func (s *SQLiteStore) upsertRecord(ctx context.Context, table recordTable, code string, fields model.FieldSet) (*UpsertOutcome, error) {
	if len(fields) == 0 {
		return &UpsertOutcome{}, nil
	}
	cols, err := columnValues(table, fields)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: begin upsert %s", table.name)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO countries (code, created_at, updated_at) VALUES (?, ?, ?)`,
		code, now, now,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: ensure country %s", code)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO `+table.name+` (country_code, updated_at) VALUES (?, ?)`,
		code, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: ensure %s row for %s", table.name, code)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	created := inserted == 1

	var provJSON []byte
	err = tx.QueryRowContext(ctx,
		`SELECT provenance FROM `+table.name+` WHERE country_code = ?`, code,
	).Scan(&provJSON)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: read provenance from %s for %s", table.name, code)
	}
	var existing model.Provenance
	if err := unmarshalProvenance(provJSON, &existing); err != nil {
		return nil, err
	}
	merged, err := json.Marshal(existing.Merge(fields.Provenance()))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal provenance")
	}

	update := sq.Update(table.name).
		SetMap(cols).
		Set("provenance", string(merged)).
		Set("updated_at", now).
		Where(sq.Eq{"country_code": code})
	sqlStr, args, err := update.ToSql()
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: build %s update", table.name)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return nil, eris.Wrapf(err, "sqlite: update %s for %s", table.name, code)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: commit upsert %s for %s", table.name, code)
	}
	return &UpsertOutcome{Created: created, FieldsSet: len(cols)}, nil
}

func (s *SQLiteStore) GetBundle(ctx context.Context, code string) (*model.CountryBundle, error) {
	country, err := s.GetCountry(ctx, code)
	if err != nil {
		return nil, err
	}
	if country == nil {
		return nil, eris.Errorf("sqlite: country not found: %s", code)
	}
	bundle := &model.CountryBundle{Country: *country}

	if rec, err := scanGovernance(s.db.QueryRowContext(ctx,
		`SELECT `+governanceColumns+` FROM governance_records WHERE country_code = ?`, code,
	)); err == nil {
		bundle.Governance = rec
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(err, "sqlite: load governance for %s", code)
	}

	if rec, err := scanHazard(s.db.QueryRowContext(ctx,
		`SELECT `+hazardColumns+` FROM hazard_records WHERE country_code = ?`, code,
	)); err == nil {
		bundle.Hazard = rec
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(err, "sqlite: load hazard for %s", code)
	}

	if rec, err := scanVigilance(s.db.QueryRowContext(ctx,
		`SELECT `+vigilanceColumns+` FROM vigilance_records WHERE country_code = ?`, code,
	)); err == nil {
		bundle.Vigilance = rec
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(err, "sqlite: load vigilance for %s", code)
	}

	if rec, err := scanRestoration(s.db.QueryRowContext(ctx,
		`SELECT `+restorationColumns+` FROM restoration_records WHERE country_code = ?`, code,
	)); err == nil {
		bundle.Restoration = rec
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(err, "sqlite: load restoration for %s", code)
	}

	return bundle, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, status, started_at) VALUES (?, ?, ?)`,
		id, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &model.Run{ID: id, Status: model.RunStatusRunning, StartedAt: now}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, stats *model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run stats")
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, stats = ?, finished_at = ? WHERE id = ?`,
		string(status), string(statsJSON), now, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: run not found: %s", runID)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, stats, started_at, finished_at FROM pipeline_runs WHERE id = ?`,
		runID,
	)
	run, err := scanRunRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("sqlite: run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := sq.Select("id", "status", "stats", "started_at", "finished_at").
		From("pipeline_runs").
		OrderBy("started_at DESC")
	if filter.Status != "" {
		query = query.Where(sq.Eq{"status": string(filter.Status)})
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query = query.Limit(uint64(limit))
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list runs")
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRunRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}
