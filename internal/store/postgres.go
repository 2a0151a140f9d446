package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/worksafe-analytics/oshindex/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// for tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// psql builds queries with Postgres placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS countries (
	code           TEXT PRIMARY KEY,
	name           TEXT NOT NULL DEFAULT '',
	maturity_score DOUBLE PRECISION,
	maturity_label TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS governance_records (
	country_code      TEXT PRIMARY KEY REFERENCES countries(code) ON DELETE CASCADE,
	ratified_c155     BOOLEAN,
	ratified_c187     BOOLEAN,
	inspector_density DOUBLE PRECISION,
	policy_present    BOOLEAN,
	capacity_score    DOUBLE PRECISION,
	provenance        JSONB NOT NULL DEFAULT '{}',
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS hazard_records (
	country_code          TEXT PRIMARY KEY REFERENCES countries(code) ON DELETE CASCADE,
	fatality_rate         DOUBLE PRECISION,
	exposure_pct          DOUBLE PRECISION,
	regulation_strictness TEXT,
	compliance_pct        DOUBLE PRECISION,
	injury_rate           DOUBLE PRECISION,
	training_hours        DOUBLE PRECISION,
	maturity_score        DOUBLE PRECISION,
	provenance            JSONB NOT NULL DEFAULT '{}',
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS vigilance_records (
	country_code             TEXT PRIMARY KEY REFERENCES countries(code) ON DELETE CASCADE,
	surveillance_logic       TEXT,
	detection_rate           DOUBLE PRECISION,
	vulnerability_index      DOUBLE PRECISION,
	migrant_share_pct        DOUBLE PRECISION,
	reporting_compliance_pct DOUBLE PRECISION,
	screening_compliance_pct DOUBLE PRECISION,
	provenance               JSONB NOT NULL DEFAULT '{}',
	updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS restoration_records (
	country_code       TEXT PRIMARY KEY REFERENCES countries(code) ON DELETE CASCADE,
	payer_mechanism    TEXT,
	reintegration_law  BOOLEAN,
	absence_days       DOUBLE PRECISION,
	rehab_access_score DOUBLE PRECISION,
	rtw_success_pct    DOUBLE PRECISION,
	settlement_months  DOUBLE PRECISION,
	participation_pct  DOUBLE PRECISION,
	provenance         JSONB NOT NULL DEFAULT '{}',
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	stats       JSONB,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_status ON pipeline_runs(status);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs(started_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) EnsureCountry(ctx context.Context, code, name string) (bool, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO countries (code, name, created_at, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (code) DO NOTHING`,
		code, name, now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: ensure country %s", code)
	}
	return tag.RowsAffected() == 1, nil
}

const countryColumns = `code, name, maturity_score, maturity_label, created_at, updated_at`

func (s *PostgresStore) GetCountry(ctx context.Context, code string) (*model.Country, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+countryColumns+` FROM countries WHERE code = $1`, code)
	c, err := scanCountry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get country %s", code)
	}
	return c, nil
}

func (s *PostgresStore) ListCountries(ctx context.Context) ([]model.Country, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+countryColumns+` FROM countries ORDER BY code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list countries")
	}
	defer rows.Close()

	var countries []model.Country
	for rows.Next() {
		c, err := scanCountry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan country")
		}
		countries = append(countries, *c)
	}
	return countries, eris.Wrap(rows.Err(), "postgres: list countries iterate")
}

func (s *PostgresStore) SetMaturityScore(ctx context.Context, code string, score float64, label string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE countries SET maturity_score = $1, maturity_label = $2, updated_at = $3 WHERE code = $4`,
		score, label, now, code,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set maturity score for %s", code)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: country not found: %s", code)
	}

	// The hazard record mirrors the composite score when it exists.
	_, err = s.pool.Exec(ctx,
		`UPDATE hazard_records SET maturity_score = $1, updated_at = $2 WHERE country_code = $3`,
		score, now, code,
	)
	return eris.Wrapf(err, "postgres: mirror maturity score for %s", code)
}

func (s *PostgresStore) UpsertGovernance(ctx context.Context, code string, fields model.FieldSet) (*UpsertOutcome, error) {
	return s.upsertRecord(ctx, governanceTable, code, fields)
}

func (s *PostgresStore) UpsertHazard(ctx context.Context, code string, fields model.FieldSet) (*UpsertOutcome, error) {
	return s.upsertRecord(ctx, hazardTable, code, fields)
}

func (s *PostgresStore) UpsertVigilance(ctx context.Context, code string, fields model.FieldSet) (*UpsertOutcome, error) {
	return s.upsertRecord(ctx, vigilanceTable, code, fields)
}

func (s *PostgresStore) UpsertRestoration(ctx context.Context, code string, fields model.FieldSet) (*UpsertOutcome, error) {
	return s.upsertRecord(ctx, restorationTable, code, fields)
}

// upsertRecord is the merge-not-replace upsert. The sub-record row is
// locked for the duration of the transaction, so two concurrent partial
// updates of the same country serialize instead of interleaving.
func (s *PostgresStore) upsertRecord(ctx context.Context, table recordTable, code string, fields model.FieldSet) (*UpsertOutcome, error) {
	if len(fields) == 0 {
		return &UpsertOutcome{}, nil
	}
	cols, err := columnValues(table, fields)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: begin upsert %s", table.name)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()

	// Locate-or-create the country and the sub-record row.
	if _, err := tx.Exec(ctx,
		`INSERT INTO countries (code, created_at, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (code) DO NOTHING`,
		code, now, now,
	); err != nil {
		return nil, eris.Wrapf(err, "postgres: ensure country %s", code)
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO `+table.name+` (country_code, updated_at) VALUES ($1, $2)
		 ON CONFLICT (country_code) DO NOTHING`,
		code, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: ensure %s row for %s", table.name, code)
	}
	created := tag.RowsAffected() == 1

	// Lock the row and merge provenance in application code.
	var provJSON []byte
	err = tx.QueryRow(ctx,
		`SELECT provenance FROM `+table.name+` WHERE country_code = $1 FOR UPDATE`,
		code,
	).Scan(&provJSON)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: lock %s row for %s", table.name, code)
	}
	var existing model.Provenance
	if err := unmarshalProvenance(provJSON, &existing); err != nil {
		return nil, err
	}
	merged, err := json.Marshal(existing.Merge(fields.Provenance()))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal provenance")
	}

	update := psql.Update(table.name).
		SetMap(cols).
		Set("provenance", merged).
		Set("updated_at", now).
		Where(sq.Eq{"country_code": code})
	sqlStr, args, err := update.ToSql()
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: build %s update", table.name)
	}
	if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
		return nil, eris.Wrapf(err, "postgres: update %s for %s", table.name, code)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrapf(err, "postgres: commit upsert %s for %s", table.name, code)
	}
	return &UpsertOutcome{Created: created, FieldsSet: len(cols)}, nil
}

const (
	governanceColumns = `country_code, ratified_c155, ratified_c187, inspector_density,
		policy_present, capacity_score, provenance, updated_at`
	hazardColumns = `country_code, fatality_rate, exposure_pct, regulation_strictness,
		compliance_pct, injury_rate, training_hours, maturity_score, provenance, updated_at`
	vigilanceColumns = `country_code, surveillance_logic, detection_rate, vulnerability_index,
		migrant_share_pct, reporting_compliance_pct, screening_compliance_pct, provenance, updated_at`
	restorationColumns = `country_code, payer_mechanism, reintegration_law, absence_days,
		rehab_access_score, rtw_success_pct, settlement_months, participation_pct, provenance, updated_at`
)

func (s *PostgresStore) GetBundle(ctx context.Context, code string) (*model.CountryBundle, error) {
	country, err := s.GetCountry(ctx, code)
	if err != nil {
		return nil, err
	}
	if country == nil {
		return nil, eris.Errorf("postgres: country not found: %s", code)
	}
	bundle := &model.CountryBundle{Country: *country}

	if rec, err := scanGovernance(s.pool.QueryRow(ctx,
		`SELECT `+governanceColumns+` FROM governance_records WHERE country_code = $1`, code,
	)); err == nil {
		bundle.Governance = rec
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(err, "postgres: load governance for %s", code)
	}

	if rec, err := scanHazard(s.pool.QueryRow(ctx,
		`SELECT `+hazardColumns+` FROM hazard_records WHERE country_code = $1`, code,
	)); err == nil {
		bundle.Hazard = rec
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(err, "postgres: load hazard for %s", code)
	}

	if rec, err := scanVigilance(s.pool.QueryRow(ctx,
		`SELECT `+vigilanceColumns+` FROM vigilance_records WHERE country_code = $1`, code,
	)); err == nil {
		bundle.Vigilance = rec
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(err, "postgres: load vigilance for %s", code)
	}

	if rec, err := scanRestoration(s.pool.QueryRow(ctx,
		`SELECT `+restorationColumns+` FROM restoration_records WHERE country_code = $1`, code,
	)); err == nil {
		bundle.Restoration = rec
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(err, "postgres: load restoration for %s", code)
	}

	return bundle, nil
}

func (s *PostgresStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, status, started_at) VALUES ($1, $2, $3)`,
		id, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &model.Run{ID: id, Status: model.RunStatusRunning, StartedAt: now}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, stats *model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run stats")
	}
	now := time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, stats = $2, finished_at = $3 WHERE id = $4`,
		string(status), statsJSON, now, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, stats, started_at, finished_at FROM pipeline_runs WHERE id = $1`,
		runID,
	)
	run, err := scanRunRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := psql.Select("id", "status", "stats", "started_at", "finished_at").
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
		return nil, eris.Wrap(err, "postgres: build list runs")
	}
	rows, err := s.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRunRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanRunRow(row scannable) (*model.Run, error) {
	var run model.Run
	var statsJSON []byte
	if err := row.Scan(&run.ID, &run.Status, &statsJSON, &run.StartedAt, &run.FinishedAt); err != nil {
		return nil, err
	}
	if len(statsJSON) > 0 {
		run.Stats = &model.RunStats{}
		if err := json.Unmarshal(statsJSON, run.Stats); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal run stats")
		}
	}
	return &run, nil
}
