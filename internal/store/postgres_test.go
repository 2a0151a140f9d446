package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worksafe-analytics/oshindex/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func TestPostgresStore_GetCountry_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT code, name, maturity_score, maturity_label, created_at, updated_at FROM countries WHERE code = \$1`).
		WithArgs("XXX").
		WillReturnError(pgx.ErrNoRows)

	c, err := s.GetCountry(context.Background(), "XXX")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureCountry(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO countries .+ ON CONFLICT \(code\) DO NOTHING`).
		WithArgs("DEU", "Germany", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	created, err := s.EnsureCountry(context.Background(), "DEU", "Germany")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertHazard_Flow(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO countries .+ ON CONFLICT \(code\) DO NOTHING`).
		WithArgs("FRA", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec(`INSERT INTO hazard_records .+ ON CONFLICT \(country_code\) DO NOTHING`).
		WithArgs("FRA", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT provenance FROM hazard_records WHERE country_code = \$1 FOR UPDATE`).
		WithArgs("FRA").
		WillReturnRows(pgxmock.NewRows([]string{"provenance"}).AddRow([]byte(`{}`)))
	mock.ExpectExec(`UPDATE hazard_records SET`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	out, err := s.UpsertHazard(context.Background(), "FRA", model.FieldSet{
		model.MetricFatalityRate: {Key: model.MetricFatalityRate, Value: 2.1, SourceName: "ILOSTAT"},
	})
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.Equal(t, 1, out.FieldsSet)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertRejectsUnknownColumn(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// Validation fails before any SQL is issued.
	_, err := s.UpsertHazard(context.Background(), "FRA", model.FieldSet{
		"drop_table": {Key: "drop_table", Value: 1.0, SourceName: "X"},
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE pipeline_runs SET`).
		WithArgs("complete", pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteRun(context.Background(), "missing", model.RunStatusComplete, model.NewRunStats())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetMaturityScore(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE countries SET maturity_score`).
		WithArgs(3.5, "Leading", pgxmock.AnyArg(), "DEU").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE hazard_records SET maturity_score`).
		WithArgs(3.5, pgxmock.AnyArg(), "DEU").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.SetMaturityScore(context.Background(), "DEU", 3.5, "Leading")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
