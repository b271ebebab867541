package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func TestPostgresStore_GetLookup_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, plate, make, model, variant`).
		WithArgs("ZZ99ZZZ", pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetLookup(context.Background(), "ZZ99ZZZ", 30*24*time.Hour)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLookup_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	checkedAt := time.Now().UTC().Add(-time.Hour)
	record := []byte(`{"plate":"AB12CDE","make":{"value":"BMW","source":"ukvd"},"sources":["ukvd"],"checked_at":"2026-08-29T12:00:00Z"}`)

	rows := pgxmock.NewRows([]string{
		"id", "plate", "make", "model", "variant", "colour", "fuel_type", "transmission", "body_type",
		"engine_cc", "doors", "seats", "year", "record", "status", "provider", "sandbox", "checked_at",
	}).AddRow(
		"row-1", "AB12CDE", "BMW", "3 Series", "", "", "Diesel", "", "",
		1995, 4, 5, 2018, record, "partial", "ukvd", false, checkedAt,
	)

	mock.ExpectQuery(`SELECT id, plate, make, model, variant`).
		WithArgs("AB12CDE", pgxmock.AnyArg()).
		WillReturnRows(rows)

	got, err := s.GetLookup(context.Background(), "AB12CDE", 30*24*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "row-1", got.ID)
	assert.Equal(t, "BMW", got.Make)
	require.NotNil(t, got.Record)
	require.NotNil(t, got.Record.Make)
	assert.Equal(t, "BMW", got.Record.Make.Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutLookup_DeleteThenInsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM vehicle_lookup_cache WHERE plate = \$1`).
		WithArgs("AB12CDE").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`INSERT INTO vehicle_lookup_cache`).
		WithArgs(pgxmock.AnyArg(), "AB12CDE", "BMW", "3 Series", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	lookup := testLookup("AB12CDE", time.Now().UTC())
	err := s.PutLookup(context.Background(), lookup)
	require.NoError(t, err)
	assert.NotEmpty(t, lookup.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutLookup_RollsBackOnInsertFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM vehicle_lookup_cache WHERE plate = \$1`).
		WithArgs("AB12CDE").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`INSERT INTO vehicle_lookup_cache`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := s.PutLookup(context.Background(), testLookup("AB12CDE", time.Now().UTC()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert lookup")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClearPlate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM vehicle_lookup_cache WHERE plate = \$1`).
		WithArgs("AB12CDE").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := s.ClearPlate(context.Background(), "AB12CDE")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountPlate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM vehicle_lookup_cache WHERE plate = \$1`).
		WithArgs("AB12CDE").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))

	n, err := s.CountPlate(context.Background(), "AB12CDE")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteStale(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM vehicle_lookup_cache WHERE checked_at <= \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.DeleteStale(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS vehicle_lookup_cache`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
