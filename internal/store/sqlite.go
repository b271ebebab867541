package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/rossycoder/carcatlog-backend/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// development and tests; production deployments use PostgresStore.
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
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// checked_at is stored as unix seconds so age comparisons are plain
// integer comparisons regardless of driver time formatting.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS vehicle_lookup_cache (
	id           TEXT PRIMARY KEY,
	plate        TEXT NOT NULL,
	make         TEXT NOT NULL DEFAULT '',
	model        TEXT NOT NULL DEFAULT '',
	variant      TEXT NOT NULL DEFAULT '',
	colour       TEXT NOT NULL DEFAULT '',
	fuel_type    TEXT NOT NULL DEFAULT '',
	transmission TEXT NOT NULL DEFAULT '',
	body_type    TEXT NOT NULL DEFAULT '',
	engine_cc    INTEGER NOT NULL DEFAULT 0,
	doors        INTEGER NOT NULL DEFAULT 0,
	seats        INTEGER NOT NULL DEFAULT 0,
	year         INTEGER NOT NULL DEFAULT 0,
	record       TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'empty',
	provider     TEXT NOT NULL DEFAULT '',
	sandbox      INTEGER NOT NULL DEFAULT 0,
	checked_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vehicle_lookup_cache_plate ON vehicle_lookup_cache(plate);
CREATE INDEX IF NOT EXISTS idx_vehicle_lookup_cache_plate_checked ON vehicle_lookup_cache(plate, checked_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetLookup(ctx context.Context, plate string, ttl time.Duration) (*model.CachedLookup, error) {
	cutoff := time.Now().UTC().Add(-ttl).Unix()

	var c model.CachedLookup
	var recordJSON string
	var checkedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, plate, make, model, variant, colour, fuel_type, transmission, body_type,
		        engine_cc, doors, seats, year, record, status, provider, sandbox, checked_at
		 FROM vehicle_lookup_cache
		 WHERE plate = ? AND checked_at > ?
		 ORDER BY checked_at DESC LIMIT 1`,
		plate, cutoff,
	).Scan(&c.ID, &c.Plate, &c.Make, &c.Model, &c.Variant, &c.Colour, &c.FuelType,
		&c.Transmission, &c.BodyType, &c.EngineCC, &c.Doors, &c.Seats, &c.Year,
		&recordJSON, &c.Status, &c.Provider, &c.Sandbox, &checkedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get lookup %s", plate)
	}

	c.CheckedAt = time.Unix(checkedAt, 0).UTC()
	c.Record = &model.VehicleRecord{}
	if err := json.Unmarshal([]byte(recordJSON), c.Record); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal record")
	}
	return &c, nil
}

func (s *SQLiteStore) PutLookup(ctx context.Context, lookup *model.CachedLookup) error {
	if lookup.ID == "" {
		lookup.ID = uuid.New().String()
	}
	if lookup.CheckedAt.IsZero() {
		lookup.CheckedAt = time.Now().UTC()
	}

	recordJSON, err := json.Marshal(lookup.Record)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal record")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin put lookup")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM vehicle_lookup_cache WHERE plate = ?`,
		lookup.Plate,
	); err != nil {
		return eris.Wrapf(err, "sqlite: delete lookup %s", lookup.Plate)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO vehicle_lookup_cache
		 (id, plate, make, model, variant, colour, fuel_type, transmission, body_type,
		  engine_cc, doors, seats, year, record, status, provider, sandbox, checked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lookup.ID, lookup.Plate, lookup.Make, lookup.Model, lookup.Variant, lookup.Colour,
		lookup.FuelType, lookup.Transmission, lookup.BodyType, lookup.EngineCC, lookup.Doors,
		lookup.Seats, lookup.Year, string(recordJSON), string(lookup.Status), lookup.Provider,
		lookup.Sandbox, lookup.CheckedAt.UTC().Unix(),
	); err != nil {
		return eris.Wrapf(err, "sqlite: insert lookup %s", lookup.Plate)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit put lookup")
}

func (s *SQLiteStore) ClearPlate(ctx context.Context, plate string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM vehicle_lookup_cache WHERE plate = ?`,
		plate,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: clear plate %s", plate)
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: clear plate rows affected")
}

func (s *SQLiteStore) CountPlate(ctx context.Context, plate string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vehicle_lookup_cache WHERE plate = ?`,
		plate,
	).Scan(&count)
	return count, eris.Wrapf(err, "sqlite: count plate %s", plate)
}

func (s *SQLiteStore) DeleteStale(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-ttl).Unix()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM vehicle_lookup_cache WHERE checked_at <= ?`,
		cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete stale lookups")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: delete stale rows affected")
}
