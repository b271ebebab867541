package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/rossycoder/carcatlog-backend/internal/db"
	"github.com/rossycoder/carcatlog-backend/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot cache operations.
var preparedStatements = map[string]string{
	"get_lookup": `SELECT id, plate, make, model, variant, colour, fuel_type, transmission, body_type,
	                      engine_cc, doors, seats, year, record, status, provider, sandbox, checked_at
	               FROM vehicle_lookup_cache
	               WHERE plate = $1 AND checked_at > $2
	               ORDER BY checked_at DESC LIMIT 1`,
	"delete_lookup": `DELETE FROM vehicle_lookup_cache WHERE plate = $1`,
	"insert_lookup": `INSERT INTO vehicle_lookup_cache
	                  (id, plate, make, model, variant, colour, fuel_type, transmission, body_type,
	                   engine_cc, doors, seats, year, record, status, provider, sandbox, checked_at)
	                  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
	"count_plate": `SELECT COUNT(*) FROM vehicle_lookup_cache WHERE plate = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
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

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS vehicle_lookup_cache (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
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
	record       JSONB NOT NULL,
	status       TEXT NOT NULL DEFAULT 'empty',
	provider     TEXT NOT NULL DEFAULT '',
	sandbox      BOOLEAN NOT NULL DEFAULT false,
	checked_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_vehicle_lookup_cache_plate ON vehicle_lookup_cache(plate);
CREATE INDEX IF NOT EXISTS idx_vehicle_lookup_cache_plate_checked ON vehicle_lookup_cache(plate, checked_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetLookup(ctx context.Context, plate string, ttl time.Duration) (*model.CachedLookup, error) {
	cutoff := time.Now().UTC().Add(-ttl)

	var c model.CachedLookup
	var recordJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, plate, make, model, variant, colour, fuel_type, transmission, body_type,
		        engine_cc, doors, seats, year, record, status, provider, sandbox, checked_at
		 FROM vehicle_lookup_cache
		 WHERE plate = $1 AND checked_at > $2
		 ORDER BY checked_at DESC LIMIT 1`,
		plate, cutoff,
	).Scan(&c.ID, &c.Plate, &c.Make, &c.Model, &c.Variant, &c.Colour, &c.FuelType,
		&c.Transmission, &c.BodyType, &c.EngineCC, &c.Doors, &c.Seats, &c.Year,
		&recordJSON, &c.Status, &c.Provider, &c.Sandbox, &c.CheckedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get lookup %s", plate)
	}

	c.Record = &model.VehicleRecord{}
	if err := json.Unmarshal(recordJSON, c.Record); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal record")
	}
	return &c, nil
}

// PutLookup replaces the row for the plate inside one transaction, so a
// reader never observes the plate with zero rows mid-write.
func (s *PostgresStore) PutLookup(ctx context.Context, lookup *model.CachedLookup) error {
	if lookup.ID == "" {
		lookup.ID = uuid.New().String()
	}
	if lookup.CheckedAt.IsZero() {
		lookup.CheckedAt = time.Now().UTC()
	}

	recordJSON, err := json.Marshal(lookup.Record)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal record")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin put lookup")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM vehicle_lookup_cache WHERE plate = $1`,
		lookup.Plate,
	); err != nil {
		return eris.Wrapf(err, "postgres: delete lookup %s", lookup.Plate)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO vehicle_lookup_cache
		 (id, plate, make, model, variant, colour, fuel_type, transmission, body_type,
		  engine_cc, doors, seats, year, record, status, provider, sandbox, checked_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		lookup.ID, lookup.Plate, lookup.Make, lookup.Model, lookup.Variant, lookup.Colour,
		lookup.FuelType, lookup.Transmission, lookup.BodyType, lookup.EngineCC, lookup.Doors,
		lookup.Seats, lookup.Year, recordJSON, string(lookup.Status), lookup.Provider,
		lookup.Sandbox, lookup.CheckedAt,
	); err != nil {
		return eris.Wrapf(err, "postgres: insert lookup %s", lookup.Plate)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit put lookup")
}

func (s *PostgresStore) ClearPlate(ctx context.Context, plate string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM vehicle_lookup_cache WHERE plate = $1`,
		plate,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: clear plate %s", plate)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) CountPlate(ctx context.Context, plate string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM vehicle_lookup_cache WHERE plate = $1`,
		plate,
	).Scan(&count)
	return count, eris.Wrapf(err, "postgres: count plate %s", plate)
}

func (s *PostgresStore) DeleteStale(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM vehicle_lookup_cache WHERE checked_at <= $1`,
		cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete stale lookups")
	}
	return tag.RowsAffected(), nil
}
