package store

import (
	"context"
	"time"

	"github.com/rossycoder/carcatlog-backend/internal/model"
)

// Store defines the persistence interface for the vehicle-data cache.
// The cache holds at most one row per plate: writing a lookup replaces
// whatever was there before.
type Store interface {
	// GetLookup returns the cached lookup for a plate, or nil when no
	// row exists or the newest row is older than ttl.
	GetLookup(ctx context.Context, plate string, ttl time.Duration) (*model.CachedLookup, error)
	// PutLookup replaces the cached lookup for the plate. A blank ID is
	// assigned before insert and written back to the lookup.
	PutLookup(ctx context.Context, lookup *model.CachedLookup) error
	// ClearPlate removes any cached rows for the plate and reports how
	// many were deleted.
	ClearPlate(ctx context.Context, plate string) (int64, error)
	// CountPlate reports how many cached rows exist for the plate,
	// regardless of age.
	CountPlate(ctx context.Context, plate string) (int64, error)
	// DeleteStale removes every row older than ttl and reports how many
	// were deleted.
	DeleteStale(ctx context.Context, ttl time.Duration) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
