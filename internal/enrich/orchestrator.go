package enrich

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rossycoder/carcatlog-backend/internal/model"
	"github.com/rossycoder/carcatlog-backend/internal/resilience"
	"github.com/rossycoder/carcatlog-backend/pkg/caphpi"
	"github.com/rossycoder/carcatlog-backend/pkg/ukvd"
)

// Warnings attached when a provider yields nothing.
const (
	WarnSpecUnavailable      = "vehicle specification data unavailable"
	WarnValuationUnavailable = "valuation data unavailable"
)

// DefaultCacheTTL bounds how old a cached lookup may be before it is
// treated as a miss.
const DefaultCacheTTL = 30 * 24 * time.Hour

// SpecClient is the specification/history provider surface the
// orchestrator needs.
type SpecClient interface {
	Snapshot(ctx context.Context, vrm string) (*ukvd.Snapshot, error)
}

// ValuationClient is the valuation provider surface.
type ValuationClient interface {
	Valuation(ctx context.Context, vrm string, mileage int) (*caphpi.Valuation, error)
}

// CacheStore is the cache surface the orchestrator needs. Errors from it
// are logged and swallowed: the cache is an optimization, never a
// correctness dependency.
type CacheStore interface {
	GetLookup(ctx context.Context, plate string, ttl time.Duration) (*model.CachedLookup, error)
	PutLookup(ctx context.Context, lookup *model.CachedLookup) error
}

// Config tunes the orchestrator.
type Config struct {
	// CacheTTL defaults to DefaultCacheTTL.
	CacheTTL time.Duration
	// Retry applies to each provider call. The default performs a
	// single attempt (no retries).
	Retry resilience.RetryConfig
	// Policy defaults to DefaultPolicy().
	Policy *Policy
	// Sandbox is recorded on cached rows so test-mode data is never
	// mistaken for production data.
	Sandbox bool
}

// Orchestrator coordinates the providers, the merger and the cache
// store. A lookup always produces a record: partial or total provider
// failure degrades the record and adds warnings, it never fails the
// call.
type Orchestrator struct {
	spec   SpecClient
	val    ValuationClient
	store  CacheStore
	policy Policy

	ttl     time.Duration
	retry   resilience.RetryConfig
	sandbox bool

	group singleflight.Group
	now   func() time.Time
}

// NewOrchestrator creates an orchestrator. store may be nil, in which
// case lookups always go upstream and nothing is persisted.
func NewOrchestrator(spec SpecClient, val ValuationClient, store CacheStore, cfg Config) *Orchestrator {
	o := &Orchestrator{
		spec:    spec,
		val:     val,
		store:   store,
		policy:  DefaultPolicy(),
		ttl:     DefaultCacheTTL,
		retry:   resilience.RetryConfig{MaxAttempts: 1},
		sandbox: cfg.Sandbox,
		now:     time.Now,
	}
	if cfg.CacheTTL > 0 {
		o.ttl = cfg.CacheTTL
	}
	if cfg.Retry.MaxAttempts > 0 {
		o.retry = cfg.Retry
	}
	if cfg.Policy != nil {
		o.policy = *cfg.Policy
	}
	if o.retry.ShouldRetry == nil {
		o.retry.ShouldRetry = retryable
	}
	return o
}

// WithNow sets a fixed clock for testing.
func (o *Orchestrator) WithNow(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// LookupOptions control a single lookup.
type LookupOptions struct {
	// UseCache serves a fresh-enough cached record instead of calling
	// upstream. A fresh build still rewrites the cache either way.
	UseCache bool
	// Mileage overrides mileage derivation for the valuation call.
	// Zero means unknown.
	Mileage int
}

// Lookup returns the canonical record for a plate. The only error cases
// are an invalid plate and orchestrator-internal failures; provider
// failures degrade the returned record and surface as warnings on it.
func (o *Orchestrator) Lookup(ctx context.Context, plate string, opts LookupOptions) (*model.VehicleRecord, error) {
	vrm, err := NormalizePlate(plate)
	if err != nil {
		return nil, err
	}

	if opts.UseCache && o.store != nil {
		cached, err := o.store.GetLookup(ctx, vrm, o.ttl)
		switch {
		case err != nil:
			zap.L().Warn("cache read failed, falling through to providers",
				zap.String("plate", vrm), zap.Error(err))
		case cached != nil && cached.Record != nil:
			rec := cached.Record
			rec.CacheID = cached.ID
			zap.L().Debug("vehicle lookup served from cache",
				zap.String("plate", vrm), zap.Time("checked_at", cached.CheckedAt))
			return rec, nil
		}
	}

	// Concurrent misses for the same plate and mileage collapse into a
	// single upstream build; every waiter gets the same record.
	key := vrm + "|" + strconv.Itoa(opts.Mileage)
	v, err, _ := o.group.Do(key, func() (any, error) {
		return o.build(ctx, vrm, opts.Mileage)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.VehicleRecord), nil
}

func (o *Orchestrator) build(ctx context.Context, vrm string, mileage int) (*model.VehicleRecord, error) {
	var warnings []string

	snap, err := resilience.DoVal(ctx, o.retryFor("ukvd", "snapshot"), func(ctx context.Context) (*ukvd.Snapshot, error) {
		return o.spec.Snapshot(ctx, vrm)
	})
	if err != nil {
		zap.L().Warn("specification provider failed",
			zap.String("plate", vrm),
			zap.String("code", string(ukvd.ErrCode(err))),
			zap.Error(err))
		snap = nil
		warnings = append(warnings, WarnSpecUnavailable)
	} else {
		warnings = append(warnings, snap.Warnings...)
	}

	// Mileage precedence: explicit argument, then the provider's most
	// recent reading, then the policy default.
	derived := mileage
	if derived <= 0 {
		derived = snap.LatestMileage()
	}
	if derived <= 0 {
		derived = o.policy.DefaultMileage
	}

	val, err := resilience.DoVal(ctx, o.retryFor("caphpi", "valuation"), func(ctx context.Context) (*caphpi.Valuation, error) {
		return o.val.Valuation(ctx, vrm, derived)
	})
	if err != nil {
		zap.L().Warn("valuation provider failed",
			zap.String("plate", vrm),
			zap.Int("mileage", derived),
			zap.String("code", string(caphpi.ErrCode(err))),
			zap.Error(err))
		val = nil
		warnings = append(warnings, WarnValuationUnavailable)
	}

	rec := Merge(vrm, snap, val, o.policy)
	rec.CheckedAt = o.now().UTC()
	rec.Warnings = warnings

	o.persist(ctx, rec)

	zap.L().Info("vehicle lookup complete",
		zap.String("plate", vrm),
		zap.Int("mileage", derived),
		zap.Int("sources", len(rec.Sources)),
		zap.Int("warnings", len(rec.Warnings)))
	return rec, nil
}

// persist writes the cache row. Failures are logged and swallowed.
func (o *Orchestrator) persist(ctx context.Context, rec *model.VehicleRecord) {
	if o.store == nil {
		return
	}

	provider := make([]string, 0, len(rec.Sources))
	for _, s := range rec.Sources {
		provider = append(provider, string(s))
	}

	cached := model.NewCachedLookup(rec, strings.Join(provider, "+"), o.sandbox)
	if err := o.store.PutLookup(ctx, cached); err != nil {
		zap.L().Error("cache store write failed",
			zap.String("plate", rec.Plate), zap.Error(err))
		return
	}
	rec.CacheID = cached.ID
}

func (o *Orchestrator) retryFor(provider, operation string) resilience.RetryConfig {
	cfg := o.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger(provider, operation)
	}
	return cfg
}

// retryable treats classified provider errors by their own transience
// and falls back to the generic network check for everything else.
func retryable(err error) bool {
	var ue *ukvd.APIError
	if errors.As(err, &ue) {
		return ue.Transient()
	}
	var ce *caphpi.APIError
	if errors.As(err, &ce) {
		return ce.Transient()
	}
	return resilience.IsTransient(err)
}
