package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rossycoder/carcatlog-backend/internal/enrich"
	"github.com/rossycoder/carcatlog-backend/internal/resilience"
	"github.com/rossycoder/carcatlog-backend/internal/store"
	"github.com/rossycoder/carcatlog-backend/pkg/caphpi"
	"github.com/rossycoder/carcatlog-backend/pkg/ukvd"
)

// lookupEnv holds the initialized store, provider clients and
// orchestrator shared by the lookup/serve/batch/cache commands.
type lookupEnv struct {
	Store        store.Store
	Orchestrator *enrich.Orchestrator
	CacheTTL     time.Duration
}

// Close releases resources held by the environment.
func (le *lookupEnv) Close() {
	if le.Store != nil {
		_ = le.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "carcatlog.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initLookup sets up the store, both provider clients and the
// orchestrator. Callers should defer env.Close().
func initLookup(ctx context.Context, mode string) (*lookupEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	specClient := ukvd.NewClient(cfg.UKVD.Key,
		ukvd.WithBaseURL(cfg.UKVD.BaseURL),
		ukvd.WithRateLimit(cfg.UKVD.RateLimit),
		ukvd.WithSandbox(cfg.UKVD.Sandbox),
	)
	valClient := caphpi.NewClient(cfg.CapHPI.Key,
		caphpi.WithBaseURL(cfg.CapHPI.BaseURL),
		caphpi.WithRateLimit(cfg.CapHPI.RateLimit),
	)

	policy := enrich.DefaultPolicy()
	if cfg.Lookup.PolicyFile != "" {
		policy, err = enrich.LoadPolicy(cfg.Lookup.PolicyFile)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "load merge policy")
		}
		zap.L().Info("merge policy loaded", zap.String("file", cfg.Lookup.PolicyFile))
	}
	if cfg.Lookup.DefaultMileage > 0 {
		policy.DefaultMileage = cfg.Lookup.DefaultMileage
	}

	ttl := time.Duration(cfg.Cache.TTLDays) * 24 * time.Hour
	orch := enrich.NewOrchestrator(specClient, valClient, st, enrich.Config{
		CacheTTL: ttl,
		Retry:    resilience.RetryConfig{MaxAttempts: cfg.Lookup.RetryAttempts},
		Policy:   &policy,
		Sandbox:  cfg.UKVD.Sandbox,
	})

	return &lookupEnv{Store: st, Orchestrator: orch, CacheTTL: ttl}, nil
}
