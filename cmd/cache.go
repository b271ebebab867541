package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rossycoder/carcatlog-backend/internal/enrich"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the vehicle-data cache",
}

var cacheGetCmd = &cobra.Command{
	Use:   "get <plate>",
	Short: "Print the cached lookup for a plate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		plate, err := enrich.NormalizePlate(args[0])
		if err != nil {
			return err
		}

		ttl := time.Duration(cfg.Cache.TTLDays) * 24 * time.Hour
		cached, err := st.GetLookup(ctx, plate, ttl)
		if err != nil {
			return eris.Wrap(err, "get cached lookup")
		}
		if cached == nil {
			return eris.Errorf("no fresh cached lookup for %s", plate)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cached)
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear <plate>",
	Short: "Delete cached lookups for a plate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		plate, err := enrich.NormalizePlate(args[0])
		if err != nil {
			return err
		}

		n, err := st.ClearPlate(ctx, plate)
		if err != nil {
			return eris.Wrap(err, "clear plate")
		}
		zap.L().Info("cache cleared", zap.String("plate", plate), zap.Int64("deleted", n))
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete every cached lookup older than the TTL",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		ttl := time.Duration(cfg.Cache.TTLDays) * 24 * time.Hour
		n, err := st.DeleteStale(ctx, ttl)
		if err != nil {
			return eris.Wrap(err, "delete stale lookups")
		}
		zap.L().Info("cache pruned", zap.Int64("deleted", n), zap.Int("ttl_days", cfg.Cache.TTLDays))
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheGetCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}
