package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rossycoder/carcatlog-backend/internal/enrich"
)

var (
	lookupMileage int
	lookupNoCache bool
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <plate>",
	Short: "Look up a vehicle by registration plate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initLookup(ctx, "lookup")
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Orchestrator.Lookup(ctx, args[0], enrich.LookupOptions{
			UseCache: !lookupNoCache,
			Mileage:  lookupMileage,
		})
		if err != nil {
			return eris.Wrap(err, "lookup")
		}

		zap.L().Info("lookup complete",
			zap.String("plate", rec.Plate),
			zap.Int("sources", len(rec.Sources)),
			zap.Int("warnings", len(rec.Warnings)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func init() {
	lookupCmd.Flags().IntVar(&lookupMileage, "mileage", 0, "mileage for the valuation (default: derived from vehicle history)")
	lookupCmd.Flags().BoolVar(&lookupNoCache, "no-cache", false, "always call the providers, even when a fresh cached record exists")
	rootCmd.AddCommand(lookupCmd)
}
