package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rossycoder/carcatlog-backend/internal/enrich"
)

var (
	batchConcurrency int
	batchLimit       int
	batchNoCache     bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Batch operations over plate files",
}

var batchWarmCmd = &cobra.Command{
	Use:   "warm <file>",
	Short: "Warm the cache from a CSV or XLSX plate file",
	Long:  "Reads registration plates from the first column of a .csv or .xlsx file (optional mileage in the second column) and runs a lookup for each.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initLookup(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		entries, err := readPlateFile(args[0])
		if err != nil {
			return err
		}

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.Concurrency
		}

		return warmPlates(ctx, env.Orchestrator, entries, batchLimit, concurrency, !batchNoCache)
	},
}

func init() {
	batchWarmCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "concurrent lookups (default from config)")
	batchWarmCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of plates to process (0 = all)")
	batchWarmCmd.Flags().BoolVar(&batchNoCache, "no-cache", false, "rebuild every record even when a fresh cached one exists")
	batchCmd.AddCommand(batchWarmCmd)
	rootCmd.AddCommand(batchCmd)
}

// plateEntry is one row of a plate file.
type plateEntry struct {
	Plate   string
	Mileage int
}

// readPlateFile reads plates from the first column of a CSV or XLSX
// file. A numeric second column is taken as the valuation mileage. Rows
// whose first column is blank or a "plate"/"vrm" header are skipped.
func readPlateFile(path string) ([]plateEntry, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readPlateCSV(path)
	case ".xlsx":
		return readPlateXLSX(path)
	default:
		return nil, eris.Errorf("unsupported plate file type: %s", path)
	}
}

func readPlateCSV(path string) ([]plateEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "open plate file")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var entries []plateEntry
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "read plate csv")
		}
		if e, ok := rowToEntry(row); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func readPlateXLSX(path string) ([]plateEntry, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "open plate file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("plate file has no sheets: %s", path)
	}

	var entries []plateEntry
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = cell.String()
		}
		if e, ok := rowToEntry(cells); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func rowToEntry(row []string) (plateEntry, bool) {
	if len(row) == 0 {
		return plateEntry{}, false
	}
	plate := strings.TrimSpace(row[0])
	if plate == "" {
		return plateEntry{}, false
	}
	switch strings.ToLower(plate) {
	case "plate", "vrm", "registration":
		return plateEntry{}, false
	}

	e := plateEntry{Plate: plate}
	if len(row) > 1 {
		if m, err := strconv.Atoi(strings.TrimSpace(row[1])); err == nil && m > 0 {
			e.Mileage = m
		}
	}
	return e, true
}

// warmPlates looks up every entry concurrently. Individual failures
// (bad plates) are logged and counted, never fatal for the batch.
func warmPlates(ctx context.Context, orch *enrich.Orchestrator, entries []plateEntry, limit, concurrency int, useCache bool) error {
	if len(entries) == 0 {
		zap.L().Info("no plates found in file")
		return nil
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	zap.L().Info("warming cache",
		zap.Int("plates", len(entries)),
		zap.Int("concurrency", concurrency),
	)

	var done, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			rec, err := orch.Lookup(gctx, entry.Plate, enrich.LookupOptions{
				UseCache: useCache,
				Mileage:  entry.Mileage,
			})
			if err != nil {
				failed.Add(1)
				zap.L().Warn("plate lookup failed",
					zap.String("plate", entry.Plate), zap.Error(err))
				return nil
			}
			done.Add(1)
			zap.L().Debug("plate warmed",
				zap.String("plate", rec.Plate),
				zap.Int("sources", len(rec.Sources)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch warm")
	}

	zap.L().Info("batch warm complete",
		zap.Int64("warmed", done.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}
