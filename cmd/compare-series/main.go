// compare-series pairs two per-file result series line by line, for example
// per-file multiplicities against per-file channel ratios, and writes the
// pairs as two columns. Each side is read from a result file, or from a
// stored run when -db is given together with -x-run or -y-run.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"

	"github.com/rewired-gh/rescatter/internal/logger"
	"github.com/rewired-gh/rescatter/internal/models"
	"github.com/rewired-gh/rescatter/internal/report"
	"github.com/rewired-gh/rescatter/internal/storage"
)

var (
	xPath    = flag.String("x", "results/multiplicity_per_file.txt", "File with the x values, one per line")
	yPath    = flag.String("y", "results/ratio_kstar_kminus_per_file.txt", "File with the y values, one per line")
	dbPath   = flag.String("db", "", "SQLite database written by rescatter")
	xRun     = flag.String("x-run", "", "Stored run whose per-file values are the x values (needs -db)")
	yRun     = flag.String("y-run", "", "Stored run whose per-file values are the y values (needs -db)")
	outPath  = flag.String("out", "results/compare.txt", "Output file")
	logLevel = flag.String("log-level", "info", "Log level: debug, info, warn or error")
)

func main() {
	flag.Parse()
	logger.Init(*logLevel, "text")

	var store *storage.Storage
	if *xRun != "" || *yRun != "" {
		if *dbPath == "" {
			log.Fatalf("-x-run and -y-run need -db")
		}
		var err error
		store, err = storage.New(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open %s: %v", *dbPath, err)
		}
		defer store.Close()
	}

	ctx := context.Background()
	x, err := values(ctx, store, *xRun, *xPath)
	if err != nil {
		log.Fatalf("Failed to read x values: %v", err)
	}
	y, err := values(ctx, store, *yRun, *yPath)
	if err != nil {
		log.Fatalf("Failed to read y values: %v", err)
	}

	points, err := report.PairSeries(x, y)
	if errors.Is(err, models.ErrSeriesLengthMismatch) {
		logger.Error("x and y cannot be paired: %v", err)
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("Failed to pair series: %v", err)
	}

	if err := report.WritePoints(*outPath, points, 0); err != nil {
		log.Fatalf("Failed to write %s: %v", *outPath, err)
	}
	logger.Info("Wrote %d pairs to %s", len(points), *outPath)
}

// values reads the per-file series of a stored run when runID is set and
// of the file at path otherwise.
func values(ctx context.Context, store *storage.Storage, runID, path string) ([]float64, error) {
	if runID == "" {
		return report.ReadScalars(path)
	}
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	logger.Debug("Using %d per-file values of %s run %s", len(run.Scalars), run.Analysis, run.ID)
	return run.Scalars, nil
}
