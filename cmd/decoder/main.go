package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/statebudgetx/budget-decoder/internal/application/pipeline"
	"github.com/statebudgetx/budget-decoder/internal/infrastructure/config"
	"github.com/statebudgetx/budget-decoder/internal/infrastructure/logging"
	"github.com/statebudgetx/budget-decoder/internal/infrastructure/storage"
)

func main() {
	// Parse flags
	var (
		configFile     = flag.String("config", "", "Configuration file path")
		appropriations = flag.String("appropriations", "", "Appropriations CSV path (overrides config)")
		dbPath         = flag.String("db", "", "SQLite database path (overrides config)")
		dryRun         = flag.Bool("dry-run", false, "Run the pipeline without persisting outputs")
		verbose        = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	// Load configuration
	cfg := loadConfig(*configFile)
	if *appropriations != "" {
		cfg.Ingest.AppropriationsPath = *appropriations
	}
	if *dbPath != "" {
		cfg.Storage.DatabasePath = *dbPath
	}
	if *verbose {
		cfg.Observability.Logging.Level = "debug"
	}

	// Setup logging
	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "decoder")

	// Initialize storage unless previewing
	var store *storage.Storage
	if !*dryRun {
		var err error
		store, err = storage.NewStorage(cfg.Storage.DatabasePath)
		if err != nil {
			logger.Error("Failed to initialize storage", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer func() { _ = store.Close() }()
	}

	out, err := pipeline.New(cfg, store, logger).Run(context.Background())
	if err != nil {
		logger.Error("Reconciliation run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	fmt.Printf("Run %s complete\n", out.RunID)
	fmt.Printf("  Programs:             %d\n", out.Totals.AppropriationPrograms)
	fmt.Printf("  Expenditure rows:     %d\n", out.Totals.ExpenditureRows)
	fmt.Printf("  Matched rows:         %d (strict %d, fuzzy %d, category %d)\n",
		out.Totals.MatchedExpenditures, out.Totals.StrictMatches,
		out.Totals.FuzzyMatches, out.Totals.CategoryMatches)
	fmt.Printf("  Raw match rate:       %.1f%%\n", out.Totals.RawMatchRate*100)
	fmt.Printf("  Adjusted match rate:  %.1f%%\n", out.Totals.AdjustedMatchRate*100)
	fmt.Printf("  Unmatched programs:   %d\n", out.Totals.UnmatchedPrograms)
	if out.Totals.WarningCount > 0 {
		fmt.Printf("  Ingest warnings:      %d\n", out.Totals.WarningCount)
	}
}

func loadConfig(path string) *config.Config {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", path, err)
			os.Exit(1)
		}
		return cfg
	}
	return config.LoadOrEnv()
}
