package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"atrSignalBot/config"
	"atrSignalBot/internal/adapters/logger"
	"atrSignalBot/internal/adapters/storage"
	"atrSignalBot/internal/utils"
)

func main() {
	file := flag.String("file", "", "CSV file with backtest results")
	dryRun := flag.Bool("dry-run", false, "Parse and validate only")
	flag.Parse()

	if *file == "" {
		log.Fatal("FATAL: -file is required")
	}

	// 1. Load Configuration
	cfg, err := config.LoadToolConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger, err := logger.NewZapLogger(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()
	ctx := context.Background()

	// 3. Parse CSV
	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("FATAL: Failed to open %s: %v", *file, err)
	}
	defer f.Close()

	results, err := utils.ReadBacktestResultsFromCSV(f)
	if err != nil {
		appLogger.Error(ctx, err, "Error reading backtest results", map[string]interface{}{"file": *file})
		log.Fatalf("FATAL: Error reading backtest results: %v", err)
	}
	appLogger.Info(ctx, "Parsed backtest results", map[string]interface{}{"file": *file, "count": len(results)})
	if *dryRun {
		fmt.Printf("%d rows are valid\n", len(results))
		return
	}

	// 4. Insert
	store, err := storage.Open(ctx, storage.Options{DatabaseURL: cfg.DatabaseURL, DBPath: cfg.DBPath}, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer store.Close()

	inserted := 0
	for _, res := range results {
		id, err := store.Results.InsertBacktestResult(ctx, res)
		if err != nil {
			appLogger.Error(ctx, err, "Failed to insert backtest result", map[string]interface{}{"symbol": res.Symbol, "timeframe": res.Timeframe})
			continue
		}
		res.ID = id
		inserted++
	}
	fmt.Printf("Inserted %d of %d backtest results into %s storage\n", inserted, len(results), store.Backend)
	if inserted < len(results) {
		os.Exit(1)
	}
}
