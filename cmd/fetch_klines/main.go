package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"atrSignalBot/config"
	"atrSignalBot/internal/adapters/binanceclient"
	"atrSignalBot/internal/adapters/logger"
	"atrSignalBot/internal/strategy"
	"atrSignalBot/internal/utils"
)

// Fetches recent klines, runs the signal strategy over them and writes the
// snapshot with its ATR and entry flags to CSV.
func main() {
	symbol := flag.String("symbol", "BTCUSDT", "Futures symbol")
	interval := flag.String("interval", "1h", "Kline interval")
	limit := flag.Int("limit", 500, "Number of klines")
	out := flag.String("out", "", "Output file (default data/<symbol>_<interval>_<date>.csv)")
	flag.Parse()

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

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{UseTestnet: cfg.IsTestnet, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	strat, err := strategy.New(strategy.DefaultConfig(), appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize signal strategy: %v", err)
	}

	if _, err := binanceClient.SyncServerTime(ctx); err != nil {
		appLogger.Warn(ctx, "Server time unavailable, judging candle finality on local clock", map[string]interface{}{"error": err.Error()})
	}

	klines, err := binanceClient.GetKlines(ctx, *symbol, *interval, *limit)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching klines")
		log.Fatalf("Error fetching klines: %v", err)
	}
	appLogger.Info(ctx, "Fetched klines", map[string]interface{}{"count": len(klines)})

	snapshot, err := strat.BuildSnapshot(ctx, *symbol, *interval, klines)
	if err != nil {
		log.Fatalf("Error building snapshot: %v", err)
	}

	filename := *out
	if filename == "" {
		filename = fmt.Sprintf("data/%s_%s_%s.csv", *symbol, *interval, time.Now().UTC().Format("20060102"))
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		log.Fatalf("Error creating output directory: %v", err)
	}
	f, err := os.Create(filename)
	if err != nil {
		log.Fatalf("Error creating %s: %v", filename, err)
	}
	defer f.Close()

	if err := utils.WriteSnapshotToCSV(snapshot, f); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": filename})
}
