package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"atrSignalBot/config"
	"atrSignalBot/internal/adapters/logger"
	"atrSignalBot/internal/adapters/storage"
	"atrSignalBot/internal/selection"
)

// Prints the candidates and the parameter set the bot would trade right now.
func main() {
	cfg, err := config.LoadToolConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewZapLogger(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()
	ctx := context.Background()

	store, err := storage.Open(ctx, storage.Options{DatabaseURL: cfg.DatabaseURL, DBPath: cfg.DBPath}, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer store.Close()

	criteria := selection.Criteria{
		MaxDrawdownFloor:    cfg.MaxDrawdownFloor,
		MinReturnPercentage: cfg.MinReturnPercentage,
		Lookback:            cfg.Lookback(),
	}
	now := time.Now().UTC()

	results, err := store.Results.FetchQualifyingResults(ctx, criteria.Filter(now))
	if err != nil {
		log.Fatalf("FATAL: Failed to fetch backtest results: %v", err)
	}

	// Create a tabwriter for formatted output
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "ID\tSymbol\tTF\tStart\tTrades\tReturn%\tWinRate\tMaxDD\tTP\tSL\t")
	for _, r := range results {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%.2f\t%.2f\t%.2f\t%g\t%g\t\n",
			r.ID, r.Symbol, r.Timeframe, r.StartDate.Format("2006-01-02 15:04"),
			r.NumTrades, r.ReturnPercentage, r.WinRate, r.MaxDrawdown, r.TPMultiplier, r.SLMultiplier)
	}
	w.Flush()

	params := criteria.Select(results, now)
	fmt.Printf("\n## Active parameters (%d of %d candidates)\n", len(params), len(results))
	if len(params) == 0 {
		fmt.Println("No trading today, trade parameters are empty.")
		return
	}
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Symbol\tTF\tTP\tSL\t")
	for _, p := range params {
		fmt.Fprintf(w, "%s\t%s\t%g\t%g\t\n", p.Symbol, p.Timeframe, p.TPMultiplier, p.SLMultiplier)
	}
	w.Flush()
}
