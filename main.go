package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"atrSignalBot/config"
	"atrSignalBot/internal/adapters/binanceclient"
	"atrSignalBot/internal/adapters/logger"
	"atrSignalBot/internal/adapters/redisstore"
	"atrSignalBot/internal/adapters/storage"
	"atrSignalBot/internal/adapters/telegram"
	"atrSignalBot/internal/app"
	"atrSignalBot/internal/handler"
	"atrSignalBot/internal/metrics"
	"atrSignalBot/internal/ports"
	"atrSignalBot/internal/risk"
	"atrSignalBot/internal/selection"
	"atrSignalBot/internal/strategy"
)

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.NewZapLogger(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Initialize Repository (Postgres or SQLite)
	store, err := storage.Open(ctx, storage.Options{DatabaseURL: cfg.DatabaseURL, DBPath: cfg.DBPath}, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()
	appLogger.Info(ctx, "Database repository initialized", map[string]interface{}{"backend": store.Backend})

	// 4. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	if err := binanceClient.Ping(ctx); err != nil {
		appLogger.Warn(ctx, "Binance ping failed", map[string]interface{}{"error": err.Error()})
	}
	if offset, err := binanceClient.SyncServerTime(ctx); err != nil {
		appLogger.Warn(ctx, "Binance server time unavailable, using local clock", map[string]interface{}{"error": err.Error()})
	} else {
		appLogger.Info(ctx, "Binance server time synchronized", map[string]interface{}{"offset": offset.String()})
	}
	appLogger.Info(ctx, "Binance client initialized")

	// 5. Initialize Strategy
	strat, err := strategy.New(strategy.Config{
		FastEMAPeriod: cfg.StrategyFastEMAPeriod,
		SlowEMAPeriod: cfg.StrategySlowEMAPeriod,
		RSIPeriod:     cfg.StrategyRSIPeriod,
		RSIOverbought: cfg.StrategyRSIOverbought,
		RSIOversold:   cfg.StrategyRSIOversold,
		ATRPeriod:     cfg.StrategyATRPeriod,
	}, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize signal strategy")
		log.Fatalf("FATAL: Failed to initialize signal strategy: %v", err)
	}
	appLogger.Info(ctx, "Signal strategy initialized", map[string]interface{}{"requiredKlines": strat.RequiredDataPoints()})

	precision, err := risk.LoadPrecisionTable(cfg.PrecisionFile)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to load price precision table")
		log.Fatalf("FATAL: Failed to load price precision table: %v", err)
	}

	// 6. Initialize Telegram Bot and Notifier
	bot, err := telegram.NewBot(telegram.BotConfig{Token: cfg.TelegramToken, Logger: appLogger})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Telegram bot")
		log.Fatalf("FATAL: Failed to initialize Telegram bot: %v", err)
	}
	notifier, err := bot.Notifier(telegram.Channel(cfg.TelegramChannel))
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Telegram notifier")
		log.Fatalf("FATAL: Failed to initialize Telegram notifier: %v", err)
	}
	appLogger.Info(ctx, "Telegram notifier initialized", map[string]interface{}{"channel": cfg.TelegramChannel})

	// 7. Signal Dedupe (Redis when configured, in-memory otherwise)
	var deduper ports.SignalDeduper
	if cfg.SignalDedupe && cfg.RedisURL != "" {
		redisClient, err := redisstore.Connect(ctx, cfg.RedisURL)
		if err != nil {
			appLogger.Error(ctx, err, "Redis unavailable, falling back to in-memory signal dedupe")
		} else {
			defer redisClient.Close()
			deduper = redisstore.NewDeduper(redisClient)
			appLogger.Info(ctx, "Redis signal dedupe enabled")
		}
	}
	if cfg.SignalDedupe && deduper == nil {
		deduper = app.NewMemoryDeduper()
	}

	// 8. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	// 9. Initialize Application Service
	evalCfg := app.DefaultEvaluatorConfig()
	evalCfg.PollInterval = cfg.PollInterval
	evalCfg.BackoffInterval = cfg.BackoffInterval
	evalCfg.KlineLimit = cfg.KlineLimit
	evalCfg.NotifyOncePerCandle = cfg.SignalDedupe
	evalCfg.RiskPercentage = cfg.RiskPercentage
	evalCfg.Precision = precision

	supervisor, err := app.NewSupervisor(app.NewEvaluatorFactory(evalCfg, app.EvaluatorDeps{
		Market:   binanceClient,
		Strategy: strat,
		Notifier: notifier,
		Signals:  store.Signals,
		Deduper:  deduper,
		Metrics:  appMetrics,
		Logger:   appLogger,
	}), appMetrics, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize evaluator supervisor")
		log.Fatalf("FATAL: Failed to initialize evaluator supervisor: %v", err)
	}

	signalService, err := app.NewSignalService(app.ServiceConfig{
		Criteria: selection.Criteria{
			MaxDrawdownFloor:    cfg.MaxDrawdownFloor,
			MinReturnPercentage: cfg.MinReturnPercentage,
			Lookback:            cfg.Lookback(),
		},
		RefreshSchedule: cfg.RefreshSchedule,
	}, store.Results, supervisor, appMetrics, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize signal service")
		log.Fatalf("FATAL: Failed to initialize signal service: %v", err)
	}
	appLogger.Info(ctx, "Signal service initialized")

	// 10. Status API
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler.New(signalService, store.Signals, registry).RegisterRoutes(router)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		appLogger.Info(ctx, "Status API listening", map[string]interface{}{"addr": cfg.HTTPAddr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error(ctx, err, "Status API stopped")
		}
	}()

	// 11. Bot Commands
	bot.RegisterCommands(ctx, signalService, cfg.AdminIDs)
	go bot.Start()

	// 12. Run until SIGINT/SIGTERM
	if err := signalService.Run(ctx); err != nil {
		appLogger.Error(ctx, err, "Signal service exited with error")
	}

	bot.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(ctx, err, "Status API forced to shutdown")
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
