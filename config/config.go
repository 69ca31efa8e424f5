package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"atrSignalBot/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Telegram
	TelegramToken   string
	TelegramChannel string  // Channel username (@name) or numeric chat ID
	AdminIDs        []int64 // Users allowed to run bot commands

	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Storage
	DatabaseURL string // Postgres DSN; when empty the SQLite file at DBPath is used
	DBPath      string
	RedisURL    string // Optional; enables shared signal dedupe

	// Status server
	HTTPAddr string

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat string

	// Scheduling
	RefreshSchedule string        // robfig/cron expression
	PollInterval    time.Duration // Pause between evaluations
	BackoffInterval time.Duration // Pause after a network failure
	KlineLimit      int

	// Alerts
	SignalDedupe   bool
	RiskPercentage float64 // Equity fraction quoted in the disclaimer (0.005 = 0.5%)
	PrecisionFile  string  // Optional YAML/JSON price precision overrides

	// Parameter selection
	MaxDrawdownFloor    float64
	MinReturnPercentage float64
	LookbackDays        int

	// Strategy Parameters
	StrategyFastEMAPeriod int
	StrategySlowEMAPeriod int
	StrategyRSIPeriod     int
	StrategyRSIOverbought float64
	StrategyRSIOversold   float64
	StrategyATRPeriod     int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Telegram
	cfg.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", getEnv("BOT_TOKEN", ""))
	if cfg.TelegramToken == "" {
		errs = append(errs, "TELEGRAM_BOT_TOKEN must be set")
	}
	cfg.TelegramChannel = getEnv("TELEGRAM_CHANNEL", "@oxin_signals")
	if strings.TrimSpace(cfg.TelegramChannel) == "" {
		errs = append(errs, "TELEGRAM_CHANNEL must be set")
	}
	cfg.AdminIDs, err = getEnvAsInt64List("TELEGRAM_ADMIN_IDS")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TELEGRAM_ADMIN_IDS: %v", err))
	}

	// Binance API. Klines are public; keys only unlock the leverage lookup.
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)
	if (cfg.APIKey == "") != (cfg.SecretKey == "") {
		errs = append(errs, "BINANCE_API_KEY and BINANCE_API_SECRET must be set together")
	}

	// Storage
	cfg.DatabaseURL = getEnv("DATABASE_URL", "")
	cfg.DBPath = getEnv("DB_PATH", "./data/backtests.db")
	if cfg.DatabaseURL == "" && cfg.DBPath == "" {
		errs = append(errs, "either DATABASE_URL or DB_PATH must be set")
	}
	cfg.RedisURL = getEnv("REDIS_URL", "")
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "json"))
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		errs = append(errs, "LOG_FORMAT must be json or console")
	}

	// Scheduling
	cfg.RefreshSchedule = getEnv("REFRESH_SCHEDULE", "@every 24h")

	pollSeconds, err := getEnvAsIntRequired("POLL_INTERVAL_SECONDS", 1)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid POLL_INTERVAL_SECONDS: %v", err))
	} else if pollSeconds <= 0 {
		errs = append(errs, "POLL_INTERVAL_SECONDS must be positive")
	}
	cfg.PollInterval = time.Duration(pollSeconds) * time.Second

	backoffSeconds, err := getEnvAsIntRequired("BACKOFF_INTERVAL_SECONDS", 60)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BACKOFF_INTERVAL_SECONDS: %v", err))
	} else if backoffSeconds <= 0 {
		errs = append(errs, "BACKOFF_INTERVAL_SECONDS must be positive")
	}
	cfg.BackoffInterval = time.Duration(backoffSeconds) * time.Second

	cfg.KlineLimit, err = getEnvAsIntRequired("KLINE_LIMIT", 500)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid KLINE_LIMIT: %v", err))
	} else if cfg.KlineLimit < 2 || cfg.KlineLimit > 1500 {
		errs = append(errs, "KLINE_LIMIT must be between 2 and 1500")
	}

	// Alerts
	cfg.SignalDedupe = getEnvAsBool("SIGNAL_DEDUPE", true)
	cfg.RiskPercentage, err = getEnvAsFloatRequired("RISK_PERCENTAGE", 0.005)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RISK_PERCENTAGE: %v", err))
	} else if cfg.RiskPercentage <= 0 || cfg.RiskPercentage >= 1.0 {
		errs = append(errs, "RISK_PERCENTAGE must be between 0.0 and 1.0 (exclusive)")
	}
	cfg.PrecisionFile = getEnv("PRECISION_FILE", "")

	// Parameter selection
	cfg.MaxDrawdownFloor, err = getEnvAsFloatRequired("MAX_DRAWDOWN_FLOOR", -10.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_DRAWDOWN_FLOOR: %v", err))
	} else if cfg.MaxDrawdownFloor > 0 {
		errs = append(errs, "MAX_DRAWDOWN_FLOOR cannot be positive")
	}
	cfg.MinReturnPercentage, err = getEnvAsFloatRequired("MIN_RETURN_PERCENTAGE", 20.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_RETURN_PERCENTAGE: %v", err))
	}
	cfg.LookbackDays, err = getEnvAsIntRequired("LOOKBACK_DAYS", 30)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LOOKBACK_DAYS: %v", err))
	} else if cfg.LookbackDays <= 0 {
		errs = append(errs, "LOOKBACK_DAYS must be positive")
	}

	// Strategy Parameters (using defaults if not set)
	cfg.StrategyFastEMAPeriod = getEnvAsInt("STRATEGY_FAST_EMA", 26)
	cfg.StrategySlowEMAPeriod = getEnvAsInt("STRATEGY_SLOW_EMA", 100)
	cfg.StrategyRSIPeriod = getEnvAsInt("STRATEGY_RSI_PERIOD", 14)
	cfg.StrategyRSIOverbought = getEnvAsFloat("STRATEGY_RSI_OVERBOUGHT", 70.0)
	cfg.StrategyRSIOversold = getEnvAsFloat("STRATEGY_RSI_OVERSOLD", 30.0)
	cfg.StrategyATRPeriod = getEnvAsInt("STRATEGY_ATR_PERIOD", 14)

	// Validate strategy periods
	if cfg.StrategyFastEMAPeriod <= 0 || cfg.StrategySlowEMAPeriod <= 0 || cfg.StrategyRSIPeriod <= 0 || cfg.StrategyATRPeriod <= 0 {
		errs = append(errs, "strategy periods (EMA, RSI, ATR) must be positive")
	}
	if cfg.StrategyFastEMAPeriod >= cfg.StrategySlowEMAPeriod {
		errs = append(errs, "STRATEGY_FAST_EMA must be less than STRATEGY_SLOW_EMA")
	}
	if cfg.StrategyRSIOverbought <= cfg.StrategyRSIOversold || cfg.StrategyRSIOverbought > 100 || cfg.StrategyRSIOversold < 0 {
		errs = append(errs, "invalid RSI thresholds (Overbought must be > Oversold, between 0-100)")
	}
	if cfg.StrategySlowEMAPeriod >= cfg.KlineLimit {
		errs = append(errs, "KLINE_LIMIT must exceed STRATEGY_SLOW_EMA")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// Lookback returns the selection window as a duration.
func (c *Config) Lookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

// ToolConfig is the subset of Config used by the command line tools, which
// run without Telegram or exchange credentials.
type ToolConfig struct {
	DatabaseURL string
	DBPath      string
	IsTestnet   bool
	LogLevel    logger.LogLevel
	LogFormat   string

	MaxDrawdownFloor    float64
	MinReturnPercentage float64
	LookbackDays        int
}

// LoadToolConfig loads the storage, logging and selection settings.
func LoadToolConfig() (*ToolConfig, error) {
	_ = godotenv.Load()

	cfg := &ToolConfig{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/backtests.db"),
		IsTestnet:   getEnvAsBool("IS_TESTNET", false),
		LogLevel:    logger.ParseLevel(getEnv("LOG_LEVEL", "INFO")),
		LogFormat:   strings.ToLower(getEnv("LOG_FORMAT", "console")),
	}
	var err error
	var errs []string

	cfg.MaxDrawdownFloor, err = getEnvAsFloatRequired("MAX_DRAWDOWN_FLOOR", -10.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_DRAWDOWN_FLOOR: %v", err))
	}
	cfg.MinReturnPercentage, err = getEnvAsFloatRequired("MIN_RETURN_PERCENTAGE", 20.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_RETURN_PERCENTAGE: %v", err))
	}
	cfg.LookbackDays, err = getEnvAsIntRequired("LOOKBACK_DAYS", 30)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LOOKBACK_DAYS: %v", err))
	} else if cfg.LookbackDays <= 0 {
		errs = append(errs, "LOOKBACK_DAYS must be positive")
	}
	if cfg.DatabaseURL == "" && cfg.DBPath == "" {
		errs = append(errs, "either DATABASE_URL or DB_PATH must be set")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// Lookback returns the selection window as a duration.
func (c *ToolConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64List parses a comma separated list such as "123,456".
func getEnvAsInt64List(key string) ([]int64, error) {
	valueStr := os.Getenv(key)
	if strings.TrimSpace(valueStr) == "" {
		return nil, nil
	}
	var out []int64
	for _, part := range strings.Split(valueStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id '%s' for key %s: %w", part, key, err)
		}
		out = append(out, id)
	}
	return out, nil
}
