package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"ctreader/internal/adapters/logger"
	"ctreader/internal/domain"
	"ctreader/internal/marketdata"
	"ctreader/internal/ports"
)

// Config holds all application configuration.
type Config struct {
	// Initial chart selection, overridden by saved preferences
	Symbol   string
	Interval string

	// Pipeline
	HistoryLimit          int
	SMAPeriod             int
	SnapshotPollInterval  time.Duration
	HistoryReloadInterval time.Duration
	ReconnectDelay        time.Duration
	StreamStartDelay      time.Duration

	// Exchange endpoints
	RESTBaseURL    string
	WSBaseURL      string
	RequestTimeout time.Duration

	// HTTP view adapter
	HTTPAddr string

	// Preferences database. Empty disables persistence.
	PrefsDBPath string

	// Logging
	LogLevel logger.LogLevel
	LogFile  string // optional, stderr when empty
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	cfg.Symbol = domain.NormalizeSymbol(getEnv("SYMBOL", domain.DefaultSymbol))
	cfg.Interval = strings.TrimSpace(getEnv("INTERVAL", domain.DefaultInterval))
	if !marketdata.IsKnownInterval(cfg.Interval) {
		errs = append(errs, fmt.Sprintf("INTERVAL must be one of %s", strings.Join(marketdata.UIIntervals, ", ")))
	}

	cfg.HistoryLimit, err = getEnvAsIntRequired("HISTORY_LIMIT", marketdata.DefaultHistoryLimit)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid HISTORY_LIMIT: %v", err))
	} else if cfg.HistoryLimit < 1 || cfg.HistoryLimit > 1000 {
		errs = append(errs, "HISTORY_LIMIT must be between 1 and 1000")
	}

	cfg.SMAPeriod, err = getEnvAsIntRequired("SMA_PERIOD", 20)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SMA_PERIOD: %v", err))
	} else if cfg.SMAPeriod <= 0 {
		errs = append(errs, "SMA_PERIOD must be positive")
	}

	cfg.SnapshotPollInterval, err = getEnvAsSeconds("SNAPSHOT_POLL_SECONDS", 2, false)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.HistoryReloadInterval, err = getEnvAsSeconds("HISTORY_RELOAD_SECONDS", 30, false)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.ReconnectDelay, err = getEnvAsSeconds("RECONNECT_DELAY_SECONDS", 5, false)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.StreamStartDelay, err = getEnvAsSeconds("STREAM_START_DELAY_SECONDS", 2, true)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.RequestTimeout, err = getEnvAsSeconds("REQUEST_TIMEOUT_SECONDS", 10, false)
	if err != nil {
		errs = append(errs, err.Error())
	}

	// Empty values fall back to the adapters' production endpoints.
	cfg.RESTBaseURL = getEnv("REST_BASE_URL", "")
	cfg.WSBaseURL = getEnv("WS_BASE_URL", "")

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	// PREFS_DB_PATH set to an empty string disables persistence, so unset and empty differ here.
	if v, ok := os.LookupEnv("PREFS_DB_PATH"); ok {
		cfg.PrefsDBPath = strings.TrimSpace(v)
	} else {
		cfg.PrefsDBPath = "./data/ctreader.db"
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFile = getEnv("LOG_FILE", "")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %w: %s", ports.ErrConfigurationError, strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := strings.TrimSpace(os.Getenv(key))
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

// getEnvAsSeconds reads a whole number of seconds. Zero is only accepted when allowZero is set.
func getEnvAsSeconds(key string, defaultSeconds int, allowZero bool) (time.Duration, error) {
	seconds, err := getEnvAsIntRequired(key, defaultSeconds)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if seconds < 0 || (seconds == 0 && !allowZero) {
		if allowZero {
			return 0, fmt.Errorf("%s cannot be negative", key)
		}
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return time.Duration(seconds) * time.Second, nil
}
