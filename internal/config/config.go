package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration, read from the environment
// (spec.md §6 "Configuration"): server/database settings plus the
// analysis-specific knobs (cache TTL, data version, contract roster
// path, provider keys) the teacher's flat getEnv/getEnvAsInt pattern
// generalizes to.
type Config struct {
	// Server
	Port    int
	DevMode bool

	// Database
	DatabasePath string

	// Analysis
	DataVersion        string        // bumped whenever price/panel data is reloaded, invalidating cache keys
	CacheTTL           time.Duration // result cache entry lifetime (spec.md §4.10)
	DefaultAnalysisWindowMonths int  // lookback window for factor regressions when the caller doesn't specify one
	ContractRosterPath string        // YAML file internal/modules/contracts.Catalog loads/reloads

	// Market data providers (spec.md §4.1 "provider fusion")
	MarketDataAPIKey    string
	MarketDataAPISecret string

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:                        getEnvAsInt("GO_PORT", 8001),
		DevMode:                     getEnvAsBool("DEV_MODE", false),
		DatabasePath:                getEnv("DATABASE_PATH", "./data/portfolio.db"),
		DataVersion:                 getEnv("DATA_VERSION", "v1"),
		CacheTTL:                    getEnvAsDuration("CACHE_TTL", 15*time.Minute),
		DefaultAnalysisWindowMonths: getEnvAsInt("DEFAULT_ANALYSIS_WINDOW_MONTHS", 36),
		ContractRosterPath:          getEnv("CONTRACT_ROSTER_PATH", "./data/contracts.yaml"),
		MarketDataAPIKey:            getEnv("MARKET_DATA_API_KEY", ""),
		MarketDataAPISecret:         getEnv("MARKET_DATA_API_SECRET", ""),
		LogLevel:                    getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}

	// Note: market data credentials are optional — provider fusion
	// degrades gracefully to whichever sources are configured.

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
