// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Oracle modes.
const (
	OracleModeHTTP = "http" // JSON POST of the enrichment request
	OracleModeChat = "chat" // OpenAI-compatible chat completions
	OracleModeNone = "none" // rule-based fallback only
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Intelligence oracle
	OracleMode             string
	OracleURL              string
	OracleAPIKey           string
	OracleModel            string
	OracleTimeout          time.Duration
	OracleBreakerThreshold int
	OracleBreakerCooldown  time.Duration

	// Engine
	LedgerCapacity int

	// GeoIP databases (optional)
	GeoIPCityDB string
	GeoIPASNDB  string

	// Audit database (optional, audit disabled if not set)
	DatabaseURL string

	// Tracing (optional)
	OTLPEndpoint     string
	TraceSampleRatio float64

	// HTTP hardening
	RateLimitRPM int
	CORSOrigins  []string
}

const (
	DefaultPort                   = "8080"
	DefaultEnv                    = "development"
	DefaultLogLevel               = "info"
	DefaultLogFormat              = "text"
	DefaultOracleModel            = "gpt-4o-mini"
	DefaultOracleTimeout          = 30 * time.Second
	DefaultOracleBreakerThreshold = 5
	DefaultOracleBreakerCooldown  = 30 * time.Second
	DefaultLedgerCapacity         = 1000
	DefaultRateLimit              = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                   getEnv("PORT", DefaultPort),
		Env:                    getEnv("ENV", DefaultEnv),
		LogLevel:               getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:              getEnv("LOG_FORMAT", DefaultLogFormat),
		OracleMode:             strings.ToLower(getEnv("ORACLE_MODE", OracleModeNone)),
		OracleURL:              os.Getenv("ORACLE_URL"),
		OracleAPIKey:           os.Getenv("ORACLE_API_KEY"),
		OracleModel:            getEnv("ORACLE_MODEL", DefaultOracleModel),
		OracleTimeout:          getEnvDuration("ORACLE_TIMEOUT", DefaultOracleTimeout),
		OracleBreakerThreshold: int(getEnvInt64("ORACLE_BREAKER_THRESHOLD", DefaultOracleBreakerThreshold)),
		OracleBreakerCooldown:  getEnvDuration("ORACLE_BREAKER_COOLDOWN", DefaultOracleBreakerCooldown),
		LedgerCapacity:         int(getEnvInt64("LEDGER_CAPACITY", DefaultLedgerCapacity)),
		GeoIPCityDB:            os.Getenv("GEOIP_CITY_DB"),
		GeoIPASNDB:             os.Getenv("GEOIP_ASN_DB"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		OTLPEndpoint:           os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TraceSampleRatio:       getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1),
		RateLimitRPM:           int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
		CORSOrigins:            getEnvList("CORS_ORIGINS"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	switch c.OracleMode {
	case OracleModeNone:
	case OracleModeHTTP, OracleModeChat:
		if c.OracleURL == "" {
			return fmt.Errorf("ORACLE_URL is required when ORACLE_MODE=%s", c.OracleMode)
		}
		if c.OracleMode == OracleModeChat && c.OracleModel == "" {
			return fmt.Errorf("ORACLE_MODEL is required when ORACLE_MODE=chat")
		}
	default:
		return fmt.Errorf("ORACLE_MODE must be one of http, chat, none (got %q)", c.OracleMode)
	}

	if c.OracleTimeout <= 0 {
		return fmt.Errorf("ORACLE_TIMEOUT must be positive")
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return fmt.Errorf("OTEL_TRACES_SAMPLER_ARG must be between 0 and 1")
	}
	if c.LedgerCapacity <= 0 {
		return fmt.Errorf("LEDGER_CAPACITY must be positive")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json")
	}
	if c.IsProduction() && len(c.CORSOrigins) == 0 {
		return fmt.Errorf("CORS_ORIGINS is required in production")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
