package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port      string
	LogLevel  string
	LogFormat string

	// Database
	DBDriver     string
	SQLiteDBPath string
	DatabaseURL  string

	// Auth
	JWTSecret string
	JWTTTL    time.Duration

	// AMQP (optional; jobs run inline without it)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Redis (optional; cron locks fall back to in-process)
	RedisURL string

	// LLM
	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicBaseURL string
	LLMMaxRetries    int
	LLMTimeout       time.Duration

	// Cache
	CacheMaxEntries int
	CacheTTL        time.Duration

	// Simulation
	SimulationIterations int

	// Scheduler
	CronBatchConcurrency int
	CronLockTTL          time.Duration

	// Google Sheets export (optional)
	GoogleSpreadsheetID      string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	MerchantRulesFile string
}

func Load() *Config {
	cfg := &Config{
		Port:      getEnv("PORT", "8081"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DBDriver:     getEnv("DB_DRIVER", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/ikpa.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTTTL:    getEnvDuration("JWT_TTL", 24*time.Hour),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "ikpa"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ikpa_jobs"),

		RedisURL: getEnv("REDIS_URL", ""),

		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:   getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		AnthropicBaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		LLMMaxRetries:    getEnvInt("LLM_MAX_RETRIES", 3),
		LLMTimeout:       getEnvDuration("LLM_TIMEOUT", 60*time.Second),

		CacheMaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 1000),
		CacheTTL:        getEnvDuration("CACHE_TTL", 5*time.Minute),

		SimulationIterations: getEnvInt("SIMULATION_ITERATIONS", 10000),

		CronBatchConcurrency: getEnvInt("CRON_BATCH_CONCURRENCY", 10),
		CronLockTTL:          getEnvDuration("CRON_LOCK_TTL", 10*time.Minute),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		MerchantRulesFile: getEnv("MERCHANT_RULES_FILE", ""),
	}

	return cfg
}

// SheetsEnabled reports whether the ledger export is configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// LLMEnabled reports whether an API key is present. Without one the debrief
// agent always uses its fallback.
func (c *Config) LLMEnabled() bool {
	return c.AnthropicAPIKey != ""
}

// DSN is the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == "postgres" {
		return c.DatabaseURL
	}
	return c.SQLiteDBPath
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of [debug info warn error]", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	// Validate database driver
	switch c.DBDriver {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite driver")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errors = append(errors, "DATABASE_URL is required when using postgres driver")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errors = append(errors, "invalid DATABASE_URL: must be a postgres:// URL")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid database driver '%s': must be one of [sqlite postgres]", c.DBDriver))
	}

	// Validate auth
	if len(c.JWTSecret) < 32 {
		errors = append(errors, "JWT_SECRET must be at least 32 characters")
	}
	if c.JWTTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid JWT TTL %v: must be at least 1 minute", c.JWTTTL))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RedisURL != "" {
		if u, err := url.Parse(c.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errors = append(errors, fmt.Sprintf("invalid Redis URL '%s': must be redis:// or rediss://", c.RedisURL))
		}
	}

	// Validate LLM
	if c.LLMMaxRetries < 0 || c.LLMMaxRetries > 10 {
		errors = append(errors, fmt.Sprintf("invalid LLM max retries %d: must be between 0 and 10", c.LLMMaxRetries))
	}
	if c.LLMTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid LLM timeout %v: must be at least 1 second", c.LLMTimeout))
	}
	if c.AnthropicBaseURL != "" {
		if _, err := url.ParseRequestURI(c.AnthropicBaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid Anthropic base URL '%s': %v", c.AnthropicBaseURL, err))
		}
	}

	// Validate cache
	if c.CacheMaxEntries < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheMaxEntries))
	}
	if c.CacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.CacheTTL))
	}

	if c.SimulationIterations < 100 || c.SimulationIterations > 100000 {
		errors = append(errors, fmt.Sprintf("invalid simulation iterations %d: must be between 100 and 100000", c.SimulationIterations))
	}

	// Validate scheduler
	if c.CronBatchConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("invalid cron batch concurrency %d: must be at least 1", c.CronBatchConcurrency))
	} else if c.CronBatchConcurrency > 100 {
		errors = append(errors, fmt.Sprintf("invalid cron batch concurrency %d: must be at most 100", c.CronBatchConcurrency))
	}
	if c.CronLockTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cron lock TTL %v: must be at least 1 second", c.CronLockTTL))
	}

	// Validate Google Sheets configuration if the export is enabled
	if c.SheetsEnabled() {
		hasFile := c.GoogleServiceAccountFile != ""
		hasJSON := c.GoogleServiceAccountJSON != ""
		if !hasFile && !hasJSON {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets export")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.MerchantRulesFile != "" {
		if _, err := os.Stat(c.MerchantRulesFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("merchant rules file does not exist: %s", c.MerchantRulesFile))
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
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
