package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcclellann/milkrun/pkg/logger"
	"github.com/mcclellann/milkrun/pkg/store"
)

type Config struct {
	// Database Configuration
	DBDriver    string
	DBPath      string
	DatabaseURL string

	// HTTP Configuration
	HTTPAddr string

	// Billing Configuration
	GenerateWorkers int

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// LoadDotEnv reads variables from the given .env files (./.env by default)
// without overriding ones already set. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("could not load %s: %w", f, err)
		}
	}
	return nil
}

func Load() (*Config, error) {
	workers, err := strconv.Atoi(getEnv("GENERATE_WORKERS", "4"))
	if err != nil {
		return nil, fmt.Errorf("GENERATE_WORKERS must be an integer: %w", err)
	}

	config := &Config{
		DBDriver:        getEnv("DB_DRIVER", store.DriverSQLite),
		DBPath:          getEnv("DB_PATH", "milkrun.db"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		GenerateWorkers: workers,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:   getEnv("LOG_TIME_FORMAT", time.RFC3339),
		LogOutput:       getEnv("LOG_OUTPUT", "stdout"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case store.DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case store.DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", store.DriverSQLite, store.DriverPostgres, c.DBDriver)
	}
	if c.GenerateWorkers < 1 {
		return fmt.Errorf("GENERATE_WORKERS must be at least 1")
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR is required")
	}
	return nil
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == store.DriverPostgres {
		return c.DatabaseURL
	}
	return c.DBPath
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
