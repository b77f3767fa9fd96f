// Package config loads bptrack settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	API         APIConfig
	Storage     StorageConfig
	Log         LogConfig
	Dashboard   DashboardConfig
	Timezone    string
	Window      int // Readings averaged for the summary
}

// APIConfig holds backend connection settings
type APIConfig struct {
	URL     string
	APIKey  string // Sent as X-API-Key when set
	Timeout time.Duration
}

// StorageConfig selects the local store
type StorageConfig struct {
	Path      string // sqlite file, ":memory:" for an in-memory store
	RedisAddr string // When set, the dashboard keeps its cache in redis
	RedisTTL  time.Duration
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string
}

// DashboardConfig holds dashboard server settings
type DashboardConfig struct {
	Addr            string
	RefreshInterval time.Duration // Background refresh, zero disables it
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("BPTRACK_SERVICE_NAME", "bptrack"),
		API: APIConfig{
			URL:     getEnv("BPTRACK_API_URL", "http://localhost:8000"),
			APIKey:  getEnv("BPTRACK_API_KEY", ""),
			Timeout: time.Duration(getEnvAsInt("BPTRACK_HTTP_TIMEOUT", 30)) * time.Second,
		},
		Storage: StorageConfig{
			Path:      getEnv("BPTRACK_STORE", defaultStorePath()),
			RedisAddr: getEnv("BPTRACK_REDIS_ADDR", ""),
			RedisTTL:  time.Duration(getEnvAsInt("BPTRACK_REDIS_TTL_HOURS", 24*7)) * time.Hour,
		},
		Log: LogConfig{
			Level:  getEnv("BPTRACK_LOG_LEVEL", "info"),
			Format: getEnv("BPTRACK_LOG_FORMAT", "console"),
		},
		Dashboard: DashboardConfig{
			Addr:            getEnv("BPTRACK_DASH_ADDR", "127.0.0.1:8090"),
			RefreshInterval: time.Duration(getEnvAsInt("BPTRACK_DASH_REFRESH_MINUTES", 5)) * time.Minute,
		},
		Timezone: getEnv("BPTRACK_TIMEZONE", "Local"),
		Window:   getEnvAsInt("BPTRACK_WINDOW", 30),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail later.
func (c *Config) Validate() error {
	if c.API.URL == "" {
		return fmt.Errorf("BPTRACK_API_URL is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("BPTRACK_HTTP_TIMEOUT must be positive")
	}
	if c.Dashboard.RefreshInterval < 0 {
		return fmt.Errorf("BPTRACK_DASH_REFRESH_MINUTES must not be negative")
	}
	if c.Window < 0 {
		return fmt.Errorf("BPTRACK_WINDOW must not be negative, got %d", c.Window)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("BPTRACK_TIMEZONE: %w", err)
	}
	return nil
}

// Location returns the configured display timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// LoadDotEnv loads the first .env file found in the working directory or
// its two parents. It returns the path loaded, or "" when none exists.
func LoadDotEnv() (string, error) {
	paths := []string{".env"}
	if workDir, err := os.Getwd(); err == nil {
		parentDir := filepath.Dir(workDir)
		paths = append(paths,
			filepath.Join(parentDir, ".env"),
			filepath.Join(filepath.Dir(parentDir), ".env"),
		)
	}
	return loadFirst(paths)
}

func loadFirst(paths []string) (string, error) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return "", fmt.Errorf("loading %s: %w", p, err)
		}
		abs, _ := filepath.Abs(p)
		return abs, nil
	}
	return "", nil
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "bptrack.db"
	}
	return filepath.Join(dir, "bptrack", "bptrack.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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
