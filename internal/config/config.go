package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds process settings.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	HTTPAddr    string `yaml:"http_addr"`
	JWTSecret   string `yaml:"-"`
	Currency    string `yaml:"currency"`
	SchoolName  string `yaml:"school_name"`

	LockTimeout time.Duration `yaml:"lock_timeout"`

	Outbox OutboxConfig `yaml:"outbox"`
	Sweep  SweepConfig  `yaml:"overdue_sweep"`
}

// OutboxConfig controls the outbox dispatcher loop.
type OutboxConfig struct {
	DispatchInterval time.Duration `yaml:"dispatch_interval"`
	DispatchBatch    int           `yaml:"dispatch_batch"`
	MaxAttempts      int           `yaml:"max_attempts"`
}

// SweepConfig controls the daily overdue sweep.
type SweepConfig struct {
	DailyAt string `yaml:"daily_at"`
	Batch   int    `yaml:"batch"`
}

// Load reads .env when present, then the environment, then the YAML file
// named by LEDGER_CONFIG. Values in the YAML file win over the environment.
// The JWT secret is only taken from the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Config{
		DatabaseURL: getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:   getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		Currency:    getenvDefault("CURRENCY", "UGX"),
		SchoolName:  getenvDefault("SCHOOL_NAME", ""),
		LockTimeout: getenvDuration("LOCK_TIMEOUT", 5*time.Second),
		Outbox: OutboxConfig{
			DispatchInterval: getenvDuration("OUTBOX_DISPATCH_INTERVAL", 2*time.Second),
			DispatchBatch:    getenvIntDefault("OUTBOX_DISPATCH_BATCH", 100),
			MaxAttempts:      getenvIntDefault("OUTBOX_MAX_ATTEMPTS", 5),
		},
		Sweep: SweepConfig{
			DailyAt: getenvDefault("OVERDUE_SWEEP_AT", "00:05"),
			Batch:   getenvIntDefault("OVERDUE_SWEEP_BATCH", 500),
		},
	}

	if path := os.Getenv("LEDGER_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	return cfg, cfg.Validate()
}

// Validate checks required settings.
func (c Config) Validate() error {
	var problems []string
	if c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		problems = append(problems, "AUTH_JWT_SECRET is required")
	}
	if c.LockTimeout <= 0 {
		problems = append(problems, "LOCK_TIMEOUT must be positive")
	}
	if c.Outbox.DispatchInterval <= 0 {
		problems = append(problems, "OUTBOX_DISPATCH_INTERVAL must be positive")
	}
	if c.Outbox.DispatchBatch <= 0 {
		problems = append(problems, "OUTBOX_DISPATCH_BATCH must be positive")
	}
	if c.Outbox.MaxAttempts <= 0 {
		problems = append(problems, "OUTBOX_MAX_ATTEMPTS must be positive")
	}
	if c.Sweep.Batch <= 0 {
		problems = append(problems, "OVERDUE_SWEEP_BATCH must be positive")
	}
	if len(problems) > 0 {
		return errors.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
