// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	DBPath         string
	AllowedOrigins []string
	AdminToken     string

	// PauseTolerance bounds how far a client's remaining-time figure may
	// drift from the server's own when pausing before the server value wins.
	PauseTolerance time.Duration

	// ScoreboardInterval is the push period of the live scoreboard feed.
	ScoreboardInterval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		DBPath:             getEnv("DB_PATH", "./data/loungetime.db"),
		AllowedOrigins:     splitOrigins(getEnv("ALLOWED_ORIGINS", "*")),
		AdminToken:         getEnv("ADMIN_TOKEN", ""),
		PauseTolerance:     getEnvDuration("PAUSE_DRIFT_TOLERANCE", 5*time.Second),
		ScoreboardInterval: getEnvDuration("SCOREBOARD_PUSH_INTERVAL", time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_ORIGINS cannot be empty")
	}
	if c.PauseTolerance < 0 {
		return fmt.Errorf("PAUSE_DRIFT_TOLERANCE cannot be negative")
	}
	if c.ScoreboardInterval <= 0 {
		return fmt.Errorf("SCOREBOARD_PUSH_INTERVAL must be positive")
	}
	return nil
}

func splitOrigins(value string) []string {
	var origins []string
	for _, o := range strings.Split(value, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
