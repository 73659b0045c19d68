// Package config handles application configuration from an optional YAML
// file, a .env file and environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Port                string        `yaml:"port" validate:"required,numeric"`
	Env                 string        `yaml:"env" validate:"oneof=development production test"`
	MTAAPIKey           string        `yaml:"mtaApiKey"`
	StationsFile        string        `yaml:"stationsFile" validate:"required"`
	CacheTTL            time.Duration `yaml:"-" validate:"gte=0"`
	HTTPTimeout         time.Duration `yaml:"-" validate:"gt=0"`
	RefreshInterval     time.Duration `yaml:"-" validate:"gte=0"`
	DistanceThresholdKm float64       `yaml:"distanceThresholdKm" validate:"gt=0"`
	MaxTrains           int           `yaml:"maxTrains" validate:"gte=0"`
	MaxMinutes          int           `yaml:"maxMinutes" validate:"gte=0"`
}

// fileConfig mirrors Config for YAML, with durations in seconds
type fileConfig struct {
	Config                 `yaml:",inline"`
	CacheTTLSeconds        *int `yaml:"cacheTTLSeconds"`
	HTTPTimeoutSeconds     *int `yaml:"httpTimeoutSeconds"`
	RefreshIntervalSeconds *int `yaml:"refreshIntervalSeconds"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Port:                "3000",
		Env:                 "development",
		StationsFile:        "data/stations.json",
		CacheTTL:            60 * time.Second,
		HTTPTimeout:         10 * time.Second,
		RefreshInterval:     5 * time.Minute,
		DistanceThresholdKm: 1.0,
		MaxTrains:           10,
		MaxMinutes:          30,
	}
}

// Load reads configuration with sensible defaults. A missing .env file or
// CONFIG_FILE is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Env = getEnv("ENV", cfg.Env)
	cfg.MTAAPIKey = getEnv("MTA_API_KEY", cfg.MTAAPIKey)
	cfg.StationsFile = getEnv("STATIONS_FILE", cfg.StationsFile)
	cfg.CacheTTL = getSecondsEnv("CACHE_TTL_SECONDS", cfg.CacheTTL)
	cfg.HTTPTimeout = getSecondsEnv("HTTP_TIMEOUT_SECONDS", cfg.HTTPTimeout)
	cfg.RefreshInterval = getSecondsEnv("REFRESH_INTERVAL_SECONDS", cfg.RefreshInterval)
	cfg.DistanceThresholdKm = getFloatEnv("DISTANCE_THRESHOLD_KM", cfg.DistanceThresholdKm)
	cfg.MaxTrains = getIntEnv("MAX_TRAINS", cfg.MaxTrains)
	cfg.MaxMinutes = getIntEnv("MAX_MINUTES", cfg.MaxMinutes)

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	fc := fileConfig{Config: *c}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	*c = fc.Config
	if fc.CacheTTLSeconds != nil {
		c.CacheTTL = time.Duration(*fc.CacheTTLSeconds) * time.Second
	}
	if fc.HTTPTimeoutSeconds != nil {
		c.HTTPTimeout = time.Duration(*fc.HTTPTimeoutSeconds) * time.Second
	}
	if fc.RefreshIntervalSeconds != nil {
		c.RefreshInterval = time.Duration(*fc.RefreshIntervalSeconds) * time.Second
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
