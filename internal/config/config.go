// Package config loads and validates the service configuration from the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is the public vendor endpoint.
const DefaultBaseURL = "https://app.emaxlife.net/V1.0"

// AppConfig is the full configuration surface consumed by the core.
type AppConfig struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
	BaseURL  string `validate:"required,url"`

	// Timeout bounds every vendor call.
	Timeout time.Duration

	// RefreshIntervalMinutes controls the polling cadence.
	RefreshIntervalMinutes int `validate:"min=1,max=60"`

	// TemperatureDisplayUnit is display metadata only; it never changes
	// how raw temperatures are converted.
	TemperatureDisplayUnit string `validate:"oneof=C F"`

	// Local observation history retention.
	StoreMaxHistory int
	StoreMaxAge     time.Duration

	Port string
}

// RefreshInterval returns the polling cadence as a duration.
func (c *AppConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMinutes) * time.Minute
}

var validate = validator.New()

// Load reads configuration from the environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Info("no .env file loaded")
	}

	cfg := &AppConfig{
		Email:                  os.Getenv("EMAX_EMAIL"),
		Password:               os.Getenv("EMAX_PASSWORD"),
		BaseURL:                getenvDefault("EMAX_BASE_URL", DefaultBaseURL),
		RefreshIntervalMinutes: getenvInt("REFRESH_INTERVAL_MINUTES", 10),
		TemperatureDisplayUnit: getenvDefault("TEMPERATURE_DISPLAY_UNIT", "C"),
		StoreMaxHistory:        getenvInt("STORE_MAX_HISTORY", 144), // roughly 24h at 10-minute polls
		Port:                   getenvDefault("PORT", "8080"),
	}

	timeoutStr := getenvDefault("EMAX_TIMEOUT", "10s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid EMAX_TIMEOUT: %w", err)
	}
	cfg.Timeout = timeout

	maxAgeStr := getenvDefault("STORE_MAX_AGE", "24h")
	maxAge, err := time.ParseDuration(maxAgeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid STORE_MAX_AGE: %w", err)
	}
	cfg.StoreMaxAge = maxAge

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
