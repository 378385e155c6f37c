/*
config.go - Environment-driven service configuration

All knobs come from STOCK_* environment variables with sensible defaults,
so the binary runs with zero configuration in development and picks up
deployment settings without flags or files.
*/
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Config is the full service configuration.
type Config struct {
	// HTTP
	Port        int      `default:"8080"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173,http://localhost:8080"`

	// Storage
	DBPath string `envconfig:"DB_PATH" default:"stock.db"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogJSON  bool   `envconfig:"LOG_JSON" default:"false"`

	// Domain
	// FaceValue is the monetary value of one ticket. All stations share
	// one face value.
	FaceValue int64 `envconfig:"FACE_VALUE" default:"500"`

	// SnapshotCron schedules the nightly snapshot build for the previous
	// day. Empty disables the job.
	SnapshotCron string `envconfig:"SNAPSHOT_CRON" default:"0 2 * * *"`
}

// Load reads configuration from STOCK_* environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("stock", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.FaceValue <= 0 {
		return Config{}, fmt.Errorf("face value must be positive, got %d", cfg.FaceValue)
	}
	return cfg, nil
}

// Face returns the configured ticket face value as a decimal.
func (c Config) Face() decimal.Decimal {
	return decimal.NewFromInt(c.FaceValue)
}
