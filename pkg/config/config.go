// Package config loads the application configuration from defaults, an
// optional config file (yaml, json or toml), environment variables and
// command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/thannaske/s3report/pkg/models"
)

// Default values of the configuration keys
const (
	DefaultDriver       = models.DriverAWS
	DefaultRegion       = "us-east-1"
	DefaultReportBucket = "s3-usage-reports"
	DefaultConcurrency  = 1
	DefaultSchedule     = "5 0 * * *"
	DefaultLogLevel     = "info"
)

// Errors returned by Validate
var (
	ErrMissingReportBucket = errors.New("report bucket is required")
	ErrUnknownDriver       = errors.New("unknown storage driver")
	ErrMissingCredentials  = errors.New("missing required S3 credentials")
	ErrInvalidConcurrency  = errors.New("concurrency must be at least 1")
)

// envBindings keeps the S3_* variable names of earlier releases
var envBindings = map[string]string{
	"driver":        "S3_DRIVER",
	"endpoint":      "S3_ENDPOINT",
	"access-key":    "S3_ACCESS_KEY",
	"secret-key":    "S3_SECRET_KEY",
	"region":        "S3_REGION",
	"use-ssl":       "S3_USE_SSL",
	"report-bucket": "S3_REPORT_BUCKET",
	"report-prefix": "S3_REPORT_PREFIX",
	"concurrency":   "S3_CONCURRENCY",
	"schedule":      "S3_SCHEDULE",
	"db":            "S3_DB_PATH",
	"log-level":     "S3_LOG_LEVEL",
	"log-file":      "S3_LOG_FILE",
}

// DefaultDBPath is the history database used when none is configured
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".s3report.db"
	}
	return filepath.Join(home, ".s3report.db")
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("driver", DefaultDriver)
	v.SetDefault("region", DefaultRegion)
	v.SetDefault("report-bucket", DefaultReportBucket)
	v.SetDefault("concurrency", DefaultConcurrency)
	v.SetDefault("schedule", DefaultSchedule)
	v.SetDefault("db", DefaultDBPath())
	v.SetDefault("log-level", DefaultLogLevel)
}

// Load reads the configuration into a Config. Flags must already be bound
// to v. cfgFile may be empty.
func Load(v *viper.Viper, cfgFile string) (models.Config, error) {
	SetDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return models.Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return models.Config{}, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	}

	var cfg models.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return models.Config{}, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that cfg can be used to collect usage
func Validate(cfg models.Config) error {
	if cfg.ReportBucket == "" {
		return ErrMissingReportBucket
	}
	if cfg.Concurrency < 1 {
		return ErrInvalidConcurrency
	}

	switch cfg.Driver {
	case models.DriverAWS:
		if (cfg.S3AccessKey == "") != (cfg.S3SecretKey == "") {
			return fmt.Errorf("%w: set both --access-key and --secret-key or neither", ErrMissingCredentials)
		}
	case models.DriverMinio, models.DriverCeph:
		if cfg.S3Endpoint == "" || cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
			return fmt.Errorf("%w: provide --endpoint, --access-key and --secret-key", ErrMissingCredentials)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	return nil
}
