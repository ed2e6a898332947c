package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the validation service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Schemas    SchemasConfig    `yaml:"schemas"`
	Validation ValidationConfig `yaml:"validation"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig controls the HTTP listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	Debug           bool          `yaml:"debug"`
}

// StoreConfig controls the embedded snapshot database.
type StoreConfig struct {
	Path           string        `yaml:"path"`
	InMemory       bool          `yaml:"inMemory"`
	SyncWrites     bool          `yaml:"syncWrites"`
	GCInterval     time.Duration `yaml:"gcInterval"`
	GCDiscardRatio float64       `yaml:"gcDiscardRatio"`
}

// SchemasConfig controls constraint-pack loading.
type SchemasConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

// ValidationConfig controls default validation behaviour.
type ValidationConfig struct {
	// DefaultMode is used when a request does not name one: "check" leaves
	// stored packs untouched, "calibrate" persists widened bounds.
	DefaultMode string `yaml:"defaultMode"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load initialises Config from a YAML file and optional environment
// overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("DRIFTGATE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Validation.DefaultMode != "check" && cfg.Validation.DefaultMode != "calibrate" {
		return nil, fmt.Errorf("validation.defaultMode must be check or calibrate, got %q", cfg.Validation.DefaultMode)
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Path:           "data/driftgate",
			SyncWrites:     true,
			GCInterval:     5 * time.Minute,
			GCDiscardRatio: 0.5,
		},
		Schemas: SchemasConfig{
			Dir:   "configs/schemas",
			Watch: true,
		},
		Validation: ValidationConfig{DefaultMode: "check"},
		Logging:    LoggingConfig{Level: "info", Format: "text"},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DRIFTGATE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("DRIFTGATE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("DRIFTGATE_GRACEFUL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.GracefulTimeout = d
		}
	}
	if v := os.Getenv("DRIFTGATE_SERVER_DEBUG"); v != "" {
		cfg.Server.Debug = isTruthy(v)
	}
	if v := os.Getenv("DRIFTGATE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("DRIFTGATE_STORE_IN_MEMORY"); v != "" {
		cfg.Store.InMemory = isTruthy(v)
	}
	if v := os.Getenv("DRIFTGATE_STORE_SYNC_WRITES"); v != "" {
		cfg.Store.SyncWrites = isTruthy(v)
	}
	if v := os.Getenv("DRIFTGATE_STORE_GC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Store.GCInterval = d
		}
	}
	if v := os.Getenv("DRIFTGATE_SCHEMAS_DIR"); v != "" {
		cfg.Schemas.Dir = v
	}
	if v := os.Getenv("DRIFTGATE_SCHEMAS_WATCH"); v != "" {
		cfg.Schemas.Watch = isTruthy(v)
	}
	if v := os.Getenv("DRIFTGATE_VALIDATION_MODE"); v != "" {
		cfg.Validation.DefaultMode = v
	}
	if v := os.Getenv("DRIFTGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DRIFTGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func isTruthy(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
