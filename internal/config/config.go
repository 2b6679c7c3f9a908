// Package config handles loading and validating depot configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for depot.
type Config struct {
	DataDir       string               `json:"data_dir,omitempty" yaml:"data_dir,omitempty"` // Persistent data directory. Default: ~/.depot/data. Override: DEPOT_DATA_DIR env var.
	Storage       *StorageConfig       `json:"storage,omitempty" yaml:"storage,omitempty"`   // nil = SQLite default (derived from data dir)
	HTTP          *HTTPConfig          `json:"http,omitempty" yaml:"http,omitempty"`         // nil = HTTP enabled on :8080.
	RateLimits    RateLimitsConfig     `json:"rate_limits" yaml:"rate_limits"`
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = metrics and probes disabled
	Maintenance   *MaintenanceConfig   `json:"maintenance,omitempty" yaml:"maintenance,omitempty"`     // nil = no background housekeeping
}

// StorageConfig configures the persistence backend.
// When nil, defaults to SQLite with the database path derived from the data dir.
type StorageConfig struct {
	Driver   string                 `json:"driver" yaml:"driver"`                         // "sqlite" (default) or "postgres".
	SQLite   *SQLiteStorageConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`     // SQLite-specific settings.
	Postgres *PostgresStorageConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"` // PostgreSQL-specific settings.
}

// StorageDriver returns the configured driver, defaulting to "sqlite".
func (s *StorageConfig) StorageDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return "sqlite"
}

// SQLiteStorageConfig holds SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path. Default: derived from data dir.
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`     // "wal" (default), "delete", "truncate", etc.
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
type PostgresStorageConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`                                 // Override: DEPOT_DB_DSN env var.
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`           // Default: 25
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`           // Default: 5
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"` // Default: 1800 (30 min)
}

// ConnMaxLifetime returns the connection lifetime with a default of 30m.
func (p *PostgresStorageConfig) ConnMaxLifetime() time.Duration {
	if p != nil && p.ConnMaxLifetimeS > 0 {
		return time.Duration(p.ConnMaxLifetimeS) * time.Second
	}
	return 30 * time.Minute
}

// HTTPConfig configures the HTTP API gateway.
type HTTPConfig struct {
	ListenAddr          string            `json:"listen_addr" yaml:"listen_addr"` // Default: ":8080". Override: DEPOT_LISTEN_ADDR env var.
	EnableDocs          bool              `json:"enable_docs" yaml:"enable_docs"`
	MaxRequestSizeBytes int64             `json:"max_request_size_bytes" yaml:"max_request_size_bytes"` // Default: 1 MB.
	APIKeyOwnerMapping  map[string]string `json:"api_key_owner_mapping" yaml:"api_key_owner_mapping"`   // API key → owner ID. Also: DEPOT_API_KEYS env var ("key:owner,key:owner").
}

// Addr returns the listen address with a default of ":8080".
func (h *HTTPConfig) Addr() string {
	if h != nil && h.ListenAddr != "" {
		return h.ListenAddr
	}
	return ":8080"
}

// MaxRequestSize returns the body size cap with a default of 1 MB.
func (h *HTTPConfig) MaxRequestSize() int64 {
	if h != nil && h.MaxRequestSizeBytes > 0 {
		return h.MaxRequestSizeBytes
	}
	return 1 << 20
}

// RateLimitsConfig configures the per-owner throttles on sensitive
// operations. Zero values fall back to the defaults; the limiters live in
// the services, not the HTTP layer.
type RateLimitsConfig struct {
	RevealPerMinute int `json:"reveal_per_minute" yaml:"reveal_per_minute"` // Default: 10.
	SearchPerHour   int `json:"search_per_hour" yaml:"search_per_hour"`     // Default: 60.
}

// RevealLimit returns the reveal quota with a default of 10/min.
func (r RateLimitsConfig) RevealLimit() int {
	if r.RevealPerMinute > 0 {
		return r.RevealPerMinute
	}
	return 10
}

// SearchLimit returns the search quota with a default of 60/hour.
func (r RateLimitsConfig) SearchLimit() int {
	if r.SearchPerHour > 0 {
		return r.SearchPerHour
	}
	return 60
}

// ObservabilityConfig configures metrics and health checks.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Health  *HealthConfig  `json:"health,omitempty" yaml:"health,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// MetricsPath returns the exposition path with a default of "/metrics".
func (m *MetricsConfig) MetricsPath() string {
	if m != nil && m.Path != "" {
		return m.Path
	}
	return "/metrics"
}

// HealthConfig configures dependency health checks for readiness probes.
type HealthConfig struct {
	IncludeDB bool `json:"include_db" yaml:"include_db"`
}

// MaintenanceConfig configures background housekeeping.
type MaintenanceConfig struct {
	TagPruneSchedule string `json:"tag_prune_schedule" yaml:"tag_prune_schedule"` // Five-field cron expression. Empty = pruning disabled.
}

// DefaultConfigPath returns the default config file path (~/.depot/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/depot.yaml" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".depot", "config.yaml")
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. Environment variables take precedence over config values.
// A missing file yields the defaults rather than an error, so a bare binary
// starts with SQLite and no extra setup.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	var cfg Config
	data, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
		case ".yml", ".yaml":
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
			}
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
			}
		}
	case os.IsNotExist(err):
		// Defaults only.
	default:
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	// Environment variable overrides — env vars take precedence over config values.
	if envDD := os.Getenv("DEPOT_DATA_DIR"); envDD != "" {
		cfg.DataDir = envDD
	}
	if envDSN := os.Getenv("DEPOT_DB_DSN"); envDSN != "" {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{Driver: "postgres"}
		}
		if cfg.Storage.Postgres == nil {
			cfg.Storage.Postgres = &PostgresStorageConfig{}
		}
		cfg.Storage.Postgres.DSN = envDSN
	}
	if envAddr := os.Getenv("DEPOT_LISTEN_ADDR"); envAddr != "" {
		if cfg.HTTP == nil {
			cfg.HTTP = &HTTPConfig{}
		}
		cfg.HTTP.ListenAddr = envAddr
	}
	if envKeys := os.Getenv("DEPOT_API_KEYS"); envKeys != "" {
		if cfg.HTTP == nil {
			cfg.HTTP = &HTTPConfig{}
		}
		if cfg.HTTP.APIKeyOwnerMapping == nil {
			cfg.HTTP.APIKeyOwnerMapping = make(map[string]string)
		}
		for _, entry := range strings.Split(envKeys, ",") {
			parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
			if len(parts) == 2 {
				cfg.HTTP.APIKeyOwnerMapping[parts[0]] = parts[1]
			}
		}
	}

	// Resolve DataDir default.
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DataDir = filepath.Join(home, ".depot", "data")
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// ResolvedDataDir returns the data directory, resolving ~ if needed.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		return filepath.Join(home, ".depot", "data")
	}
	resolved, err := resolvePath(c.DataDir)
	if err != nil {
		return c.DataDir
	}
	return resolved
}

// DatabasePath returns the default SQLite database path under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.ResolvedDataDir(), "depot.db")
}

// StorageDriverName returns the effective storage driver name.
func (c *Config) StorageDriverName() string {
	if c.Storage != nil {
		return c.Storage.StorageDriver()
	}
	return "sqlite"
}

func (c *Config) validate() error {
	if c.Storage != nil && c.Storage.Driver != "" {
		switch c.Storage.Driver {
		case "sqlite", "postgres":
			// valid
		default:
			return fmt.Errorf("storage.driver %q is not supported (use sqlite or postgres)", c.Storage.Driver)
		}
	}
	if c.StorageDriverName() == "postgres" {
		if c.Storage == nil || c.Storage.Postgres == nil || c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres driver (set DEPOT_DB_DSN env var)")
		}
	}
	if c.RateLimits.RevealPerMinute < 0 {
		return fmt.Errorf("rate_limits.reveal_per_minute must not be negative")
	}
	if c.RateLimits.SearchPerHour < 0 {
		return fmt.Errorf("rate_limits.search_per_hour must not be negative")
	}
	return nil
}
