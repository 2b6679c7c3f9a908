// Package storage defines the unified Store interface that abstracts all persistence operations.
// Two backends are provided: SQLite (default, zero-config) and PostgreSQL (production).
package storage

import (
	"context"

	"github.com/devdepot/depot/internal/artifact"
	"github.com/devdepot/depot/internal/secret"
	"github.com/devdepot/depot/internal/workspace"
)

// Store is the unified persistence interface.
// It provides access to all domain-specific sub-stores through accessor methods.
// Both SQLite and PostgreSQL backends implement this interface.
type Store interface {
	// Sub-store accessors — each returns a domain-specific store interface.
	// The returned stores share the same underlying connection.
	Workspaces() workspace.Store
	Artifacts() artifact.Store
	Tags() artifact.TagStore
	Secrets() secret.Store

	// PruneOrphanTags deletes tags no artifact references anymore.
	// Returns the number of rows removed. Used by the maintenance pruner.
	PruneOrphanTags(ctx context.Context) (int64, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error

	// Driver returns the storage driver name ("sqlite" or "postgres").
	Driver() string
}

// Config holds storage configuration for driver selection.
type Config struct {
	Driver   string         `yaml:"driver" json:"driver"` // "sqlite" (default) or "postgres"
	SQLite   SQLiteConfig   `yaml:"sqlite" json:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path        string `yaml:"path" json:"path,omitempty"`          // Database file path.
	JournalMode string `yaml:"journal_mode" json:"journal_mode"`    // "wal" (default), "delete", "truncate", etc.
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN              string `yaml:"dsn" json:"dsn"`
	MaxOpenConns     int    `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns     int    `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetimeS int    `yaml:"conn_max_lifetime_s" json:"conn_max_lifetime_s"`
}

// DefaultDriver is the default storage driver.
const DefaultDriver = "sqlite"

// DriverSQLite is the SQLite driver name.
const DriverSQLite = "sqlite"

// DriverPostgres is the PostgreSQL driver name.
const DriverPostgres = "postgres"
