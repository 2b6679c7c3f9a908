package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.StorageDriverName(); got != "sqlite" {
		t.Errorf("driver = %q, want sqlite", got)
	}
	if got := cfg.HTTP.Addr(); got != ":8080" {
		t.Errorf("addr = %q, want :8080", got)
	}
	if got := cfg.RateLimits.RevealLimit(); got != 10 {
		t.Errorf("reveal limit = %d, want 10", got)
	}
	if got := cfg.RateLimits.SearchLimit(); got != 60 {
		t.Errorf("search limit = %d, want 60", got)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "depot.yaml", `
data_dir: /var/lib/depot
http:
  listen_addr: ":9090"
  enable_docs: true
rate_limits:
  reveal_per_minute: 5
  search_per_hour: 100
maintenance:
  tag_prune_schedule: "0 3 * * *"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr() != ":9090" {
		t.Errorf("addr = %q, want :9090", cfg.HTTP.Addr())
	}
	if !cfg.HTTP.EnableDocs {
		t.Error("EnableDocs = false, want true")
	}
	if cfg.RateLimits.RevealLimit() != 5 {
		t.Errorf("reveal limit = %d, want 5", cfg.RateLimits.RevealLimit())
	}
	if cfg.Maintenance == nil || cfg.Maintenance.TagPruneSchedule != "0 3 * * *" {
		t.Errorf("maintenance = %+v, want the prune schedule", cfg.Maintenance)
	}
	if cfg.DatabasePath() != filepath.Join("/var/lib/depot", "depot.db") {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath())
	}
}

func TestLoad_JSON(t *testing.T) {
	path := writeConfig(t, "depot.json", `{
  "storage": {"driver": "postgres", "postgres": {"dsn": "postgres://localhost/depot"}},
  "rate_limits": {}
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StorageDriverName() != "postgres" {
		t.Errorf("driver = %q, want postgres", cfg.StorageDriverName())
	}
}

func TestLoad_PostgresRequiresDSN(t *testing.T) {
	path := writeConfig(t, "depot.yaml", `
storage:
  driver: postgres
rate_limits: {}
`)
	if _, err := Load(path); err == nil {
		t.Error("Load succeeded without a DSN for the postgres driver")
	}
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, "depot.yaml", `
storage:
  driver: oracle
rate_limits: {}
`)
	if _, err := Load(path); err == nil {
		t.Error("Load accepted an unknown storage driver")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DEPOT_LISTEN_ADDR", ":7070")
	t.Setenv("DEPOT_DB_DSN", "postgres://env-host/depot")
	t.Setenv("DEPOT_API_KEYS", "key1:alice, key2:bob")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr() != ":7070" {
		t.Errorf("addr = %q, want :7070", cfg.HTTP.Addr())
	}
	// Providing a DSN via env switches the driver to postgres.
	if cfg.StorageDriverName() != "postgres" {
		t.Errorf("driver = %q, want postgres", cfg.StorageDriverName())
	}
	if cfg.Storage.Postgres.DSN != "postgres://env-host/depot" {
		t.Errorf("dsn = %q", cfg.Storage.Postgres.DSN)
	}
	want := map[string]string{"key1": "alice", "key2": "bob"}
	for k, v := range want {
		if cfg.HTTP.APIKeyOwnerMapping[k] != v {
			t.Errorf("api key %q maps to %q, want %q", k, cfg.HTTP.APIKeyOwnerMapping[k], v)
		}
	}
}

func TestLoad_NegativeRateLimitRejected(t *testing.T) {
	path := writeConfig(t, "depot.yaml", `
rate_limits:
  reveal_per_minute: -1
`)
	if _, err := Load(path); err == nil {
		t.Error("Load accepted a negative rate limit")
	}
}
