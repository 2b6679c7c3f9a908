package postgres

import (
	"context"
	"sync"

	"github.com/devdepot/depot/internal/artifact"
	"github.com/devdepot/depot/internal/secret"
	"github.com/devdepot/depot/internal/storage"
	"github.com/devdepot/depot/internal/workspace"
)

// Store implements storage.Store backed by PostgreSQL.
type Store struct {
	db *DB

	// Sub-store instances (created lazily on first access).
	mu         sync.Mutex
	workspaces workspace.Store
	artifacts  artifact.Store
	tags       artifact.TagStore
	secrets    secret.Store
}

// NewStore wraps an open connection as the unified store.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

func (s *Store) Workspaces() workspace.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workspaces == nil {
		s.workspaces = NewWorkspaceRepository(s.db.GormDB())
	}
	return s.workspaces
}

func (s *Store) Artifacts() artifact.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.artifacts == nil {
		s.artifacts = NewArtifactRepository(s.db.GormDB())
	}
	return s.artifacts
}

func (s *Store) Tags() artifact.TagStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tags == nil {
		s.tags = NewTagRepository(s.db.GormDB())
	}
	return s.tags
}

func (s *Store) Secrets() secret.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.secrets == nil {
		s.secrets = NewSecretRepository(s.db.GormDB())
	}
	return s.secrets
}

func (s *Store) PruneOrphanTags(ctx context.Context) (int64, error) {
	return NewTagRepository(s.db.GormDB()).PruneOrphans(ctx)
}

func (s *Store) Migrate(_ context.Context) error {
	return AutoMigrate(s.db.GormDB())
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns "postgres".
func (s *Store) Driver() string {
	return storage.DriverPostgres
}

// compile-time interface check
var _ storage.Store = (*Store)(nil)
