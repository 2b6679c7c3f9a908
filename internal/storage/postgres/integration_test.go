//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/devdepot/depot/internal/domain"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set, skipping integration test")
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	db, err := Open(Config{DSN: dsn}, logger)
	if err != nil {
		t.Fatalf("opening postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := AutoMigrate(db.GormDB()); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return db
}

// testWorkspace creates an owner-unique workspace with every catalog
// environment enabled, returning the workspace and its DEV enablement.
func testWorkspace(t *testing.T, db *DB, ownerID string) (*domain.Workspace, *domain.WorkspaceEnvironment) {
	t.Helper()
	ctx := context.Background()
	repo := NewWorkspaceRepository(db.GormDB())

	types, err := repo.ListEnvironmentTypes(ctx)
	if err != nil {
		t.Fatalf("listing environment types: %v", err)
	}

	now := time.Now().UTC()
	ws := &domain.Workspace{
		ID:        uuid.New(),
		Name:      fmt.Sprintf("test-%s", uuid.New().String()[:8]),
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	envs := make([]domain.WorkspaceEnvironment, len(types))
	var dev *domain.WorkspaceEnvironment
	for i, et := range types {
		envs[i] = domain.WorkspaceEnvironment{
			ID:                uuid.New(),
			WorkspaceID:       ws.ID,
			EnvironmentTypeID: et.ID,
			EnvironmentSlug:   et.Slug,
		}
		if et.Slug == "DEV" {
			dev = &envs[i]
		}
	}
	if err := repo.CreateWorkspace(ctx, ws, envs); err != nil {
		t.Fatalf("creating workspace: %v", err)
	}
	t.Cleanup(func() { _ = repo.DeleteWorkspace(ctx, ownerID, ws.ID) })
	return ws, dev
}

func testEnvVar(ws *domain.Workspace, env *domain.WorkspaceEnvironment, key string) *domain.Artifact {
	now := time.Now().UTC()
	return &domain.Artifact{
		ID:              uuid.New(),
		WorkspaceID:     ws.ID,
		WorkspaceEnvID:  env.ID,
		EnvironmentSlug: env.EnvironmentSlug,
		Kind:            domain.KindEnvVar,
		EnvVar:          &domain.EnvVarFields{Key: key, Value: "v"},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// --- Uniqueness under concurrency ---

func TestArtifactSlot_ConcurrentWritersOneWins(t *testing.T) {
	db := testDB(t)
	owner := fmt.Sprintf("owner-%s", uuid.New().String()[:8])
	ws, dev := testWorkspace(t, db, owner)
	repo := NewArtifactRepository(db.GormDB())
	ctx := context.Background()

	// 10 goroutines race to claim the same (workspace, env, kind, key) slot.
	const numWorkers = 10
	var created, conflicted atomic.Int32
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			err := repo.Create(ctx, owner, testEnvVar(ws, dev, "RACED_KEY"))
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, domain.ErrConflict):
				conflicted.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := created.Load(); got != 1 {
		t.Errorf("created = %d, want exactly 1", got)
	}
	if got := conflicted.Load(); got != numWorkers-1 {
		t.Errorf("conflicted = %d, want %d", got, numWorkers-1)
	}
}

func TestEnvironmentFK_BlocksDisableWhileOccupied(t *testing.T) {
	db := testDB(t)
	owner := fmt.Sprintf("owner-%s", uuid.New().String()[:8])
	ws, dev := testWorkspace(t, db, owner)
	wsRepo := NewWorkspaceRepository(db.GormDB())
	artRepo := NewArtifactRepository(db.GormDB())
	ctx := context.Background()

	a := testEnvVar(ws, dev, "PINNED")
	if err := artRepo.Create(ctx, owner, a); err != nil {
		t.Fatalf("creating artifact: %v", err)
	}

	if err := wsRepo.DisableEnvironment(ctx, owner, ws.ID, "DEV"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("DisableEnvironment = %v, want ErrConflict", err)
	}

	if err := artRepo.Delete(ctx, owner, ws.ID, a.ID); err != nil {
		t.Fatalf("deleting artifact: %v", err)
	}
	if err := wsRepo.DisableEnvironment(ctx, owner, ws.ID, "DEV"); err != nil {
		t.Errorf("DisableEnvironment after delete: %v", err)
	}
}

func TestWorkspaceName_UniquePerOwnerOnly(t *testing.T) {
	db := testDB(t)
	repo := NewWorkspaceRepository(db.GormDB())
	ctx := context.Background()

	ownerA := fmt.Sprintf("owner-%s", uuid.New().String()[:8])
	ownerB := fmt.Sprintf("owner-%s", uuid.New().String()[:8])
	name := fmt.Sprintf("shared-%s", uuid.New().String()[:8])

	mk := func(owner string) error {
		now := time.Now().UTC()
		ws := &domain.Workspace{ID: uuid.New(), Name: name, OwnerID: owner, CreatedAt: now, UpdatedAt: now}
		err := repo.CreateWorkspace(ctx, ws, nil)
		if err == nil {
			t.Cleanup(func() { _ = repo.DeleteWorkspace(ctx, owner, ws.ID) })
		}
		return err
	}

	if err := mk(ownerA); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := mk(ownerA); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("same-owner duplicate = %v, want ErrConflict", err)
	}
	if err := mk(ownerB); err != nil {
		t.Errorf("other-owner create = %v, want success", err)
	}
}

func TestReveal_TransactionalAudit(t *testing.T) {
	db := testDB(t)
	owner := fmt.Sprintf("owner-%s", uuid.New().String()[:8])
	ws, dev := testWorkspace(t, db, owner)
	artRepo := NewArtifactRepository(db.GormDB())
	secRepo := NewSecretRepository(db.GormDB())
	ctx := context.Background()

	a := testEnvVar(ws, dev, "SECRET_KEY")
	if err := artRepo.Create(ctx, owner, a); err != nil {
		t.Fatalf("creating artifact: %v", err)
	}

	revealed, err := secRepo.Reveal(ctx, owner, ws.ID, a.ID, "203.0.113.7", "test")
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if revealed.EnvVar == nil || revealed.EnvVar.Value != "v" {
		t.Errorf("revealed = %+v, want plaintext value", revealed)
	}

	entries, err := secRepo.ListAccessLog(ctx, owner, ws.ID, a.ID)
	if err != nil {
		t.Fatalf("ListAccessLog: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != domain.AccessReveal {
		t.Errorf("entries = %+v, want one REVEAL row", entries)
	}
}
