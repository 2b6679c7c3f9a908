package secret_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/devdepot/depot/internal/artifact"
	"github.com/devdepot/depot/internal/domain"
	"github.com/devdepot/depot/internal/ratelimit"
	"github.com/devdepot/depot/internal/secret"
	"github.com/devdepot/depot/internal/storage"
	sqlitestore "github.com/devdepot/depot/internal/storage/sqlite"
	"github.com/devdepot/depot/internal/workspace"
)

type fixture struct {
	store     storage.Store
	artifacts *artifact.Service
	ws        *domain.Workspace
}

func newFixture(t *testing.T, owner string) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	s, err := sqlitestore.Open(sqlitestore.Config{Path: filepath.Join(t.TempDir(), "depot.db")}, logger)
	if err != nil {
		t.Fatalf("opening sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	arts := artifact.NewService(s.Artifacts(), s.Tags(), nil, logger)
	wsSvc := workspace.NewService(s.Workspaces(), arts, s.Artifacts(), s.Tags(), nil, logger)
	ws, err := wsSvc.Create(context.Background(), owner, workspace.Params{Name: "backend"})
	if err != nil {
		t.Fatalf("creating workspace: %v", err)
	}
	return &fixture{store: s, artifacts: arts, ws: ws}
}

func (f *fixture) createEnvVar(t *testing.T, owner, key, value string) *domain.Artifact {
	t.Helper()
	a, err := f.artifacts.Create(context.Background(), owner, f.ws.ID, artifact.Payload{
		Kind: domain.KindEnvVar, Environment: "DEV", Key: key, Value: value,
	})
	if err != nil {
		t.Fatalf("creating ENV_VAR %s: %v", key, err)
	}
	return a
}

func TestReveal_ReturnsPlaintextAndAppendsAuditRow(t *testing.T) {
	f := newFixture(t, "alice")
	a := f.createEnvVar(t, "alice", "API_KEY", "supersecret")
	svc := secret.NewService(f.store.Secrets(), nil, testLogger())
	ctx := context.Background()

	revealed, err := svc.Reveal(ctx, "alice", f.ws.ID, a.ID, "203.0.113.7", "curl/8.0")
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if revealed.Value != "supersecret" {
		t.Errorf("Value = %q, want the plaintext", revealed.Value)
	}
	if revealed.Key != "API_KEY" {
		t.Errorf("Key = %q, want API_KEY", revealed.Key)
	}

	entries, err := svc.AccessLog(ctx, "alice", f.ws.ID, a.ID)
	if err != nil {
		t.Fatalf("AccessLog: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Action != domain.AccessReveal {
		t.Errorf("Action = %q, want REVEAL", e.Action)
	}
	if e.IP != "203.0.113.7" || e.UserAgent != "curl/8.0" {
		t.Errorf("audit row = %+v, want recorded IP and user agent", e)
	}
	if e.OwnerID != "alice" {
		t.Errorf("OwnerID = %q, want alice", e.OwnerID)
	}
}

func TestReveal_ThrottledCallHasNoSideEffects(t *testing.T) {
	f := newFixture(t, "alice")
	a := f.createEnvVar(t, "alice", "API_KEY", "supersecret")
	limiter := ratelimit.NewLimiter(ratelimit.Config{Requests: 2, Window: time.Minute})
	svc := secret.NewService(f.store.Secrets(), limiter, testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.Reveal(ctx, "alice", f.ws.ID, a.ID, "", ""); err != nil {
			t.Fatalf("Reveal #%d: %v", i+1, err)
		}
	}
	if _, err := svc.Reveal(ctx, "alice", f.ws.ID, a.ID, "", ""); !errors.Is(err, ratelimit.ErrRateLimited) {
		t.Fatalf("third Reveal = %v, want ErrRateLimited", err)
	}

	// The throttled attempt must not have left an audit row.
	entries, err := svc.AccessLog(ctx, "alice", f.ws.ID, a.ID)
	if err != nil {
		t.Fatalf("AccessLog: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("len(entries) = %d, want 2 (throttled call audited nothing)", len(entries))
	}
}

func TestReveal_NonEnvVarIsInvalid(t *testing.T) {
	f := newFixture(t, "alice")
	svc := secret.NewService(f.store.Secrets(), nil, testLogger())
	ctx := context.Background()

	p, err := f.artifacts.Create(ctx, "alice", f.ws.ID, artifact.Payload{
		Kind: domain.KindPrompt, Environment: "DEV", Title: "Summarizer", Content: "c",
	})
	if err != nil {
		t.Fatalf("creating PROMPT: %v", err)
	}

	if _, err := svc.Reveal(ctx, "alice", f.ws.ID, p.ID, "", ""); !errors.Is(err, domain.ErrInvalidOperation) {
		t.Errorf("Reveal on PROMPT = %v, want ErrInvalidOperation", err)
	}

	// The failed attempt writes no audit row.
	entries, err := svc.AccessLog(ctx, "alice", f.ws.ID, p.ID)
	if err != nil {
		t.Fatalf("AccessLog: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("len(entries) = %d, want 0", len(entries))
	}
}

func TestReveal_CrossOwnerIsNotFound(t *testing.T) {
	f := newFixture(t, "alice")
	a := f.createEnvVar(t, "alice", "API_KEY", "supersecret")
	svc := secret.NewService(f.store.Secrets(), nil, testLogger())

	if _, err := svc.Reveal(context.Background(), "mallory", f.ws.ID, a.ID, "", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("cross-owner Reveal = %v, want ErrNotFound", err)
	}
}

func TestAccessLog_NewestFirst(t *testing.T) {
	f := newFixture(t, "alice")
	a := f.createEnvVar(t, "alice", "API_KEY", "supersecret")
	svc := secret.NewService(f.store.Secrets(), nil, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Reveal(ctx, "alice", f.ws.ID, a.ID, "", ""); err != nil {
			t.Fatalf("Reveal #%d: %v", i+1, err)
		}
	}

	entries, err := svc.AccessLog(ctx, "alice", f.ws.ID, a.ID)
	if err != nil {
		t.Fatalf("AccessLog: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].CreatedAt.After(entries[i-1].CreatedAt) {
			t.Errorf("entries not in newest-first order at index %d", i)
		}
	}
}

func TestRecordExport_AppendsOneRowPerArtifact(t *testing.T) {
	f := newFixture(t, "alice")
	a := f.createEnvVar(t, "alice", "KEY_ONE", "v1")
	b := f.createEnvVar(t, "alice", "KEY_TWO", "v2")
	svc := secret.NewService(f.store.Secrets(), nil, testLogger())
	ctx := context.Background()

	if err := svc.RecordExport(ctx, "alice", []uuid.UUID{a.ID, b.ID}, "203.0.113.7", "depot-cli"); err != nil {
		t.Fatalf("RecordExport: %v", err)
	}

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		entries, err := svc.AccessLog(ctx, "alice", f.ws.ID, id)
		if err != nil {
			t.Fatalf("AccessLog(%s): %v", id, err)
		}
		if len(entries) != 1 || entries[0].Action != domain.AccessExport {
			t.Errorf("entries for %s = %+v, want one EXPORT row", id, entries)
		}
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
