package workspace_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/devdepot/depot/internal/artifact"
	"github.com/devdepot/depot/internal/domain"
	"github.com/devdepot/depot/internal/secret"
	"github.com/devdepot/depot/internal/storage"
	sqlitestore "github.com/devdepot/depot/internal/storage/sqlite"
	"github.com/devdepot/depot/internal/workspace"
)

type fixture struct {
	store      storage.Store
	artifacts  *artifact.Service
	secrets    *secret.Service
	workspaces *workspace.Service
}

func newFixture(t *testing.T) *fixture {
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
	secrets := secret.NewService(s.Secrets(), nil, logger)
	wsSvc := workspace.NewService(s.Workspaces(), arts, s.Artifacts(), s.Tags(), secrets, logger)
	return &fixture{store: s, artifacts: arts, secrets: secrets, workspaces: wsSvc}
}

func TestCreate_EnablesFullCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ws, err := f.workspaces.Create(ctx, "alice", workspace.Params{Name: "backend"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	envs, err := f.workspaces.Environments(ctx, "alice", ws.ID)
	if err != nil {
		t.Fatalf("Environments: %v", err)
	}
	slugs := make(map[string]bool, len(envs))
	for _, env := range envs {
		slugs[env.EnvironmentSlug] = true
	}
	for _, want := range []string{"DEV", "STAGING", "PROD"} {
		if !slugs[want] {
			t.Errorf("environment %s not enabled on a fresh workspace", want)
		}
	}
}

func TestCreate_NameValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		wsName string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"too long", strings.Repeat("n", 256)},
		{"bad characters", "back/end"},
		{"null byte", "back\x00end!"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.workspaces.Create(ctx, "alice", workspace.Params{Name: tc.wsName})
			if _, ok := domain.AsValidation(err); !ok {
				t.Errorf("Create(%q) = %v, want validation error", tc.wsName, err)
			}
		})
	}

	// Dots, hyphens, underscores and spaces are all fine.
	if _, err := f.workspaces.Create(ctx, "alice", workspace.Params{Name: "team-1 backend_v2.0"}); err != nil {
		t.Errorf("Create with allowed punctuation: %v", err)
	}
}

func TestCreate_NameUniquePerOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.workspaces.Create(ctx, "alice", workspace.Params{Name: "backend"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.workspaces.Create(ctx, "alice", workspace.Params{Name: "backend"}); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("duplicate Create = %v, want ErrConflict", err)
	}
	// A different owner can reuse the name.
	if _, err := f.workspaces.Create(ctx, "bob", workspace.Params{Name: "backend"}); err != nil {
		t.Errorf("bob's Create = %v, want success", err)
	}
}

func TestDelete_CascadesThroughArtifactsAndTags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ws, err := f.workspaces.Create(ctx, "alice", workspace.Params{Name: "backend"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	tag, err := f.artifacts.CreateTag(ctx, "alice", ws.ID, "critical")
	if err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	if _, err := f.artifacts.Create(ctx, "alice", ws.ID, artifact.Payload{
		Kind: domain.KindEnvVar, Environment: "DEV", Key: "API_KEY", Value: "v",
		TagIDs: []uuid.UUID{tag.ID},
	}); err != nil {
		t.Fatalf("creating artifact: %v", err)
	}

	// The protective artifact-environment foreign key must not block a
	// whole-workspace delete.
	if err := f.workspaces.Delete(ctx, "alice", ws.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.workspaces.Get(ctx, "alice", ws.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestDisableEnvironment_BlockedWhileOccupied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ws, err := f.workspaces.Create(ctx, "alice", workspace.Params{Name: "backend"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	a, err := f.artifacts.Create(ctx, "alice", ws.ID, artifact.Payload{
		Kind: domain.KindEnvVar, Environment: "DEV", Key: "API_KEY", Value: "v",
	})
	if err != nil {
		t.Fatalf("creating artifact: %v", err)
	}

	if err := f.workspaces.DisableEnvironment(ctx, "alice", ws.ID, "DEV"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("DisableEnvironment with artifacts = %v, want ErrConflict", err)
	}

	// After the artifact is gone, disabling succeeds.
	if err := f.artifacts.Delete(ctx, "alice", ws.ID, a.ID); err != nil {
		t.Fatalf("deleting artifact: %v", err)
	}
	if err := f.workspaces.DisableEnvironment(ctx, "alice", ws.ID, "DEV"); err != nil {
		t.Fatalf("DisableEnvironment: %v", err)
	}

	// Creating into a disabled environment fails.
	if _, err := f.artifacts.Create(ctx, "alice", ws.ID, artifact.Payload{
		Kind: domain.KindEnvVar, Environment: "DEV", Key: "OTHER", Value: "v",
	}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Create into disabled environment = %v, want ErrNotFound", err)
	}

	// Re-enabling brings it back; enabling twice conflicts.
	if _, err := f.workspaces.EnableEnvironment(ctx, "alice", ws.ID, "DEV"); err != nil {
		t.Fatalf("EnableEnvironment: %v", err)
	}
	if _, err := f.workspaces.EnableEnvironment(ctx, "alice", ws.ID, "DEV"); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("double EnableEnvironment = %v, want ErrConflict", err)
	}
}

func TestExport_MasksValuesByDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ws, err := f.workspaces.Create(ctx, "alice", workspace.Params{Name: "backend"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	a, err := f.artifacts.Create(ctx, "alice", ws.ID, artifact.Payload{
		Kind: domain.KindEnvVar, Environment: "DEV", Key: "API_KEY", Value: "supersecret",
	})
	if err != nil {
		t.Fatalf("creating artifact: %v", err)
	}

	b, err := f.workspaces.Export(ctx, "alice", ws.ID, false, "", "")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(b.Artifacts) != 1 {
		t.Fatalf("len(Artifacts) = %d, want 1", len(b.Artifacts))
	}
	if b.Artifacts[0].Value != "" || !b.Artifacts[0].ValueMasked {
		t.Errorf("masked export = %+v, want empty Value and ValueMasked", b.Artifacts[0])
	}

	// No audit rows for a masked export.
	entries, err := f.secrets.AccessLog(ctx, "alice", ws.ID, a.ID)
	if err != nil {
		t.Fatalf("AccessLog: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("len(entries) = %d, want 0", len(entries))
	}
}

func TestExport_IncludeValuesIsAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ws, err := f.workspaces.Create(ctx, "alice", workspace.Params{Name: "backend"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	a, err := f.artifacts.Create(ctx, "alice", ws.ID, artifact.Payload{
		Kind: domain.KindEnvVar, Environment: "DEV", Key: "API_KEY", Value: "supersecret",
	})
	if err != nil {
		t.Fatalf("creating artifact: %v", err)
	}

	b, err := f.workspaces.Export(ctx, "alice", ws.ID, true, "203.0.113.7", "depot-cli")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if b.Artifacts[0].Value != "supersecret" {
		t.Errorf("Value = %q, want plaintext in a value-bearing export", b.Artifacts[0].Value)
	}

	entries, err := f.secrets.AccessLog(ctx, "alice", ws.ID, a.ID)
	if err != nil {
		t.Fatalf("AccessLog: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != domain.AccessExport {
		t.Errorf("entries = %+v, want one EXPORT row", entries)
	}
}

func TestImport_RoundTripWithRenameAndEnvRestriction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ws, err := f.workspaces.Create(ctx, "alice", workspace.Params{Name: "backend"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.workspaces.DisableEnvironment(ctx, "alice", ws.ID, "STAGING"); err != nil {
		t.Fatalf("DisableEnvironment: %v", err)
	}
	if _, err := f.artifacts.Create(ctx, "alice", ws.ID, artifact.Payload{
		Kind: domain.KindDocLink, Environment: "DEV", Title: "Runbook", URL: "https://wiki.example.com",
	}); err != nil {
		t.Fatalf("creating artifact: %v", err)
	}

	b, err := f.workspaces.Export(ctx, "alice", ws.ID, false, "", "")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	// Importing under the same owner collides on the name and gets a suffix.
	res, err := f.workspaces.Import(ctx, "alice", b)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Workspace.Name != "backend - 1" {
		t.Errorf("imported name = %q, want %q", res.Workspace.Name, "backend - 1")
	}
	if res.Imported != 1 || len(res.Errors) != 0 {
		t.Errorf("result = %+v, want 1 imported, 0 errors", res)
	}

	// The bundle's environment set is honored: STAGING stays disabled.
	envs, err := f.workspaces.Environments(ctx, "alice", res.Workspace.ID)
	if err != nil {
		t.Fatalf("Environments: %v", err)
	}
	for _, env := range envs {
		if env.EnvironmentSlug == "STAGING" {
			t.Error("STAGING enabled on import despite not being in the bundle")
		}
	}
}

func TestImport_BadEntriesAreReportedNotFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := &workspace.Bundle{
		Name:         "restored",
		Environments: []string{"DEV"},
		Artifacts: []workspace.BundleArtifact{
			{Kind: domain.KindEnvVar, Environment: "DEV", Key: "GOOD_KEY", Value: "v"},
			{Kind: domain.KindEnvVar, Environment: "DEV", Key: "bad key", Value: "v"},
			{Kind: domain.KindEnvVar, Environment: "PROD", Key: "OTHER", Value: "v"}, // PROD not in bundle
		},
	}

	res, err := f.workspaces.Import(ctx, "alice", b)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Imported != 1 {
		t.Errorf("Imported = %d, want 1", res.Imported)
	}
	if len(res.Errors) != 2 {
		t.Errorf("len(Errors) = %d, want 2", len(res.Errors))
	}
}
