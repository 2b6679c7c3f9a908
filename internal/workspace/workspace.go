// Package workspace implements the owner-scoped workspace lifecycle:
// creation with automatic environment enablement, ordered cascade deletion,
// environment toggling, and portable export/import bundles.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devdepot/depot/internal/artifact"
	"github.com/devdepot/depot/internal/domain"
)

// MaxNameLen bounds the workspace name; MaxDescriptionLen the description.
const (
	MaxNameLen        = 255
	MaxDescriptionLen = 1000
)

// namePattern restricts workspace names to letters, digits, spaces, hyphens,
// underscores and dots.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9\s\-_\.]+$`)

// importSuffixCap bounds how many " - N" rename attempts an import makes
// before giving up with a conflict.
const importSuffixCap = 50

// Store is the owner-scoped persistence contract for workspaces and their
// environment enablements. CreateWorkspace persists the workspace and its
// initial enablement rows atomically; DeleteWorkspace runs the ordered
// cascade (artifacts, tags, enablements, workspace) in one transaction.
type Store interface {
	CreateWorkspace(ctx context.Context, ws *domain.Workspace, envs []domain.WorkspaceEnvironment) error
	GetWorkspace(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Workspace, error)
	ListWorkspaces(ctx context.Context, ownerID string) ([]domain.Workspace, error)
	UpdateWorkspace(ctx context.Context, ownerID string, ws *domain.Workspace) error
	DeleteWorkspace(ctx context.Context, ownerID string, id uuid.UUID) error

	// ListEnvironmentTypes returns the seeded catalog, ordered by display order.
	ListEnvironmentTypes(ctx context.Context) ([]domain.EnvironmentType, error)
	ListEnvironments(ctx context.Context, ownerID string, workspaceID uuid.UUID) ([]domain.WorkspaceEnvironment, error)
	EnableEnvironment(ctx context.Context, ownerID string, workspaceID uuid.UUID, slug string) (*domain.WorkspaceEnvironment, error)

	// DisableEnvironment removes an enablement row. The protective foreign key
	// makes it fail with domain.ErrConflict while artifacts still reference it.
	DisableEnvironment(ctx context.Context, ownerID string, workspaceID uuid.UUID, slug string) error
}

// ExportRecorder appends EXPORT rows to the access log for every secret value
// included in an export bundle. Fail-closed: when it errors, the export is
// aborted rather than disclosing unaudited values.
type ExportRecorder interface {
	RecordExport(ctx context.Context, ownerID string, artifactIDs []uuid.UUID, ip, userAgent string) error
}

// Params is the input for workspace create and update.
type Params struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Service wires name validation and cascade semantics in front of the store.
type Service struct {
	store     Store
	artifacts *artifact.Service
	artStore  artifact.Store
	tags      artifact.TagStore
	exports   ExportRecorder
	logger    *slog.Logger
}

// NewService creates a workspace service. exports may be nil to disable
// value-bearing exports.
func NewService(store Store, artifacts *artifact.Service, artStore artifact.Store, tags artifact.TagStore, exports ExportRecorder, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		artifacts: artifacts,
		artStore:  artStore,
		tags:      tags,
		exports:   exports,
		logger:    logger,
	}
}

func validateParams(p *Params) error {
	p.Name = strings.TrimSpace(strings.ReplaceAll(p.Name, "\x00", ""))
	p.Description = strings.ReplaceAll(p.Description, "\x00", "")

	fields := map[string]string{}
	switch {
	case p.Name == "":
		fields["name"] = "name is required"
	case len(p.Name) > MaxNameLen:
		fields["name"] = "name cannot exceed 255 characters"
	case !namePattern.MatchString(p.Name):
		fields["name"] = "name may only contain letters, digits, spaces, hyphens, underscores and dots"
	}
	if len(p.Description) > MaxDescriptionLen {
		fields["description"] = "description cannot exceed 1000 characters"
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}

// Create validates the name, persists the workspace, and enables every
// environment type from the catalog in the same transaction.
func (s *Service) Create(ctx context.Context, ownerID string, p Params) (*domain.Workspace, error) {
	if err := validateParams(&p); err != nil {
		return nil, err
	}

	types, err := s.store.ListEnvironmentTypes(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ws := &domain.Workspace{
		ID:          uuid.New(),
		Name:        p.Name,
		Description: p.Description,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	envs := make([]domain.WorkspaceEnvironment, len(types))
	for i, t := range types {
		envs[i] = domain.WorkspaceEnvironment{
			ID:                uuid.New(),
			WorkspaceID:       ws.ID,
			EnvironmentTypeID: t.ID,
			EnvironmentSlug:   t.Slug,
		}
	}

	if err := s.store.CreateWorkspace(ctx, ws, envs); err != nil {
		return nil, err
	}

	s.logger.Info("workspace created",
		slog.String("workspace_id", ws.ID.String()),
		slog.String("name", ws.Name),
		slog.Int("environments", len(envs)),
	)
	return ws, nil
}

// Get returns one workspace under the owner scope.
func (s *Service) Get(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Workspace, error) {
	return s.store.GetWorkspace(ctx, ownerID, id)
}

// List returns all of the caller's workspaces.
func (s *Service) List(ctx context.Context, ownerID string) ([]domain.Workspace, error) {
	return s.store.ListWorkspaces(ctx, ownerID)
}

// Update renames or re-describes a workspace. Same validation as Create.
func (s *Service) Update(ctx context.Context, ownerID string, id uuid.UUID, p Params) (*domain.Workspace, error) {
	ws, err := s.store.GetWorkspace(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := validateParams(&p); err != nil {
		return nil, err
	}
	ws.Name = p.Name
	ws.Description = p.Description
	ws.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateWorkspace(ctx, ownerID, ws); err != nil {
		return nil, err
	}
	return ws, nil
}

// Delete removes the workspace and everything inside it. The store runs the
// ordered cascade so the protective artifact-to-environment foreign key never
// blocks a whole-workspace delete.
func (s *Service) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	if err := s.store.DeleteWorkspace(ctx, ownerID, id); err != nil {
		return err
	}
	s.logger.Info("workspace deleted", slog.String("workspace_id", id.String()))
	return nil
}

// EnvironmentTypes returns the seeded catalog, in display order.
func (s *Service) EnvironmentTypes(ctx context.Context) ([]domain.EnvironmentType, error) {
	return s.store.ListEnvironmentTypes(ctx)
}

// Environments returns the workspace's enabled environments.
func (s *Service) Environments(ctx context.Context, ownerID string, workspaceID uuid.UUID) ([]domain.WorkspaceEnvironment, error) {
	return s.store.ListEnvironments(ctx, ownerID, workspaceID)
}

// EnableEnvironment turns an environment type on for the workspace.
// Enabling an already-enabled environment returns domain.ErrConflict.
func (s *Service) EnableEnvironment(ctx context.Context, ownerID string, workspaceID uuid.UUID, slug string) (*domain.WorkspaceEnvironment, error) {
	return s.store.EnableEnvironment(ctx, ownerID, workspaceID, slug)
}

// DisableEnvironment turns an environment off. Fails with domain.ErrConflict
// while artifacts still live in it; callers must move or delete them first.
func (s *Service) DisableEnvironment(ctx context.Context, ownerID string, workspaceID uuid.UUID, slug string) error {
	return s.store.DisableEnvironment(ctx, ownerID, workspaceID, slug)
}

// Bundle is a portable snapshot of one workspace, suitable for re-import.
type Bundle struct {
	Name         string           `json:"name"`
	Description  string           `json:"description,omitempty"`
	Environments []string         `json:"environments"`
	Tags         []string         `json:"tags,omitempty"`
	Artifacts    []BundleArtifact `json:"artifacts"`
	ExportedAt   time.Time        `json:"exported_at"`
}

// BundleArtifact is one artifact inside a bundle. Value is empty unless the
// export explicitly included secret values.
type BundleArtifact struct {
	Kind        domain.Kind    `json:"kind"`
	Environment string         `json:"environment"`
	Key         string         `json:"key,omitempty"`
	Value       string         `json:"value,omitempty"`
	ValueMasked bool           `json:"value_masked,omitempty"`
	Title       string         `json:"title,omitempty"`
	Content     string         `json:"content,omitempty"`
	URL         string         `json:"url,omitempty"`
	Notes       string         `json:"notes,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
}

// Export snapshots a workspace into a bundle. When includeValues is set,
// ENV_VAR plaintext is included and an EXPORT access-log row is written per
// secret before the bundle is returned; if recording fails, so does the
// export. Without includeValues secret values are masked out and no audit
// rows are written.
func (s *Service) Export(ctx context.Context, ownerID string, workspaceID uuid.UUID, includeValues bool, ip, userAgent string) (*Bundle, error) {
	ws, err := s.store.GetWorkspace(ctx, ownerID, workspaceID)
	if err != nil {
		return nil, err
	}
	envs, err := s.store.ListEnvironments(ctx, ownerID, workspaceID)
	if err != nil {
		return nil, err
	}
	tags, err := s.tags.ListTags(ctx, ownerID, workspaceID)
	if err != nil {
		return nil, err
	}
	arts, err := s.artStore.List(ctx, ownerID, workspaceID, artifact.Filter{})
	if err != nil {
		return nil, err
	}

	if includeValues {
		if s.exports == nil {
			return nil, fmt.Errorf("%w: value-bearing export is disabled", domain.ErrInvalidOperation)
		}
		var secretIDs []uuid.UUID
		for _, a := range arts {
			if a.Kind == domain.KindEnvVar {
				secretIDs = append(secretIDs, a.ID)
			}
		}
		if len(secretIDs) > 0 {
			if err := s.exports.RecordExport(ctx, ownerID, secretIDs, ip, userAgent); err != nil {
				return nil, fmt.Errorf("recording export audit: %w", err)
			}
		}
	}

	b := &Bundle{
		Name:        ws.Name,
		Description: ws.Description,
		ExportedAt:  time.Now().UTC(),
	}
	for _, env := range envs {
		b.Environments = append(b.Environments, env.EnvironmentSlug)
	}
	for _, t := range tags {
		b.Tags = append(b.Tags, t.Name)
	}
	for _, a := range arts {
		ba := BundleArtifact{
			Kind:        a.Kind,
			Environment: a.EnvironmentSlug,
			Notes:       a.Notes,
			Metadata:    a.Metadata,
		}
		switch a.Kind {
		case domain.KindEnvVar:
			ba.Key = a.EnvVar.Key
			if includeValues {
				ba.Value = a.EnvVar.Value
			} else {
				ba.ValueMasked = true
			}
		case domain.KindPrompt:
			ba.Title = a.Prompt.Title
			ba.Content = a.Prompt.Content
		case domain.KindDocLink:
			ba.Title = a.DocLink.Title
			ba.URL = a.DocLink.URL
		}
		for _, t := range a.Tags {
			ba.Tags = append(ba.Tags, t.Name)
		}
		b.Artifacts = append(b.Artifacts, ba)
	}

	s.logger.Info("workspace exported",
		slog.String("workspace_id", workspaceID.String()),
		slog.Int("artifacts", len(b.Artifacts)),
		slog.Bool("include_values", includeValues),
	)
	return b, nil
}

// ImportError reports one artifact entry that could not be imported.
type ImportError struct {
	Index  int               `json:"index"`
	Fields map[string]string `json:"fields,omitempty"`
	Error  string            `json:"error"`
}

// ImportResult summarizes an import: the created workspace (possibly renamed
// with a " - N" suffix), how many artifacts landed, and per-index failures.
type ImportResult struct {
	Workspace *domain.Workspace `json:"workspace"`
	Imported  int               `json:"imported"`
	Errors    []ImportError     `json:"errors,omitempty"`
}

// Import recreates a bundle as a fresh workspace for the caller. A name
// collision is resolved by suffixing " - 1", " - 2", and so on. Artifact
// entries import independently; bad entries are reported, not fatal.
func (s *Service) Import(ctx context.Context, ownerID string, b *Bundle) (*ImportResult, error) {
	ws, err := s.createWithSuffix(ctx, ownerID, Params{Name: b.Name, Description: b.Description})
	if err != nil {
		return nil, err
	}

	// Create restricts the bundle's environments by disabling the rest.
	// Auto-enablement gave the new workspace the full catalog.
	if len(b.Environments) > 0 {
		keep := make(map[string]bool, len(b.Environments))
		for _, slug := range b.Environments {
			keep[slug] = true
		}
		envs, err := s.store.ListEnvironments(ctx, ownerID, ws.ID)
		if err != nil {
			return nil, err
		}
		for _, env := range envs {
			if !keep[env.EnvironmentSlug] {
				if err := s.store.DisableEnvironment(ctx, ownerID, ws.ID, env.EnvironmentSlug); err != nil {
					return nil, err
				}
			}
		}
	}

	tagIDs := make(map[string]uuid.UUID, len(b.Tags))
	for _, name := range b.Tags {
		t := &domain.Tag{ID: uuid.New(), WorkspaceID: ws.ID, Name: name}
		if err := s.tags.CreateTag(ctx, ownerID, t); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				continue // duplicate tag names inside the bundle
			}
			return nil, err
		}
		tagIDs[name] = t.ID
	}

	res := &ImportResult{Workspace: ws}
	for i, ba := range b.Artifacts {
		p := artifact.Payload{
			Kind:        ba.Kind,
			Environment: ba.Environment,
			Key:         ba.Key,
			Value:       ba.Value,
			Title:       ba.Title,
			Content:     ba.Content,
			URL:         ba.URL,
			Notes:       ba.Notes,
			Metadata:    ba.Metadata,
		}
		for _, name := range ba.Tags {
			if id, ok := tagIDs[name]; ok {
				p.TagIDs = append(p.TagIDs, id)
			}
		}
		if _, err := s.artifacts.Create(ctx, ownerID, ws.ID, p); err != nil {
			ie := ImportError{Index: i, Error: err.Error()}
			if ve, ok := domain.AsValidation(err); ok {
				ie.Fields = ve.Fields
			}
			res.Errors = append(res.Errors, ie)
			continue
		}
		res.Imported++
	}

	s.logger.Info("workspace imported",
		slog.String("workspace_id", ws.ID.String()),
		slog.String("name", ws.Name),
		slog.Int("imported", res.Imported),
		slog.Int("failed", len(res.Errors)),
	)
	return res, nil
}

// createWithSuffix retries Create under alternative names until one is free.
// Relying on the conflict from the unique constraint keeps this race-safe.
func (s *Service) createWithSuffix(ctx context.Context, ownerID string, p Params) (*domain.Workspace, error) {
	base := p.Name
	for n := 0; n <= importSuffixCap; n++ {
		if n > 0 {
			p.Name = fmt.Sprintf("%s - %d", base, n)
		}
		ws, err := s.Create(ctx, ownerID, p)
		if err == nil {
			return ws, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: no free name for %q after %d attempts", domain.ErrConflict, base, importSuffixCap)
}
