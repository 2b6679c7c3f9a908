// Package artifact implements the polymorphic record engine: kind-specific
// validation, uniqueness scoping, tagging, and owner-scoped CRUD over the
// three artifact kinds (ENV_VAR, PROMPT, DOC_LINK).
package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/devdepot/depot/internal/domain"
	"github.com/devdepot/depot/internal/ratelimit"
)

// Store is the owner-scoped persistence contract for artifacts.
// Every method filters by the caller's owner identity; a resource that exists
// but belongs to someone else behaves exactly like a missing one
// (domain.ErrNotFound). Uniqueness is enforced by database constraints:
// Create and Update return domain.ErrConflict when a concurrent writer wins
// the race, regardless of any advisory pre-check.
type Store interface {
	Create(ctx context.Context, ownerID string, a *domain.Artifact) error
	Get(ctx context.Context, ownerID string, workspaceID, artifactID uuid.UUID) (*domain.Artifact, error)
	Update(ctx context.Context, ownerID string, a *domain.Artifact) error
	Delete(ctx context.Context, ownerID string, workspaceID, artifactID uuid.UUID) error
	List(ctx context.Context, ownerID string, workspaceID uuid.UUID, f Filter) ([]domain.Artifact, error)
	Search(ctx context.Context, ownerID string, f GlobalFilter) ([]domain.Artifact, error)

	// Exists is the advisory uniqueness pre-check. The database constraint is
	// authoritative; this only exists to produce friendlier error messages.
	Exists(ctx context.Context, ownerID string, workspaceID uuid.UUID, kind domain.Kind, identifier, envSlug string, excludeID uuid.UUID) (bool, error)

	// ResolveEnvironment maps an environment slug to the workspace's
	// enablement join row, under the owner scope.
	ResolveEnvironment(ctx context.Context, ownerID string, workspaceID uuid.UUID, slug string) (*domain.WorkspaceEnvironment, error)
}

// TagStore is the owner-scoped persistence contract for tags.
type TagStore interface {
	CreateTag(ctx context.Context, ownerID string, t *domain.Tag) error
	ListTags(ctx context.Context, ownerID string, workspaceID uuid.UUID) ([]domain.Tag, error)
	GetTags(ctx context.Context, ownerID string, workspaceID uuid.UUID, ids []uuid.UUID) ([]domain.Tag, error)
	DeleteTag(ctx context.Context, ownerID string, workspaceID, tagID uuid.UUID) error
	DeleteTags(ctx context.Context, ownerID string, workspaceID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error)
}

// Filter narrows a workspace-scoped artifact listing.
// Search is a case-insensitive substring match with OR semantics across
// key/title/content/notes/url.
type Filter struct {
	Kind        domain.Kind
	Environment string // Environment slug, e.g. "DEV".
	Search      string
}

// GlobalFilter narrows a cross-workspace search. Results are always scoped
// to the caller's workspaces.
type GlobalFilter struct {
	Query       string
	Kind        domain.Kind
	Environment string
	WorkspaceID uuid.UUID // uuid.Nil = all workspaces.
	Limit       int       // 0 = default cap.
}

// globalSearchCap bounds cross-workspace search results.
const globalSearchCap = 200

// Service wires validation, uniqueness pre-checks, and tag resolution in
// front of the store. The search throttle lives here so no transport can
// bypass it: bulk enumeration of secrets by repeated search is itself a
// disclosure risk.
type Service struct {
	store         Store
	tags          TagStore
	validator     *Validator
	searchLimiter *ratelimit.Limiter
	logger        *slog.Logger
}

// NewService creates an artifact service. searchLimiter may be nil to
// disable search throttling (tests).
func NewService(store Store, tags TagStore, searchLimiter *ratelimit.Limiter, logger *slog.Logger) *Service {
	return &Service{
		store:         store,
		tags:          tags,
		validator:     NewValidator(),
		searchLimiter: searchLimiter,
		logger:        logger,
	}
}

// Create validates the payload and persists a new artifact under the given
// workspace and environment.
func (s *Service) Create(ctx context.Context, ownerID string, workspaceID uuid.UUID, p Payload) (*domain.Artifact, error) {
	p.sanitize()
	if err := s.validator.ValidatePayload(&p); err != nil {
		return nil, err
	}

	env, err := s.store.ResolveEnvironment(ctx, ownerID, workspaceID, p.Environment)
	if err != nil {
		return nil, err
	}

	a := p.toArtifact()
	a.ID = uuid.New()
	a.WorkspaceID = workspaceID
	a.WorkspaceEnvID = env.ID
	a.EnvironmentSlug = env.EnvironmentSlug
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	if err := s.checkUnique(ctx, ownerID, a, uuid.Nil); err != nil {
		return nil, err
	}
	if err := s.resolveTags(ctx, ownerID, workspaceID, p.TagIDs, a); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, ownerID, a); err != nil {
		return nil, err
	}

	s.logger.Info("artifact created",
		slog.String("artifact_id", a.ID.String()),
		slog.String("workspace_id", workspaceID.String()),
		slog.String("kind", string(a.Kind)),
		slog.String("environment", a.EnvironmentSlug),
	)
	return a, nil
}

// Update re-runs full validation against the merged record and persists it.
// Kind is immutable: a payload naming a different kind fails validation.
func (s *Service) Update(ctx context.Context, ownerID string, workspaceID, artifactID uuid.UUID, p Payload) (*domain.Artifact, error) {
	existing, err := s.store.Get(ctx, ownerID, workspaceID, artifactID)
	if err != nil {
		return nil, err
	}

	if p.Kind != "" && p.Kind != existing.Kind {
		return nil, domain.NewValidationError("kind", "kind is immutable")
	}
	p.Kind = existing.Kind

	p.sanitize()
	if err := s.validator.ValidatePayload(&p); err != nil {
		return nil, err
	}

	merged := p.toArtifact()
	merged.ID = existing.ID
	merged.WorkspaceID = existing.WorkspaceID
	merged.CreatedAt = existing.CreatedAt
	merged.UpdatedAt = time.Now().UTC()

	// Environment may move, as long as the target is enabled.
	envSlug := p.Environment
	if envSlug == "" {
		envSlug = existing.EnvironmentSlug
	}
	env, err := s.store.ResolveEnvironment(ctx, ownerID, workspaceID, envSlug)
	if err != nil {
		return nil, err
	}
	merged.WorkspaceEnvID = env.ID
	merged.EnvironmentSlug = env.EnvironmentSlug

	if err := s.checkUnique(ctx, ownerID, merged, existing.ID); err != nil {
		return nil, err
	}
	if p.TagIDs != nil {
		if err := s.resolveTags(ctx, ownerID, workspaceID, p.TagIDs, merged); err != nil {
			return nil, err
		}
	} else {
		merged.Tags = existing.Tags
	}

	if err := s.store.Update(ctx, ownerID, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// Get returns one artifact under the owner scope.
func (s *Service) Get(ctx context.Context, ownerID string, workspaceID, artifactID uuid.UUID) (*domain.Artifact, error) {
	return s.store.Get(ctx, ownerID, workspaceID, artifactID)
}

// Delete removes one artifact under the owner scope.
func (s *Service) Delete(ctx context.Context, ownerID string, workspaceID, artifactID uuid.UUID) error {
	if err := s.store.Delete(ctx, ownerID, workspaceID, artifactID); err != nil {
		return err
	}
	s.logger.Info("artifact deleted",
		slog.String("artifact_id", artifactID.String()),
		slog.String("workspace_id", workspaceID.String()),
	)
	return nil
}

// List returns masked views of the workspace's artifacts. A non-empty search
// term counts against the caller's search throttle.
func (s *Service) List(ctx context.Context, ownerID string, workspaceID uuid.UUID, f Filter) ([]View, error) {
	if f.Search != "" && s.searchLimiter != nil {
		if err := s.searchLimiter.Allow(ownerID); err != nil {
			return nil, err
		}
	}
	arts, err := s.store.List(ctx, ownerID, workspaceID, f)
	if err != nil {
		return nil, err
	}
	return NewViews(arts), nil
}

// Search returns masked views across all of the caller's workspaces,
// newest first, capped at 200 rows. Always throttled.
func (s *Service) Search(ctx context.Context, ownerID string, f GlobalFilter) ([]View, error) {
	if s.searchLimiter != nil {
		if err := s.searchLimiter.Allow(ownerID); err != nil {
			return nil, err
		}
	}
	if f.Limit <= 0 || f.Limit > globalSearchCap {
		f.Limit = globalSearchCap
	}
	arts, err := s.store.Search(ctx, ownerID, f)
	if err != nil {
		return nil, err
	}
	return NewViews(arts), nil
}

// ListDocs aggregates DOC_LINK artifacts across all of the caller's
// workspaces, newest first.
func (s *Service) ListDocs(ctx context.Context, ownerID string) ([]View, error) {
	arts, err := s.store.Search(ctx, ownerID, GlobalFilter{Kind: domain.KindDocLink, Limit: globalSearchCap})
	if err != nil {
		return nil, err
	}
	return NewViews(arts), nil
}

// Duplicate copies an artifact into another enabled environment of the same
// workspace. The target slot must be free.
func (s *Service) Duplicate(ctx context.Context, ownerID string, workspaceID, artifactID uuid.UUID, targetEnv string) (*domain.Artifact, error) {
	src, err := s.store.Get(ctx, ownerID, workspaceID, artifactID)
	if err != nil {
		return nil, err
	}

	env, err := s.store.ResolveEnvironment(ctx, ownerID, workspaceID, targetEnv)
	if err != nil {
		return nil, err
	}
	if env.ID == src.WorkspaceEnvID {
		return nil, domain.NewValidationError("environment", "artifact is already in this environment")
	}

	dup := *src
	dup.ID = uuid.New()
	dup.WorkspaceEnvID = env.ID
	dup.EnvironmentSlug = env.EnvironmentSlug
	now := time.Now().UTC()
	dup.CreatedAt = now
	dup.UpdatedAt = now
	// Copy variant fields so the duplicate does not alias the source.
	switch {
	case src.EnvVar != nil:
		ev := *src.EnvVar
		dup.EnvVar = &ev
	case src.Prompt != nil:
		pr := *src.Prompt
		dup.Prompt = &pr
	case src.DocLink != nil:
		dl := *src.DocLink
		dup.DocLink = &dl
	}

	if err := s.checkUnique(ctx, ownerID, &dup, uuid.Nil); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, ownerID, &dup); err != nil {
		return nil, err
	}
	return &dup, nil
}

// BulkError reports one failed entry of a bulk create.
type BulkError struct {
	Index  int               `json:"index"`
	Fields map[string]string `json:"fields,omitempty"`
	Error  string            `json:"error"`
}

// BulkResult is the partial-success outcome of a bulk create: valid entries
// are persisted, invalid ones reported per index.
type BulkResult struct {
	Created []View      `json:"created"`
	Errors  []BulkError `json:"errors,omitempty"`
}

// BulkCreate creates many artifacts in one call. Each entry is validated and
// persisted independently; one bad entry does not fail the batch.
func (s *Service) BulkCreate(ctx context.Context, ownerID string, workspaceID uuid.UUID, payloads []Payload) (*BulkResult, error) {
	res := &BulkResult{}
	for i, p := range payloads {
		a, err := s.Create(ctx, ownerID, workspaceID, p)
		if err != nil {
			be := BulkError{Index: i, Error: err.Error()}
			if ve, ok := domain.AsValidation(err); ok {
				be.Fields = ve.Fields
			}
			res.Errors = append(res.Errors, be)
			continue
		}
		res.Created = append(res.Created, NewView(a))
	}
	return res, nil
}

// checkUnique is the advisory pre-check for the (workspace, kind,
// discriminant, environment) uniqueness scope. The database constraint
// remains authoritative; pre-check-then-write is inherently racy.
func (s *Service) checkUnique(ctx context.Context, ownerID string, a *domain.Artifact, excludeID uuid.UUID) error {
	taken, err := s.store.Exists(ctx, ownerID, a.WorkspaceID, a.Kind, a.Identifier(), a.EnvironmentSlug, excludeID)
	if err != nil {
		return err
	}
	if taken {
		field := "title"
		if a.Kind == domain.KindEnvVar {
			field = "key"
		}
		return fmt.Errorf("%w: %s %q already exists in %s", domain.ErrConflict, field, a.Identifier(), a.EnvironmentSlug)
	}
	return nil
}

// resolveTags verifies every referenced tag belongs to the artifact's
// workspace and attaches the resolved rows.
func (s *Service) resolveTags(ctx context.Context, ownerID string, workspaceID uuid.UUID, ids []uuid.UUID, a *domain.Artifact) error {
	if len(ids) == 0 {
		a.Tags = nil
		return nil
	}
	tags, err := s.tags.GetTags(ctx, ownerID, workspaceID, ids)
	if err != nil {
		return err
	}
	if len(tags) != len(ids) {
		return domain.NewValidationError("tags", "tags must belong to the artifact's workspace")
	}
	a.Tags = tags
	return nil
}
