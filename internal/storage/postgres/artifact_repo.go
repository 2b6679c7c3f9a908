package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/devdepot/depot/internal/artifact"
	"github.com/devdepot/depot/internal/domain"
)

// ArtifactRepository implements artifact.Store with PostgreSQL.
type ArtifactRepository struct {
	db *gorm.DB
}

// NewArtifactRepository creates an ArtifactRepository.
func NewArtifactRepository(db *gorm.DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

func (r *ArtifactRepository) Create(ctx context.Context, ownerID string, a *domain.Artifact) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := workspaceGuard(ctx, tx, ownerID, a.WorkspaceID); err != nil {
			return err
		}
		model := toArtifactModel(a)
		if err := tx.Create(&model).Error; err != nil {
			return translateConstraint(err)
		}
		return replaceTagJoins(tx, a.ID, a.Tags)
	})
	if err != nil {
		return fmt.Errorf("creating artifact: %w", err)
	}
	return nil
}

func (r *ArtifactRepository) Get(ctx context.Context, ownerID string, workspaceID, artifactID uuid.UUID) (*domain.Artifact, error) {
	if err := workspaceGuard(ctx, r.db, ownerID, workspaceID); err != nil {
		return nil, err
	}
	var model ArtifactModel
	err := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		First(&model, "id = ?", artifactID).Error
	if err != nil {
		return nil, notFoundAs(err, "artifact", artifactID)
	}
	a := toArtifactDomain(&model)
	if err := r.attachTags(ctx, []*domain.Artifact{a}); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *ArtifactRepository) Update(ctx context.Context, ownerID string, a *domain.Artifact) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := workspaceGuard(ctx, tx, ownerID, a.WorkspaceID); err != nil {
			return err
		}
		model := toArtifactModel(a)
		result := tx.Model(&ArtifactModel{}).
			Where("id = ? AND workspace_id = ?", a.ID, a.WorkspaceID).
			Select("workspace_env_id", "environment_slug", "uniq_token",
				"key", "value", "title", "content", "url", "notes", "metadata", "updated_at").
			Updates(&model)
		if result.Error != nil {
			return translateConstraint(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: artifact %s", domain.ErrNotFound, a.ID)
		}
		return replaceTagJoins(tx, a.ID, a.Tags)
	})
	if err != nil {
		return fmt.Errorf("updating artifact: %w", err)
	}
	return nil
}

func (r *ArtifactRepository) Delete(ctx context.Context, ownerID string, workspaceID, artifactID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := workspaceGuard(ctx, tx, ownerID, workspaceID); err != nil {
			return err
		}
		if err := tx.Where("artifact_id = ?", artifactID).Delete(&ArtifactTagModel{}).Error; err != nil {
			return fmt.Errorf("deleting artifact tag joins: %w", err)
		}
		result := tx.Where("workspace_id = ?", workspaceID).
			Delete(&ArtifactModel{}, "id = ?", artifactID)
		if result.Error != nil {
			return fmt.Errorf("deleting artifact %s: %w", artifactID, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: artifact %s", domain.ErrNotFound, artifactID)
		}
		return nil
	})
}

func (r *ArtifactRepository) List(ctx context.Context, ownerID string, workspaceID uuid.UUID, f artifact.Filter) ([]domain.Artifact, error) {
	if err := workspaceGuard(ctx, r.db, ownerID, workspaceID); err != nil {
		return nil, err
	}
	q := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID)
	if f.Kind != "" {
		q = q.Where("kind = ?", string(f.Kind))
	}
	if f.Environment != "" {
		q = q.Where("environment_slug = ?", f.Environment)
	}
	if f.Search != "" {
		q = q.Where(searchClause(), searchArgs(f.Search)...)
	}

	var models []ArtifactModel
	if err := q.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	return r.toDomainWithTags(ctx, models)
}

func (r *ArtifactRepository) Search(ctx context.Context, ownerID string, f artifact.GlobalFilter) ([]domain.Artifact, error) {
	q := ownedArtifacts(r.db.WithContext(ctx), ownerID)
	if f.WorkspaceID != uuid.Nil {
		q = q.Where("artifacts.workspace_id = ?", f.WorkspaceID)
	}
	if f.Kind != "" {
		q = q.Where("artifacts.kind = ?", string(f.Kind))
	}
	if f.Environment != "" {
		q = q.Where("artifacts.environment_slug = ?", f.Environment)
	}
	if f.Query != "" {
		q = q.Where(searchClause(), searchArgs(f.Query)...)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var models []ArtifactModel
	if err := q.Order("artifacts.created_at DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("searching artifacts: %w", err)
	}
	return r.toDomainWithTags(ctx, models)
}

func (r *ArtifactRepository) Exists(ctx context.Context, ownerID string, workspaceID uuid.UUID, kind domain.Kind, identifier, envSlug string, excludeID uuid.UUID) (bool, error) {
	if err := workspaceGuard(ctx, r.db, ownerID, workspaceID); err != nil {
		return false, err
	}
	q := r.db.WithContext(ctx).
		Model(&ArtifactModel{}).
		Where("workspace_id = ? AND kind = ? AND uniq_token = ? AND environment_slug = ?",
			workspaceID, string(kind), identifier, envSlug)
	if excludeID != uuid.Nil {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("checking artifact uniqueness: %w", err)
	}
	return count > 0, nil
}

func (r *ArtifactRepository) ResolveEnvironment(ctx context.Context, ownerID string, workspaceID uuid.UUID, slug string) (*domain.WorkspaceEnvironment, error) {
	if err := workspaceGuard(ctx, r.db, ownerID, workspaceID); err != nil {
		return nil, err
	}
	var model WorkspaceEnvironmentModel
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND environment_slug = ?", workspaceID, slug).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: environment %q is not enabled for this workspace", domain.ErrNotFound, slug)
		}
		return nil, err
	}
	env := toWorkspaceEnvDomain(&model)
	return &env, nil
}

// searchClause is the case-insensitive substring match, OR'd across the
// searchable columns. LOWER + LIKE behaves identically on both backends.
func searchClause() string {
	return "(LOWER(artifacts.key) LIKE ? OR LOWER(artifacts.title) LIKE ? OR LOWER(artifacts.content) LIKE ? OR LOWER(artifacts.notes) LIKE ? OR LOWER(artifacts.url) LIKE ?)"
}

func searchArgs(term string) []any {
	p := "%" + strings.ToLower(term) + "%"
	return []any{p, p, p, p, p}
}

func (r *ArtifactRepository) toDomainWithTags(ctx context.Context, models []ArtifactModel) ([]domain.Artifact, error) {
	arts := make([]domain.Artifact, len(models))
	ptrs := make([]*domain.Artifact, len(models))
	for i := range models {
		arts[i] = *toArtifactDomain(&models[i])
		ptrs[i] = &arts[i]
	}
	if err := r.attachTags(ctx, ptrs); err != nil {
		return nil, err
	}
	return arts, nil
}

// attachTags loads tag rows for a batch of artifacts in one query.
func (r *ArtifactRepository) attachTags(ctx context.Context, arts []*domain.Artifact) error {
	if len(arts) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(arts))
	for i, a := range arts {
		ids[i] = a.ID
	}

	type tagJoinRow struct {
		ArtifactID  uuid.UUID
		ID          uuid.UUID
		WorkspaceID uuid.UUID
		Name        string
	}
	var rows []tagJoinRow
	err := r.db.WithContext(ctx).
		Table("artifact_tags").
		Select("artifact_tags.artifact_id, tags.id, tags.workspace_id, tags.name").
		Joins("JOIN tags ON tags.id = artifact_tags.tag_id").
		Where("artifact_tags.artifact_id IN ?", ids).
		Order("tags.name ASC").
		Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("loading artifact tags: %w", err)
	}

	byArtifact := make(map[uuid.UUID][]domain.Tag, len(arts))
	for _, row := range rows {
		byArtifact[row.ArtifactID] = append(byArtifact[row.ArtifactID], domain.Tag{
			ID:          row.ID,
			WorkspaceID: row.WorkspaceID,
			Name:        row.Name,
		})
	}
	for _, a := range arts {
		a.Tags = byArtifact[a.ID]
	}
	return nil
}

// replaceTagJoins rewrites the artifact's tag join rows to match tags.
func replaceTagJoins(tx *gorm.DB, artifactID uuid.UUID, tags []domain.Tag) error {
	if err := tx.Where("artifact_id = ?", artifactID).Delete(&ArtifactTagModel{}).Error; err != nil {
		return fmt.Errorf("clearing tag joins: %w", err)
	}
	for _, t := range tags {
		join := ArtifactTagModel{ArtifactID: artifactID, TagID: t.ID}
		if err := tx.Create(&join).Error; err != nil {
			return fmt.Errorf("attaching tag %s: %w", t.ID, translateConstraint(err))
		}
	}
	return nil
}
