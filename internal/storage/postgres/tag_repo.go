package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/devdepot/depot/internal/domain"
)

// TagRepository implements artifact.TagStore with PostgreSQL.
type TagRepository struct {
	db *gorm.DB
}

// NewTagRepository creates a TagRepository.
func NewTagRepository(db *gorm.DB) *TagRepository {
	return &TagRepository{db: db}
}

func (r *TagRepository) CreateTag(ctx context.Context, ownerID string, t *domain.Tag) error {
	if err := workspaceGuard(ctx, r.db, ownerID, t.WorkspaceID); err != nil {
		return err
	}
	if t.CreatedAt.IsZero() {
		now := time.Now().UTC()
		t.CreatedAt = now
		t.UpdatedAt = now
	}
	model := toTagModel(t)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("creating tag: %w", translateConstraint(err))
	}
	return nil
}

// ListTags returns the workspace's tags with usage counts derived from the
// join table, alphabetical.
func (r *TagRepository) ListTags(ctx context.Context, ownerID string, workspaceID uuid.UUID) ([]domain.Tag, error) {
	if err := workspaceGuard(ctx, r.db, ownerID, workspaceID); err != nil {
		return nil, err
	}

	type tagCountRow struct {
		ID          uuid.UUID
		WorkspaceID uuid.UUID
		Name        string
		UsageCount  int
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}
	var rows []tagCountRow
	err := r.db.WithContext(ctx).
		Table("tags").
		Select("tags.id, tags.workspace_id, tags.name, tags.created_at, tags.updated_at, COUNT(artifact_tags.artifact_id) AS usage_count").
		Joins("LEFT JOIN artifact_tags ON artifact_tags.tag_id = tags.id").
		Where("tags.workspace_id = ?", workspaceID).
		Group("tags.id, tags.workspace_id, tags.name, tags.created_at, tags.updated_at").
		Order("tags.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}

	out := make([]domain.Tag, len(rows))
	for i, row := range rows {
		out[i] = domain.Tag{
			ID:          row.ID,
			WorkspaceID: row.WorkspaceID,
			Name:        row.Name,
			UsageCount:  row.UsageCount,
			CreatedAt:   row.CreatedAt,
			UpdatedAt:   row.UpdatedAt,
		}
	}
	return out, nil
}

func (r *TagRepository) GetTags(ctx context.Context, ownerID string, workspaceID uuid.UUID, ids []uuid.UUID) ([]domain.Tag, error) {
	if err := workspaceGuard(ctx, r.db, ownerID, workspaceID); err != nil {
		return nil, err
	}
	var models []TagModel
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND id IN ?", workspaceID, ids).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("getting tags: %w", err)
	}
	out := make([]domain.Tag, len(models))
	for i := range models {
		out[i] = toTagDomain(&models[i])
	}
	return out, nil
}

func (r *TagRepository) DeleteTag(ctx context.Context, ownerID string, workspaceID, tagID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := workspaceGuard(ctx, tx, ownerID, workspaceID); err != nil {
			return err
		}
		if err := tx.Where("tag_id = ?", tagID).Delete(&ArtifactTagModel{}).Error; err != nil {
			return fmt.Errorf("deleting tag joins: %w", err)
		}
		result := tx.Where("workspace_id = ?", workspaceID).
			Delete(&TagModel{}, "id = ?", tagID)
		if result.Error != nil {
			return fmt.Errorf("deleting tag %s: %w", tagID, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: tag %s", domain.ErrNotFound, tagID)
		}
		return nil
	})
}

// DeleteTags removes the workspace's tags matching ids and returns the IDs
// actually deleted. Foreign or unknown IDs are silently skipped.
func (r *TagRepository) DeleteTags(ctx context.Context, ownerID string, workspaceID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	var deleted []uuid.UUID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := workspaceGuard(ctx, tx, ownerID, workspaceID); err != nil {
			return err
		}
		var models []TagModel
		if err := tx.Where("workspace_id = ? AND id IN ?", workspaceID, ids).
			Find(&models).Error; err != nil {
			return fmt.Errorf("resolving tags: %w", err)
		}
		if len(models) == 0 {
			return nil
		}
		owned := make([]uuid.UUID, len(models))
		for i := range models {
			owned[i] = models[i].ID
		}
		if err := tx.Where("tag_id IN ?", owned).Delete(&ArtifactTagModel{}).Error; err != nil {
			return fmt.Errorf("deleting tag joins: %w", err)
		}
		if err := tx.Where("id IN ?", owned).Delete(&TagModel{}).Error; err != nil {
			return fmt.Errorf("deleting tags: %w", err)
		}
		deleted = owned
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// PruneOrphans deletes tags with no remaining join rows. Used by the
// maintenance pruner; not part of artifact.TagStore.
func (r *TagRepository) PruneOrphans(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("NOT EXISTS (SELECT 1 FROM artifact_tags WHERE artifact_tags.tag_id = tags.id)").
		Delete(&TagModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("pruning orphan tags: %w", result.Error)
	}
	return result.RowsAffected, nil
}
