package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/devdepot/depot/internal/domain"
)

// WorkspaceRepository implements workspace.Store with PostgreSQL.
type WorkspaceRepository struct {
	db *gorm.DB
}

// NewWorkspaceRepository creates a WorkspaceRepository.
func NewWorkspaceRepository(db *gorm.DB) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

// CreateWorkspace persists the workspace and its initial environment
// enablements in one transaction. A duplicate (owner, name) surfaces as
// domain.ErrConflict from the unique index.
func (r *WorkspaceRepository) CreateWorkspace(ctx context.Context, ws *domain.Workspace, envs []domain.WorkspaceEnvironment) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := toWorkspaceModel(ws)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		for i := range envs {
			em := WorkspaceEnvironmentModel{
				ID:                envs[i].ID,
				WorkspaceID:       envs[i].WorkspaceID,
				EnvironmentTypeID: envs[i].EnvironmentTypeID,
				EnvironmentSlug:   envs[i].EnvironmentSlug,
			}
			if err := tx.Create(&em).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("creating workspace: %w", translateConstraint(err))
	}
	return nil
}

func (r *WorkspaceRepository) GetWorkspace(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Workspace, error) {
	var model WorkspaceModel
	err := r.db.WithContext(ctx).
		Scopes(OwnerScope(ownerID)).
		First(&model, "id = ?", id).Error
	if err != nil {
		return nil, notFoundAs(err, "workspace", id)
	}
	return toWorkspaceDomain(&model), nil
}

func (r *WorkspaceRepository) ListWorkspaces(ctx context.Context, ownerID string) ([]domain.Workspace, error) {
	var models []WorkspaceModel
	err := r.db.WithContext(ctx).
		Scopes(OwnerScope(ownerID)).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing workspaces: %w", err)
	}
	out := make([]domain.Workspace, len(models))
	for i := range models {
		out[i] = *toWorkspaceDomain(&models[i])
	}
	return out, nil
}

func (r *WorkspaceRepository) UpdateWorkspace(ctx context.Context, ownerID string, ws *domain.Workspace) error {
	model := toWorkspaceModel(ws)
	result := r.db.WithContext(ctx).
		Scopes(OwnerScope(ownerID)).
		Where("id = ?", ws.ID).
		Select("name", "description", "updated_at").
		Updates(&model)
	if result.Error != nil {
		return fmt.Errorf("updating workspace: %w", translateConstraint(result.Error))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: workspace %s", domain.ErrNotFound, ws.ID)
	}
	return nil
}

// DeleteWorkspace runs the ordered cascade in one transaction: tag joins,
// artifacts, tags, environment enablements, then the workspace row. The
// order matters — the RESTRICT constraint on workspace_environments would
// reject any other sequence while artifacts remain.
func (r *WorkspaceRepository) DeleteWorkspace(ctx context.Context, ownerID string, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := workspaceGuard(ctx, tx, ownerID, id); err != nil {
			return err
		}
		if err := tx.Exec(
			"DELETE FROM artifact_tags WHERE artifact_id IN (SELECT id FROM artifacts WHERE workspace_id = ?)", id,
		).Error; err != nil {
			return fmt.Errorf("deleting artifact tag joins: %w", err)
		}
		if err := tx.Where("workspace_id = ?", id).Delete(&ArtifactModel{}).Error; err != nil {
			return fmt.Errorf("deleting artifacts: %w", err)
		}
		if err := tx.Where("workspace_id = ?", id).Delete(&TagModel{}).Error; err != nil {
			return fmt.Errorf("deleting tags: %w", err)
		}
		if err := tx.Where("workspace_id = ?", id).Delete(&WorkspaceEnvironmentModel{}).Error; err != nil {
			return fmt.Errorf("deleting environment enablements: %w", err)
		}
		if err := tx.Delete(&WorkspaceModel{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("deleting workspace: %w", err)
		}
		return nil
	})
}
