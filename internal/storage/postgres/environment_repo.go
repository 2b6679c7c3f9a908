package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/devdepot/depot/internal/domain"
)

// Environment catalog and per-workspace enablement methods of
// workspace.Store, implemented on WorkspaceRepository.

func (r *WorkspaceRepository) ListEnvironmentTypes(ctx context.Context) ([]domain.EnvironmentType, error) {
	var models []EnvironmentTypeModel
	err := r.db.WithContext(ctx).
		Order("display_order ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing environment types: %w", err)
	}
	out := make([]domain.EnvironmentType, len(models))
	for i := range models {
		out[i] = toEnvironmentTypeDomain(&models[i])
	}
	return out, nil
}

func (r *WorkspaceRepository) ListEnvironments(ctx context.Context, ownerID string, workspaceID uuid.UUID) ([]domain.WorkspaceEnvironment, error) {
	if err := workspaceGuard(ctx, r.db, ownerID, workspaceID); err != nil {
		return nil, err
	}
	var models []WorkspaceEnvironmentModel
	err := r.db.WithContext(ctx).
		Joins("JOIN environment_types ON environment_types.id = workspace_environments.environment_type_id").
		Where("workspace_environments.workspace_id = ?", workspaceID).
		Order("environment_types.display_order ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing workspace environments: %w", err)
	}
	out := make([]domain.WorkspaceEnvironment, len(models))
	for i := range models {
		out[i] = toWorkspaceEnvDomain(&models[i])
	}
	return out, nil
}

func (r *WorkspaceRepository) EnableEnvironment(ctx context.Context, ownerID string, workspaceID uuid.UUID, slug string) (*domain.WorkspaceEnvironment, error) {
	if err := workspaceGuard(ctx, r.db, ownerID, workspaceID); err != nil {
		return nil, err
	}
	var envType EnvironmentTypeModel
	if err := r.db.WithContext(ctx).First(&envType, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: environment %q", domain.ErrNotFound, slug)
		}
		return nil, err
	}

	model := WorkspaceEnvironmentModel{
		ID:                uuid.New(),
		WorkspaceID:       workspaceID,
		EnvironmentTypeID: envType.ID,
		EnvironmentSlug:   envType.Slug,
		CreatedAt:         time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return nil, fmt.Errorf("enabling environment %q: %w", slug, translateConstraint(err))
	}
	env := toWorkspaceEnvDomain(&model)
	return &env, nil
}

// DisableEnvironment deletes the enablement row. The artifact count
// pre-check produces a clear message; the RESTRICT constraint remains the
// authority if a writer races the check.
func (r *WorkspaceRepository) DisableEnvironment(ctx context.Context, ownerID string, workspaceID uuid.UUID, slug string) error {
	if err := workspaceGuard(ctx, r.db, ownerID, workspaceID); err != nil {
		return err
	}
	var model WorkspaceEnvironmentModel
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND environment_slug = ?", workspaceID, slug).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: environment %q is not enabled", domain.ErrNotFound, slug)
		}
		return err
	}

	var inUse int64
	if err := r.db.WithContext(ctx).
		Model(&ArtifactModel{}).
		Where("workspace_env_id = ?", model.ID).
		Count(&inUse).Error; err != nil {
		return fmt.Errorf("counting artifacts in environment %q: %w", slug, err)
	}
	if inUse > 0 {
		return fmt.Errorf("%w: environment %q still holds %d artifact(s)", domain.ErrConflict, slug, inUse)
	}

	if err := r.db.WithContext(ctx).Delete(&WorkspaceEnvironmentModel{}, "id = ?", model.ID).Error; err != nil {
		return fmt.Errorf("disabling environment %q: %w", slug, translateConstraint(err))
	}
	return nil
}
