package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/devdepot/depot/internal/domain"
)

// OwnerScope returns a GORM scope that filters workspaces by owner.
// Must be applied to every workspace query in every repository method:
// a workspace owned by someone else is indistinguishable from a missing one.
func OwnerScope(ownerID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("owner_id = ?", ownerID)
	}
}

// workspaceGuard verifies the caller owns the workspace before any query
// against child tables, which carry no owner column of their own. Returns
// domain.ErrNotFound for both missing and foreign workspaces.
func workspaceGuard(ctx context.Context, db *gorm.DB, ownerID string, workspaceID uuid.UUID) error {
	var count int64
	err := db.WithContext(ctx).
		Model(&WorkspaceModel{}).
		Scopes(OwnerScope(ownerID)).
		Where("id = ?", workspaceID).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("checking workspace ownership: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: workspace %s", domain.ErrNotFound, workspaceID)
	}
	return nil
}

// ownedArtifacts joins artifacts to workspaces so cross-workspace queries
// stay inside the caller's ownership boundary.
func ownedArtifacts(db *gorm.DB, ownerID string) *gorm.DB {
	return db.Model(&ArtifactModel{}).
		Joins("JOIN workspaces ON workspaces.id = artifacts.workspace_id").
		Where("workspaces.owner_id = ?", ownerID)
}

// notFoundAs rewrites GORM's record-not-found into the domain sentinel.
func notFoundAs(err error, what string, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, what, id)
	}
	return err
}
