package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/devdepot/depot/internal/domain"
)

// SecretRepository implements secret.Store with PostgreSQL.
// The access log is append-only: no Update or Delete methods exist on this
// type — immutability is enforced at the interface level.
type SecretRepository struct {
	db *gorm.DB
}

// NewSecretRepository creates a SecretRepository.
func NewSecretRepository(db *gorm.DB) *SecretRepository {
	return &SecretRepository{db: db}
}

// Reveal loads the ENV_VAR artifact and appends the REVEAL audit row in one
// transaction. If the audit insert fails the transaction rolls back and no
// value is released.
func (r *SecretRepository) Reveal(ctx context.Context, ownerID string, workspaceID, artifactID uuid.UUID, ip, userAgent string) (*domain.Artifact, error) {
	var revealed *domain.Artifact
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := workspaceGuard(ctx, tx, ownerID, workspaceID); err != nil {
			return err
		}
		var model ArtifactModel
		err := tx.Where("workspace_id = ?", workspaceID).
			First(&model, "id = ?", artifactID).Error
		if err != nil {
			return notFoundAs(err, "artifact", artifactID)
		}
		if model.Kind != string(domain.KindEnvVar) {
			return fmt.Errorf("%w: only ENV_VAR artifacts can be revealed, got %s", domain.ErrInvalidOperation, model.Kind)
		}

		entry := AccessLogModel{
			ID:         uuid.New(),
			ArtifactID: artifactID,
			OwnerID:    ownerID,
			Action:     string(domain.AccessReveal),
			IP:         ip,
			UserAgent:  userAgent,
			CreatedAt:  time.Now().UTC(),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("appending access log: %w", err)
		}

		revealed = toArtifactDomain(&model)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return revealed, nil
}

// RecordExport appends one EXPORT row per artifact, all-or-nothing.
func (r *SecretRepository) RecordExport(ctx context.Context, ownerID string, artifactIDs []uuid.UUID, ip, userAgent string) error {
	if len(artifactIDs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	entries := make([]AccessLogModel, len(artifactIDs))
	for i, id := range artifactIDs {
		entries[i] = AccessLogModel{
			ID:         uuid.New(),
			ArtifactID: id,
			OwnerID:    ownerID,
			Action:     string(domain.AccessExport),
			IP:         ip,
			UserAgent:  userAgent,
			CreatedAt:  now,
		}
	}
	if err := r.db.WithContext(ctx).Create(&entries).Error; err != nil {
		return fmt.Errorf("appending export log: %w", err)
	}
	return nil
}

// ListAccessLog returns the artifact's disclosure history, newest first.
// The artifact lookup doubles as the ownership check.
func (r *SecretRepository) ListAccessLog(ctx context.Context, ownerID string, workspaceID, artifactID uuid.UUID) ([]domain.AccessLogEntry, error) {
	if err := workspaceGuard(ctx, r.db, ownerID, workspaceID); err != nil {
		return nil, err
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&ArtifactModel{}).
		Where("id = ? AND workspace_id = ?", artifactID, workspaceID).
		Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("checking artifact: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: artifact %s", domain.ErrNotFound, artifactID)
	}

	var models []AccessLogModel
	err = r.db.WithContext(ctx).
		Where("artifact_id = ?", artifactID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing access log: %w", err)
	}
	out := make([]domain.AccessLogEntry, len(models))
	for i := range models {
		out[i] = toAccessLogDomain(&models[i])
	}
	return out, nil
}
