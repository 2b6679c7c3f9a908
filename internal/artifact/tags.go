package artifact

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devdepot/depot/internal/domain"
)

// MaxTagNameLen bounds tag names.
const MaxTagNameLen = 100

// CreateTag adds a workspace-scoped label. (workspace, name) is unique.
func (s *Service) CreateTag(ctx context.Context, ownerID string, workspaceID uuid.UUID, name string) (*domain.Tag, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\x00", ""))
	if name == "" {
		return nil, domain.NewValidationError("name", "name is required")
	}
	if len(name) > MaxTagNameLen {
		return nil, domain.NewValidationError("name", "name cannot exceed 100 characters")
	}

	now := time.Now().UTC()
	t := &domain.Tag{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Name:        name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tags.CreateTag(ctx, ownerID, t); err != nil {
		return nil, err
	}
	s.logger.Info("tag created",
		slog.String("tag_id", t.ID.String()),
		slog.String("workspace_id", workspaceID.String()),
		slog.String("name", name),
	)
	return t, nil
}

// ListTags returns the workspace's tags with usage counts.
func (s *Service) ListTags(ctx context.Context, ownerID string, workspaceID uuid.UUID) ([]domain.Tag, error) {
	return s.tags.ListTags(ctx, ownerID, workspaceID)
}

// DeleteTag removes one tag. Artifacts keep their other tags; the join rows
// for this tag go with it.
func (s *Service) DeleteTag(ctx context.Context, ownerID string, workspaceID, tagID uuid.UUID) error {
	return s.tags.DeleteTag(ctx, ownerID, workspaceID, tagID)
}

// DeleteTags removes many tags in one call and returns the IDs actually
// deleted. Unknown or foreign IDs are skipped, not errors.
func (s *Service) DeleteTags(ctx context.Context, ownerID string, workspaceID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, domain.NewValidationError("ids", "at least one tag id is required")
	}
	deleted, err := s.tags.DeleteTags(ctx, ownerID, workspaceID, ids)
	if err != nil {
		return nil, err
	}
	s.logger.Info("tags deleted",
		slog.String("workspace_id", workspaceID.String()),
		slog.Int("count", len(deleted)),
	)
	return deleted, nil
}
