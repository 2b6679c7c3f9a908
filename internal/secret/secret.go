// Package secret is the only path to unmasked ENV_VAR values. Every
// disclosure is rate limited per owner and recorded in the append-only
// access log before the value leaves the store.
package secret

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/devdepot/depot/internal/domain"
	"github.com/devdepot/depot/internal/ratelimit"
)

// Store is the transactional persistence contract for secret disclosure.
// Reveal and RecordExport are fail-closed: the value (or bundle) is released
// only if the matching audit rows committed in the same transaction.
type Store interface {
	// Reveal returns the artifact with its plaintext value after appending
	// the REVEAL audit row. Non-ENV_VAR artifacts fail with
	// domain.ErrInvalidOperation before any row is written.
	Reveal(ctx context.Context, ownerID string, workspaceID, artifactID uuid.UUID, ip, userAgent string) (*domain.Artifact, error)

	// RecordExport appends one EXPORT audit row per artifact.
	RecordExport(ctx context.Context, ownerID string, artifactIDs []uuid.UUID, ip, userAgent string) error

	// ListAccessLog returns the disclosure history for one artifact,
	// newest first.
	ListAccessLog(ctx context.Context, ownerID string, workspaceID, artifactID uuid.UUID) ([]domain.AccessLogEntry, error)
}

// Revealed is the one serialization in the system that carries an ENV_VAR
// value in plaintext.
type Revealed struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace"`
	Key         string `json:"key"`
	Value       string `json:"value"`
	Environment string `json:"environment"`
}

// Service enforces the reveal throttle in front of the store. The limiter
// lives here, not in the HTTP layer, so no transport can bypass it.
type Service struct {
	store   Store
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

// NewService creates a secret service. limiter may be nil to disable
// throttling (tests).
func NewService(store Store, limiter *ratelimit.Limiter, logger *slog.Logger) *Service {
	return &Service{store: store, limiter: limiter, logger: logger}
}

// Reveal discloses one ENV_VAR value. The throttle is checked first, so a
// rate-limited call has no side effects at all: no audit row, no value.
func (s *Service) Reveal(ctx context.Context, ownerID string, workspaceID, artifactID uuid.UUID, ip, userAgent string) (*Revealed, error) {
	if s.limiter != nil {
		if err := s.limiter.Allow(ownerID); err != nil {
			s.logger.Warn("reveal throttled",
				slog.String("workspace_id", workspaceID.String()),
				slog.String("artifact_id", artifactID.String()),
			)
			return nil, err
		}
	}

	a, err := s.store.Reveal(ctx, ownerID, workspaceID, artifactID, ip, userAgent)
	if err != nil {
		return nil, err
	}
	if a.EnvVar == nil {
		return nil, fmt.Errorf("%w: artifact %s has no secret value", domain.ErrInvalidOperation, artifactID)
	}

	s.logger.Info("secret revealed",
		slog.String("artifact_id", artifactID.String()),
		slog.String("workspace_id", workspaceID.String()),
		slog.String("key", a.EnvVar.Key),
	)
	return &Revealed{
		ID:          a.ID.String(),
		WorkspaceID: a.WorkspaceID.String(),
		Key:         a.EnvVar.Key,
		Value:       a.EnvVar.Value,
		Environment: a.EnvironmentSlug,
	}, nil
}

// RecordExport audits a value-bearing export. Not throttled: the export
// operation carries its own cost and the audit trail is the point.
func (s *Service) RecordExport(ctx context.Context, ownerID string, artifactIDs []uuid.UUID, ip, userAgent string) error {
	return s.store.RecordExport(ctx, ownerID, artifactIDs, ip, userAgent)
}

// AccessLog returns the disclosure history for one artifact, newest first.
func (s *Service) AccessLog(ctx context.Context, ownerID string, workspaceID, artifactID uuid.UUID) ([]domain.AccessLogEntry, error) {
	return s.store.ListAccessLog(ctx, ownerID, workspaceID, artifactID)
}
