package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JSONB stores a JSON document. Maps to jsonb on PostgreSQL and TEXT on
// SQLite; both backends go through Value/Scan.
type JSONB json.RawMessage

// Value implements driver.Valuer.
func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "{}", nil
	}
	return string(j), nil
}

// Scan implements sql.Scanner.
func (j *JSONB) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		*j = append((*j)[:0], v...)
		return nil
	case string:
		*j = JSONB(v)
		return nil
	}
	return fmt.Errorf("unsupported JSONB source type %T", src)
}

// EnvironmentTypeModel maps to the "environment_types" table.
// Seeded catalog data; never written by request handlers.
type EnvironmentTypeModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name         string    `gorm:"not null"`
	Slug         string    `gorm:"not null;uniqueIndex"`
	DisplayOrder int       `gorm:"not null;default:0"`
	CreatedAt    time.Time
}

func (EnvironmentTypeModel) TableName() string { return "environment_types" }

// WorkspaceModel maps to the "workspaces" table.
// (owner_id, name) is unique: each owner has their own namespace.
type WorkspaceModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	OwnerID     string    `gorm:"not null;index;uniqueIndex:uniq_workspace_owner_name"`
	Name        string    `gorm:"not null;uniqueIndex:uniq_workspace_owner_name"`
	Description string    `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (WorkspaceModel) TableName() string { return "workspaces" }

// WorkspaceEnvironmentModel maps to the "workspace_environments" join table.
// The RESTRICT constraint from artifacts makes disabling an in-use
// environment fail at the database, not just in the service pre-check.
type WorkspaceEnvironmentModel struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	WorkspaceID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uniq_workspace_environment"`
	EnvironmentTypeID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uniq_workspace_environment"`
	EnvironmentSlug   string    `gorm:"not null"`

	Artifacts []ArtifactModel `gorm:"foreignKey:WorkspaceEnvID;constraint:OnDelete:RESTRICT"`

	CreatedAt time.Time
}

func (WorkspaceEnvironmentModel) TableName() string { return "workspace_environments" }

// ArtifactModel maps to the "artifacts" table: one wide row for all three
// kinds. UniqToken carries the kind's discriminant (key for ENV_VAR, title
// otherwise) so a single composite unique index enforces the per-environment
// uniqueness scope on both backends.
type ArtifactModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	WorkspaceID     uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uniq_artifact_slot"`
	WorkspaceEnvID  uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uniq_artifact_slot"`
	EnvironmentSlug string    `gorm:"not null"`
	Kind            string    `gorm:"not null;index;uniqueIndex:uniq_artifact_slot"`
	UniqToken       string    `gorm:"not null;uniqueIndex:uniq_artifact_slot"`

	Key     string
	Value   string `gorm:"type:text"`
	Title   string
	Content string `gorm:"type:text"`
	URL     string `gorm:"column:url"`

	Notes    string `gorm:"type:text"`
	Metadata JSONB  `gorm:"type:jsonb;not null;default:'{}'"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (ArtifactModel) TableName() string { return "artifacts" }

// TagModel maps to the "tags" table. (workspace_id, name) is unique.
type TagModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	WorkspaceID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uniq_tag_workspace_name"`
	Name        string    `gorm:"not null;uniqueIndex:uniq_tag_workspace_name"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (TagModel) TableName() string { return "tags" }

// ArtifactTagModel maps to the "artifact_tags" join table.
type ArtifactTagModel struct {
	ArtifactID uuid.UUID `gorm:"type:uuid;primaryKey"`
	TagID      uuid.UUID `gorm:"type:uuid;primaryKey;index"`
}

func (ArtifactTagModel) TableName() string { return "artifact_tags" }

// AccessLogModel maps to the "access_logs" table.
// No UpdatedAt and no foreign keys — the log is append-only and outlives the
// artifacts it records disclosures of.
type AccessLogModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	ArtifactID uuid.UUID `gorm:"type:uuid;not null;index"`
	OwnerID    string    `gorm:"not null;index"`
	Action     string    `gorm:"not null"`
	IP         string
	UserAgent  string
	CreatedAt  time.Time `gorm:"index"`
}

func (AccessLogModel) TableName() string { return "access_logs" }
