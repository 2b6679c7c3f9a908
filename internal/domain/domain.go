// Package domain defines cross-cutting entity types used across the system.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the three artifact shapes. Immutable after creation.
type Kind string

const (
	KindEnvVar  Kind = "ENV_VAR"
	KindPrompt  Kind = "PROMPT"
	KindDocLink Kind = "DOC_LINK"
)

// Valid reports whether k is one of the three known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindEnvVar, KindPrompt, KindDocLink:
		return true
	}
	return false
}

// Workspace is an owner-scoped container for artifacts.
// OwnerID is the opaque string identifier supplied by the external
// authentication collaborator (e.g. an API-key mapping). The core trusts it
// and never verifies tokens or sessions itself.
type Workspace struct {
	ID          uuid.UUID
	Name        string // Unique per owner.
	Description string
	OwnerID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EnvironmentType is a seeded catalog row (e.g. DEV/STAGING/PROD).
// Not owner-scoped; effectively read-only reference data.
type EnvironmentType struct {
	ID           uuid.UUID
	Name         string // Display name, e.g. "Development".
	Slug         string // Stable identifier, e.g. "DEV".
	DisplayOrder int
}

// WorkspaceEnvironment marks an environment type as enabled for a workspace.
// Artifacts reference this join row with a protective foreign key: the row
// cannot be deleted while artifacts still point at it.
type WorkspaceEnvironment struct {
	ID                uuid.UUID
	WorkspaceID       uuid.UUID
	EnvironmentTypeID uuid.UUID
	EnvironmentSlug   string // Resolved from the catalog for convenience.
}

// EnvVarFields carries the ENV_VAR variant. Value is sensitive: every
// serialization path masks it except the reveal subsystem.
type EnvVarFields struct {
	Key   string // ^[A-Z0-9_]+$, case-sensitive, max 255.
	Value string // Max 64 KB.
}

// PromptFields carries the PROMPT variant.
type PromptFields struct {
	Title   string // Max 500.
	Content string // Max 10,000 characters.
}

// DocLinkFields carries the DOC_LINK variant.
type DocLinkFields struct {
	Title string // Max 500.
	URL   string // http:// or https:// only, max 2048.
}

// Artifact is the polymorphic core record. Exactly one of EnvVar, Prompt,
// DocLink is non-nil, matching Kind; validation rejects cross-kind field
// population before anything reaches storage.
type Artifact struct {
	ID              uuid.UUID
	WorkspaceID     uuid.UUID
	WorkspaceEnvID  uuid.UUID
	EnvironmentSlug string // Resolved through the enablement join.
	Kind            Kind

	EnvVar  *EnvVarFields
	Prompt  *PromptFields
	DocLink *DocLinkFields

	Notes    string // Free text, max 10 KB.
	Metadata map[string]any

	Tags []Tag

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identifier returns the discriminating field for uniqueness and display:
// the key for ENV_VAR, the title otherwise.
func (a *Artifact) Identifier() string {
	switch a.Kind {
	case KindEnvVar:
		if a.EnvVar != nil {
			return a.EnvVar.Key
		}
	case KindPrompt:
		if a.Prompt != nil {
			return a.Prompt.Title
		}
	case KindDocLink:
		if a.DocLink != nil {
			return a.DocLink.Title
		}
	}
	return ""
}

// Tag is a per-workspace label. (WorkspaceID, Name) is unique. UsageCount is
// derived from ArtifactTag join rows.
type Tag struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	Name        string
	UsageCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AccessAction labels an access-log row.
type AccessAction string

const (
	AccessReveal AccessAction = "REVEAL"
	AccessExport AccessAction = "EXPORT"
)

// AccessLogEntry records one disclosure of an unmasked secret value.
// Append-only: rows are never updated or deleted by normal operation.
type AccessLogEntry struct {
	ID         uuid.UUID
	ArtifactID uuid.UUID
	OwnerID    string
	Action     AccessAction
	IP         string
	UserAgent  string
	CreatedAt  time.Time
}
