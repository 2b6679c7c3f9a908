package postgres

import (
	"encoding/json"

	"github.com/devdepot/depot/internal/domain"
)

// --- Workspace ---

func toWorkspaceDomain(m *WorkspaceModel) *domain.Workspace {
	return &domain.Workspace{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		OwnerID:     m.OwnerID,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toWorkspaceModel(ws *domain.Workspace) WorkspaceModel {
	return WorkspaceModel{
		ID:          ws.ID,
		OwnerID:     ws.OwnerID,
		Name:        ws.Name,
		Description: ws.Description,
		CreatedAt:   ws.CreatedAt,
		UpdatedAt:   ws.UpdatedAt,
	}
}

// --- Environment ---

func toEnvironmentTypeDomain(m *EnvironmentTypeModel) domain.EnvironmentType {
	return domain.EnvironmentType{
		ID:           m.ID,
		Name:         m.Name,
		Slug:         m.Slug,
		DisplayOrder: m.DisplayOrder,
	}
}

func toWorkspaceEnvDomain(m *WorkspaceEnvironmentModel) domain.WorkspaceEnvironment {
	return domain.WorkspaceEnvironment{
		ID:                m.ID,
		WorkspaceID:       m.WorkspaceID,
		EnvironmentTypeID: m.EnvironmentTypeID,
		EnvironmentSlug:   m.EnvironmentSlug,
	}
}

// --- Artifact ---

func toArtifactDomain(m *ArtifactModel) *domain.Artifact {
	a := &domain.Artifact{
		ID:              m.ID,
		WorkspaceID:     m.WorkspaceID,
		WorkspaceEnvID:  m.WorkspaceEnvID,
		EnvironmentSlug: m.EnvironmentSlug,
		Kind:            domain.Kind(m.Kind),
		Notes:           m.Notes,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	switch a.Kind {
	case domain.KindEnvVar:
		a.EnvVar = &domain.EnvVarFields{Key: m.Key, Value: m.Value}
	case domain.KindPrompt:
		a.Prompt = &domain.PromptFields{Title: m.Title, Content: m.Content}
	case domain.KindDocLink:
		a.DocLink = &domain.DocLinkFields{Title: m.Title, URL: m.URL}
	}
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &a.Metadata)
	}
	return a
}

func toArtifactModel(a *domain.Artifact) ArtifactModel {
	m := ArtifactModel{
		ID:              a.ID,
		WorkspaceID:     a.WorkspaceID,
		WorkspaceEnvID:  a.WorkspaceEnvID,
		EnvironmentSlug: a.EnvironmentSlug,
		Kind:            string(a.Kind),
		UniqToken:       a.Identifier(),
		Notes:           a.Notes,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
	switch {
	case a.EnvVar != nil:
		m.Key = a.EnvVar.Key
		m.Value = a.EnvVar.Value
	case a.Prompt != nil:
		m.Title = a.Prompt.Title
		m.Content = a.Prompt.Content
	case a.DocLink != nil:
		m.Title = a.DocLink.Title
		m.URL = a.DocLink.URL
	}
	meta, _ := json.Marshal(a.Metadata)
	if meta == nil || string(meta) == "null" {
		meta = []byte("{}")
	}
	m.Metadata = JSONB(meta)
	return m
}

// --- Tag ---

func toTagDomain(m *TagModel) domain.Tag {
	return domain.Tag{
		ID:          m.ID,
		WorkspaceID: m.WorkspaceID,
		Name:        m.Name,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toTagModel(t *domain.Tag) TagModel {
	return TagModel{
		ID:          t.ID,
		WorkspaceID: t.WorkspaceID,
		Name:        t.Name,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// --- Access log ---

func toAccessLogDomain(m *AccessLogModel) domain.AccessLogEntry {
	return domain.AccessLogEntry{
		ID:         m.ID,
		ArtifactID: m.ArtifactID,
		OwnerID:    m.OwnerID,
		Action:     domain.AccessAction(m.Action),
		IP:         m.IP,
		UserAgent:  m.UserAgent,
		CreatedAt:  m.CreatedAt,
	}
}
