package artifact

import (
	"time"

	"github.com/devdepot/depot/internal/domain"
)

// maskedValue is the fixed-length placeholder returned in place of an
// ENV_VAR value everywhere outside the reveal subsystem.
const maskedValue = "••••••"

// TagView is the serialized form of a tag reference on an artifact.
type TagView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// View is the serialized form of an artifact. Only the fields relevant to
// the artifact's kind are populated; ENV_VAR values are always masked —
// plaintext is reachable only through the reveal operation.
type View struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspace"`
	Kind        domain.Kind    `json:"kind"`
	Environment string         `json:"environment"`
	Key         string         `json:"key,omitempty"`
	Value       string         `json:"value,omitempty"`
	ValueMasked bool           `json:"value_masked,omitempty"`
	Title       string         `json:"title,omitempty"`
	Content     string         `json:"content,omitempty"`
	URL         string         `json:"url,omitempty"`
	Notes       string         `json:"notes,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Tags        []TagView      `json:"tags,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NewView builds the masked serialization of an artifact.
func NewView(a *domain.Artifact) View {
	v := View{
		ID:          a.ID.String(),
		WorkspaceID: a.WorkspaceID.String(),
		Kind:        a.Kind,
		Environment: a.EnvironmentSlug,
		Notes:       a.Notes,
		Metadata:    a.Metadata,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
	switch a.Kind {
	case domain.KindEnvVar:
		if a.EnvVar != nil {
			v.Key = a.EnvVar.Key
			if a.EnvVar.Value != "" {
				v.Value = maskedValue
				v.ValueMasked = true
			}
		}
	case domain.KindPrompt:
		if a.Prompt != nil {
			v.Title = a.Prompt.Title
			v.Content = a.Prompt.Content
		}
	case domain.KindDocLink:
		if a.DocLink != nil {
			v.Title = a.DocLink.Title
			v.URL = a.DocLink.URL
		}
	}
	for _, t := range a.Tags {
		v.Tags = append(v.Tags, TagView{ID: t.ID.String(), Name: t.Name})
	}
	return v
}

// NewViews masks a slice of artifacts.
func NewViews(arts []domain.Artifact) []View {
	views := make([]View, len(arts))
	for i := range arts {
		views[i] = NewView(&arts[i])
	}
	return views
}
