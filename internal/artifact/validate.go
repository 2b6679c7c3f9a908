package artifact

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/devdepot/depot/internal/domain"
)

// Hard size ceilings. Oversized input is rejected, never silently truncated.
const (
	MaxKeyLen     = 255
	MaxValueLen   = 64 * 1024 // 64 KB
	MaxTitleLen   = 500
	MaxContentLen = 10_000 // PROMPT content, characters
	MaxNotesLen   = 10_000 // 10 KB
	MaxURLLen     = 2048   // 2 KB
)

var envKeyPattern = regexp.MustCompile(`^[A-Z0-9_]+$`)

// dangerousSchemes are rejected outright on DOC_LINK URLs.
var dangerousSchemes = []string{"javascript:", "data:", "vbscript:", "file:", "about:"}

// Payload is the flat wire-shaped input for create and update. Validation
// collapses it onto exactly one kind variant; fields belonging to another
// kind must be empty.
type Payload struct {
	Kind        domain.Kind    `json:"kind"`
	Environment string         `json:"environment"`
	Key         string         `json:"key,omitempty" validate:"omitempty,max=255"`
	Value       string         `json:"value,omitempty" validate:"omitempty,max=65536"`
	Title       string         `json:"title,omitempty" validate:"omitempty,max=500"`
	Content     string         `json:"content,omitempty" validate:"omitempty,max=10000"`
	URL         string         `json:"url,omitempty" validate:"omitempty,max=2048"`
	Notes       string         `json:"notes,omitempty" validate:"omitempty,max=10000"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	TagIDs      []uuid.UUID    `json:"tags,omitempty"`
}

// sanitize strips null bytes from every string field and trims whitespace on
// identifying fields, before any validation runs.
func (p *Payload) sanitize() {
	strip := func(s string) string { return strings.ReplaceAll(s, "\x00", "") }
	p.Key = strings.TrimSpace(strip(p.Key))
	p.Value = strip(p.Value)
	p.Title = strings.TrimSpace(strip(p.Title))
	p.Content = strip(p.Content)
	p.URL = strings.TrimSpace(strip(p.URL))
	p.Notes = strip(p.Notes)
}

// toArtifact converts a validated payload into the kind's variant.
func (p *Payload) toArtifact() *domain.Artifact {
	a := &domain.Artifact{
		Kind:     p.Kind,
		Notes:    p.Notes,
		Metadata: p.Metadata,
	}
	switch p.Kind {
	case domain.KindEnvVar:
		a.EnvVar = &domain.EnvVarFields{Key: p.Key, Value: p.Value}
	case domain.KindPrompt:
		a.Prompt = &domain.PromptFields{Title: p.Title, Content: p.Content}
	case domain.KindDocLink:
		a.DocLink = &domain.DocLinkFields{Title: p.Title, URL: p.URL}
	}
	return a
}

// Validator applies the full object-level validation contract: kind-specific
// required fields, formats, size ceilings, and cross-kind field rejection.
// It runs on every create and update, never bypassed.
type Validator struct {
	v *validator.Validate
}

// NewValidator builds the validator with the custom env-key and safe-url
// rules registered.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("envkey", func(fl validator.FieldLevel) bool {
		return envKeyPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("safeurl", func(fl validator.FieldLevel) bool {
		return urlSchemeOK(fl.Field().String())
	})
	return &Validator{v: v}
}

// urlSchemeOK accepts only http:// and https:// and rejects the dangerous
// scheme blocklist, case-insensitively.
func urlSchemeOK(raw string) bool {
	lower := strings.ToLower(raw)
	for _, scheme := range dangerousSchemes {
		if strings.HasPrefix(lower, scheme) {
			return false
		}
	}
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Per-kind required-field shapes. The struct tags carry the format and size
// rules; cross-kind emptiness is checked separately since "must be empty"
// has no tag expression worth the indirection.
type envVarShape struct {
	Key   string `validate:"required,max=255,envkey"`
	Value string `validate:"required,max=65536"`
}

type promptShape struct {
	Title   string `validate:"required,max=500"`
	Content string `validate:"required,max=10000"`
}

type docLinkShape struct {
	Title string `validate:"required,max=500"`
	URL   string `validate:"required,max=2048,safeurl"`
}

// ValidatePayload runs the full validation contract. Returns a
// *domain.ValidationError with field-level detail on any violation.
func (val *Validator) ValidatePayload(p *Payload) error {
	fields := map[string]string{}

	if !p.Kind.Valid() {
		fields["kind"] = "kind must be one of ENV_VAR, PROMPT, DOC_LINK"
		return &domain.ValidationError{Fields: fields}
	}
	if p.Environment == "" {
		fields["environment"] = "environment is required"
	}

	// Common fields.
	if len(p.Notes) > MaxNotesLen {
		fields["notes"] = "notes cannot exceed 10000 characters"
	}

	var shapeErr error
	switch p.Kind {
	case domain.KindEnvVar:
		rejectForeign(fields, map[string]string{"title": p.Title, "content": p.Content, "url": p.URL}, "ENV_VAR")
		shapeErr = val.v.Struct(envVarShape{Key: p.Key, Value: p.Value})
	case domain.KindPrompt:
		rejectForeign(fields, map[string]string{"key": p.Key, "value": p.Value, "url": p.URL}, "PROMPT")
		shapeErr = val.v.Struct(promptShape{Title: p.Title, Content: p.Content})
	case domain.KindDocLink:
		rejectForeign(fields, map[string]string{"key": p.Key, "value": p.Value, "content": p.Content}, "DOC_LINK")
		shapeErr = val.v.Struct(docLinkShape{Title: p.Title, URL: p.URL})
	}

	if shapeErr != nil {
		var verrs validator.ValidationErrors
		if errors.As(shapeErr, &verrs) {
			for _, fe := range verrs {
				name := strings.ToLower(fe.Field())
				fields[name] = shapeMessage(p.Kind, name, fe.Tag())
			}
		} else {
			fields["payload"] = shapeErr.Error()
		}
	}

	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}

// rejectForeign flags fields that belong to another kind but were populated.
func rejectForeign(fields map[string]string, foreign map[string]string, kind string) {
	for name, value := range foreign {
		if value != "" {
			fields[name] = name + " is not a " + kind + " field"
		}
	}
}

// shapeMessage renders a stable, caller-facing message for a failed tag.
func shapeMessage(kind domain.Kind, field, tag string) string {
	switch tag {
	case "required":
		return string(kind) + " requires a " + field
	case "max":
		switch field {
		case "key":
			return "key cannot exceed 255 characters"
		case "value":
			return "value cannot exceed 64KB"
		case "title":
			return "title cannot exceed 500 characters"
		case "content":
			return "content cannot exceed 10000 characters"
		case "url":
			return "url cannot exceed 2048 characters"
		}
		return field + " is too long"
	case "envkey":
		return "key must be uppercase alphanumeric with underscores"
	case "safeurl":
		return "url must use http:// or https://"
	}
	return field + " is invalid"
}
