package artifact

import (
	"strings"
	"testing"

	"github.com/devdepot/depot/internal/domain"
)

func validatePayload(t *testing.T, p Payload) error {
	t.Helper()
	p.sanitize()
	return NewValidator().ValidatePayload(&p)
}

func wantFieldError(t *testing.T, err error, field string) {
	t.Helper()
	ve, ok := domain.AsValidation(err)
	if !ok {
		t.Fatalf("error = %v, want *domain.ValidationError", err)
	}
	if _, present := ve.Fields[field]; !present {
		t.Errorf("fields = %v, want an entry for %q", ve.Fields, field)
	}
}

func TestValidatePayload_EnvVar(t *testing.T) {
	valid := Payload{Kind: domain.KindEnvVar, Environment: "DEV", Key: "DATABASE_URL", Value: "postgres://localhost"}
	if err := validatePayload(t, valid); err != nil {
		t.Fatalf("valid ENV_VAR payload: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(p *Payload)
		field  string
	}{
		{"missing key", func(p *Payload) { p.Key = "" }, "key"},
		{"missing value", func(p *Payload) { p.Value = "" }, "value"},
		{"lowercase key", func(p *Payload) { p.Key = "database_url" }, "key"},
		{"key with dash", func(p *Payload) { p.Key = "DATABASE-URL" }, "key"},
		{"key with space", func(p *Payload) { p.Key = "DATABASE URL" }, "key"},
		{"key too long", func(p *Payload) { p.Key = strings.Repeat("A", 256) }, "key"},
		{"value too large", func(p *Payload) { p.Value = strings.Repeat("x", 64*1024+1) }, "value"},
		{"missing environment", func(p *Payload) { p.Environment = "" }, "environment"},
		{"foreign title", func(p *Payload) { p.Title = "nope" }, "title"},
		{"foreign content", func(p *Payload) { p.Content = "nope" }, "content"},
		{"foreign url", func(p *Payload) { p.URL = "https://example.com" }, "url"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := valid
			tc.mutate(&p)
			wantFieldError(t, validatePayload(t, p), tc.field)
		})
	}
}

func TestValidatePayload_EnvVarKeyBoundary(t *testing.T) {
	p := Payload{Kind: domain.KindEnvVar, Environment: "DEV", Key: strings.Repeat("A", 255), Value: "v"}
	if err := validatePayload(t, p); err != nil {
		t.Errorf("255-char key rejected: %v", err)
	}
}

func TestValidatePayload_Prompt(t *testing.T) {
	valid := Payload{Kind: domain.KindPrompt, Environment: "DEV", Title: "Summarizer", Content: "Summarize the following text."}
	if err := validatePayload(t, valid); err != nil {
		t.Fatalf("valid PROMPT payload: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(p *Payload)
		field  string
	}{
		{"missing title", func(p *Payload) { p.Title = "" }, "title"},
		{"missing content", func(p *Payload) { p.Content = "" }, "content"},
		{"title too long", func(p *Payload) { p.Title = strings.Repeat("t", 501) }, "title"},
		{"content over limit", func(p *Payload) { p.Content = strings.Repeat("c", 10_001) }, "content"},
		{"foreign key", func(p *Payload) { p.Key = "KEY" }, "key"},
		{"foreign value", func(p *Payload) { p.Value = "v" }, "value"},
		{"foreign url", func(p *Payload) { p.URL = "https://example.com" }, "url"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := valid
			tc.mutate(&p)
			wantFieldError(t, validatePayload(t, p), tc.field)
		})
	}

	// Exactly at the ceiling is fine.
	p := valid
	p.Content = strings.Repeat("c", 10_000)
	if err := validatePayload(t, p); err != nil {
		t.Errorf("10000-char content rejected: %v", err)
	}
}

func TestValidatePayload_DocLink(t *testing.T) {
	valid := Payload{Kind: domain.KindDocLink, Environment: "DEV", Title: "Runbook", URL: "https://wiki.example.com/runbook"}
	if err := validatePayload(t, valid); err != nil {
		t.Fatalf("valid DOC_LINK payload: %v", err)
	}

	urls := []struct {
		name string
		url  string
		ok   bool
	}{
		{"https", "https://example.com", true},
		{"http", "http://example.com", true},
		{"uppercase scheme", "HTTPS://example.com", true},
		{"javascript", "javascript:alert(1)", false},
		{"data", "data:text/html;base64,PGh0bWw+", false},
		{"vbscript", "vbscript:msgbox", false},
		{"file", "file:///etc/passwd", false},
		{"about", "about:blank", false},
		{"ftp", "ftp://example.com", false},
		{"schemeless", "example.com", false},
	}
	for _, tc := range urls {
		t.Run(tc.name, func(t *testing.T) {
			p := valid
			p.URL = tc.url
			err := validatePayload(t, p)
			if tc.ok && err != nil {
				t.Errorf("url %q rejected: %v", tc.url, err)
			}
			if !tc.ok {
				wantFieldError(t, err, "url")
			}
		})
	}

	p := valid
	p.Content = "not a doc link field"
	wantFieldError(t, validatePayload(t, p), "content")
}

func TestValidatePayload_UnknownKind(t *testing.T) {
	p := Payload{Kind: "SNIPPET", Environment: "DEV"}
	wantFieldError(t, validatePayload(t, p), "kind")
}

func TestSanitize_StripsNullBytesAndTrims(t *testing.T) {
	p := Payload{
		Kind:        domain.KindEnvVar,
		Environment: "DEV",
		Key:         "  API\x00_KEY  ",
		Value:       "se\x00cret",
	}
	p.sanitize()
	if p.Key != "API_KEY" {
		t.Errorf("Key = %q, want %q", p.Key, "API_KEY")
	}
	if p.Value != "secret" {
		t.Errorf("Value = %q, want %q", p.Value, "secret")
	}
}

func TestNewView_MasksEnvVarValue(t *testing.T) {
	a := &domain.Artifact{
		Kind:   domain.KindEnvVar,
		EnvVar: &domain.EnvVarFields{Key: "API_KEY", Value: "supersecret"},
	}
	v := NewView(a)
	if v.Value == "supersecret" {
		t.Fatal("view leaked the plaintext value")
	}
	if !v.ValueMasked {
		t.Error("ValueMasked = false, want true")
	}
	if v.Key != "API_KEY" {
		t.Errorf("Key = %q, want %q", v.Key, "API_KEY")
	}
}

func TestNewView_PromptContentNotMasked(t *testing.T) {
	a := &domain.Artifact{
		Kind:   domain.KindPrompt,
		Prompt: &domain.PromptFields{Title: "T", Content: "full content"},
	}
	v := NewView(a)
	if v.Content != "full content" {
		t.Errorf("Content = %q, want full content", v.Content)
	}
	if v.ValueMasked {
		t.Error("ValueMasked = true for a PROMPT")
	}
}
