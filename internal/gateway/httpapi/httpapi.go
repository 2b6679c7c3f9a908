// Package httpapi implements the HTTP API gateway for depot.
//
// Security:
//   - API key authentication on every request (constant-time comparison)
//   - Request body size limits (default 1 MB)
//   - Reveal and search throttles live in the services, not here
//   - Ownership failures are indistinguishable from missing resources (404)
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devdepot/depot/internal/artifact"
	"github.com/devdepot/depot/internal/domain"
	"github.com/devdepot/depot/internal/observability"
	"github.com/devdepot/depot/internal/ratelimit"
	"github.com/devdepot/depot/internal/secret"
	"github.com/devdepot/depot/internal/workspace"
	"github.com/jkaninda/okapi"
)

const defaultMaxRequestSize = 1 << 20 // 1 MB

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr     string            // e.g., ":8080"
	EnableDocs     bool
	APIKeys        map[string]string // API key → owner ID mapping. Keys from env.
	MaxRequestSize int64             // Maximum request body in bytes. 0 = 1 MB default.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz endpoint.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
}

// Gateway is the HTTP API gateway.
type Gateway struct {
	config     Config
	workspaces *workspace.Service
	artifacts  *artifact.Service
	secrets    *secret.Service
	logger     *slog.Logger
	server     *http.Server

	okapi *okapi.Okapi
	group *okapi.Group
}

// NewGateway creates an HTTP API gateway over the three core services.
func NewGateway(cfg Config, ws *workspace.Service, arts *artifact.Service, secrets *secret.Service, logger *slog.Logger) *Gateway {
	maxSize := cfg.MaxRequestSize
	if maxSize <= 0 {
		maxSize = defaultMaxRequestSize
	}
	return &Gateway{
		config:     cfg,
		workspaces: ws,
		artifacts:  arts,
		secrets:    secrets,
		logger:     logger,
		okapi:      okapi.New(okapi.WithMaxMultipartMemory(maxSize)),
	}
}

func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "Depot",
			Version: "v0.1.0",
		},
	)
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	// Metrics middleware (applied globally).
	if g.config.Metrics != nil {
		g.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(g.config.Metrics, next)
		})
	}

	// Authenticated /v1 group.
	g.group = g.okapi.Group("/v1", g.authenticate)

	// Workspace endpoints.
	g.group.Post("/workspaces", g.handleWorkspaceCreate,
		okapi.DocSummary("Create a new workspace"),
		okapi.DocTags("Workspaces"),
		okapi.DocRequestBody(workspace.Params{}),
		okapi.DocResponse(http.StatusCreated, WorkspaceResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusConflict, ErrorBody{}),
	)
	g.group.Get("/workspaces", g.handleWorkspaceList,
		okapi.DocSummary("List the caller's workspaces"),
		okapi.DocTags("Workspaces"),
		okapi.DocResponse([]WorkspaceResponse{}),
	)
	g.group.Get("/workspaces/{id}", g.handleWorkspaceGet,
		okapi.DocSummary("Get a workspace by ID"),
		okapi.DocTags("Workspaces"),
		okapi.DocPathParam("id", "string", "Workspace ID (UUID)"),
		okapi.DocResponse(WorkspaceResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Put("/workspaces/{id}", g.handleWorkspaceUpdate,
		okapi.DocSummary("Rename or re-describe a workspace"),
		okapi.DocTags("Workspaces"),
		okapi.DocPathParam("id", "string", "Workspace ID (UUID)"),
		okapi.DocRequestBody(workspace.Params{}),
		okapi.DocResponse(WorkspaceResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
		okapi.DocResponse(http.StatusConflict, ErrorBody{}),
	)
	g.group.Delete("/workspaces/{id}", g.handleWorkspaceDelete,
		okapi.DocSummary("Delete a workspace and everything inside it"),
		okapi.DocTags("Workspaces"),
		okapi.DocPathParam("id", "string", "Workspace ID (UUID)"),
		okapi.DocResponse(map[string]string{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	// Environment endpoints.
	g.group.Get("/environment-types", g.handleEnvironmentTypes,
		okapi.DocSummary("List the environment type catalog"),
		okapi.DocTags("Environments"),
		okapi.DocResponse([]EnvironmentTypeResponse{}),
	)
	g.group.Get("/workspaces/{id}/environments", g.handleEnvironmentList,
		okapi.DocSummary("List a workspace's enabled environments"),
		okapi.DocTags("Environments"),
		okapi.DocPathParam("id", "string", "Workspace ID (UUID)"),
		okapi.DocResponse([]EnvironmentResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Post("/workspaces/{id}/environments/{slug}", g.handleEnvironmentEnable,
		okapi.DocSummary("Enable an environment for a workspace"),
		okapi.DocTags("Environments"),
		okapi.DocPathParam("id", "string", "Workspace ID (UUID)"),
		okapi.DocPathParam("slug", "string", "Environment slug, e.g. DEV"),
		okapi.DocResponse(http.StatusCreated, EnvironmentResponse{}),
		okapi.DocResponse(http.StatusConflict, ErrorBody{}),
	)
	g.group.Delete("/workspaces/{id}/environments/{slug}", g.handleEnvironmentDisable,
		okapi.DocSummary("Disable an environment (fails while artifacts remain in it)"),
		okapi.DocTags("Environments"),
		okapi.DocPathParam("id", "string", "Workspace ID (UUID)"),
		okapi.DocPathParam("slug", "string", "Environment slug, e.g. DEV"),
		okapi.DocResponse(map[string]string{}),
		okapi.DocResponse(http.StatusConflict, ErrorBody{}),
	)

	// Artifact endpoints.
	g.group.Post("/workspaces/{id}/artifacts", g.handleArtifactCreate,
		okapi.DocSummary("Create an artifact (ENV_VAR, PROMPT or DOC_LINK)"),
		okapi.DocTags("Artifacts"),
		okapi.DocPathParam("id", "string", "Workspace ID (UUID)"),
		okapi.DocRequestBody(artifact.Payload{}),
		okapi.DocResponse(http.StatusCreated, artifact.View{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusConflict, ErrorBody{}),
	)
	g.group.Get("/workspaces/{id}/artifacts", g.handleArtifactList,
		okapi.DocSummary("List a workspace's artifacts (filters: kind, environment, search)"),
		okapi.DocTags("Artifacts"),
		okapi.DocPathParam("id", "string", "Workspace ID (UUID)"),
		okapi.DocResponse([]artifact.View{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	g.group.Post("/workspaces/{id}/artifacts/bulk", g.handleArtifactBulkCreate,
		okapi.DocSummary("Create many artifacts in one call (partial success)"),
		okapi.DocTags("Artifacts"),
		okapi.DocPathParam("id", "string", "Workspace ID (UUID)"),
		okapi.DocRequestBody(BulkCreateRequest{}),
		okapi.DocResponse(artifact.BulkResult{}),
	)
	g.group.Get("/workspaces/{id}/artifacts/{artifactID}", g.handleArtifactGet,
		okapi.DocSummary("Get an artifact (ENV_VAR values are masked)"),
		okapi.DocTags("Artifacts"),
		okapi.DocPathParam("id", "string", "Workspace ID (UUID)"),
		okapi.DocPathParam("artifactID", "string", "Artifact ID (UUID)"),
		okapi.DocResponse(artifact.View{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Put("/workspaces/{id}/artifacts/{artifactID}", g.handleArtifactUpdate,
		okapi.DocSummary("Update an artifact (kind is immutable)"),
		okapi.DocTags("Artifacts"),
		okapi.DocPathParam("id", "string", "Workspace ID (UUID)"),
		okapi.DocPathParam("artifactID", "string", "Artifact ID (UUID)"),
		okapi.DocRequestBody(artifact.Payload{}),
		okapi.DocResponse(artifact.View{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
		okapi.DocResponse(http.StatusConflict, ErrorBody{}),
	)
	g.group.Delete("/workspaces/{id}/artifacts/{artifactID}", g.handleArtifactDelete,
		okapi.DocSummary("Delete an artifact"),
		okapi.DocTags("Artifacts"),
		okapi.DocPathParam("id", "string", "Workspace ID (UUID)"),
		okapi.DocPathParam("artifactID", "string", "Artifact ID (UUID)"),
		okapi.DocResponse(map[string]string{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Post("/workspaces/{id}/artifacts/{artifactID}/duplicate", g.handleArtifactDuplicate,
		okapi.DocSummary("Copy an artifact into another enabled environment"),
		okapi.DocTags("Artifacts"),
		okapi.DocPathParam("id", "string", "Workspace ID (UUID)"),
		okapi.DocPathParam("artifactID", "string", "Artifact ID (UUID)"),
		okapi.DocRequestBody(DuplicateRequest{}),
		okapi.DocResponse(http.StatusCreated, artifact.View{}),
		okapi.DocResponse(http.StatusConflict, ErrorBody{}),
	)

	// Secret endpoints.
	g.group.Post("/workspaces/{id}/artifacts/{artifactID}/reveal", g.handleReveal,
		okapi.DocSummary("Disclose an ENV_VAR value (audited, rate limited)"),
		okapi.DocTags("Secrets"),
		okapi.DocPathParam("id", "string", "Workspace ID (UUID)"),
		okapi.DocPathParam("artifactID", "string", "Artifact ID (UUID)"),
		okapi.DocResponse(secret.Revealed{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	g.group.Get("/workspaces/{id}/artifacts/{artifactID}/access-log", g.handleAccessLog,
		okapi.DocSummary("Disclosure history for an artifact, newest first"),
		okapi.DocTags("Secrets"),
		okapi.DocPathParam("id", "string", "Workspace ID (UUID)"),
		okapi.DocPathParam("artifactID", "string", "Artifact ID (UUID)"),
		okapi.DocResponse([]AccessLogResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	// Tag endpoints.
	g.group.Post("/workspaces/{id}/tags", g.handleTagCreate,
		okapi.DocSummary("Create a workspace-scoped tag"),
		okapi.DocTags("Tags"),
		okapi.DocPathParam("id", "string", "Workspace ID (UUID)"),
		okapi.DocRequestBody(TagRequest{}),
		okapi.DocResponse(http.StatusCreated, TagResponse{}),
		okapi.DocResponse(http.StatusConflict, ErrorBody{}),
	)
	g.group.Get("/workspaces/{id}/tags", g.handleTagList,
		okapi.DocSummary("List a workspace's tags with usage counts"),
		okapi.DocTags("Tags"),
		okapi.DocPathParam("id", "string", "Workspace ID (UUID)"),
		okapi.DocResponse([]TagResponse{}),
	)
	g.group.Delete("/workspaces/{id}/tags/{tagID}", g.handleTagDelete,
		okapi.DocSummary("Delete a tag (artifacts keep their other tags)"),
		okapi.DocTags("Tags"),
		okapi.DocPathParam("id", "string", "Workspace ID (UUID)"),
		okapi.DocPathParam("tagID", "string", "Tag ID (UUID)"),
		okapi.DocResponse(map[string]string{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Post("/workspaces/{id}/tags/bulk-delete", g.handleTagBulkDelete,
		okapi.DocSummary("Delete many tags, skipping unknown IDs"),
		okapi.DocTags("Tags"),
		okapi.DocPathParam("id", "string", "Workspace ID (UUID)"),
		okapi.DocRequestBody(TagBulkDeleteRequest{}),
		okapi.DocResponse(TagBulkDeleteResponse{}),
	)

	// Cross-workspace endpoints.
	g.group.Get("/search", g.handleSearch,
		okapi.DocSummary("Search artifacts across all of the caller's workspaces"),
		okapi.DocTags("Search"),
		okapi.DocResponse([]artifact.View{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	g.group.Get("/docs", g.handleDocs,
		okapi.DocSummary("Aggregate DOC_LINK artifacts across all workspaces"),
		okapi.DocTags("Search"),
		okapi.DocResponse([]artifact.View{}),
	)

	// Export / import.
	g.group.Get("/workspaces/{id}/export", g.handleExport,
		okapi.DocSummary("Export a workspace bundle (values masked unless include_values=true)"),
		okapi.DocTags("Transfer"),
		okapi.DocPathParam("id", "string", "Workspace ID (UUID)"),
		okapi.DocResponse(workspace.Bundle{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Post("/workspaces/import", g.handleImport,
		okapi.DocSummary("Recreate a bundle as a fresh workspace"),
		okapi.DocTags("Transfer"),
		okapi.DocRequestBody(workspace.Bundle{}),
		okapi.DocResponse(http.StatusCreated, workspace.ImportResult{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
	)

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting", slog.String("addr", g.config.ListenAddr))

	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(_ context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// HealthResponse is the JSON response for the liveness endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleLiveness is the Kubernetes liveness probe
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// --- Authentication ---

// authenticate validates the API key and stores the mapped owner ID on the
// context. Every downstream query is scoped by that owner.
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		ownerID := ""
		for key, owner := range g.config.APIKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				ownerID = owner
			}
		}
		if ownerID == "" {
			return c.AbortUnauthorized("invalid API key")
		}
		c.Set("ownerID", ownerID)
		return next(c)
	}
}

// --- Helpers ---

// apiError maps domain errors to HTTP responses. The ownership rule means
// ErrNotFound already covers "exists but not yours".
func (g *Gateway) apiError(c *okapi.Context, err error) error {
	if ve, ok := domain.AsValidation(err); ok {
		return c.JSON(http.StatusBadRequest, ErrorBody{Error: "validation failed", Fields: ve.Fields})
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrConflict):
		return c.JSON(http.StatusConflict, ErrorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidOperation):
		return c.JSON(http.StatusBadRequest, ErrorBody{Error: err.Error()})
	case errors.Is(err, ratelimit.ErrRateLimited):
		if g.config.Metrics != nil {
			g.config.Metrics.RateLimitRejects.WithLabelValues("owner").Inc()
		}
		return c.AbortTooManyRequests("rate limit exceeded")
	default:
		g.logger.Error("request failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("internal error")
	}
}

// clientIP extracts the originating address, trusting the usual proxy
// headers before falling back to the socket peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if real := r.Header.Get("X-Real-Ip"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
