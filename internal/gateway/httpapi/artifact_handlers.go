package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/devdepot/depot/internal/artifact"
	"github.com/devdepot/depot/internal/domain"
	"github.com/jkaninda/okapi"
)

// **** Artifact request/response types ****

// BulkCreateRequest is the JSON body for POST /v1/workspaces/{id}/artifacts/bulk.
type BulkCreateRequest struct {
	Artifacts []artifact.Payload `json:"artifacts"`
}

// DuplicateRequest is the JSON body for the duplicate endpoint.
type DuplicateRequest struct {
	Environment string `json:"environment"` // Target environment slug.
}

// AccessLogResponse is one disclosure row of an artifact's access log.
type AccessLogResponse struct {
	ID         string    `json:"id"`
	ArtifactID string    `json:"artifact_id"`
	Action     string    `json:"action"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// **** Handlers ****

func (g *Gateway) handleArtifactCreate(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	workspaceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid workspace ID")
	}

	var p artifact.Payload
	if err := c.Bind(&p); err != nil {
		return c.AbortBadRequest("invalid request body")
	}

	a, err := g.artifacts.Create(c.Context(), ownerID, workspaceID, p)
	if err != nil {
		g.artifactWrite(p.Kind, "create", err)
		return g.apiError(c, err)
	}
	g.artifactWrite(a.Kind, "create", nil)
	return c.JSON(http.StatusCreated, artifact.NewView(a))
}

func (g *Gateway) handleArtifactList(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	workspaceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid workspace ID")
	}

	q := c.Request().URL.Query()
	f := artifact.Filter{
		Kind:        domain.Kind(q.Get("kind")),
		Environment: q.Get("environment"),
		Search:      q.Get("search"),
	}
	if f.Kind != "" && !f.Kind.Valid() {
		return c.AbortBadRequest("kind must be one of ENV_VAR, PROMPT, DOC_LINK")
	}

	views, err := g.artifacts.List(c.Context(), ownerID, workspaceID, f)
	if err != nil {
		return g.apiError(c, err)
	}
	return c.OK(views)
}

func (g *Gateway) handleArtifactGet(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	workspaceID, artifactID, err := pathIDs(c)
	if err != nil {
		return c.AbortBadRequest(err.Error())
	}

	a, err := g.artifacts.Get(c.Context(), ownerID, workspaceID, artifactID)
	if err != nil {
		return g.apiError(c, err)
	}
	return c.OK(artifact.NewView(a))
}

func (g *Gateway) handleArtifactUpdate(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	workspaceID, artifactID, err := pathIDs(c)
	if err != nil {
		return c.AbortBadRequest(err.Error())
	}

	var p artifact.Payload
	if err := c.Bind(&p); err != nil {
		return c.AbortBadRequest("invalid request body")
	}

	a, err := g.artifacts.Update(c.Context(), ownerID, workspaceID, artifactID, p)
	if err != nil {
		g.artifactWrite(p.Kind, "update", err)
		return g.apiError(c, err)
	}
	g.artifactWrite(a.Kind, "update", nil)
	return c.OK(artifact.NewView(a))
}

func (g *Gateway) handleArtifactDelete(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	workspaceID, artifactID, err := pathIDs(c)
	if err != nil {
		return c.AbortBadRequest(err.Error())
	}

	if err := g.artifacts.Delete(c.Context(), ownerID, workspaceID, artifactID); err != nil {
		g.artifactWrite("", "delete", err)
		return g.apiError(c, err)
	}
	g.artifactWrite("", "delete", nil)
	return c.OK(map[string]string{"status": "deleted"})
}

func (g *Gateway) handleArtifactDuplicate(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	workspaceID, artifactID, err := pathIDs(c)
	if err != nil {
		return c.AbortBadRequest(err.Error())
	}

	var req DuplicateRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.Environment == "" {
		return c.AbortBadRequest("environment is required")
	}

	dup, err := g.artifacts.Duplicate(c.Context(), ownerID, workspaceID, artifactID, req.Environment)
	if err != nil {
		return g.apiError(c, err)
	}
	return c.JSON(http.StatusCreated, artifact.NewView(dup))
}

func (g *Gateway) handleArtifactBulkCreate(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	workspaceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid workspace ID")
	}

	var req BulkCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if len(req.Artifacts) == 0 {
		return c.AbortBadRequest("artifacts is required")
	}

	res, err := g.artifacts.BulkCreate(c.Context(), ownerID, workspaceID, req.Artifacts)
	if err != nil {
		return g.apiError(c, err)
	}
	return c.OK(res)
}

// **** Secret handlers ****

func (g *Gateway) handleReveal(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	workspaceID, artifactID, err := pathIDs(c)
	if err != nil {
		return c.AbortBadRequest(err.Error())
	}

	r := c.Request()
	start := time.Now()
	revealed, err := g.secrets.Reveal(c.Context(), ownerID, workspaceID, artifactID, clientIP(r), r.UserAgent())
	if m := g.config.Metrics; m != nil {
		m.RevealDurationSecs.Observe(time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
		}
		m.RevealsTotal.WithLabelValues(status).Inc()
		if err == nil {
			m.AccessLogAppends.Inc()
		}
	}
	if err != nil {
		return g.apiError(c, err)
	}
	return c.OK(revealed)
}

func (g *Gateway) handleAccessLog(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	workspaceID, artifactID, err := pathIDs(c)
	if err != nil {
		return c.AbortBadRequest(err.Error())
	}

	entries, err := g.secrets.AccessLog(c.Context(), ownerID, workspaceID, artifactID)
	if err != nil {
		return g.apiError(c, err)
	}
	resp := make([]AccessLogResponse, len(entries))
	for i, e := range entries {
		resp[i] = AccessLogResponse{
			ID:         e.ID.String(),
			ArtifactID: e.ArtifactID.String(),
			Action:     string(e.Action),
			IP:         e.IP,
			UserAgent:  e.UserAgent,
			CreatedAt:  e.CreatedAt,
		}
	}
	return c.OK(resp)
}

// **** Cross-workspace handlers ****

func (g *Gateway) handleSearch(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	q := c.Request().URL.Query()
	f := artifact.GlobalFilter{
		Query:       q.Get("q"),
		Kind:        domain.Kind(q.Get("kind")),
		Environment: q.Get("environment"),
	}
	if f.Kind != "" && !f.Kind.Valid() {
		return c.AbortBadRequest("kind must be one of ENV_VAR, PROMPT, DOC_LINK")
	}
	if raw := q.Get("workspace"); raw != "" {
		wsID, err := uuid.Parse(raw)
		if err != nil {
			return c.AbortBadRequest("invalid workspace ID")
		}
		f.WorkspaceID = wsID
	}

	views, err := g.artifacts.Search(c.Context(), ownerID, f)
	if m := g.config.Metrics; m != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		m.ArtifactSearchesTotal.WithLabelValues("global", status).Inc()
	}
	if err != nil {
		return g.apiError(c, err)
	}
	return c.OK(views)
}

func (g *Gateway) handleDocs(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	views, err := g.artifacts.ListDocs(c.Context(), ownerID)
	if err != nil {
		return g.apiError(c, err)
	}
	return c.OK(views)
}

// **** Helpers ****

// artifactWrite records one artifact write operation on the collector.
func (g *Gateway) artifactWrite(kind domain.Kind, operation string, err error) {
	if g.config.Metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	label := string(kind)
	if label == "" {
		label = "unknown"
	}
	g.config.Metrics.ArtifactWritesTotal.WithLabelValues(label, operation, status).Inc()
}

// pathIDs parses the workspace and artifact IDs from the request path.
func pathIDs(c *okapi.Context) (uuid.UUID, uuid.UUID, error) {
	workspaceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, errInvalidWorkspaceID
	}
	artifactID, err := uuid.Parse(c.Param("artifactID"))
	if err != nil {
		return uuid.Nil, uuid.Nil, errInvalidArtifactID
	}
	return workspaceID, artifactID, nil
}

var (
	errInvalidWorkspaceID = pathError("invalid workspace ID")
	errInvalidArtifactID  = pathError("invalid artifact ID")
)

type pathError string

func (e pathError) Error() string { return string(e) }
