package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/devdepot/depot/internal/domain"
	"github.com/devdepot/depot/internal/workspace"
	"github.com/jkaninda/okapi"
)

// **** Workspace request/response types ****

// WorkspaceResponse is the JSON response for workspace endpoints.
type WorkspaceResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toWorkspaceResponse(ws *domain.Workspace) WorkspaceResponse {
	return WorkspaceResponse{
		ID:          ws.ID.String(),
		Name:        ws.Name,
		Description: ws.Description,
		CreatedAt:   ws.CreatedAt,
		UpdatedAt:   ws.UpdatedAt,
	}
}

// EnvironmentTypeResponse is one row of the seeded environment catalog.
type EnvironmentTypeResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	DisplayOrder int    `json:"display_order"`
}

// EnvironmentResponse is one enabled environment of a workspace.
type EnvironmentResponse struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace"`
	Slug        string `json:"slug"`
}

func toEnvironmentResponse(env *domain.WorkspaceEnvironment) EnvironmentResponse {
	return EnvironmentResponse{
		ID:          env.ID.String(),
		WorkspaceID: env.WorkspaceID.String(),
		Slug:        env.EnvironmentSlug,
	}
}

// **** Handlers ****

func (g *Gateway) handleWorkspaceCreate(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	var p workspace.Params
	if err := c.Bind(&p); err != nil {
		return c.AbortBadRequest("invalid request body")
	}

	ws, err := g.workspaces.Create(c.Context(), ownerID, p)
	if err != nil {
		g.workspaceOp("create", err)
		return g.apiError(c, err)
	}
	g.workspaceOp("create", nil)
	return c.JSON(http.StatusCreated, toWorkspaceResponse(ws))
}

func (g *Gateway) handleWorkspaceList(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	wss, err := g.workspaces.List(c.Context(), ownerID)
	if err != nil {
		return g.apiError(c, err)
	}
	resp := make([]WorkspaceResponse, len(wss))
	for i := range wss {
		resp[i] = toWorkspaceResponse(&wss[i])
	}
	return c.OK(resp)
}

func (g *Gateway) handleWorkspaceGet(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid workspace ID")
	}

	ws, err := g.workspaces.Get(c.Context(), ownerID, id)
	if err != nil {
		return g.apiError(c, err)
	}
	return c.OK(toWorkspaceResponse(ws))
}

func (g *Gateway) handleWorkspaceUpdate(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid workspace ID")
	}

	var p workspace.Params
	if err := c.Bind(&p); err != nil {
		return c.AbortBadRequest("invalid request body")
	}

	ws, err := g.workspaces.Update(c.Context(), ownerID, id, p)
	if err != nil {
		g.workspaceOp("update", err)
		return g.apiError(c, err)
	}
	g.workspaceOp("update", nil)
	return c.OK(toWorkspaceResponse(ws))
}

func (g *Gateway) handleWorkspaceDelete(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid workspace ID")
	}

	if err := g.workspaces.Delete(c.Context(), ownerID, id); err != nil {
		g.workspaceOp("delete", err)
		return g.apiError(c, err)
	}
	g.workspaceOp("delete", nil)
	return c.OK(map[string]string{"status": "deleted"})
}

// workspaceOp records one workspace lifecycle operation on the collector.
func (g *Gateway) workspaceOp(operation string, err error) {
	if g.config.Metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	g.config.Metrics.WorkspaceOpsTotal.WithLabelValues(operation, status).Inc()
}

// **** Environment handlers ****

func (g *Gateway) handleEnvironmentTypes(c *okapi.Context) error {
	types, err := g.workspaces.EnvironmentTypes(c.Context())
	if err != nil {
		return g.apiError(c, err)
	}
	resp := make([]EnvironmentTypeResponse, len(types))
	for i, t := range types {
		resp[i] = EnvironmentTypeResponse{
			ID:           t.ID.String(),
			Name:         t.Name,
			Slug:         t.Slug,
			DisplayOrder: t.DisplayOrder,
		}
	}
	return c.OK(resp)
}

func (g *Gateway) handleEnvironmentList(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid workspace ID")
	}

	envs, err := g.workspaces.Environments(c.Context(), ownerID, id)
	if err != nil {
		return g.apiError(c, err)
	}
	resp := make([]EnvironmentResponse, len(envs))
	for i := range envs {
		resp[i] = toEnvironmentResponse(&envs[i])
	}
	return c.OK(resp)
}

func (g *Gateway) handleEnvironmentEnable(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid workspace ID")
	}
	slug := c.Param("slug")
	if slug == "" {
		return c.AbortBadRequest("environment slug is required")
	}

	env, err := g.workspaces.EnableEnvironment(c.Context(), ownerID, id, slug)
	if err != nil {
		return g.apiError(c, err)
	}
	return c.JSON(http.StatusCreated, toEnvironmentResponse(env))
}

func (g *Gateway) handleEnvironmentDisable(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid workspace ID")
	}
	slug := c.Param("slug")
	if slug == "" {
		return c.AbortBadRequest("environment slug is required")
	}

	if err := g.workspaces.DisableEnvironment(c.Context(), ownerID, id, slug); err != nil {
		return g.apiError(c, err)
	}
	return c.OK(map[string]string{"status": "disabled"})
}

// **** Export / import handlers ****

func (g *Gateway) handleExport(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid workspace ID")
	}

	r := c.Request()
	includeValues := r.URL.Query().Get("include_values") == "true"

	b, err := g.workspaces.Export(c.Context(), ownerID, id, includeValues, clientIP(r), r.UserAgent())
	if err != nil {
		return g.apiError(c, err)
	}
	return c.OK(b)
}

func (g *Gateway) handleImport(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	var b workspace.Bundle
	if err := c.Bind(&b); err != nil {
		return c.AbortBadRequest("invalid bundle")
	}

	res, err := g.workspaces.Import(c.Context(), ownerID, &b)
	if err != nil {
		return g.apiError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}
