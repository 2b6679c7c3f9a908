package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/devdepot/depot/internal/domain"
	"github.com/jkaninda/okapi"
)

// **** Tag request/response types ****

// TagRequest is the JSON body for POST /v1/workspaces/{id}/tags.
type TagRequest struct {
	Name string `json:"name"`
}

// TagResponse is the JSON response for tag endpoints.
type TagResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	UsageCount int       `json:"usage_count"`
	CreatedAt  time.Time `json:"created_at"`
}

func toTagResponse(t *domain.Tag) TagResponse {
	return TagResponse{
		ID:         t.ID.String(),
		Name:       t.Name,
		UsageCount: t.UsageCount,
		CreatedAt:  t.CreatedAt,
	}
}

// TagBulkDeleteRequest is the JSON body for the bulk delete endpoint.
type TagBulkDeleteRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

// TagBulkDeleteResponse reports which tags were actually removed.
type TagBulkDeleteResponse struct {
	Deleted []uuid.UUID `json:"deleted"`
}

// **** Handlers ****

func (g *Gateway) handleTagCreate(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	workspaceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid workspace ID")
	}

	var req TagRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}

	t, err := g.artifacts.CreateTag(c.Context(), ownerID, workspaceID, req.Name)
	if err != nil {
		return g.apiError(c, err)
	}
	return c.JSON(http.StatusCreated, toTagResponse(t))
}

func (g *Gateway) handleTagList(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	workspaceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid workspace ID")
	}

	tags, err := g.artifacts.ListTags(c.Context(), ownerID, workspaceID)
	if err != nil {
		return g.apiError(c, err)
	}
	resp := make([]TagResponse, len(tags))
	for i := range tags {
		resp[i] = toTagResponse(&tags[i])
	}
	return c.OK(resp)
}

func (g *Gateway) handleTagDelete(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	workspaceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid workspace ID")
	}
	tagID, err := uuid.Parse(c.Param("tagID"))
	if err != nil {
		return c.AbortBadRequest("invalid tag ID")
	}

	if err := g.artifacts.DeleteTag(c.Context(), ownerID, workspaceID, tagID); err != nil {
		return g.apiError(c, err)
	}
	return c.OK(map[string]string{"status": "deleted"})
}

func (g *Gateway) handleTagBulkDelete(c *okapi.Context) error {
	ownerID := c.GetString("ownerID")

	workspaceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid workspace ID")
	}

	var req TagBulkDeleteRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}

	deleted, err := g.artifacts.DeleteTags(c.Context(), ownerID, workspaceID, req.IDs)
	if err != nil {
		return g.apiError(c, err)
	}
	return c.OK(TagBulkDeleteResponse{Deleted: deleted})
}
