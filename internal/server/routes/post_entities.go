package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/docgraph-io/docgraph/internal/server/middleware"
)

// SimilarEntitiesHandler returns the graph entities closest to a query
// embedding. Like QueryGraphHandler the caller supplies either a
// precomputed embedding or text to be embedded with the configured
// provider.
func SimilarEntitiesHandler(c echo.Context) error {
	type request struct {
		Embedding []float32 `json:"embedding"`
		Query     string    `json:"query"`
		Limit     int       `json:"limit" validate:"gte=0"`
	}

	graphID := c.Param("id")
	if graphID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing graph id"})
	}

	var req request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	embedding := req.Embedding
	if len(embedding) == 0 {
		if req.Query == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "either embedding or query is required"})
		}
		if app.Embedder == nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "no embedding provider configured, supply an embedding"})
		}
		vec, err := app.Embedder.Embed(ctx, []byte(req.Query))
		if err != nil {
			return c.String(http.StatusInternalServerError, err.Error())
		}
		embedding = vec
	}

	entities, err := app.Manager.SimilarEntities(ctx, graphID, embedding, req.Limit)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"graph_id": graphID,
		"entities": entities,
	})
}
