package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/docgraph-io/docgraph/internal/server/middleware"
)

// GetGraphStatsHandler reports node, edge and unit counts for a graph.
func GetGraphStatsHandler(c echo.Context) error {
	graphID := c.Param("id")
	if graphID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing graph id"})
	}

	app := c.(*middleware.AppContext).App
	stats, err := app.Manager.Stats(c.Request().Context(), graphID)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, stats)
}
