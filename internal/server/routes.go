package server

import (
	"github.com/labstack/echo/v4"

	"github.com/docgraph-io/docgraph/internal/server/middleware"
	"github.com/docgraph-io/docgraph/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Graph routes
	apiRoutes.POST("/graphs/:id/units", routes.IngestUnitsHandler)
	apiRoutes.POST("/graphs/:id/query", routes.QueryGraphHandler)
	apiRoutes.POST("/graphs/:id/entities/similar", routes.SimilarEntitiesHandler)
	apiRoutes.GET("/graphs/:id/stats", routes.GetGraphStatsHandler)
	apiRoutes.POST("/graphs/:id/snapshot", routes.BackupGraphHandler)
	apiRoutes.POST("/graphs/:id/restore", routes.RestoreGraphHandler)
	apiRoutes.DELETE("/graphs/:id", routes.DeleteGraphHandler)
}
