package routes

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/docgraph-io/docgraph/internal/queue"
	"github.com/docgraph-io/docgraph/internal/server/middleware"
)

// DeleteGraphHandler drops a graph and its persisted state. With async
// set the deletion is handed to the worker queue.
func DeleteGraphHandler(c echo.Context) error {
	graphID := c.Param("id")
	if graphID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing graph id"})
	}

	app := c.(*middleware.AppContext).App

	if c.QueryParam("async") == "true" {
		if app.Queue == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "queue not configured"})
		}
		msg, err := json.Marshal(queue.DeleteGraphMsg{GraphID: graphID})
		if err != nil {
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if err := queue.PublishFIFO(app.Queue, queue.DeleteQueue, msg); err != nil {
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusAccepted, map[string]string{"graph_id": graphID})
	}

	if err := app.Manager.Delete(c.Request().Context(), graphID); err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"graph_id": graphID})
}
