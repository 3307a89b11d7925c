package routes

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/docgraph-io/docgraph/internal/queue"
	"github.com/docgraph-io/docgraph/internal/server/middleware"
	"github.com/docgraph-io/docgraph/pkg/common"
)

// IngestUnitsHandler accepts a batch of content units for a graph. With
// async set the batch is handed to the worker queue; otherwise it is
// processed before the response is written.
func IngestUnitsHandler(c echo.Context) error {
	type request struct {
		Units []common.ContentUnit `json:"units" validate:"required,min=1"`
		Async bool                 `json:"async"`
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

	for _, unit := range req.Units {
		if !unit.Modality.Valid() {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "unknown modality " + string(unit.Modality) + " for unit " + unit.ID,
			})
		}
	}

	app := c.(*middleware.AppContext).App

	if req.Async {
		if app.Queue == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "queue not configured"})
		}
		msg, err := json.Marshal(queue.IngestUnitsMsg{GraphID: graphID, Units: req.Units})
		if err != nil {
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if err := queue.PublishFIFO(app.Queue, queue.IngestQueue, msg); err != nil {
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusAccepted, map[string]any{
			"graph_id": graphID,
			"units":    len(req.Units),
		})
	}

	delta, err := app.Manager.Ingest(c.Request().Context(), graphID, req.Units)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"graph_id":         graphID,
		"units_registered": delta.UnitsRegistered,
		"nodes_created":    delta.NodesCreated,
		"nodes_merged":     delta.NodesMerged,
		"nodes_evicted":    delta.NodesEvicted,
		"edges_created":    delta.EdgesCreated,
		"edges_updated":    delta.EdgesUpdated,
		"dropped":          delta.Dropped,
		"warnings":         delta.Warnings,
	})
}
