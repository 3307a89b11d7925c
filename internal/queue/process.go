package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docgraph-io/docgraph/internal/graphs"
	"github.com/docgraph-io/docgraph/internal/util"
	"github.com/docgraph-io/docgraph/pkg/common"
	"github.com/docgraph-io/docgraph/pkg/logger"
)

// IngestUnitsMsg asks the worker to run the extraction pipeline over a
// batch of content units.
type IngestUnitsMsg struct {
	GraphID string               `json:"graph_id"`
	Units   []common.ContentUnit `json:"units"`
}

// SnapshotMsg asks the worker to back a graph up to the snapshot store.
type SnapshotMsg struct {
	GraphID string `json:"graph_id"`
}

// DeleteGraphMsg asks the worker to drop a graph and its persisted state.
type DeleteGraphMsg struct {
	GraphID string `json:"graph_id"`
}

// ProcessIngestMessage handles one ingest_queue delivery.
func ProcessIngestMessage(ctx context.Context, manager *graphs.Manager, body string) error {
	var data IngestUnitsMsg
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return fmt.Errorf("failed to decode ingest message: %w", err)
	}
	if data.GraphID == "" {
		return fmt.Errorf("ingest message has no graph id")
	}

	logger.Info("[Queue] Ingesting units", "graph_id", data.GraphID, "units", len(data.Units))

	delta, err := manager.Ingest(ctx, data.GraphID, data.Units)
	if err != nil {
		return fmt.Errorf("failed to ingest units for graph %s: %w", data.GraphID, err)
	}

	logger.Info("[Queue] Ingest complete",
		"graph_id", data.GraphID,
		"nodes_created", delta.NodesCreated,
		"nodes_merged", delta.NodesMerged,
		"edges_created", delta.EdgesCreated,
		"dropped", delta.Dropped)
	return nil
}

// ProcessSnapshotMessage handles one snapshot_queue delivery.
func ProcessSnapshotMessage(ctx context.Context, manager *graphs.Manager, body string) error {
	var data SnapshotMsg
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return fmt.Errorf("failed to decode snapshot message: %w", err)
	}
	if data.GraphID == "" {
		return fmt.Errorf("snapshot message has no graph id")
	}

	maxTries := int(util.GetEnvNumeric("SNAPSHOT_MAX_RETRIES", 3))
	err := util.RetryErrWithContext(ctx, maxTries, func(ctx context.Context) error {
		return manager.Backup(ctx, data.GraphID)
	})
	if err != nil {
		return fmt.Errorf("failed to back up graph %s: %w", data.GraphID, err)
	}

	logger.Info("[Queue] Snapshot uploaded", "graph_id", data.GraphID)
	return nil
}

// ProcessDeleteMessage handles one delete_queue delivery.
func ProcessDeleteMessage(ctx context.Context, manager *graphs.Manager, body string) error {
	var data DeleteGraphMsg
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return fmt.Errorf("failed to decode delete message: %w", err)
	}
	if data.GraphID == "" {
		return fmt.Errorf("delete message has no graph id")
	}

	if err := manager.Delete(ctx, data.GraphID); err != nil {
		return fmt.Errorf("failed to delete graph %s: %w", data.GraphID, err)
	}

	logger.Info("[Queue] Graph deleted", "graph_id", data.GraphID)
	return nil
}
