package store

import (
	"context"

	"github.com/docgraph-io/docgraph/pkg/common"
	"github.com/docgraph-io/docgraph/pkg/kg"
)

// GraphStorage persists knowledge graphs and their content units. Graph
// state is saved and restored as whole snapshots so a load never observes
// a partially written graph.
type GraphStorage interface {
	SaveSnapshot(ctx context.Context, graphID string, snap *kg.Snapshot) error
	LoadSnapshot(ctx context.Context, graphID string) (*kg.Snapshot, error)
	DeleteGraph(ctx context.Context, graphID string) error

	SaveUnits(ctx context.Context, graphID string, units []common.ContentUnit) error
	Unit(ctx context.Context, graphID string, unitID string) (common.ContentUnit, bool, error)

	// SimilarEntities returns the stored entities closest to the given
	// embedding by cosine distance. Entities with a different embedding
	// dimension are excluded.
	SimilarEntities(ctx context.Context, graphID string, embedding []float32, limit int) ([]common.Entity, error)
}

// SnapshotStore is cold storage for graph snapshots, used for backups and
// cross-environment transfer. Unlike GraphStorage it holds opaque blobs
// and cannot answer similarity queries.
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, graphID string, snap *kg.Snapshot) error
	GetSnapshot(ctx context.Context, graphID string) (*kg.Snapshot, error)
	DeleteSnapshot(ctx context.Context, graphID string) error
}

// ScopedUnitSource binds a GraphStorage to one graph so it can serve as
// the unit source of a context assembler.
type ScopedUnitSource struct {
	Store   GraphStorage
	GraphID string
}

func (s ScopedUnitSource) Unit(ctx context.Context, id string) (common.ContentUnit, bool, error) {
	return s.Store.Unit(ctx, s.GraphID, id)
}
