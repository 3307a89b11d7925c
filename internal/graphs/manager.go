// Package graphs manages the live knowledge graphs of one process: it
// creates pipelines on demand, restores persisted state and routes
// ingest, query and snapshot operations to the right graph.
package graphs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/docgraph-io/docgraph/pkg/assemble"
	"github.com/docgraph-io/docgraph/pkg/common"
	"github.com/docgraph-io/docgraph/pkg/config"
	"github.com/docgraph-io/docgraph/pkg/embed"
	"github.com/docgraph-io/docgraph/pkg/kg"
	"github.com/docgraph-io/docgraph/pkg/leaselock"
	"github.com/docgraph-io/docgraph/pkg/logger"
	"github.com/docgraph-io/docgraph/pkg/pipeline"
	"github.com/docgraph-io/docgraph/pkg/retrieve"
	"github.com/docgraph-io/docgraph/pkg/store"
)

// Stats summarizes one graph.
type Stats struct {
	GraphID string `json:"graph_id"`
	Nodes   int    `json:"nodes"`
	Edges   int    `json:"edges"`
	Units   int    `json:"units"`
}

type entry struct {
	graph    *kg.KnowledgeGraph
	pipeline *pipeline.Pipeline
	memory   *assemble.MemoryUnitSource
}

// Manager owns every live graph of the process.
//
// A Manager should be created using NewManager.
type Manager struct {
	cfg       config.Config
	embedder  embed.Embedder
	storage   store.GraphStorage
	snapshots store.SnapshotStore
	locks     *leaselock.Client
	parallel  int

	mu      sync.Mutex
	entries map[string]*entry
}

// NewManagerParams contains all dependencies needed to create a new
// Manager. Storage and Snapshots may be nil for purely in-memory use;
// Embedder may be nil when all candidates arrive with embeddings.
type NewManagerParams struct {
	Config        config.Config
	Embedder      embed.Embedder
	Storage       store.GraphStorage
	Snapshots     store.SnapshotStore
	Locks         *leaselock.Client
	ParallelUnits int
}

// NewManager creates a new Manager.
func NewManager(params NewManagerParams) *Manager {
	return &Manager{
		cfg:       params.Config,
		embedder:  params.Embedder,
		storage:   params.Storage,
		snapshots: params.Snapshots,
		locks:     params.Locks,
		parallel:  params.ParallelUnits,
		entries:   make(map[string]*entry),
	}
}

// layeredUnitSource serves assembly lookups from process memory first and
// falls back to persistent storage.
type layeredUnitSource struct {
	memory   *assemble.MemoryUnitSource
	fallback assemble.UnitSource
}

func (s layeredUnitSource) Unit(ctx context.Context, id string) (common.ContentUnit, bool, error) {
	unit, ok, err := s.memory.Unit(ctx, id)
	if err != nil || ok {
		return unit, ok, err
	}
	if s.fallback == nil {
		return common.ContentUnit{}, false, nil
	}
	return s.fallback.Unit(ctx, id)
}

// get returns the live entry for a graph, creating it on first use. A
// newly created graph is restored from persistent storage when available.
func (m *Manager) get(ctx context.Context, graphID string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[graphID]; ok {
		return e, nil
	}

	graph := kg.NewKnowledgeGraph(m.cfg.KnowledgeGraph)

	builder, err := kg.NewBuilder(kg.NewBuilderParams{
		Graph:    graph,
		Embedder: m.embedder,
		Config:   m.cfg,
	})
	if err != nil {
		return nil, err
	}

	memory := assemble.NewMemoryUnitSource()
	var source assemble.UnitSource = memory
	if m.storage != nil {
		source = layeredUnitSource{
			memory:   memory,
			fallback: store.ScopedUnitSource{Store: m.storage, GraphID: graphID},
		}
	}

	assembler := assemble.NewAssembler(assemble.NewAssemblerParams{
		Config: m.cfg,
		Source: source,
	})

	retriever := retrieve.NewRetriever(retrieve.NewRetrieverParams{Config: m.cfg})

	pipe, err := pipeline.NewPipeline(pipeline.NewPipelineParams{
		Config:        m.cfg,
		Graph:         graph,
		Builder:       builder,
		Retriever:     retriever,
		Assembler:     assembler,
		Sink:          memory,
		ParallelUnits: m.parallel,
	})
	if err != nil {
		return nil, err
	}

	e := &entry{graph: graph, pipeline: pipe, memory: memory}

	if m.storage != nil {
		snap, err := m.storage.LoadSnapshot(ctx, graphID)
		if err != nil {
			logger.Warn("[Graphs] Failed to load persisted graph, starting empty",
				"graph_id", graphID, "err", err)
		} else if len(snap.Entities) > 0 || len(snap.Units) > 0 {
			if err := graph.Restore(snap); err != nil {
				return nil, fmt.Errorf("failed to restore graph %s: %w", graphID, err)
			}
			logger.Info("[Graphs] Restored graph from storage",
				"graph_id", graphID, "nodes", len(snap.Entities), "edges", len(snap.Relationships))
		}
	}

	m.entries[graphID] = e
	return e, nil
}

// Ingest runs the extraction pipeline over the units, updates the graph
// and persists units and the resulting snapshot when storage is
// configured. With a lock client, the whole operation runs under a
// per-graph lease so concurrent workers cannot mutate one graph at the
// same time.
func (m *Manager) Ingest(ctx context.Context, graphID string, units []common.ContentUnit) (*kg.Delta, error) {
	if m.locks == nil {
		return m.ingest(ctx, graphID, units)
	}

	var delta *kg.Delta
	err := m.locks.WithLease(ctx, "graph:"+graphID, leaselock.Options{Wait: true}, func(ctx context.Context) error {
		var err error
		delta, err = m.ingest(ctx, graphID, units)
		return err
	})
	return delta, err
}

func (m *Manager) ingest(ctx context.Context, graphID string, units []common.ContentUnit) (*kg.Delta, error) {
	e, err := m.get(ctx, graphID)
	if err != nil {
		return nil, err
	}

	delta, err := e.pipeline.ProcessUnits(ctx, units)
	if err != nil {
		return delta, err
	}

	if m.storage != nil {
		if err := m.storage.SaveUnits(ctx, graphID, units); err != nil {
			return delta, fmt.Errorf("failed to persist units: %w", err)
		}
		if err := m.storage.SaveSnapshot(ctx, graphID, e.graph.Export()); err != nil {
			return delta, fmt.Errorf("failed to persist graph: %w", err)
		}
	}

	return delta, nil
}

// Query retrieves and assembles context for a query embedding.
func (m *Manager) Query(ctx context.Context, graphID string, embedding []float32, topK int) (common.ContextBundle, []common.RetrievalCandidate, error) {
	e, err := m.get(ctx, graphID)
	if err != nil {
		return common.ContextBundle{}, nil, err
	}
	return e.pipeline.Query(ctx, embedding, topK)
}

// SimilarEntities returns the entities of a graph closest to the
// embedding by cosine similarity. With storage configured the query runs
// against the persisted vectors, so it also answers for graphs that are
// not resident; otherwise the live graph is scanned.
func (m *Manager) SimilarEntities(ctx context.Context, graphID string, embedding []float32, limit int) ([]common.Entity, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("embedding is required")
	}
	if limit <= 0 {
		limit = 10
	}

	if m.storage != nil {
		return m.storage.SimilarEntities(ctx, graphID, embedding, limit)
	}

	e, err := m.get(ctx, graphID)
	if err != nil {
		return nil, err
	}

	type scored struct {
		entity common.Entity
		score  float64
	}
	var matches []scored
	for _, entity := range e.graph.Entities() {
		if entity.Embedding == nil || len(entity.Embedding) != len(embedding) {
			continue
		}
		score, err := embed.CosineSimilarity(embedding, entity.Embedding)
		if err != nil {
			continue
		}
		matches = append(matches, scored{entity: entity, score: score})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].entity.ID < matches[j].entity.ID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]common.Entity, len(matches))
	for i, match := range matches {
		out[i] = match.entity
	}
	return out, nil
}

// Stats reports the current size of a graph.
func (m *Manager) Stats(ctx context.Context, graphID string) (Stats, error) {
	e, err := m.get(ctx, graphID)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		GraphID: graphID,
		Nodes:   e.graph.NodeCount(),
		Edges:   e.graph.EdgeCount(),
		Units:   e.graph.UnitCount(),
	}, nil
}

// Backup exports the graph and uploads it to the snapshot store.
func (m *Manager) Backup(ctx context.Context, graphID string) error {
	if m.snapshots == nil {
		return fmt.Errorf("no snapshot store configured")
	}
	e, err := m.get(ctx, graphID)
	if err != nil {
		return err
	}
	return m.snapshots.PutSnapshot(ctx, graphID, e.graph.Export())
}

// RestoreBackup replaces the live graph with the snapshot from the
// snapshot store.
func (m *Manager) RestoreBackup(ctx context.Context, graphID string) error {
	if m.snapshots == nil {
		return fmt.Errorf("no snapshot store configured")
	}
	e, err := m.get(ctx, graphID)
	if err != nil {
		return err
	}
	snap, err := m.snapshots.GetSnapshot(ctx, graphID)
	if err != nil {
		return err
	}
	if err := e.graph.Restore(snap); err != nil {
		return err
	}
	if m.storage != nil {
		if err := m.storage.SaveSnapshot(ctx, graphID, snap); err != nil {
			return fmt.Errorf("failed to persist restored graph: %w", err)
		}
	}
	return nil
}

// Delete drops the live graph and its persisted state.
func (m *Manager) Delete(ctx context.Context, graphID string) error {
	m.mu.Lock()
	delete(m.entries, graphID)
	m.mu.Unlock()

	if m.storage != nil {
		if err := m.storage.DeleteGraph(ctx, graphID); err != nil {
			return err
		}
	}
	return nil
}
