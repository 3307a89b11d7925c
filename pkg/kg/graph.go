package kg

import (
	"sort"
	"sync"

	"github.com/docgraph-io/docgraph/pkg/common"
	"github.com/docgraph-io/docgraph/pkg/config"
)

type edgeKey struct {
	Source int64
	Target int64
	Type   common.RelationshipType
}

// UnitRef is the graph's reference to an upstream ContentUnit: identity,
// modality, provenance and embedding. The raw content stays with the
// upstream collaborator.
type UnitRef struct {
	ID         string            `json:"id"`
	Modality   common.Modality   `json:"modality"`
	Embedding  []float32         `json:"embedding,omitempty"`
	Provenance common.Provenance `json:"provenance"`
}

// KnowledgeGraph owns all entities (nodes) and relationships (edges). It
// uses arena-style indexed storage: node IDs index a dense record slice,
// which keeps eviction and read-snapshotting cheap. The graph is the
// single mutable shared structure of the pipeline; writes are serialized
// by the Builder and readers take consistent snapshots.
//
// A KnowledgeGraph should be created using NewKnowledgeGraph.
type KnowledgeGraph struct {
	mu  sync.RWMutex
	cfg config.KnowledgeGraphConfig

	nodes     []*common.Entity // arena; index == id, nil after eviction
	canonical map[string]int64
	edges     map[edgeKey]*common.Relationship
	incident  map[int64][]edgeKey
	degree    map[int64]float64 // total incident edge weight
	units     map[string]UnitRef
	unitOrder []string
	alive     int
}

// NewKnowledgeGraph creates an empty graph bounded by the given limits.
func NewKnowledgeGraph(cfg config.KnowledgeGraphConfig) *KnowledgeGraph {
	return &KnowledgeGraph{
		cfg:       cfg,
		canonical: make(map[string]int64),
		edges:     make(map[edgeKey]*common.Relationship),
		incident:  make(map[int64][]edgeKey),
		degree:    make(map[int64]float64),
		units:     make(map[string]UnitRef),
	}
}

// NodeCount returns the number of live nodes.
func (g *KnowledgeGraph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.alive
}

// EdgeCount returns the number of stored edges.
func (g *KnowledgeGraph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// UnitCount returns the number of registered content unit references.
func (g *KnowledgeGraph) UnitCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.units)
}

// Entity returns a copy of the node with the given id.
func (g *KnowledgeGraph) Entity(id int64) (common.Entity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if id < 0 || id >= int64(len(g.nodes)) || g.nodes[id] == nil {
		return common.Entity{}, false
	}
	return *g.nodes[id], true
}

// Unit returns the registered reference for a content unit id.
func (g *KnowledgeGraph) Unit(id string) (UnitRef, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ref, ok := g.units[id]
	return ref, ok
}

// NodeView is a read-only projection of one node inside a View.
type NodeView struct {
	ID        int64
	Name      string
	Type      common.EntityType
	Embedding []float32
}

// EdgeView is one traversable edge inside a View. Views list each stored
// edge under both endpoints so traversal treats edges as bidirectional.
type EdgeView struct {
	From   int64
	To     int64
	Type   common.RelationshipType
	Weight float64
}

// UnitView is a read-only projection of a registered content unit.
type UnitView struct {
	ID         string
	Modality   common.Modality
	Embedding  []float32
	Provenance common.Provenance
}

// View is an immutable, consistent snapshot of the graph taken at one
// point in time. Retrieval traverses Views so an in-progress ingest never
// bleeds into a running query.
type View struct {
	Nodes     []NodeView // ascending id
	Adjacency map[int64][]EdgeView
	Units     []UnitView // ascending id
}

// Snapshot captures a consistent read view of the graph. Embedding slices
// are shared, not copied: the graph never mutates a stored embedding in
// place.
func (g *KnowledgeGraph) Snapshot() *View {
	g.mu.RLock()
	defer g.mu.RUnlock()

	view := &View{
		Nodes:     make([]NodeView, 0, g.alive),
		Adjacency: make(map[int64][]EdgeView, g.alive),
		Units:     make([]UnitView, 0, len(g.units)),
	}

	for id := int64(0); id < int64(len(g.nodes)); id++ {
		node := g.nodes[id]
		if node == nil {
			continue
		}
		view.Nodes = append(view.Nodes, NodeView{
			ID:        node.ID,
			Name:      node.Name,
			Type:      node.Type,
			Embedding: node.Embedding,
		})
	}

	for key, edge := range g.edges {
		view.Adjacency[key.Source] = append(view.Adjacency[key.Source], EdgeView{
			From:   key.Source,
			To:     key.Target,
			Type:   key.Type,
			Weight: edge.Weight,
		})
		view.Adjacency[key.Target] = append(view.Adjacency[key.Target], EdgeView{
			From:   key.Target,
			To:     key.Source,
			Type:   key.Type,
			Weight: edge.Weight,
		})
	}
	for id := range view.Adjacency {
		edges := view.Adjacency[id]
		sort.Slice(edges, func(i, j int) bool {
			if edges[i].To != edges[j].To {
				return edges[i].To < edges[j].To
			}
			return edges[i].Type < edges[j].Type
		})
	}

	for _, id := range g.unitOrder {
		ref := g.units[id]
		view.Units = append(view.Units, UnitView{
			ID:         ref.ID,
			Modality:   ref.Modality,
			Embedding:  ref.Embedding,
			Provenance: ref.Provenance,
		})
	}
	sort.Slice(view.Units, func(i, j int) bool { return view.Units[i].ID < view.Units[j].ID })

	return view
}

// Entities returns copies of all live nodes in ascending id order.
func (g *KnowledgeGraph) Entities() []common.Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]common.Entity, 0, g.alive)
	for id := int64(0); id < int64(len(g.nodes)); id++ {
		if g.nodes[id] != nil {
			out = append(out, *g.nodes[id])
		}
	}
	return out
}

// Relationships returns copies of all stored edges in deterministic order.
func (g *KnowledgeGraph) Relationships() []common.Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]common.Relationship, 0, len(g.edges))
	for _, edge := range g.edges {
		out = append(out, *edge)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		if out[i].Target != out[j].Target {
			return out[i].Target < out[j].Target
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// lookupCanonical returns the live node id for a canonical name.
// Lock must be held.
func (g *KnowledgeGraph) lookupCanonical(canonical string) (int64, bool) {
	id, ok := g.canonical[canonical]
	if !ok {
		return 0, false
	}
	if id >= int64(len(g.nodes)) || g.nodes[id] == nil {
		return 0, false
	}
	return id, true
}

// insertNode adds a node to the arena, evicting the lowest-weighted-degree
// node first when the graph is at capacity. Lock must be held.
func (g *KnowledgeGraph) insertNode(node *common.Entity) (id int64, evicted []int64) {
	for g.alive >= g.cfg.MaxNodes {
		evictedID, ok := g.evictOne()
		if !ok {
			break
		}
		evicted = append(evicted, evictedID)
	}

	id = int64(len(g.nodes))
	node.ID = id
	g.nodes = append(g.nodes, node)
	g.canonical[node.Canonical] = id
	g.alive++
	return id, evicted
}

// evictOne removes the node with the minimum total incident edge weight,
// ties broken toward the lower id, along with its edges. Lock must be held.
func (g *KnowledgeGraph) evictOne() (int64, bool) {
	victim := int64(-1)
	victimDegree := 0.0
	for id := int64(0); id < int64(len(g.nodes)); id++ {
		if g.nodes[id] == nil {
			continue
		}
		d := g.degree[id]
		if victim == -1 || d < victimDegree {
			victim = id
			victimDegree = d
		}
	}
	if victim == -1 {
		return 0, false
	}

	for _, key := range g.incident[victim] {
		if _, ok := g.edges[key]; !ok {
			continue
		}
		weight := g.edges[key].Weight
		delete(g.edges, key)
		other := key.Source
		if other == victim {
			other = key.Target
		}
		g.degree[other] -= weight
		g.incident[other] = removeEdgeKey(g.incident[other], key)
	}
	delete(g.incident, victim)
	delete(g.degree, victim)
	delete(g.canonical, g.nodes[victim].Canonical)
	g.nodes[victim] = nil
	g.alive--
	return victim, true
}

// upsertEdge enforces the at-most-one-edge-per-triple rule: repeated
// evidence updates weight and confidence through a running average instead
// of creating a parallel edge. Lock must be held.
func (g *KnowledgeGraph) upsertEdge(rel common.Relationship) (created bool) {
	key := edgeKey{Source: rel.Source, Target: rel.Target, Type: rel.Type}
	existing, ok := g.edges[key]
	if !ok {
		stored := rel
		stored.Evidence = append([]common.Mention(nil), rel.Evidence...)
		g.edges[key] = &stored
		g.incident[key.Source] = append(g.incident[key.Source], key)
		g.incident[key.Target] = append(g.incident[key.Target], key)
		g.degree[key.Source] += rel.Weight
		g.degree[key.Target] += rel.Weight
		return true
	}

	oldWeight := existing.Weight
	existing.Weight = (existing.Weight + rel.Weight) / 2
	existing.Confidence = (existing.Confidence + rel.Confidence) / 2
	existing.Evidence = mergeMentions(existing.Evidence, rel.Evidence)
	delta := existing.Weight - oldWeight
	g.degree[key.Source] += delta
	g.degree[key.Target] += delta
	return false
}

// registerUnit records a reference to an upstream content unit. Re-registering
// the same id overwrites the reference. Lock must be held.
func (g *KnowledgeGraph) registerUnit(ref UnitRef) {
	if _, ok := g.units[ref.ID]; !ok {
		g.unitOrder = append(g.unitOrder, ref.ID)
	}
	g.units[ref.ID] = ref
}

func removeEdgeKey(keys []edgeKey, remove edgeKey) []edgeKey {
	out := keys[:0]
	for _, key := range keys {
		if key != remove {
			out = append(out, key)
		}
	}
	return out
}

func mergeMentions(existing, incoming []common.Mention) []common.Mention {
	seen := make(map[common.Mention]bool, len(existing))
	for _, m := range existing {
		seen[m] = true
	}
	for _, m := range incoming {
		if !seen[m] {
			seen[m] = true
			existing = append(existing, m)
		}
	}
	return existing
}
