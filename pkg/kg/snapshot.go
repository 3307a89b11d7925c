package kg

import (
	"fmt"

	"github.com/docgraph-io/docgraph/pkg/common"
)

// Snapshot is the opaque persistence form of a graph: node id → entity,
// edge key → relationship, plus the registered unit references. Snapshots
// are written and restored atomically by the storage layer.
type Snapshot struct {
	Entities      []common.Entity       `json:"entities"`
	Relationships []common.Relationship `json:"relationships"`
	Units         []UnitRef             `json:"units"`
}

// Export captures the full graph state under a read lock.
func (g *KnowledgeGraph) Export() *Snapshot {
	snap := &Snapshot{
		Entities:      g.Entities(),
		Relationships: g.Relationships(),
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	snap.Units = make([]UnitRef, 0, len(g.units))
	for _, id := range g.unitOrder {
		snap.Units = append(snap.Units, g.units[id])
	}
	return snap
}

// Restore replaces the graph state with a snapshot in one atomic step.
// Node ids are preserved so persisted edges and external references stay
// valid. A snapshot larger than the configured capacity is rejected.
func (g *KnowledgeGraph) Restore(snap *Snapshot) error {
	if len(snap.Entities) > g.cfg.MaxNodes {
		return fmt.Errorf("snapshot has %d nodes, capacity is %d", len(snap.Entities), g.cfg.MaxNodes)
	}

	maxID := int64(-1)
	for i := range snap.Entities {
		if snap.Entities[i].ID > maxID {
			maxID = snap.Entities[i].ID
		}
	}

	nodes := make([]*common.Entity, maxID+1)
	canonical := make(map[string]int64, len(snap.Entities))
	for i := range snap.Entities {
		entity := snap.Entities[i]
		if entity.ID < 0 || (nodes[entity.ID] != nil) {
			return fmt.Errorf("snapshot has invalid or duplicate node id %d", entity.ID)
		}
		node := entity
		nodes[entity.ID] = &node
		canonical[entity.Canonical] = entity.ID
	}

	edges := make(map[edgeKey]*common.Relationship, len(snap.Relationships))
	incident := make(map[int64][]edgeKey)
	degree := make(map[int64]float64)
	for i := range snap.Relationships {
		rel := snap.Relationships[i]
		if rel.Source < 0 || rel.Source > maxID || nodes[rel.Source] == nil ||
			rel.Target < 0 || rel.Target > maxID || nodes[rel.Target] == nil {
			return fmt.Errorf("snapshot edge references missing node: %d -> %d", rel.Source, rel.Target)
		}
		key := edgeKey{Source: rel.Source, Target: rel.Target, Type: rel.Type}
		if _, ok := edges[key]; ok {
			return fmt.Errorf("snapshot has duplicate edge %d -> %d (%s)", rel.Source, rel.Target, rel.Type)
		}
		stored := rel
		edges[key] = &stored
		incident[key.Source] = append(incident[key.Source], key)
		incident[key.Target] = append(incident[key.Target], key)
		degree[key.Source] += rel.Weight
		degree[key.Target] += rel.Weight
	}

	units := make(map[string]UnitRef, len(snap.Units))
	unitOrder := make([]string, 0, len(snap.Units))
	for _, ref := range snap.Units {
		if _, ok := units[ref.ID]; !ok {
			unitOrder = append(unitOrder, ref.ID)
		}
		units[ref.ID] = ref
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = nodes
	g.canonical = canonical
	g.edges = edges
	g.incident = incident
	g.degree = degree
	g.units = units
	g.unitOrder = unitOrder
	g.alive = len(snap.Entities)
	return nil
}
