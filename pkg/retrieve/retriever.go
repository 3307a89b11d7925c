// Package retrieve implements graph-aware context retrieval: a cheap
// vector filter selects a seed set, bounded traversal expands it through
// the knowledge graph, and the two signals are fused into one ranking.
package retrieve

import (
	"context"
	"fmt"
	"sort"

	"github.com/docgraph-io/docgraph/pkg/common"
	"github.com/docgraph-io/docgraph/pkg/config"
	"github.com/docgraph-io/docgraph/pkg/embed"
	"github.com/docgraph-io/docgraph/pkg/kg"
	"github.com/docgraph-io/docgraph/pkg/logger"
)

// Retriever answers retrieval queries against graph snapshots. It is
// stateless between calls; any number of retrievals may run concurrently
// as long as each works on its own View.
//
// A Retriever should be created using NewRetriever.
type Retriever struct {
	initialCandidates   int
	maxHops             int
	similarityThreshold float64
	semanticWeight      float64
	graphWeight         float64
}

// NewRetrieverParams contains all dependencies needed to create a new
// Retriever.
type NewRetrieverParams struct {
	Config config.Config
}

// NewRetriever creates a new Retriever. The configuration must already be
// validated; fusion weights are taken as given.
func NewRetriever(params NewRetrieverParams) *Retriever {
	return &Retriever{
		initialCandidates:   params.Config.Retrieval.InitialCandidates,
		maxHops:             params.Config.Retrieval.MaxGraphHops,
		similarityThreshold: params.Config.Retrieval.SimilarityThreshold,
		semanticWeight:      params.Config.Retrieval.Weights.SemanticSimilarity,
		graphWeight:         params.Config.Retrieval.Weights.GraphDistance,
	}
}

// scored is one node or unit with its semantic score. Entities order
// before units so cross-kind ties resolve the same way on every call.
type scored struct {
	kind     common.CandidateKind
	entityID int64
	unitID   string
	semantic float64
}

func (s scored) idLess(other scored) bool {
	if s.kind != other.kind {
		return s.kind == common.CandidateEntityKind
	}
	if s.kind == common.CandidateEntityKind {
		return s.entityID < other.entityID
	}
	return s.unitID < other.unitID
}

// Retrieve ranks graph nodes and content units against a query embedding.
//
// Stage one scores every node and unit by cosine similarity and keeps the
// top initial_candidates as seeds. Stage two walks the graph outward from
// the seed nodes up to maxHops hops; a reached node scores the maximum
// product of edge weights over its discovered paths, seeds score 1 and
// unreached items score 0. The fused score combines both signals with the
// configured weights; candidates below the similarity threshold are
// dropped and the top topK survivors are returned.
//
// An empty result is a valid outcome, not an error. Repeated calls on the
// same View and query return the same ordered slice.
func (r *Retriever) Retrieve(ctx context.Context, view *kg.View, query []float32, topK int, maxHops int) ([]common.RetrievalCandidate, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}
	if topK <= 0 {
		return []common.RetrievalCandidate{}, nil
	}
	if maxHops < 0 {
		maxHops = r.maxHops
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pool, skipped := r.scorePool(view, query)
	if skipped > 0 {
		logger.Debug("[Retriever] Skipped items with incompatible embeddings",
			"skipped", skipped, "queryDimension", len(query))
	}
	if len(pool) == 0 {
		return []common.RetrievalCandidate{}, nil
	}

	seeds := r.seedSet(pool)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	graphScores := r.traverse(view, seeds, maxHops)

	candidates := r.fuse(pool, seeds, graphScores)
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	logger.Debug("[Retriever] Retrieval complete",
		"pool", len(pool), "seeds", len(seeds), "reached", len(graphScores), "returned", len(candidates))
	return candidates, nil
}

// scorePool computes the semantic score of every node and unit whose
// embedding matches the query dimension. Items with missing or mismatched
// embeddings are counted and skipped.
func (r *Retriever) scorePool(view *kg.View, query []float32) ([]scored, int) {
	pool := make([]scored, 0, len(view.Nodes)+len(view.Units))
	skipped := 0

	for _, node := range view.Nodes {
		if len(node.Embedding) != len(query) {
			skipped++
			continue
		}
		similarity, err := embed.CosineSimilarity(query, node.Embedding)
		if err != nil {
			skipped++
			continue
		}
		pool = append(pool, scored{
			kind:     common.CandidateEntityKind,
			entityID: node.ID,
			semantic: similarity,
		})
	}

	for _, unit := range view.Units {
		if len(unit.Embedding) != len(query) {
			skipped++
			continue
		}
		similarity, err := embed.CosineSimilarity(query, unit.Embedding)
		if err != nil {
			skipped++
			continue
		}
		pool = append(pool, scored{
			kind:     common.CandidateUnitKind,
			unitID:   unit.ID,
			semantic: similarity,
		})
	}

	return pool, skipped
}

// seedSet keeps the top initial_candidates of the pool by semantic score.
// The cutoff is hard; ties fall to the lower id.
func (r *Retriever) seedSet(pool []scored) []scored {
	ranked := append([]scored(nil), pool...)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].semantic != ranked[j].semantic {
			return ranked[i].semantic > ranked[j].semantic
		}
		return ranked[i].idLess(ranked[j])
	})
	if len(ranked) > r.initialCandidates {
		ranked = ranked[:r.initialCandidates]
	}
	return ranked
}

// traverse performs hop-layered relaxation from the seed nodes. Each
// round extends every known path by one edge, so after maxHops rounds the
// score of a node is the best product of edge weights over all paths of
// at most maxHops edges from any seed.
func (r *Retriever) traverse(view *kg.View, seeds []scored, maxHops int) map[int64]float64 {
	best := make(map[int64]float64)
	frontier := make([]int64, 0, len(seeds))
	for _, seed := range seeds {
		if seed.kind != common.CandidateEntityKind {
			continue
		}
		if _, ok := best[seed.entityID]; !ok {
			best[seed.entityID] = 1.0
			frontier = append(frontier, seed.entityID)
		}
	}
	sort.Slice(frontier, func(i, j int) bool { return frontier[i] < frontier[j] })

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		// Relax against the scores from the previous round only, so a
		// single round never extends a path by more than one edge.
		prev := make(map[int64]float64, len(best))
		for id, score := range best {
			prev[id] = score
		}

		improved := make(map[int64]bool)
		for _, id := range frontier {
			for _, edge := range view.Adjacency[id] {
				candidate := prev[id] * edge.Weight
				if candidate > best[edge.To] {
					best[edge.To] = candidate
					improved[edge.To] = true
				}
			}
		}

		frontier = frontier[:0]
		for id := range improved {
			frontier = append(frontier, id)
		}
		sort.Slice(frontier, func(i, j int) bool { return frontier[i] < frontier[j] })
	}

	return best
}

// fuse combines the two signals for every candidate the query touched:
// the seed set plus every node the traversal reached. Candidates below
// the similarity threshold are dropped; the rest are ordered by fused
// score, then semantic score, then id.
func (r *Retriever) fuse(pool []scored, seeds []scored, graphScores map[int64]float64) []common.RetrievalCandidate {
	seedUnits := make(map[string]bool)
	for _, seed := range seeds {
		if seed.kind == common.CandidateUnitKind {
			seedUnits[seed.unitID] = true
		}
	}

	indexed := make([]int, 0, len(pool))
	for i, item := range pool {
		switch item.kind {
		case common.CandidateEntityKind:
			if _, ok := graphScores[item.entityID]; ok {
				indexed = append(indexed, i)
			}
		case common.CandidateUnitKind:
			if seedUnits[item.unitID] {
				indexed = append(indexed, i)
			}
		}
	}

	candidates := make([]common.RetrievalCandidate, 0, len(indexed))
	for _, i := range indexed {
		item := pool[i]
		graphScore := 0.0
		if item.kind == common.CandidateEntityKind {
			graphScore = graphScores[item.entityID]
		} else if seedUnits[item.unitID] {
			graphScore = 1.0
		}

		fused := r.semanticWeight*item.semantic + r.graphWeight*graphScore
		if fused < r.similarityThreshold {
			continue
		}

		candidates = append(candidates, common.RetrievalCandidate{
			Kind:       item.kind,
			EntityID:   item.entityID,
			UnitID:     item.unitID,
			Semantic:   item.semantic,
			GraphScore: graphScore,
			Fused:      fused,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Fused != candidates[j].Fused {
			return candidates[i].Fused > candidates[j].Fused
		}
		if candidates[i].Semantic != candidates[j].Semantic {
			return candidates[i].Semantic > candidates[j].Semantic
		}
		a := scored{kind: candidates[i].Kind, entityID: candidates[i].EntityID, unitID: candidates[i].UnitID}
		b := scored{kind: candidates[j].Kind, entityID: candidates[j].EntityID, unitID: candidates[j].UnitID}
		return a.idLess(b)
	})
	return candidates
}
