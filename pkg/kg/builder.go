package kg

import (
	"context"
	"fmt"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/docgraph-io/docgraph/pkg/common"
	"github.com/docgraph-io/docgraph/pkg/config"
	"github.com/docgraph-io/docgraph/pkg/embed"
	"github.com/docgraph-io/docgraph/pkg/logger"
)

// Batch is the unit of ingestion: one content unit together with the
// candidate entities and relationships extracted from it. The Unit may be
// nil for cross-unit relationship batches.
type Batch struct {
	Unit          *common.ContentUnit
	Entities      []common.CandidateEntity
	Relationships []common.CandidateRelationship
}

// Delta summarizes the effect of one ingest transaction.
type Delta struct {
	UnitsRegistered int
	NodesCreated    int
	NodesMerged     int
	NodesEvicted    int
	EdgesCreated    int
	EdgesUpdated    int
	Dropped         int
	Warnings        []string
}

// Add accumulates another delta into d.
func (d *Delta) Add(other *Delta) {
	d.UnitsRegistered += other.UnitsRegistered
	d.NodesCreated += other.NodesCreated
	d.NodesMerged += other.NodesMerged
	d.NodesEvicted += other.NodesEvicted
	d.EdgesCreated += other.EdgesCreated
	d.EdgesUpdated += other.EdgesUpdated
	d.Dropped += other.Dropped
	d.Warnings = append(d.Warnings, other.Warnings...)
}

// Builder resolves candidate entities and relationships into the shared
// knowledge graph. Writes follow single-writer discipline: one logical
// ingest transaction at a time; each batch is applied atomically with
// respect to concurrent readers.
//
// A Builder should be created using NewBuilder.
type Builder struct {
	graph    *KnowledgeGraph
	embedder embed.Embedder

	resolutionThreshold float64
	edgeWeightThreshold float64
	textDimension       int
	imageDimension      int

	writeLock sync.Mutex
}

// NewBuilderParams configures a Builder.
//
// Embedder is optional: when present, candidate entities arriving without
// an embedding get one assigned from their name before resolution.
type NewBuilderParams struct {
	Graph    *KnowledgeGraph
	Embedder embed.Embedder
	Config   config.Config
}

// NewBuilder creates a Builder bound to a graph. The entity-resolution
// threshold reuses the retrieval similarity threshold.
func NewBuilder(params NewBuilderParams) (*Builder, error) {
	if params.Graph == nil {
		return nil, fmt.Errorf("graph is required")
	}
	return &Builder{
		graph:               params.Graph,
		embedder:            params.Embedder,
		resolutionThreshold: params.Config.Retrieval.SimilarityThreshold,
		edgeWeightThreshold: params.Config.KnowledgeGraph.EdgeWeightThreshold,
		textDimension:       params.Config.KnowledgeGraph.EmbeddingDimension,
		imageDimension:      params.Config.KnowledgeGraph.ImageDimension,
	}, nil
}

// IngestAll ingests a sequence of batches, checking for cooperative
// cancellation between batches. A canceled context stops before the next
// batch; the batch in progress is always applied completely, so no unit is
// ever left partially merged.
func (b *Builder) IngestAll(ctx context.Context, batches []Batch) (*Delta, error) {
	total := &Delta{}
	for i := range batches {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		delta, err := b.Ingest(ctx, batches[i])
		if err != nil {
			return total, err
		}
		total.Add(delta)
	}
	return total, nil
}

// Ingest applies one batch as a single atomic transaction. It is
// idempotent: re-ingesting the same batch creates no duplicate nodes or
// edges and leaves counts stable. Malformed candidates are skipped with a
// recorded warning, never fatal to the batch.
func (b *Builder) Ingest(ctx context.Context, batch Batch) (*Delta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Assign missing embeddings before taking the write lock so network
	// calls never stall readers.
	entities, embedWarnings := b.prepareEntities(ctx, batch.Entities)

	b.writeLock.Lock()
	defer b.writeLock.Unlock()

	g := b.graph
	g.mu.Lock()
	defer g.mu.Unlock()

	delta := &Delta{Warnings: embedWarnings}

	if batch.Unit != nil {
		b.applyUnit(*batch.Unit, delta)
	}

	resolved := make(map[string]int64, len(entities))
	for _, candidate := range entities {
		id, ok := b.applyEntity(candidate, delta)
		if ok {
			resolved[common.CanonicalName(candidate.Name)] = id
		}
	}

	for _, candidate := range batch.Relationships {
		b.applyRelationship(candidate, resolved, delta)
	}

	logger.Debug("[Builder] Batch ingested",
		"nodes_created", delta.NodesCreated,
		"nodes_merged", delta.NodesMerged,
		"edges_created", delta.EdgesCreated,
		"edges_updated", delta.EdgesUpdated,
		"dropped", delta.Dropped,
	)

	return delta, nil
}

func (b *Builder) prepareEntities(
	ctx context.Context,
	candidates []common.CandidateEntity,
) ([]common.CandidateEntity, []string) {
	if b.embedder == nil {
		return candidates, nil
	}

	out := make([]common.CandidateEntity, len(candidates))
	copy(out, candidates)

	var missing []int
	for i := range out {
		if out[i].Embedding == nil {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	inputs := make([][]byte, len(missing))
	for j, i := range missing {
		inputs[j] = []byte(out[i].Name)
	}

	// Candidates without an embedding still resolve by canonical name, so
	// a failed batch degrades the merge quality but never fails ingestion.
	vectors, err := embed.EmbedAll(ctx, b.embedder, inputs)
	if err != nil {
		warning := fmt.Sprintf("embedding failed for %d entities: %v", len(missing), err)
		logger.Warn("[Builder] "+warning, "err", err)
		return out, []string{warning}
	}

	for j, i := range missing {
		out[i].Embedding = vectors[j]
	}
	return out, nil
}

// applyUnit registers a unit reference after checking its embedding
// dimension against the modality's expected size. A mismatched embedding
// is dropped from the reference with a warning; the unit itself is still
// registered. Graph lock must be held.
func (b *Builder) applyUnit(unit common.ContentUnit, delta *Delta) {
	embedding := unit.Embedding
	if embedding != nil {
		want := b.textDimension
		if unit.Modality == common.ModalityFigure {
			want = b.imageDimension
		}
		if len(embedding) != want {
			warning := fmt.Sprintf("unit %s: embedding dimension mismatch: got %d want %d", unit.ID, len(embedding), want)
			logger.Warn("[Builder] " + warning)
			delta.Warnings = append(delta.Warnings, warning)
			embedding = nil
		}
	}

	b.graph.registerUnit(UnitRef{
		ID:         unit.ID,
		Modality:   unit.Modality,
		Embedding:  embedding,
		Provenance: unit.Provenance,
	})
	delta.UnitsRegistered++
}

// applyEntity resolves one candidate into the graph: merge into an
// existing node on canonical-name match or embedding similarity above the
// resolution threshold, otherwise create a node subject to the capacity
// rule. Graph lock must be held.
func (b *Builder) applyEntity(candidate common.CandidateEntity, delta *Delta) (int64, bool) {
	canonical := common.CanonicalName(candidate.Name)
	if canonical == "" {
		delta.Dropped++
		delta.Warnings = append(delta.Warnings, fmt.Sprintf("%v: empty entity name", ErrExtraction))
		return 0, false
	}

	if candidate.Embedding != nil && len(candidate.Embedding) != b.textDimension {
		warning := fmt.Sprintf("%v: entity %q: embedding dimension mismatch: got %d want %d",
			ErrExtraction, candidate.Name, len(candidate.Embedding), b.textDimension)
		logger.Warn("[Builder] " + warning)
		delta.Warnings = append(delta.Warnings, warning)
		delta.Dropped++
		return 0, false
	}

	g := b.graph

	if id, ok := g.lookupCanonical(canonical); ok {
		b.mergeInto(id, candidate, delta)
		return id, true
	}

	if id, ok := b.resolveByEmbedding(candidate); ok {
		b.mergeInto(id, candidate, delta)
		return id, true
	}

	publicID, err := gonanoid.New()
	if err != nil {
		delta.Warnings = append(delta.Warnings, fmt.Sprintf("id generation failed: %v", err))
		delta.Dropped++
		return 0, false
	}

	node := &common.Entity{
		PublicID:   publicID,
		Name:       candidate.Name,
		Canonical:  canonical,
		Type:       candidate.Type,
		Confidence: candidate.Confidence,
		Embedding:  candidate.Embedding,
		Mentions:   []common.Mention{candidate.Mention},
	}
	id, evicted := g.insertNode(node)
	if len(evicted) > 0 {
		logger.Debug("[Builder] Evicted nodes for capacity", "count", len(evicted), "cause", ErrCapacityExceeded)
		delta.NodesEvicted += len(evicted)
	}
	delta.NodesCreated++
	return id, true
}

// resolveByEmbedding finds the live node with the highest cosine
// similarity at or above the resolution threshold. More than one node
// above the threshold is an ambiguous merge, resolved deterministically
// toward the highest similarity (ties toward the lower id) and logged.
// Graph lock must be held.
func (b *Builder) resolveByEmbedding(candidate common.CandidateEntity) (int64, bool) {
	if candidate.Embedding == nil {
		return 0, false
	}

	g := b.graph
	best := int64(-1)
	bestScore := 0.0
	aboveThreshold := 0
	for id := int64(0); id < int64(len(g.nodes)); id++ {
		node := g.nodes[id]
		if node == nil || node.Embedding == nil || len(node.Embedding) != len(candidate.Embedding) {
			continue
		}
		score, err := embed.CosineSimilarity(candidate.Embedding, node.Embedding)
		if err != nil || score < b.resolutionThreshold {
			continue
		}
		aboveThreshold++
		if best == -1 || score > bestScore {
			best = id
			bestScore = score
		}
	}
	if best == -1 {
		return 0, false
	}
	if aboveThreshold > 1 {
		logger.Debug("[Builder] Ambiguous entity merge resolved to best match",
			"entity", candidate.Name, "node_id", best, "score", bestScore,
			"candidates", aboveThreshold, "cause", ErrResolutionConflict)
	}
	return best, true
}

// mergeInto folds a candidate into an existing node: mentions are deduped,
// confidence follows the same bounded running average as edge weights, and
// a missing embedding is adopted from the candidate. Graph lock must be
// held.
func (b *Builder) mergeInto(id int64, candidate common.CandidateEntity, delta *Delta) {
	node := b.graph.nodes[id]
	before := len(node.Mentions)
	node.Mentions = mergeMentions(node.Mentions, []common.Mention{candidate.Mention})
	if len(node.Mentions) != before {
		node.Confidence = (node.Confidence + candidate.Confidence) / 2
	}
	if node.Embedding == nil && candidate.Embedding != nil {
		node.Embedding = candidate.Embedding
	}
	delta.NodesMerged++
}

// applyRelationship resolves both endpoints and upserts the edge. The
// relationship is dropped when an endpoint cannot be resolved, when it
// would loop a node onto itself, or when its weight sits below the edge
// weight threshold. Graph lock must be held.
func (b *Builder) applyRelationship(
	candidate common.CandidateRelationship,
	resolved map[string]int64,
	delta *Delta,
) {
	if candidate.Confidence < b.edgeWeightThreshold {
		delta.Dropped++
		return
	}

	source, ok := b.resolveEndpoint(candidate.SourceName, resolved)
	if !ok {
		delta.Dropped++
		delta.Warnings = append(delta.Warnings, fmt.Sprintf("unresolved relationship endpoint %q", candidate.SourceName))
		return
	}
	target, ok := b.resolveEndpoint(candidate.TargetName, resolved)
	if !ok {
		delta.Dropped++
		delta.Warnings = append(delta.Warnings, fmt.Sprintf("unresolved relationship endpoint %q", candidate.TargetName))
		return
	}
	if source == target {
		delta.Dropped++
		return
	}

	created := b.graph.upsertEdge(common.Relationship{
		Source:     source,
		Target:     target,
		Type:       candidate.Type,
		Weight:     candidate.Confidence,
		Confidence: candidate.Confidence,
		Evidence:   []common.Mention{candidate.Evidence},
	})
	if created {
		delta.EdgesCreated++
	} else {
		delta.EdgesUpdated++
	}
}

func (b *Builder) resolveEndpoint(name string, resolved map[string]int64) (int64, bool) {
	canonical := common.CanonicalName(name)
	if id, ok := resolved[canonical]; ok {
		// A node resolved earlier in this batch can be evicted by a later
		// insert; only a live id may back an edge.
		if id < int64(len(b.graph.nodes)) && b.graph.nodes[id] != nil {
			return id, true
		}
	}
	return b.graph.lookupCanonical(canonical)
}
