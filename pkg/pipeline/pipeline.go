// Package pipeline wires extraction, graph construction, retrieval and
// assembly into one ingest-and-query facade. Extraction runs in parallel
// per content unit; graph writes are serialized by the Builder.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/docgraph-io/docgraph/pkg/assemble"
	"github.com/docgraph-io/docgraph/pkg/common"
	"github.com/docgraph-io/docgraph/pkg/config"
	"github.com/docgraph-io/docgraph/pkg/extract"
	"github.com/docgraph-io/docgraph/pkg/kg"
	"github.com/docgraph-io/docgraph/pkg/logger"
	"github.com/docgraph-io/docgraph/pkg/retrieve"
)

// UnitSink receives every successfully ingested unit so its raw content
// stays resolvable at assembly time.
type UnitSink interface {
	Put(unit common.ContentUnit)
}

// A Pipeline should be created using NewPipeline.
type Pipeline struct {
	entities      *extract.EntityExtractor
	relationships *extract.RelationshipExtractor
	builder       *kg.Builder
	retriever     *retrieve.Retriever
	assembler     *assemble.Assembler
	graph         *kg.KnowledgeGraph
	sink          UnitSink

	parallelUnits int
}

// NewPipelineParams contains all dependencies needed to create a new
// Pipeline.
//
// ParallelUnits controls how many content units are extracted in parallel.
type NewPipelineParams struct {
	Config        config.Config
	Graph         *kg.KnowledgeGraph
	Builder       *kg.Builder
	Retriever     *retrieve.Retriever
	Assembler     *assemble.Assembler
	Sink          UnitSink
	Classifier    extract.TypeClassifier
	ParallelUnits int
}

// NewPipeline creates a new Pipeline. The configuration must already be
// validated.
func NewPipeline(params NewPipelineParams) (*Pipeline, error) {
	entityExtractor, err := extract.NewEntityExtractor(params.Config.EntityExtraction)
	if err != nil {
		return nil, err
	}

	parallel := params.ParallelUnits
	if parallel <= 0 {
		parallel = 1
	}

	return &Pipeline{
		entities:      entityExtractor,
		relationships: extract.NewRelationshipExtractor(params.Config.Relationships, params.Classifier),
		builder:       params.Builder,
		retriever:     params.Retriever,
		assembler:     params.Assembler,
		graph:         params.Graph,
		sink:          params.Sink,
		parallelUnits: parallel,
	}, nil
}

// ProcessUnits extracts entities and relationships from every unit and
// ingests them into the graph. Units are extracted in parallel; each
// unit's ingestion is one atomic graph transaction, so cancellation
// between units never leaves a unit half merged. After the per-unit pass,
// table and figure captions are paired with text units of the same
// document page to link subjects across modalities.
func (p *Pipeline) ProcessUnits(ctx context.Context, units []common.ContentUnit) (*kg.Delta, error) {
	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.parallelUnits)
	mutex := sync.Mutex{}

	logger.Info("[Pipeline] Processing", "total_units", len(units))

	total := &kg.Delta{}
	mentionsByUnit := make(map[string][]common.CandidateEntity, len(units))

	for _, unit := range units {
		u := unit
		eg.Go(func() error {
			select {
			case <-gCtx.Done():
				return nil
			default:
				entities := collect(p.entities.Extract(u))
				relationships := p.relationships.Extract(u, entities)

				delta, err := p.builder.Ingest(gCtx, kg.Batch{
					Unit:          &u,
					Entities:      entities,
					Relationships: relationships,
				})
				if err != nil {
					return fmt.Errorf("failed to ingest unit %s: %w", u.ID, err)
				}

				if p.sink != nil {
					p.sink.Put(u)
				}

				mutex.Lock()
				defer mutex.Unlock()
				total.Add(delta)
				mentionsByUnit[u.ID] = entities
				return nil
			}
		})
	}

	if err := eg.Wait(); err != nil {
		return total, fmt.Errorf("failed to process units:\n%w", err)
	}

	if err := p.linkCaptions(ctx, units, mentionsByUnit, total); err != nil {
		return total, err
	}

	logger.Info("[Pipeline] Units processed",
		"nodes_created", total.NodesCreated, "nodes_merged", total.NodesMerged,
		"edges_created", total.EdgesCreated, "edges_updated", total.EdgesUpdated,
		"dropped", total.Dropped)
	return total, nil
}

// linkCaptions runs the cross-unit pass: mentions found in table and
// figure units are paired with mentions from text units on the same
// document page.
func (p *Pipeline) linkCaptions(
	ctx context.Context,
	units []common.ContentUnit,
	mentionsByUnit map[string][]common.CandidateEntity,
	total *kg.Delta,
) error {
	type pageKey struct {
		documentID string
		page       int
	}

	textMentions := make(map[pageKey][]common.CandidateEntity)
	for _, unit := range units {
		if unit.Modality != common.ModalityText {
			continue
		}
		key := pageKey{documentID: unit.Provenance.DocumentID, page: unit.Provenance.Page}
		textMentions[key] = append(textMentions[key], mentionsByUnit[unit.ID]...)
	}

	for _, unit := range units {
		if unit.Modality != common.ModalityTable && unit.Modality != common.ModalityFigure {
			continue
		}
		captionMentions := mentionsByUnit[unit.ID]
		if len(captionMentions) == 0 {
			continue
		}
		key := pageKey{documentID: unit.Provenance.DocumentID, page: unit.Provenance.Page}
		subjects := textMentions[key]
		if len(subjects) == 0 {
			continue
		}

		relationships := p.relationships.ExtractCaption(unit, captionMentions, subjects)
		if len(relationships) == 0 {
			continue
		}

		delta, err := p.builder.Ingest(ctx, kg.Batch{Relationships: relationships})
		if err != nil {
			return fmt.Errorf("failed to ingest caption links for unit %s: %w", unit.ID, err)
		}
		total.Add(delta)
	}

	return nil
}

// Query takes a consistent snapshot of the graph, retrieves candidates for
// the query embedding and assembles them into a bounded context bundle.
// Queries run concurrently with each other and with in-progress ingests.
func (p *Pipeline) Query(ctx context.Context, embedding []float32, topK int) (common.ContextBundle, []common.RetrievalCandidate, error) {
	view := p.graph.Snapshot()

	candidates, err := p.retriever.Retrieve(ctx, view, embedding, topK, -1)
	if err != nil {
		return common.ContextBundle{}, nil, fmt.Errorf("retrieval failed: %w", err)
	}

	bundle, err := p.assembler.Assemble(ctx, view, candidates)
	if err != nil {
		return common.ContextBundle{}, nil, fmt.Errorf("context assembly failed: %w", err)
	}

	return bundle, candidates, nil
}

func collect(seq func(yield func(common.CandidateEntity) bool)) []common.CandidateEntity {
	out := make([]common.CandidateEntity, 0)
	for candidate := range seq {
		out = append(out, candidate)
	}
	return out
}
