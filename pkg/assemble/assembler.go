// Package assemble turns a ranked candidate list into a bounded context
// bundle. Admission is greedy in ranked order under a hard token budget
// and per-modality slot caps.
package assemble

import (
	"context"
	"fmt"
	"sync"

	"github.com/docgraph-io/docgraph/pkg/common"
	"github.com/docgraph-io/docgraph/pkg/config"
	"github.com/docgraph-io/docgraph/pkg/kg"
	"github.com/docgraph-io/docgraph/pkg/logger"
)

// UnitSource resolves a content unit id back to its full unit. The graph
// keeps only unit references; the raw content lives with the source.
type UnitSource interface {
	Unit(ctx context.Context, id string) (common.ContentUnit, bool, error)
}

// MemoryUnitSource is a map-backed UnitSource. It is the source of record
// for in-process pipelines and tests.
type MemoryUnitSource struct {
	mu    sync.RWMutex
	units map[string]common.ContentUnit
}

func NewMemoryUnitSource() *MemoryUnitSource {
	return &MemoryUnitSource{units: make(map[string]common.ContentUnit)}
}

// Put stores or replaces a unit.
func (s *MemoryUnitSource) Put(unit common.ContentUnit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[unit.ID] = unit
}

func (s *MemoryUnitSource) Unit(_ context.Context, id string) (common.ContentUnit, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	unit, ok := s.units[id]
	return unit, ok, nil
}

// Assembler builds context bundles. It is stateless between calls and safe
// for concurrent use.
//
// An Assembler should be created using NewAssembler.
type Assembler struct {
	maxTokens   int
	maxTables   int
	maxFigures  int
	maxEntities int
	counter     TokenCounter
	source      UnitSource
}

// NewAssemblerParams contains all dependencies needed to create a new
// Assembler.
type NewAssemblerParams struct {
	Config config.Config
	Source UnitSource

	// Counter may be nil, in which case the default tiktoken-backed
	// counter is used.
	Counter TokenCounter
}

// NewAssembler creates a new Assembler.
func NewAssembler(params NewAssemblerParams) *Assembler {
	counter := params.Counter
	if counter == nil {
		counter = DefaultTokenCounter()
	}
	return &Assembler{
		maxTokens:   params.Config.Retrieval.MaxContextTokens,
		maxTables:   params.Config.ContextAssembly.MaxTables,
		maxFigures:  params.Config.ContextAssembly.MaxFigures,
		maxEntities: params.Config.ContextAssembly.MaxEntities,
		counter:     counter,
		source:      params.Source,
	}
}

// Assemble admits candidates in ranked order until the token budget or all
// modality slots run out. The first item that would push the running total
// past the budget stops admission entirely, so a lower-ranked item can
// never displace a higher-ranked one. Given the same ranked input, the
// same View and the same budget, the output is identical on every call.
func (a *Assembler) Assemble(ctx context.Context, view *kg.View, candidates []common.RetrievalCandidate) (common.ContextBundle, error) {
	bundle := common.ContextBundle{
		Passages: []common.Passage{},
		Tables:   []common.TableRef{},
		Figures:  []common.FigureRef{},
		Entities: []common.EntityRef{},
	}

	nodes := make(map[int64]kg.NodeView, len(view.Nodes))
	for _, node := range view.Nodes {
		nodes[node.ID] = node
	}

	remaining := a.maxTokens
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return common.ContextBundle{}, err
		}
		if remaining <= 0 {
			break
		}

		switch candidate.Kind {
		case common.CandidateEntityKind:
			if len(bundle.Entities) >= a.maxEntities {
				continue
			}
			node, ok := nodes[candidate.EntityID]
			if !ok {
				continue
			}
			tokens := a.counter.Count(node.Name)
			if tokens > remaining {
				return bundle, nil
			}
			bundle.Entities = append(bundle.Entities, common.EntityRef{
				EntityID: node.ID,
				Name:     node.Name,
				Type:     node.Type,
				Tokens:   tokens,
				Score:    candidate.Fused,
			})
			remaining -= tokens
			bundle.TotalTokens += tokens

		case common.CandidateUnitKind:
			unit, ok, err := a.source.Unit(ctx, candidate.UnitID)
			if err != nil {
				return common.ContextBundle{}, fmt.Errorf("failed to resolve content unit %s: %w", candidate.UnitID, err)
			}
			if !ok {
				logger.Warn("[Assembler] Ranked unit missing from source", "unitID", candidate.UnitID)
				continue
			}
			stop, admitted := a.admitUnit(&bundle, unit, candidate.Fused, remaining)
			if stop {
				return bundle, nil
			}
			remaining -= admitted
		}
	}

	return bundle, nil
}

// admitUnit places one unit into its modality slot. It returns stop=true
// when the unit exceeded the remaining budget, and otherwise the number of
// tokens the unit consumed (0 when its slot cap was already full).
func (a *Assembler) admitUnit(bundle *common.ContextBundle, unit common.ContentUnit, score float64, remaining int) (stop bool, admitted int) {
	tokens := a.counter.Count(unit.Content)

	switch unit.Modality {
	case common.ModalityText:
		if tokens > remaining {
			return true, 0
		}
		bundle.Passages = append(bundle.Passages, common.Passage{
			UnitID:     unit.ID,
			Text:       unit.Content,
			Tokens:     tokens,
			Score:      score,
			Provenance: unit.Provenance,
		})

	case common.ModalityTable:
		if len(bundle.Tables) >= a.maxTables {
			return false, 0
		}
		if tokens > remaining {
			return true, 0
		}
		bundle.Tables = append(bundle.Tables, common.TableRef{
			UnitID:     unit.ID,
			Content:    unit.Content,
			Tokens:     tokens,
			Score:      score,
			Provenance: unit.Provenance,
		})

	case common.ModalityFigure:
		if len(bundle.Figures) >= a.maxFigures {
			return false, 0
		}
		if tokens > remaining {
			return true, 0
		}
		bundle.Figures = append(bundle.Figures, common.FigureRef{
			UnitID:     unit.ID,
			Content:    unit.Content,
			Tokens:     tokens,
			Score:      score,
			Provenance: unit.Provenance,
		})

	default:
		return false, 0
	}

	bundle.TotalTokens += tokens
	return false, tokens
}
