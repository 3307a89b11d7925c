package assemble

import (
	"context"
	"strings"
	"testing"

	"github.com/docgraph-io/docgraph/pkg/common"
	"github.com/docgraph-io/docgraph/pkg/config"
	"github.com/docgraph-io/docgraph/pkg/kg"
)

// wordCounter keeps token arithmetic in the tests readable.
var wordCounter = TokenCounterFunc(func(text string) int {
	return len(strings.Fields(text))
})

func testAssembler(t *testing.T, mutate func(*config.Config)) (*Assembler, *MemoryUnitSource) {
	t.Helper()
	cfg := config.Default()
	cfg.Retrieval.MaxContextTokens = 10
	cfg.ContextAssembly = config.ContextAssemblyConfig{MaxTables: 1, MaxFigures: 1, MaxEntities: 2}
	if mutate != nil {
		mutate(&cfg)
	}
	source := NewMemoryUnitSource()
	assembler := NewAssembler(NewAssemblerParams{Config: cfg, Source: source, Counter: wordCounter})
	return assembler, source
}

func textUnit(id, content string) common.ContentUnit {
	return common.ContentUnit{
		ID:         id,
		Modality:   common.ModalityText,
		Content:    content,
		Provenance: common.Provenance{DocumentID: "doc1", Page: 1},
	}
}

func unitCandidate(id string, score float64) common.RetrievalCandidate {
	return common.RetrievalCandidate{Kind: common.CandidateUnitKind, UnitID: id, Fused: score}
}

func entityCandidate(id int64, score float64) common.RetrievalCandidate {
	return common.RetrievalCandidate{Kind: common.CandidateEntityKind, EntityID: id, Fused: score}
}

func TestAssembleAdmitsInRankedOrder(t *testing.T) {
	assembler, source := testAssembler(t, nil)
	source.Put(textUnit("u1", "one two three"))
	source.Put(textUnit("u2", "four five"))

	view := &kg.View{}
	bundle, err := assembler.Assemble(context.Background(), view, []common.RetrievalCandidate{
		unitCandidate("u1", 0.9),
		unitCandidate("u2", 0.8),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(bundle.Passages) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(bundle.Passages))
	}
	if bundle.Passages[0].UnitID != "u1" || bundle.Passages[1].UnitID != "u2" {
		t.Fatalf("expected ranked order preserved, got %q then %q",
			bundle.Passages[0].UnitID, bundle.Passages[1].UnitID)
	}
	if bundle.TotalTokens != 5 {
		t.Fatalf("unexpected total tokens: got %d, want 5", bundle.TotalTokens)
	}
	if bundle.Passages[0].Provenance.DocumentID != "doc1" {
		t.Fatalf("expected provenance to be carried, got %+v", bundle.Passages[0].Provenance)
	}
}

func TestAssembleStopsAtTokenBudget(t *testing.T) {
	assembler, source := testAssembler(t, func(cfg *config.Config) {
		cfg.Retrieval.MaxContextTokens = 5
	})
	source.Put(textUnit("u1", "one two three"))
	source.Put(textUnit("u2", "four five six"))
	source.Put(textUnit("u3", "seven"))

	bundle, err := assembler.Assemble(context.Background(), &kg.View{}, []common.RetrievalCandidate{
		unitCandidate("u1", 0.9),
		unitCandidate("u2", 0.8),
		unitCandidate("u3", 0.7),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// u2 overflows the remaining budget, which ends admission entirely:
	// u3 would still fit but must not displace a higher-ranked item.
	if len(bundle.Passages) != 1 || bundle.Passages[0].UnitID != "u1" {
		t.Fatalf("expected only u1 admitted, got %+v", bundle.Passages)
	}
	if bundle.TotalTokens != 3 {
		t.Fatalf("unexpected total tokens: got %d, want 3", bundle.TotalTokens)
	}
}

func TestAssembleModalityCaps(t *testing.T) {
	assembler, source := testAssembler(t, func(cfg *config.Config) {
		cfg.Retrieval.MaxContextTokens = 100
	})
	source.Put(common.ContentUnit{ID: "t1", Modality: common.ModalityTable, Content: "a b"})
	source.Put(common.ContentUnit{ID: "t2", Modality: common.ModalityTable, Content: "c d"})
	source.Put(common.ContentUnit{ID: "f1", Modality: common.ModalityFigure, Content: "caption one"})
	source.Put(textUnit("u1", "trailing text"))

	bundle, err := assembler.Assemble(context.Background(), &kg.View{}, []common.RetrievalCandidate{
		unitCandidate("t1", 0.9),
		unitCandidate("t2", 0.8),
		unitCandidate("f1", 0.7),
		unitCandidate("u1", 0.6),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(bundle.Tables) != 1 || bundle.Tables[0].UnitID != "t1" {
		t.Fatalf("expected table cap of 1, got %+v", bundle.Tables)
	}
	if len(bundle.Figures) != 1 {
		t.Fatalf("expected 1 figure, got %d", len(bundle.Figures))
	}
	// A capped-out table skips the slot without ending admission.
	if len(bundle.Passages) != 1 || bundle.Passages[0].UnitID != "u1" {
		t.Fatalf("expected trailing passage to be admitted, got %+v", bundle.Passages)
	}
}

func TestAssembleEntityCapAndTokens(t *testing.T) {
	assembler, _ := testAssembler(t, func(cfg *config.Config) {
		cfg.Retrieval.MaxContextTokens = 100
	})

	view := &kg.View{
		Nodes: []kg.NodeView{
			{ID: 0, Name: "load balancer", Type: common.EntityClass},
			{ID: 1, Name: "batch_send()", Type: common.EntityFunction},
			{ID: 2, Name: "MAX_RETRIES", Type: common.EntityConstant},
		},
	}
	bundle, err := assembler.Assemble(context.Background(), view, []common.RetrievalCandidate{
		entityCandidate(0, 0.9),
		entityCandidate(1, 0.8),
		entityCandidate(2, 0.7),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(bundle.Entities) != 2 {
		t.Fatalf("expected entity cap of 2, got %d", len(bundle.Entities))
	}
	if bundle.Entities[0].Name != "load balancer" || bundle.Entities[0].Tokens != 2 {
		t.Fatalf("unexpected first entity: %+v", bundle.Entities[0])
	}
	if bundle.TotalTokens != 3 {
		t.Fatalf("unexpected total tokens: got %d, want 3", bundle.TotalTokens)
	}
}

func TestAssembleSkipsMissingUnits(t *testing.T) {
	assembler, source := testAssembler(t, nil)
	source.Put(textUnit("u2", "still here"))

	bundle, err := assembler.Assemble(context.Background(), &kg.View{}, []common.RetrievalCandidate{
		unitCandidate("u1", 0.9),
		unitCandidate("u2", 0.8),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bundle.Passages) != 1 || bundle.Passages[0].UnitID != "u2" {
		t.Fatalf("expected missing unit to be skipped, got %+v", bundle.Passages)
	}
}

func TestAssembleUnknownEntitySkipped(t *testing.T) {
	assembler, _ := testAssembler(t, nil)

	bundle, err := assembler.Assemble(context.Background(), &kg.View{}, []common.RetrievalCandidate{
		entityCandidate(42, 0.9),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bundle.Entities) != 0 {
		t.Fatalf("expected no entities, got %+v", bundle.Entities)
	}
}

func TestAssembleEmptyCandidatesYieldsEmptyBundle(t *testing.T) {
	assembler, _ := testAssembler(t, nil)

	bundle, err := assembler.Assemble(context.Background(), &kg.View{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.TotalTokens != 0 || len(bundle.Passages) != 0 || len(bundle.Entities) != 0 {
		t.Fatalf("expected empty bundle, got %+v", bundle)
	}
	if bundle.Passages == nil || bundle.Tables == nil || bundle.Figures == nil || bundle.Entities == nil {
		t.Fatal("expected empty slices, not nil")
	}
}

func TestAssembleHonorsCancellation(t *testing.T) {
	assembler, source := testAssembler(t, nil)
	source.Put(textUnit("u1", "one"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := assembler.Assemble(ctx, &kg.View{}, []common.RetrievalCandidate{
		unitCandidate("u1", 0.9),
	}); err == nil {
		t.Fatal("expected context error, got nil")
	}
}
