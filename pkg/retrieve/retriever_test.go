package retrieve

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/docgraph-io/docgraph/pkg/common"
	"github.com/docgraph-io/docgraph/pkg/config"
	"github.com/docgraph-io/docgraph/pkg/kg"
)

func testRetriever(t *testing.T, mutate func(*config.Config)) *Retriever {
	t.Helper()
	cfg := config.Default()
	cfg.Retrieval.InitialCandidates = 2
	cfg.Retrieval.MaxGraphHops = 2
	cfg.Retrieval.SimilarityThreshold = 0.0
	cfg.Retrieval.Weights = config.FusionWeights{SemanticSimilarity: 0.7, GraphDistance: 0.3}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewRetriever(NewRetrieverParams{Config: cfg})
}

// chainView is a three node path: 0 -(0.5)- 1 -(0.5)- 2. Node 0 matches
// the query [1 0] exactly, the others are orthogonal.
func chainView() *kg.View {
	edge01 := kg.EdgeView{From: 0, To: 1, Type: common.RelDependsOn, Weight: 0.5}
	edge10 := kg.EdgeView{From: 1, To: 0, Type: common.RelDependsOn, Weight: 0.5}
	edge12 := kg.EdgeView{From: 1, To: 2, Type: common.RelDependsOn, Weight: 0.5}
	edge21 := kg.EdgeView{From: 2, To: 1, Type: common.RelDependsOn, Weight: 0.5}
	return &kg.View{
		Nodes: []kg.NodeView{
			{ID: 0, Name: "alpha", Type: common.EntityFunction, Embedding: []float32{1, 0}},
			{ID: 1, Name: "beta", Type: common.EntityFunction, Embedding: []float32{0, 1}},
			{ID: 2, Name: "gamma", Type: common.EntityFunction, Embedding: []float32{0, 1}},
		},
		Adjacency: map[int64][]kg.EdgeView{
			0: {edge01},
			1: {edge10, edge12},
			2: {edge21},
		},
	}
}

func TestRetrieveInputValidation(t *testing.T) {
	r := testRetriever(t, nil)
	view := chainView()

	if _, err := r.Retrieve(context.Background(), view, nil, 10, -1); err == nil {
		t.Fatal("expected error for empty query, got nil")
	}

	got, err := r.Retrieve(context.Background(), view, []float32{1, 0}, 0, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result for topK=0, got %v", got)
	}
}

func TestRetrieveEmptyViewIsNotAnError(t *testing.T) {
	r := testRetriever(t, nil)

	got, err := r.Retrieve(context.Background(), &kg.View{}, []float32{1, 0}, 10, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestRetrieveFusesSemanticAndGraphSignals(t *testing.T) {
	r := testRetriever(t, func(cfg *config.Config) {
		cfg.Retrieval.InitialCandidates = 1
	})
	view := chainView()

	got, err := r.Retrieve(context.Background(), view, []float32{1, 0}, 10, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %v", len(got), got)
	}

	// Seed node 0 scores 1.0 on both signals.
	if got[0].EntityID != 0 {
		t.Fatalf("expected node 0 first, got %d", got[0].EntityID)
	}
	if math.Abs(got[0].Fused-1.0) > 1e-6 {
		t.Fatalf("unexpected fused score for seed: got %g, want 1", got[0].Fused)
	}

	// Node 1 is one hop away over a 0.5 edge and semantically orthogonal.
	if got[1].EntityID != 1 {
		t.Fatalf("expected node 1 second, got %d", got[1].EntityID)
	}
	if math.Abs(got[1].GraphScore-0.5) > 1e-6 {
		t.Fatalf("unexpected graph score: got %g, want 0.5", got[1].GraphScore)
	}
	if math.Abs(got[1].Fused-0.15) > 1e-6 {
		t.Fatalf("unexpected fused score: got %g, want 0.15", got[1].Fused)
	}
}

func TestRetrieveHopBoundLimitsReach(t *testing.T) {
	view := chainView()
	query := []float32{1, 0}

	tests := []struct {
		name    string
		maxHops int
		wantIDs []int64
	}{
		{name: "zero hops keeps seeds only", maxHops: 0, wantIDs: []int64{0}},
		{name: "one hop reaches the middle", maxHops: 1, wantIDs: []int64{0, 1}},
		{name: "two hops reach the end", maxHops: 2, wantIDs: []int64{0, 1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRetriever(t, func(cfg *config.Config) {
				cfg.Retrieval.InitialCandidates = 1
			})
			got, err := r.Retrieve(context.Background(), view, query, 10, tt.maxHops)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			ids := make([]int64, 0, len(got))
			for _, c := range got {
				ids = append(ids, c.EntityID)
			}
			if !reflect.DeepEqual(ids, tt.wantIDs) {
				t.Fatalf("unexpected reachable set: got %v, want %v", ids, tt.wantIDs)
			}
		})
	}
}

func TestRetrieveGraphScoreIsBestPathProduct(t *testing.T) {
	r := testRetriever(t, func(cfg *config.Config) {
		cfg.Retrieval.InitialCandidates = 1
	})

	got, err := r.Retrieve(context.Background(), chainView(), []float32{1, 0}, 10, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	if got[2].EntityID != 2 {
		t.Fatalf("expected node 2 last, got %d", got[2].EntityID)
	}
	if math.Abs(got[2].GraphScore-0.25) > 1e-6 {
		t.Fatalf("unexpected two-hop product: got %g, want 0.25", got[2].GraphScore)
	}
}

func TestRetrieveSimilarityThresholdFilters(t *testing.T) {
	r := testRetriever(t, func(cfg *config.Config) {
		cfg.Retrieval.InitialCandidates = 1
		cfg.Retrieval.SimilarityThreshold = 0.5
	})

	got, err := r.Retrieve(context.Background(), chainView(), []float32{1, 0}, 10, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].EntityID != 0 {
		t.Fatalf("expected only the seed to survive the threshold, got %v", got)
	}
}

func TestRetrieveTopKTruncates(t *testing.T) {
	r := testRetriever(t, func(cfg *config.Config) {
		cfg.Retrieval.InitialCandidates = 1
	})

	got, err := r.Retrieve(context.Background(), chainView(), []float32{1, 0}, 2, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected topK to truncate to 2, got %d", len(got))
	}
}

func TestRetrieveIncludesSeedUnits(t *testing.T) {
	r := testRetriever(t, nil)
	view := &kg.View{
		Nodes: []kg.NodeView{
			{ID: 0, Name: "alpha", Embedding: []float32{1, 0}},
		},
		Adjacency: map[int64][]kg.EdgeView{},
		Units: []kg.UnitView{
			{ID: "u1", Modality: common.ModalityText, Embedding: []float32{1, 0}},
			{ID: "u2", Modality: common.ModalityText, Embedding: []float32{0, 1}},
		},
	}

	got, err := r.Retrieve(context.Background(), view, []float32{1, 0}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// initial_candidates is 2: the matching node and the matching unit seed.
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %v", len(got), got)
	}
	if got[0].Kind != common.CandidateEntityKind || got[0].EntityID != 0 {
		t.Fatalf("expected entity first on tie, got %+v", got[0])
	}
	if got[1].Kind != common.CandidateUnitKind || got[1].UnitID != "u1" {
		t.Fatalf("expected seed unit second, got %+v", got[1])
	}
	if math.Abs(got[1].GraphScore-1.0) > 1e-6 {
		t.Fatalf("expected seed unit graph score 1, got %g", got[1].GraphScore)
	}
}

func TestRetrieveSkipsMismatchedEmbeddings(t *testing.T) {
	r := testRetriever(t, nil)
	view := &kg.View{
		Nodes: []kg.NodeView{
			{ID: 0, Name: "alpha", Embedding: []float32{1, 0}},
			{ID: 1, Name: "beta", Embedding: []float32{1, 0, 0}},
			{ID: 2, Name: "gamma"},
		},
		Adjacency: map[int64][]kg.EdgeView{},
	}

	got, err := r.Retrieve(context.Background(), view, []float32{1, 0}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].EntityID != 0 {
		t.Fatalf("expected only the compatible node, got %v", got)
	}
}

func TestRetrieveRankingMonotonicInSemanticWeight(t *testing.T) {
	// Nodes 1 and 2 sit one identical 0.5 edge from the seed, so their
	// graph scores tie; node 1 is semantically closer to the query.
	view := &kg.View{
		Nodes: []kg.NodeView{
			{ID: 0, Name: "alpha", Type: common.EntityFunction, Embedding: []float32{1, 0}},
			{ID: 1, Name: "beta", Type: common.EntityFunction, Embedding: []float32{0.8, 0.6}},
			{ID: 2, Name: "gamma", Type: common.EntityFunction, Embedding: []float32{0, 1}},
		},
		Adjacency: map[int64][]kg.EdgeView{
			0: {
				{From: 0, To: 1, Type: common.RelDependsOn, Weight: 0.5},
				{From: 0, To: 2, Type: common.RelDependsOn, Weight: 0.5},
			},
			1: {{From: 1, To: 0, Type: common.RelDependsOn, Weight: 0.5}},
			2: {{From: 2, To: 0, Type: common.RelDependsOn, Weight: 0.5}},
		},
	}

	rankOf := func(got []common.RetrievalCandidate, id int64) int {
		for i, candidate := range got {
			if candidate.Kind == common.CandidateEntityKind && candidate.EntityID == id {
				return i
			}
		}
		return -1
	}

	prevRank := -1
	for _, w := range []float64{0.3, 0.5, 0.7, 0.9} {
		r := testRetriever(t, func(cfg *config.Config) {
			cfg.Retrieval.InitialCandidates = 1
			cfg.Retrieval.MaxGraphHops = 1
			cfg.Retrieval.Weights = config.FusionWeights{SemanticSimilarity: w, GraphDistance: 1 - w}
		})

		got, err := r.Retrieve(context.Background(), view, []float32{1, 0}, 10, -1)
		if err != nil {
			t.Fatalf("unexpected error at weight %g: %v", w, err)
		}

		betaRank := rankOf(got, 1)
		gammaRank := rankOf(got, 2)
		if betaRank == -1 || gammaRank == -1 {
			t.Fatalf("missing candidates at weight %g: %v", w, got)
		}
		if betaRank > gammaRank {
			t.Fatalf("semantically closer node ranked below its graph-tied peer at weight %g: %v", w, got)
		}
		if prevRank != -1 && betaRank > prevRank {
			t.Fatalf("rank worsened as semantic weight grew to %g: got %d, want <= %d", w, betaRank, prevRank)
		}
		prevRank = betaRank
	}
}

func TestRetrieveIsDeterministic(t *testing.T) {
	r := testRetriever(t, nil)
	view := chainView()
	query := []float32{1, 0}

	first, err := r.Retrieve(context.Background(), view, query, 10, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := r.Retrieve(context.Background(), view, query, 10, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical results, got %v then %v", first, second)
	}
}
