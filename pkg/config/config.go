package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator"
	"gopkg.in/yaml.v3"

	"github.com/docgraph-io/docgraph/pkg/common"
)

// Config is the immutable configuration object passed through every
// component's entry point. It is loaded once at startup and validated
// before any ingestion or retrieval runs; components never read ambient
// mutable state.
type Config struct {
	DocumentProcessing DocumentProcessingConfig `yaml:"document_processing"`
	Chunking           ChunkingConfig           `yaml:"chunking"`
	EntityExtraction   EntityExtractionConfig   `yaml:"entity_extraction"`
	Relationships      RelationshipConfig       `yaml:"relationship_extraction"`
	KnowledgeGraph     KnowledgeGraphConfig     `yaml:"knowledge_graph"`
	Retrieval          RetrievalConfig          `yaml:"retrieval"`
	ContextAssembly    ContextAssemblyConfig    `yaml:"context_assembly"`
}

// DocumentProcessingConfig carries the detection thresholds the upstream
// collaborator applied. They are recorded for provenance and surfaced to
// downstream consumers, not re-applied here.
type DocumentProcessingConfig struct {
	TableConfidence  float64 `yaml:"table_confidence" validate:"gte=0,lte=1"`
	FigureConfidence float64 `yaml:"figure_confidence" validate:"gte=0,lte=1"`
}

// ChunkingConfig describes the chunk geometry of incoming content units.
type ChunkingConfig struct {
	MaxChunkTokens int `yaml:"max_chunk_tokens" validate:"gt=0"`
	MinChunkTokens int `yaml:"min_chunk_tokens" validate:"gte=0"`
	OverlapTokens  int `yaml:"overlap_tokens" validate:"gte=0"`
}

// ExtractionRule is one typed pattern rule for the entity extractor. Rule
// order defines priority when matched spans overlap.
type ExtractionRule struct {
	Type       common.EntityType `yaml:"type"`
	Pattern    string            `yaml:"pattern" validate:"required"`
	Confidence float64           `yaml:"confidence" validate:"gte=0,lte=1"`
}

// EntityExtractionConfig configures the entity extractor.
type EntityExtractionConfig struct {
	MinEntityLength int              `yaml:"min_entity_length" validate:"gte=1"`
	MaxEntityLength int              `yaml:"max_entity_length" validate:"gt=0"`
	MinConfidence   float64          `yaml:"min_confidence" validate:"gte=0,lte=1"`
	Rules           []ExtractionRule `yaml:"rules" validate:"dive"`
}

// RelationshipConfig configures the relationship extractor.
type RelationshipConfig struct {
	Types         []common.RelationshipType `yaml:"types"`
	MaxDistance   int                       `yaml:"max_distance" validate:"gt=0"`
	MinConfidence float64                   `yaml:"min_confidence" validate:"gte=0,lte=1"`
}

// KnowledgeGraphConfig bounds the graph.
type KnowledgeGraphConfig struct {
	EmbeddingDimension  int     `yaml:"embedding_dimension" validate:"gt=0"`
	ImageDimension      int     `yaml:"image_dimension" validate:"gt=0"`
	MaxNodes            int     `yaml:"max_nodes" validate:"gt=0"`
	EdgeWeightThreshold float64 `yaml:"edge_weight_threshold" validate:"gte=0,lte=1"`
}

// FusionWeights combine the two retrieval signals. The weights must sum to
// 1.0; any other configuration is rejected at startup.
type FusionWeights struct {
	SemanticSimilarity float64 `yaml:"semantic_similarity" validate:"gte=0,lte=1"`
	GraphDistance      float64 `yaml:"graph_distance" validate:"gte=0,lte=1"`
}

// RetrievalConfig configures the context-aware retriever.
type RetrievalConfig struct {
	InitialCandidates   int           `yaml:"initial_candidates" validate:"gt=0"`
	MaxGraphHops        int           `yaml:"max_graph_hops" validate:"gte=0"`
	SimilarityThreshold float64       `yaml:"similarity_threshold" validate:"gte=0,lte=1"`
	MaxContextTokens    int           `yaml:"max_context_tokens" validate:"gt=0"`
	Weights             FusionWeights `yaml:"weights"`
}

// ContextAssemblyConfig caps the per-modality slots of assembled bundles.
type ContextAssemblyConfig struct {
	MaxTables   int `yaml:"max_tables" validate:"gte=0"`
	MaxFigures  int `yaml:"max_figures" validate:"gte=0"`
	MaxEntities int `yaml:"max_entities" validate:"gte=0"`
}

// fusionWeightEpsilon absorbs float formatting noise in config files
// (0.7 + 0.3 style sums).
const fusionWeightEpsilon = 1e-9

// Default returns the configuration used when no file overrides are given.
// The extraction rules mirror the technical patterns of the reference
// pipeline: function calls, class/interface declarations, SCREAMING_CASE
// constants, and URLs.
func Default() Config {
	return Config{
		DocumentProcessing: DocumentProcessingConfig{
			TableConfidence:  0.7,
			FigureConfidence: 0.7,
		},
		Chunking: ChunkingConfig{
			MaxChunkTokens: 512,
			MinChunkTokens: 64,
			OverlapTokens:  32,
		},
		EntityExtraction: EntityExtractionConfig{
			MinEntityLength: 2,
			MaxEntityLength: 120,
			MinConfidence:   0.5,
			Rules: []ExtractionRule{
				{Type: common.EntityFunction, Pattern: `\b[a-z_][a-z0-9_]*\([^)]*\)`, Confidence: 0.8},
				{Type: common.EntityClass, Pattern: `\b(?:class|interface)\s+[A-Z][a-zA-Z0-9_]*`, Confidence: 0.8},
				{Type: common.EntityURL, Pattern: `\b(?:https?://|www\.)[^\s]+`, Confidence: 0.9},
				{Type: common.EntityConstant, Pattern: `\b[A-Z][A-Z0-9_]{2,}\b`, Confidence: 0.6},
			},
		},
		Relationships: RelationshipConfig{
			Types: []common.RelationshipType{
				common.RelContains,
				common.RelReferences,
				common.RelDependsOn,
				common.RelDescribes,
				common.RelRelatedTo,
			},
			MaxDistance:   5,
			MinConfidence: 0.3,
		},
		KnowledgeGraph: KnowledgeGraphConfig{
			EmbeddingDimension:  768,
			ImageDimension:      512,
			MaxNodes:            10000,
			EdgeWeightThreshold: 0.2,
		},
		Retrieval: RetrievalConfig{
			InitialCandidates:   20,
			MaxGraphHops:        2,
			SimilarityThreshold: 0.5,
			MaxContextTokens:    4000,
			Weights: FusionWeights{
				SemanticSimilarity: 0.7,
				GraphDistance:      0.3,
			},
		},
		ContextAssembly: ContextAssemblyConfig{
			MaxTables:   2,
			MaxFigures:  2,
			MaxEntities: 5,
		},
	}
}

// Load reads a YAML configuration file, applies it on top of the defaults
// and validates the result. A missing path returns the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks structural constraints and the cross-field invariants
// the struct tags cannot express. It must pass before any component is
// constructed.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return &Error{Field: "config", Reason: err.Error()}
	}

	sum := c.Retrieval.Weights.SemanticSimilarity + c.Retrieval.Weights.GraphDistance
	if sum < 1.0-fusionWeightEpsilon || sum > 1.0+fusionWeightEpsilon {
		return &Error{
			Field:  "retrieval.weights",
			Reason: fmt.Sprintf("fusion weights must sum to 1.0, got %g", sum),
		}
	}

	if c.EntityExtraction.MaxEntityLength < c.EntityExtraction.MinEntityLength {
		return &Error{
			Field:  "entity_extraction.max_entity_length",
			Reason: "must be >= min_entity_length",
		}
	}

	for i, rule := range c.EntityExtraction.Rules {
		if !rule.Type.Valid() {
			return &Error{
				Field:  fmt.Sprintf("entity_extraction.rules[%d].type", i),
				Reason: fmt.Sprintf("unknown entity type %q", rule.Type),
			}
		}
	}

	for i, t := range c.Relationships.Types {
		if !t.Valid() {
			return &Error{
				Field:  fmt.Sprintf("relationship_extraction.types[%d]", i),
				Reason: fmt.Sprintf("unknown relationship type %q", t),
			}
		}
	}

	return nil
}

// Error is a fatal configuration error. It is returned before any
// ingestion or retrieval runs; it is never produced at query time.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}
