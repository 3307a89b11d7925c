package common

// Modality identifies the kind of source material a ContentUnit carries.
// The set is closed: new modalities require a new constant, not a subclass.
type Modality string

const (
	ModalityText   Modality = "text"
	ModalityTable  Modality = "table"
	ModalityFigure Modality = "figure"
)

// Valid reports whether m is one of the known modalities.
func (m Modality) Valid() bool {
	switch m {
	case ModalityText, ModalityTable, ModalityFigure:
		return true
	}
	return false
}

// Provenance links a piece of content back to its originating document.
// Every item that ends up in a ContextBundle carries one.
type Provenance struct {
	DocumentID string `json:"document_id"`
	Page       int    `json:"page"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

// ContentUnit is one chunk of source material produced by the upstream
// document-processing collaborator. Units are immutable once created; the
// graph stores references to unit IDs, never copies of the raw content.
//
// The embedding dimension depends on the modality: text and table units
// carry text-model vectors, figure units carry image-model vectors.
type ContentUnit struct {
	ID         string     `json:"id"`
	Modality   Modality   `json:"modality"`
	Content    string     `json:"content"`
	Embedding  []float32  `json:"embedding,omitempty"`
	Provenance Provenance `json:"provenance"`
}

// Mention records one supporting occurrence of an entity inside a
// ContentUnit: the unit it was found in, the character span, and the raw
// matched text.
type Mention struct {
	UnitID string `json:"unit_id"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Text   string `json:"text"`
}

// Entity is a resolved concept node in the knowledge graph. Candidate
// entities with sufficiently similar canonical names or embeddings are
// merged into one Entity during ingestion, never duplicated silently.
type Entity struct {
	ID         int64      `json:"id"`
	PublicID   string     `json:"public_id"`
	Name       string     `json:"name"`
	Canonical  string     `json:"canonical"`
	Type       EntityType `json:"type"`
	Confidence float64    `json:"confidence"`
	Embedding  []float32  `json:"embedding,omitempty"`
	Mentions   []Mention  `json:"mentions"`
}

// Relationship is a directed, typed edge between two entities. At most one
// edge exists per (source, target, type) triple; repeated evidence updates
// the weight and confidence instead of creating parallel edges.
type Relationship struct {
	Source     int64            `json:"source"`
	Target     int64            `json:"target"`
	Type       RelationshipType `json:"type"`
	Weight     float64          `json:"weight"`
	Confidence float64          `json:"confidence"`
	Evidence   []Mention        `json:"evidence"`
}

// CandidateEntity is an unresolved extraction result emitted by the entity
// extractor. Candidates are immutable and consumed exactly once by the
// graph builder.
type CandidateEntity struct {
	Name       string
	Type       EntityType
	Confidence float64
	Embedding  []float32
	Mention    Mention
}

// CandidateRelationship is an unresolved extraction result emitted by the
// relationship extractor. Endpoints are named, not resolved; the builder
// maps them to node IDs during ingestion.
type CandidateRelationship struct {
	SourceName string
	TargetName string
	Type       RelationshipType
	Confidence float64
	Evidence   Mention
}
