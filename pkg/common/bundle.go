package common

// CandidateKind distinguishes what a RetrievalCandidate points at.
type CandidateKind string

const (
	CandidateEntityKind CandidateKind = "entity"
	CandidateUnitKind   CandidateKind = "unit"
)

// RetrievalCandidate is one scored item produced by a retrieval call. It
// is ephemeral: it exists only for the duration of the call and is never
// persisted.
type RetrievalCandidate struct {
	Kind     CandidateKind `json:"kind"`
	EntityID int64         `json:"entity_id,omitempty"`
	UnitID   string        `json:"unit_id,omitempty"`

	Semantic   float64 `json:"semantic_score"`
	GraphScore float64 `json:"graph_distance_score"`
	Fused      float64 `json:"fused_score"`
}

// Passage is one admitted text passage in a ContextBundle.
type Passage struct {
	UnitID     string     `json:"unit_id"`
	Text       string     `json:"text"`
	Tokens     int        `json:"tokens"`
	Score      float64    `json:"score"`
	Provenance Provenance `json:"provenance"`
}

// TableRef is a table admitted into a ContextBundle.
type TableRef struct {
	UnitID     string     `json:"unit_id"`
	Content    string     `json:"content"`
	Tokens     int        `json:"tokens"`
	Score      float64    `json:"score"`
	Provenance Provenance `json:"provenance"`
}

// FigureRef is a figure admitted into a ContextBundle. Content carries the
// caption or textual description; the raw image stays with the upstream
// collaborator.
type FigureRef struct {
	UnitID     string     `json:"unit_id"`
	Content    string     `json:"content"`
	Tokens     int        `json:"tokens"`
	Score      float64    `json:"score"`
	Provenance Provenance `json:"provenance"`
}

// EntityRef is an entity admitted into a ContextBundle.
type EntityRef struct {
	EntityID int64      `json:"entity_id"`
	Name     string     `json:"name"`
	Type     EntityType `json:"type"`
	Tokens   int        `json:"tokens"`
	Score    float64    `json:"score"`
}

// ContextBundle is the budget-constrained output of context assembly.
// Passages keep ranked order; tables, figures and entities are capped per
// modality independently of the token ceiling. Bundles are built fresh per
// query and never persisted.
type ContextBundle struct {
	Passages    []Passage   `json:"passages"`
	Tables      []TableRef  `json:"tables"`
	Figures     []FigureRef `json:"figures"`
	Entities    []EntityRef `json:"entities"`
	TotalTokens int         `json:"total_tokens"`
}
