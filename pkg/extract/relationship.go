package extract

import (
	"math"
	"strings"

	"github.com/docgraph-io/docgraph/pkg/common"
	"github.com/docgraph-io/docgraph/pkg/config"
)

// TypeClassifier infers a relationship type from a pair of entity types
// and the local context they co-occur in. Implementations return
// RelRelatedTo when nothing more specific applies.
type TypeClassifier interface {
	Classify(source, target common.CandidateEntity, context string) common.RelationshipType
}

// TypeClassifierFunc adapts a function to the TypeClassifier interface.
type TypeClassifierFunc func(source, target common.CandidateEntity, context string) common.RelationshipType

func (f TypeClassifierFunc) Classify(source, target common.CandidateEntity, context string) common.RelationshipType {
	return f(source, target, context)
}

// RelationshipExtractor emits candidate relationships for entity mention
// pairs that co-occur within a bounded token distance. Confidence decays
// monotonically with distance; self-pairs and candidates below the
// configured floor are dropped.
//
// A RelationshipExtractor should be created using NewRelationshipExtractor.
type RelationshipExtractor struct {
	classifier    TypeClassifier
	maxDistance   int
	minConfidence float64
	allowed       map[common.RelationshipType]bool
}

// NewRelationshipExtractor creates a relationship extractor using the
// given classifier, or the built-in heuristic classifier when nil.
func NewRelationshipExtractor(cfg config.RelationshipConfig, classifier TypeClassifier) *RelationshipExtractor {
	if classifier == nil {
		classifier = TypeClassifierFunc(defaultClassify)
	}
	allowed := make(map[common.RelationshipType]bool, len(cfg.Types))
	for _, t := range cfg.Types {
		allowed[t] = true
	}
	return &RelationshipExtractor{
		classifier:    classifier,
		maxDistance:   cfg.MaxDistance,
		minConfidence: cfg.MinConfidence,
		allowed:       allowed,
	}
}

// Extract emits candidate relationships for every ordered mention pair in
// the unit whose token distance is within max_distance. The earlier
// mention becomes the source.
func (x *RelationshipExtractor) Extract(
	unit common.ContentUnit,
	mentions []common.CandidateEntity,
) []common.CandidateRelationship {
	if len(mentions) < 2 {
		return nil
	}

	positions := tokenPositions(unit.Content, mentions)
	out := make([]common.CandidateRelationship, 0)

	for i := 0; i < len(mentions); i++ {
		for j := i + 1; j < len(mentions); j++ {
			src, tgt := mentions[i], mentions[j]
			if common.CanonicalName(src.Name) == common.CanonicalName(tgt.Name) {
				continue
			}

			distance := positions[j] - positions[i]
			if distance < 0 {
				distance = -distance
			}
			if distance > x.maxDistance {
				continue
			}

			candidate, ok := x.pairCandidate(unit, src, tgt, distance)
			if !ok {
				continue
			}
			out = append(out, candidate)
		}
	}

	return out
}

// ExtractCaption pairs mentions from a table or figure caption unit with
// mentions from its subject unit. Caption pairs sit across the cross-unit
// window, so they get a fixed nearest-neighbor distance instead of a token
// offset.
func (x *RelationshipExtractor) ExtractCaption(
	captionUnit common.ContentUnit,
	captionMentions []common.CandidateEntity,
	subjectMentions []common.CandidateEntity,
) []common.CandidateRelationship {
	out := make([]common.CandidateRelationship, 0)
	for _, src := range captionMentions {
		for _, tgt := range subjectMentions {
			if common.CanonicalName(src.Name) == common.CanonicalName(tgt.Name) {
				continue
			}
			candidate, ok := x.pairCandidate(captionUnit, src, tgt, 1)
			if !ok {
				continue
			}
			// Captions describe their subject.
			if x.allowed[common.RelDescribes] {
				candidate.Type = common.RelDescribes
			}
			out = append(out, candidate)
		}
	}
	return out
}

func (x *RelationshipExtractor) pairCandidate(
	unit common.ContentUnit,
	src, tgt common.CandidateEntity,
	distance int,
) (common.CandidateRelationship, bool) {
	decay := 1.0 - float64(distance)/float64(x.maxDistance+1)
	confidence := decay * math.Min(src.Confidence, tgt.Confidence)
	if confidence < x.minConfidence {
		return common.CandidateRelationship{}, false
	}

	relType := x.classifier.Classify(src, tgt, contextWindow(unit, src, tgt))
	if !x.allowed[relType] {
		relType = common.RelRelatedTo
		if !x.allowed[relType] {
			return common.CandidateRelationship{}, false
		}
	}

	return common.CandidateRelationship{
		SourceName: src.Name,
		TargetName: tgt.Name,
		Type:       relType,
		Confidence: confidence,
		Evidence: common.Mention{
			UnitID: unit.ID,
			Start:  minInt(src.Mention.Start, tgt.Mention.Start),
			End:    maxInt(src.Mention.End, tgt.Mention.End),
			Text:   contextWindow(unit, src, tgt),
		},
	}, true
}

// tokenPositions maps each mention to its word-token index within the
// unit content. Token distance between mentions is the difference of these
// indexes.
func tokenPositions(content string, mentions []common.CandidateEntity) []int {
	positions := make([]int, len(mentions))
	for i, m := range mentions {
		start := m.Mention.Start
		if start > len(content) {
			start = len(content)
		}
		positions[i] = len(strings.Fields(content[:start]))
	}
	return positions
}

func contextWindow(unit common.ContentUnit, src, tgt common.CandidateEntity) string {
	start := minInt(src.Mention.Start, tgt.Mention.Start)
	end := maxInt(src.Mention.End, tgt.Mention.End)
	if start < 0 {
		start = 0
	}
	if end > len(unit.Content) {
		end = len(unit.Content)
	}
	if start >= end {
		return ""
	}
	return unit.Content[start:end]
}

// defaultClassify is the built-in heuristic classifier. Caption contexts
// describe their subject; otherwise the entity type pair decides, with
// related_to as the generic fallback.
func defaultClassify(source, target common.CandidateEntity, _ string) common.RelationshipType {
	switch {
	case target.Type == common.EntityURL || source.Type == common.EntityURL:
		return common.RelReferences
	case source.Type == common.EntityClass && target.Type == common.EntityFunction:
		return common.RelContains
	case source.Type == common.EntityFunction && target.Type == common.EntityFunction:
		return common.RelDependsOn
	case source.Type == common.EntityFunction && target.Type == common.EntityConstant:
		return common.RelReferences
	case source.Type == common.EntityClass && target.Type == common.EntityClass:
		return common.RelDependsOn
	}
	return common.RelRelatedTo
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
