package extract

import (
	"math"
	"testing"

	"github.com/docgraph-io/docgraph/pkg/common"
	"github.com/docgraph-io/docgraph/pkg/config"
)

func testRelationshipConfig() config.RelationshipConfig {
	return config.RelationshipConfig{
		Types: []common.RelationshipType{
			common.RelContains,
			common.RelReferences,
			common.RelDependsOn,
			common.RelDescribes,
			common.RelRelatedTo,
		},
		MaxDistance:   5,
		MinConfidence: 0.3,
	}
}

func mentionAt(name string, entityType common.EntityType, confidence float64, start int) common.CandidateEntity {
	return common.CandidateEntity{
		Name:       name,
		Type:       entityType,
		Confidence: confidence,
		Mention: common.Mention{
			UnitID: "u1",
			Start:  start,
			End:    start + len(name),
			Text:   name,
		},
	}
}

func TestRelationshipExtractorExtract(t *testing.T) {
	x := NewRelationshipExtractor(testRelationshipConfig(), nil)

	content := "alpha() calls beta()"
	unit := common.ContentUnit{ID: "u1", Modality: common.ModalityText, Content: content}
	mentions := []common.CandidateEntity{
		mentionAt("alpha()", common.EntityFunction, 0.8, 0),
		mentionAt("beta()", common.EntityFunction, 0.8, 14),
	}

	got := x.Extract(unit, mentions)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}

	rel := got[0]
	if rel.SourceName != "alpha()" || rel.TargetName != "beta()" {
		t.Fatalf("unexpected endpoints: %q -> %q", rel.SourceName, rel.TargetName)
	}
	if rel.Type != common.RelDependsOn {
		t.Fatalf("unexpected type: got %q, want %q", rel.Type, common.RelDependsOn)
	}

	// Token distance 2 out of max 5: decay 1 - 2/6.
	wantConfidence := (1.0 - 2.0/6.0) * 0.8
	if math.Abs(rel.Confidence-wantConfidence) > 1e-9 {
		t.Fatalf("unexpected confidence: got %g, want %g", rel.Confidence, wantConfidence)
	}
	if rel.Evidence.UnitID != "u1" || rel.Evidence.Start != 0 || rel.Evidence.End != 20 {
		t.Fatalf("unexpected evidence span: %+v", rel.Evidence)
	}
}

func TestRelationshipExtractorSkipsPairs(t *testing.T) {
	x := NewRelationshipExtractor(testRelationshipConfig(), nil)

	tests := []struct {
		name     string
		content  string
		mentions []common.CandidateEntity
	}{
		{
			name:    "single mention",
			content: "alpha()",
			mentions: []common.CandidateEntity{
				mentionAt("alpha()", common.EntityFunction, 0.8, 0),
			},
		},
		{
			name:    "same canonical name",
			content: "Alpha and alpha",
			mentions: []common.CandidateEntity{
				mentionAt("Alpha", common.EntityConstant, 0.8, 0),
				mentionAt("alpha", common.EntityConstant, 0.8, 10),
			},
		},
		{
			name:    "distance beyond max",
			content: "alpha() one two three four five six seven beta()",
			mentions: []common.CandidateEntity{
				mentionAt("alpha()", common.EntityFunction, 0.8, 0),
				mentionAt("beta()", common.EntityFunction, 0.8, 42),
			},
		},
		{
			name:    "confidence below floor",
			content: "alpha() beta()",
			mentions: []common.CandidateEntity{
				mentionAt("alpha()", common.EntityFunction, 0.3, 0),
				mentionAt("beta()", common.EntityFunction, 0.3, 8),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit := common.ContentUnit{ID: "u1", Modality: common.ModalityText, Content: tt.content}
			got := x.Extract(unit, tt.mentions)
			if len(got) != 0 {
				t.Fatalf("expected no candidates, got %v", got)
			}
		})
	}
}

func TestRelationshipExtractorCustomClassifier(t *testing.T) {
	classifier := TypeClassifierFunc(func(_, _ common.CandidateEntity, _ string) common.RelationshipType {
		return common.RelContains
	})
	x := NewRelationshipExtractor(testRelationshipConfig(), classifier)

	unit := common.ContentUnit{ID: "u1", Modality: common.ModalityText, Content: "alpha() beta()"}
	mentions := []common.CandidateEntity{
		mentionAt("alpha()", common.EntityFunction, 0.9, 0),
		mentionAt("beta()", common.EntityFunction, 0.9, 8),
	}

	got := x.Extract(unit, mentions)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].Type != common.RelContains {
		t.Fatalf("unexpected type: got %q, want %q", got[0].Type, common.RelContains)
	}
}

func TestRelationshipExtractorDisallowedTypeFallsBack(t *testing.T) {
	cfg := testRelationshipConfig()
	cfg.Types = []common.RelationshipType{common.RelRelatedTo}
	x := NewRelationshipExtractor(cfg, nil)

	unit := common.ContentUnit{ID: "u1", Modality: common.ModalityText, Content: "alpha() beta()"}
	mentions := []common.CandidateEntity{
		mentionAt("alpha()", common.EntityFunction, 0.9, 0),
		mentionAt("beta()", common.EntityFunction, 0.9, 8),
	}

	got := x.Extract(unit, mentions)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].Type != common.RelRelatedTo {
		t.Fatalf("unexpected fallback type: got %q, want %q", got[0].Type, common.RelRelatedTo)
	}
}

func TestRelationshipExtractorExtractCaption(t *testing.T) {
	x := NewRelationshipExtractor(testRelationshipConfig(), nil)

	caption := common.ContentUnit{
		ID:       "cap1",
		Modality: common.ModalityText,
		Content:  "Figure 1: throughput of batch_send()",
	}
	captionMentions := []common.CandidateEntity{
		mentionAt("batch_send()", common.EntityFunction, 0.8, 24),
	}
	subjectMentions := []common.CandidateEntity{
		mentionAt("MAX_BATCH", common.EntityConstant, 0.7, 0),
	}

	got := x.ExtractCaption(caption, captionMentions, subjectMentions)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	rel := got[0]
	if rel.Type != common.RelDescribes {
		t.Fatalf("unexpected type: got %q, want %q", rel.Type, common.RelDescribes)
	}
	if rel.SourceName != "batch_send()" || rel.TargetName != "MAX_BATCH" {
		t.Fatalf("unexpected endpoints: %q -> %q", rel.SourceName, rel.TargetName)
	}

	// Cross-unit pairs use a fixed distance of one token.
	wantConfidence := (1.0 - 1.0/6.0) * 0.7
	if math.Abs(rel.Confidence-wantConfidence) > 1e-9 {
		t.Fatalf("unexpected confidence: got %g, want %g", rel.Confidence, wantConfidence)
	}
}

func TestDefaultClassify(t *testing.T) {
	fn := func(entityType common.EntityType) common.CandidateEntity {
		return common.CandidateEntity{Name: "x", Type: entityType}
	}

	tests := []struct {
		name   string
		source common.EntityType
		target common.EntityType
		want   common.RelationshipType
	}{
		{name: "url target references", source: common.EntityFunction, target: common.EntityURL, want: common.RelReferences},
		{name: "url source references", source: common.EntityURL, target: common.EntityConstant, want: common.RelReferences},
		{name: "class contains function", source: common.EntityClass, target: common.EntityFunction, want: common.RelContains},
		{name: "function depends on function", source: common.EntityFunction, target: common.EntityFunction, want: common.RelDependsOn},
		{name: "function references constant", source: common.EntityFunction, target: common.EntityConstant, want: common.RelReferences},
		{name: "class depends on class", source: common.EntityClass, target: common.EntityClass, want: common.RelDependsOn},
		{name: "generic fallback", source: common.EntityConstant, target: common.EntityConstant, want: common.RelRelatedTo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := defaultClassify(fn(tt.source), fn(tt.target), "")
			if got != tt.want {
				t.Fatalf("unexpected type: got %q, want %q", got, tt.want)
			}
		})
	}
}
