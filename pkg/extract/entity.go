package extract

import (
	"fmt"
	"iter"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/docgraph-io/docgraph/pkg/common"
	"github.com/docgraph-io/docgraph/pkg/config"
	"github.com/docgraph-io/docgraph/pkg/logger"
)

type compiledRule struct {
	entityType common.EntityType
	pattern    *regexp.Regexp
	confidence float64
	priority   int
}

// EntityExtractor scans content units for entity mentions using the
// configured typed pattern rules. Matching is case-insensitive; rule order
// defines priority when matched spans overlap.
//
// An EntityExtractor should be created using NewEntityExtractor.
type EntityExtractor struct {
	rules         []compiledRule
	minLength     int
	maxLength     int
	minConfidence float64
}

// NewEntityExtractor compiles the configured rules. An invalid pattern is
// a configuration error and rejected up front, never at stream time.
func NewEntityExtractor(cfg config.EntityExtractionConfig) (*EntityExtractor, error) {
	rules := make([]compiledRule, 0, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			return nil, &config.Error{
				Field:  fmt.Sprintf("entity_extraction.rules[%d].pattern", i),
				Reason: err.Error(),
			}
		}
		rules = append(rules, compiledRule{
			entityType: rule.Type,
			pattern:    re,
			confidence: rule.Confidence,
			priority:   i,
		})
	}
	return &EntityExtractor{
		rules:         rules,
		minLength:     cfg.MinEntityLength,
		maxLength:     cfg.MaxEntityLength,
		minConfidence: cfg.MinConfidence,
	}, nil
}

// Extract returns a lazy, finite, restartable sequence of candidate
// entities found in the unit. A malformed unit yields an empty sequence;
// extraction never aborts a stream. The sequence has no side effects and
// may be iterated multiple times.
func (x *EntityExtractor) Extract(unit common.ContentUnit) iter.Seq[common.CandidateEntity] {
	return func(yield func(common.CandidateEntity) bool) {
		if !unit.Modality.Valid() || strings.TrimSpace(unit.Content) == "" {
			if unit.ID != "" {
				logger.Debug("[Extract] Skipping malformed unit", "unit_id", unit.ID)
			}
			return
		}

		for _, candidate := range x.matchUnit(unit) {
			if !yield(candidate) {
				return
			}
		}
	}
}

func (x *EntityExtractor) matchUnit(unit common.ContentUnit) []common.CandidateEntity {
	type span struct{ start, end int }
	accepted := make([]span, 0)
	candidates := make([]common.CandidateEntity, 0)

	overlaps := func(start, end int) bool {
		for _, s := range accepted {
			if start < s.end && s.start < end {
				return true
			}
		}
		return false
	}

	// Rules run in priority order so an overlapping lower-priority match
	// is dropped, not the other way around.
	for _, rule := range x.rules {
		for _, loc := range rule.pattern.FindAllStringIndex(unit.Content, -1) {
			text := strings.TrimSpace(unit.Content[loc[0]:loc[1]])
			length := utf8.RuneCountInString(text)
			if length < x.minLength || length > x.maxLength {
				continue
			}
			if rule.confidence < x.minConfidence {
				continue
			}
			if overlaps(loc[0], loc[1]) {
				continue
			}

			accepted = append(accepted, span{start: loc[0], end: loc[1]})
			candidates = append(candidates, common.CandidateEntity{
				Name:       text,
				Type:       rule.entityType,
				Confidence: rule.confidence,
				Mention: common.Mention{
					UnitID: unit.ID,
					Start:  loc[0],
					End:    loc[1],
					Text:   text,
				},
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Mention.Start != candidates[j].Mention.Start {
			return candidates[i].Mention.Start < candidates[j].Mention.Start
		}
		return candidates[i].Mention.End < candidates[j].Mention.End
	})

	return candidates
}
