package classification

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"sift/pkg/models"
)

// Strategy classifies a single message. Strategies are registered with
// the service; the highest-priority one wins.
type Strategy interface {
	Classify(msg models.SourceMessage) models.ClassificationResult
	Name() string
	Priority() int
}

var (
	amountPattern = regexp.MustCompile(`\$\d+\.\d{2}`)
	datePattern   = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4}`)
)

// RuleBasedStrategy scores a message against compiled category patterns.
// The score for a category is matched patterns over total patterns, so a
// category with fewer patterns is not penalized.
type RuleBasedStrategy struct {
	patterns        map[models.Category][]*regexp.Regexp
	confidenceFloor float64
	priority        int
}

func NewRuleBasedStrategy(rules []PatternRule, confidenceFloor float64) (*RuleBasedStrategy, error) {
	patterns := make(map[models.Category][]*regexp.Regexp)
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		for _, expr := range rule.Patterns {
			re, err := regexp.Compile(`(?i)` + expr)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q for category %s: %w", expr, rule.Category, err)
			}
			patterns[rule.Category] = append(patterns[rule.Category], re)
		}
	}

	if len(patterns) == 0 {
		return nil, fmt.Errorf("no enabled pattern rules")
	}

	return &RuleBasedStrategy{
		patterns:        patterns,
		confidenceFloor: confidenceFloor,
		priority:        10,
	}, nil
}

func (s *RuleBasedStrategy) Name() string  { return "rule-based" }
func (s *RuleBasedStrategy) Priority() int { return s.priority }

func (s *RuleBasedStrategy) Classify(msg models.SourceMessage) models.ClassificationResult {
	content := searchableContent(msg)

	scores := make(map[models.Category]float64, len(s.patterns))
	for category, patterns := range s.patterns {
		scores[category] = score(content, patterns)
	}

	// Walk the fixed priority order so ties always resolve the same way.
	primary := models.CategoryOther
	best := -1.0
	for _, category := range models.CategoryPriority {
		if v, ok := scores[category]; ok && v > best {
			primary = category
			best = v
		}
	}
	if best < 0 {
		best = 0
	}

	confidence := best
	if confidence < s.confidenceFloor {
		// the override replaces the category only; scores and confidence
		// keep their measured values
		primary = models.CategoryOther
	}

	return models.ClassificationResult{
		MessageID:       msg.MessageID,
		TenantID:        msg.TenantID,
		PrimaryCategory: primary,
		CategoryScores:  scores,
		ClassifierName:  s.Name(),
		Confidence:      confidence,
		Entities:        extractEntities(content),
		ClassifiedAt:    time.Now(),
		CorrelationID:   msg.CorrelationID,
	}
}

func searchableContent(msg models.SourceMessage) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{msg.Subject, msg.Body, msg.Snippet, msg.From} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

func score(content string, patterns []*regexp.Regexp) float64 {
	if len(patterns) == 0 {
		return 0
	}
	matches := 0
	for _, re := range patterns {
		if re.MatchString(content) {
			matches++
		}
	}
	return float64(matches) / float64(len(patterns))
}

func extractEntities(content string) []string {
	var entities []string
	for _, m := range amountPattern.FindAllString(content, -1) {
		entities = append(entities, "amount:"+m)
	}
	for _, m := range datePattern.FindAllString(content, -1) {
		entities = append(entities, "date:"+m)
	}
	return entities
}
