// Package enhance produces query variants for retrieval: intent
// classification, keyword extraction, expansion and reformulation. The
// query engine treats it as optional and falls back to the raw query when
// enhancement fails.
package enhance

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Intent types.
const (
	IntentGreeting           = "greeting"
	IntentQuestion           = "question"
	IntentComparison         = "comparison"
	IntentExplanation        = "explanation"
	IntentHelp               = "help"
	IntentGoodbye            = "goodbye"
	IntentInformationSeeking = "information_seeking"
)

// Intent is a classified query intent with its confidence.
type Intent struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Enhanced is the full enhancement result for one query.
type Enhanced struct {
	Query               string   `json:"query"`
	Intent              Intent   `json:"intent"`
	Keywords            []string `json:"keywords"`
	ExpandedQueries     []string `json:"expanded_queries"`
	ReformulatedQueries []string `json:"reformulated_queries"`
}

// Variant is one retrieval candidate with its confidence weight.
type Variant struct {
	Text       string
	Confidence float64
}

var intentPatterns = []struct {
	intent     string
	confidence float64
	pattern    *regexp.Regexp
}{
	{IntentGreeting, 0.9, regexp.MustCompile(`(?i)^\s*(hi|hello|hey|good (morning|afternoon|evening)|greetings)\b`)},
	{IntentGoodbye, 0.9, regexp.MustCompile(`(?i)^\s*(bye|goodbye|see you|farewell|thanks,? bye)\b`)},
	{IntentHelp, 0.85, regexp.MustCompile(`(?i)\b(help|how do i use|what can you do|capabilities)\b`)},
	{IntentComparison, 0.8, regexp.MustCompile(`(?i)\b(compare|versus|vs\.?|difference between|better than)\b`)},
	{IntentExplanation, 0.8, regexp.MustCompile(`(?i)\b(explain|why|how does|how do|describe|elaborate)\b`)},
	{IntentQuestion, 0.7, regexp.MustCompile(`(?i)^\s*(what|who|when|where|which|is|are|do|does|can|could|will)\b|\?\s*$`)},
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"was": true, "what": true, "when": true, "where": true, "which": true,
	"who": true, "why": true, "how": true, "with": true, "this": true,
	"that": true, "from": true, "they": true, "will": true, "would": true,
	"there": true, "their": true, "about": true, "into": true, "than": true,
	"them": true, "then": true, "does": true, "have": true, "has": true,
	"its": true, "it's": true, "were": true, "been": true, "being": true,
	"over": true, "under": true, "between": true, "please": true, "tell": true,
}

// Enhancer is the pattern-based query enhancer.
type Enhancer struct {
	maxVariants int
}

// New creates an enhancer producing at most maxVariants variants.
func New(maxVariants int) *Enhancer {
	if maxVariants <= 0 {
		maxVariants = 3
	}
	return &Enhancer{maxVariants: maxVariants}
}

// Enhance classifies intent and derives keyword, expanded and reformulated
// forms of the query.
func (e *Enhancer) Enhance(ctx context.Context, query string) (*Enhanced, error) {
	trimmed := strings.TrimSpace(query)
	enhanced := &Enhanced{
		Query:    trimmed,
		Intent:   classifyIntent(trimmed),
		Keywords: ExtractKeywords(trimmed),
	}

	if len(enhanced.Keywords) > 0 {
		enhanced.ExpandedQueries = append(enhanced.ExpandedQueries,
			strings.Join(enhanced.Keywords, " "))
	}

	switch enhanced.Intent.Type {
	case IntentComparison:
		if len(enhanced.Keywords) >= 2 {
			enhanced.ReformulatedQueries = append(enhanced.ReformulatedQueries,
				fmt.Sprintf("differences between %s and %s", enhanced.Keywords[0], enhanced.Keywords[1]))
		}
	case IntentExplanation:
		if len(enhanced.Keywords) > 0 {
			enhanced.ReformulatedQueries = append(enhanced.ReformulatedQueries,
				fmt.Sprintf("explanation of %s", strings.Join(enhanced.Keywords, " ")))
		}
	case IntentQuestion, IntentInformationSeeking:
		if len(enhanced.Keywords) > 0 {
			enhanced.ReformulatedQueries = append(enhanced.ReformulatedQueries,
				fmt.Sprintf("information about %s", strings.Join(enhanced.Keywords, " ")))
		}
	}

	return enhanced, nil
}

// Variants orders the enhancement outputs by confidence: the original
// query first, then reformulations, then keyword expansions.
func (e *Enhancer) Variants(enhanced *Enhanced) []Variant {
	variants := []Variant{{Text: enhanced.Query, Confidence: 1.0}}

	for _, q := range enhanced.ReformulatedQueries {
		variants = append(variants, Variant{Text: q, Confidence: 0.8})
	}
	for _, q := range enhanced.ExpandedQueries {
		variants = append(variants, Variant{Text: q, Confidence: 0.6})
	}

	seen := make(map[string]bool)
	unique := variants[:0]
	for _, v := range variants {
		key := strings.ToLower(strings.TrimSpace(v.Text))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, v)
	}

	if len(unique) > e.maxVariants {
		unique = unique[:e.maxVariants]
	}
	return unique
}

func classifyIntent(query string) Intent {
	for _, candidate := range intentPatterns {
		if candidate.pattern.MatchString(query) {
			return Intent{Type: candidate.intent, Confidence: candidate.confidence}
		}
	}
	return Intent{Type: IntentInformationSeeking, Confidence: 0.5}
}

// ExtractKeywords filters stop words and short tokens from the query.
func ExtractKeywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '\''
	})

	var keywords []string
	seen := make(map[string]bool)
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if len(f) < 3 || stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		keywords = append(keywords, f)
	}
	return keywords
}
