package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
)

// Generator is the slice of the LLM provider surface the reranker needs.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// LLMReranker asks an LLM to order candidates by relevance. The model
// returns a JSON array of candidate ids; positions map to scores 1.0,
// 0.95, 0.90 and so on down to a floor of 0.1. Candidates the model
// omits keep their retrieval order behind the ranked ones.
type LLMReranker struct {
	llm        Generator
	maxResults int
}

func NewLLMReranker(llm Generator, maxResults int) *LLMReranker {
	if maxResults <= 0 {
		maxResults = 20
	}
	return &LLMReranker{llm: llm, maxResults: maxResults}
}

func (r *LLMReranker) Name() string { return "llm" }

func (r *LLMReranker) Rerank(ctx context.Context, query string, candidates []Candidate, topK int) ([]Candidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	toRank := candidates
	if len(toRank) > r.maxResults {
		toRank = toRank[:r.maxResults]
	}

	response, err := r.llm.Generate(ctx, r.buildPrompt(query, toRank), 256, 0.0)
	if err != nil {
		return nil, ragerror.NewLLM("rerank", "rerank", "reranking call failed", err)
	}

	rankedIDs, err := parseRankedIDs(response)
	if err != nil {
		slog.Warn("Could not parse reranking response, keeping retrieval order", "error", err)
		return (&NoOpReranker{}).Rerank(ctx, query, candidates, topK)
	}

	byID := make(map[uint64]Candidate, len(toRank))
	for _, c := range toRank {
		byID[c.ID] = c
	}

	out := make([]Candidate, 0, len(toRank))
	seen := make(map[uint64]bool)
	for i, id := range rankedIDs {
		c, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		score := 1.0 - float64(i)*0.05
		if score < 0.1 {
			score = 0.1
		}
		c.RerankScore = score
		out = append(out, c)
		seen[id] = true
	}

	// Anything the model left out trails in retrieval order.
	for _, c := range toRank {
		if !seen[c.ID] {
			c.RerankScore = 0.05
			out = append(out, c)
		}
	}

	return truncate(out, topK), nil
}

func (r *LLMReranker) buildPrompt(query string, candidates []Candidate) string {
	var sb strings.Builder
	sb.WriteString("You rank search results by relevance to a query.\n\n")
	fmt.Fprintf(&sb, "Query: %s\n\nResults:\n\n", sanitize(query))

	for i, c := range candidates {
		text := c.Text
		if len(text) > 500 {
			text = text[:500] + "..."
		}
		fmt.Fprintf(&sb, "Result %d (ID: %d):\n%s\n\n", i+1, c.ID, sanitize(text))
	}

	sb.WriteString("Return a JSON array of result IDs sorted by relevance, most relevant first.\n")
	sb.WriteString("Format: [3, 1, 2]\n")
	return sb.String()
}

func parseRankedIDs(response string) ([]uint64, error) {
	response = strings.TrimSpace(response)
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start == -1 || end == -1 || start >= end {
		return extractIDsManually(response)
	}

	jsonStr := response[start : end+1]

	var ids []uint64
	if err := json.Unmarshal([]byte(jsonStr), &ids); err == nil {
		return ids, nil
	}

	// Some models quote the numbers.
	var quoted []string
	if err := json.Unmarshal([]byte(jsonStr), &quoted); err == nil {
		out := make([]uint64, 0, len(quoted))
		for _, s := range quoted {
			if id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64); err == nil {
				out = append(out, id)
			}
		}
		if len(out) > 0 {
			return out, nil
		}
	}

	return extractIDsManually(response)
}

func extractIDsManually(response string) ([]uint64, error) {
	var ids []uint64
	for _, field := range strings.FieldsFunc(response, func(r rune) bool {
		return r < '0' || r > '9'
	}) {
		if id, err := strconv.ParseUint(field, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no ids found in reranking response")
	}
	return ids, nil
}

// sanitize strips role markers and delimiter runs so document text
// cannot steer the ranking instructions.
func sanitize(input string) string {
	for _, marker := range []string{"SYSTEM:", "System:", "system:",
		"ASSISTANT:", "Assistant:", "assistant:", "USER:", "User:", "user:"} {
		input = strings.ReplaceAll(input, marker, "")
	}
	for _, delim := range []string{"```", "---", "==="} {
		input = strings.ReplaceAll(input, delim, "")
	}
	return strings.TrimSpace(input)
}
