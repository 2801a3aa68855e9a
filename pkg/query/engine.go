// Package query answers questions over the vector store: it expands the
// query into variants, retrieves and merges candidate chunks, optionally
// reranks them, and asks the LLM for a grounded answer.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/enhance"
	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
	"github.com/pratap1297/rag-new-sub000/pkg/rerank"
	"github.com/pratap1297/rag-new-sub000/pkg/vectorstore"
)

const (
	insufficientContextResponse = "I couldn't find relevant information in the knowledge base to answer this question. Try rephrasing, or ingest documents that cover the topic."
	llmFailureResponse          = "I found relevant information but couldn't generate an answer right now. The retrieved sources are included below."

	maxVariantsUsed    = 3
	promptContextLimit = 5
	sourcePreviewLen   = 200
)

// Embedder embeds a single query string.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Generator produces an answer from a grounded prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// Searcher is the retrieval surface of the vector store.
type Searcher interface {
	SearchWithMetadata(ctx context.Context, query []float32, k int) ([]vectorstore.SearchResult, error)
}

// Enhancer expands a query into weighted variants.
type Enhancer interface {
	Enhance(ctx context.Context, query string) (*enhance.Enhanced, error)
	Variants(enhanced *enhance.Enhanced) []enhance.Variant
}

// Source is one supporting chunk in a query response.
type Source struct {
	Text            string         `json:"text"`
	SimilarityScore float64        `json:"similarity_score"`
	RerankScore     *float64       `json:"rerank_score,omitempty"`
	DocID           string         `json:"doc_id"`
	Metadata        map[string]any `json:"metadata"`
}

// Response is the full result of one query.
type Response struct {
	Query            string            `json:"query"`
	Response         string            `json:"response"`
	Sources          []Source          `json:"sources"`
	TotalSources     int               `json:"total_sources"`
	QueryEnhancement *enhance.Enhanced `json:"query_enhancement,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
}

// Engine ties retrieval, enhancement, reranking and generation together.
// Enhancer and reranker are optional; both fail soft.
type Engine struct {
	store    Searcher
	embedder Embedder
	llm      Generator
	enhancer Enhancer
	reranker rerank.Reranker
	cfg      *config.RetrievalConfig
	encoder  *tiktoken.Tiktoken
}

func New(store Searcher, embedder Embedder, llm Generator, enhancer Enhancer,
	reranker rerank.Reranker, cfg *config.RetrievalConfig) *Engine {
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		slog.Warn("Token encoder unavailable, using character estimate", "error", err)
		encoder = nil
	}
	return &Engine{
		store:    store,
		embedder: embedder,
		llm:      llm,
		enhancer: enhancer,
		reranker: reranker,
		cfg:      cfg,
		encoder:  encoder,
	}
}

// hit is one retrieved chunk annotated with the variant that found it.
type hit struct {
	result     vectorstore.SearchResult
	chunkID    string
	confidence float64
	weighted   float64
}

// ProcessQuery runs the full retrieval and generation pipeline.
func (e *Engine) ProcessQuery(ctx context.Context, query string, topK int) (*Response, error) {
	ctx, span := otel.Tracer("query").Start(ctx, "process_query")
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ragerror.NewRetrieval("query", "process_query", "query must not be empty", nil)
	}
	if topK <= 0 {
		topK = e.cfg.TopK
	}
	if topK <= 0 {
		topK = 5
	}
	span.SetAttributes(attribute.String("query", query), attribute.Int("top_k", topK))

	variants, enhanced := e.variants(ctx, query)

	merged, err := e.retrieve(ctx, variants, topK)
	if err != nil {
		return nil, err
	}

	survivors := merged[:0]
	for _, h := range merged {
		if float64(h.result.Score) >= e.cfg.SimilarityThreshold {
			survivors = append(survivors, h)
		}
	}
	if len(survivors) == 0 {
		return &Response{
			Query:            query,
			Response:         insufficientContextResponse,
			Sources:          []Source{},
			QueryEnhancement: enhanced,
			Timestamp:        time.Now().UTC(),
		}, nil
	}

	sources, contextTexts := e.rank(ctx, query, survivors, topK)

	answer := e.generate(ctx, query, contextTexts)

	span.SetAttributes(attribute.Int("sources", len(sources)))
	return &Response{
		Query:            query,
		Response:         answer,
		Sources:          sources,
		TotalSources:     len(sources),
		QueryEnhancement: enhanced,
		Timestamp:        time.Now().UTC(),
	}, nil
}

// variants asks the enhancer for weighted query variants, falling back to
// the raw query when enhancement is disabled or fails.
func (e *Engine) variants(ctx context.Context, query string) ([]enhance.Variant, *enhance.Enhanced) {
	fallback := []enhance.Variant{{Text: query, Confidence: 1.0}}
	if e.enhancer == nil || !e.cfg.EnableEnhancement {
		return fallback, nil
	}

	enhanced, err := e.enhancer.Enhance(ctx, query)
	if err != nil {
		slog.Warn("Query enhancement failed, using raw query", "error", err)
		return fallback, nil
	}

	variants := e.enhancer.Variants(enhanced)
	if len(variants) == 0 {
		return fallback, enhanced
	}
	if len(variants) > maxVariantsUsed {
		variants = variants[:maxVariantsUsed]
	}
	return variants, enhanced
}

// retrieve searches once per variant and merges hits by chunk id, keeping
// the occurrence with the highest weighted score.
func (e *Engine) retrieve(ctx context.Context, variants []enhance.Variant, topK int) ([]hit, error) {
	byChunk := make(map[string]hit)
	searched := 0

	for _, v := range variants {
		vec, err := e.embedder.EmbedText(ctx, v.Text)
		if err != nil {
			slog.Warn("Variant embedding failed", "variant", v.Text, "error", err)
			continue
		}

		results, err := e.store.SearchWithMetadata(ctx, vec, topK)
		if err != nil {
			slog.Warn("Variant search failed", "variant", v.Text, "error", err)
			continue
		}
		searched++

		for _, res := range results {
			h := hit{
				result:     res,
				chunkID:    chunkIDOf(res),
				confidence: v.Confidence,
				weighted:   float64(res.Score) * v.Confidence,
			}
			existing, ok := byChunk[h.chunkID]
			if !ok || h.weighted > existing.weighted {
				byChunk[h.chunkID] = h
			}
		}
	}

	if searched == 0 {
		return nil, ragerror.NewRetrieval("query", "process_query",
			"all query variants failed to search", nil)
	}

	merged := make([]hit, 0, len(byChunk))
	for _, h := range byChunk {
		merged = append(merged, h)
	}
	sort.Slice(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.weighted != b.weighted {
			return a.weighted > b.weighted
		}
		if a.confidence != b.confidence {
			return a.confidence > b.confidence
		}
		if a.result.Score != b.result.Score {
			return a.result.Score > b.result.Score
		}
		return a.result.ID < b.result.ID
	})
	return merged, nil
}

// rank applies optional reranking and converts hits into response
// sources. The second return value holds the full chunk texts, in the
// same order, for prompt building; the sources carry previews only.
func (e *Engine) rank(ctx context.Context, query string, survivors []hit, topK int) ([]Source, []string) {
	if e.cfg.EnableReranking && e.reranker != nil {
		rerankTopK := e.cfg.RerankTopK
		if rerankTopK <= 0 {
			rerankTopK = topK
		}

		candidates := make([]rerank.Candidate, len(survivors))
		byID := make(map[uint64]hit, len(survivors))
		for i, h := range survivors {
			candidates[i] = rerank.Candidate{
				ID:         h.result.ID,
				Text:       h.result.Text,
				Similarity: float64(h.result.Score),
			}
			byID[h.result.ID] = h
		}

		reranked, err := e.reranker.Rerank(ctx, query, candidates, rerankTopK)
		if err != nil {
			slog.Warn("Reranking failed, keeping retrieval order", "error", err)
		} else {
			sources := make([]Source, 0, len(reranked))
			texts := make([]string, 0, len(reranked))
			for _, c := range reranked {
				h, ok := byID[c.ID]
				if !ok {
					continue
				}
				score := c.RerankScore
				sources = append(sources, makeSource(h, &score))
				texts = append(texts, h.result.Text)
			}
			return sources, texts
		}
	}

	if len(survivors) > topK {
		survivors = survivors[:topK]
	}
	sources := make([]Source, 0, len(survivors))
	texts := make([]string, 0, len(survivors))
	for _, h := range survivors {
		sources = append(sources, makeSource(h, nil))
		texts = append(texts, h.result.Text)
	}
	return sources, texts
}

// generate builds the grounded prompt and calls the LLM. Generation
// failures degrade to an apology with the sources intact.
func (e *Engine) generate(ctx context.Context, query string, contextTexts []string) string {
	prompt := e.buildPrompt(query, contextTexts)

	answer, err := e.llm.Generate(ctx, prompt, 0, 0.2)
	if err != nil {
		slog.Warn("Answer generation failed", "error", err)
		return llmFailureResponse
	}
	return strings.TrimSpace(answer)
}

func (e *Engine) buildPrompt(query string, contextTexts []string) string {
	n := len(contextTexts)
	if n > promptContextLimit {
		n = promptContextLimit
	}

	budget := e.cfg.PromptTokenBudget
	if budget <= 0 {
		budget = 4000
	}

	var chunks []string
	used := e.countTokens(query) + 32
	for i := 0; i < n; i++ {
		text := contextTexts[i]
		cost := e.countTokens(text)
		if used+cost > budget && len(chunks) > 0 {
			break
		}
		chunks = append(chunks, text)
		used += cost
	}

	return fmt.Sprintf("Based on the following context, answer: %s\n\nContext:\n%s\n\nAnswer:",
		query, strings.Join(chunks, "\n\n"))
}

func (e *Engine) countTokens(text string) int {
	if e.encoder == nil {
		return len(text) / 4
	}
	return len(e.encoder.Encode(text, nil, nil))
}

func makeSource(h hit, rerankScore *float64) Source {
	return Source{
		Text:            preview(h.result.Text, sourcePreviewLen),
		SimilarityScore: float64(h.result.Score),
		RerankScore:     rerankScore,
		DocID:           h.result.DocID,
		Metadata:        h.result.Metadata,
	}
}

func preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func chunkIDOf(res vectorstore.SearchResult) string {
	if id, ok := res.Metadata["chunk_id"].(string); ok && id != "" {
		return id
	}
	return fmt.Sprintf("%d", res.ID)
}
