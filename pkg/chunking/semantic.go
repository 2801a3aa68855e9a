package chunking

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/pratap1297/rag-new-sub000/pkg/config"
)

// SentenceEmbedder is the slice of the embedding provider the semantic
// chunker needs.
type SentenceEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// SemanticChunker places chunk boundaries where consecutive sentences stop
// being similar. When the embedder fails or is missing it degrades to the
// size-based strategy and marks every chunk with the fallback method.
type SemanticChunker struct {
	embedder  SentenceEmbedder
	threshold float64
	maxSize   int
	fallback  *SizeChunker
}

func NewSemanticChunker(cfg *config.ChunkingConfig, embedder SentenceEmbedder) *SemanticChunker {
	threshold := cfg.SimilarityThreshold
	if threshold == 0 {
		threshold = 0.5
	}
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = cfg.Size
		if maxSize <= 0 {
			maxSize = 2000
		}
	}
	return &SemanticChunker{
		embedder:  embedder,
		threshold: threshold,
		maxSize:   maxSize,
		fallback:  NewSizeChunker(cfg.Size, cfg.Overlap),
	}
}

func (c *SemanticChunker) Chunk(ctx context.Context, text string, meta map[string]any) ([]Chunk, error) {
	sentences := splitIntoSentences(text)
	if len(sentences) == 0 {
		return []Chunk{}, nil
	}
	if c.embedder == nil {
		return c.fallbackChunks(ctx, text, meta, nil)
	}
	if len(sentences) == 1 {
		return buildChunks([]string{sentences[0]}, MethodSemantic, meta), nil
	}

	vectors, err := c.embedder.EmbedTexts(ctx, sentences)
	if err != nil {
		return c.fallbackChunks(ctx, text, meta, err)
	}

	var texts []string
	var current strings.Builder
	currentLength := 0

	flush := func() {
		if current.Len() > 0 {
			texts = append(texts, strings.TrimSpace(current.String()))
			current.Reset()
			currentLength = 0
		}
	}

	for i, sentence := range sentences {
		sentenceLength := len([]rune(sentence))

		if i > 0 {
			similarity := cosineSimilarity(vectors[i-1], vectors[i])
			if similarity < c.threshold || currentLength+1+sentenceLength > c.maxSize {
				flush()
			}
		}

		if current.Len() > 0 {
			current.WriteString(" ")
			currentLength++
		}
		current.WriteString(sentence)
		currentLength += sentenceLength
	}
	flush()

	return buildChunks(texts, MethodSemantic, meta), nil
}

func (c *SemanticChunker) fallbackChunks(ctx context.Context, text string, meta map[string]any, cause error) ([]Chunk, error) {
	if cause != nil {
		slog.Warn("Semantic chunking unavailable, falling back to size-based", "error", cause)
	}
	chunks, err := c.fallback.Chunk(ctx, text, meta)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i].Method = MethodFallback
	}
	return chunks, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
