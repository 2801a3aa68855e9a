// Package chunking turns extracted text into ordered chunks for embedding.
// Two strategies exist: size-based greedy sentence packing and semantic
// boundary detection over sentence embeddings.
package chunking

import (
	"context"
	"strings"
	"unicode"

	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
)

// Chunking method values recorded on each chunk.
const (
	MethodSize     = "size"
	MethodSemantic = "semantic"
	MethodFallback = "fallback"
)

// Chunk is one ordered piece of a document.
type Chunk struct {
	Text     string
	Index    int
	Method   string
	Metadata map[string]any
}

// Chunker produces ordered chunks with chunk_index starting at 0.
type Chunker interface {
	Chunk(ctx context.Context, text string, meta map[string]any) ([]Chunk, error)
}

// NewChunkerFromConfig selects the configured strategy. The semantic
// strategy needs a sentence embedder and degrades to size-based when it is
// unavailable.
func NewChunkerFromConfig(cfg *config.ChunkingConfig, embedder SentenceEmbedder) (Chunker, error) {
	switch cfg.Strategy {
	case "", "size":
		return NewSizeChunker(cfg.Size, cfg.Overlap), nil
	case "semantic":
		return NewSemanticChunker(cfg, embedder), nil
	default:
		return nil, ragerror.NewConfig("chunking", "create", "unsupported chunking strategy", nil).
			WithDetail("strategy", cfg.Strategy)
	}
}

// splitIntoSentences splits on terminal punctuation, handling CJK text
// where no space follows the terminator.
func splitIntoSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}
	}

	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)

		if !isSentenceEnd(r) {
			continue
		}

		isEnd := false
		if i+1 >= len(runes) {
			isEnd = true
		} else {
			next := runes[i+1]
			if unicode.IsSpace(next) || unicode.IsUpper(next) || isSentenceEnd(next) {
				isEnd = true
			} else if isCJK(r) || isCJK(next) {
				isEnd = !unicode.IsPunct(next) || isSentenceEnd(next)
			}
		}

		if isEnd {
			if sentence := strings.TrimSpace(current.String()); sentence != "" {
				sentences = append(sentences, sentence)
			}
			current.Reset()
			for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				i++
			}
		}
	}

	if sentence := strings.TrimSpace(current.String()); sentence != "" {
		sentences = append(sentences, sentence)
	}
	return sentences
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '。' || r == '！' || r == '？'
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x3040 && r <= 0x30FF) ||
		(r >= 0xAC00 && r <= 0xD7AF)
}

// getOverlapText returns up to overlapSize trailing characters of text,
// trimmed to a word boundary.
func getOverlapText(text string, overlapSize int) string {
	if overlapSize <= 0 {
		return ""
	}

	runes := []rune(text)
	if len(runes) <= overlapSize {
		return text
	}

	overlap := string(runes[len(runes)-overlapSize:])
	words := strings.Fields(overlap)
	if len(words) > 1 {
		return strings.Join(words[1:], " ")
	}
	return overlap
}

func buildChunks(texts []string, method string, meta map[string]any) []Chunk {
	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		chunkMeta := make(map[string]any, len(meta))
		for k, v := range meta {
			chunkMeta[k] = v
		}
		chunks[i] = Chunk{
			Text:     text,
			Index:    i,
			Method:   method,
			Metadata: chunkMeta,
		}
	}
	return chunks
}
