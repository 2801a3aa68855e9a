package chunking

import (
	"context"
	"strings"
)

// SizeChunker packs whole sentences greedily into chunks of at most size
// characters, carrying overlap characters of tail into the next chunk. A
// sentence is never split to meet the budget, so a single long sentence can
// exceed size.
type SizeChunker struct {
	size    int
	overlap int
}

func NewSizeChunker(size, overlap int) *SizeChunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &SizeChunker{size: size, overlap: overlap}
}

func (c *SizeChunker) Chunk(ctx context.Context, text string, meta map[string]any) ([]Chunk, error) {
	texts := c.pack(splitIntoSentences(text))
	return buildChunks(texts, MethodSize, meta), nil
}

func (c *SizeChunker) pack(sentences []string) []string {
	if len(sentences) == 0 {
		return []string{}
	}

	var chunks []string
	var current strings.Builder
	currentLength := 0

	for _, sentence := range sentences {
		sentenceLength := len([]rune(sentence))

		spaceNeeded := 0
		if current.Len() > 0 {
			spaceNeeded = 1
		}

		if currentLength+spaceNeeded+sentenceLength > c.size && current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))

			overlapText := getOverlapText(current.String(), c.overlap)
			current.Reset()
			if overlapText != "" {
				current.WriteString(overlapText)
				currentLength = len([]rune(overlapText))
				current.WriteString(" ")
				currentLength++
			} else {
				currentLength = 0
			}
		} else if current.Len() > 0 {
			current.WriteString(" ")
			currentLength++
		}

		current.WriteString(sentence)
		currentLength += sentenceLength
	}

	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}
	return chunks
}
