// Package processors maps file types to text extractors. The ingestion
// engine picks the first processor whose CanProcess accepts the path; when
// none matches, or a processor fails, the plain-text extractor handles the
// file.
package processors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
)

// Process statuses.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
)

// ProcessedChunk is a pre-chunked piece of a document with structural
// metadata (page, sheet, ticket and so on).
type ProcessedChunk struct {
	Text     string
	Metadata map[string]any
}

// ProcessResult is what an extractor returns for one file.
type ProcessResult struct {
	Status string
	Reason string

	// Text is the full extracted text. Chunks, when non-empty, carries
	// structure-aware pre-chunking and takes precedence over re-chunking
	// Text downstream.
	Text     string
	Chunks   []ProcessedChunk
	Metadata map[string]any
}

// Processor extracts text from one family of file formats.
type Processor interface {
	CanProcess(path string) bool
	Process(ctx context.Context, path string, meta map[string]any) (*ProcessResult, error)
	Extensions() []string
}

// Registry holds processors in selection order, with a plain-text fallback.
type Registry struct {
	processors []Processor
	fallback   *TextProcessor
}

// NewRegistry creates a registry with the built-in processors registered.
func NewRegistry() *Registry {
	r := &Registry{fallback: NewTextProcessor()}
	r.processors = append(r.processors,
		&PDFProcessor{},
		&WordProcessor{},
		&ExcelProcessor{},
		&ServiceNowProcessor{},
		r.fallback,
	)
	return r
}

// Register prepends a processor so it is preferred over the built-ins.
func (r *Registry) Register(p Processor) {
	r.processors = append([]Processor{p}, r.processors...)
}

// Select returns the first processor accepting the path, falling back to
// the plain-text extractor.
func (r *Registry) Select(path string) Processor {
	for _, p := range r.processors {
		if p.CanProcess(path) {
			return p
		}
	}
	return r.fallback
}

// Fallback returns the plain-text extractor.
func (r *Registry) Fallback() *TextProcessor {
	return r.fallback
}

// Extensions returns every extension some processor supports.
func (r *Registry) Extensions() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range r.processors {
		for _, ext := range p.Extensions() {
			if !seen[ext] {
				seen[ext] = true
				out = append(out, ext)
			}
		}
	}
	return out
}

// TextProcessor reads a file as UTF-8 text. It accepts any path, making it
// the universal fallback.
type TextProcessor struct{}

func NewTextProcessor() *TextProcessor { return &TextProcessor{} }

func (p *TextProcessor) CanProcess(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".log", ".csv", ".json", ".xml", ".html", ".htm", ".yaml", ".yml":
		return true
	}
	return false
}

func (p *TextProcessor) Extensions() []string {
	return []string{".txt", ".md", ".log", ".csv", ".json", ".xml", ".html", ".htm", ".yaml", ".yml"}
}

func (p *TextProcessor) Process(ctx context.Context, path string, meta map[string]any) (*ProcessResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ragerror.NewIngestion("processors", "process", "failed to read file", err).
			WithDetail("path", path)
	}

	text := string(data)
	if !utf8.ValidString(text) {
		return &ProcessResult{Status: StatusSkipped, Reason: "binary_content"}, nil
	}
	if strings.TrimSpace(text) == "" {
		return &ProcessResult{Status: StatusSkipped, Reason: "no_content"}, nil
	}

	return &ProcessResult{
		Status: StatusSuccess,
		Text:   text,
		Metadata: map[string]any{
			"source_type": "text",
			"word_count":  len(strings.Fields(text)),
		},
	}, nil
}

func fileBaseMetadata(path string, sourceType string) map[string]any {
	meta := map[string]any{
		"source_type": sourceType,
		"filename":    filepath.Base(path),
	}
	if info, err := os.Stat(path); err == nil {
		meta["file_size"] = info.Size()
	}
	return meta
}

func extOf(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func pageHeader(label string, n int) string {
	return fmt.Sprintf("--- %s %d ---", label, n)
}
