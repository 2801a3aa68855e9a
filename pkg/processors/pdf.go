package processors

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
)

// PDFProcessor extracts per-page text from PDF files. Each page becomes a
// pre-chunk carrying its page number.
type PDFProcessor struct{}

func (p *PDFProcessor) CanProcess(path string) bool {
	return extOf(path) == ".pdf"
}

func (p *PDFProcessor) Extensions() []string {
	return []string{".pdf"}
}

func (p *PDFProcessor) Process(ctx context.Context, path string, meta map[string]any) (*ProcessResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, ragerror.NewIngestion("processors", "process_pdf", "failed to open PDF file", err).
			WithDetail("path", path)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, ragerror.NewIngestion("processors", "process_pdf", "failed to stat PDF file", err)
	}

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return nil, ragerror.NewIngestion("processors", "process_pdf", "failed to parse PDF", err).
			WithDetail("path", path)
	}

	var textParts []string
	var chunks []ProcessedChunk
	totalPages := reader.NumPage()

	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}

		textParts = append(textParts, fmt.Sprintf("%s\n%s", pageHeader("Page", pageNum), text))
		chunks = append(chunks, ProcessedChunk{
			Text:     strings.TrimSpace(text),
			Metadata: map[string]any{"page": pageNum},
		})
	}

	if len(chunks) == 0 {
		return &ProcessResult{Status: StatusSkipped, Reason: "no_content"}, nil
	}

	metadata := fileBaseMetadata(path, "pdf")
	metadata["pages"] = totalPages

	return &ProcessResult{
		Status:   StatusSuccess,
		Text:     strings.Join(textParts, "\n\n"),
		Chunks:   chunks,
		Metadata: metadata,
	}, nil
}
