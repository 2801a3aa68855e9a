package processors

import (
	"context"
	"fmt"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"

	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
)

// WordProcessor extracts text from .docx documents.
type WordProcessor struct{}

func (p *WordProcessor) CanProcess(path string) bool {
	return extOf(path) == ".docx"
}

func (p *WordProcessor) Extensions() []string {
	return []string{".docx"}
}

func (p *WordProcessor) Process(ctx context.Context, path string, meta map[string]any) (*ProcessResult, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, ragerror.NewIngestion("processors", "process_docx", "failed to parse Word document", err).
			WithDetail("path", path)
	}
	defer doc.Close()

	content := stripDocxTags(doc.Editable().GetContent())
	if strings.TrimSpace(content) == "" {
		return &ProcessResult{Status: StatusSkipped, Reason: "no_content"}, nil
	}

	metadata := fileBaseMetadata(path, "word")
	metadata["word_count"] = len(strings.Fields(content))

	return &ProcessResult{
		Status:   StatusSuccess,
		Text:     content,
		Metadata: metadata,
	}, nil
}

// stripDocxTags removes the XML markup the docx library leaves in content.
func stripDocxTags(content string) string {
	var b strings.Builder
	inTag := false
	for _, r := range content {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteRune(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// ExcelProcessor extracts per-sheet text from .xlsx workbooks. Each sheet
// becomes a pre-chunk carrying its sheet name.
type ExcelProcessor struct{}

func (p *ExcelProcessor) CanProcess(path string) bool {
	return extOf(path) == ".xlsx"
}

func (p *ExcelProcessor) Extensions() []string {
	return []string{".xlsx"}
}

func (p *ExcelProcessor) Process(ctx context.Context, path string, meta map[string]any) (*ProcessResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, ragerror.NewIngestion("processors", "process_xlsx", "failed to parse Excel workbook", err).
			WithDetail("path", path)
	}
	defer f.Close()

	var textParts []string
	var chunks []ProcessedChunk

	sheets := f.GetSheetList()
	for _, sheetName := range sheets {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}

		var sheetText strings.Builder
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, " | "))
			if line != "" {
				sheetText.WriteString(line)
				sheetText.WriteString("\n")
			}
		}

		text := strings.TrimSpace(sheetText.String())
		if text == "" {
			continue
		}

		textParts = append(textParts, fmt.Sprintf("--- Sheet: %s ---\n%s", sheetName, text))
		chunks = append(chunks, ProcessedChunk{
			Text:     text,
			Metadata: map[string]any{"sheet": sheetName},
		})
	}

	if len(chunks) == 0 {
		return &ProcessResult{Status: StatusSkipped, Reason: "no_content"}, nil
	}

	metadata := fileBaseMetadata(path, "excel")
	metadata["sheets"] = len(sheets)

	return &ProcessResult{
		Status:   StatusSuccess,
		Text:     strings.Join(textParts, "\n\n"),
		Chunks:   chunks,
		Metadata: metadata,
	}, nil
}
