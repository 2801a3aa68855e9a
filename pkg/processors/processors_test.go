package processors

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestTextProcessorExtractsContent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "Paris is the capital of France.")

	result, err := NewTextProcessor().Process(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "Paris is the capital of France.", result.Text)
	assert.Equal(t, "text", result.Metadata["source_type"])
}

func TestTextProcessorSkipsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.txt", "   \n\t ")

	result, err := NewTextProcessor().Process(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, result.Status)
	assert.Equal(t, "no_content", result.Reason)
}

func TestRegistrySelection(t *testing.T) {
	r := NewRegistry()

	assert.IsType(t, &PDFProcessor{}, r.Select("doc.pdf"))
	assert.IsType(t, &WordProcessor{}, r.Select("doc.docx"))
	assert.IsType(t, &ExcelProcessor{}, r.Select("sheet.xlsx"))
	assert.IsType(t, &TextProcessor{}, r.Select("readme.md"))

	// Unknown extension still lands on the fallback.
	assert.IsType(t, &TextProcessor{}, r.Select("mystery.bin"))
}

func TestServiceNowProcessorRecords(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "servicenow_export.json", `{
		"records": [
			{"number": "INC0001", "short_description": "VPN down", "state": "closed", "close_notes": "Restarted gateway"},
			{"number": "INC0002", "short_description": "Email outage", "state": "open"}
		]
	}`)

	p := &ServiceNowProcessor{}
	require.True(t, p.CanProcess(path))

	result, err := p.Process(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	require.Len(t, result.Chunks, 2)
	assert.Contains(t, result.Chunks[0].Text, "INC0001")
	assert.Contains(t, result.Chunks[0].Text, "Restarted gateway")
	assert.Equal(t, "INC0001", result.Chunks[0].Metadata["ticket_number"])
	assert.Equal(t, 2, result.Metadata["ticket_count"])
}

func TestServiceNowProcessorBareArray(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tickets.json", `[{"number": "INC0009", "short_description": "Disk full"}]`)

	p := &ServiceNowProcessor{}
	require.True(t, p.CanProcess(path))

	result, err := p.Process(context.Background(), path, nil)
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)
	assert.Contains(t, result.Chunks[0].Text, "Disk full")
}

func TestServiceNowProcessorIgnoresPlainJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{"key": "value"}`)

	p := &ServiceNowProcessor{}
	assert.False(t, p.CanProcess(path))
}

func TestStripDocxTags(t *testing.T) {
	content := `<w:p><w:r><w:t>Hello</w:t></w:r></w:p> <w:p><w:r><w:t>world</w:t></w:r></w:p>`
	assert.Equal(t, "Hello world", stripDocxTags(content))
}
