// Package ingest implements the ingestion pipeline: extract, chunk, embed,
// index. Re-ingesting a document identity soft-deletes its previous vectors
// first (replace-on-update), and ingests of the same identity are
// serialized while different identities proceed in parallel.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pratap1297/rag-new-sub000/pkg/chunking"
	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/embedders"
	"github.com/pratap1297/rag-new-sub000/pkg/metastore"
	"github.com/pratap1297/rag-new-sub000/pkg/processors"
	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
	"github.com/pratap1297/rag-new-sub000/pkg/vectorstore"
)

// Ingest statuses.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
)

// Result is the outcome of one ingest operation.
type Result struct {
	Status            string `json:"status"`
	Reason            string `json:"reason,omitempty"`
	FileID            string `json:"file_id,omitempty"`
	ChunksCreated     int    `json:"chunks_created"`
	IsUpdate          bool   `json:"is_update"`
	OldVectorsDeleted int    `json:"old_vectors_deleted"`
	VectorsStored     int    `json:"vectors_stored"`
}

// FileResult pairs a path with its ingest outcome for directory ingests.
type FileResult struct {
	Path   string  `json:"path"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// ClearResult is the outcome of wiping the whole corpus.
type ClearResult struct {
	VectorsDeleted   int `json:"vectors_deleted"`
	DocumentsDeleted int `json:"documents_deleted"`
	ChunksDeleted    int `json:"chunks_deleted"`
}

// Engine orchestrates the ingestion pipeline.
type Engine struct {
	store      *vectorstore.Store
	meta       *metastore.Store
	embedder   embedders.EmbedderProvider
	chunker    chunking.Chunker
	processors *processors.Registry
	cfg        *config.IngestionConfig

	// identityMu serializes ingests per document identity.
	mu         sync.Mutex
	identityMu map[string]*sync.Mutex
}

// New creates an ingestion engine.
func New(store *vectorstore.Store, meta *metastore.Store, embedder embedders.EmbedderProvider,
	chunker chunking.Chunker, registry *processors.Registry, cfg *config.IngestionConfig) *Engine {
	return &Engine{
		store:      store,
		meta:       meta,
		embedder:   embedder,
		chunker:    chunker,
		processors: registry,
		cfg:        cfg,
		identityMu: make(map[string]*sync.Mutex),
	}
}

func (e *Engine) lockIdentity(identity string) func() {
	e.mu.Lock()
	lock, exists := e.identityMu[identity]
	if !exists {
		lock = &sync.Mutex{}
		e.identityMu[identity] = lock
	}
	e.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// resolveIdentity picks the document identity: user doc_path, then user
// filename, then the file path itself.
func resolveIdentity(path string, userMeta map[string]any) string {
	flat := vectorstore.Flatten(userMeta)
	if docPath, ok := flat["doc_path"].(string); ok && docPath != "" {
		return docPath
	}
	if filename, ok := flat["filename"].(string); ok && filename != "" {
		return filename
	}
	return path
}

// IngestFile runs the full pipeline for one file on disk.
func (e *Engine) IngestFile(ctx context.Context, path string, userMeta map[string]any) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, ragerror.NewIngestion("ingest", "ingest_file", "file not found", err).
			WithDetail("path", path)
	}

	if e.cfg != nil && e.cfg.MaxFileSizeMB > 0 {
		if info.Size() > int64(e.cfg.MaxFileSizeMB)*1024*1024 {
			return nil, ragerror.NewIngestion("ingest", "ingest_file", "file exceeds size limit", nil).
				WithDetail("path", path).
				WithDetail("size", info.Size()).
				WithDetail("limit_mb", e.cfg.MaxFileSizeMB)
		}
	}

	identity := resolveIdentity(path, userMeta)
	unlock := e.lockIdentity(identity)
	defer unlock()

	processor := e.processors.Select(path)
	result, err := processor.Process(ctx, path, userMeta)
	if err != nil {
		// Extractor failures are non-fatal: retry with plain text.
		slog.Warn("Processor failed, falling back to plain text", "path", path, "error", err)
		result, err = e.processors.Fallback().Process(ctx, path, userMeta)
		if err != nil {
			return nil, err
		}
	}

	if result.Status == processors.StatusSkipped {
		return &Result{Status: StatusSkipped, Reason: result.Reason}, nil
	}

	docMeta := buildDocMeta(identity, path, info.Size(), result.Metadata, userMeta)
	return e.ingestExtracted(ctx, identity, path, info.Size(), fileType(path), result, docMeta)
}

// IngestText ingests raw text with no backing file.
func (e *Engine) IngestText(ctx context.Context, text string, userMeta map[string]any) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return &Result{Status: StatusSkipped, Reason: "no_content"}, nil
	}

	identity := resolveIdentity("", userMeta)
	if identity == "" {
		identity = fmt.Sprintf("text://%s", uuid.NewString())
	}
	unlock := e.lockIdentity(identity)
	defer unlock()

	result := &processors.ProcessResult{
		Status:   processors.StatusSuccess,
		Text:     text,
		Metadata: map[string]any{"source_type": "text"},
	}
	docMeta := buildDocMeta(identity, "", int64(len(text)), result.Metadata, userMeta)
	return e.ingestExtracted(ctx, identity, identity, int64(len(text)), "text", result, docMeta)
}

// ingestExtracted performs replace-on-update, chunking, embedding and the
// index write for already-extracted content.
func (e *Engine) ingestExtracted(ctx context.Context, identity, filePath string, fileSize int64,
	fileType string, extracted *processors.ProcessResult, docMeta map[string]any) (*Result, error) {

	oldIDs := e.findVectorsByIdentity(identity, filePath)
	oldDeleted := 0
	if len(oldIDs) > 0 {
		n, err := e.store.DeleteVectors(ctx, oldIDs)
		if err != nil {
			return nil, err
		}
		oldDeleted = n
	}

	chunks, err := e.chunksFor(ctx, extracted, docMeta)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return &Result{Status: StatusSkipped, Reason: "no_content",
			IsUpdate: oldDeleted > 0, OldVectorsDeleted: oldDeleted}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := e.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	metas := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		meta := vectorstore.Flatten(c.Metadata)
		for k, v := range docMeta {
			if _, exists := meta[k]; !exists {
				meta[k] = v
			}
		}
		meta[vectorstore.MetaText] = c.Text
		meta[vectorstore.MetaChunkIndex] = c.Index
		meta[vectorstore.MetaIngestedAt] = now
		meta["chunk_id"] = fmt.Sprintf("%s#%d", DocIDFor(identity), c.Index)
		meta["chunking_method"] = c.Method
		metas[i] = meta
	}

	vectorIDs, err := e.store.AddVectors(ctx, vectors, metas)
	if err != nil {
		return nil, err
	}

	fileID := uuid.NewString()
	record := &metastore.FileRecord{
		FileID:     fileID,
		FilePath:   filePath,
		FileSize:   fileSize,
		FileType:   fileType,
		IngestedAt: time.Now(),
		ChunkCount: len(chunks),
		VectorIDs:  vectorIDs,
		Metadata:   docMeta,
	}
	if err := e.meta.Save(record); err != nil {
		// The vectors are already committed and queryable.
		slog.Warn("Failed to write file ingestion record", "file_id", fileID, "error", err)
	}

	slog.Info("Ingested document", "identity", identity, "chunks", len(chunks),
		"is_update", oldDeleted > 0, "old_vectors_deleted", oldDeleted)

	return &Result{
		Status:            StatusSuccess,
		FileID:            fileID,
		ChunksCreated:     len(chunks),
		IsUpdate:          oldDeleted > 0,
		OldVectorsDeleted: oldDeleted,
		VectorsStored:     len(vectorIDs),
	}, nil
}

// chunksFor uses processor pre-chunks when present, otherwise runs the
// configured chunker over the extracted text.
func (e *Engine) chunksFor(ctx context.Context, extracted *processors.ProcessResult, docMeta map[string]any) ([]chunking.Chunk, error) {
	if len(extracted.Chunks) > 0 {
		chunks := make([]chunking.Chunk, len(extracted.Chunks))
		for i, pc := range extracted.Chunks {
			meta := vectorstore.Flatten(pc.Metadata)
			chunks[i] = chunking.Chunk{
				Text:     pc.Text,
				Index:    i,
				Method:   "processor",
				Metadata: meta,
			}
		}
		return chunks, nil
	}
	if strings.TrimSpace(extracted.Text) == "" {
		return nil, nil
	}
	return e.chunker.Chunk(ctx, extracted.Text, docMeta)
}

// IngestDirectory walks the tree under root and ingests files matching the
// patterns (all supported extensions when patterns is empty), bounded by
// the configured worker count.
func (e *Engine) IngestDirectory(ctx context.Context, root string, patterns []string) ([]*FileResult, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, ragerror.NewIngestion("ingest", "ingest_directory", "directory not found", err).
			WithDetail("path", root)
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if e.matchesPatterns(path, patterns) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, ragerror.NewIngestion("ingest", "ingest_directory", "directory walk failed", err).
			WithDetail("path", root)
	}

	maxConcurrent := 4
	if e.cfg != nil && e.cfg.MaxConcurrent > 0 {
		maxConcurrent = e.cfg.MaxConcurrent
	}

	results := make([]*FileResult, len(paths))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrent)

	for i, path := range paths {
		group.Go(func() error {
			result, err := e.IngestFile(ctx, path, nil)
			if err != nil {
				// A single failed file does not abort the batch.
				slog.Warn("Directory ingest: file failed", "path", path, "error", err)
				results[i] = &FileResult{Path: path, Error: err.Error()}
				return nil
			}
			results[i] = &FileResult{Path: path, Result: result}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (e *Engine) matchesPatterns(path string, patterns []string) bool {
	if len(patterns) == 0 {
		if e.cfg != nil && len(e.cfg.SupportedFormats) > 0 {
			ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
			for _, format := range e.cfg.SupportedFormats {
				if ext == strings.TrimPrefix(strings.ToLower(format), ".") {
					return true
				}
			}
			return false
		}
		return true
	}
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// DeleteFile soft-deletes every vector of the given path or doc_path and
// drops its file record. Unknown identities succeed with zero deletions.
func (e *Engine) DeleteFile(ctx context.Context, pathOrDocPath string) (int, error) {
	unlock := e.lockIdentity(pathOrDocPath)
	defer unlock()

	ids := e.findVectorsByIdentity(pathOrDocPath, pathOrDocPath)
	deleted := 0
	if len(ids) > 0 {
		n, err := e.store.DeleteVectors(ctx, ids)
		if err != nil {
			return 0, err
		}
		deleted = n
	}

	if err := e.meta.Delete(pathOrDocPath); err != nil {
		slog.Warn("Failed to drop file ingestion record", "path", pathOrDocPath, "error", err)
	}

	slog.Info("Deleted document", "identity", pathOrDocPath, "vectors_deleted", deleted)
	return deleted, nil
}

// Clear wipes the index and the file records.
func (e *Engine) Clear(ctx context.Context) (*ClearResult, error) {
	active := e.store.Active()
	documents := make(map[string]bool)
	for _, meta := range active {
		documents[documentKey(meta)] = true
	}

	vectorsDeleted, err := e.store.ClearIndex(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.meta.Clear(); err != nil {
		return nil, err
	}

	return &ClearResult{
		VectorsDeleted:   vectorsDeleted,
		DocumentsDeleted: len(documents),
		ChunksDeleted:    vectorsDeleted,
	}, nil
}

// findVectorsByIdentity returns the active vector ids whose metadata
// matches the identity, checking doc_path, then filename, then file_path.
func (e *Engine) findVectorsByIdentity(identity, filePath string) []uint64 {
	var ids []uint64
	for id, meta := range e.store.Active() {
		if metaMatchesIdentity(meta, identity, filePath) {
			ids = append(ids, id)
		}
	}
	return ids
}

func metaMatchesIdentity(meta map[string]any, identity, filePath string) bool {
	if docPath, ok := meta["doc_path"].(string); ok && docPath == identity {
		return true
	}
	if filename, ok := meta["filename"].(string); ok && filename == identity {
		return true
	}
	if fp, ok := meta["file_path"].(string); ok && fp != "" && (fp == identity || fp == filePath) {
		return true
	}
	return false
}

func documentKey(meta map[string]any) string {
	if docID, ok := meta[vectorstore.MetaDocID].(string); ok && docID != "" {
		return docID
	}
	if docPath, ok := meta["doc_path"].(string); ok && docPath != "" {
		return docPath
	}
	if filename, ok := meta["filename"].(string); ok && filename != "" {
		return filename
	}
	return "unknown"
}

// buildDocMeta assembles the document-level metadata attached to every
// chunk: user metadata first, processor metadata underneath, reserved keys
// last.
func buildDocMeta(identity, filePath string, fileSize int64, processorMeta, userMeta map[string]any) map[string]any {
	meta := vectorstore.Flatten(userMeta)
	for k, v := range vectorstore.Flatten(processorMeta) {
		if _, exists := meta[k]; !exists {
			meta[k] = v
		}
	}

	meta[vectorstore.MetaDocID] = DocIDFor(identity)
	if _, ok := meta["doc_path"]; !ok {
		meta["doc_path"] = identity
	}
	if _, ok := meta["filename"]; !ok && filePath != "" {
		meta["filename"] = filepath.Base(filePath)
	}
	if filePath != "" {
		meta["file_path"] = filePath
	}
	if _, ok := meta[vectorstore.MetaSourceType]; !ok {
		meta[vectorstore.MetaSourceType] = "file"
	}
	meta["file_size"] = fileSize
	return meta
}

// DocIDFor converts a document identity into its doc_id slug: path
// separators and other awkward characters become underscores, so
// "/geo/paris" yields "geo_paris". Chunk ids are "<doc_id>#<index>".
func DocIDFor(identity string) string {
	trimmed := strings.Trim(identity, "/")
	if trimmed == "" {
		return "root"
	}
	var b strings.Builder
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '.', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func fileType(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "unknown"
	}
	return ext
}
