package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pratap1297/rag-new-sub000/pkg/conversation"
	"github.com/pratap1297/rag-new-sub000/pkg/health"
	"github.com/pratap1297/rag-new-sub000/pkg/vectorstore"
)

// ---- health ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Heartbeat == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": health.StatusHealthy})
		return
	}

	snapshot := s.deps.Heartbeat.Status(r.Context())
	issues := []string{}
	for name, c := range snapshot.Components {
		if c.Status != health.StatusHealthy {
			issues = append(issues, fmt.Sprintf("%s: %s", name, c.Message))
		}
	}
	sort.Strings(issues)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     snapshot.Overall,
		"components": snapshot.Components,
		"issues":     issues,
	})
}

func (s *Server) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	if s.deps.Heartbeat == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": health.StatusHealthy})
		return
	}

	snapshot := s.deps.Heartbeat.CheckNow(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      snapshot.Overall,
		"components":  snapshot.Components,
		"duration_ms": snapshot.DurationMS,
		"checked_at":  snapshot.Timestamp.Format(time.RFC3339),
	})
}

// ---- stats / config / documents ----

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.deps.Store.GetStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"total_vectors":     stats.ActiveVectors,
		"stored_vectors":    stats.TotalVectors,
		"vector_dimensions": stats.Dimension,
		"index_type":        stats.IndexType,
		"total_documents":   s.deps.Meta.Count(),
		"embedding_model":   s.deps.Config.Embedding.Model,
		"llm_model":         s.deps.Config.LLM.Model,
		"environment":       s.deps.Config.Environment,
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Config.Redacted())
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	type docInfo struct {
		DocID      string `json:"doc_id"`
		DocPath    string `json:"doc_path,omitempty"`
		Filename   string `json:"filename,omitempty"`
		SourceType string `json:"source_type,omitempty"`
		Chunks     int    `json:"chunks"`
	}

	byDoc := make(map[string]*docInfo)
	for _, meta := range s.deps.Store.Active() {
		docID, _ := meta[vectorstore.MetaDocID].(string)
		if docID == "" {
			docID = "unknown"
		}
		info, ok := byDoc[docID]
		if !ok {
			info = &docInfo{DocID: docID}
			info.DocPath, _ = meta["doc_path"].(string)
			info.Filename, _ = meta["filename"].(string)
			info.SourceType, _ = meta[vectorstore.MetaSourceType].(string)
			byDoc[docID] = info
		}
		info.Chunks++
	}

	documents := make([]string, 0, len(byDoc))
	details := make([]docInfo, 0, len(byDoc))
	for id, info := range byDoc {
		documents = append(documents, id)
		details = append(details, *info)
	}
	sort.Strings(documents)
	sort.Slice(details, func(i, j int) bool { return details[i].DocID < details[j].DocID })

	writeJSON(w, http.StatusOK, map[string]any{
		"documents":        documents,
		"total_documents":  len(documents),
		"document_details": details,
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "docPath")
	if raw == "" {
		raw = chi.URLParam(r, "*")
	}
	docPath, err := url.PathUnescape(raw)
	if err != nil || docPath == "" {
		writeValidationError(w, "missing or malformed document path")
		return
	}

	deleted, err := s.deps.Ingest.DeleteFile(r.Context(), docPath)
	if err != nil {
		writeError(w, err)
		return
	}
	// Paths arrive without their leading slash when the client does not
	// percent-encode the separator.
	if deleted == 0 && !strings.HasPrefix(docPath, "/") {
		if n, err := s.deps.Ingest.DeleteFile(r.Context(), "/"+docPath); err == nil {
			deleted = n
		}
	}

	s.record("delete_document", map[string]any{"doc_path": docPath, "vectors_deleted": deleted})
	writeJSON(w, http.StatusOK, map[string]any{"vectors_deleted": deleted})
}

// ---- query ----

type queryRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(w, "invalid JSON body: "+err.Error())
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeValidationError(w, "query must not be empty")
		return
	}
	if len(req.Query) > s.deps.Config.API.MaxQueryLength {
		writeValidationError(w, fmt.Sprintf("query exceeds %d characters", s.deps.Config.API.MaxQueryLength))
		return
	}
	if req.MaxResults < 0 {
		writeValidationError(w, "max_results must not be negative")
		return
	}
	if req.MaxResults > s.deps.Config.API.MaxResults {
		req.MaxResults = s.deps.Config.API.MaxResults
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.deps.Config.API.QueryDeadline())
	defer cancel()

	start := time.Now()
	resp, err := s.deps.Queries.ProcessQuery(ctx, req.Query, req.MaxResults)
	if err != nil {
		if ctx.Err() != nil {
			writeError(w, context.DeadlineExceeded)
			return
		}
		writeError(w, err)
		return
	}
	s.observeQuery(ctx, time.Since(start))
	s.record("query", map[string]any{"query": req.Query, "sources": len(resp.Sources)})

	writeJSON(w, http.StatusOK, map[string]any{
		"query":             resp.Query,
		"response":          resp.Response,
		"sources":           resp.Sources,
		"total_sources":     resp.TotalSources,
		"context_used":      len(resp.Sources),
		"query_enhancement": resp.QueryEnhancement,
	})
}

// ---- ingest ----

type ingestRequest struct {
	Text     string          `json:"text"`
	Metadata json.RawMessage `json:"metadata"`
}

// parseUserMetadata accepts an object, or a bare string interpreted as
// {description: <string>}.
func parseUserMetadata(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err == nil {
		return asMap, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return map[string]any{"description": asString}, nil
	}
	return nil, errors.New("metadata must be an object or a string")
}

func (s *Server) handleIngestText(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(w, "invalid JSON body: "+err.Error())
		return
	}

	userMeta, err := parseUserMetadata(req.Metadata)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.deps.Config.API.TextIngestDeadline())
	defer cancel()

	start := time.Now()
	result, err := s.deps.Ingest.IngestText(ctx, req.Text, userMeta)
	if err != nil {
		if ctx.Err() != nil {
			writeError(w, context.DeadlineExceeded)
			return
		}
		writeError(w, err)
		return
	}
	s.observeIngest(ctx, time.Since(start))
	s.record("ingest_text", map[string]any{"status": result.Status, "chunks": result.ChunksCreated})

	writeJSON(w, http.StatusOK, map[string]any{
		"status":              result.Status,
		"reason":              result.Reason,
		"file_id":             result.FileID,
		"chunks_created":      result.ChunksCreated,
		"is_update":           result.IsUpdate,
		"old_vectors_deleted": result.OldVectorsDeleted,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.deps.Config.Ingestion.MaxFileSizeMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeValidationError(w, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeValidationError(w, "missing file field")
		return
	}
	defer file.Close()

	userMeta, err := parseUserMetadata(json.RawMessage(r.FormValue("metadata")))
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	// Stage the upload so processors can work from a real path.
	tmpDir, err := os.MkdirTemp("", "rag-upload-")
	if err != nil {
		writeError(w, err)
		return
	}
	defer os.RemoveAll(tmpDir)

	tmpPath := filepath.Join(tmpDir, filepath.Base(header.Filename))
	dst, err := os.Create(tmpPath)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		writeError(w, err)
		return
	}
	dst.Close()

	if userMeta == nil {
		userMeta = map[string]any{}
	}
	if _, ok := userMeta["filename"]; !ok {
		userMeta["filename"] = header.Filename
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.deps.Config.API.FileIngestDeadline())
	defer cancel()

	start := time.Now()
	result, err := s.deps.Ingest.IngestFile(ctx, tmpPath, userMeta)
	if err != nil {
		if ctx.Err() != nil {
			writeError(w, context.DeadlineExceeded)
			return
		}
		writeError(w, err)
		return
	}
	s.observeIngest(ctx, time.Since(start))
	s.record("upload", map[string]any{"filename": header.Filename, "status": result.Status})

	writeJSON(w, http.StatusOK, map[string]any{
		"status":              result.Status,
		"reason":              result.Reason,
		"file_id":             result.FileID,
		"chunks_created":      result.ChunksCreated,
		"is_update":           result.IsUpdate,
		"old_vectors_deleted": result.OldVectorsDeleted,
		"vectors_stored":      result.VectorsStored,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Ingest.Clear(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	s.record("clear", map[string]any{"vectors_deleted": result.VectorsDeleted})

	writeJSON(w, http.StatusOK, map[string]any{
		"vectors_deleted":   result.VectorsDeleted,
		"documents_deleted": result.DocumentsDeleted,
		"chunks_deleted":    result.ChunksDeleted,
	})
}

// ---- heartbeat ----

func (s *Server) heartbeatOr503(w http.ResponseWriter) *health.Monitor {
	if s.deps.Heartbeat == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":   "unavailable",
			"message": "heartbeat monitor is not configured",
			"type":    "api",
		})
		return nil
	}
	return s.deps.Heartbeat
}

func (s *Server) handleHeartbeatStatus(w http.ResponseWriter, r *http.Request) {
	hb := s.heartbeatOr503(w)
	if hb == nil {
		return
	}
	snapshot := hb.Status(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     snapshot.Overall,
		"components": snapshot.Components,
		"checked_at": snapshot.Timestamp.Format(time.RFC3339),
	})
}

func (s *Server) handleHeartbeatStart(w http.ResponseWriter, r *http.Request) {
	hb := s.heartbeatOr503(w)
	if hb == nil {
		return
	}
	hb.Start()
	writeJSON(w, http.StatusOK, map[string]any{"status": "started"})
}

func (s *Server) handleHeartbeatStop(w http.ResponseWriter, r *http.Request) {
	hb := s.heartbeatOr503(w)
	if hb == nil {
		return
	}
	hb.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"status": "stopped"})
}

func (s *Server) handleHeartbeatLogs(w http.ResponseWriter, r *http.Request) {
	hb := s.heartbeatOr503(w)
	if hb == nil {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeValidationError(w, "limit must be an integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": hb.History(limit)})
}

// ---- folder monitor ----

type folderRequest struct {
	FolderPath string `json:"folder_path"`
}

func (s *Server) monitorOr503(w http.ResponseWriter) bool {
	if s.deps.Monitor == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":   "unavailable",
			"message": "folder monitor is not configured",
			"type":    "api",
		})
		return false
	}
	return true
}

func (s *Server) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	if !s.monitorOr503(w) {
		return
	}
	status := s.deps.Monitor.GetStatus()
	writeJSON(w, http.StatusOK, map[string]any{
		"running":       status.Running,
		"folders":       status.Folders,
		"tracked_files": status.TrackedFiles,
		"last_scan":     status.LastScan,
		"scan_count":    status.ScanCount,
		"errors":        status.Errors,
	})
}

func (s *Server) handleMonitorAdd(w http.ResponseWriter, r *http.Request) {
	if !s.monitorOr503(w) {
		return
	}
	var req folderRequest
	if err := decodeBody(r, &req); err != nil || req.FolderPath == "" {
		writeValidationError(w, "folder_path is required")
		return
	}

	added, err := s.deps.Monitor.AddFolder(req.FolderPath)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":   "not_found",
			"message": err.Error(),
		})
		return
	}

	status := "already_monitored"
	if added {
		status = "added"
		// Pick up existing files right away.
		s.deps.Monitor.ForceScan(r.Context())
	}

	root := mustAbs(req.FolderPath)
	filesFound := 0
	for _, f := range s.deps.Monitor.ListFiles() {
		if strings.HasPrefix(f.Path, root+string(filepath.Separator)) {
			filesFound++
		}
	}

	s.record("folder_add", map[string]any{"folder_path": req.FolderPath, "status": status})
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      status,
		"folder_path": req.FolderPath,
		"files_found": filesFound,
	})
}

func mustAbs(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func (s *Server) handleMonitorRemove(w http.ResponseWriter, r *http.Request) {
	if !s.monitorOr503(w) {
		return
	}
	var req folderRequest
	if err := decodeBody(r, &req); err != nil || req.FolderPath == "" {
		writeValidationError(w, "folder_path is required")
		return
	}

	removed, err := s.deps.Monitor.RemoveFolder(req.FolderPath)
	if err != nil {
		writeError(w, err)
		return
	}
	status := "not_monitored"
	if removed {
		status = "removed"
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "folder_path": req.FolderPath})
}

func (s *Server) handleMonitorFolders(w http.ResponseWriter, r *http.Request) {
	if !s.monitorOr503(w) {
		return
	}
	folders := s.deps.Monitor.ListFolders()
	writeJSON(w, http.StatusOK, map[string]any{"folders": folders, "total": len(folders)})
}

func (s *Server) handleMonitorFiles(w http.ResponseWriter, r *http.Request) {
	if !s.monitorOr503(w) {
		return
	}
	files := s.deps.Monitor.ListFiles()
	writeJSON(w, http.StatusOK, map[string]any{"files": files, "total": len(files)})
}

func (s *Server) handleMonitorStart(w http.ResponseWriter, r *http.Request) {
	if !s.monitorOr503(w) {
		return
	}
	s.deps.Monitor.Start()
	writeJSON(w, http.StatusOK, map[string]any{"status": "started"})
}

func (s *Server) handleMonitorStop(w http.ResponseWriter, r *http.Request) {
	if !s.monitorOr503(w) {
		return
	}
	s.deps.Monitor.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"status": "stopped"})
}

func (s *Server) handleMonitorScan(w http.ResponseWriter, r *http.Request) {
	if !s.monitorOr503(w) {
		return
	}
	status := s.deps.Monitor.ForceScan(r.Context())
	s.record("folder_scan", map[string]any{"tracked_files": status.TrackedFiles})
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "completed",
		"tracked_files": status.TrackedFiles,
		"scan_count":    status.ScanCount,
		"errors":        status.Errors,
	})
}

// ---- conversation ----

func (s *Server) handleConversationStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ThreadID string `json:"thread_id"`
	}
	// An empty body means a fresh thread.
	_ = decodeBody(r, &req)

	result, err := s.deps.Conversations.StartConversation(r.Context(), req.ThreadID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"thread_id":     result.ThreadID,
		"response":      result.Response,
		"turn_count":    result.TurnCount,
		"current_phase": result.CurrentPhase,
	})
}

func (s *Server) handleConversationMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ThreadID              string `json:"thread_id"`
		Message               string `json:"message"`
		RequiresClarification bool   `json:"requires_clarification"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.ThreadID == "" || strings.TrimSpace(req.Message) == "" {
		writeValidationError(w, "thread_id and message are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.deps.Config.API.QueryDeadline())
	defer cancel()

	result, err := s.deps.Conversations.ProcessMessageWithOptions(ctx, req.ThreadID, req.Message,
		conversation.TurnOptions{RequiresClarification: req.RequiresClarification})
	if err != nil {
		if ctx.Err() != nil {
			writeError(w, context.DeadlineExceeded)
			return
		}
		writeError(w, err)
		return
	}

	body := map[string]any{
		"thread_id":        result.ThreadID,
		"response":         result.Response,
		"turn_count":       result.TurnCount,
		"current_phase":    result.CurrentPhase,
		"confidence_score": result.ConfidenceScore,
	}
	if len(result.Sources) > 0 {
		body["sources"] = result.Sources
	}
	if len(result.SuggestedQuestions) > 0 {
		body["suggested_questions"] = result.SuggestedQuestions
	}
	if len(result.RelatedTopics) > 0 {
		body["related_topics"] = result.RelatedTopics
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleConversationHistory(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	maxMessages := 0
	if v := r.URL.Query().Get("max_messages"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeValidationError(w, "max_messages must be an integer")
			return
		}
		maxMessages = n
	}

	state, err := s.deps.Conversations.History(threadID, maxMessages)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"thread_id":     state.ThreadID,
		"messages":      state.Messages,
		"turn_count":    state.TurnCount,
		"current_phase": state.CurrentPhase,
	})
}

func (s *Server) handleConversationEnd(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	summary, err := s.deps.Conversations.EndConversation(r.Context(), threadID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary":     summary,
		"total_turns": summary.TurnCount,
	})
}

// ---- metric helpers ----

func (s *Server) observeQuery(ctx context.Context, d time.Duration) {
	if s.deps.Observability == nil {
		return
	}
	m := s.deps.Observability.Metrics()
	if m.QueryDuration != nil {
		m.QueryDuration.Record(ctx, d.Seconds())
	}
	if m.QueryTotal != nil {
		m.QueryTotal.Add(ctx, 1)
	}
}

func (s *Server) observeIngest(ctx context.Context, d time.Duration) {
	if s.deps.Observability == nil {
		return
	}
	m := s.deps.Observability.Metrics()
	if m.IngestDuration != nil {
		m.IngestDuration.Record(ctx, d.Seconds())
	}
	if m.IngestTotal != nil {
		m.IngestTotal.Add(ctx, 1)
	}
}
