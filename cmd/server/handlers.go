package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/archonrag/ragcore"
	"github.com/archonrag/ragcore/docupload"
	"github.com/archonrag/ragcore/progress"
	"github.com/archonrag/ragcore/retrieval"
	"github.com/archonrag/ragcore/store"
)

type handler struct {
	engine    *ragcore.Engine
	store     *store.Store
	uploads   *docupload.Registry
	startedAt time.Time
}

func newHandler(e *ragcore.Engine, st *store.Store) *handler {
	return &handler{engine: e, store: st, uploads: docupload.NewRegistry(), startedAt: time.Now()}
}

// POST /api/knowledge-items/crawl
func (h *handler) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL                 string   `json:"url"`
		KnowledgeType       string   `json:"knowledge_type"`
		Tags                []string `json:"tags"`
		MaxDepth            int      `json:"max_depth"`
		ExtractCodeExamples *bool    `json:"extract_code_examples"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := h.engine.ValidateCredentials(ctx); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":      "provider authentication failed",
			"error_type": "authentication_failed",
		})
		return
	}

	extractCode := true
	if req.ExtractCodeExamples != nil {
		extractCode = *req.ExtractCodeExamples
	}

	handle, err := h.engine.Orchestrate(ragcore.CrawlRequest{
		URL: req.URL, KnowledgeType: req.KnowledgeType, Tags: req.Tags,
		MaxDepth: req.MaxDepth, ExtractCodeExamples: extractCode,
	})
	if err != nil {
		if errors.Is(err, ragcore.ErrInvalidURL) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"progressId":        handle.ProgressID,
		"estimatedDuration": "1-5 minutes",
		"message":           "Crawl started",
	})
}

// POST /api/documents/upload
func (h *handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(100 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form with a 'file' field")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing 'file' field")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read upload")
		return
	}

	text, err := h.uploads.Extract(header.Filename, content)
	if err != nil {
		if errors.Is(err, docupload.ErrUnsupportedFormat) {
			writeError(w, http.StatusUnsupportedMediaType, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := h.engine.ValidateCredentials(ctx); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":      "provider authentication failed",
			"error_type": "authentication_failed",
		})
		return
	}

	knowledgeType := r.FormValue("knowledge_type")
	var tags []string
	if raw := r.FormValue("tags"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &tags)
	}
	extractCode := r.FormValue("extract_code_examples") != "false"

	handle, err := h.engine.OrchestrateDocument(header.Filename, text, knowledgeType, tags, extractCode)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"progressId":        handle.ProgressID,
		"filename":          header.Filename,
		"estimatedDuration": "under 1 minute",
		"message":           "Upload accepted",
	})
}

// POST /api/knowledge-items/{source_id}/refresh
func (h *handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sourceID := r.PathValue("source_id")
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	src, err := h.store.GetSource(ctx, sourceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if src == nil {
		writeError(w, http.StatusNotFound, "source not found")
		return
	}

	knowledgeType, _ := src.Metadata["knowledge_type"].(string)
	var tags []string
	if raw, ok := src.Metadata["tags"].([]any); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
	}

	handle, err := h.engine.Orchestrate(ragcore.CrawlRequest{
		URL: src.SourceURL, KnowledgeType: knowledgeType, Tags: tags,
		MaxDepth: 2, ExtractCodeExamples: true,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"progressId": handle.ProgressID,
		"message":    "Refresh started",
	})
}

// GET /api/progress/{id}
func (h *handler) handleProgressGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	op, ok := h.engine.Progress(id)
	if !ok {
		writeError(w, http.StatusNotFound, "operation not found")
		return
	}

	body := progressDTO(op)
	payload, _ := json.Marshal(body)
	etag := `"` + hex.EncodeToString(sha256.Sum256(payload)[:])[:16] + `"`

	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache, must-revalidate")
	if op.IsTerminal() {
		w.Header().Set("X-Poll-Interval", "0")
	} else {
		w.Header().Set("X-Poll-Interval", "1000")
	}
	writeJSON(w, http.StatusOK, body)
}

// GET /api/progress/
func (h *handler) handleProgressList(w http.ResponseWriter, r *http.Request) {
	ops := h.engine.ActiveOperations()
	out := make([]map[string]any, 0, len(ops))
	for _, op := range ops {
		out = append(out, progressDTO(op))
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": out})
}

// POST /api/knowledge-items/stop/{progress_id}
func (h *handler) handleStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("progress_id")
	if _, ok := h.engine.Progress(id); !ok {
		writeError(w, http.StatusNotFound, "operation not found")
		return
	}
	h.engine.Cancel(id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "stop requested"})
}

// POST /api/rag/query, POST /api/knowledge-items/search
func (h *handler) handleRAGQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query      string `json:"query"`
		Source     string `json:"source"`
		MatchCount int    `json:"match_count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	result, err := h.engine.Query(r.Context(), req.Query, req.Source, req.MatchCount, retrieval.ReturnChunks)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "results": result.Chunks})
}

// POST /api/rag/code-examples
func (h *handler) handleRAGCodeExamples(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query      string `json:"query"`
		Source     string `json:"source"`
		MatchCount int    `json:"match_count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	results, err := h.engine.QueryCodeExamples(r.Context(), req.Query, req.Source, req.MatchCount)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "results": results})
}

// GET /api/health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "migration_required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// progressDTO converts an Operation to the wire's camelCase shape.
func progressDTO(op progress.Operation) map[string]any {
	logs := make([]map[string]any, 0, len(op.Logs))
	for _, l := range op.Logs {
		logs = append(logs, map[string]any{"time": l.Time, "message": l.Message})
	}
	body := map[string]any{
		"progressId": op.ProgressID,
		"type":       op.Type,
		"status":     op.Status,
		"progress":   op.Progress,
		"message":    op.Log,
		"logs":       logs,
		"startTime":  op.StartTime,
	}
	if op.EndTime != nil {
		body["endTime"] = *op.EndTime
	}
	if op.Error != "" {
		body["error"] = op.Error
	}
	if op.Duration != nil {
		body["duration"] = *op.Duration
	}
	for k, v := range op.Extras {
		body[k] = v
	}
	return body
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf("%s", msg)})
}
