// Package ragcore wires the settings cache, rate limiter, LLM
// providers, crawl strategies, code extraction, storage, progress
// tracking, and retrieval into the ingestion orchestrator (C14) and the
// query entry points the HTTP surface (C18) calls.
package ragcore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/archonrag/ragcore/chunk"
	"github.com/archonrag/ragcore/codeextract"
	"github.com/archonrag/ragcore/crawl"
	"github.com/archonrag/ragcore/embeddings"
	"github.com/archonrag/ragcore/llm"
	"github.com/archonrag/ragcore/progress"
	"github.com/archonrag/ragcore/ratelimit"
	"github.com/archonrag/ragcore/retrieval"
	"github.com/archonrag/ragcore/settings"
	"github.com/archonrag/ragcore/store"
)

const heartbeatInterval = 30 * time.Second

// CrawlRequest is the input to Orchestrate.
type CrawlRequest struct {
	URL                 string
	KnowledgeType       string
	Tags                []string
	MaxDepth            int // default 2, clamped 1-5
	ExtractCodeExamples bool
}

// CrawlHandle is returned immediately by Orchestrate; the work
// continues in the background under ProgressID.
type CrawlHandle struct {
	TaskID     string
	ProgressID string
}

// Engine bundles every wired component the orchestrator and the query
// path need.
type Engine struct {
	cfg         Config
	cache       *settings.Cache
	registry    *progress.Registry
	store       *store.Store
	chat        llm.Provider
	embedder    llm.Provider
	embedSvc    *embeddings.Service
	contextual  *embeddings.Contextualizer
	strategies  *crawl.Strategies
	summarizer  *codeextract.Summarizer
	coordinator *retrieval.Coordinator

	crawlSem chan struct{} // CONCURRENT_CRAWL_LIMIT: serializes whole orchestrations

	cancelMu  sync.Mutex
	cancelled map[string]bool // progress_id -> cancellation requested
}

// New wires every component from cfg. st must already be open
// (migrations applied).
func New(cfg Config, st *store.Store, settingsStore settings.Store) (*Engine, error) {
	cache := settings.New(settingsStore)
	cache.Preset(cfg.InitialSettings)
	ctx := context.Background()

	chatProvider, err := llm.NewProvider(llm.Config{
		Provider: cfg.Chat.Provider, Model: cfg.Chat.Model,
		BaseURL: cfg.Chat.BaseURL, APIKey: cfg.Chat.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("ragcore: chat provider: %w", err)
	}
	embedProvider, err := llm.NewProvider(llm.Config{
		Provider: cfg.Embedding.Provider, Model: cfg.Embedding.Model,
		BaseURL: cfg.Embedding.BaseURL, APIKey: cfg.Embedding.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("ragcore: embedding provider: %w", err)
	}

	rl := ratelimit.New(
		cache.GetInt(ctx, settings.KeyRateLimitRequestsPerMinute, 3000),
		cache.GetInt(ctx, settings.KeyRateLimitTokensPerMinute, 200000),
		cache.GetInt(ctx, settings.KeyRateLimitConcurrency, 2),
	)

	concurrentCrawlLimit := cache.GetInt(ctx, settings.KeyConcurrentCrawlLimit, 3)
	if concurrentCrawlLimit < 1 {
		concurrentCrawlLimit = 1
	}

	e := &Engine{
		cfg:         cfg,
		cache:       cache,
		registry:    progress.NewRegistry(),
		store:       st,
		chat:        chatProvider,
		embedder:    embedProvider,
		embedSvc:    embeddings.New(embedProvider, rl, cache),
		contextual:  embeddings.NewContextualizer(chatProvider, cache),
		strategies:  crawl.NewStrategies(),
		summarizer:  codeextract.NewSummarizer(chatProvider, cache),
		coordinator: retrieval.NewCoordinator(embedProvider, st, retrieval.NewReranker(chatProvider), cache),
		crawlSem:    make(chan struct{}, concurrentCrawlLimit),
		cancelled:   make(map[string]bool),
	}
	return e, nil
}

// ValidateCredentials makes one tiny embedding call to confirm the
// embedding provider's API key actually works. Call this before
// accepting a crawl or upload request.
func (e *Engine) ValidateCredentials(ctx context.Context) error {
	_, err := e.embedder.Embed(ctx, []string{"ping"}, 0)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return nil
}

// Orchestrate registers a new operation and starts ingestion in the
// background, returning immediately with a handle the caller can poll
// or cancel by ProgressID.
func (e *Engine) Orchestrate(req CrawlRequest) (CrawlHandle, error) {
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		return CrawlHandle{}, ErrInvalidURL
	}
	switch {
	case req.MaxDepth == 0:
		req.MaxDepth = 2
	case req.MaxDepth < 1:
		req.MaxDepth = 1
	case req.MaxDepth > 5:
		req.MaxDepth = 5
	}

	progressID := uuid.NewString()
	taskID := uuid.NewString()
	e.registry.Start(progressID, "crawl", map[string]any{"current_url": req.URL})

	go e.runOrchestration(context.Background(), progressID, req)

	return CrawlHandle{TaskID: taskID, ProgressID: progressID}, nil
}

// OrchestrateDocument runs the same source-creation/storage/code-
// extraction pipeline as Orchestrate, but over already-extracted
// document text instead of a crawl (the upload path, C18's
// POST /api/documents/upload).
func (e *Engine) OrchestrateDocument(filename, text, knowledgeType string, tags []string, extractCodeExamples bool) (CrawlHandle, error) {
	progressID := uuid.NewString()
	taskID := uuid.NewString()
	e.registry.Start(progressID, "upload", map[string]any{"filename": filename})

	docURL := "file://" + filename
	page := crawl.Result{
		Page:      crawl.Page{URL: docURL, Title: filename, Content: text},
		CrawlType: "document_upload",
	}
	req := CrawlRequest{URL: docURL, KnowledgeType: knowledgeType, Tags: tags, ExtractCodeExamples: extractCodeExamples}

	go e.runOrchestrationForPages(context.Background(), progressID, req, []crawl.Result{page})

	return CrawlHandle{TaskID: taskID, ProgressID: progressID}, nil
}

// Cancel requests cooperative cancellation of a running operation. It
// is safe to call more than once or on an operation that has already
// finished.
func (e *Engine) Cancel(progressID string) {
	e.cancelMu.Lock()
	e.cancelled[progressID] = true
	e.cancelMu.Unlock()
}

func (e *Engine) isCancelled(progressID string) bool {
	e.cancelMu.Lock()
	defer e.cancelMu.Unlock()
	return e.cancelled[progressID]
}

func (e *Engine) clearCancel(progressID string) {
	e.cancelMu.Lock()
	delete(e.cancelled, progressID)
	e.cancelMu.Unlock()
}

// Progress returns the current state of a tracked operation.
func (e *Engine) Progress(progressID string) (progress.Operation, bool) {
	return e.registry.Get(progressID)
}

// ActiveOperations lists every non-terminal tracked operation.
func (e *Engine) ActiveOperations() []progress.Operation {
	return e.registry.ListActive()
}

func (e *Engine) runOrchestration(ctx context.Context, progressID string, req CrawlRequest) {
	select {
	case e.crawlSem <- struct{}{}:
		defer func() { <-e.crawlSem }()
	case <-ctx.Done():
		return
	}
	defer e.clearCancel(progressID)

	mapper := progress.NewMapper()
	cancelled := func() bool { return e.isCancelled(progressID) }

	lastChange := time.Now()
	stopHeartbeat := make(chan struct{})
	defer close(stopHeartbeat)
	go e.heartbeat(progressID, mapper, &lastChange, stopHeartbeat)

	emit := e.newEmitter(progressID, mapper, &lastChange)
	emitSub := e.newSubstageEmitter(progressID, mapper, &lastChange)

	emit("analyzing", 0, "classifying URL", nil)
	pages, crawlType, err := e.crawlByURLType(ctx, req, cancelled, emit)
	if err != nil {
		if cancelled() {
			e.registry.Update(progressID, progress.StatusCancelled, mapper.LastOverall(), "cancelled during crawl", nil)
			return
		}
		e.registry.Error(progressID, err.Error(), nil)
		return
	}
	if cancelled() {
		e.registry.Update(progressID, progress.StatusCancelled, mapper.LastOverall(), "cancelled during crawl", nil)
		return
	}
	if len(pages) == 0 {
		e.registry.Error(progressID, ErrNoContent.Error(), nil)
		return
	}

	e.finishOrchestration(ctx, progressID, req, pages, crawlType, mapper, cancelled, emit, emitSub)
}

// runOrchestrationForPages skips the crawl step entirely (the upload
// path already has its page content) and runs the shared
// source-creation/storage/code-extraction tail.
func (e *Engine) runOrchestrationForPages(ctx context.Context, progressID string, req CrawlRequest, pages []crawl.Result) {
	select {
	case e.crawlSem <- struct{}{}:
		defer func() { <-e.crawlSem }()
	case <-ctx.Done():
		return
	}
	defer e.clearCancel(progressID)

	mapper := progress.NewMapper()
	cancelled := func() bool { return e.isCancelled(progressID) }

	lastChange := time.Now()
	stopHeartbeat := make(chan struct{})
	defer close(stopHeartbeat)
	go e.heartbeat(progressID, mapper, &lastChange, stopHeartbeat)

	emit := e.newEmitter(progressID, mapper, &lastChange)
	emitSub := e.newSubstageEmitter(progressID, mapper, &lastChange)

	emit("reading", 100, "document ready", nil)
	e.finishOrchestration(ctx, progressID, req, pages, "document_upload", mapper, cancelled, emit, emitSub)
}

// newEmitter builds the progress-reporting closure shared by every
// orchestration path: it resets lastChange (so the heartbeat knows
// real progress happened) and maps a stage-local percent into the
// overall monotonic percent before writing it to the registry.
func (e *Engine) newEmitter(progressID string, mapper *progress.Mapper, lastChange *time.Time) func(string, int, string, map[string]any) {
	return func(stage string, stagePct int, msg string, extras map[string]any) {
		*lastChange = time.Now()
		overall := mapper.Map(stage, stagePct)
		e.registry.Update(progressID, stage, overall, msg, extras)
	}
}

// newSubstageEmitter builds the sub-phase variant of newEmitter: instead
// of mapping a stage-local percent directly, it composes a substage
// percent within an explicit [subStart, subEnd] slice of the stage's own
// range via Mapper.MapWithSubstage, so multi-phase stages like
// code_extraction report smooth, monotonic progress across their
// internal phases instead of jumping between a few fixed percentages.
func (e *Engine) newSubstageEmitter(progressID string, mapper *progress.Mapper, lastChange *time.Time) func(string, int, int, int, string, map[string]any) {
	return func(stage string, substagePct, subStart, subEnd int, msg string, extras map[string]any) {
		*lastChange = time.Now()
		overall := mapper.MapWithSubstage(stage, substagePct, subStart, subEnd)
		e.registry.Update(progressID, stage, overall, msg, extras)
	}
}

// finishOrchestration is the shared tail both Orchestrate and
// OrchestrateDocument run once page content is available: source
// upsert, document storage (C10), optional code extraction (C8-C11),
// and finalization.
func (e *Engine) finishOrchestration(ctx context.Context, progressID string, req CrawlRequest, pages []crawl.Result, crawlType string, mapper *progress.Mapper, cancelled crawl.CancelCheck, emit func(string, int, string, map[string]any), emitSub func(stage string, substagePct, subStart, subEnd int, msg string, extras map[string]any)) {
	sourceID := crawl.SourceID(req.URL)
	displayName := crawl.ExtractDisplayName(req.URL)

	emit("processing", 100, fmt.Sprintf("crawled %d pages", len(pages)), map[string]any{
		"total_pages": len(pages), "crawl_type": crawlType,
	})

	if err := e.upsertSourceWithFallback(ctx, sourceID, req, displayName, pages); err != nil {
		e.registry.Error(progressID, err.Error(), nil)
		return
	}
	emit("source_creation", 100, "source row ready", nil)

	chunksStored, err := e.storeDocuments(ctx, sourceID, pages, cancelled, emit)
	if err != nil {
		if cancelled() {
			e.registry.Update(progressID, progress.StatusCancelled, mapper.LastOverall(), "cancelled during storage", nil)
			return
		}
		e.registry.Error(progressID, err.Error(), nil)
		return
	}
	if chunksStored == 0 {
		e.registry.Error(progressID, ErrChunksProcessedButZeroStored.Error(), nil)
		return
	}

	if req.ExtractCodeExamples {
		if err := e.extractAndStoreCode(ctx, sourceID, pages, cancelled, emitSub); err != nil && !cancelled() {
			slog.Warn("code extraction failed, continuing", "progress_id", progressID, "error", err)
		}
	}

	emit("finalization", 100, "finalizing", map[string]any{"source_id": sourceID, "chunks_stored": chunksStored})
	e.registry.Complete(progressID, map[string]any{"source_id": sourceID, "chunks_stored": chunksStored})
}

func (e *Engine) heartbeat(progressID string, mapper *progress.Mapper, lastChange *time.Time, stop <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if time.Since(*lastChange) >= heartbeatInterval {
				op, ok := e.registry.Get(progressID)
				if !ok || op.IsTerminal() {
					return
				}
				e.registry.Update(progressID, op.Status, mapper.LastOverall(), "Background task still running...", map[string]any{"heartbeat": true})
			}
		}
	}
}

// crawlByURLType implements C14 step 2: routes to the right crawl
// strategy based on C6 classification.
func (e *Engine) crawlByURLType(ctx context.Context, req CrawlRequest, cancelled crawl.CancelCheck, emit func(string, int, string, map[string]any)) ([]crawl.Result, string, error) {
	progressFn := func(status string, pct int, msg string) { emit("crawling", pct, msg, nil) }
	batchSize := e.cache.GetInt(ctx, settings.KeyCrawlBatchSize, 50)

	switch {
	case crawl.IsTxt(req.URL) || crawl.IsMarkdown(req.URL):
		single, err := e.strategies.SinglePage(ctx, req.URL, cancelled, progressFn)
		if err != nil || len(single) == 0 {
			return single, "text_file", err
		}
		page := single[0].Page
		if crawl.IsLinkCollectionFile(req.URL, page.Content) {
			links := filterCrawlableLinks(page.Links, req.URL)
			batch, err := e.strategies.Batch(ctx, links, batchSize, cancelled, progressFn)
			if err != nil {
				return nil, "link_collection_with_crawled_links", err
			}
			return append(single, batch...), "link_collection_with_crawled_links", nil
		}
		return single, "text_file", nil

	case crawl.IsSitemap(req.URL):
		results, err := e.strategies.Sitemap(ctx, req.URL, batchSize, cancelled, progressFn)
		return results, "sitemap", err

	default:
		results, err := e.strategies.Recursive(ctx, req.URL, req.MaxDepth, cancelled, progressFn)
		return results, "recursive", err
	}
}

func filterCrawlableLinks(links []string, selfURL string) []string {
	selfKey := crawl.CanonicalKey(selfURL)
	var out []string
	for _, l := range links {
		if crawl.CanonicalKey(l) == selfKey {
			continue
		}
		if crawl.IsBinaryFile(l) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// upsertSourceWithFallback computes an AI summary over the first three
// chunks (<=15000 chars total) and upserts the source row; on failure
// it retries with a minimal-fields upsert, aborting only if both fail
// (a chunk write would otherwise violate the source_id FK).
func (e *Engine) upsertSourceWithFallback(ctx context.Context, sourceID string, req CrawlRequest, displayName string, pages []crawl.Result) error {
	summary := e.summarizeSource(ctx, sourceID, pages)
	wordCount := 0
	for _, p := range pages {
		wordCount += len(strings.Fields(p.Page.Content))
	}

	err := e.store.UpsertSource(ctx, store.Source{
		SourceID:          sourceID,
		SourceURL:         req.URL,
		SourceDisplayName: displayName,
		Title:             displayName,
		Summary:           summary,
		TotalWordCount:    wordCount,
		Metadata: map[string]any{
			"knowledge_type": req.KnowledgeType,
			"tags":           req.Tags,
			"source_type":    "url",
		},
	})
	if err == nil {
		return nil
	}
	if fallbackErr := e.store.UpsertSourceMinimal(ctx, sourceID, req.URL, displayName); fallbackErr != nil {
		return ErrSourceUpsertFailed
	}
	return nil
}

const maxSourceSummaryChars = 15000

// summarizeSource asks the chat model for a short summary of the first
// three chunks across pages (clamped to 15000 characters total). Any
// failure yields an empty summary rather than aborting ingestion.
func (e *Engine) summarizeSource(ctx context.Context, sourceID string, pages []crawl.Result) string {
	var sb strings.Builder
	taken := 0
	for _, p := range pages {
		for _, c := range chunk.SmartChunkText(p.Page.Content, chunk.DefaultSize) {
			if taken >= 3 {
				break
			}
			sb.WriteString(c.Content)
			sb.WriteString("\n\n")
			taken++
		}
		if taken >= 3 {
			break
		}
	}
	preview := sb.String()
	if len(preview) > maxSourceSummaryChars {
		preview = preview[:maxSourceSummaryChars]
	}
	if strings.TrimSpace(preview) == "" {
		return ""
	}

	resp, err := e.chat.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Summarize the following source content in 2-3 sentences for a knowledge base entry:\n\n%s", preview),
		}},
		Temperature: 0,
	})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(resp.Content)
}

// alignEmbeddings maps each of the n original positions in a batch to
// its index in batchResult.Embeddings, or -1 if that position's text
// failed to embed. embeddings.Service only appends a vector for texts
// that succeeded, so a failure mid-batch shifts every later success one
// slot left relative to the original slice; pairing by an incrementing
// counter bounded only by len(TextsProcessed) silently assigns the
// wrong vector to every row after the first failure. Using
// FailedItems[].Index keeps the mapping correct regardless of where in
// the batch a failure lands.
func alignEmbeddings(n int, batchResult *embeddings.BatchResult) []int {
	failed := make(map[int]bool, len(batchResult.FailedItems))
	for _, f := range batchResult.FailedItems {
		failed[f.Index] = true
	}
	positions := make([]int, n)
	vecIdx := 0
	for i := 0; i < n; i++ {
		if failed[i] {
			positions[i] = -1
			continue
		}
		positions[i] = vecIdx
		vecIdx++
	}
	return positions
}

// storeDocuments implements C10: chunk every page, optionally
// contextualize, embed, and persist, deleting stale chunks by URL
// first.
func (e *Engine) storeDocuments(ctx context.Context, sourceID string, pages []crawl.Result, cancelled crawl.CancelCheck, emit func(string, int, string, map[string]any)) (int, error) {
	urls := make([]string, 0, len(pages))
	for _, p := range pages {
		urls = append(urls, p.Page.URL)
	}
	deleteBatchSize := e.cache.GetInt(ctx, settings.KeyDeleteBatchSize, 50)
	_ = e.store.DeleteChunksByURL(ctx, urls, deleteBatchSize)

	type pending struct {
		url      string
		chunkNum int
		content  string
		fullDoc  string
	}
	var all []pending
	for _, p := range pages {
		pieces := chunk.SmartChunkText(p.Page.Content, chunk.DefaultSize)
		for _, c := range pieces {
			all = append(all, pending{url: p.Page.URL, chunkNum: c.Number, content: c.Content, fullDoc: p.Page.Content})
		}
	}
	if len(all) == 0 {
		return 0, nil
	}

	useContextual := e.cache.GetBool(ctx, settings.KeyUseContextualEmbeddings, false)
	dimension := e.cache.GetInt(ctx, settings.KeyEmbeddingDimensions, 1536)
	embedModel := e.cfg.Embedding.Model
	batchSize := e.cache.GetInt(ctx, settings.KeyDocumentStorageBatchSize, 50)
	if batchSize < 1 {
		batchSize = 1
	}

	stored := 0
	totalBatches := (len(all) + batchSize - 1) / batchSize

	for start := 0; start < len(all); start += batchSize {
		if cancelled() {
			return stored, ErrOperationCancelled
		}
		end := start + batchSize
		if end > len(all) {
			end = len(all)
		}
		slice := all[start:end]

		texts := make([]string, len(slice))
		contextualized := make([]bool, len(slice))
		if useContextual {
			pairs := make([]embeddings.ContextualPair, len(slice))
			for i, s := range slice {
				pairs[i] = embeddings.ContextualPair{Document: s.fullDoc, Chunk: s.content}
			}
			results := e.contextual.Contextualize(ctx, pairs)
			for i, r := range results {
				texts[i] = r.Text
				contextualized[i] = r.Contextualized
			}
		} else {
			for i, s := range slice {
				texts[i] = s.content
			}
		}

		onWait := func(remaining time.Duration) {
			emit("document_storage", start*100/len(all), fmt.Sprintf("rate limited, waiting %s", remaining), nil)
		}
		batchResult, err := e.embedSvc.CreateEmbeddings(ctx, texts, dimension, onWait)
		if err != nil {
			return stored, err
		}

		positions := alignEmbeddings(len(slice), batchResult)
		rows := make([]store.Chunk, 0, len(slice))
		for i, s := range slice {
			vecIdx := positions[i]
			if vecIdx < 0 || vecIdx >= len(batchResult.Embeddings) {
				continue
			}
			meta := map[string]any{"contextual_embedding": contextualized[i], "source_id": sourceID}
			rows = append(rows, store.Chunk{
				URL: s.url, ChunkNumber: s.chunkNum, SourceID: sourceID, Content: s.content,
				Metadata: meta, Embedding: batchResult.Embeddings[vecIdx],
				EmbeddingDimension: dimension, EmbeddingModel: embedModel,
			})
		}

		n, err := e.store.InsertChunks(ctx, rows, batchSize)
		if err != nil {
			return stored, fmt.Errorf("%w: %v", ErrStorageInsertFailed, err)
		}
		stored += n

		emit("document_storage", (start/batchSize+1)*100/totalBatches, fmt.Sprintf("stored batch %d/%d", start/batchSize+1, totalBatches), map[string]any{
			"completed_batches": start/batchSize + 1,
			"total_batches":     totalBatches,
			"chunks_processed":  end,
		})
	}

	return stored, nil
}

// codeExtractionSubstages splits the code_extraction stage's own range
// into its three phases, so progress composes via
// Mapper.MapWithSubstage instead of three unrelated magic percentages.
var codeExtractionSubstages = struct{ extract, summarize, store [2]int }{
	extract:   [2]int{0, 20},
	summarize: [2]int{20, 70},
	store:     [2]int{70, 100},
}

// extractAndStoreCode runs C8 (extract+dedup) -> C9 (summarize) -> C11
// (store) over every page's content.
func (e *Engine) extractAndStoreCode(ctx context.Context, sourceID string, pages []crawl.Result, cancelled crawl.CancelCheck, emitSub func(stage string, substagePct, subStart, subEnd int, msg string, extras map[string]any)) error {
	type located struct {
		url   string
		block codeextract.Block
	}
	var located_ []located
	for _, p := range pages {
		if cancelled() {
			return ErrOperationCancelled
		}
		blocks := codeextract.Extract(ctx, e.cache, p.Page.Content)
		blocks = codeextract.Dedup(blocks)
		for _, b := range blocks {
			located_ = append(located_, located{url: p.Page.URL, block: b})
		}
	}
	if len(located_) == 0 {
		return nil
	}
	emitSub("code_extraction", 100, codeExtractionSubstages.extract[0], codeExtractionSubstages.extract[1],
		fmt.Sprintf("extracted %d code blocks", len(located_)), nil)

	blocks := make([]codeextract.Block, len(located_))
	for i, l := range located_ {
		blocks[i] = l.block
	}
	summaries := e.summarizer.SummarizeAll(ctx, blocks)
	emitSub("code_extraction", 100, codeExtractionSubstages.summarize[0], codeExtractionSubstages.summarize[1],
		"summarized code blocks", nil)

	dimension := e.cache.GetInt(ctx, settings.KeyEmbeddingDimensions, 1536)
	texts := make([]string, len(located_))
	for i, l := range located_ {
		texts[i] = l.block.Code + "\n\nSummary: " + summaries[i].Text
	}
	batchResult, err := e.embedSvc.CreateEmbeddings(ctx, texts, dimension, nil)
	if err != nil {
		return err
	}

	urls := make([]string, 0, len(pages))
	for _, p := range pages {
		urls = append(urls, p.Page.URL)
	}
	deleteBatchSize := e.cache.GetInt(ctx, settings.KeyDeleteBatchSize, 50)
	_ = e.store.DeleteCodeExamplesByURL(ctx, urls, deleteBatchSize)

	positions := alignEmbeddings(len(located_), batchResult)
	rows := make([]store.CodeExample, 0, len(located_))
	for i, l := range located_ {
		vecIdx := positions[i]
		if vecIdx < 0 || vecIdx >= len(batchResult.Embeddings) {
			continue
		}
		rows = append(rows, store.CodeExample{
			URL: l.url, ChunkNumber: i, SourceID: sourceID,
			Content: l.block.Code, Summary: summaries[i].Text,
			Metadata:           map[string]any{"language": l.block.Language, "example_name": summaries[i].ExampleName},
			Embedding:          batchResult.Embeddings[vecIdx],
			EmbeddingDimension: dimension,
			EmbeddingModel:     e.cfg.Embedding.Model,
			LLMChatModel:       e.cfg.Chat.Model,
		})
	}

	batchSize := e.cache.GetInt(ctx, settings.KeyDocumentStorageBatchSize, 50)
	if _, err := e.store.InsertCodeExamples(ctx, rows, batchSize); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInsertFailed, err)
	}
	emitSub("code_extraction", 100, codeExtractionSubstages.store[0], codeExtractionSubstages.store[1],
		fmt.Sprintf("stored %d code examples", len(rows)), nil)
	return nil
}

// Query runs the RAG query path (C17) against stored chunks.
func (e *Engine) Query(ctx context.Context, query, sourceFilter string, matchCount int, mode retrieval.ReturnMode) (*retrieval.QueryResult, error) {
	return e.coordinator.PerformRAGQuery(ctx, query, sourceFilter, matchCount, mode)
}

// QueryCodeExamples runs the code-table analogue of Query.
func (e *Engine) QueryCodeExamples(ctx context.Context, query, sourceFilter string, matchCount int) ([]store.SearchResult, error) {
	return e.coordinator.SearchCodeExamples(ctx, query, sourceFilter, matchCount)
}
