package embeddings

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/archonrag/ragcore/llm"
	"github.com/archonrag/ragcore/settings"
)

const (
	contextDocChars   = 2000 // chars of the full document shown to the model
	contextChunkChars = 500  // chars of the chunk shown to the model
)

// ContextualPair is one (full_document, chunk) input to Contextualize.
type ContextualPair struct {
	Document string
	Chunk    string
}

// ContextualResult is the per-chunk outcome: Text is either
// "<context>\n\n<chunk>" on success or the original chunk unchanged on
// failure, and Contextualized records which happened.
type ContextualResult struct {
	Text            string
	Contextualized bool
}

// Contextualizer generates a short LLM context prefix for each chunk,
// describing the chunk's place within its source document, to improve
// retrieval precision for short or ambiguous chunks.
type Contextualizer struct {
	chat  llm.Provider
	cache *settings.Cache
}

// NewContextualizer returns a Contextualizer. chat performs the context
// generation calls.
func NewContextualizer(chat llm.Provider, cache *settings.Cache) *Contextualizer {
	return &Contextualizer{chat: chat, cache: cache}
}

// Contextualize processes pairs in sub-batches of
// CONTEXTUAL_EMBEDDING_BATCH_SIZE (default 50), issuing one chat call
// per sub-batch asking for "CHUNK i: <context>" lines. Any error in a
// sub-batch falls back to leaving every pair in that sub-batch
// un-contextualized rather than failing the whole operation.
func (c *Contextualizer) Contextualize(ctx context.Context, pairs []ContextualPair) []ContextualResult {
	results := make([]ContextualResult, len(pairs))
	for i, p := range pairs {
		results[i] = ContextualResult{Text: p.Chunk, Contextualized: false}
	}
	if len(pairs) == 0 {
		return results
	}

	batchSize := c.cache.GetInt(ctx, settings.KeyContextualEmbeddingBatchSize, 50)
	if batchSize < 1 {
		batchSize = 1
	}

	for start := 0; start < len(pairs); start += batchSize {
		end := start + batchSize
		if end > len(pairs) {
			end = len(pairs)
		}
		sub := pairs[start:end]

		contexts, err := c.contextualizeBatch(ctx, sub)
		if err != nil {
			continue // leave this sub-batch un-contextualized
		}
		for i, ctxText := range contexts {
			if ctxText == "" {
				continue
			}
			results[start+i] = ContextualResult{
				Text:           ctxText + "\n\n" + sub[i].Chunk,
				Contextualized: true,
			}
		}
	}

	return results
}

func (c *Contextualizer) contextualizeBatch(ctx context.Context, pairs []ContextualPair) ([]string, error) {
	var prompt strings.Builder
	prompt.WriteString("For each numbered chunk below, write one short sentence of context describing where it sits within its source document. Respond with exactly one line per chunk in the form \"CHUNK i: <context>\".\n\n")
	for i, p := range pairs {
		doc := truncate(p.Document, contextDocChars)
		chunk := truncate(p.Chunk, contextChunkChars)
		fmt.Fprintf(&prompt, "--- CHUNK %d ---\nDocument excerpt:\n%s\n\nChunk:\n%s\n\n", i, doc, chunk)
	}

	resp, err := c.chat.Chat(ctx, llm.ChatRequest{
		Messages:    []llm.Message{{Role: "user", Content: prompt.String()}},
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	return parseChunkContexts(resp.Content, len(pairs)), nil
}

// parseChunkContexts extracts "CHUNK i: <context>" lines into a
// positional slice, leaving empty entries for chunks the model
// did not emit a line for.
func parseChunkContexts(text string, n int) []string {
	out := make([]string, n)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(strings.ToUpper(line), "CHUNK ") {
			continue
		}
		rest := line[len("CHUNK "):]
		colon := strings.Index(rest, ":")
		if colon < 0 {
			continue
		}
		idxStr := strings.TrimSpace(rest[:colon])
		idx, err := strconv.Atoi(idxStr)
		if err != nil || idx < 0 || idx >= n {
			continue
		}
		out[idx] = strings.TrimSpace(rest[colon+1:])
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
