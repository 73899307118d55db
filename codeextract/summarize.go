package codeextract

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/archonrag/ragcore/llm"
	"github.com/archonrag/ragcore/settings"
)

// Summary is the LLM-generated description attached to a surviving
// code block before it is written to storage.
type Summary struct {
	ExampleName string
	Text        string
}

const (
	contextBeforeTailChars = 500
	codePromptChars        = 1500
	contextAfterChars      = 500
	preCallDelay           = 500 * time.Millisecond
)

var reasoningPrefixes = []string{"okay,", "okay, ", "<think>"}

// Summarizer generates {example_name, summary} for code blocks, never
// propagating an error: on any failure it falls back to a heuristic
// summary so the caller always gets one row per block.
type Summarizer struct {
	chat  llm.Provider
	cache *settings.Cache
}

// NewSummarizer returns a Summarizer using chat for generation.
func NewSummarizer(chat llm.Provider, cache *settings.Cache) *Summarizer {
	return &Summarizer{chat: chat, cache: cache}
}

// SummarizeAll runs SummarizeOne over blocks concurrently, bounded by
// CODE_SUMMARY_MAX_WORKERS (default 3), with a fixed delay before each
// call to stay polite to the provider. Results are returned in the same
// order as blocks.
func (s *Summarizer) SummarizeAll(ctx context.Context, blocks []Block) []Summary {
	maxWorkers := s.cache.GetInt(ctx, settings.KeyCodeSummaryMaxWorkers, 3)
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	out := make([]Summary, len(blocks))
	sem := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup

	for i, b := range blocks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, b Block) {
			defer wg.Done()
			defer func() { <-sem }()
			time.Sleep(preCallDelay)
			out[i] = s.SummarizeOne(ctx, b)
		}(i, b)
	}
	wg.Wait()
	return out
}

// SummarizeOne produces a summary for a single block, retrying once
// with a stricter prompt on an empty/unparseable/reasoning-text
// response, and finally falling back to a heuristic summary rather
// than returning an error.
func (s *Summarizer) SummarizeOne(ctx context.Context, b Block) Summary {
	if sum, ok := s.tryGenerate(ctx, b, false); ok {
		return sum
	}
	if sum, ok := s.tryGenerate(ctx, b, true); ok {
		return sum
	}
	return heuristicSummary(b)
}

func (s *Summarizer) tryGenerate(ctx context.Context, b Block, strict bool) (Summary, bool) {
	prompt := summaryPrompt(b, strict)
	resp, err := s.chat.Chat(ctx, llm.ChatRequest{
		Messages:       []llm.Message{{Role: "user", Content: prompt}},
		Temperature:    0,
		ResponseFormat: "json_object",
	})
	if err != nil || resp == nil {
		return Summary{}, false
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" || looksLikeReasoningText(text) {
		return Summary{}, false
	}

	var parsed struct {
		ExampleName string `json:"example_name"`
		Summary     string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return Summary{}, false
	}
	if parsed.Summary == "" {
		return Summary{}, false
	}
	return Summary{ExampleName: parsed.ExampleName, Text: parsed.Summary}, true
}

func looksLikeReasoningText(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range reasoningPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return strings.Contains(lower, "<think>")
}

func summaryPrompt(b Block, strict bool) string {
	before := tailChars(b.ContextBefore, contextBeforeTailChars)
	code := truncateTo(b.Code, codePromptChars)
	after := truncateTo(b.ContextAfter, contextAfterChars)

	var sb strings.Builder
	sb.WriteString("Summarize this code example. Respond with a single JSON object {\"example_name\": string, \"summary\": string}.\n")
	if strict {
		sb.WriteString("Respond with ONLY the JSON object. No prose, no markdown code fences, no explanation before or after it.\n")
	}
	sb.WriteString("Language: ")
	sb.WriteString(b.Language)
	sb.WriteString("\nContext before:\n")
	sb.WriteString(before)
	sb.WriteString("\nCode:\n")
	sb.WriteString(code)
	sb.WriteString("\nContext after:\n")
	sb.WriteString(after)
	return sb.String()
}

func tailChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func truncateTo(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// heuristicSummary synthesizes a minimal summary from (code, language)
// alone, used only after every LLM attempt has failed. It must never
// itself fail, so the orchestrator always gets a row to write.
func heuristicSummary(b Block) Summary {
	lang := b.Language
	if lang == "" {
		lang = "code"
	}
	return Summary{
		ExampleName: "Code Example (" + lang + ")",
		Text:        "A " + lang + " code example extracted from the source document.",
	}
}
