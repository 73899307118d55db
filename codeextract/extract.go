// Package codeextract implements the code block extractor and deduper
// (C8): pulling fenced code blocks out of markdown, filtering out prose
// and ASCII-art false positives, and consolidating near-duplicate
// variants down to the best single example.
package codeextract

import (
	"context"
	"strings"

	"github.com/archonrag/ragcore/settings"
)

// Block is one surviving code block, with enough surrounding context
// to prompt a summarizer and enough metadata to write a CodeExample row.
type Block struct {
	Language           string
	Code               string
	ContextBefore      string
	ContextAfter       string
	ConsolidatedVariants int
	VariantLanguages   []string
}

const maxLangTagLen = 20

// Extract scans markdown for fenced code blocks (paired ``` delimiters),
// applies the length/prose/code-indicator/diagram filters, and returns
// the surviving blocks in document order, each carrying up to
// CONTEXT_WINDOW_SIZE characters of surrounding text. It never fails —
// a markdown document with no qualifying code simply yields no blocks.
func Extract(ctx context.Context, cache *settings.Cache, markdown string) []Block {
	minLen := cache.GetInt(ctx, settings.KeyMinCodeBlockLength, 250)
	maxLen := cache.GetInt(ctx, settings.KeyMaxCodeBlockLength, 5000)
	proseFilterEnabled := cache.GetBool(ctx, settings.KeyEnableProseFiltering, true)
	maxProseRatio := cache.GetFloat(ctx, settings.KeyMaxProseRatio, 0.15)
	minCodeIndicators := cache.GetInt(ctx, settings.KeyMinCodeIndicators, 3)
	diagramFilterEnabled := cache.GetBool(ctx, settings.KeyEnableDiagramFiltering, true)
	contextWindow := cache.GetInt(ctx, settings.KeyContextWindowSize, 1000)

	fences := findFencePositions(markdown)
	var blocks []Block

	for i := 0; i+1 < len(fences); i += 2 {
		openStart, openEnd := fences[i], fences[i]+3
		closeStart := fences[i+1]

		section := markdown[openEnd:closeStart]
		lang, code := splitLanguageTag(section)
		code = strings.Trim(code, "\n")

		if len(code) < minLen || len(code) > maxLen {
			continue
		}

		lowerLang := strings.ToLower(lang)
		if proseFilterEnabled && (lowerLang == "" || lowerLang == "text" || lowerLang == "plaintext") {
			if proseRatio(code) > maxProseRatio {
				continue
			}
		}

		indicators := countCodeIndicators(code)
		nonEmptyLines := countNonEmptyLines(code)
		if indicators < minCodeIndicators && nonEmptyLines > 5 {
			continue
		}

		if diagramFilterEnabled && looksLikeDiagram(code) && indicators < 5 {
			continue
		}

		before := contextSlice(markdown, openStart, -contextWindow)
		after := contextSlice(markdown, fences[i+1]+3, contextWindow)

		blocks = append(blocks, Block{
			Language:      lang,
			Code:          code,
			ContextBefore: before,
			ContextAfter:  after,
		})
	}

	return blocks
}

// findFencePositions returns the byte offset of every "```" delimiter
// in order.
func findFencePositions(markdown string) []int {
	var positions []int
	for i := 0; i+3 <= len(markdown); {
		idx := strings.Index(markdown[i:], "```")
		if idx < 0 {
			break
		}
		positions = append(positions, i+idx)
		i += idx + 3
	}
	return positions
}

// splitLanguageTag treats the first line as a language tag iff it has
// no spaces and is shorter than maxLangTagLen; otherwise the entire
// section is code with no language.
func splitLanguageTag(section string) (lang string, code string) {
	nl := strings.IndexByte(section, '\n')
	if nl < 0 {
		return "", section
	}
	firstLine := section[:nl]
	trimmed := strings.TrimSpace(firstLine)
	if trimmed != "" && !strings.Contains(trimmed, " ") && len(trimmed) < maxLangTagLen {
		return trimmed, section[nl+1:]
	}
	return "", section
}

func contextSlice(s string, pos int, window int) string {
	if window < 0 {
		start := pos + window
		if start < 0 {
			start = 0
		}
		return s[start:pos]
	}
	end := pos + window
	if end > len(s) {
		end = len(s)
	}
	if pos > len(s) {
		pos = len(s)
	}
	return s[pos:end]
}

var proseIndicatorWords = map[string]bool{
	"the": true, "a": true, "an": true, "this": true, "that": true,
	"is": true, "are": true, "was": true, "were": true, "will": true,
	"should": true, "must": true, "can": true, "could": true,
	"for": true, "with": true, "from": true, "into": true, "about": true,
	"section": true, "chapter": true, "note": true, "example": true,
	"see": true, "below": true, "above": true, "following": true,
}

func proseRatio(code string) float64 {
	words := strings.Fields(code)
	if len(words) == 0 {
		return 0
	}
	indicators := 0
	for _, w := range words {
		trimmed := strings.ToLower(strings.Trim(w, ".,;:!?()[]{}\"'"))
		if proseIndicatorWords[trimmed] {
			indicators++
		}
	}
	for _, line := range strings.Split(code, "\n") {
		t := strings.TrimSpace(line)
		if strings.HasSuffix(t, ".") || strings.HasSuffix(t, "!") || strings.HasSuffix(t, "?") {
			indicators++
		}
	}
	return float64(indicators) / float64(len(words))
}

var codeIndicatorTokens = []string{
	"=", "(", ")", "{", "}", ";", "function", "def", "class", "import",
	"export", "->", "=>", "==", "!=", "<=", ">=",
}

func countCodeIndicators(code string) int {
	count := 0
	for _, tok := range codeIndicatorTokens {
		count += strings.Count(code, tok)
	}
	return count
}

func countNonEmptyLines(code string) int {
	n := 0
	for _, line := range strings.Split(code, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

var boxDrawingChars = "─│┌┐└┘├┤┬┴┼━┃┏┓┗┛┣┫┳┻╋╔╗╚╝╠╣╦╩╬"
var arrowIndicators = []string{"-->", "<--", "<->", "==>", "<=="}

// looksLikeDiagram flags ASCII-art/box-diagram content: either at
// least 3 of the first 10 lines are mostly non-alphanumeric, or 5+
// box-drawing/arrow indicators appear anywhere in the block.
func looksLikeDiagram(code string) bool {
	lines := strings.Split(code, "\n")
	limit := 10
	if len(lines) < limit {
		limit = len(lines)
	}
	denseLines := 0
	for i := 0; i < limit; i++ {
		if isMostlyNonAlnum(lines[i]) {
			denseLines++
		}
	}
	if denseLines >= 3 {
		return true
	}

	indicatorCount := 0
	for _, r := range code {
		if strings.ContainsRune(boxDrawingChars, r) {
			indicatorCount++
		}
	}
	for _, a := range arrowIndicators {
		indicatorCount += strings.Count(code, a)
	}
	return indicatorCount >= 5
}

func isMostlyNonAlnum(line string) bool {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) == 0 {
		return false
	}
	nonAlnum := 0
	total := 0
	for _, r := range trimmed {
		if r == ' ' {
			continue
		}
		total++
		if !isAlnum(r) {
			nonAlnum++
		}
	}
	if total == 0 {
		return false
	}
	return float64(nonAlnum)/float64(total) > 0.70
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
