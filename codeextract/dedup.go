package codeextract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const similarityThreshold = 0.85

// Dedup groups blocks whose normalized code similarity is >= 0.85 and
// keeps only the best-scoring variant from each group, recording how
// many variants were consolidated and which languages were observed
// among them.
func Dedup(blocks []Block) []Block {
	n := len(blocks)
	normalized := make([]string, n)
	for i, b := range blocks {
		normalized[i] = normalizeForComparison(b.Code)
	}

	assigned := make([]bool, n)
	var kept []Block

	for i := 0; i < n; i++ {
		if assigned[i] {
			continue
		}
		group := []int{i}
		assigned[i] = true
		for j := i + 1; j < n; j++ {
			if assigned[j] {
				continue
			}
			if similarityRatio(normalized[i], normalized[j]) >= similarityThreshold {
				group = append(group, j)
				assigned[j] = true
			}
		}
		kept = append(kept, bestVariant(blocks, group))
	}

	return kept
}

// similarityRatio mirrors Python's difflib.SequenceMatcher ratio: twice
// the number of matching characters over the total length of both
// sequences.
func similarityRatio(a, b string) float64 {
	matcher := difflib.NewMatcher(splitChars(a), splitChars(b))
	return matcher.Ratio()
}

func splitChars(s string) []string {
	runes := []rune(s)
	out := make([]string, len(runes))
	for i, r := range runes {
		out[i] = string(r)
	}
	return out
}

var (
	whitespaceRe    = regexp.MustCompile(`\s+`)
	typingExtRe     = regexp.MustCompile(`\btyping_extensions\b`)
	annotatedRe     = regexp.MustCompile(`Annotated\[\s*([^,\]]+)\s*,[^\]]*\]`)
	trailingCommaRe = regexp.MustCompile(`,(\s*[)\]}])`)
)

// normalizeForComparison collapses whitespace, unifies the
// typing_extensions/typing import split, unwraps Annotated[T, ...] to
// T, and strips trailing commas — so equivalent code that differs only
// in these cosmetic ways compares as identical.
func normalizeForComparison(code string) string {
	s := whitespaceRe.ReplaceAllString(code, " ")
	s = typingExtRe.ReplaceAllString(s, "typing")
	s = annotatedRe.ReplaceAllString(s, "$1")
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}

// bestVariant scores each block in a duplicate group and returns the
// winner, annotated with group size and the set of distinct languages
// observed across the group.
func bestVariant(blocks []Block, group []int) Block {
	langSet := make(map[string]bool)
	bestIdx := group[0]
	bestScore := -1.0

	for _, idx := range group {
		b := blocks[idx]
		if b.Language != "" {
			langSet[b.Language] = true
		}
		score := variantScore(b)
		if score > bestScore {
			bestScore = score
			bestIdx = idx
		}
	}

	winner := blocks[bestIdx]
	winner.ConsolidatedVariants = len(group)
	if len(langSet) >= 1 {
		for l := range langSet {
			winner.VariantLanguages = append(winner.VariantLanguages, l)
		}
		sort.Strings(winner.VariantLanguages)
	}
	return winner
}

func variantScore(b Block) float64 {
	score := 0.0
	lowerLang := strings.ToLower(b.Language)
	if lowerLang != "" && lowerLang != "text" && lowerLang != "plaintext" {
		score += 10
	}
	score += 0.01 * float64(len(b.Code))
	score += 0.005 * float64(len(b.ContextBefore)+len(b.ContextAfter))

	context := strings.ToLower(b.ContextBefore + " " + b.ContextAfter + " " + b.Code)
	if strings.Contains(context, "python 3.10") {
		score += 5
	} else if strings.Contains(context, "annotated") {
		score += 3
	}
	return score
}
