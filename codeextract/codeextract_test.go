package codeextract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/archonrag/ragcore/llm"
	"github.com/archonrag/ragcore/settings"
)

func longCode(body string, n int) string {
	var sb strings.Builder
	for sb.Len() < n {
		sb.WriteString(body)
		sb.WriteString("\n")
	}
	return sb.String()
}

func TestExtractSkipsShortBlocks(t *testing.T) {
	cache := settings.New(nil)
	md := "```go\nx := 1\n```\n"
	blocks := Extract(context.Background(), cache, md)
	if len(blocks) != 0 {
		t.Fatalf("expected short block to be skipped, got %d", len(blocks))
	}
}

func TestExtractKeepsQualifyingBlock(t *testing.T) {
	cache := settings.New(nil)
	code := longCode(`func add(a, b int) int { return a + b; }`, 300)
	md := "intro text\n```go\n" + code + "```\nmore text\n"
	blocks := Extract(context.Background(), cache, md)
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d: %+v", len(blocks), blocks)
	}
	if blocks[0].Language != "go" {
		t.Fatalf("expected language tag go, got %q", blocks[0].Language)
	}
}

func TestExtractSkipsProseHeavyTextBlock(t *testing.T) {
	cache := settings.New(nil)
	prose := longCode("This is a sentence about the following section for an example below.", 300)
	md := "```text\n" + prose + "```\n"
	blocks := Extract(context.Background(), cache, md)
	if len(blocks) != 0 {
		t.Fatalf("expected prose-heavy text block to be filtered, got %d", len(blocks))
	}
}

func TestDedupConsolidatesSimilarVariants(t *testing.T) {
	code := longCode(`result = value + 1`, 300)
	variant := strings.ReplaceAll(code, " ", "  ")
	blocks := []Block{
		{Language: "python", Code: code},
		{Language: "text", Code: variant},
	}
	out := Dedup(blocks)
	if len(out) != 1 {
		t.Fatalf("expected near-duplicate whitespace variants to merge, got %d", len(out))
	}
	if out[0].ConsolidatedVariants != 2 {
		t.Fatalf("expected consolidated count 2, got %d", out[0].ConsolidatedVariants)
	}
	if out[0].Language != "python" {
		t.Fatalf("expected explicit-language variant to win, got %q", out[0].Language)
	}
}

func TestDedupRecordsVariantLanguagesForSameLanguageGroup(t *testing.T) {
	code := longCode(`result = value + 1`, 300)
	variant := strings.ReplaceAll(code, " ", "  ")
	blocks := []Block{
		{Language: "python", Code: code},
		{Language: "python", Code: variant},
	}
	out := Dedup(blocks)
	if len(out) != 1 {
		t.Fatalf("expected near-duplicate variants to merge, got %d", len(out))
	}
	if got := out[0].VariantLanguages; len(got) != 1 || got[0] != "python" {
		t.Fatalf("expected variant_languages == [\"python\"], got %v", got)
	}
}

func TestDedupLeavesDistinctBlocksSeparate(t *testing.T) {
	blocks := []Block{
		{Language: "go", Code: longCode("func a() {}", 300)},
		{Language: "python", Code: longCode("def totally_different_thing(x, y, z): pass", 300)},
	}
	out := Dedup(blocks)
	if len(out) != 2 {
		t.Fatalf("expected distinct blocks to remain separate, got %d", len(out))
	}
}

type fakeChat struct {
	content string
	err     error
}

func (f *fakeChat) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Content: f.content}, nil
}
func (f *fakeChat) Embed(ctx context.Context, texts []string, dim int) ([][]float32, error) {
	return nil, errors.New("not used")
}

func TestSummarizeOneParsesJSON(t *testing.T) {
	s := NewSummarizer(&fakeChat{content: `{"example_name":"Adder","summary":"adds two numbers"}`}, settings.New(nil))
	sum := s.SummarizeOne(context.Background(), Block{Language: "go", Code: "func add(a,b int)int{return a+b}"})
	if sum.ExampleName != "Adder" || sum.Text != "adds two numbers" {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestSummarizeOneFallsBackOnReasoningText(t *testing.T) {
	s := NewSummarizer(&fakeChat{content: "Okay, let me think about this code..."}, settings.New(nil))
	sum := s.SummarizeOne(context.Background(), Block{Language: "python", Code: "x = 1"})
	if sum.Text == "" || sum.ExampleName != "Code Example (python)" {
		t.Fatalf("expected heuristic fallback, got %+v", sum)
	}
}

func TestSummarizeOneFallsBackOnChatError(t *testing.T) {
	s := NewSummarizer(&fakeChat{err: errors.New("boom")}, settings.New(nil))
	sum := s.SummarizeOne(context.Background(), Block{Code: "x = 1"})
	if sum.ExampleName != "Code Example (code)" {
		t.Fatalf("expected generic heuristic fallback, got %+v", sum)
	}
}
