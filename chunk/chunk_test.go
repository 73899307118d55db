package chunk

import (
	"strings"
	"testing"
)

func TestSmartChunkTextShortTextIsOneChunk(t *testing.T) {
	out := SmartChunkText("hello world", 5000)
	if len(out) != 1 || out[0].Content != "hello world" {
		t.Fatalf("expected single chunk, got %+v", out)
	}
}

func TestSmartChunkTextBreaksAtParagraph(t *testing.T) {
	para := strings.Repeat("word ", 20)
	text := para + "\n\n" + strings.Repeat("more ", 20)
	out := SmartChunkText(text, len(para)+5)
	if len(out) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(out))
	}
	if strings.Contains(out[0].Content, "more") {
		t.Fatalf("expected first chunk to stop before paragraph break, got %q", out[0].Content)
	}
}

func TestSmartChunkTextNeverProducesEmptyPieces(t *testing.T) {
	text := strings.Repeat("a", 12000)
	out := SmartChunkText(text, 5000)
	for _, c := range out {
		if c.Content == "" {
			t.Fatal("expected no empty chunks")
		}
	}
}

func TestSmartChunkTextNumbersSequentially(t *testing.T) {
	text := strings.Repeat("a", 12000)
	out := SmartChunkText(text, 5000)
	for i, c := range out {
		if c.Number != i {
			t.Fatalf("expected chunk %d to have Number %d, got %d", i, i, c.Number)
		}
	}
}
