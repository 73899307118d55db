package store

import "testing"

func TestEmbeddingColumnKnownDimensions(t *testing.T) {
	cases := map[int]string{
		768: "embedding_768", 1024: "embedding_1024",
		1536: "embedding_1536", 3072: "embedding_3072",
	}
	for dim, want := range cases {
		if got := embeddingColumn(dim); got != want {
			t.Fatalf("dimension %d: got %q want %q", dim, got, want)
		}
	}
}

func TestEmbeddingColumnUnsupportedDimension(t *testing.T) {
	if got := embeddingColumn(999); got != "" {
		t.Fatalf("expected empty string for unsupported dimension, got %q", got)
	}
}

func TestCountEligibleSkipsUnsupportedDimensions(t *testing.T) {
	chunks := []Chunk{
		{EmbeddingDimension: 768},
		{EmbeddingDimension: 999},
		{EmbeddingDimension: 1536},
	}
	n := countEligible(chunks, func(c Chunk) bool { return embeddingColumn(c.EmbeddingDimension) != "" })
	if n != 2 {
		t.Fatalf("expected 2 eligible chunks, got %d", n)
	}
}
