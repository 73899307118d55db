// Package chunk splits a crawled or uploaded document's markdown text
// into overlap-free, boundary-aware chunks ahead of embedding and
// storage (the "chunking" progress stage, C10/C14). The splitting
// strategy — prefer a code-fence boundary, then a paragraph break,
// then a sentence end, falling back to a hard cut — is adapted from
// the teacher's section-based chunker, generalized from section trees
// to flat crawled markdown.
package chunk

import "strings"

// DefaultSize is the target chunk size in characters, matching the
// reference system's default.
const DefaultSize = 5000

// Chunk is one piece of a document, numbered from 0 in document order.
type Chunk struct {
	Number    int
	Content   string
	WordCount int
}

// SmartChunkText splits text into chunks of at most size characters,
// preferring to break after a closing code fence, then at a paragraph
// boundary, then at a sentence end, and only falling back to a hard
// cut at size when none of those exist within the tail of the window.
// A size <= 0 uses DefaultSize.
func SmartChunkText(text string, size int) []Chunk {
	if size <= 0 {
		size = DefaultSize
	}

	var out []Chunk
	start := 0
	n := len(text)

	for start < n {
		end := start + size
		if end >= n {
			end = n
		} else {
			end = findBreakPoint(text, start, end)
		}

		piece := strings.TrimSpace(text[start:end])
		if piece != "" {
			out = append(out, Chunk{
				Number:    len(out),
				Content:   piece,
				WordCount: len(strings.Fields(piece)),
			})
		}

		if end <= start {
			end = start + size // guard against zero progress
			if end > n {
				end = n
			}
		}
		start = end
	}

	return out
}

// findBreakPoint looks backward from end (within [start,end)) for the
// best place to split: a code fence close, a blank line, or a sentence
// end. It only searches the trailing 30% of the window so chunks stay
// close to the target size.
func findBreakPoint(text string, start, end int) int {
	window := text[start:end]
	searchFrom := len(window) * 7 / 10

	if idx := strings.LastIndex(window, "```"); idx >= searchFrom {
		// Break after the fence line, not mid-fence.
		if nl := strings.Index(window[idx:], "\n"); nl >= 0 {
			return start + idx + nl + 1
		}
	}
	if idx := strings.LastIndex(window, "\n\n"); idx >= searchFrom {
		return start + idx + 2
	}
	if idx := strings.LastIndex(window, ". "); idx >= searchFrom {
		return start + idx + 2
	}
	return end
}
