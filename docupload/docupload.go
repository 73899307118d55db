// Package docupload extracts plain text from an uploaded document
// ahead of chunking (C10). Byte-level PDF/DOCX/XLSX decoding is an
// explicit Non-goal (spec.md §1 places it outside the core's
// boundary, as an external collaborator contract) — this package
// defines the extraction seam a real deployment plugs a parser library
// into, and implements the one format the core does own: plain
// text/markdown.
package docupload

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for any extension this package does
// not implement extraction for itself.
var ErrUnsupportedFormat = fmt.Errorf("docupload: unsupported format, requires an external parser")

// TextExtractor turns raw document bytes into plain text. The core
// ships one implementation (plainTextExtractor, for .txt/.md); a real
// deployment registers additional implementations (PDF via
// github.com/ledongthuc/pdf, XLSX/DOCX via github.com/xuri/excelize/v2)
// through Registry for the formats this package doesn't own.
type TextExtractor interface {
	Extract(filename string, content []byte) (string, error)
}

// Registry dispatches by file extension to a registered TextExtractor.
type Registry struct {
	extractors map[string]TextExtractor
}

// NewRegistry returns a Registry pre-populated with the plain
// text/markdown extractor.
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]TextExtractor)}
	r.Register(".txt", plainTextExtractor{})
	r.Register(".md", plainTextExtractor{})
	r.Register(".markdown", plainTextExtractor{})
	return r
}

// Register adds or replaces the extractor for ext (including the
// leading dot, e.g. ".pdf").
func (r *Registry) Register(ext string, e TextExtractor) {
	r.extractors[strings.ToLower(ext)] = e
}

// Extract dispatches filename's extension to a registered extractor,
// returning ErrUnsupportedFormat if none is registered.
func (r *Registry) Extract(filename string, content []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	e, ok := r.extractors[ext]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	return e.Extract(filename, content)
}

// plainTextExtractor returns file content verbatim (normalized to LF
// line endings and valid UTF-8).
type plainTextExtractor struct{}

func (plainTextExtractor) Extract(_ string, content []byte) (string, error) {
	content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !isValidUTF8(content) {
		content = bytes.ToValidUTF8(content, []byte("�"))
	}
	return string(content), nil
}

func isValidUTF8(b []byte) bool {
	return bytes.Equal(b, bytes.ToValidUTF8(b, nil))
}
