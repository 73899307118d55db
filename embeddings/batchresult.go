package embeddings

import "fmt"

// FailedItem records one text that could not be embedded.
type FailedItem struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	ErrorType string `json:"error_type"`
	Error     string `json:"error"`
}

// BatchResult is the "skip, don't corrupt" return shape for a batch of
// embedding requests: successes and failures are both first-class, and
// the two counts always sum to the number of texts requested.
type BatchResult struct {
	Embeddings     [][]float32  `json:"-"`
	FailedItems    []FailedItem `json:"failed_items,omitempty"`
	SuccessCount   int          `json:"success_count"`
	FailureCount   int          `json:"failure_count"`
	TextsProcessed []string     `json:"-"`
}

// NewBatchResult returns an empty BatchResult. Embeddings and
// TextsProcessed grow positionally as successes are recorded.
func NewBatchResult() *BatchResult {
	return &BatchResult{}
}

// AddSuccess appends a successfully embedded text and its vector. The
// original index is not recorded; callers recover it from FailedItems.
func (r *BatchResult) AddSuccess(text string, vector []float32) {
	r.Embeddings = append(r.Embeddings, vector)
	r.TextsProcessed = append(r.TextsProcessed, text)
	r.SuccessCount++
}

// AddFailure records a text that failed, tagging it with the dynamic
// type name of the error that caused the failure (mirroring the
// reference system's use of the exception class name as error_type).
func (r *BatchResult) AddFailure(index int, text string, err error) {
	r.FailedItems = append(r.FailedItems, FailedItem{
		Index:     index,
		Text:      text,
		ErrorType: errorType(err),
		Error:     err.Error(),
	})
	r.FailureCount++
}

// HasFailures reports whether any text in the batch failed.
func (r *BatchResult) HasFailures() bool {
	return r.FailureCount > 0
}

// TotalRequested returns success + failure count.
func (r *BatchResult) TotalRequested() int {
	return r.SuccessCount + r.FailureCount
}

func errorType(err error) string {
	return fmt.Sprintf("%T", err)
}
