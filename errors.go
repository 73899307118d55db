package ragcore

import "errors"

var (
	// ErrAuthenticationFailed is returned when a provider credential probe
	// fails before any ingestion work has started.
	ErrAuthenticationFailed = errors.New("ragcore: provider authentication failed")

	// ErrNoContent is returned when a crawl yields zero pages with content.
	ErrNoContent = errors.New("ragcore: no content was crawled")

	// ErrSourceUpsertFailed is returned when both the primary and fallback
	// source upsert fail; writing chunks would violate the FK.
	ErrSourceUpsertFailed = errors.New("ragcore: failed to create or update source")

	// ErrChunksProcessedButZeroStored is returned when the storage writer
	// processed chunks but persisted none of them.
	ErrChunksProcessedButZeroStored = errors.New("ragcore: chunks processed but zero stored")

	// ErrStorageInsertFailed is returned when a batch insert and its
	// per-row fallback both fail for every row.
	ErrStorageInsertFailed = errors.New("ragcore: storage insert failed")

	// ErrOperationCancelled is returned by any step that observes a
	// cancelled operation token.
	ErrOperationCancelled = errors.New("ragcore: operation cancelled")

	// ErrOperationNotFound is returned when a progress_id has no tracked
	// operation (expired, evicted, or never existed).
	ErrOperationNotFound = errors.New("ragcore: operation not found")

	// ErrSourceNotFound is returned when a source_id does not exist.
	ErrSourceNotFound = errors.New("ragcore: source not found")

	// ErrInvalidConfig is returned for structurally invalid configuration.
	ErrInvalidConfig = errors.New("ragcore: invalid configuration")

	// ErrInvalidURL is returned when a crawl request's URL has no
	// recognized scheme.
	ErrInvalidURL = errors.New("ragcore: invalid or unsupported URL scheme")

	// ErrTooManyOrchestrations names an exhausted global orchestration
	// semaphore. No function in this package returns it: Orchestrate and
	// OrchestrateDocument always queue for a free slot, and there is no
	// option to fail instead of waiting.
	ErrTooManyOrchestrations = errors.New("ragcore: too many concurrent orchestrations")
)
