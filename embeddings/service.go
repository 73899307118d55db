// Package embeddings implements the rate-limited, partial-failure-aware
// embedding service (C4) and the optional contextual-embedding stage
// (C5) that prefixes each chunk with an LLM-generated summary of its
// place in the source document.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/archonrag/ragcore/llm"
	"github.com/archonrag/ragcore/ratelimit"
	"github.com/archonrag/ragcore/settings"
)

// ErrQuotaExhausted marks a batch failure caused by the provider
// reporting its quota as exhausted (as opposed to a transient rate
// limit). CreateEmbeddings stops issuing further batches once this
// fires and records every remaining text as a failure of this kind.
var ErrQuotaExhausted = errors.New("embeddings: provider quota exhausted")

// ErrEmptyVector marks a response slot whose vector came back empty —
// the provider acknowledged the text but returned nothing usable for it.
var ErrEmptyVector = errors.New("embeddings: provider returned an empty vector")

// Service creates embeddings for batches of text, enforcing the rate
// limiter and returning partial-failure results instead of aborting on
// the first error.
type Service struct {
	provider llm.Provider
	limiter  *ratelimit.Limiter
	cache    *settings.Cache
}

// New returns a Service. provider performs the actual embedding calls;
// limiter bounds request/token throughput; cache supplies
// EMBEDDING_BATCH_SIZE (and any future tunables).
func New(provider llm.Provider, limiter *ratelimit.Limiter, cache *settings.Cache) *Service {
	return &Service{provider: provider, limiter: limiter, cache: cache}
}

// OnRateLimitWait is invoked whenever a batch is waiting on the rate
// limiter, so the progress tracker can surface a heartbeat message.
type OnRateLimitWait func(remaining string)

// CreateEmbeddings embeds texts in batches of EMBEDDING_BATCH_SIZE
// (default 100), requesting dimensions-length vectors from the
// provider (0 = provider native). Unless the context is cancelled, it
// returns a BatchResult with SuccessCount + FailureCount == len(texts)
// and a nil error. A context cancellation aborts immediately and returns
// the partial result with ctx.Err().
func (s *Service) CreateEmbeddings(ctx context.Context, texts []string, dimensions int, onWait ratelimit.OnWait) (*BatchResult, error) {
	result := NewBatchResult()
	if len(texts) == 0 {
		return result, nil
	}

	batchSize := s.cache.GetInt(ctx, settings.KeyEmbeddingBatchSize, 100)
	if batchSize < 1 {
		batchSize = 1
	}

	quotaExhausted := false

	for start := 0; start < len(texts); start += batchSize {
		if quotaExhausted {
			for i := start; i < len(texts); i++ {
				result.AddFailure(i, texts[i], ErrQuotaExhausted)
			}
			break
		}

		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		estTokens := estimateBatchTokens(batch)
		release, err := s.limiter.Acquire(ctx, estTokens, onWait)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			for i, t := range batch {
				result.AddFailure(start+i, t, err)
			}
			continue
		}

		vectors, err := s.provider.Embed(ctx, batch, dimensions)
		release()

		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			if isQuotaExhausted(err) {
				quotaExhausted = true
				for i, t := range batch {
					result.AddFailure(start+i, t, ErrQuotaExhausted)
				}
				continue
			}
			for i, t := range batch {
				result.AddFailure(start+i, t, err)
			}
			continue
		}

		for i, t := range batch {
			if i >= len(vectors) || len(vectors[i]) == 0 {
				result.AddFailure(start+i, t, ErrEmptyVector)
				continue
			}
			result.AddSuccess(t, vectors[i])
		}
	}

	if result.TotalRequested() != len(texts) {
		return result, fmt.Errorf("embeddings: internal accounting error: processed %d of %d texts", result.TotalRequested(), len(texts))
	}
	return result, nil
}

// isQuotaExhausted classifies a provider error as quota exhaustion
// rather than a transient condition. OpenAI-shaped 429 responses
// distinguish the two via an "insufficient_quota" error code in the
// body; other providers are treated as transient rate limits instead,
// matching the spec's "OpenAI quota-exhausted" detection being
// provider-specific.
func isQuotaExhausted(err error) bool {
	var apiErr *llm.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode != 429 {
		return false
	}
	body := strings.ToLower(apiErr.Body)
	return strings.Contains(body, "insufficient_quota") || strings.Contains(body, "quota_exceeded") || strings.Contains(body, "billing_hard_limit")
}

// estimateBatchTokens approximates Σ word_count × 1.3 for a batch,
// which is what gets reserved against the rate limiter's token window.
func estimateBatchTokens(batch []string) int {
	total := 0.0
	for _, t := range batch {
		words := len(strings.Fields(t))
		total += float64(words) * 1.3
	}
	return int(math.Ceil(total))
}
