// Package ratelimit implements the dual-bucket admission controller that
// guards outbound embedding/chat calls: a requests-per-minute window, a
// tokens-per-minute window, and a concurrency semaphore. Acquire blocks
// in short chunks so a caller can surface rate-limit heartbeats to a
// progress tracker instead of hanging silently.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// ErrRejected is returned by Acquire when the limiter is configured to
// reject rather than wait and the call cannot be admitted immediately.
var ErrRejected = errors.New("ratelimit: request rejected, limiter configured to reject not wait")

// maxWaitChunk bounds how long a single sleep iteration runs before
// Acquire re-invokes onWait with the remaining delay. Matches the
// heartbeat cadence the progress tracker expects.
const maxWaitChunk = 5 * time.Second

// Limiter bounds outbound provider calls by request count, token count,
// and in-flight concurrency. The two rate windows are modeled as token
// buckets (golang.org/x/time/rate) refilling continuously at the
// per-minute rate, which approximates the sliding-minute-window
// semantics closely enough for admission control while giving Acquire a
// cancellable, inspectable reservation via Reserve/Cancel.
type Limiter struct {
	requests *rate.Limiter
	tokens   *rate.Limiter
	sem      chan struct{}
	reject   bool
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithReject makes Acquire fail fast with ErrRejected instead of waiting
// when the call cannot be admitted immediately.
func WithReject() Option {
	return func(l *Limiter) { l.reject = true }
}

// New returns a Limiter allowing up to requestsPerMinute requests and
// tokensPerMinute tokens per rolling minute, with at most concurrency
// calls in flight at once.
func New(requestsPerMinute, tokensPerMinute, concurrency int, opts ...Option) *Limiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 3000
	}
	if tokensPerMinute <= 0 {
		tokensPerMinute = 200000
	}
	if concurrency <= 0 {
		concurrency = 2
	}
	l := &Limiter{
		requests: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute),
		tokens:   rate.NewLimiter(rate.Limit(float64(tokensPerMinute)/60.0), tokensPerMinute),
		sem:      make(chan struct{}, concurrency),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OnWait is invoked (possibly multiple times) while Acquire waits for
// admission, with the estimated remaining wait.
type OnWait func(remaining time.Duration)

// Acquire blocks until both the request and token windows admit a call
// reserving estimatedTokens, and a concurrency slot is free. It returns
// a release func the caller must call when the outbound call completes.
// If the Limiter was built with WithReject, Acquire returns ErrRejected
// immediately instead of waiting whenever the call cannot be admitted
// without delay.
func (l *Limiter) Acquire(ctx context.Context, estimatedTokens int, onWait OnWait) (func(), error) {
	if l.reject {
		select {
		case l.sem <- struct{}{}:
		default:
			return nil, ErrRejected
		}
	} else {
		select {
		case l.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	release := func() { <-l.sem }

	now := time.Now()
	reqRes := l.requests.ReserveN(now, 1)
	tokRes := l.tokens.ReserveN(now, estimatedTokens)

	if !reqRes.OK() || !tokRes.OK() {
		if reqRes.OK() {
			reqRes.Cancel()
		}
		if tokRes.OK() {
			tokRes.Cancel()
		}
		release()
		return nil, errors.New("ratelimit: reservation exceeds burst capacity")
	}

	delay := reqRes.Delay()
	if tokRes.Delay() > delay {
		delay = tokRes.Delay()
	}

	for delay > 0 {
		if l.reject {
			reqRes.Cancel()
			tokRes.Cancel()
			release()
			return nil, ErrRejected
		}
		chunk := delay
		if chunk > maxWaitChunk {
			chunk = maxWaitChunk
		}
		if onWait != nil {
			onWait(delay)
		}
		select {
		case <-time.After(chunk):
		case <-ctx.Done():
			reqRes.Cancel()
			tokRes.Cancel()
			release()
			return nil, ctx.Err()
		}
		delay -= chunk
	}

	return release, nil
}
