package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAcquireAdmitsWithinBudget(t *testing.T) {
	l := New(3000, 200000, 2)
	release, err := l.Acquire(context.Background(), 100, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release()
}

func TestAcquireConcurrencyBlocksSecondCaller(t *testing.T) {
	l := New(3000, 200000, 1)
	release, err := l.Acquire(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, 1, nil); err == nil {
		t.Fatal("expected second acquire to block until context deadline")
	}
}

func TestAcquireRejectsWhenConfigured(t *testing.T) {
	l := New(1, 200000, 2, WithReject())
	release, err := l.Acquire(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release()

	// Second call should need to wait ~1min for the 1-req/min bucket; with
	// WithReject it must fail fast instead.
	_, err = l.Acquire(context.Background(), 1, nil)
	if err != ErrRejected {
		t.Fatalf("want ErrRejected, got %v", err)
	}
}

func TestAcquireHeartbeatsWhileWaiting(t *testing.T) {
	l := New(1, 200000, 2)
	release, err := l.Acquire(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	var heartbeats int
	_, err = l.Acquire(ctx, 1, func(remaining time.Duration) { heartbeats++ })
	if err == nil {
		t.Fatal("expected context deadline before the 1-req/min bucket refills")
	}
	if heartbeats == 0 {
		t.Fatal("expected at least one heartbeat while waiting")
	}
}
