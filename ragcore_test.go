package ragcore

import (
	"testing"
	"time"

	"github.com/archonrag/ragcore/embeddings"
	"github.com/archonrag/ragcore/progress"
)

// TestAlignEmbeddingsNoFailures covers the common case: every text
// succeeds, so positions are the identity mapping.
func TestAlignEmbeddingsNoFailures(t *testing.T) {
	br := embeddings.NewBatchResult()
	for _, s := range []string{"a", "b", "c"} {
		br.AddSuccess(s, []float32{1})
	}
	got := alignEmbeddings(3, br)
	want := []int{0, 1, 2}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("position %d: got %d want %d (full: %v)", i, got[i], w, got)
		}
	}
}

// TestAlignEmbeddingsSkipsFailedMidBatch is the exact scenario from the
// review: slice=[A,B,C,D], B fails. Without consulting FailedItems[].Index,
// a naive incrementing counter pairs D's embedding with C and assigns the
// wrong vector to every row after the failure.
func TestAlignEmbeddingsSkipsFailedMidBatch(t *testing.T) {
	br := embeddings.NewBatchResult()
	br.AddSuccess("A", []float32{0})
	br.AddFailure(1, "B", errBoom)
	br.AddSuccess("C", []float32{2})
	br.AddSuccess("D", []float32{3})

	got := alignEmbeddings(4, br)
	want := []int{0, -1, 1, 2}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("position %d: got %d want %d (full: %v)", i, got[i], w, got)
		}
	}

	// D (original index 3) must resolve to its own vector, not C's.
	vecIdx := got[3]
	if vecIdx < 0 || br.Embeddings[vecIdx][0] != 3 {
		t.Fatalf("expected D's vector (tagged 3), got index %d -> %v", vecIdx, br.Embeddings[vecIdx])
	}
}

// TestAlignEmbeddingsAllFailed exercises invariant 14: every text in the
// batch fails, so every position maps to -1 and nothing gets stored.
func TestAlignEmbeddingsAllFailed(t *testing.T) {
	br := embeddings.NewBatchResult()
	br.AddFailure(0, "A", errBoom)
	br.AddFailure(1, "B", errBoom)

	got := alignEmbeddings(2, br)
	for i, v := range got {
		if v != -1 {
			t.Fatalf("position %d: expected -1 (all failed), got %d", i, v)
		}
	}
	if len(br.Embeddings) != 0 {
		t.Fatalf("expected no embeddings recorded, got %d", len(br.Embeddings))
	}
}

var errBoom = fakeErr("boom")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

// TestCancelLifecycle exercises Cancel/isCancelled/clearCancel directly
// (a proxy for S4, cancel-mid-crawl, since the full orchestration path
// needs a live store and HTTP fetcher neither of which has a fake seam
// in this tree).
func TestCancelLifecycle(t *testing.T) {
	e := &Engine{cancelled: make(map[string]bool)}

	if e.isCancelled("op-1") {
		t.Fatal("expected unset operation to report not cancelled")
	}

	e.Cancel("op-1")
	if !e.isCancelled("op-1") {
		t.Fatal("expected Cancel to mark the operation cancelled")
	}
	if e.isCancelled("op-2") {
		t.Fatal("Cancel must not affect unrelated progress ids")
	}

	e.clearCancel("op-1")
	if e.isCancelled("op-1") {
		t.Fatal("expected clearCancel to remove the cancellation flag")
	}

	// Calling Cancel twice, or on an id that was never started, must not
	// panic or otherwise misbehave.
	e.Cancel("op-1")
	e.Cancel("op-1")
	e.clearCancel("never-started")
}

// TestNewEmitterRoutesThroughMapperAndRegistry is a proxy for S3
// (progress monotonicity): it exercises newEmitter's composition of
// Mapper.Map and Registry.Update against a real in-memory registry,
// without needing a live crawl or store.
func TestNewEmitterRoutesThroughMapperAndRegistry(t *testing.T) {
	e := &Engine{registry: progress.NewRegistry()}
	e.registry.Start("op-1", "crawl", nil)

	mapper := progress.NewMapper()
	var lastChange time.Time
	emit := e.newEmitter("op-1", mapper, &lastChange)

	emit("crawling", 50, "halfway", nil)
	op, ok := e.registry.Get("op-1")
	if !ok {
		t.Fatal("expected operation to be tracked")
	}
	first := op.Progress
	if first <= 0 {
		t.Fatalf("expected progress to advance past 0, got %d", first)
	}
	if lastChange.IsZero() {
		t.Fatal("expected newEmitter to stamp lastChange")
	}

	// A later update of the same stage with a lower stagePct must never
	// move overall progress backwards.
	emit("crawling", 10, "retry", nil)
	op, _ = e.registry.Get("op-1")
	if op.Progress < first {
		t.Fatalf("progress regressed: %d -> %d", first, op.Progress)
	}
}

// TestNewSubstageEmitterComposesWithinStageRange verifies MapWithSubstage
// is actually wired: successive sub-phase calls within one stage must
// stay within that stage's own range and never regress, mirroring how
// extractAndStoreCode reports extract/summarize/store as one continuous
// code_extraction stage instead of three disconnected percentages.
func TestNewSubstageEmitterComposesWithinStageRange(t *testing.T) {
	e := &Engine{registry: progress.NewRegistry()}
	e.registry.Start("op-1", "crawl", nil)

	mapper := progress.NewMapper()
	var lastChange time.Time
	emitSub := e.newSubstageEmitter("op-1", mapper, &lastChange)

	emitSub("code_extraction", 100, 0, 20, "extracted", nil)
	afterExtract, _ := e.registry.Get("op-1")

	emitSub("code_extraction", 100, 20, 70, "summarized", nil)
	afterSummarize, _ := e.registry.Get("op-1")
	if afterSummarize.Progress < afterExtract.Progress {
		t.Fatalf("progress regressed across substages: %d -> %d", afterExtract.Progress, afterSummarize.Progress)
	}

	emitSub("code_extraction", 100, 70, 100, "stored", nil)
	afterStore, _ := e.registry.Get("op-1")
	if afterStore.Progress < afterSummarize.Progress {
		t.Fatalf("progress regressed across substages: %d -> %d", afterSummarize.Progress, afterStore.Progress)
	}
	if afterStore.Progress > 90 {
		t.Fatalf("code_extraction stage range tops out at 90, got %d", afterStore.Progress)
	}
}
