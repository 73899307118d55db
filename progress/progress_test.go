package progress

import (
	"testing"
	"time"
)

func newTestRegistry(clock *time.Time) *Registry {
	r := NewRegistry()
	r.now = func() time.Time { return *clock }
	return r
}

func TestUpdateNeverDecreasesProgress(t *testing.T) {
	now := time.Now()
	r := newTestRegistry(&now)
	r.Start("op1", "crawl", nil)
	r.Update("op1", "crawling", 50, "halfway", nil)
	r.Update("op1", "crawling", 20, "backslide attempt", nil)

	op, ok := r.Get("op1")
	if !ok {
		t.Fatal("expected operation to exist")
	}
	if op.Progress != 50 {
		t.Fatalf("expected progress to stay at 50, got %d", op.Progress)
	}
}

func TestUpdateClampsTo0And100(t *testing.T) {
	now := time.Now()
	r := newTestRegistry(&now)
	r.Start("op1", "crawl", nil)
	r.Update("op1", "crawling", 150, "over", nil)
	op, _ := r.Get("op1")
	if op.Progress != 100 {
		t.Fatalf("expected clamp to 100, got %d", op.Progress)
	}
}

func TestUpdateCapsLogAt200Entries(t *testing.T) {
	now := time.Now()
	r := newTestRegistry(&now)
	r.Start("op1", "crawl", nil)
	for i := 0; i < 250; i++ {
		r.Update("op1", "crawling", 1, "log line", nil)
	}
	op, _ := r.Get("op1")
	if len(op.Logs) != 200 {
		t.Fatalf("expected log cap at 200, got %d", len(op.Logs))
	}
}

func TestUpdateIgnoresProtectedExtraKeys(t *testing.T) {
	now := time.Now()
	r := newTestRegistry(&now)
	r.Start("op1", "crawl", nil)
	r.Update("op1", "crawling", 10, "msg", map[string]any{"progress": 999, "current_url": "https://x"})
	op, _ := r.Get("op1")
	if op.Progress == 999 {
		t.Fatal("expected protected key 'progress' in extras to be ignored")
	}
	if op.Extras["current_url"] != "https://x" {
		t.Fatal("expected non-protected extra to be merged")
	}
}

func TestCompleteSetsProgress100AndDuration(t *testing.T) {
	start := time.Now()
	now := start
	r := newTestRegistry(&now)
	r.Start("op1", "crawl", nil)
	now = start.Add(5 * time.Second)
	r.Complete("op1", nil)
	op, _ := r.Get("op1")
	if op.Progress != 100 || op.Status != StatusCompleted {
		t.Fatalf("expected completed at 100, got %+v", op)
	}
	if op.Duration == nil || *op.Duration < 4.9 {
		t.Fatalf("expected ~5s duration, got %v", op.Duration)
	}
}

func TestListActiveExcludesTerminal(t *testing.T) {
	now := time.Now()
	r := newTestRegistry(&now)
	r.Start("active", "crawl", nil)
	r.Start("done", "crawl", nil)
	r.Complete("done", nil)

	active := r.ListActive()
	if len(active) != 1 || active[0].ProgressID != "active" {
		t.Fatalf("expected only 'active' in ListActive, got %+v", active)
	}
}

func TestMapperMonotonicAcrossStages(t *testing.T) {
	m := NewMapper()
	p1 := m.Map("crawling", 100)
	p2 := m.Map("processing", 0)
	if p2 < p1 {
		t.Fatalf("expected monotonic progress, got %d then %d", p1, p2)
	}
	p3 := m.Map("crawling", 50) // stale update from an earlier stage
	if p3 < p2 {
		t.Fatalf("expected mapper to ignore stale regression, got %d after %d", p3, p2)
	}
}

func TestMapperRangeBoundaries(t *testing.T) {
	m := NewMapper()
	if got := m.Map("crawling", 0); got != 3 {
		t.Fatalf("expected crawling start at 3, got %d", got)
	}
	m2 := NewMapper()
	if got := m2.Map("crawling", 100); got != 15 {
		t.Fatalf("expected crawling end at 15, got %d", got)
	}
}

func TestMapperCompletedAlwaysReturns100(t *testing.T) {
	m := NewMapper()
	m.Map("crawling", 100)
	if got := m.Map("completed", 0); got != 100 {
		t.Fatalf("expected completed stage to yield 100, got %d", got)
	}
}
