package progress

// stageRange is the [start,end] overall-percent window a stage maps
// its own 0-100 progress into.
type stageRange struct {
	start, end int
}

var stageRanges = map[string]stageRange{
	"starting":          {0, 1},
	"initializing":       {0, 1},
	"analyzing":          {1, 3},
	"crawling":           {3, 15},
	"processing":         {15, 20},
	"source_creation":    {20, 25},
	"document_storage":   {25, 40},
	"code_extraction":    {40, 90},
	"finalization":       {90, 100},
	"completed":          {100, 100},
	"reading":            {0, 5},
	"text_extraction":    {5, 10},
	"chunking":           {10, 15},
	"summarizing":        {25, 35},
	"storing":            {35, 100},
}

// Mapper is the sole authority for monotonicity across stages: given a
// stream of (stage, stage_pct) updates from different components, it
// always returns a value >= every value it has previously returned.
type Mapper struct {
	lastOverall int
}

// NewMapper returns a Mapper starting at overall progress 0.
func NewMapper() *Mapper {
	return &Mapper{}
}

// Map converts (stage, stagePct) into an overall percent, never letting
// the result fall below the highest value previously returned. An
// unrecognized stage maps stagePct directly onto [lastOverall,100].
func (m *Mapper) Map(stage string, stagePct int) int {
	if stagePct < 0 {
		stagePct = 0
	}
	if stagePct > 100 {
		stagePct = 100
	}

	r, ok := stageRanges[stage]
	if !ok {
		r = stageRange{m.lastOverall, 100}
	}

	candidate := r.start + (stagePct*(r.end-r.start))/100
	if candidate < m.lastOverall {
		candidate = m.lastOverall
	}
	m.lastOverall = candidate
	return candidate
}

// MapWithSubstage composes a stage's range with a substage's own range
// within it, for components (like code extraction) that report
// progress through nested phases.
func (m *Mapper) MapWithSubstage(stage string, substagePct int, subStart, subEnd int) int {
	stageWidth := subEnd - subStart
	if stageWidth <= 0 {
		stageWidth = 100
	}
	withinSub := subStart + (substagePct*stageWidth)/100
	return m.Map(stage, withinSub)
}

// Reset re-initializes the mapper to overall progress 0, for starting a
// fresh operation on the same Mapper instance.
func (m *Mapper) Reset() {
	m.lastOverall = 0
}

// LastOverall returns the highest overall percent mapped so far —
// used on error/cancel to preserve the last known progress.
func (m *Mapper) LastOverall() int {
	return m.lastOverall
}
