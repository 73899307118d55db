// Package progress implements the operation tracker and registry (C12)
// and the stage-to-overall-percent mapper (C13) that together give the
// HTTP surface a pollable, monotonically increasing view of a
// long-running crawl or upload.
package progress

import (
	"sync"
	"time"
)

// Terminal states after which an operation is scheduled for eviction.
const (
	StatusStarting  = "starting"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

var terminalStatuses = map[string]bool{
	StatusCompleted: true, StatusFailed: true, StatusError: true, StatusCancelled: true,
}

// evictionGrace is how long a terminal operation stays visible to
// pollers before the registry removes it.
const evictionGrace = 30 * time.Second

const maxLogEntries = 200

// protectedExtraKeys are never overwritten by update()'s extras map —
// they are owned by the tracker itself.
var protectedExtraKeys = map[string]bool{
	"progress": true, "status": true, "log": true,
	"progress_id": true, "type": true, "start_time": true,
}

// LogEntry is one append-only log line recorded against an operation.
type LogEntry struct {
	Time    time.Time
	Message string
}

// Operation is a snapshot of one tracked long-running task.
type Operation struct {
	ProgressID string
	Type       string // crawl, upload, project_creation, ...
	Status     string
	Progress   int // 0-100, monotone non-decreasing
	Log        string
	Logs       []LogEntry
	StartTime  time.Time
	EndTime    *time.Time
	Error      string
	Duration   *float64
	Extras     map[string]any
}

// IsTerminal reports whether Status is one of the terminal states.
func (o Operation) IsTerminal() bool {
	return terminalStatuses[o.Status]
}

type record struct {
	op        Operation
	evictTime *time.Time
}

// Registry is the process-wide map of progress_id -> operation state.
type Registry struct {
	mu      sync.Mutex
	records map[string]*record
	now     func() time.Time
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*record), now: time.Now}
}

// Start registers a new operation, stamping start_time and status
// "starting", seeding initial extra fields.
func (r *Registry) Start(progressID, opType string, initial map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[progressID] = &record{op: Operation{
		ProgressID: progressID,
		Type:       opType,
		Status:     StatusStarting,
		Progress:   0,
		StartTime:  r.now(),
		Extras:     cloneExtras(initial),
	}}
}

// Update clamps progress to [0,100], never letting it decrease,
// appends a log entry (capped at 200), and merges extras except the
// protected keys.
func (r *Registry) Update(progressID, status string, progress int, logMsg string, extras map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[progressID]
	if !ok {
		return
	}

	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if progress < rec.op.Progress {
		progress = rec.op.Progress
	}
	rec.op.Progress = progress

	if status != "" {
		rec.op.Status = status
	}
	if logMsg != "" {
		rec.op.Log = logMsg
		rec.op.Logs = append(rec.op.Logs, LogEntry{Time: r.now(), Message: logMsg})
		if len(rec.op.Logs) > maxLogEntries {
			rec.op.Logs = rec.op.Logs[len(rec.op.Logs)-maxLogEntries:]
		}
	}

	if rec.op.Extras == nil {
		rec.op.Extras = make(map[string]any)
	}
	for k, v := range extras {
		if protectedExtraKeys[k] {
			continue
		}
		rec.op.Extras[k] = v
	}

	if terminalStatuses[rec.op.Status] {
		r.scheduleEvictionLocked(progressID, rec)
	}
}

// Complete marks an operation completed at 100%, records its duration,
// and schedules eviction.
func (r *Registry) Complete(progressID string, extras map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[progressID]
	if !ok {
		return
	}
	now := r.now()
	rec.op.Status = StatusCompleted
	rec.op.Progress = 100
	rec.op.EndTime = &now
	duration := now.Sub(rec.op.StartTime).Seconds()
	rec.op.Duration = &duration
	if rec.op.Extras == nil {
		rec.op.Extras = make(map[string]any)
	}
	for k, v := range extras {
		if !protectedExtraKeys[k] {
			rec.op.Extras[k] = v
		}
	}
	r.scheduleEvictionLocked(progressID, rec)
}

// Error marks an operation as errored, preserving its last known
// progress, and schedules eviction.
func (r *Registry) Error(progressID, msg string, details map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[progressID]
	if !ok {
		return
	}
	now := r.now()
	rec.op.Status = StatusError
	rec.op.Error = msg
	rec.op.EndTime = &now
	if rec.op.Extras == nil {
		rec.op.Extras = make(map[string]any)
	}
	for k, v := range details {
		if !protectedExtraKeys[k] {
			rec.op.Extras[k] = v
		}
	}
	r.scheduleEvictionLocked(progressID, rec)
}

// scheduleEvictionLocked marks rec for removal after evictionGrace.
// Re-entry (another Update/Complete/Error on the same id) refreshes the
// record in place, so any earlier scheduled eviction simply finds a
// live, still-terminal record at fire time — or a non-terminal one,
// in which case it's a no-op.
func (r *Registry) scheduleEvictionLocked(progressID string, rec *record) {
	now := r.now()
	evictAt := now.Add(evictionGrace)
	rec.evictTime = &evictAt
	go func() {
		time.Sleep(evictionGrace)
		r.mu.Lock()
		defer r.mu.Unlock()
		cur, ok := r.records[progressID]
		if !ok || cur != rec || !terminalStatuses[cur.op.Status] {
			return
		}
		if cur.evictTime == nil || r.now().Before(*cur.evictTime) {
			return
		}
		delete(r.records, progressID)
	}()
}

// Get returns a snapshot of the operation, or ok=false if it's absent
// (never tracked, or already evicted).
func (r *Registry) Get(progressID string) (Operation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[progressID]
	if !ok {
		return Operation{}, false
	}
	return rec.op, true
}

// ListActive returns every non-terminal operation.
func (r *Registry) ListActive() []Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Operation
	for _, rec := range r.records {
		if !terminalStatuses[rec.op.Status] {
			out = append(out, rec.op)
		}
	}
	return out
}

// Clear removes an operation immediately, bypassing the eviction grace
// period.
func (r *Registry) Clear(progressID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, progressID)
}

func cloneExtras(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
