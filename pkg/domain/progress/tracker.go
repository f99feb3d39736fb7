// Package progress provides the process-local progress tracker polled by
// status clients while a scan runs.
package progress

import (
	"sync"
	"time"

	"github.com/scanforge/api/pkg/domain/shared"
)

// Stage identifies where in the pipeline a scan currently is.
type Stage string

const (
	StageCounting   Stage = "counting_files"
	StageCloning    Stage = "cloning"
	StageExtracting Stage = "extracting"
	StageScanning   Stage = "scanning_file"
	StageProcessing Stage = "processing_results"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// IsTerminal returns true for completed and failed.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Record is the ephemeral progress state of one scan.
type Record struct {
	ScanID         shared.ID
	Stage          Stage
	Percentage     int
	ProcessedFiles int
	TotalFiles     int
	CurrentFile    string
	FindingsCount  int
	Error          string
	StartedAt      time.Time
	UpdatedAt      time.Time
}

// Elapsed returns the time since the record was created.
func (r Record) Elapsed(now time.Time) time.Duration {
	return now.Sub(r.StartedAt)
}

// Update carries the mutable fields of a progress change. Nil pointers
// leave the current value untouched.
type Update struct {
	ProcessedFiles *int
	TotalFiles     *int
	CurrentFile    string
	FindingsCount  *int
}

// Listener receives a copy of every record change.
type Listener func(Record)

// Tracker is a concurrency-safe map from scan id to Record. Records are
// replaced wholesale on update so concurrent readers never observe a
// half-written record. It is process-local memory: entries are removed a
// bounded time after reaching a terminal stage to keep the map from
// growing without bound.
type Tracker struct {
	mu        sync.RWMutex
	records   map[shared.ID]Record
	timers    map[shared.ID]*time.Timer
	listeners []Listener

	completedTTL time.Duration
	failedTTL    time.Duration
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithRetention overrides how long terminal records stay visible. Failures
// are kept shorter than successes.
func WithRetention(completed, failed time.Duration) Option {
	return func(t *Tracker) {
		t.completedTTL = completed
		t.failedTTL = failed
	}
}

// NewTracker creates an empty tracker. Callers inject it into the runner
// and the status handler; there is no package-level instance.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		records:      make(map[shared.ID]Record),
		timers:       make(map[shared.ID]*time.Timer),
		completedTTL: time.Hour,
		failedTTL:    10 * time.Minute,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Subscribe registers a listener invoked after every record change. Used by
// the websocket hub to push progress frames.
func (t *Tracker) Subscribe(fn Listener) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// Start creates the record for a scan.
func (t *Tracker) Start(id shared.ID, totalFiles int) {
	now := time.Now()
	rec := Record{
		ScanID:     id,
		Stage:      StageCounting,
		Percentage: 0,
		TotalFiles: totalFiles,
		StartedAt:  now,
		UpdatedAt:  now,
	}
	t.mu.Lock()
	if timer, ok := t.timers[id]; ok {
		timer.Stop()
		delete(t.timers, id)
	}
	t.records[id] = rec
	listeners := t.listeners
	t.mu.Unlock()
	notify(listeners, rec)
}

// SetStage transitions the record to a new stage, recomputing the
// percentage from the stage table. The percentage never decreases.
func (t *Tracker) SetStage(id shared.ID, stage Stage, upd Update) {
	t.mu.Lock()
	rec, ok := t.records[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	rec.Stage = stage
	if upd.TotalFiles != nil {
		rec.TotalFiles = *upd.TotalFiles
	}
	if upd.ProcessedFiles != nil {
		rec.ProcessedFiles = *upd.ProcessedFiles
	}
	if upd.CurrentFile != "" {
		rec.CurrentFile = upd.CurrentFile
	}
	if upd.FindingsCount != nil {
		rec.FindingsCount = *upd.FindingsCount
	}
	if pct := percentFor(stage, rec.ProcessedFiles, rec.TotalFiles); pct > rec.Percentage {
		rec.Percentage = pct
	}
	rec.UpdatedAt = time.Now()
	t.records[id] = rec
	listeners := t.listeners
	t.mu.Unlock()
	notify(listeners, rec)
}

// Complete marks the record terminal-success and schedules its removal.
func (t *Tracker) Complete(id shared.ID, findingsCount int) {
	t.finish(id, StageCompleted, findingsCount, "")
}

// Fail marks the record terminal-failure, preserving the last known
// percentage for diagnostics, and schedules its removal.
func (t *Tracker) Fail(id shared.ID, errMsg string) {
	t.finish(id, StageFailed, -1, errMsg)
}

// Get returns a copy of the record for the scan. Safe to call concurrently
// with updates; repeated calls without an intervening update return
// identical records.
func (t *Tracker) Get(id shared.ID) (Record, bool) {
	t.mu.RLock()
	rec, ok := t.records[id]
	t.mu.RUnlock()
	return rec, ok
}

// Len reports the number of live records, terminal or not.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

func (t *Tracker) finish(id shared.ID, stage Stage, findingsCount int, errMsg string) {
	t.mu.Lock()
	rec, ok := t.records[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	rec.Stage = stage
	rec.UpdatedAt = time.Now()
	if stage == StageCompleted {
		rec.Percentage = 100
		if findingsCount >= 0 {
			rec.FindingsCount = findingsCount
		}
	} else {
		rec.Error = errMsg
	}
	t.records[id] = rec

	ttl := t.completedTTL
	if stage == StageFailed {
		ttl = t.failedTTL
	}
	if timer, exists := t.timers[id]; exists {
		timer.Stop()
	}
	t.timers[id] = time.AfterFunc(ttl, func() { t.remove(id) })
	listeners := t.listeners
	t.mu.Unlock()
	notify(listeners, rec)
}

func (t *Tracker) remove(id shared.ID) {
	t.mu.Lock()
	delete(t.records, id)
	delete(t.timers, id)
	t.mu.Unlock()
}

// Stage percentage table. Scanning interpolates between its bounds by
// processed/total files.
const (
	pctCloning      = 5
	pctCounting     = 10
	pctExtracting   = 15
	pctScanningLow  = 20
	pctScanningHigh = 85
	pctProcessing   = 90
	pctCompleted    = 100
)

func percentFor(stage Stage, processed, total int) int {
	switch stage {
	case StageCloning:
		return pctCloning
	case StageCounting:
		return pctCounting
	case StageExtracting:
		return pctExtracting
	case StageScanning:
		if total <= 0 {
			return pctScanningLow
		}
		frac := float64(processed) / float64(total)
		if frac > 1 {
			frac = 1
		}
		return pctScanningLow + int(frac*float64(pctScanningHigh-pctScanningLow))
	case StageProcessing:
		return pctProcessing
	case StageCompleted:
		return pctCompleted
	default:
		// Failure keeps whatever progress was last reported.
		return 0
	}
}

func notify(listeners []Listener, rec Record) {
	for _, fn := range listeners {
		fn(rec)
	}
}
