package domain

import "time"

// SyncStatus represents the current state of a source's sync cycles
type SyncStatus string

const (
	SyncStatusIdle      SyncStatus = "idle"
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
	// SyncStatusHalted stops automated cycles until an operator resumes the source
	SyncStatusHalted SyncStatus = "halted"
)

// SyncState tracks the sync state for a source
type SyncState struct {
	SourceID   string     `json:"source_id"`
	Status     SyncStatus `json:"status"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	NextSyncAt *time.Time `json:"next_sync_at,omitempty"`
	Stats      SyncStats  `json:"stats"`
	Error      string     `json:"error,omitempty"`
	// PendingCleanup holds cleanup scopes that failed and are retried on the next cycle
	PendingCleanup []OutdatedScope `json:"pending_cleanup,omitempty"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// SyncStats holds statistics for one sync of a source
type SyncStats struct {
	Discovered  int `json:"discovered"`
	Processed   int `json:"processed"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
	MarkedStale int `json:"marked_stale"`
	Deleted     int `json:"deleted"`
	Archived    int `json:"archived"`
}

// ResultStatus is the outcome of one source within a run
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
	ResultSkipped ResultStatus = "skipped"
)

// SyncResult represents the outcome of syncing one source
type SyncResult struct {
	SourceID string        `json:"source_id"`
	Status   ResultStatus  `json:"status"`
	Stats    SyncStats     `json:"stats"`
	Cycle    *CycleSummary `json:"cycle,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration float64       `json:"duration_seconds"`
}

// CircuitSnapshot is the exported state of one circuit breaker key
type CircuitSnapshot struct {
	Key       string     `json:"key"`
	State     string     `json:"state"`
	Failures  int        `json:"failures"`
	OpenUntil *time.Time `json:"open_until,omitempty"`
}

// SyncSummary reports a whole sync run
type SyncSummary struct {
	RunID              string            `json:"run_id"`
	StartedAt          time.Time         `json:"started_at"`
	Duration           float64           `json:"duration_seconds"`
	Results            []*SyncResult     `json:"results"`
	SourcesSucceeded   int               `json:"sources_succeeded"`
	SourcesFailed      int               `json:"sources_failed"`
	SourcesSkipped     int               `json:"sources_skipped"`
	DocumentsProcessed int               `json:"documents_processed"`
	DocumentsFailed    int               `json:"documents_failed"`
	CleanupMarked      int               `json:"cleanup_marked"`
	CleanupDeleted     int               `json:"cleanup_deleted"`
	Errors             ErrorReport       `json:"errors"`
	Circuits           []CircuitSnapshot `json:"circuits"`
}

// Add folds one source result into the summary totals.
func (s *SyncSummary) Add(r *SyncResult) {
	s.Results = append(s.Results, r)
	switch r.Status {
	case ResultSuccess:
		s.SourcesSucceeded++
	case ResultFailed:
		s.SourcesFailed++
	case ResultSkipped:
		s.SourcesSkipped++
	}
	s.DocumentsProcessed += r.Stats.Processed
	s.DocumentsFailed += r.Stats.Failed
	s.CleanupMarked += r.Stats.MarkedStale
	s.CleanupDeleted += r.Stats.Deleted
}
