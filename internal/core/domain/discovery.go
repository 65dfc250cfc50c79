package domain

import (
	"fmt"
	"time"
)

// DiscoveredItem is a candidate found on a listing page.
// It is recomputed on every discovery pass and never stored as authoritative state.
type DiscoveredItem struct {
	URL          string    `json:"url"`
	Filename     string    `json:"filename"`
	URLHash      string    `json:"url_hash"`
	LinkText     string    `json:"link_text,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// ProcessingStatus is the lifecycle state of a discovered item.
type ProcessingStatus string

const (
	ProcessingDiscovered  ProcessingStatus = "discovered"
	ProcessingDownloading ProcessingStatus = "downloading"
	ProcessingDownloaded  ProcessingStatus = "downloaded"
	ProcessingProcessing  ProcessingStatus = "processing"
	ProcessingCompleted   ProcessingStatus = "completed"
	ProcessingFailed      ProcessingStatus = "failed"
)

var processingTransitions = map[ProcessingStatus][]ProcessingStatus{
	ProcessingDiscovered:  {ProcessingDownloading, ProcessingFailed},
	ProcessingDownloading: {ProcessingDownloaded, ProcessingFailed},
	ProcessingDownloaded:  {ProcessingProcessing, ProcessingFailed},
	ProcessingProcessing:  {ProcessingCompleted, ProcessingFailed},
	// a failed item is picked up again by the next cycle
	ProcessingFailed: {ProcessingDiscovered, ProcessingDownloading},
}

// CanTransition reports whether moving from s to next is allowed.
func (s ProcessingStatus) CanTransition(next ProcessingStatus) bool {
	for _, allowed := range processingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends an item's journey in a cycle.
func (s ProcessingStatus) IsTerminal() bool {
	return s == ProcessingCompleted || s == ProcessingFailed
}

// ProcessingRecord is the persisted status of one discovered item.
// A completed record implies a document with ContentHash exists in the index.
type ProcessingRecord struct {
	SourceID            string           `json:"source_id"`
	URLHash             string           `json:"url_hash"`
	URL                 string           `json:"url"`
	Filename            string           `json:"filename,omitempty"`
	Status              ProcessingStatus `json:"status"`
	ProcessingTimestamp time.Time        `json:"processing_timestamp"`
	ContentHash         string           `json:"content_hash,omitempty"`
	IndexDocumentID     string           `json:"index_document_id,omitempty"`
	ErrorMessage        string           `json:"error_message,omitempty"`
}

// NewProcessingRecord starts the lifecycle of an item.
func NewProcessingRecord(sourceID string, item DiscoveredItem) *ProcessingRecord {
	return &ProcessingRecord{
		SourceID:            sourceID,
		URLHash:             item.URLHash,
		URL:                 item.URL,
		Filename:            item.Filename,
		Status:              ProcessingDiscovered,
		ProcessingTimestamp: item.DiscoveredAt,
	}
}

// Transition moves the record to next, stamping the time.
func (r *ProcessingRecord) Transition(next ProcessingStatus, at time.Time) error {
	if !r.Status.CanTransition(next) {
		return fmt.Errorf("%w: cannot move item %s from %s to %s", ErrInvalidInput, r.URLHash, r.Status, next)
	}
	r.Status = next
	r.ProcessingTimestamp = at
	if next != ProcessingFailed {
		r.ErrorMessage = ""
	}
	return nil
}

// Complete marks the record completed with the indexed version.
func (r *ProcessingRecord) Complete(contentHash, documentID string, at time.Time) error {
	if err := r.Transition(ProcessingCompleted, at); err != nil {
		return err
	}
	r.ContentHash = contentHash
	r.IndexDocumentID = documentID
	return nil
}

// Fail marks the record failed from any non-completed state.
func (r *ProcessingRecord) Fail(msg string, at time.Time) {
	if r.Status == ProcessingCompleted {
		return
	}
	r.Status = ProcessingFailed
	r.ProcessingTimestamp = at
	r.ErrorMessage = msg
}

// ItemError is a per-item failure recorded in a cycle summary.
type ItemError struct {
	URL     string `json:"url"`
	URLHash string `json:"url_hash"`
	Stage   string `json:"stage"`
	Error   string `json:"error"`
}

// CleanupStats holds the affected counts of the stale-version cleanup.
type CleanupStats struct {
	Scope   OutdatedScope `json:"scope"`
	Marked  int           `json:"marked"`
	Deleted int           `json:"deleted"`
	Error   string        `json:"error,omitempty"`
}

// CycleSummary reports one discovery cycle of a source.
type CycleSummary struct {
	SourceID   string        `json:"source_id"`
	Discovered int           `json:"discovered"`
	Skipped    int           `json:"skipped"`
	Processed  int           `json:"processed"`
	Failed     int           `json:"failed"`
	Errors     []ItemError   `json:"errors"`
	Cleanup    *CleanupStats `json:"cleanup,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}
