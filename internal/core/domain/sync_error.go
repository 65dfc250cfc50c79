package domain

import (
	"fmt"
	"time"
)

// Severity ranks a sync error by the operational response it needs.
type Severity int

const (
	// SeverityWarning is informational
	SeverityWarning Severity = iota + 1
	// SeverityError is actionable but does not block further cycles
	SeverityError
	// SeverityCritical halts automated cycles for the source
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrorKind groups sync errors by the component that raised them.
type ErrorKind string

const (
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindSourceFetch   ErrorKind = "source_fetch"
	ErrorKindDocumentParse ErrorKind = "document_parse"
	ErrorKindIndex         ErrorKind = "index"
	ErrorKindUpload        ErrorKind = "upload"
	ErrorKindCleanup       ErrorKind = "cleanup"
	ErrorKindCircuitOpen   ErrorKind = "circuit_open"
)

// SyncError is a structured failure reported during a run.
// It is never retried automatically from this record alone.
type SyncError struct {
	Message            string            `json:"message"`
	SourceID           string            `json:"source_id"`
	Kind               ErrorKind         `json:"kind"`
	Severity           Severity          `json:"severity"`
	Details            map[string]string `json:"details,omitempty"`
	RecoverySuggestion string            `json:"recovery_suggestion,omitempty"`
	Timestamp          time.Time         `json:"timestamp"`
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.SourceID, e.Message)
}

// ErrorReport is the aggregated view of all errors of a run.
type ErrorReport struct {
	TotalErrors   int          `json:"total_errors"`
	CriticalCount int          `json:"critical_count"`
	ErrorCount    int          `json:"error_count"`
	WarningCount  int          `json:"warning_count"`
	Errors        []*SyncError `json:"errors"`
}
