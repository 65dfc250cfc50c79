package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-sync/internal/resilience"
)

var recoverySuggestions = map[domain.ErrorKind]string{
	domain.ErrorKindConfiguration: "fix the source configuration and resume the source",
	domain.ErrorKindSourceFetch:   "check that the origin is reachable and the URL is still valid",
	domain.ErrorKindDocumentParse: "inspect the payload; the document format may have changed",
	domain.ErrorKindIndex:         "check document index health and capacity",
	domain.ErrorKindUpload:        "check blob store credentials and throttling limits",
	domain.ErrorKindCleanup:       "stale documents remain flagged; cleanup is retried on the next cycle",
	domain.ErrorKindCircuitOpen:   "the dependency is failing; wait for the circuit to reset",
}

// ErrorTracker aggregates the failures of one sync run.
// It never retries anything itself. Create one per run.
type ErrorTracker struct {
	mu      sync.Mutex
	errors  []*domain.SyncError
	logger  *slog.Logger
	metrics driven.MetricsRecorder
	now     func() time.Time
}

// NewErrorTracker creates an empty tracker.
func NewErrorTracker(logger *slog.Logger, metrics driven.MetricsRecorder) *ErrorTracker {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	return &ErrorTracker{
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Record stores a structured error and logs it at a level matching its severity.
func (t *ErrorTracker) Record(e *domain.SyncError) {
	if e.Timestamp.IsZero() {
		e.Timestamp = t.now()
	}
	if e.RecoverySuggestion == "" {
		e.RecoverySuggestion = recoverySuggestions[e.Kind]
	}

	t.mu.Lock()
	t.errors = append(t.errors, e)
	t.mu.Unlock()

	level := slog.LevelError
	switch e.Severity {
	case domain.SeverityWarning:
		level = slog.LevelWarn
	case domain.SeverityCritical:
		level = slog.LevelError + 4
	}
	attrs := []any{
		"source_id", e.SourceID,
		"kind", e.Kind,
		"severity", e.Severity.String(),
	}
	for k, v := range e.Details {
		attrs = append(attrs, k, v)
	}
	t.logger.Log(context.Background(), level, e.Message, attrs...)
	t.metrics.ObserveError(e)
}

// Track builds a SyncError from err and records it.
// Circuit open errors are always downgraded to warnings of kind circuit_open.
func (t *ErrorTracker) Track(sourceID string, kind domain.ErrorKind, severity domain.Severity, err error, details map[string]string) *domain.SyncError {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		kind = domain.ErrorKindCircuitOpen
		severity = domain.SeverityWarning
	}
	e := &domain.SyncError{
		Message:  err.Error(),
		SourceID: sourceID,
		Kind:     kind,
		Severity: severity,
		Details:  details,
	}
	t.Record(e)
	return e
}

// Errors returns all errors at or above min, in the order they were recorded.
func (t *ErrorTracker) Errors(minSeverity domain.Severity) []*domain.SyncError {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*domain.SyncError
	for _, e := range t.errors {
		if e.Severity >= minSeverity {
			out = append(out, e)
		}
	}
	return out
}

// ForSource returns the errors of one source.
func (t *ErrorTracker) ForSource(sourceID string) []*domain.SyncError {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*domain.SyncError
	for _, e := range t.errors {
		if e.SourceID == sourceID {
			out = append(out, e)
		}
	}
	return out
}

// HasCritical reports whether any critical error was recorded.
func (t *ErrorTracker) HasCritical() bool {
	return len(t.Errors(domain.SeverityCritical)) > 0
}

// HasCriticalFor reports whether the source has a critical error in this run.
func (t *ErrorTracker) HasCriticalFor(sourceID string) bool {
	for _, e := range t.ForSource(sourceID) {
		if e.Severity == domain.SeverityCritical {
			return true
		}
	}
	return false
}

// CriticalSources lists the sources with critical errors.
func (t *ErrorTracker) CriticalSources() []string {
	seen := make(map[string]struct{})
	for _, e := range t.Errors(domain.SeverityCritical) {
		seen[e.SourceID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Report summarises everything recorded so far.
func (t *ErrorTracker) Report() domain.ErrorReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	report := domain.ErrorReport{
		TotalErrors: len(t.errors),
		Errors:      make([]*domain.SyncError, len(t.errors)),
	}
	copy(report.Errors, t.errors)
	for _, e := range t.errors {
		switch e.Severity {
		case domain.SeverityCritical:
			report.CriticalCount++
		case domain.SeverityError:
			report.ErrorCount++
		case domain.SeverityWarning:
			report.WarningCount++
		}
	}
	return report
}

// Reset drops all recorded errors.
func (t *ErrorTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors = nil
}
