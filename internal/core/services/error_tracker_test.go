package services

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/resilience"
)

func TestErrorTracker_Report(t *testing.T) {
	tracker := newTestErrorTracker()

	tracker.Track("a", domain.ErrorKindSourceFetch, domain.SeverityCritical, errors.New("404"), nil)
	tracker.Track("a", domain.ErrorKindDocumentParse, domain.SeverityError, errors.New("bad pdf"), nil)
	tracker.Track("b", domain.ErrorKindCleanup, domain.SeverityWarning, errors.New("conflict"), nil)

	report := tracker.Report()
	if report.TotalErrors != 3 {
		t.Errorf("expected 3 errors, got %d", report.TotalErrors)
	}
	if report.CriticalCount != 1 || report.ErrorCount != 1 || report.WarningCount != 1 {
		t.Errorf("expected one of each severity, got critical=%d error=%d warning=%d",
			report.CriticalCount, report.ErrorCount, report.WarningCount)
	}
	if len(report.Errors) != 3 {
		t.Fatalf("expected 3 report entries, got %d", len(report.Errors))
	}
	if report.Errors[0].Message != "404" {
		t.Errorf("expected first message 404, got %q", report.Errors[0].Message)
	}

	if got := len(tracker.Errors(domain.SeverityError)); got != 2 {
		t.Errorf("expected 2 errors at error level or above, got %d", got)
	}
	if got := len(tracker.ForSource("a")); got != 2 {
		t.Errorf("expected 2 errors for a, got %d", got)
	}
	if !tracker.HasCritical() || !tracker.HasCriticalFor("a") || tracker.HasCriticalFor("b") {
		t.Error("expected only source a to have a critical error")
	}
	if got := tracker.CriticalSources(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("expected critical sources [a], got %v", got)
	}
}

func TestErrorTracker_DefaultsRecoverySuggestion(t *testing.T) {
	tracker := newTestErrorTracker()
	e := tracker.Track("a", domain.ErrorKindSourceFetch, domain.SeverityError, errors.New("timeout"), nil)
	if e.RecoverySuggestion == "" {
		t.Error("expected a recovery suggestion")
	}
	if e.Timestamp.IsZero() {
		t.Error("expected a timestamp")
	}
}

func TestErrorTracker_CircuitOpenIsWarning(t *testing.T) {
	tracker := newTestErrorTracker()
	err := &resilience.CircuitOpenError{Key: "http:get:x", OpenUntil: time.Now().Add(time.Minute)}

	e := tracker.Track("a", domain.ErrorKindSourceFetch, domain.SeverityCritical, err, nil)
	if e.Severity != domain.SeverityWarning {
		t.Errorf("expected warning, got %s", e.Severity)
	}
	if e.Kind != domain.ErrorKindCircuitOpen {
		t.Errorf("expected circuit_open kind, got %s", e.Kind)
	}
	if tracker.HasCritical() {
		t.Error("expected an open circuit not to be critical")
	}
}

func TestErrorTracker_Reset(t *testing.T) {
	tracker := newTestErrorTracker()
	tracker.Track("a", domain.ErrorKindIndex, domain.SeverityError, errors.New("x"), nil)
	tracker.Reset()
	if got := tracker.Report().TotalErrors; got != 0 {
		t.Errorf("expected no errors after reset, got %d", got)
	}
}
