package driven

import (
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// MetricsRecorder receives sync observations (Prometheus).
type MetricsRecorder interface {
	// ObserveCycle records one source cycle
	ObserveCycle(sourceID string, status domain.ResultStatus, stats domain.SyncStats, duration time.Duration)

	// ObserveItem records one item reaching a terminal state
	ObserveItem(sourceID string, status domain.ProcessingStatus)

	// ObserveCleanup records the affected counts of a cleanup step
	ObserveCleanup(sourceID, step string, count int)

	// ObserveUpload records one upload result
	ObserveUpload(result domain.UploadResult)

	// SetCircuitState records the state of a circuit key
	SetCircuitState(key, state string)

	// ObserveError records one tracked sync error
	ObserveError(err *domain.SyncError)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) ObserveCycle(string, domain.ResultStatus, domain.SyncStats, time.Duration) {}
func (NopMetrics) ObserveItem(string, domain.ProcessingStatus)                              {}
func (NopMetrics) ObserveCleanup(string, string, int)                                       {}
func (NopMetrics) ObserveUpload(domain.UploadResult)                                        {}
func (NopMetrics) SetCircuitState(string, string)                                           {}
func (NopMetrics) ObserveError(*domain.SyncError)                                           {}
