// Package prometheus exports sync observations as Prometheus metrics.
package prometheus

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.MetricsRecorder = (*Recorder)(nil)

const namespace = "sercha_sync"

// Recorder implements driven.MetricsRecorder.
type Recorder struct {
	cyclesTotal      *prom.CounterVec
	cycleDuration    *prom.HistogramVec
	cycleDocuments   *prom.GaugeVec
	lastSuccess      *prom.GaugeVec
	itemsTotal       *prom.CounterVec
	cleanupDocuments *prom.CounterVec
	uploadsTotal     *prom.CounterVec
	uploadAttempts   prom.Histogram
	uploadThrottled  prom.Counter
	circuitState     *prom.GaugeVec
	errorsTotal      *prom.CounterVec
}

// NewRegistry returns a registry carrying the Go runtime and process collectors.
func NewRegistry() *prom.Registry {
	reg := prom.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewRecorder creates and registers all sync metrics.
func NewRecorder(reg prom.Registerer) *Recorder {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		cyclesTotal: factory.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Source sync cycles by outcome",
		}, []string{"source_id", "status"}),
		cycleDuration: factory.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one source sync cycle",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"source_id"}),
		cycleDocuments: factory.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_documents",
			Help:      "Document counts of the last cycle of a source",
		}, []string{"source_id", "outcome"}),
		lastSuccess: factory.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful cycle of a source",
		}, []string{"source_id"}),
		itemsTotal: factory.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Items reaching a terminal processing state",
		}, []string{"source_id", "status"}),
		cleanupDocuments: factory.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_documents_total",
			Help:      "Documents affected by cleanup steps",
		}, []string{"source_id", "step"}),
		uploadsTotal: factory.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Bulk upload payloads by result",
		}, []string{"result"}),
		uploadAttempts: factory.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_attempts",
			Help:      "Attempts needed per upload payload",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}),
		uploadThrottled: factory.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "upload_rate_limited_total",
			Help:      "Upload payloads that hit rate limiting at least once",
		}),
		circuitState: factory.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "Circuit state per key (0 closed, 1 half-open, 2 open)",
		}, []string{"key"}),
		errorsTotal: factory.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Tracked sync errors",
		}, []string{"source_id", "kind", "severity"}),
	}
}

// Handler serves the metrics of g.
func Handler(g prom.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (r *Recorder) ObserveCycle(sourceID string, status domain.ResultStatus, stats domain.SyncStats, duration time.Duration) {
	r.cyclesTotal.WithLabelValues(sourceID, string(status)).Inc()
	if status == domain.ResultSkipped {
		return
	}
	r.cycleDuration.WithLabelValues(sourceID).Observe(duration.Seconds())

	for outcome, n := range map[string]int{
		"discovered": stats.Discovered,
		"processed":  stats.Processed,
		"skipped":    stats.Skipped,
		"failed":     stats.Failed,
		"archived":   stats.Archived,
	} {
		r.cycleDocuments.WithLabelValues(sourceID, outcome).Set(float64(n))
	}
	if status == domain.ResultSuccess {
		r.lastSuccess.WithLabelValues(sourceID).SetToCurrentTime()
	}
}

func (r *Recorder) ObserveItem(sourceID string, status domain.ProcessingStatus) {
	r.itemsTotal.WithLabelValues(sourceID, string(status)).Inc()
}

func (r *Recorder) ObserveCleanup(sourceID, step string, count int) {
	r.cleanupDocuments.WithLabelValues(sourceID, step).Add(float64(count))
}

func (r *Recorder) ObserveUpload(result domain.UploadResult) {
	outcome := "success"
	if !result.Succeeded() {
		outcome = "failed"
	}
	r.uploadsTotal.WithLabelValues(outcome).Inc()
	r.uploadAttempts.Observe(float64(result.Attempts))
	if result.RateLimited {
		r.uploadThrottled.Inc()
	}
}

func (r *Recorder) SetCircuitState(key, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	r.circuitState.WithLabelValues(key).Set(v)
}

func (r *Recorder) ObserveError(err *domain.SyncError) {
	if err == nil {
		return
	}
	r.errorsTotal.WithLabelValues(err.SourceID, string(err.Kind), err.Severity.String()).Inc()
}
