package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var durationBuckets = []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000}

var (
	registry = prometheus.NewRegistry()

	runsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_runs_started_total",
		Help: "Total pipeline runs started",
	})
	runsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_runs_completed_total",
		Help: "Total pipeline runs completed",
	})
	runsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_runs_failed_total",
		Help: "Total pipeline runs failed",
	})
	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_run_duration_ms",
		Help:    "Pipeline run duration in milliseconds",
		Buckets: durationBuckets,
	})
	stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_ms",
		Help:    "Pipeline stage duration in milliseconds",
		Buckets: durationBuckets,
	}, []string{"stage"})
	catalogReloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_reloads_total",
		Help: "Reference catalog reload attempts by result",
	}, []string{"result"})
	catalogEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_entries",
		Help: "Entries in the current reference catalog snapshot",
	})
)

func init() {
	registry.MustRegister(
		runsStarted,
		runsCompleted,
		runsFailed,
		runDuration,
		stageDuration,
		catalogReloads,
		catalogEntries,
		collectors.NewGoCollector(),
	)
}

// IncRunStarted increments the started counter.
func IncRunStarted() {
	runsStarted.Inc()
}

// IncRunCompleted increments the completed counter.
func IncRunCompleted() {
	runsCompleted.Inc()
}

// IncRunFailed increments the failed counter.
func IncRunFailed() {
	runsFailed.Inc()
}

// ObserveRunDurationMs records a run duration in milliseconds.
func ObserveRunDurationMs(value float64) {
	runDuration.Observe(clamp(value))
}

// ObserveStageDurationMs records one stage duration in milliseconds.
func ObserveStageDurationMs(stage string, value float64) {
	stageDuration.WithLabelValues(stage).Observe(clamp(value))
}

// RecordCatalogReload counts a reload attempt; entries is ignored on failure.
func RecordCatalogReload(ok bool, entries int) {
	if !ok {
		catalogReloads.WithLabelValues("failure").Inc()
		return
	}
	catalogReloads.WithLabelValues("success").Inc()
	catalogEntries.Set(float64(entries))
}

// Registry exposes the collector registry, mainly for tests.
func Registry() *prometheus.Registry {
	return registry
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

func clamp(value float64) float64 {
	if value < 0 {
		return 0
	}
	return value
}
