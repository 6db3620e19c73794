// Package metrics exposes Prometheus collectors for the pipeline service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	itemsFoundTotal       *prometheus.CounterVec
	itemsAcquiredTotal    *prometheus.CounterVec
	itemsPassedTotal      *prometheus.CounterVec
	runsTotal             *prometheus.CounterVec
	rateLimitDelaySeconds *prometheus.HistogramVec
	quotaUnitsTotal       *prometheus.CounterVec
	enrichmentBatchSize   prometheus.Histogram
	enrichmentItemsTotal  prometheus.Counter

	once sync.Once
)

// Init registers the collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		itemsFoundTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_items_found_total",
				Help: "Items encountered during acquisition, labeled by platform.",
			},
			[]string{"platform"},
		)
		itemsAcquiredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_items_acquired_total",
				Help: "Newly stored items, labeled by platform.",
			},
			[]string{"platform"},
		)
		itemsPassedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_items_passed_total",
				Help: "Items that passed the quality gate, labeled by platform.",
			},
			[]string{"platform"},
		)
		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_runs_total",
				Help: "Completed run invocations, labeled by platform and final status.",
			},
			[]string{"platform", "status"},
		)
		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_rate_limit_delay_seconds",
				Help:    "Histogram of backoff delays after detected rate limiting.",
				Buckets: []float64{1, 5, 10, 20, 40, 80, 160},
			},
			[]string{"platform"},
		)
		quotaUnitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_quota_units_total",
				Help: "Advisory API quota units consumed, labeled by call type.",
			},
			[]string{"call"},
		)
		enrichmentBatchSize = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipeline_enrichment_batch_size",
				Help:    "Histogram of enrichment batch sizes.",
				Buckets: []float64{1, 10, 25, 50, 100, 200},
			},
		)
		enrichmentItemsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_enrichment_items_total",
				Help: "Items successfully enriched.",
			},
		)
	})
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// IncFound increments the found counter for a platform.
func IncFound(platform string) {
	Init()
	itemsFoundTotal.WithLabelValues(platform).Inc()
}

// IncAcquired increments the acquired counter for a platform.
func IncAcquired(platform string) {
	Init()
	itemsAcquiredTotal.WithLabelValues(platform).Inc()
}

// IncPassed increments the gate-pass counter for a platform.
func IncPassed(platform string) {
	Init()
	itemsPassedTotal.WithLabelValues(platform).Inc()
}

// ObserveRun records a finished run with its terminal status.
func ObserveRun(platform, status string) {
	Init()
	runsTotal.WithLabelValues(platform, status).Inc()
}

// ObserveRateLimitDelay records a backoff delay.
func ObserveRateLimitDelay(platform string, delay time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(platform).Observe(delay.Seconds())
}

// AddQuotaUnits records advisory quota consumption for a call type.
func AddQuotaUnits(call string, units int) {
	Init()
	quotaUnitsTotal.WithLabelValues(call).Add(float64(units))
}

// ObserveEnrichmentBatch records a processed batch and its successes.
func ObserveEnrichmentBatch(size, enriched int) {
	Init()
	enrichmentBatchSize.Observe(float64(size))
	enrichmentItemsTotal.Add(float64(enriched))
}
