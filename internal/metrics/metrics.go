// Package metrics provides Prometheus metrics for neisandb. Unlike the
// teacher's metrics package, which registers into the global default
// registry (fine for a single long-lived gRPC server process), each
// Metrics here registers into its own prometheus.Registry so that
// opening several Database instances in the same process — as the test
// suite does — never hits a duplicate-registration panic.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for one Database.
type Metrics struct {
	Registry *prometheus.Registry

	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	PageCount     *prometheus.GaugeVec
	CacheSize     *prometheus.GaugeVec
	FileSizeBytes *prometheus.GaugeVec

	FlushesTotal *prometheus.CounterVec
}

// New creates and registers neisandb's Prometheus metrics into a fresh
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neisandb_operations_total",
				Help: "Total number of engine operations",
			},
			[]string{"collection", "operation", "status"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "neisandb_operation_duration_seconds",
				Help:    "Duration of engine operations in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"collection", "operation"},
		),
		PageCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "neisandb_page_count",
				Help: "Number of pages known to be on disk for a collection",
			},
			[]string{"collection"},
		),
		CacheSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "neisandb_cache_size",
				Help: "Number of page trees currently held in the LRU cache",
			},
			[]string{"collection"},
		),
		FileSizeBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "neisandb_file_size_bytes",
				Help: "Known on-disk size of a collection's file",
			},
			[]string{"collection"},
		),
		FlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neisandb_flushes_total",
				Help: "Total number of page flushes, split by trigger",
			},
			[]string{"collection", "trigger"},
		),
	}

	reg.MustRegister(m.OperationsTotal, m.OperationDuration, m.PageCount, m.CacheSize, m.FileSizeBytes, m.FlushesTotal)
	return m
}

// RecordOperation records one engine operation's outcome and latency.
func (m *Metrics) RecordOperation(collection, operation, status string, duration time.Duration) {
	m.OperationsTotal.WithLabelValues(collection, operation, status).Inc()
	m.OperationDuration.WithLabelValues(collection, operation).Observe(duration.Seconds())
}

// RecordFlush records one flush, tagged by what triggered it
// ("rotation", "debounce", or "manual").
func (m *Metrics) RecordFlush(collection, trigger string) {
	m.FlushesTotal.WithLabelValues(collection, trigger).Inc()
}

// UpdateFileStats updates the per-collection size/occupancy gauges.
func (m *Metrics) UpdateFileStats(collection string, fileSizeBytes int64, pageCount int, cacheSize int) {
	m.FileSizeBytes.WithLabelValues(collection).Set(float64(fileSizeBytes))
	m.PageCount.WithLabelValues(collection).Set(float64(pageCount))
	m.CacheSize.WithLabelValues(collection).Set(float64(cacheSize))
}
