// Package metrics holds the pipeline's Prometheus instruments. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "datalake"

type Metrics struct {
	filesProcessed  *prometheus.CounterVec
	recordsAccepted *prometheus.CounterVec
	recordsRejected *prometheus.CounterVec
	extractDuration *prometheus.HistogramVec
	cacheRequests   *prometheus.CounterVec
	rowsLoaded      *prometheus.CounterVec
	uploads         *prometheus.CounterVec
}

// New registers every instrument on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		filesProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Landing files processed, by category and outcome.",
		}, []string{"dataset", "category", "outcome"}),
		recordsAccepted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_accepted_total",
			Help:      "Records accepted by the normalizer.",
		}, []string{"dataset", "category"}),
		recordsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Raw lines rejected by the normalizer, by reason.",
		}, []string{"dataset", "reason"}),
		extractDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extract_duration_seconds",
			Help:      "Wall time of a full extraction run.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"dataset"}),
		cacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Result cache lookups, by result (hit, miss, forced).",
		}, []string{"dataset", "result"}),
		rowsLoaded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_loaded_total",
			Help:      "Rows appended to the relational sink.",
		}, []string{"table"}),
		uploads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Files accepted by the upload endpoint.",
		}, []string{"category"}),
	}
}

func (m *Metrics) FileProcessed(dataset, category, outcome string) {
	if m == nil {
		return
	}
	m.filesProcessed.WithLabelValues(dataset, category, outcome).Inc()
}

func (m *Metrics) RecordsAccepted(dataset, category string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.recordsAccepted.WithLabelValues(dataset, category).Add(float64(n))
}

func (m *Metrics) RecordsRejected(dataset, reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.recordsRejected.WithLabelValues(dataset, reason).Add(float64(n))
}

func (m *Metrics) ExtractDuration(dataset string, d time.Duration) {
	if m == nil {
		return
	}
	m.extractDuration.WithLabelValues(dataset).Observe(d.Seconds())
}

func (m *Metrics) CacheRequest(dataset, result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(dataset, result).Inc()
}

func (m *Metrics) RowsLoaded(table string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.rowsLoaded.WithLabelValues(table).Add(float64(n))
}

func (m *Metrics) Upload(category string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(category).Inc()
}
