// Package metrics provides Prometheus metrics for dataset ingestion.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	IngestJobsTotal        *prometheus.CounterVec
	DocumentsIngestedTotal *prometheus.CounterVec
	SegmentsWrittenTotal   prometheus.Counter
	ReconcileDuration      prometheus.Histogram
	SegmentMutationsTotal  *prometheus.CounterVec
	IngestQueueDepth       prometheus.Gauge
}

// NewMetrics creates and registers all collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IngestJobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contexta_ingest_jobs_total",
			Help: "Background dataset reconciliation jobs by outcome",
		}, []string{"status"}),
		DocumentsIngestedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contexta_documents_ingested_total",
			Help: "Documents run through the ingestion pipeline",
		}, []string{"type", "status"}),
		SegmentsWrittenTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "contexta_segments_written_total",
			Help: "Segments persisted by the ingestion pipeline",
		}),
		ReconcileDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "contexta_reconcile_duration_seconds",
			Help:    "Duration of dataset reconciliations",
			Buckets: prometheus.DefBuckets,
		}),
		SegmentMutationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contexta_segment_mutations_total",
			Help: "Single-segment mutations by operation and outcome",
		}, []string{"op", "status"}),
		IngestQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "contexta_ingest_queue_depth",
			Help: "Jobs waiting in the ingestion queue",
		}),
	}
}

func (m *Metrics) RecordJob(status string) {
	if m == nil {
		return
	}
	m.IngestJobsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordDocument(docType, status string, segments int) {
	if m == nil {
		return
	}
	m.DocumentsIngestedTotal.WithLabelValues(docType, status).Inc()
	if segments > 0 {
		m.SegmentsWrittenTotal.Add(float64(segments))
	}
}

func (m *Metrics) ObserveReconcile(start time.Time) {
	if m == nil {
		return
	}
	m.ReconcileDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) RecordMutation(op string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SegmentMutationsTotal.WithLabelValues(op, status).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.IngestQueueDepth.Set(float64(n))
}
