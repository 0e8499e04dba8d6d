package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/onchainfs/ledgerfs/pkg/metrics"
)

// ingestMetrics is the Prometheus implementation of metrics.IngestMetrics.
type ingestMetrics struct {
	admissionDuration *prometheus.HistogramVec
	batchWriteDuration *prometheus.HistogramVec
	batchChunkCount   *prometheus.HistogramVec
	fallbacks         prometheus.Counter
	retrievalDuration *prometheus.HistogramVec
	quotaUsage        *prometheus.GaugeVec
}

// NewIngestMetrics creates a new Prometheus-backed IngestMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewIngestMetrics() metrics.IngestMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &ingestMetrics{
		admissionDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledgerfs_admission_duration_milliseconds",
				Help:    "Duration of the synchronous admission phase by outcome",
				Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
			},
			[]string{"outcome"},
		),
		batchWriteDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledgerfs_batch_write_duration_milliseconds",
				Help:    "Duration of one async batch write, across its retries, by outcome",
				Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000, 30000},
			},
			[]string{"outcome"}, // "ok", "retry", "exhausted"
		),
		batchChunkCount: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledgerfs_batch_chunk_count",
				Help:    "Number of chunks in one async batch write",
				Buckets: []float64{1, 4, 8, 16, 32, 64, 128},
			},
			[]string{"outcome"},
		),
		fallbacks: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "ledgerfs_writer_fallbacks_total",
				Help: "Total number of uploads that fell back to individual chunk writes",
			},
		),
		retrievalDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledgerfs_retrieval_duration_milliseconds",
				Help:    "Duration of GetFile by outcome",
				Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
			},
			[]string{"outcome"},
		),
		quotaUsage: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ledgerfs_quota_bytes_used",
				Help: "Current daily byte usage per owner",
			},
			[]string{"owner"},
		),
	}
}

func (m *ingestMetrics) ObserveAdmission(duration time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.admissionDuration.WithLabelValues(outcome).Observe(float64(duration.Milliseconds()))
}

func (m *ingestMetrics) ObserveBatchWrite(duration time.Duration, chunkCount int, outcome string) {
	if m == nil {
		return
	}
	m.batchWriteDuration.WithLabelValues(outcome).Observe(float64(duration.Milliseconds()))
	m.batchChunkCount.WithLabelValues(outcome).Observe(float64(chunkCount))
}

func (m *ingestMetrics) ObserveFallback(fileID string) {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

func (m *ingestMetrics) ObserveRetrieval(duration time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.retrievalDuration.WithLabelValues(outcome).Observe(float64(duration.Milliseconds()))
}

func (m *ingestMetrics) RecordQuotaUsage(owner string, bytesUsed int64) {
	if m == nil {
		return
	}
	m.quotaUsage.WithLabelValues(owner).Set(float64(bytesUsed))
}
