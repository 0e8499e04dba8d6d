package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/onchainfs/ledgerfs/pkg/metrics"
)

// backendMetrics is the Prometheus implementation of metrics.BackendMetrics,
// instrumenting calls against whichever ledger.Backend is configured
// (memory or s3).
type backendMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
	batchSize         prometheus.Histogram
}

// NewBackendMetrics creates a new Prometheus-backed BackendMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewBackendMetrics() metrics.BackendMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &backendMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledgerfs_backend_operations_total",
				Help: "Total number of ledger backend operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "ledgerfs_backend_operation_duration_milliseconds",
				Help: "Duration of ledger backend operations in milliseconds",
				Buckets: []float64{
					10, 50, 100, 500, 1000, 5000, 10000, 30000,
				},
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledgerfs_backend_bytes_total",
				Help: "Total payload bytes written or read via ledger backend operations",
			},
			[]string{"operation"},
		),
		batchSize: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ledgerfs_backend_batch_size",
				Help:    "Distribution of CreateBatch entity counts",
				Buckets: []float64{1, 4, 8, 16, 32, 64, 128},
			},
		),
	}
}

func (m *backendMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds() * 1000)
}

func (m *backendMetrics) RecordBytes(operation string, bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}
	m.bytesTransferred.WithLabelValues(operation).Add(float64(bytes))
}

func (m *backendMetrics) RecordBatchSize(size int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(size))
}
