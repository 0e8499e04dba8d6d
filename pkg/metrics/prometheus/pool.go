package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/onchainfs/ledgerfs/pkg/metrics"
)

// poolMetrics is the Prometheus implementation of metrics.PoolMetrics.
type poolMetrics struct {
	acquireWait   *prometheus.HistogramVec
	holdDuration  *prometheus.HistogramVec
	handlesInUse  *prometheus.GaugeVec
	queueDepth    *prometheus.GaugeVec
	evictions     *prometheus.CounterVec
}

// NewPoolMetrics creates a new Prometheus-backed PoolMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewPoolMetrics() metrics.PoolMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	m := &poolMetrics{
		acquireWait: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "ledgerfs_pool_acquire_wait_milliseconds",
				Help: "Time spent waiting to acquire a ledger pool handle",
				Buckets: []float64{0.5, 1, 5, 10, 50, 100, 500, 1000, 5000},
			},
			[]string{"pool"}, // "read", "write"
		),
		holdDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "ledgerfs_pool_hold_duration_milliseconds",
				Help: "Time a caller held a ledger pool handle before releasing it",
				Buckets: []float64{0.5, 1, 5, 10, 50, 100, 500, 1000, 5000},
			},
			[]string{"pool"},
		),
		handlesInUse: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ledgerfs_pool_handles_in_use",
				Help: "Number of ledger pool handles currently checked out",
			},
			[]string{"pool"},
		),
		queueDepth: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ledgerfs_pool_queue_depth",
				Help: "Number of callers waiting for a ledger pool handle",
			},
			[]string{"pool"},
		),
		evictions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledgerfs_pool_evictions_total",
				Help: "Total number of ledger pool handles evicted by reason",
			},
			[]string{"pool", "reason"},
		),
	}
	return m
}

func (m *poolMetrics) ObserveAcquire(poolType string, waited time.Duration) {
	if m == nil {
		return
	}
	m.acquireWait.WithLabelValues(poolType).Observe(float64(waited.Milliseconds()))
}

func (m *poolMetrics) ObserveHold(poolType string, held time.Duration) {
	if m == nil {
		return
	}
	m.holdDuration.WithLabelValues(poolType).Observe(float64(held.Milliseconds()))
}

func (m *poolMetrics) RecordHandlesInUse(poolType string, count int) {
	if m == nil {
		return
	}
	m.handlesInUse.WithLabelValues(poolType).Set(float64(count))
}

func (m *poolMetrics) RecordQueueDepth(poolType string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(poolType).Set(float64(depth))
}

func (m *poolMetrics) RecordEviction(poolType, reason string) {
	if m == nil {
		return
	}
	m.evictions.WithLabelValues(poolType, reason).Inc()
}
