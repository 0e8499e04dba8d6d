package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/onchainfs/ledgerfs/pkg/metrics"
)

// cacheMetrics is the Prometheus implementation of metrics.CacheMetrics for
// the badger-backed session store and entity-key cache.
type cacheMetrics struct {
	hitRatio *prometheus.GaugeVec
	misses   *prometheus.CounterVec
	hits     *prometheus.CounterVec
	entries  *prometheus.GaugeVec
}

// NewCacheMetrics creates a new Prometheus-backed CacheMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewCacheMetrics() metrics.CacheMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &cacheMetrics{
		hitRatio: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ledgerfs_cache_hit_ratio",
				Help: "Cache hit ratio (0.0 to 1.0) by cache type",
			},
			[]string{"cache_type"}, // "session", "entitykey"
		),
		misses: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledgerfs_cache_misses_total",
				Help: "Total number of cache misses by cache type",
			},
			[]string{"cache_type"},
		),
		hits: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledgerfs_cache_hits_total",
				Help: "Total number of cache hits by cache type",
			},
			[]string{"cache_type"},
		),
		entries: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ledgerfs_cache_entries",
				Help: "Current number of entries held by cache type",
			},
			[]string{"cache_type"},
		),
	}
}

func (m *cacheMetrics) RecordHitRatio(cacheType string, ratio float64) {
	if m == nil {
		return
	}
	m.hitRatio.WithLabelValues(cacheType).Set(ratio)
}

func (m *cacheMetrics) RecordMiss(cacheType string) {
	if m == nil {
		return
	}
	m.misses.WithLabelValues(cacheType).Inc()
}

func (m *cacheMetrics) RecordHit(cacheType string) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(cacheType).Inc()
}

func (m *cacheMetrics) RecordEntries(cacheType string, count int) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(cacheType).Set(float64(count))
}
