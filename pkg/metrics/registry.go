// Package metrics defines the observability interfaces the domain packages
// depend on (ledger pool, badger-backed caches, ingestion/retrieval
// throughput), independent of any particular metrics backend. Passing a nil
// implementation disables collection with zero overhead.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry
	enabled  bool
)

// InitRegistry creates the process-wide Prometheus registry. Call it once
// during startup before constructing any prometheus.* metrics instance; the
// registry.go global is safe for concurrent read access afterward through
// IsEnabled/GetRegistry.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	registry = prometheus.NewRegistry()
	enabled = true
	return registry
}

// IsEnabled returns whether InitRegistry has been called.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// GetRegistry returns the process-wide registry, or nil if InitRegistry was
// never called.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}
