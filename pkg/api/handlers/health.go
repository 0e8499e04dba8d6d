package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/onchainfs/ledgerfs/pkg/registry"
)

// healthCheckTimeout bounds the ledger and cache probes a health request
// triggers, so a stalled backend can't hang the health endpoint itself.
const healthCheckTimeout = 5 * time.Second

// HealthHandler serves GET /health. It always answers 200; component
// degradation is signalled in the response body so orchestrators treat
// reachability and correctness separately.
type HealthHandler struct {
	reg *registry.Registry
}

// NewHealthHandler wires a HealthHandler over reg.
func NewHealthHandler(reg *registry.Registry) *HealthHandler {
	return &HealthHandler{reg: reg}
}

type healthServices struct {
	Ledger registry.HealthStatus `json:"ledger"`
	Cache  registry.HealthStatus `json:"cache"`
}

type healthBody struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Services  healthServices `json:"services"`
}

// Liveness handles GET /health.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	if h.reg == nil {
		writeJSON(w, http.StatusOK, healthBody{Status: "degraded", Timestamp: time.Now().UTC()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	ledgerStatus := h.reg.CheckLedger(ctx)
	cacheStatus := h.reg.CheckCache(ctx)

	status := "healthy"
	if ledgerStatus.Status != "healthy" || cacheStatus.Status != "healthy" {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, healthBody{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Services:  healthServices{Ledger: ledgerStatus, Cache: cacheStatus},
	})
}
