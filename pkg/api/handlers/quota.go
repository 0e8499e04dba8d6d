package handlers

import (
	"net/http"

	"github.com/onchainfs/ledgerfs/pkg/registry"
)

// QuotaHandler serves GET /quota over a Registry's quota.Accountant.
type QuotaHandler struct {
	reg *registry.Registry
}

// NewQuotaHandler wires a QuotaHandler over reg.
func NewQuotaHandler(reg *registry.Registry) *QuotaHandler {
	return &QuotaHandler{reg: reg}
}

// quotaResponse is GET /quota's success body.
type quotaResponse struct {
	UsedBytes        int64   `json:"used_bytes"`
	MaxBytes         int64   `json:"max_bytes"`
	UploadsToday     int64   `json:"uploads_today"`
	MaxUploadsPerDay int64   `json:"max_uploads_per_day"`
	UsagePercentage  float64 `json:"usage_percentage"`
}

// Get handles GET /quota for the authenticated caller.
func (h *QuotaHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := requesterID(r)

	record, limits, err := h.reg.Quota.Usage(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := quotaResponse{
		UsedBytes:        record.UsedBytes,
		MaxBytes:         limits.MaxBytes,
		UploadsToday:     record.UploadsToday,
		MaxUploadsPerDay: limits.MaxUploadsPerDay,
	}
	if limits.MaxBytes > 0 {
		resp.UsagePercentage = float64(record.UsedBytes) / float64(limits.MaxBytes) * 100
	}

	writeJSON(w, http.StatusOK, resp)
}
