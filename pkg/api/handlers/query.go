package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/onchainfs/ledgerfs/pkg/chunk"
	"github.com/onchainfs/ledgerfs/pkg/registry"
)

// QueryHandler serves the attribute-index lookup endpoints over a
// Registry's query.Service.
type QueryHandler struct {
	reg *registry.Registry
}

// NewQueryHandler wires a QueryHandler over reg.
func NewQueryHandler(reg *registry.Registry) *QueryHandler {
	return &QueryHandler{reg: reg}
}

// fileSummary is the per-file shape the listing endpoints return; callers
// get the same descriptor fields as /files/{id}/info without the entity-key
// index.
type fileSummary struct {
	FileID           string `json:"file_id"`
	OriginalFilename string `json:"original_filename"`
	ContentType      string `json:"content_type"`
	FileExtension    string `json:"file_extension"`
	TotalSize        int64  `json:"total_size"`
	Owner            string `json:"owner,omitempty"`
}

func summarize(metas []chunk.Metadata) []fileSummary {
	out := make([]fileSummary, 0, len(metas))
	for _, m := range metas {
		out = append(out, fileSummary{
			FileID:           m.FileID,
			OriginalFilename: m.OriginalFilename,
			ContentType:      m.ContentType,
			FileExtension:    m.FileExtension,
			TotalSize:        m.TotalSize,
			Owner:            m.Owner,
		})
	}
	return out
}

// ByOwner handles GET /files/by-owner/{owner}.
func (h *QueryHandler) ByOwner(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	metas, err := h.reg.Query.ByOwner(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Owner string        `json:"owner"`
		Count int           `json:"count"`
		Files []fileSummary `json:"files"`
	}{Owner: owner, Count: len(metas), Files: summarize(metas)})
}

// ByExtension handles GET /files/by-extension/{ext}.
func (h *QueryHandler) ByExtension(w http.ResponseWriter, r *http.Request) {
	ext := chi.URLParam(r, "ext")
	metas, err := h.reg.Query.ByExtension(r.Context(), ext)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Extension string        `json:"extension"`
		Count     int           `json:"count"`
		Files     []fileSummary `json:"files"`
	}{Extension: ext, Count: len(metas), Files: summarize(metas)})
}

// ByContentType handles GET /files/by-type/*. Content types contain a slash
// ("image/png"), so the match is a chi wildcard rather than a single path
// segment.
func (h *QueryHandler) ByContentType(w http.ResponseWriter, r *http.Request) {
	ct := chi.URLParam(r, "*")
	metas, err := h.reg.Query.ByContentType(r.Context(), ct)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		ContentType string        `json:"content_type"`
		Count       int           `json:"count"`
		Files       []fileSummary `json:"files"`
	}{ContentType: ct, Count: len(metas), Files: summarize(metas)})
}
