package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/onchainfs/ledgerfs/internal/logger"
	"github.com/onchainfs/ledgerfs/pkg/apperr"
	"github.com/onchainfs/ledgerfs/pkg/bufpool"
	"github.com/onchainfs/ledgerfs/pkg/ingest"
	"github.com/onchainfs/ledgerfs/pkg/registry"
	"github.com/onchainfs/ledgerfs/pkg/session"
)

// FilesHandler serves the upload, retrieval, and session-status endpoints
// over a Registry's ingestion and retrieval pipelines.
type FilesHandler struct {
	reg *registry.Registry
}

// NewFilesHandler wires a FilesHandler over reg.
func NewFilesHandler(reg *registry.Registry) *FilesHandler {
	return &FilesHandler{reg: reg}
}

// uploadResponse is POST /files's success body.
type uploadResponse struct {
	FileID  string `json:"file_id"`
	Message string `json:"message"`
}

// Upload handles POST /files: a multipart "file" part plus an optional
// "owner" field, admitted against size/content-type/quota rules and handed
// to the async writer before the handler returns.
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, validationError("files.upload"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil || header.Size < 0 {
		writeError(w, validationError("files.upload"))
		return
	}
	defer file.Close()

	// The pipeline retains only compressed copies of the payload, so the
	// staging buffer can go back to the pool once InitiateUpload returns.
	payload := bufpool.Get(int(header.Size))
	defer bufpool.Put(payload)

	if _, err := io.ReadFull(file, payload); err != nil {
		writeError(w, validationError("files.upload"))
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if !idempotencyKeyPattern.MatchString(idempotencyKey) {
		writeError(w, validationError("files.upload"))
		return
	}

	owner := r.FormValue("owner")
	if len(owner) > 100 {
		writeError(w, validationError("files.upload"))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	req := ingest.UploadRequest{
		Payload:        payload,
		Filename:       header.Filename,
		ContentType:    contentType,
		Owner:          owner,
		IdempotencyKey: idempotencyKey,
		BTLDays:        parseBTLDays(r, h.reg.Config.Storage.DefaultBTLDays),
		UserID:         requesterID(r),
		BypassKey:      bypassKeyHeader(r),
	}

	fileID, err := h.reg.Ingest.InitiateUpload(r.Context(), req)
	if err != nil {
		logger.WarnCtx(r.Context(), "upload rejected", logger.Err(err), logger.Owner(owner))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{FileID: fileID, Message: "upload accepted"})
}

// Download handles GET /files/{id}: streams the reassembled, verified file
// bytes back to the caller.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "id")

	result, err := h.reg.Retrieve.GetFile(r.Context(), fileID)
	if err != nil {
		writeError(w, err)
		return
	}

	meta := result.Metadata
	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Bytes)))
	w.Header().Set("X-File-Extension", meta.FileExtension)
	w.Header().Set("X-Upload-Date", meta.CreatedAt.UTC().Format(time.RFC3339))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Bytes)
}

// fileInfoResponse is GET /files/{id}/info's success body.
type fileInfoResponse struct {
	FileID                  string    `json:"file_id"`
	OriginalFilename        string    `json:"original_filename"`
	ContentType             string    `json:"content_type"`
	FileExtension           string    `json:"file_extension"`
	TotalSize               int64     `json:"total_size"`
	ChunkCount              int       `json:"chunk_count"`
	CreatedAt               time.Time `json:"created_at"`
	ExpiresAt               time.Time `json:"expires_at"`
	Owner                   string    `json:"owner,omitempty"`
	MetadataEntityKey       string    `json:"metadata_entity_key"`
	ChunkEntityKeys         []string  `json:"chunk_entity_keys"`
	TotalBlockchainEntities int       `json:"total_blockchain_entities"`
}

// Info handles GET /files/{id}/info: the whole-file descriptor plus its
// ledger entity keys, without transferring the payload itself.
func (h *FilesHandler) Info(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "id")

	idx, idxErr := h.reg.EntityKeys.Get(r.Context(), fileID)

	sess, err := h.reg.Sessions.GetByFileID(r.Context(), fileID)
	if err != nil {
		writeError(w, apperr.New("files.info", apperr.ErrNotFound).WithFileID(fileID))
		return
	}

	meta := sess.Metadata
	resp := fileInfoResponse{
		FileID:           meta.FileID,
		OriginalFilename: meta.OriginalFilename,
		ContentType:      meta.ContentType,
		FileExtension:    meta.FileExtension,
		TotalSize:        meta.TotalSize,
		ChunkCount:       meta.ChunkCount,
		CreatedAt:        meta.CreatedAt,
		ExpiresAt:        estimateExpiresAt(meta.CreatedAt, meta.BTLDays),
		Owner:            meta.Owner,
	}

	if idxErr == nil {
		resp.MetadataEntityKey = idx.MetadataKey
		resp.ChunkEntityKeys = idx.ChunkKeys
		resp.TotalBlockchainEntities = len(idx.ChunkKeys)
		if idx.MetadataKey != "" {
			resp.TotalBlockchainEntities++
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// entitiesResponse is GET /files/{id}/entities's success body.
type entitiesResponse struct {
	MetadataEntityKey string   `json:"metadata_entity_key,omitempty"`
	ChunkEntityKeys   []string `json:"chunk_entity_keys"`
	TotalEntities     int      `json:"total_entities"`
}

// Entities handles GET /files/{id}/entities: the ledger key index alone.
func (h *FilesHandler) Entities(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "id")

	idx, err := h.reg.EntityKeys.Get(r.Context(), fileID)
	if err != nil {
		writeError(w, apperr.New("files.entities", apperr.ErrNotFound).WithFileID(fileID))
		return
	}

	total := len(idx.ChunkKeys)
	if idx.MetadataKey != "" {
		total++
	}

	writeJSON(w, http.StatusOK, entitiesResponse{
		MetadataEntityKey: idx.MetadataKey,
		ChunkEntityKeys:   idx.ChunkKeys,
		TotalEntities:     total,
	})
}

// StatusByFileID handles GET /files/{id}/status.
func (h *FilesHandler) StatusByFileID(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "id")
	sess, err := h.reg.Sessions.GetByFileID(r.Context(), fileID)
	if err != nil {
		writeError(w, apperr.New("files.status", apperr.ErrSessionNotFound).WithFileID(fileID))
		return
	}
	writeJSON(w, http.StatusOK, sessionStatusResponse(sess))
}

// StatusByIdempotencyKey handles GET /status/{idempotency_key}.
func (h *FilesHandler) StatusByIdempotencyKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "idempotency_key")
	sess, err := h.reg.Sessions.Get(r.Context(), key)
	if err != nil {
		writeError(w, apperr.New("files.status", apperr.ErrSessionNotFound))
		return
	}
	writeJSON(w, http.StatusOK, sessionStatusResponse(sess))
}

// progressView is the Progress object named by the status responses.
type progressView struct {
	ChunksUploaded            int        `json:"chunks_uploaded"`
	TotalChunks               int        `json:"total_chunks"`
	Percentage                float64    `json:"percentage"`
	RemainingChunks           int        `json:"remaining_chunks"`
	ElapsedSeconds            float64    `json:"elapsed_seconds"`
	EstimatedRemainingSeconds *float64   `json:"estimated_remaining_seconds,omitempty"`
	LastChunkUploadedAt       *time.Time `json:"last_chunk_uploaded_at,omitempty"`
}

// statusResponse is the shape both status endpoints return.
type statusResponse struct {
	FileID    string        `json:"file_id"`
	Status    string        `json:"status"`
	Completed bool          `json:"completed"`
	Progress  progressView  `json:"progress"`
	Error     string        `json:"error,omitempty"`
}

func sessionStatusResponse(sess *session.UploadSession) statusResponse {
	elapsed := time.Since(sess.StartedAt).Seconds()

	progress := progressView{
		ChunksUploaded:      sess.ChunksUploadedToLedger,
		TotalChunks:         sess.TotalChunks,
		RemainingChunks:     sess.TotalChunks - sess.ChunksUploadedToLedger,
		ElapsedSeconds:      elapsed,
		LastChunkUploadedAt: sess.LastChunkUploadedAt,
	}
	if sess.TotalChunks > 0 {
		progress.Percentage = float64(sess.ChunksUploadedToLedger) / float64(sess.TotalChunks) * 100
	}
	if sess.ChunksUploadedToLedger > 0 && progress.RemainingChunks > 0 {
		avgPerChunk := elapsed / float64(sess.ChunksUploadedToLedger)
		estimate := avgPerChunk * float64(progress.RemainingChunks)
		progress.EstimatedRemainingSeconds = &estimate
	}

	return statusResponse{
		FileID:    sess.FileID,
		Status:    string(sess.Status),
		Completed: sess.Completed,
		Progress:  progress,
		Error:     sess.Error,
	}
}

func estimateExpiresAt(createdAt time.Time, btlDays int) time.Time {
	return createdAt.AddDate(0, 0, btlDays)
}
