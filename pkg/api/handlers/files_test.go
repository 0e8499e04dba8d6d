package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onchainfs/ledgerfs/pkg/config"
	"github.com/onchainfs/ledgerfs/pkg/registry"
)

// newTestRouter builds a registry over the in-memory backend and mounts the
// file/quota handlers the way the API router does, minus the auth middleware
// (covered by the middleware package's own tests).
func newTestRouter(t *testing.T, mutate func(*config.Config)) (*chi.Mux, *registry.Registry) {
	t.Helper()

	cfg := config.GetDefaultConfig()
	cfg.Session.BadgerPath = filepath.Join(t.TempDir(), "sessions.db")
	if mutate != nil {
		mutate(cfg)
	}

	reg, err := registry.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = reg.Shutdown(ctx)
	})

	files := NewFilesHandler(reg)
	quota := NewQuotaHandler(reg)

	r := chi.NewRouter()
	r.Post("/files", files.Upload)
	r.Get("/files/{id}", files.Download)
	r.Get("/files/{id}/info", files.Info)
	r.Get("/files/{id}/entities", files.Entities)
	r.Get("/files/{id}/status", files.StatusByFileID)
	r.Get("/status/{idempotency_key}", files.StatusByIdempotencyKey)
	r.Get("/quota", quota.Get)
	return r, reg
}

func multipartBody(t *testing.T, filename string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func doUpload(t *testing.T, r http.Handler, filename, idemKey string, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, filename, payload)
	req := httptest.NewRequest(http.MethodPost, "/files", body)
	req.Header.Set("Content-Type", contentType)
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doGet(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func waitForCompleted(t *testing.T, r http.Handler, fileID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w := doGet(r, "/files/"+fileID+"/status")
		if w.Code == http.StatusOK {
			var resp statusResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			if resp.Completed {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("upload %s never completed", fileID)
}

func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body.Error.Code
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	payload := []byte("hello handler world")

	w := doUpload(t, r, "hello.txt", "round-trip-key", payload)
	require.Equal(t, http.StatusOK, w.Code)

	var up uploadResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&up))
	require.NotEmpty(t, up.FileID)

	waitForCompleted(t, r, up.FileID)

	dl := doGet(r, "/files/"+up.FileID)
	require.Equal(t, http.StatusOK, dl.Code)
	assert.Equal(t, payload, dl.Body.Bytes())
	assert.Equal(t, "application/octet-stream", dl.Header().Get("Content-Type"))
	assert.Equal(t, "txt", dl.Header().Get("X-File-Extension"))
	assert.NotEmpty(t, dl.Header().Get("X-Upload-Date"))
}

func TestUploadIsIdempotentAcrossRequests(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	first := doUpload(t, r, "a.txt", "same-key-twice", []byte("first body"))
	require.Equal(t, http.StatusOK, first.Code)
	var firstResp uploadResponse
	require.NoError(t, json.NewDecoder(first.Body).Decode(&firstResp))

	second := doUpload(t, r, "b.txt", "same-key-twice", []byte("different body"))
	require.Equal(t, http.StatusOK, second.Code)
	var secondResp uploadResponse
	require.NoError(t, json.NewDecoder(second.Body).Decode(&secondResp))

	assert.Equal(t, firstResp.FileID, secondResp.FileID)
}

func TestUploadRejectsMalformedIdempotencyKey(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	cases := []struct {
		name string
		key  string
	}{
		{"missing", ""},
		{"too short", "short"},
		{"too long", strings.Repeat("a", 129)},
		{"spaces", "has spaces in it"},
		{"colon", "prefix:suffix-key"},
		{"slash", "bad/key/value-here"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doUpload(t, r, "a.txt", tc.key, []byte("payload"))
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "VALIDATION", decodeErrorCode(t, w))
		})
	}
}

func TestUploadRejectsMissingFilePart(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("owner", "alice"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Idempotency-Key", "no-file-part")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION", decodeErrorCode(t, w))
}

func TestUploadRejectsOversizedPayload(t *testing.T) {
	r, _ := newTestRouter(t, func(cfg *config.Config) {
		cfg.Storage.MaxFileSize = 8
	})

	w := doUpload(t, r, "big.bin", "oversized-key", []byte("this payload is too big"))
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "TOO_LARGE", decodeErrorCode(t, w))
}

func TestUploadRejectsDisallowedContentType(t *testing.T) {
	r, _ := newTestRouter(t, func(cfg *config.Config) {
		cfg.Storage.AllowedContentTypes = []string{"text/"}
	})

	// CreateFormFile marks the part application/octet-stream, which the
	// text-only allowlist rejects.
	w := doUpload(t, r, "blob.bin", "wrong-type-key", []byte("binary"))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNSUPPORTED_TYPE", decodeErrorCode(t, w))
}

func TestDownloadUnknownFileReturnsNotFound(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w := doGet(r, "/files/no-such-file-id")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decodeErrorCode(t, w))
}

func TestStatusUnknownSessionReturnsNotFound(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	byFile := doGet(r, "/files/no-such-file-id/status")
	require.Equal(t, http.StatusNotFound, byFile.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", decodeErrorCode(t, byFile))

	byKey := doGet(r, "/status/no-such-idem-key")
	require.Equal(t, http.StatusNotFound, byKey.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", decodeErrorCode(t, byKey))
}

func TestEntitiesReportsLedgerKeysAfterCompletion(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w := doUpload(t, r, "keys.txt", "entities-key", []byte("entity key test"))
	require.Equal(t, http.StatusOK, w.Code)
	var up uploadResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&up))

	waitForCompleted(t, r, up.FileID)

	ent := doGet(r, "/files/"+up.FileID+"/entities")
	require.Equal(t, http.StatusOK, ent.Code)

	var resp entitiesResponse
	require.NoError(t, json.NewDecoder(ent.Body).Decode(&resp))
	assert.NotEmpty(t, resp.MetadataEntityKey)
	require.Len(t, resp.ChunkEntityKeys, 1)
	assert.Equal(t, 2, resp.TotalEntities)
}

func TestQuotaReportsUsage(t *testing.T) {
	r, reg := newTestRouter(t, nil)

	w := doGet(r, "/quota")
	require.Equal(t, http.StatusOK, w.Code)

	var resp quotaResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, int64(reg.Config.Quota.FreeTierMaxBytes), resp.MaxBytes)
	assert.Equal(t, reg.Config.Quota.FreeTierMaxUploadsPerDay, resp.MaxUploadsPerDay)
	assert.Zero(t, resp.UsedBytes)
}
