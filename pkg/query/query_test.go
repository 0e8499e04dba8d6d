package query

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onchainfs/ledgerfs/pkg/entitykey"
	"github.com/onchainfs/ledgerfs/pkg/ingest"
	"github.com/onchainfs/ledgerfs/pkg/ledger"
	"github.com/onchainfs/ledgerfs/pkg/ledger/backend/memory"
	"github.com/onchainfs/ledgerfs/pkg/quota"
	"github.com/onchainfs/ledgerfs/pkg/session"
)

func newHarness(t *testing.T) (*Service, *ingest.Pipeline, *session.Store) {
	t.Helper()

	backend := memory.New()
	pool, err := ledger.NewPool(context.Background(), backend, ledger.PoolConfig{
		ReadMax: 4, WriteMax: 4, HealthInterval: time.Hour, IdleTimeout: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	sess, err := session.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	keys, err := entitykey.New(sess.DB())
	require.NoError(t, err)

	q := quota.New(sess.DB(), pool, quota.Limits{MaxBytes: 1 << 30, MaxUploadsPerDay: 1000}, "")

	ing := ingest.New(ingest.Config{
		MaxFileSize:    1 << 20,
		DefaultBTLDays: 7,
		BatchSize:      16,
	}, pool, q, sess, keys)

	return New(pool), ing, sess
}

func uploadAndWait(t *testing.T, ing *ingest.Pipeline, sess *session.Store, req ingest.UploadRequest) string {
	t.Helper()
	fileID, err := ing.InitiateUpload(context.Background(), req)
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s, err := sess.GetByFileID(context.Background(), fileID)
		if err == nil && s.Status == session.StatusCompleted {
			return fileID
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("upload for %s never completed", fileID)
	return ""
}

func TestByOwnerSortsByCreatedAtDescending(t *testing.T) {
	svc, ing, sess := newHarness(t)

	first := uploadAndWait(t, ing, sess, ingest.UploadRequest{
		Payload: []byte("first"), Filename: "a.txt", ContentType: "text/plain",
		Owner: "alice", IdempotencyKey: "q-1", UserID: "u1",
	})
	time.Sleep(10 * time.Millisecond)
	second := uploadAndWait(t, ing, sess, ingest.UploadRequest{
		Payload: []byte("second"), Filename: "b.txt", ContentType: "text/plain",
		Owner: "alice", IdempotencyKey: "q-2", UserID: "u1",
	})

	metas, err := svc.ByOwner(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, second, metas[0].FileID)
	assert.Equal(t, first, metas[1].FileID)
}

func TestByExtensionFiltersAcrossOwners(t *testing.T) {
	svc, ing, sess := newHarness(t)

	uploadAndWait(t, ing, sess, ingest.UploadRequest{
		Payload: []byte("doc"), Filename: "notes.txt", ContentType: "text/plain",
		Owner: "alice", IdempotencyKey: "ext-1", UserID: "u1",
	})
	uploadAndWait(t, ing, sess, ingest.UploadRequest{
		Payload: []byte("img"), Filename: "photo.png", ContentType: "image/png",
		Owner: "bob", IdempotencyKey: "ext-2", UserID: "u2",
	})

	metas, err := svc.ByExtension(context.Background(), "txt")
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "notes.txt", metas[0].OriginalFilename)
}

func TestByContentTypeFiltersExactMatch(t *testing.T) {
	svc, ing, sess := newHarness(t)

	uploadAndWait(t, ing, sess, ingest.UploadRequest{
		Payload: []byte("doc"), Filename: "notes.txt", ContentType: "text/plain",
		Owner: "alice", IdempotencyKey: "ct-1", UserID: "u1",
	})

	metas, err := svc.ByContentType(context.Background(), "text/plain")
	require.NoError(t, err)
	require.Len(t, metas, 1)

	none, err := svc.ByContentType(context.Background(), "image/png")
	require.NoError(t, err)
	assert.Empty(t, none)
}
