package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onchainfs/ledgerfs/pkg/entitykey"
	"github.com/onchainfs/ledgerfs/pkg/ledger"
	"github.com/onchainfs/ledgerfs/pkg/ledger/backend/memory"
	"github.com/onchainfs/ledgerfs/pkg/quota"
	"github.com/onchainfs/ledgerfs/pkg/session"
)

func newTestPipeline(t *testing.T, cfg Config) (*Pipeline, *session.Store) {
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

	return New(cfg, pool, q, sess, keys), sess
}

func waitForStatus(t *testing.T, sess *session.Store, fileID string, want session.Status) *session.UploadSession {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s, err := sess.GetByFileID(context.Background(), fileID)
		if err == nil && s.Status == want {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session for %s never reached status %s", fileID, want)
	return nil
}

func defaultConfig() Config {
	return Config{
		MaxFileSize:         1 << 20,
		AllowedContentTypes: []string{"text/", "application/"},
		DefaultBTLDays:      7,
		BatchSize:           16,
	}
}

func TestInitiateUploadReturnsFileIDAndCompletesAsync(t *testing.T) {
	p, sess := newTestPipeline(t, defaultConfig())

	fileID, err := p.InitiateUpload(context.Background(), UploadRequest{
		Payload:        []byte("hello world"),
		Filename:       "hello.txt",
		ContentType:    "text/plain",
		IdempotencyKey: "key-1",
		UserID:         "u1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, fileID)

	got := waitForStatus(t, sess, fileID, session.StatusCompleted)
	assert.Equal(t, got.TotalChunks, got.ChunksUploadedToLedger)
	assert.NotEmpty(t, got.Metadata.LedgerKey)
}

func TestInitiateUploadIsIdempotent(t *testing.T) {
	p, _ := newTestPipeline(t, defaultConfig())

	req := UploadRequest{
		Payload:        []byte("payload one"),
		Filename:       "a.txt",
		ContentType:    "text/plain",
		IdempotencyKey: "dup-key",
		UserID:         "u1",
	}
	first, err := p.InitiateUpload(context.Background(), req)
	require.NoError(t, err)

	// Second call, same key, different body: must return the first file_id
	// and create no new session.
	second, err := p.InitiateUpload(context.Background(), UploadRequest{
		Payload:        []byte("a completely different payload"),
		Filename:       "b.txt",
		ContentType:    "text/plain",
		IdempotencyKey: "dup-key",
		UserID:         "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestInitiateUploadRejectsOversizedPayload(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxFileSize = 4
	p, _ := newTestPipeline(t, cfg)

	_, err := p.InitiateUpload(context.Background(), UploadRequest{
		Payload:        []byte("this is too big"),
		Filename:       "big.txt",
		ContentType:    "text/plain",
		IdempotencyKey: "key-big",
		UserID:         "u1",
	})
	require.Error(t, err)
}

func TestInitiateUploadRejectsUnsupportedContentType(t *testing.T) {
	cfg := defaultConfig()
	cfg.AllowedContentTypes = []string{"text/"}
	p, _ := newTestPipeline(t, cfg)

	_, err := p.InitiateUpload(context.Background(), UploadRequest{
		Payload:        []byte("binary blob"),
		Filename:       "blob.exe",
		ContentType:    "application/x-executable",
		IdempotencyKey: "key-3",
		UserID:         "u1",
	})
	require.Error(t, err)
}

func TestInitiateUploadDeniesOverQuota(t *testing.T) {
	p, _ := newTestPipeline(t, defaultConfig())
	p.quota = quota.New(nil, p.pool, quota.Limits{MaxBytes: 5, MaxUploadsPerDay: 1000}, "")

	_, err := p.InitiateUpload(context.Background(), UploadRequest{
		Payload:        []byte("way over quota"),
		Filename:       "f.txt",
		ContentType:    "text/plain",
		IdempotencyKey: "key-quota",
		UserID:         "u1",
	})
	require.Error(t, err)
}

func TestShutdownRefusesNewUploadsAndDrainsWriters(t *testing.T) {
	p, _ := newTestPipeline(t, defaultConfig())

	_, err := p.InitiateUpload(context.Background(), UploadRequest{
		Payload:        []byte("draining"),
		Filename:       "d.txt",
		ContentType:    "text/plain",
		IdempotencyKey: "key-drain",
		UserID:         "u1",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))

	_, err = p.InitiateUpload(context.Background(), UploadRequest{
		Payload:        []byte("after shutdown"),
		Filename:       "e.txt",
		ContentType:    "text/plain",
		IdempotencyKey: "key-after",
		UserID:         "u1",
	})
	require.Error(t, err)
}
