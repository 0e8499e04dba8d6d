//go:build integration

package badger_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onchainfs/ledgerfs/pkg/session"
)

// TestSessionStore_Integration exercises the badger-backed session store
// across process restarts, mirroring how the ingestion pipeline and the
// async writer share one on-disk store.
func TestSessionStore_Integration(t *testing.T) {
	ctx := context.Background()

	tempDir, err := os.MkdirTemp("", "ledgerfs-badger-session-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "sessions.db")

	t.Run("CreateStoreAndRoundTrip", func(t *testing.T) {
		store, err := session.Open(dbPath)
		require.NoError(t, err)
		defer store.Close()

		sess := &session.UploadSession{
			FileID:         "f-integration-1",
			IdempotencyKey: "idem-integration-1",
			Status:         session.StatusUploading,
			TotalChunks:    4,
			StartedAt:      time.Now(),
		}
		require.NoError(t, store.Put(ctx, sess, session.TTL))

		got, err := store.Get(ctx, "idem-integration-1")
		require.NoError(t, err)
		assert.Equal(t, "f-integration-1", got.FileID)
	})

	t.Run("PersistsAcrossReopen", func(t *testing.T) {
		{
			store, err := session.Open(dbPath)
			require.NoError(t, err)

			sess := &session.UploadSession{
				FileID:         "f-integration-2",
				IdempotencyKey: "idem-integration-2",
				Status:         session.StatusCompleted,
				TotalChunks:    1,
				StartedAt:      time.Now(),
			}
			require.NoError(t, store.Put(ctx, sess, session.TTL))
			require.NoError(t, store.Close())
		}

		store, err := session.Open(dbPath)
		require.NoError(t, err)
		defer store.Close()

		got, err := store.GetByFileID(ctx, "f-integration-2")
		require.NoError(t, err)
		assert.Equal(t, session.StatusCompleted, got.Status)
	})
}
