package entitykey

import (
	"context"
	"path/filepath"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	opts := badger.DefaultOptions(filepath.Join(t.TempDir(), "entitykey.db")).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cache, err := New(db)
	require.NoError(t, err)
	return cache
}

func TestPutThenGetHitsFrontCache(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	idx := Index{MetadataKey: "meta-1", ChunkKeys: []string{"c0", "c1", "c2"}}
	require.NoError(t, cache.Put(ctx, "file-1", idx))

	got, err := cache.Get(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, idx, got)
}

func TestGetFallsThroughToBadgerWhenEvictedFromFrontCache(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	idx := Index{ChunkKeys: []string{"c0"}}
	require.NoError(t, cache.Put(ctx, "file-2", idx))

	cache.front.Remove("file-2") // simulate LRU eviction; badger entry survives

	got, err := cache.Get(ctx, "file-2")
	require.NoError(t, err)
	assert.Equal(t, idx, got)
}

func TestGetMissReturnsNotFound(t *testing.T) {
	cache := newTestCache(t)
	_, err := cache.Get(context.Background(), "never-written")
	require.Error(t, err)
}
