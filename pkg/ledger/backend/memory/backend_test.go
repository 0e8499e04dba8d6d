package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onchainfs/ledgerfs/pkg/ledger"
)

func TestCreateAssignsKeyAndAdvancesBlock(t *testing.T) {
	b := New()
	ctx := context.Background()

	before, err := b.CurrentBlock(ctx)
	require.NoError(t, err)

	key, err := b.Create(ctx, ledger.Entity{Type: ledger.EntityChunk, Payload: []byte("hi")})
	require.NoError(t, err)
	assert.NotEmpty(t, key)

	after, err := b.CurrentBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)

	got, err := b.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), got.Payload)
}

func TestCreateBatchReturnsKeysInOrder(t *testing.T) {
	b := New()
	ctx := context.Background()

	entities := []ledger.Entity{
		{Type: ledger.EntityChunk, Payload: []byte("a")},
		{Type: ledger.EntityChunk, Payload: []byte("b")},
		{Type: ledger.EntityChunk, Payload: []byte("c")},
	}

	keys, err := b.CreateBatch(ctx, entities)
	require.NoError(t, err)
	require.Len(t, keys, 3)

	for i, key := range keys {
		got, err := b.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, entities[i].Payload, got.Payload)
	}
}

func TestQueryFiltersByTypeAndAttributes(t *testing.T) {
	b := New()
	ctx := context.Background()

	_, err := b.Create(ctx, ledger.Entity{
		Type:        ledger.EntityMetadata,
		StringAttrs: map[string]string{"owner": "alice"},
	})
	require.NoError(t, err)
	_, err = b.Create(ctx, ledger.Entity{
		Type:        ledger.EntityMetadata,
		StringAttrs: map[string]string{"owner": "bob"},
	})
	require.NoError(t, err)
	_, err = b.Create(ctx, ledger.Entity{
		Type:        ledger.EntityChunk,
		StringAttrs: map[string]string{"owner": "alice"},
	})
	require.NoError(t, err)

	page, err := b.Query(ctx, ledger.AttributeQuery{
		Type:   ledger.EntityMetadata,
		Equals: map[string]string{"owner": "alice"},
	})
	require.NoError(t, err)
	require.Len(t, page.Entities, 1)
	assert.Equal(t, "alice", page.Entities[0].StringAttrs["owner"])
	assert.Empty(t, page.NextCursor)
}

func TestQueryPaginates(t *testing.T) {
	b := New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := b.Create(ctx, ledger.Entity{Type: ledger.EntityMetadata, StringAttrs: map[string]string{"owner": "alice"}})
		require.NoError(t, err)
	}

	page, err := b.Query(ctx, ledger.AttributeQuery{Type: ledger.EntityMetadata, Equals: map[string]string{"owner": "alice"}, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Entities, 2)
	assert.NotEmpty(t, page.NextCursor)

	page2, err := b.Query(ctx, ledger.AttributeQuery{Type: ledger.EntityMetadata, Equals: map[string]string{"owner": "alice"}, Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, page2.Entities, 2)
}

func TestCredentialedAlwaysTrue(t *testing.T) {
	b := New()
	assert.True(t, b.Credentialed())
}
