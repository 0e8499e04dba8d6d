package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onchainfs/ledgerfs/pkg/ledger"
	"github.com/onchainfs/ledgerfs/pkg/ledger/backend/memory"
)

func TestAcquireWriteSucceedsWhenBackendCredentialed(t *testing.T) {
	backend := memory.New()
	p, err := ledger.NewPool(context.Background(), backend, ledger.PoolConfig{ReadMax: 1, WriteMax: 1, HealthInterval: time.Hour, IdleTimeout: time.Hour})
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Acquire(context.Background(), ledger.Write)
	require.NoError(t, err) // memory backend is always credentialed
}

func TestExpirationBlockComputesFloorOfDaysOverBlockDuration(t *testing.T) {
	backend := memory.New()
	backend.SetCurrentBlock(100)
	p, err := ledger.NewPool(context.Background(), backend, ledger.PoolConfig{ReadMax: 1, WriteMax: 1, HealthInterval: time.Hour, IdleTimeout: time.Hour})
	require.NoError(t, err)
	defer p.Close()

	block, err := p.ExpirationBlock(context.Background(), 1)
	require.NoError(t, err)
	// memory backend reports a 10s block duration; 1 day = 86400s / 10s = 8640 blocks
	assert.Equal(t, int64(100+8640), block)
}
