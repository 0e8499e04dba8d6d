package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a minimal in-package Backend stand-in for the pool tests
// below that inspect Pool's unexported fields (p.read, p.mu) and so cannot
// live in the external ledger_test package; using it instead of the memory
// backend package avoids an import cycle (package memory imports package
// ledger for the Backend interface).
type fakeBackend struct {
	blockDuration time.Duration
	credentialed  bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{blockDuration: 10 * time.Second, credentialed: true}
}

func (b *fakeBackend) Create(ctx context.Context, entity Entity) (string, error) {
	return "fake-key", nil
}

func (b *fakeBackend) CreateBatch(ctx context.Context, entities []Entity) ([]string, error) {
	keys := make([]string, len(entities))
	for i := range entities {
		keys[i] = "fake-key"
	}
	return keys, nil
}

func (b *fakeBackend) Get(ctx context.Context, key string) (Entity, error) {
	return Entity{}, nil
}

func (b *fakeBackend) Query(ctx context.Context, q AttributeQuery) (Page, error) {
	return Page{}, nil
}

func (b *fakeBackend) BlockDuration(ctx context.Context) (time.Duration, error) {
	return b.blockDuration, nil
}

func (b *fakeBackend) CurrentBlock(ctx context.Context) (int64, error) {
	return 0, nil
}

func (b *fakeBackend) HealthCheck(ctx context.Context) error {
	return nil
}

func (b *fakeBackend) Credentialed() bool {
	return b.credentialed
}

func newTestPool(t *testing.T, cfg PoolConfig) (*Pool, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend()
	p, err := NewPool(context.Background(), backend, cfg)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p, backend
}

func TestAcquireCreatesUpToMax(t *testing.T) {
	p, _ := newTestPool(t, PoolConfig{ReadMax: 2, WriteMax: 1, HealthInterval: time.Hour, IdleTimeout: time.Hour})

	rel1, err := p.Acquire(context.Background(), Read)
	require.NoError(t, err)
	rel2, err := p.Acquire(context.Background(), Read)
	require.NoError(t, err)

	assert.Equal(t, 2, p.read.created)

	rel1()
	rel2()
}

func TestAcquireBlocksAtMaxAndTimesOut(t *testing.T) {
	p, _ := newTestPool(t, PoolConfig{ReadMax: 1, WriteMax: 1, HealthInterval: time.Hour, IdleTimeout: time.Hour})

	release, err := p.Acquire(context.Background(), Read)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = p.Acquire(ctx, Read)
	require.Error(t, err)
}

func TestReleaseWakesOldestWaiterFIFO(t *testing.T) {
	p, _ := newTestPool(t, PoolConfig{ReadMax: 1, WriteMax: 1, HealthInterval: time.Hour, IdleTimeout: time.Hour})

	release, err := p.Acquire(context.Background(), Read)
	require.NoError(t, err)

	order := make(chan int, 2)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		r, err := p.Acquire(context.Background(), Read)
		if err == nil {
			order <- 1
			r()
		}
	}()
	time.Sleep(10 * time.Millisecond) // ensure waiter 1 queues first

	go func() {
		defer wg.Done()
		r, err := p.Acquire(context.Background(), Read)
		if err == nil {
			order <- 2
			r()
		}
	}()
	time.Sleep(10 * time.Millisecond)

	release()
	wg.Wait()
	close(order)

	first := <-order
	assert.Equal(t, 1, first)
}

func TestCloseWakesWaitersWithShuttingDown(t *testing.T) {
	p, _ := newTestPool(t, PoolConfig{ReadMax: 1, WriteMax: 1, HealthInterval: time.Hour, IdleTimeout: time.Hour})

	release, err := p.Acquire(context.Background(), Read)
	require.NoError(t, err)
	defer release()

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background(), Read)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)

	p.Close()
	err = <-errCh
	require.Error(t, err)
}

func TestHealthLoopEvictsIdleHandles(t *testing.T) {
	p, _ := newTestPool(t, PoolConfig{ReadMax: 2, WriteMax: 1, HealthInterval: 10 * time.Millisecond, IdleTimeout: 15 * time.Millisecond})

	release, err := p.Acquire(context.Background(), Read)
	require.NoError(t, err)
	release()

	assert.Equal(t, 1, p.read.created)
	time.Sleep(60 * time.Millisecond)

	p.mu.Lock()
	created := p.read.created
	p.mu.Unlock()
	assert.Equal(t, 0, created)
}

func TestWithReadSucceedsOnFirstAttempt(t *testing.T) {
	p, _ := newTestPool(t, PoolConfig{ReadMax: 1, WriteMax: 1, HealthInterval: time.Hour, IdleTimeout: time.Hour})

	attempts := 0
	err := p.WithRead(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}
