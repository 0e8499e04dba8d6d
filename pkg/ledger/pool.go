package ledger

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/onchainfs/ledgerfs/internal/telemetry"
	"github.com/onchainfs/ledgerfs/pkg/apperr"
	"github.com/onchainfs/ledgerfs/pkg/metrics"
	"github.com/onchainfs/ledgerfs/pkg/retry"
)

// Kind selects which of the pool's two sub-pools a caller wants a handle
// from. Only Write handles require a credentialed Backend.
type Kind int

const (
	Read Kind = iota
	Write
)

func (k Kind) String() string {
	if k == Write {
		return "write"
	}
	return "read"
}

// PoolConfig bounds the two sub-pools and their lifecycle timers.
type PoolConfig struct {
	WriteMax       int
	ReadMax        int
	IdleTimeout    time.Duration
	HealthInterval time.Duration
	ConnectTimeout time.Duration
}

// handle is one pool-owned occupant of a sub-pool slot. A handle does not
// wrap a distinct connection; it is a concurrency ticket for Backend calls,
// evicted from the idle set once it has sat unused past IdleTimeout.
type handle struct {
	lastUsed   time.Time
	acquiredAt time.Time
}

// waiter is a blocked Acquire call parked on the FIFO queue for its Kind.
type waiter struct {
	ch chan *handle
}

// subpool is the bounded state for one Kind: how many handles exist, which
// are idle, and who is waiting for one.
type subpool struct {
	max     int
	created int
	idle    []*handle
	waiters *list.List // of *waiter
}

// Pool is the bounded, health-checked client pool in front of the ledger:
// two independent sub-pools (read, write) of handles to a shared Backend, a
// FIFO waiter queue per sub-pool, idle eviction, and a cached block-duration
// value used to translate a BTL in days into an absolute expiration block.
type Pool struct {
	backend Backend
	cfg     PoolConfig

	mu      sync.Mutex
	read    subpool
	write   subpool
	closed  bool

	blockDuration time.Duration
	secondsPerDay float64

	metrics metrics.PoolMetrics

	stopHealth chan struct{}
	healthDone chan struct{}
}

// NewPool constructs a Pool over backend and starts its health loop. The
// caller must call Close to stop the health loop and release waiters.
func NewPool(ctx context.Context, backend Backend, cfg PoolConfig) (*Pool, error) {
	p := &Pool{
		backend:    backend,
		cfg:        cfg,
		read:       subpool{max: cfg.ReadMax, waiters: list.New()},
		write:      subpool{max: cfg.WriteMax, waiters: list.New()},
		stopHealth: make(chan struct{}),
		healthDone: make(chan struct{}),
	}

	d, err := backend.BlockDuration(ctx)
	if err != nil {
		return nil, apperr.New("NewPool", apperr.ErrLedgerUnavailable).WithBackend("ledger")
	}
	p.blockDuration = d
	p.secondsPerDay = 86400

	go p.healthLoop()
	return p, nil
}

// SetMetrics wires m as the pool's observability sink. A nil m (the zero
// value, or the nil metrics.PoolMetrics NewPoolMetrics returns when metrics
// are disabled) disables collection; every call site below goes through the
// observe* helpers, which nil-check before dispatching so a bare nil
// interface is never invoked directly.
func (p *Pool) SetMetrics(m metrics.PoolMetrics) {
	p.metrics = m
}

func (p *Pool) observeAcquire(kind Kind, waited time.Duration) {
	if p.metrics != nil {
		p.metrics.ObserveAcquire(kind.String(), waited)
	}
}

func (p *Pool) observeQueueDepth(kind Kind, depth int) {
	if p.metrics != nil {
		p.metrics.RecordQueueDepth(kind.String(), depth)
	}
}

func (p *Pool) observeHandsOffLocked(sp *subpool, kind Kind) {
	if p.metrics != nil {
		p.metrics.RecordHandlesInUse(kind.String(), sp.created-len(sp.idle))
	}
}

func (p *Pool) observeHold(kind Kind, held time.Duration) {
	if p.metrics != nil {
		p.metrics.ObserveHold(kind.String(), held)
	}
}

func (p *Pool) observeEviction(kind Kind, reason string) {
	if p.metrics != nil {
		p.metrics.RecordEviction(kind.String(), reason)
	}
}

// Acquire blocks until a handle of the given Kind is available or ctx is
// done, whichever comes first. The returned release function must be called
// exactly once to return the handle to the pool.
func (p *Pool) Acquire(ctx context.Context, kind Kind) (func(), error) {
	start := time.Now()
	if kind == Write && !p.backend.Credentialed() {
		return nil, apperr.New("Acquire", apperr.ErrLedgerUnavailable).WithBackend("ledger")
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, apperr.New("Acquire", apperr.ErrShuttingDown)
	}

	sp := p.subpoolFor(kind)

	if h := p.tryTakeLocked(sp); h != nil {
		h.acquiredAt = time.Now()
		p.observeHandsOffLocked(sp, kind)
		p.mu.Unlock()
		p.observeAcquire(kind, time.Since(start))
		return p.releaser(kind, h), nil
	}

	if sp.created < sp.max {
		sp.created++
		p.observeHandsOffLocked(sp, kind)
		p.mu.Unlock()
		p.observeAcquire(kind, time.Since(start))
		now := time.Now()
		return p.releaser(kind, &handle{lastUsed: now, acquiredAt: now}), nil
	}

	w := &waiter{ch: make(chan *handle, 1)}
	elem := sp.waiters.PushBack(w)
	p.observeQueueDepth(kind, sp.waiters.Len())
	p.mu.Unlock()

	select {
	case h, ok := <-w.ch:
		if !ok {
			return nil, apperr.New("Acquire", apperr.ErrShuttingDown)
		}
		h.acquiredAt = time.Now()
		p.observeAcquire(kind, time.Since(start))
		return p.releaser(kind, h), nil
	case <-ctx.Done():
		p.mu.Lock()
		sp.waiters.Remove(elem)
		p.observeQueueDepth(kind, sp.waiters.Len())
		p.mu.Unlock()
		// A releaser may have dequeued this waiter and handed it a handle
		// before the deadline fired; return it to the pool so the slot is
		// not lost.
		select {
		case h, ok := <-w.ch:
			if ok {
				p.releaser(kind, h)()
			}
		default:
		}
		return nil, apperr.New("Acquire", apperr.ErrTimeout)
	}
}

func (p *Pool) subpoolFor(kind Kind) *subpool {
	if kind == Write {
		return &p.write
	}
	return &p.read
}

// tryTakeLocked pops the most recently released idle handle, if any. Callers
// must hold p.mu.
func (p *Pool) tryTakeLocked(sp *subpool) *handle {
	n := len(sp.idle)
	if n == 0 {
		return nil
	}
	h := sp.idle[n-1]
	sp.idle = sp.idle[:n-1]
	return h
}

// releaser returns the closure handed back to an Acquire caller: it either
// wakes the oldest FIFO waiter directly with the handle, or parks it idle.
func (p *Pool) releaser(kind Kind, h *handle) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			h.lastUsed = time.Now()
			p.observeHold(kind, h.lastUsed.Sub(h.acquiredAt))
			sp := p.subpoolFor(kind)

			p.mu.Lock()
			defer p.mu.Unlock()

			if front := sp.waiters.Front(); front != nil {
				sp.waiters.Remove(front)
				front.Value.(*waiter).ch <- h
				return
			}
			if p.closed {
				sp.created--
				return
			}
			sp.idle = append(sp.idle, h)
		})
	}
}

// WithRead acquires a read handle, runs op under the pool's read retry
// policy, and releases the handle regardless of outcome.
func (p *Pool) WithRead(ctx context.Context, op func(ctx context.Context) error) error {
	return p.withKind(ctx, Read, retry.SinglePolicy(), op)
}

// WithWrite acquires a write handle, runs op under the pool's batch retry
// policy, and releases the handle regardless of outcome.
func (p *Pool) WithWrite(ctx context.Context, op func(ctx context.Context) error) error {
	return p.withKind(ctx, Write, retry.BatchPolicy(), op)
}

func (p *Pool) withKind(ctx context.Context, kind Kind, policy retry.Policy, op func(ctx context.Context) error) error {
	ctx, span := telemetry.StartPoolSpan(ctx, kind.String())
	defer span.End()

	release, err := p.Acquire(ctx, kind)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}
	defer release()

	err = retry.Do(ctx, policy, func(attempt int) error {
		err := op(ctx)
		if err != nil {
			return apperr.New("WithKind", apperr.ErrConnection).WithAttempt(attempt, policy.MaxAttempts).WithBackend(kind.String())
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return err
}

// Backend exposes the wrapped Backend directly, for callers that need to
// issue a Create/Query themselves inside a WithRead/WithWrite closure rather
// than through a pool-level convenience method.
func (p *Pool) Backend() Backend {
	return p.backend
}

// CurrentBlock proxies to the backend under a read handle.
func (p *Pool) CurrentBlock(ctx context.Context) (int64, error) {
	var block int64
	err := p.WithRead(ctx, func(ctx context.Context) error {
		b, err := p.backend.CurrentBlock(ctx)
		if err != nil {
			return err
		}
		block = b
		return nil
	})
	return block, err
}

// ExpirationBlock computes current_block + floor(btlDays * seconds_per_day /
// block_duration). A BTL in days is only ever meaningful relative to the
// ledger's own notion of time.
func (p *Pool) ExpirationBlock(ctx context.Context, btlDays float64) (int64, error) {
	current, err := p.CurrentBlock(ctx)
	if err != nil {
		return 0, err
	}
	if p.blockDuration <= 0 {
		return current, nil
	}
	blocks := int64((btlDays * p.secondsPerDay) / p.blockDuration.Seconds())
	return current + blocks, nil
}

// healthLoop evicts handles that have sat idle past IdleTimeout, once per
// HealthInterval, until Close stops it.
func (p *Pool) healthLoop() {
	defer close(p.healthDone)
	if p.cfg.HealthInterval <= 0 {
		return
	}
	ticker := time.NewTicker(p.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopHealth:
			return
		case <-ticker.C:
			p.evictIdle(&p.read, Read)
			p.evictIdle(&p.write, Write)
		}
	}
}

func (p *Pool) evictIdle(sp *subpool, kind Kind) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-p.cfg.IdleTimeout)
	kept := sp.idle[:0]
	evicted := 0
	for _, h := range sp.idle {
		if h.lastUsed.Before(cutoff) {
			sp.created--
			evicted++
			continue
		}
		kept = append(kept, h)
	}
	sp.idle = kept
	for i := 0; i < evicted; i++ {
		p.observeEviction(kind, "idle_timeout")
	}
}

// Close stops the health loop and wakes every waiter with ErrShuttingDown.
// It does not wait for handles currently in use to be released.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	drain(&p.read)
	drain(&p.write)
	p.mu.Unlock()

	close(p.stopHealth)
	<-p.healthDone
}

func drain(sp *subpool) {
	for e := sp.waiters.Front(); e != nil; e = e.Next() {
		close(e.Value.(*waiter).ch)
	}
	sp.waiters.Init()
}
