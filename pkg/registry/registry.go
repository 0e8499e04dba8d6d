// Package registry is ledgerfs's composition root: one struct that owns
// every long-lived component (ledger pool, session store, entity-key cache,
// quota accountant, ingestion and retrieval pipelines, query service, JWT
// verifier) and wires them together from a loaded Config. Apart from the
// process-wide logger and metrics registry, there are no ambient singletons
// outside of it; cmd/server constructs exactly one
// Registry and threads it through the HTTP server.
package registry

import (
	"context"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/onchainfs/ledgerfs/internal/logger"
	"github.com/onchainfs/ledgerfs/pkg/auth"
	"github.com/onchainfs/ledgerfs/pkg/config"
	"github.com/onchainfs/ledgerfs/pkg/entitykey"
	"github.com/onchainfs/ledgerfs/pkg/ingest"
	"github.com/onchainfs/ledgerfs/pkg/ledger"
	"github.com/onchainfs/ledgerfs/pkg/metrics"
	"github.com/onchainfs/ledgerfs/pkg/metrics/prometheus"
	"github.com/onchainfs/ledgerfs/pkg/query"
	"github.com/onchainfs/ledgerfs/pkg/quota"
	"github.com/onchainfs/ledgerfs/pkg/retrieve"
	"github.com/onchainfs/ledgerfs/pkg/session"
)

// Registry owns every component's lifetime. Its exported fields are the
// public contract handlers are written against; nothing reaches into a
// component's internals except through its own methods.
type Registry struct {
	Config *config.Config

	Backend ledger.Backend
	Pool    *ledger.Pool

	Sessions   *session.Store
	EntityKeys *entitykey.Cache
	Quota      *quota.Accountant

	Ingest   *ingest.Pipeline
	Retrieve *retrieve.Pipeline
	Query    *query.Service

	JWT *auth.JWTService
}

// New builds a Registry from cfg: a ledger.Backend, a pool over it, the
// badger-backed session store and entity-key cache sharing one database, the
// quota accountant, and the ingestion/retrieval/query components wired over
// all of the above, in dependency order: backend, then pool, then stores,
// then the components that depend on them.
func New(ctx context.Context, cfg *config.Config) (*Registry, error) {
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("metrics registry initialized", "port", cfg.Metrics.Port)
	}

	backend, err := config.CreateBackend(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("create ledger backend: %w", err)
	}
	backend = ledger.Instrument(backend, prometheus.NewBackendMetrics())

	pool, err := config.CreatePool(ctx, backend, cfg.Pool)
	if err != nil {
		return nil, fmt.Errorf("create ledger pool: %w", err)
	}
	pool.SetMetrics(prometheus.NewPoolMetrics())

	sess, err := config.CreateSessionStore(cfg.Session)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open session store: %w", err)
	}
	cacheMetrics := prometheus.NewCacheMetrics()
	sess.SetMetrics(cacheMetrics)

	keys, err := config.CreateEntityKeyCache(sess.DB())
	if err != nil {
		pool.Close()
		_ = sess.Close()
		return nil, fmt.Errorf("create entity-key cache: %w", err)
	}
	keys.SetMetrics(cacheMetrics)

	ingestMetrics := prometheus.NewIngestMetrics()

	q := config.CreateQuotaAccountant(sess.DB(), pool, cfg.Quota)
	q.SetMetrics(ingestMetrics)

	ingestPipeline := config.CreateIngestPipeline(cfg.Storage, pool, q, sess, keys, cfg.Quota.UnlimitedBypassKey)
	ingestPipeline.SetMetrics(ingestMetrics)

	retrievePipeline := config.CreateRetrievePipeline(cfg.Pool, pool, keys)
	retrievePipeline.SetMetrics(ingestMetrics)

	queryService := query.New(pool)

	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
	})
	if err != nil {
		pool.Close()
		_ = sess.Close()
		return nil, fmt.Errorf("create jwt service: %w", err)
	}

	return &Registry{
		Config:     cfg,
		Backend:    backend,
		Pool:       pool,
		Sessions:   sess,
		EntityKeys: keys,
		Quota:      q,
		Ingest:     ingestPipeline,
		Retrieve:   retrievePipeline,
		Query:      queryService,
		JWT:        jwtService,
	}, nil
}

// HealthStatus summarizes one dependency's reachability for the /health
// endpoint. Never fails the request; it is informational.
type HealthStatus struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CheckLedger probes the ledger backend through the pool by asking for the
// current block. It never returns an error; a failed probe is reported
// in-body so health checks never flap the process.
func (r *Registry) CheckLedger(ctx context.Context) HealthStatus {
	start := time.Now()
	_, err := r.Pool.CurrentBlock(ctx)
	latency := time.Since(start)
	if err != nil {
		return HealthStatus{Status: "degraded", Latency: latency.String(), Error: err.Error()}
	}
	return HealthStatus{Status: "healthy", Latency: latency.String()}
}

// CheckCache probes the shared badger database with a trivial read of a
// fixed key; a missing key counts as healthy.
func (r *Registry) CheckCache(ctx context.Context) HealthStatus {
	start := time.Now()
	err := r.Sessions.DB().View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("__healthcheck__"))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
	latency := time.Since(start)
	if err != nil {
		return HealthStatus{Status: "degraded", Latency: latency.String(), Error: err.Error()}
	}
	return HealthStatus{Status: "healthy", Latency: latency.String()}
}

// Shutdown releases every component in reverse construction order: the
// ingestion pipeline drains its detached writer goroutines first (so no
// write is in flight against a closing pool), then the pool stops accepting
// new acquires, then the shared badger database closes last.
func (r *Registry) Shutdown(ctx context.Context) error {
	if err := r.Ingest.Shutdown(ctx); err != nil {
		logger.Error("ingest pipeline shutdown error", "error", err)
	}

	r.Pool.Close()

	if err := r.Sessions.Close(); err != nil {
		return fmt.Errorf("close session store: %w", err)
	}

	return nil
}
