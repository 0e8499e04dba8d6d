// Package ingest implements the upload admission and asynchronous batched
// write pipeline: a payload is admitted, chunked, and handed a session
// synchronously, while the ledger writes that make it durable happen on a
// detached goroutine the caller never waits on.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/onchainfs/ledgerfs/internal/logger"
	"github.com/onchainfs/ledgerfs/pkg/apperr"
	"github.com/onchainfs/ledgerfs/pkg/chunk"
	"github.com/onchainfs/ledgerfs/pkg/entitykey"
	"github.com/onchainfs/ledgerfs/pkg/ledger"
	"github.com/onchainfs/ledgerfs/pkg/metrics"
	"github.com/onchainfs/ledgerfs/pkg/quota"
	"github.com/onchainfs/ledgerfs/pkg/session"
)

// Config bounds admission and the async writer.
type Config struct {
	MaxFileSize         int64
	ChunkSize           int
	AllowedContentTypes []string
	DefaultBTLDays      int
	BatchSize           int
	LedgerTimeout       time.Duration
	UnlimitedBypassKey  string
}

// UploadRequest is everything InitiateUpload needs from the HTTP boundary,
// already decoded and validated for shape (not yet for admission rules).
type UploadRequest struct {
	Payload        []byte
	Filename       string
	ContentType    string
	Owner          string
	IdempotencyKey string
	BTLDays        int
	UserID         string
	BypassKey      string
}

// Pipeline is the ingestion component: admission plus the detached async
// writer, wired to the session store, entity-key cache, quota accountant and
// ledger pool it depends on.
type Pipeline struct {
	cfg   Config
	pool  *ledger.Pool
	quota *quota.Accountant
	sess  *session.Store
	keys  *entitykey.Cache

	metrics metrics.IngestMetrics

	wg           sync.WaitGroup
	shuttingDown atomic.Bool
}

// New wires a Pipeline over its dependencies.
func New(cfg Config, pool *ledger.Pool, q *quota.Accountant, sess *session.Store, keys *entitykey.Cache) *Pipeline {
	return &Pipeline{cfg: cfg, pool: pool, quota: q, sess: sess, keys: keys}
}

// SetMetrics wires m as the pipeline's observability sink, also handed down
// to the detached writer goroutines it launches. A nil m disables
// collection.
func (p *Pipeline) SetMetrics(m metrics.IngestMetrics) {
	p.metrics = m
}

func (p *Pipeline) observeAdmission(start time.Time, outcome string) {
	if p.metrics != nil {
		p.metrics.ObserveAdmission(time.Since(start), outcome)
	}
}

// InitiateUpload runs the synchronous admission phase and, on success,
// launches the detached async writer before returning. It never waits for
// any ledger write.
func (p *Pipeline) InitiateUpload(ctx context.Context, req UploadRequest) (string, error) {
	start := time.Now()

	if p.shuttingDown.Load() {
		p.observeAdmission(start, "shutting_down")
		return "", apperr.New("InitiateUpload", apperr.ErrShuttingDown)
	}

	if int64(len(req.Payload)) > p.cfg.MaxFileSize {
		p.observeAdmission(start, "too_large")
		return "", apperr.New("InitiateUpload", apperr.ErrTooLarge)
	}
	if len(req.Payload) == 0 {
		p.observeAdmission(start, "empty_payload")
		return "", apperr.New("InitiateUpload", apperr.ErrValidation)
	}
	if !contentTypeAllowed(p.cfg.AllowedContentTypes, req.ContentType) {
		p.observeAdmission(start, "unsupported_type")
		return "", apperr.New("InitiateUpload", apperr.ErrUnsupportedType)
	}

	decision, err := p.quota.Check(ctx, req.UserID, int64(len(req.Payload)), req.BypassKey)
	if err != nil {
		p.observeAdmission(start, "quota_check_failed")
		return "", err
	}
	if !decision.Allowed {
		p.observeAdmission(start, "quota_exceeded")
		return "", apperr.New("InitiateUpload", apperr.ErrQuotaExceeded).WithOwner(req.UserID)
	}

	if existing, err := p.sess.Get(ctx, req.IdempotencyKey); err == nil {
		p.observeAdmission(start, "idempotent_replay")
		return existing.FileID, nil
	}

	fileID := uuid.New().String()

	btlDays := req.BTLDays
	if btlDays <= 0 {
		btlDays = p.cfg.DefaultBTLDays
	}

	expirationBlock, err := p.pool.ExpirationBlock(ctx, float64(btlDays))
	if err != nil {
		p.observeAdmission(start, "ledger_unavailable")
		return "", err
	}

	chunks, meta, err := chunk.SplitN(fileID, req.Payload, req.Filename, req.ContentType, expirationBlock, p.cfg.ChunkSize)
	if err != nil {
		p.observeAdmission(start, "chunk_split_failed")
		return "", apperr.New("InitiateUpload", fmt.Errorf("chunk split: %w", err)).WithFileID(fileID)
	}
	meta.BTLDays = btlDays
	meta.Owner = req.Owner

	sess := &session.UploadSession{
		FileID:         fileID,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       meta,
		Status:         session.StatusUploading,
		TotalChunks:    len(chunks),
		StartedAt:      time.Now().UTC(),
	}
	if err := p.sess.Put(ctx, sess, session.TTL); err != nil {
		p.observeAdmission(start, "session_write_failed")
		return "", err
	}

	if err := p.quota.Commit(ctx, req.UserID, int64(len(req.Payload))); err != nil {
		logger.Warn("quota commit failed during admission", logger.Owner(req.UserID), logger.Err(err))
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		w := &writer{
			pool:          p.pool,
			sess:          p.sess,
			keys:          p.keys,
			batchSize:     p.batchSize(),
			ledgerTimeout: p.cfg.LedgerTimeout,
			metrics:       p.metrics,
		}
		w.run(context.Background(), sess, chunks)
	}()

	p.observeAdmission(start, "accepted")
	return fileID, nil
}

func (p *Pipeline) batchSize() int {
	if p.cfg.BatchSize <= 0 {
		return 16
	}
	return p.cfg.BatchSize
}

// Shutdown marks the pipeline as refusing new uploads and waits (up to ctx's
// deadline) for in-flight writers to finish.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.shuttingDown.Store(true)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func contentTypeAllowed(allowed []string, contentType string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, prefix := range allowed {
		if len(contentType) >= len(prefix) && contentType[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
