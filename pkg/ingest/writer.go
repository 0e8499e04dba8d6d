package ingest

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onchainfs/ledgerfs/internal/logger"
	"github.com/onchainfs/ledgerfs/internal/telemetry"
	"github.com/onchainfs/ledgerfs/pkg/chunk"
	"github.com/onchainfs/ledgerfs/pkg/entitykey"
	"github.com/onchainfs/ledgerfs/pkg/ledger"
	"github.com/onchainfs/ledgerfs/pkg/metrics"
	"github.com/onchainfs/ledgerfs/pkg/retry"
	"github.com/onchainfs/ledgerfs/pkg/session"
)

// writer is the single-writer actor for one upload session: it owns the
// session's chunks_uploaded_to_ledger and chunks_received bookkeeping for the
// lifetime of the upload. mu serializes mutation of sess and chunkKeys,
// since the fallback path fans individual writes out across an errgroup.
type writer struct {
	pool          *ledger.Pool
	sess          *session.Store
	keys          *entitykey.Cache
	batchSize     int
	ledgerTimeout time.Duration
	metrics       metrics.IngestMetrics

	mu        sync.Mutex
	chunkKeys []string // indexed by chunk_index, populated as writes land
}

// ledgerCtx bounds one ledger call with the writer's per-call deadline,
// independent of any request context.
func (w *writer) ledgerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.ledgerTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.ledgerTimeout)
}

func (w *writer) observeBatchWrite(start time.Time, chunkCount int, outcome string) {
	if w.metrics != nil {
		w.metrics.ObserveBatchWrite(time.Since(start), chunkCount, outcome)
	}
}

func (w *writer) observeFallback(fileID string) {
	if w.metrics != nil {
		w.metrics.ObserveFallback(fileID)
	}
}

// run partitions chunks into ascending-index batches, attempts a combined
// metadata+chunks batch for the first group and chunk-only batches for the
// rest, retries each batch with exponential backoff, and falls back to
// individual writes on retry exhaustion.
func (w *writer) run(ctx context.Context, sess *session.UploadSession, chunks []chunk.Chunk) {
	meta := sess.Metadata
	metaWritten := false
	w.chunkKeys = make([]string, len(chunks))

	groups := partition(chunks, w.batchSize)

	for i, group := range groups {
		var err error
		if i == 0 {
			err = w.writeBatchWithMeta(ctx, sess, &meta, group)
			if err == nil {
				metaWritten = true
			}
		} else {
			err = w.writeChunkBatch(ctx, sess, group)
		}

		if err != nil {
			logger.Warn("batch write exhausted, falling back to individual writes",
				logger.FileID(sess.FileID), logger.Err(err))
			w.observeFallback(sess.FileID)
			if fbErr := w.fallback(ctx, sess, &meta, chunks, metaWritten); fbErr != nil {
				w.fail(ctx, sess, fbErr)
				return
			}
			break
		}
	}

	w.complete(ctx, sess, meta)
}

// writeBatchWithMeta attempts the combined {metadata, chunk[0..batchSize-1]}
// batch under the batch retry policy.
func (w *writer) writeBatchWithMeta(ctx context.Context, sess *session.UploadSession, meta *chunk.Metadata, group []chunk.Chunk) error {
	start := time.Now()
	lastAttempt := 0
	err := retry.Do(ctx, retry.BatchPolicy(), func(attempt int) error {
		lastAttempt = attempt
		entities := make([]ledger.Entity, 0, len(group)+1)
		entities = append(entities, metadataEntity(*meta))
		for _, c := range group {
			entities = append(entities, chunkEntity(c))
		}

		keys, err := w.createBatch(ctx, entities)
		if err != nil {
			return err
		}

		meta.LedgerKey = keys[0]
		w.advance(sess, group, keys[1:])
		w.persist(ctx, sess)
		return nil
	})
	w.observeBatchWrite(start, len(group), batchOutcome(err, lastAttempt))
	return err
}

// batchOutcome labels a completed retry.Do run for ObserveBatchWrite: "ok" on
// first-attempt success, "retry" on a later-attempt success, "exhausted" once
// every attempt failed.
func batchOutcome(err error, lastAttempt int) string {
	if err != nil {
		return "exhausted"
	}
	if lastAttempt > 1 {
		return "retry"
	}
	return "ok"
}

// writeChunkBatch attempts a chunk-only batch under the batch retry policy.
func (w *writer) writeChunkBatch(ctx context.Context, sess *session.UploadSession, group []chunk.Chunk) error {
	start := time.Now()
	lastAttempt := 0
	err := retry.Do(ctx, retry.BatchPolicy(), func(attempt int) error {
		lastAttempt = attempt
		entities := make([]ledger.Entity, len(group))
		for i, c := range group {
			entities[i] = chunkEntity(c)
		}

		keys, err := w.createBatch(ctx, entities)
		if err != nil {
			return err
		}

		w.advance(sess, group, keys)
		w.persist(ctx, sess)
		return nil
	})
	w.observeBatchWrite(start, len(group), batchOutcome(err, lastAttempt))
	return err
}

// createBatch issues one CreateBatch attempt against the ledger. The writer
// drives its own retry schedule, so it acquires a write handle directly
// instead of going through WithWrite, whose built-in retry would multiply
// the writer's attempts.
func (w *writer) createBatch(ctx context.Context, entities []ledger.Entity) ([]string, error) {
	ctx, cancel := w.ledgerCtx(ctx)
	defer cancel()
	ctx, span := telemetry.StartBackendSpan(ctx, "CreateBatch", telemetry.BatchSize(len(entities)))
	defer span.End()

	release, err := w.pool.Acquire(ctx, ledger.Write)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	defer release()

	keys, err := w.pool.Backend().CreateBatch(ctx, entities)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return keys, err
}

// createSingle issues one Create attempt against the ledger, acquiring a
// write handle directly for the same reason as createBatch.
func (w *writer) createSingle(ctx context.Context, entity ledger.Entity) (string, error) {
	ctx, cancel := w.ledgerCtx(ctx)
	defer cancel()
	ctx, span := telemetry.StartBackendSpan(ctx, "Create")
	defer span.End()

	release, err := w.pool.Acquire(ctx, ledger.Write)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return "", err
	}
	defer release()

	key, err := w.pool.Backend().Create(ctx, entity)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return key, err
}

// fallback writes every chunk individually (and the metadata too, if it was
// never written) under the single-write retry policy, bounding fan-out with
// an errgroup capped at the batch size.
func (w *writer) fallback(ctx context.Context, sess *session.UploadSession, meta *chunk.Metadata, chunks []chunk.Chunk, metaWritten bool) error {
	if !metaWritten {
		err := retry.Do(ctx, retry.SinglePolicy(), func(attempt int) error {
			key, err := w.createSingle(ctx, metadataEntity(*meta))
			if err != nil {
				return err
			}
			meta.LedgerKey = key
			return nil
		})
		if err != nil {
			return err
		}
	}

	remaining := w.remainingChunks(sess, chunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.batchSize)

	for _, c := range remaining {
		c := c
		g.Go(func() error {
			return retry.Do(gctx, retry.SinglePolicy(), func(attempt int) error {
				key, err := w.createSingle(gctx, chunkEntity(c))
				if err != nil {
					return err
				}
				w.advance(sess, []chunk.Chunk{c}, []string{key})
				w.persist(gctx, sess)
				return nil
			})
		})
	}

	return g.Wait()
}

func (w *writer) remainingChunks(sess *session.UploadSession, chunks []chunk.Chunk) []chunk.Chunk {
	w.mu.Lock()
	defer w.mu.Unlock()
	received := make(map[int]bool, len(sess.ChunksReceived))
	for _, idx := range sess.ChunksReceived {
		received[idx] = true
	}
	var out []chunk.Chunk
	for _, c := range chunks {
		if !received[c.ChunkIndex] {
			out = append(out, c)
		}
	}
	return out
}

// advance records the ledger keys assigned to group's chunks, advances the
// session's monotonic progress counters, and marks each index received.
func (w *writer) advance(sess *session.UploadSession, group []chunk.Chunk, keys []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, c := range group {
		w.chunkKeys[c.ChunkIndex] = keys[i]
		sess.MarkChunkReceived(c.ChunkIndex)
	}
	sess.ChunksUploadedToLedger += len(group)
	now := time.Now().UTC()
	sess.LastChunkUploadedAt = &now
}

func (w *writer) persist(ctx context.Context, sess *session.UploadSession) {
	if err := w.sess.Put(ctx, sess, session.TTL); err != nil {
		logger.Warn("session progress persist failed", logger.FileID(sess.FileID), logger.Err(err))
	}
}

// complete publishes the entity-key index and marks the session COMPLETED.
func (w *writer) complete(ctx context.Context, sess *session.UploadSession, meta chunk.Metadata) {
	sess.Metadata = meta
	sess.Status = session.StatusCompleted
	sess.Completed = true

	w.mu.Lock()
	chunkKeys := append([]string{}, w.chunkKeys...)
	w.mu.Unlock()

	idx := entitykey.Index{MetadataKey: meta.LedgerKey, ChunkKeys: chunkKeys}
	if err := w.keys.Put(ctx, sess.FileID, idx); err != nil {
		logger.Warn("entity-key publish failed", logger.FileID(sess.FileID), logger.Err(err))
	}

	w.persist(ctx, sess)
	logger.Info("upload completed", logger.FileID(sess.FileID), logger.ChunkCount(sess.TotalChunks))
}

func (w *writer) fail(ctx context.Context, sess *session.UploadSession, cause error) {
	sess.Status = session.StatusFailed
	sess.Error = cause.Error()
	w.persist(ctx, sess)
	logger.Error("upload failed", logger.FileID(sess.FileID), logger.Err(cause))
}

func partition(chunks []chunk.Chunk, size int) [][]chunk.Chunk {
	if size <= 0 {
		size = 16
	}
	var groups [][]chunk.Chunk
	for start := 0; start < len(chunks); start += size {
		end := start + size
		if end > len(chunks) {
			end = len(chunks)
		}
		groups = append(groups, chunks[start:end])
	}
	return groups
}

// metadataWirePayload is the UTF-8 JSON body persisted for a metadata entity.
type metadataWirePayload struct {
	FileID           string `json:"file_id"`
	OriginalFilename string `json:"original_filename"`
	ContentType      string `json:"content_type"`
	FileExtension    string `json:"file_extension"`
	TotalSize        int64  `json:"total_size"`
	ChunkCount       int    `json:"chunk_count"`
	Checksum         string `json:"checksum"`
	CreatedAt        string `json:"created_at"`
	BTLDays          int    `json:"btl_days"`
	Owner            string `json:"owner,omitempty"`
}

func metadataEntity(meta chunk.Metadata) ledger.Entity {
	attrs := map[string]string{
		"type":              string(ledger.EntityMetadata),
		"file_id":           meta.FileID,
		"original_filename": meta.OriginalFilename,
		"content_type":      meta.ContentType,
		"file_extension":    meta.FileExtension,
		"checksum":          hexChecksum(meta.ChecksumPlaintextWhole),
	}
	if meta.Owner != "" {
		attrs["owner"] = meta.Owner
	}

	payload, _ := json.Marshal(metadataWirePayload{
		FileID:           meta.FileID,
		OriginalFilename: meta.OriginalFilename,
		ContentType:      meta.ContentType,
		FileExtension:    meta.FileExtension,
		TotalSize:        meta.TotalSize,
		ChunkCount:       meta.ChunkCount,
		Checksum:         hexChecksum(meta.ChecksumPlaintextWhole),
		CreatedAt:        meta.CreatedAt.Format(time.RFC3339Nano),
		BTLDays:          meta.BTLDays,
		Owner:            meta.Owner,
	})

	return ledger.Entity{
		Type:        ledger.EntityMetadata,
		Payload:     payload,
		StringAttrs: attrs,
		NumericAttrs: map[string]int64{
			"total_size":       meta.TotalSize,
			"chunk_count":      int64(meta.ChunkCount),
			"expiration_block": meta.ExpirationBlock,
			"btl_days":         int64(meta.BTLDays),
		},
		ExpirationBlock: meta.ExpirationBlock,
		CreatedAt:       meta.CreatedAt,
	}
}

func chunkEntity(c chunk.Chunk) ledger.Entity {
	return ledger.Entity{
		Type:    ledger.EntityChunk,
		Payload: c.Bytes,
		StringAttrs: map[string]string{
			"type":        string(ledger.EntityChunk),
			"file_id":     c.FileID,
			"chunk_index": strconv.Itoa(c.ChunkIndex),
			"checksum":    hexChecksum(c.ChecksumPlaintext),
			"created_at":  time.Now().UTC().Format(time.RFC3339Nano),
		},
		NumericAttrs: map[string]int64{
			"chunk_size":       int64(c.OriginalSize),
			"expiration_block": c.ExpirationBlock,
		},
		ExpirationBlock: c.ExpirationBlock,
	}
}

func hexChecksum(sum [32]byte) string {
	return hex.EncodeToString(sum[:])
}
