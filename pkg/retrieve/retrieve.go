// Package retrieve implements GetFile: entity-key-cache-first metadata and
// chunk lookup, falling back to an attribute query over the ledger, followed
// by reassembly and whole-file integrity verification.
package retrieve

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onchainfs/ledgerfs/pkg/apperr"
	"github.com/onchainfs/ledgerfs/pkg/chunk"
	"github.com/onchainfs/ledgerfs/pkg/entitykey"
	"github.com/onchainfs/ledgerfs/pkg/ledger"
	"github.com/onchainfs/ledgerfs/pkg/metrics"
)

// Config bounds the retrieval pipeline's parallel chunk fetch.
type Config struct {
	ReadPoolMax int
}

// Pipeline is the retrieval component.
type Pipeline struct {
	cfg  Config
	pool *ledger.Pool
	keys *entitykey.Cache

	metrics metrics.IngestMetrics
}

// New wires a Pipeline over its dependencies.
func New(cfg Config, pool *ledger.Pool, keys *entitykey.Cache) *Pipeline {
	return &Pipeline{cfg: cfg, pool: pool, keys: keys}
}

// SetMetrics wires m as the pipeline's observability sink. A nil m disables
// collection.
func (p *Pipeline) SetMetrics(m metrics.IngestMetrics) {
	p.metrics = m
}

func (p *Pipeline) observeRetrieval(start time.Time, outcome string) {
	if p.metrics != nil {
		p.metrics.ObserveRetrieval(time.Since(start), outcome)
	}
}

// Result is the outcome of a successful GetFile call.
type Result struct {
	Bytes    []byte
	Metadata chunk.Metadata
}

// GetFile fetches file_id's metadata and chunk set (entity-key cache first,
// ledger attribute query otherwise), reassembles the plaintext and verifies
// its whole-file checksum.
func (p *Pipeline) GetFile(ctx context.Context, fileID string) (Result, error) {
	start := time.Now()

	idx, idxErr := p.keys.Get(ctx, fileID)

	meta, err := p.fetchMetadata(ctx, fileID, idx, idxErr)
	if err != nil {
		p.observeRetrieval(start, retrievalOutcome(err))
		return Result{}, err
	}

	chunks, err := p.fetchChunks(ctx, fileID, idx, idxErr, meta)
	if err != nil {
		p.observeRetrieval(start, retrievalOutcome(err))
		return Result{}, err
	}

	if len(chunks) != meta.ChunkCount {
		p.observeRetrieval(start, "incomplete")
		return Result{}, apperr.New("GetFile", apperr.ErrFileIncomplete).WithFileID(fileID)
	}

	bytes, err := chunk.Reassemble(chunks, meta)
	if err != nil {
		p.observeRetrieval(start, "integrity_failed")
		return Result{}, apperr.New("GetFile", apperr.ErrIntegrityFailed).WithFileID(fileID)
	}

	p.observeRetrieval(start, "ok")
	return Result{Bytes: bytes, Metadata: meta}, nil
}

// retrievalOutcome labels a metadata/chunk fetch failure for ObserveRetrieval.
func retrievalOutcome(err error) string {
	switch apperr.CodeOf(err) {
	case apperr.CodeNotFound:
		return "not_found"
	case apperr.CodeIntegrityFailed:
		return "integrity_failed"
	case apperr.CodeLedgerUnavailable, apperr.CodeTimeout, apperr.CodeConnectionError:
		return "ledger_unavailable"
	default:
		return "not_found"
	}
}

func (p *Pipeline) fetchMetadata(ctx context.Context, fileID string, idx entitykey.Index, idxErr error) (chunk.Metadata, error) {
	if idxErr == nil && idx.MetadataKey != "" {
		entity, err := p.getByKey(ctx, idx.MetadataKey)
		if err == nil {
			return decodeMetadataEntity(entity)
		}
	}

	page, err := p.queryWithRead(ctx, ledger.AttributeQuery{
		Type:   ledger.EntityMetadata,
		Equals: map[string]string{"file_id": fileID},
		Limit:  1,
	})
	if err != nil {
		return chunk.Metadata{}, err
	}
	if len(page.Entities) == 0 {
		return chunk.Metadata{}, apperr.New("GetFile", apperr.ErrNotFound).WithFileID(fileID)
	}
	return decodeMetadataEntity(page.Entities[0])
}

func (p *Pipeline) fetchChunks(ctx context.Context, fileID string, idx entitykey.Index, idxErr error, meta chunk.Metadata) ([]chunk.Chunk, error) {
	if idxErr == nil && len(idx.ChunkKeys) > 0 {
		return p.fetchChunksByKey(ctx, fileID, idx.ChunkKeys)
	}
	return p.fetchChunksByQuery(ctx, fileID)
}

// fetchChunksByKey fetches every key in parallel, bounded by ReadPoolMax.
func (p *Pipeline) fetchChunksByKey(ctx context.Context, fileID string, keys []string) ([]chunk.Chunk, error) {
	results := make([]chunk.Chunk, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	if p.cfg.ReadPoolMax > 0 {
		g.SetLimit(p.cfg.ReadPoolMax)
	}

	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			entity, err := p.getByKey(gctx, key)
			if err != nil {
				return err
			}
			c, err := decodeChunkEntity(entity, fileID)
			if err != nil {
				return err
			}
			results[i] = c
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// fetchChunksByQuery drains the ledger's chunk attribute index page by page.
func (p *Pipeline) fetchChunksByQuery(ctx context.Context, fileID string) ([]chunk.Chunk, error) {
	var chunks []chunk.Chunk
	cursor := ""
	for {
		page, err := p.queryWithRead(ctx, ledger.AttributeQuery{
			Type:   ledger.EntityChunk,
			Equals: map[string]string{"file_id": fileID},
			Cursor: cursor,
		})
		if err != nil {
			return nil, err
		}
		for _, e := range page.Entities {
			c, err := decodeChunkEntity(e, fileID)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, c)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	return chunks, nil
}

func (p *Pipeline) getByKey(ctx context.Context, key string) (ledger.Entity, error) {
	var entity ledger.Entity
	err := p.pool.WithRead(ctx, func(ctx context.Context) error {
		e, err := p.pool.Backend().Get(ctx, key)
		if err != nil {
			return err
		}
		entity = e
		return nil
	})
	if err != nil {
		return ledger.Entity{}, apperr.New("GetFile", apperr.ErrLedgerUnavailable).WithBackend("ledger")
	}
	return entity, nil
}

func (p *Pipeline) queryWithRead(ctx context.Context, q ledger.AttributeQuery) (ledger.Page, error) {
	var page ledger.Page
	err := p.pool.WithRead(ctx, func(ctx context.Context) error {
		pg, err := p.pool.Backend().Query(ctx, q)
		if err != nil {
			return err
		}
		page = pg
		return nil
	})
	if err != nil {
		return ledger.Page{}, apperr.New("GetFile", apperr.ErrLedgerUnavailable).WithBackend("ledger")
	}
	return page, nil
}

// metadataWirePayload mirrors the JSON body the ingestion writer persists.
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

func decodeMetadataEntity(e ledger.Entity) (chunk.Metadata, error) {
	var wire metadataWirePayload
	if err := json.Unmarshal(e.Payload, &wire); err != nil {
		return chunk.Metadata{}, apperr.New("GetFile", apperr.ErrIntegrityFailed).WithFileID(wire.FileID)
	}

	checksum, err := decodeChecksum(wire.Checksum)
	if err != nil {
		return chunk.Metadata{}, apperr.New("GetFile", apperr.ErrIntegrityFailed).WithFileID(wire.FileID)
	}

	createdAt, _ := time.Parse(time.RFC3339, wire.CreatedAt)

	return chunk.Metadata{
		FileID:                 wire.FileID,
		OriginalFilename:       wire.OriginalFilename,
		ContentType:            wire.ContentType,
		FileExtension:          wire.FileExtension,
		TotalSize:              wire.TotalSize,
		ChunkCount:             wire.ChunkCount,
		ChecksumPlaintextWhole: checksum,
		CreatedAt:              createdAt,
		ExpirationBlock:        e.ExpirationBlock,
		BTLDays:                wire.BTLDays,
		Owner:                  wire.Owner,
		LedgerKey:              e.Key,
	}, nil
}

func decodeChunkEntity(e ledger.Entity, fileID string) (chunk.Chunk, error) {
	idxStr, ok := e.StringAttrs["chunk_index"]
	if !ok {
		return chunk.Chunk{}, apperr.New("GetFile", apperr.ErrIntegrityFailed).WithFileID(fileID)
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return chunk.Chunk{}, apperr.New("GetFile", apperr.ErrIntegrityFailed).WithFileID(fileID)
	}

	checksum, err := decodeChecksum(e.StringAttrs["checksum"])
	if err != nil {
		return chunk.Chunk{}, apperr.New("GetFile", apperr.ErrIntegrityFailed).WithFileID(fileID)
	}

	return chunk.Chunk{
		FileID:            fileID,
		ChunkIndex:        idx,
		Bytes:             e.Payload,
		OriginalSize:      int(e.NumericAttrs["chunk_size"]),
		CompressedSize:    len(e.Payload),
		ChecksumPlaintext: checksum,
		ExpirationBlock:   e.ExpirationBlock,
		LedgerKey:         e.Key,
	}, nil
}

func decodeChecksum(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(out) {
		return out, errors.New("invalid checksum attribute")
	}
	copy(out[:], b)
	return out, nil
}
