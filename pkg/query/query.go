// Package query implements the read-only listing endpoints over the
// ledger's metadata attribute index: by owner, by file extension, by content
// type. In STORAGE_MODE=memory the in-process memory backend's map doubles
// as the index; in ledger mode all three queries drain the backend's
// attribute-indexed pages.
package query

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/onchainfs/ledgerfs/pkg/apperr"
	"github.com/onchainfs/ledgerfs/pkg/chunk"
	"github.com/onchainfs/ledgerfs/pkg/ledger"
)

// Service is the query component: a thin read-only layer over the ledger
// pool's attribute index.
type Service struct {
	pool *ledger.Pool
}

// New wires a Service over pool.
func New(pool *ledger.Pool) *Service {
	return &Service{pool: pool}
}

// ByOwner lists every metadata entity whose owner attribute equals owner,
// sorted by created_at descending.
func (s *Service) ByOwner(ctx context.Context, owner string) ([]chunk.Metadata, error) {
	results, err := s.drain(ctx, map[string]string{"owner": owner})
	if err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results, nil
}

// ByExtension lists every metadata entity whose file_extension attribute
// equals ext. Order is unspecified.
func (s *Service) ByExtension(ctx context.Context, ext string) ([]chunk.Metadata, error) {
	return s.drain(ctx, map[string]string{"file_extension": ext})
}

// ByContentType lists every metadata entity whose content_type attribute
// equals contentType. Order is unspecified.
func (s *Service) ByContentType(ctx context.Context, contentType string) ([]chunk.Metadata, error) {
	return s.drain(ctx, map[string]string{"content_type": contentType})
}

// drain pages through every metadata entity matching equals, decoding each
// into a chunk.Metadata.
func (s *Service) drain(ctx context.Context, equals map[string]string) ([]chunk.Metadata, error) {
	var out []chunk.Metadata
	cursor := ""
	for {
		var page ledger.Page
		err := s.pool.WithRead(ctx, func(ctx context.Context) error {
			p, err := s.pool.Backend().Query(ctx, ledger.AttributeQuery{
				Type:   ledger.EntityMetadata,
				Equals: equals,
				Cursor: cursor,
			})
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, apperr.New("Query", apperr.ErrLedgerUnavailable).WithBackend("ledger")
		}

		for _, e := range page.Entities {
			meta, err := decodeMetadata(e)
			if err != nil {
				continue
			}
			out = append(out, meta)
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	return out, nil
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

// decodeMetadata decodes a metadata entity's JSON payload into a
// chunk.Metadata, skipping the whole-file checksum when malformed rather
// than failing the listing outright.
func decodeMetadata(e ledger.Entity) (chunk.Metadata, error) {
	var wire metadataWirePayload
	if err := json.Unmarshal(e.Payload, &wire); err != nil {
		return chunk.Metadata{}, err
	}

	var checksum [32]byte
	if b, err := hex.DecodeString(wire.Checksum); err == nil && len(b) == len(checksum) {
		copy(checksum[:], b)
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
