// Package chunk splits a payload into fixed-size, compressed, checksummed
// windows for ledger storage, and reassembles + verifies them on retrieval.
package chunk

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Size is the default chunk window in bytes (32 KiB), overridable via the
// CHUNK_SIZE configuration knob.
const Size = 32 * 1024

// Chunk is one compressed window of a payload, carrying enough metadata to
// verify and reorder it independent of arrival order.
type Chunk struct {
	FileID            string
	ChunkIndex        int
	Bytes             []byte // compressed
	OriginalSize      int
	CompressedSize    int
	ChecksumPlaintext [32]byte
	ExpirationBlock   int64
	LedgerKey         string
}

// Metadata is the whole-file descriptor produced alongside a chunk set.
type Metadata struct {
	FileID                 string
	OriginalFilename       string
	ContentType            string
	FileExtension          string
	TotalSize              int64
	ChunkCount             int
	ChecksumPlaintextWhole [32]byte
	CreatedAt              time.Time
	ExpirationBlock        int64
	BTLDays                int
	Owner                  string
	LedgerKey              string
}

// Split divides payload into ascending-index chunks of at most Size bytes
// each, zstd-compressing every window and recording its plaintext checksum.
// A single-chunk payload still gets chunk_index 0.
func Split(fileID string, payload []byte, filename, contentType string, expirationBlock int64) ([]Chunk, Metadata, error) {
	return SplitN(fileID, payload, filename, contentType, expirationBlock, Size)
}

// SplitN is Split with an explicit window size, for callers whose chunk size
// is configured. A chunkSize <= 0 falls back to Size.
func SplitN(fileID string, payload []byte, filename, contentType string, expirationBlock int64, chunkSize int) ([]Chunk, Metadata, error) {
	if chunkSize <= 0 {
		chunkSize = Size
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("new zstd encoder: %w", err)
	}
	defer enc.Close()

	chunkCount := (len(payload) + chunkSize - 1) / chunkSize

	chunks := make([]Chunk, 0, chunkCount)
	for idx := 0; idx < chunkCount; idx++ {
		start := idx * chunkSize
		end := start + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		window := payload[start:end]

		compressed := enc.EncodeAll(window, nil)

		chunks = append(chunks, Chunk{
			FileID:            fileID,
			ChunkIndex:        idx,
			Bytes:             compressed,
			OriginalSize:      len(window),
			CompressedSize:    len(compressed),
			ChecksumPlaintext: sha256.Sum256(window),
			ExpirationBlock:   expirationBlock,
		})
	}

	meta := Metadata{
		FileID:                 fileID,
		OriginalFilename:       filename,
		ContentType:            contentType,
		FileExtension:          extensionOf(filename),
		TotalSize:              int64(len(payload)),
		ChunkCount:             len(chunks),
		ChecksumPlaintextWhole: sha256.Sum256(payload),
		CreatedAt:              time.Now().UTC(),
		ExpirationBlock:        expirationBlock,
	}

	return chunks, meta, nil
}

// extensionOf returns the lowercased suffix after the last '.', or empty if
// there is none, or if the only '.' is a leading dot (a dotfile, not an
// extension).
func extensionOf(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx <= 0 || idx == len(filename)-1 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}

// Reassemble sorts chunks by ChunkIndex, decompresses each, concatenates the
// plaintext, and verifies it against meta's whole-file checksum. A mismatch
// is a fatal retrieval error, not a retryable one.
func Reassemble(chunks []Chunk, meta Metadata) ([]byte, error) {
	sorted := append([]Chunk{}, chunks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ChunkIndex < sorted[j].ChunkIndex })

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("new zstd decoder: %w", err)
	}
	defer dec.Close()

	var buf bytes.Buffer
	buf.Grow(int(meta.TotalSize))

	for _, c := range sorted {
		plain, err := dec.DecodeAll(c.Bytes, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress chunk %d: %w", c.ChunkIndex, err)
		}
		if sha256.Sum256(plain) != c.ChecksumPlaintext {
			return nil, fmt.Errorf("chunk %d failed plaintext checksum", c.ChunkIndex)
		}
		buf.Write(plain)
	}

	whole := buf.Bytes()
	if sha256.Sum256(whole) != meta.ChecksumPlaintextWhole {
		return nil, fmt.Errorf("whole-file checksum mismatch for %s", meta.FileID)
	}
	return whole, nil
}
