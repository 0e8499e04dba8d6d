// Package session persists upload sessions keyed by idempotency key, backed
// by an embedded badger store with an in-process fallback for when badger is
// unavailable. It is the durable record of an in-flight or completed upload.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/onchainfs/ledgerfs/pkg/apperr"
	"github.com/onchainfs/ledgerfs/pkg/chunk"
	"github.com/onchainfs/ledgerfs/pkg/metrics"
)

// cacheTypeLabel identifies this store's entries to metrics.CacheMetrics,
// distinguishing its hit/miss counters from the entity-key cache's.
const cacheTypeLabel = "session"

// Status is the lifecycle state of an UploadSession.
type Status string

const (
	StatusUploading Status = "UPLOADING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// UploadSession is the durable record of one InitiateUpload call: its
// metadata, which chunk indices have reached the ledger, and its terminal
// outcome.
type UploadSession struct {
	FileID                 string         `json:"file_id"`
	IdempotencyKey         string         `json:"idempotency_key"`
	Metadata               chunk.Metadata `json:"metadata"`
	ChunksReceived         []int          `json:"chunks_received"`
	Completed              bool           `json:"completed"`
	Status                 Status         `json:"status"`
	Error                  string         `json:"error,omitempty"`
	ChunksUploadedToLedger int            `json:"chunks_uploaded_to_ledger"`
	TotalChunks            int            `json:"total_chunks"`
	StartedAt              time.Time      `json:"started_at"`
	LastChunkUploadedAt    *time.Time     `json:"last_chunk_uploaded_at,omitempty"`
}

// MarkChunkReceived records idx as delivered, keeping ChunksReceived sorted
// and deduplicated.
func (s *UploadSession) MarkChunkReceived(idx int) {
	for _, existing := range s.ChunksReceived {
		if existing == idx {
			return
		}
	}
	s.ChunksReceived = append(s.ChunksReceived, idx)
	sort.Ints(s.ChunksReceived)
}

const (
	sessionPrefix = "session:"
	fileIdxPrefix = "fileidx:"

	// TTL is the session store's fixed retention window.
	TTL = 2 * time.Hour
)

// Store is the session store: badger-backed, with primary records and the
// file-id secondary index in separate key namespaces ("session:" vs
// "fileidx:") so the two can never collide, falling back to an in-process
// map for sessions the badger write failed for. The fallback map is
// authoritative only for the sessions it originated; it is not a cache of
// badger's contents.
type Store struct {
	db *badger.DB

	fallbackMu   sync.RWMutex
	fallback     map[string]*UploadSession // idempotency_key -> session
	fallbackByID map[string]string         // file_id -> idempotency_key

	metrics metrics.CacheMetrics
	hits    atomic.Int64
	misses  atomic.Int64
}

// SetMetrics wires m as the store's hit/miss observability sink. A nil m
// disables collection.
func (s *Store) SetMetrics(m metrics.CacheMetrics) {
	s.metrics = m
}

func (s *Store) observeHit() {
	hits := s.hits.Add(1)
	if s.metrics == nil {
		return
	}
	s.metrics.RecordHit(cacheTypeLabel)
	if total := hits + s.misses.Load(); total > 0 {
		s.metrics.RecordHitRatio(cacheTypeLabel, float64(hits)/float64(total))
	}
}

func (s *Store) observeMiss() {
	misses := s.misses.Add(1)
	if s.metrics == nil {
		return
	}
	s.metrics.RecordMiss(cacheTypeLabel)
	if total := s.hits.Load() + misses; total > 0 {
		s.metrics.RecordHitRatio(cacheTypeLabel, float64(s.hits.Load())/float64(total))
	}
}

// Open opens (or creates) a badger store at dbPath.
func Open(dbPath string) (*Store, error) {
	opts := badger.DefaultOptions(dbPath).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session badger store: %w", err)
	}
	return &Store{
		db:           db,
		fallback:     make(map[string]*UploadSession),
		fallbackByID: make(map[string]string),
	}, nil
}

// DB exposes the underlying badger handle so other components that share
// this store's data directory (the entity-key cache, under its own key
// prefix) can open transactions against the same instance instead of a
// second one against the same files.
func (s *Store) DB() *badger.DB {
	return s.db
}

// Close releases the underlying badger store.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put persists session with the given ttl, writing both the primary
// "session:" entry and the secondary "fileidx:" index. On badger failure it
// falls back to the in-process map.
func (s *Store) Put(ctx context.Context, sess *UploadSession, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return apperr.New("session.Put", apperr.ErrValidation).WithFileID(sess.FileID)
	}

	if s.db != nil {
		err := s.db.Update(func(txn *badger.Txn) error {
			e := badger.NewEntry([]byte(sessionPrefix+sess.IdempotencyKey), data).WithTTL(ttl)
			if err := txn.SetEntry(e); err != nil {
				return err
			}
			idxEntry := badger.NewEntry([]byte(fileIdxPrefix+sess.FileID), []byte(sess.IdempotencyKey)).WithTTL(ttl)
			return txn.SetEntry(idxEntry)
		})
		if err == nil {
			return nil
		}
	}

	s.fallbackMu.Lock()
	defer s.fallbackMu.Unlock()
	s.fallback[sess.IdempotencyKey] = sess
	s.fallbackByID[sess.FileID] = sess.IdempotencyKey
	return nil
}

// Get fetches the session for idempotencyKey, checking badger first, then
// the fallback map.
func (s *Store) Get(ctx context.Context, idempotencyKey string) (*UploadSession, error) {
	if s.db != nil {
		if sess, err := s.getFromBadger(sessionPrefix + idempotencyKey); err == nil {
			s.observeHit()
			return sess, nil
		}
	}

	s.fallbackMu.RLock()
	defer s.fallbackMu.RUnlock()
	if sess, ok := s.fallback[idempotencyKey]; ok {
		s.observeHit()
		return sess, nil
	}
	s.observeMiss()
	return nil, apperr.New("session.Get", apperr.ErrSessionNotFound)
}

// GetByFileID resolves file_id to its idempotency key via the secondary
// index, then fetches the session.
func (s *Store) GetByFileID(ctx context.Context, fileID string) (*UploadSession, error) {
	if s.db != nil {
		idemKey, err := s.getStringFromBadger(fileIdxPrefix + fileID)
		if err == nil {
			return s.Get(ctx, idemKey)
		}
	}

	s.fallbackMu.RLock()
	idemKey, ok := s.fallbackByID[fileID]
	s.fallbackMu.RUnlock()
	if !ok {
		s.observeMiss()
		return nil, apperr.New("session.GetByFileID", apperr.ErrSessionNotFound).WithFileID(fileID)
	}
	return s.Get(ctx, idemKey)
}

// ExtendTTL re-writes session's entries with a fresh ttl, used by the writer
// to keep a long-running upload's session alive past the default TTL.
func (s *Store) ExtendTTL(ctx context.Context, idempotencyKey string, ttl time.Duration) error {
	sess, err := s.Get(ctx, idempotencyKey)
	if err != nil {
		return err
	}
	return s.Put(ctx, sess, ttl)
}

// Delete removes both the primary and secondary entries for idempotencyKey.
func (s *Store) Delete(ctx context.Context, idempotencyKey string) error {
	sess, err := s.Get(ctx, idempotencyKey)
	if err != nil {
		return err
	}

	if s.db != nil {
		_ = s.db.Update(func(txn *badger.Txn) error {
			if err := txn.Delete([]byte(sessionPrefix + idempotencyKey)); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
			if err := txn.Delete([]byte(fileIdxPrefix + sess.FileID)); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
			return nil
		})
	}

	s.fallbackMu.Lock()
	delete(s.fallback, idempotencyKey)
	delete(s.fallbackByID, sess.FileID)
	s.fallbackMu.Unlock()
	return nil
}

func (s *Store) getFromBadger(key string) (*UploadSession, error) {
	var sess UploadSession
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sess)
		})
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) getStringFromBadger(key string) (string, error) {
	var val string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			val = string(v)
			return nil
		})
	})
	return val, err
}
