// Package entitykey caches file_id -> ledger key lookups so the retrieval
// pipeline can skip a linear ledger attribute scan for hot files. It is a
// write-through observation of successful ledger writes, never the source
// of truth: a miss or timeout always falls back to an attribute query.
package entitykey

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/onchainfs/ledgerfs/pkg/apperr"
	"github.com/onchainfs/ledgerfs/pkg/metrics"
)

// cacheTypeLabel identifies this cache's entries to metrics.CacheMetrics,
// distinguishing its hit/miss counters from the session store's.
const cacheTypeLabel = "entitykey"

const (
	keyPrefix = "entitykey:"

	// TTL is the badger entry's retention window.
	TTL = 7 * 24 * time.Hour

	// GetDeadline bounds how long a Get waits on badger before the caller
	// should treat it as a miss and fall back to an attribute query.
	GetDeadline = 5 * time.Second

	frontCacheSize = 4096
)

// Index is the cached shape of one file_id's ledger layout: the key of its
// metadata entity (if already known) and its chunk keys in chunk_index
// order.
type Index struct {
	MetadataKey string   `json:"metadata_key,omitempty"`
	ChunkKeys   []string `json:"chunk_keys"`
}

// Cache fronts a badger-backed index with an in-process LRU so hot file_ids
// never pay a badger read. It shares its badger instance with the session
// store, distinguished only by key prefix.
type Cache struct {
	db    *badger.DB
	front *lru.Cache[string, Index]

	metrics metrics.CacheMetrics
	hits    atomic.Int64
	misses  atomic.Int64
}

// New wraps db (typically session.Store.DB()) with an LRU front cache.
func New(db *badger.DB) (*Cache, error) {
	front, err := lru.New[string, Index](frontCacheSize)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db, front: front}, nil
}

// SetMetrics wires m as the cache's hit/miss observability sink. A nil m
// disables collection.
func (c *Cache) SetMetrics(m metrics.CacheMetrics) {
	c.metrics = m
}

func (c *Cache) observeHit() {
	hits := c.hits.Add(1)
	if c.metrics == nil {
		return
	}
	c.metrics.RecordHit(cacheTypeLabel)
	c.recordRatioAndEntries(hits)
}

func (c *Cache) observeMiss() {
	c.misses.Add(1)
	if c.metrics == nil {
		return
	}
	c.metrics.RecordMiss(cacheTypeLabel)
	c.recordRatioAndEntries(c.hits.Load())
}

// recordRatioAndEntries reports the cache's running hit ratio and current
// front-LRU size. hits is the caller's latest hit count, read once to avoid
// a second atomic load racing with concurrent observeHit calls.
func (c *Cache) recordRatioAndEntries(hits int64) {
	total := hits + c.misses.Load()
	if total > 0 {
		c.metrics.RecordHitRatio(cacheTypeLabel, float64(hits)/float64(total))
	}
	c.metrics.RecordEntries(cacheTypeLabel, c.front.Len())
}

// Put records idx for fileID with the package TTL, called by the writer on
// completion of a session.
func (c *Cache) Put(ctx context.Context, fileID string, idx Index) error {
	c.front.Add(fileID, idx)

	data, err := json.Marshal(idx)
	if err != nil {
		return apperr.New("entitykey.Put", apperr.ErrValidation).WithFileID(fileID)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(keyPrefix+fileID), data).WithTTL(TTL)
		return txn.SetEntry(e)
	})
}

// Get returns fileID's cached Index. It checks the in-process LRU first,
// then badger with a GetDeadline timeout; a miss or timeout returns an
// error so the caller falls back to an attribute query, which carries no
// latency guarantee.
func (c *Cache) Get(ctx context.Context, fileID string) (Index, error) {
	if idx, ok := c.front.Get(fileID); ok {
		c.observeHit()
		return idx, nil
	}

	ctx, cancel := context.WithTimeout(ctx, GetDeadline)
	defer cancel()

	type result struct {
		idx Index
		err error
	}
	resCh := make(chan result, 1)

	go func() {
		var idx Index
		err := c.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get([]byte(keyPrefix + fileID))
			if err != nil {
				return err
			}
			return item.Value(func(val []byte) error {
				return json.Unmarshal(val, &idx)
			})
		})
		resCh <- result{idx: idx, err: err}
	}()

	select {
	case res := <-resCh:
		if res.err != nil {
			c.observeMiss()
			return Index{}, apperr.New("entitykey.Get", apperr.ErrNotFound).WithFileID(fileID)
		}
		c.front.Add(fileID, res.idx)
		c.observeHit()
		return res.idx, nil
	case <-ctx.Done():
		c.observeMiss()
		return Index{}, apperr.New("entitykey.Get", apperr.ErrTimeout).WithFileID(fileID)
	}
}

// Len reports the current size of the front LRU cache.
func (c *Cache) Len() int {
	return c.front.Len()
}
