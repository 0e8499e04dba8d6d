// Package quota accounts per-user byte and upload counters against a daily
// limit: an in-memory counter fronts a short-TTL badger cache, which in turn
// fronts an authoritative per-date record on the ledger. Commits to the
// ledger are best-effort; the in-memory counter and cache are already
// consistent by the time Commit returns.
package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/onchainfs/ledgerfs/internal/logger"
	"github.com/onchainfs/ledgerfs/pkg/apperr"
	"github.com/onchainfs/ledgerfs/pkg/ledger"
	"github.com/onchainfs/ledgerfs/pkg/metrics"
)

const (
	cachePrefix = "quota:"

	// CacheTTL is the badger front-cache's retention window.
	CacheTTL = 10 * time.Minute

	// CommitDeadline bounds the best-effort authoritative write.
	CommitDeadline = 30 * time.Second

	// LedgerRecordTTLDays is roughly how long a quota entity lives on the
	// ledger; quota is only ever meaningful for the current date.
	LedgerRecordTTLDays = 1
)

// Record is the per-user, per-date counter the accountant persists.
type Record struct {
	UserID       string `json:"user_address"`
	UsedBytes    int64  `json:"used_bytes"`
	UploadsToday int64  `json:"uploads_today"`
	Date         string `json:"date"` // YYYY-MM-DD
}

// Limits bounds one user's daily allowance.
type Limits struct {
	MaxBytes        int64
	MaxUploadsPerDay int64
}

// Decision is the outcome of a Check call.
type Decision struct {
	Allowed bool
	Reason  string
}

// counter is the in-memory mirror of one user's Record, guarded by its own
// mutex so concurrent requests for different users never contend.
type counter struct {
	mu     sync.Mutex
	record Record
}

// Accountant is the quota component: in-memory counters, a badger front
// cache, and a ledger pool as the authoritative backing store.
type Accountant struct {
	db   *badger.DB
	pool *ledger.Pool

	limits       Limits
	unlimitedKey string

	mu       sync.Mutex
	counters map[string]*counter

	now func() time.Time

	metrics metrics.IngestMetrics
}

// New constructs an Accountant. db is typically session.Store.DB(); pool is
// the ledger client pool used for best-effort authoritative commits.
func New(db *badger.DB, pool *ledger.Pool, limits Limits, unlimitedBypassKey string) *Accountant {
	return &Accountant{
		db:           db,
		pool:         pool,
		limits:       limits,
		unlimitedKey: unlimitedBypassKey,
		counters:     make(map[string]*counter),
		now:          time.Now,
	}
}

// SetMetrics wires m as the accountant's quota-usage observability sink. A
// nil m disables collection.
func (a *Accountant) SetMetrics(m metrics.IngestMetrics) {
	a.metrics = m
}

func (a *Accountant) counterFor(userID string) *counter {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.counters[userID]
	if !ok {
		c = &counter{record: Record{UserID: userID}}
		a.counters[userID] = c
	}
	return c
}

func today(now func() time.Time) string {
	return now().UTC().Format("2006-01-02")
}

// Check consults the in-memory counter (read-through from cache/ledger on
// first touch for this process), rolls it over if the calendar date has
// changed, and reports whether bytes more would fit under the daily limits.
// bypassKey, when non-empty and equal to the configured unlimited bypass
// key, always allows.
func (a *Accountant) Check(ctx context.Context, userID string, bytes int64, bypassKey string) (Decision, error) {
	if bypassKey != "" && a.unlimitedKey != "" && bypassKey == a.unlimitedKey {
		return Decision{Allowed: true}, nil
	}

	c := a.counterFor(userID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := a.loadIfEmptyLocked(ctx, c); err != nil {
		return Decision{}, err
	}
	a.rolloverLocked(c)

	if c.record.UsedBytes+bytes > a.limits.MaxBytes {
		return Decision{Allowed: false, Reason: "byte quota exceeded"}, nil
	}
	if c.record.UploadsToday >= a.limits.MaxUploadsPerDay {
		return Decision{Allowed: false, Reason: "daily upload count exceeded"}, nil
	}
	return Decision{Allowed: true}, nil
}

// Usage reports userID's current counter and configured limits, read-through
// from cache/ledger on first touch exactly like Check.
func (a *Accountant) Usage(ctx context.Context, userID string) (Record, Limits, error) {
	c := a.counterFor(userID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := a.loadIfEmptyLocked(ctx, c); err != nil {
		return Record{}, Limits{}, err
	}
	a.rolloverLocked(c)
	return c.record, a.limits, nil
}

// Commit increments the in-memory counter immediately, writes the cache
// synchronously, and schedules a best-effort authoritative ledger write.
// Commit failure on the ledger side is logged, never surfaced to the
// caller: the in-memory counter and cache are already consistent.
func (a *Accountant) Commit(ctx context.Context, userID string, bytes int64) error {
	c := a.counterFor(userID)
	c.mu.Lock()
	if err := a.loadIfEmptyLocked(ctx, c); err != nil {
		c.mu.Unlock()
		return err
	}
	a.rolloverLocked(c)
	c.record.UsedBytes += bytes
	c.record.UploadsToday++
	record := c.record
	c.mu.Unlock()

	if err := a.writeCache(record); err != nil {
		logger.Warn("quota cache write failed", logger.Err(err))
	}

	if a.metrics != nil {
		a.metrics.RecordQuotaUsage(userID, record.UsedBytes)
	}

	go a.commitToLedger(record)
	return nil
}

func (a *Accountant) commitToLedger(record Record) {
	if a.pool == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), CommitDeadline)
	defer cancel()

	payload, err := json.Marshal(record)
	if err != nil {
		logger.Warn("quota ledger marshal failed", logger.Err(err))
		return
	}

	expiration, err := a.pool.ExpirationBlock(ctx, LedgerRecordTTLDays)
	if err != nil {
		logger.Warn("quota ledger expiration lookup failed", logger.Err(err))
		return
	}

	err = a.pool.WithWrite(ctx, func(ctx context.Context) error {
		_, err := a.pool.Backend().Create(ctx, ledgerEntity(record, payload, expiration))
		return err
	})
	if err != nil {
		logger.Warn("quota ledger commit failed", logger.Owner(record.UserID), logger.Err(err))
	}
}

func ledgerEntity(record Record, payload []byte, expiration int64) ledger.Entity {
	return ledger.Entity{
		Type:    ledger.EntityQuota,
		Payload: payload,
		StringAttrs: map[string]string{
			"type":         string(ledger.EntityQuota),
			"user_address": record.UserID,
			"date":         record.Date,
		},
		NumericAttrs: map[string]int64{
			"used_bytes":    record.UsedBytes,
			"uploads_today": record.UploadsToday,
		},
		ExpirationBlock: expiration,
	}
}

// rolloverLocked resets the counter when the calendar date has changed.
// Caller must hold c.mu.
func (a *Accountant) rolloverLocked(c *counter) {
	current := today(a.now)
	if c.record.Date != current {
		c.record.Date = current
		c.record.UsedBytes = 0
		c.record.UploadsToday = 0
	}
}

// loadIfEmptyLocked populates c.record on first touch for this process:
// badger cache first, then the authoritative ledger record for today's date
// on a cache miss. A miss in both leaves the zero-value record, which
// rolloverLocked then stamps with today's date. Caller must hold c.mu.
func (a *Accountant) loadIfEmptyLocked(ctx context.Context, c *counter) error {
	if c.record.Date != "" {
		return nil
	}

	if a.db != nil {
		var record Record
		err := a.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get([]byte(cachePrefix + c.record.UserID))
			if err != nil {
				return err
			}
			return item.Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
		})
		if err == nil {
			c.record = record
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return apperr.New("quota.load", apperr.ErrLedgerUnavailable).WithOwner(c.record.UserID)
		}
	}

	a.loadFromLedgerLocked(ctx, c)
	return nil
}

// loadFromLedgerLocked reads today's committed quota record back from the
// ledger after a cache miss, so an expired cache entry or a fresh process
// does not silently reset a user's counters. Each Commit appends a new
// entity carrying the cumulative counts, so the record with the highest
// uploads_today is the latest one for the date. Ledger unavailability
// degrades to the zero record rather than failing the caller. Caller must
// hold c.mu.
func (a *Accountant) loadFromLedgerLocked(ctx context.Context, c *counter) {
	if a.pool == nil {
		return
	}

	date := today(a.now)
	var latest *Record
	cursor := ""
	for {
		var page ledger.Page
		err := a.pool.WithRead(ctx, func(ctx context.Context) error {
			p, err := a.pool.Backend().Query(ctx, ledger.AttributeQuery{
				Type:   ledger.EntityQuota,
				Equals: map[string]string{"user_address": c.record.UserID, "date": date},
				Cursor: cursor,
			})
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			logger.Warn("quota ledger read-through failed", logger.Owner(c.record.UserID), logger.Err(err))
			return
		}
		for _, e := range page.Entities {
			var record Record
			if err := json.Unmarshal(e.Payload, &record); err != nil {
				continue
			}
			if latest == nil || record.UploadsToday > latest.UploadsToday {
				r := record
				latest = &r
			}
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	if latest == nil {
		return
	}
	c.record = *latest
	if err := a.writeCache(c.record); err != nil {
		logger.Warn("quota cache write failed", logger.Err(err))
	}
}

func (a *Accountant) writeCache(record Record) error {
	if a.db == nil {
		return nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal quota record: %w", err)
	}
	return a.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(cachePrefix+record.UserID), data).WithTTL(CacheTTL)
		return txn.SetEntry(e)
	})
}
