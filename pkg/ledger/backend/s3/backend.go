// Package s3 implements ledger.Backend against an S3-compatible object
// store, used when STORAGE_MODE=ledger. Entities are stored as one object
// per key under KeyPrefix; an entity's string and numeric attributes ride
// along as S3 object tags so Query can filter without a side index.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/onchainfs/ledgerfs/pkg/ledger"
)

// Config holds the connection and naming parameters for the S3 ledger
// backend.
type Config struct {
	Bucket         string
	Region         string
	Endpoint       string
	KeyPrefix      string
	MaxRetries     int
	ForcePathStyle bool

	// BlockDuration is the fixed seconds-per-block this backend reports.
	// Unlike a real chain, the backend does not discover this value from
	// the network; it is configured alongside the bucket.
	BlockDuration time.Duration

	// Credentialed reports whether this backend instance was constructed
	// with write credentials. A read-only deployment sets this false so it
	// never occupies the write pool.
	Credentialed bool
}

// chainState is the backend's synthetic notion of "current block": a small
// JSON object at a fixed key, advanced by one on every Create/CreateBatch.
// It exists because S3 has no native concept of block height; the ledger
// abstraction still needs one to compute expiration_block from a BTL.
type chainState struct {
	CurrentBlock int64 `json:"current_block"`
}

const chainStateKey = "_ledger_state.json"

// Backend is an S3-backed ledger.Backend.
type Backend struct {
	client    *s3.Client
	bucket    string
	keyPrefix string

	blockDuration time.Duration
	credentialed  bool

	// stateMu serializes chain-state read-modify-write. The backend assumes
	// a single writer process per bucket, matching the pool's one-writer
	// composition root.
	stateMu sync.Mutex
}

// New constructs a Backend with an existing S3 client.
func New(client *s3.Client, cfg Config) *Backend {
	return &Backend{
		client:        client,
		bucket:        cfg.Bucket,
		keyPrefix:     cfg.KeyPrefix,
		blockDuration: cfg.BlockDuration,
		credentialed:  cfg.Credentialed,
	}
}

// NewFromConfig builds an S3 client from cfg and returns a ready Backend.
func NewFromConfig(ctx context.Context, cfg Config) (*Backend, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return New(client, cfg), nil
}

func (b *Backend) fullKey(key string) string {
	return b.keyPrefix + key
}

// Create stores one entity under a freshly minted key and advances the
// chain-state block counter by one.
func (b *Backend) Create(ctx context.Context, entity ledger.Entity) (string, error) {
	key := uuid.NewString()
	if err := b.putEntity(ctx, key, entity); err != nil {
		return "", err
	}
	if err := b.advanceBlock(ctx, 1); err != nil {
		return "", err
	}
	return key, nil
}

// CreateBatch stores every entity under its own key and advances the chain
// state once for the whole batch, matching the writer's batch-is-atomic
// contract at the ledger boundary.
func (b *Backend) CreateBatch(ctx context.Context, entities []ledger.Entity) ([]string, error) {
	keys := make([]string, len(entities))
	for i, e := range entities {
		key := uuid.NewString()
		if err := b.putEntity(ctx, key, e); err != nil {
			return nil, fmt.Errorf("create batch entry %d: %w", i, err)
		}
		keys[i] = key
	}
	if err := b.advanceBlock(ctx, 1); err != nil {
		return nil, err
	}
	return keys, nil
}

func (b *Backend) putEntity(ctx context.Context, key string, entity ledger.Entity) error {
	entity.Key = key
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = time.Now()
	}

	payload, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:  aws.String(b.bucket),
		Key:     aws.String(b.fullKey(key)),
		Body:    bytes.NewReader(payload),
		Tagging: aws.String(encodeTags(entity)),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

// encodeTags renders an entity's type and string attributes as a URL-encoded
// tag set, the format s3.PutObjectInput.Tagging expects.
func encodeTags(entity ledger.Entity) string {
	v := url.Values{}
	v.Set("type", string(entity.Type))
	for k, val := range entity.StringAttrs {
		v.Set(k, val)
	}
	return v.Encode()
}

// Get fetches and unmarshals a single entity by key.
func (b *Backend) Get(ctx context.Context, key string) (ledger.Entity, error) {
	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.fullKey(key)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return ledger.Entity{}, fmt.Errorf("s3 ledger backend: key %q not found", key)
		}
		return ledger.Entity{}, fmt.Errorf("s3 get object: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ledger.Entity{}, fmt.Errorf("read s3 object body: %w", err)
	}

	var entity ledger.Entity
	if err := json.Unmarshal(data, &entity); err != nil {
		return ledger.Entity{}, fmt.Errorf("unmarshal entity: %w", err)
	}
	return entity, nil
}

// Query lists objects under the ledger prefix in key order and keeps only
// those whose tags match q.Type and q.Equals. S3 has no server-side
// tag-filter on ListObjectsV2, so this fetches tags per candidate key;
// callers needing high query volume should prefer the entity-key cache in
// front of this backend rather than repeated Query calls.
//
// The cursor is always the last matched entity key: resumption re-lists
// starting after that key via StartAfter, so one cursor format covers both
// the mid-page and page-boundary cases.
func (b *Backend) Query(ctx context.Context, q ledger.AttributeQuery) (ledger.Page, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.keyPrefix),
	}
	if q.Cursor != "" {
		input.StartAfter = aws.String(b.fullKey(q.Cursor))
	}

	paginator := s3.NewListObjectsV2Paginator(b.client, input)

	var matched []ledger.Entity
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return ledger.Page{}, fmt.Errorf("s3 list objects: %w", err)
		}

		for _, obj := range page.Contents {
			if obj.Key == nil || *obj.Key == b.fullKey(chainStateKey) {
				continue
			}
			key := strings.TrimPrefix(*obj.Key, b.keyPrefix)

			tags, err := b.getTags(ctx, key)
			if err != nil {
				return ledger.Page{}, err
			}
			if tags["type"] != string(q.Type) || !matchesAll(tags, q.Equals) {
				continue
			}

			entity, err := b.Get(ctx, key)
			if err != nil {
				return ledger.Page{}, err
			}
			matched = append(matched, entity)

			if len(matched) >= limit {
				return ledger.Page{Entities: matched, NextCursor: key}, nil
			}
		}
	}

	return ledger.Page{Entities: matched}, nil
}

func (b *Backend) getTags(ctx context.Context, key string) (map[string]string, error) {
	resp, err := b.client.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.fullKey(key)),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get object tagging: %w", err)
	}

	tags := make(map[string]string, len(resp.TagSet))
	for _, t := range resp.TagSet {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return tags, nil
}

func matchesAll(tags, equals map[string]string) bool {
	for k, v := range equals {
		if tags[k] != v {
			return false
		}
	}
	return true
}

// BlockDuration returns the backend's configured seconds-per-block.
func (b *Backend) BlockDuration(ctx context.Context) (time.Duration, error) {
	return b.blockDuration, nil
}

// CurrentBlock reads the chain-state object, defaulting to block 0 if it
// does not exist yet.
func (b *Backend) CurrentBlock(ctx context.Context) (int64, error) {
	state, err := b.readChainState(ctx)
	if err != nil {
		return 0, err
	}
	return state.CurrentBlock, nil
}

func (b *Backend) readChainState(ctx context.Context) (chainState, error) {
	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.fullKey(chainStateKey)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return chainState{}, nil
		}
		return chainState{}, fmt.Errorf("s3 get chain state: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return chainState{}, fmt.Errorf("read chain state body: %w", err)
	}

	var state chainState
	if err := json.Unmarshal(data, &state); err != nil {
		return chainState{}, fmt.Errorf("unmarshal chain state: %w", err)
	}
	return state, nil
}

// advanceBlock increments the chain-state counter by delta. It is
// read-modify-write under a local mutex, not a distributed compare-and-swap;
// it assumes a single writer process, matching the registry's one ledger
// pool per deployment.
func (b *Backend) advanceBlock(ctx context.Context, delta int64) error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	state, err := b.readChainState(ctx)
	if err != nil {
		return err
	}
	state.CurrentBlock += delta

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal chain state: %w", err)
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.fullKey(chainStateKey)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3 put chain state: %w", err)
	}
	return nil
}

// HealthCheck verifies the configured bucket is reachable.
func (b *Backend) HealthCheck(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 health check: %w", err)
	}
	return nil
}

// Credentialed reports whether this instance was constructed with write
// credentials.
func (b *Backend) Credentialed() bool {
	return b.credentialed
}

func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "NoSuchKey") ||
		strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "404")
}

var _ ledger.Backend = (*Backend)(nil)
