package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	badger "github.com/dgraph-io/badger/v4"

	"github.com/onchainfs/ledgerfs/pkg/entitykey"
	"github.com/onchainfs/ledgerfs/pkg/ingest"
	"github.com/onchainfs/ledgerfs/pkg/ledger"
	ledgermemory "github.com/onchainfs/ledgerfs/pkg/ledger/backend/memory"
	ledgers3 "github.com/onchainfs/ledgerfs/pkg/ledger/backend/s3"
	"github.com/onchainfs/ledgerfs/pkg/quota"
	"github.com/onchainfs/ledgerfs/pkg/retrieve"
	"github.com/onchainfs/ledgerfs/pkg/session"
)

// CreateBackend constructs the ledger.Backend named by cfg.Mode: the
// in-process map backend for "memory", or an S3-backed backend built from
// cfg.S3 for "ledger".
func CreateBackend(ctx context.Context, cfg StorageConfig) (ledger.Backend, error) {
	switch cfg.Mode {
	case "memory":
		return ledgermemory.New(), nil
	case "ledger":
		return createS3Backend(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage mode %q", cfg.Mode)
	}
}

func createS3Backend(ctx context.Context, cfg StorageConfig) (ledger.Backend, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		}
		o.UsePathStyle = cfg.S3.ForcePathStyle
	})

	blockDuration := time.Duration(float64(24*time.Hour) / float64(cfg.BlocksPerDay))

	return ledgers3.New(client, ledgers3.Config{
		Bucket:         cfg.S3.Bucket,
		Region:         cfg.S3.Region,
		Endpoint:       cfg.S3.Endpoint,
		KeyPrefix:      cfg.S3.KeyPrefix,
		MaxRetries:     cfg.S3.MaxRetries,
		ForcePathStyle: cfg.S3.ForcePathStyle,
		BlockDuration:  blockDuration,
		Credentialed:   true,
	}), nil
}

// CreatePool constructs a ledger.Pool over backend using cfg.
func CreatePool(ctx context.Context, backend ledger.Backend, cfg PoolConfig) (*ledger.Pool, error) {
	return ledger.NewPool(ctx, backend, ledger.PoolConfig{
		WriteMax:       cfg.WriteMax,
		ReadMax:        cfg.ReadMax,
		IdleTimeout:    cfg.IdleTimeout,
		HealthInterval: cfg.HealthInterval,
		ConnectTimeout: cfg.ConnectTimeout,
	})
}

// CreateSessionStore opens the badger-backed upload-session store at
// cfg.BadgerPath.
func CreateSessionStore(cfg SessionConfig) (*session.Store, error) {
	return session.Open(cfg.BadgerPath)
}

// CreateEntityKeyCache wires an entitykey.Cache over the session store's
// shared badger instance, rather than opening a second database.
func CreateEntityKeyCache(db *badger.DB) (*entitykey.Cache, error) {
	return entitykey.New(db)
}

// CreateQuotaAccountant wires a quota.Accountant over the session store's
// shared badger instance and pool, using cfg's free-tier limits.
func CreateQuotaAccountant(db *badger.DB, pool *ledger.Pool, cfg QuotaConfig) *quota.Accountant {
	return quota.New(db, pool, quota.Limits{
		MaxBytes:         int64(cfg.FreeTierMaxBytes),
		MaxUploadsPerDay: cfg.FreeTierMaxUploadsPerDay,
	}, cfg.UnlimitedBypassKey)
}

// CreateIngestPipeline wires the ingestion pipeline over its dependencies,
// translating cfg's storage knobs into ingest.Config.
func CreateIngestPipeline(cfg StorageConfig, pool *ledger.Pool, q *quota.Accountant, sess *session.Store, keys *entitykey.Cache, unlimitedBypassKey string) *ingest.Pipeline {
	return ingest.New(ingest.Config{
		MaxFileSize:         int64(cfg.MaxFileSize),
		ChunkSize:           int(cfg.ChunkSize),
		AllowedContentTypes: cfg.AllowedContentTypes,
		DefaultBTLDays:      cfg.DefaultBTLDays,
		BatchSize:           cfg.BatchSize,
		LedgerTimeout:       cfg.LedgerTimeout,
		UnlimitedBypassKey:  unlimitedBypassKey,
	}, pool, q, sess, keys)
}

// CreateRetrievePipeline wires the retrieval pipeline over its dependencies.
func CreateRetrievePipeline(cfg PoolConfig, pool *ledger.Pool, keys *entitykey.Cache) *retrieve.Pipeline {
	return retrieve.New(retrieve.Config{ReadPoolMax: cfg.ReadMax}, pool, keys)
}
