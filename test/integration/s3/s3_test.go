//go:build integration

package s3_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/onchainfs/ledgerfs/pkg/ledger"
	ledgers3 "github.com/onchainfs/ledgerfs/pkg/ledger/backend/s3"
)

// localstackHelper manages the Localstack container backing the S3 ledger
// backend integration tests.
type localstackHelper struct {
	container testcontainers.Container
	endpoint  string
	client    *s3.Client
}

func newLocalstackHelper(t *testing.T) *localstackHelper {
	t.Helper()
	ctx := context.Background()

	if endpoint := os.Getenv("LOCALSTACK_ENDPOINT"); endpoint != "" {
		helper := &localstackHelper{endpoint: endpoint}
		helper.createClient(t)
		return helper
	}

	req := testcontainers.ContainerRequest{
		Image:        "localstack/localstack:3.0",
		ExposedPorts: []string{"4566/tcp"},
		Env: map[string]string{
			"SERVICES":              "s3",
			"DEFAULT_REGION":        "us-east-1",
			"EAGER_SERVICE_LOADING": "1",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4566/tcp"),
			wait.ForHTTP("/_localstack/health").
				WithPort("4566/tcp").
				WithStartupTimeout(60*time.Second),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start localstack container")

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "4566")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("get container port: %v", err)
	}

	helper := &localstackHelper{
		container: container,
		endpoint:  fmt.Sprintf("http://%s:%s", host, port.Port()),
	}
	helper.createClient(t)
	return helper
}

func (lh *localstackHelper) createClient(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	require.NoError(t, err, "load aws config")

	lh.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = &lh.endpoint
		o.UsePathStyle = true
	})
}

func (lh *localstackHelper) createBucket(t *testing.T, bucket string) {
	t.Helper()
	_, err := lh.client.CreateBucket(context.Background(), &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	})
	require.NoError(t, err, "create test bucket")
}

func (lh *localstackHelper) cleanupBucket(bucket string) {
	ctx := context.Background()
	listResp, _ := lh.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	if listResp != nil {
		for _, obj := range listResp.Contents {
			_, _ = lh.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: obj.Key})
		}
	}
	_, _ = lh.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)})
}

func (lh *localstackHelper) cleanup() {
	if lh.container != nil {
		_ = lh.container.Terminate(context.Background())
	}
}

// TestS3Backend_Integration exercises ledger.Backend against a real
// S3-compatible service (Localstack via testcontainers): entity round-trip,
// block-counter advancement, and attribute-tag query filtering.
func TestS3Backend_Integration(t *testing.T) {
	ctx := context.Background()

	helper := newLocalstackHelper(t)
	defer helper.cleanup()

	bucket := fmt.Sprintf("ledgerfs-test-%d", time.Now().UnixNano())
	helper.createBucket(t, bucket)
	defer helper.cleanupBucket(bucket)

	backend := ledgers3.New(helper.client, ledgers3.Config{
		Bucket:        bucket,
		KeyPrefix:     "ledger/",
		BlockDuration: 2 * time.Second,
		Credentialed:  true,
	})

	t.Run("CreateAndGet", func(t *testing.T) {
		key, err := backend.Create(ctx, ledger.Entity{
			Type:        ledger.EntityChunk,
			Payload:     []byte("chunk-bytes"),
			StringAttrs: map[string]string{"file_id": "f-1"},
		})
		require.NoError(t, err)
		require.NotEmpty(t, key)

		entity, err := backend.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("chunk-bytes"), entity.Payload)
		assert.Equal(t, "f-1", entity.StringAttrs["file_id"])
	})

	t.Run("CreateBatchAdvancesBlockOnce", func(t *testing.T) {
		before, err := backend.CurrentBlock(ctx)
		require.NoError(t, err)

		keys, err := backend.CreateBatch(ctx, []ledger.Entity{
			{Type: ledger.EntityChunk, Payload: []byte("a"), StringAttrs: map[string]string{"file_id": "f-2"}},
			{Type: ledger.EntityChunk, Payload: []byte("b"), StringAttrs: map[string]string{"file_id": "f-2"}},
		})
		require.NoError(t, err)
		require.Len(t, keys, 2)

		after, err := backend.CurrentBlock(ctx)
		require.NoError(t, err)
		assert.Equal(t, before+1, after, "batch advances the block counter exactly once")
	})

	t.Run("QueryFiltersByAttribute", func(t *testing.T) {
		_, err := backend.Create(ctx, ledger.Entity{
			Type:        ledger.EntityMetadata,
			Payload:     []byte(`{"owner":"alice"}`),
			StringAttrs: map[string]string{"owner": "alice"},
		})
		require.NoError(t, err)
		_, err = backend.Create(ctx, ledger.Entity{
			Type:        ledger.EntityMetadata,
			Payload:     []byte(`{"owner":"bob"}`),
			StringAttrs: map[string]string{"owner": "bob"},
		})
		require.NoError(t, err)

		page, err := backend.Query(ctx, ledger.AttributeQuery{
			Type:   ledger.EntityMetadata,
			Equals: map[string]string{"owner": "alice"},
		})
		require.NoError(t, err)
		for _, e := range page.Entities {
			assert.Equal(t, "alice", e.StringAttrs["owner"])
		}
	})

	t.Run("HealthCheck", func(t *testing.T) {
		assert.NoError(t, backend.HealthCheck(ctx))
	})
}
