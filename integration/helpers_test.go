//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/osio-dev/osio"
	"github.com/osio-dev/osio/store"
)

func skipWithoutDocker(tb testing.TB) {
	tb.Helper()
	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}
}

// --- Localstack Container Setup ---

var (
	localstackOnce     sync.Once
	localstackEndpoint string
	localstackErr      error
)

// getLocalstack returns the shared Localstack endpoint, starting the
// container if needed. LOCALSTACK_ENDPOINT overrides the container for
// runs against an external instance. The container is shared across all
// tests and reaped by testcontainers when the process exits.
func getLocalstack(tb testing.TB) string {
	tb.Helper()
	skipWithoutDocker(tb)

	localstackOnce.Do(func() {
		if endpoint := os.Getenv("LOCALSTACK_ENDPOINT"); endpoint != "" {
			localstackEndpoint = endpoint
			return
		}
		localstackEndpoint, localstackErr = startLocalstackContainer(context.Background())
	})

	if localstackErr != nil {
		tb.Fatalf("start localstack container: %v", localstackErr)
	}
	return localstackEndpoint
}

func startLocalstackContainer(ctx context.Context) (string, error) {
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
	if err != nil {
		return "", fmt.Errorf("start localstack container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve localstack host: %w", err)
	}
	port, err := container.MappedPort(ctx, "4566")
	if err != nil {
		return "", fmt.Errorf("resolve localstack port: %w", err)
	}
	return fmt.Sprintf("http://%s:%s", host, port.Port()), nil
}

// newS3Client creates an S3 client configured for Localstack: static
// credentials and path-style addressing.
func newS3Client(tb testing.TB, endpoint string) *awss3.Client {
	tb.Helper()

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	require.NoError(tb, err, "load AWS config")

	return awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
}

func createBucket(tb testing.TB, client *awss3.Client, name string) {
	tb.Helper()
	_, err := client.CreateBucket(context.Background(), &awss3.CreateBucketInput{
		Bucket: aws.String(name),
	})
	require.NoError(tb, err, "create bucket %s", name)
}

// --- Registry Container Setup ---

var (
	registryOnce sync.Once
	registryAddr string
	registryErr  error
)

// getRegistry returns the shared registry address, starting the container
// if needed.
func getRegistry(tb testing.TB) string {
	tb.Helper()
	skipWithoutDocker(tb)

	registryOnce.Do(func() {
		registryAddr, registryErr = startRegistryContainer(context.Background())
	})

	if registryErr != nil {
		tb.Fatalf("start registry container: %v", registryErr)
	}
	return registryAddr
}

func startRegistryContainer(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "registry:2",
		ExposedPorts: []string{"5000/tcp"},
		WaitingFor: wait.ForHTTP("/v2/").
			WithPort("5000/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start registry container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve registry host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5000/tcp")
	if err != nil {
		return "", fmt.Errorf("resolve registry port: %w", err)
	}
	return fmt.Sprintf("%s:%s", host, port.Port()), nil
}

// --- Session Helpers ---

// newSession builds a session over a single backend registered under the
// given scheme.
func newSession(tb testing.TB, scheme string, backend store.Store, opts ...osio.Option) *osio.Session {
	tb.Helper()
	allOpts := append([]osio.Option{osio.WithStore(scheme, backend)}, opts...)
	return osio.NewSession(allOpts...)
}

// patternContent produces deterministic, non-repeating content.
func patternContent(size int) []byte {
	p := make([]byte, size)
	for i := range p {
		p[i] = byte(i % 251)
	}
	return p
}
