package natsclient

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// DefaultTestImage is the NATS image started by NewTestClient. Override it
// with DATACHANNEL_NATS_IMAGE.
const DefaultTestImage = "nats:2.11.7-alpine"

// TestClient is a NATS server in a container plus a connected Client.
type TestClient struct {
	Client *Client
	URL    string

	container testcontainers.Container
}

type testConfig struct {
	jetstream    bool
	timeout      time.Duration
	startTimeout time.Duration
}

// TestOption configures NewTestClient.
type TestOption func(*testConfig)

// WithJetStream starts the server with JetStream enabled.
func WithJetStream() TestOption {
	return func(cfg *testConfig) { cfg.jetstream = true }
}

// WithStartTimeout bounds container startup.
func WithStartTimeout(d time.Duration) TestOption {
	return func(cfg *testConfig) { cfg.startTimeout = d }
}

// NewTestClient starts a NATS container for t and tears it down in
// t.Cleanup. It skips under -short.
func NewTestClient(t testing.TB, opts ...TestOption) *TestClient {
	t.Helper()
	if testing.Short() {
		t.Skip("NATS container tests skipped in short mode")
	}

	cfg := &testConfig{timeout: 5 * time.Second, startTimeout: 30 * time.Second}
	for _, opt := range opts {
		opt(cfg)
	}

	tc, err := startTestClient(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NATS test client: %v", err)
	}
	t.Cleanup(tc.terminate)
	return tc
}

func startTestClient(ctx context.Context, cfg *testConfig) (*TestClient, error) {
	image := os.Getenv("DATACHANNEL_NATS_IMAGE")
	if image == "" {
		image = DefaultTestImage
	}

	cmd := []string{"--port", "4222", "--http_port", "8222"}
	if cfg.jetstream {
		cmd = append(cmd, "--js")
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{"4222/tcp", "8222/tcp"},
			Cmd:          cmd,
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("4222/tcp"),
				wait.ForHTTP("/healthz").WithPort("8222/tcp").WithStartupTimeout(cfg.startTimeout),
			),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	tc := &TestClient{container: container}
	if err := tc.connect(ctx, cfg.timeout); err != nil {
		tc.terminate()
		return nil, err
	}
	return tc, nil
}

func (tc *TestClient) connect(ctx context.Context, timeout time.Duration) error {
	endpoint, err := tc.container.PortEndpoint(ctx, "4222/tcp", "nats")
	if err != nil {
		return fmt.Errorf("resolve endpoint: %w", err)
	}

	client, err := NewClient(endpoint, WithTimeout(timeout), WithMaxReconnects(0), WithName("datachannel-test"))
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	tc.Client, tc.URL = client, endpoint
	return nil
}

func (tc *TestClient) terminate() {
	if tc.Client != nil {
		_ = tc.Client.Close(context.Background())
	}
	_ = tc.container.Terminate(context.Background())
}
