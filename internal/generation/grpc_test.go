package generation

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startSidecar(t *testing.T, g Generator, serving healthpb.HealthCheckResponse_ServingStatus) GRPCConfig {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterGeneratorServer(srv, Serve(g))
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, serving)
	healthpb.RegisterHealthServer(srv, hs)

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	cfg := DefaultGRPCConfig("passthrough:///bufnet")
	cfg.ConnectTimeout = 2 * time.Second
	cfg.DialOptions = []grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	}
	return cfg
}

func TestGRPCGenerate(t *testing.T) {
	t.Parallel()

	upper := GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		return strings.ToUpper(prompt), nil
	})
	cfg := startSidecar(t, upper, healthpb.HealthCheckResponse_SERVING)

	g, err := NewGRPC(cfg, nil)
	require.NoError(t, err)
	defer g.Close()

	text, err := g.Generate(context.Background(), "who approves rfqs?")
	require.NoError(t, err)
	assert.Equal(t, "WHO APPROVES RFQS?", text)
}

func TestGRPCGenerateError(t *testing.T) {
	t.Parallel()

	failing := GeneratorFunc(func(context.Context, string) (string, error) {
		return "", errors.New("model overloaded")
	})
	cfg := startSidecar(t, failing, healthpb.HealthCheckResponse_SERVING)

	g, err := NewGRPC(cfg, nil)
	require.NoError(t, err)
	defer g.Close()

	_, err = g.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, IsError(err))
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestNewGRPCRejectsNotServing(t *testing.T) {
	t.Parallel()

	cfg := startSidecar(t, GeneratorFunc(func(context.Context, string) (string, error) { return "", nil }),
		healthpb.HealthCheckResponse_NOT_SERVING)

	_, err := NewGRPC(cfg, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errNotServing)
}
