package api

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/miradorstack/incident-autopilot/internal/config"
	"github.com/miradorstack/incident-autopilot/internal/repo"
	"github.com/miradorstack/incident-autopilot/internal/services"
	"github.com/miradorstack/incident-autopilot/internal/utils"
)

func startBufconnServer(t *testing.T, svc Orchestrator) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server := NewServerOnListener(lis, config.ServerConfig{GracefulTimeout: time.Second}, svc, nil)
	go func() { _ = server.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGRPCOrchestrateRoundTrip(t *testing.T) {
	stub := &orchestratorStub{resp: generated(`{"timeline":["paged"]}`)}
	conn := startBufconnServer(t, stub)

	client := NewOrchestratorGRPCClient(conn)
	resp, err := client.Send(context.Background(), "DB CPU at 98%")
	require.NoError(t, err)
	assert.Equal(t, []string{"DB CPU at 98%"}, stub.alerts)

	results, ok := resp["results"].([]any)
	require.True(t, ok)
	assert.Equal(t, `{"timeline":["paged"]}`, results[0].(map[string]any)["generated_text"])
}

func TestGRPCOrchestrateStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{name: "blank alert", err: utils.NewAppError("orchestrate", "alert is required", services.ErrEmptyAlert), code: codes.InvalidArgument},
		{name: "backend down", err: errors.New("503"), code: codes.Unavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := startBufconnServer(t, &orchestratorStub{err: tt.err})
			_, err := NewOrchestratorGRPCClient(conn).Send(context.Background(), "x")

			var transportErr *repo.TransportError
			require.ErrorAs(t, err, &transportErr)
			assert.Equal(t, tt.code, status.Code(transportErr.Err))
		})
	}
}

func TestGRPCHealth(t *testing.T) {
	conn := startBufconnServer(t, &orchestratorStub{})
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: OrchestratorServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestGRPCServiceRejectsNilRequest(t *testing.T) {
	_, err := NewOrchestratorGRPCService(&orchestratorStub{}, nil).Orchestrate(context.Background(), nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
