package api

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/incident-autopilot/internal/models"
	"github.com/miradorstack/incident-autopilot/internal/repo"
	"github.com/miradorstack/incident-autopilot/internal/services"
	"github.com/miradorstack/incident-autopilot/internal/utils"
)

const (
	// OrchestratorServiceName is the fully-qualified gRPC service name.
	OrchestratorServiceName = "autopilot.v1.Orchestrator"
	orchestrateMethod       = "/" + OrchestratorServiceName + "/Orchestrate"
)

// Orchestrator is the gateway-side orchestration operation.
type Orchestrator interface {
	Orchestrate(ctx context.Context, alert string) (models.RawOrchestrationResponse, error)
}

// OrchestratorServer is the server API of autopilot.v1.Orchestrator. The
// request carries {"alert": string}; the response is the raw model envelope.
type OrchestratorServer interface {
	Orchestrate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterOrchestratorServer registers srv on s.
func RegisterOrchestratorServer(s grpc.ServiceRegistrar, srv OrchestratorServer) {
	s.RegisterService(&orchestratorServiceDesc, srv)
}

var orchestratorServiceDesc = grpc.ServiceDesc{
	ServiceName: OrchestratorServiceName,
	HandlerType: (*OrchestratorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Orchestrate", Handler: orchestrateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "autopilot/v1/orchestrator.proto",
}

func orchestrateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrchestratorServer).Orchestrate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: orchestrateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrchestratorServer).Orchestrate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// OrchestratorGRPCService adapts an Orchestrator to the gRPC surface.
type OrchestratorGRPCService struct {
	svc    Orchestrator
	logger *slog.Logger
}

// NewOrchestratorGRPCService constructs the gRPC facade.
func NewOrchestratorGRPCService(svc Orchestrator, logger *slog.Logger) *OrchestratorGRPCService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrchestratorGRPCService{svc: svc, logger: logger}
}

// Orchestrate implements OrchestratorServer.
func (g *OrchestratorGRPCService) Orchestrate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if g.svc == nil {
		return nil, status.Error(codes.FailedPrecondition, "orchestrator not configured")
	}

	resp, err := g.svc.Orchestrate(ctx, req.GetFields()["alert"].GetStringValue())
	if err != nil {
		if errors.Is(err, services.ErrEmptyAlert) {
			return nil, status.Error(codes.InvalidArgument, utils.PublicMessage(err, "alert is required"))
		}
		return nil, status.Error(codes.Unavailable, utils.PublicMessage(err, "orchestration failed"))
	}

	out, err := structpb.NewStruct(resp)
	if err != nil {
		g.logger.Error("model response not representable as struct", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "invalid model response")
	}
	return out, nil
}

// OrchestratorGRPCClient calls autopilot.v1.Orchestrator and satisfies the
// session's orchestrator contract.
type OrchestratorGRPCClient struct {
	cc grpc.ClientConnInterface
}

// NewOrchestratorGRPCClient wraps an established connection.
func NewOrchestratorGRPCClient(cc grpc.ClientConnInterface) *OrchestratorGRPCClient {
	return &OrchestratorGRPCClient{cc: cc}
}

// Send submits alert over gRPC. Every failure is a *repo.TransportError.
func (c *OrchestratorGRPCClient) Send(ctx context.Context, alert string) (models.RawOrchestrationResponse, error) {
	in, err := structpb.NewStruct(map[string]any{"alert": alert})
	if err != nil {
		return nil, &repo.TransportError{Op: "orchestrate", Err: err}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, orchestrateMethod, in, out); err != nil {
		return nil, &repo.TransportError{Op: "orchestrate", Err: err}
	}
	return out.AsMap(), nil
}
