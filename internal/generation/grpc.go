package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the gRPC service a generation sidecar exposes.
const ServiceName = "bbp.generation.v1.Generator"

// GenerateMethod is the full method name of the unary Generate call. The
// request and response are google.protobuf.StringValue.
const GenerateMethod = "/" + ServiceName + "/Generate"

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errNotServing               = errors.New("generation service not serving")
)

// GRPCConfig holds configuration for the gRPC generator.
type GRPCConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	DialOptions      []grpc.DialOption
}

// DefaultGRPCConfig returns default configuration for addr.
func DefaultGRPCConfig(addr string) GRPCConfig {
	return GRPCConfig{
		Address:          addr,
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// GRPC forwards prompts to a generation sidecar over gRPC.
type GRPC struct {
	conn   *grpc.ClientConn
	addr   string
	logger *slog.Logger
}

// NewGRPC connects to the sidecar and fails fast when it is not reachable or
// not serving.
func NewGRPC(cfg GRPCConfig, logger *slog.Logger) (*GRPC, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveTime,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: false,
		}),
	}
	opts = append(opts, cfg.DialOptions...)

	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation client for %s: %w", cfg.Address, err)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		closeConn(conn, logger)
		return nil, fmt.Errorf("generation service at %s not ready: %w", cfg.Address, err)
	}
	if err := checkServing(connectCtx, conn); err != nil {
		closeConn(conn, logger)
		return nil, fmt.Errorf("generation service at %s: %w", cfg.Address, err)
	}

	logger.Info("Connected to generation service", "address", cfg.Address)
	return &GRPC{conn: conn, addr: cfg.Address, logger: logger}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

func checkServing(ctx context.Context, conn *grpc.ClientConn) error {
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", errNotServing, resp.GetStatus())
	}
	return nil
}

func closeConn(conn *grpc.ClientConn, logger *slog.Logger) {
	if err := conn.Close(); err != nil {
		logger.Warn("failed to close gRPC connection", "error", err)
	}
}

// Generate issues one unary call.
func (g *GRPC) Generate(ctx context.Context, prompt string) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := g.conn.Invoke(ctx, GenerateMethod, wrapperspb.String(prompt), out); err != nil {
		g.logger.Warn("Generate call failed", "address", g.addr, "code", status.Code(err).String())
		if s, ok := status.FromError(err); ok {
			return "", NewError(fmt.Errorf("generation service: %s", s.Message()))
		}
		return "", NewError(err)
	}
	return out.GetValue(), nil
}

// Close closes the gRPC connection.
func (g *GRPC) Close() {
	if g.conn != nil {
		closeConn(g.conn, g.logger)
	}
}

// GeneratorServer is the server side of the Generate call.
type GeneratorServer interface {
	Generate(ctx context.Context, prompt *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

// GeneratorServiceDesc describes the generation service for grpc.Server registration.
var GeneratorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GeneratorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Generate", Handler: generateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bbp/generation/v1/generator.proto",
}

func generateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GeneratorServer).Generate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GenerateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GeneratorServer).Generate(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterGeneratorServer registers srv on s.
func RegisterGeneratorServer(s grpc.ServiceRegistrar, srv GeneratorServer) {
	s.RegisterService(&GeneratorServiceDesc, srv)
}

// Serve exposes any Generator as a GeneratorServer.
func Serve(g Generator) GeneratorServer {
	return generatorServer{g: g}
}

type generatorServer struct {
	g Generator
}

func (s generatorServer) Generate(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	text, err := s.g.Generate(ctx, in.GetValue())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, status.Error(codes.DeadlineExceeded, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.String(text), nil
}
