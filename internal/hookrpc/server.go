package hookrpc

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"trialgate.org/internal/auth"
	"trialgate.org/internal/hooks"
	"trialgate.org/internal/obs"
)

var _ LifecycleHooksServer = (*Server)(nil)

// Server implements LifecycleHooksServer on top of hooks.Handler.
type Server struct {
	hooks *hooks.Handler
}

func NewServer(h *hooks.Handler) *Server {
	return &Server{hooks: h}
}

func (s *Server) PreSignUp(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var ev hooks.PreSignUpEvent
	if err := fromStruct(in, &ev); err != nil {
		return nil, err
	}
	out, err := s.hooks.PreSignUp(ctx, &ev)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(out)
}

func (s *Server) PreAuthentication(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var ev hooks.PreAuthenticationEvent
	if err := fromStruct(in, &ev); err != nil {
		return nil, err
	}
	out, err := s.hooks.PreAuthentication(ctx, &ev)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(out)
}

// Register installs the hooks service and a health service on gs. The health
// server starts NOT_SERVING; flip it with SetReady.
func Register(gs *grpc.Server, h *hooks.Handler) *health.Server {
	gs.RegisterService(&ServiceDesc, NewServer(h))
	hs := health.NewServer()
	SetReady(hs, false)
	healthpb.RegisterHealthServer(gs, hs)
	return hs
}

// SetReady updates both the overall and the per-service health status.
func SetReady(hs *health.Server, ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	hs.SetServingStatus("", st)
	hs.SetServingStatus(ServiceName, st)
	obs.SetReady(ok)
}

// UnaryLogging writes one JSON line per call.
func UnaryLogging(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	obs.Log("info", "rpc_complete", map[string]any{
		"method":      info.FullMethod,
		"code":        status.Code(err).String(),
		"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
	})
	return resp, err
}

func fromStruct(in *structpb.Struct, dst any) error {
	if in == nil {
		return status.Error(codes.InvalidArgument, "event is required")
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "encode event: %v", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "decode event: %v", err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, hooks.ErrMalformedEvent):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, auth.ErrRateLimitExceeded):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, auth.ErrInvalidConfiguration):
		return status.Error(codes.FailedPrecondition, err.Error())
	case auth.IsValidation(err):
		return status.Error(codes.PermissionDenied, err.Error())
	default:
		obs.Log("error", "hook evaluation failed", map[string]any{"error": err})
		return status.Error(codes.Internal, "internal error")
	}
}
