// Package hookrpc exposes the lifecycle hooks over gRPC. Events travel as
// google.protobuf.Struct so the wire shape matches the JSON events exactly.
package hookrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "trialgate.hooks.v1.LifecycleHooks"

	preSignUpMethod         = "/" + ServiceName + "/PreSignUp"
	preAuthenticationMethod = "/" + ServiceName + "/PreAuthentication"
)

// LifecycleHooksServer is the server API for the LifecycleHooks service.
type LifecycleHooksServer interface {
	PreSignUp(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PreAuthentication(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the LifecycleHooks service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LifecycleHooksServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PreSignUp", Handler: preSignUpHandler},
		{MethodName: "PreAuthentication", Handler: preAuthenticationHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "trialgate/hooks/v1/hooks.proto",
}

func preSignUpHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LifecycleHooksServer).PreSignUp(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: preSignUpMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LifecycleHooksServer).PreSignUp(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func preAuthenticationHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LifecycleHooksServer).PreAuthentication(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: preAuthenticationMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LifecycleHooksServer).PreAuthentication(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Client calls the LifecycleHooks service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) PreSignUp(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, preSignUpMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PreAuthentication(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, preAuthenticationMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
