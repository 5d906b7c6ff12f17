package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// RunControlServiceName is the fully-qualified gRPC service name.
const RunControlServiceName = "apbots.v1.RunControl"

// RunControlServer is the run control plane. Messages are well-known
// protobuf types so the service needs no generated code.
type RunControlServer interface {
	StartRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRun(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListRuns(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportRun(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
}

func RegisterRunControlServer(s grpc.ServiceRegistrar, srv RunControlServer) {
	s.RegisterService(&RunControlServiceDesc, srv)
}

var RunControlServiceDesc = grpc.ServiceDesc{
	ServiceName: RunControlServiceName,
	HandlerType: (*RunControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StartRun", Handler: startRunHandler},
		{MethodName: "GetRun", Handler: getRunHandler},
		{MethodName: "ListRuns", Handler: listRunsHandler},
		{MethodName: "CancelRun", Handler: cancelRunHandler},
		{MethodName: "ExportRun", Handler: exportRunHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "apbots/v1/run_control.proto",
}

func fullMethod(name string) string { return "/" + RunControlServiceName + "/" + name }

func startRunHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RunControlServer).StartRun(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("StartRun")}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(RunControlServer).StartRun(ctx, req.(*structpb.Struct))
	})
}

func getRunHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RunControlServer).GetRun(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("GetRun")}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(RunControlServer).GetRun(ctx, req.(*wrapperspb.StringValue))
	})
}

func listRunsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RunControlServer).ListRuns(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("ListRuns")}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(RunControlServer).ListRuns(ctx, req.(*structpb.Struct))
	})
}

func cancelRunHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RunControlServer).CancelRun(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("CancelRun")}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(RunControlServer).CancelRun(ctx, req.(*structpb.Struct))
	})
}

func exportRunHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RunControlServer).ExportRun(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("ExportRun")}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(RunControlServer).ExportRun(ctx, req.(*wrapperspb.StringValue))
	})
}

// RunControlClient calls RunControl over an existing connection.
type RunControlClient struct {
	cc grpc.ClientConnInterface
}

func NewRunControlClient(cc grpc.ClientConnInterface) *RunControlClient {
	return &RunControlClient{cc: cc}
}

func (c *RunControlClient) StartRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	return out, c.cc.Invoke(ctx, fullMethod("StartRun"), in, out, opts...)
}

func (c *RunControlClient) GetRun(ctx context.Context, runID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	return out, c.cc.Invoke(ctx, fullMethod("GetRun"), wrapperspb.String(runID), out, opts...)
}

func (c *RunControlClient) ListRuns(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	return out, c.cc.Invoke(ctx, fullMethod("ListRuns"), in, out, opts...)
}

func (c *RunControlClient) CancelRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	return out, c.cc.Invoke(ctx, fullMethod("CancelRun"), in, out, opts...)
}

func (c *RunControlClient) ExportRun(ctx context.Context, runID string, opts ...grpc.CallOption) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, fullMethod("ExportRun"), wrapperspb.String(runID), out, opts...); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}
