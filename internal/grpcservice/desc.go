package grpcservice

import (
	"context"

	"google.golang.org/genproto/googleapis/api/httpbody"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "popstash.v1.StashService"

// StashServer is the server API. Messages are protobuf well-known types so
// no generated code is needed; structured payloads travel as
// structpb.Struct in the JSON shapes of Prompt, Item and Status.
type StashServer interface {
	Trigger(context.Context, *wrapperspb.BoolValue) (*structpb.Struct, error)
	Confirm(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Cancel(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Pending(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	List(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error)
	TogglePin(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	Delete(context.Context, *structpb.ListValue) (*wrapperspb.Int64Value, error)
	Clear(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Copy(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Content(context.Context, *wrapperspb.StringValue) (*httpbody.HttpBody, error)
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Watch(*structpb.ListValue, grpc.ServerStreamingServer[structpb.Struct]) error
}

// ServiceDesc describes StashService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StashServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Trigger", StashServer.Trigger),
		unary("Confirm", StashServer.Confirm),
		unary("Cancel", StashServer.Cancel),
		unary("Pending", StashServer.Pending),
		unary("List", StashServer.List),
		unary("TogglePin", StashServer.TogglePin),
		unary("Delete", StashServer.Delete),
		unary("Clear", StashServer.Clear),
		unary("Copy", StashServer.Copy),
		unary("Content", StashServer.Content),
		unary("Status", StashServer.Status),
	},
	Streams: []grpc.StreamDesc{{
		StreamName:    "Watch",
		Handler:       watchHandler,
		ServerStreams: true,
	}},
}

// Register adds srv to s.
func Register(s grpc.ServiceRegistrar, srv StashServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// FullMethod returns the gRPC method path for name.
func FullMethod(name string) string { return "/" + ServiceName + "/" + name }

// unary builds the method descriptor protoc-gen-go-grpc would generate for
// a unary call.
func unary[Req any, PReq interface {
	*Req
	proto.Message
}, Resp proto.Message](name string, call func(StashServer, context.Context, PReq) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(StashServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(PReq))
			})
		},
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.ListValue)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(StashServer).Watch(in, &grpc.GenericServerStream[structpb.ListValue, structpb.Struct]{ServerStream: stream})
}
