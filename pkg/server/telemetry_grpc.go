package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// The service uses well-known message types only, so no generated
// message code is needed:
//
//	service Telemetry {
//	  rpc StreamSamples(google.protobuf.Empty) returns (stream google.protobuf.Struct);
//	  rpc GetStatus(google.protobuf.Empty) returns (google.protobuf.Struct);
//	}
const (
	Telemetry_StreamSamples_FullMethodName = "/scope.Telemetry/StreamSamples"
	Telemetry_GetStatus_FullMethodName     = "/scope.Telemetry/GetStatus"
)

type TelemetryClient interface {
	StreamSamples(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (Telemetry_StreamSamplesClient, error)
	GetStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type telemetryClient struct {
	cc grpc.ClientConnInterface
}

func NewTelemetryClient(cc grpc.ClientConnInterface) TelemetryClient {
	return &telemetryClient{cc}
}

func (c *telemetryClient) StreamSamples(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (Telemetry_StreamSamplesClient, error) {
	stream, err := c.cc.NewStream(ctx, &Telemetry_ServiceDesc.Streams[0], Telemetry_StreamSamples_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &telemetryStreamSamplesClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type Telemetry_StreamSamplesClient interface {
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type telemetryStreamSamplesClient struct {
	grpc.ClientStream
}

func (x *telemetryStreamSamplesClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *telemetryClient) GetStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, Telemetry_GetStatus_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type TelemetryServer interface {
	StreamSamples(*emptypb.Empty, Telemetry_StreamSamplesServer) error
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

func RegisterTelemetryServer(s grpc.ServiceRegistrar, srv TelemetryServer) {
	s.RegisterService(&Telemetry_ServiceDesc, srv)
}

type Telemetry_StreamSamplesServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type telemetryStreamSamplesServer struct {
	grpc.ServerStream
}

func (x *telemetryStreamSamplesServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

func _Telemetry_StreamSamples_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(TelemetryServer).StreamSamples(m, &telemetryStreamSamplesServer{stream})
}

func _Telemetry_GetStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TelemetryServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Telemetry_GetStatus_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TelemetryServer).GetStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

var Telemetry_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "scope.Telemetry",
	HandlerType: (*TelemetryServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetStatus",
			Handler:    _Telemetry_GetStatus_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamSamples",
			Handler:       _Telemetry_StreamSamples_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "scope/telemetry.proto",
}
