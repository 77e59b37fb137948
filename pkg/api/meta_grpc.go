package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	Meta_Heartbeat_FullMethodName   = "/nyxmeta.v1.Meta/Heartbeat"
	Meta_AskLeader_FullMethodName   = "/nyxmeta.v1.Meta/AskLeader"
	Meta_ListNodes_FullMethodName   = "/nyxmeta.v1.Meta/ListNodes"
	Meta_GetRegion_FullMethodName   = "/nyxmeta.v1.Meta/GetRegion"
	Meta_ListRegions_FullMethodName = "/nyxmeta.v1.Meta/ListRegions"
)

// MetaClient is the client API for the Meta service.
type MetaClient interface {
	Heartbeat(ctx context.Context, opts ...grpc.CallOption) (Meta_HeartbeatClient, error)
	AskLeader(ctx context.Context, in *AskLeaderRequest, opts ...grpc.CallOption) (*AskLeaderResponse, error)
	ListNodes(ctx context.Context, in *ListNodesRequest, opts ...grpc.CallOption) (*ListNodesResponse, error)
	GetRegion(ctx context.Context, in *GetRegionRequest, opts ...grpc.CallOption) (*GetRegionResponse, error)
	ListRegions(ctx context.Context, in *ListRegionsRequest, opts ...grpc.CallOption) (*ListRegionsResponse, error)
}

type metaClient struct {
	cc grpc.ClientConnInterface
}

// NewMetaClient wraps cc. Every call is forced onto the JSON codec.
func NewMetaClient(cc grpc.ClientConnInterface) MetaClient {
	return &metaClient{cc: cc}
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *metaClient) Heartbeat(ctx context.Context, opts ...grpc.CallOption) (Meta_HeartbeatClient, error) {
	stream, err := c.cc.NewStream(ctx, &Meta_ServiceDesc.Streams[0], Meta_Heartbeat_FullMethodName, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return &metaHeartbeatClient{ClientStream: stream}, nil
}

func (c *metaClient) AskLeader(ctx context.Context, in *AskLeaderRequest, opts ...grpc.CallOption) (*AskLeaderResponse, error) {
	out := new(AskLeaderResponse)
	if err := c.cc.Invoke(ctx, Meta_AskLeader_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *metaClient) ListNodes(ctx context.Context, in *ListNodesRequest, opts ...grpc.CallOption) (*ListNodesResponse, error) {
	out := new(ListNodesResponse)
	if err := c.cc.Invoke(ctx, Meta_ListNodes_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *metaClient) GetRegion(ctx context.Context, in *GetRegionRequest, opts ...grpc.CallOption) (*GetRegionResponse, error) {
	out := new(GetRegionResponse)
	if err := c.cc.Invoke(ctx, Meta_GetRegion_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *metaClient) ListRegions(ctx context.Context, in *ListRegionsRequest, opts ...grpc.CallOption) (*ListRegionsResponse, error) {
	out := new(ListRegionsResponse)
	if err := c.cc.Invoke(ctx, Meta_ListRegions_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

type Meta_HeartbeatClient interface {
	Send(*HeartbeatRequest) error
	Recv() (*HeartbeatResponse, error)
	grpc.ClientStream
}

type metaHeartbeatClient struct {
	grpc.ClientStream
}

func (x *metaHeartbeatClient) Send(m *HeartbeatRequest) error {
	return x.ClientStream.SendMsg(m)
}

func (x *metaHeartbeatClient) Recv() (*HeartbeatResponse, error) {
	m := new(HeartbeatResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// MetaServer is the server API for the Meta service.
type MetaServer interface {
	Heartbeat(Meta_HeartbeatServer) error
	AskLeader(context.Context, *AskLeaderRequest) (*AskLeaderResponse, error)
	ListNodes(context.Context, *ListNodesRequest) (*ListNodesResponse, error)
	GetRegion(context.Context, *GetRegionRequest) (*GetRegionResponse, error)
	ListRegions(context.Context, *ListRegionsRequest) (*ListRegionsResponse, error)
}

// UnimplementedMetaServer can be embedded for forward compatibility.
type UnimplementedMetaServer struct{}

func (UnimplementedMetaServer) Heartbeat(Meta_HeartbeatServer) error {
	return status.Error(codes.Unimplemented, "method Heartbeat not implemented")
}

func (UnimplementedMetaServer) AskLeader(context.Context, *AskLeaderRequest) (*AskLeaderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method AskLeader not implemented")
}

func (UnimplementedMetaServer) ListNodes(context.Context, *ListNodesRequest) (*ListNodesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListNodes not implemented")
}

func (UnimplementedMetaServer) GetRegion(context.Context, *GetRegionRequest) (*GetRegionResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetRegion not implemented")
}

func (UnimplementedMetaServer) ListRegions(context.Context, *ListRegionsRequest) (*ListRegionsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListRegions not implemented")
}

func RegisterMetaServer(s grpc.ServiceRegistrar, srv MetaServer) {
	s.RegisterService(&Meta_ServiceDesc, srv)
}

type Meta_HeartbeatServer interface {
	Send(*HeartbeatResponse) error
	Recv() (*HeartbeatRequest, error)
	grpc.ServerStream
}

type metaHeartbeatServer struct {
	grpc.ServerStream
}

func (x *metaHeartbeatServer) Send(m *HeartbeatResponse) error {
	return x.ServerStream.SendMsg(m)
}

func (x *metaHeartbeatServer) Recv() (*HeartbeatRequest, error) {
	m := new(HeartbeatRequest)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _Meta_Heartbeat_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(MetaServer).Heartbeat(&metaHeartbeatServer{ServerStream: stream})
}

func _Meta_AskLeader_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AskLeaderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MetaServer).AskLeader(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Meta_AskLeader_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MetaServer).AskLeader(ctx, req.(*AskLeaderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Meta_ListNodes_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListNodesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MetaServer).ListNodes(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Meta_ListNodes_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MetaServer).ListNodes(ctx, req.(*ListNodesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Meta_GetRegion_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetRegionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MetaServer).GetRegion(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Meta_GetRegion_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MetaServer).GetRegion(ctx, req.(*GetRegionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Meta_ListRegions_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListRegionsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MetaServer).ListRegions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Meta_ListRegions_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MetaServer).ListRegions(ctx, req.(*ListRegionsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Meta_ServiceDesc is the grpc.ServiceDesc for the Meta service.
var Meta_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "nyxmeta.v1.Meta",
	HandlerType: (*MetaServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AskLeader", Handler: _Meta_AskLeader_Handler},
		{MethodName: "ListNodes", Handler: _Meta_ListNodes_Handler},
		{MethodName: "GetRegion", Handler: _Meta_GetRegion_Handler},
		{MethodName: "ListRegions", Handler: _Meta_ListRegions_Handler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Heartbeat",
			Handler:       _Meta_Heartbeat_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "nyxmeta/v1/meta",
}
