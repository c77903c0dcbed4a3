// Package grpcapi exposes session ingest over gRPC. Messages are
// google.protobuf.Struct values carrying the JSON event envelope, so hosts
// need no generated stubs beyond the well-known types.
package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "whispey.telemetry.v1.SessionEvents"

const (
	streamEventsMethod = "/" + ServiceName + "/StreamEvents"
	sendEventMethod    = "/" + ServiceName + "/SendEvent"
	exportMethod       = "/" + ServiceName + "/Export"
)

// SessionEventsServer is the server API for the SessionEvents service.
type SessionEventsServer interface {
	// StreamEvents consumes a stream of envelopes and acknowledges once at
	// the end with the per-event results.
	StreamEvents(grpc.ClientStreamingServer[structpb.Struct, structpb.Struct]) error
	// SendEvent handles one envelope and returns its result immediately.
	SendEvent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Export finalizes and exports a session.
	Export(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc is the grpc.ServiceDesc for SessionEvents.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionEventsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendEvent", Handler: sendEventHandler},
		{MethodName: "Export", Handler: exportHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamEvents",
			Handler:       streamEventsHandler,
			ClientStreams: true,
		},
	},
	Metadata: "whispey/telemetry/v1/session_events.proto",
}

// RegisterSessionEventsServer registers srv on s.
func RegisterSessionEventsServer(s grpc.ServiceRegistrar, srv SessionEventsServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func streamEventsHandler(srv any, stream grpc.ServerStream) error {
	return srv.(SessionEventsServer).StreamEvents(&grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

func sendEventHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionEventsServer).SendEvent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: sendEventMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionEventsServer).SendEvent(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func exportHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionEventsServer).Export(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: exportMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionEventsServer).Export(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Client is a SessionEvents client.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an open connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// StreamEvents opens an event stream. Send envelopes, then CloseAndRecv for the ack.
func (c *Client) StreamEvents(ctx context.Context, opts ...grpc.CallOption) (grpc.ClientStreamingClient[structpb.Struct, structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], streamEventsMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}, nil
}

// SendEvent sends a single envelope.
func (c *Client) SendEvent(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, sendEventMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Export requests the export of a session.
func (c *Client) Export(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, exportMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
