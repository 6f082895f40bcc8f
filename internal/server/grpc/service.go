package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified name of the audit service.
const ServiceName = "preservaudit.v1.AuditService"

const (
	AuditObjectMethod = "/" + ServiceName + "/AuditObject"
	PingMethod        = "/" + ServiceName + "/Ping"
)

// AuditServiceServer is the server API of the audit service. Requests and
// responses are generic structs so that clients need no generated stubs.
type AuditServiceServer interface {
	// AuditObject reconciles the named object and returns its audit
	// document together with the actions a run would plan. Nothing is
	// written.
	AuditObject(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Ping(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterAuditServiceServer registers srv on s.
func RegisterAuditServiceServer(s grpc.ServiceRegistrar, srv AuditServiceServer) {
	s.RegisterService(&auditServiceDesc, srv)
}

var auditServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuditServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AuditObject", Handler: auditObjectHandler},
		{MethodName: "Ping", Handler: pingHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "preservaudit/v1/audit.proto",
}

func auditObjectHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AuditServiceServer).AuditObject(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AuditObjectMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AuditServiceServer).AuditObject(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func pingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AuditServiceServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PingMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AuditServiceServer).Ping(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
