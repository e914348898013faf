package grpc

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/viralforge/porter-dispatch/internal/application"
	"github.com/viralforge/porter-dispatch/internal/domain"
)

const serviceName = "porter.dispatch.v1.DispatchInternalService"

// DispatchInternalService is the east-west API for socket gateways and other
// internal callers. Messages are structpb.Struct so no generated stubs are needed.
type DispatchInternalService interface {
	ValidateToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDelivery(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetTracking(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type Server struct {
	service *application.Service
}

func NewServer(service *application.Service) *Server {
	return &Server{service: service}
}

// internalActor is what trusted internal callers act as.
var internalActor = application.Actor{SubjectID: "internal", Role: domain.RoleAdmin}

func Register(registrar grpc.ServiceRegistrar, svc DispatchInternalService) {
	registrar.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*DispatchInternalService)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "ValidateToken", Handler: unary("ValidateToken", svc.ValidateToken)},
			{MethodName: "GetDelivery", Handler: unary("GetDelivery", svc.GetDelivery)},
			{MethodName: "GetTracking", Handler: unary("GetTracking", svc.GetTracking)},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "porter/dispatch/v1/dispatch_internal.proto",
	}, svc)
}

func (s *Server) ValidateToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token := stringField(req, "token")
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "missing token")
	}
	claims, err := s.service.ValidateToken(ctx, token)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{
		"valid":        true,
		"principal_id": claims.PrincipalID,
		"username":     claims.Username,
		"role":         claims.Role,
		"expires_at":   claims.ExpiresAt.Unix(),
	})
}

func (s *Server) GetDelivery(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req, "delivery_id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "missing delivery_id")
	}
	d, err := s.service.GetDelivery(ctx, internalActor, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{
		"delivery_id":    d.ID,
		"customer_id":    d.CustomerID,
		"porter_id":      d.PorterID,
		"status":         d.Status,
		"payment_status": d.PaymentStatus,
		"amount":         d.Amount,
		"version":        d.Version,
		"scheduled_time": d.ScheduledTime.Format(time.RFC3339),
		"updated_at":     d.UpdatedAt.Format(time.RFC3339),
	})
}

func (s *Server) GetTracking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req, "delivery_id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "missing delivery_id")
	}
	points, err := s.service.TrackingLog(ctx, internalActor, id)
	if err != nil {
		return nil, toStatus(err)
	}
	list := make([]any, 0, len(points))
	for _, p := range points {
		entry := map[string]any{
			"sequence":    p.Sequence,
			"status":      p.Status,
			"recorded_at": p.RecordedAt.Format(time.RFC3339),
		}
		if p.Lat != nil && p.Lon != nil {
			entry["lat"] = *p.Lat
			entry["lon"] = *p.Lon
		}
		list = append(list, entry)
	}
	return newStruct(map[string]any{"delivery_id": id, "points": list})
}

type unaryMethod func(context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, fn unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + serviceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return fn(ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return fn(ctx, typed)
		})
	}
}

func stringField(req *structpb.Struct, key string) string {
	if v := req.GetFields()[key]; v != nil {
		return v.GetStringValue()
	}
	return ""
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return out, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrAccountBlocked):
		return status.Error(codes.Unauthenticated, "invalid token")
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, domain.ErrAccessDenied):
		return status.Error(codes.PermissionDenied, "permission denied")
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
