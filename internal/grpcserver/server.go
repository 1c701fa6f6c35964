// Package grpcserver exposes the standard gRPC health service
// (grpc.health.v1.Health) for the user API. The reported status follows
// the storage connectivity seen by the user service.
package grpcserver

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/patric-chuzhbe/userapi/internal/grpcserver/interceptor"
	"github.com/patric-chuzhbe/userapi/internal/models"
)

// ServiceName is the name under which the user API reports its health.
const ServiceName = "userapi"

const healthCheckMethod = "/grpc.health.v1.Health/Check"

type healthChecker interface {
	Health(ctx context.Context) string
}

// HealthHandler keeps the serving status of the health server in sync
// with the storage connectivity.
type HealthHandler struct {
	checker healthChecker
	server  *health.Server
}

// NewHealthHandler creates a handler with every service marked NOT_SERVING
// until the first refresh.
func NewHealthHandler(checker healthChecker) *HealthHandler {
	h := &HealthHandler{
		checker: checker,
		server:  health.NewServer(),
	}
	h.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)

	return h
}

// Refresh asks the checker for the storage state and updates the status
// of both the overall server and ServiceName.
func (h *HealthHandler) Refresh(ctx context.Context) {
	if h.checker.Health(ctx) == models.DatabaseConnected {
		h.setStatus(healthpb.HealthCheckResponse_SERVING)
		return
	}

	h.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (h *HealthHandler) Shutdown() {
	h.server.Shutdown()
}

func (h *HealthHandler) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
}

func newServer(handler *HealthHandler) *grpc.Server {
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptor.UnaryLoggingInterceptor([]string{
				healthCheckMethod,
			}),
			interceptor.UnaryRefreshInterceptor(
				[]string{healthCheckMethod},
				handler.Refresh,
			),
		),
	)
	healthpb.RegisterHealthServer(server, handler.server)

	return server
}

// NewGRPCServer creates the gRPC server and the listener it should be served on.
func NewGRPCServer(
	addr string,
	handler *HealthHandler,
) (*grpc.Server, net.Listener, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	return newServer(handler), lis, nil
}
