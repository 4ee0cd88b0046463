package health

import (
	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/cipherrelay/cipherrelay/server/logger"
)

const (
	// ServiceName is the name health checks report the relay's status under.
	ServiceName = "cipherrelay.Relay"
)

// server holds the serving status for the whole process. Every relay Server
// in the process reports through it.
var server = health.NewServer()

// NewServer returns a gRPC server with the health service registered. Panics
// in handlers are recovered, logged and returned to the caller as Internal.
func NewServer(log logger.Logger) *grpc.Server {
	recovery := grpc_recovery.WithRecoveryHandler(func(p interface{}) error {
		log.Errorf("Recovered from panic in health service: %v", p)
		return status.Errorf(codes.Internal, "%v", p)
	})
	srv := grpc.NewServer(
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			grpc_recovery.UnaryServerInterceptor(recovery),
		)),
		grpc.StreamInterceptor(grpc_middleware.ChainStreamServer(
			grpc_recovery.StreamServerInterceptor(recovery),
		)),
	)
	Register(srv)
	return srv
}

// Register adds the process-wide health service to srv.
func Register(srv *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(srv, server)
}

// SetServing marks the relay as serving. The status is process-wide, so with
// several relay Servers in one process the last call from any of them wins.
func SetServing() {
	server.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
}

// SetNotServing marks the relay as not serving. Like SetServing it affects
// every health service in the process.
func SetNotServing() {
	server.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}
