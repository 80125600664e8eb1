package grpc

import (
	"context"
	"errors"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// NewServer builds a gRPC server with the OTel stats handler and a registered
// health service. The health service starts NOT_SERVING; Serve flips it.
func NewServer(opts ...gogrpc.ServerOption) (*gogrpc.Server, *health.Server) {
	serverOpts := append([]gogrpc.ServerOption{gogrpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	server := gogrpc.NewServer(serverOpts...)
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	return server, healthServer
}

// Serve runs server on listener until ctx ends, then stops gracefully.
// A server stopped through ctx returns nil.
func Serve(ctx context.Context, server *gogrpc.Server, healthServer *health.Server, listener net.Listener, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if healthServer != nil {
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()
	logger.Info("gRPC server listening", zap.String("addr", listener.Addr().String()))

	select {
	case <-ctx.Done():
		if healthServer != nil {
			healthServer.Shutdown()
		}
		server.GracefulStop()
		err := <-serveErr
		if err != nil && !errors.Is(err, gogrpc.ErrServerStopped) {
			return err
		}
		logger.Info("gRPC server stopped")
		return nil
	case err := <-serveErr:
		if healthServer != nil {
			healthServer.Shutdown()
		}
		return err
	}
}
