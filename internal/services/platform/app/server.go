// Package app wires the platform API gRPC runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/captify/captify/internal/platform/discovery"
	platformgrpc "github.com/captify/captify/internal/platform/grpc"
	"github.com/captify/captify/internal/services/platform/domain"
	"github.com/captify/captify/internal/services/platform/seed"
	"github.com/captify/captify/internal/services/platform/storage/sqlite"
	"github.com/captify/captify/internal/services/shared/apiclient"
	"github.com/captify/captify/internal/services/shared/grpcauthctx"
)

// RuntimeConfig controls platform service startup.
type RuntimeConfig struct {
	Port     int
	DBPath   string
	SeedPath string
	Logger   *zap.Logger
	// Listener replaces the TCP listener on Port when set.
	Listener net.Listener
}

// Run serves the platform API until ctx ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return fmt.Errorf("platform db path is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = discovery.DefaultGRPCPort(discovery.ServicePlatform)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("create platform db dir: %w", err)
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open platform store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn("close platform store", zap.Error(closeErr))
		}
	}()

	service := domain.NewService(store, domain.Config{Logger: logger.Named("domain")})
	if path := strings.TrimSpace(cfg.SeedPath); path != "" {
		fixture, err := seed.Load(path)
		if err != nil {
			return err
		}
		if _, err := seed.Apply(ctx, service, fixture, logger.Named("seed")); err != nil {
			return fmt.Errorf("apply seed: %w", err)
		}
	}

	listener := cfg.Listener
	if listener == nil {
		listener, err = net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
		if err != nil {
			return fmt.Errorf("listen on platform port %d: %w", cfg.Port, err)
		}
	}
	defer func() {
		if closeErr := listener.Close(); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
			logger.Warn("close platform listener", zap.Error(closeErr))
		}
	}()

	grpcServer, healthServer := platformgrpc.NewServer(grpc.UnaryInterceptor(grpcauthctx.UnaryServerInterceptor()))
	apiclient.RegisterServer(grpcServer, service)
	healthServer.SetServingStatus(apiclient.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	if err := platformgrpc.Serve(ctx, grpcServer, healthServer, listener, logger); err != nil {
		return fmt.Errorf("serve gRPC: %w", err)
	}
	return nil
}
