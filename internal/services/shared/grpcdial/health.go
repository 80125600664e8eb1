// Package grpcdial dials the platform API with service-labeled startup errors.
package grpcdial

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	gogrpc "google.golang.org/grpc"

	platformgrpc "github.com/captify/captify/internal/platform/grpc"
	"github.com/captify/captify/internal/services/shared/apiclient"
	"github.com/captify/captify/internal/services/shared/grpcauthctx"
)

// DialAPI dials the platform API, waits for its health check and attaches the
// request identity interceptor.
func DialAPI(ctx context.Context, addr string, timeout time.Duration, logger *zap.Logger) (*gogrpc.ClientConn, error) {
	return DialWithHealth(ctx, addr, timeout, "platform api", apiclient.ServiceName, logger,
		gogrpc.WithUnaryInterceptor(grpcauthctx.UnaryClientInterceptor()))
}

// DialWithHealth dials a service endpoint and normalizes connect/health errors
// into stable, service-labeled messages for startup callers. Extra options are
// appended to the platform defaults.
func DialWithHealth(
	ctx context.Context,
	addr string,
	timeout time.Duration,
	serviceLabel string,
	healthService string,
	logger *zap.Logger,
	opts ...gogrpc.DialOption,
) (*gogrpc.ClientConn, error) {
	conn, err := platformgrpc.DialWithHealth(ctx, addr, platformgrpc.DialConfig{
		Timeout:       timeout,
		HealthService: healthService,
		Logger:        logger,
		Options:       append(platformgrpc.DefaultClientDialOptions(), opts...),
	})
	if err != nil {
		return nil, NormalizeDialError(serviceLabel, addr, err)
	}
	return conn, nil
}

// NormalizeDialError maps platform DialError stages into stable startup error
// messages.
func NormalizeDialError(serviceLabel, addr string, err error) error {
	var dialErr *platformgrpc.DialError
	if errors.As(err, &dialErr) {
		if dialErr.Stage == platformgrpc.DialStageHealth {
			return fmt.Errorf("%s gRPC health check failed for %s: %w", serviceLabel, addr, dialErr.Err)
		}
		return fmt.Errorf("dial %s gRPC %s: %w", serviceLabel, addr, dialErr.Err)
	}
	return fmt.Errorf("dial %s gRPC %s: %w", serviceLabel, addr, err)
}
