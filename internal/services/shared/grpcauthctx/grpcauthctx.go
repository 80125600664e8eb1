// Package grpcauthctx propagates the web session identity to the platform API
// as gRPC metadata.
package grpcauthctx

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/captify/captify/internal/platform/requestctx"
)

const (
	// UserIDHeader carries the authenticated user id.
	UserIDHeader = "x-captify-user-id"
	// SessionIDHeader carries the web session id.
	SessionIDHeader = "x-captify-session-id"
)

// WithUserID returns a context with user-id gRPC metadata when userID is non-empty.
func WithUserID(ctx context.Context, userID string) context.Context {
	return appendOutgoing(ctx, UserIDHeader, userID)
}

// WithSessionID returns a context with session-id gRPC metadata when sessionID is non-empty.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return appendOutgoing(ctx, SessionIDHeader, sessionID)
}

// WithRequestIdentity copies the requestctx identity into outgoing metadata.
func WithRequestIdentity(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = WithUserID(ctx, requestctx.UserIDFromContext(ctx))
	return WithSessionID(ctx, requestctx.SessionIDFromContext(ctx))
}

// UnaryClientInterceptor attaches the request identity to unary calls.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req any,
		reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		return invoker(WithRequestIdentity(ctx), method, req, reply, cc, opts...)
	}
}

// UnaryServerInterceptor restores the caller identity from incoming metadata
// into requestctx.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		return handler(FromIncoming(ctx), req)
	}
}

// FromIncoming returns ctx with requestctx values read from incoming metadata.
func FromIncoming(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}
	if userID := firstValue(md, UserIDHeader); userID != "" {
		ctx = requestctx.WithUserID(ctx, userID)
	}
	if sessionID := firstValue(md, SessionIDHeader); sessionID != "" {
		ctx = requestctx.WithSessionID(ctx, sessionID)
	}
	return ctx
}

func appendOutgoing(ctx context.Context, key, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return ctx
	}
	if md, ok := metadata.FromOutgoingContext(ctx); ok && len(md.Get(key)) > 0 {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, key, value)
}

func firstValue(md metadata.MD, key string) string {
	for _, value := range md.Get(key) {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}
