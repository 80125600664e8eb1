package httpapi

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/captify/captify/internal/platform/errors"
	"github.com/captify/captify/internal/services/web/ontology"
	"github.com/captify/captify/internal/services/web/session"
	"github.com/captify/captify/internal/services/web/sessioncache"
)

// errorStatus maps a handler error to an HTTP status and a machine code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errEmptyBody),
		errors.Is(err, ontology.ErrUnknownCollection),
		errors.Is(err, ontology.ErrSlugRequired),
		errors.Is(err, sessioncache.ErrItemIDRequired),
		errors.Is(err, session.ErrUserRequired),
		errors.Is(err, errUnknownCacheCollection):
		return http.StatusBadRequest, string(apperrors.CodeInvalidArgument)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, string(apperrors.CodeUnavailable)
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge, string(apperrors.CodeInvalidArgument)
	}

	var remote *ontology.RemoteError
	if errors.As(err, &remote) && remote.Code != "" {
		return grpcCodeHTTPStatus(apperrors.Code(remote.Code).GRPCCode(), http.StatusBadGateway), remote.Code
	}
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		return grpcCodeHTTPStatus(domainErr.Code.GRPCCode(), http.StatusInternalServerError), string(domainErr.Code)
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return grpcCodeHTTPStatus(st.Code(), http.StatusBadGateway), st.Code().String()
	}
	if remote != nil {
		return http.StatusBadGateway, string(apperrors.CodeUnavailable)
	}
	return http.StatusInternalServerError, string(apperrors.CodeUnknown)
}

// grpcCodeHTTPStatus maps gRPC status codes to HTTP status codes.
// It returns fallback for unmapped codes.
func grpcCodeHTTPStatus(code codes.Code, fallback int) int {
	switch code {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.FailedPrecondition:
		return http.StatusConflict
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return fallback
	}
}

func errorFields(r *http.Request, err error) []zap.Field {
	return []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	}
}
