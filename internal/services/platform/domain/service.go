// Package domain implements the platform API: the generic table operations
// and the ontology collections served through one Run entry point.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	apperrors "github.com/captify/captify/internal/platform/errors"
	"github.com/captify/captify/internal/platform/grpc/pagination"
	"github.com/captify/captify/internal/platform/id"
	"github.com/captify/captify/internal/platform/otel"
	"github.com/captify/captify/internal/platform/requestctx"
	"github.com/captify/captify/internal/services/platform/storage"
	"github.com/captify/captify/internal/services/shared/apiclient"
)

const (
	// ServiceDynamo names the generic table operations.
	ServiceDynamo = "dynamo"
	// ServiceOntology names the ontology collection operations.
	ServiceOntology = "ontology"

	defaultPageSize = 100
	maxPageSize     = 1000
)

// ErrServiceNotConfigured indicates a nil service or a missing store.
var ErrServiceNotConfigured = errors.New("platform service is not configured")

// Config controls platform service behavior.
type Config struct {
	Logger *zap.Logger
	// NewID generates slugs for unnamed ontology entities.
	NewID    func() (string, error)
	PageSize pagination.PageSizeConfig
}

// Service executes platform API requests against a Store.
type Service struct {
	store    storage.Store
	logger   *zap.Logger
	newID    func() (string, error)
	pageSize pagination.PageSizeConfig
}

// NewService builds a platform service over store.
func NewService(store storage.Store, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	newID := cfg.NewID
	if newID == nil {
		newID = id.NewID
	}
	pageSize := cfg.PageSize
	if pageSize.Default <= 0 {
		pageSize.Default = defaultPageSize
	}
	if pageSize.Max <= 0 {
		pageSize.Max = maxPageSize
	}
	return &Service{
		store:    store,
		logger:   logger,
		newID:    newID,
		pageSize: pageSize,
	}
}

// Run implements apiclient.Runner.
//
// Domain failures such as a missing item or an invalid filter complete with
// Success false. Malformed requests, unknown services, operations or tables,
// and storage faults are returned as errors.
func (s *Service) Run(ctx context.Context, req apiclient.Request) (apiclient.Response, error) {
	if s == nil || s.store == nil {
		return apiclient.Response{}, ErrServiceNotConfigured
	}
	if err := req.Validate(); err != nil {
		return apiclient.Response{}, apperrors.Wrap(apperrors.CodeInvalidArgument, err.Error(), err)
	}

	ctx, span := otel.Tracer("captify/platform").Start(ctx, "platform.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("captify.service", req.Service),
		attribute.String("captify.operation", req.Operation),
		attribute.String("captify.table", req.Table),
	)
	userID := requestctx.UserIDFromContext(ctx)
	if userID != "" {
		span.SetAttributes(attribute.String("captify.user_id", userID))
	}
	s.logger.Debug("run",
		zap.String("service", req.Service),
		zap.String("operation", req.Operation),
		zap.String("table", req.Table),
		zap.String("user_id", userID),
		zap.String("session_id", requestctx.SessionIDFromContext(ctx)),
	)

	var (
		data any
		err  error
	)
	switch strings.TrimSpace(req.Service) {
	case ServiceDynamo:
		data, err = s.runDynamo(ctx, req)
	case ServiceOntology:
		data, err = s.runOntology(ctx, req)
	default:
		err = apperrors.WithMetadata(apperrors.CodeUnsupportedService,
			fmt.Sprintf("unsupported service %q", req.Service),
			map[string]string{"service": req.Service})
	}

	resp, err := s.respond(req, data, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if !resp.Success {
		span.SetAttributes(attribute.String("captify.rejected", resp.Code))
	}
	return resp, err
}

func (s *Service) respond(req apiclient.Request, data any, err error) (apiclient.Response, error) {
	if err == nil {
		return apiclient.Succeed(data)
	}
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) && rejectable(domainErr.Code) {
		s.logger.Debug("request rejected",
			zap.String("request", req.String()),
			zap.String("code", string(domainErr.Code)),
			zap.String("reason", domainErr.Message),
		)
		return apiclient.Reject(string(domainErr.Code), domainErr.Message), nil
	}
	s.logger.Warn("request failed", zap.String("request", req.String()), zap.Error(err))
	return apiclient.Response{}, err
}

func rejectable(code apperrors.Code) bool {
	switch code {
	case apperrors.CodeInvalidArgument,
		apperrors.CodeInvalidFilter,
		apperrors.CodeNotFound,
		apperrors.CodeAlreadyExists,
		apperrors.CodeVersionConflict:
		return true
	default:
		return false
	}
}

func unsupportedOperation(req apiclient.Request) error {
	return apperrors.WithMetadata(apperrors.CodeUnsupportedOperation,
		fmt.Sprintf("unsupported operation %s", req.String()),
		map[string]string{"service": req.Service, "operation": req.Operation})
}

func storageFault(op string, err error) error {
	return apperrors.Wrap(apperrors.CodeUnavailable, op+": "+err.Error(), err)
}

func notFound(table, key string) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound,
		fmt.Sprintf("%s %q not found", table, key),
		map[string]string{"table": table, "key": key})
}

func (s *Service) limit(data map[string]any) (int, error) {
	limit, err := pagination.ClampLimit(data["limit"], s.pageSize)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeInvalidArgument, err.Error(), err)
	}
	return limit, nil
}

func orderBy(data map[string]any) (string, error) {
	raw, _ := data["orderBy"].(string)
	normalized, err := pagination.NormalizeOrderBy(raw, pagination.OrderByConfig{
		Default: "",
		Allowed: []string{"key", "created_at", "updated_at", "version"},
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInvalidArgument, err.Error(), err)
	}
	return normalized, nil
}
