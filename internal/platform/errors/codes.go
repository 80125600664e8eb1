// Package errors provides structured error handling across Captify services.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request errors
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"
	CodeUnsupportedService   Code = "UNSUPPORTED_SERVICE"
	CodeUnsupportedOperation Code = "UNSUPPORTED_OPERATION"
	CodeUnsupportedTable     Code = "UNSUPPORTED_TABLE"
	CodeInvalidFilter        Code = "INVALID_FILTER"

	// Storage errors
	CodeNotFound        Code = "NOT_FOUND"
	CodeAlreadyExists   Code = "ALREADY_EXISTS"
	CodeVersionConflict Code = "VERSION_CONFLICT"

	// Session errors
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeSessionExpired  Code = "SESSION_EXPIRED"

	// Dependency errors
	CodeUnavailable Code = "UNAVAILABLE"
	CodeRejected    Code = "REJECTED"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeInvalidArgument,
		CodeUnsupportedService,
		CodeUnsupportedOperation,
		CodeUnsupportedTable,
		CodeInvalidFilter:
		return codes.InvalidArgument

	case CodeNotFound:
		return codes.NotFound

	case CodeAlreadyExists:
		return codes.AlreadyExists

	case CodeVersionConflict, CodeRejected:
		return codes.FailedPrecondition

	case CodeUnauthenticated, CodeSessionExpired:
		return codes.Unauthenticated

	case CodeUnavailable:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}
