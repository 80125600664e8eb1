// Package apiclient defines the generic remote call contract between the web
// service and the platform API: one Run(service, operation, table, data)
// operation returning a success envelope.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrServiceRequired indicates a request without a service name.
	ErrServiceRequired = errors.New("api request service is required")
	// ErrOperationRequired indicates a request without an operation name.
	ErrOperationRequired = errors.New("api request operation is required")
)

// Request names one remote operation and its payload.
type Request struct {
	Service   string         `json:"service"`
	Operation string         `json:"operation"`
	Table     string         `json:"table,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Validate checks the fields every request must carry.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Service) == "" {
		return ErrServiceRequired
	}
	if strings.TrimSpace(r.Operation) == "" {
		return ErrOperationRequired
	}
	return nil
}

// String renders the request target for logs and error messages.
func (r Request) String() string {
	if r.Table == "" {
		return r.Service + "." + r.Operation
	}
	return r.Service + "." + r.Operation + "(" + r.Table + ")"
}

// Response is the wire envelope returned by Run. Success false carries the
// server's Error message and an optional machine-readable Code.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
}

// Succeed builds a successful response carrying data encoded as JSON.
func Succeed(data any) (Response, error) {
	if data == nil {
		return Response{Success: true}, nil
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return Response{}, fmt.Errorf("encode response data: %w", err)
	}
	return Response{Success: true, Data: encoded}, nil
}

// Reject builds an unsuccessful response.
func Reject(code, message string) Response {
	return Response{Success: false, Error: message, Code: code}
}

// Runner executes remote operations. A returned error means the call did not
// complete; a completed call the server refused returns Success false.
type Runner interface {
	Run(ctx context.Context, req Request) (Response, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, req Request) (Response, error)

// Run implements Runner.
func (fn RunnerFunc) Run(ctx context.Context, req Request) (Response, error) {
	return fn(ctx, req)
}
