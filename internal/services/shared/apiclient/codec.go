package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownFailure marks a failed result without a cause.
	ErrUnknownFailure = errors.New("api call failed")
	// ErrEmptyItem indicates a single-item response without a payload.
	ErrEmptyItem = errors.New("api response has no item")
)

// RejectedError reports a call that completed with Success false.
type RejectedError struct {
	Operation string
	Message   string
	Code      string
}

func (e *RejectedError) Error() string {
	message := e.Message
	if message == "" {
		message = "request rejected"
	}
	if e.Operation == "" {
		return message
	}
	return e.Operation + ": " + message
}

// InvalidPayloadError reports a response whose data failed decoding or
// validation.
type InvalidPayloadError struct {
	Index int // -1 when the failure is not tied to one element
	Err   error
}

func (e *InvalidPayloadError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid api payload: %v", e.Err)
	}
	return fmt.Sprintf("invalid api payload item %d: %v", e.Index, e.Err)
}

func (e *InvalidPayloadError) Unwrap() error {
	return e.Err
}

type validator interface {
	Validate() error
}

// DecodeItems reads a list payload shaped as {"Items":[...]} or a bare array.
// A missing Items field or empty data decodes as an empty list.
func DecodeItems[T any](resp Response) Result[[]T] {
	if !resp.Success {
		return Fail[[]T](&RejectedError{Message: resp.Error, Code: resp.Code})
	}
	raw := bytes.TrimSpace(resp.Data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Ok([]T{})
	}
	if raw[0] == '{' {
		var envelope struct {
			Items json.RawMessage `json:"Items"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return Fail[[]T](&InvalidPayloadError{Index: -1, Err: err})
		}
		raw = bytes.TrimSpace(envelope.Items)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			return Ok([]T{})
		}
	}

	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return Fail[[]T](&InvalidPayloadError{Index: -1, Err: err})
	}
	for i := range items {
		if err := validate(&items[i]); err != nil {
			return Fail[[]T](&InvalidPayloadError{Index: i, Err: err})
		}
	}
	if items == nil {
		items = []T{}
	}
	return Ok(items)
}

// DecodeItem reads a single payload shaped as {"Item":{...}} or a bare object.
func DecodeItem[T any](resp Response) Result[T] {
	if !resp.Success {
		return Fail[T](&RejectedError{Message: resp.Error, Code: resp.Code})
	}
	raw := bytes.TrimSpace(resp.Data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Fail[T](ErrEmptyItem)
	}
	if raw[0] == '{' {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return Fail[T](&InvalidPayloadError{Index: -1, Err: err})
		}
		if item, ok := envelope["Item"]; ok {
			raw = bytes.TrimSpace(item)
			if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
				return Fail[T](ErrEmptyItem)
			}
		}
	}

	var item T
	if err := json.Unmarshal(raw, &item); err != nil {
		return Fail[T](&InvalidPayloadError{Index: -1, Err: err})
	}
	if err := validate(&item); err != nil {
		return Fail[T](&InvalidPayloadError{Index: -1, Err: err})
	}
	return Ok(item)
}

// RunItems runs req and decodes a list payload. Transport failures and
// rejections both surface as a failed result; rejections carry the request
// target in RejectedError.Operation.
func RunItems[T any](ctx context.Context, runner Runner, req Request) Result[[]T] {
	resp, err := run(ctx, runner, req)
	if err != nil {
		return Fail[[]T](err)
	}
	return withOperation(DecodeItems[T](resp), req)
}

// RunItem runs req and decodes a single-item payload.
func RunItem[T any](ctx context.Context, runner Runner, req Request) Result[T] {
	resp, err := run(ctx, runner, req)
	if err != nil {
		return Fail[T](err)
	}
	return withOperation(DecodeItem[T](resp), req)
}

// RunAck runs req and only reports whether the server accepted it.
func RunAck(ctx context.Context, runner Runner, req Request) error {
	resp, err := run(ctx, runner, req)
	if err != nil {
		return err
	}
	if !resp.Success {
		return &RejectedError{Operation: req.String(), Message: resp.Error, Code: resp.Code}
	}
	return nil
}

func run(ctx context.Context, runner Runner, req Request) (Response, error) {
	if runner == nil {
		return Response{}, errors.New("api runner is not configured")
	}
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	resp, err := runner.Run(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("run %s: %w", req, err)
	}
	return resp, nil
}

func withOperation[T any](result Result[T], req Request) Result[T] {
	var rejected *RejectedError
	if errors.As(result.Err(), &rejected) && rejected.Operation == "" {
		rejected.Operation = req.String()
	}
	return result
}

func validate[T any](item *T) error {
	if v, ok := any(item).(validator); ok {
		return v.Validate()
	}
	if v, ok := any(*item).(validator); ok {
		return v.Validate()
	}
	return nil
}
