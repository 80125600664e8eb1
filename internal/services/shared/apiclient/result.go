package apiclient

// Result is either a value or an error, never both.
type Result[T any] struct {
	value T
	err   error
}

// Ok wraps a successful value.
func Ok[T any](value T) Result[T] {
	return Result[T]{value: value}
}

// Fail wraps an error. A nil err is replaced by ErrUnknownFailure.
func Fail[T any](err error) Result[T] {
	if err == nil {
		err = ErrUnknownFailure
	}
	return Result[T]{err: err}
}

// OK reports whether the result holds a value.
func (r Result[T]) OK() bool {
	return r.err == nil
}

// Value returns the value, or the zero value on failure.
func (r Result[T]) Value() T {
	return r.value
}

// Err returns the failure, or nil.
func (r Result[T]) Err() error {
	return r.err
}

// Unpack returns the value and error pair.
func (r Result[T]) Unpack() (T, error) {
	return r.value, r.err
}
