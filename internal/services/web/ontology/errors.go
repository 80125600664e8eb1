package ontology

import (
	"errors"

	apperrors "github.com/captify/captify/internal/platform/errors"
	"github.com/captify/captify/internal/services/shared/apiclient"
)

// RemoteError reports a failed remote call. Message and Code carry the
// server's reason when it rejected the call.
type RemoteError struct {
	Collection Collection
	Operation  string
	Message    string
	Code       string
	Err        error
}

func (e *RemoteError) Error() string {
	return "ontology " + e.Operation + " " + string(e.Collection) + ": " + e.Message
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func newRemoteError(c Collection, operation string, err error) *RemoteError {
	remote := &RemoteError{Collection: c, Operation: operation, Message: err.Error(), Err: err}
	var rejected *apiclient.RejectedError
	var domainErr *apperrors.Error
	switch {
	case errors.As(err, &rejected):
		remote.Message = rejected.Message
		remote.Code = rejected.Code
	case errors.As(err, &domainErr):
		remote.Message = domainErr.Message
		remote.Code = string(domainErr.Code)
	}
	if remote.Message == "" {
		remote.Message = "request rejected"
	}
	return remote
}
