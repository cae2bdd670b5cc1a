package aws

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// RemoteError wraps a failed cloud collaborator call. The service's own
// error code and message are carried verbatim: operators need them for
// account-level debugging.
type RemoteError struct {
	Op      string // e.g. "iam.CreateRole"
	Code    string // service error code, "" when the failure never reached AWS
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s failed [%s]: %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// WrapRemote converts an SDK error into a RemoteError, extracting the
// smithy API error code when present.
func WrapRemote(op string, err error) error {
	if err == nil {
		return nil
	}
	re := &RemoteError{Op: op, Err: err}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		re.Code = apiErr.ErrorCode()
		re.Message = apiErr.ErrorMessage()
	} else {
		re.Message = err.Error()
	}
	return re
}

// IsAccessDenied reports whether an error is an authorization failure.
func IsAccessDenied(err error) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		switch re.Code {
		case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation":
			return true
		}
	}
	return false
}

// IsNoSuchEntity reports whether an error means the entity was absent.
func IsNoSuchEntity(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Code == "NoSuchEntity"
}
